// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/hex"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
)

// QueryKind names one of the read-only projections Query can run
// against a group's derived state.
type QueryKind string

const (
	QueryMembers       QueryKind = "members"
	QueryMessages      QueryKind = "messages"
	QueryMessagesAfter QueryKind = "messages_after"
	QueryMetadata      QueryKind = "metadata"
	QueryStateHash     QueryKind = "state_hash"
)

// ErrUnknownQueryKind is returned by Query for any QueryKind it does
// not recognize.
var ErrUnknownQueryKind = errors.New("state: unknown query kind")

// QueryParams carries the kind-specific arguments a projection needs;
// only MessagesAfter/messages_after currently uses them.
type QueryParams struct {
	AfterLamport ids.Lamport
	Limit        int
}

// MemberView is the external, read-only presentation of one group
// member.
type MemberView struct {
	DeviceID           ids.DeviceID
	Role               codec.Role
	Accepted           bool
	Removed            bool
	InvitedByOpID      ids.OpID
	WrappedGroupSecret []byte
}

// ReactionView is one reactor's emoji toggle on a message.
type ReactionView struct {
	Reactor ids.DeviceID
	Emoji   string
}

// MessageView is the external, read-only presentation of one message.
// TimestampMS is not a wall-clock value: no wall clock participates in
// ordering, so it is the message op's lamport presented as a
// monotonic rank.
type MessageView struct {
	MsgID       ids.OpID
	Author      ids.DeviceID
	TimestampMS uint64
	Deleted     bool
	Ciphertext  []byte
	Nonce       [24]byte
	Reactions   []ReactionView
}

// MetadataView is the group's current name/topic/avatar registers.
// A field is left at its zero value when that register has never
// been set.
type MetadataView struct {
	Name        string
	Topic       string
	AvatarBytes []byte
}

// Query runs one read-only projection over group's derived state,
// dispatching on kind. The concrete return type is the corresponding
// View type: []MemberView, []MessageView, MetadataView, or string.
func (e *Engine) Query(group ids.GroupID, kind QueryKind, params QueryParams) (interface{}, error) {
	switch kind {
	case QueryMembers:
		return e.Members(group)
	case QueryMessages:
		return e.MessagesAfter(group, 0, 0)
	case QueryMessagesAfter:
		return e.MessagesAfter(group, params.AfterLamport, params.Limit)
	case QueryMetadata:
		return e.Metadata(group)
	case QueryStateHash:
		return e.StateHash(group)
	default:
		return nil, ErrUnknownQueryKind
	}
}

// Members returns every member of group, in ascending device-id order.
func (e *Engine) Members(group ids.GroupID) ([]MemberView, error) {
	gs, err := e.Load(group)
	if err != nil {
		return nil, err
	}
	devices := make([]ids.DeviceID, 0, len(gs.Members))
	for d := range gs.Members {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Less(devices[j]) })

	out := make([]MemberView, 0, len(devices))
	for _, d := range devices {
		m := gs.Members[d]
		out = append(out, MemberView{
			DeviceID:           d,
			Role:               m.Role,
			Accepted:           m.Accepted,
			Removed:            m.Removed,
			InvitedByOpID:      m.InvitedByOpID,
			WrappedGroupSecret: m.WrappedGroupSecret,
		})
	}
	return out, nil
}

// MessagesAfter returns every undeleted-or-deleted message with
// lamport strictly greater than afterLamport, ordered by (lamport,
// author, nonce), capped at limit entries (0 means unbounded). This is
// the pagination primitive for client list views; the sync protocol
// pages through the op log with oplog.Store.Scan instead.
func (e *Engine) MessagesAfter(group ids.GroupID, afterLamport ids.Lamport, limit int) ([]MessageView, error) {
	gs, err := e.Load(group)
	if err != nil {
		return nil, err
	}

	reactionsByMsg := make(map[ids.OpID][]ReactionView)
	for key, present := range gs.Reactions {
		if !present {
			continue
		}
		reactionsByMsg[key.MsgID] = append(reactionsByMsg[key.MsgID], ReactionView{Reactor: key.Reactor, Emoji: key.Emoji})
	}
	for _, rs := range reactionsByMsg {
		sort.Slice(rs, func(i, j int) bool {
			if rs[i].Reactor != rs[j].Reactor {
				return rs[i].Reactor.Less(rs[j].Reactor)
			}
			return rs[i].Emoji < rs[j].Emoji
		})
	}

	msgIDs := make([]ids.OpID, 0, len(gs.Messages))
	for id, msg := range gs.Messages {
		if msg.Lamport <= afterLamport {
			continue
		}
		msgIDs = append(msgIDs, id)
	}
	sort.Slice(msgIDs, func(i, j int) bool { return msgIDs[i].Less(msgIDs[j]) })
	if limit > 0 && len(msgIDs) > limit {
		msgIDs = msgIDs[:limit]
	}

	out := make([]MessageView, 0, len(msgIDs))
	for _, id := range msgIDs {
		msg := gs.Messages[id]
		out = append(out, MessageView{
			MsgID:       msg.MsgID,
			Author:      msg.Author,
			TimestampMS: uint64(msg.Lamport),
			Deleted:     msg.Deleted,
			Ciphertext:  msg.Ciphertext,
			Nonce:       msg.Nonce,
			Reactions:   reactionsByMsg[id],
		})
	}
	return out, nil
}

// Metadata returns group's current name/topic/avatar registers.
func (e *Engine) Metadata(group ids.GroupID) (MetadataView, error) {
	gs, err := e.Load(group)
	if err != nil {
		return MetadataView{}, err
	}
	var out MetadataView
	if entry, ok := gs.Metadata[codec.MetaName]; ok {
		out.Name = string(entry.value)
	}
	if entry, ok := gs.Metadata[codec.MetaTopic]; ok {
		out.Topic = string(entry.value)
	}
	if entry, ok := gs.Metadata[codec.MetaAvatar]; ok {
		out.AvatarBytes = entry.value
	}
	return out, nil
}

// StateHash returns group's convergence hash as a lowercase hex
// string, the form external callers compare to confirm two replicas
// have converged.
func (e *Engine) StateHash(group ids.GroupID) (string, error) {
	hash, err := e.ConvergenceHash(group)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash[:]), nil
}
