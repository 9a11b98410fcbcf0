// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state implements the per-group, single-threaded CRDT reducer:
// it derives members, messages, reactions and metadata deterministically
// from the group's op stream, and exposes the read-only query surface
// used by upper layers.
package state

import (
	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
)

// Member is the derived membership record for one device within a group.
type Member struct {
	Role                codec.Role
	Accepted            bool
	Removed             bool
	InvitedByOpID       ids.OpID
	WrappedGroupSecret  []byte
	GroupSecretPlaintext []byte // populated only for the GroupCreate author

	acceptedAtLamport *ids.Lamport
	removedAtLamport  *ids.Lamport
}

// Message is the derived state of one MsgAdd and any surviving edits.
type Message struct {
	MsgID      ids.OpID
	Author     ids.DeviceID
	Lamport    ids.Lamport
	Ciphertext []byte
	Nonce      [24]byte
	Deleted    bool
	EditCount  int
}

// ReactionKey identifies one (message, reactor, emoji) triple.
type ReactionKey struct {
	MsgID   ids.OpID
	Reactor ids.DeviceID
	Emoji   string
}

type metaEntry struct {
	value   []byte
	lamport ids.Lamport
	author  ids.DeviceID
}

// RejectReason classifies why apply() refused an individual op.
type RejectReason string

const (
	ReasonBadSignature    RejectReason = "bad_signature"
	ReasonCodec           RejectReason = "codec_error"
	ReasonUnknownVariant  RejectReason = "unknown_variant"
	ReasonExceedsSize     RejectReason = "exceeds_size"
	ReasonUnauthorized    RejectReason = "unauthorized"
	ReasonDuplicateHash   RejectReason = "duplicate_content_hash"
	ReasonMissingRef      RejectReason = "missing_reference"
	ReasonSupersededGroup RejectReason = "superseded_group_create"
)

// RejectedOp records one op this call to Apply refused to merge.
type RejectedOp struct {
	OpID   ids.OpID
	Reason RejectReason
}

// GroupState is the full derived state of one group.
type GroupState struct {
	Created    bool
	CreateOpID ids.OpID
	GroupID    ids.GroupID

	Members   map[ids.DeviceID]*Member
	Messages  map[ids.OpID]*Message
	Reactions map[ReactionKey]bool
	Metadata  map[codec.MetadataKey]metaEntry

	seenOps    map[ids.OpID]struct{}
	seenHashes map[ids.ContentHash]struct{}
}

func newGroupState(group ids.GroupID) *GroupState {
	return &GroupState{
		GroupID:    group,
		Members:    make(map[ids.DeviceID]*Member),
		Messages:   make(map[ids.OpID]*Message),
		Reactions:  make(map[ReactionKey]bool),
		Metadata:   make(map[codec.MetadataKey]metaEntry),
		seenOps:    make(map[ids.OpID]struct{}),
		seenHashes: make(map[ids.ContentHash]struct{}),
	}
}
