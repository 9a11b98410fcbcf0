// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"sort"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
)

// entry pairs a decoded, signature-verified envelope with its content
// hash and decoded payload, ready for the two reduction passes.
type entry struct {
	env   *codec.Envelope
	hash  ids.ContentHash
	payload codec.Payload
}

// verdict is the per-op outcome of a reduction: either it merged
// cleanly or it was rejected with a reason.
type verdict struct {
	ok     bool
	reason RejectReason
}

// reduceAll derives a GroupState from the full, order-independent set
// of op bytes for a group. It always sorts by (lamport, author, nonce)
// before processing, so the same multiset of ops yields identical
// derived state and convergence hash regardless of the order op bytes
// were supplied in — the core strong-eventual-consistency guarantee.
func reduceAll(group ids.GroupID, opBytesSet [][]byte) (*GroupState, map[ids.OpID]verdict) {
	gs := newGroupState(group)
	verdicts := make(map[ids.OpID]verdict, len(opBytesSet))

	entries := make([]entry, 0, len(opBytesSet))
	for _, raw := range opBytesSet {
		env, err := codec.DecodeEnvelope(raw)
		if err != nil {
			// Unparseable bytes carry no op id to report against; the
			// oplog store already refuses to persist these, so in
			// practice reduceAll only ever sees well-formed envelopes.
			continue
		}
		opID := env.OpID()
		hash := ids.HashContent(raw)

		if !codec.VerifySignature(env) {
			verdicts[opID] = verdict{false, ReasonBadSignature}
			continue
		}
		payload, err := codec.DecodePayload(env.Tag, env.Payload)
		if err != nil {
			verdicts[opID] = verdict{false, ReasonUnknownVariant}
			continue
		}
		entries = append(entries, entry{env: env, hash: hash, payload: payload})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].env.OpID().Less(entries[j].env.OpID())
	})

	// --- invariant 3: GroupCreate uniqueness ---
	var winner *entry
	for i := range entries {
		if entries[i].env.Tag != codec.TagGroupCreate {
			continue
		}
		if winner == nil || entries[i].env.OpID().Less(winner.env.OpID()) {
			winner = &entries[i]
		}
	}

	for i := range entries {
		e := &entries[i]
		opID := e.env.OpID()
		if e.env.Tag == codec.TagGroupCreate && e != winner {
			verdicts[opID] = verdict{false, ReasonSupersededGroup}
		}
	}

	if winner != nil {
		p := winner.payload.(codec.GroupCreate)
		gs.Created = true
		gs.CreateOpID = winner.env.OpID()
		lam := winner.env.Lamport
		creator := &Member{
			Role:                 codec.RoleAdmin,
			Accepted:             true,
			acceptedAtLamport:    &lam,
			GroupSecretPlaintext: append([]byte(nil), p.InitialGroupSecret[:]...),
		}
		gs.Members[winner.env.Author] = creator
		gs.seenOps[winner.env.OpID()] = struct{}{}
		gs.seenHashes[winner.hash] = struct{}{}
		verdicts[winner.env.OpID()] = verdict{true, ""}
	}

	// --- pass 1: membership timeline ---
	for i := range entries {
		e := &entries[i]
		if e.env.Tag == codec.TagGroupCreate {
			continue // handled above
		}
		switch p := e.payload.(type) {
		case codec.MemberInvite:
			applyMemberInvite(gs, e, p, verdicts)
		case codec.MemberAccept:
			applyMemberAccept(gs, e, p, verdicts)
		case codec.MemberRemove:
			applyMemberRemove(gs, e, p, verdicts)
		}
	}

	// --- pass 2: messages, edits, deletes, reactions, metadata ---
	for i := range entries {
		e := &entries[i]
		switch p := e.payload.(type) {
		case codec.MsgAdd:
			applyMsgAdd(gs, e, p, verdicts)
		}
	}
	for i := range entries {
		e := &entries[i]
		switch p := e.payload.(type) {
		case codec.MsgDelete:
			applyMsgDelete(gs, e, p, verdicts)
		}
	}
	for i := range entries {
		e := &entries[i]
		switch p := e.payload.(type) {
		case codec.MsgEdit:
			applyMsgEdit(gs, e, p, verdicts)
		case codec.ReactionSet:
			applyReactionSet(gs, e, p, verdicts)
		case codec.MetadataSet:
			applyMetadataSet(gs, e, p, verdicts)
		}
	}

	for i := range entries {
		e := &entries[i]
		opID := e.env.OpID()
		if v, ok := verdicts[opID]; ok && v.ok {
			gs.seenOps[opID] = struct{}{}
			gs.seenHashes[e.hash] = struct{}{}
		}
	}

	return gs, verdicts
}

// isAuthorizedAt reports whether author was an accepted, non-removed
// member of the group as of lamport — invariant 2's general gate.
func isAuthorizedAt(gs *GroupState, author ids.DeviceID, lamport ids.Lamport) bool {
	m, ok := gs.Members[author]
	if !ok {
		return false
	}
	if m.acceptedAtLamport == nil || *m.acceptedAtLamport > lamport {
		return false
	}
	if m.removedAtLamport != nil && lamport >= *m.removedAtLamport {
		return false
	}
	return true
}

func applyMemberInvite(gs *GroupState, e *entry, p codec.MemberInvite, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	existing, ok := gs.Members[p.InvitedPubkey]
	switch {
	case ok && existing.Accepted && existing.removedAtLamport == nil:
		// already an accepted member: no-op, still a clean merge.
		verdicts[opID] = verdict{true, ""}
	case ok && existing.removedAtLamport != nil && e.env.Lamport >= *existing.removedAtLamport:
		inviter, _ := gs.Members[e.env.Author]
		if inviter == nil || inviter.Role != codec.RoleAdmin {
			verdicts[opID] = verdict{false, ReasonUnauthorized}
			return
		}
		existing.Role = p.Role
		existing.Accepted = false
		existing.acceptedAtLamport = nil
		existing.removedAtLamport = nil
		existing.Removed = false
		existing.InvitedByOpID = opID
		existing.WrappedGroupSecret = p.WrappedGroupSecret
		verdicts[opID] = verdict{true, ""}
	case !ok:
		gs.Members[p.InvitedPubkey] = &Member{
			Role:               p.Role,
			InvitedByOpID:      opID,
			WrappedGroupSecret: p.WrappedGroupSecret,
		}
		verdicts[opID] = verdict{true, ""}
	default:
		// invite racing a not-yet-effective removal: no-op.
		verdicts[opID] = verdict{true, ""}
	}
}

func applyMemberAccept(gs *GroupState, e *entry, p codec.MemberAccept, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	m, ok := gs.Members[e.env.Author]
	if !ok || m.InvitedByOpID != p.InviteOpID {
		verdicts[opID] = verdict{false, ReasonMissingRef}
		return
	}
	lam := e.env.Lamport
	m.Accepted = true
	if m.acceptedAtLamport == nil || lam < *m.acceptedAtLamport {
		m.acceptedAtLamport = &lam
	}
	verdicts[opID] = verdict{true, ""}
}

func applyMemberRemove(gs *GroupState, e *entry, p codec.MemberRemove, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	selfLeave := e.env.Author == p.Target
	if !selfLeave {
		if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
			verdicts[opID] = verdict{false, ReasonUnauthorized}
			return
		}
		admin := gs.Members[e.env.Author]
		if admin.Role != codec.RoleAdmin {
			verdicts[opID] = verdict{false, ReasonUnauthorized}
			return
		}
	}
	target, ok := gs.Members[p.Target]
	if !ok {
		verdicts[opID] = verdict{false, ReasonMissingRef}
		return
	}
	lam := e.env.Lamport
	target.Removed = true
	if target.removedAtLamport == nil || lam < *target.removedAtLamport {
		target.removedAtLamport = &lam
	}
	verdicts[opID] = verdict{true, ""}
}

func applyMsgAdd(gs *GroupState, e *entry, p codec.MsgAdd, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	gs.Messages[opID] = &Message{
		MsgID:      opID,
		Author:     e.env.Author,
		Lamport:    e.env.Lamport,
		Ciphertext: p.Ciphertext,
		Nonce:      p.Nonce,
	}
	verdicts[opID] = verdict{true, ""}
}

func applyMsgDelete(gs *GroupState, e *entry, p codec.MsgDelete, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	msg, ok := gs.Messages[p.TargetMsgID]
	if !ok {
		verdicts[opID] = verdict{false, ReasonMissingRef}
		return
	}
	isAdmin := false
	if m, ok := gs.Members[e.env.Author]; ok {
		isAdmin = m.Role == codec.RoleAdmin
	}
	if e.env.Author != msg.Author && !isAdmin {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	msg.Deleted = true
	verdicts[opID] = verdict{true, ""}
}

func applyMsgEdit(gs *GroupState, e *entry, p codec.MsgEdit, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	msg, ok := gs.Messages[p.TargetMsgID]
	if !ok {
		verdicts[opID] = verdict{false, ReasonMissingRef}
		return
	}
	if e.env.Author != msg.Author {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	if msg.Deleted {
		verdicts[opID] = verdict{false, ReasonMissingRef}
		return
	}
	if e.env.Lamport > msg.Lamport {
		msg.Ciphertext = p.NewCiphertext
		msg.Nonce = p.NewNonce
	}
	msg.EditCount++
	verdicts[opID] = verdict{true, ""}
}

func applyReactionSet(gs *GroupState, e *entry, p codec.ReactionSet, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	if _, ok := gs.Messages[p.TargetMsgID]; !ok {
		verdicts[opID] = verdict{false, ReasonMissingRef}
		return
	}
	if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	key := ReactionKey{MsgID: p.TargetMsgID, Reactor: e.env.Author, Emoji: p.Emoji}
	gs.Reactions[key] = p.Present
	verdicts[opID] = verdict{true, ""}
}

func applyMetadataSet(gs *GroupState, e *entry, p codec.MetadataSet, verdicts map[ids.OpID]verdict) {
	opID := e.env.OpID()
	if !isAuthorizedAt(gs, e.env.Author, e.env.Lamport) {
		verdicts[opID] = verdict{false, ReasonUnauthorized}
		return
	}
	cur, ok := gs.Metadata[p.Key]
	better := !ok ||
		e.env.Lamport > cur.lamport ||
		(e.env.Lamport == cur.lamport && e.env.Author.Less(cur.author))
	if better {
		gs.Metadata[p.Key] = metaEntry{value: p.Value, lamport: e.env.Lamport, author: e.env.Author}
	}
	verdicts[opID] = verdict{true, ""}
}
