// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
)

// convergenceHash computes a deterministic digest of gs's derived
// state: two replicas that have merged the same op set always produce
// the same hash, regardless of merge order, because every collection
// is serialized in a fixed sort order before hashing.
func convergenceHash(gs *GroupState) [32]byte {
	var buf bytes.Buffer

	buf.Write(gs.GroupID[:])
	if gs.Created {
		buf.WriteByte(1)
		buf.Write(gs.CreateOpID.Author[:])
		writeU64(&buf, uint64(gs.CreateOpID.Lamport))
		buf.Write(gs.CreateOpID.Nonce[:])
	} else {
		buf.WriteByte(0)
	}

	members := make([]ids.DeviceID, 0, len(gs.Members))
	for d := range gs.Members {
		members = append(members, d)
	}
	sort.Slice(members, func(i, j int) bool { return bytes.Compare(members[i][:], members[j][:]) < 0 })
	for _, d := range members {
		m := gs.Members[d]
		buf.Write(d[:])
		buf.WriteByte(byte(m.Role))
		writeBool(&buf, m.Accepted)
		writeBool(&buf, m.Removed)
	}

	msgIDs := make([]ids.OpID, 0, len(gs.Messages))
	for id := range gs.Messages {
		msgIDs = append(msgIDs, id)
	}
	sort.Slice(msgIDs, func(i, j int) bool { return msgIDs[i].Less(msgIDs[j]) })
	for _, id := range msgIDs {
		m := gs.Messages[id]
		buf.Write(id.Author[:])
		writeU64(&buf, uint64(id.Lamport))
		buf.Write(id.Nonce[:])
		writeBool(&buf, m.Deleted)
		if !m.Deleted {
			buf.Write(m.Ciphertext)
			buf.Write(m.Nonce[:])
		}
		writeU64(&buf, uint64(m.EditCount))
	}

	type reactionEntry struct {
		key ReactionKey
		val bool
	}
	reactions := make([]reactionEntry, 0, len(gs.Reactions))
	for k, v := range gs.Reactions {
		reactions = append(reactions, reactionEntry{k, v})
	}
	sort.Slice(reactions, func(i, j int) bool {
		a, b := reactions[i].key, reactions[j].key
		if !a.MsgID.Less(b.MsgID) && !b.MsgID.Less(a.MsgID) {
			if a.Reactor != b.Reactor {
				return a.Reactor.Less(b.Reactor)
			}
			return a.Emoji < b.Emoji
		}
		return a.MsgID.Less(b.MsgID)
	})
	for _, r := range reactions {
		if !r.val {
			continue // absent reactions don't affect convergence
		}
		buf.Write(r.key.MsgID.Author[:])
		writeU64(&buf, uint64(r.key.MsgID.Lamport))
		buf.Write(r.key.MsgID.Nonce[:])
		buf.Write(r.key.Reactor[:])
		buf.WriteString(r.key.Emoji)
	}

	metaKeys := make([]codec.MetadataKey, 0, len(gs.Metadata))
	for k := range gs.Metadata {
		metaKeys = append(metaKeys, k)
	}
	sort.Slice(metaKeys, func(i, j int) bool { return metaKeys[i] < metaKeys[j] })
	for _, k := range metaKeys {
		entry := gs.Metadata[k]
		buf.WriteByte(byte(k))
		buf.Write(entry.value)
	}

	return sha256.Sum256(buf.Bytes())
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}
