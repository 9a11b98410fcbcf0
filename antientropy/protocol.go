// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package antientropy implements the pull-based sync protocol: peers
// periodically ask each other for any ops they may be missing in a
// group, request/response framed over the transport's opaque wire
// types, plus opportunistic broadcast of freshly authored ops.
package antientropy

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
)

// ErrTruncated is returned when a sync message is shorter than its
// declared fields require.
var ErrTruncated = errors.New("antientropy: truncated message")

// syncRequest asks a peer for every op in group with lamport strictly
// greater than AfterLamport.
type syncRequest struct {
	Group       ids.GroupID
	AfterLamport ids.Lamport
}

func encodeSyncRequest(r syncRequest) []byte {
	buf := make([]byte, 32+8)
	copy(buf[0:32], r.Group[:])
	binary.BigEndian.PutUint64(buf[32:40], uint64(r.AfterLamport))
	return buf
}

func decodeSyncRequest(b []byte) (syncRequest, error) {
	var r syncRequest
	if len(b) != 40 {
		return r, ErrTruncated
	}
	copy(r.Group[:], b[0:32])
	r.AfterLamport = ids.Lamport(binary.BigEndian.Uint64(b[32:40]))
	return r, nil
}

// syncChunk carries a batch of packed op bytes answering a syncRequest.
type syncChunk struct {
	Group ids.GroupID
	Ops   [][]byte
}

func encodeSyncChunk(c syncChunk) []byte {
	buf := make([]byte, 32)
	copy(buf, c.Group[:])
	return append(buf, codec.PackOps(c.Ops)...)
}

func decodeSyncChunk(b []byte) (syncChunk, error) {
	var c syncChunk
	if len(b) < 32 {
		return c, ErrTruncated
	}
	copy(c.Group[:], b[0:32])
	ops, err := codec.UnpackOps(b[32:])
	// A bad tail frame still yields every well-formed op before it; that
	// is useful progress, so the chunk is kept whenever at least one op
	// decoded, and the error is returned only when none did.
	if err != nil && len(ops) == 0 {
		return c, err
	}
	c.Ops = ops
	return c, nil
}

// opBroadcast carries packed op bytes for immediate, latency-sensitive
// delivery outside the periodic pull cycle. It uses the same packed
// framing as syncChunk so one broadcast can carry either a single
// freshly authored op or a whole invite bootstrap bundle.
type opBroadcast struct {
	Group ids.GroupID
	Ops   [][]byte
}

func encodeOpBroadcast(m opBroadcast) []byte {
	buf := make([]byte, 32)
	copy(buf, m.Group[:])
	return append(buf, codec.PackOps(m.Ops)...)
}

func decodeOpBroadcast(b []byte) (opBroadcast, error) {
	var m opBroadcast
	if len(b) < 32 {
		return m, ErrTruncated
	}
	copy(m.Group[:], b[0:32])
	ops, err := codec.UnpackOps(b[32:])
	if err != nil && len(ops) == 0 {
		return m, err
	}
	m.Ops = ops
	return m, nil
}
