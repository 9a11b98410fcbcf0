// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package antientropy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/groupcrdt/ids"
)

func TestSyncRequestEncodeDecodeRoundTrip(t *testing.T) {
	require := require.New(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	req := syncRequest{Group: group, AfterLamport: 42}
	decoded, err := decodeSyncRequest(encodeSyncRequest(req))
	require.NoError(err)
	require.Equal(req, decoded)
}

func TestDecodeSyncRequestRejectsWrongLength(t *testing.T) {
	require := require.New(t)
	_, err := decodeSyncRequest([]byte("too short"))
	require.ErrorIs(err, ErrTruncated)
}

func TestSyncChunkEncodeDecodeRoundTrip(t *testing.T) {
	require := require.New(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	chunk := syncChunk{Group: group, Ops: [][]byte{[]byte("op-one"), []byte("op-two")}}
	decoded, err := decodeSyncChunk(encodeSyncChunk(chunk))
	require.NoError(err)
	require.Equal(chunk.Group, decoded.Group)
	require.Equal(chunk.Ops, decoded.Ops)
}

func TestSyncChunkEncodeDecodeEmptyOps(t *testing.T) {
	require := require.New(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	chunk := syncChunk{Group: group, Ops: nil}
	decoded, err := decodeSyncChunk(encodeSyncChunk(chunk))
	require.NoError(err)
	require.Empty(decoded.Ops)
}

func TestDecodeSyncChunkRejectsTooShort(t *testing.T) {
	require := require.New(t)
	_, err := decodeSyncChunk([]byte("short"))
	require.ErrorIs(err, ErrTruncated)
}

func TestOpBroadcastEncodeDecodeRoundTrip(t *testing.T) {
	require := require.New(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	msg := opBroadcast{Group: group, Ops: [][]byte{[]byte("op-one"), []byte("op-two")}}
	decoded, err := decodeOpBroadcast(encodeOpBroadcast(msg))
	require.NoError(err)
	require.Equal(msg.Group, decoded.Group)
	require.Equal(msg.Ops, decoded.Ops)
}

func TestDecodeOpBroadcastRejectsTooShort(t *testing.T) {
	require := require.New(t)
	_, err := decodeOpBroadcast([]byte("short"))
	require.ErrorIs(err, ErrTruncated)
}
