// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oplog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/crypto"
	"github.com/luxfi/groupcrdt/ids"
	glog "github.com/luxfi/groupcrdt/log"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), glog.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func signedOp(t *testing.T, group ids.GroupID, lamport ids.Lamport) []byte {
	t.Helper()
	_, priv, err := crypto.GenerateSigningKeypair()
	require.NoError(t, err)
	env, err := codec.NewSignedEnvelope(group, priv, lamport, codec.MsgAdd{
		Ciphertext: []byte("ct"), Nonce: [24]byte{byte(lamport)},
	})
	require.NoError(t, err)
	return env.Encode()
}

func TestInsertIsIdempotent(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	op := signedOp(t, group, 1)
	inserted, err := s.Insert(group, op)
	require.NoError(err)
	require.True(inserted)

	inserted, err = s.Insert(group, op)
	require.NoError(err)
	require.False(inserted)

	ops, err := s.Scan(group, 0, 0)
	require.NoError(err)
	require.Len(ops, 1)
}

func TestScanOrdersByLamportRegardlessOfInsertOrder(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	op3 := signedOp(t, group, 3)
	op1 := signedOp(t, group, 1)
	op2 := signedOp(t, group, 2)

	for _, op := range [][]byte{op3, op1, op2} {
		_, err := s.Insert(group, op)
		require.NoError(err)
	}

	ops, err := s.Scan(group, 0, 0)
	require.NoError(err)
	require.Len(ops, 3)

	var lamports []ids.Lamport
	for _, raw := range ops {
		env, err := codec.DecodeEnvelope(raw)
		require.NoError(err)
		lamports = append(lamports, env.Lamport)
	}
	require.Equal([]ids.Lamport{1, 2, 3}, lamports)
}

func TestScanRespectsAfterLamportAndLimit(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	for lamport := ids.Lamport(1); lamport <= 5; lamport++ {
		_, err := s.Insert(group, signedOp(t, group, lamport))
		require.NoError(err)
	}

	ops, err := s.Scan(group, 2, 2)
	require.NoError(err)
	require.Len(ops, 2)

	max, err := s.MaxLamport(group)
	require.NoError(err)
	require.Equal(ids.Lamport(5), max)
}

func TestInsertRejectsGroupMismatch(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)
	group, err := ids.NewGroupID()
	require.NoError(err)
	other, err := ids.NewGroupID()
	require.NoError(err)

	_, err = s.Insert(other, signedOp(t, group, 1))
	require.ErrorIs(err, ErrGroupMismatch)
}

func TestDeleteGroupRemovesAllOps(t *testing.T) {
	require := require.New(t)
	s := openTestStore(t)
	group, err := ids.NewGroupID()
	require.NoError(err)

	_, err = s.Insert(group, signedOp(t, group, 1))
	require.NoError(err)
	_, err = s.Insert(group, signedOp(t, group, 2))
	require.NoError(err)

	require.NoError(s.DeleteGroup(group))

	ops, err := s.Scan(group, 0, 0)
	require.NoError(err)
	require.Empty(ops)

	max, err := s.MaxLamport(group)
	require.NoError(err)
	require.Equal(ids.Lamport(0), max)
}
