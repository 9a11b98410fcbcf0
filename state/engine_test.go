// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/groupcrdt/clock"
	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/crypto"
	"github.com/luxfi/groupcrdt/ids"
	glog "github.com/luxfi/groupcrdt/log"
	"github.com/luxfi/groupcrdt/oplog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := oplog.Open(t.TempDir(), glog.NewNoOpLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store, clock.New(), glog.NewNoOpLogger(), nil)
}

func TestEngineApplyAndQuery(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, alice, bob := basicScenario(t)
	for _, op := range ops {
		applied, _, err := e.Apply(group, op)
		require.NoError(err)
		require.True(applied)
	}

	gs, err := e.Load(group)
	require.NoError(err)
	require.True(gs.Members[alice.device()].Accepted)
	require.True(gs.Members[bob.device()].Accepted)
	require.Len(gs.Messages, 1)
}

func TestEngineApplyIsIdempotentOnDuplicate(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, _, _ := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}

	applied, reason, err := e.Apply(group, ops[0])
	require.NoError(err)
	require.False(applied)
	require.Equal(ReasonDuplicateHash, reason)
}

func TestEngineUnloadThenLoadRebuildsIdenticalState(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, _, _ := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}
	before, err := e.ConvergenceHash(group)
	require.NoError(err)

	e.Unload(group)

	after, err := e.ConvergenceHash(group)
	require.NoError(err)
	require.Equal(before, after)
}

func TestEngineApplyOutOfOrderStillAuthorizesLaterMessage(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, _, bob := basicScenario(t)
	// Apply the message before the accept that authorizes its author:
	// the engine must re-derive the fixed point over the full op set,
	// not just the ops seen so far, so the message still merges.
	createOp, inviteOp, acceptOp, msgOp := ops[0], ops[1], ops[2], ops[3]
	_, _, err := e.Apply(group, createOp)
	require.NoError(err)
	_, _, err = e.Apply(group, inviteOp)
	require.NoError(err)
	_, _, err = e.Apply(group, msgOp)
	require.NoError(err)
	_, _, err = e.Apply(group, acceptOp)
	require.NoError(err)

	gs, err := e.Load(group)
	require.NoError(err)
	require.Len(gs.Messages, 1)
	require.True(gs.Members[bob.device()].Accepted)
}

func TestEngineApplyRejectsUnauthorizedMessage(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, err := ids.NewGroupID()
	require.NoError(err)

	alice := newActor(t)
	secret, err := crypto.RandomGroupSecret()
	require.NoError(err)
	createOp := buildOp(t, group, alice, 1, codec.GroupCreate{GroupName: "g", InitialGroupSecret: secret})
	_, _, err = e.Apply(group, createOp)
	require.NoError(err)

	stranger := newActor(t)
	nonce, err := crypto.RandomXNonce()
	require.NoError(err)
	ciphertext, err := crypto.SealMessage(secret, nonce, []byte("intruder"))
	require.NoError(err)
	strangerMsg := buildOp(t, group, stranger, 2, codec.MsgAdd{Ciphertext: ciphertext, Nonce: nonce})

	applied, reason, err := e.Apply(group, strangerMsg)
	require.NoError(err)
	require.False(applied)
	require.Equal(ReasonUnauthorized, reason)
}
