// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/groupcrdt/codec"
)

func TestEngineMembersReturnsSortedViews(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, alice, bob := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}

	members, err := e.Members(group)
	require.NoError(err)
	require.Len(members, 2)
	for i := 1; i < len(members); i++ {
		require.True(members[i-1].DeviceID.Less(members[i].DeviceID))
	}

	byDevice := make(map[string]MemberView, len(members))
	for _, m := range members {
		byDevice[m.DeviceID.String()] = m
	}
	require.True(byDevice[alice.device().String()].Accepted)
	require.Equal(codec.RoleAdmin, byDevice[alice.device().String()].Role)
	require.True(byDevice[bob.device().String()].Accepted)
}

func TestEngineMessagesAfterPaginatesByLamport(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, _, bob := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}

	msgOp := ops[3]
	env, err := codec.DecodeEnvelope(msgOp)
	require.NoError(err)

	all, err := e.MessagesAfter(group, 0, 0)
	require.NoError(err)
	require.Len(all, 1)
	require.Equal(bob.device(), all[0].Author)
	require.Equal(uint64(env.Lamport), all[0].TimestampMS)

	none, err := e.MessagesAfter(group, env.Lamport, 0)
	require.NoError(err)
	require.Empty(none)
}

func TestEngineMetadataReflectsExplicitMetadataSetOnly(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, alice, _ := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}

	// GroupCreate alone never populates metadata: basicScenario mints
	// only a GroupCreate, so the name register is still unset here.
	meta, err := e.Metadata(group)
	require.NoError(err)
	require.Empty(meta.Name)

	nameOp := buildOp(t, group, alice, 5, codec.MetadataSet{Key: codec.MetaName, Value: []byte("friends")})
	applied, _, err := e.Apply(group, nameOp)
	require.NoError(err)
	require.True(applied)

	meta, err = e.Metadata(group)
	require.NoError(err)
	require.Equal("friends", meta.Name)
}

func TestEngineStateHashMatchesConvergenceHashHex(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, _, _ := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}

	hash, err := e.ConvergenceHash(group)
	require.NoError(err)
	hexHash, err := e.StateHash(group)
	require.NoError(err)
	require.Equal(hex.EncodeToString(hash[:]), hexHash)
}

func TestEngineQueryDispatchesByKind(t *testing.T) {
	require := require.New(t)
	e := newTestEngine(t)

	group, ops, _, _ := basicScenario(t)
	for _, op := range ops {
		_, _, err := e.Apply(group, op)
		require.NoError(err)
	}

	members, err := e.Query(group, QueryMembers, QueryParams{})
	require.NoError(err)
	require.IsType([]MemberView{}, members)

	msgOp := ops[3]
	env, err := codec.DecodeEnvelope(msgOp)
	require.NoError(err)
	pageBefore, err := e.Query(group, QueryMessagesAfter, QueryParams{AfterLamport: env.Lamport - 1})
	require.NoError(err)
	require.Len(pageBefore.([]MessageView), 1)

	meta, err := e.Query(group, QueryMetadata, QueryParams{})
	require.NoError(err)
	require.IsType(MetadataView{}, meta)

	hash, err := e.Query(group, QueryStateHash, QueryParams{})
	require.NoError(err)
	require.IsType("", hash)

	_, err = e.Query(group, QueryKind("bogus"), QueryParams{})
	require.ErrorIs(err, ErrUnknownQueryKind)
}
