// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/groupcrdt/ids"
)

func TestNextIsMonotonicPerGroup(t *testing.T) {
	require := require.New(t)
	c := New()
	group, err := ids.NewGroupID()
	require.NoError(err)

	require.Equal(ids.Lamport(1), c.Next(group))
	require.Equal(ids.Lamport(2), c.Next(group))
	require.Equal(ids.Lamport(3), c.Next(group))
}

func TestNextIsIndependentAcrossGroups(t *testing.T) {
	require := require.New(t)
	c := New()
	a, err := ids.NewGroupID()
	require.NoError(err)
	b, err := ids.NewGroupID()
	require.NoError(err)

	require.Equal(ids.Lamport(1), c.Next(a))
	require.Equal(ids.Lamport(1), c.Next(b))
	require.Equal(ids.Lamport(2), c.Next(a))
}

func TestObserveOnlyAdvancesForward(t *testing.T) {
	require := require.New(t)
	c := New()
	group, err := ids.NewGroupID()
	require.NoError(err)

	c.Observe(group, 10)
	require.Equal(ids.Lamport(10), c.Max(group))

	c.Observe(group, 3)
	require.Equal(ids.Lamport(10), c.Max(group))

	c.Observe(group, 11)
	require.Equal(ids.Lamport(11), c.Max(group))
}

func TestNextAfterObserveContinuesFromHighWaterMark(t *testing.T) {
	require := require.New(t)
	c := New()
	group, err := ids.NewGroupID()
	require.NoError(err)

	c.Observe(group, 5)
	require.Equal(ids.Lamport(6), c.Next(group))
}

func TestForgetResetsGroup(t *testing.T) {
	require := require.New(t)
	c := New()
	group, err := ids.NewGroupID()
	require.NoError(err)

	c.Observe(group, 7)
	c.Forget(group)
	require.Equal(ids.Lamport(0), c.Max(group))
	require.Equal(ids.Lamport(1), c.Next(group))
}
