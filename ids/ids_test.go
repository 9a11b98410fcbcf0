// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpIDLessOrdersByLamportThenAuthorThenNonce(t *testing.T) {
	require := require.New(t)

	low := OpID{Author: DeviceID{1}, Lamport: 1, Nonce: OpNonce{1}}
	high := OpID{Author: DeviceID{1}, Lamport: 2, Nonce: OpNonce{0}}
	require.True(low.Less(high))
	require.False(high.Less(low))

	a := OpID{Author: DeviceID{1}, Lamport: 5, Nonce: OpNonce{9}}
	b := OpID{Author: DeviceID{2}, Lamport: 5, Nonce: OpNonce{0}}
	require.True(a.Less(b))
	require.False(b.Less(a))

	c := OpID{Author: DeviceID{1}, Lamport: 5, Nonce: OpNonce{1}}
	d := OpID{Author: DeviceID{1}, Lamport: 5, Nonce: OpNonce{2}}
	require.True(c.Less(d))
}

func TestGroupIDStringRoundTrip(t *testing.T) {
	require := require.New(t)

	g, err := NewGroupID()
	require.NoError(err)

	parsed, err := ParseGroupID(g.String())
	require.NoError(err)
	require.Equal(g, parsed)
}

func TestParseGroupIDRejectsWrongLength(t *testing.T) {
	require := require.New(t)

	_, err := ParseGroupID("abcd")
	require.ErrorIs(err, ErrWrongLength)
}

func TestHashContentIsDeterministic(t *testing.T) {
	require := require.New(t)

	data := []byte("some op bytes")
	require.Equal(HashContent(data), HashContent(data))
	require.NotEqual(HashContent(data), HashContent([]byte("other bytes")))
}
