// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopbackTransportDeliversSynchronously(t *testing.T) {
	require := require.New(t)
	a := NewLoopbackTransport("a")
	b := NewLoopbackTransport("b")
	Connect(a, b)

	var got []byte
	b.RegisterHandler(WireSyncChunk, func(peer string, wire WireType, payload []byte) {
		got = append([]byte(nil), payload...)
	})

	ok := a.Send("b", WireSyncChunk, []byte("chunk"))
	require.True(ok)
	require.Equal([]byte("chunk"), got)
}

func TestLoopbackTransportSendToUnknownPeerFails(t *testing.T) {
	require := require.New(t)
	a := NewLoopbackTransport("a")
	require.False(a.Send("ghost", WireOpBroadcast, []byte("x")))
}

func TestLoopbackTransportSendWithoutHandlerFails(t *testing.T) {
	require := require.New(t)
	a := NewLoopbackTransport("a")
	b := NewLoopbackTransport("b")
	Connect(a, b)

	require.False(a.Send("b", WireOpBroadcast, []byte("x")))
}

func TestLoopbackTransportRecordsAllSendAttempts(t *testing.T) {
	require := require.New(t)
	a := NewLoopbackTransport("a")
	b := NewLoopbackTransport("b")
	Connect(a, b)

	a.Send("b", WireOpBroadcast, []byte("one"))
	a.Send("ghost", WireOpBroadcast, []byte("two"))

	sent := a.SentMessages()
	require.Len(sent, 2)
	require.Equal("b", sent[0].Peer)
	require.Equal("ghost", sent[1].Peer)
}

func TestLoopbackTransportDisconnectPeerStopsDelivery(t *testing.T) {
	require := require.New(t)
	a := NewLoopbackTransport("a")
	b := NewLoopbackTransport("b")
	Connect(a, b)
	b.RegisterHandler(WireOpBroadcast, func(peer string, wire WireType, payload []byte) {})

	require.True(a.Send("b", WireOpBroadcast, []byte("x")))
	a.DisconnectPeer("b")
	require.False(a.Send("b", WireOpBroadcast, []byte("x")))
}
