// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	glog "github.com/luxfi/groupcrdt/log"
)

func TestTCPTransportSendDeliversToRegisteredHandler(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewTCPTransport(ctx, "127.0.0.1:0", glog.NewNoOpLogger(), nil)
	require.NoError(err)
	defer server.Close()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	server.RegisterHandler(WireOpBroadcast, func(peer string, wire WireType, payload []byte) {
		mu.Lock()
		got = append([]byte(nil), payload...)
		mu.Unlock()
		close(done)
	})

	addr := server.Addr()

	client, err := NewTCPTransport(ctx, "", glog.NewNoOpLogger(), nil)
	require.NoError(err)
	defer client.Close()

	require.NoError(client.ConnectPeer(addr))
	require.True(client.Send(addr, WireOpBroadcast, []byte("hello")))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal([]byte("hello"), got)
}

func TestTCPTransportSendToUnconnectedPeerFails(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := NewTCPTransport(ctx, "", glog.NewNoOpLogger(), nil)
	require.NoError(err)
	defer tr.Close()

	require.False(tr.Send("127.0.0.1:1", WireOpBroadcast, []byte("x")))
}

func TestTCPTransportCloseDisablesSend(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewTCPTransport(ctx, "127.0.0.1:0", glog.NewNoOpLogger(), nil)
	require.NoError(err)
	addr := server.Addr()

	client, err := NewTCPTransport(ctx, "", glog.NewNoOpLogger(), nil)
	require.NoError(err)
	require.NoError(client.ConnectPeer(addr))

	require.NoError(client.Close())
	require.False(client.Send(addr, WireOpBroadcast, []byte("x")))
	server.Close()
}
