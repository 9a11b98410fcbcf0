// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport is the opaque delivery primitive the sync protocol
// is built on: an address-addressed byte-oriented send and an inbound
// dispatch table keyed by the first byte of the message. It mirrors
// the shape of a wrapped point-to-point transport (connect/send/
// register-handler/metrics) without binding the engine to
// any particular wire technology.
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	glog "github.com/luxfi/groupcrdt/log"
)

// WireType is the single leading byte every message on the wire
// carries, letting a receiver dispatch without parsing the body.
type WireType byte

const (
	WireOpBroadcast  WireType = 0x30
	WireSyncRequest  WireType = 0x32
	WireSyncChunk    WireType = 0x33
)

// Handler processes one inbound message from peer.
type Handler func(peer string, wire WireType, payload []byte)

// Transport is the abstraction the anti-entropy loop depends on: an
// opaque send primitive plus inbound dispatch by wire type. Callers
// never need to know whether peer addresses are loopback sockets,
// onion services, or bluetooth MACs.
type Transport interface {
	Send(peer string, wire WireType, payload []byte) bool
	RegisterHandler(wire WireType, h Handler)
	Peers() []string
	ConnectPeer(peer string) error
	DisconnectPeer(peer string)
	Close() error
}

var (
	// ErrNotConnected names a send to an address with no established
	// connection. Send itself reports that case as false, not as this error.
	ErrNotConnected = errors.New("transport: peer not connected")
	// ErrClosed names use of a closed transport. Send on a closed
	// transport reports false and Close on one returns nil; neither
	// returns this error.
	ErrClosed = errors.New("transport: closed")
)

const maxFrameLen = 1 << 20 // generous upper bound; real payloads are bounded far below this by codec.MaxOpSize

// TCPTransport is a concrete length-prefixed, TCP-based Transport.
// Anonymous-transport deployments (Tor, I2P, mixnets) satisfy the same
// Transport interface with their own dialer; TCPTransport exists for
// local development and test harnesses where a loopback address is
// all that's needed.
type TCPTransport struct {
	log glog.Logger

	mu       sync.Mutex
	conns    map[string]net.Conn
	handlers map[WireType]Handler
	closed   bool
	addr     string

	sent, received, dropped prometheus.Counter
}

// NewTCPTransport constructs a TCPTransport. listenAddr may be empty
// to disable accepting inbound connections (outbound-only use).
func NewTCPTransport(ctx context.Context, listenAddr string, log glog.Logger, reg prometheus.Registerer) (*TCPTransport, error) {
	if log == nil {
		log = glog.NewNoOpLogger()
	}
	t := &TCPTransport{
		log:      log,
		conns:    make(map[string]net.Conn),
		handlers: make(map[WireType]Handler),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt", Subsystem: "transport", Name: "messages_sent_total",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt", Subsystem: "transport", Name: "messages_received_total",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt", Subsystem: "transport", Name: "messages_dropped_total",
		}),
	}
	if reg != nil {
		reg.MustRegister(t.sent, t.received, t.dropped)
	}
	if listenAddr != "" {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return nil, errors.Wrap(err, "transport: listen")
		}
		t.addr = ln.Addr().String()
		go t.acceptLoop(ctx, ln)
	}
	return t, nil
}

// Addr returns the address this transport is listening on, or "" if it
// was constructed outbound-only.
func (t *TCPTransport) Addr() string {
	return t.addr
}

func (t *TCPTransport) acceptLoop(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go t.readLoop(conn.RemoteAddr().String(), conn)
	}
}

func (t *TCPTransport) readLoop(peer string, conn net.Conn) {
	t.mu.Lock()
	t.conns[peer] = conn
	t.mu.Unlock()

	for {
		frame, err := readFrame(conn)
		if err != nil {
			conn.Close()
			t.mu.Lock()
			delete(t.conns, peer)
			t.mu.Unlock()
			return
		}
		if len(frame) == 0 {
			continue
		}
		wire := WireType(frame[0])
		body := frame[1:]
		t.received.Inc()

		t.mu.Lock()
		h := t.handlers[wire]
		t.mu.Unlock()
		if h == nil {
			t.dropped.Inc()
			t.log.Warn("no handler for wire type", zap.Uint8("wire_type", byte(wire)))
			continue
		}
		h(peer, wire, body)
	}
}

// ConnectPeer establishes (or reuses) an outbound connection to peer.
func (t *TCPTransport) ConnectPeer(peer string) error {
	t.mu.Lock()
	if _, ok := t.conns[peer]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, err := net.Dial("tcp", peer)
	if err != nil {
		return errors.Wrap(err, "transport: dial")
	}
	t.mu.Lock()
	t.conns[peer] = conn
	t.mu.Unlock()
	go t.readLoop(peer, conn)
	return nil
}

// DisconnectPeer closes and forgets the connection to peer, if any.
func (t *TCPTransport) DisconnectPeer(peer string) {
	t.mu.Lock()
	conn, ok := t.conns[peer]
	delete(t.conns, peer)
	t.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Send writes one wire-typed frame to peer, returning false on any
// failure (unconnected peer, write error) rather than an error value,
// matching the spec's opaque best-effort delivery primitive.
func (t *TCPTransport) Send(peer string, wire WireType, payload []byte) bool {
	t.mu.Lock()
	conn, ok := t.conns[peer]
	closed := t.closed
	t.mu.Unlock()
	if closed || !ok {
		return false
	}
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(wire)
	copy(frame[1:], payload)
	if err := writeFrame(conn, frame); err != nil {
		t.log.Warn("send failed", zap.String("peer", peer), zap.Error(err))
		return false
	}
	t.sent.Inc()
	return true
}

// RegisterHandler installs h for inbound messages of the given wire
// type, replacing any previous handler.
func (t *TCPTransport) RegisterHandler(wire WireType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[wire] = h
}

// Peers returns the addresses of all currently connected peers.
func (t *TCPTransport) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	peers := make([]string, 0, len(t.conns))
	for p := range t.conns {
		peers = append(peers, p)
	}
	return peers
}

// Close disconnects every peer and marks the transport unusable.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = nil
	return nil
}
