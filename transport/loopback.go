// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import "sync"

// LoopbackTransport is an in-process Transport implementation for
// tests: peers are wired together directly by the test harness via
// Connect, with no sockets involved, and every sent frame is recorded
// for assertions.
type LoopbackTransport struct {
	self string

	mu       sync.Mutex
	peers    map[string]*LoopbackTransport
	handlers map[WireType]Handler
	sent     []SentRecord
}

// SentRecord is one frame LoopbackTransport.Send was called with,
// recorded whether or not it was delivered.
type SentRecord struct {
	Peer    string
	Wire    WireType
	Payload []byte
}

// NewLoopbackTransport constructs a named loopback endpoint.
func NewLoopbackTransport(self string) *LoopbackTransport {
	return &LoopbackTransport{
		self:     self,
		peers:    make(map[string]*LoopbackTransport),
		handlers: make(map[WireType]Handler),
	}
}

// Connect wires two loopback endpoints together bidirectionally.
func Connect(a, b *LoopbackTransport) {
	a.mu.Lock()
	a.peers[b.self] = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peers[a.self] = a
	b.mu.Unlock()
}

func (t *LoopbackTransport) ConnectPeer(peer string) error { return nil } // wired via Connect instead

func (t *LoopbackTransport) DisconnectPeer(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peer)
}

// Send delivers payload synchronously to the named peer's registered
// handler, if connected, returning whether delivery happened.
func (t *LoopbackTransport) Send(peer string, wire WireType, payload []byte) bool {
	t.mu.Lock()
	dst, ok := t.peers[peer]
	t.sent = append(t.sent, SentRecord{Peer: peer, Wire: wire, Payload: append([]byte(nil), payload...)})
	t.mu.Unlock()
	if !ok {
		return false
	}
	dst.mu.Lock()
	h := dst.handlers[wire]
	dst.mu.Unlock()
	if h == nil {
		return false
	}
	h(t.self, wire, payload)
	return true
}

func (t *LoopbackTransport) RegisterHandler(wire WireType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[wire] = h
}

func (t *LoopbackTransport) Peers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.peers))
	for p := range t.peers {
		out = append(out, p)
	}
	return out
}

func (t *LoopbackTransport) Close() error { return nil }

// SentMessages returns every frame this endpoint has sent, for test
// assertions.
func (t *LoopbackTransport) SentMessages() []SentRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentRecord(nil), t.sent...)
}
