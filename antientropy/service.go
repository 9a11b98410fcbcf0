// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package antientropy

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/groupcrdt/clock"
	"github.com/luxfi/groupcrdt/ids"
	glog "github.com/luxfi/groupcrdt/log"
	"github.com/luxfi/groupcrdt/oplog"
	"github.com/luxfi/groupcrdt/state"
	"github.com/luxfi/groupcrdt/transport"
)

// Config tunes the pull cycle.
type Config struct {
	// PullInterval is how often each known group is synced against its peers.
	PullInterval time.Duration
	// ChunkLimit caps the number of ops returned per SYNC_CHUNK response.
	ChunkLimit int
	// MaxFanout bounds how many peers are pulled from concurrently per round.
	MaxFanout int
}

// DefaultConfig returns reasonable defaults for a single-process node.
func DefaultConfig() Config {
	return Config{
		PullInterval: 10 * time.Second,
		ChunkLimit:   256,
		MaxFanout:    8,
	}
}

// Service drives anti-entropy: it answers peers' sync requests out of
// the local op log, periodically pulls from known peers, and relays
// freshly authored ops by broadcast.
type Service struct {
	transport transport.Transport
	store     *oplog.Store
	engine    *state.Engine
	clock     *clock.Clock
	log       glog.Logger
	cfg       Config

	mu    sync.Mutex
	peers map[ids.GroupID]map[string]struct{}

	pullsSent     prometheus.Counter
	chunksApplied prometheus.Counter
	opsBroadcast  prometheus.Counter
}

// NewService wires a Service to a transport and the engine/store it
// syncs on behalf of, registering the three sync wire-type handlers.
func NewService(t transport.Transport, store *oplog.Store, engine *state.Engine, clk *clock.Clock, log glog.Logger, cfg Config, reg prometheus.Registerer) *Service {
	if log == nil {
		log = glog.NewNoOpLogger()
	}
	s := &Service{
		transport: t,
		store:     store,
		engine:    engine,
		clock:     clk,
		log:       log,
		cfg:       cfg,
		peers:     make(map[ids.GroupID]map[string]struct{}),
		pullsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt", Subsystem: "sync", Name: "pulls_sent_total",
		}),
		chunksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt", Subsystem: "sync", Name: "chunk_ops_applied_total",
		}),
		opsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt", Subsystem: "sync", Name: "ops_broadcast_total",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.pullsSent, s.chunksApplied, s.opsBroadcast)
	}
	t.RegisterHandler(transport.WireSyncRequest, s.handleSyncRequest)
	t.RegisterHandler(transport.WireSyncChunk, s.handleSyncChunk)
	t.RegisterHandler(transport.WireOpBroadcast, s.handleOpBroadcast)
	return s
}

// AddPeer records peer as a sync partner for group.
func (s *Service) AddPeer(group ids.GroupID, peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.peers[group]
	if !ok {
		set = make(map[string]struct{})
		s.peers[group] = set
	}
	set[peer] = struct{}{}
}

// RemovePeer forgets peer as a sync partner for group.
func (s *Service) RemovePeer(group ids.GroupID, peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers[group], peer)
}

func (s *Service) peerList(group ids.GroupID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers[group]))
	for p := range s.peers[group] {
		out = append(out, p)
	}
	return out
}

func (s *Service) groups() []ids.GroupID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ids.GroupID, 0, len(s.peers))
	for g := range s.peers {
		out = append(out, g)
	}
	return out
}

// Run drives the periodic pull loop until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PullInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pullRound(ctx)
		}
	}
}

// PullOnce runs a single pull round immediately, without waiting for
// the next tick — used by one-shot callers like a CLI sync command.
func (s *Service) PullOnce(ctx context.Context) {
	s.pullRound(ctx)
}

// pullRound issues one SYNC_REQUEST per (group, peer) pair, bounded to
// MaxFanout concurrent sends via an errgroup.
func (s *Service) pullRound(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(s.cfg.MaxFanout, 1))

	for _, group := range s.groups() {
		group := group
		maxLamport, err := s.store.MaxLamport(group)
		if err != nil {
			s.log.Warn("pull round: max lamport lookup failed", zap.Error(err))
			continue
		}
		for _, peer := range s.peerList(group) {
			peer := peer
			g.Go(func() error {
				s.pullFrom(peer, group, maxLamport)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (s *Service) pullFrom(peer string, group ids.GroupID, afterLamport ids.Lamport) {
	body := encodeSyncRequest(syncRequest{Group: group, AfterLamport: afterLamport})
	if s.transport.Send(peer, transport.WireSyncRequest, body) {
		s.pullsSent.Inc()
	}
}

func (s *Service) handleSyncRequest(peer string, _ transport.WireType, body []byte) {
	req, err := decodeSyncRequest(body)
	if err != nil {
		s.log.Warn("bad sync request", zap.String("peer", peer), zap.Error(err))
		return
	}
	ops, err := s.store.Scan(req.Group, req.AfterLamport, s.cfg.ChunkLimit)
	if err != nil {
		s.log.Warn("sync request scan failed", zap.String("peer", peer), zap.Error(err))
		return
	}
	resp := encodeSyncChunk(syncChunk{Group: req.Group, Ops: ops})
	s.transport.Send(peer, transport.WireSyncChunk, resp)
}

func (s *Service) handleSyncChunk(peer string, _ transport.WireType, body []byte) {
	chunk, err := decodeSyncChunk(body)
	if err != nil {
		s.log.Warn("bad sync chunk", zap.String("peer", peer), zap.Error(err))
		return
	}
	for _, opBytes := range chunk.Ops {
		applied, reason, err := s.engine.Apply(chunk.Group, opBytes)
		if err != nil {
			s.log.Warn("apply from sync chunk failed", zap.String("peer", peer), zap.Error(err))
			continue
		}
		if applied {
			s.chunksApplied.Inc()
		} else if reason != state.ReasonDuplicateHash {
			s.log.Warn("rejected op from sync chunk", zap.String("peer", peer), zap.String("reason", string(reason)))
		}
	}
}

func (s *Service) handleOpBroadcast(peer string, _ transport.WireType, body []byte) {
	msg, err := decodeOpBroadcast(body)
	if err != nil {
		s.log.Warn("bad op broadcast", zap.String("peer", peer), zap.Error(err))
		return
	}
	// The sender becomes a sync partner for the group, so an invitee that
	// was onboarded by a bootstrap bundle can relay its own ops back.
	s.AddPeer(msg.Group, peer)
	for _, opBytes := range msg.Ops {
		applied, reason, err := s.engine.Apply(msg.Group, opBytes)
		if err != nil {
			s.log.Warn("apply from broadcast failed", zap.String("peer", peer), zap.Error(err))
			continue
		}
		if !applied && reason != state.ReasonDuplicateHash {
			s.log.Warn("rejected broadcast op", zap.String("peer", peer), zap.String("reason", string(reason)))
		}
	}
}

// Broadcast best-effort relays opBytes to every known peer of group,
// for low-latency delivery of a freshly authored op ahead of the next
// pull cycle.
func (s *Service) Broadcast(group ids.GroupID, opBytes []byte) {
	body := encodeOpBroadcast(opBroadcast{Group: group, Ops: [][]byte{opBytes}})
	for _, peer := range s.peerList(group) {
		if s.transport.Send(peer, transport.WireOpBroadcast, body) {
			s.opsBroadcast.Inc()
		}
	}
}

// SendBootstrapBundle pushes the entire op set for group to peer as a
// single OP_BROADCAST, used to onboard a freshly invited member: the
// bundle necessarily contains GroupCreate, so the recipient can derive
// state from the beginning of history rather than from an arbitrary
// cursor. OP_BROADCAST carries both incremental ops and bootstrap
// bundles; the two are distinguished only by size and the presence of
// GroupCreate, never by wire type.
func (s *Service) SendBootstrapBundle(peer string, group ids.GroupID, ops [][]byte) bool {
	return s.transport.Send(peer, transport.WireOpBroadcast, encodeOpBroadcast(opBroadcast{Group: group, Ops: ops}))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
