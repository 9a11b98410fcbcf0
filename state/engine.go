// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/groupcrdt/clock"
	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
	glog "github.com/luxfi/groupcrdt/log"
	"github.com/luxfi/groupcrdt/oplog"
)

// Engine is the process-wide, mutex-guarded set of loaded group
// reducers. Groups are materialized lazily on first touch and can be
// unloaded to bound memory; the op log remains the durable source of
// truth, so an unloaded group simply gets rebuilt by full replay the
// next time it is needed.
type Engine struct {
	store *oplog.Store
	clock *clock.Clock
	log   glog.Logger

	mu      sync.Mutex
	loaded  map[ids.GroupID]*GroupState

	opsApplied   prometheus.Counter
	opsRejected  *prometheus.CounterVec
	groupsLoaded prometheus.Gauge
}

// NewEngine wires an Engine to its durable op log and logical clock.
func NewEngine(store *oplog.Store, clk *clock.Clock, log glog.Logger, reg prometheus.Registerer) *Engine {
	if log == nil {
		log = glog.NewNoOpLogger()
	}
	e := &Engine{
		store:  store,
		clock:  clk,
		log:    log,
		loaded: make(map[ids.GroupID]*GroupState),
		opsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupcrdt",
			Subsystem: "state",
			Name:      "ops_applied_total",
			Help:      "Ops successfully merged into derived group state.",
		}),
		opsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groupcrdt",
			Subsystem: "state",
			Name:      "ops_rejected_total",
			Help:      "Ops refused by the reducer, labeled by reason.",
		}, []string{"reason"}),
		groupsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "groupcrdt",
			Subsystem: "state",
			Name:      "groups_loaded",
			Help:      "Number of groups currently materialized in memory.",
		}),
	}
	if reg != nil {
		reg.MustRegister(e.opsApplied, e.opsRejected, e.groupsLoaded)
	}
	return e
}

// Load materializes group's state by replaying its full op log, or
// returns the already-loaded state if present.
func (e *Engine) Load(group ids.GroupID) (*GroupState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(group)
}

func (e *Engine) loadLocked(group ids.GroupID) (*GroupState, error) {
	if gs, ok := e.loaded[group]; ok {
		return gs, nil
	}
	opBytes, err := e.store.Scan(group, 0, 0)
	if err != nil {
		return nil, errors.Wrap(err, "state: replay scan")
	}
	gs, verdicts := reduceAll(group, opBytes)
	for opID, v := range verdicts {
		if !v.ok {
			e.log.Warn("rejected op during replay", zap.String("op_id", opID.String()), zap.String("reason", string(v.reason)))
			e.opsRejected.WithLabelValues(string(v.reason)).Inc()
		}
	}
	e.loaded[group] = gs
	e.groupsLoaded.Set(float64(len(e.loaded)))
	return gs, nil
}

// Unload drops group's in-memory state; the next Load rebuilds it from
// the op log.
func (e *Engine) Unload(group ids.GroupID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.loaded, group)
	e.groupsLoaded.Set(float64(len(e.loaded)))
}

// Apply persists opBytes to the durable log (if new) and merges it
// into the group's loaded state, returning whether it was newly
// applied and, if not, why it was rejected or deduped.
func (e *Engine) Apply(group ids.GroupID, opBytes []byte) (applied bool, reason RejectReason, err error) {
	env, derr := codec.DecodeEnvelope(opBytes)
	if derr != nil {
		return false, ReasonCodec, nil
	}
	if env.GroupID != group {
		return false, ReasonCodec, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	gs, err := e.loadLocked(group)
	if err != nil {
		return false, "", err
	}

	hash := env.HashContent()
	if _, ok := gs.seenHashes[hash]; ok {
		return false, ReasonDuplicateHash, nil
	}

	inserted, err := e.store.Insert(group, opBytes)
	if err != nil {
		return false, "", errors.Wrap(err, "state: persist op")
	}
	if !inserted {
		return false, ReasonDuplicateHash, nil
	}
	e.clock.Observe(group, env.Lamport)

	// Re-derive by full replay: a single incoming op can retroactively
	// change authorization for ops already merged (e.g. an accept that
	// unblocks messages received out of order), so state after Apply is
	// always the fixed point over the complete persisted op set rather
	// than an incremental patch.
	opBytesAll, err := e.store.Scan(group, 0, 0)
	if err != nil {
		return false, "", errors.Wrap(err, "state: rescan after insert")
	}
	newGS, verdicts := reduceAll(group, opBytesAll)
	e.loaded[group] = newGS

	opID := env.OpID()
	v := verdicts[opID]
	if v.ok {
		e.opsApplied.Inc()
		return true, "", nil
	}
	e.opsRejected.WithLabelValues(string(v.reason)).Inc()
	return false, v.reason, nil
}

// ConvergenceHash computes the deterministic digest of group's derived
// state, used to confirm two replicas have converged.
func (e *Engine) ConvergenceHash(group ids.GroupID) ([32]byte, error) {
	gs, err := e.Load(group)
	if err != nil {
		return [32]byte{}, err
	}
	return convergenceHash(gs), nil
}
