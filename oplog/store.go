// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oplog is the durable, append-only op log: a pebble-backed
// keyed store indexed by (group_id, lamport, arrival) with content-hash
// dedup. Persisting raw op bytes keyed by content hash gives
// exactly-once durability and makes arrival order irrelevant to
// convergence; the order index is only a performance hint for replay.
package oplog

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/ids"
	glog "github.com/luxfi/groupcrdt/log"
)

// ErrGroupMismatch is returned when an op's envelope names a group other
// than the one it was inserted under.
var ErrGroupMismatch = errors.New("oplog: envelope group does not match insert target")

// Store is the durable op log for every group sharing one process.
type Store struct {
	db  *pebble.DB
	log glog.Logger

	// Inserts are serialized so the arrival-sequence and max-lamport
	// counters (read-modify-write against the db) stay correct; the op
	// log supports concurrent readers and a single writer per group, and
	// a single mutex across all groups keeps that invariant trivially
	// true at the cost of cross-group write parallelism.
	mu sync.Mutex
}

// Open opens (or creates) a pebble-backed op log at path.
func Open(path string, log glog.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "oplog: open pebble")
	}
	if log == nil {
		log = glog.NewNoOpLogger()
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const (
	contentPrefixByte = 'c'
	orderPrefixByte   = 'o'
	metaPrefixByte    = 'm'

	metaArrivalSuffix    = 'a'
	metaMaxLamportSuffix = 'l'
)

func contentPrefix(group ids.GroupID) []byte {
	k := make([]byte, 0, 2+ids.GroupIDLen)
	k = append(k, contentPrefixByte, '/')
	return append(k, group[:]...)
}

func contentKey(group ids.GroupID, hash ids.ContentHash) []byte {
	k := contentPrefix(group)
	return append(k, hash[:]...)
}

func orderPrefix(group ids.GroupID) []byte {
	k := make([]byte, 0, 2+ids.GroupIDLen)
	k = append(k, orderPrefixByte, '/')
	return append(k, group[:]...)
}

func orderKey(group ids.GroupID, lamport ids.Lamport, arrival uint64) []byte {
	k := orderPrefix(group)
	var suffix [16]byte
	binary.BigEndian.PutUint64(suffix[0:8], uint64(lamport))
	binary.BigEndian.PutUint64(suffix[8:16], arrival)
	return append(k, suffix[:]...)
}

func metaKey(group ids.GroupID, suffix byte) []byte {
	k := make([]byte, 0, 2+ids.GroupIDLen+1)
	k = append(k, metaPrefixByte, '/')
	k = append(k, group[:]...)
	return append(k, suffix)
}

// prefixSuccessor returns the smallest key strictly greater than every
// key sharing prefix, i.e. the exclusive upper bound for a prefix scan.
func prefixSuccessor(prefix []byte) []byte {
	succ := append([]byte(nil), prefix...)
	for i := len(succ) - 1; i >= 0; i-- {
		if succ[i] != 0xFF {
			succ[i]++
			return succ[:i+1]
		}
	}
	// prefix is all 0xFF: there is no successor, scan to the end of the
	// keyspace.
	return nil
}

func (s *Store) readUint64(key []byte) (uint64, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(v) != 8 {
		return 0, errors.New("oplog: corrupt counter")
	}
	return binary.BigEndian.Uint64(v), nil
}

// Insert stores opBytes for group, keyed by content hash. It is
// idempotent: re-inserting the same bytes is a no-op and reports
// inserted=false. The envelope header is parsed at ingest time (cheap,
// fixed offsets) so the order index always carries the op's true
// lamport; ops are never stored with a placeholder lamport of 0.
func (s *Store) Insert(group ids.GroupID, opBytes []byte) (inserted bool, err error) {
	env, err := codec.DecodeEnvelope(opBytes)
	if err != nil {
		return false, err
	}
	if env.GroupID != group {
		return false, ErrGroupMismatch
	}
	hash := ids.HashContent(opBytes)
	ckey := contentKey(group, hash)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closer, err := s.db.Get(ckey); err == nil {
		closer.Close()
		return false, nil
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}

	arrivalKey := metaKey(group, metaArrivalSuffix)
	arrival, err := s.readUint64(arrivalKey)
	if err != nil {
		return false, err
	}
	arrival++

	maxKey := metaKey(group, metaMaxLamportSuffix)
	curMax, err := s.readUint64(maxKey)
	if err != nil {
		return false, err
	}
	if uint64(env.Lamport) > curMax {
		curMax = uint64(env.Lamport)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(ckey, opBytes, nil); err != nil {
		return false, err
	}
	if err := batch.Set(orderKey(group, env.Lamport, arrival), hash[:], nil); err != nil {
		return false, err
	}
	var arrivalBuf, maxBuf [8]byte
	binary.BigEndian.PutUint64(arrivalBuf[:], arrival)
	binary.BigEndian.PutUint64(maxBuf[:], curMax)
	if err := batch.Set(arrivalKey, arrivalBuf[:], nil); err != nil {
		return false, err
	}
	if err := batch.Set(maxKey, maxBuf[:], nil); err != nil {
		return false, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

// Scan returns up to limit ops for group strictly ordered by
// (lamport, arrival_seq) with lamport > afterLamport.
func (s *Store) Scan(group ids.GroupID, afterLamport ids.Lamport, limit int) ([][]byte, error) {
	lower := orderKey(group, afterLamport+1, 0)
	upper := prefixSuccessor(orderPrefix(group))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out [][]byte
	for iter.First(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Next() {
		var hash ids.ContentHash
		copy(hash[:], iter.Value())
		opBytes, closer, err := s.db.Get(contentKey(group, hash))
		if err != nil {
			return nil, err
		}
		out = append(out, append([]byte(nil), opBytes...))
		closer.Close()
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// MaxLamport returns the largest persisted lamport for group, or 0 if
// the group has no ops.
func (s *Store) MaxLamport(group ids.GroupID) (ids.Lamport, error) {
	v, err := s.readUint64(metaKey(group, metaMaxLamportSuffix))
	if err != nil {
		return 0, err
	}
	return ids.Lamport(v), nil
}

// DeleteGroup removes all ops and indexes for group.
func (s *Store) DeleteGroup(group ids.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, prefix := range [][]byte{contentPrefix(group), orderPrefix(group)} {
		end := prefixSuccessor(prefix)
		if err := batch.DeleteRange(prefix, end, nil); err != nil {
			return err
		}
	}
	if err := batch.Delete(metaKey(group, metaArrivalSuffix), nil); err != nil {
		return err
	}
	if err := batch.Delete(metaKey(group, metaMaxLamportSuffix), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}
