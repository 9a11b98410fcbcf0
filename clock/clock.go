// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clock implements the per-group Lamport counter: a monotonic
// logical clock with merge-on-receive, no wall-clock participation.
package clock

import (
	"sync"

	"github.com/luxfi/groupcrdt/ids"
)

// Clock tracks the highest lamport observed per group, across every
// author, and hands out fresh lamports for locally authored ops.
type Clock struct {
	mu      sync.Mutex
	maxSeen map[ids.GroupID]ids.Lamport
}

// New returns an empty Clock.
func New() *Clock {
	return &Clock{maxSeen: make(map[ids.GroupID]ids.Lamport)}
}

// Next reserves and returns the next lamport for a locally authored op
// in group: one greater than the highest lamport seen so far in that
// group (0 if the group has no history yet).
func (c *Clock) Next(group ids.GroupID) ids.Lamport {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.maxSeen[group] + 1
	c.maxSeen[group] = next
	return next
}

// Observe advances the group's clock to at least lamport, as ops are
// received (locally authored or not).
func (c *Clock) Observe(group ids.GroupID, lamport ids.Lamport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lamport > c.maxSeen[group] {
		c.maxSeen[group] = lamport
	}
}

// Max returns the highest lamport observed for group, or 0.
func (c *Clock) Max(group ids.GroupID) ids.Lamport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSeen[group]
}

// Forget drops all clock state for a deleted group.
func (c *Clock) Forget(group ids.GroupID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.maxSeen, group)
}
