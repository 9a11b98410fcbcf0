// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config builds the runtime configuration for one groupcrdt
// node: where its op log lives, how it talks to peers, and how
// aggressively it runs anti-entropy.
package config

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/luxfi/groupcrdt/antientropy"
	"github.com/luxfi/groupcrdt/codec"
)

// Profile selects a preset tuned for a deployment shape.
type Profile string

const (
	ProfileLocal      Profile = "local"
	ProfileProduction Profile = "production"
)

// Config holds every tunable a node needs to start.
type Config struct {
	StorePath  string
	ListenAddr string

	PullInterval time.Duration
	ChunkLimit   int
	MaxFanout    int
	MaxOpSize    int
}

// Builder provides a fluent, validating interface for constructing a
// Config, accumulating the first error encountered and surfacing it
// only at Build.
type Builder struct {
	cfg *Config
	err error
}

// NewBuilder starts from local-profile defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: defaultsFor(ProfileLocal)}
}

func defaultsFor(p Profile) *Config {
	switch p {
	case ProfileProduction:
		return &Config{
			StorePath:    "/var/lib/groupcrdt/store",
			PullInterval: 30 * time.Second,
			ChunkLimit:   512,
			MaxFanout:    16,
			MaxOpSize:    codec.MaxOpSize,
		}
	default:
		return &Config{
			StorePath:    "./groupcrdt-store",
			PullInterval: 5 * time.Second,
			ChunkLimit:   128,
			MaxFanout:    4,
			MaxOpSize:    codec.MaxOpSize,
		}
	}
}

// FromProfile resets the builder to the named preset, discarding any
// fields set so far.
func (b *Builder) FromProfile(p Profile) *Builder {
	if b.err != nil {
		return b
	}
	switch p {
	case ProfileLocal, ProfileProduction:
		b.cfg = defaultsFor(p)
	default:
		b.err = errors.Newf("config: unknown profile %q", p)
	}
	return b
}

// WithStorePath sets the op log's on-disk directory.
func (b *Builder) WithStorePath(path string) *Builder {
	if b.err != nil {
		return b
	}
	if path == "" {
		b.err = errors.New("config: store path must not be empty")
		return b
	}
	b.cfg.StorePath = path
	return b
}

// WithListenAddr sets the address the transport accepts inbound
// connections on. Empty disables accepting connections entirely.
func (b *Builder) WithListenAddr(addr string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.ListenAddr = addr
	return b
}

// WithPullInterval sets how often anti-entropy pulls run per group.
func (b *Builder) WithPullInterval(d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d <= 0 {
		b.err = errors.Newf("config: pull interval must be positive, got %s", d)
		return b
	}
	b.cfg.PullInterval = d
	return b
}

// WithChunkLimit caps how many ops a single SYNC_CHUNK response carries.
func (b *Builder) WithChunkLimit(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		b.err = errors.Newf("config: chunk limit must be at least 1, got %d", n)
		return b
	}
	b.cfg.ChunkLimit = n
	return b
}

// WithMaxFanout bounds concurrent peer pulls per anti-entropy round.
func (b *Builder) WithMaxFanout(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		b.err = errors.Newf("config: max fanout must be at least 1, got %d", n)
		return b
	}
	b.cfg.MaxFanout = n
	return b
}

// WithMaxOpSize overrides the per-op size ceiling. It may only shrink
// the codec default, never grow past it: a larger value here would
// accept ops this build's wire codec cannot itself produce or parse.
func (b *Builder) WithMaxOpSize(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 1 || n > codec.MaxOpSize {
		b.err = errors.Newf("config: max op size must be in (0, %d], got %d", codec.MaxOpSize, n)
		return b
	}
	b.cfg.MaxOpSize = n
	return b
}

// Build validates and returns the final Config.
func (b *Builder) Build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	clone := *b.cfg
	return &clone, nil
}

// AntiEntropyConfig projects the sync-relevant fields into the shape
// antientropy.Service expects.
func (c *Config) AntiEntropyConfig() antientropy.Config {
	return antientropy.Config{
		PullInterval: c.PullInterval,
		ChunkLimit:   c.ChunkLimit,
		MaxFanout:    c.MaxFanout,
	}
}
