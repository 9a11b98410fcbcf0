// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/groupcrdt/codec"
)

func TestNewBuilderDefaultsToLocalProfile(t *testing.T) {
	require := require.New(t)
	cfg, err := NewBuilder().Build()
	require.NoError(err)
	require.Equal("./groupcrdt-store", cfg.StorePath)
	require.Equal(5*time.Second, cfg.PullInterval)
	require.Equal(128, cfg.ChunkLimit)
	require.Equal(4, cfg.MaxFanout)
}

func TestFromProfileProduction(t *testing.T) {
	require := require.New(t)
	cfg, err := NewBuilder().FromProfile(ProfileProduction).Build()
	require.NoError(err)
	require.Equal("/var/lib/groupcrdt/store", cfg.StorePath)
	require.Equal(30*time.Second, cfg.PullInterval)
	require.Equal(512, cfg.ChunkLimit)
	require.Equal(16, cfg.MaxFanout)
}

func TestFromProfileUnknownFailsAtBuild(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().FromProfile(Profile("bogus")).Build()
	require.Error(err)
}

func TestWithStorePathRejectsEmpty(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().WithStorePath("").Build()
	require.Error(err)
}

func TestWithPullIntervalRejectsNonPositive(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().WithPullInterval(0).Build()
	require.Error(err)
}

func TestWithChunkLimitRejectsZero(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().WithChunkLimit(0).Build()
	require.Error(err)
}

func TestWithMaxFanoutRejectsZero(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().WithMaxFanout(0).Build()
	require.Error(err)
}

func TestWithMaxOpSizeRejectsAboveCodecCeiling(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().WithMaxOpSize(codec.MaxOpSize + 1).Build()
	require.Error(err)
}

func TestBuilderChainStopsAtFirstError(t *testing.T) {
	require := require.New(t)
	_, err := NewBuilder().
		WithStorePath("").
		WithPullInterval(10 * time.Second).
		Build()
	require.Error(err)
}

func TestBuildReturnsIndependentClone(t *testing.T) {
	require := require.New(t)
	b := NewBuilder().WithStorePath("/tmp/one")
	first, err := b.Build()
	require.NoError(err)

	second, err := b.WithStorePath("/tmp/two").Build()
	require.NoError(err)

	require.Equal("/tmp/one", first.StorePath)
	require.Equal("/tmp/two", second.StorePath)
}

func TestAntiEntropyConfigProjection(t *testing.T) {
	require := require.New(t)
	cfg, err := NewBuilder().Build()
	require.NoError(err)

	aeCfg := cfg.AntiEntropyConfig()
	require.Equal(cfg.PullInterval, aeCfg.PullInterval)
	require.Equal(cfg.ChunkLimit, aeCfg.ChunkLimit)
	require.Equal(cfg.MaxFanout, aeCfg.MaxFanout)
}
