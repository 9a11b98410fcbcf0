// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"crypto/ed25519"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/luxfi/groupcrdt/clock"
	gcrypto "github.com/luxfi/groupcrdt/crypto"
	glog "github.com/luxfi/groupcrdt/log"
	"github.com/luxfi/groupcrdt/oplog"
	"github.com/luxfi/groupcrdt/state"
)

// node bundles the pieces a CLI invocation needs to touch the local
// op log and derived state; it is opened fresh per command and closed
// before exit.
type node struct {
	store  *oplog.Store
	clock  *clock.Clock
	engine *state.Engine
	log    glog.Logger
	priv   ed25519.PrivateKey
}

func openNode(storePath string) (*node, error) {
	log, err := glog.NewProduction()
	if err != nil {
		return nil, errors.Wrap(err, "open logger")
	}
	store, err := oplog.Open(storePath, log)
	if err != nil {
		return nil, errors.Wrap(err, "open op log")
	}
	priv, err := loadOrCreateIdentity(storePath + "/identity.key")
	if err != nil {
		return nil, err
	}
	clk := clock.New()
	engine := state.NewEngine(store, clk, log, nil)
	return &node{store: store, clock: clk, engine: engine, log: log, priv: priv}, nil
}

func (n *node) Close() {
	n.store.Close()
}

// loadOrCreateIdentity reads a 64-byte Ed25519 private key from path,
// generating and persisting a fresh one on first run.
func loadOrCreateIdentity(path string) (ed25519.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != ed25519.PrivateKeySize {
			return nil, errors.New("identity file has the wrong length")
		}
		return ed25519.PrivateKey(b), nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read identity file")
	}
	_, priv, err := gcrypto.GenerateSigningKeypair()
	if err != nil {
		return nil, errors.Wrap(err, "generate identity")
	}
	if err := os.MkdirAll(dirOf(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create store dir")
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return nil, errors.Wrap(err, "write identity file")
	}
	return priv, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
