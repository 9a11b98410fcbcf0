// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var storePathFlag string

// defaultSyncWait bounds how long `groupcrdtctl sync` waits for a
// single pull round to complete before exiting.
const defaultSyncWait = 5 * time.Second

// syncResponseGrace is how long `groupcrdtctl sync` waits after
// issuing a pull for the peer's asynchronous SYNC_CHUNK reply to
// arrive and apply before the process exits.
const syncResponseGrace = 500 * time.Millisecond

var rootCmd = &cobra.Command{
	Use:   "groupcrdtctl",
	Short: "Inspect and drive a groupcrdt op log and derived group state",
	Long: `groupcrdtctl operates a single node's durable op log directly: create
groups, invite and manage members, post messages, run a sync pull
against a peer, and print derived state or its convergence hash.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&storePathFlag, "store", "./groupcrdt-store", "path to the pebble-backed op log")

	rootCmd.AddCommand(
		createCmd(),
		inviteCmd(),
		acceptCmd(),
		sendCmd(),
		syncCmd(),
		membersCmd(),
		stateHashCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
