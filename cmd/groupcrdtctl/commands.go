// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/groupcrdt/antientropy"
	"github.com/luxfi/groupcrdt/codec"
	"github.com/luxfi/groupcrdt/group"
	"github.com/luxfi/groupcrdt/ids"
	"github.com/luxfi/groupcrdt/transport"
)

func createCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new group",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			t, err := transport.NewTCPTransport(cmd.Context(), "", n.log, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			sync := antientropy.NewService(t, n.store, n.engine, n.clock, n.log, antientropy.DefaultConfig(), nil)
			mgr := group.NewService(n.priv, n.engine, n.store, n.clock, sync, n.log)

			gid, err := mgr.CreateGroup(name, nil)
			if err != nil {
				return err
			}
			fmt.Println(gid.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "group name")
	return cmd
}

func inviteCmd() *cobra.Command {
	var groupHex, pubkeyHex, peerAddr string
	var admin bool
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite a device to a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := ids.ParseGroupID(groupHex)
			if err != nil {
				return err
			}
			pub, err := ids.ParseDeviceID(pubkeyHex)
			if err != nil {
				return err
			}
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			t, err := transport.NewTCPTransport(cmd.Context(), "", n.log, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			sync := antientropy.NewService(t, n.store, n.engine, n.clock, n.log, antientropy.DefaultConfig(), nil)
			mgr := group.NewService(n.priv, n.engine, n.store, n.clock, sync, n.log)

			role := codec.RoleMember
			if admin {
				role = codec.RoleAdmin
			}
			if err := t.ConnectPeer(peerAddr); err != nil {
				return err
			}
			opID, err := mgr.Invite(gid, pub, role, peerAddr)
			if err != nil {
				return err
			}
			fmt.Println(opID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&groupHex, "group", "", "group id (hex)")
	cmd.Flags().StringVar(&pubkeyHex, "pubkey", "", "invitee device id (hex)")
	cmd.Flags().StringVar(&peerAddr, "peer", "", "invitee's network address")
	cmd.Flags().BoolVar(&admin, "admin", false, "invite as admin")
	return cmd
}

func acceptCmd() *cobra.Command {
	var groupHex, inviteOpHex string
	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept a pending invite",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := ids.ParseGroupID(groupHex)
			if err != nil {
				return err
			}
			inviteOpID, err := parseOpID(inviteOpHex)
			if err != nil {
				return err
			}
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			t, err := transport.NewTCPTransport(cmd.Context(), "", n.log, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			sync := antientropy.NewService(t, n.store, n.engine, n.clock, n.log, antientropy.DefaultConfig(), nil)
			mgr := group.NewService(n.priv, n.engine, n.store, n.clock, sync, n.log)

			opID, err := mgr.AcceptInvite(gid, inviteOpID)
			if err != nil {
				return err
			}
			fmt.Println(opID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&groupHex, "group", "", "group id (hex)")
	cmd.Flags().StringVar(&inviteOpHex, "invite-op", "", "the MemberInvite op id being accepted")
	return cmd
}

func sendCmd() *cobra.Command {
	var groupHex, text string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message to a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := ids.ParseGroupID(groupHex)
			if err != nil {
				return err
			}
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			t, err := transport.NewTCPTransport(cmd.Context(), "", n.log, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			sync := antientropy.NewService(t, n.store, n.engine, n.clock, n.log, antientropy.DefaultConfig(), nil)
			mgr := group.NewService(n.priv, n.engine, n.store, n.clock, sync, n.log)

			opID, err := mgr.SendMessage(gid, []byte(text))
			if err != nil {
				return err
			}
			fmt.Println(opID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&groupHex, "group", "", "group id (hex)")
	cmd.Flags().StringVar(&text, "text", "", "message plaintext")
	return cmd
}

func syncCmd() *cobra.Command {
	var groupHex, peerAddr string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull missing ops for a group from a peer once",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := ids.ParseGroupID(groupHex)
			if err != nil {
				return err
			}
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			t, err := transport.NewTCPTransport(cmd.Context(), "", n.log, nil)
			if err != nil {
				return err
			}
			defer t.Close()
			if err := t.ConnectPeer(peerAddr); err != nil {
				return err
			}
			sync := antientropy.NewService(t, n.store, n.engine, n.clock, n.log, antientropy.DefaultConfig(), nil)
			sync.AddPeer(gid, peerAddr)

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultSyncWait)
			defer cancel()
			sync.PullOnce(ctx)
			time.Sleep(syncResponseGrace)
			return nil
		},
	}
	cmd.Flags().StringVar(&groupHex, "group", "", "group id (hex)")
	cmd.Flags().StringVar(&peerAddr, "peer", "", "peer network address")
	return cmd
}

func membersCmd() *cobra.Command {
	var groupHex string
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List derived membership for a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := ids.ParseGroupID(groupHex)
			if err != nil {
				return err
			}
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			members, err := n.engine.Members(gid)
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Printf("%s role=%d accepted=%t removed=%t invited_by=%s wrapped_secret=%s\n",
					m.DeviceID.String(), m.Role, m.Accepted, m.Removed, m.InvitedByOpID.String(), hex.EncodeToString(m.WrappedGroupSecret))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupHex, "group", "", "group id (hex)")
	return cmd
}

func stateHashCmd() *cobra.Command {
	var groupHex string
	cmd := &cobra.Command{
		Use:   "state-hash",
		Short: "Print the convergence hash of a group's derived state",
		RunE: func(cmd *cobra.Command, args []string) error {
			gid, err := ids.ParseGroupID(groupHex)
			if err != nil {
				return err
			}
			n, err := openNode(storePathFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			hash, err := n.engine.StateHash(gid)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&groupHex, "group", "", "group id (hex)")
	return cmd
}

func parseOpID(s string) (ids.OpID, error) {
	// authorHex:lamportHex:nonceHex, matching ids.OpID.String.
	var id ids.OpID
	parts := splitThree(s)
	author, err := ids.ParseDeviceID(parts[0])
	if err != nil {
		return id, err
	}
	var lamport uint64
	if _, err := fmt.Sscanf(parts[1], "%x", &lamport); err != nil {
		return id, err
	}
	nonceBytes, err := hex.DecodeString(parts[2])
	if err != nil {
		return id, err
	}
	var nonce ids.OpNonce
	copy(nonce[:], nonceBytes)
	id.Author = author
	id.Lamport = ids.Lamport(lamport)
	id.Nonce = nonce
	return id, nil
}

func splitThree(s string) [3]string {
	var out [3]string
	idx := 0
	start := 0
	for i := 0; i < len(s) && idx < 2; i++ {
		if s[i] == ':' {
			out[idx] = s[start:i]
			idx++
			start = i + 1
		}
	}
	out[2] = s[start:]
	return out
}
