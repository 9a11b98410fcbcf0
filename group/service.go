// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package group implements the Group Manager: the orchestration layer
// applications call into to create groups, manage membership, and
// send/edit/delete/react to messages. It is the only component that
// mints new ops — every mutation here builds a signed envelope, feeds
// it through the local state engine exactly like a received op, then
// hands the bytes to transport.
package group

import (
	"crypto/ed25519"
	"image"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/luxfi/groupcrdt/antientropy"
	"github.com/luxfi/groupcrdt/clock"
	"github.com/luxfi/groupcrdt/codec"
	gcrypto "github.com/luxfi/groupcrdt/crypto"
	"github.com/luxfi/groupcrdt/ids"
	glog "github.com/luxfi/groupcrdt/log"
	"github.com/luxfi/groupcrdt/oplog"
	"github.com/luxfi/groupcrdt/state"
)

var (
	// ErrNotMember is returned when the local identity has no usable
	// membership record for a group it is trying to act in.
	ErrNotMember = errors.New("group: local identity is not a member of this group")
	// ErrNoGroupSecret is returned when the local identity's group
	// secret cannot be recovered (neither the plaintext creator copy
	// nor a wrapped invite has been received and accepted).
	ErrNoGroupSecret = errors.New("group: group secret not available locally")
	// ErrApplyRejected is returned when a locally authored op fails its
	// own authorization check — normally unreachable, since the Group
	// Manager only authors ops as an already-accepted member.
	ErrApplyRejected = errors.New("group: locally authored op was rejected")
)

// Broadcaster is the narrow surface the Group Manager needs to relay
// freshly minted ops and bootstrap bundles; antientropy.Service
// satisfies it.
type Broadcaster interface {
	Broadcast(group ids.GroupID, opBytes []byte)
	SendBootstrapBundle(peer string, group ids.GroupID, ops [][]byte) bool
	AddPeer(group ids.GroupID, peer string)
}

var _ Broadcaster = (*antientropy.Service)(nil)

// Service is the Group Manager for one local identity.
type Service struct {
	priv   ed25519.PrivateKey
	self   ids.DeviceID
	engine *state.Engine
	store  *oplog.Store
	clock  *clock.Clock
	sync   Broadcaster
	log    glog.Logger

	mu           sync.Mutex
	secretsCache map[ids.GroupID][32]byte
}

// NewService constructs a Group Manager for the identity owning priv.
func NewService(priv ed25519.PrivateKey, engine *state.Engine, store *oplog.Store, clk *clock.Clock, sync Broadcaster, log glog.Logger) *Service {
	if log == nil {
		log = glog.NewNoOpLogger()
	}
	var self ids.DeviceID
	copy(self[:], priv.Public().(ed25519.PublicKey))
	return &Service{
		priv:         priv,
		self:         self,
		engine:       engine,
		store:        store,
		clock:        clk,
		sync:         sync,
		log:          log,
		secretsCache: make(map[ids.GroupID][32]byte),
	}
}

// emit signs payload as a fresh op for group, applies it locally, and
// broadcasts it to known peers.
func (s *Service) emit(group ids.GroupID, payload codec.Payload) (ids.OpID, error) {
	lamport := s.clock.Next(group)
	env, err := codec.NewSignedEnvelope(group, s.priv, lamport, payload)
	if err != nil {
		return ids.OpID{}, errors.Wrap(err, "group: build envelope")
	}
	opBytes := env.Encode()
	applied, reason, err := s.engine.Apply(group, opBytes)
	if err != nil {
		return ids.OpID{}, errors.Wrap(err, "group: apply local op")
	}
	if !applied {
		return ids.OpID{}, errors.Wrapf(ErrApplyRejected, "reason=%s", reason)
	}
	s.sync.Broadcast(group, opBytes)
	return env.OpID(), nil
}

// CreateGroup mints a fresh group with a random secret and the local
// identity as its sole, accepted Admin. It additionally emits
// MetadataSet(Name) and, when icon is non-nil, MetadataSet(Avatar) —
// GroupCreate itself carries no metadata, so every replica (including
// an independently built one) converges on name/avatar only by
// replaying these explicit ops.
func (s *Service) CreateGroup(name string, icon image.Image) (ids.GroupID, error) {
	group, err := ids.NewGroupID()
	if err != nil {
		return group, err
	}
	secret, err := gcrypto.RandomGroupSecret()
	if err != nil {
		return group, err
	}
	_, err = s.emit(group, codec.GroupCreate{GroupName: name, InitialGroupSecret: secret})
	if err != nil {
		return group, err
	}
	s.mu.Lock()
	s.secretsCache[group] = secret
	s.mu.Unlock()

	if _, err := s.emit(group, codec.MetadataSet{Key: codec.MetaName, Value: []byte(name)}); err != nil {
		return group, err
	}
	if icon != nil {
		if _, err := s.SetAvatar(group, icon); err != nil {
			return group, err
		}
	}
	return group, nil
}

// Invite adds pubkey to group with the given role: it wraps the
// group's secret for the invitee, emits MemberInvite, and pushes the
// full op log to the invitee as a bootstrap bundle so they can derive
// state starting from GroupCreate.
func (s *Service) Invite(group ids.GroupID, pubkey ids.DeviceID, role codec.Role, peerAddr string) (ids.OpID, error) {
	secret, err := s.groupSecret(group)
	if err != nil {
		return ids.OpID{}, err
	}
	wrapped, err := gcrypto.WrapGroupSecret(ed25519.PublicKey(pubkey[:]), secret)
	if err != nil {
		return ids.OpID{}, errors.Wrap(err, "group: wrap secret for invitee")
	}
	opID, err := s.emit(group, codec.MemberInvite{InvitedPubkey: pubkey, Role: role, WrappedGroupSecret: wrapped})
	if err != nil {
		return opID, err
	}

	s.sync.AddPeer(group, peerAddr)
	allOps, err := s.store.Scan(group, 0, 0)
	if err != nil {
		s.log.Warn("bootstrap scan failed", zap.Error(err))
		return opID, nil
	}
	if !s.sync.SendBootstrapBundle(peerAddr, group, allOps) {
		s.log.Warn("bootstrap bundle delivery failed", zap.String("peer", peerAddr))
	}
	return opID, nil
}

// AcceptInvite emits MemberAccept for the invite named by inviteOpID,
// admitting the local identity into the group.
func (s *Service) AcceptInvite(group ids.GroupID, inviteOpID ids.OpID) (ids.OpID, error) {
	return s.emit(group, codec.MemberAccept{InviteOpID: inviteOpID})
}

// RemoveMember kicks (or, if target==self, voluntarily removes) a
// member.
func (s *Service) RemoveMember(group ids.GroupID, target ids.DeviceID, reason codec.RemoveReason) (ids.OpID, error) {
	return s.emit(group, codec.MemberRemove{Target: target, Reason: reason})
}

// SendMessage encrypts plaintext under the group secret and emits
// MsgAdd. The plaintext never leaves the device; only the ciphertext
// and its nonce are ever put on the wire.
func (s *Service) SendMessage(group ids.GroupID, plaintext []byte) (ids.OpID, error) {
	secret, err := s.groupSecret(group)
	if err != nil {
		return ids.OpID{}, err
	}
	nonce, err := gcrypto.RandomXNonce()
	if err != nil {
		return ids.OpID{}, err
	}
	ciphertext, err := gcrypto.SealMessage(secret, nonce, plaintext)
	if err != nil {
		return ids.OpID{}, errors.Wrap(err, "group: seal message")
	}
	return s.emit(group, codec.MsgAdd{Ciphertext: ciphertext, Nonce: nonce})
}

// EditMessage re-encrypts newPlaintext and emits MsgEdit targeting an
// existing, undeleted message authored by the caller.
func (s *Service) EditMessage(group ids.GroupID, target ids.OpID, newPlaintext []byte) (ids.OpID, error) {
	secret, err := s.groupSecret(group)
	if err != nil {
		return ids.OpID{}, err
	}
	nonce, err := gcrypto.RandomXNonce()
	if err != nil {
		return ids.OpID{}, err
	}
	ciphertext, err := gcrypto.SealMessage(secret, nonce, newPlaintext)
	if err != nil {
		return ids.OpID{}, errors.Wrap(err, "group: seal edit")
	}
	return s.emit(group, codec.MsgEdit{TargetMsgID: target, NewCiphertext: ciphertext, NewNonce: nonce})
}

// DeleteMessage emits MsgDelete for target (tombstoning it: the derived
// message is marked Deleted but keeps its ciphertext, and the op itself
// remains in the log).
func (s *Service) DeleteMessage(group ids.GroupID, target ids.OpID) (ids.OpID, error) {
	return s.emit(group, codec.MsgDelete{TargetMsgID: target})
}

// SetReaction toggles emoji presence/absence for the caller on target.
func (s *Service) SetReaction(group ids.GroupID, target ids.OpID, emoji string, present bool) (ids.OpID, error) {
	return s.emit(group, codec.ReactionSet{TargetMsgID: target, Emoji: emoji, Present: present})
}

// SetMetadata emits MetadataSet for a plain (non-avatar) register; use
// SetAvatar for the image register, which needs compression first.
func (s *Service) SetMetadata(group ids.GroupID, key codec.MetadataKey, value []byte) (ids.OpID, error) {
	return s.emit(group, codec.MetadataSet{Key: key, Value: value})
}

// ReadMessage decrypts a derived message for display, or returns the
// wrapped AEAD error from crypto.OpenMessage if the local group secret
// can't decrypt it (e.g. it predates the local member's invite).
func (s *Service) ReadMessage(group ids.GroupID, msg *state.Message) ([]byte, error) {
	secret, err := s.groupSecret(group)
	if err != nil {
		return nil, err
	}
	return gcrypto.OpenMessage(secret, msg.Nonce, msg.Ciphertext)
}

// groupSecret returns the local identity's plaintext group secret,
// unwrapping and caching it from the member's invite record on first
// use.
func (s *Service) groupSecret(group ids.GroupID) ([32]byte, error) {
	s.mu.Lock()
	if secret, ok := s.secretsCache[group]; ok {
		s.mu.Unlock()
		return secret, nil
	}
	s.mu.Unlock()

	gs, err := s.engine.Load(group)
	if err != nil {
		return [32]byte{}, err
	}
	member, ok := gs.Members[s.self]
	if !ok {
		return [32]byte{}, ErrNotMember
	}
	if member.GroupSecretPlaintext != nil {
		var secret [32]byte
		copy(secret[:], member.GroupSecretPlaintext)
		s.mu.Lock()
		s.secretsCache[group] = secret
		s.mu.Unlock()
		return secret, nil
	}
	if member.WrappedGroupSecret == nil {
		return [32]byte{}, ErrNoGroupSecret
	}
	secret, err := gcrypto.UnwrapGroupSecret(s.priv, member.WrappedGroupSecret)
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "group: unwrap group secret")
	}
	s.mu.Lock()
	s.secretsCache[group] = secret
	s.mu.Unlock()
	return secret, nil
}
