// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids defines the fixed-size identifiers shared by the group CRDT
// engine: group identifiers, device (author) public keys, Lamport
// counters, op nonces, op ids and content hashes.
package ids

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/cockroachdb/errors"
)

const (
	// GroupIDLen is the length in bytes of a GroupID.
	GroupIDLen = 32
	// DeviceIDLen is the length in bytes of a DeviceID (an Ed25519 public key).
	DeviceIDLen = 32
	// NonceLen is the length in bytes of an OpNonce.
	NonceLen = 16
	// ContentHashLen is the length in bytes of a ContentHash (SHA-256 digest).
	ContentHashLen = 32
)

// ErrWrongLength is returned by the Parse* helpers when the decoded hex
// string does not carry the expected number of bytes.
var ErrWrongLength = errors.New("ids: wrong length")

// GroupID is a 32-byte random group identifier, presented as 64-char
// lowercase hex.
type GroupID [GroupIDLen]byte

// NewGroupID generates a fresh random GroupID.
func NewGroupID() (GroupID, error) {
	var g GroupID
	if _, err := rand.Read(g[:]); err != nil {
		return g, errors.Wrap(err, "ids: generate group id")
	}
	return g, nil
}

func (g GroupID) String() string { return hex.EncodeToString(g[:]) }

// ParseGroupID decodes a 64-char lowercase hex string into a GroupID.
func ParseGroupID(s string) (GroupID, error) {
	var g GroupID
	b, err := hex.DecodeString(s)
	if err != nil {
		return g, errors.Wrap(err, "ids: decode group id")
	}
	if len(b) != GroupIDLen {
		return g, ErrWrongLength
	}
	copy(g[:], b)
	return g, nil
}

// DeviceID is an Ed25519 public key identifying an author/device.
type DeviceID [DeviceIDLen]byte

func (d DeviceID) String() string { return hex.EncodeToString(d[:]) }

// ParseDeviceID decodes a 64-char lowercase hex string into a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	var d DeviceID
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, errors.Wrap(err, "ids: decode device id")
	}
	if len(b) != DeviceIDLen {
		return d, ErrWrongLength
	}
	copy(d[:], b)
	return d, nil
}

// Less reports whether d sorts strictly before o, lexicographically over
// the raw key bytes. Used for Lamport tiebreaks.
func (d DeviceID) Less(o DeviceID) bool { return bytes.Compare(d[:], o[:]) < 0 }

// Lamport is a per-(group,author) monotonic logical counter.
type Lamport uint64

// OpNonce is 16 random bytes disambiguating ops sharing (author, lamport).
type OpNonce [NonceLen]byte

// NewOpNonce generates a fresh random OpNonce.
func NewOpNonce() (OpNonce, error) {
	var n OpNonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, errors.Wrap(err, "ids: generate op nonce")
	}
	return n, nil
}

func (n OpNonce) Less(o OpNonce) bool { return bytes.Compare(n[:], o[:]) < 0 }

// OpID is the triple (author_pubkey, lamport, nonce) that globally and
// uniquely identifies an operation.
type OpID struct {
	Author  DeviceID
	Lamport Lamport
	Nonce   OpNonce
}

// String renders the canonical "authorHex:lamportHex:nonceHex" form.
func (id OpID) String() string {
	return hex.EncodeToString(id.Author[:]) + ":" +
		hex.EncodeToString(lamportBytes(id.Lamport)) + ":" +
		hex.EncodeToString(id.Nonce[:])
}

func lamportBytes(l Lamport) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(l))
	return b
}

// Less implements the deterministic tiebreak over op ids that share a
// lamport value: lexicographic author_pubkey, then nonce.
func (id OpID) Less(o OpID) bool {
	if id.Lamport != o.Lamport {
		return id.Lamport < o.Lamport
	}
	if id.Author != o.Author {
		return id.Author.Less(o.Author)
	}
	return id.Nonce.Less(o.Nonce)
}

// ContentHash is the SHA-256 digest of the canonical op bytes, the
// durable dedup key for the op log store.
type ContentHash [ContentHashLen]byte

// HashContent computes the content hash of canonical op bytes.
func HashContent(opBytes []byte) ContentHash {
	return ContentHash(sha256.Sum256(opBytes))
}

// String renders the canonical "sha256:<hex>" form.
func (h ContentHash) String() string { return "sha256:" + hex.EncodeToString(h[:]) }
