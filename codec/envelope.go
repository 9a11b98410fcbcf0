// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec implements the canonical, byte-exact binary wire format
// for signed operations: the envelope, its nine payload variants, the
// packed-stream framing used by transport and sync, and content hashing.
//
// All multi-byte integers are big-endian. There is no padding. Every
// implementation that produces the same logical op MUST produce the
// same bytes, because the bytes themselves (not a re-derived form) are
// the unit of durability, authentication and interchange.
package codec

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"github.com/luxfi/groupcrdt/ids"
)

// CodecVersion is the wire format version embedded in every envelope.
type CodecVersion uint8

// CurrentVersion is the only version this package currently emits or
// accepts. A future incompatible revision bumps this and DecodeEnvelope
// rejects anything else up front instead of misparsing it.
const CurrentVersion CodecVersion = 1

// SignatureLen is the length in bytes of an Ed25519 signature.
const SignatureLen = 64

// MaxOpSize is the hard per-op ceiling from the spec: 64 KiB.
const MaxOpSize = 64 * 1024

var (
	// ErrUnsupportedVersion is returned when an envelope declares a
	// codec version this build does not understand.
	ErrUnsupportedVersion = errors.New("codec: unsupported version")
	// ErrTruncated is returned when the buffer ends before a fixed-size
	// field or a declared length can be fully read.
	ErrTruncated = errors.New("codec: truncated envelope")
	// ErrOpTooLarge is returned when a payload exceeds MaxOpSize.
	ErrOpTooLarge = errors.New("codec: op exceeds max size")
	// ErrUnknownVariant is returned when a payload tag is not one of the
	// nine known variants.
	ErrUnknownVariant = errors.New("codec: unknown payload variant")
)

// Envelope is the signed, immutable unit of replication.
type Envelope struct {
	Version CodecVersion
	GroupID ids.GroupID
	Author  ids.DeviceID
	Lamport ids.Lamport
	Nonce   ids.OpNonce
	Tag     PayloadTag
	Payload []byte // already-encoded payload bytes
	Sig     [SignatureLen]byte
}

// OpID returns the op id this envelope identifies.
func (e *Envelope) OpID() ids.OpID {
	return ids.OpID{Author: e.Author, Lamport: e.Lamport, Nonce: e.Nonce}
}

// CanonicalBytes returns the envelope bytes minus the trailing
// signature: the exact bytes that are Ed25519-signed and verified.
func (e *Envelope) CanonicalBytes() []byte {
	if len(e.Payload) > 0xFFFFFFFF {
		// unreachable given MaxOpSize, but keeps the cast below honest.
		panic("codec: payload too large to encode length prefix")
	}
	buf := make([]byte, 0, 1+32+32+8+16+1+4+len(e.Payload))
	buf = append(buf, byte(e.Version))
	buf = append(buf, e.GroupID[:]...)
	buf = append(buf, e.Author[:]...)
	var lamportBuf [8]byte
	binary.BigEndian.PutUint64(lamportBuf[:], uint64(e.Lamport))
	buf = append(buf, lamportBuf[:]...)
	buf = append(buf, e.Nonce[:]...)
	buf = append(buf, byte(e.Tag))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.Payload...)
	return buf
}

// Encode serializes the full signed envelope (canonical bytes + sig).
func (e *Envelope) Encode() []byte {
	buf := e.CanonicalBytes()
	return append(buf, e.Sig[:]...)
}

// DecodeEnvelope parses a full signed envelope from b. It does not
// verify the signature; callers authenticate separately with
// VerifySignature.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	const fixedHeader = 1 + 32 + 32 + 8 + 16 + 1 + 4
	if len(b) < fixedHeader+SignatureLen {
		return nil, ErrTruncated
	}
	e := &Envelope{}
	off := 0
	e.Version = CodecVersion(b[off])
	off++
	if e.Version != CurrentVersion {
		return nil, ErrUnsupportedVersion
	}
	copy(e.GroupID[:], b[off:off+32])
	off += 32
	copy(e.Author[:], b[off:off+32])
	off += 32
	e.Lamport = ids.Lamport(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	copy(e.Nonce[:], b[off:off+16])
	off += 16
	e.Tag = PayloadTag(b[off])
	off++
	payloadLen := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	if payloadLen > MaxOpSize {
		return nil, ErrOpTooLarge
	}
	if off+int(payloadLen)+SignatureLen > len(b) {
		return nil, ErrTruncated
	}
	e.Payload = append([]byte(nil), b[off:off+int(payloadLen)]...)
	off += int(payloadLen)
	copy(e.Sig[:], b[off:off+SignatureLen])
	off += SignatureLen
	if off != len(b) {
		return nil, ErrTruncated
	}
	if len(e.Encode()) > MaxOpSize {
		return nil, ErrOpTooLarge
	}
	return e, nil
}

// HashContent computes the content hash of the fully encoded envelope,
// the durable dedup key.
func (e *Envelope) HashContent() ids.ContentHash {
	return ids.HashContent(e.Encode())
}
