// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto wraps the primitive operations the group CRDT engine
// needs: Ed25519 authorship signatures, XChaCha20-Poly1305 message
// confidentiality, and the CSPRNG used for ids, nonces and secrets.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrBadSignature names a signature that does not match the declared
	// author. Verify itself reports that case as false, not as this error.
	ErrBadSignature = errors.New("crypto: signature verification failed")
	// ErrBadKeySize is returned when a key of the wrong length is supplied.
	ErrBadKeySize = errors.New("crypto: wrong key size")
	// ErrBadNonceSize is returned when a nonce of the wrong length is supplied.
	ErrBadNonceSize = errors.New("crypto: wrong nonce size")
)

// GroupSecretLen is the length in bytes of a symmetric group secret.
const GroupSecretLen = 32

// XNonceLen is the length in bytes of an XChaCha20-Poly1305 nonce.
const XNonceLen = chacha20poly1305.NonceSizeX

// GenerateSigningKeypair returns a fresh Ed25519 keypair for a device.
func GenerateSigningKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "crypto: generate signing keypair")
	}
	return pub, priv, nil
}

// Sign produces the Ed25519 signature over msg using priv.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify reports whether sig is a valid Ed25519 signature over msg by pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// RandomGroupSecret generates a fresh 32-byte symmetric group secret.
func RandomGroupSecret() ([GroupSecretLen]byte, error) {
	var s [GroupSecretLen]byte
	if _, err := rand.Read(s[:]); err != nil {
		return s, errors.Wrap(err, "crypto: generate group secret")
	}
	return s, nil
}

// RandomXNonce generates a fresh 24-byte XChaCha20-Poly1305 nonce.
func RandomXNonce() ([XNonceLen]byte, error) {
	var n [XNonceLen]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, errors.Wrap(err, "crypto: generate nonce")
	}
	return n, nil
}

// SealMessage encrypts plaintext under the group secret using
// XChaCha20-Poly1305 with the given 24-byte nonce.
func SealMessage(groupSecret [GroupSecretLen]byte, nonce [XNonceLen]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(groupSecret[:])
	if err != nil {
		return nil, errors.Wrap(err, "crypto: init aead")
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// OpenMessage decrypts ciphertext produced by SealMessage. A failure here
// is a CryptoError per the spec: it never deletes the message, it only
// marks it undecipherable to the caller.
func OpenMessage(groupSecret [GroupSecretLen]byte, nonce [XNonceLen]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(groupSecret[:])
	if err != nil {
		return nil, errors.Wrap(err, "crypto: init aead")
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: open message")
	}
	return pt, nil
}
