// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"io"

	"filippo.io/edwards25519"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var wrapInfo = []byte("groupcrdt wrapped-group-secret v1")

// ErrUnsealFailed is returned when a wrapped group secret cannot be
// opened, either because it is malformed or was wrapped for someone
// else.
var ErrUnsealFailed = errors.New("crypto: unseal group secret failed")

// ed25519PubToX25519 converts an Ed25519 public key to its Montgomery
// (X25519) form via the standard birational map between the Edwards and
// Montgomery curves.
func ed25519PubToX25519(pub ed25519.PublicKey) ([]byte, error) {
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: decode ed25519 point")
	}
	return p.BytesMontgomery(), nil
}

// ed25519PrivToX25519 converts an Ed25519 private key's seed to the
// corresponding X25519 scalar, following the same clamped-hash
// derivation used by libsodium's crypto_sign_ed25519_sk_to_curve25519.
func ed25519PrivToX25519(priv ed25519.PrivateKey) []byte {
	h := sha512.Sum512(priv.Seed())
	scalar := h[:32]
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar
}

// WrapGroupSecret seals secret so that only the holder of recipientPub's
// matching Ed25519 private key can recover it: an ephemeral X25519
// keypair is ECDH'd against the recipient's converted public key, and
// the shared secret is used to derive an AEAD key via HKDF-SHA512. The
// output is ephemeral_pub(32) || nonce(24) || ciphertext.
func WrapGroupSecret(recipientPub ed25519.PublicKey, secret [GroupSecretLen]byte) ([]byte, error) {
	recipientX, err := ed25519PubToX25519(recipientPub)
	if err != nil {
		return nil, err
	}

	ephPub, ephPriv, err := generateX25519Keypair()
	if err != nil {
		return nil, err
	}

	shared, err := curve25519.X25519(ephPriv, recipientX)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: ecdh")
	}

	key, err := deriveWrapKey(shared, ephPub, recipientX)
	if err != nil {
		return nil, err
	}

	var nonce [XNonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "crypto: generate wrap nonce")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: init wrap aead")
	}
	ct := aead.Seal(nil, nonce[:], secret[:], nil)

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(ct))
	out = append(out, ephPub...)
	out = append(out, nonce[:]...)
	out = append(out, ct...)
	return out, nil
}

// UnwrapGroupSecret reverses WrapGroupSecret using the recipient's own
// Ed25519 private key.
func UnwrapGroupSecret(recipientPriv ed25519.PrivateKey, wrapped []byte) ([GroupSecretLen]byte, error) {
	var secret [GroupSecretLen]byte
	if len(wrapped) < 32+XNonceLen {
		return secret, ErrUnsealFailed
	}
	ephPub := wrapped[:32]
	nonce := wrapped[32 : 32+XNonceLen]
	ct := wrapped[32+XNonceLen:]

	recipientX := ed25519PrivToX25519(recipientPriv)
	shared, err := curve25519.X25519(recipientX, ephPub)
	if err != nil {
		return secret, errors.Wrap(err, "crypto: ecdh")
	}

	recipientXPub, err := ed25519PubToX25519(recipientPriv.Public().(ed25519.PublicKey))
	if err != nil {
		return secret, err
	}

	key, err := deriveWrapKey(shared, ephPub, recipientXPub)
	if err != nil {
		return secret, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return secret, errors.Wrap(err, "crypto: init wrap aead")
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return secret, ErrUnsealFailed
	}
	if len(pt) != GroupSecretLen {
		return secret, ErrUnsealFailed
	}
	copy(secret[:], pt)
	return secret, nil
}

func generateX25519Keypair() (pub, priv []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err = rand.Read(priv); err != nil {
		return nil, nil, errors.Wrap(err, "crypto: generate ephemeral scalar")
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, "crypto: derive ephemeral public")
	}
	return pub, priv, nil
}

func deriveWrapKey(shared, ephPub, recipientX []byte) ([]byte, error) {
	salt := make([]byte, 0, len(ephPub)+len(recipientX))
	salt = append(salt, ephPub...)
	salt = append(salt, recipientX...)
	r := hkdf.New(sha512.New, shared, salt, wrapInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrap(err, "crypto: derive wrap key")
	}
	return key, nil
}
