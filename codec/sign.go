// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"crypto/ed25519"

	"github.com/luxfi/groupcrdt/crypto"
	"github.com/luxfi/groupcrdt/ids"
)

// NewSignedEnvelope builds and signs an envelope for a freshly created
// local op.
func NewSignedEnvelope(group ids.GroupID, priv ed25519.PrivateKey, lamport ids.Lamport, payload Payload) (*Envelope, error) {
	nonce, err := ids.NewOpNonce()
	if err != nil {
		return nil, err
	}
	var author ids.DeviceID
	copy(author[:], priv.Public().(ed25519.PublicKey))

	e := &Envelope{
		Version: CurrentVersion,
		GroupID: group,
		Author:  author,
		Lamport: lamport,
		Nonce:   nonce,
		Tag:     payload.Tag(),
		Payload: payload.Encode(),
	}
	sig := crypto.Sign(priv, e.CanonicalBytes())
	copy(e.Sig[:], sig)
	if len(e.Encode()) > MaxOpSize {
		return nil, ErrOpTooLarge
	}
	return e, nil
}

// VerifySignature reports whether e's signature verifies against its
// declared author.
func VerifySignature(e *Envelope) bool {
	return crypto.Verify(ed25519.PublicKey(e.Author[:]), e.CanonicalBytes(), e.Sig[:])
}
