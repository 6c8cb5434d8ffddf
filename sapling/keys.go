// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/zecsuite/zecwallet/internal/zero"
)

// ExtendedFullViewingKeySize is the raw serialized size of an extended full
// viewing key: depth (1) || parent tag (4) || child index (4) ||
// chain code (32) || full viewing key (96) || diversifier key (32).
const ExtendedFullViewingKeySize = 169

// ExtendedFullViewingKey is the serialized form of a hierarchical full
// viewing key.  The wallet stores one per account and uses it to recognize
// incoming notes; it never holds spending authority.  The key material is
// kept opaque since derivation happens in external components.
type ExtendedFullViewingKey [ExtendedFullViewingKeySize]byte

// NewExtendedFullViewingKey constructs a key from its raw serialization.
func NewExtendedFullViewingKey(b []byte) (ExtendedFullViewingKey, error) {
	var key ExtendedFullViewingKey
	if len(b) != ExtendedFullViewingKeySize {
		return key, fmt.Errorf("extended full viewing key must be %d "+
			"bytes, got %d", ExtendedFullViewingKeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Encode returns the bech32 encoding of the key using the given
// human-readable part.
func (k *ExtendedFullViewingKey) Encode(hrp string) (string, error) {
	conv, err := bech32.ConvertBits(k[:], 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

// DecodeExtendedFullViewingKey decodes a bech32-encoded extended full viewing
// key, requiring the human-readable part to match hrp.  ErrWrongHRP is
// returned (wrapped) when the key belongs to a different network.
//
// Encoded keys exceed the 90-character limit ordinary bech32 strings observe,
// so the length-unrestricted decoder is used.
func DecodeExtendedFullViewingKey(hrp, encoded string) (ExtendedFullViewingKey, error) {
	gotHRP, data, err := bech32.DecodeNoLimit(encoded)
	if err != nil {
		return ExtendedFullViewingKey{}, fmt.Errorf("malformed "+
			"viewing key: %v", err)
	}
	if gotHRP != hrp {
		return ExtendedFullViewingKey{}, fmt.Errorf("%w: got %q, "+
			"want %q", ErrWrongHRP, gotHRP, hrp)
	}

	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return ExtendedFullViewingKey{}, fmt.Errorf("malformed "+
			"viewing key: %v", err)
	}
	return NewExtendedFullViewingKey(conv)
}

// Zero clears the key material.
func (k *ExtendedFullViewingKey) Zero() {
	zero.Bytea169((*[ExtendedFullViewingKeySize]byte)(k))
}
