// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	// DiversifierSize is the size of a payment address diversifier.
	DiversifierSize = 11

	// PaymentAddressSize is the raw serialized size of a payment address:
	// an 11-byte diversifier followed by a 32-byte transmission key.
	PaymentAddressSize = DiversifierSize + 32
)

// ErrWrongHRP is returned when decoding bech32 data whose human-readable part
// does not match the expected network prefix.  Callers use this to
// distinguish a value from the wrong network from one that is simply
// malformed.
var ErrWrongHRP = errors.New("bech32 human-readable part does not match network")

// Diversifier is the 11-byte diversifier component of a payment address.
type Diversifier [DiversifierSize]byte

// PaymentAddress is a shielded payment address: a diversifier together with
// the diversified transmission key derived from it.
type PaymentAddress struct {
	// Diversifier selects one of the many addresses derivable from a
	// single incoming viewing key.
	Diversifier Diversifier

	// Pkd is the serialized diversified transmission key.
	Pkd [32]byte
}

// Bytes returns the canonical 43-byte raw serialization of the address.
func (a *PaymentAddress) Bytes() []byte {
	b := make([]byte, 0, PaymentAddressSize)
	b = append(b, a.Diversifier[:]...)
	b = append(b, a.Pkd[:]...)
	return b
}

// NewPaymentAddress constructs a payment address from its 43-byte raw
// serialization.
func NewPaymentAddress(b []byte) (PaymentAddress, error) {
	var addr PaymentAddress
	if len(b) != PaymentAddressSize {
		return addr, fmt.Errorf("payment address must be %d bytes, "+
			"got %d", PaymentAddressSize, len(b))
	}
	copy(addr.Diversifier[:], b[:DiversifierSize])
	copy(addr.Pkd[:], b[DiversifierSize:])
	return addr, nil
}

// Encode returns the bech32 encoding of the address using the given
// human-readable part.
func (a *PaymentAddress) Encode(hrp string) (string, error) {
	conv, err := bech32.ConvertBits(a.Bytes(), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, conv)
}

// DecodePaymentAddress decodes a bech32-encoded payment address, requiring
// the human-readable part to match hrp.  ErrWrongHRP is returned (wrapped)
// when the address belongs to a different network.
//
// Addresses under the regression test prefix exceed the 90-character limit
// ordinary bech32 strings observe, so the length-unrestricted decoder is used.
func DecodePaymentAddress(hrp, addr string) (PaymentAddress, error) {
	gotHRP, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return PaymentAddress{}, fmt.Errorf("malformed payment "+
			"address: %v", err)
	}
	if gotHRP != hrp {
		return PaymentAddress{}, fmt.Errorf("%w: got %q, want %q",
			ErrWrongHRP, gotHRP, hrp)
	}

	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return PaymentAddress{}, fmt.Errorf("malformed payment "+
			"address: %v", err)
	}
	return NewPaymentAddress(conv)
}
