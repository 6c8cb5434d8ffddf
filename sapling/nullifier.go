// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"encoding/hex"
	"fmt"
)

// NullifierSize is the size of a note nullifier in bytes.
const NullifierSize = 32

// Nullifier is the unique tag revealed when a note is spent.  The wallet
// indexes unspent notes by nullifier so spends observed on chain can be
// matched back to the notes they consume.
type Nullifier [NullifierSize]byte

// NewNullifier constructs a nullifier from a byte slice, erroring if the
// slice is not exactly NullifierSize bytes.
func NewNullifier(b []byte) (Nullifier, error) {
	var nf Nullifier
	if len(b) != NullifierSize {
		return nf, fmt.Errorf("nullifier must be %d bytes, got %d",
			NullifierSize, len(b))
	}
	copy(nf[:], b)
	return nf, nil
}

// String returns the nullifier as a hexadecimal string.
func (nf Nullifier) String() string {
	return hex.EncodeToString(nf[:])
}
