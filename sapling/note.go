// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"github.com/zecsuite/zecwallet/zec"
)

// Note holds the plaintext contents of a shielded note as the wallet stores
// them: the value and the commitment randomness recovered at decryption time.
// Together with the receiving address diversifier these are exactly the
// fields a later spend needs to reconstruct the note.
type Note struct {
	// Value is the note value in zatoshis.
	Value zec.Amount

	// Rcm is the commitment randomness.
	Rcm [32]byte
}
