// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/sapling"
)

// ScannedOutput is a shielded output recognized while scanning compact
// blocks.  The scanner sees the structure of the whole transaction, so it
// knows whether an output pays change back to the sending account, but
// compact outputs carry only a ciphertext prefix and the memo is out of
// reach.
type ScannedOutput struct {
	index   uint32
	account uint32
	to      sapling.PaymentAddress
	note    sapling.Note
	change  bool
}

// A compile time check to ensure that ScannedOutput implements the
// ShieldedOutput interface.
var _ ShieldedOutput = (*ScannedOutput)(nil)

// NewScannedOutput wraps the facts a compact block scan establishes about
// one recognized output.
func NewScannedOutput(index, account uint32, to sapling.PaymentAddress,
	note sapling.Note, change bool) *ScannedOutput {

	return &ScannedOutput{
		index:   index,
		account: account,
		to:      to,
		note:    note,
		change:  change,
	}
}

// OutputIndex is the position of the output within its transaction.
func (o *ScannedOutput) OutputIndex() uint32 {
	return o.index
}

// Account is the wallet account whose viewing key recognized the output.
func (o *ScannedOutput) Account() uint32 {
	return o.account
}

// To is the payment address the output pays.
func (o *ScannedOutput) To() sapling.PaymentAddress {
	return o.to
}

// Note is the decrypted note.
func (o *ScannedOutput) Note() sapling.Note {
	return o.note
}

// Memo is always absent for scanned outputs.
func (o *ScannedOutput) Memo() fn.Option[sapling.Memo] {
	return fn.None[sapling.Memo]()
}

// IsChange reports whether the output pays change back to the sending
// account.
func (o *ScannedOutput) IsChange() fn.Option[bool] {
	return fn.Some(o.change)
}

// DecryptedOutput is a shielded output recovered by trial-decrypting a full
// transaction.  The full ciphertext includes the memo, but a lone
// transaction does not reveal whether one of its outputs is change.
type DecryptedOutput struct {
	index   uint32
	account uint32
	to      sapling.PaymentAddress
	note    sapling.Note
	memo    sapling.Memo
}

// A compile time check to ensure that DecryptedOutput implements the
// ShieldedOutput interface.
var _ ShieldedOutput = (*DecryptedOutput)(nil)

// NewDecryptedOutput wraps the facts trial decryption of a full transaction
// establishes about one recognized output.
func NewDecryptedOutput(index, account uint32, to sapling.PaymentAddress,
	note sapling.Note, memo sapling.Memo) *DecryptedOutput {

	return &DecryptedOutput{
		index:   index,
		account: account,
		to:      to,
		note:    note,
		memo:    memo,
	}
}

// OutputIndex is the position of the output within its transaction.
func (o *DecryptedOutput) OutputIndex() uint32 {
	return o.index
}

// Account is the wallet account whose viewing key recognized the output.
func (o *DecryptedOutput) Account() uint32 {
	return o.account
}

// To is the payment address the output pays.
func (o *DecryptedOutput) To() sapling.PaymentAddress {
	return o.to
}

// Note is the decrypted note.
func (o *DecryptedOutput) Note() sapling.Note {
	return o.note
}

// Memo is the memo carried in the output's full ciphertext.
func (o *DecryptedOutput) Memo() fn.Option[sapling.Memo] {
	return fn.Some(o.memo)
}

// IsChange is always unknown for decrypted outputs.
func (o *DecryptedOutput) IsChange() fn.Option[bool] {
	return fn.None[bool]()
}
