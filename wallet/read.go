// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/wtxmgr"
	"github.com/zecsuite/zecwallet/zec"
)

// targetAndAnchor derives the target and anchor heights from the scanned
// block extrema.  The anchor trails the target by the confirmation offset
// but never precedes the earliest scanned block, so a usable commitment
// tree snapshot always exists for it.
func targetAndAnchor(extrema fn.Option[wtxmgr.HeightRange],
	offset int32) fn.Option[TargetAnchor] {

	if extrema.IsNone() {
		return fn.None[TargetAnchor]()
	}
	r := extrema.UnwrapOr(wtxmgr.HeightRange{})

	target := r.Max + 1
	anchor := target - offset
	if anchor < r.Min {
		anchor = r.Min
	}
	return fn.Some(TargetAnchor{Target: target, Anchor: anchor})
}

// AccountAddress returns the default payment address of an account.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) AccountAddress(_ context.Context,
	account uint32) (sapling.PaymentAddress, error) {

	var addr sapling.PaymentAddress
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		addrmgrNs := tx.ReadBucket(waddrmgrNamespaceKey)

		var err error
		addr, err = w.Manager.Address(addrmgrNs, account)
		return err
	})
	return addr, err
}

// AccountKeys returns the incoming viewing key of every account.  The keys
// are served from the manager's cache and need no database transaction.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) AccountKeys(
	_ context.Context) ([]waddrmgr.AccountKey, error) {

	return w.Manager.AccountKeys()
}

// IsValidAccountKey reports whether the passed viewing key is the one on
// record for the given account.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) IsValidAccountKey(_ context.Context, account uint32,
	key sapling.ExtendedFullViewingKey) (bool, error) {

	return w.Manager.IsValidAccountKey(account, key)
}

// BlockHeightExtrema returns the lowest and highest scanned block heights.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) BlockHeightExtrema(
	_ context.Context) (fn.Option[wtxmgr.HeightRange], error) {

	extrema := fn.None[wtxmgr.HeightRange]()
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		extrema, err = w.TxStore.BlockHeightExtrema(txmgrNs)
		return err
	})
	return extrema, err
}

// TargetAndAnchorHeights derives the pair of heights a new spend should be
// built against.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) TargetAndAnchorHeights(
	ctx context.Context) (fn.Option[TargetAnchor], error) {

	extrema, err := w.BlockHeightExtrema(ctx)
	if err != nil {
		return fn.None[TargetAnchor](), err
	}
	return targetAndAnchor(extrema, w.cfg.AnchorOffset), nil
}

// BlockHash returns the hash of the scanned block at the given height.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) BlockHash(_ context.Context,
	height int32) (fn.Option[chainhash.Hash], error) {

	hash := fn.None[chainhash.Hash]()
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		hash, err = w.TxStore.BlockHash(txmgrNs, height)
		return err
	})
	return hash, err
}

// CommitmentTree returns the note commitment tree as of the end of the
// scanned block at the given height.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) CommitmentTree(_ context.Context,
	height int32) (fn.Option[*sapling.CommitmentTree], error) {

	tree := fn.None[*sapling.CommitmentTree]()
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		tree, err = w.TxStore.CommitmentTree(txmgrNs, height)
		return err
	})
	return tree, err
}

// TxHeight returns the height the given transaction was mined at.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) TxHeight(_ context.Context,
	txHash chainhash.Hash) (fn.Option[int32], error) {

	height := fn.None[int32]()
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		height, err = w.TxStore.TxHeight(txmgrNs, &txHash)
		return err
	})
	return height, err
}

// Witnesses returns the witness of every note that has one recorded as of
// the given block height.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) Witnesses(_ context.Context,
	height int32) ([]wtxmgr.NoteWitness, error) {

	var witnesses []wtxmgr.NoteWitness
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		witnesses, err = w.TxStore.Witnesses(txmgrNs, height)
		return err
	})
	return witnesses, err
}

// Nullifiers returns the nullifier of every unspent note, paired with its
// receiving account.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) Nullifiers(
	_ context.Context) ([]wtxmgr.AccountNullifier, error) {

	var nullifiers []wtxmgr.AccountNullifier
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		nullifiers, err = w.TxStore.Nullifiers(txmgrNs)
		return err
	})
	return nullifiers, err
}

// Balance returns the total value of an account's unspent mined notes.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) Balance(_ context.Context,
	account uint32) (zec.Amount, error) {

	var balance zec.Amount
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		balance, err = w.TxStore.Balance(txmgrNs, account)
		return err
	})
	return balance, err
}

// VerifiedBalance returns the total value of an account's unspent notes
// mined at or before the anchor height.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) VerifiedBalance(_ context.Context, account uint32,
	anchor int32) (zec.Amount, error) {

	var balance zec.Amount
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		balance, err = w.TxStore.VerifiedBalance(
			txmgrNs, account, anchor,
		)
		return err
	})
	return balance, err
}

// SelectSpendableNotes selects unspent notes of the account until their sum
// reaches the target value.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) SelectSpendableNotes(_ context.Context, account uint32,
	target zec.Amount, anchor int32) ([]wtxmgr.SpendableNote, error) {

	var notes []wtxmgr.SpendableNote
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		notes, err = w.TxStore.SelectSpendableNotes(
			txmgrNs, account, target, anchor,
		)
		return err
	})
	return notes, err
}

// NoteMemo returns the memo text attached to a received note.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) NoteMemo(_ context.Context,
	note wtxmgr.NoteRef) (fn.Option[string], error) {

	memo := fn.None[string]()
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		memo, err = w.TxStore.NoteMemo(txmgrNs, note)
		return err
	})
	return memo, err
}

// SentNoteMemo returns the memo text attached to a sent note.
//
// NOTE: This is part of the WalletRead interface implementation.
func (w *Wallet) SentNoteMemo(_ context.Context,
	note wtxmgr.SentNoteRef) (fn.Option[string], error) {

	memo := fn.None[string]()
	err := walletdb.View(w.db, func(tx walletdb.ReadTx) error {
		txmgrNs := tx.ReadBucket(wtxmgrNamespaceKey)

		var err error
		memo, err = w.TxStore.SentNoteMemo(txmgrNs, note)
		return err
	})
	return memo, err
}
