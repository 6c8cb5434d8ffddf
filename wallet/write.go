// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/wtxmgr"
	"github.com/zecsuite/zecwallet/zec"
)

// Transactionally runs f with a WalletWrite bound to a single open database
// transaction.  Every mutation f performs commits atomically when f returns
// nil and is rolled back in full when f returns an error, in which case the
// error is returned unchanged.  Reads made through the writer observe the
// transaction's own uncommitted mutations.
func (w *Wallet) Transactionally(_ context.Context,
	f func(WalletWrite) error) error {

	return walletdb.Update(w.db, func(tx walletdb.ReadWriteTx) error {
		return f(&walletWriter{
			wallet:    w,
			addrmgrNs: tx.ReadWriteBucket(waddrmgrNamespaceKey),
			txmgrNs:   tx.ReadWriteBucket(wtxmgrNamespaceKey),
		})
	})
}

// walletWriter implements WalletWrite against the namespace buckets of a
// single open read/write transaction.  Instances are only valid for the
// lifetime of the Transactionally closure they are handed to.
type walletWriter struct {
	wallet    *Wallet
	addrmgrNs walletdb.ReadWriteBucket
	txmgrNs   walletdb.ReadWriteBucket
}

var _ WalletWrite = (*walletWriter)(nil)

// AccountAddress returns the default payment address of an account.
func (w *walletWriter) AccountAddress(_ context.Context,
	account uint32) (sapling.PaymentAddress, error) {

	return w.wallet.Manager.Address(w.addrmgrNs, account)
}

// AccountKeys returns the incoming viewing key of every account.
func (w *walletWriter) AccountKeys(
	_ context.Context) ([]waddrmgr.AccountKey, error) {

	return w.wallet.Manager.AccountKeys()
}

// IsValidAccountKey reports whether the passed viewing key is the one on
// record for the given account.
func (w *walletWriter) IsValidAccountKey(_ context.Context, account uint32,
	key sapling.ExtendedFullViewingKey) (bool, error) {

	return w.wallet.Manager.IsValidAccountKey(account, key)
}

// BlockHeightExtrema returns the lowest and highest scanned block heights,
// including any blocks inserted earlier in the same transaction.
func (w *walletWriter) BlockHeightExtrema(
	_ context.Context) (fn.Option[wtxmgr.HeightRange], error) {

	return w.wallet.TxStore.BlockHeightExtrema(w.txmgrNs)
}

// TargetAndAnchorHeights derives the pair of heights a new spend should be
// built against.
func (w *walletWriter) TargetAndAnchorHeights(
	ctx context.Context) (fn.Option[TargetAnchor], error) {

	extrema, err := w.BlockHeightExtrema(ctx)
	if err != nil {
		return fn.None[TargetAnchor](), err
	}
	return targetAndAnchor(extrema, w.wallet.cfg.AnchorOffset), nil
}

// BlockHash returns the hash of the scanned block at the given height.
func (w *walletWriter) BlockHash(_ context.Context,
	height int32) (fn.Option[chainhash.Hash], error) {

	return w.wallet.TxStore.BlockHash(w.txmgrNs, height)
}

// CommitmentTree returns the note commitment tree as of the end of the
// scanned block at the given height.
func (w *walletWriter) CommitmentTree(_ context.Context,
	height int32) (fn.Option[*sapling.CommitmentTree], error) {

	return w.wallet.TxStore.CommitmentTree(w.txmgrNs, height)
}

// TxHeight returns the height the given transaction was mined at.
func (w *walletWriter) TxHeight(_ context.Context,
	txHash chainhash.Hash) (fn.Option[int32], error) {

	return w.wallet.TxStore.TxHeight(w.txmgrNs, &txHash)
}

// Witnesses returns the witness of every note that has one recorded as of
// the given block height.
func (w *walletWriter) Witnesses(_ context.Context,
	height int32) ([]wtxmgr.NoteWitness, error) {

	return w.wallet.TxStore.Witnesses(w.txmgrNs, height)
}

// Nullifiers returns the nullifier of every unspent note, paired with its
// receiving account.
func (w *walletWriter) Nullifiers(
	_ context.Context) ([]wtxmgr.AccountNullifier, error) {

	return w.wallet.TxStore.Nullifiers(w.txmgrNs)
}

// Balance returns the total value of an account's unspent mined notes.
func (w *walletWriter) Balance(_ context.Context,
	account uint32) (zec.Amount, error) {

	return w.wallet.TxStore.Balance(w.txmgrNs, account)
}

// VerifiedBalance returns the total value of an account's unspent notes
// mined at or before the anchor height.
func (w *walletWriter) VerifiedBalance(_ context.Context, account uint32,
	anchor int32) (zec.Amount, error) {

	return w.wallet.TxStore.VerifiedBalance(w.txmgrNs, account, anchor)
}

// SelectSpendableNotes selects unspent notes of the account until their sum
// reaches the target value.
func (w *walletWriter) SelectSpendableNotes(_ context.Context,
	account uint32, target zec.Amount,
	anchor int32) ([]wtxmgr.SpendableNote, error) {

	return w.wallet.TxStore.SelectSpendableNotes(
		w.txmgrNs, account, target, anchor,
	)
}

// NoteMemo returns the memo text attached to a received note.
func (w *walletWriter) NoteMemo(_ context.Context,
	note wtxmgr.NoteRef) (fn.Option[string], error) {

	return w.wallet.TxStore.NoteMemo(w.txmgrNs, note)
}

// SentNoteMemo returns the memo text attached to a sent note.
func (w *walletWriter) SentNoteMemo(_ context.Context,
	note wtxmgr.SentNoteRef) (fn.Option[string], error) {

	return w.wallet.TxStore.SentNoteMemo(w.txmgrNs, note)
}

// InsertBlock records a scanned block together with the note commitment
// tree state at its end.
func (w *walletWriter) InsertBlock(_ context.Context,
	block *wtxmgr.BlockMeta, tree *sapling.CommitmentTree) error {

	return w.wallet.TxStore.InsertBlock(w.txmgrNs, block, tree)
}

// PutTxMeta records the mining metadata of a transaction observed during
// scanning.
func (w *walletWriter) PutTxMeta(_ context.Context, txHash *chainhash.Hash,
	txIndex uint32, height int32) (wtxmgr.TxRef, error) {

	return w.wallet.TxStore.PutTxMeta(w.txmgrNs, txHash, txIndex, height)
}

// PutTxData records the raw serialization of a transaction created or
// decrypted by the wallet.
func (w *walletWriter) PutTxData(_ context.Context, txHash *chainhash.Hash,
	raw []byte, expiry int32, created time.Time) (wtxmgr.TxRef, error) {

	return w.wallet.TxStore.PutTxData(w.txmgrNs, txHash, raw, expiry, created)
}

// PutReceivedNote records an output decrypted to one of the wallet's
// accounts.  The note's nullifier travels separately from the output since
// deriving it requires key material the producer of the output may not
// hold.
func (w *walletWriter) PutReceivedNote(_ context.Context,
	output ShieldedOutput, nf fn.Option[sapling.Nullifier],
	tx wtxmgr.TxRef) (wtxmgr.NoteRef, error) {

	note := output.Note()
	return w.wallet.TxStore.PutReceivedNote(w.txmgrNs, &wtxmgr.ReceivedNote{
		Tx:          tx,
		OutputIndex: output.OutputIndex(),
		Account:     output.Account(),
		Diversifier: output.To().Diversifier,
		Value:       note.Value,
		Rcm:         note.Rcm,
		Nullifier:   nf,
		IsChange:    output.IsChange(),
		Memo:        output.Memo(),
	})
}

// PutSentNote records an output created by one of the wallet's own
// transactions.
func (w *walletWriter) PutSentNote(_ context.Context, output ShieldedOutput,
	tx wtxmgr.TxRef) (wtxmgr.SentNoteRef, error) {

	return w.wallet.TxStore.PutSentNote(w.txmgrNs, &wtxmgr.SentNote{
		Tx:          tx,
		OutputIndex: output.OutputIndex(),
		Account:     output.Account(),
		To:          output.To(),
		Value:       output.Note().Value,
		Memo:        output.Memo(),
	})
}

// MarkSpent marks the note carrying the given nullifier spent by the passed
// transaction.
func (w *walletWriter) MarkSpent(_ context.Context, nf *sapling.Nullifier,
	spender wtxmgr.TxRef) error {

	return w.wallet.TxStore.MarkSpent(w.txmgrNs, nf, spender)
}

// InsertWitness records the incremental witness of a note as of the given
// block height.
func (w *walletWriter) InsertWitness(_ context.Context, note wtxmgr.NoteRef,
	height int32, witness *sapling.IncrementalWitness) error {

	return w.wallet.TxStore.InsertWitness(w.txmgrNs, note, height, witness)
}

// PruneWitnesses removes witnesses recorded below the given block height.
func (w *walletWriter) PruneWitnesses(_ context.Context,
	height int32) error {

	return w.wallet.TxStore.PruneWitnesses(w.txmgrNs, height)
}

// ReleaseExpiredNotes unmarks spends by unmined transactions whose expiry
// height has passed.
func (w *walletWriter) ReleaseExpiredNotes(_ context.Context,
	height int32) error {

	return w.wallet.TxStore.ReleaseExpiredNotes(w.txmgrNs, height)
}

// Rewind rolls wallet state back to the given block height.
func (w *walletWriter) Rewind(_ context.Context, height int32) error {
	return w.wallet.TxStore.Rewind(w.txmgrNs, height)
}
