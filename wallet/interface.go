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
	"github.com/zecsuite/zecwallet/wtxmgr"
	"github.com/zecsuite/zecwallet/zec"
)

// TargetAnchor pairs the height the next transaction should target with the
// anchor height its spend proofs should reference.
type TargetAnchor struct {
	// Target is the height a newly created transaction aims to be mined
	// at, one past the newest scanned block.
	Target int32

	// Anchor is the height whose commitment tree snapshot spend proofs
	// are built against.  It trails Target by the configured confirmation
	// depth, but never precedes the earliest scanned block.
	Anchor int32
}

// WalletRead is the query surface of the wallet state: accounts, scanned
// blocks, transactions, notes, witnesses, nullifiers and the balances
// derived from them.  Methods are free of side effects; absence of a fact
// that may simply not be known yet (an unscanned height, an unseen
// transaction) is reported as an empty option rather than an error.
//
// All methods are safe for concurrent use.
type WalletRead interface {
	// AccountAddress returns the default payment address of an account.
	AccountAddress(ctx context.Context,
		account uint32) (sapling.PaymentAddress, error)

	// AccountKeys returns the incoming viewing key of every account,
	// ordered by account number ascending.
	AccountKeys(ctx context.Context) ([]waddrmgr.AccountKey, error)

	// IsValidAccountKey reports whether the passed viewing key is the one
	// on record for the given account.  Unknown accounts report false.
	IsValidAccountKey(ctx context.Context, account uint32,
		key sapling.ExtendedFullViewingKey) (bool, error)

	// BlockHeightExtrema returns the lowest and highest scanned block
	// heights, or an empty option when no blocks have been scanned.
	BlockHeightExtrema(
		ctx context.Context) (fn.Option[wtxmgr.HeightRange], error)

	// TargetAndAnchorHeights derives the pair of heights a new spend
	// should be built against, or an empty option when no blocks have
	// been scanned.
	TargetAndAnchorHeights(
		ctx context.Context) (fn.Option[TargetAnchor], error)

	// BlockHash returns the hash of the scanned block at the given
	// height.
	BlockHash(ctx context.Context,
		height int32) (fn.Option[chainhash.Hash], error)

	// CommitmentTree returns the note commitment tree as of the end of
	// the scanned block at the given height.
	CommitmentTree(ctx context.Context,
		height int32) (fn.Option[*sapling.CommitmentTree], error)

	// TxHeight returns the height the given transaction was mined at.
	// Transactions that are unknown or not yet mined report an empty
	// option.
	TxHeight(ctx context.Context,
		txHash chainhash.Hash) (fn.Option[int32], error)

	// Witnesses returns the witness of every note that has one recorded
	// as of the given block height.  A scanner feeds these forward
	// through each new block's commitments.
	Witnesses(ctx context.Context,
		height int32) ([]wtxmgr.NoteWitness, error)

	// Nullifiers returns the nullifier of every unspent note, paired
	// with its receiving account.
	Nullifiers(ctx context.Context) ([]wtxmgr.AccountNullifier, error)

	// Balance returns the total value of an account's unspent mined
	// notes.
	Balance(ctx context.Context, account uint32) (zec.Amount, error)

	// VerifiedBalance returns the total value of an account's unspent
	// notes mined at or before the anchor height.  This is the balance
	// that is safe to spend against: notes above the anchor could still
	// be reorganized away.
	VerifiedBalance(ctx context.Context, account uint32,
		anchor int32) (zec.Amount, error)

	// SelectSpendableNotes selects unspent notes of the account, in the
	// order they were recorded, until their sum reaches the target
	// value.  Only notes mined at or before the anchor height and
	// witnessed at or before it are eligible.  If the eligible total is
	// below the target, a wtxmgr.InsufficientFundsError is returned
	// rather than a partial selection.
	SelectSpendableNotes(ctx context.Context, account uint32,
		target zec.Amount, anchor int32) ([]wtxmgr.SpendableNote, error)

	// NoteMemo returns the memo text attached to a received note, if the
	// note carries a text memo.
	NoteMemo(ctx context.Context,
		note wtxmgr.NoteRef) (fn.Option[string], error)

	// SentNoteMemo returns the memo text attached to a sent note, if the
	// note carries a text memo.
	SentNoteMemo(ctx context.Context,
		note wtxmgr.SentNoteRef) (fn.Option[string], error)
}

// WalletWrite is the mutation surface of the wallet state.  A WalletWrite is
// only ever handed to the closure passed to Wallet.Transactionally and is
// bound to the database transaction opened for that call: every mutation
// made through it commits or rolls back as one unit.  It must not be
// retained once the closure returns.
//
// The embedded WalletRead answers queries from the same open transaction,
// so a scanner can read nullifiers and witnesses consistent with the
// mutations it has already made in the batch.
type WalletWrite interface {
	WalletRead

	// InsertBlock records a scanned block along with the note commitment
	// tree as of the end of that block.
	InsertBlock(ctx context.Context, block *wtxmgr.BlockMeta,
		tree *sapling.CommitmentTree) error

	// PutTxMeta records that a transaction was observed mined in a
	// block, creating the transaction record if needed.
	PutTxMeta(ctx context.Context, txHash *chainhash.Hash, txIndex uint32,
		height int32) (wtxmgr.TxRef, error)

	// PutTxData records the serialized transaction along with its expiry
	// height and creation time, creating the transaction record if
	// needed.
	PutTxData(ctx context.Context, txHash *chainhash.Hash, raw []byte,
		expiry int32, created time.Time) (wtxmgr.TxRef, error)

	// PutReceivedNote records an output decrypted to one of the wallet's
	// accounts.  The nullifier is passed separately since computing it
	// requires key material the output producer may not hold.
	PutReceivedNote(ctx context.Context, output ShieldedOutput,
		nf fn.Option[sapling.Nullifier],
		tx wtxmgr.TxRef) (wtxmgr.NoteRef, error)

	// PutSentNote records an output created by one of the wallet's own
	// transactions.
	PutSentNote(ctx context.Context, output ShieldedOutput,
		tx wtxmgr.TxRef) (wtxmgr.SentNoteRef, error)

	// MarkSpent marks the note carrying the passed nullifier as spent by
	// the referenced transaction.  Nullifiers that do not belong to the
	// wallet are ignored.
	MarkSpent(ctx context.Context, nf *sapling.Nullifier,
		spender wtxmgr.TxRef) error

	// InsertWitness records the incremental witness of a note as of the
	// given scanned block height.
	InsertWitness(ctx context.Context, note wtxmgr.NoteRef, height int32,
		witness *sapling.IncrementalWitness) error

	// PruneWitnesses deletes witness snapshots recorded below the given
	// height.
	PruneWitnesses(ctx context.Context, height int32) error

	// ReleaseExpiredNotes returns notes to the spendable pool when the
	// transaction spending them expired unmined below the given height.
	ReleaseExpiredNotes(ctx context.Context, height int32) error

	// Rewind reverts all chain-derived state above the given height
	// after a chain reorganization.
	Rewind(ctx context.Context, height int32) error
}

// ShieldedOutput is the common view of a decrypted shielded output that the
// wallet records, regardless of how it was produced.  The two producers
// differ in what they can know: scanning compact blocks reveals whether an
// output is change but carries no memo, while trial-decrypting a full
// transaction reveals the memo but not whether the output is change.
type ShieldedOutput interface {
	// OutputIndex is the position of the output within its transaction.
	OutputIndex() uint32

	// Account is the wallet account whose viewing key recognized the
	// output.
	Account() uint32

	// To is the payment address the output pays.
	To() sapling.PaymentAddress

	// Note is the decrypted note.
	Note() sapling.Note

	// Memo is the decrypted memo, when the producer had access to the
	// full ciphertext.
	Memo() fn.Option[sapling.Memo]

	// IsChange reports whether the output returns change to the sending
	// account, when the producer can tell.
	IsChange() fn.Option[bool]
}
