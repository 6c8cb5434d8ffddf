// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/chain"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/waddrmgr"
	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
	"github.com/zecsuite/zecwallet/wtxmgr"
	"github.com/zecsuite/zecwallet/zec"
)

// defaultDBTimeout specifies the timeout value when opening the wallet
// database.
const defaultDBTimeout = 10 * time.Second

// testDB creates a fresh empty database.  The database is removed together
// with the test's temporary directory.
func testDB(t *testing.T) walletdb.DB {
	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "test.db"), true,
		defaultDBTimeout,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

// testAccount derives deterministic dummy key material for a single
// account.  The bytes only need to round trip through the bech32 codec, so
// simple patterns are enough.
func testAccount(t *testing.T, n byte) waddrmgr.AccountData {
	t.Helper()

	kb := make([]byte, sapling.ExtendedFullViewingKeySize)
	for i := range kb {
		kb[i] = n + byte(i)
	}
	key, err := sapling.NewExtendedFullViewingKey(kb)
	require.NoError(t, err)

	ab := make([]byte, sapling.PaymentAddressSize)
	for i := range ab {
		ab[i] = n ^ byte(i+1)
	}
	addr, err := sapling.NewPaymentAddress(ab)
	require.NoError(t, err)

	return waddrmgr.AccountData{Key: key, Address: addr}
}

// testWallet creates and opens a wallet with two accounts in a fresh
// database.
func testWallet(t *testing.T, cfg Config) (*Wallet, walletdb.DB) {
	t.Helper()

	db := testDB(t)

	accounts := []waddrmgr.AccountData{
		testAccount(t, 1), testAccount(t, 2),
	}
	err := Create(db, &netparams.RegressionNetParams, accounts)
	require.NoError(t, err)

	w, err := Open(db, &netparams.RegressionNetParams, cfg)
	require.NoError(t, err)
	t.Cleanup(w.Close)

	return w, db
}

func testBlockHash(height int32) chainhash.Hash {
	var h chainhash.Hash
	h[0] = byte(height)
	h[1] = byte(height >> 8)
	h[31] = 0xb1
	return h
}

func testTxHash(n byte) *chainhash.Hash {
	var h chainhash.Hash
	h[0] = n
	h[31] = 0x7c
	return &h
}

func testNullifier(n byte) sapling.Nullifier {
	var nf sapling.Nullifier
	nf[0] = n
	nf[31] = 0x4e
	return nf
}

// testTree builds a commitment tree holding the given number of distinct
// leaves.  Trees of different sizes have different roots, which the tests
// rely on to tell recorded tree states apart.
func testTree(t *testing.T, leaves int) *sapling.CommitmentTree {
	t.Helper()

	tree := sapling.NewCommitmentTree()
	for i := 0; i < leaves; i++ {
		var n sapling.Node
		n[0] = byte(i + 1)
		n[31] = 0xcd
		require.NoError(t, tree.Append(n))
	}
	return tree
}

// scanBlocks records a contiguous range of scanned blocks through the
// wallet, giving the block at height h a tree of h%32 leaves.
func scanBlocks(t *testing.T, w *Wallet, from, to int32) {
	t.Helper()

	ctx := context.Background()
	err := w.Transactionally(ctx, func(write WalletWrite) error {
		for h := from; h <= to; h++ {
			meta := &wtxmgr.BlockMeta{
				Block: wtxmgr.Block{
					Hash:   testBlockHash(h),
					Height: h,
				},
				Time: time.Unix(1600000000+int64(h)*150, 0),
			}
			err := write.InsertBlock(
				ctx, meta, testTree(t, int(h%32)),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// putMinedNote records a transaction mined at the given height carrying a
// single note for the account, and returns the note's reference together
// with its nullifier.
func putMinedNote(t *testing.T, w *Wallet, txn byte, height int32,
	account uint32, value zec.Amount) (wtxmgr.NoteRef, sapling.Nullifier) {

	t.Helper()

	var (
		ctx = context.Background()
		ref wtxmgr.NoteRef
		nf  = testNullifier(txn)
	)
	err := w.Transactionally(ctx, func(write WalletWrite) error {
		txRef, err := write.PutTxMeta(
			ctx, testTxHash(txn), 0, height,
		)
		if err != nil {
			return err
		}

		output := NewScannedOutput(
			0, account, testAccount(t, byte(account+1)).Address,
			sapling.Note{Value: value, Rcm: [32]byte{txn}}, false,
		)
		ref, err = write.PutReceivedNote(
			ctx, output, fn.Some(nf), txRef,
		)
		return err
	})
	require.NoError(t, err)

	return ref, nf
}

func TestCreateOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testDB(t)

	// Opening before the wallet has been created must fail.
	_, err := Open(db, &netparams.RegressionNetParams, Config{})
	require.ErrorContains(t, err, "not been initialized")

	accounts := []waddrmgr.AccountData{
		testAccount(t, 1), testAccount(t, 2),
	}
	err = Create(db, &netparams.RegressionNetParams, accounts)
	require.NoError(t, err)

	// A second creation must be refused rather than clobbering the
	// existing wallet.
	err = Create(db, &netparams.RegressionNetParams, accounts)
	require.True(t, waddrmgr.IsError(err, waddrmgr.ErrAlreadyExists))

	w, err := Open(db, &netparams.RegressionNetParams, Config{})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	require.Equal(t, &netparams.RegressionNetParams, w.ChainParams())

	keys, err := w.AccountKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for i, key := range keys {
		require.Equal(t, uint32(i), key.Account)
		require.Equal(t, accounts[i].Key, key.Key)
	}

	addr, err := w.AccountAddress(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, accounts[1].Address, addr)

	_, err = w.AccountAddress(ctx, 2)
	require.True(t, waddrmgr.IsError(err, waddrmgr.ErrAccountNotFound))

	valid, err := w.IsValidAccountKey(ctx, 0, accounts[0].Key)
	require.NoError(t, err)
	require.True(t, valid)

	valid, err = w.IsValidAccountKey(ctx, 1, accounts[0].Key)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestTargetAndAnchor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		extrema fn.Option[wtxmgr.HeightRange]
		offset  int32
		want    fn.Option[TargetAnchor]
	}{{
		name:    "no blocks scanned",
		extrema: fn.None[wtxmgr.HeightRange](),
		offset:  10,
		want:    fn.None[TargetAnchor](),
	}, {
		name: "anchor trails by offset",
		extrema: fn.Some(wtxmgr.HeightRange{
			Min: 100, Max: 105,
		}),
		offset: 3,
		want:   fn.Some(TargetAnchor{Target: 106, Anchor: 103}),
	}, {
		name: "anchor clamped to first scanned block",
		extrema: fn.Some(wtxmgr.HeightRange{
			Min: 100, Max: 105,
		}),
		offset: 10,
		want:   fn.Some(TargetAnchor{Target: 106, Anchor: 100}),
	}, {
		name: "single scanned block",
		extrema: fn.Some(wtxmgr.HeightRange{
			Min: 100, Max: 100,
		}),
		offset: 10,
		want:   fn.Some(TargetAnchor{Target: 101, Anchor: 100}),
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := targetAndAnchor(test.extrema, test.offset)
			require.Equal(t, test.want, got)
		})
	}
}

func TestTargetAndAnchorHeights(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{AnchorOffset: 3})

	// Before any block has been scanned there is nothing to anchor
	// against.
	heights, err := w.TargetAndAnchorHeights(ctx)
	require.NoError(t, err)
	require.True(t, heights.IsNone())

	scanBlocks(t, w, 100, 105)

	heights, err = w.TargetAndAnchorHeights(ctx)
	require.NoError(t, err)
	require.Equal(
		t, fn.Some(TargetAnchor{Target: 106, Anchor: 103}), heights,
	)
}

func TestTransactionallyRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	// A failing closure must roll back every mutation it made and hand
	// its error back unchanged.
	errAbort := errors.New("abort the batch")
	err := w.Transactionally(ctx, func(write WalletWrite) error {
		meta := &wtxmgr.BlockMeta{
			Block: wtxmgr.Block{
				Hash:   testBlockHash(100),
				Height: 100,
			},
			Time: time.Unix(1600015000, 0),
		}
		err := write.InsertBlock(ctx, meta, testTree(t, 4))
		if err != nil {
			return err
		}

		// The writer must observe its own uncommitted mutations.
		extrema, err := write.BlockHeightExtrema(ctx)
		if err != nil {
			return err
		}
		require.Equal(
			t, fn.Some(wtxmgr.HeightRange{Min: 100, Max: 100}),
			extrema,
		)

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	extrema, err := w.BlockHeightExtrema(ctx)
	require.NoError(t, err)
	require.True(t, extrema.IsNone())

	// The same batch without the failure persists.
	err = w.Transactionally(ctx, func(write WalletWrite) error {
		meta := &wtxmgr.BlockMeta{
			Block: wtxmgr.Block{
				Hash:   testBlockHash(100),
				Height: 100,
			},
			Time: time.Unix(1600015000, 0),
		}
		return write.InsertBlock(ctx, meta, testTree(t, 4))
	})
	require.NoError(t, err)

	extrema, err = w.BlockHeightExtrema(ctx)
	require.NoError(t, err)
	require.Equal(
		t, fn.Some(wtxmgr.HeightRange{Min: 100, Max: 100}), extrema,
	)
}

func TestBlockQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	scanBlocks(t, w, 100, 110)
	_, _ = putMinedNote(t, w, 1, 105, 0, 50000)

	hash, err := w.BlockHash(ctx, 105)
	require.NoError(t, err)
	require.Equal(t, fn.Some(testBlockHash(105)), hash)

	hash, err = w.BlockHash(ctx, 200)
	require.NoError(t, err)
	require.True(t, hash.IsNone())

	tree, err := w.CommitmentTree(ctx, 107)
	require.NoError(t, err)
	require.True(t, tree.IsSome())
	require.Equal(
		t, testTree(t, 107%32).Root(),
		tree.UnwrapOr(sapling.NewCommitmentTree()).Root(),
	)

	tree, err = w.CommitmentTree(ctx, 99)
	require.NoError(t, err)
	require.True(t, tree.IsNone())

	height, err := w.TxHeight(ctx, *testTxHash(1))
	require.NoError(t, err)
	require.Equal(t, fn.Some(int32(105)), height)

	height, err = w.TxHeight(ctx, *testTxHash(9))
	require.NoError(t, err)
	require.True(t, height.IsNone())
}

func TestNoteQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	scanBlocks(t, w, 100, 110)
	ref, nf := putMinedNote(t, w, 1, 105, 0, 50000)

	balance, err := w.Balance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(50000), balance)

	// The other account holds none of the notes.
	balance, err = w.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(0), balance)

	nullifiers, err := w.Nullifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []wtxmgr.AccountNullifier{{
		Account:   0,
		Nullifier: nf,
	}}, nullifiers)

	// A note recorded from compact scanning has no memo, which is
	// distinct from a memo that failed to decode.
	memo, err := w.NoteMemo(ctx, ref)
	require.NoError(t, err)
	require.True(t, memo.IsNone())

	_, err = w.NoteMemo(ctx, ref+99)
	require.True(t, wtxmgr.IsError(err, wtxmgr.ErrNoteNotFound))
}

func TestSpendableNotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	scanBlocks(t, w, 100, 110)
	ref, nf := putMinedNote(t, w, 1, 105, 0, 50000)

	err := w.Transactionally(ctx, func(write WalletWrite) error {
		witness := sapling.NewIncrementalWitness(testTree(t, 5))
		return write.InsertWitness(ctx, ref, 110, witness)
	})
	require.NoError(t, err)

	balance, err := w.VerifiedBalance(ctx, 0, 110)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(50000), balance)

	// A note mined after the anchor is not verified.
	balance, err = w.VerifiedBalance(ctx, 0, 104)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(0), balance)

	notes, err := w.SelectSpendableNotes(ctx, 0, 40000, 110)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, zec.Amount(50000), notes[0].Value)

	_, err = w.SelectSpendableNotes(ctx, 0, 60000, 110)
	var insufficient wtxmgr.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, zec.Amount(50000), insufficient.Available)
	require.Equal(t, zec.Amount(60000), insufficient.Requested)

	// Spending the note through another mined transaction empties the
	// balance.
	err = w.Transactionally(ctx, func(write WalletWrite) error {
		spender, err := write.PutTxMeta(ctx, testTxHash(2), 1, 110)
		if err != nil {
			return err
		}
		return write.MarkSpent(ctx, &nf, spender)
	})
	require.NoError(t, err)

	balance, err = w.Balance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(0), balance)
}

func TestRewind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	scanBlocks(t, w, 100, 110)
	_, _ = putMinedNote(t, w, 1, 108, 0, 50000)

	err := w.Transactionally(ctx, func(write WalletWrite) error {
		return write.Rewind(ctx, 105)
	})
	require.NoError(t, err)

	extrema, err := w.BlockHeightExtrema(ctx)
	require.NoError(t, err)
	require.Equal(
		t, fn.Some(wtxmgr.HeightRange{Min: 100, Max: 105}), extrema,
	)

	// The transaction mined above the rewind point is unmined again, not
	// forgotten.
	height, err := w.TxHeight(ctx, *testTxHash(1))
	require.NoError(t, err)
	require.True(t, height.IsNone())
}

func TestScanThenDecryptMerge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	scanBlocks(t, w, 100, 101)

	addr := testAccount(t, 1).Address
	note := sapling.Note{Value: 75000, Rcm: [32]byte{7}}
	nf := testNullifier(7)

	// Compact scanning sees the output first: value and nullifier are
	// known, the memo is not part of a compact block.
	var scanRef wtxmgr.NoteRef
	err := w.Transactionally(ctx, func(write WalletWrite) error {
		txRef, err := write.PutTxMeta(ctx, testTxHash(7), 0, 100)
		if err != nil {
			return err
		}
		scanRef, err = write.PutReceivedNote(
			ctx, NewScannedOutput(0, 0, addr, note, false),
			fn.Some(nf), txRef,
		)
		return err
	})
	require.NoError(t, err)

	memo, err := w.NoteMemo(ctx, scanRef)
	require.NoError(t, err)
	require.True(t, memo.IsNone())

	// Fetching and decrypting the full transaction later fills in the
	// memo without disturbing the nullifier learned during scanning.
	text, err := sapling.NewTextMemo("rent, march")
	require.NoError(t, err)

	var decryptRef wtxmgr.NoteRef
	err = w.Transactionally(ctx, func(write WalletWrite) error {
		txRef, err := write.PutTxData(
			ctx, testTxHash(7), []byte{0xaa, 0xbb}, 0,
			time.Unix(1600020000, 0),
		)
		if err != nil {
			return err
		}
		decryptRef, err = write.PutReceivedNote(
			ctx, NewDecryptedOutput(0, 0, addr, note, text),
			fn.None[sapling.Nullifier](), txRef,
		)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, scanRef, decryptRef)

	memo, err = w.NoteMemo(ctx, scanRef)
	require.NoError(t, err)
	require.Equal(t, fn.Some("rent, march"), memo)

	nullifiers, err := w.Nullifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []wtxmgr.AccountNullifier{{
		Account:   0,
		Nullifier: nf,
	}}, nullifiers)

	balance, err := w.Balance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(75000), balance)
}

func TestSentNotes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	text, err := sapling.NewTextMemo("invoice 1017")
	require.NoError(t, err)

	var ref wtxmgr.SentNoteRef
	err = w.Transactionally(ctx, func(write WalletWrite) error {
		txRef, err := write.PutTxData(
			ctx, testTxHash(3), []byte{0x01, 0x02, 0x03}, 120,
			time.Unix(1600030000, 0),
		)
		if err != nil {
			return err
		}

		output := NewDecryptedOutput(
			1, 0, testAccount(t, 9).Address,
			sapling.Note{Value: 20000, Rcm: [32]byte{3}}, text,
		)
		ref, err = write.PutSentNote(ctx, output, txRef)
		return err
	})
	require.NoError(t, err)

	memo, err := w.SentNoteMemo(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, fn.Some("invoice 1017"), memo)

	_, err = w.SentNoteMemo(ctx, ref+99)
	require.True(t, wtxmgr.IsError(err, wtxmgr.ErrNoteNotFound))
}

func TestStartStopRestart(t *testing.T) {
	t.Parallel()

	w, _ := testWallet(t, Config{
		MaintenanceTicker: ticker.New(time.Hour),
	})

	w.Start()
	require.False(t, w.ShuttingDown())

	// Starting an already running wallet changes nothing.
	w.Start()
	require.False(t, w.ShuttingDown())

	w.Stop()
	require.True(t, w.ShuttingDown())
	w.WaitForShutdown()

	// A stopped wallet can be started again.
	w.Start()
	require.False(t, w.ShuttingDown())

	w.Stop()
	w.WaitForShutdown()
}

func TestStoreMaintainer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	force := ticker.NewForce(time.Hour)
	w, _ := testWallet(t, Config{
		WitnessRetention:  2,
		MaintenanceTicker: force,
	})

	scanBlocks(t, w, 100, 110)
	ref, nf := putMinedNote(t, w, 1, 100, 0, 50000)

	// Record a witness for every scanned block and lock the note behind
	// a spend by an unmined transaction that expired at height 105.
	err := w.Transactionally(ctx, func(write WalletWrite) error {
		for h := int32(100); h <= 110; h++ {
			witness := sapling.NewIncrementalWitness(
				testTree(t, int(h%32)),
			)
			err := write.InsertWitness(ctx, ref, h, witness)
			if err != nil {
				return err
			}
		}

		spender, err := write.PutTxData(
			ctx, testTxHash(2), []byte{0xaa}, 105,
			time.Unix(1600040000, 0),
		)
		if err != nil {
			return err
		}
		return write.MarkSpent(ctx, &nf, spender)
	})
	require.NoError(t, err)

	balance, err := w.Balance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(0), balance)

	w.Start()
	defer func() {
		w.Stop()
		w.WaitForShutdown()
	}()

	// Force a maintenance pass.  The second tick is only consumed once
	// the first pass has finished, so its effects are visible after the
	// send returns.
	force.Force <- time.Now()
	force.Force <- time.Now()

	// The expired spender no longer locks the note.
	balance, err = w.Balance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(50000), balance)

	// Witnesses below the retention horizon of 108 are gone, newer ones
	// remain.
	witnesses, err := w.Witnesses(ctx, 107)
	require.NoError(t, err)
	require.Empty(t, witnesses)

	witnesses, err = w.Witnesses(ctx, 110)
	require.NoError(t, err)
	require.Len(t, witnesses, 1)
	require.Equal(t, ref, witnesses[0].Note)
}

func TestCloseZeroesKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, _ := testWallet(t, Config{})

	w.Close()

	_, err := w.AccountKeys(ctx)
	require.True(t, waddrmgr.IsError(err, waddrmgr.ErrClosed))

	// A second close is a no-op.
	w.Close()
}

// TestScanFromBlockSource drives the wallet the way a block scanner does:
// compact blocks are staged in a chain.BlockCache sharing the wallet's
// database, then drained in height order, ingesting each block, every output
// the trial decryption recognizes and every spend of a known nullifier as one
// atomic batch per block.
func TestScanFromBlockSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w, db := testWallet(t, Config{AnchorOffset: 2})

	cache := chain.NewBlockCache(
		db, []byte("chain"), chain.DefaultCacheCapacity,
	)
	require.NoError(t, cache.Init())

	node := func(n byte) sapling.Node {
		var nd sapling.Node
		nd[0] = n
		nd[31] = 0xc3
		return nd
	}
	foreignOut := func(n byte) chain.CompactOutput {
		return chain.CompactOutput{Cmu: node(n)}
	}

	// The plaintexts the trial decryption step will recognize, keyed by
	// output commitment.  Everything else in the staged blocks belongs to
	// other wallets and only moves the commitment tree along.
	type decrypted struct {
		account  uint32
		note     sapling.Note
		nf       sapling.Nullifier
		isChange bool
	}
	addr := testAccount(t, 1).Address
	plaintexts := map[sapling.Node]decrypted{
		node(10): {
			account: 0,
			note:    sapling.Note{Value: 50000, Rcm: [32]byte{10}},
			nf:      testNullifier(10),
		},
		node(20): {
			account:  0,
			note:     sapling.Note{Value: 30000, Rcm: [32]byte{20}},
			nf:       testNullifier(20),
			isChange: true,
		},
	}

	// Stage five blocks: 102 pays the wallet, 103 spends that note again
	// and returns change, the rest is foreign traffic.
	blocks := []*chain.CompactBlock{
		{Height: 100},
		{Height: 101, Tx: []chain.CompactTx{{
			Index:   2,
			TxHash:  *testTxHash(101),
			Outputs: []chain.CompactOutput{foreignOut(1), foreignOut(2)},
		}}},
		{Height: 102, Tx: []chain.CompactTx{{
			Index:   1,
			TxHash:  *testTxHash(102),
			Outputs: []chain.CompactOutput{foreignOut(3), {Cmu: node(10)}},
		}}},
		{Height: 103, Tx: []chain.CompactTx{{
			Index:   1,
			TxHash:  *testTxHash(103),
			Spends:  []chain.CompactSpend{{Nf: testNullifier(10)}},
			Outputs: []chain.CompactOutput{{Cmu: node(20)}, foreignOut(4)},
		}}},
		{Height: 104},
	}
	for _, b := range blocks {
		b.Hash = testBlockHash(b.Height)
		b.PrevHash = testBlockHash(b.Height - 1)
		b.Time = uint32(1600000000 + b.Height*150)
		require.NoError(t, cache.PutBlock(b))
	}

	// The scanner's running state: the commitment tree across every
	// scanned output and a live witness per recognized note.
	tree := sapling.NewCommitmentTree()
	witnesses := make(map[wtxmgr.NoteRef]*sapling.IncrementalWitness)

	var scanned []int32
	err := cache.RangeBlocks(100, 0, func(cb *chain.CompactBlock) error {
		scanned = append(scanned, cb.Height)
		return w.Transactionally(ctx, func(write WalletWrite) error {
			// The current nullifier set decides which spends are
			// ours, including notes recorded by earlier batches.
			nfs, err := write.Nullifiers(ctx)
			if err != nil {
				return err
			}
			ours := make(map[sapling.Nullifier]bool, len(nfs))
			for _, nf := range nfs {
				ours[nf.Nullifier] = true
			}

			for _, cbTx := range cb.Tx {
				relevant := false
				for _, spend := range cbTx.Spends {
					if ours[spend.Nf] {
						relevant = true
					}
				}
				for _, out := range cbTx.Outputs {
					if _, ok := plaintexts[out.Cmu]; ok {
						relevant = true
					}
				}

				var txRef wtxmgr.TxRef
				if relevant {
					txRef, err = write.PutTxMeta(
						ctx, &cbTx.TxHash, cbTx.Index,
						cb.Height,
					)
					if err != nil {
						return err
					}
					for _, spend := range cbTx.Spends {
						if !ours[spend.Nf] {
							continue
						}
						err = write.MarkSpent(
							ctx, &spend.Nf, txRef,
						)
						if err != nil {
							return err
						}
					}
				}

				for oi, out := range cbTx.Outputs {
					for _, wit := range witnesses {
						err := wit.Append(out.Cmu)
						if err != nil {
							return err
						}
					}
					err := tree.Append(out.Cmu)
					if err != nil {
						return err
					}

					plain, ok := plaintexts[out.Cmu]
					if !ok {
						continue
					}
					ref, err := write.PutReceivedNote(
						ctx, NewScannedOutput(
							uint32(oi),
							plain.account, addr,
							plain.note,
							plain.isChange,
						),
						fn.Some(plain.nf), txRef,
					)
					if err != nil {
						return err
					}
					witnesses[ref] =
						sapling.NewIncrementalWitness(tree)
				}
			}

			meta := &wtxmgr.BlockMeta{
				Block: wtxmgr.Block{
					Hash:   cb.Hash,
					Height: cb.Height,
				},
				Time: time.Unix(int64(cb.Time), 0),
			}
			err = write.InsertBlock(ctx, meta, tree)
			if err != nil {
				return err
			}
			for ref, wit := range witnesses {
				err := write.InsertWitness(
					ctx, ref, cb.Height, wit,
				)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, []int32{100, 101, 102, 103, 104}, scanned)

	extrema, err := w.BlockHeightExtrema(ctx)
	require.NoError(t, err)
	require.Equal(
		t, fn.Some(wtxmgr.HeightRange{Min: 100, Max: 104}), extrema,
	)

	// The first note was spent by block 103, so only the change remains.
	balance, err := w.Balance(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, zec.Amount(30000), balance,
		"blocks fed to the scanner: %s", spew.Sdump(blocks))

	nullifiers, err := w.Nullifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, []wtxmgr.AccountNullifier{{
		Account:   0,
		Nullifier: testNullifier(20),
	}}, nullifiers)

	// The tree stored with the last block matches the scanner's.
	stored, err := w.CommitmentTree(ctx, 104)
	require.NoError(t, err)
	require.Equal(
		t, tree.Root(),
		stored.UnwrapOr(sapling.NewCommitmentTree()).Root(),
	)

	heights, err := w.TargetAndAnchorHeights(ctx)
	require.NoError(t, err)
	require.Equal(
		t, fn.Some(TargetAnchor{Target: 105, Anchor: 103}), heights,
	)

	// Selection against the anchor returns the change note, and its
	// stored witness has caught up to the scanner's tree root.
	notes, err := w.SelectSpendableNotes(ctx, 0, 30000, 103)
	require.NoError(t, err)
	require.Len(t, notes, 1, "selected notes: %s", spew.Sdump(notes))
	require.Equal(t, zec.Amount(30000), notes[0].Value)
	require.Equal(t, tree.Root(), notes[0].Witness.Root())
}
