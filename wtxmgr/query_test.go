// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/zec"
)

func TestEmptyStoreQueries(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	view(t, db, func(ns walletdb.ReadBucket) error {
		extrema, err := s.BlockHeightExtrema(ns)
		require.NoError(t, err)
		require.True(t, extrema.IsNone())

		best, err := s.BestBlock(ns)
		require.NoError(t, err)
		require.True(t, best.IsNone())

		hash, err := s.BlockHash(ns, 1)
		require.NoError(t, err)
		require.True(t, hash.IsNone())

		tree, err := s.CommitmentTree(ns, 1)
		require.NoError(t, err)
		require.True(t, tree.IsNone())

		height, err := s.TxHeight(ns, testTxHash(1))
		require.NoError(t, err)
		require.True(t, height.IsNone())

		balance, err := s.Balance(ns, 0)
		require.NoError(t, err)
		require.Equal(t, zec.Amount(0), balance)

		verified, err := s.VerifiedBalance(ns, 0, 100)
		require.NoError(t, err)
		require.Equal(t, zec.Amount(0), verified)

		nfs, err := s.Nullifiers(ns)
		require.NoError(t, err)
		require.Empty(t, nfs)

		witnesses, err := s.Witnesses(ns, 1)
		require.NoError(t, err)
		require.Empty(t, witnesses)

		// Nothing is spendable, but a zero target needs nothing.
		_, err = s.SelectSpendableNotes(ns, 0, 1000, 5)
		var insufficient InsufficientFundsError
		require.ErrorAs(t, err, &insufficient)
		require.Equal(t, zec.Amount(0), insufficient.Available)
		require.Equal(t, zec.Amount(1000), insufficient.Requested)

		selected, err := s.SelectSpendableNotes(ns, 0, 0, 5)
		require.NoError(t, err)
		require.Empty(t, selected)
		return nil
	})
}

func TestBlockQueries(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	insertBlocks(t, s, db, 3, 7)

	view(t, db, func(ns walletdb.ReadBucket) error {
		extrema, err := s.BlockHeightExtrema(ns)
		require.NoError(t, err)
		require.Equal(t, fn.Some(HeightRange{Min: 3, Max: 7}), extrema)

		best, err := s.BestBlock(ns)
		require.NoError(t, err)
		require.Equal(t,
			fn.Some(Block{Hash: testBlockHash(7), Height: 7}), best)

		hash, err := s.BlockHash(ns, 5)
		require.NoError(t, err)
		require.Equal(t, fn.Some(testBlockHash(5)), hash)

		hash, err = s.BlockHash(ns, 8)
		require.NoError(t, err)
		require.True(t, hash.IsNone())

		tree, err := s.CommitmentTree(ns, 4)
		require.NoError(t, err)
		require.True(t, tree.IsSome())
		require.Equal(t, testTree(t, 4).Root(),
			tree.UnwrapOr(nil).Root())

		tree, err = s.CommitmentTree(ns, 2)
		require.NoError(t, err)
		require.True(t, tree.IsNone())
		return nil
	})
}

func TestTxHeight(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	minedHash := testTxHash(1)
	unminedHash := testTxHash(2)
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		putMinedTx(t, s, ns, minedHash, 6)
		_, err := s.PutTxData(
			ns, unminedHash, []byte{0x01}, 0,
			time.Unix(1600000000, 0),
		)
		return err
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		height, err := s.TxHeight(ns, minedHash)
		require.NoError(t, err)
		require.Equal(t, fn.Some(int32(6)), height)

		// A recorded but unmined transaction has no height, just like
		// a transaction the store has never seen.
		height, err = s.TxHeight(ns, unminedHash)
		require.NoError(t, err)
		require.True(t, height.IsNone())

		height, err = s.TxHeight(ns, testTxHash(3))
		require.NoError(t, err)
		require.True(t, height.IsNone())
		return nil
	})
}

func TestWitnessesAtHeight(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	var refA, refB, refC NoteRef
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		txA := putMinedTx(t, s, ns, testTxHash(1), 2)
		txB := putMinedTx(t, s, ns, testTxHash(2), 3)
		txC := putMinedTx(t, s, ns, testTxHash(3), 4)
		refA = putSimpleNote(t, s, ns, txA, 0, 0, 1000)
		refB = putSimpleNote(t, s, ns, txB, 0, 0, 2000)
		refC = putSimpleNote(t, s, ns, txC, 0, 0, 3000)

		for _, ref := range []NoteRef{refA, refB} {
			for h := int32(4); h <= 5; h++ {
				witness := sapling.NewIncrementalWitness(
					testTree(t, int(h)),
				)
				err := s.InsertWitness(ns, ref, h, witness)
				if err != nil {
					return err
				}
			}
		}
		witness := sapling.NewIncrementalWitness(testTree(t, 5))
		return s.InsertWitness(ns, refC, 5, witness)
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		witnesses, err := s.Witnesses(ns, 4)
		require.NoError(t, err)
		require.Len(t, witnesses, 2)
		for _, w := range witnesses {
			require.Contains(t, []NoteRef{refA, refB}, w.Note)
			require.Equal(t, testTree(t, 4).Root(), w.Witness.Root())
		}

		witnesses, err = s.Witnesses(ns, 5)
		require.NoError(t, err)
		require.Len(t, witnesses, 3)

		witnesses, err = s.Witnesses(ns, 6)
		require.NoError(t, err)
		require.Empty(t, witnesses)
		return nil
	})
}

func TestNullifiers(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	spentNf := testNoteNullifier(2, 0)
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		txA := putMinedTx(t, s, ns, testTxHash(1), 2)
		txB := putMinedTx(t, s, ns, testTxHash(2), 3)
		putSimpleNote(t, s, ns, txA, 0, 7, 1000)
		putSimpleNote(t, s, ns, txB, 0, 0, 2000)

		// A note recovered without key material has no nullifier and
		// cannot be watched for spends.
		_, err := s.PutReceivedNote(ns, &ReceivedNote{
			Tx:          txA,
			OutputIndex: 1,
			Account:     0,
			Value:       3000,
		})
		if err != nil {
			return err
		}

		spender := putMinedTx(t, s, ns, testTxHash(3), 4)
		return s.MarkSpent(ns, &spentNf, spender)
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		nfs, err := s.Nullifiers(ns)
		require.NoError(t, err)
		require.Equal(t, []AccountNullifier{{
			Account:   7,
			Nullifier: testNoteNullifier(1, 0),
		}}, nfs)
		return nil
	})
}

func TestBalances(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	spentNf := testNoteNullifier(2, 1)
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		early := putMinedTx(t, s, ns, testTxHash(1), 2)
		late := putMinedTx(t, s, ns, testTxHash(2), 9)
		putSimpleNote(t, s, ns, early, 0, 0, 5000)
		putSimpleNote(t, s, ns, late, 0, 0, 3000)

		// A spent note counts toward no balance, even while its
		// spender is unmined.
		putSimpleNote(t, s, ns, late, 1, 0, 9000)
		spender, err := s.PutTxData(
			ns, testTxHash(3), []byte{0x01}, 0,
			time.Unix(1600000000, 0),
		)
		if err != nil {
			return err
		}
		if err := s.MarkSpent(ns, &spentNf, spender); err != nil {
			return err
		}

		// A note in an unmined transaction is not yet part of any
		// balance.
		unmined, err := s.PutTxData(
			ns, testTxHash(4), []byte{0x02}, 0,
			time.Unix(1600000000, 0),
		)
		if err != nil {
			return err
		}
		putSimpleNote(t, s, ns, unmined, 0, 0, 1000)

		putSimpleNote(t, s, ns, early, 1, 1, 7000)
		return nil
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		balance, err := s.Balance(ns, 0)
		require.NoError(t, err)
		require.Equal(t, zec.Amount(8000), balance)

		verified, err := s.VerifiedBalance(ns, 0, 5)
		require.NoError(t, err)
		require.Equal(t, zec.Amount(5000), verified)

		balance, err = s.Balance(ns, 1)
		require.NoError(t, err)
		require.Equal(t, zec.Amount(7000), balance)

		balance, err = s.Balance(ns, 2)
		require.NoError(t, err)
		require.Equal(t, zec.Amount(0), balance)
		return nil
	})
}

func TestBalanceCorruptData(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	// Write a note whose value no honest code path could have produced.
	// The balance must fail loudly instead of clamping or skipping it.
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		tx := putMinedTx(t, s, ns, testTxHash(1), 2)
		ref, err := newNoteRef(ns)
		if err != nil {
			return err
		}
		return putNoteRecord(ns, ref, &noteRecord{
			txID:    tx,
			account: 0,
			value:   zec.MaxZatoshi + 1,
		})
	})

	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		_, err := s.Balance(tx.ReadBucket(testNamespaceKey), 0)
		return err
	})
	require.True(t, IsError(err, ErrData))

	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		_, err := s.VerifiedBalance(tx.ReadBucket(testNamespaceKey), 0, 5)
		return err
	})
	require.True(t, IsError(err, ErrData))
}

func TestBalanceSumOverflow(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	// Each note alone is within the money range, but together they exceed
	// it, which is just as impossible on a real chain.
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		tx := putMinedTx(t, s, ns, testTxHash(1), 2)
		putSimpleNote(t, s, ns, tx, 0, 0, zec.MaxZatoshi)
		putSimpleNote(t, s, ns, tx, 1, 0, 1)
		return nil
	})

	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		_, err := s.Balance(tx.ReadBucket(testNamespaceKey), 0)
		return err
	})
	require.True(t, IsError(err, ErrData))
}

func TestMemos(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)

	textMemo, err := sapling.NewTextMemo("hello zcash")
	require.NoError(t, err)
	arbitraryMemo, err := sapling.NewMemo([]byte{0xf5, 0x01, 0x02})
	require.NoError(t, err)
	corruptMemo, err := sapling.NewMemo([]byte{0xc3, 0x28})
	require.NoError(t, err)

	var bare, text, empty, arbitrary, corrupt NoteRef
	var sentRef SentNoteRef
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		tx := putMinedTx(t, s, ns, testTxHash(1), 2)

		put := func(outputIndex uint32, memo fn.Option[sapling.Memo]) NoteRef {
			ref, err := s.PutReceivedNote(ns, &ReceivedNote{
				Tx:          tx,
				OutputIndex: outputIndex,
				Value:       1000,
				Memo:        memo,
			})
			require.NoError(t, err)
			return ref
		}
		bare = put(0, fn.None[sapling.Memo]())
		text = put(1, fn.Some(textMemo))
		empty = put(2, fn.Some(sapling.EmptyMemo()))
		arbitrary = put(3, fn.Some(arbitraryMemo))
		corrupt = put(4, fn.Some(corruptMemo))

		var err error
		sentRef, err = s.PutSentNote(ns, &SentNote{
			Tx:    tx,
			To:    testPaymentAddress(t),
			Value: 500,
			Memo:  fn.Some(textMemo),
		})
		return err
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		memo, err := s.NoteMemo(ns, bare)
		require.NoError(t, err)
		require.True(t, memo.IsNone())

		memo, err = s.NoteMemo(ns, text)
		require.NoError(t, err)
		require.Equal(t, fn.Some("hello zcash"), memo)

		memo, err = s.NoteMemo(ns, empty)
		require.NoError(t, err)
		require.True(t, memo.IsNone())

		memo, err = s.NoteMemo(ns, arbitrary)
		require.NoError(t, err)
		require.True(t, memo.IsNone())

		_, err = s.NoteMemo(ns, corrupt)
		require.ErrorIs(t, err, sapling.ErrInvalidMemoUTF8)

		memo, err = s.SentNoteMemo(ns, sentRef)
		require.NoError(t, err)
		require.Equal(t, fn.Some("hello zcash"), memo)

		_, err = s.NoteMemo(ns, NoteRef(999))
		require.True(t, IsError(err, ErrNoteNotFound))
		_, err = s.SentNoteMemo(ns, SentNoteRef(999))
		require.True(t, IsError(err, ErrNoteNotFound))
		return nil
	})
}

// selectFixture records the notes used by the spendable selection tests:
//
//	note 1: 5000 zat, mined at 2, witnessed at 3 and 5
//	note 2: 3000 zat, mined at 3, witnessed at 5
//	note 3: 2000 zat, mined at 4, witnessed at 5
//	note 4: 9000 zat, spent
//	note 5: 9000 zat, transaction unmined
//	note 6: 9000 zat, mined at 9 (after the anchor)
//	note 7: 9000 zat, mined at 2 but never witnessed
//
// plus a 7777 zat note owned by another account.
func selectFixture(t *testing.T, s *Store, db walletdb.DB) []NoteRef {
	t.Helper()

	refs := make([]NoteRef, 0, 7)
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		witnessAt := func(ref NoteRef, h int32) {
			witness := sapling.NewIncrementalWitness(
				testTree(t, int(h)),
			)
			require.NoError(t, s.InsertWitness(ns, ref, h, witness))
		}

		tx1 := putMinedTx(t, s, ns, testTxHash(1), 2)
		note1 := putSimpleNote(t, s, ns, tx1, 0, 0, 5000)
		witnessAt(note1, 3)
		witnessAt(note1, 5)

		tx2 := putMinedTx(t, s, ns, testTxHash(2), 3)
		note2 := putSimpleNote(t, s, ns, tx2, 0, 0, 3000)
		witnessAt(note2, 5)

		tx3 := putMinedTx(t, s, ns, testTxHash(3), 4)
		note3 := putSimpleNote(t, s, ns, tx3, 0, 0, 2000)
		witnessAt(note3, 5)

		note4 := putSimpleNote(t, s, ns, tx1, 1, 0, 9000)
		witnessAt(note4, 5)
		nf := testNoteNullifier(tx1, 1)
		if err := s.MarkSpent(ns, &nf, tx3); err != nil {
			return err
		}

		unmined, err := s.PutTxData(
			ns, testTxHash(4), []byte{0x01}, 0,
			time.Unix(1600000000, 0),
		)
		if err != nil {
			return err
		}
		note5 := putSimpleNote(t, s, ns, unmined, 0, 0, 9000)
		witnessAt(note5, 5)

		tx6 := putMinedTx(t, s, ns, testTxHash(5), 9)
		note6 := putSimpleNote(t, s, ns, tx6, 0, 0, 9000)
		witnessAt(note6, 9)

		note7 := putSimpleNote(t, s, ns, tx1, 2, 0, 9000)

		otherAccount := putSimpleNote(t, s, ns, tx1, 3, 1, 7777)
		witnessAt(otherAccount, 5)

		refs = append(
			refs, note1, note2, note3, note4, note5, note6, note7,
		)
		return nil
	})
	return refs
}

func TestSelectSpendableNotes(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	refs := selectFixture(t, s, db)

	view(t, db, func(ns walletdb.ReadBucket) error {
		// 5000 + 3000 covers the target exactly; the 2000 note must be
		// left alone.
		selected, err := s.SelectSpendableNotes(ns, 0, 8000, 5)
		require.NoError(t, err)
		require.Len(t, selected, 2)

		require.Equal(t, refs[0], selected[0].Note)
		require.Equal(t, zec.Amount(5000), selected[0].Value)
		require.Equal(t, refs[1], selected[1].Note)
		require.Equal(t, zec.Amount(3000), selected[1].Value)

		// Each witness is the newest snapshot at or before the anchor.
		require.Equal(t, testTree(t, 5).Root(),
			selected[0].Witness.Root())
		require.Equal(t, testTree(t, 5).Root(),
			selected[1].Witness.Root())

		// Everything eligible together covers 10000.
		selected, err = s.SelectSpendableNotes(ns, 0, 10000, 5)
		require.NoError(t, err)
		require.Len(t, selected, 3)
		require.Equal(t, refs[2], selected[2].Note)
		return nil
	})
}

func TestSelectSpendableNotesAnchored(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	refs := selectFixture(t, s, db)

	view(t, db, func(ns walletdb.ReadBucket) error {
		// At anchor 4 only note 1 qualifies, and its witness is the
		// older height 3 snapshot.
		selected, err := s.SelectSpendableNotes(ns, 0, 5000, 4)
		require.NoError(t, err)
		require.Len(t, selected, 1)
		require.Equal(t, refs[0], selected[0].Note)
		require.Equal(t, testTree(t, 3).Root(),
			selected[0].Witness.Root())

		_, err = s.SelectSpendableNotes(ns, 0, 5001, 4)
		var insufficient InsufficientFundsError
		require.ErrorAs(t, err, &insufficient)
		require.Equal(t, zec.Amount(5000), insufficient.Available)
		return nil
	})
}

func TestSelectSpendableNotesInsufficient(t *testing.T) {
	t.Parallel()

	s, db := testStore(t)
	selectFixture(t, s, db)

	view(t, db, func(ns walletdb.ReadBucket) error {
		// One zatoshi more than the spendable total: the call must
		// fail without returning any subset.
		selected, err := s.SelectSpendableNotes(ns, 0, 10001, 5)
		require.Nil(t, selected)

		var insufficient InsufficientFundsError
		require.ErrorAs(t, err, &insufficient)
		require.Equal(t, zec.Amount(10000), insufficient.Available)
		require.Equal(t, zec.Amount(10001), insufficient.Requested)

		for _, target := range []zec.Amount{-1, zec.MaxZatoshi + 1} {
			_, err := s.SelectSpendableNotes(ns, 0, target, 5)
			require.True(t, IsError(err, ErrInput),
				"target %d", target)
		}
		return nil
	})
}
