// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/zec"
)

// HeightRange describes the inclusive range of block heights recorded by the
// store.  The range is expected to be contiguous: blocks are appended in
// order and removed from the top by Rewind, never from the middle.
type HeightRange struct {
	Min int32
	Max int32
}

// NoteWitness pairs a received note with the incremental witness recorded
// for it as of some block.
type NoteWitness struct {
	Note    NoteRef
	Witness *sapling.IncrementalWitness
}

// AccountNullifier pairs the nullifier of an unspent note with the account
// the note was received by.  Scanners match these against the spends revealed
// in new blocks to detect when the wallet's own notes leave its balance.
type AccountNullifier struct {
	Account   uint32
	Nullifier sapling.Nullifier
}

// SpendableNote describes an unspent note selected to fund a spend, together
// with the witness proving the note's membership in the commitment tree at
// the requested anchor.  The diversifier and commitment randomness are the
// receiver-side secrets needed to recreate the note for proving.
type SpendableNote struct {
	Note        NoteRef
	Diversifier sapling.Diversifier
	Value       zec.Amount
	Rcm         [32]byte
	Witness     *sapling.IncrementalWitness
}

// InsufficientFundsError describes the failure to select notes totalling at
// least a requested value.  Available reports the total that was spendable
// at the requested anchor.
type InsufficientFundsError struct {
	Available zec.Amount
	Requested zec.Amount
}

// Error satisfies the error interface.
func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %v spendable, %v requested",
		e.Available, e.Requested)
}

// BlockHeightExtrema returns the lowest and highest heights of the blocks
// recorded by the store, or fn.None if no blocks have been recorded yet.
func (s *Store) BlockHeightExtrema(
	ns walletdb.ReadBucket) (fn.Option[HeightRange], error) {

	none := fn.None[HeightRange]()

	first := makeBlockIterator(ns, 0)
	if !first.next() {
		return none, first.err
	}
	last := makeReverseBlockIterator(ns)
	if !last.prev() {
		return none, last.err
	}

	return fn.Some(HeightRange{
		Min: first.elem.Height,
		Max: last.elem.Height,
	}), nil
}

// BestBlock returns the hash and height of the most recently scanned block,
// or fn.None if no blocks have been recorded yet.
func (s *Store) BestBlock(ns walletdb.ReadBucket) (fn.Option[Block], error) {
	it := makeReverseBlockIterator(ns)
	if !it.prev() {
		return fn.None[Block](), it.err
	}
	return fn.Some(it.elem.Block), nil
}

// BlockHash returns the hash of the scanned block at the given height, or
// fn.None if no block was recorded there.
func (s *Store) BlockHash(ns walletdb.ReadBucket,
	height int32) (fn.Option[chainhash.Hash], error) {

	none := fn.None[chainhash.Hash]()

	k, v := existsRawBlockRecord(ns, height)
	if v == nil {
		return none, nil
	}
	var rec blockRecord
	if err := readRawBlockRecord(k, v, &rec); err != nil {
		return none, err
	}
	return fn.Some(rec.Hash), nil
}

// CommitmentTree returns the state of the note commitment tree as of the end
// of the scanned block at the given height, or fn.None if no block was
// recorded there.  This is the tree new witnesses are built from when
// scanning resumes at the next block.
func (s *Store) CommitmentTree(ns walletdb.ReadBucket,
	height int32) (fn.Option[*sapling.CommitmentTree], error) {

	none := fn.None[*sapling.CommitmentTree]()

	k, v := existsRawBlockRecord(ns, height)
	if v == nil {
		return none, nil
	}
	var rec blockRecord
	if err := readRawBlockRecord(k, v, &rec); err != nil {
		return none, err
	}
	return fn.Some(rec.tree), nil
}

// TxHeight returns the height of the block the transaction was mined in.
// fn.None is returned both for transactions the store has never seen and for
// recorded transactions that are not currently mined.
func (s *Store) TxHeight(ns walletdb.ReadBucket,
	txHash *chainhash.Hash) (fn.Option[int32], error) {

	none := fn.None[int32]()

	v := existsTxIndex(ns, txHash)
	if v == nil {
		return none, nil
	}
	ref, err := readRawRef(v)
	if err != nil {
		return none, err
	}
	rec, err := fetchTxRecord(ns, TxRef(ref))
	if err != nil {
		return none, err
	}
	return rec.height, nil
}

// Witnesses returns the witnesses recorded as of the block at the given
// height, one per note that was witnessed there.  The scanner loads these
// for the last scanned block and appends each new commitment to every one of
// them as it walks the next block.
func (s *Store) Witnesses(ns walletdb.ReadBucket,
	height int32) ([]NoteWitness, error) {

	// Witness keys are note-major, so selecting a single height visits
	// the whole bucket.  The bucket only holds a small window of recent
	// heights per note, maintained by witness pruning.
	var witnesses []NoteWitness
	c := ns.NestedReadBucket(bucketWitnesses).ReadCursor()
	for ck, cv := c.First(); ck != nil; ck, cv = c.Next() {
		note, witnessHeight, err := readRawWitnessKey(ck)
		if err != nil {
			return nil, err
		}
		if witnessHeight != height {
			continue
		}
		witness, err := readRawWitness(cv)
		if err != nil {
			return nil, err
		}
		witnesses = append(witnesses, NoteWitness{
			Note:    note,
			Witness: witness,
		})
	}
	return witnesses, nil
}

// Nullifiers returns the nullifiers of all unspent notes with a known
// nullifier, paired with their receiving accounts.  Notes already marked
// spent are excluded, as are notes recovered without their nullifier (such
// notes cannot be matched against chain spends until a rescan fills the
// nullifier in).
func (s *Store) Nullifiers(ns walletdb.ReadBucket) ([]AccountNullifier, error) {
	var nfs []AccountNullifier
	it := makeNoteIterator(ns)
	for it.next() {
		if it.elem.spentBy.IsSome() || it.elem.nullifier.IsNone() {
			continue
		}
		nfs = append(nfs, AccountNullifier{
			Account:   it.elem.account,
			Nullifier: it.elem.nullifier.UnwrapOr(sapling.Nullifier{}),
		})
	}
	if it.err != nil {
		return nil, it.err
	}
	return nfs, nil
}

// minedAtOrBefore reports whether a note's transaction is mined and, when an
// anchor height is given, mined no later than that anchor.
func minedAtOrBefore(rec *txRecord, anchor fn.Option[int32]) bool {
	if rec.height.IsNone() {
		return false
	}
	if anchor.IsNone() {
		return true
	}
	return rec.height.UnwrapOr(0) <= anchor.UnwrapOr(0)
}

func (s *Store) balance(ns walletdb.ReadBucket, account uint32,
	anchor fn.Option[int32]) (zec.Amount, error) {

	var total zec.Amount
	it := makeNoteIterator(ns)
	for it.next() {
		if it.elem.account != account || it.elem.spentBy.IsSome() {
			continue
		}

		txRec, err := fetchTxRecord(ns, it.elem.txID)
		if err != nil {
			return 0, err
		}
		if !minedAtOrBefore(txRec, anchor) {
			continue
		}

		if !zec.ValidMoney(it.elem.value) {
			str := fmt.Sprintf("note %d value %d out of range",
				it.ref, it.elem.value)
			return 0, storeError(ErrData, str, nil)
		}
		total += it.elem.value
		if !zec.ValidMoney(total) {
			str := fmt.Sprintf("balance of account %d out of range",
				account)
			return 0, storeError(ErrData, str, nil)
		}
	}
	if it.err != nil {
		return 0, it.err
	}
	return total, nil
}

// Balance returns the total value of the account's unspent notes whose
// transactions are mined.  Notes marked spent are excluded even while the
// spending transaction is unmined, so the balance never counts funds that
// are already committed elsewhere.
//
// A note value or a running total outside the valid money range fails with
// ErrData rather than being clamped: an impossible balance means the store
// is corrupt, and the error must surface before the wallet acts on it.
func (s *Store) Balance(ns walletdb.ReadBucket,
	account uint32) (zec.Amount, error) {

	return s.balance(ns, account, fn.None[int32]())
}

// VerifiedBalance returns the portion of the account balance held in notes
// mined at or before the anchor height, which is the value the wallet can
// spend right now: notes mined after the anchor have no usable witness yet.
// The same range checking as Balance applies.
func (s *Store) VerifiedBalance(ns walletdb.ReadBucket, account uint32,
	anchor int32) (zec.Amount, error) {

	return s.balance(ns, account, fn.Some(anchor))
}

// memoText interprets a stored memo field.  Absent memos, empty memos and
// non-text memos all yield fn.None; a text memo that is not valid UTF-8
// fails with sapling.ErrInvalidMemoUTF8.
func memoText(memo fn.Option[sapling.Memo]) (fn.Option[string], error) {
	if memo.IsNone() {
		return fn.None[string](), nil
	}
	m := memo.UnwrapOr(sapling.EmptyMemo())
	return m.ToUTF8()
}

// NoteMemo returns the text of the memo attached to a received note.
// ErrNoteNotFound is returned if the note reference is unknown; a known note
// whose memo is absent or carries no text yields fn.None.
func (s *Store) NoteMemo(ns walletdb.ReadBucket,
	ref NoteRef) (fn.Option[string], error) {

	rec, err := fetchNoteRecord(ns, ref)
	if err != nil {
		return fn.None[string](), err
	}
	return memoText(rec.memo)
}

// SentNoteMemo returns the text of the memo the wallet attached to one of
// its own outputs.  ErrNoteNotFound is returned if the sent note reference
// is unknown.
func (s *Store) SentNoteMemo(ns walletdb.ReadBucket,
	ref SentNoteRef) (fn.Option[string], error) {

	rec, err := fetchSentNoteRecord(ns, ref)
	if err != nil {
		return fn.None[string](), err
	}
	return memoText(rec.memo)
}

// SelectSpendableNotes selects unspent notes of the account totalling at
// least the target value, returning for each the secrets and the witness
// needed to spend it against the given anchor.  A note is eligible when its
// transaction is mined at or before the anchor and a witness no newer than
// the anchor is recorded for it; the witness returned is the newest such
// snapshot.  Notes are accumulated oldest first until the target is reached.
//
// If the eligible notes cannot cover the target, no subset is returned: the
// call fails with InsufficientFundsError reporting the spendable total, and
// the caller decides whether to retry with a smaller target.
func (s *Store) SelectSpendableNotes(ns walletdb.ReadBucket, account uint32,
	target zec.Amount, anchor int32) ([]SpendableNote, error) {

	if !zec.ValidMoney(target) {
		str := fmt.Sprintf("target value %d out of range", target)
		return nil, storeError(ErrInput, str, nil)
	}

	var (
		selected []SpendableNote
		total    zec.Amount
	)
	it := makeNoteIterator(ns)
	for total < target && it.next() {
		if it.elem.account != account || it.elem.spentBy.IsSome() {
			continue
		}

		txRec, err := fetchTxRecord(ns, it.elem.txID)
		if err != nil {
			return nil, err
		}
		if !minedAtOrBefore(txRec, fn.Some(anchor)) {
			continue
		}

		witness, _, err := fetchLatestWitness(ns, it.ref, anchor)
		if err != nil {
			return nil, err
		}
		if witness == nil {
			// Not witnessed at the anchor yet.
			continue
		}

		if !zec.ValidMoney(it.elem.value) {
			str := fmt.Sprintf("note %d value %d out of range",
				it.ref, it.elem.value)
			return nil, storeError(ErrData, str, nil)
		}

		selected = append(selected, SpendableNote{
			Note:        it.ref,
			Diversifier: it.elem.diversifier,
			Value:       it.elem.value,
			Rcm:         it.elem.rcm,
			Witness:     witness,
		})
		total += it.elem.value
		if !zec.ValidMoney(total) {
			str := fmt.Sprintf("selected total for account %d "+
				"out of range", account)
			return nil, storeError(ErrData, str, nil)
		}
	}
	if it.err != nil {
		return nil, it.err
	}

	if total < target {
		return nil, InsufficientFundsError{
			Available: total,
			Requested: target,
		}
	}
	return selected, nil
}
