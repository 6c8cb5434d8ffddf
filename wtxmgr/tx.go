// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/netparams"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/zec"
)

// TxRef is an opaque store-assigned reference to a transaction record.  It
// carries no meaning outside the store that issued it.
type TxRef uint64

// NoteRef is an opaque store-assigned reference to a received note record.
type NoteRef uint64

// SentNoteRef is an opaque store-assigned reference to a sent note record.
type SentNoteRef uint64

// Block contains the minimum amount of data to uniquely identify any block on
// the chain being scanned.
type Block struct {
	Hash   chainhash.Hash
	Height int32
}

// BlockMeta contains the unique identification for a block and any metadata
// pertaining to the block.  At the moment, this additional metadata only
// includes the block time from the block header.
type BlockMeta struct {
	Block
	Time time.Time
}

// blockRecord is an in-memory representation of the block record saved in the
// database: the block identity plus the note commitment tree as of the end of
// that block.
type blockRecord struct {
	Block
	Time time.Time
	tree *sapling.CommitmentTree
}

// txRecord is an in-memory representation of a transaction record saved in
// the database.  The mined height and position are absent for transactions
// that have been created or decrypted but not yet observed in a scanned
// block, and become absent again when a rewind unmines the transaction.
type txRecord struct {
	hash    chainhash.Hash
	height  fn.Option[int32]
	txIndex fn.Option[uint32]
	created fn.Option[time.Time]
	expiry  fn.Option[int32]
	raw     []byte
}

// noteRecord is an in-memory representation of a received note record saved
// in the database.
type noteRecord struct {
	txID        TxRef
	outputIndex uint32
	account     uint32
	diversifier sapling.Diversifier
	value       zec.Amount
	rcm         [32]byte
	nullifier   fn.Option[sapling.Nullifier]
	isChange    fn.Option[bool]
	memo        fn.Option[sapling.Memo]
	spentBy     fn.Option[TxRef]
}

// sentNoteRecord is an in-memory representation of a sent note record saved
// in the database.
type sentNoteRecord struct {
	txID        TxRef
	outputIndex uint32
	account     uint32
	to          sapling.PaymentAddress
	value       zec.Amount
	memo        fn.Option[sapling.Memo]
}

// ReceivedNote describes a note decrypted to one of the wallet's accounts,
// to be recorded by PutReceivedNote.  The Nullifier, IsChange and Memo
// fields are optional: a note found while scanning compact blocks carries a
// nullifier but no memo, while one recovered by trial-decrypting a full
// transaction carries a memo but no nullifier.  Absent optional fields never
// overwrite previously recorded values.
type ReceivedNote struct {
	Tx          TxRef
	OutputIndex uint32
	Account     uint32
	Diversifier sapling.Diversifier
	Value       zec.Amount
	Rcm         [32]byte
	Nullifier   fn.Option[sapling.Nullifier]
	IsChange    fn.Option[bool]
	Memo        fn.Option[sapling.Memo]
}

// SentNote describes an output created by one of the wallet's own
// transactions, to be recorded by PutSentNote.
type SentNote struct {
	Tx          TxRef
	OutputIndex uint32
	Account     uint32
	To          sapling.PaymentAddress
	Value       zec.Amount
	Memo        fn.Option[sapling.Memo]
}

// Store implements a transaction and note store atop walletdb.  Operations
// do not begin database transactions themselves; the caller supplies the
// namespace bucket of an open transaction, which allows multiple store
// operations and operations of other stores to commit or roll back together.
type Store struct {
	params *netparams.Params
}

// Create creates a new persistent store in the passed database namespace.
// ErrAlreadyExists is returned if the namespace is not empty.
func Create(ns walletdb.ReadWriteBucket) error {
	return createStore(ns)
}

// Open opens the store from the passed database namespace.  ErrNoExists is
// returned if a store has not been created there yet.
func Open(ns walletdb.ReadBucket, params *netparams.Params) (*Store, error) {
	if err := openStore(ns); err != nil {
		return nil, err
	}
	return &Store{params: params}, nil
}

// InsertBlock records a scanned block along with the state of the note
// commitment tree as of the end of that block.  Recording a height twice is
// an error; a reorg must rewind the store before the replacement block is
// scanned.
func (s *Store) InsertBlock(ns walletdb.ReadWriteBucket, block *BlockMeta,
	tree *sapling.CommitmentTree) error {

	// Block keys must sort by height, which the big endian encoding only
	// provides for non-negative values.
	if block.Height < 0 {
		str := fmt.Sprintf("block height %d is negative", block.Height)
		return storeError(ErrInput, str, nil)
	}

	k, v := existsRawBlockRecord(ns, block.Height)
	if v != nil {
		str := fmt.Sprintf("block height %d already recorded",
			block.Height)
		return storeError(ErrAlreadyExists, str, nil)
	}

	v, err := valueBlockRecord(block, tree)
	if err != nil {
		return err
	}
	return putRawBlockRecord(ns, k, v)
}

// PutTxMeta records that a transaction was observed mined in a block,
// creating the transaction record if needed.  The mined height and the
// position of the transaction within its block are replaced on conflict, so
// re-scanning a reorganized chain updates the earlier incidence.
func (s *Store) PutTxMeta(ns walletdb.ReadWriteBucket, txHash *chainhash.Hash,
	txIndex uint32, height int32) (TxRef, error) {

	rec, ref, err := fetchOrCreateTxRecord(ns, txHash)
	if err != nil {
		return 0, err
	}

	rec.height = fn.Some(height)
	rec.txIndex = fn.Some(txIndex)
	if err := putTxRecord(ns, ref, rec); err != nil {
		return 0, err
	}
	return ref, nil
}

// PutTxData records the serialized transaction along with its expiry height
// and creation time, creating the transaction record if needed.  The raw
// transaction and expiry are replaced on conflict; the mined height, if any,
// is left untouched.
func (s *Store) PutTxData(ns walletdb.ReadWriteBucket, txHash *chainhash.Hash,
	raw []byte, expiry int32, created time.Time) (TxRef, error) {

	if len(raw) == 0 {
		str := fmt.Sprintf("no serialized transaction for %v", txHash)
		return 0, storeError(ErrInput, str, nil)
	}

	rec, ref, err := fetchOrCreateTxRecord(ns, txHash)
	if err != nil {
		return 0, err
	}

	rec.raw = raw
	rec.expiry = fn.Some(expiry)
	rec.created = fn.Some(created)
	if err := putTxRecord(ns, ref, rec); err != nil {
		return 0, err
	}
	return ref, nil
}

// fetchOrCreateTxRecord returns the existing transaction record for the hash
// or, if the store has none, assigns a reference and returns an empty record
// with the index entry already written.
func fetchOrCreateTxRecord(ns walletdb.ReadWriteBucket,
	txHash *chainhash.Hash) (*txRecord, TxRef, error) {

	if v := existsTxIndex(ns, txHash); v != nil {
		rawRef, err := readRawRef(v)
		if err != nil {
			return nil, 0, err
		}
		ref := TxRef(rawRef)
		rec, err := fetchTxRecord(ns, ref)
		if err != nil {
			return nil, 0, err
		}
		return rec, ref, nil
	}

	ref, err := newTxRef(ns)
	if err != nil {
		return nil, 0, err
	}
	if err := putTxIndex(ns, txHash, ref); err != nil {
		return nil, 0, err
	}

	rec := &txRecord{hash: *txHash}
	return rec, ref, nil
}

// PutReceivedNote records a note received by one of the wallet's accounts,
// updating the existing record if the same output has been recorded before.
// On conflict the account, diversifier, value and commitment randomness are
// replaced, the optional fields are merged, and the spent mark is preserved.
func (s *Store) PutReceivedNote(ns walletdb.ReadWriteBucket,
	note *ReceivedNote) (NoteRef, error) {

	if !zec.ValidMoney(note.Value) {
		str := fmt.Sprintf("received note value %d out of range",
			note.Value)
		return 0, storeError(ErrInput, str, nil)
	}
	if existsRawTxRecord(ns, note.Tx) == nil {
		str := fmt.Sprintf("received note references unknown "+
			"transaction %d", note.Tx)
		return 0, storeError(ErrTxNotFound, str, nil)
	}

	var (
		ref NoteRef
		rec *noteRecord
	)
	if v := existsNoteIndex(ns, note.Tx, note.OutputIndex); v != nil {
		rawRef, err := readRawRef(v)
		if err != nil {
			return 0, err
		}
		ref = NoteRef(rawRef)
		rec, err = fetchNoteRecord(ns, ref)
		if err != nil {
			return 0, err
		}

		// A rescan may learn a nullifier that the initial decryption
		// could not produce.  Replace the index entry when it changes.
		if note.Nullifier.IsSome() {
			oldNf := rec.nullifier
			newNf := note.Nullifier.UnwrapOr(sapling.Nullifier{})
			if oldNf.IsSome() {
				old := oldNf.UnwrapOr(sapling.Nullifier{})
				if old != newNf {
					err := deleteNullifierIndex(ns, &old)
					if err != nil {
						return 0, err
					}
				}
			}
			if err := putNullifierIndex(ns, &newNf, ref); err != nil {
				return 0, err
			}
			rec.nullifier = note.Nullifier
		}
		if note.IsChange.IsSome() {
			rec.isChange = note.IsChange
		}
		if note.Memo.IsSome() {
			rec.memo = note.Memo
		}
	} else {
		var err error
		ref, err = newNoteRef(ns)
		if err != nil {
			return 0, err
		}
		err = putNoteIndex(ns, note.Tx, note.OutputIndex, ref)
		if err != nil {
			return 0, err
		}
		if note.Nullifier.IsSome() {
			nf := note.Nullifier.UnwrapOr(sapling.Nullifier{})
			if err := putNullifierIndex(ns, &nf, ref); err != nil {
				return 0, err
			}
		}
		rec = &noteRecord{
			nullifier: note.Nullifier,
			isChange:  note.IsChange,
			memo:      note.Memo,
			spentBy:   fn.None[TxRef](),
		}
	}

	rec.txID = note.Tx
	rec.outputIndex = note.OutputIndex
	rec.account = note.Account
	rec.diversifier = note.Diversifier
	rec.value = note.Value
	rec.rcm = note.Rcm

	if err := putNoteRecord(ns, ref, rec); err != nil {
		return 0, err
	}
	return ref, nil
}

// InsertWitness records the incremental witness of a note as of the given
// scanned block height.  The note must already be recorded.
func (s *Store) InsertWitness(ns walletdb.ReadWriteBucket, note NoteRef,
	height int32, witness *sapling.IncrementalWitness) error {

	if existsRawNoteRecord(ns, note) == nil {
		str := fmt.Sprintf("witness references unknown note %d", note)
		return storeError(ErrNoteNotFound, str, nil)
	}

	v, err := valueWitness(witness)
	if err != nil {
		return err
	}
	return putRawWitness(ns, keyWitness(note, height), v)
}

// MarkSpent marks the note carrying the passed nullifier as spent by the
// referenced transaction.  Nullifiers that do not belong to the wallet are
// ignored, so every spend revealed by the chain can be fed through without
// filtering.  The call is idempotent: a note that is already marked spent is
// left untouched, keeping the first recorded spender.
func (s *Store) MarkSpent(ns walletdb.ReadWriteBucket, nf *sapling.Nullifier,
	spender TxRef) error {

	v := existsNullifierIndex(ns, nf)
	if v == nil {
		return nil
	}
	rawRef, err := readRawRef(v)
	if err != nil {
		return err
	}
	ref := NoteRef(rawRef)

	rec, err := fetchNoteRecord(ns, ref)
	if err != nil {
		return err
	}
	if rec.spentBy.IsSome() {
		return nil
	}

	if existsRawTxRecord(ns, spender) == nil {
		str := fmt.Sprintf("spend references unknown transaction %d",
			spender)
		return storeError(ErrTxNotFound, str, nil)
	}

	rec.spentBy = fn.Some(spender)
	return putNoteRecord(ns, ref, rec)
}

// PutSentNote records an output created by one of the wallet's own
// transactions, updating the existing record if the same output has been
// recorded before.
func (s *Store) PutSentNote(ns walletdb.ReadWriteBucket,
	note *SentNote) (SentNoteRef, error) {

	if !zec.ValidMoney(note.Value) {
		str := fmt.Sprintf("sent note value %d out of range", note.Value)
		return 0, storeError(ErrInput, str, nil)
	}
	if existsRawTxRecord(ns, note.Tx) == nil {
		str := fmt.Sprintf("sent note references unknown transaction "+
			"%d", note.Tx)
		return 0, storeError(ErrTxNotFound, str, nil)
	}

	var (
		ref SentNoteRef
		rec *sentNoteRecord
	)
	if v := existsSentIndex(ns, note.Tx, note.OutputIndex); v != nil {
		rawRef, err := readRawRef(v)
		if err != nil {
			return 0, err
		}
		ref = SentNoteRef(rawRef)
		rec, err = fetchSentNoteRecord(ns, ref)
		if err != nil {
			return 0, err
		}
		if note.Memo.IsSome() {
			rec.memo = note.Memo
		}
	} else {
		var err error
		ref, err = newSentNoteRef(ns)
		if err != nil {
			return 0, err
		}
		err = putSentIndex(ns, note.Tx, note.OutputIndex, ref)
		if err != nil {
			return 0, err
		}
		rec = &sentNoteRecord{memo: note.Memo}
	}

	rec.txID = note.Tx
	rec.outputIndex = note.OutputIndex
	rec.account = note.Account
	rec.to = note.To
	rec.value = note.Value

	if err := putSentNoteRecord(ns, ref, rec); err != nil {
		return 0, err
	}
	return ref, nil
}

// ReleaseExpiredNotes clears the spent mark of any note whose spending
// transaction never made it into a block and can no longer be mined below
// the passed height, returning those notes to the spendable pool.  An expiry
// height of zero means the transaction never expires.
func (s *Store) ReleaseExpiredNotes(ns walletdb.ReadWriteBucket, height int32) error {
	type update struct {
		ref NoteRef
		rec noteRecord
	}
	var updates []update

	it := makeNoteIterator(ns)
	for it.next() {
		if it.elem.spentBy.IsNone() {
			continue
		}
		spender, err := fetchTxRecord(ns, it.elem.spentBy.UnwrapOr(0))
		if err != nil {
			return err
		}
		if spender.height.IsSome() {
			continue
		}
		expiry := spender.expiry.UnwrapOr(0)
		if expiry <= 0 || expiry >= height {
			continue
		}

		rec := it.elem
		rec.spentBy = fn.None[TxRef]()
		updates = append(updates, update{ref: it.ref, rec: rec})
	}
	if it.err != nil {
		return it.err
	}

	for _, u := range updates {
		if err := putNoteRecord(ns, u.ref, &u.rec); err != nil {
			return err
		}
	}
	if len(updates) > 0 {
		log.Debugf("Released %d note(s) locked by expired "+
			"transactions below height %d", len(updates), height)
	}
	return nil
}

// PruneWitnesses removes all witnesses recorded for blocks strictly below
// the passed height.  Spends anchor at recent blocks only, so witnesses
// older than the deepest supported anchor serve no further purpose.
func (s *Store) PruneWitnesses(ns walletdb.ReadWriteBucket, height int32) error {
	b := ns.NestedReadWriteBucket(bucketWitnesses)

	var stale [][]byte
	c := b.ReadCursor()
	for ck, _ := c.First(); ck != nil; ck, _ = c.Next() {
		_, witnessHeight, err := readRawWitnessKey(ck)
		if err != nil {
			return err
		}
		if witnessHeight < height {
			stale = append(stale, append([]byte(nil), ck...))
		}
	}

	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			str := fmt.Sprintf("%s: delete failed", bucketWitnesses)
			return storeError(ErrDatabase, str, err)
		}
	}
	if len(stale) > 0 {
		log.Debugf("Pruned %d witness(es) below height %d", len(stale),
			height)
	}
	return nil
}

// Rewind drops all scanned state above the passed height so that the blocks
// above it can be scanned again after a chain reorganization.  Witnesses
// recorded above the height are deleted, transactions mined above it are
// unmined (their records and notes are kept), and the block records
// themselves are removed.  Rewinding to or above the last scanned height
// does nothing; with no blocks scanned the store is already at the
// pre-activation empty state.
func (s *Store) Rewind(ns walletdb.ReadWriteBucket, height int32) error {
	lastScanned := s.params.SaplingActivationHeight - 1
	it := makeReverseBlockIterator(ns)
	if it.prev() {
		lastScanned = it.elem.Height
	}
	if it.err != nil {
		return it.err
	}
	if height >= lastScanned {
		return nil
	}

	log.Infof("Rewinding scanned chain state to height %d (from %d)",
		height, lastScanned)

	// Witnesses above the rewind point describe tree states that no
	// longer exist.
	wb := ns.NestedReadWriteBucket(bucketWitnesses)
	var staleWitnesses [][]byte
	wc := wb.ReadCursor()
	for ck, _ := wc.First(); ck != nil; ck, _ = wc.Next() {
		_, witnessHeight, err := readRawWitnessKey(ck)
		if err != nil {
			return err
		}
		if witnessHeight > height {
			staleWitnesses = append(staleWitnesses,
				append([]byte(nil), ck...))
		}
	}
	for _, k := range staleWitnesses {
		if err := wb.Delete(k); err != nil {
			str := fmt.Sprintf("%s: delete failed", bucketWitnesses)
			return storeError(ErrDatabase, str, err)
		}
	}

	// Un-mine transactions observed above the rewind point.  The records
	// and their notes are kept; re-scanning the replacement chain will
	// either mine them again or leave them to expire.
	type update struct {
		ref TxRef
		rec txRecord
	}
	var unmined []update
	txIt := makeTxIterator(ns)
	for txIt.next() {
		if txIt.elem.height.IsNone() ||
			txIt.elem.height.UnwrapOr(0) <= height {

			continue
		}
		rec := txIt.elem
		rec.height = fn.None[int32]()
		rec.txIndex = fn.None[uint32]()
		unmined = append(unmined, update{ref: txIt.ref, rec: rec})
	}
	if txIt.err != nil {
		return txIt.err
	}
	for _, u := range unmined {
		if err := putTxRecord(ns, u.ref, &u.rec); err != nil {
			return err
		}
	}

	// Now that nothing depends on them, delete the scanned blocks.  The
	// seek height must not go negative, as negative heights do not sort
	// below zero in the big endian key encoding.
	from := height + 1
	if from < 0 {
		from = 0
	}
	var staleBlocks [][]byte
	blockIt := makeBlockIterator(ns, from)
	for blockIt.next() {
		staleBlocks = append(staleBlocks,
			append([]byte(nil), blockIt.ck...))
	}
	if blockIt.err != nil {
		return blockIt.err
	}
	for _, k := range staleBlocks {
		if err := deleteRawBlockRecord(ns, k); err != nil {
			return err
		}
	}

	return nil
}
