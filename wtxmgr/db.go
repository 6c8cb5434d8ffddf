// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wtxmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/sapling"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/zec"
)

// Naming
//
// The following variables are commonly used in this file and given
// reserved names:
//
//   ns: The namespace bucket for this package
//   b:  The primary bucket being operated on
//   k:  A single bucket key
//   v:  A single bucket value
//   c:  A bucket cursor
//   ck: The current cursor key
//   cv: The current cursor value
//
// Functions use the naming scheme `Op[Raw]Type[Field]`, which performs the
// operation `Op` on the type `Type`, optionally dealing with raw keys and
// values if `Raw` is used.  Fetch and extract operations may only need to read
// some portion of a key or value, in which case `Field` describes the component
// being returned.  The following operations are used:
//
//   key:     return a db key for some data
//   value:   return a db value for some data
//   put:     insert or replace a value into a bucket
//   fetch:   read and return a value
//   read:    read a value into an out parameter
//   exists:  return the raw (nil if not found) value for some data
//   delete:  remove a k/v pair
//
// Other operations which are specific to the types being operated on
// should be explained in a comment.

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

// Database versions.  Versions start at 1 and increment for each database
// change.
const (
	// LatestVersion is the most recent store version.
	LatestVersion = 1
)

// This package makes assumptions that the width of a chainhash.Hash is always
// 32 bytes.  If this is ever changed, offsets have to be rewritten.  Use a
// compile-time assertion that this assumption holds true.
var _ [32]byte = chainhash.Hash{}

// Bucket names.  Transaction, received note and sent note records are keyed
// by store-assigned sequence numbers so that iteration follows insertion
// order; the index buckets map the natural keys back to those references.
var (
	bucketBlocks     = []byte("b")
	bucketTxRecords  = []byte("t")
	bucketTxIndex    = []byte("x")
	bucketNotes      = []byte("n")
	bucketNoteIndex  = []byte("i")
	bucketNullifiers = []byte("f")
	bucketWitnesses  = []byte("w")
	bucketSentNotes  = []byte("s")
	bucketSentIndex  = []byte("sx")
)

// Root (namespace) bucket keys.
var (
	rootCreateDate = []byte("date")
	rootVersion    = []byte("vers")
)

// Transaction record value TLV types.
var (
	typeTxHash    tlv.Type = 1
	typeTxHeight  tlv.Type = 2
	typeTxIndex   tlv.Type = 3
	typeTxCreated tlv.Type = 4
	typeTxExpiry  tlv.Type = 5
	typeTxRaw     tlv.Type = 6
)

// Received note record value TLV types.
var (
	typeNoteTx          tlv.Type = 1
	typeNoteOutputIndex tlv.Type = 2
	typeNoteAccount     tlv.Type = 3
	typeNoteDiversifier tlv.Type = 4
	typeNoteValue       tlv.Type = 5
	typeNoteRcm         tlv.Type = 6
	typeNoteNullifier   tlv.Type = 7
	typeNoteIsChange    tlv.Type = 8
	typeNoteMemo        tlv.Type = 9
	typeNoteSpentBy     tlv.Type = 10
)

// Sent note record value TLV types.
var (
	typeSentTx          tlv.Type = 1
	typeSentOutputIndex tlv.Type = 2
	typeSentAccount     tlv.Type = 3
	typeSentTo          tlv.Type = 4
	typeSentValue       tlv.Type = 5
	typeSentMemo        tlv.Type = 6
)

// The root bucket's version k/v pair records the current database version for
// upgrade detection.

func fetchVersion(ns walletdb.ReadBucket) (uint32, error) {
	v := ns.Get(rootVersion)
	if v == nil {
		str := "required version does not exist"
		return 0, storeError(ErrNoExists, str, nil)
	}
	if len(v) != 4 {
		str := "invalid version"
		return 0, storeError(ErrData, str, nil)
	}
	return byteOrder.Uint32(v), nil
}

func putVersion(ns walletdb.ReadWriteBucket, version uint32) error {
	v := make([]byte, 4)
	byteOrder.PutUint32(v, version)
	err := ns.Put(rootVersion, v)
	if err != nil {
		str := "failed to store version"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// Several data structures are given canonical serialization formats as either
// keys or values.  These common formats allow keys and values to be reused
// across different buckets.
//
// References assigned from bucket sequences are serialized as 8 byte
// big-endian unsigned integers.  Block heights are serialized as 4 byte
// big-endian unsigned integers; the store only records scanned blocks, which
// are always at non-negative heights.

func keyRef(ref uint64) []byte {
	k := make([]byte, 8)
	byteOrder.PutUint64(k, ref)
	return k
}

func keyHeight(height int32) []byte {
	k := make([]byte, 4)
	byteOrder.PutUint32(k, uint32(height))
	return k
}

// Details regarding scanned blocks are saved as k/v pairs in the blocks
// bucket.  Block records are keyed by their height.  The value is serialized
// as such:
//
//   [0:32]  Hash (32 bytes)
//   [32:40] Unix time (8 bytes)
//   [40:]   Serialized note commitment tree (varies)

func valueBlockRecord(block *BlockMeta, tree *sapling.CommitmentTree) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 96))
	buf.Write(block.Hash[:])

	var timeBytes [8]byte
	byteOrder.PutUint64(timeBytes[:], uint64(block.Time.Unix()))
	buf.Write(timeBytes[:])

	if err := tree.Serialize(buf); err != nil {
		str := fmt.Sprintf("unable to serialize commitment tree for "+
			"block %d", block.Height)
		return nil, storeError(ErrInput, str, err)
	}
	return buf.Bytes(), nil
}

func putRawBlockRecord(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketBlocks).Put(k, v)
	if err != nil {
		str := "failed to store block"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsRawBlockRecord(ns walletdb.ReadBucket, height int32) (k, v []byte) {
	k = keyHeight(height)
	v = ns.NestedReadBucket(bucketBlocks).Get(k)
	return
}

func readRawBlockRecord(k, v []byte, block *blockRecord) error {
	if len(k) < 4 {
		str := fmt.Sprintf("%s: short key (expected %d bytes, read %d)",
			bucketBlocks, 4, len(k))
		return storeError(ErrData, str, nil)
	}
	if len(v) < 40 {
		str := fmt.Sprintf("%s: short read (expected %d bytes, read %d)",
			bucketBlocks, 40, len(v))
		return storeError(ErrData, str, nil)
	}

	block.Height = int32(byteOrder.Uint32(k))
	copy(block.Hash[:], v)
	block.Time = time.Unix(int64(byteOrder.Uint64(v[32:40])), 0)

	tree := sapling.NewCommitmentTree()
	if err := tree.Deserialize(bytes.NewReader(v[40:])); err != nil {
		str := fmt.Sprintf("%s: malformed commitment tree for height "+
			"%d", bucketBlocks, block.Height)
		return storeError(ErrData, str, err)
	}
	block.tree = tree

	return nil
}

func deleteRawBlockRecord(ns walletdb.ReadWriteBucket, k []byte) error {
	err := ns.NestedReadWriteBucket(bucketBlocks).Delete(k)
	if err != nil {
		str := "failed to delete block record"
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// blockIterator allows for in-order iteration of all block records.
type blockIterator struct {
	c    walletdb.ReadCursor
	seek []byte
	ck   []byte
	cv   []byte
	elem blockRecord
	err  error
}

func makeBlockIterator(ns walletdb.ReadBucket, height int32) blockIterator {
	c := ns.NestedReadBucket(bucketBlocks).ReadCursor()
	return blockIterator{c: c, seek: keyHeight(height)}
}

// makeReverseBlockIterator positions the cursor at the last block record.
// Use this with blockIterator.prev.
func makeReverseBlockIterator(ns walletdb.ReadBucket) blockIterator {
	c := ns.NestedReadBucket(bucketBlocks).ReadCursor()
	return blockIterator{c: c}
}

func (it *blockIterator) next() bool {
	if it.c == nil {
		return false
	}

	if it.ck == nil {
		it.ck, it.cv = it.c.Seek(it.seek)
	} else {
		it.ck, it.cv = it.c.Next()
	}
	if it.ck == nil {
		it.c = nil
		return false
	}

	err := readRawBlockRecord(it.ck, it.cv, &it.elem)
	if err != nil {
		it.c = nil
		it.err = err
		return false
	}

	return true
}

func (it *blockIterator) prev() bool {
	if it.c == nil {
		return false
	}

	if it.ck == nil {
		it.ck, it.cv = it.c.Last()
	} else {
		it.ck, it.cv = it.c.Prev()
	}
	if it.ck == nil {
		it.c = nil
		return false
	}

	err := readRawBlockRecord(it.ck, it.cv, &it.elem)
	if err != nil {
		it.c = nil
		it.err = err
		return false
	}

	return true
}

// Transaction records are keyed by a store-assigned reference so that notes
// can point at them compactly.  The transaction index bucket maps the
// transaction hash to the assigned reference:
//
//   bucketTxRecords: reference (8 bytes) -> TLV record
//   bucketTxIndex:   transaction hash (32 bytes) -> reference (8 bytes)
//
// The TLV record stores the transaction hash, and optionally the mined block
// height, the index of the transaction within that block, the time the
// transaction was created, the expiry height, and the raw serialized
// transaction.  Mined height and index are both present or both absent; they
// are removed again when a rewind unmines the transaction.

func valueTxRecord(rec *txRecord) ([]byte, error) {
	tlvRecords := []tlv.Record{
		tlv.MakePrimitiveRecord(typeTxHash, (*[32]byte)(&rec.hash)),
	}

	var (
		height  uint32
		txIndex uint32
		created uint64
		expiry  uint32
	)
	if rec.height.IsSome() {
		height = uint32(rec.height.UnwrapOr(0))
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeTxHeight, &height))
	}
	if rec.txIndex.IsSome() {
		txIndex = rec.txIndex.UnwrapOr(0)
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeTxIndex, &txIndex))
	}
	if rec.created.IsSome() {
		created = uint64(rec.created.UnwrapOr(time.Time{}).Unix())
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeTxCreated, &created))
	}
	if rec.expiry.IsSome() {
		expiry = uint32(rec.expiry.UnwrapOr(0))
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeTxExpiry, &expiry))
	}
	if len(rec.raw) > 0 {
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeTxRaw, &rec.raw))
	}

	tlvStream, err := tlv.NewStream(tlvRecords...)
	if err != nil {
		return nil, storeError(ErrData, "failed to create tx stream", err)
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, storeError(ErrData, "failed to encode tx record", err)
	}
	return buf.Bytes(), nil
}

func readRawTxRecord(v []byte, rec *txRecord) error {
	var (
		height  uint32
		txIndex uint32
		created uint64
		expiry  uint32
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeTxHash, (*[32]byte)(&rec.hash)),
		tlv.MakePrimitiveRecord(typeTxHeight, &height),
		tlv.MakePrimitiveRecord(typeTxIndex, &txIndex),
		tlv.MakePrimitiveRecord(typeTxCreated, &created),
		tlv.MakePrimitiveRecord(typeTxExpiry, &expiry),
		tlv.MakePrimitiveRecord(typeTxRaw, &rec.raw),
	)
	if err != nil {
		return storeError(ErrData, "failed to create tx stream", err)
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		str := fmt.Sprintf("%s: malformed tx record", bucketTxRecords)
		return storeError(ErrData, str, err)
	}
	if t, ok := parsedTypes[typeTxHash]; !ok || t != nil {
		str := fmt.Sprintf("%s: tx record missing hash", bucketTxRecords)
		return storeError(ErrData, str, nil)
	}

	rec.height = fn.None[int32]()
	if t, ok := parsedTypes[typeTxHeight]; ok && t == nil {
		rec.height = fn.Some(int32(height))
	}
	rec.txIndex = fn.None[uint32]()
	if t, ok := parsedTypes[typeTxIndex]; ok && t == nil {
		rec.txIndex = fn.Some(txIndex)
	}
	rec.created = fn.None[time.Time]()
	if t, ok := parsedTypes[typeTxCreated]; ok && t == nil {
		rec.created = fn.Some(time.Unix(int64(created), 0))
	}
	rec.expiry = fn.None[int32]()
	if t, ok := parsedTypes[typeTxExpiry]; ok && t == nil {
		rec.expiry = fn.Some(int32(expiry))
	}
	if t, ok := parsedTypes[typeTxRaw]; !ok || t != nil {
		rec.raw = nil
	}

	return nil
}

func putRawTxRecord(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketTxRecords).Put(k, v)
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketTxRecords)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func putTxRecord(ns walletdb.ReadWriteBucket, ref TxRef, rec *txRecord) error {
	v, err := valueTxRecord(rec)
	if err != nil {
		return err
	}
	return putRawTxRecord(ns, keyRef(uint64(ref)), v)
}

func existsRawTxRecord(ns walletdb.ReadBucket, ref TxRef) []byte {
	return ns.NestedReadBucket(bucketTxRecords).Get(keyRef(uint64(ref)))
}

func fetchTxRecord(ns walletdb.ReadBucket, ref TxRef) (*txRecord, error) {
	v := existsRawTxRecord(ns, ref)
	if v == nil {
		str := fmt.Sprintf("no transaction record with reference %d", ref)
		return nil, storeError(ErrTxNotFound, str, nil)
	}
	rec := new(txRecord)
	if err := readRawTxRecord(v, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// newTxRef assigns the next free transaction reference.
func newTxRef(ns walletdb.ReadWriteBucket) (TxRef, error) {
	seq, err := ns.NestedReadWriteBucket(bucketTxRecords).NextSequence()
	if err != nil {
		str := "failed to assign transaction reference"
		return 0, storeError(ErrDatabase, str, err)
	}
	return TxRef(seq), nil
}

func putTxIndex(ns walletdb.ReadWriteBucket, txHash *chainhash.Hash, ref TxRef) error {
	err := ns.NestedReadWriteBucket(bucketTxIndex).Put(txHash[:],
		keyRef(uint64(ref)))
	if err != nil {
		str := fmt.Sprintf("%s: put failed for %v", bucketTxIndex, txHash)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsTxIndex(ns walletdb.ReadBucket, txHash *chainhash.Hash) []byte {
	return ns.NestedReadBucket(bucketTxIndex).Get(txHash[:])
}

func readRawRef(v []byte) (uint64, error) {
	if len(v) != 8 {
		str := fmt.Sprintf("short reference (expected 8 bytes, read %d)",
			len(v))
		return 0, storeError(ErrData, str, nil)
	}
	return byteOrder.Uint64(v), nil
}

// txIterator allows for in-order iteration of all transaction records.
type txIterator struct {
	c    walletdb.ReadCursor
	ck   []byte
	cv   []byte
	ref  TxRef
	elem txRecord
	err  error
}

func makeTxIterator(ns walletdb.ReadBucket) txIterator {
	c := ns.NestedReadBucket(bucketTxRecords).ReadCursor()
	return txIterator{c: c}
}

func (it *txIterator) next() bool {
	if it.c == nil {
		return false
	}

	if it.ck == nil {
		it.ck, it.cv = it.c.First()
	} else {
		it.ck, it.cv = it.c.Next()
	}
	if it.ck == nil {
		it.c = nil
		return false
	}

	ref, err := readRawRef(it.ck)
	if err != nil {
		it.c = nil
		it.err = err
		return false
	}
	it.ref = TxRef(ref)

	err = readRawTxRecord(it.cv, &it.elem)
	if err != nil {
		it.c = nil
		it.err = err
		return false
	}

	return true
}

// Received note records are keyed by a store-assigned reference.  The note
// index bucket maps the (transaction, output index) pair, which uniquely
// locates the note on chain, back to that reference, and the nullifier
// bucket maps a note's nullifier to the reference for spend detection:
//
//   bucketNotes:      reference (8 bytes) -> TLV record
//   bucketNoteIndex:  tx reference (8 bytes) || output index (4 bytes) -> reference
//   bucketNullifiers: nullifier (32 bytes) -> reference

func keyNoteIndex(tx TxRef, outputIndex uint32) []byte {
	k := make([]byte, 12)
	byteOrder.PutUint64(k, uint64(tx))
	byteOrder.PutUint32(k[8:12], outputIndex)
	return k
}

func valueNoteRecord(rec *noteRecord) ([]byte, error) {
	var (
		tx          = uint64(rec.txID)
		diversifier = rec.diversifier[:]
		value       = uint64(rec.value)
	)
	tlvRecords := []tlv.Record{
		tlv.MakePrimitiveRecord(typeNoteTx, &tx),
		tlv.MakePrimitiveRecord(typeNoteOutputIndex, &rec.outputIndex),
		tlv.MakePrimitiveRecord(typeNoteAccount, &rec.account),
		tlv.MakePrimitiveRecord(typeNoteDiversifier, &diversifier),
		tlv.MakePrimitiveRecord(typeNoteValue, &value),
		tlv.MakePrimitiveRecord(typeNoteRcm, &rec.rcm),
	}

	var (
		nullifier sapling.Nullifier
		isChange  uint8
		memo      []byte
		spentBy   uint64
	)
	if rec.nullifier.IsSome() {
		nullifier = rec.nullifier.UnwrapOr(sapling.Nullifier{})
		tlvRecords = append(tlvRecords, tlv.MakePrimitiveRecord(
			typeNoteNullifier, (*[32]byte)(&nullifier)))
	}
	if rec.isChange.IsSome() {
		if rec.isChange.UnwrapOr(false) {
			isChange = 1
		}
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeNoteIsChange, &isChange))
	}
	if rec.memo.IsSome() {
		m := rec.memo.UnwrapOr(sapling.Memo{})
		memo = m[:]
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeNoteMemo, &memo))
	}
	if rec.spentBy.IsSome() {
		spentBy = uint64(rec.spentBy.UnwrapOr(0))
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeNoteSpentBy, &spentBy))
	}

	tlvStream, err := tlv.NewStream(tlvRecords...)
	if err != nil {
		return nil, storeError(ErrData, "failed to create note stream", err)
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, storeError(ErrData, "failed to encode note record", err)
	}
	return buf.Bytes(), nil
}

func readRawNoteRecord(v []byte, rec *noteRecord) error {
	var (
		tx          uint64
		diversifier []byte
		value       uint64
		nullifier   [32]byte
		isChange    uint8
		memo        []byte
		spentBy     uint64
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeNoteTx, &tx),
		tlv.MakePrimitiveRecord(typeNoteOutputIndex, &rec.outputIndex),
		tlv.MakePrimitiveRecord(typeNoteAccount, &rec.account),
		tlv.MakePrimitiveRecord(typeNoteDiversifier, &diversifier),
		tlv.MakePrimitiveRecord(typeNoteValue, &value),
		tlv.MakePrimitiveRecord(typeNoteRcm, &rec.rcm),
		tlv.MakePrimitiveRecord(typeNoteNullifier, &nullifier),
		tlv.MakePrimitiveRecord(typeNoteIsChange, &isChange),
		tlv.MakePrimitiveRecord(typeNoteMemo, &memo),
		tlv.MakePrimitiveRecord(typeNoteSpentBy, &spentBy),
	)
	if err != nil {
		return storeError(ErrData, "failed to create note stream", err)
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		str := fmt.Sprintf("%s: malformed note record", bucketNotes)
		return storeError(ErrData, str, err)
	}
	for _, required := range []tlv.Type{
		typeNoteTx, typeNoteOutputIndex, typeNoteAccount,
		typeNoteDiversifier, typeNoteValue, typeNoteRcm,
	} {
		if t, ok := parsedTypes[required]; !ok || t != nil {
			str := fmt.Sprintf("%s: note record missing required "+
				"field %d", bucketNotes, required)
			return storeError(ErrData, str, nil)
		}
	}
	if len(diversifier) != sapling.DiversifierSize {
		str := fmt.Sprintf("%s: diversifier must be %d bytes, got %d",
			bucketNotes, sapling.DiversifierSize, len(diversifier))
		return storeError(ErrData, str, nil)
	}

	rec.txID = TxRef(tx)
	copy(rec.diversifier[:], diversifier)
	rec.value = zec.Amount(value)

	rec.nullifier = fn.None[sapling.Nullifier]()
	if t, ok := parsedTypes[typeNoteNullifier]; ok && t == nil {
		rec.nullifier = fn.Some(sapling.Nullifier(nullifier))
	}
	rec.isChange = fn.None[bool]()
	if t, ok := parsedTypes[typeNoteIsChange]; ok && t == nil {
		rec.isChange = fn.Some(isChange != 0)
	}
	rec.memo = fn.None[sapling.Memo]()
	if t, ok := parsedTypes[typeNoteMemo]; ok && t == nil {
		if len(memo) != sapling.MemoSize {
			str := fmt.Sprintf("%s: memo must be %d bytes, got %d",
				bucketNotes, sapling.MemoSize, len(memo))
			return storeError(ErrData, str, nil)
		}
		var m sapling.Memo
		copy(m[:], memo)
		rec.memo = fn.Some(m)
	}
	rec.spentBy = fn.None[TxRef]()
	if t, ok := parsedTypes[typeNoteSpentBy]; ok && t == nil {
		rec.spentBy = fn.Some(TxRef(spentBy))
	}

	return nil
}

func putNoteRecord(ns walletdb.ReadWriteBucket, ref NoteRef, rec *noteRecord) error {
	v, err := valueNoteRecord(rec)
	if err != nil {
		return err
	}
	err = ns.NestedReadWriteBucket(bucketNotes).Put(keyRef(uint64(ref)), v)
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketNotes)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsRawNoteRecord(ns walletdb.ReadBucket, ref NoteRef) []byte {
	return ns.NestedReadBucket(bucketNotes).Get(keyRef(uint64(ref)))
}

func fetchNoteRecord(ns walletdb.ReadBucket, ref NoteRef) (*noteRecord, error) {
	v := existsRawNoteRecord(ns, ref)
	if v == nil {
		str := fmt.Sprintf("no received note with reference %d", ref)
		return nil, storeError(ErrNoteNotFound, str, nil)
	}
	rec := new(noteRecord)
	if err := readRawNoteRecord(v, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// newNoteRef assigns the next free received note reference.
func newNoteRef(ns walletdb.ReadWriteBucket) (NoteRef, error) {
	seq, err := ns.NestedReadWriteBucket(bucketNotes).NextSequence()
	if err != nil {
		str := "failed to assign note reference"
		return 0, storeError(ErrDatabase, str, err)
	}
	return NoteRef(seq), nil
}

func putNoteIndex(ns walletdb.ReadWriteBucket, tx TxRef, outputIndex uint32, ref NoteRef) error {
	k := keyNoteIndex(tx, outputIndex)
	err := ns.NestedReadWriteBucket(bucketNoteIndex).Put(k, keyRef(uint64(ref)))
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketNoteIndex)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsNoteIndex(ns walletdb.ReadBucket, tx TxRef, outputIndex uint32) []byte {
	return ns.NestedReadBucket(bucketNoteIndex).Get(keyNoteIndex(tx, outputIndex))
}

func putNullifierIndex(ns walletdb.ReadWriteBucket, nf *sapling.Nullifier, ref NoteRef) error {
	err := ns.NestedReadWriteBucket(bucketNullifiers).Put(nf[:],
		keyRef(uint64(ref)))
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketNullifiers)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsNullifierIndex(ns walletdb.ReadBucket, nf *sapling.Nullifier) []byte {
	return ns.NestedReadBucket(bucketNullifiers).Get(nf[:])
}

func deleteNullifierIndex(ns walletdb.ReadWriteBucket, nf *sapling.Nullifier) error {
	err := ns.NestedReadWriteBucket(bucketNullifiers).Delete(nf[:])
	if err != nil {
		str := fmt.Sprintf("%s: delete failed", bucketNullifiers)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

// noteIterator allows for in-order iteration of all received note records.
type noteIterator struct {
	c    walletdb.ReadCursor
	ck   []byte
	cv   []byte
	ref  NoteRef
	elem noteRecord
	err  error
}

func makeNoteIterator(ns walletdb.ReadBucket) noteIterator {
	c := ns.NestedReadBucket(bucketNotes).ReadCursor()
	return noteIterator{c: c}
}

func (it *noteIterator) next() bool {
	if it.c == nil {
		return false
	}

	if it.ck == nil {
		it.ck, it.cv = it.c.First()
	} else {
		it.ck, it.cv = it.c.Next()
	}
	if it.ck == nil {
		it.c = nil
		return false
	}

	ref, err := readRawRef(it.ck)
	if err != nil {
		it.c = nil
		it.err = err
		return false
	}
	it.ref = NoteRef(ref)

	err = readRawNoteRecord(it.cv, &it.elem)
	if err != nil {
		it.c = nil
		it.err = err
		return false
	}

	return true
}

// Witnesses are saved per note and per scanned block so that the spend path
// of a note can be produced for any recent anchor:
//
//   bucketWitnesses: note reference (8 bytes) || height (4 bytes) -> witness
//
// The note-major ordering allows a single cursor seek to locate the newest
// witness for a note at or before some height.

func keyWitness(note NoteRef, height int32) []byte {
	k := make([]byte, 12)
	byteOrder.PutUint64(k, uint64(note))
	byteOrder.PutUint32(k[8:12], uint32(height))
	return k
}

func valueWitness(witness *sapling.IncrementalWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := witness.Serialize(&buf); err != nil {
		str := "unable to serialize witness"
		return nil, storeError(ErrInput, str, err)
	}
	return buf.Bytes(), nil
}

func putRawWitness(ns walletdb.ReadWriteBucket, k, v []byte) error {
	err := ns.NestedReadWriteBucket(bucketWitnesses).Put(k, v)
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketWitnesses)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func readRawWitness(v []byte) (*sapling.IncrementalWitness, error) {
	witness, err := sapling.DeserializeIncrementalWitness(bytes.NewReader(v))
	if err != nil {
		str := fmt.Sprintf("%s: malformed witness", bucketWitnesses)
		return nil, storeError(ErrData, str, err)
	}
	return witness, nil
}

func readRawWitnessKey(k []byte) (NoteRef, int32, error) {
	if len(k) != 12 {
		str := fmt.Sprintf("%s: short key (expected 12 bytes, read %d)",
			bucketWitnesses, len(k))
		return 0, 0, storeError(ErrData, str, nil)
	}
	note := NoteRef(byteOrder.Uint64(k))
	height := int32(byteOrder.Uint32(k[8:12]))
	return note, height, nil
}

// fetchLatestWitness returns the newest witness recorded for the note at or
// before the passed height, or nil if the note has no such witness.
func fetchLatestWitness(ns walletdb.ReadBucket, note NoteRef,
	height int32) (*sapling.IncrementalWitness, int32, error) {

	c := ns.NestedReadBucket(bucketWitnesses).ReadCursor()

	// Position the cursor just past the newest candidate key, then step
	// backward onto it.  When the seek key is past the end of the bucket
	// the cursor must instead be moved to the last k/v pair.
	seek := keyWitness(note, height)
	byteOrder.PutUint32(seek[8:12], uint32(height)+1)
	ck, cv := c.Seek(seek)
	if ck == nil {
		ck, cv = c.Last()
	} else {
		ck, cv = c.Prev()
	}
	if ck == nil || !bytes.HasPrefix(ck, keyRef(uint64(note))) {
		return nil, 0, nil
	}

	_, witnessHeight, err := readRawWitnessKey(ck)
	if err != nil {
		return nil, 0, err
	}
	witness, err := readRawWitness(cv)
	if err != nil {
		return nil, 0, err
	}
	return witness, witnessHeight, nil
}

// Sent note records are keyed by a store-assigned reference, with an index
// over the (transaction, output index) pair:
//
//   bucketSentNotes: reference (8 bytes) -> TLV record
//   bucketSentIndex: tx reference (8 bytes) || output index (4 bytes) -> reference

func valueSentNoteRecord(rec *sentNoteRecord) ([]byte, error) {
	var (
		tx    = uint64(rec.txID)
		to    = rec.to.Bytes()
		value = uint64(rec.value)
	)
	tlvRecords := []tlv.Record{
		tlv.MakePrimitiveRecord(typeSentTx, &tx),
		tlv.MakePrimitiveRecord(typeSentOutputIndex, &rec.outputIndex),
		tlv.MakePrimitiveRecord(typeSentAccount, &rec.account),
		tlv.MakePrimitiveRecord(typeSentTo, &to),
		tlv.MakePrimitiveRecord(typeSentValue, &value),
	}

	var memo []byte
	if rec.memo.IsSome() {
		m := rec.memo.UnwrapOr(sapling.Memo{})
		memo = m[:]
		tlvRecords = append(tlvRecords,
			tlv.MakePrimitiveRecord(typeSentMemo, &memo))
	}

	tlvStream, err := tlv.NewStream(tlvRecords...)
	if err != nil {
		return nil, storeError(ErrData, "failed to create sent note "+
			"stream", err)
	}

	var buf bytes.Buffer
	if err := tlvStream.Encode(&buf); err != nil {
		return nil, storeError(ErrData, "failed to encode sent note "+
			"record", err)
	}
	return buf.Bytes(), nil
}

func readRawSentNoteRecord(v []byte, rec *sentNoteRecord) error {
	var (
		tx    uint64
		to    []byte
		value uint64
		memo  []byte
	)
	tlvStream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeSentTx, &tx),
		tlv.MakePrimitiveRecord(typeSentOutputIndex, &rec.outputIndex),
		tlv.MakePrimitiveRecord(typeSentAccount, &rec.account),
		tlv.MakePrimitiveRecord(typeSentTo, &to),
		tlv.MakePrimitiveRecord(typeSentValue, &value),
		tlv.MakePrimitiveRecord(typeSentMemo, &memo),
	)
	if err != nil {
		return storeError(ErrData, "failed to create sent note stream",
			err)
	}

	parsedTypes, err := tlvStream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		str := fmt.Sprintf("%s: malformed sent note record",
			bucketSentNotes)
		return storeError(ErrData, str, err)
	}
	for _, required := range []tlv.Type{
		typeSentTx, typeSentOutputIndex, typeSentAccount, typeSentTo,
		typeSentValue,
	} {
		if t, ok := parsedTypes[required]; !ok || t != nil {
			str := fmt.Sprintf("%s: sent note record missing "+
				"required field %d", bucketSentNotes, required)
			return storeError(ErrData, str, nil)
		}
	}

	rec.txID = TxRef(tx)
	rec.value = zec.Amount(value)

	addr, err := sapling.NewPaymentAddress(to)
	if err != nil {
		str := fmt.Sprintf("%s: malformed recipient address",
			bucketSentNotes)
		return storeError(ErrData, str, err)
	}
	rec.to = addr

	rec.memo = fn.None[sapling.Memo]()
	if t, ok := parsedTypes[typeSentMemo]; ok && t == nil {
		if len(memo) != sapling.MemoSize {
			str := fmt.Sprintf("%s: memo must be %d bytes, got %d",
				bucketSentNotes, sapling.MemoSize, len(memo))
			return storeError(ErrData, str, nil)
		}
		var m sapling.Memo
		copy(m[:], memo)
		rec.memo = fn.Some(m)
	}

	return nil
}

func putSentNoteRecord(ns walletdb.ReadWriteBucket, ref SentNoteRef, rec *sentNoteRecord) error {
	v, err := valueSentNoteRecord(rec)
	if err != nil {
		return err
	}
	err = ns.NestedReadWriteBucket(bucketSentNotes).Put(keyRef(uint64(ref)), v)
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketSentNotes)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsRawSentNoteRecord(ns walletdb.ReadBucket, ref SentNoteRef) []byte {
	return ns.NestedReadBucket(bucketSentNotes).Get(keyRef(uint64(ref)))
}

func fetchSentNoteRecord(ns walletdb.ReadBucket, ref SentNoteRef) (*sentNoteRecord, error) {
	v := existsRawSentNoteRecord(ns, ref)
	if v == nil {
		str := fmt.Sprintf("no sent note with reference %d", ref)
		return nil, storeError(ErrNoteNotFound, str, nil)
	}
	rec := new(sentNoteRecord)
	if err := readRawSentNoteRecord(v, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// newSentNoteRef assigns the next free sent note reference.
func newSentNoteRef(ns walletdb.ReadWriteBucket) (SentNoteRef, error) {
	seq, err := ns.NestedReadWriteBucket(bucketSentNotes).NextSequence()
	if err != nil {
		str := "failed to assign sent note reference"
		return 0, storeError(ErrDatabase, str, err)
	}
	return SentNoteRef(seq), nil
}

func putSentIndex(ns walletdb.ReadWriteBucket, tx TxRef, outputIndex uint32, ref SentNoteRef) error {
	k := keyNoteIndex(tx, outputIndex)
	err := ns.NestedReadWriteBucket(bucketSentIndex).Put(k, keyRef(uint64(ref)))
	if err != nil {
		str := fmt.Sprintf("%s: put failed", bucketSentIndex)
		return storeError(ErrDatabase, str, err)
	}
	return nil
}

func existsSentIndex(ns walletdb.ReadBucket, tx TxRef, outputIndex uint32) []byte {
	return ns.NestedReadBucket(bucketSentIndex).Get(keyNoteIndex(tx, outputIndex))
}

// createBuckets creates all of the descendant buckets required for the store
// to operate.
func createBuckets(ns walletdb.ReadWriteBucket) error {
	buckets := [][]byte{
		bucketBlocks, bucketTxRecords, bucketTxIndex, bucketNotes,
		bucketNoteIndex, bucketNullifiers, bucketWitnesses,
		bucketSentNotes, bucketSentIndex,
	}
	for _, bucket := range buckets {
		if _, err := ns.CreateBucket(bucket); err != nil {
			str := fmt.Sprintf("failed to create bucket %s", bucket)
			return storeError(ErrDatabase, str, err)
		}
	}
	return nil
}

// createStore creates the store (with the latest db version) in the passed
// namespace.  If a store already exists, ErrAlreadyExists is returned.
func createStore(ns walletdb.ReadWriteBucket) error {
	// Ensure that nothing currently exists in the namespace bucket.
	ck, cv := ns.ReadCursor().First()
	if ck != nil || cv != nil {
		const str = "namespace is not empty"
		return storeError(ErrAlreadyExists, str, nil)
	}

	// Write the latest store version.
	if err := putVersion(ns, LatestVersion); err != nil {
		return err
	}

	// Save the creation date of the store.
	var v [8]byte
	byteOrder.PutUint64(v[:], uint64(time.Now().Unix()))
	err := ns.Put(rootCreateDate, v[:])
	if err != nil {
		str := "failed to store database creation time"
		return storeError(ErrDatabase, str, err)
	}

	return createBuckets(ns)
}

// openStore opens an existing store from the passed namespace, verifying the
// recorded database version.
func openStore(ns walletdb.ReadBucket) error {
	version, err := fetchVersion(ns)
	if err != nil {
		return err
	}

	if version < LatestVersion {
		str := fmt.Sprintf("a database upgrade is required to upgrade "+
			"from recorded version %d to the latest version %d",
			version, LatestVersion)
		return storeError(ErrNeedsUpgrade, str, nil)
	}
	if version > LatestVersion {
		str := fmt.Sprintf("recorded version %d is newer than the "+
			"latest understood version %d", version, LatestVersion)
		return storeError(ErrUnknownVersion, str, nil)
	}
	return nil
}
