// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/zecsuite/zecwallet/sapling"
)

// Big endian is the preferred byte order, due to cursor scans over integer
// keys iterating in order.
var byteOrder = binary.BigEndian

const (
	// EphemeralKeySize is the size of the ephemeral public key attached
	// to each shielded output.
	EphemeralKeySize = 32

	// CompactCiphertextSize is the length of the ciphertext prefix kept
	// in a compact output: just enough of the encrypted note plaintext
	// for a scanner to trial-decrypt the note, without the memo.
	CompactCiphertextSize = 52
)

// CompactSpend is the nullifier revealed by one shielded spend.
type CompactSpend struct {
	Nf sapling.Nullifier
}

// CompactOutput is the subset of a shielded output a scanner needs: the note
// commitment appended to the global tree and the material for trial
// decryption.
type CompactOutput struct {
	Cmu          sapling.Node
	EphemeralKey [EphemeralKeySize]byte
	Ciphertext   [CompactCiphertextSize]byte
}

// CompactTx is the shielded portion of a single transaction.  Index is the
// position of the transaction within its block.
type CompactTx struct {
	Index   uint32
	TxHash  chainhash.Hash
	Spends  []CompactSpend
	Outputs []CompactOutput
}

// CompactBlock is a stripped-down block carrying only what a wallet scanner
// needs: the shielded transactions plus enough header data to link blocks
// together and detect reorganizations.  Transactions without shielded
// components are omitted by the fetcher.
type CompactBlock struct {
	Height   int32
	Hash     chainhash.Hash
	PrevHash chainhash.Hash
	Time     uint32
	Tx       []CompactTx
}

// Compact blocks are persisted keyed by height, so the height is not part of
// the serialized value.  The value layout is:
//
//   [0:32]  Hash (32 bytes)
//   [32:64] PrevHash (32 bytes)
//   [64:68] Unix time (4 bytes)
//   [68:72] Transaction count (4 bytes)
//
// followed by each transaction:
//
//   [0:4]  Index within the block (4 bytes)
//   [4:36] TxHash (32 bytes)
//   [36:40] Spend count (4 bytes)
//   [40:44] Output count (4 bytes)
//
// followed by each spend nullifier (32 bytes) and then each output:
//
//   [0:32]   Note commitment (32 bytes)
//   [32:64]  Ephemeral key (32 bytes)
//   [64:116] Ciphertext prefix (52 bytes)

const (
	blockHeaderSize   = 32 + 32 + 4 + 4
	txHeaderSize      = 4 + 32 + 4 + 4
	compactSpendSize  = 32
	compactOutputSize = 32 + EphemeralKeySize + CompactCiphertextSize
)

func keyHeight(height int32) []byte {
	k := make([]byte, 4)
	byteOrder.PutUint32(k, uint32(height))
	return k
}

// serializedSize returns the length of the value marshalCompactBlock
// produces.
func serializedSize(block *CompactBlock) int {
	size := blockHeaderSize
	for i := range block.Tx {
		size += txHeaderSize
		size += len(block.Tx[i].Spends) * compactSpendSize
		size += len(block.Tx[i].Outputs) * compactOutputSize
	}
	return size
}

func marshalCompactBlock(block *CompactBlock) []byte {
	v := make([]byte, serializedSize(block))

	copy(v[0:32], block.Hash[:])
	copy(v[32:64], block.PrevHash[:])
	byteOrder.PutUint32(v[64:68], block.Time)
	byteOrder.PutUint32(v[68:72], uint32(len(block.Tx)))

	off := blockHeaderSize
	for i := range block.Tx {
		tx := &block.Tx[i]

		byteOrder.PutUint32(v[off:off+4], tx.Index)
		copy(v[off+4:off+36], tx.TxHash[:])
		byteOrder.PutUint32(v[off+36:off+40], uint32(len(tx.Spends)))
		byteOrder.PutUint32(v[off+40:off+44], uint32(len(tx.Outputs)))
		off += txHeaderSize

		for j := range tx.Spends {
			copy(v[off:off+32], tx.Spends[j].Nf[:])
			off += compactSpendSize
		}
		for j := range tx.Outputs {
			out := &tx.Outputs[j]
			copy(v[off:off+32], out.Cmu[:])
			copy(v[off+32:off+64], out.EphemeralKey[:])
			copy(v[off+64:off+116], out.Ciphertext[:])
			off += compactOutputSize
		}
	}
	return v
}

// unmarshalCompactBlock decodes a stored compact block value.  The height is
// taken from the database key.  Any structural mismatch, including trailing
// bytes, is reported as corruption.
func unmarshalCompactBlock(height int32, v []byte) (*CompactBlock, error) {
	if len(v) < blockHeaderSize {
		return nil, fmt.Errorf("corrupt compact block %d: short "+
			"value of %d bytes", height, len(v))
	}

	block := &CompactBlock{
		Height: height,
		Time:   byteOrder.Uint32(v[64:68]),
	}
	copy(block.Hash[:], v[0:32])
	copy(block.PrevHash[:], v[32:64])

	numTx := byteOrder.Uint32(v[68:72])
	off := blockHeaderSize

	// Each transaction needs at least its fixed size header, which bounds
	// how many the remaining bytes can hold.  Checking up front keeps the
	// count from sizing an allocation the value cannot back.
	if uint64(numTx)*txHeaderSize > uint64(len(v)-off) {
		return nil, fmt.Errorf("corrupt compact block %d: "+
			"transaction count %d exceeds value size", height,
			numTx)
	}

	// Empty vectors stay nil so that decoding inverts encoding exactly.
	if numTx > 0 {
		block.Tx = make([]CompactTx, 0, numTx)
	}
	for i := uint32(0); i < numTx; i++ {
		if len(v) < off+txHeaderSize {
			return nil, fmt.Errorf("corrupt compact block %d: "+
				"truncated transaction %d", height, i)
		}

		var tx CompactTx
		tx.Index = byteOrder.Uint32(v[off : off+4])
		copy(tx.TxHash[:], v[off+4:off+36])
		numSpends := byteOrder.Uint32(v[off+36 : off+40])
		numOutputs := byteOrder.Uint32(v[off+40 : off+44])
		off += txHeaderSize

		need := int(numSpends)*compactSpendSize +
			int(numOutputs)*compactOutputSize
		if len(v) < off+need {
			return nil, fmt.Errorf("corrupt compact block %d: "+
				"truncated transaction %d body", height, i)
		}

		if numSpends > 0 {
			tx.Spends = make([]CompactSpend, numSpends)
		}
		for j := range tx.Spends {
			copy(tx.Spends[j].Nf[:], v[off:off+32])
			off += compactSpendSize
		}
		if numOutputs > 0 {
			tx.Outputs = make([]CompactOutput, numOutputs)
		}
		for j := range tx.Outputs {
			out := &tx.Outputs[j]
			copy(out.Cmu[:], v[off:off+32])
			copy(out.EphemeralKey[:], v[off+32:off+64])
			copy(out.Ciphertext[:], v[off+64:off+116])
			off += compactOutputSize
		}
		block.Tx = append(block.Tx, tx)
	}

	if off != len(v) {
		return nil, fmt.Errorf("corrupt compact block %d: %d "+
			"trailing bytes", height, len(v)-off)
	}
	return block, nil
}
