// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"

	"github.com/lightninglabs/neutrino/cache/lru"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zecsuite/zecwallet/walletdb"
)

const (
	// DefaultCacheCapacity is the default number of bytes of decoded
	// compact blocks kept in memory in front of the database.
	DefaultCacheCapacity = 20 * 1024 * 1024

	// rangeBatchSize bounds how many blocks RangeBlocks buffers per
	// database transaction.
	rangeBatchSize = 1000
)

var (
	// ErrUninitialized is returned when the cache is used before Init has
	// been called.
	ErrUninitialized = errors.New("block cache has not been initialized")

	// ErrNegativeHeight is returned when a block with a negative height
	// is stored.  Stored keys sort by height, which requires heights to
	// be non-negative.
	ErrNegativeHeight = errors.New("compact block height is negative")
)

// cachedBlock wraps a decoded block with the length of its serialization so
// the LRU can bound memory by bytes rather than element count.
type cachedBlock struct {
	block *CompactBlock
	size  uint64
}

// Size returns the serialized length of the cached block.
func (c *cachedBlock) Size() (uint64, error) {
	return c.size, nil
}

// BlockCache stores compact blocks previously fetched from the network.
// Blocks are persisted in a wallet database namespace keyed by height and
// fronted by an LRU of decoded blocks, so a scanner re-reading a recent
// range does not repeatedly hit the decoder.
//
// The cache holds no wallet state: its contents can always be re-fetched,
// and a block stored at an existing height simply replaces the old one,
// which is how blocks disconnected by a reorganization are superseded.
type BlockCache struct {
	db           walletdb.DB
	namespaceKey []byte

	decoded *lru.Cache[int32, *cachedBlock]
}

// Compile time check to ensure BlockCache implements BlockSource.
var _ BlockSource = (*BlockCache)(nil)

// NewBlockCache creates a block cache over the given database namespace.
// capacity is the in-memory budget, in bytes of serialized block data, for
// the decoded block front.  Init must be called before first use.
func NewBlockCache(db walletdb.DB, namespaceKey []byte,
	capacity uint64) *BlockCache {

	return &BlockCache{
		db:           db,
		namespaceKey: namespaceKey,
		decoded:      lru.NewCache[int32, *cachedBlock](capacity),
	}
}

// Init creates the backing namespace if it does not exist yet.  It is safe
// to call on an already initialized cache.
func (c *BlockCache) Init() error {
	return walletdb.Update(c.db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(c.namespaceKey)
		return err
	})
}

// PutBlock persists a compact block, replacing any block previously stored
// at the same height.
func (c *BlockCache) PutBlock(block *CompactBlock) error {
	if block.Height < 0 {
		return ErrNegativeHeight
	}

	v := marshalCompactBlock(block)
	err := walletdb.Update(c.db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(c.namespaceKey)
		if ns == nil {
			return ErrUninitialized
		}
		return ns.Put(keyHeight(block.Height), v)
	})
	if err != nil {
		return err
	}

	_, err = c.decoded.Put(block.Height, &cachedBlock{
		block: block,
		size:  uint64(len(v)),
	})
	if err != nil {
		// The block is durably stored at this point, so a failure to
		// cache it only costs a future decode.
		log.Debugf("Not caching block %d: %v", block.Height, err)
	}
	return nil
}

// LatestHeight returns the height of the newest stored block, letting a
// fetcher resume where it left off.
func (c *BlockCache) LatestHeight() (fn.Option[int32], error) {
	latest := fn.None[int32]()
	err := walletdb.View(c.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(c.namespaceKey)
		if ns == nil {
			return ErrUninitialized
		}

		ck, _ := ns.ReadCursor().Last()
		if ck == nil {
			return nil
		}
		if len(ck) != 4 {
			return fmt.Errorf("corrupt block key of %d bytes",
				len(ck))
		}
		latest = fn.Some(int32(byteOrder.Uint32(ck)))
		return nil
	})
	if err != nil {
		return fn.None[int32](), err
	}
	return latest, nil
}

// batchEntry is one block collected by readBatch: either already decoded
// from the LRU, or the copied raw value to decode once the transaction is
// closed.
type batchEntry struct {
	height int32
	block  *CompactBlock
	raw    []byte
}

// readBatch collects up to n blocks starting at the from height under a
// single read transaction.
func (c *BlockCache) readBatch(from int32, n int) ([]*CompactBlock, error) {
	entries := make([]batchEntry, 0, n)
	err := walletdb.View(c.db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(c.namespaceKey)
		if ns == nil {
			return ErrUninitialized
		}

		cur := ns.ReadCursor()
		ck, cv := cur.Seek(keyHeight(from))
		for ; ck != nil && len(entries) < n; ck, cv = cur.Next() {
			if len(ck) != 4 {
				return fmt.Errorf("corrupt block key of %d "+
					"bytes", len(ck))
			}
			height := int32(byteOrder.Uint32(ck))

			if hit, err := c.decoded.Get(height); err == nil {
				entries = append(entries, batchEntry{
					height: height,
					block:  hit.block,
				})
				continue
			}

			// Bucket values are only valid for the life of the
			// transaction, so take a copy to decode later.
			raw := make([]byte, len(cv))
			copy(raw, cv)
			entries = append(entries, batchEntry{
				height: height,
				raw:    raw,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	blocks := make([]*CompactBlock, 0, len(entries))
	for _, e := range entries {
		if e.block != nil {
			blocks = append(blocks, e.block)
			continue
		}

		block, err := unmarshalCompactBlock(e.height, e.raw)
		if err != nil {
			return nil, err
		}
		_, err = c.decoded.Put(e.height, &cachedBlock{
			block: block,
			size:  uint64(len(e.raw)),
		})
		if err != nil {
			log.Debugf("Not caching block %d: %v", e.height, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// RangeBlocks streams stored blocks to f in ascending height order, starting
// at the from height (inclusive) and visiting at most limit blocks.  A limit
// of zero or below means no limit.  An error returned by f aborts the
// iteration and is propagated to the caller unchanged.
//
// f always runs outside of any database transaction, so it is free to open
// its own, e.g. to record what a scan of the block found.
func (c *BlockCache) RangeBlocks(from int32, limit int,
	f func(*CompactBlock) error) error {

	// Stored heights are never negative, so a negative start behaves the
	// same as starting from zero.
	if from < 0 {
		from = 0
	}

	remaining := limit
	next := from
	for {
		batch := rangeBatchSize
		if limit > 0 {
			if remaining == 0 {
				return nil
			}
			if remaining < batch {
				batch = remaining
			}
		}

		blocks, err := c.readBatch(next, batch)
		if err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}

		for _, block := range blocks {
			if err := f(block); err != nil {
				return err
			}
		}

		if limit > 0 {
			remaining -= len(blocks)
		}
		next = blocks[len(blocks)-1].Height + 1
	}
}
