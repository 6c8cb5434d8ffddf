// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
)

var (
	testNamespaceKey = []byte("chain")

	// defaultDBTimeout specifies the timeout value when opening the wallet
	// database.
	defaultDBTimeout = 10 * time.Second
)

// testCache creates an initialized block cache inside a fresh database.
func testCache(t *testing.T) (*BlockCache, walletdb.DB) {
	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "test.db"), true,
		defaultDBTimeout,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	c := NewBlockCache(db, testNamespaceKey, DefaultCacheCapacity)
	require.NoError(t, c.Init())
	return c, db
}

// rangeHeights drains a RangeBlocks call into the list of visited heights.
func rangeHeights(t *testing.T, c *BlockCache, from int32,
	limit int) []int32 {

	t.Helper()

	var heights []int32
	err := c.RangeBlocks(from, limit, func(block *CompactBlock) error {
		heights = append(heights, block.Height)
		return nil
	})
	require.NoError(t, err)
	return heights
}

func TestBlockCacheInitRequired(t *testing.T) {
	t.Parallel()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "test.db"), true,
		defaultDBTimeout,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	c := NewBlockCache(db, testNamespaceKey, DefaultCacheCapacity)

	err = c.PutBlock(testCompactBlock(1))
	require.ErrorIs(t, err, ErrUninitialized)

	_, err = c.LatestHeight()
	require.ErrorIs(t, err, ErrUninitialized)

	err = c.RangeBlocks(0, 0, func(*CompactBlock) error { return nil })
	require.ErrorIs(t, err, ErrUninitialized)

	// Init unlocks the cache and may be repeated.
	require.NoError(t, c.Init())
	require.NoError(t, c.Init())
	require.NoError(t, c.PutBlock(testCompactBlock(1)))
}

func TestBlockCachePutAndRange(t *testing.T) {
	t.Parallel()

	c, _ := testCache(t)

	// Store out of order; iteration follows the height keys.
	for _, height := range []int32{7, 5, 9, 6, 8, 12, 10, 11, 14, 13} {
		require.NoError(t, c.PutBlock(testCompactBlock(height)))
	}

	all := []int32{5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	require.Equal(t, all, rangeHeights(t, c, 0, 0))
	require.Equal(t, all, rangeHeights(t, c, 5, 0))

	// A negative start behaves like zero.
	require.Equal(t, all, rangeHeights(t, c, -3, 0))

	// The start height is inclusive and the limit caps the visit count.
	require.Equal(t, []int32{7, 8, 9}, rangeHeights(t, c, 7, 3))
	require.Equal(t, []int32{12, 13, 14}, rangeHeights(t, c, 12, 0))
	require.Equal(t, []int32(nil), rangeHeights(t, c, 20, 0))

	// A second pass is served from the decoded front and must look the
	// same.
	require.Equal(t, all, rangeHeights(t, c, 0, 0))

	// Block contents survive the round trip.
	err := c.RangeBlocks(5, 1, func(block *CompactBlock) error {
		require.Equal(t, testCompactBlock(5), block)
		return nil
	})
	require.NoError(t, err)
}

func TestBlockCacheVisitorError(t *testing.T) {
	t.Parallel()

	c, _ := testCache(t)
	for height := int32(1); height <= 5; height++ {
		require.NoError(t, c.PutBlock(testCompactBlock(height)))
	}

	errStop := errors.New("scanner gave up")
	var visited int
	err := c.RangeBlocks(1, 0, func(block *CompactBlock) error {
		visited++
		if visited == 3 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 3, visited)
}

func TestBlockCacheReplace(t *testing.T) {
	t.Parallel()

	c, _ := testCache(t)
	require.NoError(t, c.PutBlock(testCompactBlock(5)))

	// Replaying the height with different contents models a reorg: the
	// newly fetched block replaces the stale one.
	replacement := testCompactBlock(5)
	replacement.Hash[15] = 0xff
	replacement.Tx = nil
	require.NoError(t, c.PutBlock(replacement))

	err := c.RangeBlocks(5, 1, func(block *CompactBlock) error {
		require.Equal(t, replacement, block)
		return nil
	})
	require.NoError(t, err)

	latest, err := c.LatestHeight()
	require.NoError(t, err)
	require.Equal(t, fn.Some(int32(5)), latest)
}

func TestBlockCacheLatestHeight(t *testing.T) {
	t.Parallel()

	c, _ := testCache(t)

	latest, err := c.LatestHeight()
	require.NoError(t, err)
	require.True(t, latest.IsNone())

	for _, height := range []int32{3, 9, 4} {
		require.NoError(t, c.PutBlock(testCompactBlock(height)))
	}
	latest, err = c.LatestHeight()
	require.NoError(t, err)
	require.Equal(t, fn.Some(int32(9)), latest)
}

func TestBlockCacheNegativeHeight(t *testing.T) {
	t.Parallel()

	c, _ := testCache(t)
	err := c.PutBlock(testCompactBlock(-1))
	require.ErrorIs(t, err, ErrNegativeHeight)
}

func TestBlockCacheCorruptValue(t *testing.T) {
	t.Parallel()

	c, db := testCache(t)
	require.NoError(t, c.PutBlock(testCompactBlock(1)))

	// Sneak a malformed value in behind the cache's back.
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		ns := tx.ReadWriteBucket(testNamespaceKey)
		return ns.Put(keyHeight(2), []byte{0xde, 0xad})
	})
	require.NoError(t, err)

	err = c.RangeBlocks(0, 0, func(*CompactBlock) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "corrupt compact block 2")
}
