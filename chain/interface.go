// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

// BlockSource delivers previously fetched compact blocks to a scanning
// consumer.  Implementations sit between the network fetcher, which fills
// the source, and the wallet scanner, which drains it; the wallet state
// layer only consumes this contract and never reaches the network itself.
type BlockSource interface {
	// Init prepares the source for use.  It is safe to call more than
	// once.
	Init() error

	// RangeBlocks streams stored blocks to f in ascending height order,
	// starting at the from height (inclusive) and visiting at most limit
	// blocks.  A limit of zero or below means no limit.  An error
	// returned by f aborts the iteration and is propagated to the caller
	// unchanged.
	RangeBlocks(from int32, limit int, f func(*CompactBlock) error) error
}
