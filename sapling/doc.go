// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sapling provides the shielded-pool primitives the wallet stores and
queries: payment addresses, extended full viewing keys, notes, nullifiers,
memos, the note commitment tree and incremental witnesses.

The types here are deliberately storage-oriented.  Key derivation, trial
decryption and proof generation happen in external components; this package
models the values those components hand to the wallet together with the
serialization formats used to persist them.
*/
package sapling
