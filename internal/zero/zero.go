// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear key material from byte slices and
// arrays.
package zero

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear viewing key material from memory.
//
// In general, prefer to use the fixed-sized zeroing functions (Bytea*)
// when zeroing bytes as they are much more efficient than the variable
// sized zeroing func Bytes.
func Bytes(b []byte) {
	z := [32]byte{}
	n := uint(copy(b, z[:]))
	for n < uint(len(b)) {
		copy(b[n:], b[:n])
		n <<= 1
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// This is used to explicitly clear key material from memory.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}

// Bytea169 clears the 169-byte array by filling it with the zero value.
// This is used to explicitly clear serialized extended full viewing keys
// from memory.
func Bytea169(b *[169]byte) {
	*b = [169]byte{}
}
