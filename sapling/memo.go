// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// MemoSize is the fixed size of a note memo field.
const MemoSize = 512

var (
	// ErrMemoTooLong is returned when constructing a memo from data longer
	// than MemoSize bytes.
	ErrMemoTooLong = errors.New("memo exceeds 512 bytes")

	// ErrInvalidMemoUTF8 is returned when interpreting a memo whose
	// leading byte marks it as text but whose contents are not valid
	// UTF-8.
	ErrInvalidMemoUTF8 = errors.New("memo marked as text is not valid UTF-8")
)

// Memo is the fixed-size memo field attached to a shielded output.  The
// leading byte classifies the contents: values up to 0xF4 indicate a UTF-8
// text memo (padded with trailing zero bytes), 0xF6 followed by all zeroes is
// the canonical "no memo" sentinel, and all other values mark arbitrary
// non-text data.
type Memo [MemoSize]byte

// textMemoMax is the largest leading byte value that marks a memo as UTF-8
// text.
const textMemoMax = 0xF4

// emptyMemoSentinel is the leading byte of the canonical empty memo.
const emptyMemoSentinel = 0xF6

// EmptyMemo returns the canonical "no memo" value: the sentinel byte followed
// by all zeroes.
func EmptyMemo() Memo {
	var m Memo
	m[0] = emptyMemoSentinel
	return m
}

// NewMemo constructs a memo from the passed data, padding with trailing zero
// bytes.  ErrMemoTooLong is returned when data exceeds MemoSize bytes.
func NewMemo(data []byte) (Memo, error) {
	var m Memo
	if len(data) > MemoSize {
		return m, ErrMemoTooLong
	}
	copy(m[:], data)
	return m, nil
}

// NewTextMemo constructs a text memo from the passed string.  The string must
// fit in MemoSize bytes and, being a Go string used as text, start with a
// byte no greater than 0xF4 so that reading it back classifies it as text.
func NewTextMemo(text string) (Memo, error) {
	return NewMemo([]byte(text))
}

// IsEmpty reports whether the memo is the canonical empty sentinel.
func (m *Memo) IsEmpty() bool {
	if m[0] != emptyMemoSentinel {
		return false
	}
	for _, b := range m[1:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns the raw memo contents.
func (m *Memo) Bytes() []byte {
	return m[:]
}

// ToUTF8 interprets the memo contents.  Text memos are returned with their
// zero padding trimmed.  Memos that do not carry text, including the empty
// sentinel, yield an absent result.  A memo marked as text that does not
// decode as UTF-8 is an error: the data is present but damaged, which callers
// must not confuse with absence.
func (m *Memo) ToUTF8() (fn.Option[string], error) {
	if m[0] > textMemoMax {
		return fn.None[string](), nil
	}

	trimmed := bytes.TrimRight(m[:], "\x00")
	if !utf8.Valid(trimmed) {
		return fn.None[string](), ErrInvalidMemoUTF8
	}
	return fn.Some(string(trimmed)), nil
}
