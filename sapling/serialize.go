// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"encoding/binary"
	"fmt"
	"io"
)

// The serialized forms follow the legacy zcashd formats: optional values are
// a one byte presence tag followed by the payload, and vectors are a bitcoin
// CompactSize count followed by the elements.

// writeCompactSize serializes n as a bitcoin CompactSize integer.
func writeCompactSize(w io.Writer, n uint64) error {
	var buf [9]byte
	switch {
	case n < 0xfd:
		buf[0] = byte(n)
		_, err := w.Write(buf[:1])
		return err

	case n <= 0xffff:
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:3], uint16(n))
		_, err := w.Write(buf[:3])
		return err

	case n <= 0xffffffff:
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:5], uint32(n))
		_, err := w.Write(buf[:5])
		return err

	default:
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:9], n)
		_, err := w.Write(buf[:9])
		return err
	}
}

// readCompactSize deserializes a bitcoin CompactSize integer, rejecting
// non-canonical encodings.
func readCompactSize(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, err
	}

	switch tag := buf[0]; tag {
	case 0xfd:
		if _, err := io.ReadFull(r, buf[:2]); err != nil {
			return 0, err
		}
		n := uint64(binary.LittleEndian.Uint16(buf[:2]))
		if n < 0xfd {
			return 0, fmt.Errorf("non-canonical CompactSize %d", n)
		}
		return n, nil

	case 0xfe:
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return 0, err
		}
		n := uint64(binary.LittleEndian.Uint32(buf[:4]))
		if n <= 0xffff {
			return 0, fmt.Errorf("non-canonical CompactSize %d", n)
		}
		return n, nil

	case 0xff:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return 0, err
		}
		n := binary.LittleEndian.Uint64(buf[:8])
		if n <= 0xffffffff {
			return 0, fmt.Errorf("non-canonical CompactSize %d", n)
		}
		return n, nil

	default:
		return uint64(tag), nil
	}
}

func writeNode(w io.Writer, n Node) error {
	_, err := w.Write(n[:])
	return err
}

func readNode(r io.Reader) (Node, error) {
	var n Node
	_, err := io.ReadFull(r, n[:])
	return n, err
}

func writeOptionalNode(w io.Writer, n *Node) error {
	if n == nil {
		_, err := w.Write([]byte{0x00})
		return err
	}
	if _, err := w.Write([]byte{0x01}); err != nil {
		return err
	}
	return writeNode(w, *n)
}

func readOptionalNode(r io.Reader) (*Node, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch tag[0] {
	case 0x00:
		return nil, nil
	case 0x01:
		n, err := readNode(r)
		if err != nil {
			return nil, err
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("invalid optional tag 0x%02x", tag[0])
	}
}

// Serialize writes the tree in its canonical byte form.
func (t *CommitmentTree) Serialize(w io.Writer) error {
	if err := writeOptionalNode(w, t.left); err != nil {
		return err
	}
	if err := writeOptionalNode(w, t.right); err != nil {
		return err
	}
	if err := writeCompactSize(w, uint64(len(t.parents))); err != nil {
		return err
	}
	for _, p := range t.parents {
		if err := writeOptionalNode(w, p); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize replaces the tree contents with the serialized tree read from
// r.
func (t *CommitmentTree) Deserialize(r io.Reader) error {
	left, err := readOptionalNode(r)
	if err != nil {
		return err
	}
	right, err := readOptionalNode(r)
	if err != nil {
		return err
	}
	count, err := readCompactSize(r)
	if err != nil {
		return err
	}
	// A well-formed tree stores strictly fewer parents than its depth.
	if count >= TreeDepth {
		return fmt.Errorf("tree parent count %d exceeds depth %d",
			count, TreeDepth)
	}
	parents := make([]*Node, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := readOptionalNode(r)
		if err != nil {
			return err
		}
		parents = append(parents, p)
	}

	t.left = left
	t.right = right
	t.parents = parents
	return nil
}

// Serialize writes the witness in its canonical byte form.
func (w *IncrementalWitness) Serialize(wr io.Writer) error {
	if err := w.tree.Serialize(wr); err != nil {
		return err
	}
	if err := writeCompactSize(wr, uint64(len(w.filled))); err != nil {
		return err
	}
	for _, n := range w.filled {
		if err := writeNode(wr, n); err != nil {
			return err
		}
	}
	if w.cursor == nil {
		_, err := wr.Write([]byte{0x00})
		return err
	}
	if _, err := wr.Write([]byte{0x01}); err != nil {
		return err
	}
	return w.cursor.Serialize(wr)
}

// DeserializeIncrementalWitness reads a witness previously written with
// Serialize.  The cursor depth is not part of the serialized form and is
// recomputed from the decoded state.
func DeserializeIncrementalWitness(r io.Reader) (*IncrementalWitness, error) {
	tree := NewCommitmentTree()
	if err := tree.Deserialize(r); err != nil {
		return nil, err
	}

	count, err := readCompactSize(r)
	if err != nil {
		return nil, err
	}
	// At most one completed subtree root per tree level can be pending.
	if count > TreeDepth {
		return nil, fmt.Errorf("witness filled count %d exceeds "+
			"depth %d", count, TreeDepth)
	}
	filled := make([]Node, 0, count)
	for i := uint64(0); i < count; i++ {
		n, err := readNode(r)
		if err != nil {
			return nil, err
		}
		filled = append(filled, n)
	}

	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	var cursor *CommitmentTree
	switch tag[0] {
	case 0x00:
	case 0x01:
		cursor = NewCommitmentTree()
		if err := cursor.Deserialize(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid optional tag 0x%02x", tag[0])
	}

	w := &IncrementalWitness{
		tree:   tree,
		filled: filled,
		cursor: cursor,
	}
	w.cursorDepth = w.nextDepth()
	return w, nil
}
