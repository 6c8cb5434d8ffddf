// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// TreeDepth is the depth of the note commitment tree.
const TreeDepth = 32

// ErrTreeFull is returned when appending to a commitment tree that already
// holds 2^TreeDepth leaves.
var ErrTreeFull = errors.New("note commitment tree is full")

// Node is a single node of the note commitment tree: either a note
// commitment at a leaf or the hash of two child nodes.
type Node [32]byte

// NewNode constructs a node from a byte slice, erroring if the slice is not
// exactly 32 bytes.
func NewNode(b []byte) (Node, error) {
	var n Node
	if len(b) != len(n) {
		return n, fmt.Errorf("tree node must be %d bytes, got %d",
			len(n), len(b))
	}
	copy(n[:], b)
	return n, nil
}

// merkleDomainTag domain-separates internal node hashes from any other use of
// the hash function.
var merkleDomainTag = []byte("ZsaplingMerkleCRH")

// combineNodes hashes two sibling nodes at the given depth into their parent.
//
// The hash is a depth-tagged BLAKE2b-256.  It keeps roots and witnesses
// internally consistent for tracking spendability; producing the merkle roots
// consensus validates additionally requires the Pedersen-based hash the
// protocol defines, which is only needed when building proofs and therefore
// lives with the proving components.
func combineNodes(depth int, left, right Node) Node {
	data := make([]byte, 0, len(merkleDomainTag)+1+2*len(left))
	data = append(data, merkleDomainTag...)
	data = append(data, byte(depth))
	data = append(data, left[:]...)
	data = append(data, right[:]...)
	return blake2b.Sum256(data)
}

// blankNode returns the uncommitted leaf value.
func blankNode() Node {
	var n Node
	n[0] = 0x01
	return n
}

var (
	emptyRootsOnce sync.Once
	emptyRoots     [TreeDepth + 1]Node
)

// EmptyRoot returns the root of an entirely empty subtree of the given depth.
func EmptyRoot(depth int) Node {
	emptyRootsOnce.Do(func() {
		emptyRoots[0] = blankNode()
		for d := 1; d <= TreeDepth; d++ {
			emptyRoots[d] = combineNodes(d-1, emptyRoots[d-1],
				emptyRoots[d-1])
		}
	})
	return emptyRoots[depth]
}

// CommitmentTree is an append-only incremental merkle tree of note
// commitments.  Only the leading edge of the tree is retained: the current
// leaf pair and, per level, the root of the completed left sibling subtree if
// one exists.  This is sufficient to append leaves and compute the root
// without materializing the full tree.
type CommitmentTree struct {
	left    *Node
	right   *Node
	parents []*Node
}

// NewCommitmentTree returns an empty commitment tree.
func NewCommitmentTree() *CommitmentTree {
	return &CommitmentTree{}
}

// Clone returns a deep copy of the tree.
func (t *CommitmentTree) Clone() *CommitmentTree {
	c := &CommitmentTree{}
	if t.left != nil {
		n := *t.left
		c.left = &n
	}
	if t.right != nil {
		n := *t.right
		c.right = &n
	}
	if len(t.parents) > 0 {
		c.parents = make([]*Node, len(t.parents))
		for i, p := range t.parents {
			if p != nil {
				n := *p
				c.parents[i] = &n
			}
		}
	}
	return c
}

// Size returns the number of leaves appended to the tree.
func (t *CommitmentTree) Size() int {
	size := 0
	if t.left != nil {
		size++
	}
	if t.right != nil {
		size++
	}
	// Each occupied parent at index i is the root of a completed subtree
	// holding 2^(i+1) leaves.
	for i, p := range t.parents {
		if p != nil {
			size += 1 << (uint(i) + 1)
		}
	}
	return size
}

// isComplete reports whether the tree holds exactly 2^depth leaves.
func (t *CommitmentTree) isComplete(depth int) bool {
	if depth == 0 {
		return t.left != nil && t.right == nil && len(t.parents) == 0
	}
	if t.left == nil || t.right == nil || len(t.parents) != depth-1 {
		return false
	}
	for _, p := range t.parents {
		if p == nil {
			return false
		}
	}
	return true
}

// Append adds a leaf node to the tree.  ErrTreeFull is returned once the
// tree holds 2^TreeDepth leaves.
func (t *CommitmentTree) Append(node Node) error {
	if t.isComplete(TreeDepth) {
		return ErrTreeFull
	}

	switch {
	case t.left == nil:
		n := node
		t.left = &n

	case t.right == nil:
		n := node
		t.right = &n

	default:
		// Both leaf slots are occupied: combine them and carry the
		// result up to the first free parent slot, combining with any
		// completed subtrees passed along the way.
		combined := combineNodes(0, *t.left, *t.right)
		n := node
		t.left = &n
		t.right = nil

		for i := 0; i < TreeDepth; i++ {
			if i < len(t.parents) {
				if t.parents[i] != nil {
					combined = combineNodes(i+1,
						*t.parents[i], combined)
					t.parents[i] = nil
					continue
				}
				c := combined
				t.parents[i] = &c
				return nil
			}
			c := combined
			t.parents = append(t.parents, &c)
			return nil
		}
	}

	return nil
}

// Root returns the root of the tree padded with empty subtrees out to
// TreeDepth.
func (t *CommitmentTree) Root() Node {
	return t.rootInner(TreeDepth, newPathFiller(nil))
}

// rootInner computes the tree root at the given depth, drawing absent
// subtrees from the filler.
func (t *CommitmentTree) rootInner(depth int, filler *pathFiller) Node {
	// Hash the leaf pair.  The filler is consulted only for absent slots
	// since it consumes its queue of pre-filled nodes on every call.
	var left, right Node
	if t.left != nil {
		left = *t.left
	} else {
		left = filler.next(0)
	}
	if t.right != nil {
		right = *t.right
	} else {
		right = filler.next(0)
	}
	root := combineNodes(0, left, right)

	// Hash in the parents up to the requested depth, padding with filler
	// nodes once the stored parents run out.
	for i := 0; i < depth-1; i++ {
		if i < len(t.parents) && t.parents[i] != nil {
			root = combineNodes(i+1, *t.parents[i], root)
		} else {
			root = combineNodes(i+1, root, filler.next(i+1))
		}
	}
	return root
}

// pathFiller supplies the nodes for parts of the tree a witness or root
// computation has no stored data for: first any explicitly filled subtree
// roots, then roots of empty subtrees.
type pathFiller struct {
	queue []Node
}

func newPathFiller(queue []Node) *pathFiller {
	return &pathFiller{queue: queue}
}

func (f *pathFiller) next(depth int) Node {
	if len(f.queue) > 0 {
		n := f.queue[0]
		f.queue = f.queue[1:]
		return n
	}
	return EmptyRoot(depth)
}
