// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sapling

import (
	"github.com/lightningnetwork/lnd/fn/v2"
)

// PathElement is one level of a merkle authentication path: the sibling node
// and whether the witnessed subtree is the right child at that level.
type PathElement struct {
	Sibling Node
	Right   bool
}

// MerklePath is an authentication path from a witnessed leaf to the tree
// root, ordered leaf-to-root, along with the leaf position.
type MerklePath struct {
	AuthPath []PathElement
	Position uint64
}

// IncrementalWitness tracks the authentication path of a single leaf as
// further leaves are appended to the tree.  It is created from a snapshot of
// the tree taken immediately after the witnessed leaf was appended, and kept
// current by appending every subsequent leaf to the witness as well.
type IncrementalWitness struct {
	// tree is the frozen state of the commitment tree as of the witnessed
	// leaf.
	tree *CommitmentTree

	// filled holds roots of subtrees to the right of the witnessed leaf
	// that have been completed by later appends.
	filled []Node

	// cursor accumulates leaves of the rightmost incomplete subtree, and
	// cursorDepth is the depth that subtree completes at.
	cursorDepth int
	cursor      *CommitmentTree
}

// NewIncrementalWitness creates a witness for the most recently appended
// leaf of the given tree.  The tree state is copied, so the caller may keep
// appending to the original.
func NewIncrementalWitness(tree *CommitmentTree) *IncrementalWitness {
	return &IncrementalWitness{tree: tree.Clone()}
}

// Position returns the position of the witnessed leaf in the tree.
func (w *IncrementalWitness) Position() uint64 {
	size := w.tree.Size()
	if size == 0 {
		return 0
	}
	return uint64(size - 1)
}

// filler returns the path filler for the current witness state: the
// explicitly completed subtree roots, then the partial cursor root, then
// empty roots.
func (w *IncrementalWitness) filler() *pathFiller {
	queue := make([]Node, 0, len(w.filled)+1)
	queue = append(queue, w.filled...)
	if w.cursor != nil {
		queue = append(queue,
			w.cursor.rootInner(w.cursorDepth, newPathFiller(nil)))
	}
	return newPathFiller(queue)
}

// nextDepth returns the depth at which the next completed subtree to the
// right of the witnessed leaf will sit, skipping levels already accounted
// for by filled roots.
func (w *IncrementalWitness) nextDepth() int {
	skip := len(w.filled)

	if w.tree.left == nil {
		if skip > 0 {
			skip--
		} else {
			return 0
		}
	}
	if w.tree.right == nil {
		if skip > 0 {
			skip--
		} else {
			return 0
		}
	}

	d := 1
	for _, p := range w.tree.parents {
		if p == nil {
			if skip > 0 {
				skip--
			} else {
				return d
			}
		}
		d++
	}
	return d + skip
}

// Append records a leaf appended to the tree after the witnessed leaf,
// updating the authentication path state.  ErrTreeFull is returned once the
// underlying tree can hold no further leaves.
func (w *IncrementalWitness) Append(node Node) error {
	if w.cursor != nil {
		if err := w.cursor.Append(node); err != nil {
			return err
		}
		if w.cursor.isComplete(w.cursorDepth) {
			w.filled = append(w.filled,
				w.cursor.rootInner(w.cursorDepth,
					newPathFiller(nil)))
			w.cursor = nil
		}
		return nil
	}

	w.cursorDepth = w.nextDepth()
	if w.cursorDepth >= TreeDepth {
		return ErrTreeFull
	}

	if w.cursorDepth == 0 {
		// The leaf lands in the sibling slot directly, no partial
		// subtree to track.
		w.filled = append(w.filled, node)
		return nil
	}

	cursor := NewCommitmentTree()
	if err := cursor.Append(node); err != nil {
		return err
	}
	w.cursor = cursor
	return nil
}

// Root returns the current root of the tree as tracked by this witness.  It
// equals the root of the underlying tree after the same sequence of appends.
func (w *IncrementalWitness) Root() Node {
	return w.tree.rootInner(TreeDepth, w.filler())
}

// Path returns the authentication path of the witnessed leaf under the
// current tree state, or None if the witness tracks an empty tree.
func (w *IncrementalWitness) Path() fn.Option[MerklePath] {
	return w.pathInner(TreeDepth)
}

func (w *IncrementalWitness) pathInner(depth int) fn.Option[MerklePath] {
	if w.tree.left == nil {
		return fn.None[MerklePath]()
	}

	filler := w.filler()
	authPath := make([]PathElement, 0, depth)

	if w.tree.right != nil {
		// The witnessed leaf is the right child at the bottom level.
		authPath = append(authPath, PathElement{
			Sibling: *w.tree.left,
			Right:   true,
		})
	} else {
		authPath = append(authPath, PathElement{
			Sibling: filler.next(0),
		})
	}

	for i, p := range w.tree.parents {
		if p != nil {
			authPath = append(authPath, PathElement{
				Sibling: *p,
				Right:   true,
			})
		} else {
			authPath = append(authPath, PathElement{
				Sibling: filler.next(i + 1),
			})
		}
	}
	for i := len(w.tree.parents); i < depth-1; i++ {
		authPath = append(authPath, PathElement{
			Sibling: filler.next(i + 1),
		})
	}

	return fn.Some(MerklePath{
		AuthPath: authPath,
		Position: w.Position(),
	})
}
