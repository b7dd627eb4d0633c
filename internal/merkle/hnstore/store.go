package hnstore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// CombineFunc produces a parent hash from its two child hashes.
// It must not retain or modify either argument.
type CombineFunc func(left, right []byte) []byte

// OddNodePolicy controls the hash of a node that has only one child,
// which happens for the trailing node of any level with an odd width.
type OddNodePolicy uint8

const (
	// PromoteOddNode uses the lone child's hash as the parent's hash, unchanged.
	PromoteOddNode OddNodePolicy = iota

	// DuplicateOddNode combines the lone child's hash with itself.
	DuplicateOddNode
)

func (p OddNodePolicy) String() string {
	switch p {
	case PromoteOddNode:
		return "promote"
	case DuplicateOddNode:
		return "duplicate"
	default:
		return fmt.Sprintf("OddNodePolicy(%d)", uint8(p))
	}
}

// ErrIndexOutOfRange is wrapped by errors for a leaf index outside [0, width).
var ErrIndexOutOfRange = errors.New("leaf index out of range")

// ErrAlreadySet is wrapped by errors for a leaf that was already set.
var ErrAlreadySet = errors.New("leaf already set")

// Store is an arena of hash nodes shaped for a fixed number of leaves.
//
// Store is not safe for concurrent use.
type Store struct {
	// Node hashes, leaves first and the root last.
	// A nil entry is either a node that has not been hashed yet,
	// or a node whose hash was consumed by its parent.
	nodes [][]byte

	// Which nodes have ever been hashed.
	// This distinguishes released nodes from unset nodes.
	haveNodes *bitset.BitSet

	// Width of each level, and the index into nodes where each level starts.
	// Index 0 is the leaf level.
	levelWidths []int
	levelStarts []int

	combine CombineFunc
	odd     OddNodePolicy

	nLeavesSet int
	retained   int

	// Scratch space for hashes calculated during one SetLeaf call,
	// so that nothing is committed until every combine has succeeded.
	pending [][]byte
}

// New returns a Store for width leaves.
//
// New panics if width is less than one or combine is nil;
// callers are expected to validate input before constructing a Store.
func New(width int, combine CombineFunc, odd OddNodePolicy) *Store {
	if width < 1 {
		panic(fmt.Errorf(
			"BUG: width must be positive (got %d)", width,
		))
	}
	if combine == nil {
		panic(errors.New("BUG: combine function must not be nil"))
	}
	if odd != PromoteOddNode && odd != DuplicateOddNode {
		panic(fmt.Errorf("BUG: unknown odd node policy %d", odd))
	}

	levelWidths := LevelWidths(width)
	levelStarts := make([]int, len(levelWidths))
	nNodes := 0
	for i, w := range levelWidths {
		levelStarts[i] = nNodes
		nNodes += w
	}

	return &Store{
		nodes:     make([][]byte, nNodes),
		haveNodes: bitset.MustNew(uint(nNodes)),

		levelWidths: levelWidths,
		levelStarts: levelStarts,

		combine: combine,
		odd:     odd,

		// One pending hash per level above the leaves, at most.
		pending: make([][]byte, 0, len(levelWidths)-1),
	}
}

// LevelWidths returns the number of nodes at each level
// of a tree with width leaves, starting with the leaf level
// and ending with the root level of width 1.
// LevelWidths returns nil if width is less than one.
func LevelWidths(width int) []int {
	if width < 1 {
		return nil
	}

	var out []int
	for w := width; ; w = (w + 1) / 2 {
		out = append(out, w)
		if w == 1 {
			return out
		}
	}
}

// SetLeaf stores leafHash as the hash of the leaf at idx,
// then computes every ancestor hash that has become available,
// releasing the child hashes those ancestors consumed.
//
// If this call completed the root, SetLeaf returns the root hash;
// otherwise it returns nil.
// The returned slice must not be modified.
//
// SetLeaf returns an error wrapping [ErrIndexOutOfRange]
// if idx is not in [0, width),
// or an error wrapping [ErrAlreadySet] if the leaf was set previously.
// In both cases the store is unchanged.
//
// The store keeps its own copy of leafHash.
// If the combine function panics, the panic propagates
// and the store is left as it was before the call.
func (s *Store) SetLeaf(idx int, leafHash []byte) ([]byte, error) {
	if err := s.CheckLeaf(idx); err != nil {
		return nil, err
	}

	leafHash = bytes.Clone(leafHash)
	if leafHash == nil {
		// A nil entry in nodes reads as "no hash",
		// so an empty leaf hash still needs a non-nil slice.
		leafHash = []byte{}
	}

	// Walk up the tree first, calculating every parent hash
	// that this leaf makes available.
	pending := s.pending[:0]
	cur := leafHash
	pos := idx
	for lvl := 0; lvl < len(s.levelWidths)-1; lvl++ {
		sibPos := pos ^ 1

		var parentHash []byte
		if sibPos >= s.levelWidths[lvl] {
			// Trailing node on an odd-width level.
			if s.odd == PromoteOddNode {
				parentHash = cur
			} else {
				parentHash = s.combine(cur, cur)
			}
		} else {
			sibIdx := s.levelStarts[lvl] + sibPos
			if !s.haveNodes.Test(uint(sibIdx)) {
				// Sibling subtree is incomplete, so the cascade ends here.
				break
			}

			sib := s.nodes[sibIdx]
			if pos&1 == 0 {
				parentHash = s.combine(cur, sib)
			} else {
				parentHash = s.combine(sib, cur)
			}
		}

		pending = append(pending, parentHash)
		cur = parentHash
		pos >>= 1
	}

	// Every combine succeeded, so now commit.
	s.nodes[idx] = leafHash
	s.haveNodes.Set(uint(idx))
	s.nLeavesSet++
	s.retained++

	pos = idx
	for i, h := range pending {
		lvl := i + 1

		// Release both children at the level below.
		childStart := s.levelStarts[lvl-1]
		left := pos &^ 1
		s.release(childStart + left)
		if left+1 < s.levelWidths[lvl-1] {
			s.release(childStart + left + 1)
		}

		pos >>= 1
		nodeIdx := s.levelStarts[lvl] + pos
		s.nodes[nodeIdx] = h
		s.haveNodes.Set(uint(nodeIdx))
		s.retained++
	}

	// Don't hold on to references through the scratch slice.
	clear(pending)
	s.pending = pending[:0]

	if len(pending) == len(s.levelWidths)-1 {
		// The cascade reached the root.
		// This can only happen once, because the root's leaves are now all set.
		return s.nodes[len(s.nodes)-1], nil
	}
	return nil, nil
}

// CheckLeaf returns the error that [*Store.SetLeaf] would return for idx,
// or nil if the leaf at idx may be set.
func (s *Store) CheckLeaf(idx int) error {
	width := s.levelWidths[0]
	if idx < 0 || idx >= width {
		return fmt.Errorf(
			"%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, width,
		)
	}
	if s.haveNodes.Test(uint(idx)) {
		return fmt.Errorf("%w: %d", ErrAlreadySet, idx)
	}
	return nil
}

func (s *Store) release(nodeIdx int) {
	if s.nodes[nodeIdx] != nil {
		s.nodes[nodeIdx] = nil
		s.retained--
	}
}

// Root returns the root hash, or nil if not every leaf has been set.
// The returned slice must not be modified.
func (s *Store) Root() []byte {
	return s.nodes[len(s.nodes)-1]
}

// HasLeaf reports whether the leaf at idx has been set.
// HasLeaf reports false if idx is out of bounds.
func (s *Store) HasLeaf(idx int) bool {
	if idx < 0 || idx >= s.levelWidths[0] {
		return false
	}
	return s.haveNodes.Test(uint(idx))
}

// LeafBitset returns a new bitset of length [*Store.Width],
// with a bit set for every leaf that has been set.
func (s *Store) LeafBitset() *bitset.BitSet {
	width := uint(s.levelWidths[0])
	bs := bitset.MustNew(width)
	for u, ok := s.haveNodes.NextSet(0); ok && u < width; u, ok = s.haveNodes.NextSet(u + 1) {
		bs.Set(u)
	}
	return bs
}

// Width returns the number of leaves.
func (s *Store) Width() int {
	return s.levelWidths[0]
}

// Levels returns the number of levels, including the leaf level and the root.
// A single-leaf store has one level.
func (s *Store) Levels() int {
	return len(s.levelWidths)
}

// LevelWidth returns the number of nodes at level lvl,
// where level 0 is the leaves.
func (s *Store) LevelWidth(lvl int) int {
	return s.levelWidths[lvl]
}

// NodeCount returns the total number of nodes across all levels.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// SetLeafCount returns how many leaves have been set.
func (s *Store) SetLeafCount() int {
	return s.nLeavesSet
}

// Retained returns the number of node hashes currently held by the store.
func (s *Store) Retained() int {
	return s.retained
}
