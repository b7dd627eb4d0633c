package fwmerkle

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/fwmerkle/fwhash"
	"github.com/gordian-engine/fwmerkle/internal/merkle/hnstore"
)

// OddNodePolicy controls the hash of the trailing node
// of any level with an odd number of nodes.
type OddNodePolicy = hnstore.OddNodePolicy

const (
	// PromoteOddNode carries the lone node's hash up to its parent unchanged.
	// This is the zero value of [OddNodePolicy].
	PromoteOddNode = hnstore.PromoteOddNode

	// DuplicateOddNode hashes the lone node concatenated with itself.
	DuplicateOddNode = hnstore.DuplicateOddNode
)

// TreeConfig is the configuration for [NewTree].
type TreeConfig struct {
	// Number of leaves in the tree. Must be at least one.
	Width int

	// Hash is used for raw leaf values,
	// and for the concatenation of two child hashes.
	// Required.
	Hash fwhash.Func

	// Called with the root hash, exactly once,
	// from within the [*Tree.Set] call that supplies the final leaf.
	// Optional.
	OnComplete func(root []byte)

	// When set, values passed to [*Tree.Set]
	// are used as leaf hashes directly instead of being hashed first.
	PrehashedInput bool

	OddNodes OddNodePolicy
}

// Shape returns the number of nodes at each level of a tree of the given width,
// from the leaves up to the root.
// Shape returns [ErrInvalidWidth] if width is less than one.
func Shape(width int) ([]int, error) {
	if width < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidWidth, width)
	}
	return hnstore.LevelWidths(width), nil
}

// Tree is a Merkle tree of a fixed width
// whose leaves may be supplied in any order.
//
// Any subtree whose leaves are all present is hashed immediately,
// and the hashes beneath it are discarded.
//
// Tree is not safe for concurrent use;
// callers setting leaves from multiple goroutines
// must serialize their calls.
type Tree struct {
	s *hnstore.Store

	hash       fwhash.Func
	onComplete func([]byte)
	prehashed  bool
}

// NewTree returns a new Tree with no leaves set.
//
// NewTree returns [ErrInvalidWidth] if cfg.Width is less than one.
// A nil cfg.Hash is a programming error and causes a panic.
func NewTree(cfg TreeConfig) (*Tree, error) {
	if cfg.Width < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidWidth, cfg.Width)
	}
	if cfg.Hash == nil {
		panic(errors.New("BUG: TreeConfig.Hash must not be nil"))
	}

	h := cfg.Hash
	combine := func(left, right []byte) []byte {
		buf := make([]byte, 0, len(left)+len(right))
		buf = append(buf, left...)
		buf = append(buf, right...)
		return h(buf)
	}

	return &Tree{
		s: hnstore.New(cfg.Width, combine, cfg.OddNodes),

		hash:       h,
		onComplete: cfg.OnComplete,
		prehashed:  cfg.PrehashedInput,
	}, nil
}

// Set supplies the leaf at index idx.
//
// Unless the tree was configured with PrehashedInput,
// the leaf hash is the configured hash of value.
//
// Set returns an error wrapping [ErrIndexOutOfRange]
// if idx is outside [0, width),
// or an error wrapping [ErrAlreadySet] if the leaf was already supplied.
// The tree is unchanged in either case.
//
// If this call completes the tree,
// the OnComplete callback runs before Set returns.
func (t *Tree) Set(idx int, value []byte) error {
	// Check bounds before hashing,
	// so misuse does not cost a hash of the whole value.
	if err := t.s.CheckLeaf(idx); err != nil {
		return err
	}

	leaf := value
	if !t.prehashed {
		leaf = t.hash(value)
	}

	root, err := t.s.SetLeaf(idx, leaf)
	if err != nil {
		return err
	}

	if root != nil && t.onComplete != nil {
		t.onComplete(root)
	}

	return nil
}

// CheckLeaf returns the error that [*Tree.Set] would return for idx,
// without hashing anything or modifying the tree.
// It returns nil if the leaf at idx may be set.
func (t *Tree) CheckLeaf(idx int) error {
	return t.s.CheckLeaf(idx)
}

// RootHash returns the root hash,
// or nil if not every leaf has been set.
// The returned slice must not be modified.
func (t *Tree) RootHash() []byte {
	return t.s.Root()
}

// Complete reports whether every leaf has been set.
func (t *Tree) Complete() bool {
	return t.s.Root() != nil
}

// Width returns the number of leaves in the tree.
func (t *Tree) Width() int {
	return t.s.Width()
}

// HasLeaf reports whether the leaf at idx has been set.
// HasLeaf reports false if idx is out of bounds.
func (t *Tree) HasLeaf(idx int) bool {
	return t.s.HasLeaf(idx)
}

// LeafBitset returns a newly allocated bitset of length [*Tree.Width],
// with a bit set for every leaf that has been set.
func (t *Tree) LeafBitset() *bitset.BitSet {
	return t.s.LeafBitset()
}

// SetLeafCount returns the number of leaves that have been set.
func (t *Tree) SetLeafCount() int {
	return t.s.SetLeafCount()
}

// MissingLeaves returns the indices of the leaves not yet set,
// in ascending order.
func (t *Tree) MissingLeaves() []int {
	width := t.s.Width()
	out := make([]int, 0, width-t.s.SetLeafCount())
	bs := t.s.LeafBitset()
	for u, ok := bs.NextClear(0); ok && u < uint(width); u, ok = bs.NextClear(u + 1) {
		out = append(out, int(u))
	}
	return out
}

// Retained returns the number of node hashes the tree currently holds in memory.
//
// Only complete subtrees whose parent is not yet complete are retained,
// so after every leaf is set this is exactly one: the root.
func (t *Tree) Retained() int {
	return t.s.Retained()
}
