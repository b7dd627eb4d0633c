// Package fwchunk assembles a file of known size
// from fixed-size chunks that may arrive in any order,
// computing the file's Merkle root as the chunks arrive.
package fwchunk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/fwmerkle"
	"github.com/gordian-engine/fwmerkle/fwhash"
	"github.com/gordian-engine/fwmerkle/internal/dtrace"
	"github.com/gordian-engine/fwmerkle/internal/fwbitset"
)

// ErrChunkSize is wrapped by errors from [*Assembler.AddChunk]
// when a chunk's length does not match its position in the file.
var ErrChunkSize = errors.New("chunk has wrong size")

// ErrRootMismatch is wrapped by errors from [*Assembler.AddChunk]
// and [*Assembler.Wait] when the completed root
// differs from [AssemblerConfig.ExpectedRoot].
var ErrRootMismatch = errors.New("root hash does not match expected root")

// AssemblerConfig is the configuration for [NewAssembler].
type AssemblerConfig struct {
	// Total size of the file in bytes.
	// A zero-size file is a single empty chunk.
	Size int64

	// Size of every chunk except possibly the last,
	// which holds whatever remains.
	ChunkSize int

	// Hash for chunk data and for interior nodes of the tree.
	Hash fwhash.Func

	OddNodes fwmerkle.OddNodePolicy

	// If set, each accepted chunk is written here at its offset in the file.
	Dst io.WriterAt

	// If set, the completed root is compared against this value.
	ExpectedRoot []byte

	// Optional; a no-op provider is used when nil.
	TracerProvider dtrace.TracerProvider
}

// Assembler accepts the chunks of a file, in any order,
// from any number of goroutines.
type Assembler struct {
	log    *slog.Logger
	tracer dtrace.Tracer

	size      int64
	chunkSize int
	nChunks   int

	dst     io.WriterAt
	expRoot []byte

	// Closed once the final chunk has been added.
	rootReady chan struct{}

	mu   sync.Mutex
	tree *fwmerkle.Tree

	// Only valid after rootReady is closed.
	root []byte
	err  error
}

// NewAssembler returns a new Assembler for the file described by cfg.
func NewAssembler(log *slog.Logger, cfg AssemblerConfig) (*Assembler, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive (got %d)", cfg.ChunkSize)
	}
	if cfg.Size < 0 {
		return nil, fmt.Errorf("size must not be negative (got %d)", cfg.Size)
	}

	n := cfg.Size / int64(cfg.ChunkSize)
	if cfg.Size%int64(cfg.ChunkSize) > 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	if n > math.MaxInt32 {
		return nil, fmt.Errorf(
			"too many chunks: %d bytes at chunk size %d", cfg.Size, cfg.ChunkSize,
		)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = dtrace.NopTracerProvider()
	}

	a := &Assembler{
		log:    log,
		tracer: tp.Tracer("fwchunk"),

		size:      cfg.Size,
		chunkSize: cfg.ChunkSize,
		nChunks:   int(n),

		dst:     cfg.Dst,
		expRoot: bytes.Clone(cfg.ExpectedRoot),

		rootReady: make(chan struct{}),
	}

	tree, err := fwmerkle.NewTree(fwmerkle.TreeConfig{
		Width:      a.nChunks,
		Hash:       cfg.Hash,
		OddNodes:   cfg.OddNodes,
		OnComplete: a.complete,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tree: %w", err)
	}
	a.tree = tree

	return a, nil
}

// NumChunks returns the number of chunks the file is divided into.
func (a *Assembler) NumChunks() int {
	return a.nChunks
}

// ChunkLen returns the expected length of the chunk at idx,
// or -1 if idx is out of range.
func (a *Assembler) ChunkLen(idx int) int {
	if idx < 0 || idx >= a.nChunks {
		return -1
	}
	if idx < a.nChunks-1 {
		return a.chunkSize
	}
	return int(a.size - int64(idx)*int64(a.chunkSize))
}

// AddChunk adds the chunk at index idx.
//
// The returned error wraps [fwmerkle.ErrIndexOutOfRange],
// [fwmerkle.ErrAlreadySet], or [ErrChunkSize] on misuse,
// and in those cases the chunk is not recorded.
// If writing to the configured destination fails,
// the chunk is not recorded and may be added again.
//
// If idx was the final missing chunk
// and the root does not match the configured expected root,
// AddChunk returns an error wrapping [ErrRootMismatch].
func (a *Assembler) AddChunk(ctx context.Context, idx int, data []byte) error {
	_, span := a.tracer.Start(
		ctx,
		"add chunk",
		dtrace.WithAttributes(
			dtrace.ChunkIndexAttr(idx),
			dtrace.ChunkLenAttr(len(data)),
		),
	)
	defer span.End()

	err := a.addChunk(span, idx, data)
	if err != nil {
		span.AddEvent("add chunk failed", dtrace.WithAttributes(dtrace.ErrorAttr(err)))
		dtrace.SpanError(span, err)
	}
	return err
}

func (a *Assembler) addChunk(span dtrace.Span, idx int, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.tree.CheckLeaf(idx); err != nil {
		return err
	}

	if exp := a.ChunkLen(idx); len(data) != exp {
		return fmt.Errorf(
			"%w: chunk %d has %d bytes, expected %d",
			ErrChunkSize, idx, len(data), exp,
		)
	}

	if a.dst != nil {
		off := int64(idx) * int64(a.chunkSize)
		span.AddEvent("write chunk")
		if _, err := a.dst.WriteAt(data, off); err != nil {
			return fmt.Errorf("failed to write chunk %d at offset %d: %w", idx, off, err)
		}
	}

	if err := a.tree.Set(idx, data); err != nil {
		// Already checked; this would be a bug in the tree.
		panic(fmt.Errorf("BUG: failed to set checked leaf %d: %w", idx, err))
	}

	select {
	case <-a.rootReady:
		span.AddEvent(
			"root ready",
			dtrace.WithAttributes(dtrace.RootAttr(a.root)),
		)
		return a.err
	default:
		span.SetAttributes(dtrace.RemainingAttr(a.nChunks - a.tree.SetLeafCount()))
		return nil
	}
}

// complete is the tree's completion callback.
// It runs inside AddChunk, with a.mu held.
func (a *Assembler) complete(root []byte) {
	a.root = bytes.Clone(root)

	if a.expRoot != nil && !bytes.Equal(a.root, a.expRoot) {
		a.err = fmt.Errorf("%w: got %x, expected %x", ErrRootMismatch, a.root, a.expRoot)
		a.log.Warn(
			"Assembled chunks do not match expected root",
			"n_chunks", a.nChunks,
			"root", fmt.Sprintf("%x", a.root),
			"expected_root", fmt.Sprintf("%x", a.expRoot),
		)
	} else {
		a.log.Info(
			"Assembled all chunks",
			"n_chunks", a.nChunks,
			"size", a.size,
			"root", fmt.Sprintf("%x", a.root),
		)
	}

	close(a.rootReady)
}

// RootReady returns a channel that is closed
// once every chunk has been added.
func (a *Assembler) RootReady() <-chan struct{} {
	return a.rootReady
}

// Root returns the root hash,
// or nil if some chunk is still missing.
func (a *Assembler) Root() []byte {
	select {
	case <-a.rootReady:
		return a.root
	default:
		return nil
	}
}

// Wait blocks until every chunk has been added or ctx is canceled.
// It returns the root hash, and an error wrapping [ErrRootMismatch]
// if the root did not match the expected root.
func (a *Assembler) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-a.rootReady:
		return a.root, a.err
	}
}

// Missing returns the indices of chunks not yet added, in ascending order.
func (a *Assembler) Missing() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.tree.MissingLeaves()
}

// Have returns a new bitset of length [*Assembler.NumChunks]
// indicating which chunks have been added.
func (a *Assembler) Have() *bitset.BitSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.tree.LeafBitset()
}

// WriteProgress writes a compact encoding of which chunks have been added,
// for a peer that knows the chunk count to read with [ReadProgress].
func (a *Assembler) WriteProgress(w io.Writer) error {
	var enc fwbitset.AdaptiveEncoder
	if err := enc.WriteBitset(w, a.Have()); err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}
	return nil
}

// ReadProgress reads a progress bitset written by [*Assembler.WriteProgress]
// for a file of nChunks chunks.
func ReadProgress(r io.Reader, nChunks int) (*bitset.BitSet, error) {
	if nChunks < 1 {
		return nil, fmt.Errorf("chunk count must be positive (got %d)", nChunks)
	}

	bs := bitset.MustNew(uint(nChunks))
	var dec fwbitset.AdaptiveDecoder
	if err := dec.ReadBitset(r, bs); err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	return bs, nil
}
