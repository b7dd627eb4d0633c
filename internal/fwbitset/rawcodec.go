package fwbitset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
)

// RawEncoder writes a bitset's words directly, with no compression.
//
// The zero value of RawEncoder is ready to use.
// RawEncoder is not safe for concurrent use.
type RawEncoder struct {
	buf []byte
}

func (e *RawEncoder) encode(
	bs *bitset.BitSet,
	adaptive bool,
) {
	words := bs.Words()
	nBytes := 8 * len(words)
	if adaptive {
		nBytes++
	}

	if cap(e.buf) < nBytes {
		e.buf = make([]byte, nBytes)
	} else {
		e.buf = e.buf[:nBytes]
	}

	buf := e.buf
	if adaptive {
		buf[0] = rawEncoding
		buf = buf[1:]
	}

	putWords(buf, words)
}

// WriteBitset writes the raw form of bs to w.
// The reader must already know the bitset's length.
func (e *RawEncoder) WriteBitset(w io.Writer, bs *bitset.BitSet) error {
	e.encode(bs, false)

	if _, err := w.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write raw bitset: %w", err)
	}

	return nil
}

// RawDecoder reads bitsets written by [*RawEncoder].
//
// The zero value of RawDecoder is ready to use.
// RawDecoder is not safe for concurrent use.
type RawDecoder struct {
	buf []byte
}

// ReadBitset reads a raw bitset from r into bs.
// The length of bs determines how many bytes are read.
func (d *RawDecoder) ReadBitset(r io.Reader, bs *bitset.BitSet) error {
	words := bs.Words()
	nBytes := len(words) * 8
	if cap(d.buf) < nBytes {
		d.buf = make([]byte, nBytes)
	} else {
		d.buf = d.buf[:nBytes]
	}

	if _, err := io.ReadFull(r, d.buf); err != nil {
		return fmt.Errorf("failed to read raw bitset data: %w", err)
	}

	return loadWords(bs, d.buf)
}

func putWords(dst []byte, words []uint64) {
	for i, w := range words {
		// Little endian, since that is more likely
		// to match a modern machine's endianness.
		binary.LittleEndian.PutUint64(dst[i*8:], w)
	}
}

// loadWords copies src into the words backing bs,
// rejecting any bits set beyond the bitset's length.
func loadWords(bs *bitset.BitSet, src []byte) error {
	words := bs.Words()
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(src[i*8:])
	}

	if tail := bs.Len() % 64; tail != 0 && len(words) > 0 {
		if extra := words[len(words)-1] >> tail; extra != 0 {
			words[len(words)-1] &= (1 << tail) - 1
			return fmt.Errorf(
				"decoded bitset has bits set beyond length %d", bs.Len(),
			)
		}
	}

	return nil
}
