package fwbitset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/snappy"
)

// Size of the big endian uint32 length ahead of each snappy block.
// Blocks may exceed 64 KiB for bitsets of millions of bits.
const snappyLenSize = 4

// SnappyEncoder writes a bitset as a snappy block,
// prefixed with the block's big endian uint32 length.
//
// The zero value of SnappyEncoder is ready to use.
// SnappyEncoder is not safe for concurrent use.
type SnappyEncoder struct {
	// The byte slice representative of the bitset's Words.
	// If encoded through the AdaptiveEncoder,
	// it also has a 1-byte prefix of the [rawEncoding] header.
	wordBuf []byte

	// The snappy-encoded version of wordBuf,
	// prefixed with a big endian uint32 length.
	// If encoded through the AdaptiveEncoder,
	// it has a 5-byte prefix: 1 byte for the [snappyEncoding] header
	// and a uint32 length.
	encBuf []byte
}

func (e *SnappyEncoder) encode(
	bs *bitset.BitSet,
	adaptive bool,
) {
	words := bs.Words()
	nBytes := 8 * len(words)

	wordBufLen := nBytes
	if adaptive {
		wordBufLen++
	}
	if cap(e.wordBuf) < wordBufLen {
		e.wordBuf = make([]byte, wordBufLen)
	} else {
		e.wordBuf = e.wordBuf[:wordBufLen]
	}

	maxEnc := snappy.MaxEncodedLen(nBytes) + snappyLenSize
	if adaptive {
		maxEnc++
	}
	if cap(e.encBuf) < maxEnc {
		e.encBuf = make([]byte, maxEnc)
	} else {
		e.encBuf = e.encBuf[:maxEnc]
	}

	encBuf := e.encBuf
	if adaptive {
		encBuf[0] = snappyEncoding
		encBuf = encBuf[1:]
	}

	// Copy the words first.
	wordBuf := e.wordBuf
	if adaptive {
		wordBuf[0] = rawEncoding
		wordBuf = wordBuf[1:]
	}
	putWords(wordBuf, words)

	// Figure out how large the snappy encoding is,
	// then backfill the size header.
	res := snappy.Encode(encBuf[snappyLenSize:], wordBuf)
	binary.BigEndian.PutUint32(encBuf, uint32(len(res)))

	if adaptive {
		e.encBuf = e.encBuf[:1+snappyLenSize+len(res)]
	} else {
		e.encBuf = e.encBuf[:snappyLenSize+len(res)]
	}
}

// WriteBitset writes the snappy-compressed form of bs to w.
func (e *SnappyEncoder) WriteBitset(w io.Writer, bs *bitset.BitSet) error {
	e.encode(bs, false)

	return e.write(w)
}

func (e *SnappyEncoder) write(w io.Writer) error {
	if _, err := w.Write(e.encBuf); err != nil {
		return fmt.Errorf("failed to write snappy bitset: %w", err)
	}

	return nil
}

// SnappyDecoder reads bitsets written by [*SnappyEncoder].
//
// The zero value of SnappyDecoder is ready to use.
// SnappyDecoder is not safe for concurrent use.
type SnappyDecoder struct {
	// Holds the snappy-encoded bytes.
	encBuf []byte

	// The snappy-decoded bytes,
	// to be interpreted as uint64s to back the bitset's Words.
	wordBuf []byte
}

// ReadBitset reads a snappy-compressed bitset from r into bs.
// The decoded size must match the length of bs.
func (d *SnappyDecoder) ReadBitset(r io.Reader, bs *bitset.BitSet) error {
	if cap(d.encBuf) < snappyLenSize {
		// Probably uninitialized.
		// Allocate a bit larger here,
		// since we have to parse the length
		// before we can right-size encBuf.
		d.encBuf = make([]byte, snappyLenSize, 128)
	} else {
		d.encBuf = d.encBuf[:snappyLenSize]
	}

	if _, err := io.ReadFull(r, d.encBuf); err != nil {
		return fmt.Errorf("failed to read snappy length for bitset: %w", err)
	}

	words := bs.Words()
	nBytes := len(words) * 8

	encSz := int(binary.BigEndian.Uint32(d.encBuf))
	if maxSz := snappy.MaxEncodedLen(nBytes); encSz > maxSz {
		return fmt.Errorf(
			"snappy bitset length %d exceeds maximum %d for %d-bit bitset",
			encSz, maxSz, bs.Len(),
		)
	}

	if cap(d.encBuf) < encSz {
		d.encBuf = make([]byte, encSz)
	} else {
		d.encBuf = d.encBuf[:encSz]
	}

	if _, err := io.ReadFull(r, d.encBuf); err != nil {
		return fmt.Errorf("failed to read snappy-encoded bitset: %w", err)
	}

	decSz, err := snappy.DecodedLen(d.encBuf)
	if err != nil {
		return fmt.Errorf("failed to calculate snappy-decoded bitset length: %w", err)
	}
	if decSz != nBytes {
		return fmt.Errorf(
			"calculated decoded size of %d bytes but expected %d",
			decSz, nBytes,
		)
	}

	wb, err := snappy.Decode(d.wordBuf, d.encBuf)
	if err != nil {
		return fmt.Errorf(
			"failed to decode snappy bitset: %w", err,
		)
	}

	// wb could have been nil on error;
	// that's why we used the temporary variable.
	d.wordBuf = wb

	return loadWords(bs, d.wordBuf)
}
