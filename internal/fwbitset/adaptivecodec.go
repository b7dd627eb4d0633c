package fwbitset

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
)

const (
	rawEncoding    byte = 0
	snappyEncoding byte = 1
)

// AdaptiveEncoder writes a one-byte header followed by
// either the raw or the snappy encoding of a bitset,
// whichever is shorter.
//
// The zero value of AdaptiveEncoder is ready to use.
// AdaptiveEncoder is not safe for concurrent use.
type AdaptiveEncoder struct {
	se SnappyEncoder
}

// WriteBitset writes the adaptive encoding of bs to w.
func (e *AdaptiveEncoder) WriteBitset(w io.Writer, bs *bitset.BitSet) error {
	e.se.encode(bs, true)

	// The wordBuf in the snappy encoder already carries the raw header,
	// so it can be written directly when it is no larger.
	if len(e.se.wordBuf) <= len(e.se.encBuf) {
		if _, err := w.Write(e.se.wordBuf); err != nil {
			return fmt.Errorf("failed to write raw bitset: %w", err)
		}
		return nil
	}

	return e.se.write(w)
}

// AdaptiveDecoder reads bitsets written by [*AdaptiveEncoder].
//
// The zero value of AdaptiveDecoder is ready to use.
// AdaptiveDecoder is not safe for concurrent use.
type AdaptiveDecoder struct {
	sd SnappyDecoder
	rd RawDecoder
}

// ReadBitset reads an adaptively encoded bitset from r into bs.
func (d *AdaptiveDecoder) ReadBitset(r io.Reader, bs *bitset.BitSet) error {
	var h [1]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return fmt.Errorf("failed to read type header for adaptive bitset: %w", err)
	}

	switch h[0] {
	case rawEncoding:
		// Always borrow the snappy decoder's word buffer.
		d.rd.buf = d.sd.wordBuf
		err := d.rd.ReadBitset(r, bs)
		d.sd.wordBuf = d.rd.buf
		return err
	case snappyEncoding:
		return d.sd.ReadBitset(r, bs)
	default:
		return fmt.Errorf(
			"unknown adaptive header byte 0x%x", h[0],
		)
	}
}
