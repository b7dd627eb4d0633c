package fwhashtest

import (
	"bytes"
	"testing"

	"github.com/gordian-engine/fwmerkle/fwhash"
	"github.com/stretchr/testify/require"
)

// FuncFactory returns the hash operation under test
// and the number of bytes it is expected to produce.
type FuncFactory func() (f fwhash.Func, hashSize int)

// TestFuncCompliance runs the behaviors every [fwhash.Func]
// must have in order to back a Merkle tree.
func TestFuncCompliance(t *testing.T, f FuncFactory) {
	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		h, _ := f()

		require.Equal(t, h([]byte("deterministic_data")), h([]byte("deterministic_data")))
	})

	t.Run("respects input", func(t *testing.T) {
		t.Parallel()

		h, _ := f()

		require.NotEqual(t, h([]byte("hello")), h([]byte("hellp")))
	})

	t.Run("respects concatenation order", func(t *testing.T) {
		t.Parallel()

		h, _ := f()

		// Parent hashes are computed over left ++ right,
		// so swapping children must change the result.
		left := h([]byte("left"))
		right := h([]byte("right"))

		lr := h(append(bytes.Clone(left), right...))
		rl := h(append(bytes.Clone(right), left...))
		require.NotEqual(t, lr, rl)
	})

	t.Run("fixed output size", func(t *testing.T) {
		t.Parallel()

		h, sz := f()

		for _, in := range [][]byte{nil, {}, []byte("x"), bytes.Repeat([]byte("abc"), 1000)} {
			require.Len(t, h(in), sz)
		}
	})

	t.Run("fresh output slices", func(t *testing.T) {
		t.Parallel()

		h, _ := f()

		in := []byte("same input")
		out1 := h(in)
		out2 := h(in)

		// Modifying one output must not affect the other.
		out1[0] ^= 0xff
		require.NotEqual(t, out1, out2)
	})

	t.Run("does not modify input", func(t *testing.T) {
		t.Parallel()

		h, _ := f()

		in := []byte("unmodified")
		_ = h(in)
		require.Equal(t, []byte("unmodified"), in)
	})
}
