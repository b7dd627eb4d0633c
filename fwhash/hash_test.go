package fwhash_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/gordian-engine/fwmerkle/fwhash"
	"github.com/gordian-engine/fwmerkle/fwhash/fwhashtest"
	"github.com/stretchr/testify/require"
)

func TestCompliance(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		f    fwhash.Func
		sz   int
	}{
		{name: "sha256", f: fwhash.SHA256, sz: 32},
		{name: "blake2b-256", f: fwhash.Blake2b256, sz: 32},
		{name: "keccak256", f: fwhash.Keccak256, sz: 32},
		{name: "blake3", f: fwhash.Blake3, sz: 32},
		{name: "xxh64", f: fwhash.XXH64, sz: 8},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fwhashtest.TestFuncCompliance(t, func() (fwhash.Func, int) {
				return tc.f, tc.sz
			})
		})
	}
}

func TestSHA256_matchesStdlib(t *testing.T) {
	t.Parallel()

	want := sha256.Sum256([]byte("hello"))
	require.Equal(t, want[:], fwhash.SHA256([]byte("hello")))
}

func TestKeccak256_knownVector(t *testing.T) {
	t.Parallel()

	// Keccak-256 of the empty string, as widely published for Ethereum.
	require.Equal(
		t,
		"c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		hex.EncodeToString(fwhash.Keccak256(nil)),
	)
}

func TestByName(t *testing.T) {
	t.Parallel()

	for _, n := range fwhash.Names() {
		f, ok := fwhash.ByName(n)
		require.Truef(t, ok, "name %q listed but not found", n)
		require.NotNil(t, f)
	}

	_, ok := fwhash.ByName("md5")
	require.False(t, ok)

	require.Equal(
		t,
		[]string{"blake2b-256", "blake3", "keccak256", "sha256", "xxh64"},
		fwhash.Names(),
	)
}
