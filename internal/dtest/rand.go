package dtest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"
)

// RandomDataForTest returns a byte slice of size sz
// containing pseudorandom data, derived from a seed based on the test name.
func RandomDataForTest(t testing.TB, sz int) []byte {
	out := make([]byte, sz)
	if _, err := RandForTest(t).Read(out); err != nil {
		panic(err)
	}

	return out
}

// RandForTest returns a ChaCha8 source seeded from the test name,
// so a test sees the same sequence on every run.
func RandForTest(t testing.TB) *rand.ChaCha8 {
	// Sha256 happens to be the right size for the chacha8 seed,
	// and this fits well anyway since that means
	// we are not limited by the length of any particular test name.
	seed := sha256.Sum256([]byte(t.Name()))
	return rand.NewChaCha8(seed)
}
