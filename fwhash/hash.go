// Package fwhash contains the hash operations
// that can back a fixed-width Merkle tree.
//
// The tree treats the hash as opaque:
// the same [Func] hashes raw leaf data,
// and it hashes the concatenation of two child hashes
// to produce their parent.
// The tree never inspects the length or algorithm of the output.
package fwhash

import (
	"crypto/sha256"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Func is a hash operation.
//
// A Func must return a newly allocated slice on every call,
// it must not retain or modify the input slice,
// and it must be safe to call concurrently.
type Func func(in []byte) []byte

// SHA256 returns the SHA-256 digest of in.
func SHA256(in []byte) []byte {
	h := sha256.Sum256(in)
	return h[:]
}

// Blake2b256 returns the 32-byte BLAKE2b digest of in.
func Blake2b256(in []byte) []byte {
	h := blake2b.Sum256(in)
	return h[:]
}

// Keccak256 returns the legacy Keccak-256 digest of in,
// as used by Ethereum (not the finalized SHA3-256 padding).
func Keccak256(in []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(in)
	return h.Sum(nil)
}

// Blake3 returns the 32-byte BLAKE3 digest of in.
func Blake3(in []byte) []byte {
	h := blake3.Sum256(in)
	return h[:]
}

// XXH64 returns the 8-byte big-endian XXH64 checksum of in.
//
// XXH64 is not a cryptographic hash.
// It is only suitable for detecting accidental corruption,
// or for tests where throughput matters more than collision resistance.
func XXH64(in []byte) []byte {
	h := xxhash.New()
	_, _ = h.Write(in)
	return h.Sum(nil)
}

var byName = map[string]Func{
	"sha256":      SHA256,
	"blake2b-256": Blake2b256,
	"keccak256":   Keccak256,
	"blake3":      Blake3,
	"xxh64":       XXH64,
}

// ByName returns the Func registered under name,
// and whether such a Func exists.
// See [Names] for the accepted values.
func ByName(name string) (Func, bool) {
	f, ok := byName[name]
	return f, ok
}

// Names returns the sorted names accepted by [ByName].
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
