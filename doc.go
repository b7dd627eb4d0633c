// Package fwmerkle builds a Merkle tree of a known, fixed width
// before the data to be hashed is available.
//
// Leaves can be supplied later, in any order:
// for example, as chunks of a file arrive out of order over a network.
// As soon as every leaf under a subtree has been supplied,
// that subtree's hash is computed and the hashes beneath it are discarded,
// so memory stays bounded by the shape of the tree
// rather than by the leaf data.
//
// The root hash becomes available exactly once,
// on the [*Tree.Set] call that supplies the final leaf,
// at which point the configured completion callback runs.
//
// Parent hashes are the configured hash of the left child's hash
// concatenated with the right child's hash.
// A trailing node without a sibling is handled
// according to the [OddNodePolicy].
//
// See the fwchunk package for a concurrency-safe wrapper
// that assembles a file from fixed-size chunks.
package fwmerkle
