// Package hnstore contains the hash node store
// backing a fixed-width Merkle tree.
//
// The store's shape is fixed at construction.
// Level 0 holds the leaves, and each level above holds
// half as many nodes as the level below, rounded up,
// until a single root remains.
// Node i at a level is the parent of nodes 2i and 2i+1 on the level below;
// when 2i+1 does not exist, node i has the single child 2i
// and its hash is derived according to the [OddNodePolicy].
//
// All nodes live in one flat slice, leaves first and the root last:
//
//	width 5:
//	  0 1 2 3 4 , 01 23 4 , 0123 4 , 01234
//
// Leaves may be set in any order.
// As soon as every leaf below a node has been set,
// the node's hash is computed and its children's hashes are dropped,
// so the store only retains the hashes of maximal complete subtrees.
package hnstore
