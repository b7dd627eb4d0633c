// Package fwbitset encodes and decodes bitsets of a length
// already known to both the writer and the reader,
// such as the set of leaves a fixed-width tree has received.
package fwbitset
