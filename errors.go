package fwmerkle

import (
	"errors"

	"github.com/gordian-engine/fwmerkle/internal/merkle/hnstore"
)

// ErrInvalidWidth is returned from [NewTree]
// when the requested width is less than one.
var ErrInvalidWidth = errors.New("tree width must be at least 1")

// ErrIndexOutOfRange is wrapped by errors from [*Tree.Set]
// when the leaf index is outside [0, width).
var ErrIndexOutOfRange = hnstore.ErrIndexOutOfRange

// ErrAlreadySet is wrapped by errors from [*Tree.Set]
// when the leaf at the given index was already supplied.
var ErrAlreadySet = hnstore.ErrAlreadySet
