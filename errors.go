package blockcompress

import "errors"

// ErrLineOutOfBounds is returned by InsertLine when the run would extend
// past the parent block's X dimension.
var ErrLineOutOfBounds = errors.New("blockcompress: line insert out of bounds")

// ErrZeroLength is returned by InsertLine when length is less than 1.
var ErrZeroLength = errors.New("blockcompress: line insert length must be >= 1")

// ErrVoxelOverflow is returned by InsertVoxel once the parent block's
// voxel array has already been filled to its full volume.
var ErrVoxelOverflow = errors.New("blockcompress: voxel insert exceeds parent block volume")

// ErrAlphabetExhausted is returned when a parent block's local tag table
// would need to hold more than 256 distinct tags.
var ErrAlphabetExhausted = errors.New("blockcompress: parent block tag alphabet exhausted (>256 distinct tags)")
