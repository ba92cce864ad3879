// Package blockcompress implements the per-parent-block compression engine
// that turns a voxelised 3D volume of symbolic tags into a minimal set of
// axis-aligned rectangular boxes ("blocks") whose union exactly reproduces
// the original voxel field.
//
// Two algorithm variants are provided for a single parent block:
//
//   - LineMergeBlock accepts input as X-aligned runs (InsertLine) and
//     compresses with greedy Y-then-Z merging followed by shelf compression,
//     a recursive step that, when a lower block protrudes past the block
//     above it on exactly one footprint edge, carves the protruding part off
//     as a separate "shelf" box so the rest can merge upward. A lower block
//     whose footprint recedes from the block above is not merged, and shelf
//     boxes are not dissolved into their neighbours.
//   - KDTreeBlock accepts input one voxel at a time (InsertVoxel) and
//     compresses by recursively splitting along the axis and position that
//     maximises Shannon information gain, emitting homogeneous leaves.
//
// Both variants share the same construct/fill/compress-print/reset
// lifecycle and the same Vec3/Block/Config vocabulary defined in this
// package. Supporting infrastructure — the CSV tokeniser, the global tag
// interner, and the two-thread plane orchestrator — lives under internal/
// and is wired together by cmd/blockcompress.
package blockcompress
