package blockcompress

import (
	"fmt"
	"io"
)

// NullIndex is the index-array sentinel meaning "interior of a block; look
// at the block's origin voxel instead". It is the maximum uint32, matching
// the original NULL_INDEX = 0xFFFFFFFF.
const NullIndex uint32 = ^uint32(0)

// LineMergeBlock is the line-merge parent-block compression engine: input
// arrives as X-aligned runs (insertLine), and is compressed by greedy
// Y-then-Z merging followed by shelf compression.
//
// A LineMergeBlock owns its index array and block list; there is no shared
// mutable state between instances, so two instances (e.g. the two planes of
// the double-buffered orchestrator) can be driven concurrently as long as
// each is only ever touched by one goroutine at a time.
type LineMergeBlock struct {
	cfg      Config
	originWS Vec3
	namer    TagNamer

	// index holds, at each local voxel position, either NullIndex (interior
	// of a block; consult that block's origin instead) or the index into
	// blocks of the block covering this voxel.
	index []uint32

	blocks []Block
}

// NewLineMergeBlock constructs a line-merge engine for one parent block at
// world-space origin originWS. namer resolves the global TagIDs passed to
// InsertLine back to their string names at output time.
func NewLineMergeBlock(cfg Config, originWS Vec3, namer TagNamer) *LineMergeBlock {
	p := &LineMergeBlock{cfg: cfg, originWS: originWS, namer: namer}
	p.index = make([]uint32, cfg.Dim.Volume())
	p.resetIndex()
	return p
}

func (p *LineMergeBlock) resetIndex() {
	for i := range p.index {
		p.index[i] = NullIndex
	}
}

// InsertLine appends an X-aligned run of length voxels, all carrying tag,
// starting at origin. Callers must insert lines in row-major (z, y, x)
// order so that the greedy pass's "index - stride" neighbour lookups are
// always valid, per the parent-block insertion-order invariant.
func (p *LineMergeBlock) InsertLine(origin Vec3, length uint16, tag TagID) error {
	if length < 1 {
		return ErrZeroLength
	}
	if uint32(origin.X)+uint32(length) > uint32(p.cfg.Dim.X) {
		return fmt.Errorf("%w: origin.x=%d length=%d dim.x=%d", ErrLineOutOfBounds, origin.X, length, p.cfg.Dim.X)
	}

	idx := p.cfg.index(origin)
	blockIdx := uint32(len(p.blocks))
	p.blocks = append(p.blocks, Block{
		Valid: true,
		Sub:   SubVolume{Origin: origin, Size: Vec3{X: length, Y: 1, Z: 1}},
		Tag:   tag,
		Index: idx,
	})
	p.index[idx] = blockIdx
	for i := uint32(1); i < uint32(length); i++ {
		p.index[idx+i] = NullIndex
	}
	return nil
}

// Reset clears all block state and advances the world-space origin by
// dz * numPlanes so the same instance can be reused for the next Z-slab.
func (p *LineMergeBlock) Reset(numPlanes int) {
	p.blocks = p.blocks[:0]
	p.resetIndex()
	p.originWS.Z += p.cfg.Dim.Z * uint16(numPlanes)
}

// CompressPrint compresses the filled parent block and writes one CSV line
// per emitted box to w. It merges the block list in place, so a second call
// before Reset does not reproduce the first call's output.
func (p *LineMergeBlock) CompressPrint(w io.Writer) error {
	if homogeneous, tag := p.homogeneousTag(); homogeneous {
		return p.writeBox(w, SubVolume{Origin: Vec3{}, Size: p.cfg.Dim}, tag)
	}

	p.mergeGreedyAxis(axisY)
	p.mergeGreedyAxis(axisZ)

	p.refreshBlockIndices()

	for i := 0; i < len(p.blocks); i++ {
		if p.blocks[i].Valid {
			p.shelfMerge(uint32(i), axisY)
		}
	}
	for i := 0; i < len(p.blocks); i++ {
		if p.blocks[i].Valid {
			p.shelfMerge(uint32(i), axisZ)
		}
	}

	for i := range p.blocks {
		b := p.blocks[i]
		if !b.Valid {
			continue
		}
		if err := p.writeBox(w, b.Sub, b.Tag); err != nil {
			return err
		}
	}
	return nil
}

// homogeneousTag scans the as-yet-uncompressed block list and reports
// whether every inserted line shares the same tag. The scan is bounded to
// i < len(blocks), fixing the original's one-past-the-end read of
// blocks[size()].
func (p *LineMergeBlock) homogeneousTag() (bool, TagID) {
	if len(p.blocks) == 0 {
		return false, 0
	}
	tag := p.blocks[0].Tag
	for i := 1; i < len(p.blocks); i++ {
		if p.blocks[i].Tag != tag {
			return false, 0
		}
	}
	return true, tag
}

func (p *LineMergeBlock) writeBox(w io.Writer, sub SubVolume, tag TagID) error {
	origin := p.originWS.Add(sub.Origin)
	_, err := fmt.Fprintf(w, "%s,%s,'%s'\n", origin, sub.Size, p.namer.GetTag(tag))
	return err
}

// paintIndex writes blockIdx into every index-array slot covered by sub.
func (p *LineMergeBlock) paintIndex(sub SubVolume, blockIdx uint32) {
	for z := uint16(0); z < sub.Size.Z; z++ {
		for y := uint16(0); y < sub.Size.Y; y++ {
			base := p.cfg.index(Vec3{X: sub.Origin.X, Y: sub.Origin.Y + y, Z: sub.Origin.Z + z})
			for x := uint16(0); x < sub.Size.X; x++ {
				p.index[base+uint32(x)] = blockIdx
			}
		}
	}
}

// refreshBlockIndices re-paints every live block's full sub-volume into the
// index array, re-establishing the global consistency invariant before
// shelf compression runs: for every live block b and every voxel position p
// inside b.Sub, index[p] equals the index of b.
func (p *LineMergeBlock) refreshBlockIndices() {
	for i := range p.blocks {
		if p.blocks[i].Valid {
			p.paintIndex(p.blocks[i].Sub, uint32(i))
		}
	}
}

// mergeGreedyAxis performs one linear pass of greedy merging along a (Y or
// Z), absorbing each live block into the block directly beneath it when the
// tag matches and the footprint on the other axis/axes is identical. Y
// merging assumes all blocks still have size.y == 1 (true immediately after
// line-insertion); Z merging assumes Y merging has already run, so it also
// compares the Y footprint.
func (p *LineMergeBlock) mergeGreedyAxis(a axis) {
	stride := p.cfg.strideFor(a)
	for i := range p.blocks {
		b := p.blocks[i]
		if !b.Valid || b.Sub.Origin.get(a) == 0 {
			continue
		}
		belowIdx := p.index[b.Index-stride]
		if belowIdx == NullIndex {
			continue
		}
		below := p.blocks[belowIdx]
		if !below.Valid || below.Tag != b.Tag {
			continue
		}
		if below.Sub.Origin.X != b.Sub.Origin.X || below.Sub.Size.X != b.Sub.Size.X {
			continue
		}
		if a == axisZ && (below.Sub.Origin.Y != b.Sub.Origin.Y || below.Sub.Size.Y != b.Sub.Size.Y) {
			continue
		}

		p.index[b.Index] = belowIdx
		p.blocks[i].Valid = false
		grown := below.Sub.Size
		grown = grown.with(a, grown.get(a)+b.Sub.Size.get(a))
		p.blocks[belowIdx].Sub.Size = grown
	}
}

// otherAxes returns the two axes, other than a, whose footprint edges are
// compared during shelf compression: always X, plus the axis orthogonal to
// both X and a.
func otherAxes(a axis) (axis, axis) {
	if a == axisY {
		return axisX, axisZ
	}
	return axisX, axisY
}

// edgeRef names one of the four footprint edges examined by shelf
// compression: the min or max bound of one of the two "other" axes.
type edgeRef struct {
	ax    axis
	isMax bool
}

// footprintEdges reports, for every edge in {oa1,oa2} x {min,max}, whether
// top and below agree on that edge's coordinate.
func footprintEdges(top, below SubVolume, oa1, oa2 axis) []bool {
	edge := func(ax axis, isMax bool) bool {
		if !isMax {
			return top.Origin.get(ax) == below.Origin.get(ax)
		}
		return top.Origin.get(ax)+top.Size.get(ax) == below.Origin.get(ax)+below.Size.get(ax)
	}
	return []bool{edge(oa1, false), edge(oa1, true), edge(oa2, false), edge(oa2, true)}
}

// shelfMerge attempts to merge the live block at topIdx into the block
// directly beneath it along axis a, using the protrusion-only shelf
// bookkeeping recorded in DESIGN.md. It returns whether a merge happened;
// on success the block at topIdx is marked invalid.
func (p *LineMergeBlock) shelfMerge(topIdx uint32, a axis) bool {
	top := p.blocks[topIdx]
	if !top.Valid || top.Sub.Origin.get(a) == 0 {
		return false
	}
	belowIdx := p.index[top.Index-p.cfg.strideFor(a)]
	if belowIdx == NullIndex {
		return false
	}
	below := p.blocks[belowIdx]
	if !below.Valid || below.Tag != top.Tag {
		return false
	}

	oa1, oa2 := otherAxes(a)
	edges := footprintEdges(top.Sub, below.Sub, oa1, oa2)
	aligned := 0
	var mismatch edgeRef
	mismatchAxis := []axis{oa1, oa1, oa2, oa2}
	mismatchIsMax := []bool{false, true, false, true}
	for i, ok := range edges {
		if ok {
			aligned++
		} else {
			mismatch = edgeRef{ax: mismatchAxis[i], isMax: mismatchIsMax[i]}
		}
	}

	if aligned == 4 {
		p.mergeUpFull(topIdx, belowIdx, a)
		return true
	}
	if aligned < 3 || below.Sub.Origin.get(a) == 0 {
		return false
	}
	if !isProtrusion(mismatch, top.Sub, below.Sub) {
		return false
	}

	core, shelf := splitFootprint(below.Sub, mismatch, top.Sub)
	coreIdx := uint32(len(p.blocks))
	p.blocks = append(p.blocks, Block{Valid: true, Sub: core, Tag: below.Tag, Index: p.cfg.index(core.Origin)})
	p.blocks[belowIdx].Sub = shelf
	p.blocks[belowIdx].Index = p.cfg.index(shelf.Origin)
	p.paintIndex(core, coreIdx)
	p.paintIndex(shelf, belowIdx)

	// Continue-then-shelf-out: try to push the newly-carved core further
	// down before absorbing top into it. Best-effort; ignored on failure.
	// On success core has been absorbed by the block beneath it, which now
	// owns core's origin slot, so top is absorbed into that block instead.
	if p.shelfMerge(coreIdx, a) {
		coreIdx = p.index[p.cfg.index(core.Origin)]
	}

	p.mergeUpFull(topIdx, coreIdx, a)
	return true
}

// mergeUpFull absorbs the full volume of the block at topIdx into the block
// at targetIdx along axis a. Callers must ensure the two blocks' footprints
// on the other two axes are already identical.
func (p *LineMergeBlock) mergeUpFull(topIdx, targetIdx uint32, a axis) {
	top := p.blocks[topIdx]
	p.paintIndex(top.Sub, targetIdx)
	target := p.blocks[targetIdx].Sub
	target.Size = target.Size.with(a, target.Size.get(a)+top.Sub.Size.get(a))
	p.blocks[targetIdx].Sub = target
	p.blocks[topIdx].Valid = false
}

// isProtrusion reports whether, at the mismatched edge, below's footprint
// extends further than top's (the shelf is a protrusion of below past top)
// rather than receding short of it. Only protrusions are resolved by
// shelfMerge; a receding mismatch is rejected, per the deliberately
// conservative re-derivation of the original's shelf bookkeeping recorded
// in DESIGN.md.
func isProtrusion(e edgeRef, top, below SubVolume) bool {
	if !e.isMax {
		return below.Origin.get(e.ax) < top.Origin.get(e.ax)
	}
	belowMax := below.Origin.get(e.ax) + below.Size.get(e.ax)
	topMax := top.Origin.get(e.ax) + top.Size.get(e.ax)
	return belowMax > topMax
}

// splitFootprint divides below's volume along the axis named by e into a
// "core" slab whose footprint on e.ax exactly matches top's, and a "shelf"
// slab covering the remaining protruding portion. Both slabs keep below's
// full extent on every other axis, so core ∪ shelf == below exactly.
func splitFootprint(below SubVolume, e edgeRef, top SubVolume) (core, shelf SubVolume) {
	core = below
	shelf = below

	core.Origin = core.Origin.with(e.ax, top.Origin.get(e.ax))
	core.Size = core.Size.with(e.ax, top.Size.get(e.ax))

	if !e.isMax {
		// below starts before top: shelf is the leading slice [below.origin, top.origin)
		shelf.Size = shelf.Size.with(e.ax, top.Origin.get(e.ax)-below.Origin.get(e.ax))
	} else {
		// below ends after top: shelf is the trailing slice [top.max, below.max)
		topMax := top.Origin.get(e.ax) + top.Size.get(e.ax)
		belowMax := below.Origin.get(e.ax) + below.Size.get(e.ax)
		shelf.Origin = shelf.Origin.with(e.ax, topMax)
		shelf.Size = shelf.Size.with(e.ax, belowMax-topMax)
	}
	return core, shelf
}
