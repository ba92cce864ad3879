package blockcompress

import (
	"fmt"
	"io"
	"math"
)

// KDTreeBlock is the KD-tree parent-block compression engine: input
// arrives one voxel at a time (InsertVoxel), and is compressed by
// recursively splitting the parent block along the axis and position that
// maximises Shannon information gain, emitting homogeneous leaves.
//
// Like LineMergeBlock, a KDTreeBlock owns all of its state (voxel array,
// local tag table, job stack) and has no shared mutable state with other
// instances.
type KDTreeBlock struct {
	cfg      Config
	originWS Vec3
	namer    TagNamer

	voxels     []uint8
	arrayIndex int

	// localIDTable maps a global TagID to this parent block's dense local
	// ID, keeping the per-block alphabet tight for compact slice tallies.
	localIDTable map[TagID]uint8
	// tagNames maps a local ID back to the global TagID it was interned
	// from, so output can resolve the original tag name via namer.
	tagNames []TagID

	jobs []SubVolume
}

// NewKDTreeBlock constructs a KD-tree engine for one parent block at
// world-space origin originWS.
func NewKDTreeBlock(cfg Config, originWS Vec3, namer TagNamer) *KDTreeBlock {
	return &KDTreeBlock{
		cfg:          cfg,
		originWS:     originWS,
		namer:        namer,
		voxels:       make([]uint8, cfg.Dim.Volume()),
		localIDTable: make(map[TagID]uint8),
	}
}

// getLocalID returns the dense local ID for globalID, interning it into
// this parent block's local tag table on first sighting.
func (k *KDTreeBlock) getLocalID(globalID TagID) (uint8, error) {
	if id, ok := k.localIDTable[globalID]; ok {
		return id, nil
	}
	if len(k.tagNames) >= 256 {
		return 0, ErrAlphabetExhausted
	}
	id := uint8(len(k.tagNames))
	k.localIDTable[globalID] = id
	k.tagNames = append(k.tagNames, globalID)
	return id, nil
}

// InsertVoxel stores the next voxel's tag, in row-major (z, y, x) order.
func (k *KDTreeBlock) InsertVoxel(tag TagID) error {
	if k.arrayIndex >= len(k.voxels) {
		return ErrVoxelOverflow
	}
	id, err := k.getLocalID(tag)
	if err != nil {
		return err
	}
	k.voxels[k.arrayIndex] = id
	k.arrayIndex++
	return nil
}

// Reset clears all block state and advances the world-space origin by
// dz * numPlanes so the same instance can be reused for the next Z-slab.
func (k *KDTreeBlock) Reset(numPlanes int) {
	k.arrayIndex = 0
	k.jobs = k.jobs[:0]
	k.tagNames = k.tagNames[:0]
	for g := range k.localIDTable {
		delete(k.localIDTable, g)
	}
	k.originWS.Z += k.cfg.Dim.Z * uint16(numPlanes)
}

// CompressPrint compresses the filled parent block and writes one CSV line
// per emitted box to w.
func (k *KDTreeBlock) CompressPrint(w io.Writer) error {
	if len(k.tagNames) == 1 {
		return k.writeBox(w, SubVolume{Origin: Vec3{}, Size: k.cfg.Dim}, 0)
	}

	k.jobs = append(k.jobs[:0], SubVolume{Origin: Vec3{}, Size: k.cfg.Dim})
	for len(k.jobs) > 0 {
		job := k.jobs[len(k.jobs)-1]
		k.jobs = k.jobs[:len(k.jobs)-1]

		result := k.chooseSplit(job.Origin, job.Size)
		split := result.Split

		origin2 := job.Origin
		newSize1 := job.Size
		newSize2 := job.Size

		switch split.Axis {
		case axisX:
			origin2.X += split.Point
			newSize1.X = split.Point
			newSize2.X = job.Size.X - split.Point
		case axisY:
			origin2.Y += split.Point
			newSize1.Y = split.Point
			newSize2.Y = job.Size.Y - split.Point
		default:
			origin2.Z += split.Point
			newSize1.Z = split.Point
			newSize2.Z = job.Size.Z - split.Point
		}

		if err := k.emitSide(w, origin2, newSize2, result.PrintRight); err != nil {
			return err
		}
		if err := k.emitSide(w, job.Origin, newSize1, result.PrintLeft); err != nil {
			return err
		}
	}
	return nil
}

// emitSide either prints sub as one box (when printNow or it is a single
// voxel) or pushes it as a new job.
func (k *KDTreeBlock) emitSide(w io.Writer, origin, size Vec3, printNow bool) error {
	sub := SubVolume{Origin: origin, Size: size}
	if printNow {
		localID := k.voxels[k.cfg.index(origin)]
		return k.writeBox(w, sub, localID)
	}
	if size.X == 1 && size.Y == 1 && size.Z == 1 {
		localID := k.voxels[k.cfg.index(origin)]
		return k.writeBox(w, sub, localID)
	}
	k.jobs = append(k.jobs, sub)
	return nil
}

func (k *KDTreeBlock) writeBox(w io.Writer, sub SubVolume, localID uint8) error {
	origin := k.originWS.Add(sub.Origin)
	name := k.namer.GetTag(k.tagNames[localID])
	_, err := fmt.Fprintf(w, "%s,%s,'%s'\n", origin, sub.Size, name)
	return err
}

// debugPrintRaw writes one 1x1x1 box per voxel, mirroring ParentBlock's
// original printRaw() debug dump. It is unreachable from CompressPrint and
// exists only so tests can assert the pre-compression voxel layout.
func (k *KDTreeBlock) debugPrintRaw(w io.Writer) error {
	idx := uint32(0)
	for z := uint16(0); z < k.cfg.Dim.Z; z++ {
		for y := uint16(0); y < k.cfg.Dim.Y; y++ {
			for x := uint16(0); x < k.cfg.Dim.X; x++ {
				sub := SubVolume{Origin: Vec3{X: x, Y: y, Z: z}, Size: Vec3{X: 1, Y: 1, Z: 1}}
				if err := k.writeBox(w, sub, k.voxels[idx]); err != nil {
					return err
				}
				idx++
			}
		}
	}
	return nil
}

// Split names an axis and the local position (1..size.axis-1) that
// separates a sub-volume's job into two.
type Split struct {
	Axis  axis
	Point uint16
}

// SplitResult is the outcome of chooseSplit: the best split found, and
// whether either resulting side is already known to be homogeneous and
// should be emitted immediately instead of pushed as a new job.
type SplitResult struct {
	Split      Split
	PrintLeft  bool
	PrintRight bool
}

// gainLR is the per-position result of a gain sweep: the information gain
// of splitting at this position, and whether the left/right side is
// already homogeneous (zero information content).
type gainLR struct {
	gain                float64
	leftSame, rightSame bool
}

// bestSplitState tracks the best-gain split seen so far across all three
// axes, used only when no homogeneity short-circuit fires.
type bestSplitState struct {
	gain                float64
	split               Split
	leftSame, rightSame bool
}

// chooseSplit finds the best place to split a sub-volume: sweep X, then Y,
// then Z, short-circuiting as soon as an axis yields a homogeneous right
// side or the largest homogeneous left side (see sweepAxis); otherwise the
// best-gain split over all three axes is returned.
func (k *KDTreeBlock) chooseSplit(origin, size Vec3) SplitResult {
	slicesX, slicesY, slicesZ := k.buildSliceTallies(origin, size)

	total := sumTallies(slicesX)
	totalInfo := informationContent(total)

	best := bestSplitState{gain: -1, split: Split{Axis: axisX, Point: 1}}

	if r, ok := k.sweepAxis(axisX, slicesX, total, totalInfo, &best); ok {
		return r
	}
	if r, ok := k.sweepAxis(axisY, slicesY, total, totalInfo, &best); ok {
		return r
	}
	if r, ok := k.sweepAxis(axisZ, slicesZ, total, totalInfo, &best); ok {
		return r
	}

	return SplitResult{Split: best.split, PrintLeft: best.leftSame, PrintRight: best.rightSame}
}

// sweepAxis sweeps every split position along one axis, maintaining
// running left/right tallies incrementally. It returns (result, true) the
// moment a homogeneity short-circuit decides the split outright, otherwise
// it folds its findings into best and returns (zero, false) so the caller
// moves on to the next axis.
func (k *KDTreeBlock) sweepAxis(a axis, slices [][]int, total []int, totalInfo float64, best *bestSplitState) (SplitResult, bool) {
	axisLen := len(slices)
	if axisLen <= 1 {
		return SplitResult{}, false
	}

	left := make([]int, len(total))
	right := append([]int(nil), total...)

	var pending gainLR
	found := false

	for i := 0; i < axisLen-1; i++ {
		addTally(left, slices[i])
		subTally(right, slices[i])

		g := findGain(left, right, totalInfo)

		if g.leftSame {
			pending = g
			found = true
		} else if found {
			return SplitResult{Split: Split{Axis: a, Point: uint16(i)}, PrintLeft: pending.leftSame, PrintRight: pending.rightSame}, true
		}

		if g.rightSame {
			return SplitResult{Split: Split{Axis: a, Point: uint16(i + 1)}, PrintLeft: g.leftSame, PrintRight: g.rightSame}, true
		}

		if g.gain > best.gain {
			best.gain = g.gain
			best.split = Split{Axis: a, Point: uint16(i + 1)}
			best.leftSame = g.leftSame
			best.rightSame = g.rightSame
		}
	}

	if found {
		return SplitResult{Split: Split{Axis: a, Point: uint16(axisLen - 1)}, PrintLeft: true, PrintRight: false}, true
	}
	return SplitResult{}, false
}

// findGain reports the information gain of splitting a sub-volume into
// left and right tallies, given the sub-volume's combined information
// content totalInfo, plus whether either side is already homogeneous.
func findGain(left, right []int, totalInfo float64) gainLR {
	volLeft := tallyTotal(left)
	volRight := tallyTotal(right)
	invTotal := 1.0 / float64(volLeft+volRight)

	pLeft := float64(volLeft) * invTotal
	pRight := float64(volRight) * invTotal

	infoLeft := informationContent(left)
	infoRight := informationContent(right)

	combined := pLeft*infoLeft + pRight*infoRight
	gain := totalInfo - combined

	return gainLR{gain: gain, leftSame: infoLeft == 0, rightSame: infoRight == 0}
}

// informationContent computes the Shannon information of a tag-tally
// vector: 0 when every voxel shares one tag, up to log2(len(counters))
// when evenly split. A single non-zero bucket is short-circuited to 0
// exactly, matching the original's early return (and avoiding relying on
// the numerically-exact cancellation of -1*log2(1) == 0).
func informationContent(counters []int) float64 {
	total := tallyTotal(counters)
	if total == 0 {
		return 0
	}
	inv := 1.0 / float64(total)

	var info float64
	for _, c := range counters {
		if c == 0 {
			continue
		}
		if c == total {
			return 0
		}
		p := float64(c) * inv
		info -= p * math.Log2(p)
	}
	return info
}

func tallyTotal(v []int) int {
	total := 0
	for _, c := range v {
		total += c
	}
	return total
}

func addTally(dst, src []int) {
	for i, c := range src {
		dst[i] += c
	}
}

func subTally(dst, src []int) {
	for i, c := range src {
		dst[i] -= c
	}
}

func sumTallies(slices [][]int) []int {
	if len(slices) == 0 {
		return nil
	}
	total := make([]int, len(slices[0]))
	for _, s := range slices {
		addTally(total, s)
	}
	return total
}

// buildSliceTallies scans every voxel of the sub-volume once, building a
// per-slice tag-count tally along each of the three axes. The scan is the
// single hottest loop in the KD-tree engine (every job visits it), so the
// actual accumulation is behind the buildTallies function variable, which
// init() in kdtree_cpu_amd64.go may swap for an AVX2-aware unrolled
// variant; other architectures keep the scalar scan.
func (k *KDTreeBlock) buildSliceTallies(origin, size Vec3) (slicesX, slicesY, slicesZ [][]int) {
	n := len(k.tagNames)
	slicesX = newTallySlices(int(size.X), n)
	slicesY = newTallySlices(int(size.Y), n)
	slicesZ = newTallySlices(int(size.Z), n)

	buildTallies(k.voxels, k.cfg, origin, size, slicesX, slicesY, slicesZ)
	return
}

func newTallySlices(count, n int) [][]int {
	s := make([][]int, count)
	for i := range s {
		s[i] = make([]int, n)
	}
	return s
}

// buildTallies is the function actually called by buildSliceTallies. It
// defaults to the portable scalar scan; kdtree_cpu_amd64.go may swap it for
// buildTalliesUnrolled4 when the CPU has AVX2, mirroring how simdpack.go's
// initSIMDSelection swaps packLanes/unpackLanes for their SIMD-preferred
// variants. No assembly is involved here — both candidates are plain Go,
// selected once at startup via the same capability-detection idiom.
var buildTallies = buildTalliesScalar

// buildTalliesScalar is the portable reference implementation of the
// per-axis slice-tally scan.
func buildTalliesScalar(voxels []uint8, cfg Config, origin, size Vec3, slicesX, slicesY, slicesZ [][]int) {
	startIndex := cfg.index(origin)
	for z := uint16(0); z < size.Z; z++ {
		lookup := startIndex
		for y := uint16(0); y < size.Y; y++ {
			for x := uint16(0); x < size.X; x++ {
				tag := voxels[lookup+uint32(x)]
				slicesX[x][tag]++
				slicesY[y][tag]++
				slicesZ[z][tag]++
			}
			lookup += cfg.strideY
		}
		startIndex += cfg.strideZ
	}
}

// buildTalliesUnrolled4 is functionally identical to buildTalliesScalar but
// processes the X run in groups of 4 voxels to cut loop-overhead on CPUs
// wide enough to benefit (selected when AVX2 is available). The tail
// (size.X % 4 voxels) falls back to the scalar body.
func buildTalliesUnrolled4(voxels []uint8, cfg Config, origin, size Vec3, slicesX, slicesY, slicesZ [][]int) {
	startIndex := cfg.index(origin)
	full := size.X - size.X%4
	for z := uint16(0); z < size.Z; z++ {
		lookup := startIndex
		for y := uint16(0); y < size.Y; y++ {
			var x uint16
			for ; x < full; x += 4 {
				t0 := voxels[lookup+uint32(x)]
				t1 := voxels[lookup+uint32(x)+1]
				t2 := voxels[lookup+uint32(x)+2]
				t3 := voxels[lookup+uint32(x)+3]
				slicesX[x][t0]++
				slicesX[x+1][t1]++
				slicesX[x+2][t2]++
				slicesX[x+3][t3]++
				slicesY[y][t0]++
				slicesY[y][t1]++
				slicesY[y][t2]++
				slicesY[y][t3]++
				slicesZ[z][t0]++
				slicesZ[z][t1]++
				slicesZ[z][t2]++
				slicesZ[z][t3]++
			}
			for ; x < size.X; x++ {
				tag := voxels[lookup+uint32(x)]
				slicesX[x][tag]++
				slicesY[y][tag]++
				slicesZ[z][tag]++
			}
			lookup += cfg.strideY
		}
		startIndex += cfg.strideZ
	}
}
