package blockcompress

import (
	"bytes"
	"testing"

	"github.com/mattdevv/blockcompress/internal/intern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillKDTree inserts one voxel grid into k in row-major (z, y, x) order, the
// same order InsertVoxel requires, and returns the expected per-voxel tag
// map for checkCoverage to verify against.
func fillKDTree(t *testing.T, k *KDTreeBlock, namer *intern.Table, dim Vec3, tagFn func(x, y, z uint16) string) map[Vec3]string {
	t.Helper()
	want := make(map[Vec3]string, dim.Volume())

	for z := uint16(0); z < dim.Z; z++ {
		for y := uint16(0); y < dim.Y; y++ {
			for x := uint16(0); x < dim.X; x++ {
				tag := tagFn(x, y, z)
				want[Vec3{X: x, Y: y, Z: z}] = tag
				id, err := namer.GetID(tag)
				require.NoError(t, err)
				require.NoError(t, k.InsertVoxel(id))
			}
		}
	}
	return want
}

func TestKDTreeHomogeneousCollapse(t *testing.T) {
	dim := Vec3{X: 4, Y: 4, Z: 4}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	want := fillKDTree(t, k, namer, dim, func(x, y, z uint16) string { return "stone" })

	var out bytes.Buffer
	require.NoError(t, k.CompressPrint(&out))

	boxes := parseBoxes(t, out.Bytes())
	require.Len(t, boxes, 1)
	assert.Equal(t, dim, boxes[0].size)
	checkCoverage(t, dim, boxes, want)
}

func TestKDTreeSingleVoxel(t *testing.T) {
	dim := Vec3{X: 1, Y: 1, Z: 1}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	want := fillKDTree(t, k, namer, dim, func(x, y, z uint16) string { return "air" })

	var out bytes.Buffer
	require.NoError(t, k.CompressPrint(&out))
	checkCoverage(t, dim, parseBoxes(t, out.Bytes()), want)
}

func TestKDTreeCoverageAndFidelity(t *testing.T) {
	dim := Vec3{X: 5, Y: 6, Z: 4}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	tags := []string{"air", "stone", "dirt", "glass"}
	tagFn := func(x, y, z uint16) string {
		return tags[(int(x)+2*int(y)+5*int(z))%len(tags)]
	}
	want := fillKDTree(t, k, namer, dim, tagFn)

	var out bytes.Buffer
	require.NoError(t, k.CompressPrint(&out))
	checkCoverage(t, dim, parseBoxes(t, out.Bytes()), want)
}

func TestKDTreeTwoHalves(t *testing.T) {
	// A clean axis-aligned split should converge on very few boxes: gain is
	// maximised by splitting exactly on the tag boundary.
	dim := Vec3{X: 4, Y: 4, Z: 4}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	tagFn := func(x, y, z uint16) string {
		if x < 2 {
			return "stone"
		}
		return "air"
	}
	want := fillKDTree(t, k, namer, dim, tagFn)

	var out bytes.Buffer
	require.NoError(t, k.CompressPrint(&out))

	boxes := parseBoxes(t, out.Bytes())
	checkCoverage(t, dim, boxes, want)
	assert.LessOrEqual(t, len(boxes), 2)
}

func TestKDTreeWorldSpaceOrigin(t *testing.T) {
	dim := Vec3{X: 2, Y: 2, Z: 2}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	originWS := Vec3{X: 8, Y: 16, Z: 24}
	k := NewKDTreeBlock(cfg, originWS, namer)

	fillKDTree(t, k, namer, dim, func(x, y, z uint16) string { return "glass" })

	var out bytes.Buffer
	require.NoError(t, k.CompressPrint(&out))

	boxes := parseBoxes(t, out.Bytes())
	require.Len(t, boxes, 1)
	assert.Equal(t, originWS, boxes[0].origin)
}

func TestKDTreeInsertVoxelOverflow(t *testing.T) {
	dim := Vec3{X: 1, Y: 1, Z: 1}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	id, err := namer.GetID("stone")
	require.NoError(t, err)
	require.NoError(t, k.InsertVoxel(id))
	assert.ErrorIs(t, k.InsertVoxel(id), ErrVoxelOverflow)
}

func TestKDTreeReset(t *testing.T) {
	dim := Vec3{X: 2, Y: 2, Z: 2}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	fillKDTree(t, k, namer, dim, func(x, y, z uint16) string { return "stone" })
	require.NoError(t, k.CompressPrint(&bytes.Buffer{}))

	k.Reset(2)
	assert.Equal(t, Vec3{X: 0, Y: 0, Z: 4}, k.originWS)
	assert.Equal(t, 0, k.arrayIndex)
	assert.Empty(t, k.tagNames)
	assert.Empty(t, k.localIDTable)

	want := fillKDTree(t, k, namer, dim, func(x, y, z uint16) string { return "dirt" })
	var out bytes.Buffer
	require.NoError(t, k.CompressPrint(&out))
	checkCoverage(t, dim, parseBoxes(t, out.Bytes()), want)
}

func TestKDTreeDebugPrintRaw(t *testing.T) {
	dim := Vec3{X: 2, Y: 1, Z: 1}
	cfg := NewConfig(dim)
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)
	want := fillKDTree(t, k, namer, dim, func(x, y, z uint16) string {
		if x == 0 {
			return "air"
		}
		return "stone"
	})

	var out bytes.Buffer
	require.NoError(t, k.debugPrintRaw(&out))

	boxes := parseBoxes(t, out.Bytes())
	require.Len(t, boxes, 2)
	for _, b := range boxes {
		assert.Equal(t, Vec3{X: 1, Y: 1, Z: 1}, b.size)
	}
	checkCoverage(t, dim, boxes, want)
}

func TestInformationContent(t *testing.T) {
	assert.Equal(t, 0.0, informationContent([]int{0, 0, 0}))
	assert.Equal(t, 0.0, informationContent([]int{5}))
	assert.Equal(t, 0.0, informationContent([]int{5, 0, 0}))
	assert.InDelta(t, 1.0, informationContent([]int{4, 4}), 1e-9)
}

func TestGainMonotonicity(t *testing.T) {
	// Splitting a perfectly separable two-tag slab should yield strictly
	// positive gain, since both sides become homogeneous.
	left := []int{4, 0}
	right := []int{0, 4}
	total := []int{4, 4}
	totalInfo := informationContent(total)

	g := findGain(left, right, totalInfo)
	assert.Greater(t, g.gain, 0.0)
	assert.True(t, g.leftSame)
	assert.True(t, g.rightSame)

	// A split that does not separate the tags at all should yield zero
	// gain: both sides have the same distribution as the whole.
	evenLeft := []int{2, 2}
	evenRight := []int{2, 2}
	gEven := findGain(evenLeft, evenRight, totalInfo)
	assert.InDelta(t, 0.0, gEven.gain, 1e-9)
}

func TestLocalIDInjectivity(t *testing.T) {
	cfg := NewConfig(Vec3{X: 4, Y: 1, Z: 1})
	namer := intern.NewTable()
	k := NewKDTreeBlock(cfg, Vec3{}, namer)

	gid1, _ := namer.GetID("stone")
	gid2, _ := namer.GetID("air")

	l1a, err := k.getLocalID(gid1)
	require.NoError(t, err)
	l2, err := k.getLocalID(gid2)
	require.NoError(t, err)
	l1b, err := k.getLocalID(gid1)
	require.NoError(t, err)

	assert.Equal(t, l1a, l1b)
	assert.NotEqual(t, l1a, l2)
}
