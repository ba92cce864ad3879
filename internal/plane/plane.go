// Package plane implements the double-buffered plane orchestrator: it
// drives the tokeniser and tag interner to fill a grid of parent blocks one
// Z-slab at a time, printing each slab's parent blocks while the next slab
// is read in the background.
//
// Grounded on the original BlockPlane (BlockPlane.cpp/.h) for the reading
// and printing loop structure, and on BlockCompression.cpp's main() for the
// double-buffered read/print alternation — a readingThread launched with
// thread(&BlockPlane::readBlockPlane, ...) and joined after the current
// plane finishes printing. Here that becomes a goroutine joined with a
// sync.WaitGroup, in the idiom Geek0x0-pdf's parallel extraction code uses
// for the same read-ahead-while-processing shape.
package plane

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mattdevv/blockcompress"
	"github.com/mattdevv/blockcompress/internal/intern"
	"github.com/mattdevv/blockcompress/internal/tokenizer"
)

// numBuffers is the fixed double-buffer depth: one plane's parent blocks
// are being printed (and reset) while the next plane's are being read.
const numBuffers = 2

// Variant selects which compression engine backs every parent block in a
// run.
type Variant int

const (
	// LineMerge selects the greedy X-run, Y/Z-merge-then-shelf engine.
	LineMerge Variant = iota
	// KDTree selects the information-gain recursive split engine.
	KDTree
)

// ErrPlaneOverrun is returned when the orchestrator's internal plane
// counter advances past the header-declared number of Z-slabs; it signals
// the same state the original flagged with "BIG ERROR, read too many block
// planes" before exiting with status 2.
var ErrPlaneOverrun = errors.New("plane: read more block planes than the volume declared")

// ErrMalformedHeader is returned when the input's first line cannot be
// parsed as a volume/parent-block dimension description.
var ErrMalformedHeader = errors.New("plane: malformed volume header")

// Orchestrator reads a CSV voxel stream and writes the compressed box list
// for the declared variant.
type Orchestrator struct {
	Variant Variant
}

// parentBlock is the narrow interface the orchestrator drives a single
// parent block through: filled voxel-by-voxel a row at a time, then
// compressed, printed and reset in place for the next Z-slab.
type parentBlock interface {
	StartRow(localY, localZ uint16)
	InsertVoxel(tag blockcompress.TagID) error
	CompressPrint(w io.Writer) error
	Reset(numPlanes int)
}

// kdSink adapts *blockcompress.KDTreeBlock to parentBlock; the KD-tree
// engine already consumes voxels one at a time in row-major order, so no
// row bookkeeping is needed.
type kdSink struct {
	block *blockcompress.KDTreeBlock
}

func (k *kdSink) StartRow(uint16, uint16)                  {}
func (k *kdSink) InsertVoxel(tag blockcompress.TagID) error { return k.block.InsertVoxel(tag) }
func (k *kdSink) CompressPrint(w io.Writer) error          { return k.block.CompressPrint(w) }
func (k *kdSink) Reset(numPlanes int)                      { k.block.Reset(numPlanes) }

// lineAccumulator adapts *blockcompress.LineMergeBlock to parentBlock by
// folding a run of equal-tag voxels along X into a single InsertLine call,
// flushing whenever the tag changes or the row ends.
type lineAccumulator struct {
	block *blockcompress.LineMergeBlock
	sizeX uint16

	curX            uint16
	originY, originZ uint16
	haveRun         bool
	runStart        uint16
	runTag          blockcompress.TagID
	runLen          uint16
	err             error
}

func (l *lineAccumulator) StartRow(localY, localZ uint16) {
	l.curX = 0
	l.originY = localY
	l.originZ = localZ
	l.haveRun = false
}

func (l *lineAccumulator) flush() error {
	if !l.haveRun {
		return nil
	}
	origin := blockcompress.Vec3{X: l.runStart, Y: l.originY, Z: l.originZ}
	l.haveRun = false
	return l.block.InsertLine(origin, l.runLen, l.runTag)
}

func (l *lineAccumulator) InsertVoxel(tag blockcompress.TagID) error {
	if l.haveRun && tag == l.runTag {
		l.runLen++
	} else {
		if err := l.flush(); err != nil {
			return err
		}
		l.runStart, l.runTag, l.runLen, l.haveRun = l.curX, tag, 1, true
	}
	l.curX++
	if l.curX == l.sizeX {
		return l.flush()
	}
	return nil
}

func (l *lineAccumulator) CompressPrint(w io.Writer) error { return l.block.CompressPrint(w) }
func (l *lineAccumulator) Reset(numPlanes int)             { l.block.Reset(numPlanes) }

func newParentBlock(variant Variant, cfg blockcompress.Config, origin blockcompress.Vec3, namer *intern.Table) parentBlock {
	switch variant {
	case KDTree:
		return &kdSink{block: blockcompress.NewKDTreeBlock(cfg, origin, namer)}
	default:
		return &lineAccumulator{block: blockcompress.NewLineMergeBlock(cfg, origin, namer), sizeX: cfg.Dim.X}
	}
}

// blockPlane is one Z-slab's worth of parent blocks: a 2D grid covering
// the full X/Y extent of the volume, each pBlockDim.Z voxels deep.
type blockPlane struct {
	blocks     []parentBlock
	pBlockDim  blockcompress.Vec3
	numPBlocks blockcompress.Vec3
}

func newBlockPlane(variant Variant, cfg blockcompress.Config, numPBlocks blockcompress.Vec3, instanceZ uint16, namer *intern.Table) *blockPlane {
	p := &blockPlane{
		blocks:     make([]parentBlock, 0, int(numPBlocks.X)*int(numPBlocks.Y)),
		pBlockDim:  cfg.Dim,
		numPBlocks: numPBlocks,
	}
	for y := uint16(0); y < numPBlocks.Y; y++ {
		for x := uint16(0); x < numPBlocks.X; x++ {
			origin := blockcompress.Vec3{X: x, Y: y, Z: instanceZ}.Mul(cfg.Dim)
			p.blocks = append(p.blocks, newParentBlock(variant, cfg, origin, namer))
		}
	}
	return p
}

// Read fills every parent block in the plane with one Z-slab of voxels,
// in the exact traversal order the input was written in: z-local, then
// block-row-y, then y-local, then block-column-x, then x-local.
func (p *blockPlane) Read(tok *tokenizer.Scanner, namer *intern.Table) error {
	nx, ny := int(p.numPBlocks.X), int(p.numPBlocks.Y)

	for a := uint16(0); a < p.pBlockDim.Z; a++ {
		pBlockIndex := 0
		for b := uint16(0); b < uint16(ny); b++ {
			for c := uint16(0); c < p.pBlockDim.Y; c++ {
				for d := uint16(0); d < uint16(nx); d++ {
					blk := p.blocks[pBlockIndex]
					blk.StartRow(c, a)
					for e := uint16(0); e < p.pBlockDim.X; e++ {
						tag, err := tok.NextTag()
						if err != nil {
							return fmt.Errorf("plane: reading voxel: %w", err)
						}
						id, err := namer.GetID(tag)
						if err != nil {
							return fmt.Errorf("plane: interning tag %q: %w", tag, err)
						}
						if err := blk.InsertVoxel(id); err != nil {
							return err
						}
					}
					pBlockIndex++
				}
				pBlockIndex -= nx
			}
			pBlockIndex += nx
		}
	}
	return nil
}

// Print compresses and writes every parent block in the plane, then resets
// each one in place, ready for its next Z-slab.
func (p *blockPlane) Print(w io.Writer) error {
	for _, blk := range p.blocks {
		if err := blk.CompressPrint(w); err != nil {
			return err
		}
		blk.Reset(numBuffers)
	}
	return nil
}

// Run reads the header from r, then alternates reading and printing
// Z-slabs of parent blocks until the whole volume has been consumed,
// writing the compressed box list to w.
func (o *Orchestrator) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	tok := tokenizer.NewScanner(r)
	namer := intern.NewTable()

	header, err := tok.Setup()
	if err != nil {
		return fmt.Errorf("plane: reading header: %w", err)
	}

	var volumeDim, pBlockDim blockcompress.Vec3
	var ignore string
	if _, err := fmt.Sscan(header, &ignore,
		&volumeDim.X, &volumeDim.Y, &volumeDim.Z,
		&pBlockDim.X, &pBlockDim.Y, &pBlockDim.Z); err != nil {
		return fmt.Errorf("plane: parsing header %q: %w: %w", header, ErrMalformedHeader, err)
	}
	if pBlockDim.X == 0 || pBlockDim.Y == 0 || pBlockDim.Z == 0 ||
		volumeDim.X%pBlockDim.X != 0 || volumeDim.Y%pBlockDim.Y != 0 || volumeDim.Z%pBlockDim.Z != 0 {
		return fmt.Errorf("plane: volume %s not a multiple of parent-block %s: %w", volumeDim, pBlockDim, ErrMalformedHeader)
	}

	cfg := blockcompress.NewConfig(pBlockDim)
	numPBlocks := volumeDim.Div(pBlockDim)

	planes := [numBuffers]*blockPlane{}
	for i := range planes {
		planes[i] = newBlockPlane(o.Variant, cfg, numPBlocks, uint16(i), namer)
	}
	cur, next := planes[0], planes[1]

	if err := cur.Read(tok, namer); err != nil {
		return err
	}

	currentPlane := uint16(1)
	for currentPlane < numPBlocks.Z {
		if err := ctx.Err(); err != nil {
			return err
		}

		var wg sync.WaitGroup
		var readErr error
		wg.Add(1)
		go func() {
			defer wg.Done()
			readErr = next.Read(tok, namer)
		}()

		printErr := cur.Print(w)
		wg.Wait()

		if printErr != nil {
			return printErr
		}
		if readErr != nil {
			return readErr
		}

		currentPlane++
		cur, next = next, cur
	}

	if currentPlane > numPBlocks.Z {
		return ErrPlaneOverrun
	}

	return cur.Print(w)
}
