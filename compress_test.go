package blockcompress

import (
	"bytes"
	"fmt"
	"testing"
)

// parsedBox is one decoded CSV record, used by the compress-engine tests to
// check the coverage and fidelity properties against the original voxel
// grid, regardless of which engine produced the output.
type parsedBox struct {
	origin, size Vec3
	tag          string
}

func parseBoxes(t *testing.T, out []byte) []parsedBox {
	t.Helper()
	var boxes []parsedBox
	for _, line := range bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var ox, oy, oz, sx, sy, sz int
		var tag string
		n, err := fmt.Sscanf(string(line), "%d,%d,%d,%d,%d,%d,'%s", &ox, &oy, &oz, &sx, &sy, &sz, &tag)
		if err != nil || n != 7 {
			t.Fatalf("parsing box line %q: %v", line, err)
		}
		tag = tag[:len(tag)-1] // Sscanf's %s keeps the closing quote
		boxes = append(boxes, parsedBox{
			origin: Vec3{X: uint16(ox), Y: uint16(oy), Z: uint16(oz)},
			size:   Vec3{X: uint16(sx), Y: uint16(sy), Z: uint16(sz)},
			tag:    tag,
		})
	}
	return boxes
}

// checkCoverage verifies every box lies within dim, that boxes cover every
// voxel exactly once (no gaps, no duplicate coverage), and that every
// covered voxel's tag matches want.
func checkCoverage(t *testing.T, dim Vec3, boxes []parsedBox, want map[Vec3]string) {
	t.Helper()
	seen := make(map[Vec3]bool, dim.Volume())

	for _, b := range boxes {
		if !(b.origin.Add(b.size)).LessEq(dim) {
			t.Fatalf("box %+v exceeds bounds %s", b, dim)
		}
		for z := uint16(0); z < b.size.Z; z++ {
			for y := uint16(0); y < b.size.Y; y++ {
				for x := uint16(0); x < b.size.X; x++ {
					p := Vec3{X: b.origin.X + x, Y: b.origin.Y + y, Z: b.origin.Z + z}
					if seen[p] {
						t.Fatalf("voxel %s covered by more than one box", p)
					}
					seen[p] = true
					if want[p] != b.tag {
						t.Fatalf("voxel %s: want tag %q, got %q", p, want[p], b.tag)
					}
				}
			}
		}
	}

	if uint64(len(seen)) != dim.Volume() {
		t.Fatalf("coverage incomplete: saw %d of %d voxels", len(seen), dim.Volume())
	}
}
