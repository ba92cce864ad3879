//go:build amd64

package blockcompress

import "golang.org/x/sys/cpu"

func init() {
	if cpu.X86.HasAVX2 {
		buildTallies = buildTalliesUnrolled4
	}
}
