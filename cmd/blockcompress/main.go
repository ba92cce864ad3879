// Command blockcompress compresses a voxelised CSV volume into a minimal
// list of axis-aligned boxes.
//
// Usage:
//
//	blockcompress [options] [input.csv]
//
// Examples:
//
//	blockcompress volume.csv                    # line-merge, to stdout
//	blockcompress -variant kdtree volume.csv     # information-gain split
//	blockcompress -o boxes.csv volume.csv        # to a file
//	cat volume.csv | blockcompress               # from stdin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mattdevv/blockcompress/internal/plane"
)

var (
	variantFlag = flag.String("variant", "linemerge", "compression variant: linemerge or kdtree")
	output      = flag.String("o", "", "output file (default: stdout)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	variant, err := parseVariant(*variantFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		os.Exit(1)
	}

	in := os.Stdin
	if args := flag.Args(); len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	orch := &plane.Orchestrator{Variant: variant}
	if err := orch.Run(context.Background(), in, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, plane.ErrPlaneOverrun) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func parseVariant(s string) (plane.Variant, error) {
	switch s {
	case "linemerge":
		return plane.LineMerge, nil
	case "kdtree":
		return plane.KDTree, nil
	default:
		return 0, fmt.Errorf("unknown variant %q (want linemerge or kdtree)", s)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: blockcompress [options] [input.csv]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  blockcompress volume.csv               Line-merge, to stdout\n")
	fmt.Fprintf(os.Stderr, "  blockcompress -variant kdtree volume.csv  Information-gain split\n")
	fmt.Fprintf(os.Stderr, "  cat volume.csv | blockcompress         Read from stdin\n")
}
