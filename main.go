// Command glue assembles per-architecture ELF binaries, or whole directory
// trees of them, into a single FatELF container.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/fatelf/internal/fatelf"
	"github.com/xyproto/fatelf/internal/glue"
	"github.com/xyproto/fatelf/internal/merge"
)

const versionString = "fatelf-glue 1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is separated from main so tests can drive the CLI surface without
// calling os.Exit.
func run(args []string) int {
	fs := flag.NewFlagSet("glue", flag.ContinueOnError)
	recursive := fs.Bool("r", false, "recursive merge: each argument after <out> is a directory tree")
	verbose := fs.Bool("v", false, "verbose mode")
	verboseLong := fs.Bool("verbose", false, "verbose mode")
	version := fs.Bool("V", false, "print version information and exit")
	versionLong := fs.Bool("version", false, "print version information and exit")
	pageSize := fs.Uint64("page-size", 0, "FatELF record page alignment (default from FATELF_PAGE_SIZE or 4096)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage:\n  glue <out> <bin1> <bin2> [...]\n  glue -r <out> <dir1> <dir2> [...]\n")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *version || *versionLong {
		fmt.Println(versionString)
		return 0
	}

	cfg := LoadConfig(fatelf.DefaultPageAlign)
	if *pageSize != 0 {
		cfg.PageAlign = *pageSize
	}
	if *verbose || *verboseLong {
		cfg.Verbose = true
	}
	glue.VerboseMode = cfg.Verbose
	merge.PageAlign = cfg.PageAlign

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return 1
	}
	out := rest[0]
	inputs := rest[1:]

	var err error
	if *recursive {
		err = merge.MergeTrees(merge.StderrDiagnostics, out, inputs)
	} else {
		err = glue.Glue(out, inputs, cfg.PageAlign)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "glue: %v\n", err)
		return 1
	}
	return 0
}
