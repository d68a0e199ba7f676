// Package merge implements the file-set merger and the recursive tree
// merger that drives it. The file-set merger decides, for a tuple of paths
// that purport to be the same entity across N sibling trees, which merge
// strategy applies; the tree merger walks the trees in lockstep and hands
// each tuple to it. Attribute preservation (mode/uid/gid on created
// directories) uses golang.org/x/sys/unix for the Lstat/Lchown calls the
// standard library doesn't expose directly.
package merge

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/xyproto/fatelf/internal/ar"
	"github.com/xyproto/fatelf/internal/classify"
	"github.com/xyproto/fatelf/internal/ferr"
	"github.com/xyproto/fatelf/internal/glue"
)

// Diagnostics receives warnings that are not fatal to the merge (byte
// divergence across non-ELF peers). A nil Diagnostics writer discards
// them.
type Diagnostics interface {
	Warnf(format string, args ...any)
}

type stderrDiag struct{}

func (stderrDiag) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

// StderrDiagnostics writes merge warnings to the process's diagnostic
// stream as a single descriptive line per warning.
var StderrDiagnostics Diagnostics = stderrDiag{}

// PageAlign is the FatELF page alignment MergeSet passes through to the
// glue engine when a leg dispatches to it.
var PageAlign uint64

// MergeSet merges a set of paths that share file type across sibling
// trees: given an output path and k≥1 input paths, it dispatches to the
// correct strategy and executes it.
func MergeSet(diag Diagnostics, outPath string, inputs []string) error {
	if len(inputs) == 0 {
		return ferr.New(ferr.KindIO, outPath, "merge requires at least one input")
	}
	if diag == nil {
		diag = discardDiag{}
	}

	fi, err := os.Lstat(inputs[0])
	if err != nil {
		return ferr.Wrap(ferr.KindIO, inputs[0], "lstat", err)
	}

	switch {
	case fi.IsDir():
		return mergeDirectory(inputs[0], outPath)
	case fi.Mode()&os.ModeSymlink != 0:
		return mergeSymlink(inputs[0], outPath)
	case fi.Mode().IsRegular():
		return mergeRegular(diag, outPath, inputs)
	default:
		return ferr.New(ferr.KindUnsupportedFileType, inputs[0], "block/char/fifo/socket inputs are not supported")
	}
}

func mergeDirectory(in, out string) error {
	st, err := os.Lstat(out)
	if err == nil {
		if !st.IsDir() {
			return ferr.New(ferr.KindTypeMismatch, out, "target exists and is not a directory")
		}
		return copyDirAttrs(in, out)
	}
	if !os.IsNotExist(err) {
		return ferr.Wrap(ferr.KindIO, out, "stat target", err)
	}
	if err := os.Mkdir(out, 0700); err != nil {
		return ferr.Wrap(ferr.KindIO, out, "create directory", err)
	}
	return copyDirAttrs(in, out)
}

// copyDirAttrs reproduces the source directory's mode and ownership on the
// target, reading them with unix.Lstat, applying the mode with os.Chmod and
// the ownership with unix.Lchown.
func copyDirAttrs(in, out string) error {
	var st unix.Stat_t
	if err := unix.Lstat(in, &st); err != nil {
		return ferr.Wrap(ferr.KindIO, in, "unix lstat", err)
	}
	if err := os.Chmod(out, os.FileMode(st.Mode&0o7777)); err != nil {
		return ferr.Wrap(ferr.KindIO, out, "chmod", err)
	}
	if err := unix.Lchown(out, int(st.Uid), int(st.Gid)); err != nil {
		// Ownership changes commonly fail for unprivileged processes;
		// mode preservation is the load-bearing half of this step.
		return nil
	}
	return nil
}

func mergeSymlink(in, out string) error {
	target, err := os.Readlink(in)
	if err != nil {
		return ferr.Wrap(ferr.KindIO, in, "readlink", err)
	}
	if st, err := os.Lstat(out); err == nil {
		if st.Mode()&os.ModeSymlink == 0 {
			return ferr.New(ferr.KindTypeMismatch, out, "target exists and is not a symlink")
		}
		existing, err := os.Readlink(out)
		if err != nil {
			return ferr.Wrap(ferr.KindIO, out, "readlink existing target", err)
		}
		if existing != target {
			return ferr.New(ferr.KindTypeMismatch, out, "existing symlink points elsewhere")
		}
		return nil
	} else if !os.IsNotExist(err) {
		return ferr.Wrap(ferr.KindIO, out, "stat target", err)
	}
	if err := os.Symlink(target, out); err != nil {
		return ferr.Wrap(ferr.KindIO, out, "create symlink", err)
	}
	return nil
}

func mergeRegular(diag Diagnostics, outPath string, inputs []string) error {
	kind, err := classifyPath(inputs[0])
	if err != nil {
		return err
	}
	switch kind {
	case classify.ELF:
		return glue.Glue(outPath, inputs, PageAlign)
	case classify.FatELF:
		return ferr.New(ferr.KindUnsupportedInput, inputs[0], "merging an already-fat input is refused")
	case classify.AR:
		return mergeARLeg(inputs)
	default:
		return mergeByteIdentical(diag, outPath, inputs)
	}
}

func classifyPath(path string) (classify.Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return classify.Other, ferr.Wrap(ferr.KindIO, path, "open for classification", err)
	}
	defer f.Close()
	return classify.ClassifyFile(f)
}

// mergeARLeg is scaffolding only: producing a fat ar archive has no
// concrete defined output format (see DESIGN.md "Open Questions"). It
// still streams every leg's archive with the ar reader to validate each
// one parses, then reports the merge as unimplemented.
func mergeARLeg(paths []string) error {
	for _, path := range paths {
		if err := validateARLeg(path); err != nil {
			return err
		}
	}
	return ferr.New(ferr.KindUnimplemented, paths[0], "fat-merging of ar archives is not specified")
}

func validateARLeg(path string) error {
	r, err := ar.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
	}
}

// mergeByteIdentical streams all inputs in parallel, writes the first
// input's stream to the output, and warns (without failing) on any source
// that diverges in length or content.
func mergeByteIdentical(diag Diagnostics, outPath string, inputs []string) error {
	files := make([]*os.File, len(inputs))
	for i, p := range inputs {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files[:i] {
				opened.Close()
			}
			return ferr.Wrap(ferr.KindIO, p, "open input", err)
		}
		files[i] = f
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	out, err := os.Create(outPath)
	if err != nil {
		return ferr.Wrap(ferr.KindIO, outPath, "create output", err)
	}
	defer out.Close()

	const bufSize = 64 * 1024
	bufs := make([][]byte, len(inputs))
	for i := range bufs {
		bufs[i] = make([]byte, bufSize)
	}
	diverged := make([]bool, len(inputs))

	for {
		n0, err0 := io.ReadFull(files[0], bufs[0])
		if err0 != nil && err0 != io.ErrUnexpectedEOF && err0 != io.EOF {
			return ferr.Wrap(ferr.KindIO, inputs[0], "read", err0)
		}
		if n0 > 0 {
			if _, err := out.Write(bufs[0][:n0]); err != nil {
				return ferr.Wrap(ferr.KindIO, outPath, "write", err)
			}
		}

		for i := 1; i < len(inputs); i++ {
			if diverged[i] {
				continue
			}
			ni, erri := io.ReadFull(files[i], bufs[i])
			if erri != nil && erri != io.ErrUnexpectedEOF && erri != io.EOF {
				return ferr.Wrap(ferr.KindIO, inputs[i], "read", erri)
			}
			if ni != n0 || string(bufs[i][:ni]) != string(bufs[0][:n0]) {
				diverged[i] = true
				diag.Warnf("%s diverges from %s", inputs[i], inputs[0])
			}
		}

		if err0 != nil {
			// io.ReadFull only returns a non-nil error at end of stream
			// (io.EOF with nothing read, or io.ErrUnexpectedEOF with a
			// short final chunk already written above).
			break
		}
	}

	return nil
}

type discardDiag struct{}

func (discardDiag) Warnf(string, ...any) {}
