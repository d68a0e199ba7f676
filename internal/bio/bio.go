// Package bio provides the checked byte I/O and endian helpers shared by
// every other package in the glue engine: file-size queries, seeked reads,
// a little-endian struct writer for the FatELF/ELF fixed-layout headers, and
// host/target byte swaps for the Haiku resource magic.
package bio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/fatelf/internal/ferr"
)

// FileSize returns the size of an open file, restoring its current offset
// before returning (as glue callers routinely query size mid-scan).
func FileSize(f *os.File) (int64, error) {
	cur, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, ferr.Wrap(ferr.KindIO, f.Name(), "seek current", err)
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, ferr.Wrap(ferr.KindIO, f.Name(), "seek end", err)
	}
	if _, err := f.Seek(cur, io.SeekStart); err != nil {
		return 0, ferr.Wrap(ferr.KindIO, f.Name(), "restore offset", err)
	}
	return end, nil
}

// ReadAt reads exactly len(buf) bytes at offset off, failing with
// ferr.KindTruncated on a short read instead of silently returning fewer
// bytes the way io.ReaderAt is allowed to.
func ReadAt(f *os.File, off int64, buf []byte) error {
	n, err := f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return ferr.Wrap(ferr.KindIO, f.Name(), fmt.Sprintf("read at %d", off), err)
	}
	if n != len(buf) {
		return ferr.New(ferr.KindTruncated, f.Name(), fmt.Sprintf("expected %d bytes at offset %d, got %d", len(buf), off, n))
	}
	return nil
}

// WriteAt writes buf at offset off, failing loudly on a short write.
func WriteAt(f *os.File, off int64, buf []byte) error {
	n, err := f.WriteAt(buf, off)
	if err != nil {
		return ferr.Wrap(ferr.KindIO, f.Name(), fmt.Sprintf("write at %d", off), err)
	}
	if n != len(buf) {
		return ferr.New(ferr.KindIO, f.Name(), fmt.Sprintf("short write at offset %d: wrote %d of %d bytes", off, n, len(buf)))
	}
	return nil
}

// AlignUp rounds x up to the nearest multiple of align. align must be a
// power of two.
func AlignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}

// Swap32 reverses the byte order of a 32-bit word. Used when the Haiku
// resource magic is read from an ELF of non-native endianness.
func Swap32(v uint32) uint32 {
	return (v>>24)&0xff | (v>>8)&0xff00 | (v<<8)&0xff0000 | (v << 24)
}

// ByteWriter accumulates a little-endian, fixed-layout encoding in memory,
// with width-specific append methods and an optional verbose byte echo.
type ByteWriter struct {
	buf     []byte
	verbose bool
}

// NewByteWriter creates an empty ByteWriter. When verbose is true, every
// write also echoes its bytes to os.Stderr.
func NewByteWriter(verbose bool) *ByteWriter {
	return &ByteWriter{verbose: verbose}
}

func (w *ByteWriter) echo(b []byte) {
	if !w.verbose {
		return
	}
	fmt.Fprintf(os.Stderr, " %x", b)
}

// U8 appends a single byte.
func (w *ByteWriter) U8(v uint8) {
	w.buf = append(w.buf, v)
	w.echo(w.buf[len(w.buf)-1:])
}

// U16 appends a little-endian 16-bit word.
func (w *ByteWriter) U16(v uint16) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	w.buf = append(w.buf, b...)
	w.echo(b)
}

// U32 appends a little-endian 32-bit word.
func (w *ByteWriter) U32(v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	w.buf = append(w.buf, b...)
	w.echo(b)
}

// U64 appends a little-endian 64-bit word.
func (w *ByteWriter) U64(v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	w.buf = append(w.buf, b...)
	w.echo(b)
}

// ZeroPad appends n zero bytes.
func (w *ByteWriter) ZeroPad(n int) {
	for i := 0; i < n; i++ {
		w.U8(0)
	}
}

// Bytes returns the accumulated encoding.
func (w *ByteWriter) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *ByteWriter) Len() int { return len(w.buf) }
