// Package fatelf implements the FatELF container codec: the fixed on-disk
// header and record table, plus the page-alignment and target-equivalence
// helpers the glue engine and the recursive merger both depend on.
package fatelf

import (
	"os"

	"github.com/xyproto/fatelf/internal/bio"
	"github.com/xyproto/fatelf/internal/ferr"
)

const (
	// Magic is the FatELF container magic, little-endian on disk.
	Magic uint32 = 0x1F0E70FA
	// Version is the only format version this codec understands.
	Version uint16 = 1

	// MaxRecords is the largest record count a FatELF header can carry;
	// the count field is a single octet.
	MaxRecords = 255

	fixedPrefixSize = 8
	recordSize      = 24

	// DefaultPageAlign is the page alignment applied to every record's
	// payload offset when no override is configured.
	DefaultPageAlign uint64 = 4096
)

// WordSize values as packed on disk (not 32/64 directly).
const (
	WordSize32 uint8 = 1
	WordSize64 uint8 = 2
)

// ByteOrder values as packed on disk.
const (
	ByteOrderLittle uint8 = 1
	ByteOrderBig    uint8 = 2
)

// Record is one embedded binary's entry in a FatELF header.
type Record struct {
	Machine      uint16
	OSABI        uint8
	OSABIVersion uint8
	WordSize     uint8
	ByteOrder    uint8
	Offset       uint64
	Size         uint64
}

// TargetEquivalent reports whether a and b would collide as the same
// embedded target.
func TargetEquivalent(a, b Record) bool {
	return a.Machine == b.Machine &&
		a.OSABI == b.OSABI &&
		a.OSABIVersion == b.OSABIVersion &&
		a.WordSize == b.WordSize &&
		a.ByteOrder == b.ByteOrder
}

// Header is the in-memory form of a FatELF container header.
type Header struct {
	Records []Record
}

// HeaderSize returns S(n), the on-disk size of a header carrying n records.
func HeaderSize(n int) int64 {
	return int64(fixedPrefixSize + n*recordSize)
}

// PageAlign rounds x up to the nearest multiple of the page size p.
func PageAlign(x, p uint64) uint64 {
	return bio.AlignUp(x, p)
}

// Encode serializes h into its on-disk representation. When verbose is
// true, every field write also echoes its bytes to os.Stderr.
func Encode(h Header, verbose bool) ([]byte, error) {
	if len(h.Records) == 0 || len(h.Records) > MaxRecords {
		return nil, ferr.New(ferr.KindTooManyRecords, "", "record count out of range [1,255]")
	}
	w := bio.NewByteWriter(verbose)
	w.U32(Magic)
	w.U16(Version)
	w.U8(uint8(len(h.Records)))
	w.U8(0) // reserved
	for _, r := range h.Records {
		w.U16(r.Machine)
		w.U8(r.OSABI)
		w.U8(r.OSABIVersion)
		w.U8(r.WordSize)
		w.U8(r.ByteOrder)
		w.U16(0) // reserved
		w.U64(r.Offset)
		w.U64(r.Size)
	}
	return w.Bytes(), nil
}

// WriteHeader serializes h and writes it at offset 0 of f. When verbose is
// true, the encoder echoes every field it writes to os.Stderr.
func WriteHeader(f *os.File, h Header, verbose bool) error {
	buf, err := Encode(h, verbose)
	if err != nil {
		return err
	}
	return bio.WriteAt(f, 0, buf)
}

// Decode parses a FatELF header from buf, which must contain at least the
// fixed prefix.
func Decode(buf []byte) (Header, error) {
	if len(buf) < fixedPrefixSize {
		return Header{}, ferr.New(ferr.KindTruncated, "", "buffer shorter than FatELF fixed prefix")
	}
	magic := le32(buf[0:4])
	if magic != Magic {
		return Header{}, ferr.New(ferr.KindNotFatELF, "", "magic mismatch")
	}
	version := le16(buf[4:6])
	if version != Version {
		return Header{}, ferr.New(ferr.KindUnsupportedVersion, "", "unsupported FatELF version")
	}
	n := int(buf[6])
	if n == 0 || n > MaxRecords {
		return Header{}, ferr.New(ferr.KindTooManyRecords, "", "record count out of range [1,255]")
	}
	need := fixedPrefixSize + n*recordSize
	if len(buf) < need {
		return Header{}, ferr.New(ferr.KindTruncated, "", "buffer shorter than declared record table")
	}
	h := Header{Records: make([]Record, n)}
	off := fixedPrefixSize
	for i := 0; i < n; i++ {
		rec := buf[off : off+recordSize]
		h.Records[i] = Record{
			Machine:      le16(rec[0:2]),
			OSABI:        rec[2],
			OSABIVersion: rec[3],
			WordSize:     rec[4],
			ByteOrder:    rec[5],
			Offset:       le64(rec[8:16]),
			Size:         le64(rec[16:24]),
		}
		off += recordSize
	}
	return h, nil
}

// ReadHeader reads and decodes the FatELF header at the start of f.
func ReadHeader(f *os.File) (Header, error) {
	size, err := bio.FileSize(f)
	if err != nil {
		return Header{}, err
	}
	if size < fixedPrefixSize {
		return Header{}, ferr.New(ferr.KindTruncated, f.Name(), "file shorter than FatELF fixed prefix")
	}
	prefix := make([]byte, fixedPrefixSize)
	if err := bio.ReadAt(f, 0, prefix); err != nil {
		return Header{}, err
	}
	if le32(prefix[0:4]) != Magic {
		return Header{}, ferr.New(ferr.KindNotFatELF, f.Name(), "magic mismatch")
	}
	n := int(prefix[6])
	if n == 0 || n > MaxRecords {
		return Header{}, ferr.New(ferr.KindTooManyRecords, f.Name(), "record count out of range [1,255]")
	}
	total := HeaderSize(n)
	if size < total {
		return Header{}, ferr.New(ferr.KindTruncated, f.Name(), "file shorter than declared record table")
	}
	buf := make([]byte, total)
	if err := bio.ReadAt(f, 0, buf); err != nil {
		return Header{}, err
	}
	return Decode(buf)
}

// LastRecordEnd returns the offset+size of the record whose payload ends
// furthest into the file, used by the Haiku resource locator to place a
// FatELF-level resource tail.
func LastRecordEnd(h Header) uint64 {
	var edge uint64
	for _, r := range h.Records {
		if end := r.Offset + r.Size; end > edge {
			edge = end
		}
	}
	return edge
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
