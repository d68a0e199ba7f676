// Package rsrc locates the Haiku resource tail that may follow an ELF
// payload. Haiku appends a block of resource data after the portion of
// the file the ELF loader actually maps; this package computes where that
// block would start for a raw ELF or for an already-built FatELF container,
// and confirms it is actually present by checking its magic.
package rsrc

import (
	"os"

	"github.com/xyproto/fatelf/internal/bio"
	"github.com/xyproto/fatelf/internal/classify"
	"github.com/xyproto/fatelf/internal/elfhdr"
	"github.com/xyproto/fatelf/internal/fatelf"
)

// Magic is the Haiku resource-table magic, accepted in either byte order.
const Magic uint32 = 0x444f1000

// OffsetForELF inspects the ELF payload end and, for 32-bit files, the
// largest program-header alignment, and returns where a resource tail
// would be aligned to start.
func OffsetForELF(f *os.File) (uint64, error) {
	info, err := elfhdr.PayloadEnd(f)
	if err != nil {
		return 0, err
	}
	var align uint64
	if info.Ident.Class == elfhdr.Class64 {
		align = 8
	} else {
		align = info.MaxAlign
		if align < 32 {
			align = 32
		}
	}
	return bio.AlignUp(info.End, align), nil
}

// OffsetForFatELF returns the offset for the resource tail of an
// already-assembled container: 8-byte aligned after the record whose
// payload ends furthest into the file.
func OffsetForFatELF(h fatelf.Header) uint64 {
	return bio.AlignUp(fatelf.LastRecordEnd(h), 8)
}

// ParseHeader confirms whether a resource table actually starts at offset
// in f. It returns ok=false (not an error) when the file is too short or
// the magic doesn't match either byte order — "no resource" is an expected
// outcome, not a failure.
func ParseHeader(f *os.File, offset uint64) (size uint64, ok bool, err error) {
	fileSize, err := bio.FileSize(f)
	if err != nil {
		return 0, false, err
	}
	if uint64(fileSize) <= offset {
		return 0, false, nil
	}
	word := make([]byte, 4)
	if err := bio.ReadAt(f, int64(offset), word); err != nil {
		return 0, false, err
	}
	v := le32(word)
	if v != Magic && bio.Swap32(v) != Magic {
		return 0, false, nil
	}
	return uint64(fileSize) - offset, true, nil
}

// Descriptor identifies where a resource tail lives within a source file.
type Descriptor struct {
	Offset uint64
	Size   uint64
}

// Find dispatches on the leading magic of f (ELF, FatELF, or other) to
// locate and confirm a carried resource tail.
func Find(f *os.File) (Descriptor, bool, error) {
	kind, err := classify.ClassifyFile(f)
	if err != nil {
		return Descriptor{}, false, err
	}
	var offset uint64
	switch kind {
	case classify.ELF:
		offset, err = OffsetForELF(f)
		if err != nil {
			return Descriptor{}, false, err
		}
	case classify.FatELF:
		h, err := fatelf.ReadHeader(f)
		if err != nil {
			return Descriptor{}, false, err
		}
		offset = OffsetForFatELF(h)
	default:
		return Descriptor{}, false, nil
	}
	size, ok, err := ParseHeader(f, offset)
	if err != nil || !ok {
		return Descriptor{}, false, err
	}
	return Descriptor{Offset: offset, Size: size}, true, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
