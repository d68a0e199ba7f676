// Package elfhdr inspects ELF identification and class-specific headers: it
// computes the offset of the first byte past the real ELF payload by
// scanning the program and section header tables. It deliberately does not
// use debug/elf's own Open, since that package refuses files this engine
// needs to accept as raw payload candidates (stripped binaries, odd
// e_shstrndx values); instead it reads raw header bytes at fixed offsets of
// an *os.File and decodes them with a binary.ByteOrder picked at runtime
// instead of assuming little-endian.
package elfhdr

import (
	"encoding/binary"
	"os"

	"github.com/xyproto/fatelf/internal/bio"
	"github.com/xyproto/fatelf/internal/ferr"
)

// Class is the ELF file class (32 or 64 bit).
type Class uint8

const (
	Class32 Class = 1
	Class64 Class = 2
)

const (
	ptNull    = 0
	shtNull   = 0
	shtNobits = 8
)

// Ident is the parsed 16-byte ELF identification block.
type Ident struct {
	Class  Class
	Order  binary.ByteOrder
	OSABI  uint8
	ABIVer uint8
}

// Info is the result of inspecting an ELF file: the computed end of its
// payload, its identification, and the largest program-header alignment
// seen (needed by the Haiku resource locator for ELF32 files).
type Info struct {
	Ident    Ident
	Machine  uint16
	End      uint64
	MaxAlign uint64
}

// readIdent parses and validates the 16-byte e_ident block at the start of
// f, returning the class and byte order needed to interpret everything
// that follows it.
func readIdent(f *os.File) (Ident, error) {
	buf := make([]byte, 16)
	if err := bio.ReadAt(f, 0, buf); err != nil {
		return Ident{}, err
	}
	if buf[0] != 0x7F || buf[1] != 'E' || buf[2] != 'L' || buf[3] != 'F' {
		return Ident{}, ferr.New(ferr.KindMalformedELF, f.Name(), "bad e_ident magic")
	}
	var class Class
	switch buf[4] {
	case 1:
		class = Class32
	case 2:
		class = Class64
	default:
		return Ident{}, ferr.New(ferr.KindMalformedELF, f.Name(), "invalid EI_CLASS")
	}
	var order binary.ByteOrder
	switch buf[5] {
	case 1:
		order = binary.LittleEndian
	case 2:
		order = binary.BigEndian
	default:
		return Ident{}, ferr.New(ferr.KindMalformedELF, f.Name(), "invalid EI_DATA")
	}
	return Ident{Class: class, Order: order, OSABI: buf[7], ABIVer: buf[8]}, nil
}

// headerFields holds only the e_machine, e_*hoff, e_*hentsize and e_*hnum
// fields elfhdr needs, read from either the ELF32 or the ELF64 header; it
// deliberately doesn't model the rest of the ELF header (entry point, flags)
// since nothing downstream consumes them.
type headerFields struct {
	machine   uint16
	phoff     uint64
	shoff     uint64
	phentsize uint16
	phnum     uint16
	shentsize uint16
	shnum     uint16
}

func readHeaderFields(f *os.File, id Ident) (headerFields, error) {
	if id.Class == Class64 {
		buf := make([]byte, 64)
		if err := bio.ReadAt(f, 0, buf); err != nil {
			return headerFields{}, err
		}
		o := id.Order
		return headerFields{
			machine:   o.Uint16(buf[18:20]),
			phoff:     o.Uint64(buf[32:40]),
			shoff:     o.Uint64(buf[40:48]),
			phentsize: o.Uint16(buf[54:56]),
			phnum:     o.Uint16(buf[56:58]),
			shentsize: o.Uint16(buf[58:60]),
			shnum:     o.Uint16(buf[60:62]),
		}, nil
	}
	buf := make([]byte, 52)
	if err := bio.ReadAt(f, 0, buf); err != nil {
		return headerFields{}, err
	}
	o := id.Order
	return headerFields{
		machine:   o.Uint16(buf[18:20]),
		phoff:     uint64(o.Uint32(buf[28:32])),
		shoff:     uint64(o.Uint32(buf[32:36])),
		phentsize: o.Uint16(buf[42:44]),
		phnum:     o.Uint16(buf[44:46]),
		shentsize: o.Uint16(buf[46:48]),
		shnum:     o.Uint16(buf[48:50]),
	}, nil
}

// PayloadEnd parses identification and the class-specific file header,
// scans the program and section header
// tables (skipping PT_NULL and SHT_NULL/SHT_NOBITS sections), and returns
// the highest byte offset any segment, section, or the tables themselves
// reach into the file, plus the largest non-null program-header alignment.
func PayloadEnd(f *os.File) (Info, error) {
	id, err := readIdent(f)
	if err != nil {
		return Info{}, err
	}
	hf, err := readHeaderFields(f, id)
	if err != nil {
		return Info{}, err
	}

	size, err := bio.FileSize(f)
	if err != nil {
		return Info{}, err
	}

	var maxEnd, maxAlign uint64

	phTableEnd := hf.phoff + uint64(hf.phnum)*uint64(hf.phentsize)
	if hf.phnum > 0 && phTableEnd > uint64(size) {
		return Info{}, ferr.New(ferr.KindTruncated, f.Name(), "program header table extends past end of file")
	}
	if phTableEnd > maxEnd {
		maxEnd = phTableEnd
	}

	for i := uint16(0); i < hf.phnum; i++ {
		off := hf.phoff + uint64(i)*uint64(hf.phentsize)
		p, err := readProgramHeader(f, id, off)
		if err != nil {
			return Info{}, err
		}
		if p.pType == ptNull {
			continue
		}
		if end := p.offset + p.filesz; end > maxEnd {
			maxEnd = end
		}
		if p.align > maxAlign {
			maxAlign = p.align
		}
	}

	shTableEnd := hf.shoff + uint64(hf.shnum)*uint64(hf.shentsize)
	if hf.shnum > 0 && shTableEnd > uint64(size) {
		return Info{}, ferr.New(ferr.KindTruncated, f.Name(), "section header table extends past end of file")
	}
	if shTableEnd > maxEnd {
		maxEnd = shTableEnd
	}

	for i := uint16(0); i < hf.shnum; i++ {
		off := hf.shoff + uint64(i)*uint64(hf.shentsize)
		s, err := readSectionHeader(f, id, off)
		if err != nil {
			return Info{}, err
		}
		if s.shType == shtNull || s.shType == shtNobits {
			continue
		}
		if end := s.offset + s.size; end > maxEnd {
			maxEnd = end
		}
	}

	return Info{Ident: id, Machine: hf.machine, End: maxEnd, MaxAlign: maxAlign}, nil
}

type programHeader struct {
	pType  uint32
	offset uint64
	filesz uint64
	align  uint64
}

func readProgramHeader(f *os.File, id Ident, off uint64) (programHeader, error) {
	o := id.Order
	if id.Class == Class64 {
		buf := make([]byte, 56)
		if err := bio.ReadAt(f, int64(off), buf); err != nil {
			return programHeader{}, err
		}
		return programHeader{
			pType:  o.Uint32(buf[0:4]),
			offset: o.Uint64(buf[8:16]),
			filesz: o.Uint64(buf[32:40]),
			align:  o.Uint64(buf[48:56]),
		}, nil
	}
	buf := make([]byte, 32)
	if err := bio.ReadAt(f, int64(off), buf); err != nil {
		return programHeader{}, err
	}
	return programHeader{
		pType:  o.Uint32(buf[0:4]),
		offset: uint64(o.Uint32(buf[4:8])),
		filesz: uint64(o.Uint32(buf[16:20])),
		align:  uint64(o.Uint32(buf[28:32])),
	}, nil
}

type sectionHeader struct {
	shType uint32
	offset uint64
	size   uint64
}

func readSectionHeader(f *os.File, id Ident, off uint64) (sectionHeader, error) {
	o := id.Order
	if id.Class == Class64 {
		buf := make([]byte, 64)
		if err := bio.ReadAt(f, int64(off), buf); err != nil {
			return sectionHeader{}, err
		}
		return sectionHeader{
			shType: o.Uint32(buf[4:8]),
			offset: o.Uint64(buf[24:32]),
			size:   o.Uint64(buf[32:40]),
		}, nil
	}
	buf := make([]byte, 40)
	if err := bio.ReadAt(f, int64(off), buf); err != nil {
		return sectionHeader{}, err
	}
	return sectionHeader{
		shType: o.Uint32(buf[4:8]),
		offset: uint64(o.Uint32(buf[16:20])),
		size:   uint64(o.Uint32(buf[20:24])),
	}, nil
}
