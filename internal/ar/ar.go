// Package ar streams entries from a System V "ar" archive, resolving BSD
// "#1/<N>" and GNU "/<offset>" long-name extensions against the GNU string
// table member. It parses fixed-size headers with seeked reads against an
// *os.File rather than slurping the whole archive into memory.
package ar

import (
	"os"
	"strconv"
	"strings"

	"github.com/xyproto/fatelf/internal/bio"
	"github.com/xyproto/fatelf/internal/ferr"
)

const (
	globalMagic   = "!<arch>\n"
	entryHeaderSz = 60
)

// Tag distinguishes the three kinds of archive member: ordinary user
// entries and the two control members that must be streamed but never
// handed back as user-visible files.
type Tag int

const (
	UserEntry Tag = iota
	StringTable
	SymbolIndex
)

// Entry is one member of the archive, already resolved to its real name.
type Entry struct {
	Tag        Tag
	Name       string
	Date       int64
	UID, GID   int
	Mode       uint32
	Size       int64
	DataOffset int64
}

// Reader streams entries from an open archive file in order.
type Reader struct {
	f          *os.File
	pos        int64 // offset of the next header to read
	strtab     []byte
	sawStrtab  bool
	atEOF      bool
}

// Open validates the archive's global magic and returns a Reader positioned
// at the first entry.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindIO, path, "open archive", err)
	}
	magic := make([]byte, len(globalMagic))
	if err := bio.ReadAt(f, 0, magic); err != nil {
		f.Close()
		return nil, err
	}
	if string(magic) != globalMagic {
		f.Close()
		return nil, ferr.New(ferr.KindMalformedAR, path, "bad archive global magic")
	}
	return &Reader{f: f, pos: int64(len(globalMagic))}, nil
}

// Close releases the underlying file. Its string-table and name buffers
// are owned by the Reader and die with it.
func (r *Reader) Close() error { return r.f.Close() }

// Next streams the next entry, or (nil, nil) at end of archive. A "//"
// member is captured into the Reader's string table and returned tagged
// StringTable; a "/" member is returned tagged SymbolIndex. Callers that
// only want user-visible files should filter on Tag == UserEntry.
func (r *Reader) Next() (*Entry, error) {
	if r.atEOF {
		return nil, nil
	}
	// ar entries are 2-byte aligned; a single pad byte may precede this
	// header if the prior payload had odd length.
	if r.pos%2 != 0 {
		r.pos++
	}
	size, err := bio.FileSize(r.f)
	if err != nil {
		return nil, err
	}
	if r.pos >= size {
		r.atEOF = true
		return nil, nil
	}
	hdr := make([]byte, entryHeaderSz)
	if err := bio.ReadAt(r.f, r.pos, hdr); err != nil {
		return nil, err
	}
	if hdr[58] != '`' || hdr[59] != '\n' {
		return nil, ferr.New(ferr.KindMalformedAR, r.f.Name(), "missing entry trailer sentinel")
	}

	rawName := strings.TrimRight(string(hdr[0:16]), " ")
	date := parseDecimal(hdr[16:28])
	uid := int(parseDecimal(hdr[28:34]))
	gid := int(parseDecimal(hdr[34:40]))
	mode := uint32(parseOctal(hdr[40:48]))
	size64 := parseDecimal(hdr[48:58])

	dataOffset := r.pos + entryHeaderSz
	entrySize := size64

	name := resolveShortName(rawName)

	switch {
	case strings.HasPrefix(name, "#1/"):
		n, convErr := strconv.Atoi(strings.TrimPrefix(name, "#1/"))
		if convErr != nil {
			return nil, ferr.Wrap(ferr.KindMalformedAR, r.f.Name(), "bad BSD long-name length", convErr)
		}
		nameBuf := make([]byte, n)
		if err := bio.ReadAt(r.f, dataOffset, nameBuf); err != nil {
			return nil, err
		}
		name = strings.TrimRight(string(nameBuf), "\x00")
		dataOffset += int64(n)
		entrySize -= int64(n)
	case strings.HasPrefix(name, "/") && name != "/" && name != "//":
		idx, convErr := strconv.Atoi(strings.TrimPrefix(name, "/"))
		if convErr != nil {
			return nil, ferr.Wrap(ferr.KindMalformedAR, r.f.Name(), "bad GNU long-name index", convErr)
		}
		if !r.sawStrtab {
			return nil, ferr.New(ferr.KindMalformedAR, r.f.Name(), "GNU long name referenced before string table was captured")
		}
		name = gnuStringAt(r.strtab, idx)
	}

	e := &Entry{
		Name:       name,
		Date:       date,
		UID:        uid,
		GID:        gid,
		Mode:       mode,
		Size:       entrySize,
		DataOffset: dataOffset,
	}

	r.pos = dataOffset + entrySize

	switch name {
	case "//":
		buf := make([]byte, entrySize)
		if entrySize > 0 {
			if err := bio.ReadAt(r.f, dataOffset, buf); err != nil {
				return nil, err
			}
		}
		r.strtab = buf
		r.sawStrtab = true
		e.Tag = StringTable
	case "/":
		e.Tag = SymbolIndex
	default:
		e.Tag = UserEntry
	}

	return e, nil
}

// resolveShortName applies the padded-short-name rules: preserve a leading
// "/" for the two special names, otherwise strip a single trailing "/"
// (GNU convention), leaving BSD "#1/<N>" names untouched for the caller to
// detect.
func resolveShortName(raw string) string {
	if raw == "/" || raw == "//" {
		return raw
	}
	return strings.TrimSuffix(raw, "/")
}

func gnuStringAt(tab []byte, idx int) string {
	if idx < 0 || idx >= len(tab) {
		return ""
	}
	end := idx
	for end < len(tab) && tab[end] != '/' && tab[end] != '\n' && tab[end] != 0 {
		end++
	}
	return string(tab[idx:end])
}

func parseDecimal(field []byte) int64 {
	s := strings.TrimSpace(string(field))
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseOctal(field []byte) int64 {
	s := strings.TrimSpace(string(field))
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 8, 64)
	return v
}
