// Package classify peeks at a file's leading bytes to tell ELF, FatELF, AR,
// and everything else apart. It is the dispatch point the file-set
// merger and the Haiku resource locator both use before deciding what to do
// with a regular file.
package classify

import (
	"os"

	"github.com/xyproto/fatelf/internal/bio"
)

// Kind is the result of classifying a file's leading bytes.
type Kind int

const (
	Other Kind = iota
	ELF
	FatELF
	AR
)

func (k Kind) String() string {
	switch k {
	case ELF:
		return "ELF"
	case FatELF:
		return "FatELF"
	case AR:
		return "AR"
	default:
		return "other"
	}
}

var arMagic = []byte("!<arch>\n")

// Classify inspects a byte slice already read from the start of a file.
func Classify(head []byte) Kind {
	if len(head) >= 4 && head[0] == 0x7F && head[1] == 'E' && head[2] == 'L' && head[3] == 'F' {
		return ELF
	}
	if len(head) >= 4 {
		v := uint32(head[0]) | uint32(head[1])<<8 | uint32(head[2])<<16 | uint32(head[3])<<24
		if v == fatELFMagic {
			return FatELF
		}
	}
	if len(head) >= len(arMagic) {
		match := true
		for i, b := range arMagic {
			if head[i] != b {
				match = false
				break
			}
		}
		if match {
			return AR
		}
	}
	return Other
}

// fatELFMagic duplicates fatelf.Magic's numeric value so that this package
// does not import the container codec.
const fatELFMagic uint32 = 0x1F0E70FA

// ClassifyFile reads the leading bytes of f (restoring its offset) and
// classifies them.
func ClassifyFile(f *os.File) (Kind, error) {
	size, err := bio.FileSize(f)
	if err != nil {
		return Other, err
	}
	n := int64(8)
	if size < n {
		n = size
	}
	head := make([]byte, n)
	if n > 0 {
		if err := bio.ReadAt(f, 0, head); err != nil {
			return Other, err
		}
	}
	return Classify(head), nil
}
