// Package glue implements the FatELF glue engine: it assembles N ELF
// inputs into one FatELF container, detecting and re-embedding a Haiku
// resource tail carried by at most one of them. Layout follows a simple
// cursor algorithm: compute an offset, page-align it, zero-fill the gap,
// advance past the record, repeat.
package glue

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/fatelf/internal/bio"
	"github.com/xyproto/fatelf/internal/elfhdr"
	"github.com/xyproto/fatelf/internal/fatelf"
	"github.com/xyproto/fatelf/internal/ferr"
	"github.com/xyproto/fatelf/internal/rsrc"
)

// VerboseMode gates diagnostic progress lines written during assembly.
var VerboseMode = false

// resourceCarrier records which input (if any) supplies the resource tail
// re-embedded in the output: the first one (lowest input index) wins.
type resourceCarrier struct {
	sourceIndex int // -1 means none recorded yet
	srcOffset   uint64
	size        uint64
}

// Glue builds a FatELF container at outPath from the given ELF inputs. On
// any failure the partial output file is unlinked before the error is
// returned, via an explicit deferred close-and-delete rather than a
// process-global unlink target.
func Glue(outPath string, inputs []string, pageAlign uint64) (err error) {
	n := len(inputs)
	if n == 0 || n > fatelf.MaxRecords {
		return ferr.New(ferr.KindTooManyRecords, outPath, "glue requires between 1 and 255 inputs")
	}
	if pageAlign == 0 {
		pageAlign = fatelf.DefaultPageAlign
	}

	out, err := os.Create(outPath)
	if err != nil {
		return ferr.Wrap(ferr.KindIO, outPath, "create output", err)
	}
	// Scoped cleanup: deregistered only on a clean return.
	cleanupArmed := true
	defer func() {
		out.Close()
		if cleanupArmed {
			os.Remove(outPath)
		}
	}()

	headerSize := fatelf.HeaderSize(n)
	if err := zeroFill(out, 0, headerSize); err != nil {
		return err
	}

	records := make([]fatelf.Record, n)
	carrier := resourceCarrier{sourceIndex: -1}
	cur := uint64(headerSize)

	for i, path := range inputs {
		in, err := os.Open(path)
		if err != nil {
			return ferr.Wrap(ferr.KindIO, path, "open input", err)
		}

		binaryOffset := fatelf.PageAlign(cur, pageAlign)
		if err := zeroFill(out, int64(cur), int64(binaryOffset)-int64(cur)); err != nil {
			in.Close()
			return err
		}
		if VerboseMode {
			fmt.Fprintf(os.Stderr, "glue: %s -> offset 0x%x\n", path, binaryOffset)
		}

		info, err := elfhdr.PayloadEnd(in)
		if err != nil {
			in.Close()
			return err
		}

		rec := fatelf.Record{
			Machine:      info.Machine,
			OSABI:        info.Ident.OSABI,
			OSABIVersion: info.Ident.ABIVer,
			Offset:       binaryOffset,
		}
		if info.Ident.Class == elfhdr.Class64 {
			rec.WordSize = fatelf.WordSize64
		} else {
			rec.WordSize = fatelf.WordSize32
		}
		if info.Ident.Order == binary.BigEndian {
			rec.ByteOrder = fatelf.ByteOrderBig
		} else {
			rec.ByteOrder = fatelf.ByteOrderLittle
		}

		for j := 0; j < i; j++ {
			if fatelf.TargetEquivalent(rec, records[j]) {
				in.Close()
				return ferr.New(ferr.KindDuplicateTarget, path, "duplicate target in glue input set")
			}
		}

		fileSize, err := bio.FileSize(in)
		if err != nil {
			in.Close()
			return err
		}

		desc, found, err := rsrc.Find(in)
		if err != nil {
			in.Close()
			return err
		}

		payloadSize := uint64(fileSize)
		if found {
			if carrier.sourceIndex == -1 {
				carrier = resourceCarrier{sourceIndex: i, srcOffset: desc.Offset, size: desc.Size}
			}
			payloadSize = uint64(fileSize) - desc.Size
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "glue: %s carries a %d-byte resource tail at offset 0x%x\n", path, desc.Size, desc.Offset)
			}
		}
		rec.Size = payloadSize

		if err := copyRange(out, int64(binaryOffset), in, 0, int64(payloadSize)); err != nil {
			in.Close()
			return err
		}
		in.Close()

		records[i] = rec
		cur = binaryOffset + payloadSize
	}

	header := fatelf.Header{Records: records}
	if err := fatelf.WriteHeader(out, header, VerboseMode); err != nil {
		return err
	}

	if carrier.sourceIndex != -1 {
		dstOffset := rsrc.OffsetForFatELF(header)
		if VerboseMode {
			fmt.Fprintf(os.Stderr, "glue: re-embedding resource tail from %s at offset 0x%x\n", inputs[carrier.sourceIndex], dstOffset)
		}
		src, err := os.Open(inputs[carrier.sourceIndex])
		if err != nil {
			return ferr.Wrap(ferr.KindIO, inputs[carrier.sourceIndex], "reopen resource carrier", err)
		}
		err = copyRange(out, int64(dstOffset), src, int64(carrier.srcOffset), int64(carrier.size))
		src.Close()
		if err != nil {
			return err
		}
	}

	cleanupArmed = false
	return nil
}

func zeroFill(f *os.File, from, length int64) error {
	if length <= 0 {
		return nil
	}
	const chunkSize = 64 * 1024
	zeros := make([]byte, chunkSize)
	remaining := length
	off := from
	for remaining > 0 {
		n := remaining
		if n > chunkSize {
			n = chunkSize
		}
		if err := bio.WriteAt(f, off, zeros[:n]); err != nil {
			return err
		}
		off += n
		remaining -= n
	}
	return nil
}

func copyRange(dst *os.File, dstOff int64, src *os.File, srcOff, length int64) error {
	if _, err := src.Seek(srcOff, io.SeekStart); err != nil {
		return ferr.Wrap(ferr.KindIO, src.Name(), "seek source", err)
	}
	if _, err := dst.Seek(dstOff, io.SeekStart); err != nil {
		return ferr.Wrap(ferr.KindIO, dst.Name(), "seek dest", err)
	}
	if _, err := io.CopyN(dst, src, length); err != nil {
		return ferr.Wrap(ferr.KindIO, src.Name(), "copy payload", err)
	}
	return nil
}
