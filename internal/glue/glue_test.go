package glue

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/xyproto/fatelf/internal/bio"
	"github.com/xyproto/fatelf/internal/fatelf"
	"github.com/xyproto/fatelf/internal/rsrc"
	"github.com/xyproto/fatelf/internal/testutil"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGlueTwoInputs(t *testing.T) {
	dir := t.TempDir()
	a32 := writeFile(t, dir, "a32", testutil.BuildELF32(3, 0, 0, []byte("thirty-two-bit-payload"), 0x1000))
	a64 := writeFile(t, dir, "a64", testutil.BuildELF64(62, 0, 0, []byte("sixty-four-bit-payload")))

	out := filepath.Join(dir, "out")
	if err := Glue(out, []string{a32, a64}, 4096); err != nil {
		t.Fatalf("Glue: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h, err := fatelf.ReadHeader(f)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if len(h.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.Records))
	}
	r0, r1 := h.Records[0], h.Records[1]
	if r0.WordSize != fatelf.WordSize32 || r1.WordSize != fatelf.WordSize64 {
		t.Fatalf("unexpected word sizes: %d, %d", r0.WordSize, r1.WordSize)
	}
	if r0.Offset%4096 != 0 || r1.Offset%4096 != 0 {
		t.Fatalf("offsets not page aligned: %d, %d", r0.Offset, r1.Offset)
	}

	in0, _ := os.ReadFile(a32)
	got0 := make([]byte, r0.Size)
	if _, err := f.ReadAt(got0, int64(r0.Offset)); err != nil {
		t.Fatal(err)
	}
	if string(got0) != string(in0) {
		t.Fatal("record 0 payload does not match input bytes")
	}

	in1, _ := os.ReadFile(a64)
	got1 := make([]byte, r1.Size)
	if _, err := f.ReadAt(got1, int64(r1.Offset)); err != nil {
		t.Fatal(err)
	}
	if string(got1) != string(in1) {
		t.Fatal("record 1 payload does not match input bytes")
	}
}

func TestGlueDuplicateTarget(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", testutil.BuildELF64(62, 0, 0, []byte("one")))
	b := writeFile(t, dir, "b", testutil.BuildELF64(62, 0, 0, []byte("two")))

	out := filepath.Join(dir, "out")
	err := Glue(out, []string{a, b}, 4096)
	if err == nil {
		t.Fatal("expected DuplicateTarget error")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("expected partial output to be unlinked on failure")
	}
}

func TestGlueCarriesHaikuResource(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("elf-payload-bytes")
	elf := testutil.BuildELF32(3, 0, 0, payload, 32)

	// A 32-bit resource tail is aligned to max(p_align, 32); pad the ELF
	// payload up to that boundary before appending the tail, matching
	// what OffsetForELF computes.
	aligned := make([]byte, bio.AlignUp(uint64(len(elf)), 32))
	copy(aligned, elf)
	elf = aligned

	tailMagic := make([]byte, 4)
	binary.LittleEndian.PutUint32(tailMagic, rsrc.Magic)
	resourceData := append(tailMagic, []byte("haiku-resource-tail-data")...)

	full := append(append([]byte{}, elf...), resourceData...)
	in := writeFile(t, dir, "in", full)

	out := filepath.Join(dir, "out")
	if err := Glue(out, []string{in}, 4096); err != nil {
		t.Fatalf("Glue: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	h, err := fatelf.ReadHeader(f)
	if err != nil {
		t.Fatal(err)
	}
	rec := h.Records[0]
	if rec.Size != uint64(len(elf)) {
		t.Fatalf("record size = %d, want %d (resource stripped)", rec.Size, len(elf))
	}

	resourceOffset := rsrc.OffsetForFatELF(h)
	got := make([]byte, len(resourceData))
	if _, err := f.ReadAt(got, int64(resourceOffset)); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(resourceData) {
		t.Fatal("resource tail not re-embedded at expected offset")
	}
}
