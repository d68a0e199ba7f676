package merge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xyproto/fatelf/internal/ferr"
)

type collectDiag struct{ warnings []string }

func (c *collectDiag) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, format)
}

func TestMergeSetSymlink(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	if err := os.Symlink("libc.so.1", a); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("libc.so.1", b); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out")
	if err := MergeSet(nil, out, []string{a, b}); err != nil {
		t.Fatalf("MergeSet: %v", err)
	}
	target, err := os.Readlink(out)
	if err != nil {
		t.Fatal(err)
	}
	if target != "libc.so.1" {
		t.Fatalf("target = %q, want libc.so.1", target)
	}

	// Idempotence: running again must succeed unchanged.
	if err := MergeSet(nil, out, []string{a, b}); err != nil {
		t.Fatalf("second MergeSet: %v", err)
	}
}

func TestMergeSetByteIdenticalMatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	content := []byte("identical content across both trees")
	os.WriteFile(a, content, 0644)
	os.WriteFile(b, content, 0644)

	out := filepath.Join(dir, "out.txt")
	diag := &collectDiag{}
	if err := MergeSet(diag, out, []string{a, b}); err != nil {
		t.Fatalf("MergeSet: %v", err)
	}
	if len(diag.warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", diag.warnings)
	}
	got, _ := os.ReadFile(out)
	if string(got) != string(content) {
		t.Fatal("output does not match identical inputs")
	}
}

func TestMergeSetByteDivergence(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	os.WriteFile(a, []byte("content from A"), 0644)
	os.WriteFile(b, []byte("different content from B"), 0644)

	out := filepath.Join(dir, "out.txt")
	diag := &collectDiag{}
	if err := MergeSet(diag, out, []string{a, b}); err != nil {
		t.Fatalf("MergeSet: %v", err)
	}
	if len(diag.warnings) == 0 {
		t.Fatal("expected a divergence warning")
	}
	got, _ := os.ReadFile(out)
	if string(got) != "content from A" {
		t.Fatal("output must still equal input 1 despite divergence")
	}
}

func TestMergeSetFatELFInputRefused(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fat")
	var header [8]byte
	header[0], header[1], header[2], header[3] = 0xFA, 0x70, 0x0E, 0x1F
	header[4] = 1
	header[6] = 1
	os.WriteFile(path, header[:], 0644)

	out := filepath.Join(dir, "out")
	err := MergeSet(nil, out, []string{path})
	if err == nil {
		t.Fatal("expected UnsupportedInput error for FatELF merge input")
	}
}

func arPad(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func buildMinimalAR(t *testing.T, dir, name string, memberData []byte) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("!<arch>\n")
	sb.WriteString(arPad("member.o/", 16))
	sb.WriteString(arPad("0", 12))  // mtime
	sb.WriteString(arPad("0", 6))   // uid
	sb.WriteString(arPad("0", 6))   // gid
	sb.WriteString(arPad("100644", 8))
	sb.WriteString(arPad(fmt.Sprint(len(memberData)), 10))
	sb.WriteString("`\n")
	sb.Write(memberData)
	if len(memberData)%2 != 0 {
		sb.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMergeSetARValidatesEveryLeg(t *testing.T) {
	dir := t.TempDir()
	a := buildMinimalAR(t, dir, "a.a", []byte("AAAAAAAA"))
	b := buildMinimalAR(t, dir, "b.a", []byte("BBBBBBBB"))

	out := filepath.Join(dir, "out.a")
	err := MergeSet(nil, out, []string{a, b})
	if err == nil {
		t.Fatal("expected Unimplemented error for ar fat-merge")
	}

	// Corrupt the second leg; it must still be reached and reported,
	// proving every input is validated rather than only the first.
	corrupt := filepath.Join(dir, "corrupt.a")
	if err := os.WriteFile(corrupt, []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}
	err = MergeSet(nil, filepath.Join(dir, "out2.a"), []string{a, corrupt})
	var fe *ferr.Error
	if !errors.As(err, &fe) || fe.Kind != ferr.KindMalformedAR {
		t.Fatalf("expected a MalformedAR error from the corrupt second leg, got %v", err)
	}
}

func TestMergeTreesDirectoriesAndFiles(t *testing.T) {
	dir := t.TempDir()
	rootA := filepath.Join(dir, "A")
	rootB := filepath.Join(dir, "B")
	out := filepath.Join(dir, "out")

	os.MkdirAll(filepath.Join(rootA, "sub"), 0755)
	os.MkdirAll(filepath.Join(rootB, "sub"), 0755)
	os.WriteFile(filepath.Join(rootA, "sub", "data.txt"), []byte("same"), 0644)
	os.WriteFile(filepath.Join(rootB, "sub", "data.txt"), []byte("same"), 0644)

	if err := MergeTrees(nil, out, []string{rootA, rootB}); err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "sub", "data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "same" {
		t.Fatal("merged file content mismatch")
	}

	// Running again must be idempotent.
	if err := MergeTrees(nil, out, []string{rootA, rootB}); err != nil {
		t.Fatalf("second MergeTrees: %v", err)
	}
}

func TestMergeTreesRequiresDirectories(t *testing.T) {
	dir := t.TempDir()
	notADir := filepath.Join(dir, "file")
	os.WriteFile(notADir, []byte("x"), 0644)

	err := MergeTrees(nil, filepath.Join(dir, "out"), []string{notADir})
	if err == nil {
		t.Fatal("expected NotADirectory error")
	}
}
