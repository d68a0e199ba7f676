package ar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// buildHeader formats a 60-byte ar entry header from its fields, right
// padded with spaces the way System V ar does.
func buildHeader(name string, size int) string {
	pad := func(s string, n int) string {
		if len(s) > n {
			return s[:n]
		}
		return s + strings.Repeat(" ", n-len(s))
	}
	var sb strings.Builder
	sb.WriteString(pad(name, 16))
	sb.WriteString(pad("0", 12))           // mtime
	sb.WriteString(pad("0", 6))             // uid
	sb.WriteString(pad("0", 6))             // gid
	sb.WriteString(pad("100644", 8))        // mode (octal)
	sb.WriteString(pad(fmt.Sprint(size), 10)) // size
	sb.WriteString("`\n")
	return sb.String()
}

func writeArchive(t *testing.T, members []struct {
	name string
	data []byte
}) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("!<arch>\n")
	for _, m := range members {
		sb.WriteString(buildHeader(m.name, len(m.data)))
		sb.Write([]byte(string(m.data)))
		if len(m.data)%2 != 0 {
			sb.WriteByte('\n')
		}
	}
	path := filepath.Join(t.TempDir(), "archive.a")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReaderShortNames(t *testing.T) {
	path := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"foo.o/", []byte("FOODATA1")},
		{"bar.o/", []byte("BARDATA22")},
	})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var names []string
	for {
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e == nil {
			break
		}
		names = append(names, e.Name)
	}
	if len(names) != 2 || names[0] != "foo.o" || names[1] != "bar.o" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestReaderGNULongNames(t *testing.T) {
	longName := "libverylongname.o"
	strtab := longName + "/\n"
	path := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"//", []byte(strtab)},
		{"/0", []byte("PAYLOAD1")},
	})

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	e1, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if e1.Tag != StringTable || e1.Name != "//" {
		t.Fatalf("expected string table entry, got %+v", e1)
	}

	e2, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if e2.Name != longName {
		t.Fatalf("Name = %q, want %q", e2.Name, longName)
	}
	if e2.Tag != UserEntry {
		t.Fatalf("expected UserEntry tag, got %v", e2.Tag)
	}
}

func TestReaderBSDLongNames(t *testing.T) {
	realName := "anothername.o"
	payload := realName + "\x00" + "DATA"
	path := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{fmt.Sprintf("#1/%d", len(realName)+1), []byte(payload)},
	})

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	e, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != realName {
		t.Fatalf("Name = %q, want %q", e.Name, realName)
	}
	if e.Size != 4 {
		t.Fatalf("Size = %d, want 4 (payload minus embedded name)", e.Size)
	}
}

func TestReaderGNULongNameBeforeStringTableFails(t *testing.T) {
	path := writeArchive(t, []struct {
		name string
		data []byte
	}{
		{"/0", []byte("PAYLOAD1")},
	})

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := r.Next(); err == nil {
		t.Fatal("expected error referencing uncaptured string table")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.a")
	if err := os.WriteFile(path, []byte("not an archive"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for bad global magic")
	}
}
