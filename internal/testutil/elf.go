// Package testutil builds minimal synthetic ELF files for tests across the
// glue engine's packages, since the module carries no binary fixtures.
package testutil

import (
	"encoding/binary"
)

// BuildELF64 returns a minimal valid little-endian ELF64 file: an ELF
// header, one PT_LOAD program header spanning the whole file, and the
// given payload appended after the headers. It has no sections, matching
// what a freshly-assembled static object commonly looks like.
func BuildELF64(machine uint16, osabi, abiVersion byte, payload []byte) []byte {
	const (
		ehsize = 64
		phsize = 56
	)
	total := ehsize + phsize + len(payload)

	buf := make([]byte, total)
	// e_ident
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	buf[7] = osabi
	buf[8] = abiVersion

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2) // e_type = ET_EXEC
	le.PutUint16(buf[18:20], machine)
	le.PutUint32(buf[20:24], 1)            // e_version
	le.PutUint64(buf[24:32], 0x400000)     // e_entry
	le.PutUint64(buf[32:40], ehsize)       // e_phoff
	le.PutUint64(buf[40:48], 0)            // e_shoff
	le.PutUint32(buf[48:52], 0)            // e_flags
	le.PutUint16(buf[52:54], ehsize)       // e_ehsize
	le.PutUint16(buf[54:56], phsize)       // e_phentsize
	le.PutUint16(buf[56:58], 1)            // e_phnum
	le.PutUint16(buf[58:60], 0)            // e_shentsize
	le.PutUint16(buf[60:62], 0)            // e_shnum
	le.PutUint16(buf[62:64], 0)            // e_shstrndx

	ph := buf[ehsize : ehsize+phsize]
	le.PutUint32(ph[0:4], 1) // PT_LOAD
	le.PutUint32(ph[4:8], 5) // p_flags
	le.PutUint64(ph[8:16], 0)
	le.PutUint64(ph[16:24], 0x400000)
	le.PutUint64(ph[24:32], 0x400000)
	le.PutUint64(ph[32:40], uint64(total))
	le.PutUint64(ph[40:48], uint64(total))
	le.PutUint64(ph[48:56], 0x1000)

	copy(buf[ehsize+phsize:], payload)
	return buf
}

// BuildELF32 returns a minimal valid little-endian ELF32 file in the same
// shape as BuildELF64, with 32-bit program header layout.
func BuildELF32(machine uint16, osabi, abiVersion byte, payload []byte, align uint32) []byte {
	const (
		ehsize = 52
		phsize = 32
	)
	total := ehsize + phsize + len(payload)

	buf := make([]byte, total)
	buf[0], buf[1], buf[2], buf[3] = 0x7F, 'E', 'L', 'F'
	buf[4] = 1 // ELFCLASS32
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1
	buf[7] = osabi
	buf[8] = abiVersion

	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)
	le.PutUint16(buf[18:20], machine)
	le.PutUint32(buf[20:24], 1)
	le.PutUint32(buf[24:28], 0x8048000)
	le.PutUint32(buf[28:32], ehsize)
	le.PutUint32(buf[32:36], 0)
	le.PutUint32(buf[36:40], 0)
	le.PutUint16(buf[40:42], ehsize)
	le.PutUint16(buf[42:44], phsize)
	le.PutUint16(buf[44:46], 1)
	le.PutUint16(buf[46:48], 0)
	le.PutUint16(buf[48:50], 0)
	le.PutUint16(buf[50:52], 0)

	ph := buf[ehsize : ehsize+phsize]
	le.PutUint32(ph[0:4], 1)           // p_type = PT_LOAD
	le.PutUint32(ph[4:8], 0)           // p_offset
	le.PutUint32(ph[8:12], 0x8048000)  // p_vaddr
	le.PutUint32(ph[12:16], 0x8048000) // p_paddr
	le.PutUint32(ph[16:20], uint32(total)) // p_filesz
	le.PutUint32(ph[20:24], uint32(total)) // p_memsz
	le.PutUint32(ph[24:28], 5)         // p_flags
	le.PutUint32(ph[28:32], align)     // p_align

	copy(buf[ehsize+phsize:], payload)
	return buf
}
