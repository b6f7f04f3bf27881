// Package validation holds the structural predicates applied to a raw ELF
// buffer before any typed view is handed out. It deliberately knows nothing
// about the rest of the module: the input is an untrusted byte slice and the
// output is an error describing the first inconsistency found.
package validation

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

var (
	ErrTooShort       = fmt.Errorf("buffer shorter than an ELF header")
	ErrBadMagic       = fmt.Errorf("bad ELF magic")
	ErrBadClass       = fmt.Errorf("unknown ELF class")
	ErrBadEncoding    = fmt.Errorf("unknown ELF data encoding")
	ErrBadVersion     = fmt.Errorf("unsupported ELF version")
	ErrBadType        = fmt.Errorf("unknown object file type")
	ErrHeaderBounds   = fmt.Errorf("header table not within buffer")
	ErrBadEntrySize   = fmt.Errorf("unexpected table entry size")
	ErrBadStringIndex = fmt.Errorf("section header string table index out of range")
	ErrSegmentBounds  = fmt.Errorf("program segment not within buffer")
)

const (
	ehdrSize32 = 52
	ehdrSize64 = 64
	phdrSize32 = 32
	phdrSize64 = 56
	shdrSize32 = 40
	shdrSize64 = 64
)

// rawHeader is the minimal decode validation needs; the typed view lives in
// package elfimage and is only constructed after these checks pass.
type rawHeader struct {
	class     elf.Class
	order     binary.ByteOrder
	typ       elf.Type
	phoff     uint64
	phentsize uint64
	phnum     uint64
	shoff     uint64
	shentsize uint64
	shnum     uint64
	shstrndx  uint64
}

func decodeHeader(buf []byte) (rawHeader, error) {
	var h rawHeader
	if len(buf) < ehdrSize32 {
		return h, ErrTooShort
	}
	if buf[0] != 0x7f || buf[1] != 'E' || buf[2] != 'L' || buf[3] != 'F' {
		return h, ErrBadMagic
	}
	h.class = elf.Class(buf[elf.EI_CLASS])
	switch h.class {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return h, ErrBadClass
	}
	switch elf.Data(buf[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		h.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		h.order = binary.BigEndian
	default:
		return h, ErrBadEncoding
	}
	if elf.Version(buf[elf.EI_VERSION]) != elf.EV_CURRENT {
		return h, ErrBadVersion
	}
	if h.class == elf.ELFCLASS64 && len(buf) < ehdrSize64 {
		return h, ErrTooShort
	}
	h.typ = elf.Type(h.order.Uint16(buf[16:]))
	if h.class == elf.ELFCLASS32 {
		h.phoff = uint64(h.order.Uint32(buf[28:]))
		h.shoff = uint64(h.order.Uint32(buf[32:]))
		h.phentsize = uint64(h.order.Uint16(buf[42:]))
		h.phnum = uint64(h.order.Uint16(buf[44:]))
		h.shentsize = uint64(h.order.Uint16(buf[46:]))
		h.shnum = uint64(h.order.Uint16(buf[48:]))
		h.shstrndx = uint64(h.order.Uint16(buf[50:]))
	} else {
		h.phoff = h.order.Uint64(buf[32:])
		h.shoff = h.order.Uint64(buf[40:])
		h.phentsize = uint64(h.order.Uint16(buf[54:]))
		h.phnum = uint64(h.order.Uint16(buf[56:]))
		h.shentsize = uint64(h.order.Uint16(buf[58:]))
		h.shnum = uint64(h.order.Uint16(buf[60:]))
		h.shstrndx = uint64(h.order.Uint16(buf[62:]))
	}
	return h, nil
}

// tableInBounds reports whether a dense table of count entries of entsize
// bytes starting at off lies entirely inside a buffer of size bytes. All
// arithmetic is done in a form that cannot overflow.
func tableInBounds(off, count, entsize, size uint64) bool {
	if count == 0 {
		return true
	}
	if off > size || entsize > size {
		return false
	}
	if count > (size-off)/entsize {
		return false
	}
	return true
}

// ValidateHeader checks that the ELF header itself is self-consistent and
// that both header tables it describes lie inside the buffer.
func ValidateHeader(buf []byte) error {
	h, err := decodeHeader(buf)
	if err != nil {
		return err
	}
	switch h.typ {
	case elf.ET_NONE, elf.ET_REL, elf.ET_EXEC, elf.ET_DYN, elf.ET_CORE:
	default:
		return fmt.Errorf("%w: %d", ErrBadType, h.typ)
	}
	wantPhent := uint64(phdrSize32)
	wantShent := uint64(shdrSize32)
	if h.class == elf.ELFCLASS64 {
		wantPhent = phdrSize64
		wantShent = shdrSize64
	}
	if h.phnum > 0 && h.phentsize < wantPhent {
		return fmt.Errorf("%w: program header entry size %d", ErrBadEntrySize, h.phentsize)
	}
	if h.shnum > 0 && h.shentsize < wantShent {
		return fmt.Errorf("%w: section header entry size %d", ErrBadEntrySize, h.shentsize)
	}
	size := uint64(len(buf))
	if !tableInBounds(h.phoff, h.phnum, h.phentsize, size) {
		return fmt.Errorf("%w: program headers at %#x", ErrHeaderBounds, h.phoff)
	}
	if !tableInBounds(h.shoff, h.shnum, h.shentsize, size) {
		return fmt.Errorf("%w: section headers at %#x", ErrHeaderBounds, h.shoff)
	}
	if h.shnum > 0 && h.shstrndx >= h.shnum {
		return fmt.Errorf("%w: %d >= %d", ErrBadStringIndex, h.shstrndx, h.shnum)
	}
	return nil
}

// ValidateProgramHeaders checks that every program header describes a file
// range inside the buffer and a sane memory image. ValidateHeader must have
// accepted the buffer already; a buffer failing it is rejected here too.
func ValidateProgramHeaders(buf []byte) error {
	h, err := decodeHeader(buf)
	if err != nil {
		return err
	}
	size := uint64(len(buf))
	if !tableInBounds(h.phoff, h.phnum, h.phentsize, size) {
		return fmt.Errorf("%w: program headers at %#x", ErrHeaderBounds, h.phoff)
	}
	for i := uint64(0); i < h.phnum; i++ {
		p := buf[h.phoff+i*h.phentsize:]
		var typ elf.ProgType
		var off, filesz, memsz uint64
		if h.class == elf.ELFCLASS32 {
			typ = elf.ProgType(h.order.Uint32(p[0:]))
			off = uint64(h.order.Uint32(p[4:]))
			filesz = uint64(h.order.Uint32(p[16:]))
			memsz = uint64(h.order.Uint32(p[20:]))
		} else {
			typ = elf.ProgType(h.order.Uint32(p[0:]))
			off = h.order.Uint64(p[8:])
			filesz = h.order.Uint64(p[32:])
			memsz = h.order.Uint64(p[40:])
		}
		if typ == elf.PT_NULL {
			continue
		}
		if off > size || filesz > size-off {
			return fmt.Errorf("%w: segment %d at %#x+%#x", ErrSegmentBounds, i, off, filesz)
		}
		if typ == elf.PT_LOAD && filesz > memsz {
			return fmt.Errorf("%w: segment %d file size exceeds memory size", ErrSegmentBounds, i)
		}
	}
	return nil
}
