package elfimage

import (
	"debug/elf"
	"fmt"
)

// ProgramHeader is a view of one program header record. Decoding happens per
// accessor; the records were bounds checked as a table during validation.
type ProgramHeader struct {
	img   *Image
	index int
}

func (p ProgramHeader) Index() int { return p.index }

func (p ProgramHeader) raw() []byte {
	h := p.img.hdr
	return p.img.raw(h.ProgOffset+uint64(p.index)*uint64(h.ProgEntrySize), uint64(h.ProgEntrySize))
}

func (p ProgramHeader) Type() elf.ProgType {
	return elf.ProgType(p.img.hdr.ByteOrder.Uint32(p.raw()[0:]))
}

func (p ProgramHeader) Flags() elf.ProgFlag {
	b := p.raw()
	if p.img.hdr.Class == elf.ELFCLASS32 {
		return elf.ProgFlag(p.img.hdr.ByteOrder.Uint32(b[24:]))
	}
	return elf.ProgFlag(p.img.hdr.ByteOrder.Uint32(b[4:]))
}

func (p ProgramHeader) Offset() uint64 {
	b := p.raw()
	if p.img.hdr.Class == elf.ELFCLASS32 {
		return uint64(p.img.hdr.ByteOrder.Uint32(b[4:]))
	}
	return p.img.hdr.ByteOrder.Uint64(b[8:])
}

func (p ProgramHeader) VirtualAddress() uint64 {
	b := p.raw()
	if p.img.hdr.Class == elf.ELFCLASS32 {
		return uint64(p.img.hdr.ByteOrder.Uint32(b[8:]))
	}
	return p.img.hdr.ByteOrder.Uint64(b[16:])
}

func (p ProgramHeader) FileSize() uint64 {
	b := p.raw()
	if p.img.hdr.Class == elf.ELFCLASS32 {
		return uint64(p.img.hdr.ByteOrder.Uint32(b[16:]))
	}
	return p.img.hdr.ByteOrder.Uint64(b[32:])
}

func (p ProgramHeader) MemorySize() uint64 {
	b := p.raw()
	if p.img.hdr.Class == elf.ELFCLASS32 {
		return uint64(p.img.hdr.ByteOrder.Uint32(b[20:]))
	}
	return p.img.hdr.ByteOrder.Uint64(b[40:])
}

func (p ProgramHeader) Align() uint64 {
	b := p.raw()
	if p.img.hdr.Class == elf.ELFCLASS32 {
		return uint64(p.img.hdr.ByteOrder.Uint32(b[28:]))
	}
	return p.img.hdr.ByteOrder.Uint64(b[48:])
}

// Data returns the segment's file bytes.
func (p ProgramHeader) Data() ([]byte, error) {
	off, filesz := p.Offset(), p.FileSize()
	size := uint64(len(p.img.buf))
	if off > size || filesz > size-off {
		return nil, fmt.Errorf("segment %d at %#x+%#x outside image of %d bytes", p.index, off, filesz, size)
	}
	return p.img.buf[off : off+filesz], nil
}
