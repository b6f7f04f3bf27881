package elfimage

import (
	"debug/elf"
	"fmt"

	"github.com/go-kit/log/level"
)

// sectionHeader is the raw record behind a Section view, decoded on demand at
// its computed offset. Field widths are normalized to the 64-bit layout.
type sectionHeader struct {
	nameOffset uint32
	typ        elf.SectionType
	flags      elf.SectionFlag
	addr       uint64
	offset     uint64
	size       uint64
	link       uint32
	info       uint32
	addralign  uint64
	entsize    uint64
}

// sectionHeader decodes section header i. Table bounds were established by
// validation, so the reads here cannot escape the buffer.
func (img *Image) sectionHeader(i int) sectionHeader {
	bo := img.hdr.ByteOrder
	b := img.raw(img.hdr.SectOffset+uint64(i)*uint64(img.hdr.SectEntrySize), uint64(img.hdr.SectEntrySize))
	var sh sectionHeader
	sh.nameOffset = bo.Uint32(b[0:])
	sh.typ = elf.SectionType(bo.Uint32(b[4:]))
	if img.hdr.Class == elf.ELFCLASS32 {
		sh.flags = elf.SectionFlag(bo.Uint32(b[8:]))
		sh.addr = uint64(bo.Uint32(b[12:]))
		sh.offset = uint64(bo.Uint32(b[16:]))
		sh.size = uint64(bo.Uint32(b[20:]))
		sh.link = bo.Uint32(b[24:])
		sh.info = bo.Uint32(b[28:])
		sh.addralign = uint64(bo.Uint32(b[32:]))
		sh.entsize = uint64(bo.Uint32(b[36:]))
	} else {
		sh.flags = elf.SectionFlag(bo.Uint64(b[8:]))
		sh.addr = bo.Uint64(b[16:])
		sh.offset = bo.Uint64(b[24:])
		sh.size = bo.Uint64(b[32:])
		sh.link = bo.Uint32(b[40:])
		sh.info = bo.Uint32(b[44:])
		sh.addralign = bo.Uint64(b[48:])
		sh.entsize = bo.Uint64(b[56:])
	}
	return sh
}

// Section is a lightweight projection of one section header. It holds no
// buffer data itself; Data slices into the Image's buffer on request.
type Section struct {
	img   *Image
	index int
	hdr   sectionHeader
}

func (s Section) Index() int             { return s.index }
func (s Section) Type() elf.SectionType  { return s.hdr.typ }
func (s Section) Flags() elf.SectionFlag { return s.hdr.flags }
func (s Section) Address() uint64        { return s.hdr.addr }
func (s Section) Offset() uint64         { return s.hdr.offset }
func (s Section) Size() uint64           { return s.hdr.size }
func (s Section) EntrySize() uint64      { return s.hdr.entsize }
func (s Section) Link() uint32           { return s.hdr.link }

// Name resolves the section's name against the section header string table.
// Returns the empty string when the name offset is out of range.
func (s Section) Name() string {
	name, _ := s.img.tableString(s.img.hdr.SectNameIndex, s.hdr.nameOffset)
	return name
}

// EntryCount returns the number of fixed-size records in the section, or
// zero when the section has no entry size.
func (s Section) EntryCount() int {
	entsize := s.hdr.entsize
	if entsize == 0 {
		if s.hdr.typ != elf.SHT_SYMTAB && s.hdr.typ != elf.SHT_DYNSYM {
			return 0
		}
		entsize = s.img.hdr.symbolEntrySize()
	}
	return int(s.hdr.size / entsize)
}

// Data returns the section's bytes as a slice into the image buffer. SHT_NOBITS
// sections occupy no file space and yield an empty slice.
func (s Section) Data() ([]byte, error) {
	if s.hdr.typ == elf.SHT_NOBITS {
		return nil, nil
	}
	size := uint64(len(s.img.buf))
	if s.hdr.offset > size || s.hdr.size > size-s.hdr.offset {
		return nil, fmt.Errorf("section %q at %#x+%#x outside image of %d bytes", s.Name(), s.hdr.offset, s.hdr.size, size)
	}
	return s.img.buf[s.hdr.offset : s.hdr.offset+s.hdr.size], nil
}

// Relocations finds the relocation section paired with this one by the
// naming convention: a section named X has its relocations in ".rel"+X, or
// ".rela"+X for addend-carrying records.
func (s Section) Relocations() (RelocationSection, bool) {
	name := s.Name()
	for _, prefix := range []string{".rel", ".rela"} {
		if rel, ok := s.img.LookupSection(prefix + name); ok {
			level.Debug(s.img.logger).Log("msg", "found relocations", "section", name, "relocations", rel.Name())
			return RelocationSection{Section: rel}, true
		}
	}
	return RelocationSection{}, false
}
