package elfimage

import (
	"debug/elf"
	"fmt"
)

// Symbol is a view of one record in the symbol table section. The record is
// decoded once when the view is constructed; name resolution and raw data
// slicing stay on demand.
type Symbol struct {
	img          *Image
	index        int
	nameOffset   uint32
	value        uint64
	size         uint64
	info         byte
	sectionIndex elf.SectionIndex
}

// Symbol returns a view of symbol table entry i. Index 0 is the reserved
// null entry; it decodes like any other but carries no meaning.
func (img *Image) Symbol(i int) Symbol {
	count := img.SymbolCount()
	if i < 0 || i >= count {
		panic(fmt.Sprintf("elfimage: symbol index %d out of range [0:%d)", i, count))
	}
	sect := img.Section(img.symtabSection)
	entsize := sect.EntrySize()
	if entsize == 0 {
		entsize = img.hdr.symbolEntrySize()
	}
	b := img.raw(sect.Offset()+uint64(i)*entsize, entsize)
	bo := img.hdr.ByteOrder
	s := Symbol{img: img, index: i}
	s.nameOffset = bo.Uint32(b[0:])
	if img.hdr.Class == elf.ELFCLASS32 {
		s.value = uint64(bo.Uint32(b[4:]))
		s.size = uint64(bo.Uint32(b[8:]))
		s.info = b[12]
		s.sectionIndex = elf.SectionIndex(bo.Uint16(b[14:]))
	} else {
		s.info = b[4]
		s.sectionIndex = elf.SectionIndex(bo.Uint16(b[6:]))
		s.value = bo.Uint64(b[8:])
		s.size = bo.Uint64(b[16:])
	}
	return s
}

func (s Symbol) Index() int                     { return s.index }
func (s Symbol) Value() uint64                  { return s.value }
func (s Symbol) Size() uint64                   { return s.size }
func (s Symbol) Type() elf.SymType              { return elf.ST_TYPE(s.info) }
func (s Symbol) Bind() elf.SymBind              { return elf.ST_BIND(s.info) }
func (s Symbol) SectionIndex() elf.SectionIndex { return s.sectionIndex }

func (s Symbol) IsUndefined() bool {
	return s.sectionIndex == elf.SHN_UNDEF
}

// Name resolves the symbol's name against the generic string table. Returns
// the empty string when the image has no such table or the offset is bogus.
func (s Symbol) Name() string {
	if s.img.strtabSection < 0 {
		return ""
	}
	name, _ := s.img.tableString(s.img.strtabSection, s.nameOffset)
	return name
}

// Section returns the symbol's defining section. Reserved and out-of-range
// section indices have no section to return.
func (s Symbol) Section() (Section, bool) {
	if s.sectionIndex == elf.SHN_UNDEF || s.sectionIndex >= elf.SHN_LORESERVE {
		return Section{}, false
	}
	if int(s.sectionIndex) >= s.img.hdr.SectCount {
		return Section{}, false
	}
	return s.img.Section(int(s.sectionIndex)), true
}

// Data returns the symbol's bytes, located inside its defining section at
// value − section address.
func (s Symbol) Data() ([]byte, error) {
	sect, ok := s.Section()
	if !ok {
		return nil, fmt.Errorf("symbol %d has no defining section", s.index)
	}
	data, err := sect.Data()
	if err != nil {
		return nil, err
	}
	if s.value < sect.Address() {
		return nil, fmt.Errorf("symbol %d below its section address", s.index)
	}
	start := s.value - sect.Address()
	if start > uint64(len(data)) || s.size > uint64(len(data))-start {
		return nil, fmt.Errorf("symbol %d at %#x+%#x outside section %q", s.index, start, s.size, sect.Name())
	}
	return data[start : start+s.size], nil
}
