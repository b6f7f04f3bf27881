package elfimage

import (
	"debug/elf"
	"fmt"
)

// RelocationSection is a Section known to hold relocation records. Only
// lookup is supported here; applying relocations is a linker's job.
type RelocationSection struct {
	Section
}

func (rs RelocationSection) relocationEntrySize() uint64 {
	// Natural sizes: Rel is two words, Rela adds an addend word.
	words := uint64(2)
	if rs.Type() == elf.SHT_RELA {
		words = 3
	}
	natural := words * 8
	if rs.img.hdr.Class == elf.ELFCLASS32 {
		natural = words * 4
	}
	// A declared entry size below the natural record size cannot hold a
	// decodable record; ignore it.
	if entsize := rs.EntrySize(); entsize >= natural {
		return entsize
	}
	return natural
}

// RelocationCount returns the number of records. A section whose declared
// range escapes the buffer holds no readable records.
func (rs RelocationSection) RelocationCount() int {
	size := uint64(len(rs.img.buf))
	if rs.Offset() > size || rs.Size() > size-rs.Offset() {
		return 0
	}
	return int(rs.Size() / rs.relocationEntrySize())
}

// Relocation returns record i of the section. The index must be smaller than
// RelocationCount.
func (rs RelocationSection) Relocation(i int) Relocation {
	count := rs.RelocationCount()
	if i < 0 || i >= count {
		panic(fmt.Sprintf("elfimage: relocation index %d out of range [0:%d)", i, count))
	}
	entsize := rs.relocationEntrySize()
	b := rs.img.raw(rs.Offset()+uint64(i)*entsize, entsize)
	bo := rs.img.hdr.ByteOrder
	r := Relocation{img: rs.img, hasAddend: rs.Type() == elf.SHT_RELA}
	if rs.img.hdr.Class == elf.ELFCLASS32 {
		r.offset = uint64(bo.Uint32(b[0:]))
		info := bo.Uint32(b[4:])
		r.typ = info & 0xff
		r.symbolIndex = int(info >> 8)
		if r.hasAddend {
			r.addend = int64(int32(bo.Uint32(b[8:])))
		}
	} else {
		r.offset = bo.Uint64(b[0:])
		info := bo.Uint64(b[8:])
		r.typ = uint32(info)
		r.symbolIndex = int(info >> 32)
		if r.hasAddend {
			r.addend = int64(bo.Uint64(b[16:]))
		}
	}
	return r
}

// Relocation is one decoded relocation record.
type Relocation struct {
	img         *Image
	offset      uint64
	typ         uint32
	symbolIndex int
	addend      int64
	hasAddend   bool
}

// Offset is the location needing fix-up.
func (r Relocation) Offset() uint64 { return r.offset }

// Type is the machine-specific relocation type.
func (r Relocation) Type() uint32 { return r.typ }

// SymbolIndex is the symbol table index the record refers to.
func (r Relocation) SymbolIndex() int { return r.symbolIndex }

// Addend returns the explicit addend and whether the record carries one.
func (r Relocation) Addend() (int64, bool) { return r.addend, r.hasAddend }

// Symbol resolves the referenced symbol. The index is content from the
// buffer, so an out-of-range value is a miss, not a panic.
func (r Relocation) Symbol() (Symbol, bool) {
	if r.symbolIndex <= 0 || r.symbolIndex >= r.img.SymbolCount() {
		return Symbol{}, false
	}
	return r.img.Symbol(r.symbolIndex), true
}
