package elfimage

import (
	"debug/elf"
	"encoding/binary"
)

// In-memory ELF assembly for tests. A fixture starts empty, gets sections
// and symbols appended, and build() lays everything out: header, program
// header table, section contents, then the section header table. The null
// section and .shstrtab are added automatically.

type fixtureSection struct {
	name    string
	typ     elf.SectionType
	flags   uint64
	addr    uint64
	link    uint32
	entsize uint64
	data    []byte
}

type fixtureProg struct {
	typ    elf.ProgType
	flags  uint32
	off    uint64
	vaddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

type fixtureSym struct {
	name    string
	value   uint64
	size    uint64
	info    byte
	section elf.SectionIndex
}

type fixture struct {
	class    elf.Class
	order    binary.ByteOrder
	typ      elf.Type
	machine  elf.Machine
	entry    uint64
	progs    []fixtureProg
	sections []fixtureSection
}

func newFixture() *fixture {
	return &fixture{
		class:   elf.ELFCLASS64,
		order:   binary.LittleEndian,
		typ:     elf.ET_EXEC,
		machine: elf.EM_X86_64,
	}
}

func newFixture32() *fixture {
	f := newFixture()
	f.class = elf.ELFCLASS32
	f.machine = elf.EM_386
	return f
}

func (f *fixture) is64() bool {
	return f.class == elf.ELFCLASS64
}

func (f *fixture) addSection(s fixtureSection) int {
	f.sections = append(f.sections, s)
	return len(f.sections) // +1 for the null section at index 0
}

func funcSym(name string, value, size uint64) fixtureSym {
	return fixtureSym{
		name:    name,
		value:   value,
		size:    size,
		info:    byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC),
		section: 1,
	}
}

// addSymbols appends a .symtab/.strtab pair holding the given symbols after
// the reserved null entry.
func (f *fixture) addSymbols(syms ...fixtureSym) {
	entsize := uint64(24)
	if !f.is64() {
		entsize = 16
	}
	strtab := []byte{0}
	symdata := make([]byte, entsize) // null symbol
	for _, s := range syms {
		nameOff := uint32(len(strtab))
		strtab = append(strtab, s.name...)
		strtab = append(strtab, 0)
		ent := make([]byte, entsize)
		f.order.PutUint32(ent[0:], nameOff)
		if f.is64() {
			ent[4] = s.info
			f.order.PutUint16(ent[6:], uint16(s.section))
			f.order.PutUint64(ent[8:], s.value)
			f.order.PutUint64(ent[16:], s.size)
		} else {
			f.order.PutUint32(ent[4:], uint32(s.value))
			f.order.PutUint32(ent[8:], uint32(s.size))
			ent[12] = s.info
			f.order.PutUint16(ent[14:], uint16(s.section))
		}
		symdata = append(symdata, ent...)
	}
	symtabIndex := uint32(len(f.sections) + 1)
	f.addSection(fixtureSection{name: ".symtab", typ: elf.SHT_SYMTAB, link: symtabIndex + 1, entsize: entsize, data: symdata})
	f.addSection(fixtureSection{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab})
}

func (f *fixture) build() []byte {
	ehdrSize, phentsize, shentsize := 64, 56, 64
	if !f.is64() {
		ehdrSize, phentsize, shentsize = 52, 32, 40
	}
	bo := f.order

	sections := append([]fixtureSection{{typ: elf.SHT_NULL}}, f.sections...)
	shstr := []byte{0}
	nameOff := make([]uint32, len(sections)+1)
	for i := 1; i < len(sections); i++ {
		nameOff[i] = uint32(len(shstr))
		shstr = append(shstr, sections[i].name...)
		shstr = append(shstr, 0)
	}
	shstrndx := len(sections)
	nameOff[shstrndx] = uint32(len(shstr))
	shstr = append(shstr, ".shstrtab"...)
	shstr = append(shstr, 0)
	sections = append(sections, fixtureSection{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstr})

	buf := make([]byte, ehdrSize)
	phoff := uint64(0)
	if len(f.progs) > 0 {
		phoff = uint64(len(buf))
		buf = append(buf, make([]byte, len(f.progs)*phentsize)...)
	}

	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		if s.typ == elf.SHT_NULL || s.typ == elf.SHT_NOBITS || len(s.data) == 0 {
			continue
		}
		for len(buf)%8 != 0 {
			buf = append(buf, 0)
		}
		offsets[i] = uint64(len(buf))
		buf = append(buf, s.data...)
	}
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	shoff := uint64(len(buf))
	for i, s := range sections {
		sh := make([]byte, shentsize)
		bo.PutUint32(sh[0:], nameOff[i])
		bo.PutUint32(sh[4:], uint32(s.typ))
		if f.is64() {
			bo.PutUint64(sh[8:], s.flags)
			bo.PutUint64(sh[16:], s.addr)
			bo.PutUint64(sh[24:], offsets[i])
			bo.PutUint64(sh[32:], uint64(len(s.data)))
			bo.PutUint32(sh[40:], s.link)
			bo.PutUint64(sh[56:], s.entsize)
		} else {
			bo.PutUint32(sh[8:], uint32(s.flags))
			bo.PutUint32(sh[12:], uint32(s.addr))
			bo.PutUint32(sh[16:], uint32(offsets[i]))
			bo.PutUint32(sh[20:], uint32(len(s.data)))
			bo.PutUint32(sh[24:], s.link)
			bo.PutUint32(sh[36:], uint32(s.entsize))
		}
		buf = append(buf, sh...)
	}

	for i := 0; i < len(f.progs); i++ {
		p := f.progs[i]
		ph := buf[phoff+uint64(i*phentsize):]
		bo.PutUint32(ph[0:], uint32(p.typ))
		if f.is64() {
			bo.PutUint32(ph[4:], p.flags)
			bo.PutUint64(ph[8:], p.off)
			bo.PutUint64(ph[16:], p.vaddr)
			bo.PutUint64(ph[24:], p.vaddr)
			bo.PutUint64(ph[32:], p.filesz)
			bo.PutUint64(ph[40:], p.memsz)
			bo.PutUint64(ph[48:], p.align)
		} else {
			bo.PutUint32(ph[4:], uint32(p.off))
			bo.PutUint32(ph[8:], uint32(p.vaddr))
			bo.PutUint32(ph[12:], uint32(p.vaddr))
			bo.PutUint32(ph[16:], uint32(p.filesz))
			bo.PutUint32(ph[20:], uint32(p.memsz))
			bo.PutUint32(ph[24:], p.flags)
			bo.PutUint32(ph[28:], uint32(p.align))
		}
	}

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[elf.EI_CLASS] = byte(f.class)
	if bo == binary.BigEndian {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	bo.PutUint16(buf[16:], uint16(f.typ))
	bo.PutUint16(buf[18:], uint16(f.machine))
	bo.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	if f.is64() {
		bo.PutUint64(buf[24:], f.entry)
		bo.PutUint64(buf[32:], phoff)
		bo.PutUint64(buf[40:], shoff)
		bo.PutUint16(buf[52:], uint16(ehdrSize))
		bo.PutUint16(buf[54:], uint16(phentsize))
		bo.PutUint16(buf[56:], uint16(len(f.progs)))
		bo.PutUint16(buf[58:], uint16(shentsize))
		bo.PutUint16(buf[60:], uint16(len(sections)))
		bo.PutUint16(buf[62:], uint16(shstrndx))
	} else {
		bo.PutUint32(buf[24:], uint32(f.entry))
		bo.PutUint32(buf[28:], uint32(phoff))
		bo.PutUint32(buf[32:], uint32(shoff))
		bo.PutUint16(buf[40:], uint16(ehdrSize))
		bo.PutUint16(buf[42:], uint16(phentsize))
		bo.PutUint16(buf[44:], uint16(len(f.progs)))
		bo.PutUint16(buf[46:], uint16(shentsize))
		bo.PutUint16(buf[48:], uint16(len(sections)))
		bo.PutUint16(buf[50:], uint16(shstrndx))
	}
	return buf
}
