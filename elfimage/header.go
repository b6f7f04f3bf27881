package elfimage

import (
	"debug/elf"
	"encoding/binary"
)

// FileHeader is the decoded ELF header. It is copied out of the buffer once,
// after validation, so accessors never re-read the raw bytes.
type FileHeader struct {
	Class     elf.Class
	Data      elf.Data
	ByteOrder binary.ByteOrder
	Type      elf.Type
	Machine   elf.Machine
	Entry     uint64

	ProgOffset    uint64
	ProgEntrySize int
	ProgCount     int

	SectOffset    uint64
	SectEntrySize int
	SectCount     int

	// SectNameIndex is the index of the section holding section names
	// (e_shstrndx), as opposed to the generic string table found by name.
	SectNameIndex int
}

// decodeFileHeader assumes validation.ValidateHeader accepted buf.
func decodeFileHeader(buf []byte) FileHeader {
	var h FileHeader
	h.Class = elf.Class(buf[elf.EI_CLASS])
	h.Data = elf.Data(buf[elf.EI_DATA])
	if h.Data == elf.ELFDATA2MSB {
		h.ByteOrder = binary.BigEndian
	} else {
		h.ByteOrder = binary.LittleEndian
	}
	bo := h.ByteOrder
	h.Type = elf.Type(bo.Uint16(buf[16:]))
	h.Machine = elf.Machine(bo.Uint16(buf[18:]))
	if h.Class == elf.ELFCLASS32 {
		h.Entry = uint64(bo.Uint32(buf[24:]))
		h.ProgOffset = uint64(bo.Uint32(buf[28:]))
		h.SectOffset = uint64(bo.Uint32(buf[32:]))
		h.ProgEntrySize = int(bo.Uint16(buf[42:]))
		h.ProgCount = int(bo.Uint16(buf[44:]))
		h.SectEntrySize = int(bo.Uint16(buf[46:]))
		h.SectCount = int(bo.Uint16(buf[48:]))
		h.SectNameIndex = int(bo.Uint16(buf[50:]))
	} else {
		h.Entry = bo.Uint64(buf[24:])
		h.ProgOffset = bo.Uint64(buf[32:])
		h.SectOffset = bo.Uint64(buf[40:])
		h.ProgEntrySize = int(bo.Uint16(buf[54:]))
		h.ProgCount = int(bo.Uint16(buf[56:]))
		h.SectEntrySize = int(bo.Uint16(buf[58:]))
		h.SectCount = int(bo.Uint16(buf[60:]))
		h.SectNameIndex = int(bo.Uint16(buf[62:]))
	}
	return h
}

// symbolEntrySize is the natural symbol record size for the class, used when
// a symbol table section carries a zero entry size.
func (h FileHeader) symbolEntrySize() uint64 {
	if h.Class == elf.ELFCLASS32 {
		return 16
	}
	return 24
}
