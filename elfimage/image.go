// Package elfimage provides a read-only, bounds-checked view over an ELF
// object held in memory: typed projections of the header, program headers,
// sections, symbols and relocations, plus address-to-symbol resolution
// backed by a lazily built sorted index.
//
// An Image borrows its buffer for its entire lifetime and never mutates it.
// Structural validation happens once, in New; a buffer that fails it never
// produces an Image. After that, out-of-range indices passed to accessors are
// programmer errors and panic, while content-dependent misses (unknown names,
// offsets pointing outside the buffer, addresses below the first symbol) are
// ordinary "not found" results.
package elfimage

import (
	"debug/elf"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/rafi67/elfscope/elfimage/demangle"
	"github.com/rafi67/elfscope/elfimage/validation"
	"github.com/rafi67/elfscope/metrics"
)

// stringTableName is the reserved name identifying the generic string table
// used for symbol names.
const stringTableName = ".strtab"

var ErrAmbiguousSymbolTable = fmt.Errorf("more than one symbol table section")

type Image struct {
	buf       []byte
	logger    log.Logger
	metrics   *metrics.Metrics
	demangler Demangler

	hdr FileHeader

	// Section indices discovered during the validation pass; -1 when the
	// image has no such section.
	symtabSection int
	strtabSection int

	strings *xsync.MapOf[uint64, string]

	sorted sortedIndex
}

// New parses and validates an ELF image held in buf. The Image borrows buf;
// the caller must not modify it while the Image is in use. A nil error means
// every accessor is safe to call.
func New(buf []byte, options ...Option) (*Image, error) {
	img := &Image{
		buf:           buf,
		logger:        log.NewNopLogger(),
		symtabSection: -1,
		strtabSection: -1,
		strings:       xsync.NewMapOf[uint64, string](),
	}
	for _, o := range options {
		o(img)
	}
	if img.demangler == nil {
		img.demangler = demangle.New()
	}
	if err := img.parse(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) parse() error {
	if err := validation.ValidateHeader(img.buf); err != nil {
		level.Debug(img.logger).Log("msg", "ELF header not valid", "err", err)
		img.countParseError("header")
		return fmt.Errorf("validate header: %w", err)
	}
	if err := validation.ValidateProgramHeaders(img.buf); err != nil {
		level.Debug(img.logger).Log("msg", "ELF program headers not valid", "err", err)
		img.countParseError("program_headers")
		return fmt.Errorf("validate program headers: %w", err)
	}
	img.hdr = decodeFileHeader(img.buf)

	// One pass over the section headers to locate the anchor sections: the
	// single symbol table and the generic string table.
	for i := 0; i < img.hdr.SectCount; i++ {
		sh := img.sectionHeader(i)
		if sh.typ == elf.SHT_SYMTAB {
			if img.symtabSection >= 0 && img.symtabSection != i {
				img.countParseError("ambiguous_symtab")
				return fmt.Errorf("%w: sections %d and %d", ErrAmbiguousSymbolTable, img.symtabSection, i)
			}
			img.symtabSection = i
		}
		if sh.typ == elf.SHT_STRTAB && i != img.hdr.SectNameIndex {
			if name, ok := img.tableString(img.hdr.SectNameIndex, sh.nameOffset); ok && name == stringTableName {
				img.strtabSection = i
			}
		}
	}

	// Symbol records are decoded without per-read checks later, so the table
	// itself has to sit inside the buffer and its declared entry size has to
	// cover a full record.
	if img.symtabSection >= 0 {
		sh := img.sectionHeader(img.symtabSection)
		size := uint64(len(img.buf))
		if sh.offset > size || sh.size > size-sh.offset {
			img.countParseError("symtab_bounds")
			return fmt.Errorf("symbol table section at %#x+%#x outside image of %d bytes", sh.offset, sh.size, size)
		}
		if sh.entsize != 0 && sh.entsize < img.hdr.symbolEntrySize() {
			img.countParseError("symtab_entsize")
			return fmt.Errorf("symbol table entry size %d smaller than a symbol record of %d bytes", sh.entsize, img.hdr.symbolEntrySize())
		}
	}
	return nil
}

func (img *Image) countParseError(reason string) {
	if img.metrics != nil {
		img.metrics.ParseErrors.WithLabelValues(reason).Inc()
	}
}

// Size returns the size of the borrowed buffer in bytes.
func (img *Image) Size() int {
	return len(img.buf)
}

// Header returns a copy of the decoded ELF header.
func (img *Image) Header() FileHeader {
	return img.hdr
}

func (img *Image) SectionCount() int {
	return img.hdr.SectCount
}

func (img *Image) ProgramHeaderCount() int {
	return img.hdr.ProgCount
}

// SymbolCount returns the number of entries in the symbol table section, or
// zero when the image has none.
func (img *Image) SymbolCount() int {
	if img.symtabSection < 0 {
		return 0
	}
	return img.Section(img.symtabSection).EntryCount()
}

// HasSymbolTable reports whether a symbol table section was found.
func (img *Image) HasSymbolTable() bool {
	return img.symtabSection >= 0
}

// Section returns a view of section index i. The index must be smaller than
// SectionCount; anything else is a programmer error and panics.
func (img *Image) Section(i int) Section {
	if i < 0 || i >= img.hdr.SectCount {
		panic(fmt.Sprintf("elfimage: section index %d out of range [0:%d)", i, img.hdr.SectCount))
	}
	return Section{img: img, index: i, hdr: img.sectionHeader(i)}
}

// ProgramHeader returns a view of program header index i. The index must be
// smaller than ProgramHeaderCount.
func (img *Image) ProgramHeader(i int) ProgramHeader {
	if i < 0 || i >= img.hdr.ProgCount {
		panic(fmt.Sprintf("elfimage: program header index %d out of range [0:%d)", i, img.hdr.ProgCount))
	}
	return ProgramHeader{img: img, index: i}
}

// LookupSection finds a section by its resolved name, scanning all sections
// in order. Rarely called, so the linear scan is fine.
func (img *Image) LookupSection(name string) (Section, bool) {
	for i := 0; i < img.hdr.SectCount; i++ {
		s := img.Section(i)
		if s.Name() == name {
			return s, true
		}
	}
	return Section{}, false
}

// SectionIndexString renders a symbol's defining-section index, handling the
// reserved ranges.
func (img *Image) SectionIndexString(index elf.SectionIndex) string {
	if index == elf.SHN_UNDEF {
		return "Undefined"
	}
	if index >= elf.SHN_LORESERVE {
		return "Reserved"
	}
	if int(index) >= img.hdr.SectCount {
		return "Invalid"
	}
	return img.Section(int(index)).Name()
}

// raw returns length bytes at offset. The caller is expected to have bounds
// checked offset and length against Size already; this is the last line of
// defense and panics on violation.
func (img *Image) raw(offset, length uint64) []byte {
	if offset > uint64(len(img.buf)) || length > uint64(len(img.buf))-offset {
		panic(fmt.Sprintf("elfimage: raw range %#x+%#x outside image of %d bytes", offset, length, len(img.buf)))
	}
	return img.buf[offset : offset+length]
}
