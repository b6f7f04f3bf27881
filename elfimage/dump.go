package elfimage

import (
	"fmt"
	"io"
)

// Dump writes a human-readable rendition of the image's structure: header,
// program headers, sections, and the symbol table if one exists.
func (img *Image) Dump(w io.Writer) {
	h := img.hdr
	fmt.Fprintf(w, "elf image (%d bytes) {\n", len(img.buf))
	fmt.Fprintf(w, "    class:    %v\n", h.Class)
	fmt.Fprintf(w, "    data:     %v\n", h.Data)
	fmt.Fprintf(w, "    type:     %v\n", h.Type)
	fmt.Fprintf(w, "    machine:  %v\n", h.Machine)
	fmt.Fprintf(w, "    entry:    %#x\n", h.Entry)
	fmt.Fprintf(w, "    phoff:    %#x phnum: %d\n", h.ProgOffset, h.ProgCount)
	fmt.Fprintf(w, "    shoff:    %#x shnum: %d\n", h.SectOffset, h.SectCount)
	fmt.Fprintf(w, "    shstrndx: %d\n", h.SectNameIndex)

	for i := 0; i < img.ProgramHeaderCount(); i++ {
		p := img.ProgramHeader(i)
		fmt.Fprintf(w, "    program header %d: type=%v offset=%#x vaddr=%#x filesz=%#x memsz=%#x flags=%v\n",
			i, p.Type(), p.Offset(), p.VirtualAddress(), p.FileSize(), p.MemorySize(), p.Flags())
	}

	for i := 0; i < img.SectionCount(); i++ {
		s := img.Section(i)
		fmt.Fprintf(w, "    section %d: name=%q type=%v addr=%#x offset=%#x size=%#x\n",
			i, s.Name(), s.Type(), s.Address(), s.Offset(), s.Size())
		if rel, ok := s.Relocations(); ok {
			fmt.Fprintf(w, "        relocations in %q: %d records\n", rel.Name(), rel.RelocationCount())
		}
	}

	count := img.SymbolCount()
	fmt.Fprintf(w, "    symbol count: %d\n", count)
	for i := 1; i < count; i++ {
		sym := img.Symbol(i)
		fmt.Fprintf(w, "    symbol %d: name=%q value=%#x size=%d type=%v section=%s\n",
			i, sym.Name(), sym.Value(), sym.Size(), sym.Type(), img.SectionIndexString(sym.SectionIndex()))
	}
	fmt.Fprintf(w, "}\n")
}
