package elfimage

import (
	"bytes"
	"debug/elf"

	"github.com/go-kit/log/level"
)

// maxStringLength bounds the terminator scan to one page so a corrupt string
// table cannot make a single name lookup walk the whole buffer.
const maxStringLength = 4096

// tableString reads the NUL-terminated string at offset inside the string
// table section tableIndex. This is where untrusted offsets meet the buffer:
// a non-string-table section or an offset landing outside the image is a
// miss, never a read past the end.
func (img *Image) tableString(tableIndex int, offset uint32) (string, bool) {
	if tableIndex < 0 || tableIndex >= img.hdr.SectCount {
		return "", false
	}
	sh := img.sectionHeader(tableIndex)
	if sh.typ != elf.SHT_STRTAB {
		return "", false
	}
	key := uint64(tableIndex)<<32 | uint64(offset)
	if s, ok := img.strings.Load(key); ok {
		if img.metrics != nil {
			img.metrics.StringCacheHits.Inc()
		}
		return s, true
	}
	computed := sh.offset + uint64(offset)
	if computed < sh.offset || computed >= uint64(len(img.buf)) {
		level.Debug(img.logger).Log("msg", "string offset outside image", "section", tableIndex, "offset", offset)
		return "", false
	}
	max := uint64(len(img.buf)) - computed
	if max > maxStringLength {
		max = maxStringLength
	}
	raw := img.buf[computed : computed+max]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	s := string(raw)
	img.strings.Store(key, s)
	return s, true
}

// SectionHeaderTableString resolves offset against the section header string
// table. Section names live there.
func (img *Image) SectionHeaderTableString(offset uint32) (string, bool) {
	return img.tableString(img.hdr.SectNameIndex, offset)
}

// TableString resolves offset against the generic string table. Symbol names
// live there.
func (img *Image) TableString(offset uint32) (string, bool) {
	if img.strtabSection < 0 {
		return "", false
	}
	return img.tableString(img.strtabSection, offset)
}
