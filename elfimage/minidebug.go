package elfimage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// ErrNoMiniDebugInfo is returned when the image carries no .gnu_debugdata
// section.
var ErrNoMiniDebugInfo = fmt.Errorf("no .gnu_debugdata section")

// MiniDebugImage decompresses the .gnu_debugdata section and parses the
// embedded ELF image. Stripped binaries often keep a reduced symbol table
// there; symbolicating against the returned Image recovers those names. The
// returned Image owns the decompressed buffer and shares nothing with the
// receiver.
func (img *Image) MiniDebugImage(options ...Option) (*Image, error) {
	sect, ok := img.LookupSection(".gnu_debugdata")
	if !ok {
		return nil, ErrNoMiniDebugInfo
	}
	data, err := sect.Data()
	if err != nil {
		return nil, fmt.Errorf("reading .gnu_debugdata: %w", err)
	}
	reader, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress .gnu_debugdata: %w", err)
	}
	var uncompressed bytes.Buffer
	if _, err := io.Copy(&uncompressed, reader); err != nil {
		return nil, fmt.Errorf("decompress .gnu_debugdata: %w", err)
	}
	return New(uncompressed.Bytes(), options...)
}
