package elfimage

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

type BuildID struct {
	ID  string
	Typ string
}

func GNUBuildID(s string) BuildID {
	return BuildID{ID: s, Typ: "gnu"}
}

func GoBuildID(s string) BuildID {
	return BuildID{ID: s, Typ: "go"}
}

func ContentBuildID(s string) BuildID {
	return BuildID{ID: s, Typ: "content"}
}

func (b *BuildID) Empty() bool {
	return b.ID == "" || b.Typ == ""
}

func (b *BuildID) GNU() bool {
	return b.Typ == "gnu"
}

var ErrNoBuildIDSection = fmt.Errorf("build ID section not found")

// BuildID identifies the image: the GNU build-id note when present, then the
// Go build ID, then a hash of the buffer contents. It never fails on a valid
// image; a malformed note is reported rather than hashed over.
func (img *Image) BuildID() (BuildID, error) {
	id, err := img.GNUBuildID()
	if err == nil {
		return id, nil
	}
	if err != ErrNoBuildIDSection {
		return BuildID{}, err
	}
	id, err = img.GoBuildID()
	if err == nil {
		return id, nil
	}
	if err != ErrNoBuildIDSection {
		return BuildID{}, err
	}
	return ContentBuildID(fmt.Sprintf("%016x", xxhash.Sum64(img.buf))), nil
}

// GNUBuildID extracts the build id from the .note.gnu.build-id section.
func (img *Image) GNUBuildID() (BuildID, error) {
	sect, ok := img.LookupSection(".note.gnu.build-id")
	if !ok {
		return BuildID{}, ErrNoBuildIDSection
	}
	data, err := sect.Data()
	if err != nil {
		return BuildID{}, fmt.Errorf("reading .note.gnu.build-id: %w", err)
	}
	if len(data) < 16 {
		return BuildID{}, fmt.Errorf(".note.gnu.build-id is too small")
	}
	bo := img.hdr.ByteOrder
	namesz := bo.Uint32(data[0:])
	descsz := bo.Uint32(data[4:])
	// Note name and descriptor are 4-byte aligned.
	nameEnd := 12 + (uint64(namesz)+3)&^3
	if namesz != 4 || nameEnd > uint64(len(data)) || !bytes.Equal(data[12:16], []byte("GNU\x00")) {
		return BuildID{}, fmt.Errorf("wrong .note.gnu.build-id")
	}
	if descsz == 0 || nameEnd+uint64(descsz) > uint64(len(data)) {
		return BuildID{}, fmt.Errorf("wrong .note.gnu.build-id size")
	}
	return GNUBuildID(hex.EncodeToString(data[nameEnd : nameEnd+uint64(descsz)])), nil
}

var goBuildIDSep = []byte("/")

// GoBuildID extracts the build id the Go linker stores in .note.go.buildid.
func (img *Image) GoBuildID() (BuildID, error) {
	sect, ok := img.LookupSection(".note.go.buildid")
	if !ok {
		return BuildID{}, ErrNoBuildIDSection
	}
	data, err := sect.Data()
	if err != nil {
		return BuildID{}, fmt.Errorf("reading .note.go.buildid: %w", err)
	}
	if len(data) < 17 {
		return BuildID{}, fmt.Errorf(".note.go.buildid is too small")
	}
	data = data[16 : len(data)-1]
	if len(data) < 40 || bytes.Count(data, goBuildIDSep) < 2 {
		return BuildID{}, fmt.Errorf("wrong .note.go.buildid")
	}
	id := string(data)
	if id == "redacted" {
		return BuildID{}, fmt.Errorf("blacklisted .note.go.buildid")
	}
	return GoBuildID(id), nil
}
