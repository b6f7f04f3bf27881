package elfimage

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
)

func gnuBuildIDNote(f *fixture, id []byte) []byte {
	data := make([]byte, 16+len(id))
	f.order.PutUint32(data[0:], 4)               // namesz: "GNU\0"
	f.order.PutUint32(data[4:], uint32(len(id))) // descsz
	f.order.PutUint32(data[8:], 3)               // NT_GNU_BUILD_ID
	copy(data[12:], "GNU\x00")
	copy(data[16:], id)
	return data
}

func TestGNUBuildID(t *testing.T) {
	f := newFixture()
	f.addSection(fixtureSection{name: ".text", typ: elf.SHT_PROGBITS, data: make([]byte, 16)})
	id := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}
	f.addSection(fixtureSection{name: ".note.gnu.build-id", typ: elf.SHT_NOTE, data: gnuBuildIDNote(f, id)})
	img, err := New(f.build())
	require.NoError(t, err)

	bid, err := img.BuildID()
	require.NoError(t, err)
	require.True(t, bid.GNU())
	require.Equal(t, "deadbeef01020304", bid.ID)
}

func TestBuildIDContentFallback(t *testing.T) {
	f := newFixture()
	f.addSection(fixtureSection{name: ".text", typ: elf.SHT_PROGBITS, data: make([]byte, 16)})
	img, err := New(f.build())
	require.NoError(t, err)

	bid, err := img.BuildID()
	require.NoError(t, err)
	require.Equal(t, "content", bid.Typ)
	require.Len(t, bid.ID, 16)
	require.False(t, bid.Empty())

	// Content hashing is deterministic.
	again, err := New(f.build())
	require.NoError(t, err)
	bid2, err := again.BuildID()
	require.NoError(t, err)
	require.Equal(t, bid.ID, bid2.ID)
}

func TestMalformedGNUBuildIDNote(t *testing.T) {
	f := newFixture()
	f.addSection(fixtureSection{name: ".note.gnu.build-id", typ: elf.SHT_NOTE, data: []byte{1, 2, 3}})
	img, err := New(f.build())
	require.NoError(t, err)

	_, err = img.GNUBuildID()
	require.Error(t, err)
}
