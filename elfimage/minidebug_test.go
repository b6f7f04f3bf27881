package elfimage

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestMiniDebugImage(t *testing.T) {
	inner := newFixture()
	inner.addSection(fixtureSection{name: ".text", typ: elf.SHT_PROGBITS, addr: 0x1000, data: make([]byte, 64)})
	inner.addSymbols(funcSym("stripped_function", 0x1000, 32))

	var compressed bytes.Buffer
	w, err := xz.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = w.Write(inner.build())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	outer := newFixture()
	outer.addSection(fixtureSection{name: ".text", typ: elf.SHT_PROGBITS, addr: 0x1000, data: make([]byte, 64)})
	outer.addSection(fixtureSection{name: ".gnu_debugdata", typ: elf.SHT_PROGBITS, data: compressed.Bytes()})
	img, err := New(outer.build())
	require.NoError(t, err)

	mini, err := img.MiniDebugImage()
	require.NoError(t, err)
	require.Equal(t, "stripped_function +0x4", mini.Symbolicate(0x1004))
}

func TestMiniDebugImageAbsent(t *testing.T) {
	f := newFixture()
	f.addSection(fixtureSection{name: ".text", typ: elf.SHT_PROGBITS, data: make([]byte, 16)})
	img, err := New(f.build())
	require.NoError(t, err)

	_, err = img.MiniDebugImage()
	require.ErrorIs(t, err, ErrNoMiniDebugInfo)
}

func TestMiniDebugImageCorrupt(t *testing.T) {
	f := newFixture()
	f.addSection(fixtureSection{name: ".gnu_debugdata", typ: elf.SHT_PROGBITS, data: []byte("not xz data")})
	img, err := New(f.build())
	require.NoError(t, err)

	_, err = img.MiniDebugImage()
	require.Error(t, err)
}
