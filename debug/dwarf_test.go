package debug

import (
	"encoding/binary"
	"testing"

	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/arc-language/elfgen/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDWARFSpecialOpcodeCompaction(t *testing.T) {
	b := NewDWARFBackend()

	b.LineNum("main.s", 10, 0)
	b.NotifyEmit(0, ".text", 0) // first event in the section: seeds state, emits nothing

	b.LineNum("main.s", 11, 0)
	b.NotifyEmit(0, ".text", 3)

	require.Len(t, b.sections, 1)
	prog := b.sections[0].prog.Bytes()

	// set_address extended opcode: 0x00 0x05 0x02 <4-byte placeholder>.
	require.Len(t, prog, 7+1)
	assert.Equal(t, []byte{0x00, 0x05, byte(elfconst.DWLNESetAddress)}, prog[0:3])

	// Exactly one byte after the header: (11-10-(-5)) + 14*3 + 13 = 61.
	assert.Equal(t, byte(61), prog[7])
}

func TestDWARFFallsBackToAdvanceLineAdvancePC(t *testing.T) {
	b := NewDWARFBackend()
	b.LineNum("main.s", 1, 0)
	b.NotifyEmit(0, ".text", 0)

	b.LineNum("main.s", 50, 0) // delta of 49: outside the special-opcode range
	b.NotifyEmit(0, ".text", 1)

	prog := b.sections[0].prog.Bytes()
	tail := prog[7:]
	require.GreaterOrEqual(t, len(tail), 3)
	assert.Equal(t, byte(elfconst.DWLNSAdvanceLine), tail[0])
}

func TestDWARFGenerateProducesSevenBuffersTenHeaders(t *testing.T) {
	b := NewDWARFBackend()
	b.LineNum("main.s", 1, 0)
	b.NotifyEmit(0, ".text", 0)
	b.LineNum("main.s", 2, 0)
	b.NotifyEmit(0, ".text", 4)

	view := fakeView{
		module:   "main.s",
		sections: []object.SectionInfo{{Index: 0, Name: ".text", Len: 8, Exec: true}},
	}

	sections, err := b.Generate(view)
	require.NoError(t, err)
	require.Len(t, sections, 7)

	withRelocs := 0
	for _, gs := range sections {
		if len(gs.Relocs) > 0 {
			withRelocs++
			assert.True(t, gs.RelaForm)
		}
	}
	assert.Equal(t, 3, withRelocs) // aranges, info, line

	// aranges/info/line all lead with a 4-byte initial length counting the
	// bytes that follow it, matching the DWARF unit_length convention.
	for _, name := range []string{".debug_aranges", ".debug_info", ".debug_line"} {
		for _, gs := range sections {
			if gs.Name != name {
				continue
			}
			declared := binary.LittleEndian.Uint32(gs.Body[0:4])
			assert.EqualValues(t, len(gs.Body)-4, declared, "%s initial length", name)
		}
	}
}
