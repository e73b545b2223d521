package elf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/arc-language/elfgen/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nullReporter struct{}

func (nullReporter) Report(object.Severity, object.WarnClass, string, ...any) {}
func (nullReporter) WarningsEnabled(object.WarnClass) bool                   { return true }

func TestWriteMinimalObjectHeader(t *testing.T) {
	e := object.NewEmitter(nullReporter{}, nil)
	e.Init("min.s")
	textIdx, err := e.SectionNames(".text", 1)
	require.NoError(t, err)
	require.NoError(t, e.Out(textIdx, object.OutRawData, []byte{0xc3}, 1, object.NoSeg, ""))

	var buf bytes.Buffer
	wr := &Writer{Comment: "\x00test emitter\x00"}
	require.NoError(t, wr.Write(e, &buf))

	out := buf.Bytes()
	require.GreaterOrEqual(t, len(out), elfconst.EHdrSize)

	assert.Equal(t, byte(elfconst.EIMag0), out[0])
	assert.Equal(t, byte(elfconst.EIMag1), out[1])
	assert.Equal(t, byte(elfconst.EIMag2), out[2])
	assert.Equal(t, byte(elfconst.EIMag3), out[3])
	assert.Equal(t, byte(elfconst.ELFClass32), out[4])
	assert.Equal(t, byte(elfconst.ELFData2LSB), out[5])

	etype := binary.LittleEndian.Uint16(out[16:18])
	assert.EqualValues(t, elfconst.ETRel, etype)
	emachine := binary.LittleEndian.Uint16(out[18:20])
	assert.EqualValues(t, elfconst.EM386, emachine)

	shoff := binary.LittleEndian.Uint32(out[32:36])
	assert.EqualValues(t, 0x40, shoff)
	ehsize := binary.LittleEndian.Uint16(out[40:42])
	assert.EqualValues(t, elfconst.EHdrSize, ehsize)
	shentsize := binary.LittleEndian.Uint16(out[46:48])
	assert.EqualValues(t, elfconst.ShdrSize, shentsize)
}

func TestWriteWithRelocationProducesRelSection(t *testing.T) {
	e := object.NewEmitter(nullReporter{}, nil)
	e.Init("rel.s")
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)

	require.NoError(t, e.Out(textIdx, object.OutAddress, make([]byte, 4), 4, dataIdx, ""))

	var buf bytes.Buffer
	wr := &Writer{Comment: "\x00t\x00"}
	require.NoError(t, wr.Write(e, &buf))
	assert.Contains(t, buf.String(), ".rel.text")
}

func TestSectionHeaderOffsetsAre16ByteAligned(t *testing.T) {
	e := object.NewEmitter(nullReporter{}, nil)
	e.Init("align.s")
	textIdx, _ := e.SectionNames(".text", 1)
	require.NoError(t, e.Out(textIdx, object.OutRawData, []byte{1, 2, 3}, 3, object.NoSeg, ""))

	var buf bytes.Buffer
	wr := &Writer{Comment: "\x00t\x00"}
	require.NoError(t, wr.Write(e, &buf))

	out := buf.Bytes()
	shoff := binary.LittleEndian.Uint32(out[32:36])
	shnum := binary.LittleEndian.Uint16(out[48:50])

	for i := 0; i < int(shnum); i++ {
		rec := out[int(shoff)+i*elfconst.ShdrSize : int(shoff)+(i+1)*elfconst.ShdrSize]
		typ := binary.LittleEndian.Uint32(rec[4:8])
		offset := binary.LittleEndian.Uint32(rec[16:20])
		if typ == elfconst.SHTNull {
			continue
		}
		assert.Zero(t, offset%16, "section header %d has non-16-aligned offset %d", i, offset)
	}
}
