package debug

import (
	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/arc-language/elfgen/internal/saa"
	"github.com/arc-language/elfgen/object"
)

// dwarfProducer names this generator in the compile-unit DIE's producer
// attribute, matching the string field a NASM-style ELF back end would emit
// there so downstream tooling keyed on that prefix still matches.
const dwarfProducer = "NASM 2.16.01"

type dwarfSectionState struct {
	index      int
	name       string
	file       string
	line       int
	offset     uint32
	prog       *saa.SAA
	addrOffset int // offset of the set_address placeholder within prog
}

// DWARFBackend implements object.DebugBackend producing the DWARF v2/v3
// aranges/pubnames/info/abbrev/line/frame/loc sections spec.md §4.8
// describes.
type DWARFBackend struct {
	files     []string
	fileIndex map[string]int

	sections   []*dwarfSectionState
	sectionIdx map[int]*dwarfSectionState

	pendingLine bool
	curFile     string
	curLine     int
}

// NewDWARFBackend returns an empty DWARF back end.
func NewDWARFBackend() *DWARFBackend {
	return &DWARFBackend{
		fileIndex:  make(map[string]int),
		sectionIdx: make(map[int]*dwarfSectionState),
	}
}

// findfile interns name in insertion order; the returned index is 1-based.
func (b *DWARFBackend) findfile(name string) int {
	if idx, ok := b.fileIndex[name]; ok {
		return idx
	}
	b.files = append(b.files, name)
	idx := len(b.files)
	b.fileIndex[name] = idx
	return idx
}

// findsect interns a section's line program, seeding a freshly created
// state from the event that discovered it so the first event in a section
// never itself produces a line-program byte (only the leading set_address
// placeholder does) — section.line/offset start exactly at that event's
// values, making its own Δline/Δaddr zero.
func (b *DWARFBackend) findsect(index int, name, file string, line int, offset uint32) *dwarfSectionState {
	if st, ok := b.sectionIdx[index]; ok {
		return st
	}
	st := &dwarfSectionState{index: index, name: name, file: file, line: line, offset: offset, prog: saa.New()}
	st.prog.WriteByte(0) // extended opcode marker
	st.prog.WriteByte(5) // uleb128 length: subopcode byte + 4-byte operand
	st.prog.WriteByte(elfconst.DWLNESetAddress)
	st.addrOffset = st.prog.Len()
	st.prog.WriteUint32LE(0) // relocatable address placeholder
	b.sections = append(b.sections, st)
	b.sectionIdx[index] = st
	return st
}

// LineNum implements object.DebugBackend.
func (b *DWARFBackend) LineNum(file string, line int, segto int) {
	b.curFile = file
	b.curLine = line
	b.pendingLine = true
}

// NotifyEmit implements object.DebugBackend: spec.md §4.8's special-opcode
// compaction, falling back to explicit advance_line/advance_pc when the
// delta pair doesn't fit one byte.
func (b *DWARFBackend) NotifyEmit(segto int, sectionName string, offset uint32) {
	if !b.pendingLine {
		return
	}
	b.pendingLine = false

	fileIdx := b.findfile(b.curFile)
	st := b.findsect(segto, sectionName, b.curFile, b.curLine, offset)

	if st.file != b.curFile {
		st.prog.WriteByte(elfconst.DWLNSSetFile)
		st.prog.WriteByte(byte(fileIdx))
		st.file = b.curFile
	}

	deltaLine := int64(b.curLine) - int64(st.line)
	deltaAddr := int64(offset) - int64(st.offset)
	if deltaLine != 0 || deltaAddr != 0 {
		soc := (deltaLine - elfconst.DWLineBase) + elfconst.DWLineRange*deltaAddr + elfconst.DWOpcodeBase
		if deltaLine >= elfconst.DWLineBase && deltaLine < elfconst.DWLineBase+elfconst.DWLineRange && soc < 256 {
			st.prog.WriteByte(byte(soc))
		} else {
			st.prog.WriteByte(elfconst.DWLNSAdvanceLine)
			st.prog.Write(appendSleb128(nil, deltaLine))
			st.prog.WriteByte(elfconst.DWLNSAdvancePC)
			st.prog.Write(appendUleb128(nil, uint64(deltaAddr)))
		}
	}

	st.line = b.curLine
	st.offset = offset
}

// Generate implements object.DebugBackend, assembling the ten sections
// (seven data buffers, three with a companion .rela table) spec.md §4.8
// describes.
func (b *DWARFBackend) Generate(view object.DebugView) ([]object.GeneratedSection, error) {
	lenByIndex := make(map[int]uint32)
	for _, si := range view.SectionInfo() {
		lenByIndex[si.Index] = si.Len
	}

	var totalLength uint32
	for _, st := range b.sections {
		totalLength += lenByIndex[st.index]
	}

	firstSection := 0
	if len(b.sections) > 0 {
		firstSection = b.sections[0].index
	}

	aranges, arangesRelocs := b.buildAranges(lenByIndex)
	info, infoRelocs := b.buildInfo(view.ModuleFileName(), firstSection, totalLength)
	abbrev := buildAbbrev()
	line, lineRelocs := b.buildLine(lenByIndex)
	pubnames := buildPubnames()

	return []object.GeneratedSection{
		{Name: ".debug_aranges", Type: elfconst.SHTProgbits, Align: 4, Body: aranges, Relocs: arangesRelocs, RelaForm: true},
		{Name: ".debug_pubnames", Type: elfconst.SHTProgbits, Align: 1, Body: pubnames},
		{Name: ".debug_info", Type: elfconst.SHTProgbits, Align: 1, Body: info, Relocs: infoRelocs, RelaForm: true},
		{Name: ".debug_abbrev", Type: elfconst.SHTProgbits, Align: 1, Body: abbrev},
		{Name: ".debug_line", Type: elfconst.SHTProgbits, Align: 1, Body: line, Relocs: lineRelocs, RelaForm: true},
		{Name: ".debug_frame", Type: elfconst.SHTProgbits, Align: 4, Body: make([]byte, 4)},
		{Name: ".debug_loc", Type: elfconst.SHTProgbits, Align: 1, Body: make([]byte, 16)},
	}, nil
}

func (b *DWARFBackend) buildAranges(lenByIndex map[int]uint32) ([]byte, []object.Relocation) {
	body := saa.New()
	lengthOff := body.Len()
	body.WriteUint32LE(0) // initial length, patched below
	body.WriteUint16LE(2) // version
	infoOff := body.Len()
	body.WriteUint32LE(0) // debug_info offset, relocated
	body.WriteByte(4)     // address size
	body.WriteByte(0)     // segment selector size
	body.WriteZeros(4)    // padding

	relocs := []object.Relocation{{
		Offset: uint32(infoOff),
		Target: object.RelocTarget{Kind: object.RelocDwarfInfo},
		Type:   elfconst.R38632,
	}}

	for _, st := range b.sections {
		startOff := body.Len()
		body.WriteUint32LE(0)
		relocs = append(relocs, object.Relocation{
			Offset: uint32(startOff),
			Target: object.RelocTarget{Kind: object.RelocSection, SectionIndex: st.index},
			Type:   elfconst.R38632,
		})
		body.WriteUint32LE(lenByIndex[st.index])
	}
	body.WriteUint32LE(0)
	body.WriteUint32LE(0)

	body.PatchUint32LE(lengthOff, uint32(body.Len()-(lengthOff+4)))

	return body.Bytes(), relocs
}

func buildPubnames() []byte {
	body := saa.New()
	lengthOff := body.Len()
	body.WriteUint32LE(0) // initial length, patched below
	body.WriteUint16LE(3) // version
	body.WriteUint32LE(0) // debug_info offset
	body.WriteUint32LE(0) // debug_info length
	body.WriteUint32LE(0) // terminator
	body.PatchUint32LE(lengthOff, uint32(body.Len()-(lengthOff+4)))
	return body.Bytes()
}

func (b *DWARFBackend) buildInfo(moduleFileName string, firstSection int, totalLength uint32) ([]byte, []object.Relocation) {
	body := saa.New()
	lengthOff := body.Len()
	body.WriteUint32LE(0) // initial length, patched below
	body.WriteUint16LE(2) // version
	abbrevOff := body.Len()
	body.WriteUint32LE(0) // abbrev offset, relocated
	body.WriteByte(4)     // address size

	relocs := []object.Relocation{{
		Offset: uint32(abbrevOff),
		Target: object.RelocTarget{Kind: object.RelocDwarfAbbrev},
		Type:   elfconst.R38632,
	}}

	target := object.RelocTarget{Kind: object.RelocSection, SectionIndex: firstSection}

	body.WriteByte(1) // abbrev code 1: compile_unit
	lowPCOff := body.Len()
	body.WriteUint32LE(0)
	relocs = append(relocs, object.Relocation{Offset: uint32(lowPCOff), Target: target, Type: elfconst.R38632})
	highPCOff := body.Len()
	body.WriteUint32LE(totalLength)
	relocs = append(relocs, object.Relocation{Offset: uint32(highPCOff), Target: target, Type: elfconst.R38632})
	stmtListOff := body.Len()
	body.WriteUint32LE(0)
	relocs = append(relocs, object.Relocation{
		Offset: uint32(stmtListOff),
		Target: object.RelocTarget{Kind: object.RelocDwarfLine},
		Type:   elfconst.R38632,
	})
	body.WriteCString(moduleFileName)
	body.WriteCString(dwarfProducer)
	body.WriteUint16LE(elfconst.DWLangMipsAssembler)

	body.WriteByte(2) // abbrev code 2: subprogram
	subLowPCOff := body.Len()
	body.WriteUint32LE(0)
	relocs = append(relocs, object.Relocation{Offset: uint32(subLowPCOff), Target: target, Type: elfconst.R38632})
	body.WriteUint32LE(0) // frame_base
	body.WriteByte(0)     // end of compile_unit's children

	body.PatchUint32LE(lengthOff, uint32(body.Len()-(lengthOff+4)))

	return body.Bytes(), relocs
}

func buildAbbrev() []byte {
	body := saa.New()

	writeAttr := func(attr, form byte) {
		body.Write(appendUleb128(nil, uint64(attr)))
		body.Write(appendUleb128(nil, uint64(form)))
	}

	// Entry 1: compile_unit, has children.
	body.Write(appendUleb128(nil, 1))
	body.Write(appendUleb128(nil, elfconst.DWTagCompileUnit))
	body.WriteByte(1)
	writeAttr(elfconst.DWAtLowPC, elfconst.DWFormAddr)
	writeAttr(elfconst.DWAtHighPC, elfconst.DWFormAddr)
	writeAttr(elfconst.DWAtStmtList, elfconst.DWFormData4)
	writeAttr(elfconst.DWAtName, elfconst.DWFormString)
	writeAttr(elfconst.DWAtProducer, elfconst.DWFormString)
	writeAttr(elfconst.DWAtLanguage, elfconst.DWFormData2)
	body.WriteByte(0)
	body.WriteByte(0)

	// Entry 2: subprogram, no children.
	body.Write(appendUleb128(nil, 2))
	body.Write(appendUleb128(nil, elfconst.DWTagSubprogram))
	body.WriteByte(0)
	writeAttr(elfconst.DWAtLowPC, elfconst.DWFormAddr)
	writeAttr(elfconst.DWAtFrameBase, elfconst.DWFormData4)
	body.WriteByte(0)
	body.WriteByte(0)

	body.WriteByte(0) // table terminator

	return body.Bytes()
}

func (b *DWARFBackend) buildLine(lenByIndex map[int]uint32) ([]byte, []object.Relocation) {
	body := saa.New()

	unitLengthOff := body.Len()
	body.WriteUint32LE(0) // unit_length, patched below
	body.WriteUint16LE(3) // version
	headerLengthOff := body.Len()
	body.WriteUint32LE(0) // header_length, patched below

	headerStart := body.Len()
	body.WriteByte(1)    // minimum_instruction_length
	body.WriteByte(1)    // default_is_stmt
	body.WriteByte(0xfb) // line_base = -5
	body.WriteByte(elfconst.DWLineRange)
	body.WriteByte(elfconst.DWOpcodeBase)
	for _, n := range [...]byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1} {
		body.WriteByte(n)
	}
	body.WriteByte(0) // empty include_directories

	for _, name := range b.files {
		body.WriteCString(name)
		body.WriteByte(0) // directory index
		body.WriteByte(0) // mtime
		body.WriteByte(0) // length
	}
	body.WriteByte(0) // end of file table

	body.PatchUint32LE(headerLengthOff, uint32(body.Len()-headerStart))

	var relocs []object.Relocation
	for _, st := range b.sections {
		base := body.Len()
		body.Write(st.prog.Bytes())
		relocs = append(relocs, object.Relocation{
			Offset: uint32(base + st.addrOffset),
			Target: object.RelocTarget{Kind: object.RelocSection, SectionIndex: st.index},
			Type:   elfconst.R38632,
		})

		remaining := int64(lenByIndex[st.index]) - int64(st.offset)
		if remaining < 0 {
			remaining = 0
		}
		// Reproduces the reference generator's end-sequence epilogue exactly:
		// the advance_pc operand is a raw byte, not uleb128-encoded, so a
		// remaining distance over 255 wraps rather than extending.
		body.WriteByte(elfconst.DWLNSAdvancePC)
		body.WriteByte(byte(remaining))
		body.WriteByte(0) // extended opcode marker
		body.WriteByte(1) // length 1
		body.WriteByte(elfconst.DWLNEEndSequence)
	}

	body.PatchUint32LE(unitLengthOff, uint32(body.Len()-(unitLengthOff+4)))

	return body.Bytes(), relocs
}
