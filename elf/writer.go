// Package elf assembles the finished section/symbol/relocation graph an
// object.Emitter holds into a bit-exact ELF32 (i386) ET_REL file, per
// spec.md §4.4-§4.6 and the container layout in §6.2.
package elf

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/arc-language/elfgen/internal/strtab"
	"github.com/arc-language/elfgen/object"
)

const (
	localK   = 2 // null + file-name entry, no DWARF
	dwarfK   = 5 // null + file-name entry + 3 DWARF STT_SECTION entries
	entPad   = 16
	shOffset = 0x40
)

// header is one section-header-table entry the writer assembles before
// laying out file offsets; content is supplied once known (some sections,
// like .symtab/.strtab/.rel.*, have bodies only knowable after the rest of
// the layout is fixed).
type header struct {
	name    string
	nameIdx uint32
	typ     uint32
	flags   uint32
	link    uint32
	info    uint32
	align   uint32
	entsize uint32
	content []byte
}

// Writer serializes one object.Emitter's accumulated state.
type Writer struct {
	// Comment is the NUL-delimited comment-section payload spec.md §4.4
	// step 3 describes; callers set it from the version string their CLI
	// reports (see cmd/elfgen).
	Comment string
}

// Write implements spec.md §4.4's responsibilities in order. It calls
// e.Cleanup() itself, so callers must not call it separately.
func (wr *Writer) Write(e *object.Emitter, w io.Writer) error {
	generated, err := e.Cleanup()
	if err != nil {
		return fmt.Errorf("finalizing debug info: %w", err)
	}

	sections := e.Sections()
	nsects := len(sections)

	dwarfActive := false
	for _, gs := range generated {
		if strings.HasPrefix(gs.Name, ".debug_") {
			dwarfActive = true
			break
		}
	}

	var headers []header

	// 0: null section.
	headers = append(headers, header{name: ""})

	// User sections, in registry order; header index = 1+sec.Index.
	sectionHeaderIndex := make([]int, nsects)
	for _, sec := range sections {
		typ := uint32(elfconst.SHTProgbits)
		if sec.Type == object.SectionNobits {
			typ = elfconst.SHTNobits
		}
		var content []byte
		if sec.Type != object.SectionNobits {
			content = sec.Body.Bytes()
		}
		sectionHeaderIndex[sec.Index] = len(headers)
		headers = append(headers, header{
			name:    sec.Name,
			typ:     typ,
			flags:   uint32(sec.Flags),
			align:   alignOrOne(sec.Align),
			content: content,
		})
	}
	// NOBITS sections need sh_size = reserved length, not len(content).
	nobitsSize := make(map[int]uint32)
	for _, sec := range sections {
		if sec.Type == object.SectionNobits {
			nobitsSize[sectionHeaderIndex[sec.Index]] = sec.Len()
		}
	}

	// .comment
	headers = append(headers, header{
		name:    ".comment",
		typ:     elfconst.SHTProgbits,
		align:   1,
		content: []byte(wr.Comment),
	})

	// .shstrtab (content filled once every header's name is known).
	shstrtabIdx := len(headers)
	headers = append(headers, header{name: ".shstrtab", typ: elfconst.SHTStrtab, align: 1})

	// .symtab (content filled after the symbol table is built).
	symtabIdx := len(headers)
	headers = append(headers, header{
		name:    ".symtab",
		typ:     elfconst.SHTSymtab,
		align:   4,
		entsize: elfconst.SymSize,
	})

	// .strtab (content filled alongside .symtab).
	strtabIdx := len(headers)
	headers = append(headers, header{name: ".strtab", typ: elfconst.SHTStrtab, align: 1})

	// One .rel.NAME per user section with relocations.
	relHeaderForSection := make(map[int]int)
	for _, sec := range sections {
		if len(sec.Relocs) == 0 {
			continue
		}
		idx := len(headers)
		relHeaderForSection[sec.Index] = idx
		headers = append(headers, header{
			name:    ".rel." + sec.Name,
			typ:     elfconst.SHTRel,
			link:    0, // patched to symtabIdx below
			info:    uint32(sectionHeaderIndex[sec.Index]),
			align:   4,
			entsize: elfconst.RelSize,
		})
	}

	// Debug sections, interleaving each generated section with its own
	// companion rel/rela table immediately after it (producing the
	// "aranges+rela, pubnames, info+rela, abbrev, line+rela, frame, loc"
	// order for DWARF, or the simpler STABS layout, purely from the order
	// and Relocs/RelaForm the back end returned).
	debugDataHeaderIndex := make(map[string]int)
	type debugRelocJob struct {
		headerIdx int
		dataIdx   int
		relas     []object.Relocation
	}
	var debugRelocJobs []debugRelocJob
	for _, gs := range generated {
		dataIdx := len(headers)
		debugDataHeaderIndex[gs.Name] = dataIdx
		headers = append(headers, header{
			name:    gs.Name,
			typ:     gs.Type,
			flags:   gs.Flags,
			align:   alignOrOne(gs.Align),
			entsize: gs.EntSize,
			content: gs.Body,
		})
		if len(gs.Relocs) > 0 {
			relTyp := uint32(elfconst.SHTRel)
			prefix := ".rel"
			entsz := uint32(elfconst.RelSize)
			if gs.RelaForm {
				relTyp = elfconst.SHTRela
				prefix = ".rela"
				entsz = elfconst.RelaSize
			}
			relIdx := len(headers)
			headers = append(headers, header{
				name:    prefix + gs.Name,
				typ:     relTyp,
				info:    uint32(dataIdx),
				align:   4,
				entsize: entsz,
			})
			debugRelocJobs = append(debugRelocJobs, debugRelocJob{headerIdx: relIdx, dataIdx: dataIdx, relas: gs.Relocs})
		}
	}

	nsections := len(headers)

	// --- Build .shstrtab now that every header name is known. ---
	shNames := strtab.New()
	for i := range headers {
		headers[i].nameIdx = shNames.Add(headers[i].name)
	}
	headers[shstrtabIdx].content = shNames.Bytes()

	// --- Build the symbol table and .strtab. ---
	symNames := strtab.New()
	symtabBody := make([]byte, 0, elfconst.SymSize*8)

	writeSym := func(nameOff uint32, value, size uint32, info, other byte, shndx uint16) {
		var rec [elfconst.SymSize]byte
		binary.LittleEndian.PutUint32(rec[0:4], nameOff)
		binary.LittleEndian.PutUint32(rec[4:8], value)
		binary.LittleEndian.PutUint32(rec[8:12], size)
		rec[12] = info
		rec[13] = other
		binary.LittleEndian.PutUint16(rec[14:16], shndx)
		symtabBody = append(symtabBody, rec[:]...)
	}

	moduleFileName := e.ModuleFileName()
	fileNameOff := symNames.Add(moduleFileName)

	// 1: null.
	writeSym(0, 0, 0, 0, 0, 0)
	// 2: file.
	writeSym(fileNameOff, 0, 0, symInfo(elfconst.STBLocal, elfconst.STTFile), 0, elfconst.SHNAbs)
	// 3..: one STT_SECTION per user section.
	for _, sec := range sections {
		writeSym(0, 0, 0, symInfo(elfconst.STBLocal, elfconst.STTSection), 0, uint16(sectionHeaderIndex[sec.Index]))
	}

	nextIndex := 2 + nsects // 0-based: null(0)+file(1)+sections(2..2+nsects-1)

	var locals, globals []*object.Symbol
	for _, sym := range e.Symbols() {
		if sym.Global {
			globals = append(globals, sym)
		} else {
			locals = append(locals, sym)
		}
	}

	for _, sym := range locals {
		nameOff := symNames.Add(sym.Name)
		shndx := shndxFor(sym, sectionHeaderIndex)
		writeSym(nameOff, uint32(sym.Value), uint32(sym.Size), symInfo(elfconst.STBLocal, sym.Type), sym.Visibility, shndx)
		nextIndex++
	}
	nlocalsBare := len(locals)

	var dwarfInfoSym, dwarfAbbrevSym, dwarfLineSym int
	if dwarfActive {
		dwarfInfoSym = nextIndex
		writeSym(0, 0, 0, symInfo(elfconst.STBLocal, elfconst.STTSection), 0, uint16(debugDataHeaderIndex[".debug_info"]))
		nextIndex++
		dwarfAbbrevSym = nextIndex
		writeSym(0, 0, 0, symInfo(elfconst.STBLocal, elfconst.STTSection), 0, uint16(debugDataHeaderIndex[".debug_abbrev"]))
		nextIndex++
		dwarfLineSym = nextIndex
		writeSym(0, 0, 0, symInfo(elfconst.STBLocal, elfconst.STTSection), 0, uint16(debugDataHeaderIndex[".debug_line"]))
		nextIndex++
	}

	shInfo := nextIndex // prefix length; equals nsects+K+nlocalsBare

	for _, sym := range globals {
		nameOff := symNames.Add(sym.Name)
		shndx := shndxFor(sym, sectionHeaderIndex)
		writeSym(nameOff, uint32(sym.Value), uint32(sym.Size), symInfo(elfconst.STBGlobal, sym.Type), sym.Visibility, shndx)
		nextIndex++
	}

	headers[symtabIdx].content = symtabBody
	headers[symtabIdx].link = uint32(strtabIdx)
	headers[symtabIdx].info = uint32(shInfo)
	headers[strtabIdx].content = symNames.Bytes()

	// --- Resolve every relocation's final symtab index and serialize. ---
	resolve := func(target object.RelocTarget) (uint32, error) {
		switch target.Kind {
		case object.RelocSection:
			return uint32(2 + target.SectionIndex), nil
		case object.RelocGlobal:
			return uint32(nsects + kFor(dwarfActive) + nlocalsBare + target.GlobalSlot), nil
		case object.RelocDwarfInfo:
			return uint32(dwarfInfoSym), nil
		case object.RelocDwarfAbbrev:
			return uint32(dwarfAbbrevSym), nil
		case object.RelocDwarfLine:
			return uint32(dwarfLineSym), nil
		default:
			return 0, fmt.Errorf("unresolvable relocation target kind %d", target.Kind)
		}
	}

	for _, sec := range sections {
		idx, ok := relHeaderForSection[sec.Index]
		if !ok {
			continue
		}
		body := make([]byte, 0, elfconst.RelSize*len(sec.Relocs))
		for _, rel := range sec.Relocs {
			symIdx, err := resolve(rel.Target)
			if err != nil {
				return fmt.Errorf("section %q: %w", sec.Name, err)
			}
			var rec [elfconst.RelSize]byte
			binary.LittleEndian.PutUint32(rec[0:4], rel.Offset)
			binary.LittleEndian.PutUint32(rec[4:8], (symIdx<<8)|rel.Type)
			body = append(body, rec[:]...)
		}
		headers[idx].content = body
		headers[idx].link = uint32(symtabIdx)
	}

	for _, job := range debugRelocJobs {
		rela := headers[job.headerIdx].typ == elfconst.SHTRela
		entsz := elfconst.RelSize
		if rela {
			entsz = elfconst.RelaSize
		}
		body := make([]byte, 0, entsz*len(job.relas))
		for _, rel := range job.relas {
			symIdx, err := resolve(rel.Target)
			if err != nil {
				return fmt.Errorf("debug section %q: %w", headers[job.dataIdx].name, err)
			}
			var rec [elfconst.RelaSize]byte
			binary.LittleEndian.PutUint32(rec[0:4], rel.Offset)
			binary.LittleEndian.PutUint32(rec[4:8], (symIdx<<8)|rel.Type)
			if rela {
				binary.LittleEndian.PutUint32(rec[8:12], uint32(rel.Addend))
				body = append(body, rec[:12]...)
			} else {
				body = append(body, rec[:8]...)
			}
		}
		headers[job.headerIdx].content = body
		headers[job.headerIdx].link = uint32(symtabIdx)
	}

	// --- Lay out file offsets and emit. ---
	cursor := uint32(align(shOffset+elfconst.ShdrSize*uint32(nsections), entPad))
	offsets := make([]uint32, len(headers))
	sizes := make([]uint32, len(headers))
	for i, h := range headers {
		if h.typ == elfconst.SHTNull {
			offsets[i] = 0
			sizes[i] = 0
			continue
		}
		size, isNobits := nobitsSize[i]
		if !isNobits {
			size = uint32(len(h.content))
		}
		offsets[i] = cursor
		sizes[i] = size
		cursor = align(cursor+size, entPad)
	}

	shstrndx := uint16(shstrtabIdx)
	if err := writeELFHeader(w, uint32(shOffset), uint16(nsections), shstrndx, e.OSABI(), e.ABIVersion()); err != nil {
		return err
	}

	for i, h := range headers {
		if err := writeSectionHeader(w, h, offsets[i], sizes[i]); err != nil {
			return err
		}
	}

	written := uint32(shOffset + elfconst.ShdrSize*uint32(nsections))
	for i, h := range headers {
		if h.typ == elfconst.SHTNull || sizes[i] == 0 && h.typ == elfconst.SHTNobits {
			continue
		}
		if offsets[i] > written {
			if _, err := w.Write(make([]byte, offsets[i]-written)); err != nil {
				return err
			}
			written = offsets[i]
		}
		if _, isNobits := nobitsSize[i]; isNobits {
			continue
		}
		if _, err := w.Write(h.content); err != nil {
			return err
		}
		written += uint32(len(h.content))
		if pad := align(written, entPad) - written; pad > 0 {
			if _, err := w.Write(make([]byte, pad)); err != nil {
				return err
			}
			written += pad
		}
	}

	return nil
}

func kFor(dwarfActive bool) int {
	if dwarfActive {
		return dwarfK
	}
	return localK
}

func symInfo(bind, typ byte) byte {
	return (bind << 4) | (typ & 0xf)
}

func shndxFor(sym *object.Symbol, sectionHeaderIndex []int) uint16 {
	switch sym.Segment {
	case object.SegUndef:
		return elfconst.SHNUndef
	case object.SegCommon:
		return elfconst.SHNCommon
	case object.SegAbs:
		return elfconst.SHNAbs
	default:
		if sym.Segment >= 0 && sym.Segment < len(sectionHeaderIndex) {
			return uint16(sectionHeaderIndex[sym.Segment])
		}
		return elfconst.SHNUndef
	}
}

func alignOrOne(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

func align(n, to uint32) uint32 {
	if n%to == 0 {
		return n
	}
	return n + (to - n%to)
}

func writeELFHeader(w io.Writer, shoff uint32, shnum, shstrndx uint16, osabi, abiVersion byte) error {
	var hdr [elfconst.EHdrSize]byte
	hdr[0] = elfconst.EIMag0
	hdr[1] = elfconst.EIMag1
	hdr[2] = elfconst.EIMag2
	hdr[3] = elfconst.EIMag3
	hdr[4] = elfconst.ELFClass32
	hdr[5] = elfconst.ELFData2LSB
	hdr[6] = elfconst.EVCurrent
	hdr[7] = osabi
	hdr[8] = abiVersion
	// the rest of e_ident stays zero.

	binary.LittleEndian.PutUint16(hdr[16:18], elfconst.ETRel)
	binary.LittleEndian.PutUint16(hdr[18:20], elfconst.EM386)
	binary.LittleEndian.PutUint32(hdr[20:24], elfconst.EVCurrent)
	// e_entry, e_phoff stay zero (hdr[24:28], hdr[28:32]).
	binary.LittleEndian.PutUint32(hdr[32:36], shoff)
	// e_flags stays zero (hdr[36:40]).
	binary.LittleEndian.PutUint16(hdr[40:42], elfconst.EHdrSize)
	// e_phentsize, e_phnum stay zero (hdr[42:44], hdr[44:46]).
	binary.LittleEndian.PutUint16(hdr[46:48], elfconst.ShdrSize)
	binary.LittleEndian.PutUint16(hdr[48:50], shnum)
	binary.LittleEndian.PutUint16(hdr[50:52], shstrndx)

	_, err := w.Write(hdr[:])
	return err
}

func writeSectionHeader(w io.Writer, h header, offset, size uint32) error {
	var rec [elfconst.ShdrSize]byte
	binary.LittleEndian.PutUint32(rec[0:4], h.nameIdx)
	binary.LittleEndian.PutUint32(rec[4:8], h.typ)
	binary.LittleEndian.PutUint32(rec[8:12], h.flags)
	// sh_addr (rec[12:16]) stays zero: these are unlinked object sections.
	binary.LittleEndian.PutUint32(rec[16:20], offset)
	binary.LittleEndian.PutUint32(rec[20:24], size)
	binary.LittleEndian.PutUint32(rec[24:28], h.link)
	binary.LittleEndian.PutUint32(rec[28:32], h.info)
	binary.LittleEndian.PutUint32(rec[32:36], h.align)
	binary.LittleEndian.PutUint32(rec[36:40], h.entsize)
	_, err := w.Write(rec[:])
	return err
}
