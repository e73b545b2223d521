package debug

import (
	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/arc-language/elfgen/internal/saa"
	"github.com/arc-language/elfgen/internal/strtab"
	"github.com/arc-language/elfgen/object"
)

// STABS type codes (stab.def); spec.md §4.7 only names the three this back
// end emits.
const (
	nSO    = 0x64
	nSOL   = 0x84
	nSLine = 0x44
)

type stabLineRecord struct {
	offset  uint32
	secIdx  int
	secName string
	line    int
	file    string
}

// StabsBackend implements object.DebugBackend producing the STABS line
// tables spec.md §4.7 describes: one line record per instruction in an
// executable section, folded at Generate time into `.stab`/`.stabstr`(+
// `.rel.stab`).
type StabsBackend struct {
	file        string
	line        int
	pendingLine bool
	records     []stabLineRecord
}

// NewStabsBackend returns an empty STABS back end.
func NewStabsBackend() *StabsBackend {
	return &StabsBackend{}
}

// LineNum implements object.DebugBackend: it records the pending source
// position and arms the immCall gate NotifyEmit consumes.
func (b *StabsBackend) LineNum(file string, line int, segto int) {
	b.file = file
	b.line = line
	b.pendingLine = true
}

// NotifyEmit implements object.DebugBackend. Only the first emission after a
// LineNum call produces a record; the emitter calls this only for executable
// sections, and Generate also drops any record whose section the view's
// final flags mark as non-executable.
func (b *StabsBackend) NotifyEmit(segto int, sectionName string, offset uint32) {
	if !b.pendingLine {
		return
	}
	b.pendingLine = false
	b.records = append(b.records, stabLineRecord{
		offset:  offset,
		secIdx:  segto,
		secName: sectionName,
		line:    b.line,
		file:    b.file,
	})
}

// Generate implements object.DebugBackend, assembling the three buffers
// spec.md §4.7 describes.
func (b *StabsBackend) Generate(view object.DebugView) ([]object.GeneratedSection, error) {
	exec := make(map[int]bool)
	for _, si := range view.SectionInfo() {
		exec[si.Index] = si.Exec
	}

	var records []stabLineRecord
	for _, r := range b.records {
		if exec[r.secIdx] {
			records = append(records, r)
		}
	}

	// 1. Deduplicate file names into an array, in first-seen order.
	var allfiles []string
	seen := make(map[string]bool)
	for _, r := range records {
		if !seen[r.file] {
			seen[r.file] = true
			allfiles = append(allfiles, r.file)
		}
	}
	if len(allfiles) == 0 {
		allfiles = append(allfiles, view.ModuleFileName())
	}

	strtbl := strtab.New()
	fileidx := make([]uint32, len(allfiles))
	nameToIdx := make(map[string]int, len(allfiles))
	for i, f := range allfiles {
		fileidx[i] = strtbl.Add(f)
		nameToIdx[f] = i
	}

	// 2. mainfileindex = index of the module file name, else 0.
	mainfileindex := 0
	if idx, ok := nameToIdx[view.ModuleFileName()]; ok {
		mainfileindex = idx
	}

	body := saa.New()
	var relocs []object.Relocation

	if len(records) == 0 {
		return []object.GeneratedSection{
			{Name: ".stab", Type: elfconst.SHTProgbits, EntSize: 12, Align: 4},
			{Name: ".stabstr", Type: elfconst.SHTStrtab, Align: 1, Body: strtbl.Bytes()},
		}, nil
	}

	// 3. Header stab: (strx=fileidx[0], type=0, desc=count_placeholder).
	// n_value preserves a documented rough edge from the reference
	// generator: it computes strlen(allfiles[0] + 12) rather than
	// strlen(allfiles[0]) + 12 — a pointer-arithmetic slip that always
	// undercounts: it yields len-12, or 0 for a name of 12 bytes or fewer.
	// Reproduced here rather than silently corrected.
	descOffset := uint32(body.Len()) + 6
	writeStab(body, fileidx[0], 0, 0, 0, buggyHeaderValue(allfiles[0]))
	stabCount := 0

	// 4. N_SO stab pointing at the main file. Its n_value is relocated
	// against the first line record's section, matching the reference
	// generator's treatment of the N_SO entry as the compile unit's base
	// address even though the raw value written here is 0.
	soValueOff := uint32(body.Len()) + 8
	writeStab(body, fileidx[mainfileindex], nSO, 0, 0, 0)
	relocs = append(relocs, object.Relocation{
		Offset: soValueOff,
		Target: object.RelocTarget{Kind: object.RelocSection, SectionIndex: records[0].secIdx},
		Type:   elfconst.R38632,
	})
	stabCount++

	currentFile := allfiles[mainfileindex]
	for _, r := range records {
		if r.file != currentFile {
			valueOff := uint32(body.Len()) + 8
			writeStab(body, fileidx[nameToIdx[r.file]], nSOL, 0, 0, r.offset)
			relocs = append(relocs, object.Relocation{
				Offset: valueOff,
				Target: object.RelocTarget{Kind: object.RelocSection, SectionIndex: r.secIdx},
				Type:   elfconst.R38632,
			})
			stabCount++
			currentFile = r.file
		}

		valueOff := uint32(body.Len()) + 8
		writeStab(body, 0, nSLine, 0, uint16(r.line), r.offset)
		relocs = append(relocs, object.Relocation{
			Offset: valueOff,
			Target: object.RelocTarget{Kind: object.RelocSection, SectionIndex: r.secIdx},
			Type:   elfconst.R38632,
		})
		stabCount++
	}

	// Backpatch the header stab's n_desc with the final count (testable
	// property 7).
	body.PatchUint16LE(int(descOffset), uint16(stabCount))

	return []object.GeneratedSection{
		{
			Name:    ".stab",
			Type:    elfconst.SHTProgbits,
			EntSize: 12,
			Align:   4,
			Body:    body.Bytes(),
			Relocs:  relocs,
		},
		{
			Name:  ".stabstr",
			Type:  elfconst.SHTStrtab,
			Align: 1,
			Body:  strtbl.Bytes(),
		},
	}, nil
}

func writeStab(buf *saa.SAA, strx uint32, typ, other byte, desc uint16, value uint32) {
	buf.WriteUint32LE(strx)
	buf.WriteByte(typ)
	buf.WriteByte(other)
	buf.WriteUint16LE(desc)
	buf.WriteUint32LE(value)
}

// buggyHeaderValue reproduces strlen(allfiles[0] + 12): the length of the
// string starting 12 bytes into the first file name, or 0 if the name is
// not long enough for that offset to land inside it.
func buggyHeaderValue(first string) uint32 {
	if len(first) <= 12 {
		return 0
	}
	return uint32(len(first) - 12)
}
