// Package object implements the section/symbol/relocation data model and the
// public assembler-facing interface described in spec.md §3, §4.1–§4.3, and
// §6.1: a two-pass-aware emitter that accumulates section bodies, symbols,
// and relocation requests, and hands a finished graph to the elf package's
// writer on Cleanup.
package object

import (
	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/arc-language/elfgen/internal/saa"
)

// Segment id space. Real sections live at 0..N-1 (registry index). The
// remaining values are the sentinels spec.md §3/§6.3 describes: NoSeg means
// "no relocation, plain constant", the Seg* pseudo-segments are the fixed
// ids of the WRT qualifiers, and the SegUndef/SegCommon/SegAbs values are
// the assembler-facing equivalents of SHN_UNDEF/SHN_COMMON/SHN_ABS.
const (
	NoSeg = -1

	SegGotPC  = -10
	SegGotOff = -11
	SegGot    = -12
	SegPlt    = -13
	SegSym    = -14

	SegUndef  = -20
	SegCommon = -21
	SegAbs    = -22

	// externSegmentBase is the start of the range Emitter.AllocExternSegment
	// hands out: one fresh, distinct, even id per extern/common declaration,
	// mirroring the generic assembler core's seg_alloc() pairing convention
	// (even = the segment itself, odd = its unsupported "segment base"
	// variant — see isSegmentBaseReference in relocation.go).
	externSegmentBase = -1000
)

// Severity is the diagnostic level passed to a Reporter (spec.md §7).
type Severity int

const (
	SevNonFatal Severity = iota
	SevWarning
	SevPanic
)

// WarnClass tags a warning with the class that can gate it, mirroring
// spec.md §7's ERR_WARN_GNUELF class for 16-bit relocation diagnostics.
type WarnClass int

const (
	WarnNone WarnClass = iota
	WarnGNUElf
)

// OutKind selects the emission discipline of an Out call (spec.md §4.3).
type OutKind int

const (
	OutReserve OutKind = iota
	OutRawData
	OutAddress
	OutRel2Adr
	OutRel4Adr
)

// DefLabelMode selects how deflabel interprets its arguments (spec.md §4.2).
type DefLabelMode int

const (
	DefLocal DefLabelMode = iota
	DefGlobal
	DefCommon
	DefForwardSize
)

// SectionType is PROGBITS or NOBITS (spec.md §3).
type SectionType int

const (
	SectionProgbits SectionType = iota
	SectionNobits
)

// SectionFlags are the WRITE/ALLOC/EXECINSTR bits (spec.md §3).
type SectionFlags uint32

const (
	FlagWrite     SectionFlags = elfconst.SHFWrite
	FlagAlloc     SectionFlags = elfconst.SHFAlloc
	FlagExecinstr SectionFlags = elfconst.SHFExecinstr
)

// RelocTargetKind distinguishes the two late-renumbering flavors a
// relocation's symbol field can resolve to (design notes §9: a tagged
// variant replaces the GLOBAL_TEMP_BASE sentinel from the original design).
type RelocTargetKind int

const (
	// RelocSection targets a user section's STT_SECTION symbol.
	RelocSection RelocTargetKind = iota
	// RelocGlobal targets a global symbol by its dense slot number.
	RelocGlobal
	// RelocDwarfInfo/Abbrev/Line target the three synthetic STT_SECTION
	// symbols the writer creates for the DWARF sections (spec.md §4.5).
	RelocDwarfInfo
	RelocDwarfAbbrev
	RelocDwarfLine
)

// RelocTarget is what a Relocation's symbol field really points at; it is
// resolved to a concrete symtab index exactly once, during serialization.
type RelocTarget struct {
	Kind         RelocTargetKind
	SectionIndex int // for RelocSection: index into Emitter.sections
	GlobalSlot   int // for RelocGlobal: dense global slot number
}

// Relocation is one entry destined for a .rel.<section> table, or a
// .rela.<section> table when Addend is meaningful (the DWARF back end's
// generated sections use RELA form; user-section relocations fold their
// addend into the placeholder bytes already written and leave Addend 0).
type Relocation struct {
	Offset uint32
	Target RelocTarget
	Type   uint32 // one of the elfconst.R386* constants
	Addend int32
}

// Section is one user-visible section (spec.md §3).
type Section struct {
	Name    string
	Index   int // 0-based registry index; ELF section header index is Index+1, its STT_SECTION symbol is symtab entry Index+2
	Type    SectionType
	Flags   SectionFlags
	Align   uint32
	Body    *saa.SAA
	Relocs  []*Relocation
	Globals []*Symbol // this section's global-symbol list, in definition order
	length  uint32    // tracked separately from Body.Len() for NOBITS sections
}

// Len returns the section's current logical length (its NOBITS reservation
// total for BSS-like sections, or the body buffer length otherwise).
func (s *Section) Len() uint32 {
	if s.Type == SectionNobits {
		return s.length
	}
	return uint32(s.Body.Len())
}

// Symbol is one defined or referenced name (spec.md §3).
type Symbol struct {
	Name       string
	NameOffset uint32 // set by the writer when it builds .strtab

	// Segment is the assembler-facing segment this symbol lives in: a
	// section registry index, or one of SegUndef/SegCommon/SegAbs.
	Segment int

	Type       byte // one of elfconst.STT*
	Global     bool
	Visibility byte // one of elfconst.STV*
	Value      uint64
	Size       uint64

	// GlobalSlot is this symbol's dense slot number if Global is true,
	// assigned in definition order when DefLabel defines it; -1 otherwise.
	GlobalSlot int

	// forwardSizeExpr is not written by this package: a symbol awaiting a
	// forward-declared size is tracked in Emitter.pendingSizes instead.
	forwardSizeExpr string
}

// GeneratedSection is a finished, self-contained section body produced by a
// debug back end (STABS or DWARF), ready for the ELF writer to lay out. It
// carries its own relocation list so the writer never needs to know the
// internals of whichever back end produced it.
type GeneratedSection struct {
	Name     string
	Type     uint32
	Flags    uint32
	Align    uint32
	EntSize  uint32
	Body     []byte
	Relocs   []Relocation
	RelaForm bool // true: emit as SHT_RELA (12-byte entries); false: SHT_REL
}

// DebugBackend is the contract a debug-info generator (STABS or DWARF)
// implements to observe the same `linenum`/instruction stream the emitter
// sees, per spec.md §6.1 and §4.7/§4.8.
type DebugBackend interface {
	// LineNum records the current source position; segto is the assembler
	// segment the next instruction will land in.
	LineNum(file string, line int, segto int)

	// NotifyEmit is called once per Out() call that writes bytes (including
	// zeroed reservations) into an EXECINSTR section's body; it gates
	// internally on "has LineNum been called since the last NotifyEmit" so
	// that multiple Out() calls for one source line only produce one record.
	NotifyEmit(segto int, sectionName string, offset uint32)

	// Generate finalizes all buffers against the emitter's final section
	// layout and returns the sections to splice into the ELF output.
	Generate(view DebugView) ([]GeneratedSection, error)
}

// DebugView is the narrow, read-only slice of Emitter state a debug back end
// needs to finalize its buffers: section names/indices/lengths and the
// module's primary file name. It exists so the debug package never needs to
// import the object package's mutable Emitter type directly.
type DebugView interface {
	SectionInfo() []SectionInfo
	ModuleFileName() string
}

// SectionInfo is the read-only view of one user section a debug back end
// needs at Generate time.
type SectionInfo struct {
	Index int
	Name  string
	Len   uint32
	Exec  bool
}
