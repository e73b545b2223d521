package object

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arc-language/elfgen/internal/raa"
	"github.com/xyproto/env/v2"
)

// Emitter is the public assembler-facing object builder spec.md §6.1
// describes. One Emitter corresponds to one output object file; callers
// drive it through Init, then the SectionNames/DefLabel/Out/LineNum/
// Directive family once per pass, then Cleanup to obtain the finished
// section/symbol/relocation graph for the elf writer.
type Emitter struct {
	reporter Reporter

	sections      []*Section
	sectionByName map[string]int

	symbols      []*Symbol
	pendingSizes map[string]*Symbol

	// nextGlobalSlot/slotToSymbol assign each global/external symbol a dense
	// slot number when DefLabel defines it, in definition order.
	nextGlobalSlot int
	slotToSymbol   map[int]*Symbol

	// externSlotBySegment maps an extern/common symbol's unique segment id
	// (handed out by AllocExternSegment) to its dense global slot number —
	// the RAA spec.md §2/§4.2 describes ("segment id → external-symbol slot
	// number"), consulted by relocation.go whenever Out's target segment
	// isn't one of the emitter's own sections.
	externSlotBySegment *raa.RAA

	// nextExternSegment is the next id AllocExternSegment will hand out.
	nextExternSegment int

	osabi      byte
	abiVersion byte

	moduleFileName string
	currentFile    string
	currentLine    int

	debug DebugBackend

	pass int
}

// NewEmitter constructs an Emitter with the given Reporter. debug may be
// nil (no debug info requested); osabi defaults to ELFOSABI_SYSV (0) unless
// ELFGEN_DEFAULT_OSABI names a different byte value, letting a cross-compile
// wrapper retarget it without touching assembler source. An explicit `osabi`
// directive (spec.md §4.6) still overrides this at Directive time.
func NewEmitter(reporter Reporter, debug DebugBackend) *Emitter {
	e := &Emitter{
		reporter:            reporter,
		sectionByName:       make(map[string]int),
		pendingSizes:        make(map[string]*Symbol),
		externSlotBySegment: raa.New(),
		nextExternSegment:   externSegmentBase,
		slotToSymbol:        make(map[int]*Symbol),
		debug:               debug,
		osabi:               byte(env.Int("ELFGEN_DEFAULT_OSABI", 0)),
	}
	return e
}

// AllocExternSegment returns a fresh segment id for an extern or common
// symbol the front end is about to deflabel — the Go equivalent of the
// generic assembler core's seg_alloc(), out of scope per spec.md §1 except
// for this one consuming detail: every extern/common needs its own id so
// Out's relocation target can name a specific symbol instead of a shared
// "undefined" sentinel.
func (e *Emitter) AllocExternSegment() int {
	id := e.nextExternSegment
	e.nextExternSegment -= 2
	return id
}

// Init implements spec.md §6.1's init contract: it resets all per-pass and
// persistent state and records the module's primary file name.
func (e *Emitter) Init(moduleFileName string) {
	e.moduleFileName = moduleFileName
	e.currentFile = moduleFileName
	e.sections = nil
	e.sectionByName = make(map[string]int)
	e.symbols = nil
	e.pendingSizes = make(map[string]*Symbol)
	e.externSlotBySegment = raa.New()
	e.nextExternSegment = externSegmentBase
	e.nextGlobalSlot = 0
	e.slotToSymbol = make(map[int]*Symbol)
	e.pass = 1
}

// Reset implements spec.md §6.1's reset-between-passes contract: ephemeral
// per-pass state (section bodies, relocation lists, line records) starts
// over, but the pending forward-size list a two-pass assembler needs across
// passes survives. Reset does not touch the debug back end: its line
// records and its file-name table both carry over into the next pass.
func (e *Emitter) Reset(pass int) {
	for _, sec := range e.sections {
		sec.Body.Reset()
		sec.Relocs = nil
		sec.Globals = nil
		sec.length = 0
	}
	e.symbols = nil
	e.externSlotBySegment = raa.New()
	e.nextExternSegment = externSegmentBase
	e.nextGlobalSlot = 0
	e.slotToSymbol = make(map[int]*Symbol)
	e.pass = pass
}

// Filename records the current source file for LineNum/diagnostic purposes
// (spec.md §4.7's `%line` / file-change handling).
func (e *Emitter) Filename(name string) {
	e.currentFile = name
}

// LineNum forwards the current source position to the debug back end, if
// one is configured (spec.md §4.7).
func (e *Emitter) LineNum(line int, segto int) {
	e.currentLine = line
	if e.debug != nil {
		e.debug.LineNum(e.currentFile, line, segto)
	}
}

// SegBase implements spec.md §4.2's `segbase` pseudo-symbol resolution: it
// maps a WRT qualifier name to its segment id, or NoSeg if unrecognized.
func (e *Emitter) SegBase(wrt string) int {
	if seg, ok := specialSegmentNames[wrt]; ok {
		return seg
	}
	if idx, ok := e.sectionByName[wrt]; ok {
		return idx
	}
	return NoSeg
}

// Directive implements spec.md §4.6's small directive set, which here is
// only `osabi`. Unrecognized directives are reported as
// nonfatal and ignored, matching the teacher's tolerant-directive style.
func (e *Emitter) Directive(name, value string) error {
	switch strings.ToLower(name) {
	case "osabi":
		return e.setOSABI(value)
	default:
		e.reporter.Report(SevNonFatal, WarnNone, "unrecognized directive %q", name)
		return nil
	}
}

// setOSABI parses the osabi directive's argument: spec.md §6.3's `osabi
// N[,V]` form (0≤N,V≤255), a bare decimal/hex byte value (V defaults to 0),
// or one of a handful of recognized mnemonics.
func (e *Emitter) setOSABI(value string) error {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "sysv", "none":
		e.osabi, e.abiVersion = 0, 0
		return nil
	case "linux":
		e.osabi, e.abiVersion = 3, 0
		return nil
	}

	n, v, ok := strings.Cut(value, ",")
	osabi, err := strconv.ParseUint(strings.TrimSpace(n), 0, 8)
	if err != nil {
		return fmt.Errorf("invalid osabi value %q: %w", value, err)
	}
	abiVersion := uint64(0)
	if ok {
		abiVersion, err = strconv.ParseUint(strings.TrimSpace(v), 0, 8)
		if err != nil {
			return fmt.Errorf("invalid osabi version %q: %w", value, err)
		}
	}
	e.osabi, e.abiVersion = byte(osabi), byte(abiVersion)
	return nil
}

// OSABI returns the ELFOSABI_* byte to place in e_ident[EI_OSABI].
func (e *Emitter) OSABI() byte { return e.osabi }

// ABIVersion returns the byte to place in e_ident[EI_ABIVERSION].
func (e *Emitter) ABIVersion() byte { return e.abiVersion }

// OSABIDirective implements the `osabi` macro spec.md §6.4 exposes to
// assembler source, proxying straight to the `osabi N[,V]` directive.
func (e *Emitter) OSABIDirective(n, v int) error {
	return e.setOSABI(fmt.Sprintf("%d,%d", n, v))
}

// NASMCDeclMacro names the stub macro spec.md §6.4 lists alongside `__SECT__`
// and `osabi`; it has no expansion of its own, a front end's macro table
// just needs the name defined.
const NASMCDeclMacro = "__NASM_CDecl__"

// SectDirective implements the `__SECT__` macro spec.md §6.4 exposes: it
// expands to the directive text that would re-declare the current section,
// or "[section .text]" before any section has been selected.
func (e *Emitter) SectDirective(segment int) string {
	sec := e.SectionByIndex(segment)
	if sec == nil {
		return "[section .text]"
	}
	return fmt.Sprintf("[section %s]", sec.Name)
}

// SetInfo reports a section's name, flags and alignment back to the caller
// without side effects.
func (e *Emitter) SetInfo(segment int) (name string, flags SectionFlags, align uint32) {
	sec := e.SectionByIndex(segment)
	if sec == nil {
		return "", 0, 0
	}
	return sec.Name, sec.Flags, sec.Align
}

// ModuleFileName implements object.DebugView.
func (e *Emitter) ModuleFileName() string { return e.moduleFileName }

// SectionInfo implements object.DebugView.
func (e *Emitter) SectionInfo() []SectionInfo {
	infos := make([]SectionInfo, len(e.sections))
	for i, sec := range e.sections {
		infos[i] = SectionInfo{
			Index: sec.Index,
			Name:  sec.Name,
			Len:   sec.Len(),
			Exec:  sec.Flags&FlagExecinstr != 0,
		}
	}
	return infos
}

// globalSlotFor returns sym's dense global slot number, assigning one on
// first call. DefLabel calls it for every global as it is defined, so slots
// follow definition order; they are resolved to symtab indices exactly
// once, at serialization time, via RelocTarget{Kind: RelocGlobal}.
func (e *Emitter) globalSlotFor(sym *Symbol) int {
	if sym.GlobalSlot >= 0 {
		return sym.GlobalSlot
	}
	slot := e.nextGlobalSlot
	e.nextGlobalSlot++
	sym.GlobalSlot = slot
	e.slotToSymbol[slot] = sym
	return slot
}

// Symbols returns the emitter's defined/referenced symbol list, in
// definition order, for the writer's symtab assembly.
func (e *Emitter) Symbols() []*Symbol { return e.symbols }

// Sections returns the emitter's section list, in registry order.
func (e *Emitter) Sections() []*Section { return e.sections }

// GlobalSlotCount returns the number of distinct global slots assigned.
func (e *Emitter) GlobalSlotCount() int { return e.nextGlobalSlot }

// SymbolForGlobalSlot returns the symbol occupying a given global slot.
func (e *Emitter) SymbolForGlobalSlot(slot int) *Symbol { return e.slotToSymbol[slot] }

// Cleanup implements spec.md §6.1's end-of-assembly contract: it runs the
// debug back end's Generate pass (if configured) and returns its generated
// sections for the elf writer; the section registry itself is left
// unchanged. It returns an error only
// if the debug back end itself fails; per-symbol/per-relocation problems
// are reported through Reporter and do not abort Cleanup.
func (e *Emitter) Cleanup() ([]GeneratedSection, error) {
	if len(e.pendingSizes) > 0 {
		for name := range e.pendingSizes {
			e.reporter.Report(SevNonFatal, WarnNone, "symbol %q never received its forward-declared size", name)
		}
	}
	if e.debug == nil {
		return nil, nil
	}
	return e.debug.Generate(e)
}

// evalConst evaluates a size/alignment expression as used by COMMON and
// forward-size GLOBAL directives. The assembler front end that drives an
// Emitter is expected to have already reduced arithmetic; evalConst here
// only recognizes plain integer literals (decimal or 0x-prefixed hex) and
// a single `name` reference to an already-defined absolute (SegAbs)
// symbol's Value, reporting relocatable=true for any reference to a symbol
// that is not yet absolute. An unresolvable plain identifier is reported
// via a non-nil error so callers can treat it as a forward reference.
func (e *Emitter) evalConst(expr string) (value int64, relocatable bool, err error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, false, nil
	}
	if n, perr := strconv.ParseInt(expr, 0, 64); perr == nil {
		return n, false, nil
	}
	for _, sym := range e.symbols {
		if sym.Name != expr {
			continue
		}
		if sym.Segment != SegAbs {
			return 0, true, nil
		}
		return int64(sym.Value), false, nil
	}
	return 0, false, fmt.Errorf("undefined symbol %q in constant expression", expr)
}
