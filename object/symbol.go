package object

import (
	"fmt"
	"strings"

	"github.com/arc-language/elfgen/internal/elfconst"
)

// specialSegmentNames maps the `..name` pseudo-symbol spellings spec.md
// §4.2 recognizes to their WRT segment id.
var specialSegmentNames = map[string]int{
	"..gotpc":  SegGotPC,
	"..gotoff": SegGotOff,
	"..got":    SegGot,
	"..plt":    SegPlt,
	"..sym":    SegSym,
}

// DefLabel implements spec.md §4.2's `deflabel` contract.
func (e *Emitter) DefLabel(name string, segment int, offset uint64, mode DefLabelMode, special string) error {
	if strings.HasPrefix(name, "..") && !strings.HasPrefix(name, "..@") {
		if _, ok := specialSegmentNames[name]; !ok {
			e.reporter.Report(SevNonFatal, WarnNone, "unrecognized special symbol %q", name)
		}
		return nil
	}

	switch mode {
	case DefForwardSize:
		return e.resolveForwardSize(name, special)
	case DefCommon:
		return e.defineCommon(name, segment, offset, special)
	case DefGlobal:
		return e.defineSymbol(name, segment, offset, special, true)
	default:
		return e.defineSymbol(name, segment, offset, special, false)
	}
}

// resolveForwardSize implements the GLOBAL foo:function SIZE-EXPR fixup path
// of spec.md §4.2: scan the pending-sizes list for name, evaluate special as
// a non-relocatable constant, store it, and unlink the pending entry.
func (e *Emitter) resolveForwardSize(name, special string) error {
	sym, ok := e.pendingSizes[name]
	if !ok {
		e.reporter.Report(SevNonFatal, WarnNone, "forward size fixup for undeclared symbol %q", name)
		return nil
	}

	value, relocatable, err := e.evalConst(special)
	if err != nil {
		return fmt.Errorf("evaluating forward size expression for %q: %w", name, err)
	}
	if relocatable {
		e.reporter.Report(SevNonFatal, WarnNone, "cannot use relocatable expression as symbol size")
		return nil
	}

	sym.Size = uint64(value)
	delete(e.pendingSizes, name)
	return nil
}

// defineCommon implements the COMMON symbol mode of spec.md §4.2. segment is
// the per-declaration id the front end allocated for this common (e.g. via
// AllocExternSegment) — distinct from sym.Segment, which is always the fixed
// SegCommon classification; segment is only used as the key a relocation's
// target segment resolves through.
func (e *Emitter) defineCommon(name string, segment int, size uint64, special string) error {
	align := uint64(1)
	if strings.TrimSpace(special) != "" {
		value, relocatable, err := e.evalConst(special)
		if err != nil {
			return fmt.Errorf("evaluating common alignment for %q: %w", name, err)
		}
		if relocatable {
			e.reporter.Report(SevNonFatal, WarnNone, "cannot use relocatable expression as common alignment")
		} else {
			align = coerceAlignment64(uint64(value), e.reporter)
		}
	}

	sym := &Symbol{
		Name:       name,
		Segment:    SegCommon,
		Type:       0,
		Global:     true,
		Visibility: 0,
		Value:      align,
		Size:       size,
		GlobalSlot: -1,
	}
	e.symbols = append(e.symbols, sym)
	e.externSlotBySegment.Set(segment, e.globalSlotFor(sym))
	return nil
}

func coerceAlignment64(n uint64, reporter Reporter) uint64 {
	if n == 0 || (n&(n-1)) != 0 {
		reporter.Report(SevNonFatal, WarnNone, "section alignment %d is not a power of two", n)
		return 1
	}
	return n
}

// defineSymbol implements the LOCAL/GLOBAL modes of spec.md §4.2: parse
// `special` as "TYPE [VISIBILITY [SIZE]]", record a forward-size pending
// entry if SIZE is a forward reference, and (for globals that are defined,
// i.e. not UNDEF/COMMON/ABS) link into the owning section's global list.
func (e *Emitter) defineSymbol(name string, segment int, offset uint64, special string, global bool) error {
	sym := &Symbol{
		Name:       name,
		Segment:    segment,
		Type:       elfconst.STTNotype,
		Global:     global,
		Visibility: elfconst.STVDefault,
		Value:      offset,
		GlobalSlot: -1,
	}

	fields := strings.Fields(special)
	if len(fields) > 0 {
		switch strings.ToLower(fields[0]) {
		case "function":
			sym.Type = elfconst.STTFunc
		case "data", "object":
			sym.Type = elfconst.STTObject
		case "notype":
			sym.Type = elfconst.STTNotype
		default:
			e.reporter.Report(SevNonFatal, WarnNone, "unrecognized symbol type %q", fields[0])
		}
	}
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "default":
			sym.Visibility = elfconst.STVDefault
		case "internal":
			sym.Visibility = elfconst.STVInternal
		case "hidden":
			sym.Visibility = elfconst.STVHidden
		case "protected":
			sym.Visibility = elfconst.STVProtected
		default:
			e.reporter.Report(SevNonFatal, WarnNone, "unrecognized symbol visibility %q", fields[1])
		}
	}
	if len(fields) > 2 {
		sizeExpr := strings.Join(fields[2:], " ")
		value, relocatable, err := e.evalConst(sizeExpr)
		if err != nil {
			// Forward reference: the expression mentions a symbol not yet
			// defined. Park it in the pending-sizes list until the second
			// definition supplies it (spec.md §3 forward-size record).
			e.pendingSizes[name] = sym
		} else if relocatable {
			e.reporter.Report(SevNonFatal, WarnNone, "cannot use relocatable expression as symbol size")
		} else {
			sym.Size = uint64(value)
		}
	}

	e.symbols = append(e.symbols, sym)

	// Every global gets a dense slot the moment it's defined, in definition
	// order — spec.md §4.2's "globals are assigned a dense monotonic slot
	// number", which the writer's symtab layout relies on matching globals'
	// insertion order one-for-one (elf/writer.go's RelocGlobal resolution).
	if global {
		slot := e.globalSlotFor(sym)
		if sec := e.SectionByIndex(segment); sec != nil {
			sec.Globals = append(sec.Globals, sym)
		} else if segment != SegAbs {
			// Undefined or common: record segment id → slot so a later Out
			// call naming this segment as its relocation target can find it
			// without the section search (spec.md §4.2's sparse map).
			e.externSlotBySegment.Set(segment, slot)
		}
	}

	return nil
}
