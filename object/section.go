package object

import (
	"strconv"
	"strings"

	"github.com/arc-language/elfgen/internal/saa"
)

// reservedSectionNames are rejected by SectionNames per spec.md §3 invariant 5.
var reservedSectionNames = map[string]bool{
	".comment":  true,
	".shstrtab": true,
	".symtab":   true,
	".strtab":   true,
}

// SectionDefault describes the built-in attributes for a well-known section
// name (spec.md §4.1). These are the compiled-in fallback; config.LoadSectionDefaults
// can override them from sections.yaml before Init runs.
type SectionDefault struct {
	Type  SectionType
	Flags SectionFlags
	Align uint32
}

// DefaultSectionTable is the builtin table spec.md §4.1 specifies. It is
// exported so cmd/elfgen and config.LoadSectionDefaults can inspect or patch
// it before constructing an Emitter.
var DefaultSectionTable = map[string]SectionDefault{
	".text":   {SectionProgbits, FlagAlloc | FlagExecinstr, 16},
	".rodata": {SectionProgbits, FlagAlloc, 4},
	".data":   {SectionProgbits, FlagAlloc | FlagWrite, 4},
	".bss":    {SectionNobits, FlagAlloc | FlagWrite, 4},
}

var fallbackSectionDefault = SectionDefault{SectionProgbits, FlagAlloc, 1}

func defaultsFor(name string) SectionDefault {
	if d, ok := DefaultSectionTable[name]; ok {
		return d
	}
	return fallbackSectionDefault
}

// SectionNames implements the `section_names` contract of spec.md §4.1: it
// parses "NAME [attr]*" and returns the segment id for that section,
// creating it on first reference.
func (e *Emitter) SectionNames(spec string, pass int) (int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = ".text"
	}

	fields := strings.Fields(spec)
	name := fields[0]

	if reservedSectionNames[name] {
		e.reporter.Report(SevNonFatal, WarnNone, "attempt to redefine reserved section name %q", name)
		return NoSeg, nil
	}

	def := defaultsFor(name)
	typ, flags, align := def.Type, def.Flags, def.Align
	explicit := false

	for _, attr := range fields[1:] {
		lower := strings.ToLower(attr)
		switch {
		case strings.HasPrefix(lower, "align="):
			n, err := strconv.ParseUint(lower[len("align="):], 10, 32)
			if err != nil {
				e.reporter.Report(SevNonFatal, WarnNone, "invalid align value in %q", attr)
				continue
			}
			align = coerceAlignment(uint32(n), e.reporter)
			explicit = true
		case lower == "alloc":
			flags |= FlagAlloc
			explicit = true
		case lower == "noalloc":
			flags &^= FlagAlloc
			explicit = true
		case lower == "exec":
			flags |= FlagExecinstr
			explicit = true
		case lower == "noexec":
			flags &^= FlagExecinstr
			explicit = true
		case lower == "write":
			flags |= FlagWrite
			explicit = true
		case lower == "nowrite":
			flags &^= FlagWrite
			explicit = true
		case lower == "progbits":
			typ = SectionProgbits
			explicit = true
		case lower == "nobits":
			typ = SectionNobits
			explicit = true
		default:
			e.reporter.Report(SevNonFatal, WarnNone, "unrecognized section attribute %q", attr)
		}
	}

	if idx, ok := e.sectionByName[name]; ok {
		sec := e.sections[idx]
		if explicit && pass == 1 {
			if sec.Type != typ || sec.Flags != flags || sec.Align != align {
				e.reporter.Report(SevWarning, WarnNone, "section attributes for %q redeclared; ignoring mismatch", name)
			}
		}
		return idx, nil
	}

	idx := len(e.sections)
	sec := &Section{
		Name:  name,
		Index: idx,
		Type:  typ,
		Flags: flags,
		Align: align,
		Body:  saa.New(),
	}
	e.sections = append(e.sections, sec)
	e.sectionByName[name] = idx
	return idx, nil
}

// coerceAlignment enforces spec.md §3 invariant 6: non-power-of-two
// alignments are diagnosed and silently coerced to 1.
func coerceAlignment(n uint32, reporter Reporter) uint32 {
	if n == 0 || (n&(n-1)) != 0 {
		reporter.Report(SevNonFatal, WarnNone, "section alignment %d is not a power of two", n)
		return 1
	}
	return n
}

// SectionByIndex returns the section at registry index idx, or nil if out
// of range (used by relocation.go's section-relative searches).
func (e *Emitter) SectionByIndex(idx int) *Section {
	if idx < 0 || idx >= len(e.sections) {
		return nil
	}
	return e.sections[idx]
}
