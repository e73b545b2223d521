package object

import (
	"encoding/binary"
	"fmt"

	"github.com/arc-language/elfgen/internal/elfconst"
)

// Out implements spec.md §4.3's `out` contract: it appends bytes/zeros to
// the section named by segto and, for OutAddress/OutRel2Adr/OutRel4Adr,
// records a relocation against target (a real section index, or a segment
// AllocExternSegment handed out) resolved through wrt.
func (e *Emitter) Out(segto int, kind OutKind, data []byte, size uint32, target int, wrt string) error {
	if segto == NoSeg {
		if kind != OutReserve {
			e.reporter.Report(SevNonFatal, WarnNone, "attempt to assemble code in [ABSOLUTE] space")
		}
		return nil
	}

	sec := e.SectionByIndex(segto)
	if sec == nil {
		return &PanicError{Message: fmt.Sprintf("strange segment conditions in ELF driver: out() called with unknown destination segment %d", segto)}
	}

	if sec.Type == SectionNobits && kind != OutReserve {
		e.reporter.Report(SevWarning, WarnNone, "attempt to initialize memory in BSS section %q: ignored", sec.Name)
		switch kind {
		case OutRel2Adr:
			size = 2
		case OutRel4Adr:
			size = 4
		}
		sec.length += size
		return nil
	}

	switch kind {
	case OutReserve:
		return e.outReserve(sec, size)
	case OutRawData:
		if target != NoSeg {
			return &PanicError{Message: "out() called with OUT_RAWDATA and other than NoSeg"}
		}
		return e.outRawData(sec, data)
	case OutAddress:
		return e.outAddress(sec, data, size, target, wrt)
	case OutRel2Adr:
		return e.outRelAdr(sec, segto, data, 2, target, wrt)
	case OutRel4Adr:
		return e.outRelAdr(sec, segto, data, 4, target, wrt)
	default:
		return &PanicError{Message: fmt.Sprintf("out() called with unrecognized kind %d", kind)}
	}
}

func (e *Emitter) outReserve(sec *Section, size uint32) error {
	if sec.Type == SectionProgbits {
		e.reporter.Report(SevWarning, WarnNone, "uninitialized space declared in non-BSS section %q: zeroing", sec.Name)
		sec.Body.WriteZeros(int(size))
		e.notifyEmit(sec, size)
		return nil
	}
	sec.length += size
	return nil
}

func (e *Emitter) outRawData(sec *Section, data []byte) error {
	if _, err := sec.Body.Write(data); err != nil {
		return err
	}
	e.notifyEmit(sec, uint32(len(data)))
	return nil
}

// outAddress implements OUT_ADDRESS: a size-2 or size-4 address slot whose
// relocation discipline (when target != NoSeg) is picked by wrt per spec.md
// §4.3's WRT selector table.
func (e *Emitter) outAddress(sec *Section, data []byte, size uint32, target int, wrt string) error {
	addr := decodeAddend(data)
	gnu16 := false

	if target != NoSeg {
		if e.isSegmentBaseReference(target) {
			e.reporter.Report(SevNonFatal, WarnNone, "ELF format does not support segment base references")
		} else {
			switch wrt {
			case "":
				if size == 2 {
					gnu16 = true
					if err := e.addReloc(sec, target, elfconst.R38616); err != nil {
						return err
					}
				} else if err := e.addReloc(sec, target, elfconst.R38632); err != nil {
					return err
				}
			case "..gotpc":
				// The caller supplies the GOT offset relative to $$; ELF
				// wants it relative to $, so fold in the slot's own offset.
				addr += int64(sec.Body.Len())
				if err := e.addReloc(sec, target, elfconst.R386GOTPC); err != nil {
					return err
				}
			case "..gotoff":
				if err := e.addReloc(sec, target, elfconst.R386GOTOFF); err != nil {
					return err
				}
			case "..got":
				adjusted, err := e.addGsymReloc(sec, target, addr, elfconst.R386GOT32, true)
				if err != nil {
					return err
				}
				addr = adjusted
			case "..sym":
				typ := uint32(elfconst.R38632)
				if size == 2 {
					gnu16 = true
					typ = elfconst.R38616
				}
				adjusted, err := e.addGsymReloc(sec, target, addr, typ, false)
				if err != nil {
					return err
				}
				addr = adjusted
			case "..plt":
				e.reporter.Report(SevNonFatal, WarnNone, "ELF format cannot produce non-PC-relative PLT references")
			default:
				e.reporter.Report(SevNonFatal, WarnNone, "ELF format does not support this use of WRT")
				target = NoSeg // try to continue, matching the reference driver
			}
		}
	}

	var out []byte
	if gnu16 {
		if e.reporter.WarningsEnabled(WarnGNUElf) {
			e.reporter.Report(SevWarning, WarnGNUElf, "16-bit relocations in ELF is a GNU extension")
		}
		out = encodeAddend(addr, 2)
	} else {
		if size != 4 && target != NoSeg {
			e.reporter.Report(SevNonFatal, WarnNone, "Unsupported non-32-bit ELF relocation")
		}
		out = encodeAddend(addr, 4)[:size]
	}
	if _, err := sec.Body.Write(out); err != nil {
		return err
	}
	e.notifyEmit(sec, uint32(len(out)))
	return nil
}

// outRelAdr implements OUT_REL2ADR/OUT_REL4ADR: a size-byte PC-relative slot
// whose written addend is `*data - size`, per spec.md §4.3.
func (e *Emitter) outRelAdr(sec *Section, segto int, data []byte, size uint32, target int, wrt string) error {
	if target == segto {
		return &PanicError{Message: fmt.Sprintf("intra-segment OUT_REL%dADR", size)}
	}

	if target != NoSeg {
		if e.isSegmentBaseReference(target) {
			e.reporter.Report(SevNonFatal, WarnNone, "ELF format does not support segment base references")
		} else if size == 2 {
			if wrt == "" {
				if e.reporter.WarningsEnabled(WarnGNUElf) {
					e.reporter.Report(SevWarning, WarnGNUElf, "16-bit relocations in ELF is a GNU extension")
				}
				if err := e.addReloc(sec, target, elfconst.R386PC16); err != nil {
					return err
				}
			} else {
				e.reporter.Report(SevNonFatal, WarnNone, "Unsupported non-32-bit ELF relocation")
			}
		} else {
			switch wrt {
			case "":
				if err := e.addReloc(sec, target, elfconst.R386PC32); err != nil {
					return err
				}
			case "..plt":
				if err := e.addReloc(sec, target, elfconst.R386PLT32); err != nil {
					return err
				}
			case "..gotpc", "..gotoff", "..got":
				e.reporter.Report(SevNonFatal, WarnNone, "ELF format cannot produce PC-relative GOT references")
			default:
				e.reporter.Report(SevNonFatal, WarnNone, "ELF format does not support this use of WRT")
			}
		}
	}

	addr := decodeAddend(data) - int64(size)
	out := encodeAddend(addr, size)
	if _, err := sec.Body.Write(out); err != nil {
		return err
	}
	e.notifyEmit(sec, uint32(len(out)))
	return nil
}

// isSegmentBaseReference reports whether target is an odd id in the
// extern-segment range: AllocExternSegment only ever hands out even ids, so
// an odd one there can only arise from a caller deliberately constructing
// the unsupported "segment base" variant (NASM's SEG operator has no ELF
// equivalent — spec.md §7's "segment base references" diagnostic).
func (e *Emitter) isSegmentBaseReference(target int) bool {
	return target <= externSegmentBase && target%2 != 0
}

// addReloc resolves target to a RelocTarget and appends a plain relocation
// at the section's current write position.
func (e *Emitter) addReloc(sec *Section, target int, relType uint32) error {
	switch target {
	case SegGotPC, SegGotOff, SegGot, SegPlt, SegSym:
		return &PanicError{Message: "WRT pseudo-segment used as a relocation target; it belongs in the wrt argument, not the target segment"}
	case SegUndef, SegCommon, SegAbs:
		return &PanicError{Message: "undefined/common/absolute sentinel used directly as a relocation target; allocate a segment with AllocExternSegment and deflabel it first"}
	}

	sec.Relocs = append(sec.Relocs, &Relocation{
		Offset: uint32(sec.Body.Len()),
		Target: e.resolveRelocTarget(target),
		Type:   relType,
	})
	return nil
}

// resolveRelocTarget maps a segment id to the tagged variant a Relocation
// carries until serialization (design notes §9's GLOBAL_TEMP_BASE
// replacement): a known section resolves directly; anything else is looked
// up in the extern/common slot map (spec.md §2's RAA).
func (e *Emitter) resolveRelocTarget(target int) RelocTarget {
	if sec := e.SectionByIndex(target); sec != nil {
		return RelocTarget{Kind: RelocSection, SectionIndex: target}
	}
	return RelocTarget{Kind: RelocGlobal, GlobalSlot: e.externSlotBySegment.Get(target)}
}

// addGsymReloc implements spec.md §4.3's symbol-exact ("..got") and
// nearest-below ("..sym") searches. If target names one of the emitter's own
// sections, it searches that section's global-symbol list; otherwise it's an
// external reference, handled the same way the reference driver's fallback
// does. When the nearest-below search finds no global, it falls back to a
// plain section-relative relocation. Returns the adjusted addend (offset -
// sym.Value on a symbol hit, offset unchanged for an external reference or
// the section-relative fallback).
func (e *Emitter) addGsymReloc(sec *Section, target int, offset int64, relType uint32, exact bool) (int64, error) {
	s := e.SectionByIndex(target)
	if s == nil {
		if exact && offset != 0 {
			e.reporter.Report(SevNonFatal, WarnNone, "unable to find a suitable global symbol for this reference")
			return offset, nil
		}
		if err := e.addReloc(sec, target, relType); err != nil {
			return 0, err
		}
		return offset, nil
	}

	var sym *Symbol
	if exact {
		for _, cand := range s.Globals {
			if int64(cand.Value) == offset {
				sym = cand
				break
			}
		}
	} else {
		for _, cand := range s.Globals {
			if int64(cand.Value) <= offset && (sym == nil || cand.Value > sym.Value) {
				sym = cand
			}
		}
	}
	if sym == nil {
		if exact {
			e.reporter.Report(SevNonFatal, WarnNone, "unable to find a suitable global symbol for this reference")
			return 0, nil
		}
		if err := e.addReloc(sec, target, relType); err != nil {
			return 0, err
		}
		return offset, nil
	}

	slot := e.globalSlotFor(sym)
	sec.Relocs = append(sec.Relocs, &Relocation{
		Offset: uint32(sec.Body.Len()),
		Target: RelocTarget{Kind: RelocGlobal, GlobalSlot: slot},
		Type:   relType,
	})
	return offset - int64(sym.Value), nil
}

// decodeAddend reads the pre-existing addend out() was handed in data,
// matching whatever width the caller actually filled in.
func decodeAddend(data []byte) int64 {
	switch {
	case len(data) >= 4:
		return int64(int32(binary.LittleEndian.Uint32(data[:4])))
	case len(data) >= 2:
		return int64(int16(binary.LittleEndian.Uint16(data[:2])))
	case len(data) == 1:
		return int64(int8(data[0]))
	default:
		return 0
	}
}

func encodeAddend(addr int64, size uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(addr))
	if size > 4 {
		size = 4
	}
	return buf[:size]
}

func (e *Emitter) notifyEmit(sec *Section, size uint32) {
	if e.debug == nil || size == 0 || sec.Flags&FlagExecinstr == 0 {
		return
	}
	e.debug.NotifyEmit(sec.Index, sec.Name, uint32(sec.Body.Len())-size)
}
