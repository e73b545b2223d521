package object

import (
	"testing"

	"github.com/arc-language/elfgen/internal/elfconst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutReserveExtendsNobitsLength(t *testing.T) {
	e := newTestEmitter()
	bssIdx, _ := e.SectionNames(".bss", 1)
	require.NoError(t, e.Out(bssIdx, OutReserve, nil, 128, NoSeg, ""))
	sec := e.SectionByIndex(bssIdx)
	assert.EqualValues(t, 128, sec.Len())
	assert.Equal(t, 0, sec.Body.Len())
}

func TestOutReserveIntoProgbitsWarnsAndZeroes(t *testing.T) {
	var classes []WarnClass
	rep := &recordingReporter{onReport: func(_ Severity, class WarnClass, _ string, _ ...any) {
		classes = append(classes, class)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")
	textIdx, _ := e.SectionNames(".text", 1)

	require.NoError(t, e.Out(textIdx, OutReserve, nil, 4, NoSeg, ""))
	sec := e.SectionByIndex(textIdx)
	assert.Equal(t, []byte{0, 0, 0, 0}, sec.Body.Bytes())
	assert.Contains(t, classes, WarnNone)
}

func TestOutRawDataAppendsBytes(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	require.NoError(t, e.Out(textIdx, OutRawData, []byte{0x90, 0x90}, 2, NoSeg, ""))
	sec := e.SectionByIndex(textIdx)
	assert.Equal(t, []byte{0x90, 0x90}, sec.Body.Bytes())
}

func TestOutRawDataIntoNobitsWarnsAndIgnores(t *testing.T) {
	var classes []WarnClass
	rep := &recordingReporter{onReport: func(_ Severity, class WarnClass, _ string, _ ...any) {
		classes = append(classes, class)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")
	bssIdx, _ := e.SectionNames(".bss", 1)

	require.NoError(t, e.Out(bssIdx, OutRawData, []byte{1}, 1, NoSeg, ""))
	sec := e.SectionByIndex(bssIdx)
	// The data is dropped, but the section still advances past the slot.
	assert.EqualValues(t, 1, sec.Len())
	assert.Contains(t, classes, WarnNone)
}

func TestOutAssembleInAbsoluteSpaceReportsNonFatal(t *testing.T) {
	var severities []Severity
	rep := &recordingReporter{onReport: func(sev Severity, _ WarnClass, _ string, _ ...any) {
		severities = append(severities, sev)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")

	require.NoError(t, e.Out(NoSeg, OutRawData, []byte{1}, 1, NoSeg, ""))
	require.Contains(t, severities, SevNonFatal)
}

func TestOutAddressRecordsSectionRelocation(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)

	placeholder := make([]byte, 4)
	require.NoError(t, e.Out(textIdx, OutAddress, placeholder, 4, dataIdx, ""))

	sec := e.SectionByIndex(textIdx)
	require.Len(t, sec.Relocs, 1)
	rel := sec.Relocs[0]
	assert.EqualValues(t, elfconst.R38632, rel.Type)
	assert.Equal(t, RelocSection, rel.Target.Kind)
	assert.Equal(t, dataIdx, rel.Target.SectionIndex)
}

func TestOutRel4AdrDefaultsToPC32(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)

	placeholder := make([]byte, 4)
	require.NoError(t, e.Out(textIdx, OutRel4Adr, placeholder, 4, dataIdx, ""))

	sec := e.SectionByIndex(textIdx)
	require.Len(t, sec.Relocs, 1)
	assert.EqualValues(t, elfconst.R386PC32, sec.Relocs[0].Type)
}

func TestOutRel4AdrPLTQualifier(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	fooSeg := e.AllocExternSegment()
	require.NoError(t, e.DefLabel("foo", fooSeg, 0, DefGlobal, "function"))

	placeholder := make([]byte, 4)
	require.NoError(t, e.Out(textIdx, OutRel4Adr, placeholder, 4, fooSeg, "..plt"))

	sec := e.SectionByIndex(textIdx)
	require.Len(t, sec.Relocs, 1)
	assert.EqualValues(t, elfconst.R386PLT32, sec.Relocs[0].Type)
}

func TestOutRel4AdrIntraSegmentPanics(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)

	placeholder := make([]byte, 4)
	err := e.Out(textIdx, OutRel4Adr, placeholder, 4, textIdx, "")
	require.Error(t, err)
	var perr *PanicError
	assert.ErrorAs(t, err, &perr)
}

func TestOutRel4AdrGOTQualifierIsUnsupported(t *testing.T) {
	var severities []Severity
	rep := &recordingReporter{onReport: func(sev Severity, _ WarnClass, _ string, _ ...any) {
		severities = append(severities, sev)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)

	placeholder := make([]byte, 4)
	require.NoError(t, e.Out(textIdx, OutRel4Adr, placeholder, 4, dataIdx, "..gotpc"))
	require.Contains(t, severities, SevNonFatal)

	sec := e.SectionByIndex(textIdx)
	assert.Empty(t, sec.Relocs)
}

func TestOutRel2AdrReportsGNUElfWarning(t *testing.T) {
	var reported []WarnClass
	rep := &recordingReporter{onReport: func(sev Severity, class WarnClass, _ string, _ ...any) {
		reported = append(reported, class)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)

	placeholder := make([]byte, 2)
	require.NoError(t, e.Out(textIdx, OutRel2Adr, placeholder, 2, NoSeg, ""))
	// NoSeg target means no relocation is recorded, only raw bytes; use a
	// real target to trigger the WRT table and its GNU warning.
	require.NoError(t, e.Out(textIdx, OutRel2Adr, placeholder, 2, dataIdx, ""))

	require.Contains(t, reported, WarnGNUElf)
}

func TestNoSegSkipsRelocationEntirely(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	require.NoError(t, e.Out(textIdx, OutAddress, make([]byte, 4), 4, NoSeg, ""))
	sec := e.SectionByIndex(textIdx)
	assert.Empty(t, sec.Relocs)
}

func TestOutAddressGotQualifierFindsExactGlobal(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)
	require.NoError(t, e.DefLabel("g", dataIdx, 16, DefGlobal, "data"))

	placeholder := []byte{16, 0, 0, 0} // addend == the symbol's own value
	require.NoError(t, e.Out(textIdx, OutAddress, placeholder, 4, dataIdx, "..got"))

	sec := e.SectionByIndex(textIdx)
	require.Len(t, sec.Relocs, 1)
	rel := sec.Relocs[0]
	assert.EqualValues(t, elfconst.R386GOT32, rel.Type)
	assert.Equal(t, RelocGlobal, rel.Target.Kind)
}

func TestOutAddressGotQualifierReportsMissingSymbol(t *testing.T) {
	var severities []Severity
	rep := &recordingReporter{onReport: func(sev Severity, _ WarnClass, _ string, _ ...any) {
		severities = append(severities, sev)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)
	require.NoError(t, e.DefLabel("g", dataIdx, 16, DefGlobal, "data"))

	placeholder := []byte{4, 0, 0, 0} // no global defined at offset 4
	require.NoError(t, e.Out(textIdx, OutAddress, placeholder, 4, dataIdx, "..got"))
	require.Contains(t, severities, SevNonFatal)
}

func TestOutAddressSymQualifierFindsNearestBelow(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	dataIdx, _ := e.SectionNames(".data", 1)
	require.NoError(t, e.DefLabel("a", dataIdx, 0, DefGlobal, "data"))
	require.NoError(t, e.DefLabel("b", dataIdx, 16, DefGlobal, "data"))

	placeholder := []byte{20, 0, 0, 0}
	require.NoError(t, e.Out(textIdx, OutAddress, placeholder, 4, dataIdx, "..sym"))

	sec := e.SectionByIndex(textIdx)
	require.Len(t, sec.Relocs, 1)
	assert.EqualValues(t, elfconst.R38632, sec.Relocs[0].Type)
	assert.Equal(t, RelocGlobal, sec.Relocs[0].Target.Kind)

	bSym := e.Symbols()[1]
	assert.Equal(t, bSym.GlobalSlot, sec.Relocs[0].Target.GlobalSlot)
}

func TestOutAddressExternalTargetSharesGlobalSlot(t *testing.T) {
	e := newTestEmitter()
	textIdx, _ := e.SectionNames(".text", 1)
	extfnSeg := e.AllocExternSegment()
	require.NoError(t, e.DefLabel("extfn", extfnSeg, 0, DefGlobal, "function"))

	require.NoError(t, e.Out(textIdx, OutAddress, make([]byte, 4), 4, extfnSeg, ""))
	require.NoError(t, e.Out(textIdx, OutAddress, make([]byte, 4), 4, extfnSeg, ""))

	sec := e.SectionByIndex(textIdx)
	require.Len(t, sec.Relocs, 2)
	assert.Equal(t, sec.Relocs[0].Target.GlobalSlot, sec.Relocs[1].Target.GlobalSlot)
	assert.Equal(t, 1, e.GlobalSlotCount())
}

func TestOutAddressSegmentBaseReferenceIsRejected(t *testing.T) {
	var severities []Severity
	rep := &recordingReporter{onReport: func(sev Severity, _ WarnClass, _ string, _ ...any) {
		severities = append(severities, sev)
	}}
	e := NewEmitter(rep, nil)
	e.Init("t.s")
	textIdx, _ := e.SectionNames(".text", 1)
	extSeg := e.AllocExternSegment()

	require.NoError(t, e.Out(textIdx, OutAddress, make([]byte, 4), 4, extSeg-1, ""))
	require.Contains(t, severities, SevNonFatal)

	sec := e.SectionByIndex(textIdx)
	assert.Empty(t, sec.Relocs)
}

type recordingReporter struct {
	onReport func(Severity, WarnClass, string, ...any)
}

func (r *recordingReporter) Report(sev Severity, class WarnClass, format string, args ...any) {
	if r.onReport != nil {
		r.onReport(sev, class, format, args...)
	}
}

func (r *recordingReporter) WarningsEnabled(WarnClass) bool { return true }
