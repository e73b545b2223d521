// Package elfconst collects the raw ELF32/i386 and DWARF numeric constants
// shared by the object model, the debug back ends, and the container writer.
// It has no dependencies so that all three can import it without creating a
// cycle.
package elfconst

// ELF identification / header constants (spec.md §6.2).
const (
	EIMag0      = 0x7f
	EIMag1      = 'E'
	EIMag2      = 'L'
	EIMag3      = 'F'
	ELFClass32  = 1
	ELFData2LSB = 1
	EVCurrent   = 1

	ETRel  = 1 // relocatable object file
	EM386  = 3 // Intel 80386

	EHdrSize  = 52 // sizeof Elf32_Ehdr
	ShdrSize  = 40 // sizeof Elf32_Shdr
	SymSize   = 16 // sizeof Elf32_Sym
	RelSize   = 8  // sizeof Elf32_Rel
	RelaSize  = 12 // sizeof Elf32_Rela
)

// Section types (sh_type).
const (
	SHTNull     = 0
	SHTProgbits = 1
	SHTSymtab   = 2
	SHTStrtab   = 3
	SHTRela     = 4
	SHTNobits   = 8
	SHTRel      = 9
)

// Section flags (sh_flags).
const (
	SHFWrite     = 0x1
	SHFAlloc     = 0x2
	SHFExecinstr = 0x4
)

// Special section-header indices.
const (
	SHNUndef  = 0
	SHNAbs    = 0xFFF1
	SHNCommon = 0xFFF2
)

// Symbol bindings (top nibble of st_info).
const (
	STBLocal  = 0
	STBGlobal = 1
)

// Symbol types (bottom nibble of st_info).
const (
	STTNotype  = 0
	STTObject  = 1
	STTFunc    = 2
	STTSection = 3
	STTFile    = 4
)

// Symbol visibility (st_other).
const (
	STVDefault   = 0
	STVInternal  = 1
	STVHidden    = 2
	STVProtected = 3
)

// i386 relocation types (spec.md §4.3 WRT table).
const (
	R386None   = 0
	R38632     = 1  // R_386_32
	R386PC32   = 2  // R_386_PC32
	R386GOT32  = 3  // R_386_GOT32
	R386PLT32  = 4  // R_386_PLT32
	R386GOTOFF = 9  // R_386_GOTOFF
	R386GOTPC  = 10 // R_386_GOTPC
	R38616     = 20 // R_386_16
	R386PC16   = 21 // R_386_PC16
)

// DWARF line-program opcode constants (spec.md §4.8).
const (
	DWLineBase   = -5
	DWLineRange  = 14
	DWOpcodeBase = 13

	DWLNSCopy             = 1
	DWLNSAdvancePC        = 2
	DWLNSAdvanceLine      = 3
	DWLNSSetFile          = 4
	DWLNSSetColumn        = 5
	DWLNSNegateStmt       = 6
	DWLNESetAddress       = 2
	DWLNEEndSequence      = 1
	DWTagCompileUnit      = 0x11
	DWTagSubprogram       = 0x2e
	DWAtLowPC             = 0x11
	DWAtHighPC            = 0x12
	DWAtStmtList          = 0x10
	DWAtName              = 0x03
	DWAtProducer          = 0x25
	DWAtLanguage          = 0x13
	DWAtFrameBase         = 0x40
	DWFormAddr            = 0x01
	DWFormData2           = 0x05
	DWFormData4           = 0x06
	DWFormString          = 0x08
	DWLangMipsAssembler   = 0x8001
)
