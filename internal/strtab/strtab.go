// Package strtab builds ELF string tables (.shstrtab, .strtab) by simple
// append. Per spec.md §9, no deduplication is performed: two Add calls with
// the same string get two distinct offsets, for byte-for-byte compatibility
// with the reference assembler's output.
package strtab

// Table is an append-only ELF string table. Offset 0 is always a single NUL
// byte, as ELF requires (a zero st_name/sh_name means "no name").
type Table struct {
	data []byte
}

// New returns a string table containing only the initial NUL byte.
func New() *Table {
	return &Table{data: []byte{0}}
}

// Add appends s (NUL-terminated) and returns its byte offset. The empty
// string is still interned as a fresh entry — callers that want "no name"
// should use offset 0 directly instead of calling Add(""").
func (t *Table) Add(s string) uint32 {
	off := uint32(len(t.data))
	t.data = append(t.data, []byte(s)...)
	t.data = append(t.data, 0)
	return off
}

// Bytes returns the serialized table contents.
func (t *Table) Bytes() []byte {
	return t.data
}

// Len returns the current size of the table in bytes.
func (t *Table) Len() int {
	return len(t.data)
}
