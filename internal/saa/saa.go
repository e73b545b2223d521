// Package saa implements a growable, append-only byte buffer — the "SAA"
// (Syntactic Array of Arrays) abstraction NASM-style assembler back ends use
// for section bodies, symbol/relocation tables, and debug-info buffers.
//
// Unlike bytes.Buffer, an SAA supports Rewind+Read for a second read-only
// pass over already-written data without losing the write cursor, and
// PatchUint32LE/PatchUint16LE, which the DWARF/STABS back ends use to fill
// in a placeholder after further bytes have been appended.
package saa

import "encoding/binary"

// SAA is a growable byte buffer with an independent read cursor.
type SAA struct {
	data  []byte
	rdpos int
}

// New returns an empty SAA.
func New() *SAA {
	return &SAA{}
}

// Len returns the number of bytes written so far.
func (s *SAA) Len() int {
	return len(s.data)
}

// Bytes returns the underlying buffer. The caller must not mutate it.
func (s *SAA) Bytes() []byte {
	return s.data
}

// WriteByte appends a single byte.
func (s *SAA) WriteByte(b byte) {
	s.data = append(s.data, b)
}

// Write appends raw bytes, implementing io.Writer.
func (s *SAA) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}

// WriteZeros appends n zero bytes.
func (s *SAA) WriteZeros(n int) {
	for i := 0; i < n; i++ {
		s.data = append(s.data, 0)
	}
}

// WriteUint16LE appends a little-endian 16-bit value.
func (s *SAA) WriteUint16LE(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	s.data = append(s.data, b[:]...)
}

// WriteUint32LE appends a little-endian 32-bit value.
func (s *SAA) WriteUint32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.data = append(s.data, b[:]...)
}

// WriteInt32LE appends a little-endian signed 32-bit value.
func (s *SAA) WriteInt32LE(v int32) {
	s.WriteUint32LE(uint32(v))
}

// WriteCString appends a NUL-terminated string.
func (s *SAA) WriteCString(str string) {
	s.data = append(s.data, []byte(str)...)
	s.data = append(s.data, 0)
}

// PatchUint32LE overwrites a previously written 32-bit slot in place — used
// to backpatch lengths/counts discovered only after later bytes are written.
func (s *SAA) PatchUint32LE(offset int, v uint32) {
	binary.LittleEndian.PutUint32(s.data[offset:offset+4], v)
}

// PatchUint16LE overwrites a previously written 16-bit slot in place.
func (s *SAA) PatchUint16LE(offset int, v uint16) {
	binary.LittleEndian.PutUint16(s.data[offset:offset+2], v)
}

// Rewind resets the read cursor to the start without discarding data.
func (s *SAA) Rewind() {
	s.rdpos = 0
}

// Read implements io.Reader over the written bytes, independent of Write.
func (s *SAA) Read(p []byte) (int, error) {
	if s.rdpos >= len(s.data) {
		return 0, nil
	}
	n := copy(p, s.data[s.rdpos:])
	s.rdpos += n
	return n, nil
}

// Reset discards all written data and resets the read cursor.
func (s *SAA) Reset() {
	s.data = s.data[:0]
	s.rdpos = 0
}
