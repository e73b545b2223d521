package saa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndLen(t *testing.T) {
	s := New()
	s.WriteByte(0xC3)
	s.WriteZeros(3)
	require.Equal(t, 4, s.Len())
	require.Equal(t, []byte{0xC3, 0, 0, 0}, s.Bytes())
}

func TestWriteUint32LE(t *testing.T) {
	s := New()
	s.WriteUint32LE(0x01020304)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, s.Bytes())
}

func TestPatchUint32LE(t *testing.T) {
	s := New()
	s.WriteUint32LE(0)
	s.WriteByte(0xFF)
	s.PatchUint32LE(0, 7)
	require.Equal(t, []byte{7, 0, 0, 0, 0xFF}, s.Bytes())
}

func TestRewindIndependentOfWrite(t *testing.T) {
	s := New()
	s.WriteCString("ab")
	buf := make([]byte, 1)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('a'), buf[0])

	s.WriteByte('c')
	require.Equal(t, 4, s.Len())

	s.Rewind()
	all := make([]byte, 4)
	n, err = s.Read(all)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{'a', 'b', 0, 'c'}, all)
}

func TestReset(t *testing.T) {
	s := New()
	s.WriteByte(1)
	s.Reset()
	require.Equal(t, 0, s.Len())
}
