package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendUleb128SingleByte(t *testing.T) {
	assert.Equal(t, []byte{0x00}, appendUleb128(nil, 0))
	assert.Equal(t, []byte{0x7f}, appendUleb128(nil, 127))
}

func TestAppendUleb128MultiByte(t *testing.T) {
	assert.Equal(t, []byte{0x80, 0x01}, appendUleb128(nil, 128))
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, appendUleb128(nil, 624485))
}

func TestAppendSleb128SmallAndMultiByte(t *testing.T) {
	assert.Equal(t, []byte{0x02}, appendSleb128(nil, 2))
	assert.Equal(t, []byte{0x9b, 0xf1, 0x59}, appendSleb128(nil, -624485))
}

func TestAppendSleb128Negative(t *testing.T) {
	assert.Equal(t, []byte{0x7e}, appendSleb128(nil, -2))
}
