package raa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultZero(t *testing.T) {
	r := New()
	require.Equal(t, 0, r.Get(42))
	require.False(t, r.Has(42))
}

func TestSetGet(t *testing.T) {
	r := New()
	r.Set(3, 17)
	require.Equal(t, 17, r.Get(3))
	require.True(t, r.Has(3))
	require.Equal(t, 0, r.Get(4))
}

func TestZeroValuedDiffersFromUnset(t *testing.T) {
	r := New()
	r.Set(5, 0)
	require.True(t, r.Has(5))
	require.False(t, r.Has(6))
}
