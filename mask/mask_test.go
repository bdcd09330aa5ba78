package mask

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	t.Run("default layout", func(t *testing.T) {
		assert.Equal(t, uint(24), DefaultLayout.BitsPerGroup())
		assert.Equal(t, 8, DefaultLayout.Groups())
		assert.Equal(t, Code(0x00FFFFFF), DefaultLayout.EventMask())
	})

	t.Run("rejects layouts that would wrap", func(t *testing.T) {
		cases := []struct {
			bits   uint
			groups int
		}{
			{0, 1},
			{32, 1},
			{24, 0},
			{24, 33},
			{31, 3},
			{28, 17},
		}
		for _, tc := range cases {
			_, err := NewLayout(tc.bits, tc.groups)
			require.Error(t, err, "bits=%d groups=%d", tc.bits, tc.groups)
			assert.True(t, errors.Is(err, ErrInvalidLayout))
		}
	})

	t.Run("accepts the widest fitting layouts", func(t *testing.T) {
		_, err := NewLayout(31, 2)
		require.NoError(t, err)
		_, err = NewLayout(27, 32)
		require.NoError(t, err)
	})

	t.Run("must layout panics", func(t *testing.T) {
		assert.Panics(t, func() { MustLayout(0, 1) })
	})
}

func TestSplitAndMake(t *testing.T) {
	l := MustLayout(8, 4)

	code := l.Make(3, 0x81)
	assert.Equal(t, Code(0x381), code)

	group, bits := l.Split(code)
	assert.Equal(t, 3, group)
	assert.Equal(t, Code(0x81), bits)

	// Bits beyond the event mask never leak into the group.
	assert.Equal(t, Code(0x1FF), l.Make(1, 0xFFF))

	assert.True(t, l.InRange(3))
	assert.False(t, l.InRange(4))
	assert.False(t, l.InRange(-1))
	assert.False(t, DefaultLayout.InRange(DefaultLayout.Group(All)))
}

func TestCovered(t *testing.T) {
	assert.True(t, Covered(0x0F, 0x03))
	assert.True(t, Covered(0x0F, 0x0F))
	assert.False(t, Covered(0x0F, 0x13))
	assert.False(t, Covered(0, 0))
	assert.True(t, Covered(All, All))
}
