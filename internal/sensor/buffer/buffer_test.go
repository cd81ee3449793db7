package buffer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, MaxCapacity + 1} {
		b, err := New(capacity)
		assert.Nil(t, b)
		assert.True(t, errors.Is(err, ErrAllocation), "capacity %d", capacity)
	}
}

func TestWriteAccumulates(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)

	require.NoError(t, b.Write([]byte{1, 2, 3}))
	require.NoError(t, b.Write([]byte{4, 5}))

	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 8, b.Cap())
	assert.Equal(t, 3, b.Free())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, b.Bytes())
}

func TestWriteRejectsOverflowWithoutPartialWrite(t *testing.T) {
	b, err := New(4)
	require.NoError(t, err)
	require.NoError(t, b.Write([]byte{1, 2, 3}))

	err = b.Write([]byte{9, 9})
	assert.True(t, errors.Is(err, ErrOverflow))
	assert.Equal(t, 3, b.Len(), "length must not advance on a rejected write")
	assert.Equal(t, []byte{1, 2, 3, 0}, b.Data())

	// A later chunk that fits is still accepted.
	require.NoError(t, b.Write([]byte{4}))
	assert.Equal(t, 4, b.Len())
	assert.False(t, b.Fits(1))
}

func TestLengthNeverExceedsCapacity(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		_ = b.Write(make([]byte, i%4+1))
		require.LessOrEqual(t, b.Len(), b.Cap())
	}
	assert.Equal(t, 10, b.Len())
}

func TestResetKeepsCapacity(t *testing.T) {
	b, err := New(6)
	require.NoError(t, err)
	require.NoError(t, b.Write([]byte{1, 2, 3, 4, 5, 6}))

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 6, b.Cap())
	assert.Empty(t, b.Bytes())
	require.NoError(t, b.Write([]byte{7}))
	assert.Equal(t, []byte{7}, b.Bytes())
}

func TestSetSize(t *testing.T) {
	b, err := New(12)
	require.NoError(t, err)

	copy(b.Data(), []byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, b.SetSize(6))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.Bytes())

	require.NoError(t, b.SetSize(0))
	assert.Equal(t, 0, b.Len())

	assert.True(t, errors.Is(b.SetSize(13), ErrSizeOutOfRange))
	assert.True(t, errors.Is(b.SetSize(-1), ErrSizeOutOfRange))
	assert.Equal(t, 0, b.Len())
}
