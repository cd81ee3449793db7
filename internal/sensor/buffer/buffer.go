package buffer

import (
	"github.com/pkg/errors"
)

// MaxCapacity bounds a single allocation (a 4K RGB24 frame fits comfortably).
const MaxCapacity = 64 * 1024 * 1024

var (
	// ErrAllocation is returned when a buffer cannot be sized.
	ErrAllocation = errors.New("buffer allocation failed")
	// ErrOverflow is returned when a write would exceed the buffer capacity.
	ErrOverflow = errors.New("buffer overflow")
	// ErrSizeOutOfRange is returned when a committed size exceeds the capacity.
	ErrSizeOutOfRange = errors.New("size out of range")
)

// Buffer is a fixed-capacity byte accumulator. Its length never exceeds its
// capacity; writes that would do so are rejected whole.
type Buffer struct {
	data []byte
	size int
}

// New allocates a buffer with the given capacity.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, errors.Wrapf(ErrAllocation, "capacity %d", capacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Write appends p. Nothing is written if p does not fit.
func (b *Buffer) Write(p []byte) error {
	if !b.Fits(len(p)) {
		return errors.Wrapf(ErrOverflow, "write of %d bytes with %d free", len(p), b.Free())
	}
	b.size += copy(b.data[b.size:], p)
	return nil
}

// Fits reports whether n more bytes can be written.
func (b *Buffer) Fits(n int) bool {
	return n <= b.Free()
}

// Free returns the number of bytes left before the buffer is full.
func (b *Buffer) Free() int {
	return len(b.data) - b.size
}

// Reset empties the buffer without releasing its storage.
func (b *Buffer) Reset() {
	b.size = 0
}

// Len returns the number of valid bytes.
func (b *Buffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Bytes returns the valid region. The slice aliases the buffer storage.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Data returns the whole backing storage, bounded by the capacity, for
// routines that fill the buffer in place and then commit with SetSize.
func (b *Buffer) Data() []byte {
	return b.data
}

// SetSize commits n as the number of valid bytes.
func (b *Buffer) SetSize(n int) error {
	if n < 0 || n > len(b.data) {
		return errors.Wrapf(ErrSizeOutOfRange, "size %d with capacity %d", n, len(b.data))
	}
	b.size = n
	return nil
}
