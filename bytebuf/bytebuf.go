// Package bytebuf provides a growable byte buffer with a cursor and a
// declared byte order. It is the transfer medium for every remote read and
// write in procmem.
//
// Indexed puts INSERT. PutAt(i, data) shifts everything at or after i up by
// len(data) and grows the buffer; it never overwrites in place. To make room
// for incoming data without disturbing existing content use Pad or Resize and
// write through Data().
package bytebuf

import (
	"errors"
	"slices"

	"procmem/endian"
)

var (
	// ErrIndexOutOfRange is returned when an index or cursor position lies outside the buffer
	ErrIndexOutOfRange = errors.New("index is out of range")

	// ErrExceedsSize is returned when a typed read would run past the end of the buffer
	ErrExceedsSize = errors.New("operation would exceed buffer size")

	// ErrExceedsCapacity is returned when an insert index lies past the end of the buffer
	ErrExceedsCapacity = errors.New("operation would exceed buffer capacity")
)

// Buffer is an owned byte sequence with a cursor. Invariants:
// 0 <= Pos() <= Capacity() and Size() <= Capacity().
// A Buffer has no internal synchronization.
type Buffer struct {
	buf   []byte
	pos   int
	order endian.Order
}

// New creates an empty buffer using the native byte order
func New() *Buffer {
	return NewWithOrder(endian.Native)
}

// NewWithOrder creates an empty buffer storing typed values in the given order
func NewWithOrder(order endian.Order) *Buffer {
	return &Buffer{order: order}
}

// NewFromBytes creates a buffer holding a copy of data, cursor at 0
func NewFromBytes(data []byte, order endian.Order) *Buffer {
	return &Buffer{buf: slices.Clone(data), order: order}
}

// Order returns the declared byte order of the buffer
func (b *Buffer) Order() endian.Order {
	return b.order
}

// Size returns the number of bytes in the buffer
func (b *Buffer) Size() int {
	return len(b.buf)
}

// Capacity returns the number of bytes the buffer can hold without reallocating
func (b *Buffer) Capacity() int {
	return cap(b.buf)
}

// Data returns the buffer contents. The slice aliases the buffer storage
// until the next operation that changes the size.
func (b *Buffer) Data() []byte {
	return b.buf
}

// Reserve guarantees room for n bytes without reallocation. Size is unchanged.
func (b *Buffer) Reserve(n int) {
	if n <= cap(b.buf) {
		return
	}
	grown := make([]byte, len(b.buf), n)
	copy(grown, b.buf)
	b.buf = grown
}

// Resize sets the size to n. New bytes are zero. Shrinking truncates and
// leaves the cursor where it is, which may now be past Size().
func (b *Buffer) Resize(n int) {
	if n < 0 {
		n = 0
	}
	old := len(b.buf)
	switch {
	case n <= old:
		b.buf = b.buf[:n]
	case n <= cap(b.buf):
		b.buf = b.buf[:n]
		clear(b.buf[old:])
	default:
		b.buf = append(b.buf, make([]byte, n-old)...)
	}
}

// Pad appends n zero bytes to the end of the buffer
func (b *Buffer) Pad(n int) {
	if n <= 0 {
		return
	}
	b.Resize(len(b.buf) + n)
}

// Clear empties the buffer and rewinds the cursor
func (b *Buffer) Clear() {
	b.buf = b.buf[:0]
	b.pos = 0
}

// Pos returns the cursor position
func (b *Buffer) Pos() int {
	return b.pos
}

// SetPos moves the cursor to pos. Positions up to and including Capacity() are valid.
func (b *Buffer) SetPos(pos int) error {
	if pos < 0 || pos > cap(b.buf) {
		return ErrIndexOutOfRange
	}
	b.pos = pos
	return nil
}

// Move shifts the cursor by a signed offset
func (b *Buffer) Move(offset int) error {
	return b.SetPos(b.pos + offset)
}

// Rewind sets the cursor to 0
func (b *Buffer) Rewind() {
	b.pos = 0
}

// PutAt inserts data at index, shifting existing bytes at or after index.
// The cursor does not move.
func (b *Buffer) PutAt(index int, data []byte) error {
	if index < 0 || index > len(b.buf) {
		return ErrExceedsCapacity
	}
	b.buf = slices.Insert(b.buf, index, data...)
	return nil
}

// Put inserts data at the cursor and advances the cursor by len(data)
func (b *Buffer) Put(data []byte) error {
	if err := b.PutAt(b.pos, data); err != nil {
		return err
	}
	return b.Move(len(data))
}
