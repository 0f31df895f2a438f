package bytebuf

import (
	"unsafe"

	"procmem/endian"
)

// SizeOf returns the number of bytes T occupies in a buffer
func SizeOf[T endian.Number]() int {
	var t T
	return int(unsafe.Sizeof(t))
}

// PutAt inserts v at index, converted from native order to the buffer's order
func PutAt[T endian.Number](b *Buffer, index int, v T) error {
	v = endian.NativeToOrder(v, b.order)
	return b.PutAt(index, unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v)))
}

// Put inserts v at the cursor and advances the cursor by its size
func Put[T endian.Number](b *Buffer, v T) error {
	v = endian.NativeToOrder(v, b.order)
	return b.Put(unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v)))
}

// GetAt reads a T stored at index, converted from the buffer's order to native order
func GetAt[T endian.Number](b *Buffer, index int) (T, error) {
	var v T
	size := int(unsafe.Sizeof(v))

	if index < 0 || index > len(b.buf) {
		return v, ErrIndexOutOfRange
	}
	if index+size > len(b.buf) {
		return v, ErrExceedsSize
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), size), b.buf[index:index+size])
	return endian.OrderToNative(v, b.order), nil
}

// Get reads a T at the cursor and advances the cursor by its size
func Get[T endian.Number](b *Buffer) (T, error) {
	v, err := GetAt[T](b, b.pos)
	if err != nil {
		return v, err
	}
	return v, b.Move(int(unsafe.Sizeof(v)))
}

// OffsetUINT8 reads an unsigned 8-bit integer at index
func (b *Buffer) OffsetUINT8(index int) (uint8, error) { return GetAt[uint8](b, index) }

// OffsetUINT16 reads an unsigned 16-bit integer at index
func (b *Buffer) OffsetUINT16(index int) (uint16, error) { return GetAt[uint16](b, index) }

// OffsetUINT32 reads an unsigned 32-bit integer at index
func (b *Buffer) OffsetUINT32(index int) (uint32, error) { return GetAt[uint32](b, index) }

// OffsetUINT64 reads an unsigned 64-bit integer at index
func (b *Buffer) OffsetUINT64(index int) (uint64, error) { return GetAt[uint64](b, index) }

// OffsetINT8 reads a signed 8-bit integer at index
func (b *Buffer) OffsetINT8(index int) (int8, error) { return GetAt[int8](b, index) }

// OffsetINT16 reads a signed 16-bit integer at index
func (b *Buffer) OffsetINT16(index int) (int16, error) { return GetAt[int16](b, index) }

// OffsetINT32 reads a signed 32-bit integer at index
func (b *Buffer) OffsetINT32(index int) (int32, error) { return GetAt[int32](b, index) }

// OffsetINT64 reads a signed 64-bit integer at index
func (b *Buffer) OffsetINT64(index int) (int64, error) { return GetAt[int64](b, index) }

// OffsetFLOAT32 reads a 32-bit float at index
func (b *Buffer) OffsetFLOAT32(index int) (float32, error) { return GetAt[float32](b, index) }

// OffsetFLOAT64 reads a 64-bit float at index
func (b *Buffer) OffsetFLOAT64(index int) (float64, error) { return GetAt[float64](b, index) }

// ReadUINT8 reads an unsigned 8-bit integer at the cursor
func (b *Buffer) ReadUINT8() (uint8, error) { return Get[uint8](b) }

// ReadUINT16 reads an unsigned 16-bit integer at the cursor
func (b *Buffer) ReadUINT16() (uint16, error) { return Get[uint16](b) }

// ReadUINT32 reads an unsigned 32-bit integer at the cursor
func (b *Buffer) ReadUINT32() (uint32, error) { return Get[uint32](b) }

// ReadUINT64 reads an unsigned 64-bit integer at the cursor
func (b *Buffer) ReadUINT64() (uint64, error) { return Get[uint64](b) }

// ReadINT8 reads a signed 8-bit integer at the cursor
func (b *Buffer) ReadINT8() (int8, error) { return Get[int8](b) }

// ReadINT16 reads a signed 16-bit integer at the cursor
func (b *Buffer) ReadINT16() (int16, error) { return Get[int16](b) }

// ReadINT32 reads a signed 32-bit integer at the cursor
func (b *Buffer) ReadINT32() (int32, error) { return Get[int32](b) }

// ReadINT64 reads a signed 64-bit integer at the cursor
func (b *Buffer) ReadINT64() (int64, error) { return Get[int64](b) }

// ReadFLOAT32 reads a 32-bit float at the cursor
func (b *Buffer) ReadFLOAT32() (float32, error) { return Get[float32](b) }

// ReadFLOAT64 reads a 64-bit float at the cursor
func (b *Buffer) ReadFLOAT64() (float64, error) { return Get[float64](b) }

// WriteUINT8 inserts an unsigned 8-bit integer at the cursor
func (b *Buffer) WriteUINT8(v uint8) error { return Put(b, v) }

// WriteUINT16 inserts an unsigned 16-bit integer at the cursor
func (b *Buffer) WriteUINT16(v uint16) error { return Put(b, v) }

// WriteUINT32 inserts an unsigned 32-bit integer at the cursor
func (b *Buffer) WriteUINT32(v uint32) error { return Put(b, v) }

// WriteUINT64 inserts an unsigned 64-bit integer at the cursor
func (b *Buffer) WriteUINT64(v uint64) error { return Put(b, v) }

// WriteINT8 inserts a signed 8-bit integer at the cursor
func (b *Buffer) WriteINT8(v int8) error { return Put(b, v) }

// WriteINT16 inserts a signed 16-bit integer at the cursor
func (b *Buffer) WriteINT16(v int16) error { return Put(b, v) }

// WriteINT32 inserts a signed 32-bit integer at the cursor
func (b *Buffer) WriteINT32(v int32) error { return Put(b, v) }

// WriteINT64 inserts a signed 64-bit integer at the cursor
func (b *Buffer) WriteINT64(v int64) error { return Put(b, v) }

// WriteFLOAT32 inserts a 32-bit float at the cursor
func (b *Buffer) WriteFLOAT32(v float32) error { return Put(b, v) }

// WriteFLOAT64 inserts a 64-bit float at the cursor
func (b *Buffer) WriteFLOAT64(v float64) error { return Put(b, v) }
