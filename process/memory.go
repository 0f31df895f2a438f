package process

import (
	"fmt"

	"procmem/bytebuf"
	"procmem/endian"
)

// ReadMemory reads length bytes at addr into buf starting at index. When
// index+length runs past the end of buf, buf is padded with zeros by the
// shortfall first; existing bytes are never moved.
//
// An error is returned only for misuse: a closed handle, index outside
// [0, buf.Size()], a negative length or a null address. A remote read that
// does not transfer every byte reports false.
func (h *Handle) ReadMemory(addr ProcessMemoryAddress, buf *bytebuf.Buffer, index, length int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readMemoryLocked(addr, buf, index, length)
}

func (h *Handle) readMemoryLocked(addr ProcessMemoryAddress, buf *bytebuf.Buffer, index, length int) (bool, error) {
	if !h.open {
		return false, ErrProcessNotOpen
	}
	if index < 0 || index > buf.Size() {
		return false, fmt.Errorf("%w: %w: index %d outside [0, %d]", ErrIllegalState, bytebuf.ErrIndexOutOfRange, index, buf.Size())
	}
	if length < 0 {
		return false, fmt.Errorf("%w: %w: negative length %d", ErrIllegalState, bytebuf.ErrIndexOutOfRange, length)
	}
	if addr == 0 {
		return false, ErrNullAddress
	}

	if short := index + length - buf.Size(); short > 0 {
		buf.Pad(short)
	}
	if length == 0 {
		return true, nil
	}

	n, err := h.platform.ReadMemory(h.handle, addr, buf.Data()[index:index+length])
	if err != nil || n != length {
		h.log.Debugln("Failed to read memory at", addr.String(), "read", n, "of", length, "bytes", err)
		return false, nil
	}
	return true, nil
}

// SafeReadMemory is ReadMemory with an incomplete read reported as ErrOperationFailed
func (h *Handle) SafeReadMemory(addr ProcessMemoryAddress, buf *bytebuf.Buffer, index, length int) error {
	ok, err := h.ReadMemory(addr, buf, index, length)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: read %d bytes at %s", ErrOperationFailed, length, addr)
	}
	return nil
}

// SafeReadBuffer reads length bytes at addr into a new native order buffer
func (h *Handle) SafeReadBuffer(addr ProcessMemoryAddress, length int) (*bytebuf.Buffer, error) {
	buf := bytebuf.New()
	buf.Reserve(length)
	if err := h.SafeReadMemory(addr, buf, 0, length); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteMemory writes length bytes of buf starting at index to addr. The
// source range must already exist in buf; nothing is grown on write.
// Errors mirror ReadMemory. A remote write that does not transfer every
// byte reports false.
func (h *Handle) WriteMemory(addr ProcessMemoryAddress, buf *bytebuf.Buffer, index, length int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writeMemoryLocked(addr, buf, index, length)
}

func (h *Handle) writeMemoryLocked(addr ProcessMemoryAddress, buf *bytebuf.Buffer, index, length int) (bool, error) {
	if !h.open {
		return false, ErrProcessNotOpen
	}
	if index < 0 || length < 0 || index+length > buf.Size() {
		return false, fmt.Errorf("%w: %w: range [%d, %d) outside buffer of %d bytes", ErrIllegalState, bytebuf.ErrIndexOutOfRange, index, index+length, buf.Size())
	}
	if addr == 0 {
		return false, ErrNullAddress
	}
	if length == 0 {
		return true, nil
	}

	n, err := h.platform.WriteMemory(h.handle, addr, buf.Data()[index:index+length])
	if err != nil || n != length {
		h.log.Debugln("Failed to write memory at", addr.String(), "wrote", n, "of", length, "bytes", err)
		return false, nil
	}
	return true, nil
}

// SafeWriteMemory is WriteMemory with an incomplete write reported as ErrOperationFailed
func (h *Handle) SafeWriteMemory(addr ProcessMemoryAddress, buf *bytebuf.Buffer, index, length int) error {
	ok, err := h.WriteMemory(addr, buf, index, length)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: write %d bytes at %s", ErrOperationFailed, length, addr)
	}
	return nil
}

// Read reads one fixed-size value at addr through the handle's scratch buffer
func Read[T endian.Number](h *Handle, addr ProcessMemoryAddress) (T, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var v T
	if !h.open {
		return v, false, ErrProcessNotOpen
	}

	h.scratch.Clear()
	ok, err := h.readMemoryLocked(addr, h.scratch, 0, bytebuf.SizeOf[T]())
	if err != nil || !ok {
		return v, ok, err
	}

	v, err = bytebuf.GetAt[T](h.scratch, 0)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// SafeRead is Read with an incomplete read reported as ErrOperationFailed
func SafeRead[T endian.Number](h *Handle, addr ProcessMemoryAddress) (T, error) {
	v, ok, err := Read[T](h, addr)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%w: read %d bytes at %s", ErrOperationFailed, bytebuf.SizeOf[T](), addr)
	}
	return v, nil
}

// Write writes one fixed-size value to addr through the handle's scratch buffer
func Write[T endian.Number](h *Handle, addr ProcessMemoryAddress, v T) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.open {
		return false, ErrProcessNotOpen
	}

	h.scratch.Clear()
	if err := bytebuf.PutAt(h.scratch, 0, v); err != nil {
		return false, err
	}
	return h.writeMemoryLocked(addr, h.scratch, 0, h.scratch.Size())
}

// SafeWrite is Write with an incomplete write reported as ErrOperationFailed
func SafeWrite[T endian.Number](h *Handle, addr ProcessMemoryAddress, v T) error {
	ok, err := Write(h, addr, v)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: write %d bytes at %s", ErrOperationFailed, bytebuf.SizeOf[T](), addr)
	}
	return nil
}

// Follow resolves a pointer chain inside the target, reading one machine
// word per step. It stops at the first unreadable step.
func (h *Handle) Follow(base ProcessMemoryAddress, offsets ...ProcessMemoryOffset) (ProcessMemoryAddress, error) {
	if !h.IsOpen() {
		return 0, ErrProcessNotOpen
	}
	return Follow(DereferenceFunc(func(addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
		v, err := SafeRead[uintptr](h, addr)
		return ProcessMemoryAddress(v), err
	}), base, offsets...)
}
