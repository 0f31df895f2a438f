package process_test

import (
	"errors"
	"testing"
	"unsafe"

	"procmem/bytebuf"
	"procmem/endian"
	"procmem/process"
	"procmem/process_blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	targetPID  process.ProcessID            = 100
	heapBase   process.ProcessMemoryAddress = 0x10000
	heapSize                                = 0x1000
	moduleBase process.ProcessMemoryAddress = 0x400000
)

var wordSize = int(unsafe.Sizeof(uintptr(0)))

// word encodes v as a native machine word
func word(t *testing.T, v uintptr) []byte {
	b := bytebuf.New()
	require.NoError(t, bytebuf.PutAt(b, 0, v))
	return b.Data()
}

// countingPlatform records how often the raw write path is reached
type countingPlatform struct {
	*process_blob.Platform
	writes int
}

func (c *countingPlatform) WriteMemory(h process.OSHandle, addr process.ProcessMemoryAddress, src []byte) (int, error) {
	c.writes++
	return c.Platform.WriteMemory(h, addr, src)
}

func newTarget(t *testing.T) *process_blob.Platform {
	p := process_blob.New()
	p.AddProcess(process.ProcessRecord{Name: "init", PID: 1})
	p.AddProcess(process.ProcessRecord{Name: "target.exe", PID: targetPID, PPID: 1, Threads: 3})
	require.NoError(t, p.Map(targetPID, heapBase, make([]byte, heapSize)))
	require.NoError(t, p.AddModule(targetPID, process.ModuleRecord{Name: "target.exe", BaseAddress: moduleBase, Size: 0x5000}))
	require.NoError(t, p.AddModule(targetPID, process.ModuleRecord{Name: "libc.so.6", BaseAddress: 0x7f0000000000, Size: 0x10000}))
	return p
}

func openTarget(t *testing.T, p process.Platform, perm process.Permission) *process.Handle {
	h := process.NewHandle(p)
	require.NoError(t, h.Open(targetPID, perm))
	t.Cleanup(func() { h.Close() })
	return h
}

func TestScan(t *testing.T) {
	p := newTarget(t)

	procs, err := process.Scan(p)
	require.NoError(t, err)
	assert.Len(t, procs, 2)

	procs, err = process.NewHandle(p).Scan()
	require.NoError(t, err)
	rec, err := procs.FindByPID(targetPID)
	require.NoError(t, err)
	assert.Equal(t, "target.exe", rec.Name)
}

func TestScanFailureIsEnvironmentError(t *testing.T) {
	p := newTarget(t)
	p.FailListing(errors.New("snapshot failed"))

	_, err := process.Scan(p)
	assert.ErrorIs(t, err, process.ErrEnvironment)

	err = process.NewHandle(p).Open(targetPID, process.PermissionRead)
	assert.ErrorIs(t, err, process.ErrEnvironment)
}

func TestOpenAndClose(t *testing.T) {
	p := newTarget(t)
	h := process.NewHandle(p)
	assert.False(t, h.IsOpen())
	assert.Zero(t, h.PID())

	require.NoError(t, h.Open(targetPID, process.PermissionRead))
	assert.True(t, h.IsOpen())
	assert.Equal(t, targetPID, h.PID())
	assert.Equal(t, 1, p.OpenHandles())

	rec, err := h.Record()
	require.NoError(t, err)
	assert.Equal(t, "target.exe", rec.Name)
	assert.Equal(t, 3, rec.Threads)

	require.NoError(t, h.Close())
	assert.False(t, h.IsOpen())
	assert.Equal(t, 0, p.OpenHandles())

	require.NoError(t, h.Close(), "close is idempotent")
	assert.Equal(t, 0, p.OpenHandles())

	require.NoError(t, h.Open(targetPID, process.PermissionRead), "a closed handle can be reopened")
	require.NoError(t, h.Close())
}

func TestOpenNonexistentProcess(t *testing.T) {
	h := process.NewHandle(newTarget(t))
	err := h.Open(999, process.PermissionRead)
	assert.ErrorIs(t, err, process.ErrNotFound)
	assert.False(t, h.IsOpen())
}

func TestOpenTwice(t *testing.T) {
	p := newTarget(t)
	h := openTarget(t, p, process.PermissionRead)

	err := h.Open(targetPID, process.PermissionRead)
	assert.ErrorIs(t, err, process.ErrProcessAlreadyOpen)
	assert.ErrorIs(t, err, process.ErrIllegalState)
	assert.Equal(t, 1, p.OpenHandles())
}

func TestOpenEscalatesOnlyWhenDenied(t *testing.T) {
	p := newTarget(t)
	openTarget(t, p, process.PermissionRead)
	assert.Zero(t, p.AdjustCalls())
}

func TestOpenProtectedProcess(t *testing.T) {
	p := newTarget(t)
	p.SetProtected(targetPID, true)

	h := openTarget(t, p, process.PermissionAll)
	assert.True(t, h.IsOpen())
	assert.Equal(t, 1, p.AdjustCalls())
	assert.Equal(t, 1, p.OpenHandles(), "the adjustment handle is released")
	assert.False(t, p.IsProtected(targetPID), "the loosened access control persists")
}

func TestOpenEscalationFailure(t *testing.T) {
	p := newTarget(t)
	p.SetProtected(targetPID, true)
	p.FailAdjust(errors.New("SetSecurityInfo failed"))

	h := process.NewHandle(p)
	err := h.Open(targetPID, process.PermissionRead)
	assert.ErrorIs(t, err, process.ErrEnvironment)
	assert.False(t, h.IsOpen())
	assert.Equal(t, 0, p.OpenHandles())
}

func TestOpenArchitectureMismatch(t *testing.T) {
	p := newTarget(t)
	p.SetIs64Bit(targetPID, wordSize != 8)

	h := process.NewHandle(p)
	err := h.Open(targetPID, process.PermissionRead)
	assert.ErrorIs(t, err, process.ErrArchitectureMismatch)
	assert.ErrorIs(t, err, process.ErrEnvironment)
	assert.False(t, h.IsOpen())
	assert.Equal(t, 0, p.OpenHandles(), "the handle is released on failure")
}

// failingClosePlatform releases the handle but reports an error doing so
type failingClosePlatform struct {
	*process_blob.Platform
	closes int
}

func (f *failingClosePlatform) CloseHandle(h process.OSHandle) error {
	f.closes++
	if err := f.Platform.CloseHandle(h); err != nil {
		return err
	}
	return errors.New("close failed")
}

func TestOpenFailureKeepsErrorWhenCloseFails(t *testing.T) {
	p := &failingClosePlatform{Platform: newTarget(t)}
	p.SetIs64Bit(targetPID, wordSize != 8)

	h := process.NewHandle(p)
	err := h.Open(targetPID, process.PermissionRead)
	assert.ErrorIs(t, err, process.ErrArchitectureMismatch)
	assert.NotContains(t, err.Error(), "close failed")
	assert.Equal(t, 1, p.closes)
	assert.False(t, h.IsOpen())
}

func TestClosedHandleOperations(t *testing.T) {
	h := process.NewHandle(newTarget(t))
	buf := bytebuf.New()

	_, err := h.ReadMemory(heapBase, buf, 0, 4)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.WriteMemory(heapBase, buf, 0, 0)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	assert.ErrorIs(t, h.SafeReadMemory(heapBase, buf, 0, 4), process.ErrIllegalState)

	_, err = h.SafeReadBuffer(heapBase, 4)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, _, err = process.Read[uint32](h, heapBase)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = process.Write(h, heapBase, uint32(1))
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.Follow(heapBase, 0)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.Follow(heapBase)
	assert.ErrorIs(t, err, process.ErrIllegalState, "an empty chain still requires an open handle")

	_, err = h.BaseAddress()
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.Modules()
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.Record()
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
}

func TestBaseAddress(t *testing.T) {
	h := openTarget(t, newTarget(t), process.PermissionRead)

	base, err := h.BaseAddress()
	require.NoError(t, err)
	assert.Equal(t, moduleBase, base)

	libc, err := h.ModuleBaseAddress("libc.so.6")
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x7f0000000000), libc)

	_, err = h.ModuleBaseAddress("libc.so")
	assert.ErrorIs(t, err, process.ErrNotFound, "names match exactly")

	mods, err := h.Modules()
	require.NoError(t, err)
	assert.Len(t, mods, 2)
}

func TestReadMemoryKeepsSizeWhenRoomExists(t *testing.T) {
	p := newTarget(t)
	require.NoError(t, p.Map(targetPID, 0x20000, []byte{1, 2, 3, 4}))
	h := openTarget(t, p, process.PermissionRead)

	buf := bytebuf.NewFromBytes([]byte{9, 9, 9, 9, 9, 9, 9, 9}, endian.Native)
	ok, err := h.ReadMemory(0x20000, buf, 2, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8, buf.Size())
	assert.Equal(t, []byte{9, 9, 1, 2, 3, 4, 9, 9}, buf.Data())
}

func TestReadMemoryGrowsByShortfall(t *testing.T) {
	p := newTarget(t)
	require.NoError(t, p.Map(targetPID, 0x20000, []byte{1, 2, 3, 4}))
	h := openTarget(t, p, process.PermissionRead)

	buf := bytebuf.NewFromBytes([]byte{7, 7, 7}, endian.Native)
	ok, err := h.ReadMemory(0x20000, buf, 2, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, buf.Size())
	assert.Equal(t, []byte{7, 7, 1, 2, 3, 4}, buf.Data())
}

func TestReadMemoryFailureIsNotAnError(t *testing.T) {
	h := openTarget(t, newTarget(t), process.PermissionRead)

	buf := bytebuf.New()
	ok, err := h.ReadMemory(0xdead0000, buf, 0, 8)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, buf.Data(), "grown zero-padded even on failure")

	// Runs off the end of the mapped heap.
	ok, err = h.ReadMemory(heapBase+heapSize-2, bytebuf.New(), 0, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	err = h.SafeReadMemory(0xdead0000, buf, 0, 8)
	assert.ErrorIs(t, err, process.ErrOperationFailed)
}

func TestReadMemoryMisuse(t *testing.T) {
	h := openTarget(t, newTarget(t), process.PermissionRead)

	buf := bytebuf.New()
	buf.Resize(4)

	_, err := h.ReadMemory(heapBase, buf, 5, 1)
	assert.ErrorIs(t, err, bytebuf.ErrIndexOutOfRange)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.ReadMemory(heapBase, buf, -1, 1)
	assert.ErrorIs(t, err, bytebuf.ErrIndexOutOfRange)

	_, err = h.ReadMemory(heapBase, buf, 0, -1)
	assert.ErrorIs(t, err, bytebuf.ErrIndexOutOfRange)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.ReadMemory(0, buf, 0, 4)
	assert.ErrorIs(t, err, process.ErrNullAddress)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	ok, err := h.ReadMemory(heapBase, buf, 4, 0)
	require.NoError(t, err, "index == size is valid")
	assert.True(t, ok)
	assert.Equal(t, 4, buf.Size())
}

func TestSafeReadBuffer(t *testing.T) {
	p := newTarget(t)
	require.NoError(t, p.Map(targetPID, 0x20000, []byte("hello")))
	h := openTarget(t, p, process.PermissionRead)

	buf, err := h.SafeReadBuffer(0x20000, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf.Data())
	assert.Equal(t, 0, buf.Pos())

	_, err = h.SafeReadBuffer(0x20000, 6)
	assert.ErrorIs(t, err, process.ErrOperationFailed)
}

func TestWriteMemory(t *testing.T) {
	p := newTarget(t)
	h := openTarget(t, p, process.PermissionAll)

	buf := bytebuf.NewFromBytes([]byte{0xAA, 1, 2, 3, 0xBB}, endian.Native)
	ok, err := h.WriteMemory(heapBase+0x10, buf, 1, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := p.Peek(targetPID, heapBase+0x10, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, h.SafeWriteMemory(heapBase, buf, 0, 5))

	err = h.SafeWriteMemory(0xdead0000, buf, 0, 5)
	assert.ErrorIs(t, err, process.ErrOperationFailed)
}

func TestWriteMemoryRangeCheckedBeforeOSCall(t *testing.T) {
	p := &countingPlatform{Platform: newTarget(t)}
	h := openTarget(t, p, process.PermissionAll)

	buf := bytebuf.NewFromBytes([]byte{1, 2, 3, 4}, endian.Native)
	_, err := h.WriteMemory(heapBase, buf, 2, 3)
	assert.ErrorIs(t, err, bytebuf.ErrIndexOutOfRange)
	assert.ErrorIs(t, err, process.ErrIllegalState)

	_, err = h.WriteMemory(heapBase, bytebuf.New(), 0, 4)
	assert.ErrorIs(t, err, process.ErrIllegalState)
	assert.Zero(t, p.writes)
	assert.Equal(t, 4, buf.Size(), "write never grows the source")
	assert.Zero(t, p.writes)

	_, err = h.WriteMemory(0, buf, 0, 4)
	assert.ErrorIs(t, err, process.ErrNullAddress)
	assert.Zero(t, p.writes)

	ok, err := h.WriteMemory(heapBase, buf, 0, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, p.writes)
}

func TestWriteWithReadOnlyAccessFails(t *testing.T) {
	h := openTarget(t, newTarget(t), process.PermissionRead)

	ok, err := process.Write(h, heapBase, uint32(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTypedReadWrite(t *testing.T) {
	h := openTarget(t, newTarget(t), process.PermissionAll)

	require.NoError(t, process.SafeWrite(h, heapBase+0x40, uint32(0xDEADBEEF)))
	require.NoError(t, process.SafeWrite(h, heapBase+0x48, -1.5))
	require.NoError(t, process.SafeWrite(h, heapBase+0x50, int16(-2)))

	u, err := process.SafeRead[uint32](h, heapBase+0x40)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u)

	f, err := process.SafeRead[float64](h, heapBase+0x48)
	require.NoError(t, err)
	assert.Equal(t, -1.5, f)

	v, ok, err := process.Read[int16](h, heapBase+0x50)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int16(-2), v)

	_, ok, err = process.Read[uint64](h, 0xdead0000)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = process.SafeRead[uint64](h, 0xdead0000)
	assert.ErrorIs(t, err, process.ErrOperationFailed)
}

func TestFollowRemote(t *testing.T) {
	p := newTarget(t)
	// 0x20000 -> 0x21000; 0x21000+word -> 0x30000
	require.NoError(t, p.Map(targetPID, 0x20000, word(t, 0x21000)))
	slots := append(word(t, 0), word(t, 0x30000)...)
	require.NoError(t, p.Map(targetPID, 0x21000, slots))
	h := openTarget(t, p, process.PermissionRead)

	got, err := h.Follow(0x20000)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x20000), got, "empty chain")

	got, err = h.Follow(0x20000, 0)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x21000), got)

	got, err = h.Follow(0x20000, 0, process.ProcessMemoryOffset(wordSize))
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x30000), got)

	_, err = h.Follow(0x20000, 0, process.ProcessMemoryOffset(wordSize), 0)
	assert.ErrorIs(t, err, process.ErrOperationFailed, "0x30000 is unmapped")
}

func TestClone(t *testing.T) {
	p := newTarget(t)
	require.NoError(t, p.Map(targetPID, 0x20000, []byte{0x2A}))
	h := openTarget(t, p, process.PermissionRead)

	c, err := h.Clone()
	require.NoError(t, err)
	assert.True(t, c.IsOpen())
	assert.Equal(t, 2, p.OpenHandles(), "the clone owns its own handle")

	require.NoError(t, h.Close())
	v, err := process.SafeRead[uint8](c, 0x20000)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x2A), v)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, p.OpenHandles())

	closed, err := h.Clone()
	require.NoError(t, err)
	assert.False(t, closed.IsOpen())
}
