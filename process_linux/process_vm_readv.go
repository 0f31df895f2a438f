//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process.
// A partial transfer is not an error; n reports how much arrived.
func process_vm_readv(
	pid process.ProcessID,
	localBuf []byte,
	remoteAddr process.ProcessMemoryAddress,
) (int, error) {
	// Create iovec for local buffer
	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(len(localBuf))

	// Create iovec for remote buffer
	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(localBuf),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),                        // Remote process PID
		uintptr(unsafe.Pointer(&localIov)),  // Local iovec
		uintptr(1),                          // Number of local iovecs
		uintptr(unsafe.Pointer(&remoteIov)), // Remote iovec
		uintptr(1),                          // Number of remote iovecs
		uintptr(0),                          // Flags (reserved for future use)
	)

	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// ReadMemory reads through process_vm_readv, or through the mem fd when the
// kernel lacks the syscall or a seccomp filter rejects it
func (p *Platform) ReadMemory(h process.OSHandle, addr process.ProcessMemoryAddress, dst []byte) (int, error) {
	th, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	if th.kind != kindMem || th.mask&accessRead == 0 {
		return 0, fmt.Errorf("%w: handle %d was not opened for reading", process.ErrAccessDenied, h)
	}
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := process_vm_readv(th.pid, dst, addr)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) {
		n, err = unix.Pread(int(h), dst, int64(addr))
	}
	if n < 0 {
		n = 0
	}
	if err != nil {
		return n, fmt.Errorf("process_vm_readv: failed to read process memory: %w", err)
	}
	return n, nil
}
