//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(
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
		unix.SYS_PROCESS_VM_WRITEV,
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

// WriteMemory writes through process_vm_writev, or through the mem fd when
// the syscall is missing or filtered. process_vm_writev cannot write read-only
// pages; the mem fd can, but is only used as a fallback.
func (p *Platform) WriteMemory(h process.OSHandle, addr process.ProcessMemoryAddress, src []byte) (int, error) {
	th, err := p.lookup(h)
	if err != nil {
		return 0, err
	}
	if th.kind != kindMem || th.mask&accessWrite == 0 {
		return 0, fmt.Errorf("%w: handle %d was not opened for writing", process.ErrAccessDenied, h)
	}
	if len(src) == 0 {
		return 0, nil
	}

	n, err := process_vm_writev(th.pid, src, addr)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) {
		n, err = unix.Pwrite(int(h), src, int64(addr))
	}
	if n < 0 {
		n = 0
	}
	if err != nil {
		return n, fmt.Errorf("process_vm_writev: failed to write process memory: %w", err)
	}
	return n, nil
}
