//go:build linux

package process_linux

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"syscall"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/unix"
)

// OpenProcess opens /proc/<pid>/mem, which runs the kernel's ptrace access
// check, or a pidfd when mask is AdjustMask
func (p *Platform) OpenProcess(pid process.ProcessID, mask uint32) (process.OSHandle, error) {
	if mask&accessAdjust != 0 {
		fd, err := unix.PidfdOpen(int(pid), 0)
		if err != nil {
			return 0, openError(pid, "pidfd_open", err)
		}
		h := process.OSHandle(fd)
		p.track(h, trackedHandle{pid: pid, kind: kindPidfd, mask: mask})
		return h, nil
	}

	flags := unix.O_RDONLY
	if mask&accessWrite != 0 {
		flags = unix.O_RDWR
	}

	// The fd is opened on the real procfs: the kernel performs the access
	// check, not the metadata filesystem.
	fd, err := unix.Open(fmt.Sprintf("/proc/%d/mem", pid), flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, openError(pid, "open mem", err)
	}

	h := process.OSHandle(fd)
	p.track(h, trackedHandle{pid: pid, kind: kindMem, mask: mask})
	return h, nil
}

func openError(pid process.ProcessID, op string, err error) error {
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s %d: %w", process.ErrAccessDenied, op, pid, err)
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: %s %d: %w", process.ErrNotFound, op, pid, err)
	}
	return fmt.Errorf("%s %d: %w", op, pid, err)
}

func (p *Platform) CloseHandle(h process.OSHandle) error {
	p.mu.Lock()
	_, ok := p.handles[h]
	delete(p.handles, h)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown handle %d", h)
	}
	return unix.Close(int(h))
}

// DuplicateHandle dups the descriptor; the copy refers to the same target
func (p *Platform) DuplicateHandle(h process.OSHandle) (process.OSHandle, error) {
	th, err := p.lookup(h)
	if err != nil {
		return 0, err
	}

	fd, err := unix.FcntlInt(uintptr(h), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("dup handle %d: %w", h, err)
	}

	dup := process.OSHandle(fd)
	p.track(dup, th)
	return dup, nil
}

// AdjustAccess makes the kernel's ptrace access check pass for this caller:
// it confirms through the pidfd that the target is still alive, then raises
// CAP_SYS_PTRACE in the effective set of every thread. The capability stays
// raised.
func (p *Platform) AdjustAccess(h process.OSHandle) error {
	th, err := p.lookup(h)
	if err != nil {
		return err
	}
	if th.kind != kindPidfd {
		return fmt.Errorf("handle %d is not a pidfd", h)
	}

	if err := unix.PidfdSendSignal(int(h), 0, nil, 0); err != nil {
		return fmt.Errorf("%w: process %d: %w", process.ErrNotFound, th.pid, err)
	}

	return raiseCapability(unix.CAP_SYS_PTRACE)
}

func raiseCapability(capability int) error {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData

	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capget: %w", err)
	}

	idx, bit := capability/32, uint32(1)<<(capability%32)
	if data[idx].Effective&bit != 0 {
		return nil
	}
	if data[idx].Permitted&bit == 0 {
		return fmt.Errorf("%w: capability %d is not in the permitted set", process.ErrAccessDenied, capability)
	}

	data[idx].Effective |= bit

	// Threads carry their own credentials; every thread must see the change
	// since the retried open may run on any of them.
	_, _, errno := syscall.AllThreadsSyscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(&hdr)), uintptr(unsafe.Pointer(&data[0])), 0)
	if errno != 0 {
		return fmt.Errorf("capset: %w", errno)
	}
	return nil
}

// Is64Bit reads the ELF class of the target's executable
func (p *Platform) Is64Bit(h process.OSHandle) (bool, error) {
	th, err := p.lookup(h)
	if err != nil {
		return false, err
	}

	f, err := p.fs.Open(p.procPath(th.pid, "exe"))
	if err != nil {
		return false, fmt.Errorf("open exe of %d: %w", th.pid, err)
	}
	defer f.Close()

	var ident [elf.EI_NIDENT]byte
	if _, err := io.ReadFull(f, ident[:]); err != nil {
		return false, fmt.Errorf("read ELF header of %d: %w", th.pid, err)
	}
	if string(ident[:4]) != elf.ELFMAG {
		return false, fmt.Errorf("exe of %d is not an ELF file", th.pid)
	}

	switch elf.Class(ident[elf.EI_CLASS]) {
	case elf.ELFCLASS64:
		return true, nil
	case elf.ELFCLASS32:
		return false, nil
	}
	return false, fmt.Errorf("exe of %d has unknown ELF class %d", th.pid, ident[elf.EI_CLASS])
}
