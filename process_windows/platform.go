//go:build windows

// Package process_windows implements process.Platform with the Win32 toolhelp,
// process and security APIs.
package process_windows

import (
	"errors"
	"fmt"
	"unsafe"

	"procmem/process"

	"golang.org/x/sys/windows"
)

// Platform is the Windows process.Platform. OS handles are Win32 process
// handles; access checks are left to the kernel.
type Platform struct{}

var _ process.Platform = (*Platform)(nil)

func NewPlatform() *Platform {
	return &Platform{}
}

// ListProcesses walks a toolhelp process snapshot
func (p *Platform) ListProcesses() ([]process.ProcessRecord, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var results []process.ProcessRecord
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		results = append(results, process.ProcessRecord{
			Name:    windows.UTF16ToString(entry.ExeFile[:]),
			PID:     process.ProcessID(entry.ProcessID),
			PPID:    process.ProcessID(entry.ParentProcessID),
			Threads: int(entry.Threads),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Process32Next: %w", err)
	}

	return results, nil
}

// ListModules walks a toolhelp module snapshot of pid, 32-bit modules included
func (p *Platform) ListModules(pid process.ProcessID) ([]process.ModuleRecord, error) {
	snap, err := moduleSnapshot(pid)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var results []process.ModuleRecord
	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		results = append(results, process.ModuleRecord{
			Name:        windows.UTF16ToString(entry.Module[:]),
			Path:        windows.UTF16ToString(entry.ExePath[:]),
			BaseAddress: process.ProcessMemoryAddress(entry.ModBaseAddr),
			Size:        uint(entry.ModBaseSize),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Module32Next: %w", err)
	}

	return results, nil
}

// moduleSnapshot retries while the target's loader list is changing, which
// the snapshot reports as ERROR_BAD_LENGTH
func moduleSnapshot(pid process.ProcessID) (windows.Handle, error) {
	const attempts = 8

	var err error
	for i := 0; i < attempts; i++ {
		var snap windows.Handle
		snap, err = windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, windows.ERROR_BAD_LENGTH) {
			break
		}
	}
	return 0, openError(pid, "CreateToolhelp32Snapshot", err)
}

func (p *Platform) AccessMask(perm process.Permission) uint32 {
	switch perm {
	case process.PermissionWrite:
		return windows.PROCESS_VM_WRITE | windows.PROCESS_VM_OPERATION | windows.PROCESS_QUERY_LIMITED_INFORMATION
	case process.PermissionAll:
		return windows.PROCESS_ALL_ACCESS
	}
	return windows.PROCESS_VM_READ | windows.PROCESS_QUERY_LIMITED_INFORMATION
}

// AdjustMask only asks for the right to rewrite the target's DACL
func (p *Platform) AdjustMask() uint32 {
	return windows.WRITE_DAC
}

func (p *Platform) OpenProcess(pid process.ProcessID, mask uint32) (process.OSHandle, error) {
	h, err := windows.OpenProcess(mask, false, uint32(pid))
	if err != nil {
		return 0, openError(pid, "OpenProcess", err)
	}
	return process.OSHandle(h), nil
}

func openError(pid process.ProcessID, op string, err error) error {
	switch {
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return fmt.Errorf("%w: %s %d: %w", process.ErrAccessDenied, op, pid, err)
	case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
		// OpenProcess reports a pid that does not exist this way
		return fmt.Errorf("%w: %s %d: %w", process.ErrNotFound, op, pid, err)
	}
	return fmt.Errorf("%s %d: %w", op, pid, err)
}

func (p *Platform) CloseHandle(h process.OSHandle) error {
	return windows.CloseHandle(windows.Handle(h))
}

// AdjustAccess replaces the target's DACL with the caller's own, which grants
// the caller's token everything it grants itself. The new DACL stays in place.
func (p *Platform) AdjustAccess(h process.OSHandle) error {
	sd, err := windows.GetSecurityInfo(windows.CurrentProcess(), windows.SE_KERNEL_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return fmt.Errorf("GetSecurityInfo: %w", err)
	}

	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("read own DACL: %w", err)
	}

	err = windows.SetSecurityInfo(
		windows.Handle(h),
		windows.SE_KERNEL_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.UNPROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	)
	if err != nil {
		return fmt.Errorf("SetSecurityInfo: %w", err)
	}
	return nil
}

// Is64Bit is false for WOW64 targets and for every target of a 32-bit OS
func (p *Platform) Is64Bit(h process.OSHandle) (bool, error) {
	osIs64 := unsafe.Sizeof(uintptr(0)) == 8
	if !osIs64 {
		var selfWow64 bool
		if err := windows.IsWow64Process(windows.CurrentProcess(), &selfWow64); err != nil {
			return false, fmt.Errorf("IsWow64Process(self): %w", err)
		}
		osIs64 = selfWow64
	}
	if !osIs64 {
		return false, nil
	}

	var wow64 bool
	if err := windows.IsWow64Process(windows.Handle(h), &wow64); err != nil {
		return false, fmt.Errorf("IsWow64Process: %w", err)
	}
	return !wow64, nil
}

// DuplicateHandle duplicates within the caller with the same access rights
func (p *Platform) DuplicateHandle(h process.OSHandle) (process.OSHandle, error) {
	self := windows.CurrentProcess()

	var dup windows.Handle
	err := windows.DuplicateHandle(self, windows.Handle(h), self, &dup, 0, false, windows.DUPLICATE_SAME_ACCESS)
	if err != nil {
		return 0, fmt.Errorf("DuplicateHandle: %w", err)
	}
	return process.OSHandle(dup), nil
}

func (p *Platform) ReadMemory(h process.OSHandle, addr process.ProcessMemoryAddress, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	var n uintptr
	err := windows.ReadProcessMemory(windows.Handle(h), uintptr(addr), &dst[0], uintptr(len(dst)), &n)
	if err != nil {
		return int(n), fmt.Errorf("ReadProcessMemory: %w", err)
	}
	return int(n), nil
}

func (p *Platform) WriteMemory(h process.OSHandle, addr process.ProcessMemoryAddress, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}

	var n uintptr
	err := windows.WriteProcessMemory(windows.Handle(h), uintptr(addr), &src[0], uintptr(len(src)), &n)
	if err != nil {
		return int(n), fmt.Errorf("WriteProcessMemory: %w", err)
	}
	return int(n), nil
}
