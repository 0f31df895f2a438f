package process

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"procmem/bytebuf"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

const hostIs64Bit = unsafe.Sizeof(uintptr(0)) == 8

// Handle is an opened process. It is created closed, becomes open through
// Open and owns exactly one OS handle until Close. Clone gives a second,
// independently owned OS handle to the same target.
type Handle struct {
	mu       sync.Mutex
	platform Platform

	open    bool
	handle  OSHandle
	record  ProcessRecord
	scratch *bytebuf.Buffer // reused by Read/Write, native order

	log *logger.Logger
}

// NewHandle creates a closed Handle backed by platform
func NewHandle(platform Platform) *Handle {
	return &Handle{
		platform: platform,
		log:      closedLogger(),
	}
}

func closedLogger() *logger.Logger {
	return logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
}

func openLogger(pid ProcessID) *logger.Logger {
	return logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
}

// Scan enumerates every process visible to the caller
func Scan(p ProcessEnumerator) (Processes, error) {
	records, err := p.ListProcesses()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate processes: %w", ErrEnvironment, err)
	}
	return Processes(records), nil
}

// Scan enumerates every process visible through the handle's platform
func (h *Handle) Scan() (Processes, error) {
	return Scan(h.platform)
}

// Open opens pid with the requested permission. When the OS denies the
// request the target's access control is loosened once and the open is
// retried. The loosened access control is not restored.
func (h *Handle) Open(pid ProcessID, perm Permission) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.open {
		return ErrProcessAlreadyOpen
	}

	procs, err := Scan(h.platform)
	if err != nil {
		return err
	}
	record, err := procs.FindByPID(pid)
	if err != nil {
		return err
	}

	handle, err := h.openSecure(pid, h.platform.AccessMask(perm))
	if err != nil {
		return err
	}

	opened := false
	defer func() {
		if !opened {
			if err := h.platform.CloseHandle(handle); err != nil {
				h.log.Debugln("Failed to close handle of process", pid, err)
			}
		}
	}()

	is64, err := h.platform.Is64Bit(handle)
	if err != nil {
		return fmt.Errorf("%w: probe architecture of process %d: %w", ErrEnvironment, pid, err)
	}
	if is64 != hostIs64Bit {
		return fmt.Errorf("%w: process %d is %s, caller is %s", ErrArchitectureMismatch, pid, bitness(is64), bitness(hostIs64Bit))
	}

	opened = true
	h.setOpen(handle, record)
	h.log.Infoln("Process opened", record.Name, "with", perm.String(), "access")

	return nil
}

// openSecure requests mask directly and falls back to loosening the target's
// access control only when the direct request was denied
func (h *Handle) openSecure(pid ProcessID, mask uint32) (OSHandle, error) {
	handle, err := h.platform.OpenProcess(pid, mask)
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, ErrAccessDenied) {
		return 0, fmt.Errorf("%w: open process %d: %w", ErrEnvironment, pid, err)
	}

	h.log.Warn("Access denied for process ", pid, ", adjusting its access control: ", err)

	adjust, err := h.platform.OpenProcess(pid, h.platform.AdjustMask())
	if err != nil {
		return 0, fmt.Errorf("%w: open process %d for access adjustment: %w", ErrEnvironment, pid, err)
	}
	err = h.platform.AdjustAccess(adjust)
	if cerr := h.platform.CloseHandle(adjust); cerr != nil {
		h.log.Debugln("Failed to close adjustment handle of process", pid, cerr)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: adjust access of process %d: %w", ErrEnvironment, pid, err)
	}

	handle, err = h.platform.OpenProcess(pid, mask)
	if err != nil {
		return 0, fmt.Errorf("%w: reopen process %d after access adjustment: %w", ErrEnvironment, pid, err)
	}
	return handle, nil
}

// setOpen assumes the mutex is held
func (h *Handle) setOpen(handle OSHandle, record ProcessRecord) {
	h.open = true
	h.handle = handle
	h.record = record
	h.scratch = bytebuf.New()
	h.log = openLogger(record.PID)

	// Releases the OS handle of a Handle dropped without Close.
	runtime.SetFinalizer(h, func(h *Handle) { h.Close() })
}

// Close releases the OS handle. Closing a closed handle does nothing.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.open {
		return nil
	}

	h.log.Infoln("Closing process")

	err := h.platform.CloseHandle(h.handle)

	h.open = false
	h.handle = 0
	h.record = ProcessRecord{}
	h.scratch = nil
	runtime.SetFinalizer(h, nil)

	h.log = closedLogger()
	h.log.Infoln("Process closed")

	if err != nil {
		return fmt.Errorf("%w: close handle: %w", ErrEnvironment, err)
	}
	return nil
}

// IsOpen reports whether the handle currently owns an OS handle
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// PID returns the process ID, zero when closed
func (h *Handle) PID() ProcessID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record.PID
}

// Record returns the record captured when the process was opened
func (h *Handle) Record() (ProcessRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return ProcessRecord{}, ErrProcessNotOpen
	}
	return h.record, nil
}

// Clone returns a new Handle owning a duplicate of the OS handle. Cloning a
// closed handle returns a closed handle.
func (h *Handle) Clone() (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := NewHandle(h.platform)
	if !h.open {
		return c, nil
	}

	dup, err := h.platform.DuplicateHandle(h.handle)
	if err != nil {
		return nil, fmt.Errorf("%w: duplicate handle of process %d: %w", ErrEnvironment, h.record.PID, err)
	}

	c.setOpen(dup, h.record)
	return c, nil
}

// Modules lists the modules loaded into the target
func (h *Handle) Modules() ([]ModuleRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.modulesLocked()
}

func (h *Handle) modulesLocked() ([]ModuleRecord, error) {
	if !h.open {
		return nil, ErrProcessNotOpen
	}

	mods, err := h.platform.ListModules(h.record.PID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: list modules of process %d: %w", ErrEnvironment, h.record.PID, err)
	}
	return mods, nil
}

// BaseAddress returns the load address of the target's main module
func (h *Handle) BaseAddress() (ProcessMemoryAddress, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moduleBaseAddressLocked(h.record.Name)
}

// ModuleBaseAddress returns the load address of the first module named name
func (h *Handle) ModuleBaseAddress(name string) (ProcessMemoryAddress, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moduleBaseAddressLocked(name)
}

func (h *Handle) moduleBaseAddressLocked(name string) (ProcessMemoryAddress, error) {
	mods, err := h.modulesLocked()
	if err != nil {
		return 0, err
	}
	for _, m := range mods {
		if m.Name == name {
			return m.BaseAddress, nil
		}
	}
	return 0, fmt.Errorf("%w: module %q in process %d", ErrNotFound, name, h.record.PID)
}

func bitness(is64 bool) string {
	if is64 {
		return "64-bit"
	}
	return "32-bit"
}
