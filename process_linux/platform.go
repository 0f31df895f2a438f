//go:build linux

// Package process_linux implements process.Platform on top of procfs and the
// process_vm_readv/process_vm_writev syscalls.
package process_linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/spf13/afero"
)

const (
	accessRead uint32 = 1 << iota
	accessWrite
	accessAdjust
)

type handleKind int

const (
	kindMem   handleKind = iota // fd of /proc/<pid>/mem
	kindPidfd                   // pidfd, only used to adjust access
)

type trackedHandle struct {
	pid  process.ProcessID
	kind handleKind
	mask uint32
}

// Platform is the Linux process.Platform. Process metadata is read through an
// afero.Fs rooted at procRoot; handles are real file descriptors.
type Platform struct {
	fs       afero.Fs
	procRoot string

	mu      sync.Mutex
	handles map[process.OSHandle]trackedHandle
}

var _ process.Platform = (*Platform)(nil)

// NewPlatform reads the host's /proc
func NewPlatform() *Platform {
	return NewPlatformFs(afero.NewOsFs(), "/proc")
}

// NewPlatformFs reads process metadata from procRoot inside fs
func NewPlatformFs(fs afero.Fs, procRoot string) *Platform {
	return &Platform{
		fs:       fs,
		procRoot: procRoot,
		handles:  make(map[process.OSHandle]trackedHandle),
	}
}

func (p *Platform) procPath(pid process.ProcessID, elem ...string) string {
	return filepath.Join(append([]string{p.procRoot, strconv.Itoa(int(pid))}, elem...)...)
}

// ListProcesses reads every numeric directory of procRoot. Processes that
// exit while being read are skipped.
func (p *Platform) ListProcesses() ([]process.ProcessRecord, error) {
	entries, err := afero.ReadDir(p.fs, p.procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.procRoot, err)
	}

	var results []process.ProcessRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			// Not a PID directory
			continue
		}

		record, err := p.readProcessRecord(process.ProcessID(pid))
		if err != nil {
			// Process may have terminated while we were reading
			continue
		}
		results = append(results, record)
	}

	return results, nil
}

// MemoryMap returns the parsed maps of pid, sorted by address
func (p *Platform) MemoryMap(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	items, err := memory_map.ReadMemoryMap(p.fs, p.procPath(pid, "maps"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map of %d: %w", pid, err)
	}
	return items, nil
}

// ListModules derives modules from the file-backed mappings of pid
func (p *Platform) ListModules(pid process.ProcessID) ([]process.ModuleRecord, error) {
	items, err := p.MemoryMap(pid)
	if err != nil {
		return nil, err
	}
	return process.ModulesFromMemoryMap(items), nil
}

func (p *Platform) AccessMask(perm process.Permission) uint32 {
	switch perm {
	case process.PermissionWrite:
		return accessWrite
	case process.PermissionAll:
		return accessRead | accessWrite
	}
	return accessRead
}

func (p *Platform) AdjustMask() uint32 {
	return accessAdjust
}

func (p *Platform) track(h process.OSHandle, th trackedHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles[h] = th
}

func (p *Platform) lookup(h process.OSHandle) (trackedHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	th, ok := p.handles[h]
	if !ok {
		return th, fmt.Errorf("unknown handle %d", h)
	}
	return th, nil
}
