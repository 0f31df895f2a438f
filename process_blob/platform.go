// Package process_blob simulates processes entirely in memory. It implements
// process.Platform over byte regions so a Handle can be driven without a real
// target: by tests, and by the CLI when inspecting a saved dump.
package process_blob

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"
)

// Access masks understood by the simulated platform
const (
	MaskRead   uint32 = 0x0010
	MaskWrite  uint32 = 0x0020
	MaskAll    uint32 = MaskRead | MaskWrite
	MaskAdjust uint32 = 0x40000
)

var (
	// ErrAddressNotMapped is returned when a read or write starts outside every region
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrBadHandle is returned for handles this platform never issued or already closed
	ErrBadHandle = errors.New("bad handle")
)

type region struct {
	address process.ProcessMemoryAddress
	data    []byte
}

func (r *region) contains(addr process.ProcessMemoryAddress) bool {
	return addr >= r.address && uint64(addr-r.address) < uint64(len(r.data))
}

type target struct {
	record    process.ProcessRecord
	modules   []process.ModuleRecord
	regions   []*region // sorted by address
	memoryMap []memory_map.MemoryMapItem
	protected bool
	is64      bool
}

type openHandle struct {
	pid  process.ProcessID
	mask uint32
}

// Platform is an in-memory process.Platform
type Platform struct {
	mu sync.Mutex

	targets map[process.ProcessID]*target
	handles map[process.OSHandle]openHandle
	next    process.OSHandle

	listErr   error
	adjustErr error

	adjustCalls int
}

var _ process.Platform = (*Platform)(nil)

// New creates an empty simulated platform
func New() *Platform {
	return &Platform{
		targets: make(map[process.ProcessID]*target),
		handles: make(map[process.OSHandle]openHandle),
		next:    0x100,
	}
}

// AddProcess registers a process. Its bitness matches the caller's until SetIs64Bit is called.
func (p *Platform) AddProcess(record process.ProcessRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.targets[record.PID] = &target{
		record: record,
		is64:   unsafe.Sizeof(uintptr(0)) == 8,
	}
}

// AddModule registers a module of pid
func (p *Platform) AddModule(pid process.ProcessID, module process.ModuleRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	t.modules = append(t.modules, module)
	return nil
}

// Map places a copy of data at addr in pid's address space
func (p *Platform) Map(pid process.ProcessID, addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}

	r := &region{address: addr, data: append([]byte(nil), data...)}
	for _, existing := range t.regions {
		if existing.contains(addr) || r.contains(existing.address) {
			return fmt.Errorf("region at %s overlaps region at %s", addr, existing.address)
		}
	}
	t.regions = append(t.regions, r)
	sort.Slice(t.regions, func(i, j int) bool { return t.regions[i].address < t.regions[j].address })
	return nil
}

// SetMemoryMap records the map MemoryMap reports for pid
func (p *Platform) SetMemoryMap(pid process.ProcessID, items []memory_map.MemoryMapItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	t.memoryMap = append([]memory_map.MemoryMapItem(nil), items...)
	memory_map.Sort(t.memoryMap)
	return nil
}

// MemoryMap returns the map set with SetMemoryMap, or one anonymous rw-p
// entry per mapped region when none was set
func (p *Platform) MemoryMap(pid process.ProcessID) ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return nil, fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	if t.memoryMap != nil {
		return append([]memory_map.MemoryMapItem(nil), t.memoryMap...), nil
	}

	items := make([]memory_map.MemoryMapItem, 0, len(t.regions))
	for _, r := range t.regions {
		items = append(items, memory_map.MemoryMapItem{
			Address: uint64(r.address),
			Size:    uint(len(r.data)),
			Perms:   "rw-p",
		})
	}
	return items, nil
}

// Peek returns a copy of n bytes at addr without going through a handle
func (p *Platform) Peek(pid process.ProcessID, addr process.ProcessMemoryAddress, n int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return nil, fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	out := make([]byte, n)
	if got := t.copyOut(addr, out); got != n {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotMapped, addr.Add(process.ProcessMemoryOffset(got)))
	}
	return out, nil
}

// SetProtected makes every open of pid except with MaskAdjust fail with
// process.ErrAccessDenied until AdjustAccess is called on it
func (p *Platform) SetProtected(pid process.ProcessID, protected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[pid]; ok {
		t.protected = protected
	}
}

// IsProtected reports whether pid still denies direct opens
func (p *Platform) IsProtected(pid process.ProcessID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.targets[pid]
	return ok && t.protected
}

// SetIs64Bit overrides the pointer width reported for pid
func (p *Platform) SetIs64Bit(pid process.ProcessID, is64 bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.targets[pid]; ok {
		t.is64 = is64
	}
}

// FailListing makes ListProcesses return err. nil restores normal behaviour.
func (p *Platform) FailListing(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

// FailAdjust makes AdjustAccess return err. nil restores normal behaviour.
func (p *Platform) FailAdjust(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjustErr = err
}

// OpenHandles returns the number of handles issued and not yet closed
func (p *Platform) OpenHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// AdjustCalls returns how many times AdjustAccess ran
func (p *Platform) AdjustCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adjustCalls
}

func (p *Platform) ListProcesses() ([]process.ProcessRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listErr != nil {
		return nil, p.listErr
	}

	out := make([]process.ProcessRecord, 0, len(p.targets))
	for _, t := range p.targets {
		out = append(out, t.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (p *Platform) ListModules(pid process.ProcessID) ([]process.ModuleRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return nil, fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	return append([]process.ModuleRecord(nil), t.modules...), nil
}

func (p *Platform) AccessMask(perm process.Permission) uint32 {
	switch perm {
	case process.PermissionWrite:
		return MaskWrite
	case process.PermissionAll:
		return MaskAll
	}
	return MaskRead
}

func (p *Platform) OpenProcess(pid process.ProcessID, mask uint32) (process.OSHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.targets[pid]
	if !ok {
		return 0, fmt.Errorf("%w: process %d", process.ErrNotFound, pid)
	}
	if t.protected && mask != MaskAdjust {
		return 0, fmt.Errorf("%w: process %d is protected", process.ErrAccessDenied, pid)
	}

	return p.issue(openHandle{pid: pid, mask: mask}), nil
}

// issue assumes the mutex is held
func (p *Platform) issue(oh openHandle) process.OSHandle {
	p.next += 4
	p.handles[p.next] = oh
	return p.next
}

func (p *Platform) CloseHandle(h process.OSHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.handles[h]; !ok {
		return fmt.Errorf("%w: %#x", ErrBadHandle, uintptr(h))
	}
	delete(p.handles, h)
	return nil
}

func (p *Platform) AdjustMask() uint32 {
	return MaskAdjust
}

// AdjustAccess lifts the protection of the handle's process. Like a loosened
// access control list, the change outlives the handle.
func (p *Platform) AdjustAccess(h process.OSHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.adjustCalls++

	oh, ok := p.handles[h]
	if !ok {
		return fmt.Errorf("%w: %#x", ErrBadHandle, uintptr(h))
	}
	if oh.mask&MaskAdjust == 0 {
		return fmt.Errorf("%w: handle lacks adjust access", process.ErrAccessDenied)
	}
	if p.adjustErr != nil {
		return p.adjustErr
	}
	p.targets[oh.pid].protected = false
	return nil
}

func (p *Platform) Is64Bit(h process.OSHandle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	oh, ok := p.handles[h]
	if !ok {
		return false, fmt.Errorf("%w: %#x", ErrBadHandle, uintptr(h))
	}
	return p.targets[oh.pid].is64, nil
}

func (p *Platform) DuplicateHandle(h process.OSHandle) (process.OSHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	oh, ok := p.handles[h]
	if !ok {
		return 0, fmt.Errorf("%w: %#x", ErrBadHandle, uintptr(h))
	}
	return p.issue(oh), nil
}

// ReadMemory copies as many bytes as are contiguously mapped from addr
func (p *Platform) ReadMemory(h process.OSHandle, addr process.ProcessMemoryAddress, dst []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.targetFor(h, MaskRead)
	if err != nil {
		return 0, err
	}
	n := t.copyOut(addr, dst)
	if n < len(dst) {
		return n, fmt.Errorf("%w: %s", ErrAddressNotMapped, addr.Add(process.ProcessMemoryOffset(n)))
	}
	return n, nil
}

// WriteMemory copies as many bytes as are contiguously mapped at addr
func (p *Platform) WriteMemory(h process.OSHandle, addr process.ProcessMemoryAddress, src []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.targetFor(h, MaskWrite)
	if err != nil {
		return 0, err
	}
	n := t.copyIn(addr, src)
	if n < len(src) {
		return n, fmt.Errorf("%w: %s", ErrAddressNotMapped, addr.Add(process.ProcessMemoryOffset(n)))
	}
	return n, nil
}

// targetFor assumes the mutex is held
func (p *Platform) targetFor(h process.OSHandle, need uint32) (*target, error) {
	oh, ok := p.handles[h]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrBadHandle, uintptr(h))
	}
	if oh.mask&need == 0 {
		return nil, fmt.Errorf("%w: handle %#x lacks access %#x", process.ErrAccessDenied, uintptr(h), need)
	}
	return p.targets[oh.pid], nil
}

func (t *target) find(addr process.ProcessMemoryAddress) *region {
	i := sort.Search(len(t.regions), func(i int) bool {
		r := t.regions[i]
		return uint64(r.address)+uint64(len(r.data)) > uint64(addr)
	})
	if i < len(t.regions) && t.regions[i].contains(addr) {
		return t.regions[i]
	}
	return nil
}

// copyOut follows adjacent regions so a read may span them
func (t *target) copyOut(addr process.ProcessMemoryAddress, dst []byte) int {
	done := 0
	for done < len(dst) {
		at := addr.Add(process.ProcessMemoryOffset(done))
		r := t.find(at)
		if r == nil {
			break
		}
		done += copy(dst[done:], r.data[at-r.address:])
	}
	return done
}

func (t *target) copyIn(addr process.ProcessMemoryAddress, src []byte) int {
	done := 0
	for done < len(src) {
		at := addr.Add(process.ProcessMemoryOffset(done))
		r := t.find(at)
		if r == nil {
			break
		}
		done += copy(r.data[at-r.address:], src[done:])
	}
	return done
}
