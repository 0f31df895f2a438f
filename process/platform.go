package process

// OSHandle is an opaque OS resource referring to an opened process: a file
// descriptor on Linux, a HANDLE on Windows.
type OSHandle uintptr

// ProcessEnumerator lists every process visible to the caller
type ProcessEnumerator interface {
	ListProcesses() ([]ProcessRecord, error)
}

// ModuleEnumerator lists the modules loaded into a process
type ModuleEnumerator interface {
	ListModules(pid ProcessID) ([]ModuleRecord, error)
}

// AccessOpener acquires and releases OS handles
type AccessOpener interface {
	// AccessMask maps a Permission to the platform's access request
	AccessMask(perm Permission) uint32

	// OpenProcess returns ErrAccessDenied (wrapped) when the OS refuses the request
	OpenProcess(pid ProcessID, mask uint32) (OSHandle, error)

	CloseHandle(h OSHandle) error
}

// AccessDescriptorAdjuster loosens the access control protecting a process.
// It is only used after a direct open was denied.
type AccessDescriptorAdjuster interface {
	// AdjustMask is the minimal access needed to call AdjustAccess
	AdjustMask() uint32

	AdjustAccess(h OSHandle) error
}

// ArchitectureProbe reports whether the process behind a handle uses 64-bit pointers
type ArchitectureProbe interface {
	Is64Bit(h OSHandle) (bool, error)
}

// HandleDuplicator creates an independent handle to the same process
type HandleDuplicator interface {
	DuplicateHandle(h OSHandle) (OSHandle, error)
}

// RawMemoryReader copies remote memory into dst and reports how many bytes
// were transferred. A short count is not an error.
type RawMemoryReader interface {
	ReadMemory(h OSHandle, addr ProcessMemoryAddress, dst []byte) (int, error)
}

// RawMemoryWriter copies src into remote memory and reports how many bytes were transferred
type RawMemoryWriter interface {
	WriteMemory(h OSHandle, addr ProcessMemoryAddress, src []byte) (int, error)
}

// Platform is everything a Handle needs from the host OS
type Platform interface {
	ProcessEnumerator
	ModuleEnumerator
	AccessOpener
	AccessDescriptorAdjuster
	ArchitectureProbe
	HandleDuplicator
	RawMemoryReader
	RawMemoryWriter
}
