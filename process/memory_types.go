package process

import (
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process. It is
// only meaningful relative to one address space.
type ProcessMemoryAddress uintptr

func (pma ProcessMemoryAddress) String() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemoryOffset is a signed displacement applied to an address
type ProcessMemoryOffset int

// Add applies a signed offset. Arithmetic wraps like the machine's.
func (pma ProcessMemoryAddress) Add(off ProcessMemoryOffset) ProcessMemoryAddress {
	return pma + ProcessMemoryAddress(off)
}
