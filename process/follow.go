package process

import (
	"fmt"
	"unsafe"
)

// Dereferencer reads the machine word stored at an address and returns it as
// the next address
type Dereferencer interface {
	Dereference(addr ProcessMemoryAddress) (ProcessMemoryAddress, error)
}

// DereferenceFunc adapts an ordinary function to a Dereferencer
type DereferenceFunc func(addr ProcessMemoryAddress) (ProcessMemoryAddress, error)

func (f DereferenceFunc) Dereference(addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	return f(addr)
}

// Follow resolves a pointer chain. Starting at base, each offset is added to
// the current address and the word stored there becomes the new address.
// Offsets are applied first to last. An empty chain returns base unchanged.
func Follow(d Dereferencer, base ProcessMemoryAddress, offsets ...ProcessMemoryOffset) (ProcessMemoryAddress, error) {
	addr := base
	for i, off := range offsets {
		at := addr.Add(off)
		next, err := d.Dereference(at)
		if err != nil {
			return 0, fmt.Errorf("follow step %d at %s: %w", i, at, err)
		}
		addr = next
	}
	return addr, nil
}

// Local dereferences addresses in our own address space. An invalid address
// faults exactly like any other wild pointer would.
var Local Dereferencer = DereferenceFunc(func(addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	return ProcessMemoryAddress(*(*uintptr)(unsafe.Pointer(uintptr(addr)))), nil
})

// FollowLocal resolves a pointer chain inside the calling process
func FollowLocal(base ProcessMemoryAddress, offsets ...ProcessMemoryOffset) ProcessMemoryAddress {
	// Local never returns an error.
	addr, _ := Follow(Local, base, offsets...)
	return addr
}
