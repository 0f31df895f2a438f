// Package endian converts fixed-width numeric values between the host byte
// order and a declared byte order.
package endian

import (
	"fmt"
	"math/bits"
	"strings"
	"unsafe"

	"golang.org/x/exp/constraints"
	"golang.org/x/sys/cpu"
)

// Number is every fixed-width integer and floating point type
type Number interface {
	constraints.Integer | constraints.Float
}

// Order is a declared byte order
type Order int

const (
	Native Order = iota // Whatever the running machine uses
	Big                 // Most significant byte first
	Little              // Least significant byte first
)

// HostOrder is the concrete order Native stands for on this machine
var HostOrder = func() Order {
	if cpu.IsBigEndian {
		return Big
	}
	return Little
}()

func (o Order) String() string {
	switch o {
	case Native:
		return "native"
	case Big:
		return "big"
	case Little:
		return "little"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// Set implements pflag.Value
func (o *Order) Set(s string) error {
	v, err := ParseOrder(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Type implements pflag.Value
func (o *Order) Type() string {
	return "order"
}

// Resolve returns Big or Little, replacing Native with HostOrder
func (o Order) Resolve() Order {
	if o == Native {
		return HostOrder
	}
	return o
}

// ParseOrder accepts "native", "big"/"be" and "little"/"le", case-insensitive
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "":
		return Native, nil
	case "big", "be":
		return Big, nil
	case "little", "le":
		return Little, nil
	}
	return Native, fmt.Errorf("unknown byte order %q", s)
}

// NativeToBig returns the big-endian representation of a native value
func NativeToBig[T Number](v T) T {
	if HostOrder == Big {
		return v
	}
	return swap(v)
}

// NativeToLittle returns the little-endian representation of a native value
func NativeToLittle[T Number](v T) T {
	if HostOrder == Little {
		return v
	}
	return swap(v)
}

// NativeToOrder returns the representation of a native value in the given order
func NativeToOrder[T Number](v T, o Order) T {
	switch o {
	case Big:
		return NativeToBig(v)
	case Little:
		return NativeToLittle(v)
	}
	return v
}

// BigToNative returns the native representation of a big-endian value
func BigToNative[T Number](v T) T {
	// Swapping is its own inverse.
	return NativeToBig(v)
}

// LittleToNative returns the native representation of a little-endian value
func LittleToNative[T Number](v T) T {
	return NativeToLittle(v)
}

// OrderToNative returns the native representation of a value stored in the given order
func OrderToNative[T Number](v T, o Order) T {
	switch o {
	case Big:
		return BigToNative(v)
	case Little:
		return LittleToNative(v)
	}
	return v
}

// swap reverses the bytes of v by viewing its bit pattern as an unsigned
// integer of the same width. Works for floats as well as integers.
func swap[T Number](v T) T {
	p := unsafe.Pointer(&v)
	switch unsafe.Sizeof(v) {
	case 2:
		*(*uint16)(p) = bits.ReverseBytes16(*(*uint16)(p))
	case 4:
		*(*uint32)(p) = bits.ReverseBytes32(*(*uint32)(p))
	case 8:
		*(*uint64)(p) = bits.ReverseBytes64(*(*uint64)(p))
	}
	return v
}
