// Package process provides a handle to another running process on the same
// host: discovery, privilege-aware open, raw and typed memory I/O and
// pointer-chain resolution. OS specifics live behind the Platform interface.
package process

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package matches exactly one
// of them through errors.Is. Buffer range misuse also matches
// bytebuf.ErrIndexOutOfRange.
var (
	// ErrIllegalState is returned when an operation is called in the wrong state
	ErrIllegalState = errors.New("illegal state")

	// ErrNotFound is returned when a process id or module name is absent from enumeration
	ErrNotFound = errors.New("not found")

	// ErrEnvironment is returned when the OS refuses to cooperate: enumeration,
	// privilege escalation or architecture checks failed
	ErrEnvironment = errors.New("environment error")

	// ErrOperationFailed is returned by the Safe* wrappers when the raw operation reported failure
	ErrOperationFailed = errors.New("operation failed")
)

var (
	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = fmt.Errorf("%w: process not open", ErrIllegalState)

	// ErrProcessAlreadyOpen is returned by Open on a handle that is already open
	ErrProcessAlreadyOpen = fmt.Errorf("%w: process already open", ErrIllegalState)

	// ErrNullAddress is returned when raw I/O is attempted at address zero
	ErrNullAddress = fmt.Errorf("%w: null address", ErrIllegalState)

	// ErrArchitectureMismatch is returned when the target's pointer width differs from ours
	ErrArchitectureMismatch = fmt.Errorf("%w: architecture mismatch", ErrEnvironment)

	// ErrAccessDenied is returned by platforms when the OS denies an open
	ErrAccessDenied = fmt.Errorf("%w: access denied", ErrEnvironment)
)
