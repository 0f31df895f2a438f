package process

import (
	"fmt"
	"strings"
)

// Permission is the access requested when opening a process. Platforms map it
// to an OS access mask; it is not enforced again here.
type Permission int

const (
	PermissionRead Permission = iota
	PermissionWrite
	PermissionAll
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionAll:
		return "all"
	}
	return fmt.Sprintf("Permission(%d)", int(p))
}

// Set implements pflag.Value
func (p *Permission) Set(s string) error {
	v, err := ParsePermission(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements pflag.Value
func (p *Permission) Type() string {
	return "permission"
}

// ParsePermission accepts "read", "write" and "all"
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r":
		return PermissionRead, nil
	case "write", "w":
		return PermissionWrite, nil
	case "all", "rw":
		return PermissionAll, nil
	}
	return PermissionRead, fmt.Errorf("unknown permission %q", s)
}
