//go:build !linux && !windows

package main

import (
	"fmt"
	"runtime"

	"procmem/process"
)

func hostPlatform() (process.Platform, error) {
	return nil, fmt.Errorf("live processes are not supported on %s, use --dump", runtime.GOOS)
}
