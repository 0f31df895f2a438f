//go:build windows

package main

import (
	"procmem/process"
	"procmem/process_windows"
)

func hostPlatform() (process.Platform, error) {
	return process_windows.NewPlatform(), nil
}
