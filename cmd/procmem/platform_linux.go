//go:build linux

package main

import (
	"procmem/process"
	"procmem/process_linux"
)

func hostPlatform() (process.Platform, error) {
	return process_linux.NewPlatform(), nil
}
