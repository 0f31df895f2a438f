//go:build linux

package process_linux

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"procmem/process"

	"github.com/spf13/afero"
)

// readProcessRecord builds a record from /proc/<pid>/{comm,exe,status}
func (p *Platform) readProcessRecord(pid process.ProcessID) (process.ProcessRecord, error) {
	// Read process name from /proc/<pid>/comm
	nameBytes, err := afero.ReadFile(p.fs, p.procPath(pid, "comm"))
	if err != nil {
		return process.ProcessRecord{}, fmt.Errorf("failed to read process name: %w", err)
	}
	comm := strings.TrimSpace(string(nameBytes))

	// Some processes don't have an exe (e.g., kernel threads), and other
	// users' exe links are unreadable
	exe := p.readExe(pid)

	record := process.ProcessRecord{
		Name: comm,
		PID:  pid,
		Exe:  exe,
	}

	// comm is truncated to 15 bytes; the exe base name matches the module
	// name in the maps
	if exe != "" {
		record.Name = filepath.Base(exe)
	}

	statusBytes, err := afero.ReadFile(p.fs, p.procPath(pid, "status"))
	if err == nil {
		for _, line := range strings.Split(string(statusBytes), "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)

			switch strings.TrimSpace(key) {
			case "PPid":
				if v, err := strconv.Atoi(value); err == nil {
					record.PPID = process.ProcessID(v)
				}
			case "Threads":
				if v, err := strconv.Atoi(value); err == nil {
					record.Threads = v
				}
			}
		}
	}

	return record, nil
}

func (p *Platform) readExe(pid process.ProcessID) string {
	reader, ok := p.fs.(afero.LinkReader)
	if !ok {
		return ""
	}
	exe, err := reader.ReadlinkIfPossible(p.procPath(pid, "exe"))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(exe, " (deleted)")
}
