package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"procmem/process"
	"procmem/process/memory_map"

	"github.com/spf13/afero"
)

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"

	// DefaultMaxRegionSize is the largest region SaveDump copies
	DefaultMaxRegionSize = 100 * 1024 * 1024
)

// Metadata describes the process a dump was taken from
type Metadata struct {
	PID         process.ProcessID `json:"pid"`
	PPID        process.ProcessID `json:"ppid"`
	Name        string            `json:"name"`
	Exe         string            `json:"exe,omitempty"`
	PointerSize int               `json:"pointer_size"`
}

// DumpStats counts what SaveDump did with each region
type DumpStats struct {
	Saved       int
	NotReadable int
	TooLarge    int
	ReadErrors  int
}

func blobName(item memory_map.MemoryMapItem) string {
	return fmt.Sprintf("blob_0x%x_%d.bin", item.Address, item.Size)
}

// SaveDump writes the readable regions of an open handle into dir: the
// metadata, the memory map and one blob file per region. Regions that fail
// to read are counted and skipped.
func SaveDump(fs afero.Fs, dir string, h *process.Handle, regions []memory_map.MemoryMapItem, maxRegionSize uint) (DumpStats, error) {
	var stats DumpStats

	record, err := h.Record()
	if err != nil {
		return stats, err
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return stats, fmt.Errorf("failed to create directory: %w", err)
	}

	metadata := Metadata{
		PID:         record.PID,
		PPID:        record.PPID,
		Name:        record.Name,
		Exe:         record.Exe,
		PointerSize: int(unsafe.Sizeof(uintptr(0))), // Open guarantees the target matches us
	}
	if err := writeJSON(fs, filepath.Join(dir, metadataFile), metadata); err != nil {
		return stats, err
	}

	var saved []memory_map.MemoryMapItem
	for _, region := range regions {
		if !region.IsReadable() {
			stats.NotReadable++
			continue
		}
		if region.Size > maxRegionSize {
			stats.TooLarge++
			continue
		}

		buf, err := h.SafeReadBuffer(process.ProcessMemoryAddress(region.Address), int(region.Size))
		if err != nil {
			if !errors.Is(err, process.ErrOperationFailed) {
				return stats, err
			}
			stats.ReadErrors++
			continue
		}

		if err := afero.WriteFile(fs, filepath.Join(dir, blobName(region)), buf.Data(), 0644); err != nil {
			return stats, fmt.Errorf("failed to write memory file for region at %x: %w", region.Address, err)
		}
		saved = append(saved, region)
		stats.Saved++
	}

	if err := writeJSON(fs, filepath.Join(dir, memoryMapFile), saved); err != nil {
		return stats, err
	}
	return stats, nil
}

func writeJSON(fs afero.Fs, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadDump builds a Platform holding the single process saved in dir. Its
// modules are derived from the file-backed regions of the saved map.
func LoadDump(fs afero.Fs, dir string) (*Platform, Metadata, error) {
	var metadata Metadata

	data, err := afero.ReadFile(fs, filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, metadata, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	data, err = afero.ReadFile(fs, filepath.Join(dir, memoryMapFile))
	if err != nil {
		return nil, metadata, fmt.Errorf("failed to read memory map: %w", err)
	}
	var regions []memory_map.MemoryMapItem
	if err := json.Unmarshal(data, &regions); err != nil {
		return nil, metadata, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.Sort(regions)

	p := New()
	p.AddProcess(process.ProcessRecord{
		Name:    metadata.Name,
		PID:     metadata.PID,
		PPID:    metadata.PPID,
		Threads: 1,
		Exe:     metadata.Exe,
	})
	if metadata.PointerSize != 0 {
		p.SetIs64Bit(metadata.PID, metadata.PointerSize == 8)
	}

	if err := p.SetMemoryMap(metadata.PID, regions); err != nil {
		return nil, metadata, err
	}

	for _, region := range regions {
		blob, err := afero.ReadFile(fs, filepath.Join(dir, blobName(region)))
		if errors.Is(err, os.ErrNotExist) {
			// Blob not saved (e.g. too large or not readable)
			continue
		}
		if err != nil {
			return nil, metadata, fmt.Errorf("failed to read blob for region at %x: %w", region.Address, err)
		}
		if err := p.Map(metadata.PID, process.ProcessMemoryAddress(region.Address), blob); err != nil {
			return nil, metadata, err
		}
	}

	for _, m := range process.ModulesFromMemoryMap(regions) {
		if err := p.AddModule(metadata.PID, m); err != nil {
			return nil, metadata, err
		}
	}

	return p, metadata, nil
}
