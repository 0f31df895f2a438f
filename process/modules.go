package process

import (
	"path"
	"sort"

	"procmem/process/memory_map"
)

// ModulesFromMemoryMap groups file-backed regions by path. A module's base
// is its lowest mapping and its size spans to the end of its highest one.
// Modules are returned in order of base address.
func ModulesFromMemoryMap(items []memory_map.MemoryMapItem) []ModuleRecord {
	var out []ModuleRecord
	index := map[string]int{}

	for _, item := range items {
		if !item.IsFileBacked() {
			continue
		}

		i, ok := index[item.Path]
		if !ok {
			index[item.Path] = len(out)
			out = append(out, ModuleRecord{
				Name:        path.Base(item.Path),
				Path:        item.Path,
				BaseAddress: ProcessMemoryAddress(item.Address),
				Size:        item.Size,
			})
			continue
		}

		m := &out[i]
		start := uint64(m.BaseAddress)
		end := start + uint64(m.Size)
		if item.Address < start {
			start = item.Address
		}
		if item.End() > end {
			end = item.End()
		}
		m.BaseAddress = ProcessMemoryAddress(start)
		m.Size = uint(end - start)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].BaseAddress < out[j].BaseAddress })
	return out
}
