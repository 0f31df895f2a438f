package process

import (
	"fmt"
	"regexp"
	"sort"
)

// Processes is a snapshot returned by Scan with lookup helpers
type Processes []ProcessRecord

// FindByPID returns the record for pid or ErrNotFound
func (ps Processes) FindByPID(pid ProcessID) (ProcessRecord, error) {
	for _, p := range ps {
		if p.PID == pid {
			return p, nil
		}
	}
	return ProcessRecord{}, fmt.Errorf("%w: process %d", ErrNotFound, pid)
}

// FindByName finds processes by their name (exact match)
func (ps Processes) FindByName(name string) Processes {
	var out Processes
	for _, p := range ps {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out
}

// FindByPattern finds processes whose name matches a regular expression
func (ps Processes) FindByPattern(pattern string) (Processes, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	var out Processes
	for _, p := range ps {
		if re.MatchString(p.Name) {
			out = append(out, p)
		}
	}
	return out, nil
}

// OneByName returns the lowest pid whose name equals name
func (ps Processes) OneByName(name string) (ProcessRecord, error) {
	matches := ps.FindByName(name)
	if len(matches) == 0 {
		return ProcessRecord{}, fmt.Errorf("%w: no process named %q", ErrNotFound, name)
	}
	matches.SortByPID()
	return matches[0], nil
}

// Children finds all direct children of parent
func (ps Processes) Children(parent ProcessID) Processes {
	var out Processes
	for _, p := range ps {
		if p.PPID == parent && p.PID != parent {
			out = append(out, p)
		}
	}
	return out
}

// Descendants finds children, grandchildren and so on, breadth first
func (ps Processes) Descendants(root ProcessID) Processes {
	var out Processes
	seen := map[ProcessID]bool{root: true}
	queue := []ProcessID{root}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, c := range ps.Children(next) {
			if seen[c.PID] {
				continue
			}
			seen[c.PID] = true
			out = append(out, c)
			queue = append(queue, c.PID)
		}
	}
	return out
}

// SortByPID orders the snapshot by ascending pid in place
func (ps Processes) SortByPID() {
	sort.Slice(ps, func(i, j int) bool { return ps[i].PID < ps[j].PID })
}
