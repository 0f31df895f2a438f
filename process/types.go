package process

// ProcessID represents a unique identifier for a process
type ProcessID int

// ProcessRecord contains basic information about a process
type ProcessRecord struct {
	Name    string    // Executable file name, used to find the main module
	PID     ProcessID // Process ID
	PPID    ProcessID // Parent Process ID
	Threads int       // Number of threads
	Exe     string    // Path to the executable, empty when unknown
}

// ModuleRecord describes an image mapped into a process
type ModuleRecord struct {
	Name        string               // File name of the module
	Path        string               // Full path, empty when unknown
	BaseAddress ProcessMemoryAddress // Load address of the first mapping
	Size        uint                 // Span from base to the end of the last mapping
}
