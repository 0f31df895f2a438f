package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"procmem/app"
	"procmem/coloransi"
	"procmem/config"
	"procmem/endian"
	"procmem/process"
	"procmem/process/memory_map"
	"procmem/process_blob"

	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

const defaultConfigFile = ".procmem"

// options is shared by every subcommand. Flags left unset on the command
// line fall back to the config file.
type options struct {
	pid        int
	permission process.Permission
	order      endian.Order
	interval   time.Duration
	color      string
	configPath string
	dumpDir    string

	fs       afero.Fs
	out      io.Writer
	log      *logger.Logger
	platform process.Platform
}

func newOptions() *options {
	return &options{
		permission: process.PermissionRead,
		order:      endian.Native,
		interval:   app.DefaultInterval,
		color:      "auto",
		fs:         afero.NewOsFs(),
		out:        os.Stdout,
		log:        logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.Black, "procmem")),
	}
}

func (o *options) bindPersistent(flags *pflag.FlagSet) {
	flags.IntVarP(&o.pid, "pid", "p", 0, "Process ID to open")
	flags.VarP(&o.permission, "permission", "P", "Access to request: read, write or all")
	flags.Var(&o.order, "order", "Byte order of typed values: native, big or little")
	flags.DurationVar(&o.interval, "interval", o.interval, "Poll interval of watch")
	flags.StringVar(&o.color, "color", o.color, "Colour output: auto, always or never")
	flags.StringVar(&o.configPath, "config", "", "key=value config file (default ~/"+defaultConfigFile+")")
	flags.StringVar(&o.dumpDir, "dump", "", "Inspect a saved dump directory instead of a live process")
}

// configKeys are the flags a config file may set
var configKeys = []string{"pid", "permission", "order", "interval", "color"}

// applyConfig sets every flag the user did not pass from the config file
func (o *options) applyConfig(flags *pflag.FlagSet) error {
	path := o.configPath
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = home + string(os.PathSeparator) + defaultConfigFile
	}

	var cfg *config.ConfigMap
	var err error
	if explicit {
		cfg, err = config.Load(o.fs, path)
	} else {
		cfg, err = config.LoadOrEmpty(o.fs, path)
	}
	if err != nil {
		return err
	}

	for _, key := range configKeys {
		if flags.Changed(key) || !cfg.HasKey(key) {
			continue
		}
		value, _ := cfg.Get(key)
		if err := flags.Set(key, value); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		o.log.Debugln("Config", key, "=", value)
	}
	return nil
}

// resolvePlatform picks the live host or a loaded dump. A dump also
// supplies the default pid.
func (o *options) resolvePlatform() error {
	if o.platform != nil {
		return nil
	}

	if o.dumpDir == "" {
		p, err := hostPlatform()
		if err != nil {
			return err
		}
		o.platform = p
		return nil
	}

	p, meta, err := process_blob.LoadDump(o.fs, o.dumpDir)
	if err != nil {
		return err
	}
	if o.pid == 0 {
		o.pid = int(meta.PID)
	}
	o.platform = p
	o.log.Infoln("Loaded dump of", meta.Name, "pid", meta.PID, "from", o.dumpDir)
	return nil
}

func (o *options) painter() coloransi.Painter {
	switch o.color {
	case "always":
		return coloransi.Painter{Enabled: true}
	case "never":
		return coloransi.Painter{}
	}
	if f, ok := o.out.(*os.File); ok {
		return coloransi.Painter{Enabled: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())}
	}
	return coloransi.Painter{}
}

// open opens the selected process. Commands that write widen a read-only
// --permission to all.
func (o *options) open(need process.Permission) (*process.Handle, error) {
	if o.pid == 0 {
		return nil, errors.New("--pid is required")
	}

	perm := o.permission
	if need != process.PermissionRead && perm == process.PermissionRead {
		perm = process.PermissionAll
	}

	h := process.NewHandle(o.platform)
	if err := h.Open(process.ProcessID(o.pid), perm); err != nil {
		return nil, err
	}
	return h, nil
}

// memoryMapper is implemented by platforms that expose region permissions
type memoryMapper interface {
	MemoryMap(pid process.ProcessID) ([]memory_map.MemoryMapItem, error)
}

func (o *options) memoryMap(h *process.Handle) ([]memory_map.MemoryMapItem, error) {
	mm, ok := o.platform.(memoryMapper)
	if !ok {
		return nil, errors.New("memory maps are not available on this platform")
	}
	return mm.MemoryMap(h.PID())
}

// parseLocation accepts an absolute address or module+offset, both in any
// base strconv understands
func parseLocation(h *process.Handle, s string) (process.ProcessMemoryAddress, error) {
	// Module names may contain '+' themselves (libstdc++.so.6)
	if i := strings.LastIndex(s, "+"); i > 0 {
		name, off := s[:i], s[i+1:]
		if _, err := strconv.ParseUint(name, 0, 64); err != nil {
			base, err := h.ModuleBaseAddress(name)
			if err != nil {
				return 0, err
			}
			offset, err := strconv.ParseUint(off, 0, 64)
			if err != nil {
				return 0, fmt.Errorf("bad offset %q: %w", off, err)
			}
			return base + process.ProcessMemoryAddress(offset), nil
		}
	}

	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return process.ProcessMemoryAddress(v), nil
}

func parseOffsets(args []string) ([]process.ProcessMemoryOffset, error) {
	offsets := make([]process.ProcessMemoryOffset, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad offset %q: %w", arg, err)
		}
		offsets = append(offsets, process.ProcessMemoryOffset(v))
	}
	return offsets, nil
}
