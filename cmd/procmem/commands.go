package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"unsafe"

	"procmem/app"
	"procmem/bytebuf"
	"procmem/coloransi"
	"procmem/hexdump"
	"procmem/process"
	"procmem/process_blob"
	"procmem/table"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newOptions())
}

func newRootCommandWith(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "procmem",
		Short:         "Inspect and edit the memory of another process.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := o.applyConfig(cmd.Flags()); err != nil {
				return err
			}
			return o.resolvePlatform()
		},
	}
	o.bindPersistent(root.PersistentFlags())

	root.AddCommand(
		newPsCommand(o),
		newModulesCommand(o),
		newReadCommand(o),
		newWriteCommand(o),
		newFollowCommand(o),
		newWatchCommand(o),
		newDumpCommand(o),
	)
	return root
}

func newPsCommand(o *options) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "ps [pattern]",
		Short: "List processes, optionally those whose name matches a regular expression.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := process.Scan(o.platform)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if procs, err = procs.FindByPattern(args[0]); err != nil {
					return err
				}
			}
			if tree && o.pid != 0 {
				procs = procs.Descendants(process.ProcessID(o.pid))
			}
			procs.SortByPID()

			p := o.painter()
			t := table.New(
				table.Column{Header: "PID", AlignRight: true},
				table.Column{Header: "PPID", AlignRight: true},
				table.Column{Header: "THREADS", AlignRight: true},
				table.Column{Header: "NAME", Format: func(s string) string { return p.Foreground(coloransi.ColorLimeGreen, s) }},
				table.Column{Header: "EXE"},
			)
			for _, rec := range procs {
				t.AddRow(
					strconv.Itoa(int(rec.PID)),
					strconv.Itoa(int(rec.PPID)),
					strconv.Itoa(rec.Threads),
					rec.Name,
					rec.Exe,
				)
			}
			return t.Render(o.out)
		},
	}
	cmd.Flags().BoolVar(&tree, "children", false, "Only list descendants of --pid")
	return cmd
}

func newModulesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules loaded into a process.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := o.open(process.PermissionRead)
			if err != nil {
				return err
			}
			defer h.Close()

			mods, err := h.Modules()
			if err != nil {
				return err
			}

			t := table.New(
				table.Column{Header: "BASE", AlignRight: true},
				table.Column{Header: "SIZE", AlignRight: true},
				table.Column{Header: "NAME"},
				table.Column{Header: "PATH"},
			)
			for _, m := range mods {
				t.AddRow(m.BaseAddress.String(), fmt.Sprintf("0x%X", m.Size), m.Name, m.Path)
			}
			return t.Render(o.out)
		},
	}
}

func newReadCommand(o *options) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "read <address|module+offset> [length]",
		Short: "Read memory as a hex dump, or as one typed value with --type.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := o.open(process.PermissionRead)
			if err != nil {
				return err
			}
			defer h.Close()

			addr, err := parseLocation(h, args[0])
			if err != nil {
				return err
			}

			if typeName != "bytes" {
				value, err := readValue(h, addr, typeName, o)
				if err != nil {
					return err
				}
				fmt.Fprintln(o.out, value)
				return nil
			}

			length := 64
			if len(args) == 2 {
				if length, err = strconv.Atoi(args[1]); err != nil || length < 0 {
					return fmt.Errorf("bad length %q", args[1])
				}
			}

			// Native order: the dump decodes pointers, which are always native
			buf := bytebuf.New()
			if err := h.SafeReadMemory(addr, buf, 0, length); err != nil {
				return err
			}
			fmt.Fprint(o.out, hexdump.DumpBuffer(buf, o.dumpOptions(h, addr)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "bytes", "Value type: "+typeNames())
	return cmd
}

// readValue reads one typed value in the configured byte order
func readValue(h *process.Handle, addr process.ProcessMemoryAddress, typeName string, o *options) (string, error) {
	c, err := lookupCodec(typeName)
	if err != nil {
		return "", err
	}
	buf := bytebuf.NewWithOrder(o.order)
	if err := h.SafeReadMemory(addr, buf, 0, c.size); err != nil {
		return "", err
	}
	return c.format(buf)
}

func (o *options) dumpOptions(h *process.Handle, addr process.ProcessMemoryAddress) hexdump.Options {
	opts := hexdump.DefaultOptions()
	opts.Start = uint64(addr)
	opts.OffsetWidth = int(unsafe.Sizeof(uintptr(0))) * 2
	opts.Painter = o.painter()
	if regions, err := o.memoryMap(h); err == nil {
		opts.Regions = regions
		opts.PointerSize = int(unsafe.Sizeof(uintptr(0)))
	} else {
		o.log.Debugln("No pointer annotations:", err)
	}
	return opts
}

func newWriteCommand(o *options) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "write <address|module+offset> <value>",
		Short: "Write one typed value, or hex bytes with --type bytes.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := encodeValue(typeName, args[1], o.order)
			if err != nil {
				return err
			}

			h, err := o.open(process.PermissionWrite)
			if err != nil {
				return err
			}
			defer h.Close()

			addr, err := parseLocation(h, args[0])
			if err != nil {
				return err
			}
			if err := h.SafeWriteMemory(addr, buf, 0, buf.Size()); err != nil {
				return err
			}
			o.log.Infoln("Wrote", buf.Size(), "bytes at", addr.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "u32", "Value type: "+typeNames())
	return cmd
}

func newFollowCommand(o *options) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "follow <base|module+offset> [offset...]",
		Short: "Resolve a pointer chain: each offset is added, then the sum is dereferenced.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := o.open(process.PermissionRead)
			if err != nil {
				return err
			}
			defer h.Close()

			base, err := parseLocation(h, args[0])
			if err != nil {
				return err
			}
			offsets, err := parseOffsets(args[1:])
			if err != nil {
				return err
			}

			addr, err := h.Follow(base, offsets...)
			if err != nil {
				return err
			}
			if typeName == "" {
				fmt.Fprintln(o.out, addr.String())
				return nil
			}

			value, err := readValue(h, addr, typeName, o)
			if err != nil {
				return err
			}
			fmt.Fprintln(o.out, addr.String(), value)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Also read a value of this type at the result")
	return cmd
}

// watcher prints a value every time it changes
type watcher struct {
	h       *process.Handle
	addr    process.ProcessMemoryAddress
	codec   codec
	o       *options
	last    string
	started bool
}

func (w *watcher) Main(ctx context.Context) error {
	buf := bytebuf.NewWithOrder(w.o.order)
	ok, err := w.h.ReadMemory(w.addr, buf, 0, w.codec.size)
	if err != nil {
		return err
	}

	value := "unreadable"
	if ok {
		if value, err = w.codec.format(buf); err != nil {
			return err
		}
	}
	if w.started && value == w.last {
		return nil
	}
	w.started = true
	w.last = value
	fmt.Fprintln(w.o.out, w.addr.String(), value)
	return nil
}

func newWatchCommand(o *options) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "watch <address|module+offset>",
		Short: "Poll a typed value every --interval and print it when it changes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := lookupCodec(typeName)
			if err != nil {
				return err
			}

			h, err := o.open(process.PermissionRead)
			if err != nil {
				return err
			}
			defer h.Close()

			addr, err := parseLocation(h, args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			r := app.NewRunner(&watcher{h: h, addr: addr, codec: c, o: o}, o.interval)
			return r.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "u32", "Value type: "+typeNames())
	return cmd
}

func newDumpCommand(o *options) *cobra.Command {
	var maxRegionSize uint

	cmd := &cobra.Command{
		Use:   "dump <dir>",
		Short: "Save the readable regions of a process for later use with --dump.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := o.open(process.PermissionRead)
			if err != nil {
				return err
			}
			defer h.Close()

			regions, err := o.memoryMap(h)
			if err != nil {
				return err
			}

			stats, err := process_blob.SaveDump(o.fs, args[0], h, regions, maxRegionSize)
			if err != nil {
				return err
			}
			o.log.Infoln("Saved", stats.Saved, "regions to", args[0])
			if skipped := stats.NotReadable + stats.TooLarge + stats.ReadErrors; skipped > 0 {
				o.log.Warn("Skipped ", skipped, " regions: ", stats.NotReadable, " not readable, ",
					stats.TooLarge, " too large, ", stats.ReadErrors, " read errors")
			}
			if stats.Saved == 0 {
				return errors.New("nothing was saved")
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&maxRegionSize, "max-region-size", process_blob.DefaultMaxRegionSize, "Skip regions larger than this many bytes")
	return cmd
}
