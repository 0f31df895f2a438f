package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"procmem/bytebuf"
	"procmem/endian"
	"procmem/process"
	"procmem/process_blob"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	platform *process_blob.Platform
	fs       afero.Fs
}

func newFixture(t *testing.T) *fixture {
	p := process_blob.New()
	p.AddProcess(process.ProcessRecord{Name: "init", PID: 1, Threads: 1})
	p.AddProcess(process.ProcessRecord{Name: "game", PID: 42, PPID: 1, Threads: 8})

	data := bytebuf.New()
	require.NoError(t, bytebuf.PutAt(data, 0, uint32(1234)))            // 0x1000
	require.NoError(t, bytebuf.PutAt(data, 4, uint32(0)))               // 0x1004
	require.NoError(t, bytebuf.PutAt(data, 8, uint64(0x1000)))          // 0x1008, points at 0x1000
	require.NoError(t, p.Map(42, 0x1000, data.Data()))
	require.NoError(t, p.AddModule(42, process.ModuleRecord{Name: "game", Path: "/opt/game", BaseAddress: 0x1000, Size: 0x10}))

	return &fixture{platform: p, fs: afero.NewMemMapFs()}
}

// run executes procmem with args against the fixture and returns stdout
func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	o := newOptions()
	o.fs = f.fs
	o.out = &out
	if f.platform != nil {
		o.platform = f.platform
	}

	root := newRootCommandWith(o)
	root.SetArgs(append(args, "--color", "never"))
	root.SetOut(&out)
	err := root.Execute()
	return out.String(), err
}

func TestPs(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "ps")
	require.NoError(t, err)
	assert.Contains(t, out, "game")
	assert.Contains(t, out, "init")

	out, err = f.run(t, "ps", "^ga")
	require.NoError(t, err)
	assert.Contains(t, out, "game")
	assert.NotContains(t, out, "init")

	out, err = f.run(t, "ps", "--children", "--pid", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "game")
	assert.NotContains(t, out, "init")
}

func TestModules(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "modules", "--pid", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "0x1000")
	assert.Contains(t, out, "/opt/game")
}

func TestReadModuleNameWithPlus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.platform.AddModule(42, process.ModuleRecord{Name: "libstdc++.so.6", Path: "/usr/lib/libstdc++.so.6", BaseAddress: 0x1008, Size: 0x8}))

	out, err := f.run(t, "read", "--pid", "42", "-t", "u64", "libstdc++.so.6+0x0")
	require.NoError(t, err)
	assert.Equal(t, "4096\n", out)

	out, err = f.run(t, "read", "--pid", "42", "-t", "u32", "libstdc++.so.6+-8")
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestReadTyped(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "read", "--pid", "42", "--type", "u32", "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "1234\n", out)

	out, err = f.run(t, "read", "--pid", "42", "-t", "u32", "game+0")
	require.NoError(t, err)
	assert.Equal(t, "1234\n", out)

	_, err = f.run(t, "read", "--pid", "42", "-t", "u32", "0x9000")
	assert.ErrorIs(t, err, process.ErrOperationFailed)

	_, err = f.run(t, "read", "--pid", "42", "-t", "u32", "nomodule+4")
	assert.ErrorIs(t, err, process.ErrNotFound)
}

func TestReadHexDump(t *testing.T) {
	f := newFixture(t)
	out, err := f.run(t, "read", "--pid", "42", "0x1000", "16")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimLeft(out, "0"), "1000  "), out)
	assert.Contains(t, out, "0x1000", "the pointer at 0x1008 is annotated")
}

func TestWrite(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "write", "--pid", "42", "--type", "u16", "--order", "big", "0x1004", "0x0102")
	require.NoError(t, err)

	got, err := f.platform.Peek(42, 0x1004, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)

	_, err = f.run(t, "write", "--pid", "42", "-t", "bytes", "0x1004", "aabb")
	require.NoError(t, err)
	got, _ = f.platform.Peek(42, 0x1004, 2)
	assert.Equal(t, []byte{0xAA, 0xBB}, got)

	_, err = f.run(t, "write", "--pid", "42", "-t", "u8", "0x1004", "300")
	assert.Error(t, err)
}

func TestFollow(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "follow", "--pid", "42", "0x1000", "8")
	require.NoError(t, err)
	assert.Equal(t, "0x1000\n", out)

	out, err = f.run(t, "follow", "--pid", "42", "-t", "u32", "0x1000", "8")
	require.NoError(t, err)
	assert.Equal(t, "0x1000 1234\n", out)

	out, err = f.run(t, "follow", "--pid", "42", "0x2000")
	require.NoError(t, err)
	assert.Equal(t, "0x2000\n", out, "an empty chain returns the base")

	_, err = f.run(t, "follow", "--pid", "42", "0x1000", "0x100")
	assert.ErrorIs(t, err, process.ErrOperationFailed)
}

func TestPidRequired(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "read", "0x1000")
	assert.ErrorContains(t, err, "--pid is required")
}

func TestConfigSuppliesDefaults(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/etc/procmem", []byte("pid=42\norder=big\n"), 0644))

	out, err := f.run(t, "--config", "/etc/procmem", "read", "-t", "u16", "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "53764\n", out, "1234 little endian read back big endian")

	out, err = f.run(t, "--config", "/etc/procmem", "--order", "native", "read", "-t", "u32", "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "1234\n", out, "flags win over the config file")

	_, err = f.run(t, "--config", "/etc/missing", "ps")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(f.fs, "/etc/bad", []byte("pid=\n"), 0644))
	_, err = f.run(t, "--config", "/etc/bad", "ps")
	assert.Error(t, err)
}

func TestDumpRoundTrip(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "dump", "--pid", "42", "/dumps/game")
	require.NoError(t, err)

	f.platform = nil
	out, err := f.run(t, "--dump", "/dumps/game", "read", "-t", "u32", "0x1000")
	require.NoError(t, err)
	assert.Equal(t, "1234\n", out)
}

func TestWatcherPrintsChanges(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	o := newOptions()
	o.out = &out
	o.order = endian.Native

	h := process.NewHandle(f.platform)
	require.NoError(t, h.Open(42, process.PermissionAll))
	defer h.Close()

	c, err := lookupCodec("u32")
	require.NoError(t, err)
	w := &watcher{h: h, addr: 0x1000, codec: c, o: o}

	ctx := context.Background()
	require.NoError(t, w.Main(ctx))
	require.NoError(t, w.Main(ctx))
	require.NoError(t, process.SafeWrite(h, 0x1000, uint32(5)))
	require.NoError(t, w.Main(ctx))

	assert.Equal(t, "0x1000 1234\n0x1000 5\n", out.String())
}
