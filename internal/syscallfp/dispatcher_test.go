package syscallfp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tappress/qemu-wasm/internal/config"
	"github.com/tappress/qemu-wasm/internal/elfcache"
	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/guestmem"
	"github.com/tappress/qemu-wasm/internal/image"
	"github.com/tappress/qemu-wasm/internal/procipc"
	"github.com/tappress/qemu-wasm/internal/sabfs"
)

func newTestDispatcher() (*Dispatcher, *guestmem.FlatPort, *image.Image) {
	cfg := config.Default()
	img := image.New()
	mem := guestmem.NewFlatPort(1 << 16)
	sab := sabfs.New(img, cfg.SABFSFdBase, cfg.ElfCacheFdBase)
	cache := elfcache.New(img, cfg.ElfCacheFdBase, cfg.MaxFiles, cfg.MaxFds, nil)

	slot := procipc.NewSlot()
	sup := procipc.NewSimSupervisor(int64(cfg.PIDBase))
	done := make(chan struct{})
	go procipc.Serve(slot, sup, done)
	proc := procipc.NewWorker(slot, int64(cfg.PIDBase), cfg.MaxProcs, cfg.IPCTimeout, cfg.ExitGrace)

	d := NewDispatcher(cfg, mem, sab, cache, proc)
	return d, mem, img
}

func writeCString(mem *guestmem.FlatPort, va uint64, s string) {
	copy(mem.Mem[va:], s)
	mem.Mem[va+uint64(len(s))] = 0
}

// TestOpenReadCloseUnderPrefix drives an open/read/close sequence
// end to end through the dispatcher.
func TestOpenReadCloseUnderPrefix(t *testing.T) {
	d, mem, img := newTestDispatcher()

	fd, err := img.Open("/pack/etc/hello", 0102, 0644)
	require.NoError(t, err)
	_, err = img.Pwrite(fd, []byte("hi\n"), 0)
	require.NoError(t, err)
	require.NoError(t, img.Close(fd))

	const pathVA = 0x1000
	writeCString(mem, pathVA, "/mnt/wasi1/etc/hello")

	atFdcwd := int64(ATFDCWD)
	cpu := &CPUState{LongMode: true, RAX: SysOpenat, RDI: uint64(atFdcwd), RSI: pathVA, RDX: 0, R10: 0, RIP: 0x400000}
	handled := d.Intercept(cpu, 2)
	require.True(t, handled)
	assert.GreaterOrEqual(t, int64(cpu.RAX), int64(10000))
	assert.Less(t, int64(cpu.RAX), int64(30000))
	assert.Equal(t, uint64(0x400002), cpu.RIP)
	assert.Equal(t, cpu.RIP, cpu.RCX)

	openedFd := cpu.RAX

	const bufVA = 0x2000
	cpu2 := &CPUState{LongMode: true, RAX: SysRead, RDI: openedFd, RSI: bufVA, RDX: 16, RIP: 0x400002}
	handled = d.Intercept(cpu2, 2)
	require.True(t, handled)
	assert.EqualValues(t, 3, cpu2.RAX)
	assert.Equal(t, []byte{0x68, 0x69, 0x0a}, mem.Mem[bufVA:bufVA+3])

	cpu3 := &CPUState{LongMode: true, RAX: SysClose, RDI: openedFd, RIP: 0x400004}
	handled = d.Intercept(cpu3, 2)
	require.True(t, handled)
	assert.EqualValues(t, 0, cpu3.RAX)

	// Re-running read after close returns -EBADF.
	cpu4 := &CPUState{LongMode: true, RAX: SysRead, RDI: openedFd, RSI: bufVA, RDX: 16, RIP: 0x400006}
	handled = d.Intercept(cpu4, 2)
	require.True(t, handled)
	assert.EqualValues(t, errno.EBADF, int64(cpu4.RAX))
}

// TestPathOutsidePrefixFallsThrough checks a path outside the accel
// prefix falls through untouched.
func TestPathOutsidePrefixFallsThrough(t *testing.T) {
	d, mem, _ := newTestDispatcher()
	const pathVA = 0x1000
	writeCString(mem, pathVA, "/tmp/x")

	cpu := &CPUState{LongMode: true, RAX: SysOpen, RDI: pathVA, RSI: 0, RDX: 0, RIP: 0x400000}
	originalRIP := cpu.RIP
	handled := d.Intercept(cpu, 2)
	assert.False(t, handled)
	assert.Equal(t, originalRIP, cpu.RIP)
}

// TestPreloadHit drives an execve-triggered preload through to a
// subsequent open against the cache.
func TestPreloadHit(t *testing.T) {
	d, mem, img := newTestDispatcher()
	fd, _ := img.Open("/pack/bin/busybox", 0102, 0755)
	img.Pwrite(fd, []byte{0x7f, 'E', 'L', 'F', 1, 2, 3, 4}, 0)
	img.Close(fd)

	require.EqualValues(t, 0, d.cache.Preload("/pack/bin/busybox"))
	vfd := d.cache.Open("/pack/bin/busybox")
	require.GreaterOrEqual(t, vfd, int64(30000))

	const bufVA = 0x3000
	cpu := &CPUState{LongMode: true, RAX: SysRead, RDI: uint64(vfd), RSI: bufVA, RDX: 4, RIP: 0x400000}
	handled := d.Intercept(cpu, 2)
	require.True(t, handled)
	assert.EqualValues(t, 4, cpu.RAX)
	assert.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, mem.Mem[bufVA:bufVA+4])
}

// TestLongModeGating ensures compat-mode syscalls are never
// intercepted.
func TestLongModeGating(t *testing.T) {
	d, mem, _ := newTestDispatcher()
	const pathVA = 0x1000
	writeCString(mem, pathVA, "/mnt/wasi1/etc/hello")
	cpu := &CPUState{LongMode: false, RAX: SysOpen, RDI: pathVA, RIP: 0x400000}
	handled := d.Intercept(cpu, 2)
	assert.False(t, handled)
}

// TestAtomicityNoPartialState checks a handled syscall only ever
// touches RAX, RCX and RIP.
func TestAtomicityNoPartialState(t *testing.T) {
	d, mem, img := newTestDispatcher()
	fd, _ := img.Open("/pack/f", 0102, 0644)
	img.Close(fd)
	const pathVA = 0x1000
	writeCString(mem, pathVA, "/mnt/wasi1/f")

	cpu := &CPUState{LongMode: true, RAX: SysOpen, RDI: pathVA, RIP: 0x400000}
	before := *cpu
	handled := d.Intercept(cpu, 5)
	require.True(t, handled)
	assert.Equal(t, uint64(0x400005), cpu.RIP)
	assert.Equal(t, cpu.RIP, cpu.RCX)

	untouched := *cpu
	untouched.RAX, untouched.RCX, untouched.RIP = before.RAX, before.RCX, before.RIP
	assert.Equal(t, before, untouched)
}

// TestForkHandledWithinRange checks fork() completes on the fast path
// and returns a pid in the simulated table's configured range.
func TestForkHandledWithinRange(t *testing.T) {
	d, _, _ := newTestDispatcher()
	cpu := &CPUState{LongMode: true, RAX: SysFork, RIP: 0x400000}
	handled := d.Intercept(cpu, 2)
	require.True(t, handled)
	assert.GreaterOrEqual(t, int64(cpu.RAX), int64(config.DefaultPIDBase))
}

// TestWait4TimeoutReturnsETIMEDOUT checks wait4 against an absent
// supervisor times out and reports -ETIMEDOUT.
func TestWait4TimeoutReturnsETIMEDOUT(t *testing.T) {
	cfg := config.Default()
	cfg.IPCTimeout = 150 * time.Millisecond
	img := image.New()
	mem := guestmem.NewFlatPort(1 << 16)
	sab := sabfs.New(img, cfg.SABFSFdBase, cfg.ElfCacheFdBase)
	cache := elfcache.New(img, cfg.ElfCacheFdBase, cfg.MaxFiles, cfg.MaxFds, nil)
	slot := procipc.NewSlot() // no supervisor started: simulates "supervisor absent"
	proc := procipc.NewWorker(slot, int64(cfg.PIDBase), cfg.MaxProcs, cfg.IPCTimeout, cfg.ExitGrace)
	d := NewDispatcher(cfg, mem, sab, cache, proc)

	cpu := &CPUState{LongMode: true, RAX: SysWait4, RDI: 99999, RSI: 0, RDX: 0, RIP: 0x400000}
	start := time.Now()
	handled := d.Intercept(cpu, 2)
	elapsed := time.Since(start)

	require.True(t, handled)
	assert.EqualValues(t, errno.ETIMEDOUT, int64(cpu.RAX))
	assert.Less(t, elapsed, cfg.IPCTimeout+200*time.Millisecond)
}

// TestExecveAlwaysFallsThrough matches the execve-never-claimed policy.
func TestExecveAlwaysFallsThrough(t *testing.T) {
	d, mem, _ := newTestDispatcher()
	writeCString(mem, 0x1000, "/mnt/wasi1/bin/sh")
	cpu := &CPUState{LongMode: true, RAX: SysExecve, RDI: 0x1000, RIP: 0x400000}
	handled := d.Intercept(cpu, 2)
	assert.False(t, handled)
}

// TestRelativeOpenatAgainstOtherDirfdNotIntercepted matches the
// openat carve-out for non-AT_FDCWD dirfds.
func TestRelativeOpenatAgainstOtherDirfdNotIntercepted(t *testing.T) {
	d, mem, _ := newTestDispatcher()
	writeCString(mem, 0x1000, "etc/hello")
	cpu := &CPUState{LongMode: true, RAX: SysOpenat, RDI: 5, RSI: 0x1000, RIP: 0x400000}
	handled := d.Intercept(cpu, 2)
	assert.False(t, handled)
}
