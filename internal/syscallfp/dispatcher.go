package syscallfp

import (
	"strings"

	"github.com/tappress/qemu-wasm/internal/config"
	"github.com/tappress/qemu-wasm/internal/elfcache"
	"github.com/tappress/qemu-wasm/internal/guestmem"
	"github.com/tappress/qemu-wasm/internal/procipc"
	"github.com/tappress/qemu-wasm/internal/rlog"
	"github.com/tappress/qemu-wasm/internal/sabfs"
)

// Dispatcher ties the classifier to the three service components the
// accelerated data-flow needs: SABFS, the preload cache, and
// process-lifecycle IPC, plus the guest-memory port.
type Dispatcher struct {
	cfg   config.Config
	mem   guestmem.Port
	sab   *sabfs.FS
	cache *elfcache.Cache
	proc  *procipc.Worker

	// CurrentPID is the pid the worker believes it's running as,
	// supplied by the embedder; it becomes IPC arg1 (parent pid) on
	// fork/clone/vfork requests. A real embedding wires this to the
	// guest kernel's own current-task bookkeeping.
	CurrentPID int64

	stats Stats
}

// Stats is the diagnostic counter block: handled vs fallen-through
// counts per classification bucket.
type Stats struct {
	HandledFileIO    uint64
	HandledProc      uint64
	FellThrough      uint64
	NotLongMode      uint64
}

// NewDispatcher wires a Dispatcher against already-constructed
// components.
func NewDispatcher(cfg config.Config, mem guestmem.Port, sab *sabfs.FS, cache *elfcache.Cache, proc *procipc.Worker) *Dispatcher {
	return &Dispatcher{cfg: cfg, mem: mem, sab: sab, cache: cache, proc: proc}
}

func (d *Dispatcher) String() string { return "syscallfp" }

// Stats snapshots the dispatcher's classification counters.
func (d *Dispatcher) Stats() Stats { return d.stats }

// Intercept is the entry point called at the top of the translated
// SYSCALL handler, before any architectural state transition. Returns
// true when cpu has been fully updated (RAX, RCX, RIP) and the caller
// must skip kernel entry; false means the caller must perform the
// normal kernel entry untouched.
//
// Post-handling sequence on a true return is exactly four steps:
// RAX = result, RIP += nextEipAddend, RCX = new RIP, return handled.
// Nothing else about cpu is ever touched.
func (d *Dispatcher) Intercept(cpu *CPUState, nextEipAddend uint64) bool {
	if !cpu.LongMode {
		d.stats.NotLongMode++
		return false
	}

	switch cpu.RAX {
	case SysRead, SysWrite, SysOpen, SysClose, SysStat, SysFstat, SysOpenat:
		if result, ok := d.handleFileIO(cpu); ok {
			d.finish(cpu, nextEipAddend, result)
			d.stats.HandledFileIO++
			return true
		}
		d.stats.FellThrough++
		return false

	case SysClone, SysFork, SysVfork:
		result := d.handleFork()
		d.finish(cpu, nextEipAddend, result)
		d.stats.HandledProc++
		return true

	case SysExecve:
		d.handleExecve(cpu)
		// execve is logged/preloaded but always falls through; no CPU
		// state is touched.
		d.stats.FellThrough++
		return false

	case SysExit, SysExitGroup:
		d.handleExit(cpu)
		d.stats.FellThrough++
		return false

	case SysWait4:
		result := d.handleWait4(cpu)
		d.finish(cpu, nextEipAddend, result)
		d.stats.HandledProc++
		return true

	default:
		d.stats.FellThrough++
		return false
	}
}

// finish applies the exactly-four-step post-handling sequence.
func (d *Dispatcher) finish(cpu *CPUState, nextEipAddend uint64, result int64) {
	cpu.RAX = uint64(result)
	cpu.RIP += nextEipAddend
	cpu.RCX = cpu.RIP
}

// rewritePath implements the accelerated-path mount: a guest path is
// eligible only if it has the configured accel prefix, in which case
// it is rewritten onto the image prefix. ok is false for any path
// outside the prefix.
func (d *Dispatcher) rewritePath(guestPath string) (string, bool) {
	if !strings.HasPrefix(guestPath, d.cfg.AccelPrefix) {
		return "", false
	}
	return d.cfg.ImagePrefix + guestPath[len(d.cfg.AccelPrefix):], true
}

// fdInAccelRange reports whether fd lies in either the SABFS or
// preload-cache reserved range. The preload-cache range is checked
// first because its base is numerically higher and the ranges are
// disjoint — no ambiguity is possible, so order is cosmetic, kept
// this way only for parity with the tie-break convention elsewhere.
func (d *Dispatcher) fdInAccelRange(fd int64) (inCache, inSabfs bool) {
	if fd >= int64(d.cfg.ElfCacheFdBase) && fd < int64(d.cfg.ElfCacheFdBase+d.cfg.MaxFds) {
		return true, false
	}
	if fd >= int64(d.cfg.SABFSFdBase) && fd < int64(d.cfg.ElfCacheFdBase) {
		return false, true
	}
	return false, false
}

func (d *Dispatcher) handleFork() int64 {
	pid, e := d.proc.Fork(d.CurrentPID)
	if e != 0 {
		return e
	}
	return pid
}

func (d *Dispatcher) handleExecve(cpu *CPUState) {
	path, ok := guestmem.ReadGuestString(d.mem, cpu.RDI, d.cfg.MaxPathLen)
	if !ok {
		return
	}
	d.proc.Exec(path)
	if imgPath, within := d.rewritePath(path); within {
		d.cache.Preload(imgPath)
	}
}

func (d *Dispatcher) handleExit(cpu *CPUState) {
	d.proc.Exit(int32(cpu.RDI))
}

func (d *Dispatcher) handleWait4(cpu *CPUState) int64 {
	pid := int64(cpu.RDI)
	statusVA := cpu.RSI
	retPID, status, e := d.proc.Wait4(pid)
	if e != 0 {
		return e
	}
	if statusVA != 0 {
		buf := make([]byte, 4)
		putUint32LE(buf, uint32(status))
		if r := guestmem.WriteGuestBuffer(d.mem, statusVA, buf); r != 0 {
			rlog.Errorf(d, "wait4: failed writing status to guest va %#x", statusVA)
		}
	}
	return retPID
}

func putUint32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}
