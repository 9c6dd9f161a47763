package syscallfp

import (
	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/guestmem"
)

// handleFileIO implements the file-I/O classification bucket. ok is
// false when the call is not claimed (path outside the accel
// prefix, fd outside the reserved ranges, or a relative openat
// against a dirfd other than AT_FDCWD) — the caller must fall through
// to the kernel with no state touched.
func (d *Dispatcher) handleFileIO(cpu *CPUState) (result int64, ok bool) {
	switch cpu.RAX {
	case SysOpen:
		return d.handleOpen(cpu.RDI, cpu.RSI, cpu.RDX)

	case SysOpenat:
		dirfd := int64(cpu.RDI)
		if dirfd != ATFDCWD {
			return 0, false
		}
		return d.handleOpen(cpu.RSI, cpu.RDX, cpu.R10)

	case SysStat:
		return d.handleStat(cpu.RDI, cpu.RSI)

	case SysRead:
		return d.handleReadWrite(cpu, true)

	case SysWrite:
		return d.handleReadWrite(cpu, false)

	case SysClose:
		return d.handleClose(cpu.RDI)

	case SysFstat:
		return d.handleFstat(cpu.RDI, cpu.RSI)
	}
	return 0, false
}

func (d *Dispatcher) handleOpen(pathVA, flags, mode uint64) (int64, bool) {
	guestPath, ok := guestmem.ReadGuestString(d.mem, pathVA, d.cfg.MaxPathLen)
	if !ok {
		return errno.EIO, true
	}
	imgPath, within := d.rewritePath(guestPath)
	if !within {
		return 0, false
	}
	return d.sab.Open(imgPath, int(flags), uint32(mode)), true
}

func (d *Dispatcher) handleStat(pathVA, statVA uint64) (int64, bool) {
	guestPath, ok := guestmem.ReadGuestString(d.mem, pathVA, d.cfg.MaxPathLen)
	if !ok {
		return errno.EIO, true
	}
	imgPath, within := d.rewritePath(guestPath)
	if !within {
		return 0, false
	}
	st, e := d.sab.Stat(imgPath)
	if e != 0 {
		return e, true
	}
	writeStat(d.mem, statVA, st.Ino, st.Mode, st.Nlink, st.UID, st.GID, st.Size, st.Blocks, st.Blksize, st.Atime, st.Mtime, st.Ctime)
	return 0, true
}

func (d *Dispatcher) handleFstat(fdVal, statVA uint64) (int64, bool) {
	fd := int64(fdVal)
	inCache, inSabfs := d.fdInAccelRange(fd)
	switch {
	case inCache:
		st, e := d.cache.Fstat(int(fd))
		if e != 0 {
			return e, true
		}
		writeStat(d.mem, statVA, st.Ino, st.Mode, st.Nlink, 0, 0, st.Size, st.Blocks, st.Blksize, 0, 0, 0)
		return 0, true
	case inSabfs:
		st, e := d.sab.Fstat(int(fd))
		if e != 0 {
			return e, true
		}
		writeStat(d.mem, statVA, st.Ino, st.Mode, st.Nlink, st.UID, st.GID, st.Size, st.Blocks, st.Blksize, st.Atime, st.Mtime, st.Ctime)
		return 0, true
	default:
		return 0, false
	}
}

func (d *Dispatcher) handleClose(fdVal uint64) (int64, bool) {
	fd := int64(fdVal)
	inCache, inSabfs := d.fdInAccelRange(fd)
	switch {
	case inCache:
		return d.cache.Close(int(fd)), true
	case inSabfs:
		return d.sab.Close(int(fd)), true
	default:
		return 0, false
	}
}

func (d *Dispatcher) handleReadWrite(cpu *CPUState, isRead bool) (int64, bool) {
	fd := int64(cpu.RDI)
	bufVA := cpu.RSI
	count := cpu.RDX
	if count > MaxRWCount {
		count = MaxRWCount
	}

	inCache, inSabfs := d.fdInAccelRange(fd)
	if !inCache && !inSabfs {
		return 0, false
	}

	if isRead {
		buf := make([]byte, count)
		var n int
		var e int64
		if inCache {
			n, e = d.cache.Read(int(fd), buf)
		} else {
			n, e = d.sab.Read(int(fd), buf)
		}
		if e != 0 {
			return e, true
		}
		if r := guestmem.WriteGuestBuffer(d.mem, bufVA, buf[:n]); r != 0 {
			return errno.EIO, true
		}
		return int64(n), true
	}

	buf, r := guestmem.ReadGuestBuffer(d.mem, bufVA, int(count))
	if r != 0 {
		return errno.ENOMEM, true
	}
	if inCache {
		// The preload cache is read-only program-loader memory; writes
		// to a cached fd are not part of its contract.
		return errno.EBADF, true
	}
	n, e := d.sab.Write(int(fd), buf)
	if e != 0 {
		return e, true
	}
	return int64(n), true
}
