package syscallfp

import "github.com/tappress/qemu-wasm/internal/guestmem"

// StatStructSize is the fast path's own fixed stat-buffer layout — not
// glibc's struct stat ABI. Full POSIX stat semantics are out of
// scope, so the fast path defines its own compact, documented layout
// rather than guessing at libc's. A guest userspace built against
// this fast path links against a libc shim that knows this layout;
// that shim is outside the core's scope.
const StatStructSize = 80

// writeStat serializes the named fields into guestVA using little-endian
// fixed offsets. The result of guestmem.WriteGuestBuffer is ignored:
// writeStat returns nothing, and its callers report success for the
// stat call once the lookup has succeeded.
func writeStat(mem guestmem.Port, va uint64, ino uint64, mode, nlink, uid, gid uint32, size, blocks, blksize, atime, mtime, ctime int64) {
	buf := make([]byte, StatStructSize)
	putU64(buf[0:], ino)
	putU32(buf[8:], mode)
	putU32(buf[12:], nlink)
	putU32(buf[16:], uid)
	putU32(buf[20:], gid)
	putU64(buf[24:], uint64(size))
	putU64(buf[32:], uint64(blocks))
	putU64(buf[40:], uint64(blksize))
	putU64(buf[48:], uint64(atime))
	putU64(buf[56:], uint64(mtime))
	putU64(buf[64:], uint64(ctime))
	guestmem.WriteGuestBuffer(mem, va, buf)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
