package elfcache

import (
	"github.com/tappress/qemu-wasm/internal/errno"
)

// Seek whence values, matching POSIX lseek.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// Open returns a virtual fd for an already-preloaded path, drawn from
// [fdBase, fdBase+maxFds). Fails -ENOENT if path was never preloaded.
func (c *Cache) Open(path string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.byPath[path]
	if !ok || !c.slots[idx].active {
		c.stats.Misses++
		return errno.ENOENT
	}
	if len(c.fds) >= c.maxFds {
		return errno.ENOMEM
	}
	fd := c.allocFdLocked()
	if fd < 0 {
		return errno.ENOMEM
	}
	c.fds[fd] = &fdHandle{slot: idx, offset: 0}
	c.slots[idx].refcount++
	c.stats.Hits++
	return int64(fd)
}

func (c *Cache) allocFdLocked() int {
	for i := 0; i < c.maxFds; i++ {
		candidate := c.nextFd
		c.nextFd++
		if c.nextFd >= c.fdBase+c.maxFds {
			c.nextFd = c.fdBase
		}
		if _, taken := c.fds[candidate]; !taken {
			return candidate
		}
	}
	return -1
}

// Close releases a virtual fd, decrementing the owning slot's
// refcount. Idempotent: closing an unknown fd returns -EBADF.
func (c *Cache) Close(fd int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.fds[fd]
	if !ok {
		return errno.EBADF
	}
	delete(c.fds, fd)
	if c.slots[h.slot].refcount > 0 {
		c.slots[h.slot].refcount--
	}
	return 0
}

// Pread is a pure memory copy against the cached bytes. EOF returns 0.
func (c *Cache) Pread(fd int, buf []byte, off int64) (int, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.fds[fd]
	if !ok {
		return 0, errno.EBADF
	}
	data := c.slots[h.slot].bytes
	if off < 0 || off >= int64(len(data)) {
		return 0, 0
	}
	end := off + int64(len(buf))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return copy(buf, data[off:end]), 0
}

// Preadv scatters a single pread across the given iovecs, mirroring
// sabfs.Preadv's short-read termination rule.
func (c *Cache) Preadv(fd int, iovecs [][]byte, off int64) (int, int64) {
	total := 0
	for _, v := range iovecs {
		total += len(v)
	}
	scratch := make([]byte, total)
	n, e := c.Pread(fd, scratch, off)
	if e != 0 {
		return 0, e
	}
	delivered := 0
	for _, v := range iovecs {
		if delivered >= n {
			break
		}
		chunk := n - delivered
		if chunk > len(v) {
			chunk = len(v)
		}
		copy(v, scratch[delivered:delivered+chunk])
		delivered += chunk
		if chunk < len(v) {
			break
		}
	}
	return delivered, 0
}

// Read reads from the fd's current offset and advances it, the
// position-tracking sibling of Pread used by the interceptor's
// read(2) path once it has claimed a preload-cache fd.
func (c *Cache) Read(fd int, buf []byte) (int, int64) {
	c.mu.Lock()
	h, ok := c.fds[fd]
	if !ok {
		c.mu.Unlock()
		return 0, errno.EBADF
	}
	off := h.offset
	c.mu.Unlock()

	n, e := c.Pread(fd, buf, off)
	if e != 0 {
		return 0, e
	}
	c.mu.Lock()
	h.offset += int64(n)
	c.mu.Unlock()
	return n, 0
}

// Lseek repositions the fd's offset. SET/END/CUR landing on a
// negative offset fails.
func (c *Cache) Lseek(fd int, offset int64, whence int) (int64, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.fds[fd]
	if !ok {
		return 0, errno.EBADF
	}
	size := c.slots[h.slot].size

	var newOff int64
	switch whence {
	case SeekSet:
		newOff = offset
	case SeekCur:
		newOff = h.offset + offset
	case SeekEnd:
		newOff = size + offset
	default:
		return 0, errno.EINVAL
	}
	if newOff < 0 {
		return 0, errno.EINVAL
	}
	h.offset = newOff
	return newOff, 0
}

// FstatResult is the elfcache-local stat shape; ino is fabricated as
// 1_000_000 + slot.
type FstatResult struct {
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Size    int64
	Blocks  int64
	Blksize int64
}

// Fstat fabricates metadata for a preload-cache fd: ino
// 1_000_000+slot, nlink 1, blksize 4096, blocks = ceil(size/512).
func (c *Cache) Fstat(fd int) (FstatResult, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.fds[fd]
	if !ok {
		return FstatResult{}, errno.EBADF
	}
	s := c.slots[h.slot]
	return FstatResult{
		Ino: 1_000_000 + uint64(h.slot), Mode: s.mode, Nlink: 1,
		Size: s.size, Blocks: (s.size + 511) / 512, Blksize: 4096,
	}, 0
}

// Stats snapshots the cache's hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
