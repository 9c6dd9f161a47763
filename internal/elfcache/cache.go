// Package elfcache implements component C: the bounded, whole-file
// preload cache that lets program-loader traffic (execve of a cached
// binary, dlopen of a cached shared object) skip SABFS entirely once
// primed. The shape — a fixed-size slot table plus a separate fd
// table pointing back into it — mirrors rclone's
// backend/cache Handle/Memory split (backend/cache/handle.go,
// backend/cache/storage_memory.go), but the eviction policy here is
// a bounded FIFO-of-free-slots rather than a TTL store.
package elfcache

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/image"
	"github.com/tappress/qemu-wasm/internal/rlog"
)

// ScratchCap is the size of the scratch buffer preload allocates
// before shrinking to the file's actual size.
const ScratchCap = 16 << 20

// HostPathResolver reads a file from the host filesystem directly, a
// fallback for the 9p export root when accessed from the host side,
// used when the image has no readFile primitive for the path.
// Optional: a nil resolver simply means the fallback is unavailable.
type HostPathResolver func(path string) ([]byte, error)

type slot struct {
	path     string
	bytes    []byte
	size     int64
	mode     uint32
	refcount int
	active   bool
}

// Cache is the bounded preload cache: at most MaxFiles whole-file
// slots and at most MaxFds open virtual fds against them.
type Cache struct {
	mu sync.Mutex

	img      *image.Image
	resolver HostPathResolver

	maxFiles int
	maxFds   int
	fdBase   int
	nextFd   int

	slots   []slot
	byPath  map[string]int // path -> slot index, for already-cached fast return
	fds     map[int]*fdHandle

	group singleflight.Group

	stats Stats
}

type fdHandle struct {
	slot   int
	offset int64
}

// Stats is the diagnostic counter block: preload hits/misses and
// eviction count.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Failures  uint64
}

// New builds a Cache with at most maxFiles slots and maxFds virtual
// fds drawn from [fdBase, fdBase+maxFds).
func New(img *image.Image, fdBase, maxFiles, maxFds int, resolver HostPathResolver) *Cache {
	return &Cache{
		img:      img,
		resolver: resolver,
		maxFiles: maxFiles,
		maxFds:   maxFds,
		fdBase:   fdBase,
		nextFd:   fdBase,
		slots:    make([]slot, maxFiles),
		byPath:   make(map[string]int),
		fds:      make(map[int]*fdHandle),
	}
}

func (c *Cache) String() string { return "elfcache" }

// Preload primes the cache with path's contents. Concurrent
// preloads of the same path collapse onto a single image read via
// singleflight, since the image call is the only suspension-free but
// potentially expensive step.
func (c *Cache) Preload(path string) int64 {
	c.mu.Lock()
	if idx, ok := c.byPath[path]; ok && c.slots[idx].active {
		c.mu.Unlock()
		return 0
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do(path, func() (interface{}, error) {
		return nil, c.preloadOnce(path)
	})
	if err != nil {
		c.mu.Lock()
		c.stats.Failures++
		c.mu.Unlock()
		if err == errNoSlot {
			return errno.ENOMEM
		}
		return image.ToErrno(err)
	}
	return 0
}

func (c *Cache) preloadOnce(path string) error {
	c.mu.Lock()
	if idx, ok := c.byPath[path]; ok && c.slots[idx].active {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := c.img.ReadFile(path)
	if err != nil && c.resolver != nil {
		data, err = c.resolver(path)
	}
	if err != nil {
		return err
	}

	// The scratch-then-shrink step is a copy into a right-sized buffer;
	// Go's GC makes the explicit 16 MiB allocation unnecessary for
	// correctness, but the shrink step stays visible rather than implicit.
	scratch := make([]byte, ScratchCap)
	n := copy(scratch, data)
	final := make([]byte, n)
	copy(final, scratch[:n])

	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.allocSlot()
	if !ok {
		return errNoSlot
	}
	c.slots[idx] = slot{path: path, bytes: final, size: int64(n), mode: 0100755, refcount: 0, active: true}
	c.byPath[path] = idx
	rlog.Debugf(c, "preloaded %s into slot %d (%d bytes)", path, idx, n)
	return nil
}

// allocSlot finds a free slot, evicting the first unreferenced slot
// (FIFO-of-free-slots) if every slot is occupied. Must be
// called with mu held.
func (c *Cache) allocSlot() (int, bool) {
	for i, s := range c.slots {
		if !s.active {
			return i, true
		}
	}
	for i, s := range c.slots {
		if s.refcount == 0 {
			if c.slots[i].active {
				delete(c.byPath, c.slots[i].path)
				c.stats.Evictions++
			}
			return i, true
		}
	}
	return 0, false
}

// errNoSlot is returned internally when every slot is both occupied
// and pinned (refcount > 0); Preload maps it to -ENOMEM.
var errNoSlot = errors.New("elfcache: no free slot")
