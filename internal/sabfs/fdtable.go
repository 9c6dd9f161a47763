// Package sabfs implements component B: the small, uniform POSIX-ish
// surface used both by the syscall interceptor (component E) and the
// 9p adapter (component G), layered over the shared image (component
// A). The shape mirrors rclone's backend/cache Handle/directory split:
// a flat fd table of lightweight handle records, with a directory
// handle carrying its own cursor state.
package sabfs

import (
	"time"

	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/image"
	"github.com/tappress/qemu-wasm/internal/rlog"
)

// entry is the {image_fd, path, flags} record the SABFS fd table
// keeps per open fd. Directory fds additionally carry a *dirCursor.
type entry struct {
	imageFd int
	path    string
	flags   int
	isDir   bool
	dir     *dirCursor
	pos     int64 // current offset, for the position-tracking read/write
}

// FS is the SABFS fd table and path API over one Image.
type FS struct {
	img *image.Image

	fdBase    int
	fdBaseEnd int // exclusive upper bound; must not collide with the preload cache's range
	nextFd    int
	table     map[int]*entry

	opens  uint64 // Stats: successful opens
	closes uint64
}

// New builds an FS whose virtual fds are drawn from [fdBase,
// elfCacheFdBase), the SABFS_FD_BASE convention. elfCacheFdBase is
// the base of the preload cache's own fd range, which bounds SABFS's
// counter from above so the two ranges never collide.
func New(img *image.Image, fdBase, elfCacheFdBase int) *FS {
	return &FS{
		img:       img,
		fdBase:    fdBase,
		fdBaseEnd: elfCacheFdBase,
		nextFd:    fdBase,
		table:     make(map[int]*entry),
	}
}

func (fs *FS) String() string { return "sabfs" }

// allocFd finds the next free virtual fd, wrapping back to fdBase and
// scanning for a free index when the monotonic counter would collide
// with an fd still in use. The counter wraps at fdBaseEnd rather than
// an arbitrary large window, so sustained cumulative opens never march
// the counter into the preload cache's reserved fd range.
func (fs *FS) allocFd() int {
	span := fs.fdBaseEnd - fs.fdBase
	for i := 0; i < span; i++ {
		candidate := fs.nextFd
		fs.nextFd++
		if fs.nextFd >= fs.fdBaseEnd {
			fs.nextFd = fs.fdBase
		}
		if _, taken := fs.table[candidate]; !taken {
			return candidate
		}
	}
	return -1
}

// Open returns a virtual fd drawn from SABFS_FD_BASE.., or a
// negative errno.
func (fs *FS) Open(path string, flags int, mode uint32) int64 {
	imgFd, err := fs.img.Open(path, flags, mode)
	if err != nil {
		return image.ToErrno(err)
	}
	vfd := fs.allocFd()
	if vfd < 0 {
		fs.img.Close(imgFd)
		return errno.ENOMEM
	}
	fs.table[vfd] = &entry{imageFd: imgFd, path: path, flags: flags}
	fs.opens++
	rlog.Debugf(fs, "open %s -> vfd %d", path, vfd)
	return int64(vfd)
}

// Opendir opens path as a directory handle, used by readdir-family
// operations and the 9p adapter's opendir.
func (fs *FS) Opendir(path string) int64 {
	entries, err := fs.img.Readdir(path)
	if err != nil {
		return image.ToErrno(err)
	}
	vfd := fs.allocFd()
	if vfd < 0 {
		return errno.ENOMEM
	}
	fs.table[vfd] = &entry{
		path:  path,
		isDir: true,
		dir:   &dirCursor{entries: entries},
	}
	return int64(vfd)
}

// Close is idempotent, returning -EBADF on an fd that's already
// closed.
func (fs *FS) Close(fd int) int64 {
	e, ok := fs.table[fd]
	if !ok {
		return errno.EBADF
	}
	delete(fs.table, fd)
	fs.closes++
	if e.isDir {
		return 0
	}
	if err := fs.img.Close(e.imageFd); err != nil {
		return image.ToErrno(err)
	}
	return 0
}

// lookup returns the entry for fd, or nil if not present / wrong kind.
func (fs *FS) lookup(fd int, wantDir bool) *entry {
	e, ok := fs.table[fd]
	if !ok || e.isDir != wantDir {
		return nil
	}
	return e
}

// Stats is the diagnostic counter block the original's
// sabfs_qemu_stats() exposes.
type Stats struct {
	OpenFds int
	Opens   uint64
	Closes  uint64
}

// Stats snapshots the fd table's counters.
func (fs *FS) Stats() Stats {
	return Stats{OpenFds: len(fs.table), Opens: fs.opens, Closes: fs.closes}
}

// now is a seam so tests can't depend on wall-clock jitter if they
// ever need to stub it; production always uses time.Now.
var now = time.Now
