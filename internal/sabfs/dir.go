package sabfs

import (
	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/image"
)

// dirCursor is the {path, count, pos} shape a directory fd carries.
type dirCursor struct {
	entries []image.DirEntry
	pos     int
}

// Rewind re-queries the image for the current entry count and resets
// the cursor to 0.
func (fs *FS) Rewind(fd int) int64 {
	e := fs.lookup(fd, true)
	if e == nil {
		return errno.EBADF
	}
	entries, err := fs.img.Readdir(e.path)
	if err != nil {
		return image.ToErrno(err)
	}
	e.dir.entries = entries
	e.dir.pos = 0
	return 0
}

// Tell returns the cursor position.
func (fs *FS) Tell(fd int) int64 {
	e := fs.lookup(fd, true)
	if e == nil {
		return errno.EBADF
	}
	return int64(e.dir.pos)
}

// Seek sets the cursor position without validating it against the
// entry count: pos = off, no bounds check.
func (fs *FS) Seek(fd int, off int64) int64 {
	e := fs.lookup(fd, true)
	if e == nil {
		return errno.EBADF
	}
	e.dir.pos = int(off)
	return 0
}

// Next returns the entry at the cursor position and then advances the
// cursor past it. ok is false past the end of the listing.
func (fs *FS) Next(fd int) (image.DirEntry, bool, int64) {
	e := fs.lookup(fd, true)
	if e == nil {
		return image.DirEntry{}, false, errno.EBADF
	}
	if e.dir.pos < 0 || e.dir.pos >= len(e.dir.entries) {
		return image.DirEntry{}, false, 0
	}
	entry := e.dir.entries[e.dir.pos]
	e.dir.pos++
	return entry, true, 0
}
