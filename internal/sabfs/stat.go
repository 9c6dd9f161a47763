package sabfs

import (
	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/image"
)

// StatResult is the fleshed-out POSIX stat shape, fabricating fields
// for when the image doesn't supply them.
type StatResult struct {
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Size    int64
	Blocks  int64
	Blksize int64
	Atime   int64 // unix seconds
	Mtime   int64
	Ctime   int64
}

func fromInode(in image.Inode) StatResult {
	nlink := in.Nlink
	if nlink == 0 {
		nlink = 1
	}
	blocks := in.Blocks
	if blocks == 0 {
		blocks = (in.Size + 511) / 512
	}
	return StatResult{
		Ino: in.Ino, Mode: in.Mode, Nlink: nlink,
		UID: in.UID, GID: in.GID, Size: in.Size,
		Blocks: blocks, Blksize: 4096,
		Atime: in.Atime.Unix(), Mtime: in.Mtime.Unix(), Ctime: in.Ctime.Unix(),
	}
}

// Stat calls directly into the image by path.
func (fs *FS) Stat(path string) (StatResult, int64) {
	in, ok := fs.img.Stat(path)
	if !ok {
		return StatResult{}, errno.ENOENT
	}
	return fromInode(in), 0
}

// Fstat is not directly supported by the image: it stats by the
// path recorded at open time.
func (fs *FS) Fstat(fd int) (StatResult, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return StatResult{}, errno.EBADF
	}
	return fs.Stat(e.path)
}

// StatfsResult mirrors the image's Statfs, widened to the f_type /
// f_namelen fields the host statfs ABI expects.
type StatfsResult struct {
	Bsize   uint32
	Blocks  uint64
	Bfree   uint64
	Files   uint64
	Ffree   uint64
	Type    uint32
	NameLen uint32
}

// Statfs returns the image's filesystem-wide metadata; an image built
// by image.New reports image.DefaultStatfs. Fails -ENOENT when path
// does not exist.
func (fs *FS) Statfs(path string) (StatfsResult, int64) {
	if _, ok := fs.img.Stat(path); !ok {
		return StatfsResult{}, errno.ENOENT
	}
	s := fs.img.Statfs()
	return StatfsResult{
		Bsize: s.Bsize, Blocks: s.Blocks, Bfree: s.Bfree,
		Files: s.Files, Ffree: s.Ffree, Type: s.Type, NameLen: s.NameLen,
	}, 0
}
