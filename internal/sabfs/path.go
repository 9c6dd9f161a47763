package sabfs

import (
	"time"

	"github.com/tappress/qemu-wasm/internal/image"
)

// Mkdir, Rmdir, Unlink, Rename, Symlink, Readlink, Link, Chmod, Chown,
// Truncate and Utimes are thin, uniform wrappers translating image
// errors to the negative-errno convention: the small, uniform
// POSIX-ish surface used identically by the syscall interceptor and
// the 9p adapter.

func (fs *FS) Mkdir(path string, mode uint32) int64 {
	return image.ToErrno(fs.img.Mkdir(path, mode))
}

func (fs *FS) Rmdir(path string) int64 {
	return image.ToErrno(fs.img.Rmdir(path))
}

func (fs *FS) Unlink(path string) int64 {
	return image.ToErrno(fs.img.Unlink(path))
}

func (fs *FS) Rename(oldPath, newPath string) int64 {
	return image.ToErrno(fs.img.Rename(oldPath, newPath))
}

func (fs *FS) Symlink(target, path string) int64 {
	return image.ToErrno(fs.img.Symlink(target, path))
}

func (fs *FS) Readlink(path string) (string, int64) {
	target, err := fs.img.Readlink(path)
	return target, image.ToErrno(err)
}

func (fs *FS) Link(oldPath, newPath string) int64 {
	return image.ToErrno(fs.img.Link(oldPath, newPath))
}

func (fs *FS) Chmod(path string, mode uint32) int64 {
	return image.ToErrno(fs.img.Chmod(path, mode))
}

func (fs *FS) Chown(path string, uid, gid uint32) int64 {
	return image.ToErrno(fs.img.Chown(path, uid, gid))
}

func (fs *FS) Truncate(path string, size int64) int64 {
	return image.ToErrno(fs.img.Truncate(path, size))
}

func (fs *FS) Utimes(path string, atime, mtime time.Time) int64 {
	return image.ToErrno(fs.img.Utimes(path, atime, mtime))
}
