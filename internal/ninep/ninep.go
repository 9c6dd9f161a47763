// Package ninep implements component G: the adapter mapping the
// emulator's 9p server VFS operation vector onto SABFS (component B),
// so the guest kernel sees the same image as the fast-path
// interceptor without any syscall proxying. The op-vector shape
// (stat, open, opendir, readdir, link, unlink, rename, xattr stubs)
// borrows from the FUSE-style RawFileSystem interfaces found in
// hanwen/go-fuse and bazil.org/fuse without importing either: a real
// FUSE binding needs a live kernel mount, which this component never
// has.
//
// Unlike the fast path's negative-errno convention, the 9p adapter
// follows the host-OS VFS convention: it sets errno and returns -1.
package ninep

import (
	"golang.org/x/sys/unix"

	"github.com/tappress/qemu-wasm/internal/image"
	"github.com/tappress/qemu-wasm/internal/sabfs"
)

// Adapter implements the 9p VFS operation vector, delegating every op
// to an *sabfs.FS.
type Adapter struct {
	sab *sabfs.FS
}

// New builds an Adapter over sab.
func New(sab *sabfs.FS) *Adapter {
	return &Adapter{sab: sab}
}

// toVFSErrno maps the fast path's negative-errno convention onto the
// host-OS convention this adapter uses.
func toVFSErrno(fastPathErrno int64) unix.Errno {
	if fastPathErrno == 0 {
		return 0
	}
	return unix.Errno(-fastPathErrno)
}

// Lstat stats path without following a trailing symlink (the image
// never transparently follows symlinks regardless, per
// image.Image.Lstat).
func (a *Adapter) Lstat(path string) (sabfs.StatResult, unix.Errno) {
	st, e := a.sab.Stat(path)
	return st, toVFSErrno(e)
}

// Open opens path for the 9p server, returning a SABFS virtual fd.
func (a *Adapter) Open(path string, flags int, mode uint32) (int, unix.Errno) {
	vfd := a.sab.Open(path, flags, mode)
	if vfd < 0 {
		return -1, toVFSErrno(vfd)
	}
	return int(vfd), 0
}

// Opendir opens path as a directory handle.
func (a *Adapter) Opendir(path string) (int, unix.Errno) {
	vfd := a.sab.Opendir(path)
	if vfd < 0 {
		return -1, toVFSErrno(vfd)
	}
	return int(vfd), 0
}

// Readdir returns the next directory entry for the handle fd, or
// ok=false past the end of the listing.
func (a *Adapter) Readdir(fd int) (image.DirEntry, bool, unix.Errno) {
	entry, ok, e := a.sab.Next(fd)
	return entry, ok, toVFSErrno(e)
}

// Preadv/Pwritev pass straight through to SABFS's own vector I/O.
func (a *Adapter) Preadv(fd int, iovecs [][]byte, off int64) (int, unix.Errno) {
	n, e := a.sab.Preadv(fd, iovecs, off)
	return n, toVFSErrno(e)
}

func (a *Adapter) Pwritev(fd int, iovecs [][]byte, off int64) (int, unix.Errno) {
	n, e := a.sab.Pwritev(fd, iovecs, off)
	return n, toVFSErrno(e)
}

func (a *Adapter) Mkdir(path string, mode uint32) unix.Errno {
	return toVFSErrno(a.sab.Mkdir(path, mode))
}

// Mknod for anything but a regular file silently creates a regular
// file: device nodes are out of scope, and the call is never
// rejected outright.
func (a *Adapter) Mknod(path string, mode uint32) unix.Errno {
	if _, e := a.sab.Stat(path); e == 0 {
		return unix.EEXIST
	}
	vfd := a.sab.Open(path, unix.O_CREAT, mode&0777)
	if vfd < 0 {
		return toVFSErrno(vfd)
	}
	return toVFSErrno(a.sab.Close(int(vfd)))
}

func (a *Adapter) Symlink(target, path string) unix.Errno {
	return toVFSErrno(a.sab.Symlink(target, path))
}

func (a *Adapter) Link(oldPath, newPath string) unix.Errno {
	return toVFSErrno(a.sab.Link(oldPath, newPath))
}

func (a *Adapter) Readlink(path string) (string, unix.Errno) {
	target, e := a.sab.Readlink(path)
	return target, toVFSErrno(e)
}

func (a *Adapter) Chmod(path string, mode uint32) unix.Errno {
	return toVFSErrno(a.sab.Chmod(path, mode))
}

func (a *Adapter) Chown(path string, uid, gid uint32) unix.Errno {
	return toVFSErrno(a.sab.Chown(path, uid, gid))
}

func (a *Adapter) Truncate(path string, size int64) unix.Errno {
	return toVFSErrno(a.sab.Truncate(path, size))
}

func (a *Adapter) Rename(oldPath, newPath string) unix.Errno {
	return toVFSErrno(a.sab.Rename(oldPath, newPath))
}

// Renameat ignores dirfds: the accelerated mount is a single
// fixed subtree, so there is no dirfd-relative addressing within it.
// It delegates to Rename.
func (a *Adapter) Renameat(oldPath, newPath string) unix.Errno {
	return a.Rename(oldPath, newPath)
}

// Unlinkat ignores the dirfd for the same reason as Renameat.
func (a *Adapter) Unlinkat(path string, isDir bool) unix.Errno {
	if isDir {
		return toVFSErrno(a.sab.Rmdir(path))
	}
	return toVFSErrno(a.sab.Unlink(path))
}

func (a *Adapter) Utimensat(path string, atime, mtime unixTime) unix.Errno {
	return toVFSErrno(a.sab.Utimes(path, atime.toTime(), mtime.toTime()))
}

// Fsync is a no-op: the image is in-memory.
func (a *Adapter) Fsync(fd int) unix.Errno { return 0 }

func (a *Adapter) Statfs(path string) (sabfs.StatfsResult, unix.Errno) {
	st, e := a.sab.Statfs(path)
	return st, toVFSErrno(e)
}

// NameToPath resolves a 9p directory-relative walk element against dir
// using the explicit `.`/`..` path-stack rules named in SPEC_FULL.md's
// original_source/ supplement, deliberately not filepath.Clean (which
// collapses ".." past a symlinked component differently than the
// original's plain component stack).
func (a *Adapter) NameToPath(dir, name string) string {
	return walkName(dir, name)
}

// Extended-attribute ops are stubs: the image carries no xattr
// storage (Non-goal), so every call returns -ENOTSUP.
func (a *Adapter) Getxattr(path, name string) ([]byte, unix.Errno) { return nil, unix.ENOTSUP }
func (a *Adapter) Setxattr(path, name string, v []byte) unix.Errno { return unix.ENOTSUP }
func (a *Adapter) Listxattr(path string) ([]string, unix.Errno)    { return nil, unix.ENOTSUP }
func (a *Adapter) Removexattr(path, name string) unix.Errno        { return unix.ENOTSUP }
