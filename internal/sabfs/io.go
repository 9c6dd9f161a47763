package sabfs

import (
	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/image"
)

// Pread reads up to len(buf) bytes at off via the file behind fd.
func (fs *FS) Pread(fd int, buf []byte, off int64) (int, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return 0, errno.EBADF
	}
	n, err := fs.img.Pread(e.imageFd, buf, off)
	if err != nil {
		return 0, image.ToErrno(err)
	}
	return n, 0
}

// Pwrite writes buf at off via the file behind fd.
func (fs *FS) Pwrite(fd int, buf []byte, off int64) (int, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return 0, errno.EBADF
	}
	n, err := fs.img.Pwrite(e.imageFd, buf, off)
	if err != nil {
		return 0, image.ToErrno(err)
	}
	return n, 0
}

// Preadv implements the POSIX preadv contract: linearize the iovec
// into one temporary buffer, issue a single image
// call, then scatter into the caller's buffers. Short reads terminate
// the vector loop at the first short chunk.
func (fs *FS) Preadv(fd int, iovecs [][]byte, off int64) (int, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return 0, errno.EBADF
	}
	total := 0
	for _, v := range iovecs {
		total += len(v)
	}
	scratch := make([]byte, total)
	n, err := fs.img.Pread(e.imageFd, scratch, off)
	if err != nil {
		return 0, image.ToErrno(err)
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
			// short chunk: stop filling further iovecs, matching
			// preadv's "a short read for one iovec ends the vector".
			break
		}
	}
	return delivered, 0
}

// Read reads from fd's current offset and advances it, the
// position-tracking sibling of Pread the interceptor's read(2) path
// uses once it has claimed a SABFS fd.
func (fs *FS) Read(fd int, buf []byte) (int, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return 0, errno.EBADF
	}
	n, err := fs.img.Pread(e.imageFd, buf, e.pos)
	if err != nil {
		return 0, image.ToErrno(err)
	}
	e.pos += int64(n)
	return n, 0
}

// Write writes buf at fd's current offset and advances it.
func (fs *FS) Write(fd int, buf []byte) (int, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return 0, errno.EBADF
	}
	n, err := fs.img.Pwrite(e.imageFd, buf, e.pos)
	if err != nil {
		return 0, image.ToErrno(err)
	}
	e.pos += int64(n)
	return n, 0
}

// Pwritev gathers the iovecs into one buffer and issues a single
// image write, mirroring Preadv's linearize-then-call shape.
func (fs *FS) Pwritev(fd int, iovecs [][]byte, off int64) (int, int64) {
	e := fs.lookup(fd, false)
	if e == nil {
		return 0, errno.EBADF
	}
	total := 0
	for _, v := range iovecs {
		total += len(v)
	}
	scratch := make([]byte, 0, total)
	for _, v := range iovecs {
		scratch = append(scratch, v...)
	}
	n, err := fs.img.Pwrite(e.imageFd, scratch, off)
	if err != nil {
		return 0, image.ToErrno(err)
	}
	return n, 0
}
