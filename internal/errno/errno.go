// Package errno maps host-side failures onto the negative-errno
// convention the fast path returns to guest userspace in RAX.
package errno

import (
	"golang.org/x/sys/unix"
)

// Negative errno sentinels used throughout the fast path. Linux x86-64
// syscalls report failure as -errno in RAX.
const (
	ENOENT     = -int64(unix.ENOENT)
	EBADF      = -int64(unix.EBADF)
	ENOMEM     = -int64(unix.ENOMEM)
	EIO        = -int64(unix.EIO)
	ENOTSUP    = -int64(unix.ENOTSUP)
	ETIMEDOUT  = -int64(unix.ETIMEDOUT)
	EINVAL     = -int64(unix.EINVAL)
	EEXIST     = -int64(unix.EEXIST)
	ENOTDIR    = -int64(unix.ENOTDIR)
	EISDIR     = -int64(unix.EISDIR)
	ENOTEMPTY  = -int64(unix.ENOTEMPTY)
	ENOSYS     = -int64(unix.ENOSYS)
)

// FromErrno converts a raw unix.Errno into the negative-errno
// convention. A zero errno maps to 0 (success).
func FromErrno(e unix.Errno) int64 {
	if e == 0 {
		return 0
	}
	return -int64(e)
}

// IsNegative reports whether result encodes a failure under the
// negative-errno convention.
func IsNegative(result int64) bool {
	return result < 0
}

// Name renders a negative-errno result using unix.Errno's own String,
// for diagnostics (sabfsctl's CLI output, log lines).
func Name(result int64) string {
	if result == 0 {
		return "success"
	}
	return unix.Errno(-result).Error()
}
