// Package image implements component A of the fast path: the shared
// filesystem image and its primitive operations. In the original
// SharedArrayBuffer design the image lives in memory shared between
// the host supervisor and worker threads and is reached through a
// JS-visible bridge object; here it is a single in-process Image
// value guarded by a mutex, which plays the same "single source of
// truth, callers never keep their own copy" role.
//
// Every operation is a single logical call against the image: no
// operation spans a round-trip to another goroutine, matching the
// no-suspension-point guarantee the worker-side fast path requires.
package image

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/rlog"
)

// Mode bits the image understands. Kept narrow on purpose: device
// nodes and real permission enforcement are out of scope, so only
// the regular-file and directory bits plus the symlink bit are
// meaningful.
const (
	ModeDir     = unix.S_IFDIR
	ModeRegular = unix.S_IFREG
	ModeSymlink = unix.S_IFLNK
)

// DirEntry is one row of a directory listing, matching the
// {name, ino, type} shape SABFS directories expose.
type DirEntry struct {
	Name string
	Ino  uint64
	Type uint32
}

// Inode is the per-file metadata record the image tracks.
type Inode struct {
	Ino    uint64
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   int64
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Blocks int64

	// Target is the symlink target; empty for non-symlinks.
	Target string
}

// IsDir reports whether the inode is a directory.
func (in *Inode) IsDir() bool { return in.Mode&unix.S_IFMT == ModeDir }

// IsSymlink reports whether the inode is a symlink.
func (in *Inode) IsSymlink() bool { return in.Mode&unix.S_IFMT == ModeSymlink }

type node struct {
	inode    Inode
	data     []byte            // regular files only
	children map[string]uint64 // directories only: name -> child ino
}

type openFile struct {
	ino   uint64
	flags int
}

// Image is the shared filesystem image. The zero value is not usable;
// construct with New.
type Image struct {
	mu      sync.RWMutex
	nextIno uint64
	nextFd  int
	root    uint64
	nodes   map[uint64]*node
	openFds map[int]*openFile

	statfs Statfs
}

// Statfs holds the filesystem-wide metadata the image falls back to
// default values for when it doesn't supply them.
type Statfs struct {
	Bsize   uint32
	Blocks  uint64
	Bfree   uint64
	Files   uint64
	Ffree   uint64
	Type    uint32
	NameLen uint32
}

// DefaultStatfs returns the literal defaults used when an image has
// no statfs values of its own.
func DefaultStatfs() Statfs {
	return Statfs{
		Bsize:   4096,
		Blocks:  1 << 20,
		Bfree:   512 << 10,
		Files:   65536,
		Ffree:   32768,
		Type:    0x53414246, // "SABF"
		NameLen: 255,
	}
}

// New creates an empty image with a root directory at ino 1.
func New() *Image {
	img := &Image{
		nextIno: 2,
		nextFd:  3, // leave room below for conventional stdio-like fds if ever needed
		root:    1,
		nodes:   make(map[uint64]*node),
		openFds: make(map[int]*openFile),
		statfs:  DefaultStatfs(),
	}
	now := time.Now()
	img.nodes[1] = &node{
		inode: Inode{
			Ino: 1, Mode: ModeDir | 0755, Nlink: 2,
			Atime: now, Mtime: now, Ctime: now,
		},
		children: map[string]uint64{},
	}
	return img
}

func (img *Image) String() string { return "image" }

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

// lookup resolves an absolute path to its inode, with parent and leaf
// name for callers that need to mutate the parent's directory.
func (img *Image) lookup(path string) (ino uint64, parentIno uint64, leaf string, ok bool) {
	parts := splitPath(path)
	cur := img.root
	parent := img.root
	leafName := ""
	for i, part := range parts {
		n, exists := img.nodes[cur]
		if !exists || !n.inode.IsDir() {
			return 0, 0, "", false
		}
		child, exists := n.children[part]
		if !exists {
			return 0, 0, "", false
		}
		parent = cur
		leafName = part
		cur = child
		_ = i
	}
	return cur, parent, leafName, true
}

// mkdirAllLocked walks parts from the root, creating any missing
// directory components along the way, and returns the ino of the
// final component. Callers hold img.mu. This is what lets Open create
// a file under a path whose intermediate directories were never
// explicitly mkdir'd, matching how the accelerated image is populated
// wholesale at preload time rather than one mkdir at a time.
func (img *Image) mkdirAllLocked(parts []string) uint64 {
	cur := img.root
	for _, part := range parts {
		n := img.nodes[cur]
		if child, exists := n.children[part]; exists {
			cur = child
			continue
		}
		now := time.Now()
		newIno := img.nextIno
		img.nextIno++
		img.nodes[newIno] = &node{
			inode:    Inode{Ino: newIno, Mode: ModeDir | 0755, Nlink: 2, Atime: now, Mtime: now, Ctime: now},
			children: map[string]uint64{},
		}
		n.children[part] = newIno
		cur = newIno
	}
	return cur
}

// Stat returns a copy of the inode for path, or ok=false if absent.
// lstat and stat are identical here: symlinks are stored but never
// transparently followed (Non-goals: no real permission or link
// semantics beyond what's stated).
func (img *Image) Stat(path string) (Inode, bool) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return Inode{}, false
	}
	return img.nodes[ino].inode, true
}

// Lstat is identical to Stat: the image never chases symlinks itself.
func (img *Image) Lstat(path string) (Inode, bool) { return img.Stat(path) }

// Open creates (if O_CREAT) and/or opens path, returning an image fd.
func (img *Image) Open(path string, flags int, mode uint32) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	ino, parentIno, leaf, ok := img.lookup(path)
	if !ok {
		if flags&unix.O_CREAT == 0 {
			return -1, errors.Wrapf(errNotFound, "open %s", path)
		}
		parts := splitPath(path)
		if len(parts) == 0 {
			return -1, errors.Wrapf(errNotFound, "open %s", path)
		}
		parent := img.root
		if len(parts) > 1 {
			parent = img.mkdirAllLocked(parts[:len(parts)-1])
		}
		parentNode := img.nodes[parent]
		if !parentNode.inode.IsDir() {
			return -1, errors.Wrapf(errNotDir, "open %s", path)
		}
		leaf = parts[len(parts)-1]
		now := time.Now()
		newIno := img.nextIno
		img.nextIno++
		n := &node{inode: Inode{
			Ino: newIno, Mode: ModeRegular | (mode & 0777), Nlink: 1,
			Atime: now, Mtime: now, Ctime: now,
		}}
		img.nodes[newIno] = n
		parentNode.children[leaf] = newIno
		ino = newIno
		parentIno = parent
	} else if flags&unix.O_TRUNC != 0 {
		n := img.nodes[ino]
		if !n.inode.IsDir() {
			n.data = nil
			n.inode.Size = 0
			n.inode.Mtime = time.Now()
		}
	}
	_ = parentIno
	_ = leaf

	fd := img.nextFd
	img.nextFd++
	img.openFds[fd] = &openFile{ino: ino, flags: flags}
	rlog.Debugf(img, "open %s -> image fd %d (ino %d)", path, fd, ino)
	return fd, nil
}

func joinPath(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// Close releases an image fd.
func (img *Image) Close(fd int) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if _, ok := img.openFds[fd]; !ok {
		return errBadFd
	}
	delete(img.openFds, fd)
	return nil
}

// Pread reads up to len(buf) bytes at off from the file behind fd.
func (img *Image) Pread(fd int, buf []byte, off int64) (int, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	of, ok := img.openFds[fd]
	if !ok {
		return 0, errBadFd
	}
	n, ok := img.nodes[of.ino]
	if !ok || n.inode.IsDir() {
		return 0, errBadFd
	}
	if off >= int64(len(n.data)) || off < 0 {
		return 0, nil
	}
	end := off + int64(len(buf))
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}
	return copy(buf, n.data[off:end]), nil
}

// Pwrite writes len(buf) bytes at off into the file behind fd,
// extending it as needed.
func (img *Image) Pwrite(fd int, buf []byte, off int64) (int, error) {
	img.mu.Lock()
	defer img.mu.Unlock()
	of, ok := img.openFds[fd]
	if !ok {
		return 0, errBadFd
	}
	n, ok := img.nodes[of.ino]
	if !ok || n.inode.IsDir() {
		return 0, errBadFd
	}
	end := off + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:end], buf)
	if end > n.inode.Size {
		n.inode.Size = end
	}
	n.inode.Blocks = (n.inode.Size + 511) / 512
	n.inode.Mtime = time.Now()
	return len(buf), nil
}

// ReadFile reads the whole file at path in one call, used by the
// preload cache (component C) to prime a cache slot without going
// through an open fd.
func (img *Image) ReadFile(path string) ([]byte, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return nil, errNotFound
	}
	n := img.nodes[ino]
	if n.inode.IsDir() {
		return nil, errIsDir
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

// Mkdir creates an empty directory at path.
func (img *Image) Mkdir(path string, mode uint32) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if _, _, _, ok := img.lookup(path); ok {
		return errExist
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return errExist
	}
	parent := img.root
	if len(parts) > 1 {
		parent = img.mkdirAllLocked(parts[:len(parts)-1])
	}
	parentNode := img.nodes[parent]
	if !parentNode.inode.IsDir() {
		return errNotDir
	}
	now := time.Now()
	newIno := img.nextIno
	img.nextIno++
	img.nodes[newIno] = &node{
		inode:    Inode{Ino: newIno, Mode: ModeDir | (mode & 0777), Nlink: 2, Atime: now, Mtime: now, Ctime: now},
		children: map[string]uint64{},
	}
	parentNode.children[parts[len(parts)-1]] = newIno
	parentNode.inode.Nlink++
	return nil
}

// Rmdir removes an empty directory.
func (img *Image) Rmdir(path string) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, parentIno, leaf, ok := img.lookup(path)
	if !ok {
		return errNotFound
	}
	n := img.nodes[ino]
	if !n.inode.IsDir() {
		return errNotDir
	}
	if len(n.children) > 0 {
		return errNotEmpty
	}
	delete(img.nodes, ino)
	delete(img.nodes[parentIno].children, leaf)
	img.nodes[parentIno].inode.Nlink--
	return nil
}

// Unlink removes a non-directory entry.
func (img *Image) Unlink(path string) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, parentIno, leaf, ok := img.lookup(path)
	if !ok {
		return errNotFound
	}
	n := img.nodes[ino]
	if n.inode.IsDir() {
		return errIsDir
	}
	n.inode.Nlink--
	delete(img.nodes[parentIno].children, leaf)
	if n.inode.Nlink == 0 {
		delete(img.nodes, ino)
	}
	return nil
}

// Rename moves oldPath to newPath, overwriting newPath if it exists
// and is not a non-empty directory.
func (img *Image) Rename(oldPath, newPath string) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, oldParent, oldLeaf, ok := img.lookup(oldPath)
	if !ok {
		return errNotFound
	}
	parts := splitPath(newPath)
	if len(parts) == 0 {
		return errInvalid
	}
	var newParent uint64
	if len(parts) == 1 {
		newParent = img.root
	} else {
		p, _, _, pok := img.lookup("/" + joinPath(parts[:len(parts)-1]))
		if !pok {
			return errNotFound
		}
		newParent = p
	}
	newLeaf := parts[len(parts)-1]
	if existing, exists := img.nodes[newParent].children[newLeaf]; exists {
		if img.nodes[existing].inode.IsDir() && len(img.nodes[existing].children) > 0 {
			return errNotEmpty
		}
		delete(img.nodes, existing)
	}
	delete(img.nodes[oldParent].children, oldLeaf)
	img.nodes[newParent].children[newLeaf] = ino
	return nil
}

// Symlink creates a symlink at path pointing at target, creating any
// missing intermediate directories the way Open and Mkdir do. target
// is not validated against the tree (Non-goals: no real
// permission/link enforcement beyond best-effort counts).
func (img *Image) Symlink(target, path string) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if _, _, _, ok := img.lookup(path); ok {
		return errExist
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return errInvalid
	}
	parent := img.root
	if len(parts) > 1 {
		parent = img.mkdirAllLocked(parts[:len(parts)-1])
	}
	if !img.nodes[parent].inode.IsDir() {
		return errNotDir
	}
	now := time.Now()
	newIno := img.nextIno
	img.nextIno++
	img.nodes[newIno] = &node{inode: Inode{
		Ino: newIno, Mode: ModeSymlink | 0777, Nlink: 1, Size: int64(len(target)),
		Atime: now, Mtime: now, Ctime: now, Target: target,
	}}
	img.nodes[parent].children[parts[len(parts)-1]] = newIno
	return nil
}

// Readlink returns the symlink target for path.
func (img *Image) Readlink(path string) (string, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return "", errNotFound
	}
	n := img.nodes[ino]
	if !n.inode.IsSymlink() {
		return "", errInvalid
	}
	return n.inode.Target, nil
}

// Link creates a hard link newPath -> oldPath's inode, incrementing
// nlink. Best-effort: the image doesn't enforce cross-device rules.
func (img *Image) Link(oldPath, newPath string) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, _, _, ok := img.lookup(oldPath)
	if !ok {
		return errNotFound
	}
	parts := splitPath(newPath)
	if len(parts) == 0 {
		return errInvalid
	}
	var parent uint64
	if len(parts) == 1 {
		parent = img.root
	} else {
		p, _, _, pok := img.lookup("/" + joinPath(parts[:len(parts)-1]))
		if !pok {
			return errNotFound
		}
		parent = p
	}
	leaf := parts[len(parts)-1]
	if _, exists := img.nodes[parent].children[leaf]; exists {
		return errExist
	}
	img.nodes[parent].children[leaf] = ino
	img.nodes[ino].inode.Nlink++
	return nil
}

// Chmod updates the permission bits of path, preserving the file-type
// bits.
func (img *Image) Chmod(path string, mode uint32) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return errNotFound
	}
	n := img.nodes[ino]
	n.inode.Mode = (n.inode.Mode &^ 0777) | (mode & 0777)
	n.inode.Ctime = time.Now()
	return nil
}

// Chown updates uid/gid. Not enforced elsewhere (Non-goals: no real
// permission enforcement).
func (img *Image) Chown(path string, uid, gid uint32) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return errNotFound
	}
	n := img.nodes[ino]
	n.inode.UID = uid
	n.inode.GID = gid
	n.inode.Ctime = time.Now()
	return nil
}

// Truncate sets a regular file's size, zero-filling on growth.
func (img *Image) Truncate(path string, size int64) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return errNotFound
	}
	n := img.nodes[ino]
	if n.inode.IsDir() {
		return errIsDir
	}
	if size < int64(len(n.data)) {
		n.data = n.data[:size]
	} else if size > int64(len(n.data)) {
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	n.inode.Size = size
	n.inode.Blocks = (size + 511) / 512
	n.inode.Mtime = time.Now()
	return nil
}

// Utimes sets atime/mtime for path.
func (img *Image) Utimes(path string, atime, mtime time.Time) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return errNotFound
	}
	n := img.nodes[ino]
	n.inode.Atime = atime
	n.inode.Mtime = mtime
	n.inode.Ctime = time.Now()
	return nil
}

// Readdir lists the entries of the directory at path: "." and ".."
// first, then the children sorted by name, so repeated listings of an
// unchanged directory return the same sequence.
func (img *Image) Readdir(path string) ([]DirEntry, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	ino, _, _, ok := img.lookup(path)
	if !ok {
		return nil, errNotFound
	}
	n := img.nodes[ino]
	if !n.inode.IsDir() {
		return nil, errNotDir
	}
	entries := make([]DirEntry, 0, len(n.children)+2)
	entries = append(entries, DirEntry{Name: ".", Ino: ino, Type: ModeDir})
	parent := ino
	if ino != img.root {
		// best-effort: only root's ".." is pinned down; every other
		// directory reports root's ino for "..", not its real parent's.
		// Non-goal: full POSIX semantics.
		parent = img.root
	}
	entries = append(entries, DirEntry{Name: "..", Ino: parent, Type: ModeDir})
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		childIno := n.children[name]
		t := uint32(ModeRegular)
		if img.nodes[childIno].inode.IsDir() {
			t = ModeDir
		} else if img.nodes[childIno].inode.IsSymlink() {
			t = ModeSymlink
		}
		entries = append(entries, DirEntry{Name: name, Ino: childIno, Type: t})
	}
	return entries, nil
}

// Statfs returns filesystem-wide metadata.
func (img *Image) Statfs() Statfs {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.statfs
}

// OpenFdCount reports the number of currently open image fds, used
// by tests to check open/close balance.
func (img *Image) OpenFdCount() int {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return len(img.openFds)
}

// Errors returned by image operations. Callers (component B) map
// these onto the negative-errno convention; the image itself never
// returns a bare errno.
var (
	errNotFound = errors.New("image: no such file or directory")
	errBadFd    = errors.New("image: bad file descriptor")
	errExist    = errors.New("image: file exists")
	errNotDir   = errors.New("image: not a directory")
	errIsDir    = errors.New("image: is a directory")
	errNotEmpty = errors.New("image: directory not empty")
	errInvalid  = errors.New("image: invalid argument")
)

// ToErrno maps an image error onto the negative-errno convention used
// throughout the fast path. Unrecognized errors map to -EIO, matching
// the "image not available" -> -EIO convention used for transfer ops.
func ToErrno(err error) int64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotFound):
		return errno.ENOENT
	case errors.Is(err, errBadFd):
		return errno.EBADF
	case errors.Is(err, errExist):
		return errno.EEXIST
	case errors.Is(err, errNotDir):
		return errno.ENOTDIR
	case errors.Is(err, errIsDir):
		return errno.EISDIR
	case errors.Is(err, errNotEmpty):
		return errno.ENOTEMPTY
	case errors.Is(err, errInvalid):
		return errno.EINVAL
	default:
		return errno.EIO
	}
}
