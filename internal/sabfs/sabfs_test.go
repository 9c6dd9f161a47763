package sabfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tappress/qemu-wasm/internal/errno"
	"github.com/tappress/qemu-wasm/internal/image"
)

func newTestFS() *FS {
	return New(image.New(), 10000, 30000)
}

func TestOpenFdInReservedRange(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/etc/hello", 0102, 0644)
	require.GreaterOrEqual(t, vfd, int64(10000))
	require.Less(t, vfd, int64(30000))
	assert.EqualValues(t, 0, fs.Close(int(vfd)))
}

func TestCloseIsIdempotent(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/f", 0102, 0644)
	require.EqualValues(t, 0, fs.Close(int(vfd)))
	assert.EqualValues(t, errno.EBADF, fs.Close(int(vfd)))
}

func TestOpenMissingIsENOENT(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/missing", 0, 0)
	assert.EqualValues(t, errno.ENOENT, vfd)
}

func TestReadAfterCloseIsEBADF(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/f", 0102, 0644)
	fs.Close(int(vfd))

	buf := make([]byte, 16)
	_, e := fs.Pread(int(vfd), buf, 0)
	assert.EqualValues(t, errno.EBADF, e)
}

func TestPreadvShortReadStopsVector(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/f", 0102, 0644)
	fs.Pwrite(int(vfd), []byte("0123456789"), 0) // 10 bytes

	iov1 := make([]byte, 6)
	iov2 := make([]byte, 6)
	n, e := fs.Preadv(int(vfd), [][]byte{iov1, iov2}, 0)
	require.EqualValues(t, 0, e)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte("012345"), iov1)
	assert.Equal(t, []byte("6789"), iov2[:4])
}

func TestFstatUsesPathRecordedAtOpen(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/f", 0102, 0644)
	fs.Pwrite(int(vfd), []byte("hello"), 0)

	st, e := fs.Fstat(int(vfd))
	require.EqualValues(t, 0, e)
	assert.EqualValues(t, 5, st.Size)
	assert.EqualValues(t, 1, st.Nlink)
	assert.EqualValues(t, 4096, st.Blksize)
}

func TestDirCursorRewindTellSeekNext(t *testing.T) {
	fs := newTestFS()
	fs.img.Mkdir("/pack/d", 0755)
	for _, name := range []string{"a", "b", "c"} {
		vfd := fs.Open("/pack/d/"+name, 0102, 0644)
		fs.Close(int(vfd))
	}

	dfd := fs.Opendir("/pack/d")
	require.GreaterOrEqual(t, dfd, int64(10000))

	var names []string
	for {
		entry, ok, e := fs.Next(int(dfd))
		require.EqualValues(t, 0, e)
		if !ok {
			break
		}
		names = append(names, entry.Name)
	}
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "b")
	assert.Contains(t, names, "c")
	assert.Contains(t, names, "..")

	require.EqualValues(t, 0, fs.Seek(int(dfd), 0))
	require.EqualValues(t, 0, fs.Tell(int(dfd)))
	require.EqualValues(t, 0, fs.Rewind(int(dfd)))
}

func TestAllocFdWrapsAndScansForFree(t *testing.T) {
	fs := newTestFS()
	// Drive nextFd near fdBaseEnd and confirm no collision occurs once
	// it wraps.
	fs.nextFd = fs.fdBaseEnd - 1
	vfd1 := fs.Open("/pack/a", 0102, 0644)
	vfd2 := fs.Open("/pack/b", 0102, 0644)
	assert.NotEqual(t, vfd1, vfd2)
	assert.GreaterOrEqual(t, vfd2, int64(fs.fdBase))
}

// TestAllocFdNeverCrossesIntoElfCacheRange drives sustained, cumulative
// opens (not just a single wrap) and asserts every allocated vfd stays
// below fdBaseEnd, the preload cache's own fd base.
func TestAllocFdNeverCrossesIntoElfCacheRange(t *testing.T) {
	fs := newTestFS()
	const cumulativeOpens = 25000 // exceeds fdBaseEnd-fdBase (20000)

	var open []int64
	for i := 0; i < cumulativeOpens; i++ {
		vfd := fs.Open("/pack/f", 0102, 0644)
		require.GreaterOrEqual(t, vfd, int64(fs.fdBase))
		require.Less(t, vfd, int64(fs.fdBaseEnd))
		open = append(open, vfd)
		// Keep only a handful of fds live at once so the table doesn't
		// grow without bound while still forcing sustained wraparound.
		if len(open) > 8 {
			fs.Close(int(open[0]))
			open = open[1:]
		}
	}
}

func TestStatsCounters(t *testing.T) {
	fs := newTestFS()
	vfd := fs.Open("/pack/f", 0102, 0644)
	fs.Close(int(vfd))

	stats := fs.Stats()
	assert.EqualValues(t, 1, stats.Opens)
	assert.EqualValues(t, 1, stats.Closes)
	assert.Equal(t, 0, stats.OpenFds)
}
