package image

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWriteReadClose(t *testing.T) {
	img := New()

	fd, err := img.Open("/pack/etc/hello", 0102, 0644) // O_CREAT|O_WRONLY
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fd, 0)

	n, err := img.Pwrite(fd, []byte("hi\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, img.Close(fd))

	fd2, err := img.Open("/pack/etc/hello", 0, 0)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err = img.Pread(fd2, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("hi\n"), buf[:n])

	require.NoError(t, img.Close(fd2))
}

// TestOpenFdCountBalances checks a sequence of opens each paired
// with a close leaves OpenFdCount back at its starting value.
func TestOpenFdCountBalances(t *testing.T) {
	img := New()
	start := img.OpenFdCount()

	for i := 0; i < 20; i++ {
		fd, err := img.Open("/pack/f", 0102, 0644)
		require.NoError(t, err)
		require.NoError(t, img.Close(fd))
	}

	assert.Equal(t, start, img.OpenFdCount())
}

// TestPwritePreadRoundTrip checks bytes written via Pwrite come back
// unchanged through Pread.
func TestPwritePreadRoundTrip(t *testing.T) {
	img := New()
	fd, err := img.Open("/pack/data.bin", 0102, 0644)
	require.NoError(t, err)
	defer img.Close(fd)

	want := []byte("the quick brown fox jumps over the lazy dog")
	n, err := img.Pwrite(fd, want, 100)
	require.NoError(t, err)
	require.Equal(t, len(want), n)

	got := make([]byte, len(want))
	n, err = img.Pread(fd, got, 100)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	assert.Equal(t, want, got)
}

func TestMkdirReaddirRmdir(t *testing.T) {
	img := New()
	require.NoError(t, img.Mkdir("/pack/etc", 0755))

	fd, err := img.Open("/pack/etc/hello", 0102, 0644)
	require.NoError(t, err)
	require.NoError(t, img.Close(fd))

	entries, err := img.Readdir("/pack/etc")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["hello"])
	assert.True(t, names["."])
	assert.True(t, names[".."])

	assert.Error(t, img.Rmdir("/pack/etc")) // not empty
	require.NoError(t, img.Unlink("/pack/etc/hello"))
	require.NoError(t, img.Rmdir("/pack/etc"))

	_, ok := img.Stat("/pack/etc")
	assert.False(t, ok)
}

func TestRenameOverwrites(t *testing.T) {
	img := New()
	fd, _ := img.Open("/pack/a", 0102, 0644)
	img.Pwrite(fd, []byte("A"), 0)
	img.Close(fd)

	fd, _ = img.Open("/pack/b", 0102, 0644)
	img.Pwrite(fd, []byte("B"), 0)
	img.Close(fd)

	require.NoError(t, img.Rename("/pack/a", "/pack/b"))

	data, err := img.ReadFile("/pack/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), data)

	_, ok := img.Stat("/pack/a")
	assert.False(t, ok)
}

func TestSymlinkReadlink(t *testing.T) {
	img := New()
	require.NoError(t, img.Symlink("/pack/target", "/pack/link"))
	target, err := img.Readlink("/pack/link")
	require.NoError(t, err)
	assert.Equal(t, "/pack/target", target)
}

func TestHalvesRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 1 << 31, 1<<32 - 1, 1 << 40} {
		lo, hi := SplitHalves(v)
		assert.Equal(t, v, JoinHalves(lo, hi))
	}
}

func TestBridgeFloatRejectsOutOfRange(t *testing.T) {
	_, ok := ToBridgeFloat(-1)
	assert.False(t, ok)

	_, ok = ToBridgeFloat(1 << 53)
	assert.True(t, ok)

	_, ok = ToBridgeFloat((1 << 53) + 10)
	assert.False(t, ok)
}

func TestToErrnoMapsNotFound(t *testing.T) {
	img := New()
	_, err := img.Open("/pack/missing", 0, 0)
	require.Error(t, err)
	assert.Equal(t, int64(-2), ToErrno(err)) // -ENOENT
}
