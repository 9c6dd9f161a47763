package guestmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGuestStringStopsAtNUL(t *testing.T) {
	port := NewFlatPort(64)
	copy(port.Mem, []byte("/mnt/wasi1/etc/hello\x00garbage"))

	s, ok := ReadGuestString(port, 0, 512)
	require.True(t, ok)
	assert.Equal(t, "/mnt/wasi1/etc/hello", s)
}

func TestReadGuestStringTruncatesAtMax(t *testing.T) {
	port := NewFlatPort(64)
	for i := range port.Mem {
		port.Mem[i] = 'a'
	}
	s, ok := ReadGuestString(port, 0, 8)
	require.True(t, ok)
	assert.Len(t, s, 7) // max-1
}

func TestReadWriteGuestBufferRoundTrip(t *testing.T) {
	port := NewFlatPort(64)
	want := []byte("hello, guest")
	require.EqualValues(t, 0, WriteGuestBuffer(port, 10, want))

	got, e := ReadGuestBuffer(port, 10, len(want))
	require.EqualValues(t, 0, e)
	assert.Equal(t, want, got)
}

func TestReadGuestBufferRejectsOversize(t *testing.T) {
	port := NewFlatPort(4)
	_, e := ReadGuestBuffer(port, 0, MaxTransfer+1)
	assert.NotEqual(t, int64(0), e)
}

func TestLoadPastEndFails(t *testing.T) {
	port := NewFlatPort(4)
	_, e := ReadGuestBuffer(port, 0, 8)
	assert.NotEqual(t, int64(0), e)
}
