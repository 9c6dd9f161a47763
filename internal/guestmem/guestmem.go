// Package guestmem implements component D: byte-granular access to
// guest virtual memory via the DBT's data load/store ports. Byte
// granularity is deliberate: page boundaries and TLB misses are
// handled by the load port itself, so the helpers here stay portable
// across guest paging states instead of reimplementing page walks.
package guestmem

import "github.com/tappress/qemu-wasm/internal/errno"

// Port is the DBT data-port contract this package is built against.
// The real fast path wires this to the translated CPU's load/store
// microcode; tests wire it to a plain byte slice (see FlatPort).
type Port interface {
	LoadByte(va uint64) (byte, bool)
	StoreByte(va uint64, b byte) bool
}

// MaxTransfer bounds read/write transfers: count <= 65536 per
// read/write is what keeps byte-granular copies acceptable.
const MaxTransfer = 65536

// ReadGuestString fetches a NUL-terminated string starting at va,
// stopping at the first NUL or after max-1 bytes, always
// NUL-terminating the returned Go string's conceptual byte buffer
// (the string itself never contains the trailing NUL). This is the
// fixed-maximum, NUL-terminated truncation required for any path
// read out of guest memory.
func ReadGuestString(port Port, va uint64, max int) (string, bool) {
	if max <= 0 {
		return "", false
	}
	buf := make([]byte, 0, max)
	for i := 0; i < max-1; i++ {
		b, ok := port.LoadByte(va + uint64(i))
		if !ok {
			return "", false
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), true
}

// ReadGuestBuffer copies n bytes starting at va out of guest memory.
// n is clamped to MaxTransfer by callers before reaching here;
// ReadGuestBuffer itself still enforces the bound defensively.
func ReadGuestBuffer(port Port, va uint64, n int) ([]byte, int64) {
	if n < 0 || n > MaxTransfer {
		return nil, errno.EINVAL
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := port.LoadByte(va + uint64(i))
		if !ok {
			return nil, errno.EIO
		}
		buf[i] = b
	}
	return buf, 0
}

// WriteGuestBuffer copies buf into guest memory starting at va.
func WriteGuestBuffer(port Port, va uint64, buf []byte) int64 {
	if len(buf) > MaxTransfer {
		return errno.EINVAL
	}
	for i, b := range buf {
		if !port.StoreByte(va+uint64(i), b) {
			return errno.EIO
		}
	}
	return 0
}

// FlatPort is a Port backed by a single contiguous byte slice, used
// in tests to stand in for a real guest address space.
type FlatPort struct {
	Mem []byte
}

// NewFlatPort allocates a FlatPort with size bytes of backing memory,
// addressed starting at virtual address 0.
func NewFlatPort(size int) *FlatPort {
	return &FlatPort{Mem: make([]byte, size)}
}

func (p *FlatPort) LoadByte(va uint64) (byte, bool) {
	if va >= uint64(len(p.Mem)) {
		return 0, false
	}
	return p.Mem[va], true
}

func (p *FlatPort) StoreByte(va uint64, b byte) bool {
	if va >= uint64(len(p.Mem)) {
		return false
	}
	p.Mem[va] = b
	return true
}
