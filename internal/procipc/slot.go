// Package procipc implements component F: the shared-buffer RPC
// between a worker and the host supervisor for fork/exec/exit/wait.
// The control word doubles as both the protocol state and the futex
// address in the original design — a real worker thread can't yield
// mid-instruction, so the wait has to be synchronous. The
// worker-pool/channel rendezvous in rclone's
// backend/cache/handle.go (preloadQueue/confirmReading channels
// feeding a fixed set of workers) is the idiomatic Go shape for that
// same "post work, block for a bounded time, wake on completion"
// pattern, so Slot is built the same way: a pair of buffered channels
// standing in for the shared-memory control word and its futex wait.
package procipc

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tappress/qemu-wasm/internal/errno"
)

// Control states for the IDLE -> REQUEST -> RESPONSE -> IDLE
// protocol.
const (
	ControlIdle     int32 = 0
	ControlRequest  int32 = 1
	ControlResponse int32 = 2
)

// Opcode is one of the four process-lifecycle operations this
// protocol carries.
type Opcode int32

const (
	OpFork Opcode = 1
	OpExec Opcode = 2
	OpExit Opcode = 3
	OpWait Opcode = 4
)

// MaxPathLen is the path field capacity (8..71 words = 256 bytes).
const MaxPathLen = 256

// Request is what a worker posts into a slot.
type Request struct {
	ReqID uuid.UUID
	Op    Opcode
	Arg1  int64 // parent pid
	Arg2  int64 // flags / wait pid / exit status
	Arg3  int64 // options
	Path  string
}

// Response is what the supervisor posts back.
type Response struct {
	Result int64
	Err    int64
}

// Slot is the per-worker IPC region. Exactly one slot per worker is
// assumed.
type Slot struct {
	control int32 // atomic; ControlIdle/ControlRequest/ControlResponse

	reqCh  chan Request
	respCh chan Response
}

// NewSlot builds an idle slot.
func NewSlot() *Slot {
	return &Slot{
		reqCh:  make(chan Request, 1),
		respCh: make(chan Response, 1),
	}
}

// Control reads the current protocol state, for tests and the
// cmd/sabfsctl stats dump.
func (s *Slot) Control() int32 {
	return atomic.LoadInt32(&s.control)
}

// truncatePath enforces the fixed-maximum, NUL-terminated truncation
// on the path carried by the slot.
func truncatePath(p string) string {
	if len(p) >= MaxPathLen {
		return p[:MaxPathLen-1]
	}
	return p
}

// Post implements the worker side of the IDLE -> REQUEST -> RESPONSE
// -> IDLE state machine: write the request, mark it posted, wait for
// a response up to timeout. On timeout the slot is reset to IDLE and
// -ETIMEDOUT is returned.
func (s *Slot) Post(req Request, timeout time.Duration) Response {
	req.Path = truncatePath(req.Path)
	if req.ReqID == uuid.Nil {
		req.ReqID = uuid.New()
	}

	atomic.StoreInt32(&s.control, ControlRequest)
	select {
	case s.reqCh <- req:
	default:
		// Exactly one slot per worker is assumed; a full channel here
		// means a caller posted without waiting for the prior
		// response, which is a programming error, not a timeout.
		atomic.StoreInt32(&s.control, ControlIdle)
		return Response{Result: errno.EIO, Err: errno.EIO}
	}

	select {
	case resp := <-s.respCh:
		atomic.StoreInt32(&s.control, ControlIdle)
		return resp
	case <-time.After(timeout):
		atomic.StoreInt32(&s.control, ControlIdle)
		return Response{Result: errno.ETIMEDOUT, Err: errno.ETIMEDOUT}
	}
}

// Await is the supervisor side: block until a request is posted. ok
// is false if done is closed first.
func (s *Slot) Await(done <-chan struct{}) (Request, bool) {
	select {
	case req := <-s.reqCh:
		return req, true
	case <-done:
		return Request{}, false
	}
}

// Respond is the supervisor side of posting a response: mark the
// control word RESPONSE and deliver it. If the worker already gave up
// (timeout), the send is dropped rather than blocking forever.
func (s *Slot) Respond(resp Response) {
	atomic.StoreInt32(&s.control, ControlResponse)
	select {
	case s.respCh <- resp:
	default:
	}
}
