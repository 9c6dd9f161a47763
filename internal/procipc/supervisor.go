package procipc

import (
	"sync/atomic"

	"github.com/tappress/qemu-wasm/internal/rlog"
)

// Supervisor is the external collaborator: it runs on the host's
// main thread and is reachable only through the shared Slot. This
// package ships a simple in-process simulation (SimSupervisor) for
// tests and cmd/sabfsctl's debug mode; a real embedding wires its own
// implementation against the host runtime's thread and message
// dispatcher (explicitly out of scope).
type Supervisor interface {
	// Handle answers one posted request. Called from the supervisor's
	// own goroutine/thread, never from the worker.
	Handle(req Request) Response
}

// HandlerFunc adapts a plain function to Supervisor.
type HandlerFunc func(Request) Response

func (f HandlerFunc) Handle(req Request) Response { return f(req) }

// Serve runs sup against slot until done is closed. Intended to be
// started in its own goroutine, standing in for the host supervisor
// thread as a separate parallel actor.
func Serve(slot *Slot, sup Supervisor, done <-chan struct{}) {
	for {
		req, ok := slot.Await(done)
		if !ok {
			return
		}
		resp := sup.Handle(req)
		slot.Respond(resp)
	}
}

// SimSupervisor is a minimal supervisor good enough for tests and
// cmd/sabfsctl: it allocates PIDs and exit statuses the way a real
// runtime's process manager would, without touching any real OS
// process.
type SimSupervisor struct {
	nextPID  int64
	exitCode int32
}

// NewSimSupervisor builds a SimSupervisor handing out PIDs from
// pidBase.
func NewSimSupervisor(pidBase int64) *SimSupervisor {
	return &SimSupervisor{nextPID: pidBase}
}

func (s *SimSupervisor) String() string { return "procipc.simsupervisor" }

func (s *SimSupervisor) Handle(req Request) Response {
	switch req.Op {
	case OpFork:
		pid := atomic.AddInt64(&s.nextPID, 1)
		rlog.Debugf(s, "fork -> pid %d", pid)
		return Response{Result: pid}
	case OpExec:
		rlog.Debugf(s, "execve %s (logged only)", req.Path)
		return Response{Result: 0}
	case OpExit:
		rlog.Debugf(s, "exit status=%d", req.Arg2)
		return Response{Result: 0}
	case OpWait:
		// The simulation always reports a clean exit with status 0;
		// a real supervisor would consult its own child table.
		return Response{Result: 0}
	default:
		return Response{Result: 0}
	}
}
