package procipc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestForkExecWaitWithSimSupervisor(t *testing.T) {
	slot := NewSlot()
	sup := NewSimSupervisor(20000)
	done := make(chan struct{})
	defer close(done)
	go Serve(slot, sup, done)

	w := NewWorker(slot, 20000, 64, time.Second, 50*time.Millisecond)

	childPID, e := w.Fork(1)
	require.EqualValues(t, 0, e)
	assert.GreaterOrEqual(t, childPID, int64(20000))

	w.Exec("/bin/sh")

	w.RecordChildExit(childPID, 7)
	retPID, status, e := w.Wait4(childPID)
	require.EqualValues(t, 0, e)
	assert.Equal(t, childPID, retPID)
	assert.EqualValues(t, 7<<8, status)

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.LocalWaits, uint64(1))
}

// TestWait4TimeoutWithoutSupervisor checks that with no supervisor
// running, wait4 on an unknown pid returns -ETIMEDOUT within the
// configured window.
func TestWait4TimeoutWithoutSupervisor(t *testing.T) {
	slot := NewSlot()
	w := NewWorker(slot, 20000, 64, 200*time.Millisecond, 50*time.Millisecond)

	start := time.Now()
	_, _, e := w.Wait4(99999)
	elapsed := time.Since(start)

	assert.EqualValues(t, -110, e) // -ETIMEDOUT
	assert.Less(t, elapsed, 400*time.Millisecond)
	assert.GreaterOrEqual(t, w.Stats().Timeouts, uint64(1))
}

func TestExitIsFireAndForget(t *testing.T) {
	slot := NewSlot()
	sup := NewSimSupervisor(20000)
	done := make(chan struct{})
	defer close(done)
	go Serve(slot, sup, done)

	w := NewWorker(slot, 20000, 64, time.Second, 20*time.Millisecond)
	start := time.Now()
	w.Exit(0)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestEncodeExitStatus(t *testing.T) {
	assert.EqualValues(t, 0, EncodeExitStatus(0))
	assert.EqualValues(t, 1<<8, EncodeExitStatus(1))
	assert.EqualValues(t, 0xff<<8, EncodeExitStatus(0x1ff)) // masked to one byte
}

func TestProcTableFullRejectsForkUntilReclaimed(t *testing.T) {
	pt := NewProcTable(20000, 2)
	pid1, ok := pt.Fork()
	require.True(t, ok)
	_, ok = pt.Fork()
	require.True(t, ok)

	_, ok = pt.Fork()
	assert.False(t, ok, "table full of unwaited entries should reject fork")

	pt.RecordExit(pid1, 0)
	_, ok = pt.TryWait(pid1)
	require.True(t, ok)

	_, ok = pt.Fork()
	assert.True(t, ok, "a waited entry should be reclaimable")
}

// TestMultipleWorkersAgainstSharedSupervisor drives several independent
// worker+slot+Serve-goroutine triples concurrently against one shared
// SimSupervisor, using errgroup the way the harness in SPEC_FULL.md's
// DOMAIN STACK section describes: each worker is one simulated WASM
// worker thread; the supervisor stands in for the single host thread
// all of them ultimately share.
func TestMultipleWorkersAgainstSharedSupervisor(t *testing.T) {
	sup := NewSimSupervisor(20000)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			slot := NewSlot()
			done := make(chan struct{})
			defer close(done)
			go Serve(slot, sup, done)

			w := NewWorker(slot, 20000, 64, time.Second, 50*time.Millisecond)
			childPID, e := w.Fork(1)
			if e != 0 {
				return assert.AnError
			}
			w.Exec("/bin/sh")
			w.RecordChildExit(childPID, 3)
			_, status, e := w.Wait4(childPID)
			if e != 0 || status != 3<<8 {
				return assert.AnError
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestSlotControlStateMachine(t *testing.T) {
	slot := NewSlot()
	assert.EqualValues(t, ControlIdle, slot.Control())

	sup := HandlerFunc(func(req Request) Response {
		assert.EqualValues(t, ControlRequest, slot.Control())
		return Response{Result: 42}
	})
	done := make(chan struct{})
	defer close(done)
	go Serve(slot, sup, done)

	resp := slot.Post(Request{Op: OpFork}, time.Second)
	assert.EqualValues(t, 42, resp.Result)
	assert.EqualValues(t, ControlIdle, slot.Control())
}
