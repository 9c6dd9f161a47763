package procipc

import "sync"

// procEntry tracks one simulated child, enough to answer a later
// wait4 without an IPC round-trip once the child's exit has been
// recorded.
type procEntry struct {
	pid      int64
	exited   bool
	exitCode int32
	waited   bool
}

// ProcTable is the in-worker simulated process table: up to
// maxEntries children tracked by PID, drawn from a high base. A
// freed PID slot is only reused after the corresponding wait4 has
// been answered, avoiding a PID aliasing a still-unwaited child;
// ProcTable keeps that rule explicitly via the waited flag below.
type ProcTable struct {
	mu         sync.Mutex
	pidBase    int64
	nextPID    int64
	maxEntries int
	entries    map[int64]*procEntry
}

// NewProcTable builds a table handing out PIDs starting at pidBase.
func NewProcTable(pidBase int64, maxEntries int) *ProcTable {
	return &ProcTable{
		pidBase:    pidBase,
		nextPID:    pidBase,
		maxEntries: maxEntries,
		entries:    make(map[int64]*procEntry),
	}
}

// Fork allocates a new simulated child PID. Fails when the table is
// full of unwaited entries.
func (t *ProcTable) Fork() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) >= t.maxEntries {
		// Reclaim any already-waited entries before giving up.
		for pid, e := range t.entries {
			if e.waited {
				delete(t.entries, pid)
			}
		}
		if len(t.entries) >= t.maxEntries {
			return 0, false
		}
	}
	pid := t.nextPID
	t.nextPID++
	t.entries[pid] = &procEntry{pid: pid}
	return pid, true
}

// RecordExit marks a tracked child as exited with the given status,
// ready to answer a later wait4.
func (t *ProcTable) RecordExit(pid int64, exitCode int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[pid]
	if !ok {
		e = &procEntry{pid: pid}
		t.entries[pid] = e
	}
	e.exited = true
	e.exitCode = exitCode
}

// TryWait answers a wait4 locally if pid has already recorded its
// exit. ok is false when the caller must fall back to IPC (unknown
// pid, or not yet exited).
func (t *ProcTable) TryWait(pid int64) (exitCode int32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, exists := t.entries[pid]
	if !exists || !e.exited {
		return 0, false
	}
	e.waited = true
	return e.exitCode, true
}

// Len reports the number of tracked entries, used by Stats.
func (t *ProcTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// EncodeExitStatus implements the standard exit-status encoding:
// (exit_code & 0xff) << 8. Signal termination is explicitly out of
// scope; do not guess at its encoding here.
func EncodeExitStatus(exitCode int32) int32 {
	return (exitCode & 0xff) << 8
}
