// Package gqueue tracks per-queue GPU submission progress: the monotonic
// command indices a queue has submitted and completed, plus the spin-yield
// wait primitive the rest of the runtime uses to block on GPU completion
// (spec §4.I).
//
// Up to MaxQueues queues are tracked; allocation and disposal are
// spin-lock-protected, while the submitted/completed indices themselves are
// plain atomics so readers never take the lock (mirrors the atomic-status
// style of core.CommandEncoder.status in the teacher package).
package gqueue

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/rgerr"
)

// MaxQueues is the hard upper bound on concurrently active queues (spec
// §4.I: "Up to 8 queues").
const MaxQueues = 8

// ID identifies a queue slot in the range [0, MaxQueues).
type ID uint8

// IsValid reports whether id names an allocated-range slot.
func (id ID) IsValid() bool { return id < MaxQueues }

// Queue holds one queue's submission/completion progress. Zero value is a
// fresh, never-submitted queue.
type Queue struct {
	lastSubmittedCommand atomic.Uint64
	lastCompletedCommand atomic.Uint64

	// submittedAt/completedAt are monotonic counters bumped alongside the
	// command indices, standing in for the wall-clock timestamps named in
	// spec §4.I without depending on a disallowed time source here.
	submittedAt atomic.Uint64
	completedAt atomic.Uint64

	inUse atomic.Bool
}

// LastSubmittedCommand returns the most recently submitted command index.
func (q *Queue) LastSubmittedCommand() uint64 { return q.lastSubmittedCommand.Load() }

// LastCompletedCommand returns the most recently completed command index.
func (q *Queue) LastCompletedCommand() uint64 { return q.lastCompletedCommand.Load() }

// RecordSubmit advances the submitted-command index. index must be
// monotonically non-decreasing across calls; callers (the graph executor)
// own that guarantee.
func (q *Queue) RecordSubmit(index uint64) {
	q.lastSubmittedCommand.Store(index)
	q.submittedAt.Add(1)
}

// RecordCompletion advances the completed-command index, signalling any
// waiters blocked in WaitForCommand.
func (q *Queue) RecordCompletion(index uint64) {
	q.lastCompletedCommand.Store(index)
	q.completedAt.Add(1)
}

// WaitForCommand busy-spins with a scheduler yield until the queue's
// completed index reaches at least index (spec §4.I, §5 "suspension
// points").
func (q *Queue) WaitForCommand(index uint64) {
	for q.lastCompletedCommand.Load() < index {
		runtime.Gosched()
	}
}

// Registry owns up to MaxQueues Queue slots (spec §4.I).
type Registry struct {
	mu     sync.Mutex
	queues [MaxQueues]Queue
}

// NewRegistry creates an empty queue registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Allocate reserves the first free queue slot and returns its ID.
// Returns a *rgerr.CapacityError (wrapping rgerr.ErrCapacityExceeded) if
// all MaxQueues slots are in use.
func (r *Registry) Allocate() (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.queues {
		if r.queues[i].inUse.CompareAndSwap(false, true) {
			r.queues[i].lastSubmittedCommand.Store(0)
			r.queues[i].lastCompletedCommand.Store(0)
			rglog.Logger().Debug("gqueue: allocated queue", "id", i)
			return ID(i), nil
		}
	}
	return 0, rgerr.NewCapacityError("queue registry", MaxQueues)
}

// Dispose releases a queue slot back to the free pool.
func (r *Registry) Dispose(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.queues) {
		return
	}
	r.queues[id].inUse.Store(false)
}

// Queue returns the Queue for id, or nil if id is out of range or not
// currently allocated.
func (r *Registry) Queue(id ID) *Queue {
	if int(id) >= len(r.queues) {
		return nil
	}
	q := &r.queues[id]
	if !q.inUse.Load() {
		return nil
	}
	return q
}

// WaitForCommand waits on the named queue. A no-op if id is not allocated.
func (r *Registry) WaitForCommand(id ID, index uint64) {
	if q := r.Queue(id); q != nil {
		q.WaitForCommand(index)
	}
}

// IterateActive calls fn once per currently allocated queue, in slot
// order. Returning false from fn stops iteration early.
func (r *Registry) IterateActive(fn func(id ID, q *Queue) bool) {
	for i := range r.queues {
		if !r.queues[i].inUse.Load() {
			continue
		}
		if !fn(ID(i), &r.queues[i]) {
			return
		}
	}
}
