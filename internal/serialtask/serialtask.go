// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package serialtask provides a dedicated-goroutine task queue used to
// serialise access to shared, non-lock-free state.
//
// The staging upload engine (package upload) owns one Queue per CPU cache
// mode: every ring-buffer mutation for that cache mode funnels through the
// same goroutine, so the allocator's bookkeeping never needs its own mutex.
// This mirrors a Grand-Central-Dispatch-style serial queue or Swift's
// `@globalActor` — restated here as a plain goroutine reading off a channel.
package serialtask

import (
	"sync/atomic"
)

// Queue represents a single logical serial task executor. All function
// calls submitted to it run one at a time, in submission order, on the same
// goroutine.
type Queue struct {
	funcs   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New creates a new serial queue and starts its worker goroutine.
func New() *Queue {
	q := &Queue{
		funcs: make(chan func(), 16), // buffered for async calls
		done:  make(chan struct{}),
	}
	q.running.Store(true)

	ready := make(chan struct{})
	go func() {
		close(ready)
		for {
			select {
			case f := <-q.funcs:
				f()
			case <-q.done:
				return
			}
		}
	}()
	<-ready

	return q
}

// Call executes f on the queue's goroutine and waits for completion,
// returning f's result.
func (q *Queue) Call(f func() any) any {
	if !q.running.Load() {
		return nil
	}

	done := make(chan any, 1)
	q.funcs <- func() {
		done <- f()
	}
	return <-done
}

// CallVoid executes f on the queue's goroutine and waits for completion.
func (q *Queue) CallVoid(f func()) {
	if !q.running.Load() {
		return
	}

	done := make(chan struct{})
	q.funcs <- func() {
		f()
		close(done)
	}
	<-done
}

// CallAsync submits f to run on the queue's goroutine without waiting for
// it to complete. Used for detached cleanup work, such as the oversize
// upload buffer disposal described by the Staging Upload Engine.
func (q *Queue) CallAsync(f func()) {
	if !q.running.Load() {
		return
	}

	select {
	case q.funcs <- f:
	default:
		// Queue full: run synchronously rather than risk a deadlock against
		// a caller that is itself waiting on this queue.
		q.CallVoid(f)
	}
}

// Stop shuts down the queue's goroutine. Safe to call more than once.
func (q *Queue) Stop() {
	if q.running.Swap(false) {
		close(q.done)
	}
}

// IsRunning reports whether the queue's goroutine is still accepting work.
func (q *Queue) IsRunning() bool {
	return q.running.Load()
}
