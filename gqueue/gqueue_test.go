package gqueue

import (
	"sync"
	"testing"

	"github.com/gogpu/rendergraph/rgerr"
)

func TestAllocateDisposeReuse(t *testing.T) {
	r := NewRegistry()
	id, err := r.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	r.Dispose(id)

	id2, err := r.Allocate()
	if err != nil {
		t.Fatalf("Allocate after dispose: %v", err)
	}
	if id2 != id {
		t.Errorf("expected slot reuse, got %d want %d", id2, id)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxQueues; i++ {
		if _, err := r.Allocate(); err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
	}
	if _, err := r.Allocate(); !rgerr.IsCapacityExceeded(err) {
		t.Errorf("expected capacity exceeded, got %v", err)
	}
}

func TestWaitForCommand(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Allocate()
	q := r.Queue(id)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.WaitForCommand(5)
	}()

	q.RecordSubmit(5)
	q.RecordCompletion(5)
	wg.Wait()

	if q.LastCompletedCommand() != 5 {
		t.Errorf("LastCompletedCommand = %d, want 5", q.LastCompletedCommand())
	}
}

func TestQueueNotAllocatedReturnsNil(t *testing.T) {
	r := NewRegistry()
	if q := r.Queue(3); q != nil {
		t.Error("expected nil for unallocated slot")
	}
}

func TestIterateActiveSkipsDisposed(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Allocate()
	b, _ := r.Allocate()
	r.Dispose(a)

	seen := map[ID]bool{}
	r.IterateActive(func(id ID, q *Queue) bool {
		seen[id] = true
		return true
	})

	if seen[a] {
		t.Error("disposed queue should not be visited")
	}
	if !seen[b] {
		t.Error("active queue should be visited")
	}
}
