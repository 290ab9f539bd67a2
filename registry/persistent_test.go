package registry

import (
	"testing"

	"github.com/gogpu/rendergraph/gqueue"
	"github.com/gogpu/rendergraph/handle"
)

type fakeDisposer struct {
	disposed []handle.Handle
}

func (d *fakeDisposer) Dispose(kind handle.Kind, h handle.Handle) {
	d.disposed = append(d.disposed, h)
}

func TestPersistentAllocateAndDispose(t *testing.T) {
	disposer := &fakeDisposer{}
	r := NewPersistent[bufferDescriptor](handle.KindBuffer, disposer)
	queues := gqueue.NewRegistry()
	q0, _ := queues.Allocate()

	b, err := r.Allocate(bufferDescriptor{Length: 16}, 0, 0)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !b.IsPersistent() {
		t.Error("expected persistent flag set")
	}

	if err := r.MarkActiveOnGraph(b, q0); err != nil {
		t.Fatalf("MarkActiveOnGraph: %v", err)
	}
	if err := r.RecordWait(b, q0, true, 10); err != nil {
		t.Fatalf("RecordWait: %v", err)
	}

	if err := r.Dispose(b, queues); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !r.IsValid(b) {
		t.Error("B should still be valid: disposal is deferred while in use")
	}
	if len(disposer.disposed) != 0 {
		t.Error("backend Dispose should not have been called yet")
	}

	genBefore := b.Generation()

	if err := r.ClearActiveOnGraph(b, q0); err != nil {
		t.Fatalf("ClearActiveOnGraph: %v", err)
	}
	queues.Queue(q0).RecordCompletion(11)

	r.Clear(q0, queues)

	if r.IsValid(b) {
		t.Error("expected B to become invalid once known-in-use goes false")
	}
	if len(disposer.disposed) != 1 {
		t.Fatalf("expected exactly one backend Dispose call, got %d", len(disposer.disposed))
	}

	// Allocating again should reuse the freed slot with a bumped generation.
	b2, err := r.Allocate(bufferDescriptor{Length: 8}, 0, 0)
	if err != nil {
		t.Fatalf("re-allocate: %v", err)
	}
	if b2.Index() != b.Index() {
		t.Errorf("expected slot reuse, got index %d want %d", b2.Index(), b.Index())
	}
	if b2.Generation() != genBefore+1 {
		t.Errorf("generation = %d, want %d", b2.Generation(), genBefore+1)
	}
}

func TestPersistentStaleHandle(t *testing.T) {
	r := NewPersistent[bufferDescriptor](handle.KindBuffer, nil)
	h, _ := r.Allocate(bufferDescriptor{Length: 4}, 0, 0)
	queues := gqueue.NewRegistry()

	if err := r.Dispose(h, queues); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if r.IsValid(h) {
		t.Fatal("expected immediate disposal when not in use")
	}
	if _, err := r.Descriptor(h); err == nil {
		t.Error("expected error reading descriptor of disposed handle")
	}
}
