package upload

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/gqueue"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/types"
)

// fakeBackend is a minimal backend.RenderBackend: every buffer handle maps
// to a plain byte slice, and Dispose just records what was released.
type fakeBackend struct {
	mu       sync.Mutex
	mem      map[handle.Handle][]byte
	disposed []handle.Handle
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{mem: make(map[handle.Handle][]byte)}
}

func (b *fakeBackend) put(h handle.Handle, size uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mem[h] = make([]byte, size)
}

func (b *fakeBackend) UpdateLabel(handle.Handle, string) {}

func (b *fakeBackend) Dispose(kind handle.Kind, h handle.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = append(b.disposed, h)
}

func (b *fakeBackend) BufferContents(buf handle.Handle, r types.BufferRange) unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.mem[buf]
	return unsafe.Pointer(&data[r.Offset])
}

func (b *fakeBackend) BufferDidModifyRange(handle.Handle, types.BufferRange) {}

func (b *fakeBackend) ReplaceBackingResource(handle.Handle, backend.BackingResource) backend.BackingResource {
	return nil
}

func (b *fakeBackend) ArgumentBufferEncoder(path backend.BindingPath, current backend.Encoder) backend.Encoder {
	return current
}

func (b *fakeBackend) ArgumentBufferPath(int, types.ShaderStages) backend.BindingPath {
	return backend.BindingPath{}
}

func newTestEngine(rb *fakeBackend, capacity uint64) (*Engine, *gqueue.Registry, gqueue.ID) {
	queues := gqueue.NewRegistry()
	q, _ := queues.Allocate()

	ringBuf := handle.New(1, 0, 0, 0, handle.KindBuffer)
	rb.put(ringBuf, capacity)

	nextIndex := uint32(2)
	allocateTemp := func(size uint64) handle.Handle {
		h := handle.New(handle.Index(nextIndex), 0, 0, 0, handle.KindBuffer)
		nextIndex++
		rb.put(h, size)
		return h
	}

	e := NewEngine(rb, queues, capacity, map[types.CacheMode]handle.Handle{
		types.CacheModeShared: ringBuf,
	}, allocateTemp)
	return e, queues, q
}

func TestUploadRingWraparound(t *testing.T) {
	rb := newFakeBackend()
	e, queues, q := newTestEngine(rb, 1024)
	defer e.Close()

	var tokens []Reservation
	for i := 0; i < 4; i++ {
		res, err := e.UploadBytes(make([]byte, 256), handle.New(1, 0, 0, 0, handle.KindBuffer), 0, q)
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		tokens = append(tokens, res)
	}

	// Submit all four, then let the GPU complete the first three.
	for i, res := range tokens {
		e.DidSubmit(res.Token, q, uint64(i+1))
	}
	queues.Queue(q).RecordCompletion(3)

	// A fifth 256-byte upload must wrap to offset 0 without blocking,
	// since [0, 768) is free once the first three entries complete.
	if _, err := e.UploadBytes(make([]byte, 256), handle.New(1, 0, 0, 0, handle.KindBuffer), 0, q); err != nil {
		t.Fatalf("wrapped upload: %v", err)
	}

	ra := e.allocators[types.CacheModeShared]
	if ra.inUseStart != 768 {
		t.Errorf("inUseStart = %d, want 768 (three entries reclaimed)", ra.inUseStart)
	}
}

func TestUploadOversizeAllocatesDedicatedBuffer(t *testing.T) {
	rb := newFakeBackend()
	e, queues, q := newTestEngine(rb, 1024)
	defer e.Close()

	ra := e.allocators[types.CacheModeShared]
	startBefore, endBefore := ra.inUseStart, ra.inUseEnd

	res, err := e.WithUploadBuffer(4096, types.CacheModeShared, q, func(dst []byte) (types.BufferRange, error) {
		return types.BufferRange{Offset: 0, Length: uint64(len(dst))}, nil
	})
	if err != nil {
		t.Fatalf("oversize upload: %v", err)
	}
	if res.StagingBuffer.IsZero() {
		t.Fatal("expected an oversize reservation with a dedicated temp buffer")
	}
	tempBuffer := res.StagingBuffer

	e.DidSubmit(res.Token, q, 1)
	queues.Queue(q).RecordCompletion(1)
	e.Close() // waits for the detached disposal task

	rb.mu.Lock()
	disposed := append([]handle.Handle(nil), rb.disposed...)
	rb.mu.Unlock()

	found := false
	for _, h := range disposed {
		if h == tempBuffer {
			found = true
		}
	}
	if !found {
		t.Error("expected the dedicated oversize buffer to be disposed on completion")
	}

	if ra.inUseStart != startBefore || ra.inUseEnd != endBefore {
		t.Errorf("ring cursors moved for an oversize allocation: start %d->%d end %d->%d",
			startBefore, ra.inUseStart, endBefore, ra.inUseEnd)
	}
}
