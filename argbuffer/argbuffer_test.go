package argbuffer

import (
	"testing"
	"unsafe"

	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/rgerr"
	"github.com/gogpu/rendergraph/types"
)

func persistentBuf(index uint32) handle.Handle {
	return handle.New(handle.Index(index), 1, 0, handle.FlagPersistent, handle.KindBuffer)
}

func transientBuf(index uint32) handle.Handle {
	return handle.New(handle.Index(index), 1, 3, 0, handle.KindBuffer)
}

func TestSetBufferPersistencyViolation(t *testing.T) {
	ab := New(true)
	err := ab.SetBuffer("tex", 0, transientBuf(1))
	if !rgerr.IsPersistencyViolation(err) {
		t.Fatalf("expected persistency violation, got %v", err)
	}
}

func TestSetBufferAllowsPersistentChild(t *testing.T) {
	ab := New(true)
	if err := ab.SetBuffer("tex", 0, persistentBuf(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranslateEnqueuedBindingsMovesToBindings(t *testing.T) {
	ab := New(false)
	h := transientBuf(5)
	if err := ab.SetBuffer("albedo", 0, h); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}

	path := backend.NewBindingPath(7)
	ab.TranslateEnqueuedBindings(func(key string, arrayIndex int, v Value) (backend.BindingPath, bool) {
		if key == "albedo" {
			return path, true
		}
		return backend.BindingPath{}, false
	})

	if !ab.HasBindingFor(h) {
		t.Error("expected HasBindingFor to report the translated resource")
	}
	v, ok := ab.Binding(path)
	if !ok || v.Resource != h {
		t.Error("expected binding to resolve to the enqueued handle")
	}
}

func TestTranslateEnqueuedBindingsRetriesUnresolved(t *testing.T) {
	ab := New(false)
	h := transientBuf(1)
	ab.SetBuffer("k", 0, h)

	attempts := 0
	ab.TranslateEnqueuedBindings(func(key string, arrayIndex int, v Value) (backend.BindingPath, bool) {
		attempts++
		return backend.BindingPath{}, false
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt on first drain, got %d", attempts)
	}
	if ab.HasBindingFor(h) {
		t.Error("should not be bound yet")
	}

	path := backend.NewBindingPath(9)
	ab.TranslateEnqueuedBindings(func(key string, arrayIndex int, v Value) (backend.BindingPath, bool) {
		return path, true
	})
	if !ab.HasBindingFor(h) {
		t.Error("expected the retried entry to resolve on the second drain")
	}
}

func TestSetValueAndInlineBytes(t *testing.T) {
	ab := New(false)
	payload := []byte{1, 2, 3, 4}
	if err := ab.SetValue("constant", 0, payload); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	path := backend.NewBindingPath(11)
	var resolved Value
	ab.TranslateEnqueuedBindings(func(key string, arrayIndex int, v Value) (backend.BindingPath, bool) {
		resolved = v
		return path, true
	})

	got := ab.InlineBytes(resolved)
	if len(got) != len(payload) {
		t.Fatalf("InlineBytes length = %d, want %d", len(got), len(payload))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Errorf("byte %d = %d, want %d", i, got[i], payload[i])
		}
	}
}

// stubRenderBackend implements backend.RenderBackend, returning a fixed
// encoder value regardless of the current one, for exercising
// ArgumentBuffer.UpdateEncoder's CAS loop.
type stubRenderBackend struct {
	next backend.Encoder
}

func (stubRenderBackend) UpdateLabel(h handle.Handle, label string) {}
func (stubRenderBackend) Dispose(kind handle.Kind, h handle.Handle) {}
func (stubRenderBackend) BufferContents(buffer handle.Handle, r types.BufferRange) unsafe.Pointer {
	return nil
}
func (stubRenderBackend) BufferDidModifyRange(buffer handle.Handle, r types.BufferRange) {}
func (stubRenderBackend) ReplaceBackingResource(h handle.Handle, newBacking backend.BackingResource) backend.BackingResource {
	return nil
}
func (s stubRenderBackend) ArgumentBufferEncoder(path backend.BindingPath, current backend.Encoder) backend.Encoder {
	return s.next
}
func (stubRenderBackend) ArgumentBufferPath(index int, stages types.ShaderStages) backend.BindingPath {
	return backend.BindingPath{}
}

func TestSetValueForbiddenForHandleTypedKey(t *testing.T) {
	ab := New(false)
	if err := ab.SetBuffer("tex", 0, transientBuf(1)); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}
	if err := ab.SetValue("tex", 0, []byte{1, 2, 3, 4}); err == nil {
		t.Fatal("expected an error setting inline data on a handle-typed key")
	}

	ab2 := New(false)
	if err := ab2.SetValue("constant", 0, []byte{1}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := ab2.SetBuffer("constant", 0, transientBuf(2)); err == nil {
		t.Fatal("expected an error binding a resource to an inline-data key")
	}
}

func TestUpdateEncoderInstallsOnce(t *testing.T) {
	ab := New(false)
	rb := stubRenderBackend{next: backend.Encoder(42)}

	e := ab.UpdateEncoder(rb, backend.NewBindingPath(1))
	if e != backend.Encoder(42) {
		t.Fatalf("Encoder() = %v, want 42", e)
	}
	if ab.Encoder() != backend.Encoder(42) {
		t.Error("expected installed encoder to stick")
	}
}
