// Package argbuffer implements the Argument Buffer Engine (spec §4.G):
// deferred key→path translation for argument-buffer member bindings,
// compare-and-swap backend-encoder selection, and an inline POD data
// arena for setValue/setBytes payloads.
//
// The per-buffer lock and CAS-installed pointer are grounded on the
// teacher's snatch pattern (core/snatch.go) — a single piece of mutable
// shared state (there: a destructible resource; here: enqueuedBindings +
// bindings + the arena) guarded by one lock per owning object, plus an
// atomically swapped pointer for the encoder itself.
package argbuffer

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/column"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/rgerr"
)

// ValueKind discriminates what an enqueued or resolved binding carries.
type ValueKind uint8

const (
	// ValueResource is a handle to a buffer, texture, sampler, or
	// acceleration structure.
	ValueResource ValueKind = iota
	// ValueInline is a POD payload copied into the buffer's inline data
	// arena (setValue/setBytes).
	ValueInline
)

// Value is the sum type an argument-buffer binding slot holds.
type Value struct {
	Kind ValueKind

	Resource handle.Handle

	InlineOffset int
	InlineLength int
}

// enqueuedBinding is one (key, arrayIndex, value) tuple awaiting path
// translation (spec §4.G).
type enqueuedBinding struct {
	key        string
	arrayIndex int
	value      Value
}

// TranslateFunc resolves an enqueued (key, arrayIndex, value) tuple to a
// concrete BindingPath, or reports it cannot be resolved yet.
type TranslateFunc func(key string, arrayIndex int, value Value) (backend.BindingPath, bool)

// ArgumentBuffer is the per-resource state an argument-buffer handle's
// registry slot stores (spec §3's argument-buffer-only columns): the
// enqueued/resolved binding FIFOs, the inline data arena, the CAS-installed
// encoder pointer, and the weak back-reference to an owning array.
type ArgumentBuffer struct {
	persistent bool

	mu                sync.Mutex
	enqueued          *column.List[enqueuedBinding]
	resumePoint       int
	bindings          map[backend.BindingPath]Value
	inlineDataStorage []byte
	keyKinds          map[string]ValueKind // first-observed kind per key, for the setValue/handle-type check below

	encoder     atomic.Uintptr
	sourceArray handle.Handle // weak back-reference; zero if this is not an array member
}

// New creates an empty argument buffer. persistent must match the flag the
// owning handle was allocated with.
func New(persistent bool) *ArgumentBuffer {
	return &ArgumentBuffer{
		persistent: persistent,
		enqueued:   column.NewList[enqueuedBinding](column.DefaultItemsPerChunk),
		bindings:   make(map[backend.BindingPath]Value),
		keyKinds:   make(map[string]ValueKind),
	}
}

// SetSourceArray records the owning argument-buffer-array handle for an
// array member, non-owningly (spec §3: "sourceArray: weak back-ref").
func (ab *ArgumentBuffer) SetSourceArray(h handle.Handle) {
	ab.mu.Lock()
	ab.sourceArray = h
	ab.mu.Unlock()
}

// SourceArray returns the owning array handle, or the zero handle if this
// buffer is not an array member.
func (ab *ArgumentBuffer) SourceArray() handle.Handle {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.sourceArray
}

// claimKeyKind records the first-observed ValueKind for key, or reports an
// error if key was previously used with a different kind. This enforces
// spec §4.G's "setValue is forbidden for handle-typed arguments": a key
// already bound as a resource can't later be set as inline POD data, and
// vice versa.
func (ab *ArgumentBuffer) claimKeyKind(key string, arrayIndex int, kind ValueKind) error {
	if existing, ok := ab.keyKinds[key]; ok && existing != kind {
		if kind == ValueInline {
			return rgerr.NewBindingError(key, arrayIndex, "setValue/setBytes is forbidden for a handle-typed argument")
		}
		return rgerr.NewBindingError(key, arrayIndex, "a resource binding is forbidden for an inline-data argument")
	}
	ab.keyKinds[key] = kind
	return nil
}

func (ab *ArgumentBuffer) enqueue(key string, arrayIndex int, v Value) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if err := ab.claimKeyKind(key, arrayIndex, v.Kind); err != nil {
		return err
	}
	ab.enqueued.Append(enqueuedBinding{key: key, arrayIndex: arrayIndex, value: v})
	return nil
}

// checkPersistency enforces spec §4.G's invariant: a persistent argument
// buffer's bindings may reference only persistent resources.
func (ab *ArgumentBuffer) checkPersistency(operation string, h handle.Handle) error {
	if ab.persistent && !h.IsPersistent() {
		return rgerr.NewPersistencyError(operation)
	}
	return nil
}

// SetBuffer enqueues a buffer binding at (key, arrayIndex).
func (ab *ArgumentBuffer) SetBuffer(key string, arrayIndex int, h handle.Handle) error {
	if err := ab.checkPersistency("setBuffer", h); err != nil {
		return err
	}
	return ab.enqueue(key, arrayIndex, Value{Kind: ValueResource, Resource: h})
}

// SetTexture enqueues a texture binding at (key, arrayIndex).
func (ab *ArgumentBuffer) SetTexture(key string, arrayIndex int, h handle.Handle) error {
	if err := ab.checkPersistency("setTexture", h); err != nil {
		return err
	}
	return ab.enqueue(key, arrayIndex, Value{Kind: ValueResource, Resource: h})
}

// SetSampler enqueues a sampler binding at (key, arrayIndex). Samplers are
// not subject to the persistency invariant (spec §4.G names only
// setBuffer/setTexture).
func (ab *ArgumentBuffer) SetSampler(key string, arrayIndex int, h handle.Handle) error {
	return ab.enqueue(key, arrayIndex, Value{Kind: ValueResource, Resource: h})
}

// SetAccelerationStructure enqueues an acceleration-structure binding at
// (key, arrayIndex).
func (ab *ArgumentBuffer) SetAccelerationStructure(key string, arrayIndex int, h handle.Handle) error {
	return ab.enqueue(key, arrayIndex, Value{Kind: ValueResource, Resource: h})
}

// appendInline copies data into the buffer's append-only inline data
// arena and returns the (offset, length) the caller should remember.
func (ab *ArgumentBuffer) appendInline(data []byte) (offset, length int) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	offset = len(ab.inlineDataStorage)
	ab.inlineDataStorage = append(ab.inlineDataStorage, data...)
	return offset, len(data)
}

// SetValue copies a POD payload into the inline data arena and enqueues a
// binding referencing it. Forbidden for handle-typed arguments — use
// SetBuffer/SetTexture/etc. for those (spec §4.G); returns
// *rgerr.BindingError if key was already used for a resource binding.
func (ab *ArgumentBuffer) SetValue(key string, arrayIndex int, data []byte) error {
	offset, length := ab.appendInline(data)
	return ab.enqueue(key, arrayIndex, Value{Kind: ValueInline, InlineOffset: offset, InlineLength: length})
}

// SetBytes is the raw-pointer form of SetValue (spec §4.G names both);
// behaviourally identical once the bytes have been copied in.
func (ab *ArgumentBuffer) SetBytes(key string, arrayIndex int, data []byte) error {
	return ab.SetValue(key, arrayIndex, data)
}

// InlineBytes returns the arena slice a resolved Value of Kind
// ValueInline refers to.
func (ab *ArgumentBuffer) InlineBytes(v Value) []byte {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	if v.Kind != ValueInline {
		return nil
	}
	return ab.inlineDataStorage[v.InlineOffset : v.InlineOffset+v.InlineLength]
}

// TranslateEnqueuedBindings drains the enqueued FIFO under the buffer's
// lock: for each entry, translate resolves it to a path; on success the
// entry moves to bindings, on failure it is left for a later attempt
// (spec §4.G).
func (ab *ArgumentBuffer) TranslateEnqueuedBindings(translate TranslateFunc) {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	total := ab.enqueued.Len()
	for i := ab.resumePoint; i < total; i++ {
		e := ab.enqueued.At(i)
		path, ok := translate(e.key, e.arrayIndex, e.value)
		if !ok {
			ab.enqueued.Append(*e)
			continue
		}
		ab.bindings[path] = e.value
	}
	ab.resumePoint = total
}

// Binding returns the resolved value bound at path, if any.
func (ab *ArgumentBuffer) Binding(path backend.BindingPath) (Value, bool) {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	v, ok := ab.bindings[path]
	return v, ok
}

// HasBindingFor reports whether resource r's key ever translated
// successfully — i.e. whether r appears in bindings (spec §8 testable
// property: "r appears in the argument buffer's bindings iff translation
// succeeded at least once for r's key").
func (ab *ArgumentBuffer) HasBindingFor(r handle.Handle) bool {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for _, v := range ab.bindings {
		if v.Kind == ValueResource && v.Resource == r {
			return true
		}
	}
	return false
}

// UpdateEncoder runs the CAS loop that installs the backend-provided
// encoder for path onto this buffer, reusing the previously installed
// encoder if the backend can extend it (spec §4.G).
func (ab *ArgumentBuffer) UpdateEncoder(rb backend.RenderBackend, path backend.BindingPath) backend.Encoder {
	for {
		current := backend.Encoder(ab.encoder.Load())
		next := rb.ArgumentBufferEncoder(path, current)
		if next == current {
			return current
		}
		if ab.encoder.CompareAndSwap(uintptr(current), uintptr(next)) {
			return next
		}
	}
}

// Encoder returns the currently installed encoder, or the zero Encoder if
// none has been installed yet.
func (ab *ArgumentBuffer) Encoder() backend.Encoder {
	return backend.Encoder(ab.encoder.Load())
}
