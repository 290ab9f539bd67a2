// Package registry implements the transient and persistent resource
// registries (spec §4.C, §4.D): per-kind, handle-indexed storage built on
// top of the chunked column store, generalising the teacher's
// core.Registry[T, M] (identity management + storage) from a single
// growable slice into the spec's fixed-size and chunk-based variants.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/rgerr"
	"github.com/gogpu/rendergraph/usage"
)

// TransientFixed is the fixed-size, lock-free variant of a transient
// registry (spec §4.C): handle issuance is a single atomic fetch-add, and
// capacity is a hard, preallocated bound. Used for kinds whose per-graph
// count is statically bounded (buffers, textures, heaps, acceleration
// structures).
type TransientFixed[T any] struct {
	id       handle.TransientRegistryID
	kind     handle.Kind
	capacity uint32

	count      atomic.Uint32
	generation atomic.Uint32 // low 8 bits significant; see handle.Generation

	descriptors []T
	usages      []*usage.List
	labels      []string
	stateFlags  []uint32
}

// NewTransientFixed creates a fixed-capacity transient registry for one
// resource kind, owned by transient registry slot id.
func NewTransientFixed[T any](id handle.TransientRegistryID, kind handle.Kind, capacity uint32) *TransientFixed[T] {
	return &TransientFixed[T]{
		id:          id,
		kind:        kind,
		capacity:    capacity,
		descriptors: make([]T, capacity),
		usages:      make([]*usage.List, capacity),
		labels:      make([]string, capacity),
		stateFlags:  make([]uint32, capacity),
	}
}

// currentGeneration returns the registry-wide generation value current
// handles are stamped with. All handles issued between two Clear calls
// share this generation; Clear bumps it once, invalidating every
// outstanding handle at once (spec §4.C).
func (r *TransientFixed[T]) currentGeneration() handle.Generation {
	return handle.Generation(r.generation.Load())
}

// AllocateHandle bumps the registry's atomic counter and returns a handle
// for the new slot. Returns rgerr.ErrCapacityExceeded if the fixed bound
// is hit (spec §4.C: "Fails with CapacityExceeded if bound is hit").
func (r *TransientFixed[T]) AllocateHandle(flags handle.Flags) (handle.Handle, error) {
	index := r.count.Add(1) - 1
	if index >= r.capacity {
		r.count.Add(^uint32(0)) // undo: Add(-1)
		return 0, rgerr.NewCapacityError("transient fixed registry", uint64(r.capacity))
	}
	h := handle.New(handle.Index(index), r.currentGeneration(), r.id, flags, r.kind)
	r.usages[index] = usage.NewList()
	return h, nil
}

// Initialize populates the descriptor column for an already-allocated
// handle.
func (r *TransientFixed[T]) Initialize(h handle.Handle, descriptor T) {
	r.descriptors[h.Index()] = descriptor
}

// Allocate combines AllocateHandle and Initialize.
func (r *TransientFixed[T]) Allocate(descriptor T, flags handle.Flags) (handle.Handle, error) {
	h, err := r.AllocateHandle(flags)
	if err != nil {
		return 0, err
	}
	r.Initialize(h, descriptor)
	return h, nil
}

// IsValid reports whether h names a slot at the registry's current
// generation.
func (r *TransientFixed[T]) IsValid(h handle.Handle) bool {
	return h.Index() < handle.Index(r.capacity) && h.Generation() == r.currentGeneration()
}

// Descriptor returns the descriptor stored at h, or rgerr.ErrInvalidHandle
// if h is stale.
func (r *TransientFixed[T]) Descriptor(h handle.Handle) (T, error) {
	var zero T
	if !r.IsValid(h) {
		return zero, rgerr.NewHandleError(h.Encode(), "stale or out-of-range transient handle")
	}
	return r.descriptors[h.Index()], nil
}

// Usages returns the usage list for h, or nil if h is stale.
func (r *TransientFixed[T]) Usages(h handle.Handle) *usage.List {
	if !r.IsValid(h) {
		return nil
	}
	return r.usages[h.Index()]
}

// SetLabel sets the debug label for h.
func (r *TransientFixed[T]) SetLabel(h handle.Handle, label string) {
	if r.IsValid(h) {
		r.labels[h.Index()] = label
	}
}

// Clear deinitialises every populated slot, resets the count, and bumps
// the registry generation, invalidating all outstanding handles (spec
// §4.C). Runs at end of graph execution.
func (r *TransientFixed[T]) Clear() {
	n := r.count.Load()
	if n > r.capacity {
		n = r.capacity
	}
	var zero T
	for i := uint32(0); i < n; i++ {
		r.descriptors[i] = zero
		r.usages[i] = nil
		r.labels[i] = ""
		r.stateFlags[i] = 0
	}
	r.count.Store(0)
	r.generation.Add(1)
}

// Count returns the number of slots currently allocated.
func (r *TransientFixed[T]) Count() uint32 { return r.count.Load() }

// chunkSlot is the per-slot bookkeeping a chunk-based transient registry
// keeps alongside its descriptor chunks.
type chunkSlot[T any] struct {
	descriptor T
	usages     *usage.List
	label      string
}

// TransientChunked is the chunk-based transient registry variant (spec
// §4.C): a sync.Mutex (matching the teacher's use of plain mutexes for
// narrow critical sections) guards the chunk array and the count. Slot
// access is not lock-free: every slotFor lookup, IsValid and Count call
// takes the mutex briefly, though chunks themselves never move. Used for argument buffers and argument buffer arrays, whose per-frame
// count is unbounded in practice.
type TransientChunked[T any] struct {
	id   handle.TransientRegistryID
	kind handle.Kind

	mu         sync.Mutex
	count      uint32
	generation atomic.Uint32

	itemsPerChunk uint32
	chunks        []*[]chunkSlot[T]
}

// NewTransientChunked creates a chunk-based transient registry.
func NewTransientChunked[T any](id handle.TransientRegistryID, kind handle.Kind, itemsPerChunk uint32) *TransientChunked[T] {
	if itemsPerChunk == 0 {
		itemsPerChunk = 2048
	}
	return &TransientChunked[T]{id: id, kind: kind, itemsPerChunk: itemsPerChunk}
}

func (r *TransientChunked[T]) currentGeneration() handle.Generation {
	return handle.Generation(r.generation.Load())
}

// slotFor returns a pointer to the bookkeeping slot for index, growing the
// chunk array under the lock if needed. The returned pointer is stable for
// the registry's lifetime: chunks, once allocated, are never reallocated.
func (r *TransientChunked[T]) slotFor(index uint32) *chunkSlot[T] {
	chunkIdx := index / r.itemsPerChunk
	slotIdx := index % r.itemsPerChunk

	r.mu.Lock()
	for uint32(len(r.chunks)) <= chunkIdx {
		fresh := make([]chunkSlot[T], r.itemsPerChunk)
		r.chunks = append(r.chunks, &fresh)
	}
	chunk := r.chunks[chunkIdx]
	r.mu.Unlock()

	return &(*chunk)[slotIdx]
}

// AllocateHandle bumps the count under the registry's lock, growing a new
// chunk if needed, and returns a handle for the fresh slot.
func (r *TransientChunked[T]) AllocateHandle(flags handle.Flags) handle.Handle {
	r.mu.Lock()
	index := r.count
	r.count++
	r.mu.Unlock()

	slot := r.slotFor(index)
	slot.usages = usage.NewList()

	return handle.New(handle.Index(index), r.currentGeneration(), r.id, flags, r.kind)
}

// Initialize populates the descriptor for an already-allocated handle.
func (r *TransientChunked[T]) Initialize(h handle.Handle, descriptor T) {
	if !r.IsValid(h) {
		return
	}
	r.slotFor(uint32(h.Index())).descriptor = descriptor
}

// Allocate combines AllocateHandle and Initialize.
func (r *TransientChunked[T]) Allocate(descriptor T, flags handle.Flags) handle.Handle {
	h := r.AllocateHandle(flags)
	r.Initialize(h, descriptor)
	return h
}

// IsValid reports whether h names a currently-live slot.
func (r *TransientChunked[T]) IsValid(h handle.Handle) bool {
	r.mu.Lock()
	count := r.count
	r.mu.Unlock()
	return uint32(h.Index()) < count && h.Generation() == r.currentGeneration()
}

// Descriptor returns the descriptor at h.
func (r *TransientChunked[T]) Descriptor(h handle.Handle) (T, error) {
	var zero T
	if !r.IsValid(h) {
		return zero, rgerr.NewHandleError(h.Encode(), "stale or out-of-range transient handle")
	}
	return r.slotFor(uint32(h.Index())).descriptor, nil
}

// Usages returns the usage list for h, or nil if h is stale.
func (r *TransientChunked[T]) Usages(h handle.Handle) *usage.List {
	if !r.IsValid(h) {
		return nil
	}
	return r.slotFor(uint32(h.Index())).usages
}

// Clear deinitialises every populated slot, resets the count, and bumps
// the registry generation (spec §4.C). Chunk memory is reused across
// graphs; only the logical contents are reset.
func (r *TransientChunked[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero chunkSlot[T]
	remaining := r.count
	for _, chunk := range r.chunks {
		for i := range *chunk {
			if remaining == 0 {
				break
			}
			(*chunk)[i] = zero
			remaining--
		}
	}
	r.count = 0
	r.generation.Add(1)
}

// Count returns the number of slots currently allocated.
func (r *TransientChunked[T]) Count() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
