package registry

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendergraph/column"
	"github.com/gogpu/rendergraph/gqueue"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/rgerr"
	"github.com/gogpu/rendergraph/usage"
)

// MaxQueues bounds the per-resource wait-index arrays, matching
// gqueue.MaxQueues.
const MaxQueues = gqueue.MaxQueues

// persistentSlot is one persistent registry slot's bookkeeping. It is kept
// as a single struct, stored in a column.Column[persistentSlot[T]], rather
// than as fully independent per-field columns: Go's type system makes a
// dynamic field-count SoA layout impractical, and a chunk of
// persistentSlot values still gives every field's address lifetime
// stability once its chunk is allocated, which is the property the spec's
// "never-relocated chunk" design exists to provide.
type persistentSlot[T any] struct {
	descriptor T

	generation atomic.Uint32 // low 8 bits significant

	usages *usage.List
	label  string
	heap   handle.Handle

	readWaitIndices  [MaxQueues]atomic.Uint64
	writeWaitIndices [MaxQueues]atomic.Uint64

	activeRenderGraphs atomic.Uint32 // bitmask, one bit per in-flight graph
	stateFlags         atomic.Uint32
	initialised        atomic.Bool
}

// StateFlag is a bit in a slot's stateFlags column.
type StateFlag uint32

const (
	// StateInitialised marks a slot whose descriptor has been populated.
	StateInitialised StateFlag = 1 << 0
)

// Persistent is the long-lived resource registry variant (spec §4.D):
// generation-bumping slot reuse, a free-index ring buffer, deferred
// disposal gated on isKnownInUse, and active-render-graph bitmasks.
// Generalises the teacher's core.IdentityManager (epoch-bumped free list)
// plus core.Registry (storage), combined with core.Snatchable's
// single-disposal guarantee.
type Persistent[T any] struct {
	kind handle.Kind

	mu            sync.Mutex // protects free list, enqueuedDisposals, nextFreeIndex
	free          []handle.Index
	nextFreeIndex handle.Index

	slots *column.Column[persistentSlot[T]]

	enqueuedDisposals []handle.Handle

	backend Disposer
}

// Disposer is the narrow slice of backend.RenderBackend a persistent
// registry needs in order to release backend resources on disposal.
type Disposer interface {
	Dispose(kind handle.Kind, h handle.Handle)
}

// NewPersistent creates a persistent registry for one resource kind.
func NewPersistent[T any](kind handle.Kind, backend Disposer) *Persistent[T] {
	return &Persistent[T]{
		kind:    kind,
		slots:   column.New[persistentSlot[T]](column.DefaultItemsPerChunk),
		backend: backend,
	}
}

// AllocateHandle pops a free index from the recycled-slot ring buffer,
// under the registry's lock, or grows nextFreeIndex; the returned handle
// carries the slot's current generation (spec §4.D).
func (r *Persistent[T]) AllocateHandle(flags handle.Flags) handle.Handle {
	r.mu.Lock()
	var index handle.Index
	if len(r.free) > 0 {
		index = r.free[0]
		r.free = r.free[1:]
	} else {
		index = r.nextFreeIndex
		r.nextFreeIndex++
	}
	r.mu.Unlock()

	slot := r.slots.At(uint32(index))
	gen := handle.Generation(slot.generation.Load())
	return handle.New(index, gen, 0, flags|handle.FlagPersistent, r.kind)
}

// Initialize populates the descriptor, heap back-reference, and
// stateFlags for an already-allocated handle.
func (r *Persistent[T]) Initialize(h handle.Handle, descriptor T, heap handle.Handle, flags handle.Flags) error {
	slot, err := r.slotForValid(h)
	if err != nil {
		return err
	}
	slot.descriptor = descriptor
	slot.heap = heap
	slot.usages = usage.NewList()
	slot.stateFlags.Store(uint32(StateInitialised))
	slot.initialised.Store(true)
	return nil
}

// Allocate combines AllocateHandle and Initialize.
func (r *Persistent[T]) Allocate(descriptor T, heap handle.Handle, flags handle.Flags) (handle.Handle, error) {
	h := r.AllocateHandle(flags)
	if err := r.Initialize(h, descriptor, heap, flags); err != nil {
		return 0, err
	}
	return h, nil
}

// generationFor returns the current generation stamped into any handle
// referring to index, without validating that a handle argument matches
// it.
func (r *Persistent[T]) generationFor(index handle.Index) handle.Generation {
	return handle.Generation(r.slots.At(uint32(index)).generation.Load())
}

// IsValid reports whether h's generation matches its slot's current
// generation (spec §4.A: "registry.generation(at: h.index()) ==
// h.generation()").
func (r *Persistent[T]) IsValid(h handle.Handle) bool {
	return h.Generation() == r.generationFor(h.Index())
}

func (r *Persistent[T]) slotForValid(h handle.Handle) (*persistentSlot[T], error) {
	if !r.IsValid(h) {
		return nil, rgerr.NewHandleError(h.Encode(), "stale persistent handle")
	}
	return r.slots.At(uint32(h.Index())), nil
}

// Descriptor returns the descriptor stored at h.
func (r *Persistent[T]) Descriptor(h handle.Handle) (T, error) {
	var zero T
	slot, err := r.slotForValid(h)
	if err != nil {
		return zero, err
	}
	return slot.descriptor, nil
}

// Usages returns the usage list for h, or an error if h is stale.
func (r *Persistent[T]) Usages(h handle.Handle) (*usage.List, error) {
	slot, err := r.slotForValid(h)
	if err != nil {
		return nil, err
	}
	return slot.usages, nil
}

// SetLabel sets the debug label for h.
func (r *Persistent[T]) SetLabel(h handle.Handle, label string) error {
	slot, err := r.slotForValid(h)
	if err != nil {
		return err
	}
	slot.label = label
	return nil
}

// MarkActiveOnGraph sets the activeRenderGraphs bit for the given graph
// queue, atomically.
func (r *Persistent[T]) MarkActiveOnGraph(h handle.Handle, queue gqueue.ID) error {
	slot, err := r.slotForValid(h)
	if err != nil {
		return err
	}
	for {
		old := slot.activeRenderGraphs.Load()
		next := old | (1 << uint(queue))
		if slot.activeRenderGraphs.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// ClearActiveOnGraph clears the activeRenderGraphs bit for the given graph
// queue, atomically.
func (r *Persistent[T]) ClearActiveOnGraph(h handle.Handle, queue gqueue.ID) error {
	slot, err := r.slotForValid(h)
	if err != nil {
		return err
	}
	for {
		old := slot.activeRenderGraphs.Load()
		next := old &^ (1 << uint(queue))
		if slot.activeRenderGraphs.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// RecordWait updates the read or write wait index for h on the given
// queue, used to model cross-queue ordering edges (spec §5).
func (r *Persistent[T]) RecordWait(h handle.Handle, queue gqueue.ID, write bool, index uint64) error {
	slot, err := r.slotForValid(h)
	if err != nil {
		return err
	}
	if write {
		slot.writeWaitIndices[queue].Store(index)
	} else {
		slot.readWaitIndices[queue].Store(index)
	}
	return nil
}

// isKnownInUse implements the spec §4.D predicate, cheapest check first:
// any active render graph, or any queue whose read/write wait index has
// not yet been reached by that queue's completed-command index.
func (r *Persistent[T]) isKnownInUse(slot *persistentSlot[T], queues *gqueue.Registry) bool {
	if slot.activeRenderGraphs.Load()&0xFF != 0 {
		return true
	}
	var inUse bool
	queues.IterateActive(func(id gqueue.ID, q *gqueue.Queue) bool {
		maxWait := slot.readWaitIndices[id].Load()
		if w := slot.writeWaitIndices[id].Load(); w > maxWait {
			maxWait = w
		}
		if maxWait > q.LastCompletedCommand() {
			inUse = true
			return false
		}
		return true
	})
	return inUse
}

// IsKnownInUse exposes the isKnownInUse predicate for a live handle.
func (r *Persistent[T]) IsKnownInUse(h handle.Handle, queues *gqueue.Registry) (bool, error) {
	slot, err := r.slotForValid(h)
	if err != nil {
		return false, err
	}
	return r.isKnownInUse(slot, queues), nil
}

// Dispose enqueues h for disposal if it is known in use, otherwise
// disposes it immediately (spec §4.D).
func (r *Persistent[T]) Dispose(h handle.Handle, queues *gqueue.Registry) error {
	slot, err := r.slotForValid(h)
	if err != nil {
		return err
	}
	if r.isKnownInUse(slot, queues) {
		r.mu.Lock()
		r.enqueuedDisposals = append(r.enqueuedDisposals, h)
		r.mu.Unlock()
		return nil
	}
	r.disposeImmediately(h, slot)
	return nil
}

// disposeImmediately calls the backend's dispose, deinitialises the slot's
// columns, and bumps its generation so outstanding handles become stale.
func (r *Persistent[T]) disposeImmediately(h handle.Handle, slot *persistentSlot[T]) {
	if r.backend != nil {
		r.backend.Dispose(r.kind, h)
	}
	var zero T
	slot.descriptor = zero
	slot.usages = nil
	slot.label = ""
	slot.heap = 0
	for i := range slot.readWaitIndices {
		slot.readWaitIndices[i].Store(0)
		slot.writeWaitIndices[i].Store(0)
	}
	slot.activeRenderGraphs.Store(0)
	slot.stateFlags.Store(0)
	slot.initialised.Store(false)
	slot.generation.Add(1)

	r.mu.Lock()
	r.free = append(r.free, h.Index())
	r.mu.Unlock()
}

// Clear processes enqueued disposals whose resources are no longer known
// in use, zeros usages for all populated slots, and clears the given
// graph's activeRenderGraphs bit everywhere (spec §4.D: "clear(afterGraph)").
func (r *Persistent[T]) Clear(afterGraphQueue gqueue.ID, queues *gqueue.Registry) {
	r.mu.Lock()
	pending := r.enqueuedDisposals
	r.enqueuedDisposals = nil
	nextFree := r.nextFreeIndex
	r.mu.Unlock()

	var stillPending []handle.Handle
	for _, h := range pending {
		slot := r.slots.At(uint32(h.Index()))
		if r.isKnownInUse(slot, queues) {
			stillPending = append(stillPending, h)
			continue
		}
		r.disposeImmediately(h, slot)
	}
	if len(stillPending) > 0 {
		r.mu.Lock()
		r.enqueuedDisposals = append(r.enqueuedDisposals, stillPending...)
		r.mu.Unlock()
	}

	for i := handle.Index(0); i < nextFree; i++ {
		slot := r.slots.At(uint32(i))
		if slot.usages != nil {
			slot.usages.Reset()
		}
		for {
			old := slot.activeRenderGraphs.Load()
			next := old &^ (1 << uint(afterGraphQueue))
			if slot.activeRenderGraphs.CompareAndSwap(old, next) {
				break
			}
		}
	}
}

// Count returns the number of slots ever allocated, including currently
// free ones (i.e. the high-water mark, not the live count).
func (r *Persistent[T]) Count() handle.Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextFreeIndex
}
