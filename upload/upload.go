// Package upload implements the Staging Upload Engine (spec §4.H): a
// process-wide component serialising access to one ring-buffer
// sub-allocator per CPU cache mode, feeding blit passes and reclaiming
// space as the GPU completes submissions.
//
// Each cache mode's allocator state is owned by a single
// internal/serialtask.Queue goroutine, generalising the teacher's
// internal/thread.Thread pattern (there: UI/render-thread separation; here:
// the `@globalActor upload singleton` restated as a serial task boundary,
// per spec §9's design note).
package upload

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/column"
	"github.com/gogpu/rendergraph/gqueue"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/internal/serialtask"
	"github.com/gogpu/rendergraph/rgerr"
	"github.com/gogpu/rendergraph/types"
)

// pendingSubmissionMax is the ".max" sentinel from spec §4.H: a pending
// ring entry not yet patched with its real submission index.
const pendingSubmissionMax = ^uint64(0)

// pendingEntry is one ring-buffer or oversize reservation awaiting GPU
// completion. Stored in a column.List so WaitToken can hold a stable
// pointer into it across DidSubmit patching it in place.
type pendingEntry struct {
	submissionIndex atomic.Uint64
	rangeStart      uint64
	rangeEnd        uint64
	tempBuffer      handle.Handle // zero unless this is an oversize entry
	queue           gqueue.ID
	mode            types.CacheMode // which ringAllocator (and serial queue) owns this entry
}

// WaitToken is a (queue, submissionIndex) pair used to block until a
// specific submission completes (spec Glossary). The submission index may
// still be the pendingSubmissionMax sentinel when the token is returned;
// Wait spins until DidSubmit patches it.
type WaitToken struct {
	entry *pendingEntry
}

// Wait blocks until the reservation behind the token has been both
// submitted and completed by the GPU. Abandoning a WaitToken (never
// calling Wait) is safe: the GPU work still completes, and the ring slot
// reclaims itself on the next processCompletedCommands pass (spec §5).
func (t WaitToken) Wait(queues *gqueue.Registry) {
	if t.entry == nil {
		return
	}
	for t.entry.submissionIndex.Load() == pendingSubmissionMax {
		runtime.Gosched()
	}
	queues.WaitForCommand(t.entry.queue, t.entry.submissionIndex.Load())
}

// ringAllocator is one CPU-cache-mode's ring-buffer sub-allocator (spec
// §4.H). All mutation happens on its owning serialtask.Queue goroutine, so
// no field here needs its own lock.
type ringAllocator struct {
	mode     types.CacheMode
	buffer   handle.Handle
	capacity uint64

	inUseStart uint64
	inUseEnd   uint64

	pending    *column.List[pendingEntry]
	frontIndex int
}

func newRingAllocator(mode types.CacheMode, buffer handle.Handle, capacity uint64) *ringAllocator {
	return &ringAllocator{
		mode:     mode,
		buffer:   buffer,
		capacity: capacity,
		pending:  column.NewList[pendingEntry](column.DefaultItemsPerChunk),
	}
}

func alignUp(v, alignment uint64) uint64 {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// liveWindowOverlaps reports whether [start, end) intersects the
// allocator's current in-use window, honouring wraparound.
func (ra *ringAllocator) liveWindowOverlaps(start, end uint64) bool {
	if ra.inUseStart == ra.inUseEnd {
		return false // empty window
	}
	if ra.inUseStart < ra.inUseEnd {
		return start < ra.inUseEnd && end > ra.inUseStart
	}
	// Wrapped window: live region is [inUseStart, capacity) ∪ [0, inUseEnd).
	return start < ra.inUseEnd || end > ra.inUseStart
}

// processCompletedCommands implements spec §4.H step 1: pop every pending
// entry whose submission has completed, advancing inUseStart for ring
// entries and disposing dedicated buffers for oversize entries.
func (ra *ringAllocator) processCompletedCommands(queues *gqueue.Registry, rb backend.RenderBackend) {
	for ra.frontIndex < ra.pending.Len() {
		e := ra.pending.At(ra.frontIndex)
		submission := e.submissionIndex.Load()
		if submission == pendingSubmissionMax {
			break
		}
		q := queues.Queue(e.queue)
		if q == nil || q.LastCompletedCommand() < submission {
			break
		}

		if e.tempBuffer.IsZero() {
			ra.inUseStart = e.rangeEnd
		} else if rb != nil {
			rb.Dispose(handle.KindBuffer, e.tempBuffer)
		}
		ra.frontIndex++
	}
}

// FillFunc writes into dst (a view over the staging buffer's mapped
// memory) and reports the sub-range actually touched, or an error if the
// caller could not produce its data (spec §7: ErrUploadFillFailed).
type FillFunc func(dst []byte) (written types.BufferRange, err error)

// allocate implements spec §4.H's numbered ring-allocation algorithm for
// byteCount bytes aligned to alignment. Must run on the allocator's serial
// queue.
func (ra *ringAllocator) allocate(byteCount, alignment uint64, queue gqueue.ID, queues *gqueue.Registry, rb backend.RenderBackend, fill FillFunc) (uint64, *pendingEntry, error) {
	ra.processCompletedCommands(queues, rb)

	alignedStart := alignUp(ra.inUseEnd, alignment)
	alignedEnd := alignedStart + byteCount
	if alignedEnd > ra.capacity {
		alignedStart = 0
		alignedEnd = byteCount
	}

	for attempt := 0; ra.liveWindowOverlaps(alignedStart, alignedEnd); attempt++ {
		runtime.Gosched()
		ra.processCompletedCommands(queues, rb)
		if attempt > 4096 {
			return 0, nil, rgerr.NewCapacityError("staging ring buffer", ra.capacity)
		}
	}

	entry := ra.pending.Append(pendingEntry{rangeStart: alignedStart, rangeEnd: alignedEnd, queue: queue, mode: ra.mode})
	entry.submissionIndex.Store(pendingSubmissionMax)
	ra.inUseEnd = alignedEnd

	if rb != nil && fill != nil {
		ptr := rb.BufferContents(ra.buffer, types.BufferRange{Offset: alignedStart, Length: byteCount})
		dst := unsafe.Slice((*byte)(ptr), int(byteCount))
		written, err := fill(dst)
		if err != nil {
			return 0, nil, rgerr.NewUploadFillError(err)
		}
		rb.BufferDidModifyRange(ra.buffer, types.BufferRange{Offset: alignedStart + written.Offset, Length: written.Length})
	}

	return alignedStart, entry, nil
}

// allocateOversize implements spec §4.H's oversize path: a dedicated
// one-shot shared buffer, filled directly, tracked in pendingCommands with
// tempBuffer set so its disposal is driven by the same
// processCompletedCommands sweep.
func (ra *ringAllocator) allocateOversize(byteCount uint64, queue gqueue.ID, rb backend.RenderBackend, allocateTemp func(size uint64) handle.Handle, fill FillFunc) (*pendingEntry, error) {
	tempBuffer := allocateTemp(byteCount)

	if rb != nil && fill != nil {
		ptr := rb.BufferContents(tempBuffer, types.BufferRange{Offset: 0, Length: byteCount})
		dst := unsafe.Slice((*byte)(ptr), int(byteCount))
		if _, err := fill(dst); err != nil {
			return nil, rgerr.NewUploadFillError(err)
		}
	}

	entry := ra.pending.Append(pendingEntry{tempBuffer: tempBuffer, queue: queue, mode: ra.mode})
	entry.submissionIndex.Store(pendingSubmissionMax)
	return entry, nil
}

// Engine is the process-wide Staging Upload Engine (spec §4.H). One
// ringAllocator exists per types.CacheMode, each owned by its own serial
// task queue.
type Engine struct {
	rb           backend.RenderBackend
	queues       *gqueue.Registry
	allocators   map[types.CacheMode]*ringAllocator
	serialTasks  map[types.CacheMode]*serialtask.Queue
	allocateTemp func(size uint64) handle.Handle

	detached errgroup.Group // tracks detached oversize-disposal tasks (spec §4.H)
}

// NewEngine creates a Staging Upload Engine with one ring buffer of
// stagingBufferLength bytes per cache mode. allocateTemp must allocate (and
// register with a transient or persistent buffer registry) a one-shot
// shared-storage buffer of the requested size for the oversize path.
func NewEngine(rb backend.RenderBackend, queues *gqueue.Registry, stagingBufferLength uint64, buffers map[types.CacheMode]handle.Handle, allocateTemp func(size uint64) handle.Handle) *Engine {
	e := &Engine{
		rb:           rb,
		queues:       queues,
		allocators:   make(map[types.CacheMode]*ringAllocator),
		serialTasks:  make(map[types.CacheMode]*serialtask.Queue),
		allocateTemp: allocateTemp,
	}
	for mode, buf := range buffers {
		e.allocators[mode] = newRingAllocator(mode, buf, stagingBufferLength)
		e.serialTasks[mode] = serialtask.New()
	}
	return e
}

// Close waits for any detached disposal tasks to finish, lets each cache
// mode's serial queue run the sweeps those tasks queued on it, and then
// stops every serial task goroutine.
func (e *Engine) Close() {
	_ = e.detached.Wait()
	for _, q := range e.serialTasks {
		q.CallVoid(func() {}) // runs after any work already queued by CallAsync
		q.Stop()
	}
}

func (e *Engine) allocatorFor(mode types.CacheMode) (*ringAllocator, *serialtask.Queue, bool) {
	ra, ok := e.allocators[mode]
	if !ok {
		return nil, nil, false
	}
	return ra, e.serialTasks[mode], true
}

// Reservation is what a staging allocation hands back: the WaitToken for
// the reservation's lifetime, plus where in which staging buffer the bytes
// actually landed. Composing the staging→destination copy command is the
// render-graph executor's job (out of scope here, spec §1); the executor
// needs StagingBuffer/StagingOffset/Length to encode that copy.
type Reservation struct {
	Token         WaitToken
	StagingBuffer handle.Handle
	StagingOffset uint64
	Length        uint64
}

// UploadBytes copies source into a staging allocation via the
// shared-cache-mode ring allocator (spec §4.H). buffer/offset name the
// eventual destination the caller will copy the staged bytes into; the
// engine does not read them and the returned Reservation does not carry
// them, since encoding that copy is outside this engine's scope.
func (e *Engine) UploadBytes(source []byte, buffer handle.Handle, offset uint64, queue gqueue.ID) (Reservation, error) {
	return e.withUploadBuffer(uint64(len(source)), types.CacheModeShared, queue, func(dst []byte) (types.BufferRange, error) {
		n := copy(dst, source)
		return types.BufferRange{Offset: 0, Length: uint64(n)}, nil
	})
}

// withUploadBuffer reserves length bytes from the cacheMode ring
// allocator, invokes fill to populate it, and returns a Reservation
// describing where the bytes landed (spec §4.H).
func (e *Engine) withUploadBuffer(length uint64, cacheMode types.CacheMode, queue gqueue.ID, fill FillFunc) (Reservation, error) {
	ra, serial, ok := e.allocatorFor(cacheMode)
	if !ok {
		return Reservation{}, rgerr.NewHandleError(0, "no ring allocator for cache mode")
	}

	if length > ra.capacity {
		result := serial.Call(func() any {
			entry, err := ra.allocateOversize(length, queue, e.rb, e.allocateTemp, fill)
			return oversizeResult{entry: entry, err: err}
		}).(oversizeResult)
		if result.err != nil {
			return Reservation{}, result.err
		}
		return Reservation{
			Token:         WaitToken{entry: result.entry},
			StagingBuffer: result.entry.tempBuffer,
			Length:        length,
		}, nil
	}

	result := serial.Call(func() any {
		start, entry, err := ra.allocate(length, 256, queue, e.queues, e.rb, fill)
		return allocResult{start: start, entry: entry, err: err}
	}).(allocResult)
	if result.err != nil {
		return Reservation{}, result.err
	}
	return Reservation{
		Token:         WaitToken{entry: result.entry},
		StagingBuffer: ra.buffer,
		StagingOffset: result.start,
		Length:        length,
	}, nil
}

// WithUploadBuffer exposes the reservation primitive named in spec §4.H.
func (e *Engine) WithUploadBuffer(length uint64, cacheMode types.CacheMode, queue gqueue.ID, fill FillFunc) (Reservation, error) {
	return e.withUploadBuffer(length, cacheMode, queue, fill)
}

type allocResult struct {
	start uint64
	entry *pendingEntry
	err   error
}

type oversizeResult struct {
	entry *pendingEntry
	err   error
}

// TextureCopy names the destination texture region of a staged texture
// upload. The blit pass itself is an external collaborator concern
// (command-buffer authoring is out of scope); ReplaceTextureRegion only
// makes the staging reservation and does not read this value.
type TextureCopy struct {
	Texture       handle.Handle
	MipLevel      uint32
	Slice         types.TextureSliceRange
	BytesPerRow   uint64
	BytesPerImage uint64
}

// ReplaceTextureRegion reserves staging space for a texture upload and
// fills it from source, returning a Reservation describing the staging
// location the caller must copy from.
func (e *Engine) ReplaceTextureRegion(copy TextureCopy, source []byte, queue gqueue.ID) (Reservation, error) {
	return e.withUploadBuffer(uint64(len(source)), types.CacheModeManaged, queue, func(dst []byte) (types.BufferRange, error) {
		n := copy_(dst, source)
		return types.BufferRange{Offset: 0, Length: uint64(n)}, nil
	})
}

// copy_ is a tiny indirection that reaches the builtin copy from inside
// ReplaceTextureRegion, whose TextureCopy parameter named `copy` shadows it.
func copy_(dst, src []byte) int { return copy(dst, src) }

// BlitPassBody is the caller-provided closure a runBlitPass invocation
// executes; its argument is opaque to this package (an external,
// backend-specific command encoder).
type BlitPassBody func(encoder any) error

// RunBlitPass hands body a backend-specific encoder argument and returns a
// WaitToken tracking the pass. Since constructing a real command-buffer
// object is the render-graph executor's job (out of scope here), body
// receives nil; callers compose this with their own executor.
func (e *Engine) RunBlitPass(body BlitPassBody, queue gqueue.ID) (WaitToken, error) {
	if err := body(nil); err != nil {
		return WaitToken{}, err
	}
	return WaitToken{}, nil
}

// GenerateMipmaps schedules mip generation for texture via a blit pass.
// Actual mip-chain computation is backend-specific; this only provides the
// WaitToken plumbing the spec names.
func (e *Engine) GenerateMipmaps(texture handle.Handle, queue gqueue.ID) (WaitToken, error) {
	return e.RunBlitPass(func(encoder any) error {
		rglog.Logger().Debug("upload: generateMipmaps", "texture", texture.String())
		return nil
	}, queue)
}

// DidSubmit patches the pending entry behind token with the real queue and
// submission index, and for oversize entries schedules a detached task that waits on
// the resulting WaitToken before triggering a final
// processCompletedCommands sweep (spec §4.H, §9: "treat didSubmit as the
// sole progress point").
func (e *Engine) DidSubmit(token WaitToken, queue gqueue.ID, submissionIndex uint64) {
	if token.entry == nil {
		return
	}
	token.entry.queue = queue
	token.entry.submissionIndex.Store(submissionIndex)

	if !token.entry.tempBuffer.IsZero() {
		ra, serial, ok := e.allocatorFor(token.entry.mode)
		e.detached.Go(func() error {
			e.queues.WaitForCommand(queue, submissionIndex)
			if ok {
				// Route the sweep back through the owning cache mode's
				// serial queue: every ring-buffer mutation (frontIndex,
				// inUseStart, pending) must stay on that single goroutine
				// (spec §5), never touched directly from this detached task.
				serial.CallAsync(func() {
					ra.processCompletedCommands(e.queues, e.rb)
				})
			}
			return nil
		})
	}
}
