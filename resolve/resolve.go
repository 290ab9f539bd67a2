// Package resolve implements the Binding Resolver (spec §4.F): the
// per-encoder algorithm that maps recorded "bind X to key K" commands onto
// concrete backend binding paths, tracks per-binding usage nodes, and
// emits a minimal correct command stream across pipeline-state changes.
//
// It is grounded on the teacher's track package's style of holding
// metadata-by-index and walking it on state transitions (core/track/buffer.go),
// generalised here to per-BindingPath tracking rather than per-resource-index
// tracking, since the resolver's unit of identity is a binding slot, not a
// resource.
package resolve

import (
	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/column"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/internal/rglog"
	"github.com/gogpu/rendergraph/rgerr"
	"github.com/gogpu/rendergraph/types"
	"github.com/gogpu/rendergraph/usage"
)

// BoundResource is the resolver's record of what currently occupies a
// BindingPath (spec §4.F).
type BoundResource struct {
	Handle                 handle.Handle
	BindingCommand         *Command
	UsageNode              usage.Node
	InArgumentBuffer       bool
	ConsistentUsageAssumed bool

	// offset is tracked separately from BindingCommand so a later
	// setBufferOffset can compare against it without re-walking the
	// command.
	offset uint64
}

// pendingArgumentBufferBinding is one queued argument-buffer binding
// command, tracked the same way resourceBindingCommands is.
type pendingArgumentBufferBinding struct {
	cmd Command
}

// Encoder holds all per-encoder resolver state (spec §4.F "State held per
// encoder"). One Encoder exists per command encoder / pass and is
// discarded at endEncoding.
type Encoder struct {
	resourceBindingCommands    *column.List[pending]
	resourceCmdCountLastUpdate int

	pendingArgumentBuffersByKey *column.List[pendingArgumentBufferBinding]
	pendingArgumentBuffers      *column.List[pendingArgumentBufferBinding]
	argKeyCountLastUpdate       int
	argPathCountLastUpdate      int

	boundResources          map[backend.BindingPath]*BoundResource
	untrackedBoundResources map[backend.BindingPath]*BoundResource
	boundUAVResources       map[backend.BindingPath]struct{}

	pipelineStateChanged      bool
	needsUpdateBindings       bool
	lastGPUCommandIndex       uint64
	currentPipelineReflection backend.PipelineReflection

	sink Sink

	// pendingClose accumulates usage nodes whose range must be closed at
	// the end of the current Resolve pass (step 8).
	pendingClose []usage.Node
}

// NewEncoder creates a resolver encoder bound to a command sink.
func NewEncoder(sink Sink) *Encoder {
	return &Encoder{
		resourceBindingCommands:     column.NewList[pending](column.DefaultItemsPerChunk),
		pendingArgumentBuffersByKey: column.NewList[pendingArgumentBufferBinding](column.DefaultItemsPerChunk),
		pendingArgumentBuffers:      column.NewList[pendingArgumentBufferBinding](column.DefaultItemsPerChunk),
		boundResources:          make(map[backend.BindingPath]*BoundResource),
		untrackedBoundResources: make(map[backend.BindingPath]*BoundResource),
		boundUAVResources:       make(map[backend.BindingPath]struct{}),
		sink:                    sink,
	}
}

// RecordBinding appends a binding command to the encoder's FIFO and flags
// that bindings need updating before the next draw/dispatch.
func (e *Encoder) RecordBinding(cmd Command) {
	e.resourceBindingCommands.Append(pending{cmd: cmd})
	e.needsUpdateBindings = true
}

// RecordArgumentBufferBindingByKey queues an argument-buffer member
// binding that still needs its own path resolved first.
func (e *Encoder) RecordArgumentBufferBindingByKey(cmd Command) {
	e.pendingArgumentBuffersByKey.Append(pendingArgumentBufferBinding{cmd: cmd})
	e.needsUpdateBindings = true
}

// RecordArgumentBufferBinding queues an argument-buffer member binding
// whose own path is already known.
func (e *Encoder) RecordArgumentBufferBinding(cmd Command) {
	e.pendingArgumentBuffers.Append(pendingArgumentBufferBinding{cmd: cmd})
	e.needsUpdateBindings = true
}

// SetPipelineReflection installs the reflection for the currently bound
// pipeline and marks the pipeline state as changed, triggering the
// resolver's re-walk on the next Resolve call (spec §4.F step 6).
func (e *Encoder) SetPipelineReflection(r backend.PipelineReflection) {
	e.currentPipelineReflection = r
	e.pipelineStateChanged = true
	e.needsUpdateBindings = true
}

// AdvanceCommandIndex records the GPU command index the next draw/dispatch
// will occupy, used to widen usage-node ranges.
func (e *Encoder) AdvanceCommandIndex(index uint64) {
	e.lastGPUCommandIndex = index
}

// Resolve runs the binding-resolution algorithm (spec §4.F). Call before
// every draw/dispatch, and once more with endingEncoding=true at
// endEncoding.
func (e *Encoder) Resolve(endingEncoding bool, passIndex uint32, reg ResourceLookup) error {
	// Step 1: fast path.
	if !e.needsUpdateBindings && !endingEncoding {
		return nil
	}

	// Step 2: ending the encoder widens every still-bound usage node to
	// cover the last command, and nothing else.
	if endingEncoding {
		for _, br := range e.boundResources {
			if br.UsageNode != nil {
				br.UsageNode.WidenTo(e.lastGPUCommandIndex + 1)
			}
		}
		for _, br := range e.untrackedBoundResources {
			if br.UsageNode != nil {
				br.UsageNode.WidenTo(e.lastGPUCommandIndex + 1)
			}
		}
		return nil
	}

	// Step 3: resolving requires a bound pipeline.
	if e.currentPipelineReflection == nil {
		return rgerr.ErrMissingPipelineState
	}
	reflection := e.currentPipelineReflection

	// Step 4: walk resourceBindingCommands from where we left off. Entries
	// re-queued during this walk (still inactive in this pipeline) are
	// appended past resourceCmdTotal and are left for the next Resolve
	// call, not reprocessed in this one.
	resourceCmdTotal := e.resourceBindingCommands.Len()
	for i := e.resourceCmdCountLastUpdate; i < resourceCmdTotal; i++ {
		p := e.resourceBindingCommands.At(i)
		if err := e.resolveOne(&p.cmd, reflection, reg, passIndex); err != nil {
			return err
		}
	}

	// Step 5: drain pending argument-buffer bindings. Same re-queue
	// discipline as step 4 applies to argKeyTotal below; argPathTotal is
	// taken after the by-key entries resolved in this pass have moved to
	// the path list, so they are bound in this same pass.
	argKeyTotal := e.pendingArgumentBuffersByKey.Len()
	argPathTotal, err := e.drainArgumentBufferBindings(reflection, reg, passIndex, argKeyTotal)
	if err != nil {
		return err
	}

	// Step 6: pipeline state changed — re-walk every tracked binding.
	if e.pipelineStateChanged {
		e.rewalkOnPipelineChange(reflection, reg, passIndex)
	} else {
		// Step 7: no pipeline change, but refresh UAV usage nodes so
		// adjacent dispatches get a barrier seam.
		for path := range e.boundUAVResources {
			br, ok := e.boundResources[path]
			if !ok || reg == nil {
				continue
			}
			e.refreshUsageNode(br, reflection, path, reg, passIndex)
		}
	}

	// Step 8: close scheduled nodes, advance counters, clear pipeline-change flag.
	for _, node := range e.pendingClose {
		node.WidenTo(e.lastGPUCommandIndex + 1)
	}
	e.pendingClose = e.pendingClose[:0]
	e.resourceCmdCountLastUpdate = resourceCmdTotal
	e.argKeyCountLastUpdate = argKeyTotal
	e.argPathCountLastUpdate = argPathTotal
	e.pipelineStateChanged = false
	e.needsUpdateBindings = false
	return nil
}

// ResourceLookup is the narrow registry surface the resolver needs to turn
// a reflected usage type into a concrete usage.Record (usages list
// per-handle). It is satisfied by either a transient or a persistent
// registry adapter.
type ResourceLookup interface {
	UsagesFor(h handle.Handle) *usage.List
}

// resolveOne implements step 4's per-command resolution.
func (e *Encoder) resolveOne(cmd *Command, reflection backend.PipelineReflection, reg ResourceLookup, passIndex uint32) error {
	path, ok := reflection.BindingPath(cmd.Key, cmd.ArrayIndex, nil)
	if !ok {
		// 4.a: inactive in this pipeline right now — re-queue for a later
		// pipeline state where it might become active.
		e.resourceBindingCommands.Append(pending{cmd: *cmd})
		return nil
	}
	cmd.Path = path

	return e.replacingBoundResourceNode(path, func(current *BoundResource) (*BoundResource, error) {
		return e.applyCommand(cmd, current, path, reflection, reg, passIndex)
	})
}

// replacingBoundResourceNode implements the atomic replace-at-path
// operation from spec §4.F step 4.b: remove any prior entry, run perform,
// reinsert the result, and schedule the replaced entry's usage node for
// range-closing.
func (e *Encoder) replacingBoundResourceNode(path backend.BindingPath, perform func(current *BoundResource) (*BoundResource, error)) error {
	old := e.boundResources[path]
	delete(e.boundResources, path)

	next, err := perform(old)
	if err != nil {
		return err
	}

	if next != nil {
		e.boundResources[path] = next
	}
	if old != nil && old != next && old.UsageNode != nil {
		e.pendingClose = append(e.pendingClose, old.UsageNode)
	}
	return nil
}

// applyCommand is the λ from spec §4.F step 4.c/4.d.
func (e *Encoder) applyCommand(cmd *Command, current *BoundResource, path backend.BindingPath, reflection backend.PipelineReflection, reg ResourceLookup, passIndex uint32) (*BoundResource, error) {
	switch cmd.Kind {
	case KindSetSampler, KindSetBytes:
		e.sink.Emit(EmittedCommand{Path: path, Source: *cmd})
		return nil, nil

	case KindSetBufferOffset:
		if current == nil {
			// Recoverable (spec §7): warn and leave the prior binding (there
			// is none) untouched; do not abort the rest of this Resolve pass.
			rglog.Logger().Warn("resolve: setBufferOffset with no prior setBuffer",
				"key", cmd.Key, "arrayIndex", cmd.ArrayIndex,
				"err", rgerr.NewBindingError(cmd.Key, cmd.ArrayIndex, "setBufferOffset with no prior setBuffer"))
			return nil, nil
		}
		current.BindingCommand.HasDynamicOffset = true
		current.offset = cmd.Offset
		patched := *cmd
		patched.Handle = current.Handle
		patched.HasDynamicOffset = true
		e.sink.Emit(EmittedCommand{Path: path, Source: patched})
		return current, nil

	case KindSetBuffer:
		if current != nil && current.Handle == cmd.Handle && current.offset == cmd.Offset && !e.pipelineStateChanged {
			return current, nil // suppress duplicate emission
		}
		e.sink.Emit(EmittedCommand{Path: path, Source: *cmd})
		next := &BoundResource{Handle: cmd.Handle, BindingCommand: cmd, offset: cmd.Offset}
		e.attachUsageIfActive(next, reflection, path, reg, passIndex)
		return next, nil

	case KindSetTexture:
		if current != nil && current.Handle == cmd.Handle && !e.pipelineStateChanged {
			return current, nil
		}
		e.sink.Emit(EmittedCommand{Path: path, Source: *cmd})
		next := &BoundResource{Handle: cmd.Handle, BindingCommand: cmd}
		e.attachUsageIfActive(next, reflection, path, reg, passIndex)
		return next, nil

	case KindSetArgumentBuffer:
		e.sink.Emit(EmittedCommand{Path: path, Source: *cmd})
		next := &BoundResource{Handle: cmd.Handle, BindingCommand: cmd, InArgumentBuffer: false}
		e.attachUsageIfActive(next, reflection, path, reg, passIndex)
		return next, nil

	case KindSetArgumentBufferArray:
		// Deferred: emission happens once the first member argument
		// buffer is bound (handled via drainArgumentBufferBindings); here
		// we just remember the array's own handle/path for later lookup.
		return &BoundResource{Handle: cmd.Handle, BindingCommand: cmd}, nil

	default:
		return current, nil
	}
}

// attachUsageIfActive is step 4.d: if the pipeline is unchanged and the
// reflection marks the binding active, create a usage node immediately
// and track read-write bindings for barrier purposes.
func (e *Encoder) attachUsageIfActive(br *BoundResource, reflection backend.PipelineReflection, path backend.BindingPath, reg ResourceLookup, passIndex uint32) {
	if e.pipelineStateChanged {
		return
	}
	e.refreshUsageNode(br, reflection, path, reg, passIndex)
}

// refreshUsageNode looks up the reflection's usage info for path and
// appends a fresh usage node for br.Handle, tracking UAV paths.
func (e *Encoder) refreshUsageNode(br *BoundResource, reflection backend.PipelineReflection, path backend.BindingPath, reg ResourceLookup, passIndex uint32) {
	info, ok := reflection.ArgumentReflection(path)
	if !ok || !info.IsActive || reg == nil {
		return
	}
	list := reg.UsagesFor(br.Handle)
	if list == nil {
		return
	}
	node := usage.Append(list, br.Handle, info.ActiveRange, usage.Type(info.UsageType), info.ActiveStages,
		types.CommandRange{Start: e.lastGPUCommandIndex, End: e.lastGPUCommandIndex + 1}, passIndex)
	br.UsageNode = node
	if usage.Type(info.UsageType).IsReadWrite() {
		e.boundUAVResources[path] = struct{}{}
	} else {
		delete(e.boundUAVResources, path)
	}
}

// drainArgumentBufferBindings implements spec §4.F step 5: resolve each
// pending argument buffer's own path, then translate its member bindings.
func (e *Encoder) drainArgumentBufferBindings(reflection backend.PipelineReflection, reg ResourceLookup, passIndex uint32, argKeyTotal int) (int, error) {
	for i := e.argKeyCountLastUpdate; i < argKeyTotal; i++ {
		entry := e.pendingArgumentBuffersByKey.At(i)
		path, ok := reflection.BindingPath(entry.cmd.Key, entry.cmd.ArrayIndex, nil)
		if !ok {
			e.pendingArgumentBuffersByKey.Append(*entry)
			continue
		}
		entry.cmd.Path = path
		e.pendingArgumentBuffers.Append(pendingArgumentBufferBinding{cmd: entry.cmd})
	}

	argPathTotal := e.pendingArgumentBuffers.Len()
	for i := e.argPathCountLastUpdate; i < argPathTotal; i++ {
		entry := e.pendingArgumentBuffers.At(i)
		if err := e.replacingBoundResourceNode(entry.cmd.Path, func(current *BoundResource) (*BoundResource, error) {
			next := &BoundResource{Handle: entry.cmd.Handle, BindingCommand: &entry.cmd, InArgumentBuffer: true}
			e.attachArgumentBufferMemberUsage(next, reflection, entry.cmd.Path, reg, passIndex)
			return next, nil
		}); err != nil {
			return 0, err
		}
	}
	return argPathTotal, nil
}

// attachArgumentBufferMemberUsage is the argument-buffer-member variant of
// attachUsageIfActive: a slot the pipeline reflects as unused still records
// a zero-range "unusedArgumentBuffer" usage so backends may hold a
// reference to it (spec §4.F edge cases).
func (e *Encoder) attachArgumentBufferMemberUsage(br *BoundResource, reflection backend.PipelineReflection, path backend.BindingPath, reg ResourceLookup, passIndex uint32) {
	if e.pipelineStateChanged || reg == nil {
		return
	}
	info, ok := reflection.ArgumentReflection(path)
	if !ok || !info.IsActive {
		list := reg.UsagesFor(br.Handle)
		if list == nil {
			return
		}
		zero := types.CommandRange{Start: e.lastGPUCommandIndex, End: e.lastGPUCommandIndex}
		br.UsageNode = usage.Append(list, br.Handle, types.WholeResource(), usage.TypeUnusedArgumentBuffer, 0, zero, passIndex)
		return
	}
	e.refreshUsageNode(br, reflection, path, reg, passIndex)
}

// rewalkOnPipelineChange implements spec §4.F step 6.
func (e *Encoder) rewalkOnPipelineChange(reflection backend.PipelineReflection, reg ResourceLookup, passIndex uint32) {
	for path, br := range e.boundResources {
		info, ok := reflection.ArgumentReflection(path)
		if !ok || !info.IsActive {
			if br.UsageNode != nil {
				e.pendingClose = append(e.pendingClose, br.UsageNode)
			}
			delete(e.boundResources, path)
			continue
		}

		if br.BindingCommand != nil {
			e.sink.Emit(EmittedCommand{Path: path, Source: *br.BindingCommand})
		}
		e.refreshUsageNode(br, reflection, path, reg, passIndex)

		if br.ConsistentUsageAssumed {
			e.untrackedBoundResources[path] = br
			delete(e.boundResources, path)
		}
	}
}
