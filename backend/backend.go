// Package backend declares the external collaborators the render-graph core
// talks to but does not implement: the backend translation layer and the
// pipeline-reflection database (spec §1, §6). Both are interfaces only —
// concrete Vulkan/Metal/DX12-style implementations, render-pass authoring
// sugar, debug labels, and platform command-buffer objects live outside
// this module entirely.
//
// Doc-comment density here follows the teacher's hal.Device/hal.Queue
// interfaces (one comment per method, parameter semantics called out), even
// though the concrete method set is much smaller: the core only ever needs
// the handful of operations named below, not a full device API.
package backend

import (
	"unsafe"

	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/types"
)

// BindingPath is an opaque, backend-specific identifier for a shader
// argument slot. Only PipelineReflection and RenderBackend implementations
// know how to produce or interpret the underlying value; the core treats it
// as a comparable token.
type BindingPath struct {
	raw uint64
}

// NewBindingPath wraps a backend-defined raw path value. Backend
// implementations call this; core code only ever receives BindingPath
// values back from PipelineReflection.
func NewBindingPath(raw uint64) BindingPath { return BindingPath{raw: raw} }

// Raw returns the backend-defined value a BindingPath wraps, for backend
// implementations that need to recover it.
func (p BindingPath) Raw() uint64 { return p.raw }

// IsZero reports whether p is the zero BindingPath, which never names a
// real binding.
func (p BindingPath) IsZero() bool { return p.raw == 0 }

// Encoder is an opaque, stable handle to a backend-provided argument-buffer
// encoder, installed once per binding path via
// RenderBackend.ArgumentBufferEncoder and cached with a compare-and-swap.
// The zero value means "no encoder installed yet".
type Encoder uintptr

// IsValid reports whether e names a real encoder.
func (e Encoder) IsValid() bool { return e != 0 }

// BackingResource is an opaque reference to whatever concrete GPU object
// (buffer, texture, …) a backend uses to back a Handle. RenderBackend
// implementations define its real shape; the core only ever moves it
// around.
type BackingResource any

// RenderBackend is the backend translation layer's surface, as named in
// spec §6. The core never constructs resources itself; it only asks the
// backend to label, dispose, and translate already-allocated resources.
type RenderBackend interface {
	// UpdateLabel sets the debug label the backend associates with handle.
	UpdateLabel(h handle.Handle, label string)

	// Dispose releases the backend resource behind handle. A persistent
	// registry calls it once per handle, after its isKnownInUse predicate
	// has gone false; the upload engine also calls it for each oversize
	// staging buffer once that buffer's submission has completed.
	Dispose(kind handle.Kind, h handle.Handle)

	// BufferContents returns a CPU-visible pointer to the given byte range
	// of a mapped buffer. The pointer is valid until the buffer is
	// disposed or unmapped.
	BufferContents(buffer handle.Handle, r types.BufferRange) unsafe.Pointer

	// BufferDidModifyRange informs the backend that the CPU wrote to the
	// given byte range of buffer, so a managed-storage-mode backend can
	// flush it before the next GPU use.
	BufferDidModifyRange(buffer handle.Handle, r types.BufferRange)

	// ReplaceBackingResource swaps the concrete resource backing handle
	// for newBacking (nil to detach), returning whatever was previously
	// installed (nil if none).
	ReplaceBackingResource(h handle.Handle, newBacking BackingResource) (old BackingResource)

	// ArgumentBufferEncoder returns the backend-provided encoder for path,
	// reusing currentEncoder when the backend can extend it in place
	// (currentEncoder may be the zero Encoder).
	ArgumentBufferEncoder(path BindingPath, currentEncoder Encoder) Encoder

	// ArgumentBufferPath computes the binding path an argument-buffer slot
	// at the given array index occupies, for the given visible stages.
	ArgumentBufferPath(index int, stages types.ShaderStages) BindingPath
}

// ArgumentReflection is the per-binding information a PipelineReflection
// exposes for a resolved BindingPath (spec §6:
// `argumentReflection(at: path) -> { usageType, activeStages, activeRange,
// isActive, type }?`).
type ArgumentReflection struct {
	UsageType    UsageType
	ActiveStages types.ShaderStages
	ActiveRange  types.Subresources
	IsActive     bool
	Kind         handle.Kind
}

// UsageType mirrors the usage bitfield the reflection reports for a
// binding, used by the resolver to build a usage.ResourceUsage without
// needing to know the binding's static shader-side declaration itself.
type UsageType uint32

// PipelineReflection is the pipeline-reflection database's surface, as
// named in spec §6. It answers "where does this named argument live, and
// what does the currently bound pipeline say about it" — nothing about
// compiling or caching pipelines is in scope here.
type PipelineReflection interface {
	// BindingPath resolves a (argumentName, arrayIndex) pair, optionally
	// nested inside an already-resolved argument buffer path, to a
	// concrete BindingPath. ok is false if the argument is not active in
	// the currently bound pipeline.
	BindingPath(argumentName string, arrayIndex int, argumentBufferPath *BindingPath) (path BindingPath, ok bool)

	// BindingIsActive reports whether path is read by the currently bound
	// pipeline at all.
	BindingIsActive(path BindingPath) bool

	// ArgumentReflection returns the full reflection record for path. ok
	// is false if path is not active.
	ArgumentReflection(path BindingPath) (info ArgumentReflection, ok bool)

	// RemapBindingPath translates a path that was resolved against one
	// argument buffer's own reflection into the path it occupies inside a
	// newly nested argument buffer. This is the reflection interface's
	// second bindingPath overload from spec §6.
	RemapBindingPath(pathInOriginalArgumentBuffer BindingPath, newArgumentBufferPath BindingPath) BindingPath
}
