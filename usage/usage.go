// Package usage records resource-usage intent: one ResourceUsage per
// shader-visible use of a handle, appended to that resource's per-resource
// chunked list (spec §4.E). The bitfield style mirrors the teacher's
// track.BufferUses.
package usage

import (
	"github.com/gogpu/rendergraph/column"
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/types"
)

// Type is a bitfield describing how a resource is used by a single
// ResourceUsage record (spec §3).
type Type uint32

const (
	TypeShaderRead Type = 1 << iota
	TypeShaderWrite
	TypeShaderReadWrite
	TypeVertexBuffer
	TypeIndexBuffer
	TypeIndirectBuffer
	TypeBlitSource
	TypeBlitDestination
	TypeBlitSynchronisation
	TypeRenderTargetRead
	TypeRenderTargetWrite
	TypeInputAttachment
	TypeUnusedArgumentBuffer
	TypeMipGeneration
)

// Contains reports whether all flags in other are present in t.
func (t Type) Contains(other Type) bool { return t&other == other }

// IsReadOnly reports whether t contains no write-capable usage.
func (t Type) IsReadOnly() bool {
	const writeMask = TypeShaderWrite | TypeShaderReadWrite | TypeBlitDestination | TypeRenderTargetWrite
	return t&writeMask == 0
}

// IsReadWrite reports whether t is a UAV-style read-write usage, which the
// resolver must barrier-separate across dispatches (spec §4.F).
func (t Type) IsReadWrite() bool { return t&TypeShaderReadWrite != 0 }

// Record is one shader-visible use of a resource (spec §3's
// "ResourceUsage record"). Once appended to a resource's list, ActiveRange
// may only be widened in place — never shrunk or removed (spec §4.E).
type Record struct {
	Handle       handle.Handle
	Subresources types.Subresources
	Type         Type
	Stages       types.ShaderStages
	ActiveRange  types.CommandRange
	PassIndex    uint32
}

// WidenTo extends the record's active range forward, never back (spec
// §4.E: "no shrink, no removal").
func (r *Record) WidenTo(newEnd uint64) {
	r.ActiveRange.WidenTo(newEnd)
}

// List is the append-only per-resource "usages" chunk-array named in spec
// §3. It is not internally synchronised: per spec §4.E, writes are
// serialised per resource by the caller (the encoder owns them during a
// pass).
type List = column.List[Record]

// NewList creates an empty usage list sized for one resource's per-graph
// usage volume.
func NewList() *List {
	return column.NewList[Record](column.DefaultItemsPerChunk)
}

// Node is the stable pointer the Resolver holds onto a usage record so it
// can widen the record's range as later commands extend the same binding
// (spec §3's "usage node", §4.E "stable pointer").
type Node = *Record

// Append records a new use of handle h and returns the stable Node the
// caller can later widen.
func Append(list *List, h handle.Handle, sub types.Subresources, t Type, stages types.ShaderStages, r types.CommandRange, passIndex uint32) Node {
	return list.Append(Record{
		Handle:       h,
		Subresources: sub,
		Type:         t,
		Stages:       stages,
		ActiveRange:  r,
		PassIndex:    passIndex,
	})
}
