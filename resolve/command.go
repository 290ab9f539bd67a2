package resolve

import (
	"github.com/gogpu/rendergraph/backend"
	"github.com/gogpu/rendergraph/handle"
)

// Kind discriminates the binding commands a pass encoder can record (spec
// §4.F).
type Kind uint8

const (
	KindSetSampler Kind = iota
	KindSetBytes
	KindSetBufferOffset
	KindSetBuffer
	KindSetTexture
	KindSetArgumentBuffer
	KindSetArgumentBufferArray
)

func (k Kind) String() string {
	switch k {
	case KindSetSampler:
		return "setSampler"
	case KindSetBytes:
		return "setBytes"
	case KindSetBufferOffset:
		return "setBufferOffset"
	case KindSetBuffer:
		return "setBuffer"
	case KindSetTexture:
		return "setTexture"
	case KindSetArgumentBuffer:
		return "setArgumentBuffer"
	case KindSetArgumentBufferArray:
		return "setArgumentBufferArray"
	default:
		return "unknown"
	}
}

// Command is one recorded binding intent, keyed by an argument name (spec
// §4.F's "(key, command)" FIFO entries). Not every field is meaningful for
// every Kind.
type Command struct {
	Kind       Kind
	Key        string
	ArrayIndex int

	Handle handle.Handle
	Offset uint64
	Bytes  []byte

	Path             backend.BindingPath
	HasDynamicOffset bool
}

// pending is one entry in the resolver's append-only resourceBindingCommands
// FIFO.
type pending struct {
	cmd Command
}

// EmittedCommand is what the resolver hands to a Sink once a Command has
// been resolved to a concrete binding path.
type EmittedCommand struct {
	Path   backend.BindingPath
	Source Command
}

// Sink receives concrete, resolved bind commands. The render-graph
// executor (outside this module's scope) implements it to translate these
// into real backend encoder calls.
type Sink interface {
	Emit(EmittedCommand)
}
