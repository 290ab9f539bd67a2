// Package handle defines the packed 64-bit resource identity shared by every
// registry, the binding resolver, and the argument buffer engine.
//
// A Handle is a trivially copyable value type: cheap to hash (it hashes as
// its own 64-bit word), cheap to compare, and safe to pass by value across
// goroutines. Handles are built with the exported [New], which the
// registry packages call when they mint a handle; nothing restricts other
// packages from calling it too.
package handle

import "fmt"

// Index identifies a slot inside the registry that owns a Handle.
type Index uint32

// Generation counts how many times a persistent slot has been reused.
// A Handle whose generation no longer matches its slot's current
// generation is stale.
type Generation uint8

// TransientRegistryID identifies which per-graph transient registry issued
// a Handle. Persistent handles carry zero here, but zero alone does not make
// a handle persistent: that is decided by FlagPersistent.
type TransientRegistryID uint8

// Flags is a bitfield of handle-level properties.
type Flags uint16

// Flag bits, matching the wire layout in spec §6.
const (
	FlagPersistent      Flags = 1 << 0
	FlagHistoryBuffer   Flags = 1 << 1
	FlagResourceView    Flags = 1 << 2
	FlagTextureView     Flags = 1 << 3
	FlagPixelFormatView Flags = 1 << 4
	FlagWriteCombined   Flags = 1 << 5
)

// Has reports whether all bits in other are set in f.
func (f Flags) Has(other Flags) bool { return f&other == other }

// Kind identifies the category of resource a Handle refers to.
type Kind uint8

// Resource kinds, matching spec §6.
const (
	KindBuffer Kind = 1 + iota
	KindTexture
	KindArgumentBuffer
	KindArgumentBufferArray
	KindHeap
	KindAccelerationStructure
)

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "Buffer"
	case KindTexture:
		return "Texture"
	case KindArgumentBuffer:
		return "ArgumentBuffer"
	case KindArgumentBufferArray:
		return "ArgumentBufferArray"
	case KindHeap:
		return "Heap"
	case KindAccelerationStructure:
		return "AccelerationStructure"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Bit widths and shifts for the packed layout (spec §6):
//
//	bit 0..=28   index                 (29 bits)
//	bit 29..=36  generation            (8 bits)
//	bit 37..=39  transient_registry_id (3 bits)
//	bit 40..=55  flags                 (16 bits)
//	bit 56..=63  kind                  (8 bits)
const (
	indexBits = 29
	genBits   = 8
	tridBits  = 3
	flagBits  = 16

	indexShift = 0
	genShift   = indexShift + indexBits
	tridShift  = genShift + genBits
	flagShift  = tridShift + tridBits
	kindShift  = flagShift + flagBits

	indexMask = (uint64(1) << indexBits) - 1
	genMask   = (uint64(1) << genBits) - 1
	tridMask  = (uint64(1) << tridBits) - 1
	flagMask  = (uint64(1) << flagBits) - 1
)

// MaxIndex is the largest index value the 29-bit index field can hold.
const MaxIndex = Index(indexMask)

// Handle is the packed 64-bit identity of a single GPU resource.
type Handle uint64

// New packs the given components into a Handle. It is the only
// constructor; registries call it after validating their own invariants
// (index in range, kind/flag compatibility).
func New(index Index, gen Generation, trid TransientRegistryID, flags Flags, kind Kind) Handle {
	return Handle(
		uint64(index)&indexMask<<indexShift |
			uint64(gen)&genMask<<genShift |
			uint64(trid)&tridMask<<tridShift |
			uint64(flags)&flagMask<<flagShift |
			uint64(kind)<<kindShift,
	)
}

// Encode returns the raw 64-bit wire representation. It is numerically
// identical to converting the Handle to uint64, but documents intent at
// call sites that cross the wire/serialization boundary.
func (h Handle) Encode() uint64 { return uint64(h) }

// Decode reconstructs a Handle from its raw wire representation.
func Decode(raw uint64) Handle { return Handle(raw) }

// Index returns the slot index component.
func (h Handle) Index() Index { return Index(uint64(h) >> indexShift & indexMask) }

// Generation returns the generation component.
func (h Handle) Generation() Generation { return Generation(uint64(h) >> genShift & genMask) }

// TransientRegistryID returns the transient-registry-id component.
// Persistent handles carry zero here; persistence itself is reported by
// [Handle.IsPersistent], which checks FlagPersistent.
func (h Handle) TransientRegistryID() TransientRegistryID {
	return TransientRegistryID(uint64(h) >> tridShift & tridMask)
}

// Flags returns the flags component.
func (h Handle) Flags() Flags { return Flags(uint64(h) >> flagShift & flagMask) }

// Kind returns the resource kind component.
func (h Handle) Kind() Kind { return Kind(uint64(h) >> kindShift) }

// IsPersistent reports whether this handle was issued by a persistent
// registry. It is equivalent to checking FlagPersistent, kept separate so
// callers don't need to know the flag encoding.
func (h Handle) IsPersistent() bool { return h.Flags().Has(FlagPersistent) }

// IsTransient is the complement of IsPersistent.
func (h Handle) IsTransient() bool { return !h.IsPersistent() }

// IsZero reports whether h is the zero Handle, which never identifies a
// real resource.
func (h Handle) IsZero() bool { return h == 0 }

// String renders a Handle for diagnostics.
func (h Handle) String() string {
	return fmt.Sprintf("%s(idx=%d gen=%d trid=%d flags=%#x)",
		h.Kind(), h.Index(), h.Generation(), h.TransientRegistryID(), uint16(h.Flags()))
}

// StaleAgainst reports whether h is stale relative to the given current
// generation of its slot — i.e. the generation compare described in spec
// §4.A: "registry.generation(at: h.index()) == h.generation()" has failed.
func (h Handle) StaleAgainst(currentGeneration Generation) bool {
	return h.Generation() != currentGeneration
}

// ValidateArgumentBufferFlags enforces the invariant from spec §3: "no
// handle may set historyBuffer for argument buffers". Registries call this
// before minting a handle for an argument-buffer kind.
func ValidateArgumentBufferFlags(kind Kind, flags Flags) error {
	if (kind == KindArgumentBuffer || kind == KindArgumentBufferArray) && flags.Has(FlagHistoryBuffer) {
		return fmt.Errorf("handle: historyBuffer flag is invalid for kind %s", kind)
	}
	return nil
}
