// Package column implements the chunked, Structure-of-Arrays storage that
// every registry builds its per-resource columns on top of.
//
// It generalizes the teacher's single growable-slice Storage[T,M] into a
// slab of fixed-size, independently-allocated chunks. Once a chunk is
// created it is never reallocated or moved, so a raw pointer obtained from
// [Column.At] stays valid for the lifetime of the Column — exactly the
// property spec §4.B calls out to let readers observe columns without
// taking the registry's lock.
package column

import "sync"

// DefaultItemsPerChunk is the chunk size used for low-churn resource kinds
// (buffers, textures, heaps). High-churn kinds, such as per-frame argument
// buffers, should use LargeItemsPerChunk instead.
const DefaultItemsPerChunk = 256

// LargeItemsPerChunk is the chunk size used for kinds with effectively
// unbounded per-frame counts.
const LargeItemsPerChunk = 2048

type chunk[T any] struct {
	items []T
}

// Column is a slab-allocated array of T, addressed by a dense uint32 index.
// Chunks are allocated lazily on first touch and never moved afterward.
//
// Column is safe for concurrent use: chunk creation is serialised by an
// internal lock, but once a chunk exists, reads and writes through the
// pointer returned by At require no further synchronisation from Column
// itself (callers that share mutable state across goroutines still need
// their own synchronisation for that state).
type Column[T any] struct {
	itemsPerChunk int

	mu     sync.Mutex
	chunks []*chunk[T] // append-only; entries are never removed or replaced
}

// New creates a Column with the given chunk size. itemsPerChunk must be a
// positive power of two in practice (256 or 2048); any positive value
// works correctly.
func New[T any](itemsPerChunk int) *Column[T] {
	if itemsPerChunk <= 0 {
		itemsPerChunk = DefaultItemsPerChunk
	}
	return &Column[T]{itemsPerChunk: itemsPerChunk}
}

// ItemsPerChunk returns the configured chunk size.
func (c *Column[T]) ItemsPerChunk() int { return c.itemsPerChunk }

// chunkFor returns the chunk holding index, allocating it (and any chunk
// slots skipped over, though callers always allocate in order) if needed.
func (c *Column[T]) chunkFor(index uint32) *chunk[T] {
	chunkIdx := int(index) / c.itemsPerChunk

	c.mu.Lock()
	defer c.mu.Unlock()

	if chunkIdx < len(c.chunks) && c.chunks[chunkIdx] != nil {
		return c.chunks[chunkIdx]
	}

	if chunkIdx >= len(c.chunks) {
		grown := make([]*chunk[T], chunkIdx+1)
		copy(grown, c.chunks)
		c.chunks = grown
	}
	if c.chunks[chunkIdx] == nil {
		c.chunks[chunkIdx] = &chunk[T]{items: make([]T, c.itemsPerChunk)}
	}
	return c.chunks[chunkIdx]
}

// AllocateChunk eagerly materialises the chunk containing index, without
// returning anything. Registries call this from allocateHandle so that the
// first At() for a freshly minted handle never has to grow anything.
func (c *Column[T]) AllocateChunk(index uint32) {
	c.chunkFor(index)
}

// At returns a stable pointer to the slot for index. The chunk backing the
// slot is created if it doesn't exist yet; the returned pointer remains
// valid for the Column's entire lifetime.
func (c *Column[T]) At(index uint32) *T {
	ch := c.chunkFor(index)
	slot := int(index) % c.itemsPerChunk
	return &ch.items[slot]
}

// Capacity returns the number of slots currently backed by allocated
// chunks (an upper bound on valid indices, not a count of populated ones).
func (c *Column[T]) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks) * c.itemsPerChunk
}
