package column

import (
	"sync"
	"testing"
)

func TestColumnAtIsStable(t *testing.T) {
	c := New[int](4)

	p0 := c.At(0)
	*p0 = 10
	p5 := c.At(5) // forces a second chunk
	*p5 = 50

	if *c.At(0) != 10 {
		t.Errorf("At(0) = %d, want 10", *c.At(0))
	}
	if *c.At(5) != 50 {
		t.Errorf("At(5) = %d, want 50", *c.At(5))
	}

	// Pointer obtained before growth must still observe the same memory.
	if p0 != c.At(0) {
		t.Error("pointer into chunk 0 was invalidated by growth")
	}
}

func TestColumnZeroInitialised(t *testing.T) {
	c := New[uint8](4)
	if got := *c.At(3); got != 0 {
		t.Errorf("fresh slot = %d, want 0", got)
	}
}

func TestColumnConcurrentChunkGrowth(t *testing.T) {
	c := New[int](8)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			*c.At(uint32(idx)) = idx
		}(i)
	}
	wg.Wait()

	for i := 0; i < 200; i++ {
		if got := *c.At(uint32(i)); got != i {
			t.Errorf("At(%d) = %d, want %d", i, got, i)
		}
	}
}

func TestDefaultItemsPerChunk(t *testing.T) {
	c := New[int](0)
	if c.ItemsPerChunk() != DefaultItemsPerChunk {
		t.Errorf("ItemsPerChunk() = %d, want %d", c.ItemsPerChunk(), DefaultItemsPerChunk)
	}
}
