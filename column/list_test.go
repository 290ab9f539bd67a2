package column

import "testing"

func TestListAppendAndWiden(t *testing.T) {
	l := NewList[struct{ lo, hi int }](4)

	ptr := l.Append(struct{ lo, hi int }{lo: 0, hi: 1})
	l.Append(struct{ lo, hi int }{lo: 1, hi: 2})
	l.Append(struct{ lo, hi int }{lo: 2, hi: 3})

	// Widen the first node's range in place, as the resolver does when a
	// usage node's commandRange is extended through later commands.
	ptr.hi = 100

	if got := l.At(0).hi; got != 100 {
		t.Errorf("widened range = %d, want 100", got)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}
}

func TestListResetReusesStorage(t *testing.T) {
	l := NewList[int](2)
	l.Append(1)
	l.Append(2)
	l.Append(3) // second chunk

	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", l.Len())
	}

	p := l.Append(42)
	if *p != 42 {
		t.Errorf("appended value = %d, want 42", *p)
	}
	if l.Len() != 1 {
		t.Errorf("Len() after reuse = %d, want 1", l.Len())
	}
}

func TestListForEachStopsEarly(t *testing.T) {
	l := NewList[int](4)
	for i := 0; i < 10; i++ {
		l.Append(i)
	}

	var seen []int
	l.ForEach(func(_ int, item *int) bool {
		seen = append(seen, *item)
		return *item < 3
	})

	if len(seen) != 4 {
		t.Fatalf("visited %d elements, want 4", len(seen))
	}
}
