package handle

import "testing"

func TestRoundtrip(t *testing.T) {
	cases := []struct {
		name  string
		index Index
		gen   Generation
		trid  TransientRegistryID
		flags Flags
		kind  Kind
	}{
		{"zero", 0, 0, 0, 0, KindBuffer},
		{"persistent buffer", 17, 3, 0, FlagPersistent, KindBuffer},
		{"transient texture", 42, 0, 5, FlagTextureView, KindTexture},
		{"max index", MaxIndex, 0xFF, 7, 0xFFFF, KindAccelerationStructure},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := New(c.index, c.gen, c.trid, c.flags, c.kind)
			if got := Decode(h.Encode()); got != h {
				t.Fatalf("decode(encode(h)) = %v, want %v", got, h)
			}
			if h.Index() != c.index {
				t.Errorf("Index() = %d, want %d", h.Index(), c.index)
			}
			if h.Generation() != c.gen {
				t.Errorf("Generation() = %d, want %d", h.Generation(), c.gen)
			}
			if h.TransientRegistryID() != c.trid {
				t.Errorf("TransientRegistryID() = %d, want %d", h.TransientRegistryID(), c.trid)
			}
			if h.Flags() != c.flags {
				t.Errorf("Flags() = %#x, want %#x", h.Flags(), c.flags)
			}
			if h.Kind() != c.kind {
				t.Errorf("Kind() = %v, want %v", h.Kind(), c.kind)
			}
		})
	}
}

func TestIsPersistent(t *testing.T) {
	persistent := New(1, 0, 0, FlagPersistent, KindBuffer)
	transient := New(1, 0, 2, 0, KindBuffer)

	if !persistent.IsPersistent() {
		t.Error("expected persistent handle to report IsPersistent")
	}
	if transient.IsPersistent() {
		t.Error("expected transient handle to not report IsPersistent")
	}
	if !transient.IsTransient() {
		t.Error("expected transient handle to report IsTransient")
	}
}

func TestStaleAgainst(t *testing.T) {
	h := New(5, 2, 0, FlagPersistent, KindBuffer)

	if h.StaleAgainst(2) {
		t.Error("handle should not be stale against its own generation")
	}
	if !h.StaleAgainst(3) {
		t.Error("handle should be stale against a different generation")
	}
}

func TestValidateArgumentBufferFlags(t *testing.T) {
	if err := ValidateArgumentBufferFlags(KindArgumentBuffer, FlagHistoryBuffer); err == nil {
		t.Error("expected error for historyBuffer flag on an argument buffer")
	}
	if err := ValidateArgumentBufferFlags(KindArgumentBufferArray, FlagHistoryBuffer); err == nil {
		t.Error("expected error for historyBuffer flag on an argument buffer array")
	}
	if err := ValidateArgumentBufferFlags(KindBuffer, FlagHistoryBuffer); err != nil {
		t.Errorf("unexpected error for historyBuffer flag on a plain buffer: %v", err)
	}
	if err := ValidateArgumentBufferFlags(KindArgumentBuffer, FlagPersistent); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestZeroHandleIsZero(t *testing.T) {
	var h Handle
	if !h.IsZero() {
		t.Error("zero-value handle should report IsZero")
	}
	nonZero := New(1, 0, 0, 0, KindBuffer)
	if nonZero.IsZero() {
		t.Error("non-zero handle should not report IsZero")
	}
}
