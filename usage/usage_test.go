package usage

import (
	"testing"

	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/types"
)

func TestAppendAndWidenNode(t *testing.T) {
	list := NewList()
	h := handle.New(3, 1, 0, handle.FlagPersistent, handle.KindBuffer)

	node := Append(list, h, types.WholeResource(), TypeShaderRead, types.StageFragment,
		types.CommandRange{Start: 10, End: 11}, 0)

	if list.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", list.Len())
	}

	node.WidenTo(20)
	if list.At(0).ActiveRange.End != 20 {
		t.Errorf("widen through node did not propagate, End = %d", list.At(0).ActiveRange.End)
	}
}

func TestTypeIsReadOnly(t *testing.T) {
	if !TypeShaderRead.IsReadOnly() {
		t.Error("shaderRead should be read-only")
	}
	if TypeShaderReadWrite.IsReadOnly() {
		t.Error("shaderReadWrite should not be read-only")
	}
	if !TypeShaderReadWrite.IsReadWrite() {
		t.Error("shaderReadWrite should report IsReadWrite")
	}
}

func TestTypeContains(t *testing.T) {
	combined := TypeShaderRead | TypeVertexBuffer
	if !combined.Contains(TypeShaderRead) {
		t.Error("expected Contains(TypeShaderRead)")
	}
	if combined.Contains(TypeIndexBuffer) {
		t.Error("did not expect Contains(TypeIndexBuffer)")
	}
}
