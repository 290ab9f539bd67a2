package types

import "fmt"

// CommandRange is a half-open [Start, End) range of GPU command indices
// within a single queue. A ResourceUsage's active_range is widened by
// advancing End in place as later commands extend the same usage.
type CommandRange struct {
	Start uint64
	End   uint64
}

// Contains reports whether index falls within [Start, End).
func (r CommandRange) Contains(index uint64) bool { return index >= r.Start && index < r.End }

// WidenTo extends End to at least newEnd. Per spec §4.E, ranges only widen,
// never shrink.
func (r *CommandRange) WidenTo(newEnd uint64) {
	if newEnd > r.End {
		r.End = newEnd
	}
}

// BufferRange is a byte range within a buffer.
type BufferRange struct {
	Offset uint64
	Length uint64
}

// TextureSliceRange identifies a mip level and array-layer range within a
// texture, plus the 3D sub-region touched.
type TextureSliceRange struct {
	MipLevel        uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
	Origin          Origin3D
	Size            Extent3D
}

// SubresourceKind discriminates the variants of Subresources.
type SubresourceKind uint8

const (
	// SubresourceWhole means the entire resource is affected.
	SubresourceWhole SubresourceKind = iota
	// SubresourceBuffer means a byte range of a buffer is affected.
	SubresourceBuffer
	// SubresourceTextureSlice means a mip/layer/region of a texture is
	// affected.
	SubresourceTextureSlice
)

// Subresources is the sum type `Whole | BufferRange | TextureSliceRange`
// from spec §3. Exactly one of Buffer or Texture is meaningful, selected by
// Kind.
type Subresources struct {
	Kind    SubresourceKind
	Buffer  BufferRange
	Texture TextureSliceRange
}

// WholeResource constructs a Subresources value covering the entire
// resource.
func WholeResource() Subresources { return Subresources{Kind: SubresourceWhole} }

// BufferSubresource constructs a Subresources value covering a byte range
// of a buffer.
func BufferSubresource(r BufferRange) Subresources {
	return Subresources{Kind: SubresourceBuffer, Buffer: r}
}

// TextureSubresource constructs a Subresources value covering a texture
// slice range.
func TextureSubresource(r TextureSliceRange) Subresources {
	return Subresources{Kind: SubresourceTextureSlice, Texture: r}
}

func (s Subresources) String() string {
	switch s.Kind {
	case SubresourceWhole:
		return "Whole"
	case SubresourceBuffer:
		return fmt.Sprintf("BufferRange(%d+%d)", s.Buffer.Offset, s.Buffer.Length)
	case SubresourceTextureSlice:
		return fmt.Sprintf("TextureSliceRange(mip=%d layers=%d+%d)",
			s.Texture.MipLevel, s.Texture.BaseArrayLayer, s.Texture.ArrayLayerCount)
	default:
		return "Subresources(invalid)"
	}
}
