package types

// ShaderStages is a bitfield of shader stages a binding may be visible to.
type ShaderStages uint8

const (
	StageVertex ShaderStages = 1 << iota
	StageFragment
	StageCompute
)

// Has reports whether all stages in other are present in s.
func (s ShaderStages) Has(other ShaderStages) bool { return s&other == other }

// CacheMode identifies which CPU-side memory behavior a staging allocation
// should use. The staging upload engine owns one ring-buffer allocator per
// CacheMode (spec §4.H).
type CacheMode uint8

const (
	// CacheModeShared is coherent, uncached CPU-visible memory — the
	// default for small, write-once-read-once uploads.
	CacheModeShared CacheMode = iota
	// CacheModeManaged additionally requires an explicit
	// buffer.didModifyRange call after writing (macOS-style managed
	// storage), and is used for larger uploads where cached writes pay
	// off.
	CacheModeManaged
)

func (m CacheMode) String() string {
	switch m {
	case CacheModeShared:
		return "Shared"
	case CacheModeManaged:
		return "Managed"
	default:
		return "Unknown"
	}
}
