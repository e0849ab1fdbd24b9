package graph

// DataType identifies a tensor element type. Values are stable wire values.
type DataType uint32

const (
	Float32 DataType = 0
	Uint8   DataType = 1
)

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Uint8:
		return 1
	default:
		return 0
	}
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// Shape is a tensor shape, outermost dimension first.
type Shape []uint32

// NumElements returns the element count, 1 for a scalar shape.
func (s Shape) NumElements() uint32 {
	n := uint32(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}
