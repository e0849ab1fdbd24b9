// Package sched exposes the memory allocator's results to code generation.
//
// The allocator itself runs earlier in the pipeline; this package only
// defines the read-only view codegen consumes: for any output connector, the
// memory space, byte offset and byte size it was assigned.
package sched

import "github.com/kiln-ml/kiln/internal/graph"

// MemoryType identifies a memory space. Values are stable wire values.
type MemoryType uint32

const (
	// MemConst is the read-only constant pool baked into the model file.
	MemConst MemoryType = 0
	// MemMain is the working memory arena for activations.
	MemMain MemoryType = 1
)

func (mt MemoryType) String() string {
	switch mt {
	case MemConst:
		return "const"
	case MemMain:
		return "main"
	default:
		return "unknown"
	}
}

// Allocation is one tensor's placement: a byte span within a memory space.
type Allocation struct {
	Type  MemoryType
	Start uint32
	Size  uint32
}

// AllocationView is the read-only adapter codegen serializes from. Every
// output connector reachable from the compute sequence must have exactly one
// allocation.
type AllocationView interface {
	// Allocation returns the placement assigned to conn.
	Allocation(conn *graph.OutputConnector) (Allocation, bool)

	// Usage returns the total byte extent of a memory space: the highest
	// end offset of any allocation in it.
	Usage(t MemoryType) uint32
}

// AllocationMap is a concrete AllocationView backed by a map. The external
// allocator glue and tests build one with Add.
type AllocationMap struct {
	allocs map[*graph.OutputConnector]Allocation
	usage  map[MemoryType]uint32
}

// NewAllocationMap creates an empty allocation map.
func NewAllocationMap() *AllocationMap {
	return &AllocationMap{
		allocs: make(map[*graph.OutputConnector]Allocation),
		usage:  make(map[MemoryType]uint32),
	}
}

// Add records conn's placement, extending the space's usage if the span ends
// past the current high-water mark.
func (m *AllocationMap) Add(conn *graph.OutputConnector, a Allocation) {
	m.allocs[conn] = a
	if end := a.Start + a.Size; end > m.usage[a.Type] {
		m.usage[a.Type] = end
	}
}

// Allocation implements AllocationView.
func (m *AllocationMap) Allocation(conn *graph.OutputConnector) (Allocation, bool) {
	a, ok := m.allocs[conn]
	return a, ok
}

// Usage implements AllocationView.
func (m *AllocationMap) Usage(t MemoryType) uint32 {
	return m.usage[t]
}
