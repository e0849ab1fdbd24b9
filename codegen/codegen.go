// Package codegen provides the public entry point for compiling a scheduled
// compute graph into a kmodel binary.
//
// The heavy lifting lives in internal packages; this package re-exports the
// pieces an embedder needs: the serializer, the emitter registry, and the
// allocation types the external memory allocator feeds in.
//
// Example:
//
//	f, _ := os.Create("model.kmodel")
//	defer f.Close()
//
//	allocs := codegen.NewAllocationMap()
//	// ... populate from the scheduler's output ...
//
//	err := codegen.Serialize(nodes, allocs, codegen.NewWriter(f),
//	    codegen.DefaultRegistry(), codegen.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
package codegen

import (
	"io"

	"github.com/kiln-ml/kiln/internal/binio"
	internalcodegen "github.com/kiln-ml/kiln/internal/codegen"
	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/sched"
)

// Writer is the positioned binary writer serialization targets.
type Writer = binio.Writer

// NewWriter wraps a seekable stream for serialization.
func NewWriter(ws io.WriteSeeker) *Writer {
	return binio.NewWriter(ws)
}

// Registry maps operator kinds to emitters.
type Registry = internalcodegen.Registry

// Emitter serializes one operator kind's parameters into a node body.
type Emitter = internalcodegen.Emitter

// Body is one node's serialized form.
type Body = internalcodegen.Body

// Context carries the allocation view and writer emitters draw on.
type Context = internalcodegen.Context

// Options configures one serialization run.
type Options = internalcodegen.Options

// MemoryType identifies a memory space.
type MemoryType = sched.MemoryType

// Memory spaces.
const (
	MemConst = sched.MemConst
	MemMain  = sched.MemMain
)

// Allocation is one tensor's placement: a byte span within a memory space.
type Allocation = sched.Allocation

// AllocationView is the read-only adapter the serializer consumes.
type AllocationView = sched.AllocationView

// AllocationMap is a concrete AllocationView built with Add.
type AllocationMap = sched.AllocationMap

// NewAllocationMap creates an empty allocation map.
func NewAllocationMap() *AllocationMap {
	return sched.NewAllocationMap()
}

// NewRegistry creates an empty emitter registry.
func NewRegistry() *Registry {
	return internalcodegen.NewRegistry()
}

// DefaultRegistry returns a registry with every built-in emitter registered
// and the structural opcodes disabled.
func DefaultRegistry() *Registry {
	return internalcodegen.DefaultRegistry()
}

// DefaultOptions returns the default compile configuration.
func DefaultOptions() Options {
	return internalcodegen.DefaultOptions()
}

// LoadOptions reads options from a YAML file, starting from defaults.
func LoadOptions(path string) (Options, error) {
	return internalcodegen.LoadOptions(path)
}

// Serialize emits the kmodel binary for a topologically ordered node
// sequence.
func Serialize(nodes []*graph.Node, allocs AllocationView, w *Writer, reg *Registry, opts Options) error {
	return internalcodegen.Serialize(nodes, allocs, w, reg, opts)
}

// PlanPages is exposed for tooling that inspects page layouts without
// serializing; Serialize calls it internally when paging is enabled.
var PlanPages = internalcodegen.PlanPages
