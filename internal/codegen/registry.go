package codegen

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/graph"
)

// Body is one node's serialized form: an opaque parameter blob tagged with
// its runtime opcode. The body length is known only after Serialize runs.
type Body interface {
	// OpCode returns the runtime opcode recorded in the node header.
	OpCode() graph.OpCode

	// Serialize writes the body verbatim at the writer's current position.
	Serialize(w *binio.Writer) error
}

// Emitter serializes one operator kind's parameters into a node body.
type Emitter func(node *graph.Node, ctx *Context) (Body, error)

// Registry maps operator kinds to emitters. A Registry is constructed once
// at startup and handed to Serialize; there is no package-global state, so
// tests can build isolated registries.
type Registry struct {
	emitters map[graph.OpCode]Emitter
	disabled map[graph.OpCode]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		emitters: make(map[graph.OpCode]Emitter),
		disabled: make(map[graph.OpCode]struct{}),
	}
}

// DefaultRegistry returns a registry with every built-in emitter registered
// and the structural opcodes disabled.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.registerBuiltins()

	// Structural nodes feed the descriptor tables and constant pool, never
	// the runtime node sequence.
	r.Disable(graph.OpInput)
	r.Disable(graph.OpOutput)
	r.Disable(graph.OpConstant)
	r.Disable(graph.OpIgnore)
	return r
}

// Register associates an operator kind with an emitter.
func (r *Registry) Register(op graph.OpCode, e Emitter) {
	r.emitters[op] = e
}

// Disable marks an operator kind as intentionally non-emitting: its nodes
// are dropped from the runtime node sequence entirely.
func (r *Registry) Disable(op graph.OpCode) {
	delete(r.emitters, op)
	r.disabled[op] = struct{}{}
}

// Disabled reports whether op is marked non-emitting.
func (r *Registry) Disabled(op graph.OpCode) bool {
	_, ok := r.disabled[op]
	return ok
}

// Dispatch looks up the node's opcode and invokes its emitter. A disabled
// opcode yields (nil, nil): no body, no header. An opcode that is neither
// registered nor disabled is a build configuration error.
func (r *Registry) Dispatch(node *graph.Node, ctx *Context) (Body, error) {
	op := node.OpCode()
	if r.Disabled(op) {
		return nil, nil
	}
	e, ok := r.emitters[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEmitterNotFound, op)
	}
	body, err := e(node, ctx)
	if err != nil {
		return nil, fmt.Errorf("emit %s (%s): %w", node.Name(), op, err)
	}
	return body, nil
}
