// Package graph exposes the compute-graph model consumed by Kiln code
// generation.
//
// A graph is a sequence of operator nodes with typed input and output
// connectors. Importers build one from a trained model, lowering passes
// rewrite it, and the scheduler fixes its execution order; by the time it is
// handed to codegen it is immutable.
//
// Example:
//
//	in := graph.NewInput("x", graph.Float32, graph.Shape{1, 16})
//	relu := graph.NewNode(graph.OpUnary, "relu")
//	relu.AddInput().Connect(in.Output(0))
//	relu.AddOutput(graph.Float32, graph.Shape{1, 16})
//	out := graph.NewOutput("y")
//	out.Input(0).Connect(relu.Output(0))
package graph

import (
	internalgraph "github.com/kiln-ml/kiln/internal/graph"
)

// Node is one operator instance in the compute graph.
type Node = internalgraph.Node

// InputConnector is a typed input port on a node.
type InputConnector = internalgraph.InputConnector

// OutputConnector is a typed output port on a node.
type OutputConnector = internalgraph.OutputConnector

// OpCode identifies an operator kind.
type OpCode = internalgraph.OpCode

// DataType identifies a tensor element type.
type DataType = internalgraph.DataType

// Shape is a tensor shape, outermost dimension first.
type Shape = internalgraph.Shape

// Structural opcodes.
const (
	OpInput    = internalgraph.OpInput
	OpOutput   = internalgraph.OpOutput
	OpConstant = internalgraph.OpConstant
	OpIgnore   = internalgraph.OpIgnore
)

// Compute opcodes.
const (
	OpBinary     = internalgraph.OpBinary
	OpUnary      = internalgraph.OpUnary
	OpMatMul     = internalgraph.OpMatMul
	OpConv2D     = internalgraph.OpConv2D
	OpPad        = internalgraph.OpPad
	OpConcat     = internalgraph.OpConcat
	OpSoftmax    = internalgraph.OpSoftmax
	OpQuantize   = internalgraph.OpQuantize
	OpDequantize = internalgraph.OpDequantize
	OpMemoryCopy = internalgraph.OpMemoryCopy
)

// Data types.
const (
	Float32 = internalgraph.Float32
	Uint8   = internalgraph.Uint8
)

// NewNode creates a node with no connectors.
func NewNode(opcode OpCode, name string) *Node {
	return internalgraph.NewNode(opcode, name)
}

// NewInput creates an input-marker node producing one tensor.
func NewInput(name string, dt DataType, shape Shape) *Node {
	return internalgraph.NewInput(name, dt, shape)
}

// NewOutput creates an output-marker node consuming one tensor.
func NewOutput(name string) *Node {
	return internalgraph.NewOutput(name)
}

// NewConstant creates a constant node carrying literal data.
func NewConstant(name string, dt DataType, shape Shape, data []byte) *Node {
	return internalgraph.NewConstant(name, dt, shape, data)
}
