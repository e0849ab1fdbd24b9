// Package graph models the scheduled compute graph handed to code
// generation: operator nodes with typed input and output connectors.
//
// By the time a graph reaches this package it is final (importers and
// lowering passes have already run), so nodes are treated as immutable once
// wired. Connectors carry identity: allocation lookups key on the
// *OutputConnector pointer.
package graph

// Node is one operator instance in the compute graph.
type Node struct {
	opcode  OpCode
	name    string
	inputs  []*InputConnector
	outputs []*OutputConnector
	attrs   map[string]float64
	data    []byte // constant payload, OpConstant only
}

// NewNode creates a node with no connectors.
func NewNode(opcode OpCode, name string) *Node {
	return &Node{opcode: opcode, name: name}
}

// NewInput creates an input-marker node producing one tensor.
func NewInput(name string, dt DataType, shape Shape) *Node {
	n := NewNode(OpInput, name)
	n.AddOutput(dt, shape)
	return n
}

// NewOutput creates an output-marker node consuming one tensor.
func NewOutput(name string) *Node {
	n := NewNode(OpOutput, name)
	n.AddInput()
	return n
}

// NewConstant creates a constant node carrying literal data.
func NewConstant(name string, dt DataType, shape Shape, data []byte) *Node {
	n := NewNode(OpConstant, name)
	n.AddOutput(dt, shape)
	n.data = data
	return n
}

// OpCode returns the node's runtime opcode.
func (n *Node) OpCode() OpCode { return n.opcode }

// Name returns the node's debug name.
func (n *Node) Name() string { return n.name }

// Data returns the constant payload, nil for non-constant nodes.
func (n *Node) Data() []byte { return n.data }

// SetAttr records a numeric operator parameter. Returns the node so marker
// construction can chain.
func (n *Node) SetAttr(name string, v float64) *Node {
	if n.attrs == nil {
		n.attrs = make(map[string]float64)
	}
	n.attrs[name] = v
	return n
}

// Attr returns a numeric operator parameter, or def if unset.
func (n *Node) Attr(name string, def float64) float64 {
	if v, ok := n.attrs[name]; ok {
		return v
	}
	return def
}

// AddInput appends an unconnected input connector.
func (n *Node) AddInput() *InputConnector {
	in := &InputConnector{owner: n}
	n.inputs = append(n.inputs, in)
	return in
}

// AddOutput appends an output connector with the given type and shape.
func (n *Node) AddOutput(dt DataType, shape Shape) *OutputConnector {
	out := &OutputConnector{owner: n, dtype: dt, shape: shape}
	n.outputs = append(n.outputs, out)
	return out
}

// Input returns input connector i.
func (n *Node) Input(i int) *InputConnector { return n.inputs[i] }

// Output returns output connector i.
func (n *Node) Output(i int) *OutputConnector { return n.outputs[i] }

// NumInputs returns the input connector count.
func (n *Node) NumInputs() int { return len(n.inputs) }

// NumOutputs returns the output connector count.
func (n *Node) NumOutputs() int { return len(n.outputs) }

// InputConnector is a typed input port. It references, but does not own, the
// output connector it reads from.
type InputConnector struct {
	owner *Node
	conn  *OutputConnector
}

// Owner returns the node this connector belongs to.
func (c *InputConnector) Owner() *Node { return c.owner }

// Connection returns the producing output connector, nil if unconnected.
func (c *InputConnector) Connection() *OutputConnector { return c.conn }

// Connect wires this input to read from out.
func (c *InputConnector) Connect(out *OutputConnector) { c.conn = out }

// OutputConnector is a typed output port, owned by its node and read by any
// number of downstream inputs.
type OutputConnector struct {
	owner *Node
	dtype DataType
	shape Shape
}

// Owner returns the node this connector belongs to.
func (c *OutputConnector) Owner() *Node { return c.owner }

// DataType returns the tensor element type.
func (c *OutputConnector) DataType() DataType { return c.dtype }

// Shape returns the tensor shape.
func (c *OutputConnector) Shape() Shape { return c.shape }
