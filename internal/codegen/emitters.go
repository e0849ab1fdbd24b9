package codegen

import (
	"fmt"
	"math"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/kmodel"
)

// registerBuiltins wires the built-in compute emitters.
func (r *Registry) registerBuiltins() {
	r.Register(graph.OpBinary, emitBinary)
	r.Register(graph.OpUnary, emitUnary)
	r.Register(graph.OpMatMul, emitMatMul)
	r.Register(graph.OpConv2D, emitConv2D)
	r.Register(graph.OpPad, emitPad)
	r.Register(graph.OpConcat, emitConcat)
	r.Register(graph.OpSoftmax, emitSoftmax)
	r.Register(graph.OpQuantize, emitQuantize)
	r.Register(graph.OpDequantize, emitDequantize)
	r.Register(graph.OpMemoryCopy, emitMemoryCopy)
}

// inputRange resolves input connector i of node to a wire memory range.
func inputRange(ctx *Context, node *graph.Node, i int) (kmodel.MemoryRange, error) {
	conn := node.Input(i).Connection()
	if conn == nil {
		return kmodel.MemoryRange{}, fmt.Errorf("node %s: input %d is unconnected", node.Name(), i)
	}
	return ctx.Allocation(conn)
}

// fixedBody is a node body whose parameters are a single fixed-layout record.
// Every built-in emitter produces one.
type fixedBody struct {
	op     graph.OpCode
	record any
}

func (b *fixedBody) OpCode() graph.OpCode { return b.op }

func (b *fixedBody) Serialize(w *binio.Writer) error {
	return w.Write(b.record)
}

type binaryParams struct {
	InputA kmodel.MemoryRange
	InputB kmodel.MemoryRange
	Output kmodel.MemoryRange
	Op     uint32
}

func emitBinary(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 2 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("binary requires 2 inputs and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	a, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	b, err := inputRange(ctx, node, 1)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	return &fixedBody{op: graph.OpBinary, record: &binaryParams{
		InputA: a,
		InputB: b,
		Output: out,
		Op:     uint32(node.Attr("op", 0)),
	}}, nil
}

type unaryParams struct {
	Input  kmodel.MemoryRange
	Output kmodel.MemoryRange
	Op     uint32
}

func emitUnary(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 1 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("unary requires 1 input and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	in, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	return &fixedBody{op: graph.OpUnary, record: &unaryParams{
		Input:  in,
		Output: out,
		Op:     uint32(node.Attr("op", 0)),
	}}, nil
}

type matMulParams struct {
	InputA kmodel.MemoryRange
	InputB kmodel.MemoryRange
	Output kmodel.MemoryRange
	M      uint32
	K      uint32
	N      uint32
}

func emitMatMul(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 2 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("matmul requires 2 inputs and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	a, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	b, err := inputRange(ctx, node, 1)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	shapeA := node.Input(0).Connection().Shape()
	shapeB := node.Input(1).Connection().Shape()
	if shapeA.Rank() != 2 || shapeB.Rank() != 2 {
		return nil, fmt.Errorf("matmul requires rank-2 operands, got %d/%d", shapeA.Rank(), shapeB.Rank())
	}
	return &fixedBody{op: graph.OpMatMul, record: &matMulParams{
		InputA: a,
		InputB: b,
		Output: out,
		M:      shapeA[0],
		K:      shapeA[1],
		N:      shapeB[1],
	}}, nil
}

type conv2DParams struct {
	Input       kmodel.MemoryRange
	Weights     kmodel.MemoryRange
	Output      kmodel.MemoryRange
	InChannels  uint32
	OutChannels uint32
	KernelH     uint32
	KernelW     uint32
	StrideH     uint32
	StrideW     uint32
}

func emitConv2D(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 2 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("conv2d requires input+weights and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	in, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	weights, err := inputRange(ctx, node, 1)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	// Weights are OIHW.
	wshape := node.Input(1).Connection().Shape()
	if wshape.Rank() != 4 {
		return nil, fmt.Errorf("conv2d weights must be rank 4, got %d", wshape.Rank())
	}
	return &fixedBody{op: graph.OpConv2D, record: &conv2DParams{
		Input:       in,
		Weights:     weights,
		Output:      out,
		InChannels:  wshape[1],
		OutChannels: wshape[0],
		KernelH:     wshape[2],
		KernelW:     wshape[3],
		StrideH:     uint32(node.Attr("stride_h", 1)),
		StrideW:     uint32(node.Attr("stride_w", 1)),
	}}, nil
}

type padParams struct {
	Input   kmodel.MemoryRange
	Output  kmodel.MemoryRange
	Before  [kmodel.MaxShapeRank]uint32
	After   [kmodel.MaxShapeRank]uint32
	PadByte uint32
}

func emitPad(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 1 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("pad requires 1 input and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	in, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	p := &padParams{Input: in, Output: out, PadByte: uint32(node.Attr("value", 0))}
	for i := 0; i < kmodel.MaxShapeRank; i++ {
		p.Before[i] = uint32(node.Attr(fmt.Sprintf("before_%d", i), 0))
		p.After[i] = uint32(node.Attr(fmt.Sprintf("after_%d", i), 0))
	}
	return &fixedBody{op: graph.OpPad, record: p}, nil
}

// concatParams is the fixed head of a concat body; it is followed by one
// memory range per concatenated input.
type concatParams struct {
	Output    kmodel.MemoryRange
	NumInputs uint32
}

type concatBody struct {
	params concatParams
	inputs []kmodel.MemoryRange
}

func (b *concatBody) OpCode() graph.OpCode { return graph.OpConcat }

func (b *concatBody) Serialize(w *binio.Writer) error {
	if err := w.Write(&b.params); err != nil {
		return err
	}
	return binio.WriteArray(w, b.inputs)
}

func emitConcat(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() < 1 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("concat requires at least 1 input and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	inputs := make([]kmodel.MemoryRange, node.NumInputs())
	for i := range inputs {
		if inputs[i], err = inputRange(ctx, node, i); err != nil {
			return nil, err
		}
	}
	return &concatBody{
		params: concatParams{Output: out, NumInputs: uint32(len(inputs))},
		inputs: inputs,
	}, nil
}

type softmaxParams struct {
	Input  kmodel.MemoryRange
	Output kmodel.MemoryRange
	Beta   uint32 // Q1.15
}

func emitSoftmax(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 1 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("softmax requires 1 input and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	in, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	beta, _, err := fixedMultiplier(node.Attr("beta", 1))
	if err != nil {
		return nil, err
	}
	return &fixedBody{op: graph.OpSoftmax, record: &softmaxParams{
		Input:  in,
		Output: out,
		Beta:   beta,
	}}, nil
}

type quantizeParams struct {
	Input     kmodel.MemoryRange
	Output    kmodel.MemoryRange
	Mul       uint32
	Shift     uint32
	ZeroPoint uint32
}

// fixedMultiplier converts a real scale into the accelerator's Q1.15
// multiplier. Scales that round outside the 16-bit mantissa are a
// configuration error: the quantizer produced parameters this target cannot
// express.
func fixedMultiplier(scale float64) (mul uint32, shift uint32, err error) {
	const fracBits = 15
	m := math.Round(scale * (1 << fracBits))
	if m < 1 || m > math.MaxUint16 {
		return 0, 0, fmt.Errorf("%w: scale %g", ErrUnsupportedMultiplier, scale)
	}
	return uint32(m), fracBits, nil
}

func emitQuantize(node *graph.Node, ctx *Context) (Body, error) {
	return emitQuantizeLike(node, ctx, graph.OpQuantize)
}

func emitDequantize(node *graph.Node, ctx *Context) (Body, error) {
	return emitQuantizeLike(node, ctx, graph.OpDequantize)
}

func emitQuantizeLike(node *graph.Node, ctx *Context, op graph.OpCode) (Body, error) {
	if node.NumInputs() != 1 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("%s requires 1 input and 1 output, got %d/%d", op, node.NumInputs(), node.NumOutputs())
	}
	in, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	mul, shift, err := fixedMultiplier(node.Attr("scale", 1))
	if err != nil {
		return nil, err
	}
	return &fixedBody{op: op, record: &quantizeParams{
		Input:     in,
		Output:    out,
		Mul:       mul,
		Shift:     shift,
		ZeroPoint: uint32(node.Attr("zero_point", 0)),
	}}, nil
}

type memoryCopyParams struct {
	Input  kmodel.MemoryRange
	Output kmodel.MemoryRange
}

func emitMemoryCopy(node *graph.Node, ctx *Context) (Body, error) {
	if node.NumInputs() != 1 || node.NumOutputs() != 1 {
		return nil, fmt.Errorf("memory_copy requires 1 input and 1 output, got %d/%d", node.NumInputs(), node.NumOutputs())
	}
	in, err := inputRange(ctx, node, 0)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Allocation(node.Output(0))
	if err != nil {
		return nil, err
	}
	return &fixedBody{op: graph.OpMemoryCopy, record: &memoryCopyParams{Input: in, Output: out}}, nil
}
