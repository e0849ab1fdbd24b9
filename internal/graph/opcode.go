package graph

import "fmt"

// OpCode identifies an operator kind. Values are stable: they are written
// verbatim into node headers and matched by the runtime kernel table.
type OpCode uint32

// Structural opcodes. Input, output and constant nodes feed the descriptor
// tables and the constant pool; Ignore marks graph-only nodes that must be
// dropped from the runtime sequence entirely.
const (
	OpInput OpCode = iota
	OpOutput
	OpConstant
	OpIgnore
)

// Compute opcodes.
const (
	OpBinary OpCode = iota + 16
	OpUnary
	OpMatMul
	OpConv2D
	OpPad
	OpConcat
	OpSoftmax
	OpQuantize
	OpDequantize
	OpMemoryCopy
)

var opcodeNames = map[OpCode]string{
	OpInput:      "input",
	OpOutput:     "output",
	OpConstant:   "constant",
	OpIgnore:     "ignore",
	OpBinary:     "binary",
	OpUnary:      "unary",
	OpMatMul:     "matmul",
	OpConv2D:     "conv2d",
	OpPad:        "pad",
	OpConcat:     "concat",
	OpSoftmax:    "softmax",
	OpQuantize:   "quantize",
	OpDequantize: "dequantize",
	OpMemoryCopy: "memory_copy",
}

func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", uint32(op))
}
