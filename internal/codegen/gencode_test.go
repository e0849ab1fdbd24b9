package codegen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/kmodel"
	"github.com/kiln-ml/kiln/internal/runtime"
	"github.com/kiln-ml/kiln/internal/sched"
)

// buildTestGraph wires a small scheduled graph:
//
//	input -> add(input, const) -> relu -> output
//
// plus a graph-only ignore marker in the middle of the sequence.
func buildTestGraph(t *testing.T) ([]*graph.Node, *sched.AllocationMap, []byte) {
	t.Helper()

	constData := make([]byte, 64)
	for i := range constData {
		constData[i] = byte(i)
	}

	in := graph.NewInput("x", graph.Float32, graph.Shape{1, 16})
	weights := graph.NewConstant("w", graph.Float32, graph.Shape{1, 16}, constData)

	add := graph.NewNode(graph.OpBinary, "add")
	add.SetAttr("op", 0)
	add.AddInput().Connect(in.Output(0))
	add.AddInput().Connect(weights.Output(0))
	add.AddOutput(graph.Float32, graph.Shape{1, 16})

	marker := graph.NewNode(graph.OpIgnore, "debug_marker")

	relu := graph.NewNode(graph.OpUnary, "relu")
	relu.SetAttr("op", 1)
	relu.AddInput().Connect(add.Output(0))
	relu.AddOutput(graph.Float32, graph.Shape{1, 16})

	out := graph.NewOutput("y")
	out.Input(0).Connect(relu.Output(0))

	allocs := sched.NewAllocationMap()
	allocs.Add(in.Output(0), sched.Allocation{Type: sched.MemMain, Start: 0, Size: 64})
	allocs.Add(weights.Output(0), sched.Allocation{Type: sched.MemConst, Start: 0, Size: 64})
	allocs.Add(add.Output(0), sched.Allocation{Type: sched.MemMain, Start: 64, Size: 64})
	allocs.Add(relu.Output(0), sched.Allocation{Type: sched.MemMain, Start: 128, Size: 64})

	return []*graph.Node{in, weights, add, marker, relu, out}, allocs, constData
}

func serializeToFile(t *testing.T, nodes []*graph.Node, allocs sched.AllocationView, reg *Registry, opts Options) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "test.kmodel"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, Serialize(nodes, allocs, binio.NewWriter(f), reg, opts))
	return f
}

func TestSerializeRoundTrip(t *testing.T) {
	nodes, allocs, constData := buildTestGraph(t)
	opts := DefaultOptions()
	f := serializeToFile(t, nodes, allocs, DefaultRegistry(), opts)

	m, err := runtime.Load(f)
	require.NoError(t, err)

	assert.Equal(t, kmodel.ModelIdentifier, m.Header.Identifier)
	assert.Equal(t, kmodel.ModelVersion, m.Header.Version)
	assert.Equal(t, kmodel.TargetK210, m.Header.Target)
	assert.NotZero(t, m.Header.Flags&kmodel.FlagEnablePaging)
	assert.Equal(t, uint32(64), m.Header.Constants)
	assert.Equal(t, uint32(192), m.Header.MainMem)

	// add and relu survive; markers and the ignore node do not.
	assert.Equal(t, uint32(2), m.Header.Nodes)
	require.Len(t, m.NodeHeaders, 2)
	assert.Equal(t, uint32(graph.OpBinary), m.NodeHeaders[0].OpCode)
	assert.Equal(t, uint32(graph.OpUnary), m.NodeHeaders[1].OpCode)

	require.Len(t, m.Inputs, 1)
	assert.Equal(t, kmodel.MemoryRange{
		MemoryType: uint32(sched.MemMain),
		DataType:   uint32(graph.Float32),
		Start:      0,
		Size:       64,
	}, m.Inputs[0])
	require.Len(t, m.InputShapes, 1)
	assert.Equal(t, kmodel.RuntimeShape{Rank: 2, Dims: [4]uint32{1, 16}}, m.InputShapes[0])
	require.Len(t, m.Outputs, 1)
	assert.Equal(t, uint32(128), m.Outputs[0].Start)

	// One small page holding both nodes.
	require.Len(t, m.Pages, 1)
	assert.Equal(t, kmodel.PagePersistent, m.Pages[0].Type)
	assert.Equal(t, uint32(0), m.Pages[0].Begin)
	assert.Equal(t, uint32(1), m.Pages[0].End)
	assert.Equal(t, m.Pages[0].SizeBytes, m.PageTable.BodyBufferSize)

	// Body alignment: the stream starts aligned and every size is padded.
	assert.Zero(t, m.BodyOffset()%kmodel.BodyAlign)
	for i, hdr := range m.NodeHeaders {
		assert.Zerof(t, hdr.BodySize%kmodel.BodyAlign, "node %d body size %d", i, hdr.BodySize)
	}

	// The constant pool round-trips through the executor.
	exec, err := runtime.NewExecutor(m, runtime.NewKernelRegistry())
	require.NoError(t, err)
	assert.Equal(t, constData, exec.Constants())
	assert.Len(t, exec.Arena(), 192)
}

func TestSerializeUnpaged(t *testing.T) {
	nodes, allocs, _ := buildTestGraph(t)
	opts := DefaultOptions()
	opts.EnablePaging = false
	f := serializeToFile(t, nodes, allocs, DefaultRegistry(), opts)

	m, err := runtime.Load(f)
	require.NoError(t, err)
	assert.False(t, m.Paged())
	assert.Empty(t, m.Pages)
	require.Len(t, m.NodeHeaders, 2)
	assert.Zero(t, m.BodyOffset()%kmodel.BodyAlign)
}

func TestSerializeDisabledOpcodeShrinksHeaders(t *testing.T) {
	nodes, allocs, _ := buildTestGraph(t)

	reg := DefaultRegistry()
	reg.Disable(graph.OpUnary)
	f := serializeToFile(t, nodes, allocs, reg, DefaultOptions())

	m, err := runtime.Load(f)
	require.NoError(t, err)

	// relu is gone; add serializes untouched.
	assert.Equal(t, uint32(1), m.Header.Nodes)
	require.Len(t, m.NodeHeaders, 1)
	assert.Equal(t, uint32(graph.OpBinary), m.NodeHeaders[0].OpCode)
}

func TestSerializeUnregisteredOpcodeFails(t *testing.T) {
	nodes, allocs, _ := buildTestGraph(t)

	reg := NewRegistry()
	reg.Disable(graph.OpInput)
	reg.Disable(graph.OpOutput)
	reg.Disable(graph.OpConstant)
	reg.Disable(graph.OpIgnore)

	f, err := os.Create(filepath.Join(t.TempDir(), "bad.kmodel"))
	require.NoError(t, err)
	defer f.Close()

	err = Serialize(nodes, allocs, binio.NewWriter(f), reg, DefaultOptions())
	require.ErrorIs(t, err, ErrEmitterNotFound)
}

func TestSerializeMissingAllocationFails(t *testing.T) {
	in := graph.NewInput("x", graph.Float32, graph.Shape{1, 4})
	out := graph.NewOutput("y")
	out.Input(0).Connect(in.Output(0))

	f, err := os.Create(filepath.Join(t.TempDir(), "bad.kmodel"))
	require.NoError(t, err)
	defer f.Close()

	err = Serialize([]*graph.Node{in, out}, sched.NewAllocationMap(), binio.NewWriter(f), DefaultRegistry(), DefaultOptions())
	require.ErrorIs(t, err, ErrMissingAllocation)
}

func TestSerializeRankTooHighFails(t *testing.T) {
	in := graph.NewInput("x", graph.Float32, graph.Shape{1, 2, 3, 4, 5})
	allocs := sched.NewAllocationMap()
	allocs.Add(in.Output(0), sched.Allocation{Type: sched.MemMain, Start: 0, Size: 480})

	f, err := os.Create(filepath.Join(t.TempDir(), "bad.kmodel"))
	require.NoError(t, err)
	defer f.Close()

	err = Serialize([]*graph.Node{in}, allocs, binio.NewWriter(f), DefaultRegistry(), DefaultOptions())
	require.ErrorIs(t, err, ErrShapeRank)
}

func TestSerializeOverlappingConstantsFail(t *testing.T) {
	a := graph.NewConstant("a", graph.Uint8, graph.Shape{8}, make([]byte, 8))
	b := graph.NewConstant("b", graph.Uint8, graph.Shape{8}, make([]byte, 8))

	allocs := sched.NewAllocationMap()
	allocs.Add(a.Output(0), sched.Allocation{Type: sched.MemConst, Start: 0, Size: 8})
	allocs.Add(b.Output(0), sched.Allocation{Type: sched.MemConst, Start: 4, Size: 8})

	f, err := os.Create(filepath.Join(t.TempDir(), "bad.kmodel"))
	require.NoError(t, err)
	defer f.Close()

	err = Serialize([]*graph.Node{a, b}, allocs, binio.NewWriter(f), DefaultRegistry(), DefaultOptions())
	require.ErrorIs(t, err, ErrConstantOverlap)
}

func TestFixedMultiplier(t *testing.T) {
	mul, shift, err := fixedMultiplier(1.0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<15), mul)
	assert.Equal(t, uint32(15), shift)

	// Scale of 4 needs 17 mantissa bits.
	_, _, err = fixedMultiplier(4.0)
	require.ErrorIs(t, err, ErrUnsupportedMultiplier)

	// Too small to represent at all.
	_, _, err = fixedMultiplier(1e-9)
	require.ErrorIs(t, err, ErrUnsupportedMultiplier)
}

func TestSerializeUnsupportedScaleFails(t *testing.T) {
	in := graph.NewInput("x", graph.Float32, graph.Shape{1, 4})
	q := graph.NewNode(graph.OpQuantize, "quant")
	q.SetAttr("scale", 1e-9)
	q.AddInput().Connect(in.Output(0))
	q.AddOutput(graph.Uint8, graph.Shape{1, 4})

	allocs := sched.NewAllocationMap()
	allocs.Add(in.Output(0), sched.Allocation{Type: sched.MemMain, Start: 0, Size: 16})
	allocs.Add(q.Output(0), sched.Allocation{Type: sched.MemMain, Start: 16, Size: 4})

	f, err := os.Create(filepath.Join(t.TempDir(), "bad.kmodel"))
	require.NoError(t, err)
	defer f.Close()

	err = Serialize([]*graph.Node{in, q}, allocs, binio.NewWriter(f), DefaultRegistry(), DefaultOptions())
	require.ErrorIs(t, err, ErrUnsupportedMultiplier)
}
