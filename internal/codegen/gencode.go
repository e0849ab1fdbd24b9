package codegen

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/kmodel"
	"github.com/kiln-ml/kiln/internal/logutil"
	"github.com/kiln-ml/kiln/internal/sched"
)

// Serialize emits the kmodel binary for a topologically ordered node
// sequence. The sequence and the allocation view come from earlier pipeline
// stages and are consumed read-only.
//
// On error the output stream is in an undefined partial state; the caller
// must discard it.
//
//nolint:gocyclo,cyclop // The serializer walks the full file layout in order.
func Serialize(nodes []*graph.Node, allocs sched.AllocationView, w *binio.Writer, reg *Registry, opts Options) error {
	target, err := opts.TargetID()
	if err != nil {
		return err
	}
	ctx := NewContext(allocs, w)

	// Partition the sequence. Marker nodes feed the descriptor tables;
	// everything not disabled forms the runtime node sequence.
	var (
		runtimeNodes []*graph.Node
		inputs       []kmodel.MemoryRange
		inputShapes  []kmodel.RuntimeShape
		outputs      []kmodel.MemoryRange
		constants    []*graph.Node
	)
	for _, node := range nodes {
		if !reg.Disabled(node.OpCode()) {
			runtimeNodes = append(runtimeNodes, node)
		}

		switch node.OpCode() {
		case graph.OpInput:
			rng, err := ctx.Allocation(node.Output(0))
			if err != nil {
				return err
			}
			shape, err := runtimeShape(node)
			if err != nil {
				return err
			}
			inputs = append(inputs, rng)
			inputShapes = append(inputShapes, shape)
		case graph.OpOutput:
			rng, err := inputRange(ctx, node, 0)
			if err != nil {
				return err
			}
			outputs = append(outputs, rng)
		case graph.OpConstant:
			constants = append(constants, node)
		}
	}

	header := kmodel.ModelHeader{
		Identifier: kmodel.ModelIdentifier,
		Version:    kmodel.ModelVersion,
		Target:     target,
		Constants:  ctx.ConstantUsage(),
		MainMem:    ctx.MemoryUsage(),
		Nodes:      uint32(len(runtimeNodes)),
		Inputs:     uint32(len(inputs)),
		Outputs:    uint32(len(outputs)),
	}
	if opts.EnablePaging {
		header.Flags |= kmodel.FlagEnablePaging
	}
	if err := w.Write(&header); err != nil {
		return fmt.Errorf("write model header: %w", err)
	}

	if err := binio.WriteArray(w, inputs); err != nil {
		return fmt.Errorf("write input table: %w", err)
	}
	if err := binio.WriteArray(w, inputShapes); err != nil {
		return fmt.Errorf("write input shape table: %w", err)
	}
	if err := binio.WriteArray(w, outputs); err != nil {
		return fmt.Errorf("write output table: %w", err)
	}

	constPool, err := buildConstantPool(ctx, constants)
	if err != nil {
		return err
	}
	if err := w.WriteBytes(constPool); err != nil {
		return fmt.Errorf("write constant pool: %w", err)
	}

	// Reserve the node-header region, and the page region iff paging is on.
	// Both sizes follow from counts alone; the contents are backfilled once
	// body sizes are known.
	headersPos, err := w.Position()
	if err != nil {
		return err
	}
	reserved := int64(kmodel.SizeNodeHeader) * int64(len(runtimeNodes))
	if opts.EnablePaging {
		reserved += kmodel.SizePageRegion
	}
	if err := w.Seek(headersPos + reserved); err != nil {
		return err
	}
	// First body starts 8-aligned; each body is padded back to alignment,
	// so every body start offset is a multiple of BodyAlign.
	if err := w.Align(kmodel.BodyAlign); err != nil {
		return err
	}

	nodeHeaders := make([]kmodel.NodeHeader, 0, len(runtimeNodes))
	for _, node := range runtimeNodes {
		body, err := reg.Dispatch(node, ctx)
		if err != nil {
			return err
		}
		if body == nil {
			continue
		}
		bodyStart, err := w.Position()
		if err != nil {
			return err
		}
		if err := body.Serialize(w); err != nil {
			return fmt.Errorf("serialize body of %s: %w", node.Name(), err)
		}
		if err := w.Align(kmodel.BodyAlign); err != nil {
			return err
		}
		bodyEnd, err := w.Position()
		if err != nil {
			return err
		}
		nodeHeaders = append(nodeHeaders, kmodel.NodeHeader{
			OpCode:   uint32(body.OpCode()),
			BodySize: uint32(bodyEnd - bodyStart),
		})
	}

	endPos, err := w.Position()
	if err != nil {
		return err
	}
	if err := w.Seek(headersPos); err != nil {
		return err
	}
	if err := binio.WriteArray(w, nodeHeaders); err != nil {
		return fmt.Errorf("write node headers: %w", err)
	}

	if opts.EnablePaging {
		if err := writePages(w, nodeHeaders); err != nil {
			return err
		}
	}

	if err := w.Seek(endPos); err != nil {
		return err
	}

	logutil.L().Info("model serialized",
		zap.Uint32("working_memory", header.MainMem),
		zap.Uint32("constants", header.Constants),
		zap.Uint32("nodes", header.Nodes))
	return nil
}

// writePages plans and writes the page table into the reserved page region.
func writePages(w *binio.Writer, headers []kmodel.NodeHeader) error {
	pages, table, err := PlanPages(headers)
	if err != nil {
		return err
	}
	if err := w.Write(&table); err != nil {
		return fmt.Errorf("write page table: %w", err)
	}
	if err := binio.WriteArray(w, pages); err != nil {
		return fmt.Errorf("write pages: %w", err)
	}

	log := logutil.L()
	for _, page := range pages {
		log.Info("using page",
			zap.Uint32("index", page.Index),
			zap.String("type", kmodel.PageTypeName(page.Type)),
			zap.Uint32("begin", page.Begin),
			zap.Uint32("end", page.End),
			zap.Uint64("offset_bytes", page.OffsetBytes),
			zap.Uint64("size_bytes", page.SizeBytes))
	}
	log.Info("resident model size", zap.Uint64("body_buffer_size", table.BodyBufferSize))
	return nil
}

// buildConstantPool materializes every constant's literal data at its
// allocated offset in one contiguous buffer. Ranges must be inside the pool
// and must not overlap; either violation is an allocator bug surfaced here.
func buildConstantPool(ctx *Context, constants []*graph.Node) ([]byte, error) {
	pool := make([]byte, ctx.ConstantUsage())

	type span struct {
		start, end uint32
		name       string
	}
	spans := make([]span, 0, len(constants))

	for _, node := range constants {
		rng, err := ctx.Allocation(node.Output(0))
		if err != nil {
			return nil, err
		}
		if sched.MemoryType(rng.MemoryType) != sched.MemConst {
			return nil, fmt.Errorf("%w: %s in %s", ErrConstantSpace, node.Name(), sched.MemoryType(rng.MemoryType))
		}
		data := node.Data()
		if uint32(len(data)) > rng.Size || rng.Start+rng.Size > uint32(len(pool)) {
			return nil, fmt.Errorf("%w: %s (%d bytes at %d+%d)", ErrConstantOutOfBounds, node.Name(), len(data), rng.Start, rng.Size)
		}
		copy(pool[rng.Start:rng.Start+rng.Size], data)
		spans = append(spans, span{start: rng.Start, end: rng.Start + rng.Size, name: node.Name()})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return nil, fmt.Errorf("%w: %s and %s", ErrConstantOverlap, spans[i-1].name, spans[i].name)
		}
	}
	return pool, nil
}

// runtimeShape converts an input marker's tensor shape to the fixed-layout
// wire record.
func runtimeShape(node *graph.Node) (kmodel.RuntimeShape, error) {
	shape := node.Output(0).Shape()
	if shape.Rank() > kmodel.MaxShapeRank {
		return kmodel.RuntimeShape{}, fmt.Errorf("%w: %s has rank %d", ErrShapeRank, node.Name(), shape.Rank())
	}
	rs := kmodel.RuntimeShape{Rank: uint32(shape.Rank())}
	copy(rs.Dims[:], shape)
	return rs, nil
}
