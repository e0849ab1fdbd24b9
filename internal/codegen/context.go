package codegen

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/kmodel"
	"github.com/kiln-ml/kiln/internal/sched"
)

// Context carries the state emitters draw on: the allocation view produced
// by the scheduler and the writer targeting the output stream.
type Context struct {
	allocs sched.AllocationView
	writer *binio.Writer
}

// NewContext binds an allocation view and a writer for one serialization.
func NewContext(allocs sched.AllocationView, w *binio.Writer) *Context {
	return &Context{allocs: allocs, writer: w}
}

// Writer returns the output writer.
func (c *Context) Writer() *binio.Writer { return c.writer }

// Allocation resolves conn's placement into a wire-format memory range.
// Every connector reachable from the compute sequence must be allocated;
// a miss is a scheduler bug surfaced as a fatal error.
func (c *Context) Allocation(conn *graph.OutputConnector) (kmodel.MemoryRange, error) {
	a, ok := c.allocs.Allocation(conn)
	if !ok {
		return kmodel.MemoryRange{}, fmt.Errorf("%w (node %s)", ErrMissingAllocation, conn.Owner().Name())
	}
	return kmodel.MemoryRange{
		MemoryType: uint32(a.Type),
		DataType:   uint32(conn.DataType()),
		Start:      a.Start,
		Size:       a.Size,
	}, nil
}

// ConstantUsage returns the total constant-pool byte size.
func (c *Context) ConstantUsage() uint32 {
	return c.allocs.Usage(sched.MemConst)
}

// MemoryUsage returns the total working-memory byte size.
func (c *Context) MemoryUsage() uint32 {
	return c.allocs.Usage(sched.MemMain)
}
