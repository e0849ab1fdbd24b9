package runtime

import (
	"fmt"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/graph"
	"github.com/kiln-ml/kiln/internal/kmodel"
)

// noSwapResident marks that no swap page is currently loaded.
const noSwapResident = -1

// Executor runs a loaded model's node sequence. It owns the working arena,
// the constant pool and the body buffer, and keeps at most one swap page
// resident at a time. Not safe for concurrent use.
type Executor struct {
	model   *Model
	kernels *KernelRegistry

	arena     []byte
	constants []byte
	bodyBuf   []byte

	// nodeOffsets[i] is node i's byte offset within the body stream.
	nodeOffsets []uint64

	// swapSlot is the body-buffer offset of the single swap slot, placed
	// after the persistent pages.
	swapSlot     uint64
	residentSwap int
}

// NewExecutor allocates buffers for the model and loads the constant pool
// and every persistent page. Swap pages are loaded later, on first need.
func NewExecutor(m *Model, kernels *KernelRegistry) (*Executor, error) {
	e := &Executor{
		model:        m,
		kernels:      kernels,
		arena:        make([]byte, m.Header.MainMem),
		residentSwap: noSwapResident,
	}

	r := binio.NewReader(m.r)
	e.constants = make([]byte, m.Header.Constants)
	if err := r.Seek(m.constOffset); err != nil {
		return nil, err
	}
	if err := r.ReadBytes(e.constants); err != nil {
		return nil, fmt.Errorf("load constant pool: %w", err)
	}

	e.nodeOffsets = make([]uint64, len(m.NodeHeaders))
	var total uint64
	for i, hdr := range m.NodeHeaders {
		e.nodeOffsets[i] = total
		total += uint64(hdr.BodySize)
	}

	if !m.Paged() {
		// Unpaged: the whole body stream is resident.
		e.bodyBuf = make([]byte, total)
		if err := r.Seek(m.bodyOffset); err != nil {
			return nil, err
		}
		if err := r.ReadBytes(e.bodyBuf); err != nil {
			return nil, fmt.Errorf("load node bodies: %w", err)
		}
		return e, nil
	}

	e.bodyBuf = make([]byte, m.PageTable.BodyBufferSize)
	for _, page := range m.Pages {
		if page.Type != kmodel.PagePersistent {
			continue
		}
		if err := e.loadPage(r, page, page.OffsetBytes); err != nil {
			return nil, err
		}
		e.swapSlot += page.SizeBytes
	}
	return e, nil
}

// loadPage reads a page's bodies from the backing stream into the body
// buffer at dst.
func (e *Executor) loadPage(r *binio.Reader, page kmodel.MemoryPage, dst uint64) error {
	if err := r.Seek(e.model.bodyOffset + int64(page.OffsetBytes)); err != nil {
		return err
	}
	if err := r.ReadBytes(e.bodyBuf[dst : dst+page.SizeBytes]); err != nil {
		return fmt.Errorf("load page %d: %w", page.Index, err)
	}
	return nil
}

// Run executes every node in sequence, swapping pages in as needed.
func (e *Executor) Run() error {
	env := &Env{Arena: e.arena, Constants: e.constants}
	for i, hdr := range e.model.NodeHeaders {
		body, err := e.bodyBytes(i)
		if err != nil {
			return err
		}
		kernel, err := e.kernels.Lookup(graph.OpCode(hdr.OpCode))
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if err := kernel(env, body); err != nil {
			return fmt.Errorf("node %d (%s): %w", i, graph.OpCode(hdr.OpCode), err)
		}
	}
	return nil
}

// bodyBytes returns node i's body, bringing its page into residency first.
func (e *Executor) bodyBytes(i int) ([]byte, error) {
	size := uint64(e.model.NodeHeaders[i].BodySize)
	if !e.model.Paged() {
		off := e.nodeOffsets[i]
		return e.bodyBuf[off : off+size], nil
	}

	page, err := e.pageContaining(uint32(i))
	if err != nil {
		return nil, err
	}
	var base uint64
	if page.Type == kmodel.PagePersistent {
		// Persistent pages sit at their stream offsets, which form a
		// prefix of the body buffer.
		base = page.OffsetBytes
	} else {
		if err := e.ensureResident(page); err != nil {
			return nil, err
		}
		base = e.swapSlot
	}
	within := e.nodeOffsets[i] - page.OffsetBytes
	return e.bodyBuf[base+within : base+within+size], nil
}

// ensureResident loads page into the swap slot unless it is already there.
// Loading overwrites the previously resident swap page: at most one is held
// at any time, swapped synchronously before the dependent node executes.
func (e *Executor) ensureResident(page kmodel.MemoryPage) error {
	if e.residentSwap == int(page.Index) {
		return nil
	}
	if err := e.loadPage(binio.NewReader(e.model.r), page, e.swapSlot); err != nil {
		return err
	}
	e.residentSwap = int(page.Index)
	return nil
}

// pageContaining returns the page covering node index idx.
func (e *Executor) pageContaining(idx uint32) (kmodel.MemoryPage, error) {
	for _, page := range e.model.Pages {
		if idx >= page.Begin && idx <= page.End {
			return page, nil
		}
	}
	// Unreachable for models that passed Load's validation.
	return kmodel.MemoryPage{}, fmt.Errorf("%w: node %d", ErrMalformedPages, idx)
}

// ResidentSwapPage reports the index of the currently loaded swap page, or
// -1 if none is resident.
func (e *Executor) ResidentSwapPage() int {
	return e.residentSwap
}

// Constants returns the loaded constant pool.
func (e *Executor) Constants() []byte { return e.constants }

// Arena returns the working memory arena.
func (e *Executor) Arena() []byte { return e.arena }
