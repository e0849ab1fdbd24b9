package runtime

import (
	"errors"
	"fmt"
	"io"

	"github.com/kiln-ml/kiln/internal/binio"
	"github.com/kiln-ml/kiln/internal/kmodel"
)

// Common errors.
var (
	ErrInvalidIdentifier  = errors.New("not a kmodel file")
	ErrUnsupportedVersion = errors.New("unsupported kmodel version")
	ErrMalformedPages     = errors.New("page table does not partition the node sequence")
	ErrMalformedShape     = errors.New("input shape rank exceeds record capacity")
	ErrUnknownKernel      = errors.New("no kernel registered for opcode")
)

// Model is a parsed kmodel. It retains the backing stream so the executor
// can load the constant pool and pages on demand.
type Model struct {
	Header      kmodel.ModelHeader
	Inputs      []kmodel.MemoryRange
	InputShapes []kmodel.RuntimeShape
	Outputs     []kmodel.MemoryRange
	NodeHeaders []kmodel.NodeHeader
	PageTable   kmodel.MemoryPageTable
	Pages       []kmodel.MemoryPage

	r           io.ReadSeeker
	constOffset int64
	bodyOffset  int64
}

// Paged reports whether the model carries a page table.
func (m *Model) Paged() bool {
	return m.Header.Flags&kmodel.FlagEnablePaging != 0
}

// Load parses a kmodel from a seekable stream and validates its layout.
// The stream must remain open for the life of any Executor built on the
// model.
//
// The model is read from the start of the stream regardless of its current
// position, so a freshly serialized file can be handed over without
// rewinding.
func Load(rs io.ReadSeeker) (*Model, error) {
	r := binio.NewReader(rs)
	m := &Model{r: rs}

	// All recorded offsets are relative to the stream start.
	if err := r.Seek(0); err != nil {
		return nil, err
	}
	if err := r.Read(&m.Header); err != nil {
		return nil, fmt.Errorf("read model header: %w", err)
	}
	if m.Header.Identifier != kmodel.ModelIdentifier {
		return nil, fmt.Errorf("%w: identifier %#08x", ErrInvalidIdentifier, m.Header.Identifier)
	}
	if m.Header.Version != kmodel.ModelVersion {
		return nil, fmt.Errorf("%w: %d (supported: %d)", ErrUnsupportedVersion, m.Header.Version, kmodel.ModelVersion)
	}

	m.Inputs = make([]kmodel.MemoryRange, m.Header.Inputs)
	if err := binio.ReadArray(r, m.Inputs); err != nil {
		return nil, fmt.Errorf("read input table: %w", err)
	}
	m.InputShapes = make([]kmodel.RuntimeShape, m.Header.Inputs)
	if err := binio.ReadArray(r, m.InputShapes); err != nil {
		return nil, fmt.Errorf("read input shape table: %w", err)
	}
	for i, shape := range m.InputShapes {
		// Rank is used as a bound into Dims by consumers; reject it here
		// so corrupted files fail with an error, not a panic.
		if shape.Rank > kmodel.MaxShapeRank {
			return nil, fmt.Errorf("%w: input %d has rank %d", ErrMalformedShape, i, shape.Rank)
		}
	}
	m.Outputs = make([]kmodel.MemoryRange, m.Header.Outputs)
	if err := binio.ReadArray(r, m.Outputs); err != nil {
		return nil, fmt.Errorf("read output table: %w", err)
	}

	pos, err := r.Position()
	if err != nil {
		return nil, err
	}
	m.constOffset = pos
	if err := r.Seek(pos + int64(m.Header.Constants)); err != nil {
		return nil, fmt.Errorf("skip constant pool: %w", err)
	}

	m.NodeHeaders = make([]kmodel.NodeHeader, m.Header.Nodes)
	if err := binio.ReadArray(r, m.NodeHeaders); err != nil {
		return nil, fmt.Errorf("read node headers: %w", err)
	}

	if m.Paged() {
		headersEnd, err := r.Position()
		if err != nil {
			return nil, err
		}
		if err := r.Read(&m.PageTable); err != nil {
			return nil, fmt.Errorf("read page table: %w", err)
		}
		m.Pages = make([]kmodel.MemoryPage, m.PageTable.NumPages)
		if err := binio.ReadArray(r, m.Pages); err != nil {
			return nil, fmt.Errorf("read pages: %w", err)
		}
		if err := validatePages(m.Pages, uint32(len(m.NodeHeaders))); err != nil {
			return nil, err
		}
		// The page region is sized for MaxPages regardless of use.
		if err := r.Seek(headersEnd + kmodel.SizePageRegion); err != nil {
			return nil, fmt.Errorf("skip page region: %w", err)
		}
	}

	// Bodies start at the next alignment boundary.
	if err := r.Align(kmodel.BodyAlign); err != nil {
		return nil, err
	}
	if m.bodyOffset, err = r.Position(); err != nil {
		return nil, err
	}
	return m, nil
}

// BodyOffset returns the file offset of the first node body.
func (m *Model) BodyOffset() int64 { return m.bodyOffset }

// validatePages checks the partition invariants the compiler guarantees:
// pages cover [0, nodes) contiguously, page 0 is persistent, later pages are
// swap.
func validatePages(pages []kmodel.MemoryPage, nodes uint32) error {
	if nodes == 0 {
		if len(pages) != 0 {
			return fmt.Errorf("%w: %d pages for empty model", ErrMalformedPages, len(pages))
		}
		return nil
	}
	if len(pages) == 0 || pages[0].Begin != 0 || pages[0].Type != kmodel.PagePersistent {
		return fmt.Errorf("%w: missing persistent page 0", ErrMalformedPages)
	}
	for i, page := range pages {
		if page.Begin > page.End || page.End >= nodes {
			return fmt.Errorf("%w: page %d covers [%d, %d] of %d nodes", ErrMalformedPages, i, page.Begin, page.End, nodes)
		}
		if i > 0 {
			if page.Type != kmodel.PageSwap {
				return fmt.Errorf("%w: page %d is not a swap page", ErrMalformedPages, i)
			}
			if page.Begin != pages[i-1].End+1 {
				return fmt.Errorf("%w: gap before page %d", ErrMalformedPages, i)
			}
		}
	}
	if last := pages[len(pages)-1].End; last != nodes-1 {
		return fmt.Errorf("%w: pages end at node %d of %d", ErrMalformedPages, last, nodes)
	}
	return nil
}
