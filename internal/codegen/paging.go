package codegen

import "github.com/kiln-ml/kiln/internal/kmodel"

// PlanPages partitions a node-header sequence into contiguous memory pages
// under the TargetPageSize budget and computes the page table.
//
// The pass is a single left-to-right greedy sweep: execution order is fixed
// by the schedule and a page is a contiguous node run streamed from flash,
// so the only degree of freedom is where to cut. Page 0 is persistent
// unconditionally; every later page is a swap page. A node whose body alone
// exceeds the budget still lands in its own oversized page; the budget is a
// target, not a per-page ceiling.
//
// An empty sequence yields no pages and a zero table. Exceeding KMMaxPages
// is a fatal build error, not a runtime condition.
func PlanPages(headers []kmodel.NodeHeader) ([]kmodel.MemoryPage, kmodel.MemoryPageTable, error) {
	if len(headers) == 0 {
		return nil, kmodel.MemoryPageTable{MaxPages: kmodel.KMMaxPages}, nil
	}

	var pages []kmodel.MemoryPage

	// The first page is always held in memory.
	current := kmodel.MemoryPage{
		Index:     0,
		Type:      kmodel.PagePersistent,
		Begin:     0,
		End:       0,
		SizeBytes: uint64(headers[0].BodySize),
	}

	for node := 1; node < len(headers); node++ {
		size := uint64(headers[node].BodySize)
		if current.SizeBytes+size > kmodel.TargetPageSize {
			pages = append(pages, current)
			current = kmodel.MemoryPage{
				Index:       current.Index + 1,
				Type:        kmodel.PageSwap,
				Begin:       uint32(node),
				End:         uint32(node),
				OffsetBytes: current.OffsetBytes + current.SizeBytes,
				SizeBytes:   size,
			}
		} else {
			current.End = uint32(node)
			current.SizeBytes += size
		}
	}
	pages = append(pages, current)

	if len(pages) > kmodel.KMMaxPages {
		return nil, kmodel.MemoryPageTable{}, &CapacityError{Pages: len(pages), MaxPages: kmodel.KMMaxPages}
	}

	// Persistent pages are never evicted; at most one swap page is resident
	// at a time, so only the largest must be budgeted for.
	var persistent, largestSwap uint64
	for _, page := range pages {
		if page.Type == kmodel.PagePersistent {
			persistent += page.SizeBytes
		} else if page.SizeBytes > largestSwap {
			largestSwap = page.SizeBytes
		}
	}

	table := kmodel.MemoryPageTable{
		NumPages:       uint32(len(pages)),
		MaxPages:       kmodel.KMMaxPages,
		BodyBufferSize: persistent + largestSwap,
	}
	return pages, table, nil
}
