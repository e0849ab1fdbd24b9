package codegen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiln-ml/kiln/internal/kmodel"
)

func headersOf(sizes ...uint32) []kmodel.NodeHeader {
	headers := make([]kmodel.NodeHeader, len(sizes))
	for i, s := range sizes {
		headers[i] = kmodel.NodeHeader{OpCode: 16, BodySize: s}
	}
	return headers
}

// checkPartition asserts the structural invariants every plan must satisfy:
// pages cover [0, N) contiguously and in order, page 0 is persistent, every
// later page is swap, and offsets are prefix sums of sizes.
func checkPartition(t *testing.T, headers []kmodel.NodeHeader, pages []kmodel.MemoryPage) {
	t.Helper()
	require.NotEmpty(t, pages)

	assert.Equal(t, uint32(0), pages[0].Begin)
	assert.Equal(t, kmodel.PagePersistent, pages[0].Type)
	assert.Equal(t, uint64(0), pages[0].OffsetBytes)
	assert.Equal(t, uint32(len(headers)-1), pages[len(pages)-1].End)

	for i, page := range pages {
		assert.Equal(t, uint32(i), page.Index, "page %d index", i)
		require.LessOrEqual(t, page.Begin, page.End, "page %d range", i)
		if i > 0 {
			assert.Equal(t, kmodel.PageSwap, page.Type, "page %d type", i)
			assert.Equal(t, pages[i-1].End+1, page.Begin, "page %d contiguity", i)
			assert.Equal(t, pages[i-1].OffsetBytes+pages[i-1].SizeBytes, page.OffsetBytes, "page %d offset", i)
		}

		var sum uint64
		for n := page.Begin; n <= page.End; n++ {
			sum += uint64(headers[n].BodySize)
		}
		assert.Equal(t, sum, page.SizeBytes, "page %d size", i)

		// The budget binds unless the page is an oversized singleton.
		if page.SizeBytes > kmodel.TargetPageSize {
			assert.Equal(t, page.Begin, page.End, "oversized page %d must cover one node", i)
		}
	}
}

func TestPlanPagesTenEqualNodes(t *testing.T) {
	// Worked example: 10 nodes of 1,000,000 bytes against a 2,300,000
	// budget pack two per page.
	sizes := make([]uint32, 10)
	for i := range sizes {
		sizes[i] = 1000000
	}
	headers := headersOf(sizes...)

	pages, table, err := PlanPages(headers)
	require.NoError(t, err)
	checkPartition(t, headers, pages)

	require.Len(t, pages, 5)
	assert.Equal(t, uint32(0), pages[0].Begin)
	assert.Equal(t, uint32(1), pages[0].End)
	assert.Equal(t, uint32(5), table.NumPages)
	assert.Equal(t, uint32(kmodel.KMMaxPages), table.MaxPages)
	// 2,000,000 persistent + 2,000,000 largest swap.
	assert.Equal(t, uint64(4000000), table.BodyBufferSize)
}

func TestPlanPagesOversizedSingleton(t *testing.T) {
	headers := headersOf(5000000)

	pages, table, err := PlanPages(headers)
	require.NoError(t, err)
	checkPartition(t, headers, pages)

	require.Len(t, pages, 1)
	assert.Equal(t, kmodel.PagePersistent, pages[0].Type)
	assert.Equal(t, uint64(5000000), pages[0].SizeBytes)
	assert.Equal(t, uint64(5000000), table.BodyBufferSize)
}

func TestPlanPagesOversizedMidSequence(t *testing.T) {
	// An over-budget node after normal ones gets its own swap page.
	headers := headersOf(1000000, 4000000, 1000000)

	pages, table, err := PlanPages(headers)
	require.NoError(t, err)
	checkPartition(t, headers, pages)

	require.Len(t, pages, 3)
	assert.Equal(t, uint64(4000000), pages[1].SizeBytes)
	assert.Equal(t, kmodel.PageSwap, pages[1].Type)
	// 1,000,000 persistent + 4,000,000 largest swap.
	assert.Equal(t, uint64(5000000), table.BodyBufferSize)
}

func TestPlanPagesSinglePageNoSwap(t *testing.T) {
	headers := headersOf(100, 200, 300)

	pages, table, err := PlanPages(headers)
	require.NoError(t, err)
	checkPartition(t, headers, pages)

	require.Len(t, pages, 1)
	// No swap pages: buffer is the persistent size alone.
	assert.Equal(t, uint64(600), table.BodyBufferSize)
}

func TestPlanPagesCapacityExceeded(t *testing.T) {
	// 9 over-budget nodes force 9 singleton pages, one past the cap.
	sizes := make([]uint32, kmodel.KMMaxPages+1)
	for i := range sizes {
		sizes[i] = kmodel.TargetPageSize + 1
	}

	_, _, err := PlanPages(headersOf(sizes...))
	require.Error(t, err)

	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, kmodel.KMMaxPages+1, capErr.Pages)
	assert.Equal(t, kmodel.KMMaxPages, capErr.MaxPages)
}

func TestPlanPagesEmpty(t *testing.T) {
	pages, table, err := PlanPages(nil)
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Equal(t, uint32(0), table.NumPages)
	assert.Equal(t, uint64(0), table.BodyBufferSize)
}

func TestPlanPagesBudgetBoundary(t *testing.T) {
	// Exactly the budget fits in one page; one more byte splits.
	headers := headersOf(kmodel.TargetPageSize-100, 100)
	pages, _, err := PlanPages(headers)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	headers = headersOf(kmodel.TargetPageSize-100, 101)
	pages, _, err = PlanPages(headers)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	checkPartition(t, headers, pages)
}
