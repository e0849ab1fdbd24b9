// Package kmodel defines the on-disk records and constants of the kmodel
// binary format consumed by the on-device runtime.
//
//	Format Structure (all integers little-endian):
//	  ModelHeader
//	  MemoryRange[Inputs]        input tensor locations
//	  RuntimeShape[Inputs]       input tensor shapes
//	  MemoryRange[Outputs]       output tensor locations
//	  constant pool              raw bytes, length = ModelHeader.Constants
//	  NodeHeader[Nodes]          reserved, backfilled after body emission
//	  [MemoryPageTable + MemoryPage[KMMaxPages] region]   iff FlagEnablePaging
//	  node bodies                opaque, emitter-defined, 8-byte aligned
//
// Record structs mirror the wire layout byte for byte: field order is byte
// order and there is no implicit padding, so they can be moved with
// encoding/binary directly.
package kmodel

import "fmt"

// Format constants.
const (
	// ModelIdentifier is "KMDL" read as a little-endian uint32.
	ModelIdentifier uint32 = 0x4C444D4B

	// ModelVersion is the current format version. Version 4 added the
	// memory page region.
	ModelVersion uint32 = 4

	// BodyAlign is the alignment of every node body in the file.
	BodyAlign = 8
)

// Feature flag bits in ModelHeader.Flags.
const (
	// FlagEnablePaging signals that the page table region is present and
	// node bodies are loaded page by page.
	FlagEnablePaging uint32 = 0x02
)

// Paging limits.
const (
	// KMMaxPages is the compiled-in ceiling on pages per model. The page
	// region is sized for KMMaxPages regardless of how many are used, so
	// loaders can locate the body stream from counts alone.
	KMMaxPages = 8

	// TargetPageSize is the soft per-page byte budget. A single node whose
	// body alone exceeds it still gets its own (oversized) page.
	TargetPageSize = 2300000
)

// Target identifiers in ModelHeader.Target.
const (
	TargetCPU  uint32 = 0
	TargetK210 uint32 = 1
)

// MemoryPageType values.
const (
	PagePersistent uint32 = 0
	PageSwap       uint32 = 1
)

// ModelHeader leads the file and carries the counts and aggregate sizes every
// later region is located from.
type ModelHeader struct {
	Identifier uint32
	Version    uint32
	Flags      uint32
	Target     uint32
	Constants  uint32 // constant pool size in bytes
	MainMem    uint32 // working memory size in bytes
	Nodes      uint32
	Inputs     uint32
	Outputs    uint32
}

// MemoryRange locates one tensor: a byte span within a memory space.
// Addresses are never stored; the runtime resolves Start against the base of
// the named space at load time.
type MemoryRange struct {
	MemoryType uint32
	DataType   uint32
	Start      uint32
	Size       uint32
}

// MaxShapeRank is the highest tensor rank the fixed-layout shape record can
// carry.
const MaxShapeRank = 4

// RuntimeShape is the fixed-layout shape record for one input tensor.
// Dims beyond Rank are zero.
type RuntimeShape struct {
	Rank uint32
	Dims [MaxShapeRank]uint32
}

// NodeHeader describes one node body's identity and extent. Headers appear in
// the same order bodies are written; BodySize includes alignment padding.
type NodeHeader struct {
	OpCode   uint32
	BodySize uint32
}

// MemoryPage covers a contiguous run of node-sequence indices [Begin, End]
// (inclusive). OffsetBytes/SizeBytes locate the run's bodies within the body
// stream for flash-backed loading.
type MemoryPage struct {
	Index       uint32
	Type        uint32
	Begin       uint32
	End         uint32
	OffsetBytes uint64
	SizeBytes   uint64
}

// MemoryPageTable heads the page region. BodyBufferSize is the minimum RAM
// needed for node bodies at any instant: all persistent pages plus the single
// largest swap page, since at most one swap page is resident at a time.
type MemoryPageTable struct {
	NumPages       uint32
	MaxPages       uint32
	BodyBufferSize uint64
}

// Wire sizes, in bytes. Region reservations are computed from these and the
// header counts alone, before any size-dependent content exists.
const (
	SizeModelHeader     = 36
	SizeMemoryRange     = 16
	SizeRuntimeShape    = 20
	SizeNodeHeader      = 8
	SizeMemoryPage      = 32
	SizeMemoryPageTable = 16

	// SizePageRegion is the reserved page region: the table plus space for
	// the maximum page count.
	SizePageRegion = SizeMemoryPageTable + KMMaxPages*SizeMemoryPage
)

// PageTypeName returns a human-readable page type for logs and tooling.
func PageTypeName(t uint32) string {
	switch t {
	case PagePersistent:
		return "persistent"
	case PageSwap:
		return "swap"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}
