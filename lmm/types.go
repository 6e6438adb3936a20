package lmm

import "fmt"

// Flags classifies regions and free blocks, and constrains allocation
// requests. The meaning of each bit is chosen by the embedding environment,
// e.g. "below 16MB" or "DMA reachable".
type Flags uint32

// Has reports whether f carries every bit of want.
func (f Flags) Has(want Flags) bool { return f&want == want }

func (f Flags) String() string { return fmt.Sprintf("0x%08x", uint32(f)) }

// Region is one contiguous span of usable address space. Max is exclusive.
type Region struct {
	Min      uint64
	Max      uint64
	Priority int
	Flags    Flags
}

// Size returns the number of bytes the region spans.
func (r Region) Size() uint64 { return r.Max - r.Min }

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uint64) bool { return addr >= r.Min && addr < r.Max }

func (r Region) overlaps(o Region) bool { return r.Min < o.Max && o.Min < r.Max }

// Block describes one free block as seen by callers.
type Block struct {
	Start uint64
	Size  uint64
	Flags Flags
}

// End returns the exclusive end address of the block.
func (b Block) End() uint64 { return b.Start + b.Size }

// RegionStats summarizes the free space inside one region.
type RegionStats struct {
	Region     Region
	FreeBytes  uint64
	FreeBlocks int
	Largest    uint64
}

// Stats holds allocator counters for tuning and diagnostics.
type Stats struct {
	Lookups uint64 // searches for a fitting block
	Hits    uint64 // searches that found one
	Scanned uint64 // blocks examined across all searches

	AllocCalls    uint64
	FreeCalls     uint64 // Free and AddFree
	RemoveCalls   uint64
	ReinsertCalls uint64

	BytesAllocated  uint64
	BytesFreed      uint64
	BytesRemoved    uint64
	BytesReinserted uint64

	Splits uint64 // fragments left behind when a block is carved
	Merges uint64 // neighbours absorbed when a block is inserted
}

// block is the tree item. region indexes Allocator.regions.
type block struct {
	start  uint64
	size   uint64
	flags  Flags
	region int
}

func (b block) end() uint64 { return b.start + b.size }

func (b block) export() Block { return Block{Start: b.start, Size: b.size, Flags: b.flags} }

func lessBlock(x, y block) bool { return x.start < y.start }

// mergeable reports whether two physically adjacent blocks may become one.
func mergeable(x, y block) bool { return x.region == y.region && x.flags == y.flags }
