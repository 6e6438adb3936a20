// Package lmm implements the List Memory Manager, a region-based allocator of
// address space for environments with no operating system underneath it.
//
// # Overview
//
// The allocator hands out address ranges, not Go memory. Boot code registers
// one or more regions of usable address space, each with a priority and a
// flags mask, and the allocator tracks which parts of those regions are free.
// It keeps no record of live allocations: the caller remembers the size it
// asked for and passes it back to Free.
//
//	a := lmm.New(nil)
//	err := a.AddRegion(lmm.Region{Min: 0x1000, Max: 0x10000, Flags: 0x1})
//	addr, err := a.Alloc(0x500, 0x1) // 0x1000
//	err = a.Free(addr, 0x500)
//
// # Components
//
//   - Free-list engine: AddFree, FindFree, Alloc, AllocAligned, AllocGen, Free
//   - Region registry: AddRegion, AddRegionReserved, FindRegion, Regions
//   - Range surgery: RemoveFree, Reinsert
//   - Introspection: Blocks, Walk, FreeBytes, RegionStats, Stats, Dump,
//     DumpJSON, Validate
//
// # Search Order
//
// Regions are searched by descending priority, ties broken by ascending base
// address. Within a region, free blocks are tried in ascending address order
// and the first block that fits wins. A block qualifies for a request when it
// carries every bit of the requested flags:
//
//	block.Flags & flags == flags
//
// A request for flags 0 therefore matches any block.
//
// # Free Blocks
//
// Free blocks are kept in a B-tree ordered by start address. Adjacent blocks
// are merged when they belong to the same region and carry identical flags;
// blocks with different flags stay separate so that a later request for those
// flags still finds them. A free block never crosses a region boundary.
//
// # Alignment
//
// AllocAligned and AllocGen return an address satisfying
//
//	(addr + alignOffset) mod (1 << alignBits) == 0
//
// which can leave a head fragment before the allocation and a tail fragment
// after it.
//
// # Range Surgery
//
// RemoveFree takes an arbitrary range out of the free pool, skipping parts
// that are already allocated. It is how boot code protects modules, the
// kernel image, or firmware holes after seeding whole regions. Reinsert puts
// such a range back with the flags of its region. An optional
// ReservationTracker is told about both.
//
// # Errors
//
// ErrOutOfMemory and ErrInvalidRange are ordinary results. A corrupted free
// list (overlapping blocks, a double free, a zero-length block) is not
// recoverable and panics with an assertion failure; IsCorruptState
// recognises the recovered value.
//
// # Thread Safety
//
// An Allocator is not safe for concurrent use on its own. Supply a
// sync.Locker in Options (a *sync.Mutex, or HookFuncs for custom enter/exit
// callbacks) and every public method runs inside it.
//
// # Debugging
//
// Setting LMM_VALIDATE in the environment runs Validate after every mutating
// call. LMM_LOG_ALLOC sends debug records for every search to stderr when no
// logger was configured.
package lmm
