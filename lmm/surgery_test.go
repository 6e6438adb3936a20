package lmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_RemoveFree_SpansBlocksAndAllocations(t *testing.T) {
	a := newTestAllocator(t, Region{Min: 0x1000, Max: 0x10000, Flags: 0x1})

	// Free list: [0x1000,0x2000) [0x3000,0x4000) [0x5000,0x10000)
	_, err := a.AllocGen(0x1000, 0, 0, 0, 0x2000, 0x1000)
	require.NoError(t, err)
	_, err = a.AllocGen(0x1000, 0, 0, 0, 0x4000, 0x1000)
	require.NoError(t, err)

	removed := a.RemoveFree(0x1800, 0x4000)
	require.Equal(t, uint64(0x800+0x1000+0x800), removed)
	requireBlocks(t, a,
		Block{Start: 0x1000, Size: 0x800, Flags: 0x1},
		Block{Start: 0x5800, Size: 0xA800, Flags: 0x1},
	)
}

func Test_RemoveFree_Idempotent(t *testing.T) {
	a := newTestAllocator(t, Region{Min: 0x1000, Max: 0x10000})

	first := a.RemoveFree(0x4000, 0x2000)
	require.Equal(t, uint64(0x2000), first)
	after := a.Blocks()

	second := a.RemoveFree(0x4000, 0x2000)
	require.Zero(t, second)
	require.Equal(t, after, a.Blocks())
}

func Test_RemoveFree_LeavesAllocStatsAlone(t *testing.T) {
	a := newTestAllocator(t, Region{Min: 0x1000, Max: 0x10000})

	_, err := a.Alloc(0x100, 0)
	require.NoError(t, err)
	before := a.Stats()

	require.Equal(t, uint64(0x2000), a.RemoveFree(0x4000, 0x2000))
	after := a.Stats()
	require.Equal(t, before.AllocCalls, after.AllocCalls)
	require.Equal(t, before.Lookups, after.Lookups)
	require.Equal(t, before.Hits, after.Hits)
	require.Equal(t, before.BytesAllocated, after.BytesAllocated)
}

func Test_RemoveFree_RangeBeforeFirstBlock(t *testing.T) {
	a := newTestAllocator(t, Region{Min: 0x10000, Max: 0x20000})
	before := a.Blocks()

	require.Zero(t, a.RemoveFree(0x1000, 0x1000))
	require.Zero(t, a.RemoveFree(0x1000, 0xF000), "ends exactly where the first block starts")
	require.Equal(t, before, a.Blocks())
	require.Zero(t, a.RemoveFree(0x30000, 0x1000))
	require.Zero(t, a.RemoveFree(0x15000, 0))
	require.Equal(t, before, a.Blocks())
}

func Test_RemoveFree_WholeAddressSpace(t *testing.T) {
	a := newTestAllocator(t,
		Region{Min: 0x1000, Max: 0x2000},
		Region{Min: 0xFFFF_0000_0000_0000, Max: math.MaxUint64},
	)
	total := a.FreeBytes()

	require.Equal(t, total, a.RemoveFree(0, math.MaxUint64))
	requireBlocks(t, a)
}

func Test_RemoveFree_NotifiesTracker(t *testing.T) {
	tr := &recordingTracker{}
	a := New(&Options{Validate: true, Tracker: tr})
	require.NoError(t, a.AddRegion(Region{Min: 0x1000, Max: 0x4000}))
	_, err := a.AllocGen(0x100, 0, 0, 0, 0x2000, 0x100)
	require.NoError(t, err)

	a.RemoveFree(0x1F00, 0x300)
	require.Equal(t, []trackedRange{{0x1F00, 0x100}, {0x2100, 0x100}}, tr.reserved)
	require.Empty(t, tr.released)
}

func Test_Reinsert_RestoresRemovedRange(t *testing.T) {
	a := newTestAllocator(t, Region{Min: 0x1000, Max: 0x10000, Flags: 0x7})
	original := a.Blocks()

	a.RemoveFree(0x2000, 0x3000)
	require.NoError(t, a.Reinsert(0x2000, 0x3000))
	require.Equal(t, original, a.Blocks())

	require.NoError(t, a.Reinsert(0x2000, 0x3000), "already free: nothing to do")
	require.Equal(t, original, a.Blocks())
}

func Test_Reinsert_PartiallyFree(t *testing.T) {
	tr := &recordingTracker{}
	a := New(&Options{Validate: true, Tracker: tr})
	require.NoError(t, a.AddRegion(Region{Min: 0x1000, Max: 0x10000, Flags: 0x1}))

	a.RemoveFree(0x2000, 0x100)
	a.RemoveFree(0x3000, 0x100)

	require.NoError(t, a.Reinsert(0x1000, 0x4000))
	requireBlocks(t, a, Block{Start: 0x1000, Size: 0xF000, Flags: 0x1})
	require.Equal(t, []trackedRange{{0x2000, 0x100}, {0x3000, 0x100}}, tr.released)
	require.Equal(t, uint64(0x200), a.Stats().BytesReinserted)
}

func Test_Reinsert_AcrossRegions(t *testing.T) {
	a := newTestAllocator(t,
		Region{Min: 0x1000, Max: 0x2000, Flags: 0x1},
		Region{Min: 0x2000, Max: 0x3000, Flags: 0x2},
	)
	a.RemoveFree(0x1800, 0x1000)

	require.NoError(t, a.Reinsert(0x1800, 0x1000))
	requireBlocks(t, a,
		Block{Start: 0x1000, Size: 0x1000, Flags: 0x1},
		Block{Start: 0x2000, Size: 0x1000, Flags: 0x2},
	)
}

func Test_Reinsert_OutsideRegions(t *testing.T) {
	a := newTestAllocator(t,
		Region{Min: 0x1000, Max: 0x2000},
		Region{Min: 0x3000, Max: 0x4000},
	)
	a.RemoveFree(0x1000, 0x3000)

	err := a.Reinsert(0x1000, 0x3000)
	require.ErrorIs(t, err, ErrInvalidRange, "gap between the regions")
	requireBlocks(t, a)

	require.ErrorIs(t, a.Reinsert(0x1000, 0), ErrInvalidArgument)
	require.ErrorIs(t, a.Reinsert(math.MaxUint64, 2), ErrInvalidArgument)
}

func Test_Reinsert_TakesRegionFlags(t *testing.T) {
	a := New(&Options{Validate: true})
	require.NoError(t, a.AddRegionReserved(Region{Min: 0x1000, Max: 0x2000, Flags: 0x9}))
	require.NoError(t, a.AddFree(0x1000, 0x800, 0x1))

	require.NoError(t, a.Reinsert(0x1000, 0x1000))
	requireBlocks(t, a,
		Block{Start: 0x1000, Size: 0x800, Flags: 0x1},
		Block{Start: 0x1800, Size: 0x800, Flags: 0x9},
	)
}
