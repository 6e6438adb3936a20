package lmm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestAllocator returns an allocator that validates itself after every
// mutation, seeded with the given regions.
func newTestAllocator(t testing.TB, regions ...Region) *Allocator {
	t.Helper()
	a := New(&Options{Validate: true})
	for _, r := range regions {
		require.NoError(t, a.AddRegion(r))
	}
	return a
}

// requireBlocks asserts the exact free list.
func requireBlocks(t testing.TB, a *Allocator, want ...Block) {
	t.Helper()
	got := a.Blocks()
	if len(want) == 0 {
		require.Empty(t, got)
		return
	}
	require.Equal(t, want, got, "free list:\n%s", dumpString(t, a))
}

// requireCorrupt runs fn and asserts that it panics with a corrupt-state
// assertion.
func requireCorrupt(t testing.TB, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected a corrupt-state panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.True(t, IsCorruptState(err), "panic %v is not a corrupt-state assertion", err)
	}()
	fn()
}

func dumpString(t testing.TB, a *Allocator) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, a.Dump(&sb))
	return sb.String()
}

// trackedRange records one tracker notification.
type trackedRange struct{ start, size uint64 }

// recordingTracker is a ReservationTracker that keeps every notification.
type recordingTracker struct {
	reserved []trackedRange
	released []trackedRange
}

func (r *recordingTracker) Reserve(start, size uint64) {
	r.reserved = append(r.reserved, trackedRange{start, size})
}

func (r *recordingTracker) Release(start, size uint64) {
	r.released = append(r.released, trackedRange{start, size})
}

// totalRegionBytes sums the span of every registered region.
func totalRegionBytes(a *Allocator) uint64 {
	var n uint64
	for _, r := range a.Regions() {
		n += r.Size()
	}
	return n
}
