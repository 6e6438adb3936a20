package reserve

import (
	"slices"

	"github.com/joshuapare/lmm/internal/align"
)

// defaultRangeCapacity is the pre-allocated capacity for reserved ranges.
const defaultRangeCapacity = 64

// Range is a reserved address range. End is exclusive.
type Range struct {
	Start uint64
	End   uint64
}

// Size returns the number of bytes in the range.
func (r Range) Size() uint64 { return r.End - r.Start }

// Tracker accumulates reserved ranges.
//
// NOT thread-safe. When attached to an allocator it runs under that
// allocator's Locker.
type Tracker struct {
	ranges []Range // sorted, disjoint, never adjacent
	bytes  uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ranges: make([]Range, 0, defaultRangeCapacity)}
}

// Reserve adds [start, start+size) to the reserved set. Overlap with
// ranges already reserved is absorbed. A range running past the top of the
// address space is clipped there.
func (t *Tracker) Reserve(start, size uint64) {
	if size == 0 {
		return
	}
	end := align.ClampEnd(start, size)

	// First range that ends at or after start; everything before it stays.
	i, _ := slices.BinarySearchFunc(t.ranges, start, func(r Range, addr uint64) int {
		if r.End < addr {
			return -1
		}
		return 1
	})

	// Absorb every range that touches [start, end).
	j := i
	for j < len(t.ranges) && t.ranges[j].Start <= end {
		start = min(start, t.ranges[j].Start)
		end = max(end, t.ranges[j].End)
		t.bytes -= t.ranges[j].Size()
		j++
	}
	t.ranges = slices.Replace(t.ranges, i, j, Range{Start: start, End: end})
	t.bytes += end - start
}

// Release removes [start, start+size) from the reserved set. Bytes that are
// not reserved are ignored.
func (t *Tracker) Release(start, size uint64) {
	if size == 0 {
		return
	}
	end := align.ClampEnd(start, size)

	// First range ending after start.
	i, _ := slices.BinarySearchFunc(t.ranges, start, func(r Range, addr uint64) int {
		if r.End <= addr {
			return -1
		}
		return 1
	})

	var keep []Range
	j := i
	for j < len(t.ranges) && t.ranges[j].Start < end {
		r := t.ranges[j]
		t.bytes -= r.Size()
		if r.Start < start {
			keep = append(keep, Range{Start: r.Start, End: start})
		}
		if r.End > end {
			keep = append(keep, Range{Start: end, End: r.End})
		}
		j++
	}
	for _, k := range keep {
		t.bytes += k.Size()
	}
	t.ranges = slices.Replace(t.ranges, i, j, keep...)
}

// Contains reports whether addr is reserved.
func (t *Tracker) Contains(addr uint64) bool {
	i, found := slices.BinarySearchFunc(t.ranges, addr, func(r Range, a uint64) int {
		switch {
		case r.End <= a:
			return -1
		case r.Start > a:
			return 1
		}
		return 0
	})
	return found && i < len(t.ranges)
}

// Bytes returns the total number of reserved bytes.
func (t *Tracker) Bytes() uint64 { return t.bytes }

// Len returns the number of disjoint reserved ranges.
func (t *Tracker) Len() int { return len(t.ranges) }

// Ranges returns a copy of the reserved ranges, sorted and coalesced.
func (t *Tracker) Ranges() []Range {
	return slices.Clone(t.ranges)
}

// PageRanges rounds every reserved range out to pageSize boundaries and
// merges the results that then overlap or touch. pageSize must be a power
// of two; anything else yields nil.
func (t *Tracker) PageRanges(pageSize uint64) []Range {
	if len(t.ranges) == 0 || !align.IsPow2(pageSize) {
		return nil
	}

	merged := make([]Range, 0, len(t.ranges))
	current := Range{
		Start: align.PageDown(t.ranges[0].Start, pageSize),
		End:   align.PageUp(t.ranges[0].End, pageSize),
	}
	for _, r := range t.ranges[1:] {
		next := Range{
			Start: align.PageDown(r.Start, pageSize),
			End:   align.PageUp(r.End, pageSize),
		}
		if next.Start <= current.End {
			current.End = max(current.End, next.End)
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// Reset clears all reserved ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
	t.bytes = 0
}
