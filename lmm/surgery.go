package lmm

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/internal/align"
)

// RemoveFree takes every free byte inside [start, start+size) out of the
// pool and returns how many bytes that was. Parts of the range that are
// already allocated are skipped, so a second identical call removes nothing.
// A range running past the top of the address space is clipped there.
func (a *Allocator) RemoveFree(start, size uint64) uint64 {
	a.enter()
	defer a.exit()
	defer a.mutated()

	a.stats.RemoveCalls++
	if size == 0 {
		return 0
	}
	end := align.ClampEnd(start, size)

	var removed uint64
	for cur := start; cur < end; {
		fs, fsize, _, ok := a.findFree(cur)
		if !ok || fs >= end {
			break
		}
		clipEnd := min(fs+fsize, end)
		n := clipEnd - fs

		got, err := a.allocGen(n, 0, 0, 0, fs, n, true)
		if err != nil || got != fs {
			corrupt("lmm: exact removal of free range [%#x, %#x) returned %#x: %v", fs, clipEnd, got, err)
		}
		if a.tracker != nil {
			a.tracker.Reserve(fs, n)
		}
		removed += n
		cur = clipEnd
	}

	a.stats.BytesRemoved += removed
	a.log.Debug("lmm: removed free range", "start", start, "size", size, "removed", removed)
	return removed
}

// Reinsert marks [start, start+size) free again, each piece tagged with the
// flags of its region. Pieces that are already free are left alone, which
// makes Reinsert the idempotent inverse of RemoveFree.
//
// The whole range must lie inside registered regions; otherwise the error
// wraps ErrInvalidRange and nothing changes.
func (a *Allocator) Reinsert(start, size uint64) error {
	a.enter()
	defer a.exit()
	defer a.mutated()

	if size == 0 {
		return errors.Wrapf(ErrInvalidArgument, "zero-size reinsert at %#x", start)
	}
	end, ok := align.End(start, size)
	if !ok {
		return errors.Wrapf(ErrInvalidArgument, "reinsert of %#x bytes at %#x wraps the address space", size, start)
	}
	spans, covered := a.regionSpans(start, end)
	if !covered {
		return errors.Wrapf(ErrInvalidRange, "[%#x, %#x) is not wholly inside registered regions", start, end)
	}

	// Collect the gaps first; the index cannot change under a walk.
	var gaps []span
	for _, s := range spans {
		cur := s.start
		a.walkRange(s.start, s.end, func(b block) bool {
			if b.start > cur {
				gaps = append(gaps, span{start: cur, end: b.start, region: s.region})
			}
			cur = max(cur, b.end())
			return true
		})
		if cur < s.end {
			gaps = append(gaps, span{start: cur, end: s.end, region: s.region})
		}
	}

	a.stats.ReinsertCalls++
	for _, g := range gaps {
		n := g.end - g.start
		a.insert(block{start: g.start, size: n, flags: a.regions[g.region].Flags, region: g.region})
		if a.tracker != nil {
			a.tracker.Release(g.start, n)
		}
		a.stats.BytesReinserted += n
	}

	a.log.Debug("lmm: reinserted range", "start", start, "size", size, "pieces", len(gaps))
	return nil
}
