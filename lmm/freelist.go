package lmm

// ============================================================================
// Free-block index primitives. Callers hold the lock.
// ============================================================================

// blockAt returns the free block containing addr.
func (a *Allocator) blockAt(addr uint64) (block, bool) {
	var (
		found block
		ok    bool
	)
	a.free.DescendLessOrEqual(block{start: addr}, func(b block) bool {
		found, ok = b, true
		return false
	})
	if ok && addr < found.end() {
		return found, true
	}
	return block{}, false
}

// blockFrom returns the free block containing addr, or failing that the
// first free block above it.
func (a *Allocator) blockFrom(addr uint64) (block, bool) {
	if b, ok := a.blockAt(addr); ok {
		return b, true
	}
	var (
		found block
		ok    bool
	)
	a.free.AscendGreaterOrEqual(block{start: addr}, func(b block) bool {
		found, ok = b, true
		return false
	})
	return found, ok
}

// walkRange visits, in address order, every free block sharing a byte with
// [lo, hi). fn returns false to stop.
func (a *Allocator) walkRange(lo, hi uint64, fn func(block) bool) {
	if b, ok := a.blockAt(lo); ok && b.start < lo {
		if !fn(b) {
			return
		}
	}
	a.free.AscendRange(block{start: lo}, block{start: hi}, fn)
}

// insert adds b to the index, absorbing mergeable neighbours that touch it.
// Any overlap with existing free space means the caller freed memory that
// was already free, and is fatal.
func (a *Allocator) insert(b block) {
	if b.size == 0 {
		corrupt("lmm: zero-length free block at %#x", b.start)
	}
	origStart, origEnd, added := b.start, b.end(), b.size

	var (
		prev, next       block
		hasPrev, hasNext bool
	)
	a.free.DescendLessOrEqual(block{start: origStart}, func(x block) bool {
		prev, hasPrev = x, true
		return false
	})
	a.free.AscendGreaterOrEqual(block{start: origStart}, func(x block) bool {
		if x.start == origStart {
			// Caught by the prev check below.
			return true
		}
		next, hasNext = x, true
		return false
	})

	if hasPrev {
		if prev.end() > origStart {
			corrupt("lmm: free of [%#x, %#x) overlaps free block [%#x, %#x)",
				origStart, origEnd, prev.start, prev.end())
		}
		if prev.end() == origStart && mergeable(prev, b) {
			a.free.Delete(prev)
			b.start = prev.start
			b.size += prev.size
			a.stats.Merges++
		}
	}
	if hasNext {
		if next.start < origEnd {
			corrupt("lmm: free of [%#x, %#x) overlaps free block [%#x, %#x)",
				origStart, origEnd, next.start, next.end())
		}
		if next.start == origEnd && mergeable(b, next) {
			a.free.Delete(next)
			b.size += next.size
			a.stats.Merges++
		}
	}

	a.free.ReplaceOrInsert(b)
	a.freeBytes += added
}

// carve takes [s, s+n) out of b, which must contain it, leaving zero, one or
// two fragments behind.
func (a *Allocator) carve(b block, s, n uint64) {
	e := s + n
	if s < b.start || e > b.end() || n == 0 {
		corrupt("lmm: carve of [%#x, %#x) outside free block [%#x, %#x)", s, e, b.start, b.end())
	}
	if _, ok := a.free.Delete(b); !ok {
		corrupt("lmm: free block at %#x vanished from the index", b.start)
	}
	a.freeBytes -= n

	if s > b.start {
		a.free.ReplaceOrInsert(block{start: b.start, size: s - b.start, flags: b.flags, region: b.region})
		a.stats.Splits++
	}
	if e < b.end() {
		a.free.ReplaceOrInsert(block{start: e, size: b.end() - e, flags: b.flags, region: b.region})
		a.stats.Splits++
	}
}
