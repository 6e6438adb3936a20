package lmm

import "github.com/cockroachdb/errors"

// Validate walks the whole free list and reports the first broken
// invariant: a zero-length block, blocks out of order or overlapping, a
// block outside its region, two adjacent blocks that should have merged, or
// a free-byte total that disagrees with the blocks. The error satisfies
// IsCorruptState.
//
// A correct allocator never fails this check; it exists for tests and for
// the LMM_VALIDATE debug mode.
func (a *Allocator) Validate() error {
	a.enter()
	defer a.exit()

	return a.check()
}

func (a *Allocator) check() error {
	var (
		err     error
		prev    block
		hasPrev bool
		total   uint64
		count   int
	)
	a.free.Ascend(func(b block) bool {
		count++
		switch {
		case b.size == 0:
			err = errors.AssertionFailedf("lmm: zero-length free block at %#x", b.start)
		case b.end() < b.start:
			err = errors.AssertionFailedf("lmm: free block at %#x wraps the address space", b.start)
		case b.region < 0 || b.region >= len(a.regions):
			err = errors.AssertionFailedf("lmm: free block at %#x has no region (%d)", b.start, b.region)
		case b.start < a.regions[b.region].Min || b.end() > a.regions[b.region].Max:
			r := a.regions[b.region]
			err = errors.AssertionFailedf("lmm: free block [%#x, %#x) escapes region [%#x, %#x)",
				b.start, b.end(), r.Min, r.Max)
		case hasPrev && b.start < prev.end():
			err = errors.AssertionFailedf("lmm: free block [%#x, %#x) overlaps or precedes [%#x, %#x)",
				b.start, b.end(), prev.start, prev.end())
		case hasPrev && b.start == prev.end() && mergeable(prev, b):
			err = errors.AssertionFailedf("lmm: adjacent free blocks at %#x and %#x were not merged",
				prev.start, b.start)
		}
		if err != nil {
			return false
		}
		total += b.size
		prev, hasPrev = b, true
		return true
	})
	if err != nil {
		return err
	}
	if count != a.free.Len() {
		return errors.AssertionFailedf("lmm: index reports %d blocks, walk found %d", a.free.Len(), count)
	}
	if total != a.freeBytes {
		return errors.AssertionFailedf("lmm: free-byte total is %d, blocks add up to %d", a.freeBytes, total)
	}
	return nil
}
