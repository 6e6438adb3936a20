package lmm

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/internal/align"
)

// AddFree declares [start, start+size) free with the given flags. The range
// is clipped to the registered regions; pieces outside every region are
// dropped, and if nothing remains the error wraps ErrInvalidRange.
//
// Freeing memory that is already free panics (see IsCorruptState).
func (a *Allocator) AddFree(start, size uint64, flags Flags) error {
	a.enter()
	defer a.exit()
	defer a.mutated()

	return a.addFree(start, size, func(Region) Flags { return flags })
}

// Free returns [addr, addr+size) to the pool, tagging each piece with the
// flags of its region. size must be the size passed to the allocation call;
// the allocator cannot check it.
func (a *Allocator) Free(addr, size uint64) error {
	a.enter()
	defer a.exit()
	defer a.mutated()

	return a.addFree(addr, size, func(r Region) Flags { return r.Flags })
}

func (a *Allocator) addFree(start, size uint64, flagsFor func(Region) Flags) error {
	if size == 0 {
		return errors.Wrapf(ErrInvalidArgument, "zero-size free at %#x", start)
	}
	end, ok := align.End(start, size)
	if !ok {
		return errors.Wrapf(ErrInvalidArgument, "free of %#x bytes at %#x wraps the address space", size, start)
	}

	spans, _ := a.regionSpans(start, end)
	if len(spans) == 0 {
		return errors.Wrapf(ErrInvalidRange, "[%#x, %#x) lies outside every region", start, end)
	}

	a.stats.FreeCalls++
	for _, s := range spans {
		a.insert(block{
			start:  s.start,
			size:   s.end - s.start,
			flags:  flagsFor(a.regions[s.region]),
			region: s.region,
		})
		a.stats.BytesFreed += s.end - s.start
	}
	return nil
}
