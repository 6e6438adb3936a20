package lmm

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/internal/align"
)

// Alloc returns the start of size bytes taken from the first fitting free
// block, searching regions by priority. Every bit of flags must be present
// on the block.
func (a *Allocator) Alloc(size uint64, flags Flags) (uint64, error) {
	a.enter()
	defer a.exit()
	defer a.mutated()

	return a.allocCounted(size, flags, 0, 0, 0, math.MaxUint64, false)
}

// AllocAligned is Alloc with the result constrained to
// (addr + alignOffset) mod (1 << alignBits) == 0.
func (a *Allocator) AllocAligned(size uint64, flags Flags, alignBits uint, alignOffset uint64) (uint64, error) {
	a.enter()
	defer a.exit()
	defer a.mutated()

	return a.allocCounted(size, flags, alignBits, alignOffset, 0, math.MaxUint64, false)
}

// AllocGen is the general allocation primitive. The result is aligned as for
// AllocAligned and the allocation lies wholly inside [inMin, inMin+inSize).
//
// When inSize equals size the request names one exact range; if that range
// is not wholly inside a single compatible free block the error wraps
// ErrInvalidRange. Other failures wrap ErrOutOfMemory.
func (a *Allocator) AllocGen(
	size uint64,
	flags Flags,
	alignBits uint,
	alignOffset uint64,
	inMin, inSize uint64,
) (uint64, error) {
	a.enter()
	defer a.exit()
	defer a.mutated()

	return a.allocCounted(size, flags, alignBits, alignOffset, inMin, inSize, inSize == size)
}

func (a *Allocator) allocCounted(
	size uint64,
	flags Flags,
	alignBits uint,
	alignOffset uint64,
	inMin, inSize uint64,
	exact bool,
) (uint64, error) {
	a.stats.AllocCalls++
	a.stats.Lookups++
	addr, err := a.allocGen(size, flags, alignBits, alignOffset, inMin, inSize, exact)
	if err == nil {
		a.stats.Hits++
		a.stats.BytesAllocated += size
	}
	return addr, err
}

// allocGen finds and carves the allocation. It does not touch the call or
// lookup counters so range surgery can reuse it.
func (a *Allocator) allocGen(
	size uint64,
	flags Flags,
	alignBits uint,
	alignOffset uint64,
	inMin, inSize uint64,
	exact bool,
) (uint64, error) {
	if size == 0 {
		return 0, errors.Wrap(ErrInvalidArgument, "zero-size allocation")
	}
	if alignBits > align.MaxBits {
		return 0, errors.Wrapf(ErrInvalidArgument, "alignment exponent %d exceeds %d", alignBits, align.MaxBits)
	}
	winEnd := align.ClampEnd(inMin, inSize)

	var (
		victim block
		at     uint64
		found  bool
	)
	if winEnd-inMin >= size {
		for _, ri := range a.order {
			r := a.regions[ri]
			lo, hi, ok := align.Intersect(inMin, winEnd, r.Min, r.Max)
			if !ok || hi-lo < size {
				continue
			}

			a.walkRange(lo, hi, func(b block) bool {
				a.stats.Scanned++
				if !b.flags.Has(flags) {
					return true
				}
				s, ok := align.Up(max(b.start, lo), alignBits, alignOffset)
				if !ok {
					return true
				}
				e, ok := align.End(s, size)
				if !ok || e > min(b.end(), hi) {
					return true
				}
				victim, at, found = b, s, true
				return false
			})
			if found {
				break
			}
		}
	}

	if !found {
		a.log.Debug("lmm: allocation failed",
			"size", size, "flags", flags, "align_bits", alignBits,
			"align_offset", alignOffset, "min", inMin, "window", inSize)
		if exact {
			return 0, errors.Wrapf(ErrInvalidRange,
				"[%#x, %#x) is not wholly inside one free block with flags %s", inMin, winEnd, flags)
		}
		return 0, errors.Wrapf(ErrOutOfMemory,
			"no free block for %#x bytes with flags %s aligned to 2^%d+%#x", size, flags, alignBits, alignOffset)
	}

	a.carve(victim, at, size)
	a.log.Debug("lmm: allocated", "addr", at, "size", size, "flags", flags)
	return at, nil
}
