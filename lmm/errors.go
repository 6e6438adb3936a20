package lmm

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory indicates that no free block satisfies the size, flags
	// and alignment of a request.
	ErrOutOfMemory = errors.New("lmm: out of memory")

	// ErrInvalidRange indicates that an exact range is not wholly inside one
	// compatible free block, or that a range lies outside every region.
	ErrInvalidRange = errors.New("lmm: invalid range")

	// ErrInvalidArgument indicates a zero size, an alignment exponent out of
	// range, or a range whose end does not fit in 64 bits.
	ErrInvalidArgument = errors.New("lmm: invalid argument")

	// ErrRegionOverlap indicates that a new region overlaps one already
	// registered.
	ErrRegionOverlap = errors.New("lmm: region overlaps a registered region")
)

// IsCorruptState reports whether err (typically a recovered panic value
// converted to an error) describes a violated free-list invariant.
func IsCorruptState(err error) bool {
	return err != nil && errors.HasAssertionFailure(err)
}

// corrupt stops the allocator. The free list can no longer be trusted, and
// continuing could hand out the same memory twice.
func corrupt(format string, args ...any) {
	panic(errors.AssertionFailedf(format, args...))
}
