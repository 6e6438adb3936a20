// Package align holds the address arithmetic shared by the allocator:
// power-of-two alignment with an offset, and overflow-safe range ends.
//
// Every range in the allocator is half-open, [start, end). An end that
// would wrap past the top of the 64-bit address space is reported rather
// than silently truncated.
package align

import (
	"math"
	"math/bits"
)

// MaxBits is the largest alignment exponent accepted by Up.
const MaxBits = 63

// Mask returns the low-bit mask for a 1<<b alignment.
//
// Example:
//
//	Mask(0)  = 0x0
//	Mask(4)  = 0xF
//	Mask(12) = 0xFFF
func Mask(b uint) uint64 {
	return (uint64(1) << b) - 1
}

// IsAligned reports whether (addr + offset) is a multiple of 1<<b.
func IsAligned(addr uint64, b uint, offset uint64) bool {
	return (addr+offset)&Mask(b) == 0
}

// Up returns the smallest a >= addr such that (a + offset) mod (1<<b) == 0.
// ok is false when no such address fits below 2^64.
//
// The offset lets callers align a header-prefixed object so that the byte
// after the header lands on the boundary:
//
//	Up(0x1001, 4, 0)   = 0x1010
//	Up(0x1001, 4, 8)   = 0x1008  // 0x1008+8 = 0x1010
//	Up(0x1000, 12, 0)  = 0x1000
func Up(addr uint64, b uint, offset uint64) (uint64, bool) {
	if IsAligned(addr, b, offset) {
		return addr, true
	}
	m := Mask(b)
	r := (addr + offset) & m
	a := addr + (m + 1 - r)
	if a < addr {
		return 0, false
	}
	return a, true
}

// End returns start+size. ok is false when the exclusive end does not fit
// in 64 bits.
func End(start, size uint64) (uint64, bool) {
	end, carry := bits.Add64(start, size, 0)
	if carry != 0 {
		return 0, false
	}
	return end, true
}

// ClampEnd is End saturated at math.MaxUint64.
func ClampEnd(start, size uint64) uint64 {
	end, ok := End(start, size)
	if !ok {
		return math.MaxUint64
	}
	return end
}

// Intersect clips [aStart, aEnd) to [bStart, bEnd). ok is false when the
// ranges share no byte.
func Intersect(aStart, aEnd, bStart, bEnd uint64) (start, end uint64, ok bool) {
	start = max(aStart, bStart)
	end = min(aEnd, bEnd)
	if start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// IsPow2 reports whether n is a non-zero power of two.
func IsPow2(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// Log2 returns the exponent of a power of two. The result is meaningless
// when IsPow2(n) is false.
func Log2(n uint64) uint {
	return uint(bits.TrailingZeros64(n))
}

// PageDown rounds n down to a multiple of page (a power of two).
func PageDown(n, page uint64) uint64 {
	return n &^ (page - 1)
}

// PageUp rounds n up to a multiple of page (a power of two). An end that
// would round past the top of the address space saturates at
// math.MaxUint64, so a range covering the last partial page keeps it.
func PageUp(n, page uint64) uint64 {
	up, ok := Up(n, Log2(page), 0)
	if !ok {
		return math.MaxUint64
	}
	return up
}
