// Package accounting wraps an lmm.Allocator with a side table of live
// allocations, so callers can free by address alone.
//
// The core allocator keeps no per-allocation records; that is what lets it
// run before any heap exists. Once a heap is available, this wrapper is the
// convenient front end.
package accounting

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/lmm"
)

// ErrUnknownAddress is returned by Free and Size for an address that is not
// the start of a live allocation.
var ErrUnknownAddress = errors.New("lmm/accounting: unknown address")

// Allocation is one live allocation.
type Allocation struct {
	Addr uint64
	Size uint64
}

// Tracker records the size of every allocation made through it.
//
// A Tracker is as thread-safe as the allocator it wraps: the side table is
// updated outside the allocator's Locker, so concurrent use needs an
// external lock.
type Tracker struct {
	a    *lmm.Allocator
	live map[uint64]uint64
	sum  uint64
}

// New wraps a.
func New(a *lmm.Allocator) *Tracker {
	return &Tracker{a: a, live: make(map[uint64]uint64)}
}

// Allocator returns the wrapped allocator.
func (t *Tracker) Allocator() *lmm.Allocator { return t.a }

// Alloc allocates size bytes carrying flags and records the result.
func (t *Tracker) Alloc(size uint64, flags lmm.Flags) (uint64, error) {
	addr, err := t.a.Alloc(size, flags)
	if err != nil {
		return 0, err
	}
	t.record(addr, size)
	return addr, nil
}

// AllocAligned is Alloc with an alignment constraint.
func (t *Tracker) AllocAligned(size uint64, flags lmm.Flags, alignBits uint, alignOffset uint64) (uint64, error) {
	addr, err := t.a.AllocAligned(size, flags, alignBits, alignOffset)
	if err != nil {
		return 0, err
	}
	t.record(addr, size)
	return addr, nil
}

// AllocGen is the windowed allocation primitive, recorded.
func (t *Tracker) AllocGen(size uint64, flags lmm.Flags, alignBits uint, alignOffset uint64, inMin, inSize uint64) (uint64, error) {
	addr, err := t.a.AllocGen(size, flags, alignBits, alignOffset, inMin, inSize)
	if err != nil {
		return 0, err
	}
	t.record(addr, size)
	return addr, nil
}

func (t *Tracker) record(addr, size uint64) {
	t.live[addr] = size
	t.sum += size
}

// Free returns the allocation starting at addr. Freeing an address twice
// reports ErrUnknownAddress the second time.
func (t *Tracker) Free(addr uint64) error {
	size, ok := t.live[addr]
	if !ok {
		return errors.Wrapf(ErrUnknownAddress, "free of %#x", addr)
	}
	if err := t.a.Free(addr, size); err != nil {
		return fmt.Errorf("free %#x (%d bytes): %w", addr, size, err)
	}
	delete(t.live, addr)
	t.sum -= size
	return nil
}

// Size returns the size of the live allocation starting at addr.
func (t *Tracker) Size(addr uint64) (uint64, error) {
	size, ok := t.live[addr]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownAddress, "size of %#x", addr)
	}
	return size, nil
}

// Live returns every live allocation in address order.
func (t *Tracker) Live() []Allocation {
	out := make([]Allocation, 0, len(t.live))
	for _, addr := range slices.Sorted(maps.Keys(t.live)) {
		out = append(out, Allocation{Addr: addr, Size: t.live[addr]})
	}
	return out
}

// LiveBytes returns the total size of all live allocations.
func (t *Tracker) LiveBytes() uint64 { return t.sum }
