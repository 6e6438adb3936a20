package lmm

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"
)

// AddRegion registers r and seeds its whole span as free space carrying
// r.Flags. Regions may not overlap.
func (a *Allocator) AddRegion(r Region) error {
	a.enter()
	defer a.exit()
	defer a.mutated()

	idx, err := a.addRegion(r)
	if err != nil {
		return err
	}
	a.insert(block{start: r.Min, size: r.Size(), flags: r.Flags, region: idx})
	return nil
}

// AddRegionReserved registers r without adding any free space; boot code
// then declares the usable parts with AddFree.
func (a *Allocator) AddRegionReserved(r Region) error {
	a.enter()
	defer a.exit()

	_, err := a.addRegion(r)
	return err
}

func (a *Allocator) addRegion(r Region) (int, error) {
	if r.Min >= r.Max {
		return -1, errors.Wrapf(ErrInvalidArgument, "region [%#x, %#x) is empty", r.Min, r.Max)
	}
	for _, o := range a.regions {
		if r.overlaps(o) {
			return -1, errors.Wrapf(ErrRegionOverlap,
				"[%#x, %#x) overlaps [%#x, %#x)", r.Min, r.Max, o.Min, o.Max)
		}
	}

	idx := len(a.regions)
	a.regions = append(a.regions, r)
	a.order = append(a.order, idx)
	slices.SortStableFunc(a.order, func(x, y int) int {
		rx, ry := a.regions[x], a.regions[y]
		if c := cmp.Compare(ry.Priority, rx.Priority); c != 0 {
			return c
		}
		return cmp.Compare(rx.Min, ry.Min)
	})

	a.log.Debug("lmm: region added",
		"min", r.Min, "max", r.Max, "priority", r.Priority, "flags", r.Flags)
	return idx, nil
}

// FindRegion returns the region containing addr.
func (a *Allocator) FindRegion(addr uint64) (Region, bool) {
	a.enter()
	defer a.exit()

	if i := a.regionIndex(addr); i >= 0 {
		return a.regions[i], true
	}
	return Region{}, false
}

// Regions returns the registered regions in search order.
func (a *Allocator) Regions() []Region {
	a.enter()
	defer a.exit()

	out := make([]Region, 0, len(a.order))
	for _, i := range a.order {
		out = append(out, a.regions[i])
	}
	return out
}

func (a *Allocator) regionIndex(addr uint64) int {
	for i, r := range a.regions {
		if r.Contains(addr) {
			return i
		}
	}
	return -1
}
