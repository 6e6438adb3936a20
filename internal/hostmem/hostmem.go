// Package hostmem describes the machine the process runs on as a set of
// lmm regions, using the PC convention of classifying physical memory by
// the address limits of legacy devices.
package hostmem

import (
	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/lmm"
)

// Region flags. A region carries every flag whose limit lies at or above
// its Max, so a request for FlagBelow16M is satisfied from the first 16MB.
const (
	FlagBelow1M  lmm.Flags = 1 << 0 // real-mode reachable
	FlagBelow16M lmm.Flags = 1 << 1 // ISA DMA reachable
	FlagBelow4G  lmm.Flags = 1 << 2 // 32-bit DMA reachable
)

// Region priorities. Scarce low memory is searched last.
const (
	PriorityBelow1M  = -2
	PriorityBelow16M = -1
	PriorityHigh     = 0
)

const (
	mb = 1 << 20
	gb = 1 << 30
)

// ErrUnsupported is returned by Probe where the platform offers no way to
// read the physical memory size.
var ErrUnsupported = errors.New("hostmem: memory probe not supported on this platform")

// Info is what Probe learns about the host.
type Info struct {
	TotalRAM uint64 // bytes of physical memory
	PageSize uint64
}

// Layout splits [PageSize, TotalRAM) into the conventional regions. The
// first page is left out so address zero is never handed out.
func Layout(info Info) []lmm.Region {
	bands := []struct {
		max      uint64
		priority int
		flags    lmm.Flags
	}{
		{1 * mb, PriorityBelow1M, FlagBelow1M | FlagBelow16M | FlagBelow4G},
		{16 * mb, PriorityBelow16M, FlagBelow16M | FlagBelow4G},
		{4 * gb, PriorityHigh, FlagBelow4G},
		{^uint64(0), PriorityHigh, 0},
	}

	var out []lmm.Region
	lo := info.PageSize
	for _, b := range bands {
		hi := min(b.max, info.TotalRAM)
		if lo < hi {
			out = append(out, lmm.Region{Min: lo, Max: hi, Priority: b.priority, Flags: b.flags})
		}
		lo = max(lo, b.max)
		if lo >= info.TotalRAM {
			break
		}
	}
	return out
}

// Seed registers the Layout of info with a.
func Seed(a *lmm.Allocator, info Info) error {
	for _, r := range Layout(info) {
		if err := a.AddRegion(r); err != nil {
			return errors.Wrapf(err, "add host region [%#x, %#x)", r.Min, r.Max)
		}
	}
	return nil
}
