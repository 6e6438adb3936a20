package lmm

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/joshuapare/lmm/internal/units"
)

// Dump writes a human-readable listing of the regions, the free blocks and
// the counters to w.
func (a *Allocator) Dump(w io.Writer) error {
	a.enter()
	defer a.exit()

	var sb strings.Builder

	sb.WriteString("Regions (search order):\n")
	for _, rs := range a.regionStats() {
		r := rs.Region
		fmt.Fprintf(&sb, "  [%s, %s) priority %d flags %s  free %s B in %d block(s), largest %s B\n",
			units.FormatAddr(r.Min), units.FormatAddr(r.Max), r.Priority, r.Flags,
			units.FormatNumber(rs.FreeBytes), rs.FreeBlocks, units.FormatNumber(rs.Largest))
	}

	sb.WriteString("Free blocks:\n")
	a.free.Ascend(func(b block) bool {
		fmt.Fprintf(&sb, "  [%s, %s) %s B  flags %s\n",
			units.FormatAddr(b.start), units.FormatAddr(b.end()), units.FormatNumber(b.size), b.flags)
		return true
	})
	fmt.Fprintf(&sb, "Total free: %s B (%s) in %d block(s)\n",
		units.FormatNumber(a.freeBytes), units.FormatBytes(a.freeBytes), a.free.Len())

	s := a.stats
	sb.WriteString("Stats:\n")
	fmt.Fprintf(&sb, "  lookups %s  hits %s  scanned %s\n",
		units.FormatNumber(s.Lookups), units.FormatNumber(s.Hits), units.FormatNumber(s.Scanned))
	fmt.Fprintf(&sb, "  allocs %s  frees %s  removes %s  reinserts %s\n",
		units.FormatNumber(s.AllocCalls), units.FormatNumber(s.FreeCalls),
		units.FormatNumber(s.RemoveCalls), units.FormatNumber(s.ReinsertCalls))
	fmt.Fprintf(&sb, "  allocated %s B  freed %s B  removed %s B  reinserted %s B\n",
		units.FormatNumber(s.BytesAllocated), units.FormatNumber(s.BytesFreed),
		units.FormatNumber(s.BytesRemoved), units.FormatNumber(s.BytesReinserted))
	fmt.Fprintf(&sb, "  splits %s  merges %s\n", units.FormatNumber(s.Splits), units.FormatNumber(s.Merges))

	_, err := io.WriteString(w, sb.String())
	return err
}

// DumpJSON returns the same content as Dump as a JSON document. Addresses
// are hex strings; sizes and counters are numbers.
func (a *Allocator) DumpJSON() ([]byte, error) {
	a.enter()
	defer a.exit()

	w := jwriter.NewWriter()
	obj := w.Object()

	regions := obj.Name("regions").Array()
	for _, rs := range a.regionStats() {
		r := regions.Object()
		r.Name("min").String(hexAddr(rs.Region.Min))
		r.Name("max").String(hexAddr(rs.Region.Max))
		r.Name("priority").Int(rs.Region.Priority)
		r.Name("flags").String(rs.Region.Flags.String())
		r.Name("free_bytes").Int(clampInt(rs.FreeBytes))
		r.Name("free_blocks").Int(rs.FreeBlocks)
		r.Name("largest").Int(clampInt(rs.Largest))
		r.End()
	}
	regions.End()

	blocks := obj.Name("blocks").Array()
	a.free.Ascend(func(b block) bool {
		o := blocks.Object()
		o.Name("start").String(hexAddr(b.start))
		o.Name("end").String(hexAddr(b.end()))
		o.Name("size").Int(clampInt(b.size))
		o.Name("flags").String(b.flags.String())
		o.End()
		return true
	})
	blocks.End()

	obj.Name("free_bytes").Int(clampInt(a.freeBytes))
	obj.Name("free_blocks").Int(a.free.Len())

	s := a.stats
	st := obj.Name("stats").Object()
	for _, c := range []struct {
		name string
		v    uint64
	}{
		{"lookups", s.Lookups},
		{"hits", s.Hits},
		{"scanned", s.Scanned},
		{"alloc_calls", s.AllocCalls},
		{"free_calls", s.FreeCalls},
		{"remove_calls", s.RemoveCalls},
		{"reinsert_calls", s.ReinsertCalls},
		{"bytes_allocated", s.BytesAllocated},
		{"bytes_freed", s.BytesFreed},
		{"bytes_removed", s.BytesRemoved},
		{"bytes_reinserted", s.BytesReinserted},
		{"splits", s.Splits},
		{"merges", s.Merges},
	} {
		st.Name(c.name).Int(clampInt(c.v))
	}
	st.End()

	obj.End()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func hexAddr(v uint64) string { return fmt.Sprintf("0x%x", v) }

// clampInt saturates v for JSON output; only regions spanning more than
// half of the 64-bit space reach the limit.
func clampInt(v uint64) int {
	if v > math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}
