package lmm

// FindFree returns the free space at or after addr. When addr falls inside a
// free block, start is addr itself and size runs to the end of that block;
// otherwise the next free block above addr is returned whole. ok is false
// (and size zero) when no free space lies at or beyond addr.
func (a *Allocator) FindFree(addr uint64) (start, size uint64, flags Flags, ok bool) {
	a.enter()
	defer a.exit()

	return a.findFree(addr)
}

func (a *Allocator) findFree(addr uint64) (start, size uint64, flags Flags, ok bool) {
	b, ok := a.blockFrom(addr)
	if !ok {
		return 0, 0, 0, false
	}
	start = max(b.start, addr)
	return start, b.end() - start, b.flags, true
}

// Blocks returns a snapshot of every free block in address order.
func (a *Allocator) Blocks() []Block {
	a.enter()
	defer a.exit()

	out := make([]Block, 0, a.free.Len())
	a.free.Ascend(func(b block) bool {
		out = append(out, b.export())
		return true
	})
	return out
}

// Walk calls fn for each free block in address order until fn returns
// false. fn must not call back into the allocator.
func (a *Allocator) Walk(fn func(Block) bool) {
	a.enter()
	defer a.exit()

	a.free.Ascend(func(b block) bool { return fn(b.export()) })
}

// FreeBytes returns the total size of all free blocks.
func (a *Allocator) FreeBytes() uint64 {
	a.enter()
	defer a.exit()

	return a.freeBytes
}

// RegionStats returns free-space figures for each region in search order.
func (a *Allocator) RegionStats() []RegionStats {
	a.enter()
	defer a.exit()

	return a.regionStats()
}

func (a *Allocator) regionStats() []RegionStats {
	byIdx := make([]RegionStats, len(a.regions))
	for i, r := range a.regions {
		byIdx[i].Region = r
	}
	a.free.Ascend(func(b block) bool {
		rs := &byIdx[b.region]
		rs.FreeBytes += b.size
		rs.FreeBlocks++
		rs.Largest = max(rs.Largest, b.size)
		return true
	})

	out := make([]RegionStats, 0, len(a.order))
	for _, i := range a.order {
		out = append(out, byIdx[i])
	}
	return out
}

// Stats returns a copy of the allocator counters.
func (a *Allocator) Stats() Stats {
	a.enter()
	defer a.exit()

	return a.stats
}
