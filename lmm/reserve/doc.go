// Package reserve records the address ranges that range surgery has taken
// out of an allocator's free pool.
//
// A Tracker is handed to lmm.New through Options.Tracker. RemoveFree reports
// every piece it removes with Reserve and Reinsert reports every piece it
// restores with Release. The tracker keeps the union of what is currently
// reserved as sorted, non-overlapping ranges, and can round that set out to
// page boundaries for callers building page tables or guard maps.
package reserve
