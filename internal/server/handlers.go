package server

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/joshuapare/lmm/internal/align"
	"github.com/joshuapare/lmm/internal/scenario"
	"github.com/joshuapare/lmm/lmm"
	"github.com/joshuapare/lmm/lmm/accounting"
	"github.com/joshuapare/lmm/lmm/reserve"
)

// StatusInsufficientStorage is reported when no free block fits.
const StatusInsufficientStorage = http.StatusInsufficientStorage

type RegionRequest struct {
	Min      uint64 `json:"min"`
	Max      uint64 `json:"max"`
	Priority int    `json:"priority"`
	Flags    uint32 `json:"flags"`
	Reserved bool   `json:"reserved"`
}

type RegionResponse struct {
	Min        uint64 `json:"min"`
	Max        uint64 `json:"max"`
	Priority   int    `json:"priority"`
	Flags      uint32 `json:"flags"`
	FreeBytes  uint64 `json:"free_bytes"`
	FreeBlocks int    `json:"free_blocks"`
	Largest    uint64 `json:"largest"`
}

type AllocRequest struct {
	Size        uint64 `json:"size" binding:"required"`
	Flags       uint32 `json:"flags"`
	AlignBits   uint   `json:"align_bits"`
	AlignOffset uint64 `json:"align_offset"`
}

type AllocGenRequest struct {
	AllocRequest
	Min    uint64 `json:"min"`
	Window uint64 `json:"window" binding:"required"`
}

type AllocResponse struct {
	Address uint64 `json:"addr"`
	Size    uint64 `json:"size"`
}

// FreeRequest frees an allocation made through this server by address
// alone, or any range when Size is given.
type FreeRequest struct {
	Address *uint64 `json:"addr" binding:"required"`
	Size    uint64  `json:"size"`
}

type RangeRequest struct {
	Address uint64 `json:"addr"`
	Size    uint64 `json:"size" binding:"required"`
}

type BlockResponse struct {
	Start uint64 `json:"start"`
	Size  uint64 `json:"size"`
	Flags uint32 `json:"flags"`
}

type StatsResponse struct {
	lmm.Stats
	FreeBytes  uint64 `json:"free_bytes"`
	LiveBytes  uint64 `json:"live_bytes"`
	LiveAllocs int    `json:"live_allocs"`
	Reserved   uint64 `json:"reserved_bytes"`
}

// errStatus maps allocator errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, lmm.ErrOutOfMemory):
		return StatusInsufficientStorage
	case errors.Is(err, lmm.ErrInvalidRange), errors.Is(err, lmm.ErrRegionOverlap):
		return http.StatusConflict
	case errors.Is(err, lmm.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, accounting.ErrUnknownAddress):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func abortErr(c *gin.Context, err error) {
	c.JSON(errStatus(err), gin.H{"error": scenario.ErrorName(err), "msg": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "msg": err.Error()})
}

func (s *Server) handleAddRegion(c *gin.Context) {
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r := lmm.Region{Min: req.Min, Max: req.Max, Priority: req.Priority, Flags: lmm.Flags(req.Flags)}

	var err error
	if req.Reserved {
		err = s.alloc.AddRegionReserved(r)
	} else {
		err = s.alloc.AddRegion(r)
	}
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{})
}

func (s *Server) handleRegions(c *gin.Context) {
	stats := s.alloc.RegionStats()
	out := make([]RegionResponse, 0, len(stats))
	for _, rs := range stats {
		out = append(out, RegionResponse{
			Min:        rs.Region.Min,
			Max:        rs.Region.Max,
			Priority:   rs.Region.Priority,
			Flags:      uint32(rs.Region.Flags),
			FreeBytes:  rs.FreeBytes,
			FreeBlocks: rs.FreeBlocks,
			Largest:    rs.Largest,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAlloc(c *gin.Context) {
	var req AllocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	addr, err := s.acct.AllocAligned(req.Size, lmm.Flags(req.Flags), req.AlignBits, req.AlignOffset)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, AllocResponse{Address: addr, Size: req.Size})
}

func (s *Server) handleAllocGen(c *gin.Context) {
	var req AllocGenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	addr, err := s.acct.AllocGen(req.Size, lmm.Flags(req.Flags), req.AlignBits, req.AlignOffset, req.Min, req.Window)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, AllocResponse{Address: addr, Size: req.Size})
}

func (s *Server) handleFree(c *gin.Context) {
	var req FreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr := *req.Address

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	if size, err := s.acct.Size(addr); err == nil {
		if req.Size != 0 && req.Size != size {
			badRequest(c, errors.Newf("allocation at %#x is %d bytes, not %d", addr, size, req.Size))
			return
		}
		if err := s.acct.Free(addr); err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
		return
	}

	if req.Size == 0 {
		abortErr(c, errors.Wrapf(accounting.ErrUnknownAddress, "free of %#x without a size", addr))
		return
	}
	if err := s.checkNotLive(addr, req.Size); err != nil {
		abortErr(c, err)
		return
	}
	if err := s.alloc.Free(addr, req.Size); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) handleRemove(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	removed := s.alloc.RemoveFree(req.Address, req.Size)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) handleReinsert(c *gin.Context) {
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	if err := s.checkNotLive(req.Address, req.Size); err != nil {
		abortErr(c, err)
		return
	}
	if err := s.alloc.Reinsert(req.Address, req.Size); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// checkNotLive rejects a raw range operation that would hand out memory
// still owned by an accounted allocation. The caller holds acctMu.
func (s *Server) checkNotLive(start, size uint64) error {
	end := align.ClampEnd(start, size)
	for _, a := range s.acct.Live() {
		aEnd := align.ClampEnd(a.Addr, a.Size)
		if _, _, ok := align.Intersect(start, end, a.Addr, aEnd); ok {
			return errors.Wrapf(lmm.ErrInvalidRange,
				"[%#x, %#x) overlaps live allocation [%#x, %#x)", start, end, a.Addr, aEnd)
		}
	}
	return nil
}

func (s *Server) handleBlocks(c *gin.Context) {
	blocks := s.alloc.Blocks()
	out := make([]BlockResponse, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockResponse{Start: b.Start, Size: b.Size, Flags: uint32(b.Flags)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleFind(c *gin.Context) {
	addr, err := strconv.ParseUint(c.Param("addr"), 0, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	start, size, flags, ok := s.alloc.FindFree(addr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_free_space"})
		return
	}
	c.JSON(http.StatusOK, BlockResponse{Start: start, Size: size, Flags: uint32(flags)})
}

func (s *Server) handleReserved(c *gin.Context) {
	ranges := []reserve.Range{}
	if s.reserved != nil {
		s.withAllocatorLock(func() { ranges = s.reserved.Ranges() })
	}
	out := make([]gin.H, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, gin.H{"start": r.Start, "end": r.End})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStats(c *gin.Context) {
	resp := StatsResponse{
		Stats:     s.alloc.Stats(),
		FreeBytes: s.alloc.FreeBytes(),
	}
	s.acctMu.Lock()
	resp.LiveBytes = s.acct.LiveBytes()
	resp.LiveAllocs = len(s.acct.Live())
	s.acctMu.Unlock()
	if s.reserved != nil {
		s.withAllocatorLock(func() { resp.Reserved = s.reserved.Bytes() })
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDump(c *gin.Context) {
	if c.Query("format") == "json" {
		data, err := s.alloc.DumpJSON()
		if err != nil {
			abortErr(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", data)
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if err := s.alloc.Dump(c.Writer); err != nil {
		s.log.Warn("dump write failed", "error", err)
	}
}

// withAllocatorLock runs fn under the allocator's Locker, which is also what
// serializes the reservation tracker's updates.
func (s *Server) withAllocatorLock(fn func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	fn()
}
