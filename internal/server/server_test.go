package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/lmm/lmm"
	"github.com/joshuapare/lmm/lmm/reserve"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClient struct {
	t *testing.T
	h http.Handler
}

func newTestServer(t *testing.T) (*Server, *testClient) {
	t.Helper()
	s := New(Options{Validate: true})
	return s, &testClient{t: t, h: s.Handler()}
}

func (c *testClient) do(method, path, body string, out any) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func (c *testClient) addRegion(body string) {
	c.t.Helper()
	w := c.do(http.MethodPost, "/regions", body, nil)
	require.Equal(c.t, http.StatusCreated, w.Code, w.Body.String())
}

func TestAlloc(t *testing.T) {
	_, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536,"flags":1}`)

	t.Run("Alloc", func(t *testing.T) {
		var resp AllocResponse
		w := c.do(http.MethodPost, "/alloc", `{"size":1280,"flags":1}`, &resp)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, uint64(0x1000), resp.Address)
		assert.Equal(t, uint64(1280), resp.Size)
	})
	t.Run("Aligned", func(t *testing.T) {
		var resp AllocResponse
		w := c.do(http.MethodPost, "/alloc", `{"size":16,"align_bits":12}`, &resp)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, uint64(0x2000), resp.Address)
	})
	t.Run("OutOfMemory", func(t *testing.T) {
		var resp map[string]string
		w := c.do(http.MethodPost, "/alloc", `{"size":1048576}`, &resp)
		assert.Equal(t, http.StatusInsufficientStorage, w.Code)
		assert.Equal(t, "out_of_memory", resp["error"])
	})
	t.Run("MissingSize", func(t *testing.T) {
		w := c.do(http.MethodPost, "/alloc", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("NegativeSize", func(t *testing.T) {
		w := c.do(http.MethodPost, "/alloc", `{"size":-1}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("BadAlignment", func(t *testing.T) {
		var resp map[string]string
		w := c.do(http.MethodPost, "/alloc", `{"size":16,"align_bits":64}`, &resp)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_argument", resp["error"])
	})
}

func TestAllocGen(t *testing.T) {
	_, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536}`)

	var resp AllocResponse
	w := c.do(http.MethodPost, "/alloc/gen", `{"size":256,"min":8192,"window":256}`, &resp)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(8192), resp.Address)

	var errResp map[string]string
	w = c.do(http.MethodPost, "/alloc/gen", `{"size":256,"min":8192,"window":256}`, &errResp)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_range", errResp["error"])
}

func TestRegions(t *testing.T) {
	_, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":8192,"priority":1,"flags":3}`)
	c.addRegion(`{"min":65536,"max":131072,"reserved":true}`)

	var errResp map[string]string
	w := c.do(http.MethodPost, "/regions", `{"min":6000,"max":7000}`, &errResp)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "region_overlap", errResp["error"])

	w = c.do(http.MethodPost, "/regions", `{"min":9000,"max":9000}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var regions []RegionResponse
	w = c.do(http.MethodGet, "/regions", "", &regions)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, regions, 2)
	require.Equal(t, uint64(4096), regions[0].Min)
	require.Equal(t, uint32(3), regions[0].Flags)
	require.Equal(t, uint64(4096), regions[0].FreeBytes)
	require.Zero(t, regions[1].FreeBytes)
}

func TestFree(t *testing.T) {
	s, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536}`)
	total := s.Allocator().FreeBytes()

	var a AllocResponse
	c.do(http.MethodPost, "/alloc", `{"size":100}`, &a)

	t.Run("WrongSize", func(t *testing.T) {
		w := c.do(http.MethodPost, "/free", fmt.Sprintf(`{"addr":%d,"size":99}`, a.Address), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("ByAddress", func(t *testing.T) {
		w := c.do(http.MethodPost, "/free", fmt.Sprintf(`{"addr":%d}`, a.Address), nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, total, s.Allocator().FreeBytes())
	})
	t.Run("Twice", func(t *testing.T) {
		w := c.do(http.MethodPost, "/free", fmt.Sprintf(`{"addr":%d}`, a.Address), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("MissingAddress", func(t *testing.T) {
		w := c.do(http.MethodPost, "/free", `{"size":16}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("RawRange", func(t *testing.T) {
		removed := s.Allocator().RemoveFree(0x8000, 0x100)
		require.Equal(t, uint64(0x100), removed)
		w := c.do(http.MethodPost, "/free", `{"addr":32768,"size":256}`, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, total, s.Allocator().FreeBytes())
	})
}

func TestFree_CorruptStateIsFatal(t *testing.T) {
	s, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536}`)

	var resp map[string]string
	w := c.do(http.MethodPost, "/free", `{"addr":8192,"size":16}`, &resp)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "corrupt_state", resp["error"])
	require.True(t, s.corrupt.Load())

	w = c.do(http.MethodGet, "/blocks", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRemoveReinsert(t *testing.T) {
	_, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536,"flags":1}`)

	var removed map[string]uint64
	w := c.do(http.MethodPost, "/remove", `{"addr":4608,"size":256}`, &removed)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(256), removed["removed"])

	var blocks []BlockResponse
	c.do(http.MethodGet, "/blocks", "", &blocks)
	require.Equal(t, []BlockResponse{
		{Start: 0x1000, Size: 0x200, Flags: 1},
		{Start: 0x1300, Size: 0xED00, Flags: 1},
	}, blocks)

	var reserved []map[string]uint64
	c.do(http.MethodGet, "/reserved", "", &reserved)
	require.Equal(t, []map[string]uint64{{"start": 0x1200, "end": 0x1300}}, reserved)

	w = c.do(http.MethodPost, "/reinsert", `{"addr":4608,"size":256}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	c.do(http.MethodGet, "/blocks", "", &blocks)
	require.Equal(t, []BlockResponse{{Start: 0x1000, Size: 0xF000, Flags: 1}}, blocks)

	var errResp map[string]string
	w = c.do(http.MethodPost, "/reinsert", `{"addr":1048576,"size":16}`, &errResp)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "invalid_range", errResp["error"])
}

func TestReinsert_LiveAllocationIsRejected(t *testing.T) {
	s, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536}`)
	total := s.Allocator().FreeBytes()

	var a AllocResponse
	w := c.do(http.MethodPost, "/alloc", `{"size":256}`, &a)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(0x1000), a.Address)

	var errResp map[string]string
	w = c.do(http.MethodPost, "/reinsert", `{"addr":4096,"size":4096}`, &errResp)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "invalid_range", errResp["error"])
	require.Equal(t, total-256, s.Allocator().FreeBytes())

	// A raw free inside the allocation is refused the same way.
	w = c.do(http.MethodPost, "/free", `{"addr":4112,"size":16}`, &errResp)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "invalid_range", errResp["error"])

	w = c.do(http.MethodPost, "/free", `{"addr":4096}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, total, s.Allocator().FreeBytes())

	w = c.do(http.MethodGet, "/blocks", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, s.corrupt.Load())
}

func TestFind(t *testing.T) {
	_, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":8192,"flags":2}`)

	var b BlockResponse
	w := c.do(http.MethodGet, "/find/0x1800", "", &b)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, BlockResponse{Start: 0x1800, Size: 0x800, Flags: 2}, b)

	w = c.do(http.MethodGet, "/find/8192", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = c.do(http.MethodGet, "/find/banana", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsAndDump(t *testing.T) {
	_, c := newTestServer(t)
	c.addRegion(`{"min":4096,"max":65536}`)
	c.do(http.MethodPost, "/alloc", `{"size":64}`, nil)
	c.do(http.MethodPost, "/remove", `{"addr":32768,"size":4096}`, nil)

	var st StatsResponse
	w := c.do(http.MethodGet, "/stats", "", &st)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(1), st.AllocCalls)
	require.Equal(t, uint64(64), st.LiveBytes)
	require.Equal(t, 1, st.LiveAllocs)
	require.Equal(t, uint64(4096), st.Reserved)
	require.Equal(t, uint64(0xF000-64-4096), st.FreeBytes)

	w = c.do(http.MethodGet, "/dump", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, w.Body.String(), "Free blocks:")

	var doc map[string]any
	w = c.do(http.MethodGet, "/dump?format=json", "", &doc)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, doc, "blocks")
	require.Contains(t, doc, "stats")
}

func TestConcurrentRequests(t *testing.T) {
	s, c := newTestServer(t)
	c.addRegion(`{"min":1048576,"max":2097152}`)
	total := s.Allocator().FreeBytes()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				var a AllocResponse
				w := c.do(http.MethodPost, "/alloc", `{"size":128,"align_bits":4}`, &a)
				if w.Code != http.StatusOK {
					t.Errorf("alloc: %d %s", w.Code, w.Body.String())
					return
				}
				w = c.do(http.MethodPost, "/free", fmt.Sprintf(`{"addr":%d}`, a.Address), nil)
				if w.Code != http.StatusOK {
					t.Errorf("free: %d %s", w.Code, w.Body.String())
					return
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, total, s.Allocator().FreeBytes())
}

func TestPrebuiltAllocator(t *testing.T) {
	mu := &sync.Mutex{}
	tr := reserve.NewTracker()
	a := lmm.New(&lmm.Options{Locker: mu, Tracker: tr})
	require.NoError(t, a.AddRegion(lmm.Region{Min: 0x1000, Max: 0x2000}))
	a.RemoveFree(0x1000, 0x10)

	s := New(Options{Allocator: a, Locker: mu, Reserved: tr})
	require.Same(t, a, s.Allocator())

	c := &testClient{t: t, h: s.Handler()}
	var reserved []map[string]uint64
	c.do(http.MethodGet, "/reserved", "", &reserved)
	require.Len(t, reserved, 1)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/blocks")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
