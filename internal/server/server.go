// Package server exposes one lmm.Allocator over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/lmm/lmm"
	"github.com/joshuapare/lmm/lmm/accounting"
	"github.com/joshuapare/lmm/lmm/reserve"
)

// shutdownTimeout bounds graceful shutdown once the context is cancelled.
const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Logger   *slog.Logger
	Validate bool
	// Allocator, if set, is served instead of a new empty one. It must have
	// been created with Locker as its Options.Locker.
	Allocator *lmm.Allocator
	Locker    sync.Locker
	// Reserved is the tracker attached to Allocator, if any.
	Reserved *reserve.Tracker
}

// Server owns the allocator and the HTTP routes in front of it.
type Server struct {
	log      *slog.Logger
	alloc    *lmm.Allocator
	lock     sync.Locker // the allocator's Locker; also guards reserved
	reserved *reserve.Tracker

	// The accounting table is not covered by the allocator's lock.
	acctMu sync.Mutex
	acct   *accounting.Tracker

	// Set once a handler trips a corrupt-state assertion; every later
	// request is refused.
	corrupt atomic.Bool

	engine *gin.Engine
}

// New creates a server. A fresh allocator gets a mutex as its Locker since
// gin serves requests concurrently.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Server{log: log, alloc: opts.Allocator, lock: opts.Locker, reserved: opts.Reserved}
	if s.alloc == nil {
		s.lock = &sync.Mutex{}
		s.reserved = reserve.NewTracker()
		s.alloc = lmm.New(&lmm.Options{
			Locker:   s.lock,
			Logger:   log,
			Tracker:  s.reserved,
			Validate: opts.Validate,
		})
	}
	if s.lock == nil {
		s.lock = &sync.Mutex{}
	}
	s.acct = accounting.New(s.alloc)
	s.engine = s.router()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Allocator returns the served allocator.
func (s *Server) Allocator() *lmm.Allocator { return s.alloc }

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLogger(), gin.CustomRecovery(s.recoverPanic), s.refuseWhenCorrupt())

	r.POST("/regions", s.handleAddRegion)
	r.GET("/regions", s.handleRegions)
	r.POST("/alloc", s.handleAlloc)
	r.POST("/alloc/gen", s.handleAllocGen)
	r.POST("/free", s.handleFree)
	r.POST("/remove", s.handleRemove)
	r.POST("/reinsert", s.handleReinsert)
	r.GET("/blocks", s.handleBlocks)
	r.GET("/find/:addr", s.handleFind)
	r.GET("/reserved", s.handleReserved)
	r.GET("/stats", s.handleStats)
	r.GET("/dump", s.handleDump)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) recoverPanic(c *gin.Context, rec any) {
	if err, ok := rec.(error); ok && lmm.IsCorruptState(err) {
		s.corrupt.Store(true)
		s.log.Error("allocator state corrupted", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "corrupt_state",
			"msg":   err.Error(),
		})
		return
	}
	s.log.Error("panic in handler", "panic", rec)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}

func (s *Server) refuseWhenCorrupt() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.corrupt.Load() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "corrupt_state"})
			return
		}
		c.Next()
	}
}
