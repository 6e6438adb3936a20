package lmm

import (
	"cmp"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/google/btree"

	"github.com/joshuapare/lmm/internal/align"
)

// Runtime debug toggles, read once at start-up.
var (
	validateEnv = os.Getenv("LMM_VALIDATE") != ""
	logAlloc    = os.Getenv("LMM_LOG_ALLOC") != ""
)

// DefaultDegree is the B-tree degree used when Options.Degree is zero.
const DefaultDegree = 16

// ReservationTracker is told about every range that range surgery takes out
// of, or puts back into, the free pool.
type ReservationTracker interface {
	Reserve(start, size uint64)
	Release(start, size uint64)
}

// Options configures an Allocator. The zero value is usable.
type Options struct {
	// Locker, when set, wraps every public method. Wire it to a mutex, a
	// spinlock, or HookFuncs around a preemption switch.
	Locker sync.Locker

	// Logger receives debug records. Nil discards them.
	Logger *slog.Logger

	// Tracker, when set, is notified by RemoveFree and Reinsert.
	Tracker ReservationTracker

	// Validate runs a full consistency check after every mutating call and
	// panics on the first violation.
	Validate bool

	// Degree is the B-tree degree of the free-block index (default 16).
	Degree int
}

// HookFuncs adapts a pair of plain callbacks to sync.Locker. Either may be nil.
type HookFuncs struct {
	Enter func()
	Exit  func()
}

// Lock calls Enter.
func (h HookFuncs) Lock() {
	if h.Enter != nil {
		h.Enter()
	}
}

// Unlock calls Exit.
func (h HookFuncs) Unlock() {
	if h.Exit != nil {
		h.Exit()
	}
}

// Allocator is one independent free-space model: a set of regions and the
// free blocks inside them.
type Allocator struct {
	lock     sync.Locker
	log      *slog.Logger
	tracker  ReservationTracker
	validate bool

	// Free blocks ordered by start address.
	free      *btree.BTreeG[block]
	freeBytes uint64

	// Registered regions in registration order; block.region indexes this.
	regions []Region
	// Region indices in search order (priority desc, Min asc).
	order []int

	stats Stats
}

// New creates an empty allocator. opts may be nil.
func New(opts *Options) *Allocator {
	if opts == nil {
		opts = &Options{}
	}

	degree := opts.Degree
	if degree <= 1 {
		degree = DefaultDegree
	}

	log := opts.Logger
	if log == nil {
		if logAlloc {
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			log = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
	}

	return &Allocator{
		lock:     opts.Locker,
		log:      log,
		tracker:  opts.Tracker,
		validate: opts.Validate || validateEnv,
		free:     btree.NewG[block](degree, lessBlock),
	}
}

func (a *Allocator) enter() {
	if a.lock != nil {
		a.lock.Lock()
	}
}

func (a *Allocator) exit() {
	if a.lock != nil {
		a.lock.Unlock()
	}
}

// mutated runs the optional post-mutation consistency check. It is deferred
// after exit is, so it runs while the lock is still held.
func (a *Allocator) mutated() {
	if !a.validate {
		return
	}
	if err := a.check(); err != nil {
		panic(err)
	}
}

// span is a piece of a caller range that falls inside one region.
type span struct {
	start, end uint64
	region     int
}

// regionSpans clips [start, end) against every region, in address order.
// covered is true when the pieces leave no gap.
func (a *Allocator) regionSpans(start, end uint64) (spans []span, covered bool) {
	for i, r := range a.regions {
		if lo, hi, ok := align.Intersect(start, end, r.Min, r.Max); ok {
			spans = append(spans, span{start: lo, end: hi, region: i})
		}
	}
	slices.SortFunc(spans, func(x, y span) int { return cmp.Compare(x.start, y.start) })

	cur := start
	for _, s := range spans {
		if s.start != cur {
			return spans, false
		}
		cur = s.end
	}
	return spans, cur == end
}
