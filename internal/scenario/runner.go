package scenario

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/joshuapare/lmm/lmm"
	"github.com/joshuapare/lmm/lmm/reserve"
)

// StepResult records what one step did.
type StepResult struct {
	Index int // 1-based
	Op    Op
	Addr  uint64 // returned address or found start
	Size  uint64 // removed bytes or found size
	Err   error  // allocator error, when the step expected or tolerated one
}

// Result is the state after a run.
type Result struct {
	Allocator *lmm.Allocator
	Reserved  *reserve.Tracker
	Steps     []StepResult
}

// RunOptions configures Run.
type RunOptions struct {
	// Logger is handed to the allocator and receives one record per step.
	Logger *slog.Logger
	// Validate forces a consistency check after every mutation.
	Validate bool
	// OnStep, if set, is called after each step.
	OnStep func(StepResult)
	// Locker is installed as the allocator's Locker, for callers that keep
	// using the allocator from several goroutines after the run.
	Locker sync.Locker
}

type liveAlloc struct {
	addr, size uint64
}

type runner struct {
	s      *Scenario
	opts   RunOptions
	a      *lmm.Allocator
	named  map[string]liveAlloc
	result *Result
}

// Run replays s against a new allocator. It stops at the first step whose
// outcome differs from its expectations; the partial Result is returned
// alongside the error.
func Run(s *Scenario, opts RunOptions) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	opts.Logger = log

	tr := reserve.NewTracker()
	a := lmm.New(&lmm.Options{
		Locker:   opts.Locker,
		Logger:   log,
		Tracker:  tr,
		Validate: opts.Validate || s.Validate,
	})
	r := &runner{
		s:      s,
		opts:   opts,
		a:      a,
		named:  make(map[string]liveAlloc),
		result: &Result{Allocator: a, Reserved: tr},
	}

	for i, reg := range s.Regions {
		if err := r.addRegion(reg.Min, reg.Max, reg.Priority, reg.Flags, reg.Reserved); err != nil {
			return r.result, fmt.Errorf("region %d: %w", i+1, err)
		}
	}

	for i, st := range s.Steps {
		res, err := r.step(i+1, st)
		if err != nil {
			return r.result, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		r.result.Steps = append(r.result.Steps, res)
		log.Debug("scenario step", "index", res.Index, "op", string(res.Op),
			"addr", res.Addr, "size", res.Size, "error", ErrorName(res.Err))
		if opts.OnStep != nil {
			opts.OnStep(res)
		}
	}
	return r.result, nil
}

func (r *runner) addRegion(lo, hi Number, priority int, flags Number, reserved bool) error {
	reg := lmm.Region{Min: uint64(lo), Max: uint64(hi), Priority: priority, Flags: lmm.Flags(flags)}
	if reserved {
		return r.a.AddRegionReserved(reg)
	}
	return r.a.AddRegion(reg)
}

func (r *runner) step(idx int, st Step) (StepResult, error) {
	res := StepResult{Index: idx, Op: st.Op}
	flags := lmm.Flags(st.Flags)

	var (
		err     error
		isAlloc bool
	)
	switch st.Op {
	case OpAddRegion:
		err = r.addRegion(st.Min, st.Max, st.Priority, st.Flags, st.Reserved)
	case OpAddFree:
		err = r.a.AddFree(uint64(st.Addr), uint64(st.Size), flags)
	case OpAlloc:
		isAlloc = true
		res.Addr, err = r.a.Alloc(uint64(st.Size), flags)
	case OpAllocAligned:
		isAlloc = true
		res.Addr, err = r.a.AllocAligned(uint64(st.Size), flags, st.AlignBits, uint64(st.AlignOffset))
	case OpAllocGen:
		isAlloc = true
		res.Addr, err = r.a.AllocGen(uint64(st.Size), flags, st.AlignBits, uint64(st.AlignOffset),
			uint64(st.Min), uint64(st.Window))
	case OpFree:
		addr, size := uint64(st.Addr), uint64(st.Size)
		if st.Ref != "" {
			l, ok := r.named[st.Ref]
			if !ok {
				return res, errors.Newf("unknown ref %q", st.Ref)
			}
			addr = l.addr
			if size == 0 {
				size = l.size
			}
			delete(r.named, st.Ref)
		}
		res.Addr, res.Size = addr, size
		err = r.a.Free(addr, size)
	case OpRemoveFree:
		res.Addr = uint64(st.Addr)
		res.Size = r.a.RemoveFree(uint64(st.Addr), uint64(st.Size))
	case OpReinsert:
		res.Addr, res.Size = uint64(st.Addr), uint64(st.Size)
		err = r.a.Reinsert(uint64(st.Addr), uint64(st.Size))
	case OpFindFree:
		var ok bool
		res.Addr, res.Size, _, ok = r.a.FindFree(uint64(st.Addr))
		if !ok && (st.Expect != nil || st.ExpectSize != nil) {
			return res, errors.Newf("no free space at or above %#x", uint64(st.Addr))
		}
	case OpValidate:
		err = r.a.Validate()
	default:
		return res, errors.Newf("unknown op %q", st.Op)
	}
	res.Err = err

	if got := ErrorName(err); got != st.ExpectError {
		switch {
		case st.ExpectError == "":
			return res, fmt.Errorf("unexpected error: %w", err)
		case err == nil:
			return res, errors.Newf("expected error %q, step succeeded", st.ExpectError)
		}
		return res, fmt.Errorf("expected error %q: %w", st.ExpectError, err)
	}
	if err != nil {
		return res, nil
	}

	if isAlloc && st.As != "" {
		r.named[st.As] = liveAlloc{addr: res.Addr, size: uint64(st.Size)}
	}
	if st.Expect != nil && res.Addr != uint64(*st.Expect) {
		return res, errors.Newf("expected address %#x, got %#x", uint64(*st.Expect), res.Addr)
	}
	if st.ExpectSize != nil && res.Size != uint64(*st.ExpectSize) {
		return res, errors.Newf("expected size %#x, got %#x", uint64(*st.ExpectSize), res.Size)
	}
	return res, nil
}
