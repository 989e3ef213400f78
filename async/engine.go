package async

import (
	"fmt"
	"sync"

	"github.com/warpfork/go-sup/state"
)

// LaneLifetime is an optional capability a Lane can implement to tie
// its callbacks to some outer lifetime (a request context, a UI
// window). When a Lane used with Context implements this, Context
// watches Done() the same way it watches the upstream handle, so a
// continuation scheduled onto a lane that dies before the upstream
// settles is cancelled rather than silently leaked (spec section 4.4,
// point 2).
type LaneLifetime interface {
	Lane
	Done() <-chan struct{}
}

func identity[T any](v T) T { return v }

// callGuarded runs fn, converting a panic into a *FailureError the
// same way go-sup's siftError (engineShared.go) does for a recovered
// task panic.
func callGuarded[R any](fn func() (R, error)) (r R, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicAsFailure(rec)
		}
	}()
	return fn()
}

func panicAsFailure(rec any) error {
	if e, ok := rec.(error); ok {
		return &FailureError{Cause: e, WasPanic: true}
	}
	return &FailureError{Cause: fmt.Errorf("%v", rec), WasPanic: true}
}

// linkTerminal makes downstream settle the way linked settles:
// Succeeded mirrors linked's results (through adapt), Failed forwards
// the same cause, anything else cancels downstream. It also wires the
// reverse cancellation edge from spec section 4.4, point 4: downstream
// cancelled externally pushes a cancel to linked. When progress is
// non-nil, it registers a progress observer on linked that folds
// linked's progress window into progress under sourceID.
func linkTerminal[D, L any](lane Lane, downstream *state.Shared[D], linked *state.Shared[L], adapt func(L) D, progress *additiveProgress, sourceID int) {
	if progress != nil {
		linked.AddProgressObserver(lane, func(min, max, val int64) bool {
			progress.set(sourceID, min, max, val)
			return true
		})
	}

	linked.AddDoneObserver(lane, func(st state.Status, err error) {
		switch st {
		case state.Succeeded:
			vs, _ := linked.Results()
			for _, v := range vs {
				downstream.ReportResult(adapt(v))
			}
			downstream.ReportFinished()
		case state.Failed:
			downstream.ReportException(err)
		default:
			downstream.Cancel()
		}
	})

	downstream.AddDoneObserver(lane, func(st state.Status, _ error) {
		if st == state.Cancelled {
			linked.Cancel()
		}
	})
}

// Context implements spec section 4.4: it runs f with upstream's
// result once upstream settles Succeeded, posted onto lane (the
// library's default lane if lane is nil), producing a new downstream
// Handle[R]. If upstream settles Cancelled or Failed instead, onCancel
// (if non-nil) fires exactly once and downstream is Cancelled, without
// f ever running. If lane implements LaneLifetime and becomes invalid
// before upstream settles, downstream is Cancelled without running
// either f or onCancel.
func Context[T, R any](o Observable[T], lane Lane, f func(T) (R, error), onCancel func()) Observable[R] {
	lane = resolveLane(lane)
	downstream := state.New[R]()
	var cancelOnce sync.Once
	fireCancel := func() {
		if onCancel != nil {
			cancelOnce.Do(onCancel)
		}
	}

	watchLaneLifetime(lane, downstream)

	progress := newAdditiveProgress(func(min, max, val int64) {
		downstream.SetProgressRange(min, max)
		downstream.SetProgressValue(val)
	})
	o.h.s.AddProgressObserver(lane, func(min, max, val int64) bool {
		progress.set(progressParent, min, max, val)
		return true
	})

	o.h.s.AddDoneObserver(lane, func(st state.Status, err error) {
		if downstream.IsTerminal() {
			return // the lane died before upstream settled
		}
		switch st {
		case state.Succeeded:
			v, _ := o.h.s.Result()
			result, ferr := callGuarded(func() (R, error) { return f(v) })
			if ferr != nil {
				downstream.ReportException(ferr)
				return
			}
			downstream.ReportResult(result)
			downstream.ReportFinished()
		default:
			fireCancel()
			downstream.Cancel()
		}
	})

	downstream.AddDoneObserver(lane, func(st state.Status, _ error) {
		if st == state.Cancelled {
			o.h.s.Cancel()
		}
	})

	return Observable[R]{h: Handle[R]{s: downstream}}
}

// ContextLink is Context's auto-unwrap counterpart (spec section 4.4,
// point 3): f returns a Handle[R] instead of a value, and downstream
// adopts that handle's eventual status, results, and progress, summed
// additively with the progress upstream already reported.
func ContextLink[T, R any](o Observable[T], lane Lane, f func(T) (Handle[R], error), onCancel func()) Observable[R] {
	lane = resolveLane(lane)
	downstream := state.New[R]()
	var cancelOnce sync.Once
	fireCancel := func() {
		if onCancel != nil {
			cancelOnce.Do(onCancel)
		}
	}

	watchLaneLifetime(lane, downstream)

	progress := newAdditiveProgress(func(min, max, val int64) {
		downstream.SetProgressRange(min, max)
		downstream.SetProgressValue(val)
	})
	o.h.s.AddProgressObserver(lane, func(min, max, val int64) bool {
		progress.set(progressParent, min, max, val)
		return true
	})

	o.h.s.AddDoneObserver(lane, func(st state.Status, err error) {
		if downstream.IsTerminal() {
			return
		}
		switch st {
		case state.Succeeded:
			v, _ := o.h.s.Result()
			linked, ferr := callGuarded(func() (Handle[R], error) { return f(v) })
			if ferr != nil {
				downstream.ReportException(ferr)
				return
			}
			linkTerminal(lane, downstream, linked.s, identity[R], progress, progressSelf)
		default:
			fireCancel()
			downstream.Cancel()
		}
	})

	// Downstream cancelled while upstream is still pending must still
	// reach upstream, not just the linked handle f eventually produces
	// (spec section 4.4, point 4, is a general state-machine rule, not
	// one scoped to the non-unwrap case; asyncfuture.h's execute()
	// watches the original future regardless of which context()
	// overload is in play). Once f has run, linkTerminal registers its
	// own downstream-cancel observer against linked; this one simply
	// also fires then, cancelling an already-settled o.h.s as a no-op.
	downstream.AddDoneObserver(lane, func(st state.Status, _ error) {
		if st == state.Cancelled {
			o.h.s.Cancel()
		}
	})

	return Observable[R]{h: Handle[R]{s: downstream}}
}

// Subscribe is Context with the default lane.
func Subscribe[T, R any](o Observable[T], f func(T) (R, error), onCancel func()) Observable[R] {
	return Context(o, nil, f, onCancel)
}

// SubscribeLink is ContextLink with the default lane.
func SubscribeLink[T, R any](o Observable[T], f func(T) (Handle[R], error), onCancel func()) Observable[R] {
	return ContextLink(o, nil, f, onCancel)
}

func watchLaneLifetime[R any](lane Lane, downstream *state.Shared[R]) {
	lt, ok := lane.(LaneLifetime)
	if !ok {
		return
	}
	go func() {
		select {
		case <-lt.Done():
			downstream.Cancel()
		case <-downstream.Done():
		}
	}()
}
