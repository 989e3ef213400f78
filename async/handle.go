// Package async implements the core of the composable asynchronous
// value library: Handle (read side), Deferred (write side), and the
// continuation engine (Context/Subscribe) that links one Handle's
// shared state to another's.
//
// The shape -- a read-only handle and a separate write capability over
// one shared, reference-counted record -- is the same split go-sup's
// promise.go makes between Promise (which both reads and resolves) and
// the ResolvedPromise snapshot it exposes; this package pulls the read
// and write halves fully apart, since the spec gives them independent
// contracts (a Handle is freely cloneable and has no way to mutate the
// state it views; a Deferred is the only mutator).
package async

import (
	"context"
	"time"

	"github.com/warpfork/go-sup/state"
)

// Status is the terminal-monotonic state machine from spec section 3,
// re-exported here so callers never need to import the state package
// directly.
type Status = state.Status

const (
	Pending   = state.Pending
	Running   = state.Running
	Succeeded = state.Succeeded
	Cancelled = state.Cancelled
	Failed    = state.Failed
)

// AnyHandle type-erases a Handle[T]'s result payload, the Go analogue
// of asyncfuture.h's Combinator accepting a QFuture<T> for any T via
// `operator<<`. Combinator.Add and Deferred.Track/CancelWhen accept
// this instead of a generic Handle[T] so they can hold handles of
// different T in one slice.
type AnyHandle interface {
	Status() Status
	IsFinished() bool
	IsCancelled() bool
	Cancel()
	Progress() (min, max, value int64)

	// OnSettled posts fn, exactly once, onto lane when the handle
	// becomes terminal (immediately, if already terminal).
	OnSettled(lane Lane, fn func(Status, error))

	// OnProgressRaw posts fn onto lane on every progress update until
	// fn returns false or the handle becomes terminal.
	OnProgressRaw(lane Lane, fn func(min, max, value int64) bool)
}

// Handle is a read-only, cloneable view over a Shared State (spec
// section 4.2). The zero Handle is not valid; obtain one from
// NewDeferred, Completed(List), Context/Subscribe, or a Combinator.
type Handle[T any] struct {
	s *state.Shared[T]
}

// Status returns the current status.
func (h Handle[T]) Status() Status { return h.s.Status() }

// IsFinished reports whether the handle has reached a terminal status.
// Lock-free: backed by Shared's cached atomic terminal flag.
func (h Handle[T]) IsFinished() bool { return h.s.IsTerminal() }

// IsCancelled reports whether the handle settled Cancelled or Failed
// (spec section 7: "on_cancel fires for both Cancelled and Failed").
func (h Handle[T]) IsCancelled() bool {
	st := h.s.Status()
	return st == Cancelled || st == Failed
}

// IsRunning reports whether report_started has been observed and the
// handle has not yet settled.
func (h Handle[T]) IsRunning() bool { return h.s.Status() == Running }

// Result returns the handle's sole result. Legal only once Succeeded;
// otherwise it returns the zero value and one of ErrNotFinished,
// ErrCancelled, or a *FailureError that re-raises the stored cause
// (spec section 7: "result() on a Failed handle re-raises the stored
// cause").
func (h Handle[T]) Result() (T, error) {
	v, err := h.s.Result()
	return v, toResultError(err)
}

// Results returns every reported value. Legal only once Succeeded.
func (h Handle[T]) Results() ([]T, error) {
	vs, err := h.s.Results()
	return vs, toResultError(err)
}

// Progress returns the current progress window and value.
func (h Handle[T]) Progress() (min, max, value int64) { return h.s.Progress() }

// Cancel moves the handle to Cancelled at once if it is not already
// terminal; a later completion by its producer is dropped. It does not
// stop whatever work the producer is doing.
func (h Handle[T]) Cancel() { h.s.Cancel() }

// WaitForFinished blocks until the handle is terminal, ctx is done, or
// timeout elapses (timeout <= 0 means no timeout), returning whether
// terminal was reached. This is the library's one blocking primitive
// (spec section 4.2).
func (h Handle[T]) WaitForFinished(ctx context.Context, timeout time.Duration) bool {
	if h.s.IsTerminal() {
		return true
	}
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-h.s.Done():
		return true
	case <-ctx.Done():
		return false
	case <-timeoutCh:
		return false
	}
}

// OnSettled implements AnyHandle.
func (h Handle[T]) OnSettled(lane Lane, fn func(Status, error)) {
	h.s.AddDoneObserver(resolveLane(lane), fn)
}

// OnProgressRaw implements AnyHandle.
func (h Handle[T]) OnProgressRaw(lane Lane, fn func(min, max, value int64) bool) {
	h.s.AddProgressObserver(resolveLane(lane), fn)
}

// OnFinished is a thin wrapper over subscribe (spec section 4.2) that
// attaches fn without producing a downstream handle, dispatched onto
// the library's default lane.
func (h Handle[T]) OnFinished(fn func(Status, error)) Handle[T] {
	h.OnSettled(nil, fn)
	return h
}

// OnCompleted attaches fn to run with the result, only if the handle
// settles Succeeded.
func (h Handle[T]) OnCompleted(fn func(T)) Handle[T] {
	h.OnSettled(nil, func(st Status, _ error) {
		if st != Succeeded {
			return
		}
		if v, err := h.s.Result(); err == nil {
			fn(v)
		}
	})
	return h
}

// OnCancelled attaches fn to run if the handle settles Cancelled or
// Failed (spec section 7: on_cancel fires for both).
func (h Handle[T]) OnCancelled(fn func()) Handle[T] {
	h.OnSettled(nil, func(st Status, _ error) {
		if st != Succeeded {
			fn()
		}
	})
	return h
}
