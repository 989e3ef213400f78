package async

import (
	"runtime"
	"sync"

	"github.com/warpfork/go-sup/state"
)

// deferredImpl is the object a Deferred[T] actually points at. Pulling
// it out from Deferred itself is what lets a finalizer be attached to
// something that becomes unreachable precisely when every copy of the
// producer capability is dropped, independent of how many Handles
// still reference the underlying Shared state (see NewDeferred).
type deferredImpl[T any] struct {
	s *state.Shared[T]

	mu         sync.Mutex
	prog       *additiveProgress
	nextProgID int
}

func (impl *deferredImpl[T]) progress() *additiveProgress {
	impl.mu.Lock()
	defer impl.mu.Unlock()
	if impl.prog == nil {
		s := impl.s
		impl.prog = newAdditiveProgress(func(min, max, val int64) {
			s.SetProgressRange(min, max)
			s.SetProgressValue(val)
		})
	}
	return impl.prog
}

func (impl *deferredImpl[T]) nextSourceID() int {
	impl.mu.Lock()
	defer impl.mu.Unlock()
	impl.nextProgID++
	return impl.nextProgID
}

// Deferred is the write capability over a Shared state (spec section
// 4.3): the only thing that can push it toward a terminal status. It
// is deliberately not an Observable -- producers push, they don't
// subscribe to their own output.
type Deferred[T any] struct {
	impl *deferredImpl[T]
}

func newDeferred[T any](s *state.Shared[T]) Deferred[T] {
	impl := &deferredImpl[T]{s: s}
	// Go has no RAII destructor to hook "Deferred dropped without
	// completion"; SetFinalizer on impl (not on s) is the closest
	// idiomatic substitute -- it fires only once every copy of the
	// producer capability is unreachable, which is independent of
	// however many Handle[T] readers still reference s. It is
	// best-effort: the GC gives no latency guarantee, so callers that
	// need a timely cancellation should still call Cancel explicitly.
	runtime.SetFinalizer(impl, func(impl *deferredImpl[T]) {
		impl.s.Cancel()
	})
	return Deferred[T]{impl: impl}
}

// NewDeferred returns a fresh Deferred[T] in Pending status.
func NewDeferred[T any]() Deferred[T] {
	return newDeferred[T](state.New[T]())
}

// NewVoidDeferred returns a fresh Deferred[T] documented to never
// carry a result payload, for operations whose completion itself is
// the only interesting signal (combinators, restarters).
func NewVoidDeferred[T any]() Deferred[T] {
	return newDeferred[T](state.NewVoid[T]())
}

// Handle returns the read-only Handle this Deferred produces for.
func (d Deferred[T]) Handle() Handle[T] { return Handle[T]{s: d.impl.s} }

// ReportStarted moves the handle from Pending to Running.
func (d Deferred[T]) ReportStarted() { d.impl.s.ReportStarted() }

// SetProgressRange sets the progress window directly. Don't mix this
// with Track/TrackAll on the same Deferred -- the two write to the
// same progress window and there's no meaningful way to reconcile a
// manual call with additive tracking, so whichever fires last wins.
func (d Deferred[T]) SetProgressRange(min, max int64) { d.impl.s.SetProgressRange(min, max) }

// SetProgressValue sets the progress value directly. See the
// SetProgressRange caveat about mixing with Track/TrackAll.
func (d Deferred[T]) SetProgressValue(v int64) { d.impl.s.SetProgressValue(v) }

// Complete reports v as the sole result and settles Succeeded.
func (d Deferred[T]) Complete(v T) {
	d.impl.s.ReportResult(v)
	d.impl.s.ReportFinished()
}

// CompleteList reports vs as the full result list and settles
// Succeeded.
func (d Deferred[T]) CompleteList(vs []T) {
	d.impl.s.ReportResults(vs)
	d.impl.s.ReportFinished()
}

// Fail settles Failed, storing cause (spec section 4.3's
// report_exception).
func (d Deferred[T]) Fail(cause error) { d.impl.s.ReportException(cause) }

// CompleteFrom links this Deferred's outcome to h: it settles the same
// way h does (Succeeded mirrors h's results, Failed forwards the same
// cause, Cancelled cancels), and h's progress window is folded in
// additively. Cancelling the produced Handle pushes a best-effort
// cancel request to h (spec section 4.4, point 4, generalized to the
// Deferred.complete(handle) form named in section 4.3).
func (d Deferred[T]) CompleteFrom(h Handle[T]) {
	id := d.impl.nextSourceID()
	linkTerminal(resolveLane(nil), d.impl.s, h.s, identity[T], d.impl.progress(), id)
}

// CompleteFromNested auto-unwraps a handle-of-handle: once hh settles
// Succeeded, this Deferred links to the inner handle exactly as
// CompleteFrom would; if hh settles Cancelled or Failed first, this
// Deferred mirrors that directly, without ever looking inside. Calling
// this on a void Deferred (NewVoidDeferred) is a misuse rejected with
// a panic, since there is no payload for the inner handle to carry.
func (d Deferred[T]) CompleteFromNested(hh Handle[Handle[T]]) {
	if d.impl.s.IsVoid() {
		panic("async: cannot complete a void Deferred with a handle-of-handle")
	}
	lane := resolveLane(nil)
	hh.s.AddDoneObserver(lane, func(st state.Status, err error) {
		switch st {
		case state.Succeeded:
			inner, _ := hh.s.Result()
			id := d.impl.nextSourceID()
			linkTerminal(lane, d.impl.s, inner.s, identity[T], d.impl.progress(), id)
		case state.Failed:
			d.impl.s.ReportException(err)
		default:
			d.impl.s.Cancel()
		}
	})
}

// Cancel requests cancellation unconditionally.
func (d Deferred[T]) Cancel() { d.impl.s.Cancel() }

// CancelWhen cancels this Deferred once h settles, whatever status h
// settles with.
func (d Deferred[T]) CancelWhen(h AnyHandle) {
	h.OnSettled(resolveLane(nil), func(Status, error) {
		d.impl.s.Cancel()
	})
}

// Track folds h's progress window into this Deferred's own, additively
// alongside any other tracked handle (spec section 4.3). It does not
// link terminal status -- use CompleteFrom/TrackAll's caller for that.
func (d Deferred[T]) Track(h AnyHandle) {
	id := d.impl.nextSourceID()
	prog := d.impl.progress()
	h.OnProgressRaw(resolveLane(nil), func(min, max, val int64) bool {
		prog.set(id, min, max, val)
		return true
	})
}

// TrackAll calls Track for each of hs.
func (d Deferred[T]) TrackAll(hs ...AnyHandle) {
	for _, h := range hs {
		d.Track(h)
	}
}
