// Package state implements the Shared State described in spec section
// 3 and 4.1: the reference-counted record every Handle/Deferred pair
// refers to, holding status, results, exception, progress, and the
// observer list, with monotonic terminal transitions.
//
// The mutex-guarded struct with a closed-on-terminal channel is the
// same shape as warpfork-go-sup's promise.go (promise.waitCh, resolved
// under p.mu, closed exactly once in notifyAndUnlock); we generalize
// it to carry many results, a distinct Cancelled/Failed split, and a
// progress window, and we post observer callbacks onto a caller
// supplied Lane instead of calling them inline, per spec section 5.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warpfork/go-sup/state/internal/cell"
)

// Status is the terminal-monotonic state machine from spec section 3.
type Status uint8

const (
	Pending Status = iota
	Running
	Succeeded
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Cancelled:
		return "Cancelled"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Terminal reports whether s is one of {Succeeded, Cancelled, Failed}.
func (s Status) Terminal() bool {
	return s == Succeeded || s == Cancelled || s == Failed
}

// Lane is the execution lane a callback is posted onto -- the "post to
// context" abstraction from the design notes. The zero value is never
// valid; every AddXObserver call here requires a non-nil Lane, with
// resolution of a nil/default context happening one layer up, in the
// async package.
type Lane interface {
	Post(func())
}

// ErrNotSucceeded is returned by Result/Results when the state did not
// (yet, or ever) settle as Succeeded. This is the "well-defined error"
// option spec section 4.2 offers in place of undefined behavior.
type ErrNotSucceeded struct {
	Status Status
	Cause  error // non-nil only when Status == Failed
}

func (e *ErrNotSucceeded) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("state: not succeeded: status=%s: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("state: not succeeded: status=%s", e.Status)
}

func (e *ErrNotSucceeded) Unwrap() error { return e.Cause }

type doneSub struct {
	lane Lane
	fn   func(Status, error)
}

type progSub struct {
	id   uint64
	lane Lane
	fn   func(min, max, value int64) bool // false detaches
}

// Shared is the canonical entity from spec section 3. It is always
// used behind a pointer (mirroring go-sup's *boundTask convention of
// using a pointer identity for bookkeeping).
type Shared[T any] struct {
	mu      sync.Mutex
	status  Status
	results cell.Cell[T]
	void    bool // true if this state never carries a payload
	err     error

	progMin, progMax, progVal int64

	doneObservers []doneSub
	progObservers []progSub
	nextProgID    uint64

	// terminal caches "status.Terminal()" outside the mutex, the same
	// cached-bool role asyncfuture.h's DeferredFuture::finished plays
	// against repeated QFuture state queries -- it's what lets
	// IsTerminal serve the IsFinished() hot path without locking.
	terminal atomic.Bool

	done chan struct{} // closed exactly once, when status becomes terminal
}

// New returns a fresh Pending Shared[T].
func New[T any]() *Shared[T] {
	return &Shared[T]{done: make(chan struct{})}
}

// NewVoid returns a fresh Pending Shared[T] that is documented to never
// carry a result payload (T is expected to be a zero-size type such as
// struct{}). ReportResult/ReportResults are still legal to call on it
// but ordinarily aren't, for a void state.
func NewVoid[T any]() *Shared[T] {
	s := New[T]()
	s.void = true
	return s
}

// IsVoid reports whether this state was constructed via NewVoid.
func (s *Shared[T]) IsVoid() bool { return s.void }

// Done returns a channel closed exactly once, when the state becomes
// terminal. It is the primitive WaitForFinished is built on.
func (s *Shared[T]) Done() <-chan struct{} {
	return s.done
}

// Status returns the current status. Safe for concurrent use.
func (s *Shared[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsTerminal reports whether the status has reached a terminal value,
// without taking the mutex. It never returns a false positive (once
// true, it stays true), but may briefly return false for a terminal
// transition that is concurrently in flight.
func (s *Shared[T]) IsTerminal() bool {
	return s.terminal.Load()
}

// ReportStarted moves Pending to Running. No-op otherwise (including
// when already terminal), per spec section 4.1.
func (s *Shared[T]) ReportStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Pending {
		s.status = Running
	}
}

// ReportResult appends a single value, legal only before the state
// becomes terminal (spec section 4.1: "legal only before
// report_finished"). Silently dropped once terminal, consistent with
// "first terminal write wins" for the terminal transitions themselves.
func (s *Shared[T]) ReportResult(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.results.Append(v)
}

// ReportResults appends many values.
func (s *Shared[T]) ReportResults(vs []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.results.AppendAll(vs)
}

// ReportFinished moves the state to Succeeded, if not already
// terminal, and fires done observers exactly once.
func (s *Shared[T]) ReportFinished() {
	s.transitionTerminal(Succeeded, nil)
}

// Cancel moves the state to Cancelled, if not already terminal.
// Idempotent: repeat calls are no-ops (spec section 8, "Cancellation
// is idempotent").
func (s *Shared[T]) Cancel() {
	s.transitionTerminal(Cancelled, nil)
}

// ReportException moves the state to Failed, storing the cause.
func (s *Shared[T]) ReportException(err error) {
	if err == nil {
		err = fmt.Errorf("state: ReportException called with nil error")
	}
	s.transitionTerminal(Failed, err)
}

// transitionTerminal performs the first-terminal-write-wins transition
// and dispatches the done observers. It is the single choke point
// every terminal-producing call above goes through, which is what
// makes the "first write wins, rest are silently dropped" and
// "observers fire exactly once" invariants trivially true.
func (s *Shared[T]) transitionTerminal(status Status, err error) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.err = err
	s.terminal.Store(true)
	close(s.done)
	observers := s.doneObservers
	s.doneObservers = nil
	// Progress observers never fire again after terminal (spec section
	// 5: "a progress observer never fires after the finished/cancelled
	// observer for the same state"); dropping the list here enforces
	// that even if a racing SetProgressValue call is mid-flight.
	s.progObservers = nil
	s.mu.Unlock()

	for _, ob := range observers {
		ob := ob
		ob.lane.Post(func() { ob.fn(status, err) })
	}
}

// SetProgressRange updates the progress window. The current value is
// clamped into the new range (spec section 3: "the new value is
// clamped into the new range"). No-op once terminal.
func (s *Shared[T]) SetProgressRange(min, max int64) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.progMin, s.progMax = min, max
	s.progVal = clamp(s.progVal, min, max)
	min, max, val := s.progMin, s.progMax, s.progVal
	observers := append([]progSub(nil), s.progObservers...)
	s.mu.Unlock()

	s.fireProgress(observers, min, max, val)
}

// SetProgressValue updates the progress value, clamped into the
// current range. No-op once terminal.
func (s *Shared[T]) SetProgressValue(v int64) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.progVal = clamp(v, s.progMin, s.progMax)
	min, max, val := s.progMin, s.progMax, s.progVal
	observers := append([]progSub(nil), s.progObservers...)
	s.mu.Unlock()

	s.fireProgress(observers, min, max, val)
}

func (s *Shared[T]) fireProgress(observers []progSub, min, max, val int64) {
	for _, ob := range observers {
		ob := ob
		ob.lane.Post(func() {
			if !ob.fn(min, max, val) {
				s.removeProgressObserver(ob.id)
			}
		})
	}
}

func (s *Shared[T]) removeProgressObserver(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ob := range s.progObservers {
		if ob.id == id {
			s.progObservers = append(s.progObservers[:i], s.progObservers[i+1:]...)
			return
		}
	}
}

// Progress returns the current progress window and value.
func (s *Shared[T]) Progress() (min, max, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progMin, s.progMax, s.progVal
}

// AddDoneObserver registers fn to be posted onto lane exactly once,
// when the state becomes terminal. If the state is already terminal,
// fn is posted immediately -- this is the "late-attachment replay"
// behavior required by spec section 4.1.
func (s *Shared[T]) AddDoneObserver(lane Lane, fn func(Status, error)) {
	s.mu.Lock()
	if s.status.Terminal() {
		status, err := s.status, s.err
		s.mu.Unlock()
		lane.Post(func() { fn(status, err) })
		return
	}
	s.doneObservers = append(s.doneObservers, doneSub{lane, fn})
	s.mu.Unlock()
}

// AddProgressObserver registers fn to be posted onto lane on every
// progress update, in attachment order, until fn returns false or the
// state becomes terminal. If already terminal, fn is never called
// (there is nothing left to observe).
func (s *Shared[T]) AddProgressObserver(lane Lane, fn func(min, max, value int64) bool) {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	s.nextProgID++
	s.progObservers = append(s.progObservers, progSub{id: s.nextProgID, lane: lane, fn: fn})
	s.mu.Unlock()
}

// Result returns the most recently reported result once the state
// settled Succeeded (the only one, when a single value was reported).
// If the state is not Succeeded it returns the zero value and an
// *ErrNotSucceeded; an empty-but-succeeded state yields the zero value
// with a nil error.
func (s *Shared[T]) Result() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.status != Succeeded {
		return zero, s.notSucceededLocked()
	}
	if v, ok := s.results.Last(); ok {
		return v, nil
	}
	return zero, nil
}

// Results returns every reported value, legal only once Succeeded.
func (s *Shared[T]) Results() ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Succeeded {
		return nil, s.notSucceededLocked()
	}
	return s.results.Values(), nil
}

func (s *Shared[T]) notSucceededLocked() error {
	return &ErrNotSucceeded{Status: s.status, Cause: s.err}
}

// Exception returns the stored cause, if the state is Failed.
func (s *Shared[T]) Exception() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func clamp(v, min, max int64) int64 {
	if max < min {
		max = min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
