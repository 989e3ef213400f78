// Package signal implements the Signal Adapter (spec section 4.6): a
// one-shot bridge from an external at-most-once event source into a
// Handle[A]. The host object system this boundary talks to is
// deliberately out of scope (spec section 1); this package only
// specifies the observable contract at that boundary.
package signal

import (
	"sync"

	"github.com/warpfork/go-sup/async"
)

// Source is an external event source that will emit at most once.
// Register arranges for emit to be called on the first (and only)
// emission and returns a disconnect func that Adapt calls exactly once
// when it settles the handle, on the first emission or when destroyed
// fires; if neither ever happens, disconnect is never called.
type Source[A any] interface {
	Register(emit func(A)) (disconnect func())
}

// SourceFunc adapts a plain function into a Source.
type SourceFunc[A any] func(emit func(A)) (disconnect func())

// Register implements Source.
func (f SourceFunc[A]) Register(emit func(A)) (disconnect func()) { return f(emit) }

// Adapt bridges source into a Handle[A]: the handle completes with the
// first emission's value; if destroyed fires before any emission, the
// handle is Cancelled instead (spec section 4.6). destroyed may be nil
// if the source has no independent destruction signal. Either way,
// source's disconnect runs exactly once, from whichever goroutine
// settles the handle first.
func Adapt[A any](source Source[A], destroyed <-chan struct{}) async.Handle[A] {
	d := async.NewDeferred[A]()

	var mu sync.Mutex
	done := false
	disconnected := false
	var disconnectFn func()
	settled := make(chan struct{})

	runDisconnect := func() {
		mu.Lock()
		if disconnected || disconnectFn == nil {
			mu.Unlock()
			return
		}
		disconnected = true
		fn := disconnectFn
		mu.Unlock()
		fn()
	}

	finish := func(apply func()) {
		mu.Lock()
		if done {
			mu.Unlock()
			return
		}
		done = true
		mu.Unlock()

		apply()
		close(settled)
		runDisconnect()
	}

	fn := source.Register(func(v A) {
		finish(func() { d.Complete(v) })
	})
	mu.Lock()
	disconnectFn = fn
	alreadyDone := done
	mu.Unlock()
	if alreadyDone {
		// emit fired synchronously inside Register, before disconnectFn
		// above was visible to finish; run it now.
		runDisconnect()
	}

	if destroyed != nil {
		go func() {
			select {
			case <-destroyed:
				finish(func() { d.Cancel() })
			case <-settled:
			}
		}()
	}

	return d.Handle()
}

// FromChannel adapts a channel receive into a Handle: it completes
// with the first value received, or is Cancelled if ch is closed
// without a value or if closed fires first. closed may be nil.
func FromChannel[A any](ch <-chan A, closed <-chan struct{}) async.Handle[A] {
	ended := make(chan struct{})
	return Adapt[A](SourceFunc[A](func(emit func(A)) func() {
		stop := make(chan struct{})
		var once sync.Once
		go func() {
			select {
			case v, ok := <-ch:
				if ok {
					emit(v)
				} else {
					close(ended)
				}
			case <-closed:
				close(ended)
			case <-stop:
			}
		}()
		return func() { once.Do(func() { close(stop) }) }
	}), ended)
}
