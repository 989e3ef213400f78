// Package restart implements the Restarter: cancel-and-replace
// coalescing of a restartable job's "current attempt" (spec section
// 4.7).
//
// The shape -- serialize mutation under one mutex, treat "a cancel is
// already in flight" as a latch that later calls fold into rather than
// re-trigger -- is the same discipline combine.Combinator uses for its
// phase machine, itself grounded on go-sup's fork-join supervisor. The
// teacher has no direct restart/replace primitive of its own (its
// Supervisor cancels a whole tree, it doesn't recycle one slot), so
// this package generalizes that serialization discipline rather than
// porting a specific teacher type.
package restart

import (
	"sync"

	"github.com/google/uuid"

	"github.com/warpfork/go-sup/async"
	"github.com/warpfork/go-sup/observability"
)

// Option configures a Restarter at construction time.
type Option func(*config)

type config struct {
	name   string
	logger observability.Logger
}

// WithName attaches a name used only in log lines.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l observability.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Restarter owns the "currently running" attempt of a
// `func() async.Handle[T]` job (spec section 4.7). The zero Restarter
// is not valid; use New.
type Restarter[T any] struct {
	cfg config

	mu              sync.Mutex
	hasCurrent      bool
	current         async.Handle[T]
	cancelRequested bool
	pending         func() async.Handle[T]
	callbacks       []func(async.Handle[T])
}

// New constructs an idle Restarter with no current attempt.
func New[T any](opts ...Option) *Restarter[T] {
	cfg := config{logger: observability.Noop()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.name == "" {
		cfg.name = uuid.NewString()
	}
	return &Restarter[T]{cfg: cfg}
}

// Name returns the restarter's correlation name: whatever WithName
// supplied, or a generated UUID otherwise.
func (r *Restarter[T]) Name() string { return r.cfg.name }

// Restart adopts producer's handle as the current attempt. If nothing
// is currently running, producer is invoked immediately. If an
// attempt is already in flight, its cancellation is requested and
// producer is stashed as pending; repeated Restart calls before that
// cancellation resolves coalesce, so only the most recently supplied
// producer is ever invoked (spec section 4.7).
func (r *Restarter[T]) Restart(producer func() async.Handle[T]) {
	r.mu.Lock()
	// a cancel already requested still counts as in flight until
	// onCurrentSettled has adopted the pending producer, even though the
	// cancelled handle itself may already report finished.
	if r.cancelRequested || (r.hasCurrent && !r.current.IsFinished()) {
		r.pending = producer
		if r.cancelRequested {
			r.mu.Unlock()
			return
		}
		r.cancelRequested = true
		cur := r.current
		r.mu.Unlock()

		r.cfg.logger.Infof("restart: %q requesting cancel of in-flight attempt before replacing it", r.cfg.name)
		cur.OnSettled(nil, func(async.Status, error) { r.onCurrentSettled() })
		cur.Cancel()
		return
	}
	r.mu.Unlock()
	r.adopt(producer)
}

func (r *Restarter[T]) onCurrentSettled() {
	r.mu.Lock()
	r.cancelRequested = false
	p := r.pending
	r.pending = nil
	r.mu.Unlock()
	if p != nil {
		r.cfg.logger.Infof("restart: %q adopting coalesced producer", r.cfg.name)
		r.adopt(p)
	}
}

func (r *Restarter[T]) adopt(producer func() async.Handle[T]) {
	h := producer()
	r.mu.Lock()
	r.current = h
	r.hasCurrent = true
	cbs := append([]func(async.Handle[T])(nil), r.callbacks...)
	r.mu.Unlock()

	// on_changed fires synchronously (spec section 4.7), unlike every
	// other callback surface in this library: callers rely on it to
	// observe the new handle before Restart returns, e.g. to subscribe
	// to it before it can possibly have already settled.
	for _, cb := range cbs {
		cb(h)
	}
}

// Current returns the currently adopted handle. Before the first call
// to Restart, it returns the zero Handle[T], which is not valid to
// call methods on; callers should gate on a prior Restart call.
func (r *Restarter[T]) Current() async.Handle[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// OnChanged registers cb to be called, synchronously and on whatever
// goroutine triggers the adoption, every time Restarter adopts a new
// handle. It is not called for the Restarter's initial state; only for
// transitions.
func (r *Restarter[T]) OnChanged(cb func(async.Handle[T])) {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.mu.Unlock()
}
