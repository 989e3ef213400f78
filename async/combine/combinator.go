// Package combine implements the Combinator: aggregating N upstream
// handles into one aggregate handle under a FailFast or AllSettled
// policy (spec section 4.5).
//
// The phase machine (collecting -> halting -> done, a first-fail
// serialized under one mutex) is grounded on go-sup's fork-join
// supervisor (engineForkJoin.go, superviseFJ): that type already
// implements exactly this shape for task trees -- collect child
// reports on a channel, and on the first non-nil report, cancel the
// rest of the group and drain what's left without changing the
// reported error. This package ports that same policy onto
// async.AnyHandle children instead of *boundTask, and adds the
// AllSettled variant the teacher has no equivalent for.
package combine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/warpfork/go-sup/async"
	"github.com/warpfork/go-sup/observability"
)

// Mode selects the aggregate completion policy (spec section 4.5).
type Mode int

const (
	// FailFast terminalizes the aggregate Cancelled the moment any
	// child cancels or fails, and forwards cancel to every
	// still-running sibling.
	FailFast Mode = iota
	// AllSettled waits for every child to settle regardless of
	// outcome; the aggregate succeeds iff every child did.
	AllSettled
)

func (m Mode) String() string {
	if m == AllSettled {
		return "AllSettled"
	}
	return "FailFast"
}

// Option configures a Combinator at construction time, the same
// functional-options shape go-sup's SupervisionOptions uses for
// Supervisor construction.
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

type phase byte

const (
	phaseCollecting phase = iota
	phaseHalting
	phaseDone
)

type childProgress struct{ min, max, val int64 }

// Combinator aggregates child handles into one void aggregate Handle
// (spec section 4.5). The zero Combinator is not valid; use New.
type Combinator struct {
	cfg  config
	mode Mode

	deferred async.Deferred[struct{}]

	mu           sync.Mutex
	phase        phase
	children     []async.AnyHandle
	childProg    map[int]childProgress
	remaining    int
	anyCancelled bool
	observed     bool
}

// New constructs an empty Combinator under mode. Children are added
// with Add before the aggregate Handle is first observed.
func New(mode Mode, opts ...Option) *Combinator {
	cfg := config{logger: observability.Noop()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.name == "" {
		// a generated, reproducible-looking correlation id, in place
		// of the pointer-address names the teacher falls back to
		// (fmt.Sprintf("%p", t) in its CtxAttachments) -- a pointer
		// isn't meaningful once it shows up in a log line shipped
		// somewhere else.
		cfg.name = uuid.NewString()
	}
	c := &Combinator{
		cfg:       cfg,
		mode:      mode,
		deferred:  async.NewVoidDeferred[struct{}](),
		childProg: make(map[int]childProgress),
	}
	c.deferred.Handle().OnCancelled(func() {
		c.cancelChildren()
	})
	return c
}

// NewWithHandles constructs a Combinator and seeds it with handles in
// one call, the Go spelling of asyncfuture.h's
// `operator<<(QList<QFuture<T>>)` overload.
func NewWithHandles(mode Mode, handles []async.AnyHandle, opts ...Option) *Combinator {
	c := New(mode, opts...)
	for _, h := range handles {
		c.Add(h)
	}
	return c
}

// Name returns the combinator's correlation name: whatever WithName
// supplied, or a generated UUID otherwise.
func (c *Combinator) Name() string { return c.cfg.name }

func (c *Combinator) cancelChildren() {
	c.mu.Lock()
	children := append([]async.AnyHandle(nil), c.children...)
	c.mu.Unlock()
	for _, h := range children {
		h.Cancel()
	}
}

// Handle returns the aggregate Handle. Once called on a Combinator
// with no children added yet, the aggregate terminalizes Succeeded
// immediately with an empty result set (spec section 4.5: "empty
// aggregate ... MUST terminalize Succeeded immediately when
// observed"), and subsequent Add calls are rejected.
func (c *Combinator) Handle() async.Handle[struct{}] {
	c.mu.Lock()
	empty := !c.observed && c.phase == phaseCollecting && len(c.children) == 0
	c.observed = true
	if empty {
		c.phase = phaseDone
	}
	c.mu.Unlock()
	if empty {
		c.deferred.Complete(struct{}{})
	}
	return c.deferred.Handle()
}

// Add registers a child handle, the Go spelling of spec section 6's
// `combinator << handle`. Returns the Combinator so calls chain the
// way `<<` does in the source material. Calling Add once the aggregate
// has already terminalized (including the empty-aggregate case
// triggered by Handle) is a no-op, logged at Warn.
func (c *Combinator) Add(h async.AnyHandle) *Combinator {
	c.mu.Lock()
	if c.phase != phaseCollecting || c.deferred.Handle().IsFinished() {
		c.mu.Unlock()
		c.cfg.logger.Warnf("combine: Add called on combinator %q after it already settled, ignored", c.cfg.name)
		return c
	}
	idx := len(c.children)
	c.children = append(c.children, h)
	c.remaining++
	min, max, val := h.Progress()
	c.childProg[idx] = childProgress{min, max, val}
	c.mu.Unlock()

	c.recomputeProgress()

	h.OnProgressRaw(nil, func(min, max, val int64) bool {
		c.updateChildProgress(idx, min, max, val)
		return true
	})
	h.OnSettled(nil, func(st async.Status, err error) {
		c.onChildSettled(idx, st, err)
	})
	return c
}

func (c *Combinator) updateChildProgress(idx int, min, max, val int64) {
	c.mu.Lock()
	c.childProg[idx] = childProgress{min, max, val}
	c.mu.Unlock()
	c.recomputeProgress()
}

// recomputeProgress sums every tracked child window and pushes the
// total onto the aggregate (spec section 3: "total range = sum
// child.max; total value = sum child.value").
func (c *Combinator) recomputeProgress() {
	c.mu.Lock()
	var totalMin, totalMax, totalVal int64
	for _, p := range c.childProg {
		totalMin += p.min
		totalMax += p.max
		totalVal += p.val
	}
	c.mu.Unlock()
	c.deferred.SetProgressRange(totalMin, totalMax)
	c.deferred.SetProgressValue(totalVal)
}

func (c *Combinator) onChildSettled(idx int, st async.Status, _ error) {
	c.mu.Lock()
	if c.phase == phaseDone {
		c.mu.Unlock()
		return
	}
	// a settled child's value is clamped to its max before re-summing
	// (spec section 3).
	p := c.childProg[idx]
	p.val = p.max
	c.childProg[idx] = p

	c.remaining--
	failed := st != async.Succeeded
	if failed {
		c.anyCancelled = true
	}
	// The mutex is what makes "the first cancel in FailFast" well
	// defined under concurrent child settlement (spec section 4.5,
	// Tie-breaks): only the settlement that observes phaseCollecting
	// here gets to flip it.
	fastFail := c.mode == FailFast && failed && c.phase == phaseCollecting
	if fastFail {
		c.phase = phaseHalting
	}
	remaining := c.remaining
	c.mu.Unlock()

	c.recomputeProgress()

	switch {
	case fastFail:
		c.cfg.logger.Debugf("combine: combinator %q fast-failing on child %d (%s)", c.cfg.name, idx, st)
		c.finish()
	case remaining == 0:
		c.finish()
	}
}

func (c *Combinator) finish() {
	c.mu.Lock()
	if c.phase == phaseDone {
		c.mu.Unlock()
		return
	}
	c.phase = phaseDone
	anyCancelled := c.anyCancelled
	c.mu.Unlock()

	if anyCancelled {
		c.deferred.Cancel()
	} else {
		c.deferred.Complete(struct{}{})
	}
}
