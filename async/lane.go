package async

import (
	"fmt"
	"sync"

	"github.com/warpfork/go-sup/observability"
	"github.com/warpfork/go-sup/state"
)

// Lane is the execution lane a callback is posted onto: the "post to
// context" abstraction from the design notes (section 9). Callers may
// implement it themselves, backing Post with an existing event loop,
// a UI thread marshaller, or anything else with a single-goroutine
// execution guarantee; DefaultLane and NewLane cover the common case.
type Lane = state.Lane

// FuncLane adapts a plain function into a Lane. It's the simplest
// possible Lane and is mostly useful in tests, or to post directly
// onto a caller-owned worker.
type FuncLane func(func())

// Post implements Lane.
func (f FuncLane) Post(fn func()) { f(fn) }

// InlineLane runs posted closures synchronously, on whatever goroutine
// called Post. It violates the "never run inline on the producer's
// thread" guidance in spec section 5 and exists only for tests and for
// callers who have already arranged their own serialization.
var InlineLane Lane = FuncLane(func(fn func()) { fn() })

// LaneConfig configures a queue-backed Lane, in the same
// validated-struct-with-defaults shape as ygrebnov-workers.Config
// (workers.go).
type LaneConfig struct {
	// QueueSize bounds the number of pending posted closures.
	// Default: 256.
	QueueSize int

	// Workers is the number of goroutines draining the queue. Shared
	// posts one state's observers in attachment order, but a Lane with
	// more than one worker runs posted closures concurrently, so it
	// does not preserve that order when they execute, not even among
	// one SharedState's observers. With one worker, closures run in
	// the order they were posted.
	// Default: 1.
	Workers int

	// Logger receives a line when a posted closure panics. Default:
	// observability.Noop().
	Logger observability.Logger
}

func (c *LaneConfig) setDefaults() error {
	if c.QueueSize < 0 {
		return fmt.Errorf("async: LaneConfig.QueueSize must be >= 0, got %d", c.QueueSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("async: LaneConfig.Workers must be >= 0, got %d", c.Workers)
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Logger == nil {
		c.Logger = observability.Noop()
	}
	return nil
}

// queueLane is a Lane backed by a buffered channel and a fixed pool of
// worker goroutines, the Go-idiomatic substitute for the GUI event
// loop a Qt-based implementation would post onto.
type queueLane struct {
	tasks  chan func()
	logger observability.Logger
}

// NewLane constructs a queue-backed Lane per cfg.
func NewLane(cfg LaneConfig) (Lane, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	l := &queueLane{
		tasks:  make(chan func(), cfg.QueueSize),
		logger: cfg.Logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		go l.worker()
	}
	return l, nil
}

func (l *queueLane) worker() {
	for fn := range l.tasks {
		l.runProtected(fn)
	}
}

func (l *queueLane) runProtected(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("async: recovered panic from posted closure: %v", r)
		}
	}()
	fn()
}

// Post implements Lane.
func (l *queueLane) Post(fn func()) {
	l.tasks <- fn
}

var (
	defaultLaneOnce sync.Once
	defaultLane     Lane
)

// DefaultLane returns the library-wide "main lane" that callbacks
// attached without an explicit Context are posted onto (spec section
// 5). It is created lazily, with default LaneConfig, the first time it
// is needed.
func DefaultLane() Lane {
	defaultLaneOnce.Do(func() {
		l, err := NewLane(LaneConfig{})
		if err != nil {
			// LaneConfig{} always validates; a failure here would be
			// a programming error in setDefaults itself.
			panic(err)
		}
		defaultLane = l
	})
	return defaultLane
}

func resolveLane(lane Lane) Lane {
	if lane == nil {
		return DefaultLane()
	}
	return lane
}
