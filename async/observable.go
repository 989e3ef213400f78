package async

// Observable is a Handle opened up for continuation-chaining (spec
// section 4.4 / section 6). observe(handle) in the spec's own
// vocabulary is the Observe constructor below. The Handle's query,
// Cancel and On* attachment methods are mirrored on the Observable that
// wraps it; WaitForFinished, OnSettled and OnProgressRaw are reached
// through Handle().
type Observable[T any] struct {
	h Handle[T]
}

// Observe opens h for continuation-chaining.
func Observe[T any](h Handle[T]) Observable[T] { return Observable[T]{h: h} }

// Handle returns the underlying read-only handle.
func (o Observable[T]) Handle() Handle[T] { return o.h }

func (o Observable[T]) Status() Status                    { return o.h.Status() }
func (o Observable[T]) IsFinished() bool                  { return o.h.IsFinished() }
func (o Observable[T]) IsCancelled() bool                 { return o.h.IsCancelled() }
func (o Observable[T]) IsRunning() bool                   { return o.h.IsRunning() }
func (o Observable[T]) Result() (T, error)                { return o.h.Result() }
func (o Observable[T]) Results() ([]T, error)             { return o.h.Results() }
func (o Observable[T]) Progress() (min, max, value int64) { return o.h.Progress() }
func (o Observable[T]) Cancel()                           { o.h.Cancel() }

// OnCompleted attaches fn, returning the same Observable for chaining.
func (o Observable[T]) OnCompleted(fn func(T)) Observable[T] {
	o.h.OnCompleted(fn)
	return o
}

// OnCancelled attaches fn, returning the same Observable for chaining.
func (o Observable[T]) OnCancelled(fn func()) Observable[T] {
	o.h.OnCancelled(fn)
	return o
}

// OnFinished attaches fn, returning the same Observable for chaining.
func (o Observable[T]) OnFinished(fn func(Status, error)) Observable[T] {
	o.h.OnFinished(fn)
	return o
}

// OnProgress attaches fn on the default lane; fn returning false
// detaches it (spec section 6).
func (o Observable[T]) OnProgress(fn func(min, max, value int64) bool) Observable[T] {
	o.h.OnProgressRaw(nil, fn)
	return o
}

// OnProgressAlways is OnProgress for callbacks that never detach
// themselves, the Go substitute for the spec's void-returning overload
// (Go has no return-type overloading).
func (o Observable[T]) OnProgressAlways(fn func(min, max, value int64)) Observable[T] {
	return o.OnProgress(func(min, max, value int64) bool {
		fn(min, max, value)
		return true
	})
}
