package async

import (
	"errors"
	"fmt"

	"github.com/warpfork/go-sup/state"
)

// ErrCancelled is returned by Handle.Result/Results when the handle
// settled Cancelled without a carried cause. Named and used the same
// way go-sup's promise.go already uses context.Canceled as its
// cancellation sentinel, generalized into a package-owned error so
// callers can errors.Is against it without importing context.
var ErrCancelled = errors.New("async: cancelled")

// ErrNotFinished is returned by Handle.Result/Results when the handle
// has not yet settled.
var ErrNotFinished = errors.New("async: not finished")

// FailureError wraps the cause of a Failed terminal transition (spec
// section 7). Downstream consumers observe a Failed handle as
// Cancelled (on_cancel fires for both), but Result/Results re-raise
// the original cause by returning it wrapped in a FailureError, so
// errors.As(err, &FailureError{}) finds it and errors.Unwrap reaches
// the original cause.
//
// WasPanic mirrors go-sup's *ErrChild{Err, WasPanic} (engineShared.go)
// -- it distinguishes a continuation that returned an error from one
// that panicked, which callers may want to treat differently (e.g. to
// decide whether to keep retrying a Restarter's producer).
type FailureError struct {
	Cause    error
	WasPanic bool
}

func (e *FailureError) Error() string {
	if e.WasPanic {
		return fmt.Sprintf("async: continuation panicked: %v", e.Cause)
	}
	return fmt.Sprintf("async: failed: %v", e.Cause)
}

func (e *FailureError) Unwrap() error { return e.Cause }

// toResultError translates a *state.ErrNotSucceeded (state package's
// internal, status-keyed error) into this package's public error
// vocabulary.
func toResultError(err error) error {
	if err == nil {
		return nil
	}
	var nse *state.ErrNotSucceeded
	if !errors.As(err, &nse) {
		return err
	}
	switch nse.Status {
	case state.Cancelled:
		return ErrCancelled
	case state.Failed:
		// a continuation panic is already stored as a *FailureError
		// (panicAsFailure); return it as is so WasPanic survives.
		if fe, ok := nse.Cause.(*FailureError); ok {
			return fe
		}
		return &FailureError{Cause: nse.Cause}
	default:
		return ErrNotFinished
	}
}
