package async

import "github.com/warpfork/go-sup/state"

// Completed returns an already-Succeeded Handle carrying v, the Go
// equivalent of asyncfuture.h's QtFuture::makeReadyFuture used as a
// chain starting point in tests and examples.
func Completed[T any](v T) Handle[T] {
	s := state.New[T]()
	s.ReportResult(v)
	s.ReportFinished()
	return Handle[T]{s: s}
}

// CompletedList returns an already-Succeeded Handle carrying vs.
func CompletedList[T any](vs []T) Handle[T] {
	s := state.New[T]()
	s.ReportResults(vs)
	s.ReportFinished()
	return Handle[T]{s: s}
}

// CompletedVoid returns an already-Succeeded void Handle, for chains
// whose only interesting output is "it happened".
func CompletedVoid() Handle[struct{}] {
	s := state.NewVoid[struct{}]()
	s.ReportFinished()
	return Handle[struct{}]{s: s}
}

// CancelledHandle returns an already-Cancelled Handle[T].
func CancelledHandle[T any]() Handle[T] {
	s := state.New[T]()
	s.Cancel()
	return Handle[T]{s: s}
}

// FailedHandle returns an already-Failed Handle[T] carrying cause.
func FailedHandle[T any](cause error) Handle[T] {
	s := state.New[T]()
	s.ReportException(cause)
	return Handle[T]{s: s}
}
