// Package observability provides the logging sink used throughout the
// async value library.
//
// go-sup's own SupervisionWarning/SetWarningHandler hook (see the root
// supervision.go) is a caller-supplied callback that does nothing unless
// the caller opts in; this package follows the same stance but gives the
// default a real structured-logging implementation, built on
// github.com/joeycumines/logiface with the stumpy writer backend.
package observability

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logging surface every package in this module accepts.
// It deliberately exposes only the handful of levels actually used by
// the engine, rather than the full logiface.Logger API, so call sites
// don't need to know about logiface at all.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// New returns a Logger backed by logiface+stumpy, writing wherever
// stumpy's default options send output; it takes no sink argument.
func New() Logger {
	return &stumpyLogger{
		log: stumpy.L.New(
			stumpy.L.WithStumpy(),
		),
	}
}

type stumpyLogger struct {
	log *logiface.Logger[*stumpy.Event]
}

func (l *stumpyLogger) Debugf(format string, args ...any) { l.log.Debug().Logf(format, args...) }
func (l *stumpyLogger) Infof(format string, args ...any)  { l.log.Info().Logf(format, args...) }
func (l *stumpyLogger) Warnf(format string, args ...any)  { l.log.Warning().Logf(format, args...) }
func (l *stumpyLogger) Errorf(format string, args ...any) { l.log.Err().Logf(format, args...) }

// Noop returns a Logger that discards everything. It is the package
// default for every component in this module, mirroring go-sup's
// default of silence until a caller installs a warning handler.
func Noop() Logger { return noop{} }

type noop struct{}

func (noop) Debugf(string, ...any) {}
func (noop) Infof(string, ...any)  {}
func (noop) Warnf(string, ...any)  {}
func (noop) Errorf(string, ...any) {}
