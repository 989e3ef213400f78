package observability_test

import (
	"testing"

	"github.com/warpfork/go-sup/observability"
)

func TestNoopDoesNotPanic(t *testing.T) {
	l := observability.Noop()
	l.Debugf("x=%d", 1)
	l.Infof("x=%d", 1)
	l.Warnf("x=%d", 1)
	l.Errorf("x=%d", 1)
}

func TestNewLoggerDoesNotPanic(t *testing.T) {
	l := observability.New()
	l.Debugf("hello %s", "world")
	l.Infof("hello %s", "world")
	l.Warnf("hello %s", "world")
	l.Errorf("hello %s", "world")
}
