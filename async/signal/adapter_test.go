package signal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpfork/go-sup/async"
	"github.com/warpfork/go-sup/async/signal"
)

type fakeSource struct {
	registered   func(emit func(int))
	disconnectFn func()
	disconnected int
}

func (s *fakeSource) Register(emit func(int)) func() {
	s.registered(emit)
	return func() { s.disconnected++; s.disconnectFn() }
}

func TestAdaptCompletesOnFirstEmission(t *testing.T) {
	src := &fakeSource{disconnectFn: func() {}}
	var captured func(int)
	src.registered = func(emit func(int)) { captured = emit }

	h := signal.Adapt[int](src, nil)
	captured(5)

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	v, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 1, src.disconnected)
}

func TestAdaptCancelsOnDestroyedBeforeEmission(t *testing.T) {
	src := &fakeSource{disconnectFn: func() {}}
	src.registered = func(emit func(int)) {}

	destroyed := make(chan struct{})
	h := signal.Adapt[int](src, destroyed)
	close(destroyed)

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, h.Status())
	require.Eventually(t, func() bool { return src.disconnected == 1 }, time.Second, time.Millisecond)
}

func TestAdaptEmissionAfterDestroyedIsIgnored(t *testing.T) {
	src := &fakeSource{disconnectFn: func() {}}
	var captured func(int)
	src.registered = func(emit func(int)) { captured = emit }

	destroyed := make(chan struct{})
	h := signal.Adapt[int](src, destroyed)
	close(destroyed)
	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)

	captured(99)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, async.Cancelled, h.Status())
}

func TestAdaptDisconnectsExactlyOnceOnSynchronousEmission(t *testing.T) {
	src := &fakeSource{disconnectFn: func() {}}
	src.registered = func(emit func(int)) {
		// emits before Register has returned, so disconnectFn isn't
		// wired up in the caller yet when finish() first runs.
		emit(3)
	}

	h := signal.Adapt[int](src, nil)
	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	v, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	require.Eventually(t, func() bool { return src.disconnected == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, src.disconnected)
}

func TestFromChannelCompletesOnFirstValue(t *testing.T) {
	ch := make(chan string, 1)
	ch <- "hello"
	h := signal.FromChannel[string](ch, nil)

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	v, err := h.Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestFromChannelCancelsOnCloseWithoutValue(t *testing.T) {
	ch := make(chan string)
	close(ch)
	h := signal.FromChannel[string](ch, nil)

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, h.Status())
}

func TestFromChannelCancelsOnClosedSignalFirst(t *testing.T) {
	ch := make(chan string)
	closed := make(chan struct{})
	close(closed)
	h := signal.FromChannel[string](ch, closed)

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, h.Status())
}
