package restart_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpfork/go-sup/async"
	"github.com/warpfork/go-sup/async/restart"
)

func TestNameDefaultsToGeneratedUUID(t *testing.T) {
	r := restart.New[int]()
	_, err := uuid.Parse(r.Name())
	assert.NoError(t, err)
}

func TestWithNameOverridesGeneratedName(t *testing.T) {
	r := restart.New[int](restart.WithName("poller"))
	assert.Equal(t, "poller", r.Name())
}

func TestRestartWithNoCurrentInvokesProducerImmediately(t *testing.T) {
	r := restart.New[int]()
	invoked := false
	r.Restart(func() async.Handle[int] {
		invoked = true
		return async.Completed(7)
	})
	assert.True(t, invoked)
	v, err := r.Current().Result()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestOnChangedFiresOnEachAdoption(t *testing.T) {
	r := restart.New[int]()
	var seen []int
	r.OnChanged(func(h async.Handle[int]) {
		v, _ := h.Result()
		seen = append(seen, v)
	})
	r.Restart(func() async.Handle[int] { return async.Completed(1) })
	r.Restart(func() async.Handle[int] { return async.Completed(2) })
	assert.Equal(t, []int{1, 2}, seen)
}

// TestRestartCoalescesWhileCancelling is the spec's literal scenario 6:
// restart(p1) then immediately restart(p2) then restart(p3) while the
// current handle is still cancelling ⇒ only p3 is ultimately invoked,
// and on_changed has been called exactly twice (once for p1's
// adoption, once for p3's).
func TestRestartCoalescesWhileCancelling(t *testing.T) {
	r := restart.New[int]()

	var changedCount int
	r.OnChanged(func(async.Handle[int]) { changedCount++ })

	d1 := async.NewDeferred[int]()
	p2invoked := false
	p3invoked := false

	r.Restart(func() async.Handle[int] { return d1.Handle() })
	assert.Equal(t, 1, changedCount)

	r.Restart(func() async.Handle[int] {
		p2invoked = true
		return async.Completed(2)
	})
	r.Restart(func() async.Handle[int] {
		p3invoked = true
		return async.Completed(3)
	})

	// the second Restart's cancel request has settled p1's handle, but the
	// pending producer is only adopted once that settlement is dispatched
	// on the default lane: neither coalesced producer has run yet, and
	// on_changed has not fired again.
	assert.False(t, p2invoked)
	assert.False(t, p3invoked)
	assert.Equal(t, 1, changedCount)

	d1.Cancel()

	require.Eventually(t, func() bool { return changedCount == 2 }, time.Second, time.Millisecond)
	assert.False(t, p2invoked, "p2 must be coalesced away by p3, never invoked")
	assert.True(t, p3invoked)

	v, err := r.Current().Result()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestRestartWhileRunningRequestsCancelOnCurrent(t *testing.T) {
	r := restart.New[int]()
	d1 := async.NewDeferred[int]()
	r.Restart(func() async.Handle[int] { return d1.Handle() })

	cancelled := false
	d1.Handle().OnCancelled(func() { cancelled = true })

	r.Restart(func() async.Handle[int] { return async.Completed(9) })

	require.Eventually(t, func() bool { return d1.Handle().IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, d1.Handle().Status())
	require.Eventually(t, func() bool { return cancelled }, time.Second, time.Millisecond)
}

func TestRestartSecondCallDuringSameCancellationDoesNotReRequestCancel(t *testing.T) {
	r := restart.New[int]()
	d1 := async.NewDeferred[int]()
	r.Restart(func() async.Handle[int] { return d1.Handle() })

	cancelRequests := 0
	d1.Handle().OnCancelled(func() { cancelRequests++ })

	r.Restart(func() async.Handle[int] { return async.Completed(1) })
	r.Restart(func() async.Handle[int] { return async.Completed(2) })

	require.Eventually(t, func() bool { return d1.Handle().IsFinished() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return cancelRequests == 1 }, time.Second, time.Millisecond)
	// give any spurious extra cancellation delivery a chance to show up
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, cancelRequests)
}
