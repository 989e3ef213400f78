package combine_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpfork/go-sup/async"
	"github.com/warpfork/go-sup/async/combine"
)

func TestNameDefaultsToGeneratedUUID(t *testing.T) {
	c := combine.New(combine.FailFast)
	_, err := uuid.Parse(c.Name())
	assert.NoError(t, err)
}

func TestWithNameOverridesGeneratedName(t *testing.T) {
	c := combine.New(combine.FailFast, combine.WithName("checkout"))
	assert.Equal(t, "checkout", c.Name())
}

func anyHandle[T any](h async.Handle[T]) async.AnyHandle { return h }

func TestEmptyCombinatorSucceedsOnObserve(t *testing.T) {
	c := combine.New(combine.FailFast)
	h := c.Handle()
	assert.Equal(t, async.Succeeded, h.Status())
}

func TestAddAfterObservingEmptyIsIgnored(t *testing.T) {
	c := combine.New(combine.FailFast)
	c.Handle()

	d := async.NewVoidDeferred[struct{}]()
	c.Add(anyHandle(d.Handle()))
	d.Cancel()

	// the combinator already settled Succeeded before Add, so the late
	// child cannot flip it to Cancelled.
	require.Eventually(t, func() bool { return c.Handle().IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Succeeded, c.Handle().Status())
}

// TestFailFastCancelsSiblings is the spec's literal scenario 3.
func TestFailFastCancelsSiblings(t *testing.T) {
	da := async.NewVoidDeferred[struct{}]()
	db := async.NewVoidDeferred[struct{}]()
	c := combine.New(combine.FailFast)
	c.Add(anyHandle(da.Handle())).Add(anyHandle(db.Handle()))
	h := c.Handle()

	da.Cancel()

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, h.Status())
	require.Eventually(t, func() bool { return db.Handle().IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, db.Handle().Status())
}

// TestAllSettledDespiteCancel is the spec's literal scenario 4.
func TestAllSettledDespiteCancel(t *testing.T) {
	da := async.NewVoidDeferred[struct{}]()
	db := async.NewVoidDeferred[struct{}]()
	c := combine.New(combine.AllSettled)
	c.Add(anyHandle(da.Handle())).Add(anyHandle(db.Handle()))
	h := c.Handle()

	da.Cancel()
	db.Complete(struct{}{})

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, h.Status())
	assert.Equal(t, async.Succeeded, db.Handle().Status())
}

func TestAllSettledSucceedsWhenEverySucceeds(t *testing.T) {
	da := async.NewVoidDeferred[struct{}]()
	db := async.NewVoidDeferred[struct{}]()
	c := combine.New(combine.AllSettled)
	c.Add(anyHandle(da.Handle())).Add(anyHandle(db.Handle()))
	h := c.Handle()

	da.Complete(struct{}{})
	db.Complete(struct{}{})

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Succeeded, h.Status())
}

func TestAggregateCancelPushesToChildren(t *testing.T) {
	da := async.NewVoidDeferred[struct{}]()
	db := async.NewVoidDeferred[struct{}]()
	c := combine.New(combine.AllSettled)
	c.Add(anyHandle(da.Handle())).Add(anyHandle(db.Handle()))
	h := c.Handle()

	h.Cancel()

	require.Eventually(t, func() bool {
		return da.Handle().IsFinished() && db.Handle().IsFinished()
	}, time.Second, time.Millisecond)
	assert.Equal(t, async.Cancelled, da.Handle().Status())
	assert.Equal(t, async.Cancelled, db.Handle().Status())
}

func TestProgressSumsAcrossChildren(t *testing.T) {
	da := async.NewDeferred[struct{}]()
	db := async.NewDeferred[struct{}]()
	c := combine.New(combine.AllSettled)
	c.Add(anyHandle(da.Handle())).Add(anyHandle(db.Handle()))
	h := c.Handle()

	da.SetProgressRange(0, 10)
	da.SetProgressValue(3)
	db.SetProgressRange(0, 5)
	db.SetProgressValue(1)

	require.Eventually(t, func() bool {
		_, max, val := h.Progress()
		return max == 15 && val == 4
	}, time.Second, time.Millisecond)
}

func TestNewWithHandlesSeedsAllAtOnce(t *testing.T) {
	a := async.Completed(struct{}{})
	b := async.Completed(struct{}{})
	c := combine.NewWithHandles(combine.AllSettled, []async.AnyHandle{anyHandle(a), anyHandle(b)})
	h := c.Handle()

	require.Eventually(t, func() bool { return h.IsFinished() }, time.Second, time.Millisecond)
	assert.Equal(t, async.Succeeded, h.Status())
}
