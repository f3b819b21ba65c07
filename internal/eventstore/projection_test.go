package eventstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, e *BaseEvent, err error) *BaseEvent {
	t.Helper()
	require.NoError(t, err)
	return e
}

func TestPassHistoryProjection_Apply(t *testing.T) {
	store := newMemStore(t)
	p := NewPassHistoryProjection(store, 10)

	p.Apply(mustEvent(t, NewPassStarted("p1", "scheduled", "")))
	p.Apply(mustEvent(t, NewPullRequestObserved("p1", "acme/app#1", "a", "new")))
	p.Apply(mustEvent(t, NewPullRequestObserved("p1", "acme/app#2", "b", "already_seen")))
	p.Apply(mustEvent(t, NewReviewNotified("p1", "acme/app#1", "a", "Fix bug", true)))

	s, ok := p.Pass("p1")
	require.True(t, ok)
	assert.Equal(t, "running", s.Status)
	assert.Equal(t, "scheduled", s.Trigger)
	assert.Equal(t, 2, s.Observed)
	assert.Equal(t, 1, s.New)
	assert.Equal(t, 1, s.Reviewed)
	_, ok = p.Last()
	assert.False(t, ok)

	p.Apply(mustEvent(t, NewPassCompleted("p1", PassCompletedData{Reviewed: 1, Skipped: 1})))
	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, "completed", last.Status)
	assert.NotNil(t, last.CompletedAt)
}

func TestPassHistoryProjection_Rebuild(t *testing.T) {
	store := newMemStore(t)
	ctx := t.Context()

	record := func(e *BaseEvent, err error) {
		require.NoError(t, err)
		require.NoError(t, Record(ctx, store, e))
	}
	record(NewPassStarted("p1", "scheduled", ""))
	record(NewReviewFailed("p1", "acme/app#1", "diff", errors.New("404")))
	record(NewPassCompleted("p1", PassCompletedData{Failed: 1}))
	record(NewPassStarted("p2", "manual", "7"))
	record(NewPassCompleted("p2", PassCompletedData{Error: "github unavailable"}))
	record(NewPassStarted("p3", "manual", "7"))

	p := NewPassHistoryProjection(store, 10)
	require.NoError(t, p.Rebuild(ctx))

	history := p.History(0)
	require.Len(t, history, 2)
	ids := []string{history[0].PassID, history[1].PassID}
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)

	p2, ok := p.Pass("p2")
	require.True(t, ok)
	assert.Equal(t, "failed", p2.Status)
	assert.Equal(t, "github unavailable", p2.Error)

	p1, _ := p.Pass("p1")
	assert.Equal(t, 1, p1.Failed)

	running, ok := p.Pass("p3")
	require.True(t, ok)
	assert.Equal(t, "running", running.Status)

	assert.Len(t, p.History(1), 1)
}

func TestPassHistoryProjection_Bounded(t *testing.T) {
	store := newMemStore(t)
	p := NewPassHistoryProjection(store, 2)
	for _, id := range []string{"a", "b", "c"} {
		p.Apply(mustEvent(t, NewPassStarted(id, "scheduled", "")))
		p.Apply(mustEvent(t, NewPassCompleted(id, PassCompletedData{})))
	}
	history := p.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].PassID)
	_, ok := p.Pass("a")
	assert.False(t, ok)
}
