package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduznik/AI-PR-Analyzer/internal/docstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

func newStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	return NewStore(NewFile(path), opts...), path
}

func TestSnapshotExample(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.AppendTurn(ctx, "7", RoleUser, "hi"))
	out, err := s.SaveSnapshot(ctx, "7", "greet")
	require.NoError(t, err)
	assert.Equal(t, Ok, out)
	require.NoError(t, s.AppendTurn(ctx, "7", RoleUser, "bye"))

	out, err = s.LoadSnapshot(ctx, "7", "greet")
	require.NoError(t, err)
	assert.Equal(t, Ok, out)

	sess, ok, err := s.History(ctx, "7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "hi"}}, sess.Current)
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "hi"}}, sess.Saved["greet"])
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, "one"))
	_, err := s.SaveSnapshot(ctx, "c", "a")
	require.NoError(t, err)
	_, err = s.SaveSnapshot(ctx, "c", "b")
	require.NoError(t, err)

	require.NoError(t, s.AppendTurn(ctx, "c", RoleAssistant, "two"))
	_, err = s.RemoveSnapshot(ctx, "c", "b")
	require.NoError(t, err)

	sess, _, err := s.History(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "one"}}, sess.Saved["a"])
	assert.NotContains(t, sess.Saved, "b")

	// Mutating a returned copy never leaks into the store.
	sess.Saved["a"][0].Content = "changed"
	again, _, err := s.History(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "one", again.Saved["a"][0].Content)
}

func TestTrimmingBound(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for i := range 45 {
		require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, fmt.Sprintf("m%d", i)))
	}
	sess, _, err := s.History(ctx, "c")
	require.NoError(t, err)
	require.Len(t, sess.Current, DefaultMaxTurns)
	assert.Equal(t, "m25", sess.Current[0].Content)
	assert.Equal(t, "m44", sess.Current[DefaultMaxTurns-1].Content)

	turns, err := s.Context(ctx, "c")
	require.NoError(t, err)
	require.Len(t, turns, DefaultContextTurns)
	assert.Equal(t, "m35", turns[0].Content)
}

func TestConfigurableBounds(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, WithMaxTurns(3), WithContextTurns(2))

	for _, m := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, m))
	}
	sess, _, err := s.History(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, sess.Current, 3)

	turns, err := s.Context(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []Turn{{Role: RoleUser, Content: "c"}, {Role: RoleUser, Content: "d"}}, turns)
}

func TestNotFoundOutcomes(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	out, err := s.ClearCurrent(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)

	out, err = s.WipeAll(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)

	out, err = s.SaveSnapshot(ctx, "ghost", "x")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)

	require.NoError(t, s.AppendTurn(ctx, "real", RoleUser, "hi"))
	out, err = s.LoadSnapshot(ctx, "real", "missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)

	out, err = s.RemoveSnapshot(ctx, "real", "missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, out)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Contains(t, sessions, "real")
}

func TestClearAndWipe(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, "hi"))
	_, err := s.SaveSnapshot(ctx, "c", "keep")
	require.NoError(t, err)

	out, err := s.ClearCurrent(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, Ok, out)

	turns, err := s.Context(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, turns)
	names, err := s.ListSnapshots(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names)

	out, err = s.WipeAll(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, Ok, out)
	_, ok, err := s.History(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListSnapshotsSorted(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, "hi"))
	for _, n := range []string{"zeta", "alpha", "mid"} {
		_, err := s.SaveSnapshot(ctx, "c", n)
		require.NoError(t, err)
	}
	names, err := s.ListSnapshots(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	err := s.AppendTurn(ctx, "c", Role("system"), "x")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	require.Error(t, s.AppendTurn(ctx, "", RoleUser, "x"))
	require.Error(t, s.AppendTurn(ctx, " c", RoleUser, "x"))

	require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, "x"))
	_, err = s.SaveSnapshot(ctx, "c", "")
	require.Error(t, err)
	_, err = s.SaveSnapshot(ctx, "c", strings.Repeat("n", MaxSnapshotName+1))
	require.Error(t, err)
	_, err = s.SaveSnapshot(ctx, "c", strings.Repeat("n", MaxSnapshotName))
	require.NoError(t, err)
}

func TestConcurrentChatsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AppendTurn(ctx, fmt.Sprintf("chat-%d", i), RoleUser, "hi"))
		}(i)
	}
	wg.Wait()

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 10)
}

func TestRoundTripKeepsDocument(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)
	require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, "hi"))
	require.NoError(t, s.AppendTurn(ctx, "c", RoleAssistant, "hello"))
	_, err := s.SaveSnapshot(ctx, "c", "x")
	require.NoError(t, err)

	f := NewFile(path)
	first, err := f.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx, first))
	second, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAppendTurnsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t, WithMaxTurns(3))

	require.NoError(t, s.AppendTurn(ctx, "c", RoleUser, "one"))
	require.NoError(t, s.AppendTurn(ctx, "c", RoleAssistant, "two"))

	err := s.AppendTurns(ctx, "c", Turn{Role: RoleUser, Content: "three"}, Turn{Role: Role("system"), Content: "x"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	sess, _, err := s.History(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, sess.Current, 2, "a rejected batch stores nothing")

	require.NoError(t, s.AppendTurns(ctx, "c",
		Turn{Role: RoleUser, Content: "three"},
		Turn{Role: RoleAssistant, Content: "four"}))
	sess, _, err = s.History(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: RoleAssistant, Content: "two"},
		{Role: RoleUser, Content: "three"},
		{Role: RoleAssistant, Content: "four"},
	}, sess.Current)

	t.Run("failed write stores neither turn", func(t *testing.T) {
		ro := NewStore(NewFile(path, docstore.ReadOnly()))
		require.Error(t, ro.AppendTurns(ctx, "c",
			Turn{Role: RoleUser, Content: "five"},
			Turn{Role: RoleAssistant, Content: "six"}))

		sess, _, err := s.History(ctx, "c")
		require.NoError(t, err)
		assert.Len(t, sess.Current, 3)
		assert.Equal(t, "four", sess.Current[2].Content)
	})
}
