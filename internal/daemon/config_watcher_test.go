package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduznik/AI-PR-Analyzer/internal/config"
)

const watchedConfig = `
version: "1.0"
github:
  token: gh
  target_repos: [me/app]
telegram:
  token: tg
  chat_id: "42"
llm:
  api_key: key
schedule:
  cron: "%s"
`

type reloadRecorder struct {
	mu   sync.Mutex
	seen []*config.Config
}

func (r *reloadRecorder) apply(_ context.Context, cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, cfg)
	return nil
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func writeWatched(t *testing.T, path, cron string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(watchedConfig, cron)), 0o600))
}

func newTestWatcher(t *testing.T, rec *reloadRecorder) (*ConfigWatcher, string) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{"GITHUB_TOKEN", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "TARGET_REPOS"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "prbot.yaml")
	writeWatched(t, path, "0 7 * * *")

	w, err := NewConfigWatcher(path, rec.apply, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	w.debounceTime = 20 * time.Millisecond
	return w, path
}

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	rec := &reloadRecorder{}
	w, path := newTestWatcher(t, rec)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	writeWatched(t, path, "30 9 * * *")

	require.Eventually(t, func() bool { return rec.count() > 0 }, 3*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	got := rec.seen[len(rec.seen)-1]
	rec.mu.Unlock()
	assert.Equal(t, "30 9 * * *", got.Schedule.Cron)
}

func TestConfigWatcherSkipsInvalidConfig(t *testing.T) {
	rec := &reloadRecorder{}
	w, path := newTestWatcher(t, rec)

	writeWatched(t, path, "not a cron")
	require.Error(t, w.performReload(context.Background()))
	assert.Zero(t, rec.count())

	writeWatched(t, path, "0 8 * * *")
	require.NoError(t, w.performReload(context.Background()))
	assert.Equal(t, 1, rec.count())
}

func TestConfigWatcherStopIsIdempotent(t *testing.T) {
	w, _ := newTestWatcher(t, &reloadRecorder{})
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Stop(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
}
