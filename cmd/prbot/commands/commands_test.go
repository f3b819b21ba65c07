package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduznik/AI-PR-Analyzer/internal/dedup"
	"github.com/abduznik/AI-PR-Analyzer/internal/eventstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/memory"
)

type testEnv struct {
	dir        string
	configPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PRBOT_DATA_DIR", "")
	dir := t.TempDir()
	env := &testEnv{dir: dir, configPath: filepath.Join(dir, "prbot.yaml")}
	body := "version: \"1.0\"\nstorage:\n  data_dir: " + filepath.Join(dir, "data") + "\n  events_db: events.db\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(body), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o750))
	return env
}

func (e *testEnv) path(name string) string { return filepath.Join(e.dir, "data", name) }

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cli := &CLI{}
	g := &Global{Out: &out}

	parser, err := kong.New(cli, kong.Name("prbot"), kong.Bind(g), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(append([]string{"--config", e.configPath}, args...))
	require.NoError(t, err)
	err = kctx.Run(cli)
	return out.String(), err
}

func TestInit(t *testing.T) {
	env := newTestEnv(t)
	env.configPath = filepath.Join(env.dir, "fresh", "prbot.yaml")

	out, err := env.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote example configuration")
	assert.FileExists(t, env.configPath)

	_, err = env.run(t, "init")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	_, err = env.run(t, "init", "--force")
	require.NoError(t, err)
}

func TestSessions(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored conversations.")

	ctx := context.Background()
	store := memory.NewStore(memory.NewFile(env.path("sessions.json")))
	require.NoError(t, store.AppendTurn(ctx, "42", memory.RoleUser, "hello"))
	require.NoError(t, store.AppendTurn(ctx, "42", memory.RoleAssistant, "hi there"))
	_, err = store.SaveSnapshot(ctx, "42", "greeting")
	require.NoError(t, err)

	out, err = env.run(t, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "greeting")

	out, err = env.run(t, "sessions", "show", "42")
	require.NoError(t, err)
	assert.Contains(t, out, `"content": "hi there"`)
	assert.Contains(t, out, `"current_session"`)

	_, err = env.run(t, "sessions", "show", "7")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestDedupList(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "dedup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No reviewed pull requests recorded.")

	tracker := dedup.NewTracker(dedup.NewFile(env.path("reviewed_state.json")))
	require.NoError(t, tracker.Commit(context.Background(), dedup.WorkID{Repo: "me/app", Number: 7}, "abc123"))

	out, err = env.run(t, "dedup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "me/app#7")
	assert.Contains(t, out, "abc123")
}

func TestMigrate(t *testing.T) {
	env := newTestEnv(t)
	legacy := `{"42":[{"role":"user","content":"hi"}],"43":null}`
	require.NoError(t, os.WriteFile(env.path("sessions.json"), []byte(legacy), 0o600))

	out, err := env.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated 1 chat(s)")
	assert.Contains(t, out, "Set aside 1 unreadable chat(s)")

	out, err = env.run(t, "migrate", env.path("sessions.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "already in the current format")
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No review passes recorded.")

	store, err := eventstore.NewSQLiteStore(env.path("events.db"))
	require.NoError(t, err)
	started, err := eventstore.NewPassStarted("pass-1", "scheduled", "42")
	require.NoError(t, err)
	require.NoError(t, eventstore.Record(ctx, store, started))
	done, err := eventstore.NewPassCompleted("pass-1", eventstore.PassCompletedData{Repositories: 1, Reviewed: 1})
	require.NoError(t, err)
	require.NoError(t, eventstore.Record(ctx, store, done))
	require.NoError(t, store.Close())

	out, err = env.run(t, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "pass-1")
	assert.Contains(t, out, "scheduled")

	out, err = env.run(t, "history", "--pass", "pass-1")
	require.NoError(t, err)
	assert.Contains(t, out, eventstore.TypePassStarted)
	assert.Contains(t, out, eventstore.TypePassCompleted)

	_, err = env.run(t, "history", "--pass", "nope")
	require.Error(t, err)
}

func TestCheckRequiresCredentials(t *testing.T) {
	env := newTestEnv(t)
	for _, k := range []string{"GITHUB_TOKEN", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(k, "")
	}

	_, err := env.run(t, "check")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestInspectionLeavesDamagedFilesInPlace(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.path("sessions.json"), []byte("{broken"), 0o600))
	require.NoError(t, os.WriteFile(env.path("reviewed_state.json"), []byte("[]"), 0o600))

	out, err := env.run(t, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No stored conversations.")
	_, err = env.run(t, "sessions", "show", "42")
	require.Error(t, err)

	out, err = env.run(t, "dedup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No reviewed pull requests recorded.")

	data, err := os.ReadFile(env.path("sessions.json"))
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(data))
	data, err = os.ReadFile(env.path("reviewed_state.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	copies, err := filepath.Glob(env.path("*.corrupt-*"))
	require.NoError(t, err)
	assert.Empty(t, copies)
}
