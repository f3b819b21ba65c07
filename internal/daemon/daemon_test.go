package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abduznik/AI-PR-Analyzer/internal/config"
	"github.com/abduznik/AI-PR-Analyzer/internal/review"
	"github.com/abduznik/AI-PR-Analyzer/internal/telegram"
)

// fakeTelegram answers Bot API calls and records sent texts.
type fakeTelegram struct {
	mu      sync.Mutex
	sent    []string
	deleted int
}

func (f *fakeTelegram) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			select {
			case <-r.Context().Done():
			case <-time.After(50 * time.Millisecond):
			}
			_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var req struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(body, &req)
			f.mu.Lock()
			f.sent = append(f.sent, req.Text)
			f.mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":11,"chat":{"id":42,"type":"private"},"date":0,"text":"ok"}}`)
		case strings.HasSuffix(r.URL.Path, "/deleteMessage"):
			f.mu.Lock()
			f.deleted++
			f.mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		default:
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		}
	})
}

func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/me/app", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id":1,"name":"app","full_name":"me/app","owner":{"login":"me"},"private":false}`)
	})
	mux.HandleFunc("/repos/me/app/pulls", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, tgURL, ghURL string) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.GitHub.Token = "gh-token"
	cfg.GitHub.APIURL = ghURL
	cfg.GitHub.TargetRepos = []string{"me/app"}
	cfg.Telegram.Token = "tg-token"
	cfg.Telegram.ChatID = "42"
	cfg.Telegram.APIURL = tgURL
	cfg.Telegram.PollTimeout = time.Second
	cfg.Telegram.StartupNoticeTTL = 10 * time.Millisecond
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.APIKey = "llm-key"
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.EventsDB = "events.db"
	cfg.Events.NATSURL = ""
	cfg.Monitoring.AdminAddr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestDaemon(t *testing.T) (*Daemon, *fakeTelegram) {
	t.Helper()
	tg := &fakeTelegram{}
	tgSrv := httptest.NewServer(tg.handler())
	t.Cleanup(tgSrv.Close)
	gh := fakeGitHub(t)

	d, err := New(context.Background(), testConfig(t, tgSrv.URL, gh.URL),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	return d, tg
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	d, tg := newTestDaemon(t)
	require.NoError(t, d.Start(context.Background()))

	assert.Equal(t, StatusRunning, d.GetStatus())
	require.Error(t, d.Start(context.Background()), "second start must fail")

	st := d.Status()
	assert.Equal(t, "running", st.State)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, []string{"me/app"}, st.TargetRepos)

	resp, err := http.Get("http://" + d.AdminAddr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		tg.mu.Lock()
		defer tg.mu.Unlock()
		return tg.deleted > 0
	}, 2*time.Second, 10*time.Millisecond, "startup notice should be retracted")
	assert.Contains(t, tg.texts(), startupNoticeText)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, StatusStopped, d.GetStatus())
	require.NoError(t, d.Stop(ctx), "stop is idempotent")
}

func TestDaemonCheck(t *testing.T) {
	d, tg := newTestDaemon(t)
	t.Cleanup(d.Close)

	summary, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Repositories)
	assert.Zero(t, summary.Reviewed)
	assert.Empty(t, tg.texts(), "scheduled pass with nothing new stays silent")

	history := d.History(10)
	require.Len(t, history, 1)
	assert.Equal(t, "completed", history[0].Status)

	pass, ok := d.Pass(history[0].PassID)
	require.True(t, ok)
	assert.Equal(t, history[0].PassID, pass.PassID)
}

func TestTriggerCheck(t *testing.T) {
	d, tg := newTestDaemon(t)
	t.Cleanup(d.Close)

	d.checking.Store(true)
	require.ErrorIs(t, d.TriggerCheck(context.Background(), "42"), review.ErrBusy)
	d.checking.Store(false)

	require.NoError(t, d.TriggerCheck(context.Background(), "42"))
	require.Eventually(t, func() bool { return !d.checking.Load() }, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, strings.Join(tg.texts(), "\n"), "No new PR updates")

	require.NoError(t, d.workers.StopAndWait(context.Background()))
	require.Error(t, d.TriggerCheck(context.Background(), "42"))
	assert.False(t, d.checking.Load())
}

func TestReloadConfig(t *testing.T) {
	d, _ := newTestDaemon(t)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	oldJob := d.reviewJob
	next := *d.GetConfig()
	next.GitHub.TargetRepos = []string{"me/other"}
	next.GitHub.IncludePrivate = true
	next.Schedule.Cron = "30 9 * * *"
	require.NoError(t, d.ReloadConfig(context.Background(), &next))

	assert.Equal(t, []string{"me/other"}, d.github.Selection().TargetRepos)
	assert.True(t, d.github.Selection().IncludePrivate)
	assert.NotEqual(t, oldJob, d.reviewJob)
	assert.Len(t, d.scheduler.scheduler.Jobs(), 1)

	bad := next
	bad.Schedule.Cron = "not a cron"
	require.Error(t, d.ReloadConfig(context.Background(), &bad))
}

func TestRestartOnlyChanges(t *testing.T) {
	old := &config.Config{}
	cur := &config.Config{}
	cur.Telegram.ChatID = "7"
	cur.LLM.Model = "gpt-4o"
	cur.GitHub.TargetRepos = []string{"me/app"}

	assert.Equal(t, []string{"telegram.chat_id", "llm"}, restartOnlyChanges(old, cur))
}

type fakeNoticeClient struct {
	sendErr error
	deleted []int64
}

func (f *fakeNoticeClient) SendMessage(_ context.Context, _, _, _ string) (telegram.Message, error) {
	if f.sendErr != nil {
		return telegram.Message{}, f.sendErr
	}
	return telegram.Message{MessageID: 5}, nil
}

func (f *fakeNoticeClient) DeleteMessage(_ context.Context, _ string, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestPostStartupNotice(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("deletes after ttl", func(t *testing.T) {
		c := &fakeNoticeClient{}
		postStartupNotice(context.Background(), c, "42", time.Millisecond, logger)
		assert.Equal(t, []int64{5}, c.deleted)
	})

	t.Run("deletes on shutdown", func(t *testing.T) {
		c := &fakeNoticeClient{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		postStartupNotice(ctx, c, "42", time.Hour, logger)
		assert.Equal(t, []int64{5}, c.deleted)
	})

	t.Run("send failure", func(t *testing.T) {
		c := &fakeNoticeClient{sendErr: assert.AnError}
		postStartupNotice(context.Background(), c, "42", time.Millisecond, logger)
		assert.Empty(t, c.deleted)
	})
}
