// Package daemon wires the review runner, the chat assistant, the scheduler
// and the admin API into one long-running service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/abduznik/AI-PR-Analyzer/internal/api"
	"github.com/abduznik/AI-PR-Analyzer/internal/assistant"
	"github.com/abduznik/AI-PR-Analyzer/internal/config"
	"github.com/abduznik/AI-PR-Analyzer/internal/dedup"
	"github.com/abduznik/AI-PR-Analyzer/internal/eventstore"
	"github.com/abduznik/AI-PR-Analyzer/internal/forge"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/llm"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/memory"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
	"github.com/abduznik/AI-PR-Analyzer/internal/notify"
	"github.com/abduznik/AI-PR-Analyzer/internal/retry"
	"github.com/abduznik/AI-PR-Analyzer/internal/review"
	"github.com/abduznik/AI-PR-Analyzer/internal/telegram"
	"github.com/abduznik/AI-PR-Analyzer/internal/version"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const (
	reviewJobName   = "review-pass"
	historySize     = 100
	shutdownTimeout = 30 * time.Second

	githubRequestTimeout = 30 * time.Second
	telegramRequestSlack = 10 * time.Second
)

// Daemon is the prbot service.
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
	status     atomic.Value // Status
	startTime  time.Time
	stopCtx    context.Context
	stop       context.CancelFunc
	mu         sync.RWMutex

	registry  *prometheus.Registry
	recorder  metrics.Recorder
	github    *forge.GitHubClient
	bot       *telegram.Client
	tracker   *dedup.Tracker
	memory    *memory.Store
	events    eventstore.Store
	history   *eventstore.PassHistoryProjection
	sink      *notify.Multi
	runner    *review.Runner
	assistant *assistant.Handler
	poller    *telegram.Poller
	scheduler *Scheduler
	reviewJob string
	watcher   *ConfigWatcher
	admin     *api.Server
	adminLn   net.Listener

	workers  WorkerGroup
	checking atomic.Bool
	closed   atomic.Bool
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithConfigPath enables hot reload of the given configuration file.
func WithConfigPath(path string) Option { return func(d *Daemon) { d.configPath = path } }

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// New builds every store and collaborator once from cfg. cfg must be valid.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}

	d := &Daemon{
		config:   cfg,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.stopCtx, d.stop = context.WithCancel(context.Background())
	d.workers.logger = d.logger
	d.status.Store(StatusStopped)
	d.recorder = metrics.NewPrometheusRecorder(d.registry)

	if err := d.build(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build(ctx context.Context) error {
	cfg := d.config
	logger := d.logger

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return ferrors.StorageWriteError("failed to create data directory").
			WithCause(err).
			WithContext("path", cfg.Storage.DataDir).
			Build()
	}

	gh, err := forge.NewGitHubClient(cfg.GitHub.APIURL, cfg.GitHub.Token,
		forge.WithHTTPClient(&http.Client{Timeout: githubRequestTimeout}),
		forge.WithLogger(logger),
		forge.WithMaxRepositories(cfg.GitHub.MaxRepositories),
		forge.WithMaxDiffBytes(cfg.GitHub.MaxDiffBytes),
		forge.WithSelection(selectionOf(cfg.GitHub)))
	if err != nil {
		return err
	}
	d.github = gh

	// getUpdates holds the request open for PollTimeout.
	bot, err := telegram.NewClient(cfg.Telegram.Token,
		telegram.WithAPIURL(cfg.Telegram.APIURL),
		telegram.WithHTTPClient(&http.Client{Timeout: cfg.Telegram.PollTimeout + telegramRequestSlack}),
		telegram.WithLogger(logger))
	if err != nil {
		return err
	}
	d.bot = bot

	gen, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}
	generator := llm.Instrument(gen, d.recorder, logger)

	d.tracker = dedup.NewTracker(dedup.NewFile(cfg.Storage.DedupPath()), dedup.WithLogger(logger))
	d.memory = memory.NewStore(memory.NewFile(cfg.Storage.SessionPath()),
		memory.WithMaxTurns(cfg.Memory.MaxTurns),
		memory.WithContextTurns(cfg.Memory.ContextTurns),
		memory.WithLogger(logger))

	if path := cfg.Storage.EventsPath(); path != "" {
		store, err := eventstore.NewSQLiteStore(path)
		if err != nil {
			return err
		}
		d.events = store
		d.history = eventstore.NewPassHistoryProjection(store, historySize)
		if err := d.history.Rebuild(ctx); err != nil {
			logger.Warn("Failed to rebuild pass history", logfields.Error(err))
		}
	}

	policy := retry.FromConfig(cfg.Retry)
	primary := notify.NewTelegramSink(bot, cfg.Telegram.ChatID,
		notify.WithRetryPolicy(policy), notify.WithRecorder(d.recorder), notify.WithLogger(logger))
	var mirrors []notify.Sink
	if cfg.Events.NATSURL != "" {
		natsSink, err := notify.NewNATSSink(ctx, notify.NATSOptions{
			URL:      cfg.Events.NATSURL,
			Stream:   cfg.Events.Stream,
			Subject:  cfg.Events.Subject,
			Recorder: d.recorder,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		mirrors = append(mirrors, natsSink)
	}
	d.sink = notify.NewMulti(logger, primary, mirrors...)

	d.runner = review.NewRunner(review.Deps{
		Source:    gh,
		Tracker:   d.tracker,
		Generator: generator,
		Sink:      d.sink,
		Events:    d.events,
		History:   d.history,
		Recorder:  d.recorder,
		Logger:    logger,
	}, cfg.Telegram.ChatID, cfg.GitHub.MaxDiffBytes)

	d.assistant = assistant.NewHandler(d.memory, generator, d.sink,
		assistant.WithIssueSource(gh),
		assistant.WithIssueLimits(cfg.GitHub.IssueLookupRepos, cfg.GitHub.MaxIssues),
		assistant.WithChatActions(bot),
		assistant.WithChecker(d),
		assistant.WithRecorder(d.recorder),
		assistant.WithLogger(logger),
		assistant.WithSchedule(cfg.Schedule.Cron))

	d.poller = telegram.NewPoller(bot, d.assistant.HandleUpdate, cfg.Telegram.PollTimeout, policy, logger)

	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return ferrors.ConfigError("invalid schedule timezone").WithCause(err).Build()
	}
	d.scheduler, err = NewScheduler(loc, logger)
	if err != nil {
		return ferrors.DaemonError("failed to create scheduler").WithCause(err).Build()
	}

	d.admin = api.NewServer(cfg.Monitoring.AdminAddr, d, d.registry, logger)
	return nil
}

// Start launches the admin server, scheduler, Telegram poller, config
// watcher and startup notice. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.GetStatus() != StatusStopped {
		return ferrors.DaemonError(fmt.Sprintf("daemon is not in stopped state: %s", d.GetStatus())).Build()
	}
	d.status.Store(StatusStarting)
	d.startTime = time.Now()
	d.logger.Info("Starting prbot daemon", slog.String("version", version.Get().Version))

	if d.config.Monitoring.AdminAddr != "" {
		ln, err := net.Listen("tcp", d.config.Monitoring.AdminAddr)
		if err != nil {
			d.status.Store(StatusError)
			return ferrors.DaemonError("failed to listen on admin address").
				WithCause(err).
				WithContext("addr", d.config.Monitoring.AdminAddr).
				Build()
		}
		d.adminLn = ln
		d.workers.Go("admin-http", func() {
			if err := d.admin.Serve(ln); err != nil {
				d.logger.Error("Admin server failed", logfields.Error(err))
			}
		})
	}

	id, err := d.scheduler.ScheduleCron(reviewJobName, d.config.Schedule.Cron, d.scheduledPass)
	if err != nil {
		d.status.Store(StatusError)
		return ferrors.ConfigError("invalid review schedule").WithCause(err).Build()
	}
	d.reviewJob = id
	d.scheduler.Start()

	pollCtx, cancelPoll := d.stopAwareContext(ctx)
	if !d.workers.Go("telegram-poller", func() {
		defer cancelPoll()
		if err := d.poller.Run(pollCtx); err != nil {
			d.logger.Error("Telegram poller stopped", logfields.Error(err))
		}
	}) {
		cancelPoll()
	}

	if d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, d.ReloadConfig, d.logger)
		if err != nil {
			d.logger.Error("Failed to create config watcher", logfields.Error(err))
		} else if err := w.Start(ctx); err != nil {
			d.logger.Error("Failed to start config watcher", logfields.Error(err))
		} else {
			d.watcher = w
		}
	}

	if d.config.Telegram.NoticeEnabled() {
		noticeCtx, cancelNotice := d.stopAwareContext(ctx)
		if !d.workers.Go("startup-notice", func() {
			defer cancelNotice()
			d.sendStartupNotice(noticeCtx)
		}) {
			cancelNotice()
		}
	}

	d.status.Store(StatusRunning)
	next, _ := d.scheduler.NextRun()
	d.logger.Info("prbot daemon started",
		slog.String("admin_addr", d.AdminAddr()),
		slog.String("cron", d.config.Schedule.Cron),
		slog.Time("next_run", next),
		slog.Int("target_repos", len(d.config.GitHub.TargetRepos)))
	return nil
}

// Run starts the daemon and blocks until ctx is done or Stop is called, then
// shuts down within a bounded time.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		d.Close()
		return err
	}
	select {
	case <-ctx.Done():
	case <-d.stopCtx.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return d.Stop(stopCtx)
}

// Stop shuts everything down, bounded by ctx, and releases stores and connections.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.GetStatus()
	if current == StatusStopped || current == StatusStopping {
		return nil
	}
	d.status.Store(StatusStopping)
	d.logger.Info("Stopping prbot daemon")

	d.stop()

	var errs []error
	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.scheduler.Stop(); err != nil {
		d.logger.Error("Failed to stop scheduler", logfields.Error(err))
	}
	if d.adminLn != nil {
		if err := d.admin.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.workers.StopAndWait(ctx); err != nil {
		d.logger.Warn("Workers did not stop in time", logfields.Error(err))
		errs = append(errs, err)
	}

	d.Close()
	d.status.Store(StatusStopped)
	d.logger.Info("prbot daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return errors.Join(errs...)
}

// Close releases the event store and sink connections. It is safe to call
// more than once and does not require Start.
func (d *Daemon) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			d.logger.Error("Failed to close notification sinks", logfields.Error(err))
		}
	}
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			d.logger.Error("Failed to close event store", logfields.Error(err))
		}
	}
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// AdminAddr is the address the admin server listens on, or "".
func (d *Daemon) AdminAddr() string {
	if d.adminLn == nil {
		return ""
	}
	return d.adminLn.Addr().String()
}

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Check runs one review pass synchronously on the default chat.
func (d *Daemon) Check(ctx context.Context) (review.Summary, error) {
	return d.runner.Run(ctx, review.Trigger{})
}

// TriggerCheck starts a manual pass in the background. It fails when a
// manual pass is already running or the daemon is stopping.
func (d *Daemon) TriggerCheck(_ context.Context, chatID string) error {
	if !d.checking.CompareAndSwap(false, true) {
		return review.ErrBusy
	}
	started := d.workers.Go("manual-check", func() {
		defer d.checking.Store(false)
		ctx, cancel := d.stopAwareContext(context.Background())
		defer cancel()
		d.runPass(ctx, review.Trigger{ChatID: chatID, Manual: true})
	})
	if !started {
		d.checking.Store(false)
		return ferrors.DaemonError("daemon is stopping").Build()
	}
	return nil
}

// stopAwareContext derives a context from parent that Stop also cancels.
// Scheduled tasks and chat-triggered passes have no caller context of their own.
func (d *Daemon) stopAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	unregister := context.AfterFunc(d.stopCtx, cancel)
	return ctx, func() {
		unregister()
		cancel()
	}
}

func (d *Daemon) runPass(ctx context.Context, trig review.Trigger) {
	summary, err := d.runner.Run(ctx, trig)
	if err != nil {
		return
	}
	d.logger.Debug("Review pass finished", slog.String("summary", summary.String()))
}

// History implements api.Backend.
func (d *Daemon) History(limit int) []eventstore.PassSummary {
	return d.runner.History(limit)
}

// Pass implements api.Backend.
func (d *Daemon) Pass(id string) (eventstore.PassSummary, bool) {
	if d.history == nil {
		return eventstore.PassSummary{}, false
	}
	return d.history.Pass(id)
}

// Status implements api.Backend.
func (d *Daemon) Status() api.Status {
	cfg := d.GetConfig()
	st := api.Status{
		State:          string(d.GetStatus()),
		Version:        version.Get().Version,
		StartedAt:      d.startTime,
		Checking:       d.checking.Load(),
		TargetRepos:    slices.Clone(cfg.GitHub.TargetRepos),
		IncludePrivate: cfg.GitHub.IncludePrivate,
	}
	if !d.startTime.IsZero() {
		st.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}
	if next, ok := d.scheduler.NextRun(); ok {
		st.NextRun = &next
	}
	if last, ok := d.runner.LastPass(); ok {
		st.LastPass = &last
	}
	return st
}

// ReloadConfig applies the parts of newConfig that can change at runtime:
// repository selection and the review schedule. Other changes are logged and
// take effect on restart.
func (d *Daemon) ReloadConfig(_ context.Context, newConfig *config.Config) error {
	d.mu.Lock()
	old := d.config
	d.config = newConfig
	d.mu.Unlock()

	d.github.SetSelection(selectionOf(newConfig.GitHub))
	d.logger.Info("Repository selection updated",
		slog.Int("target_repos", len(newConfig.GitHub.TargetRepos)),
		slog.Bool("include_private", newConfig.GitHub.IncludePrivate))

	if newConfig.Schedule.Cron != old.Schedule.Cron && d.GetStatus() == StatusRunning {
		id, err := d.scheduler.ScheduleCron(reviewJobName, newConfig.Schedule.Cron, d.scheduledPass)
		if err != nil {
			return err
		}
		if err := d.scheduler.Remove(d.reviewJob); err != nil {
			d.logger.Warn("Failed to remove previous review job", logfields.ScheduleID(d.reviewJob), logfields.Error(err))
		}
		d.reviewJob = id
	}

	for _, field := range restartOnlyChanges(old, newConfig) {
		d.logger.Warn("Configuration change requires restart", slog.String("field", field))
	}
	return nil
}

func restartOnlyChanges(old, cur *config.Config) []string {
	var changed []string
	check := func(field string, differs bool) {
		if differs {
			changed = append(changed, field)
		}
	}
	check("github.token", old.GitHub.Token != cur.GitHub.Token)
	check("github.api_url", old.GitHub.APIURL != cur.GitHub.APIURL)
	check("telegram.token", old.Telegram.Token != cur.Telegram.Token)
	check("telegram.chat_id", old.Telegram.ChatID != cur.Telegram.ChatID)
	check("llm", old.LLM != cur.LLM)
	check("schedule.timezone", old.Schedule.Timezone != cur.Schedule.Timezone)
	check("storage", old.Storage != cur.Storage)
	check("memory", old.Memory != cur.Memory)
	check("events", old.Events != cur.Events)
	check("monitoring.admin_addr", old.Monitoring.AdminAddr != cur.Monitoring.AdminAddr)
	return changed
}

func selectionOf(gh config.GitHubConfig) forge.Selection {
	return forge.Selection{TargetRepos: slices.Clone(gh.TargetRepos), IncludePrivate: gh.IncludePrivate}
}
