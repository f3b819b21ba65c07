// Package review runs review passes: it finds pull requests whose head
// changed since the last notification, asks the generator for a review and
// sends it to the chat.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abduznik/AI-PR-Analyzer/internal/dedup"
	"github.com/abduznik/AI-PR-Analyzer/internal/eventstore"
	"github.com/abduznik/AI-PR-Analyzer/internal/forge"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/llm"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
	"github.com/abduznik/AI-PR-Analyzer/internal/notify"
)

// PullRequestSource lists repositories, their open pull requests and diffs.
type PullRequestSource interface {
	Repositories(ctx context.Context) ([]forge.Repository, error)
	OpenPullRequests(ctx context.Context, repo string) ([]forge.PullRequest, error)
	Diff(ctx context.Context, pr forge.PullRequest) (string, error)
}

// Trigger describes who started a pass. Manual passes report "nothing new"
// and pass-level errors back to ChatID.
type Trigger struct {
	ChatID string
	Manual bool
}

// Name is the metrics and audit label of the trigger.
func (t Trigger) Name() string {
	if t.Manual {
		return "manual"
	}
	return "scheduled"
}

// Summary reports what one pass did.
type Summary struct {
	PassID       string        `json:"pass_id"`
	Repositories int           `json:"repositories"`
	Reviewed     int           `json:"reviewed"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Duration     time.Duration `json:"duration"`
}

// Stages recorded in ReviewFailed events.
const (
	StageListPulls = "list_pulls"
	StageDiff      = "diff"
	StageGenerate  = "generate"
	StageNotify    = "notify"
)

// Deps are the collaborators of a Runner. Events and History are optional.
type Deps struct {
	Source    PullRequestSource
	Tracker   *dedup.Tracker
	Generator llm.Generator
	Sink      notify.Sink
	Events    eventstore.Store
	History   *eventstore.PassHistoryProjection
	Recorder  metrics.Recorder
	Logger    *slog.Logger
}

// Runner executes review passes one at a time.
type Runner struct {
	mu sync.Mutex

	source      PullRequestSource
	tracker     *dedup.Tracker
	generator   llm.Generator
	sink        notify.Sink
	events      eventstore.Store
	history     *eventstore.PassHistoryProjection
	recorder    metrics.Recorder
	logger      *slog.Logger
	defaultChat string
	maxDiff     int
	newID       func() string
	now         func() time.Time
}

// NewRunner creates a Runner. defaultChat receives scheduled passes;
// maxDiffBytes bounds the diff placed in the prompt.
func NewRunner(deps Deps, defaultChat string, maxDiffBytes int) *Runner {
	r := &Runner{
		source:      deps.Source,
		tracker:     deps.Tracker,
		generator:   deps.Generator,
		sink:        deps.Sink,
		events:      deps.Events,
		history:     deps.History,
		recorder:    deps.Recorder,
		logger:      deps.Logger,
		defaultChat: defaultChat,
		maxDiff:     maxDiffBytes,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	if r.recorder == nil {
		r.recorder = metrics.NoopRecorder{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes one pass. A pass already in progress is waited for.
func (r *Runner) Run(ctx context.Context, trig Trigger) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run(ctx, trig)
}

func (r *Runner) run(ctx context.Context, trig Trigger) (Summary, error) {
	chatID := trig.ChatID
	if chatID == "" {
		chatID = r.defaultChat
	}

	p := &pass{
		Runner:  r,
		id:      r.newID(),
		trigger: trig,
		chatID:  chatID,
	}
	p.logger = r.logger.With(logfields.PassID(p.id))

	start := r.now()
	p.record(ctx, func() (*eventstore.BaseEvent, error) {
		return eventstore.NewPassStarted(p.id, trig.Name(), chatID)
	})
	p.logger.Info("Starting PR check", slog.String("trigger", trig.Name()))

	changes, err := p.scan(ctx)
	summary := p.summary
	summary.PassID = p.id
	summary.Duration = r.now().Sub(start)

	completed := eventstore.PassCompletedData{
		Repositories: summary.Repositories,
		Reviewed:     summary.Reviewed,
		Skipped:      summary.Skipped,
		Failed:       summary.Failed,
		DurationMS:   summary.Duration.Milliseconds(),
	}
	if err != nil {
		completed.Error = err.Error()
	}
	p.record(ctx, func() (*eventstore.BaseEvent, error) {
		return eventstore.NewPassCompleted(p.id, completed)
	})

	r.recorder.ObservePassDuration(trig.Name(), summary.Duration)
	r.recorder.IncPassOutcome(trig.Name(), metrics.ResultOf(err))

	if err != nil {
		p.logger.Error("Error during PR check", logfields.Error(err))
		if trig.Manual {
			p.send(ctx, notify.Message{Text: PassErrorMessage(err), Kind: notify.KindNotice})
		}
		return summary, err
	}

	if trig.Manual && !changes {
		p.send(ctx, notify.Message{Text: NoUpdatesMessage, Kind: notify.KindNotice})
	}
	p.logger.Info("PR check complete",
		slog.Int("repositories", summary.Repositories),
		slog.Int("reviewed", summary.Reviewed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		logfields.DurationMS(float64(summary.Duration.Milliseconds())))
	return summary, nil
}

type pass struct {
	*Runner
	id      string
	trigger Trigger
	chatID  string
	logger  *slog.Logger
	state   *dedup.Pass
	summary Summary
}

// scan returns whether any new change was observed.
func (p *pass) scan(ctx context.Context) (bool, error) {
	state, err := p.tracker.BeginPass(ctx)
	if err != nil {
		return false, err
	}
	p.state = state

	repos, err := p.source.Repositories(ctx)
	if err != nil {
		return false, err
	}
	p.summary.Repositories = len(repos)

	changes := false
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		p.logger.Info("Checking repository", logfields.Repository(repo.FullName))

		prs, err := p.source.OpenPullRequests(ctx, repo.FullName)
		if err != nil {
			if ctx.Err() != nil {
				return changes, ctx.Err()
			}
			p.summary.Failed++
			p.logger.Error("Failed to list pull requests",
				append(failureAttrs(err), logfields.Repository(repo.FullName))...)
			p.failed(ctx, repo.FullName, StageListPulls, err)
			continue
		}

		for _, pr := range prs {
			if err := ctx.Err(); err != nil {
				return changes, err
			}
			if pr.Repo == "" {
				pr.Repo = repo.FullName
			}
			if p.observe(ctx, pr) {
				changes = true
				p.review(ctx, pr)
			}
		}
	}
	return changes, ctx.Err()
}

// observe reports whether pr carries a change not yet notified.
func (p *pass) observe(ctx context.Context, pr forge.PullRequest) bool {
	id := dedup.WorkID{Repo: pr.Repo, Number: pr.Number}
	outcome := p.state.Observe(id, pr.HeadSHA)
	p.recorder.IncDedupOutcome(outcome.String())
	p.record(ctx, func() (*eventstore.BaseEvent, error) {
		return eventstore.NewPullRequestObserved(p.id, id.String(), pr.HeadSHA, outcome.String())
	})
	if outcome == dedup.AlreadySeen {
		p.summary.Skipped++
		return false
	}
	return true
}

func (p *pass) review(ctx context.Context, pr forge.PullRequest) {
	id := dedup.WorkID{Repo: pr.Repo, Number: pr.Number}
	log := p.logger.With(
		logfields.WorkID(id.String()),
		logfields.Repository(pr.Repo),
		logfields.PRNumber(pr.Number),
		logfields.Marker(pr.HeadSHA))

	p.send(ctx, notify.Message{Text: AnalyzingNotice(pr), Markdown: true, Kind: notify.KindNotice, WorkID: id.String()})

	diff, err := p.source.Diff(ctx, pr)
	if err != nil {
		log.Error("Failed to fetch diff", failureAttrs(err)...)
		p.fail(ctx, id, StageDiff, err)
		return
	}

	analysis, err := p.generator.Generate(ctx, BuildPrompt(pr, diff, p.maxDiff))
	if err != nil {
		log.Error("Review generation failed", failureAttrs(err)...)
		p.fail(ctx, id, StageGenerate, err)
		p.send(ctx, notify.Message{Text: FormatReview(pr, GenerationFailedMsg), Markdown: true, Kind: notify.KindNotice, WorkID: id.String()})
		return
	}

	msg := notify.Message{
		ChatID:   p.chatID,
		Text:     FormatReview(pr, analysis),
		Markdown: true,
		Kind:     notify.KindReview,
		WorkID:   id.String(),
	}
	if err := p.sink.Notify(ctx, msg); err != nil {
		log.Error("Failed to deliver review", failureAttrs(err)...)
		p.fail(ctx, id, StageNotify, err)
		return
	}

	committed := true
	if err := p.state.Commit(ctx, id, pr.HeadSHA); err != nil {
		committed = false
		p.recorder.IncStoreWriteFailure("dedup")
		log.Error("Failed to record reviewed marker", logfields.Error(err))
	}

	p.summary.Reviewed++
	p.recorder.IncReviewResult(metrics.ResultSuccess)
	p.record(ctx, func() (*eventstore.BaseEvent, error) {
		return eventstore.NewReviewNotified(p.id, id.String(), pr.HeadSHA, pr.Title, committed)
	})
	log.Info("Review delivered", slog.Bool("committed", committed))
}

func (p *pass) fail(ctx context.Context, id dedup.WorkID, stage string, err error) {
	p.summary.Failed++
	p.recorder.IncReviewResult(metrics.ResultFailed)
	p.failed(ctx, id.String(), stage, err)
}

func (p *pass) failed(ctx context.Context, workID, stage string, err error) {
	p.record(ctx, func() (*eventstore.BaseEvent, error) {
		return eventstore.NewReviewFailed(p.id, workID, stage, err)
	})
}

// failureAttrs tags err with its category and whether a collaborator caused it.
func failureAttrs(err error) []any {
	return []any{
		logfields.Error(err),
		logfields.Category(string(ferrors.GetCategory(err))),
		logfields.External(ferrors.IsExternal(err)),
	}
}

// send delivers a status message; failures are logged only.
func (p *pass) send(ctx context.Context, msg notify.Message) {
	if msg.ChatID == "" {
		msg.ChatID = p.chatID
	}
	if err := p.sink.Notify(ctx, msg); err != nil {
		p.logger.Warn("Failed to send status message", logfields.ChatID(msg.ChatID), logfields.Error(err))
	}
}

// record appends an audit event; the audit log never fails a pass.
func (p *pass) record(ctx context.Context, build func() (*eventstore.BaseEvent, error)) {
	if p.events == nil && p.history == nil {
		return
	}
	e, err := build()
	if err != nil {
		p.logger.Warn("Failed to build event", logfields.Error(err))
		return
	}
	if p.events != nil {
		if err := eventstore.Record(context.WithoutCancel(ctx), p.events, e); err != nil {
			p.logger.Warn("Failed to record event",
				slog.String("event_type", e.Type()), logfields.Error(err))
		}
	}
	if p.history != nil {
		p.history.Apply(e)
	}
}

// History returns recent pass summaries when an audit projection is configured.
func (r *Runner) History(limit int) []eventstore.PassSummary {
	if r.history == nil {
		return nil
	}
	return r.history.History(limit)
}

// LastPass returns the most recent pass summary, if any.
func (r *Runner) LastPass() (eventstore.PassSummary, bool) {
	if r.history == nil {
		return eventstore.PassSummary{}, false
	}
	return r.history.Last()
}

// ErrBusy is returned when a manual pass is requested while one is running.
var ErrBusy = ferrors.ValidationError("a review pass is already running").Build()

func (s Summary) String() string {
	return fmt.Sprintf("pass %s: %d repositories, %d reviewed, %d skipped, %d failed in %s",
		s.PassID, s.Repositories, s.Reviewed, s.Skipped, s.Failed, s.Duration.Round(time.Millisecond))
}
