package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/retry"
)

// UpdateSource is the subset of Client used by Poller.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// HandlerFunc processes one update. Updates are handled one at a time in
// arrival order.
type HandlerFunc func(ctx context.Context, u Update)

// Poller long-polls getUpdates and dispatches each update to a handler.
type Poller struct {
	source  UpdateSource
	handler HandlerFunc
	timeout time.Duration
	backoff retry.Policy
	logger  *slog.Logger
	offset  int64
	sleep   func(context.Context, time.Duration) error
}

// NewPoller creates a poller; timeout is the server-side long-poll window.
func NewPoller(source UpdateSource, handler HandlerFunc, timeout time.Duration, backoff retry.Policy, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{
		source:  source,
		handler: handler,
		timeout: timeout,
		backoff: backoff,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run polls until ctx is canceled. Transport failures are logged and
// retried with growing delays; they never end the loop.
func (p *Poller) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		updates, err := p.source.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			delay := p.backoff.Delay(failures)
			if delay <= 0 {
				delay = time.Second
			}
			p.logger.Warn("Polling updates failed",
				logfields.Attempt(failures), logfields.Error(err))
			if err := p.sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}
		failures = 0

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.handler(ctx, u)
		}
	}
}

// Offset returns the next update id the poller will ask for.
func (p *Poller) Offset() int64 { return p.offset }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
