// Package llm wraps the hosted text generators used for PR reviews and chat replies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/config"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
)

// Role of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior exchange or the current request.
type Message struct {
	Role    Role
	Content string
}

// Prompt is a provider-neutral generation request. System is optional.
type Prompt struct {
	System   string
	Messages []Message
}

// UserPrompt builds a single-message prompt.
func UserPrompt(text string) Prompt {
	return Prompt{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Named is implemented by generators that report their provider and model.
type Named interface {
	Provider() string
	Model() string
}

// New builds the generator selected by cfg.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAI(cfg)
	case config.ProviderAnthropic:
		return NewAnthropic(cfg)
	default:
		return nil, ferrors.ConfigError(fmt.Sprintf("unknown llm provider: %s", cfg.Provider)).Build()
	}
}

// Instrumented records duration and outcome of every call on the wrapped
// generator. Errors it returns are always classified.
type Instrumented struct {
	next     Generator
	recorder metrics.Recorder
	logger   *slog.Logger
	provider string
	model    string
}

// Instrument wraps g with metrics and logging.
func Instrument(g Generator, recorder metrics.Recorder, logger *slog.Logger) *Instrumented {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	in := &Instrumented{next: g, recorder: recorder, logger: logger, provider: "unknown"}
	if n, ok := g.(Named); ok {
		in.provider = n.Provider()
		in.model = n.Model()
	}
	return in
}

// Generate implements Generator.
func (i *Instrumented) Generate(ctx context.Context, p Prompt) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, p)
	elapsed := time.Since(start)

	i.recorder.ObserveGeneratorDuration(i.provider, elapsed, metrics.ResultOf(err))
	attrs := []any{
		logfields.Provider(i.provider),
		logfields.Model(i.model),
		logfields.DurationMS(float64(elapsed.Milliseconds())),
	}
	if err != nil {
		if !ferrors.IsClassified(err) {
			err = ferrors.GeneratorError(fmt.Sprintf("%s generation failed", i.provider)).
				WithCause(err).
				WithContext("provider", i.provider).
				Build()
		}
		i.logger.Error("Generation failed", append(attrs, logfields.Error(err))...)
		return "", err
	}
	i.logger.Debug("Generation complete", attrs...)
	return out, nil
}

// classify maps an SDK failure to a classified generator error.
func classify(provider string, status int, err error) error {
	msg := fmt.Sprintf("%s request failed", provider)
	var b *ferrors.ErrorBuilder
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		b = ferrors.AuthError(msg)
	case status == http.StatusTooManyRequests:
		b = ferrors.GeneratorError(msg).RateLimit()
	case status >= 400 && status < 500:
		b = ferrors.GeneratorError(msg).WithRetry(ferrors.RetryNever)
	default:
		b = ferrors.GeneratorError(msg)
	}
	if status != 0 {
		b = b.WithContext("code", status)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		b = b.WithRetry(ferrors.RetryNever)
	}
	return b.WithCause(err).WithContext("provider", provider).Build()
}

func emptyResponse(provider string) error {
	return ferrors.GeneratorError(fmt.Sprintf("%s returned an empty response", provider)).
		WithContext("provider", provider).
		Build()
}

// normalizeMessages drops blank messages, merges consecutive messages of the
// same role and removes leading assistant turns so the conversation starts
// with the user.
func normalizeMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role != RoleAssistant {
			m.Role = RoleUser
		}
		if len(out) == 0 && m.Role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
