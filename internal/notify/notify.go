// Package notify delivers review results and chat replies to their sinks.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

// Kind labels what a message carries; event sinks publish it as a subject suffix.
type Kind string

const (
	KindReview Kind = "review"
	KindNotice Kind = "notice"
	KindReply  Kind = "reply"
)

// Message is one outgoing chat message.
type Message struct {
	ChatID   string
	Text     string
	Markdown bool
	Kind     Kind
	// WorkID is set for review messages ("owner/repo#n").
	WorkID string
}

// Sink delivers messages.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi sends every message to a primary sink and a set of mirrors. Only the
// primary's failure is returned; mirror failures are logged.
type Multi struct {
	primary Sink
	mirrors []Sink
	logger  *slog.Logger
}

// NewMulti fans out to primary and mirrors. Nil mirrors are ignored.
func NewMulti(logger *slog.Logger, primary Sink, mirrors ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{primary: primary, logger: logger}
	for _, s := range mirrors {
		if s != nil {
			m.mirrors = append(m.mirrors, s)
		}
	}
	return m
}

// Notify implements Sink.
func (m *Multi) Notify(ctx context.Context, msg Message) error {
	err := m.primary.Notify(ctx, msg)
	if err != nil && msg.Kind == KindReview {
		// Mirrors only see reviews that reached the chat.
		return err
	}
	for _, s := range m.mirrors {
		if merr := s.Notify(ctx, msg); merr != nil {
			m.logger.Warn("Mirror notification failed",
				logfields.ChatID(msg.ChatID), logfields.Error(merr))
		}
	}
	return err
}

// Close closes every sink that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range append([]Sink{m.primary}, m.mirrors...) {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
