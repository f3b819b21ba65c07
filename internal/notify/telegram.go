package notify

import (
	"context"
	"log/slog"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/markdown"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
	"github.com/abduznik/AI-PR-Analyzer/internal/retry"
	"github.com/abduznik/AI-PR-Analyzer/internal/telegram"
)

const sinkTelegram = "telegram"

// Sender is the part of telegram.Client the sink needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text, parseMode string) (telegram.Message, error)
}

// TelegramSink sends messages to a Telegram chat. Markdown messages whose
// entities Telegram cannot parse are resent once as plain text.
type TelegramSink struct {
	sender      Sender
	defaultChat string
	policy      retry.Policy
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// TelegramOption configures a TelegramSink.
type TelegramOption func(*TelegramSink)

// WithRetryPolicy sets the per-send retry policy.
func WithRetryPolicy(p retry.Policy) TelegramOption {
	return func(s *TelegramSink) { s.policy = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) TelegramOption {
	return func(s *TelegramSink) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the sink logger.
func WithLogger(l *slog.Logger) TelegramOption {
	return func(s *TelegramSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTelegramSink creates a sink; messages without a chat id go to defaultChat.
func NewTelegramSink(sender Sender, defaultChat string, opts ...TelegramOption) *TelegramSink {
	s := &TelegramSink{
		sender:      sender,
		defaultChat: defaultChat,
		policy:      retry.DefaultPolicy(),
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify implements Sink. Long texts are split into several messages.
func (s *TelegramSink) Notify(ctx context.Context, msg Message) error {
	chatID := msg.ChatID
	if chatID == "" {
		chatID = s.defaultChat
	}
	if chatID == "" {
		return ferrors.ValidationError("no chat id for notification").Build()
	}

	var err error
	for _, chunk := range telegram.SplitMessage(msg.Text, telegram.MaxMessageLength) {
		if err = s.sendChunk(ctx, chatID, chunk, msg.Markdown); err != nil {
			break
		}
	}
	s.recorder.IncNotifyResult(sinkTelegram, metrics.ResultOf(err))
	return err
}

func (s *TelegramSink) sendChunk(ctx context.Context, chatID, text string, md bool) error {
	if !md {
		return s.send(ctx, chatID, text, "")
	}

	err := s.send(ctx, chatID, text, telegram.ParseModeMarkdown)
	if err == nil || ctx.Err() != nil || !telegram.IsParseError(err) {
		return err
	}

	s.logger.Warn("Markdown failed, sending plain text",
		logfields.ChatID(chatID), logfields.Error(err))
	plain := markdown.PlainText(text)
	if plain == "" {
		plain = text
	}
	return s.send(ctx, chatID, plain, "")
}

func (s *TelegramSink) send(ctx context.Context, chatID, text, parseMode string) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		_, err := s.sender.SendMessage(ctx, chatID, text, parseMode)
		return err
	}, func(attempt int, err error) {
		s.recorder.IncNotifyRetry(sinkTelegram)
		s.logger.Warn("Retrying Telegram send",
			logfields.ChatID(chatID), logfields.Attempt(attempt), logfields.Error(err))
	})
}
