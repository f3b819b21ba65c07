package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
)

const sinkNATS = "nats"

// Publisher is the JetStream publish call used by NATSSink.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Envelope is the JSON document published for every message.
type Envelope struct {
	Kind     Kind      `json:"kind"`
	ChatID   string    `json:"chat_id"`
	WorkID   string    `json:"work_id,omitempty"`
	Text     string    `json:"text"`
	Markdown bool      `json:"markdown"`
	SentAt   time.Time `json:"sent_at"`
}

// NATSSink publishes messages to a JetStream stream as "<subject>.<kind>".
type NATSSink struct {
	conn     *nats.Conn
	pub      Publisher
	subject  string
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NATSOptions configures NewNATSSink.
type NATSOptions struct {
	URL      string
	Stream   string
	Subject  string
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// NewNATSSink connects to NATS and makes sure the stream covers the subject.
func NewNATSSink(ctx context.Context, opts NATSOptions) (*NATSSink, error) {
	conn, err := nats.Connect(opts.URL, nats.Name("prbot"))
	if err != nil {
		return nil, ferrors.NotifyError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", opts.URL).
			Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, ferrors.NotifyError("failed to create JetStream context").WithCause(err).Build()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        opts.Stream,
		Description: "prbot review notifications",
		Subjects:    []string{opts.Subject + ".>"},
	}); err != nil {
		conn.Close()
		return nil, ferrors.NotifyError("failed to create JetStream stream").
			WithCause(err).
			WithContext("stream", opts.Stream).
			Build()
	}

	s := newNATSSink(js, opts)
	s.conn = conn
	s.logger.Info("NATS sink initialized",
		logfields.URL(opts.URL), slog.String("subject", opts.Subject), slog.String("stream", opts.Stream))
	return s, nil
}

func newNATSSink(pub Publisher, opts NATSOptions) *NATSSink {
	s := &NATSSink{
		pub:      pub,
		subject:  strings.TrimSuffix(opts.Subject, "."),
		recorder: opts.Recorder,
		logger:   opts.Logger,
		now:      time.Now,
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Notify implements Sink.
func (s *NATSSink) Notify(ctx context.Context, msg Message) error {
	kind := msg.Kind
	if kind == "" {
		kind = KindNotice
	}
	data, err := json.Marshal(Envelope{
		Kind:     kind,
		ChatID:   msg.ChatID,
		WorkID:   msg.WorkID,
		Text:     msg.Text,
		Markdown: msg.Markdown,
		SentAt:   s.now().UTC(),
	})
	if err != nil {
		return ferrors.InternalError("failed to encode notification").WithCause(err).Build()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	subject := s.subject + "." + string(kind)
	if _, err := s.pub.Publish(ctx, subject, data); err != nil {
		s.recorder.IncNotifyResult(sinkNATS, metrics.ResultFailed)
		return ferrors.NotifyError("failed to publish notification").
			WithCause(err).
			WithContext("subject", subject).
			Build()
	}
	s.recorder.IncNotifyResult(sinkNATS, metrics.ResultSuccess)
	s.logger.Debug("Published notification", slog.String("subject", subject), logfields.WorkID(msg.WorkID))
	return nil
}

// Close drains the NATS connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
