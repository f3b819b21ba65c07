// Package memory keeps per-chat conversation history: one bounded active
// session plus named snapshots, all persisted in a single JSON document.
package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/abduznik/AI-PR-Analyzer/internal/docstore"
	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

const (
	DefaultMaxTurns     = 20
	DefaultContextTurns = 10
	MaxSnapshotName     = 64
)

// Outcome distinguishes a performed operation from one whose target is absent.
type Outcome int

const (
	Ok Outcome = iota
	NotFound
)

func (o Outcome) String() string {
	if o == NotFound {
		return "not_found"
	}
	return "ok"
}

// Store is the session memory store.
type Store struct {
	file         *docstore.File[Document]
	maxTurns     int
	contextTurns int
	logger       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxTurns bounds the active session length.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithContextTurns sets how many recent turns Context returns.
func WithContextTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.contextTurns = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFile returns the docstore file used for session documents.
func NewFile(path string, opts ...docstore.Option) *docstore.File[Document] {
	return docstore.New(path, NewDocument, opts...)
}

// NewStore returns a Store persisting into file.
func NewStore(file *docstore.File[Document], opts ...Option) *Store {
	s := &Store{
		file:         file,
		maxTurns:     DefaultMaxTurns,
		contextTurns: DefaultContextTurns,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the most recent turns of the active session for prompting.
func (s *Store) Context(ctx context.Context, chatID string) ([]Turn, error) {
	if err := validateChatID(chatID); err != nil {
		return nil, err
	}
	doc, err := s.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := doc[chatID]
	if !ok {
		return []Turn{}, nil
	}
	return lastN(sess.Current, s.contextTurns), nil
}

// AppendTurn adds a turn to the active session, creating the chat if needed,
// and drops the oldest turns beyond the configured bound.
func (s *Store) AppendTurn(ctx context.Context, chatID string, role Role, text string) error {
	return s.AppendTurns(ctx, chatID, Turn{Role: role, Content: text})
}

// AppendTurns adds turns in order with a single write, so either all of them
// are stored or none is. The bound is applied once, after the last turn.
func (s *Store) AppendTurns(ctx context.Context, chatID string, turns ...Turn) error {
	if err := validateChatID(chatID); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}
	for _, t := range turns {
		if !t.Role.Valid() {
			return ferrors.ValidationError("invalid role").
				WithContext("role", string(t.Role)).
				Build()
		}
	}
	err := s.file.Update(ctx, func(doc *Document) error {
		sess := doc.session(chatID, true)
		sess.Current = append(sess.Current, turns...)
		if len(sess.Current) > s.maxTurns {
			sess.Current = lastN(sess.Current, s.maxTurns)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to append turns", logfields.ChatID(chatID), logfields.Count(len(turns)), logfields.Error(err))
	}
	return err
}

// ClearCurrent empties the active session and keeps the snapshots.
func (s *Store) ClearCurrent(ctx context.Context, chatID string) (Outcome, error) {
	return s.mutate(ctx, "clear", chatID, func(doc Document, sess *Session) Outcome {
		sess.Current = []Turn{}
		return Ok
	})
}

// WipeAll removes the chat and every snapshot it owns.
func (s *Store) WipeAll(ctx context.Context, chatID string) (Outcome, error) {
	return s.mutate(ctx, "wipe", chatID, func(doc Document, _ *Session) Outcome {
		delete(doc, chatID)
		return Ok
	})
}

// SaveSnapshot copies the active session under name, replacing any snapshot
// with the same name.
func (s *Store) SaveSnapshot(ctx context.Context, chatID, name string) (Outcome, error) {
	if err := validateSnapshotName(name); err != nil {
		return NotFound, err
	}
	return s.mutate(ctx, "save_snapshot", chatID, func(_ Document, sess *Session) Outcome {
		sess.Saved[name] = cloneTurns(sess.Current)
		return Ok
	})
}

// LoadSnapshot replaces the active session with a copy of the named snapshot.
// The snapshot itself is left as is.
func (s *Store) LoadSnapshot(ctx context.Context, chatID, name string) (Outcome, error) {
	if err := validateSnapshotName(name); err != nil {
		return NotFound, err
	}
	return s.mutate(ctx, "load_snapshot", chatID, func(_ Document, sess *Session) Outcome {
		turns, ok := sess.Saved[name]
		if !ok {
			return NotFound
		}
		sess.Current = lastN(turns, s.maxTurns)
		return Ok
	})
}

// RemoveSnapshot deletes the named snapshot only.
func (s *Store) RemoveSnapshot(ctx context.Context, chatID, name string) (Outcome, error) {
	if err := validateSnapshotName(name); err != nil {
		return NotFound, err
	}
	return s.mutate(ctx, "remove_snapshot", chatID, func(_ Document, sess *Session) Outcome {
		if _, ok := sess.Saved[name]; !ok {
			return NotFound
		}
		delete(sess.Saved, name)
		return Ok
	})
}

// ListSnapshots returns snapshot names in ascending order.
func (s *Store) ListSnapshots(ctx context.Context, chatID string) ([]string, error) {
	if err := validateChatID(chatID); err != nil {
		return nil, err
	}
	doc, err := s.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	sess, ok := doc[chatID]
	if !ok {
		return []string{}, nil
	}
	return sess.SnapshotNames(), nil
}

// History returns a full copy of the chat's session.
func (s *Store) History(ctx context.Context, chatID string) (Session, bool, error) {
	if err := validateChatID(chatID); err != nil {
		return Session{}, false, err
	}
	doc, err := s.file.Load(ctx)
	if err != nil {
		return Session{}, false, err
	}
	sess, ok := doc[chatID]
	if !ok {
		return Session{}, false, nil
	}
	return sess.Clone(), true, nil
}

// Sessions returns a copy of every stored session from a single load.
func (s *Store) Sessions(ctx context.Context) (map[string]Session, error) {
	doc, err := s.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Session, len(doc))
	for id, sess := range doc {
		if sess != nil {
			out[id] = sess.Clone()
		}
	}
	return out, nil
}

// mutate runs fn against an existing chat. A NotFound result skips the write.
func (s *Store) mutate(ctx context.Context, op, chatID string, fn func(Document, *Session) Outcome) (Outcome, error) {
	if err := validateChatID(chatID); err != nil {
		return NotFound, err
	}
	outcome := NotFound
	err := s.file.Update(ctx, func(doc *Document) error {
		sess := doc.session(chatID, false)
		if sess == nil {
			return docstore.ErrNoChange
		}
		outcome = fn(*doc, sess)
		if outcome == NotFound {
			return docstore.ErrNoChange
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Session update failed", logfields.Stage(op), logfields.ChatID(chatID), logfields.Error(err))
		return NotFound, err
	}
	s.logger.Debug("Session updated", logfields.Stage(op), logfields.ChatID(chatID), logfields.Outcome(outcome.String()))
	return outcome, nil
}

func (d *Document) session(chatID string, create bool) *Session {
	if *d == nil {
		*d = NewDocument()
	}
	sess, ok := (*d)[chatID]
	if !ok || sess == nil {
		if !create {
			return nil
		}
		sess = NewSession()
		(*d)[chatID] = sess
	}
	sess.normalize()
	return sess
}

func validateChatID(chatID string) error {
	if chatID == "" || strings.TrimSpace(chatID) != chatID {
		return ferrors.ValidationError("chat id must be non-empty and trimmed").
			WithContext("chat_id", chatID).
			Build()
	}
	return nil
}

func validateSnapshotName(name string) error {
	if name == "" || strings.TrimSpace(name) != name || len(name) > MaxSnapshotName {
		return ferrors.ValidationError("snapshot name must be 1-64 characters without surrounding spaces").
			WithContext("snapshot", name).
			Build()
	}
	return nil
}
