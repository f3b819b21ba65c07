// Package dedup remembers the last head commit notified for each pull request
// so a change is announced at most once, across restarts.
package dedup

import (
	"context"
	"log/slog"
	"sort"

	"github.com/abduznik/AI-PR-Analyzer/internal/docstore"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
)

// Record is the persisted document: work id string to marker.
type Record map[string]string

// NewRecord returns an empty Record.
func NewRecord() Record { return Record{} }

// Outcome is the result of an observation.
type Outcome int

const (
	New Outcome = iota
	AlreadySeen
)

func (o Outcome) String() string {
	if o == AlreadySeen {
		return "already_seen"
	}
	return "new"
}

// Entry is one stored record for operator inspection. Valid is false when
// ID is not a well-formed work id; Work is zero then.
type Entry struct {
	ID     string `json:"id"`
	Work   WorkID `json:"-"`
	Valid  bool   `json:"valid"`
	Marker string `json:"marker"`
}

// Tracker decides whether an observed marker has already been notified.
type Tracker struct {
	file   *docstore.File[Record]
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker returns a Tracker persisting into file.
func NewTracker(file *docstore.File[Record], opts ...Option) *Tracker {
	t := &Tracker{file: file, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFile returns the docstore file used for dedup records.
func NewFile(path string, opts ...docstore.Option) *docstore.File[Record] {
	return docstore.New(path, NewRecord, opts...)
}

// BeginPass loads the persisted record for one scan pass.
func (t *Tracker) BeginPass(ctx context.Context) (*Pass, error) {
	rec, err := t.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = NewRecord()
	}
	return &Pass{tracker: t, seen: rec}, nil
}

// Observe checks id against freshly loaded state.
func (t *Tracker) Observe(ctx context.Context, id WorkID, marker string) (Outcome, error) {
	p, err := t.BeginPass(ctx)
	if err != nil {
		return New, err
	}
	return p.Observe(id, marker), nil
}

// Commit persists marker for id.
func (t *Tracker) Commit(ctx context.Context, id WorkID, marker string) error {
	key := id.String()
	err := t.file.Update(ctx, func(rec *Record) error {
		if *rec == nil {
			*rec = NewRecord()
		}
		if (*rec)[key] == marker {
			return docstore.ErrNoChange
		}
		(*rec)[key] = marker
		return nil
	})
	if err != nil {
		t.logger.Error("Failed to persist dedup marker",
			logfields.WorkID(key), logfields.Marker(marker), logfields.Error(err))
		return err
	}
	t.logger.Debug("Dedup marker committed", logfields.WorkID(key), logfields.Marker(marker))
	return nil
}

// Entries returns all records ordered by repository and then pull request
// number. Ids that do not parse sort last and are logged.
func (t *Tracker) Entries(ctx context.Context) ([]Entry, error) {
	rec, err := t.file.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rec))
	for id, marker := range rec {
		e := Entry{ID: id, Marker: marker}
		if w, err := ParseWorkID(id); err == nil {
			e.Work, e.Valid = w, true
		} else {
			t.logger.Warn("Malformed dedup record", logfields.WorkID(id), logfields.Error(err))
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Valid != b.Valid {
			return a.Valid
		}
		if a.Work.Repo != b.Work.Repo {
			return a.Work.Repo < b.Work.Repo
		}
		if a.Work.Number != b.Work.Number {
			return a.Work.Number < b.Work.Number
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Pass is the in-memory view of the record for a single scan.
// It is not safe for concurrent use.
type Pass struct {
	tracker *Tracker
	seen    Record
}

// Observe reports AlreadySeen only when the stored marker equals marker.
// It never mutates state.
func (p *Pass) Observe(id WorkID, marker string) Outcome {
	if stored, ok := p.seen[id.String()]; ok && stored == marker {
		return AlreadySeen
	}
	return New
}

// Commit records marker for id. Call it only after the notification went out.
// The in-pass view is updated even when persisting fails, so one pass never
// notifies the same change twice; the next pass re-reads the file.
func (p *Pass) Commit(ctx context.Context, id WorkID, marker string) error {
	p.seen[id.String()] = marker
	return p.tracker.Commit(ctx, id, marker)
}
