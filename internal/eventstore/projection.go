package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const (
	passStatusRunning   = "running"
	passStatusCompleted = "completed"
	passStatusFailed    = "failed"
)

// PassSummary is a read model of one review pass.
type PassSummary struct {
	PassID      string     `json:"pass_id"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Observed    int        `json:"observed"`
	New         int        `json:"new"`
	Reviewed    int        `json:"reviewed"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
}

// PassHistoryProjection keeps recent pass summaries rebuilt from the store.
type PassHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	passes  map[string]*PassSummary
	history []*PassSummary // completed passes, newest first
	maxSize int
}

// NewPassHistoryProjection creates a projection backed by store.
func NewPassHistoryProjection(store Store, maxHistorySize int) *PassHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 50
	}
	return &PassHistoryProjection{
		store:   store,
		passes:  make(map[string]*PassSummary),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all stored events.
func (p *PassHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.passes = make(map[string]*PassSummary)
	p.history = nil
	for _, e := range events {
		p.applyLocked(e)
	}
	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].StartedAt.After(p.history[j].StartedAt)
	})
	p.trimLocked()
	return nil
}

// Apply processes a single event as it is recorded.
func (p *PassHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *PassHistoryProjection) applyLocked(e Event) {
	id := e.PassID()
	if id == "" {
		return
	}
	s, ok := p.passes[id]
	if !ok {
		s = &PassSummary{PassID: id, Status: passStatusRunning, StartedAt: e.Timestamp()}
		p.passes[id] = s
	}

	switch e.Type() {
	case TypePassStarted:
		var d PassStartedData
		if json.Unmarshal(e.Payload(), &d) == nil {
			s.Trigger = d.Trigger
		}
		s.StartedAt = e.Timestamp()
	case TypePullRequestObserved:
		s.Observed++
		var d PullRequestObservedData
		if json.Unmarshal(e.Payload(), &d) == nil && d.Outcome == "new" {
			s.New++
		}
	case TypeReviewNotified:
		s.Reviewed++
	case TypeReviewFailed:
		s.Failed++
	case TypePassCompleted:
		at := e.Timestamp()
		s.CompletedAt = &at
		s.Status = passStatusCompleted
		var d PassCompletedData
		if json.Unmarshal(e.Payload(), &d) == nil && d.Error != "" {
			s.Status = passStatusFailed
			s.Error = d.Error
		}
		p.history = append([]*PassSummary{s}, p.history...)
		p.trimLocked()
	}
}

// trimLocked bounds history and forgets completed passes that fell out of it.
func (p *PassHistoryProjection) trimLocked() {
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.PassID] = struct{}{}
	}
	for id, s := range p.passes {
		if s.Status == passStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.passes, id)
		}
	}
}

// History returns up to limit completed passes, newest first. limit <= 0 returns all.
func (p *PassHistoryProjection) History(limit int) []PassSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]PassSummary, n)
	for i := range n {
		out[i] = *p.history[i]
	}
	return out
}

// Pass returns the summary of a single pass.
func (p *PassHistoryProjection) Pass(passID string) (PassSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.passes[passID]
	if !ok {
		return PassSummary{}, false
	}
	return *s, true
}

// Last returns the most recently completed pass.
func (p *PassHistoryProjection) Last() (PassSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.history) == 0 {
		return PassSummary{}, false
	}
	return *p.history[0], true
}
