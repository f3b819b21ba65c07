package eventstore

import (
	"encoding/json"
	"time"

	"github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

// Event type names.
const (
	TypePassStarted         = "PassStarted"
	TypePullRequestObserved = "PullRequestObserved"
	TypeReviewNotified      = "ReviewNotified"
	TypeReviewFailed        = "ReviewFailed"
	TypePassCompleted       = "PassCompleted"
)

// PassStartedData is the payload of TypePassStarted.
type PassStartedData struct {
	Trigger string `json:"trigger"`
	ChatID  string `json:"chat_id,omitempty"`
}

// PullRequestObservedData is the payload of TypePullRequestObserved.
type PullRequestObservedData struct {
	WorkID  string `json:"work_id"`
	Marker  string `json:"marker"`
	Outcome string `json:"outcome"`
}

// ReviewNotifiedData is the payload of TypeReviewNotified.
type ReviewNotifiedData struct {
	WorkID    string `json:"work_id"`
	Marker    string `json:"marker"`
	Title     string `json:"title"`
	Committed bool   `json:"committed"`
}

// ReviewFailedData is the payload of TypeReviewFailed.
type ReviewFailedData struct {
	WorkID string `json:"work_id"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// PassCompletedData is the payload of TypePassCompleted.
type PassCompletedData struct {
	Repositories int    `json:"repositories"`
	Reviewed     int    `json:"reviewed"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	DurationMS   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}

func newEvent(passID, eventType string, data any) (*BaseEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal " + eventType + " payload").
			WithCause(err).
			WithContext("pass_id", passID).
			Build()
	}
	return &BaseEvent{
		EventPassID:    passID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   payload,
	}, nil
}

// NewPassStarted creates a PassStarted event.
func NewPassStarted(passID, trigger, chatID string) (*BaseEvent, error) {
	return newEvent(passID, TypePassStarted, PassStartedData{Trigger: trigger, ChatID: chatID})
}

// NewPullRequestObserved creates a PullRequestObserved event.
func NewPullRequestObserved(passID, workID, marker, outcome string) (*BaseEvent, error) {
	return newEvent(passID, TypePullRequestObserved, PullRequestObservedData{WorkID: workID, Marker: marker, Outcome: outcome})
}

// NewReviewNotified creates a ReviewNotified event.
func NewReviewNotified(passID, workID, marker, title string, committed bool) (*BaseEvent, error) {
	return newEvent(passID, TypeReviewNotified, ReviewNotifiedData{WorkID: workID, Marker: marker, Title: title, Committed: committed})
}

// NewReviewFailed creates a ReviewFailed event.
func NewReviewFailed(passID, workID, stage string, cause error) (*BaseEvent, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return newEvent(passID, TypeReviewFailed, ReviewFailedData{WorkID: workID, Stage: stage, Error: msg})
}

// NewPassCompleted creates a PassCompleted event.
func NewPassCompleted(passID string, data PassCompletedData) (*BaseEvent, error) {
	return newEvent(passID, TypePassCompleted, data)
}
