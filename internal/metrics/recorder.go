package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultSkipped ResultLabel = "skipped"
	ResultFailed  ResultLabel = "failed"
)

// ResultOf maps an error to a ResultLabel.
func ResultOf(err error) ResultLabel {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}

// Recorder defines observability hooks. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObservePassDuration(trigger string, d time.Duration)
	IncPassOutcome(trigger string, result ResultLabel)
	IncDedupOutcome(outcome string) // new|already_seen
	IncReviewResult(result ResultLabel)
	ObserveGeneratorDuration(provider string, d time.Duration, result ResultLabel)
	IncNotifyResult(sink string, result ResultLabel)
	IncNotifyRetry(sink string)
	IncStoreWriteFailure(document string)
	IncAssistantCommand(command string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePassDuration(string, time.Duration)                   {}
func (NoopRecorder) IncPassOutcome(string, ResultLabel)                          {}
func (NoopRecorder) IncDedupOutcome(string)                                      {}
func (NoopRecorder) IncReviewResult(ResultLabel)                                 {}
func (NoopRecorder) ObserveGeneratorDuration(string, time.Duration, ResultLabel) {}
func (NoopRecorder) IncNotifyResult(string, ResultLabel)                         {}
func (NoopRecorder) IncNotifyRetry(string)                                       {}
func (NoopRecorder) IncStoreWriteFailure(string)                                 {}
func (NoopRecorder) IncAssistantCommand(string)                                  {}
