// Package metrics defines the observability hooks used by the review pass,
// the notification sinks and the assistant.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics stay optional:
//
//	runner := review.NewRunner(deps, review.WithRecorder(metrics.NoopRecorder{}))
//
// The daemon swaps in a PrometheusRecorder registered on its own registry and
// serves it on the admin endpoint via HTTPHandler.
package metrics
