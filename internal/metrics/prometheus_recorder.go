package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prbot"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	passDuration      *prom.HistogramVec
	passOutcome       *prom.CounterVec
	dedupOutcome      *prom.CounterVec
	reviewResults     *prom.CounterVec
	generatorDuration *prom.HistogramVec
	notifyResults     *prom.CounterVec
	notifyRetries     *prom.CounterVec
	storeWriteFailed  *prom.CounterVec
	assistantCommands *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		passDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "review_pass_duration_seconds",
			Help:      "Duration of review passes",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 10),
		}, []string{"trigger"}),
		passOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "review_pass_outcomes_total",
			Help:      "Review pass outcomes by trigger",
		}, []string{"trigger", "result"}),
		dedupOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_observations_total",
			Help:      "Dedup observations by outcome",
		}, []string{"outcome"}),
		reviewResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Pull request reviews by result",
		}, []string{"result"}),
		generatorDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_duration_seconds",
			Help:      "Latency of text generation calls",
			Buckets:   prom.DefBuckets,
		}, []string{"provider", "result"}),
		notifyResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and result",
		}, []string{"sink", "result"}),
		notifyRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notification_retries_total",
			Help:      "Notification send retries",
		}, []string{"sink"}),
		storeWriteFailed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_failures_total",
			Help:      "Failed document writes",
		}, []string{"document"}),
		assistantCommands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_commands_total",
			Help:      "Handled chat commands",
		}, []string{"command"}),
	}
	reg.MustRegister(pr.passDuration, pr.passOutcome, pr.dedupOutcome, pr.reviewResults,
		pr.generatorDuration, pr.notifyResults, pr.notifyRetries, pr.storeWriteFailed, pr.assistantCommands)
	return pr
}

func (p *PrometheusRecorder) ObservePassDuration(trigger string, d time.Duration) {
	if p == nil {
		return
	}
	p.passDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPassOutcome(trigger string, result ResultLabel) {
	if p == nil {
		return
	}
	p.passOutcome.WithLabelValues(trigger, string(result)).Inc()
}

func (p *PrometheusRecorder) IncDedupOutcome(outcome string) {
	if p == nil {
		return
	}
	p.dedupOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncReviewResult(result ResultLabel) {
	if p == nil {
		return
	}
	p.reviewResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveGeneratorDuration(provider string, d time.Duration, result ResultLabel) {
	if p == nil {
		return
	}
	p.generatorDuration.WithLabelValues(provider, string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncNotifyResult(sink string, result ResultLabel) {
	if p == nil {
		return
	}
	p.notifyResults.WithLabelValues(sink, string(result)).Inc()
}

func (p *PrometheusRecorder) IncNotifyRetry(sink string) {
	if p == nil {
		return
	}
	p.notifyRetries.WithLabelValues(sink).Inc()
}

func (p *PrometheusRecorder) IncStoreWriteFailure(document string) {
	if p == nil {
		return
	}
	p.storeWriteFailed.WithLabelValues(document).Inc()
}

func (p *PrometheusRecorder) IncAssistantCommand(command string) {
	if p == nil {
		return
	}
	p.assistantCommands.WithLabelValues(command).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics in g.
func HTTPHandler(g prom.Gatherer) http.Handler {
	if g == nil {
		g = prom.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
