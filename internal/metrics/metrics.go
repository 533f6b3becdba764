// Package metrics exposes Prometheus collectors for the ingest pipeline and pushes them
// to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Document outcomes besides the error stages.
const (
	OutcomePersisted = "persisted"
	OutcomeConflict  = "conflict"
)

// Candidate kinds.
const (
	CandidatesListed          = "listed"
	CandidatesAlreadyExisting = "already_existing"
	CandidatesDeferred        = "deferred"
)

var (
	documentsTotal             *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	listingPagesFailedTotal    prometheus.Counter
	pacingWaitSeconds          prometheus.Histogram
	generativeCallSeconds      *prometheus.HistogramVec
	portalRateLimitDelaySecond *prometheus.HistogramVec
	lastRunTimestamp           prometheus.Gauge
	lastRunSuccess             prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cityscope_documents_total",
				Help: "Documents processed, labeled by outcome (persisted, conflict, or the failing stage).",
			},
			[]string{"outcome"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cityscope_candidates_total",
				Help: "Candidate documents seen while listing and filtering, labeled by kind.",
			},
			[]string{"kind"},
		)

		listingPagesFailedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cityscope_listing_pages_failed_total",
				Help: "Listing pages that could not be fetched or parsed.",
			},
		)

		pacingWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cityscope_pacing_wait_seconds",
				Help:    "Time spent waiting for the minimum interval between generative calls.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		generativeCallSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cityscope_generative_call_seconds",
				Help:    "Latency of generative-service calls, labeled by result.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"result"},
		)

		portalRateLimitDelaySecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cityscope_portal_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations for portal requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		lastRunTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cityscope_last_run_timestamp_seconds",
				Help: "Unix time at which the last ingest run finished.",
			},
		)

		lastRunSuccess = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cityscope_last_run_success",
				Help: "1 if the last ingest run completed, 0 if it aborted.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveDocument counts one processed candidate.
func ObserveDocument(outcome string) {
	documentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCandidates adds n candidates of the given kind.
func ObserveCandidates(kind string, n int) {
	if n <= 0 {
		return
	}
	candidatesTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveListingPagesFailed adds n failed listing pages.
func ObserveListingPagesFailed(n int) {
	if n <= 0 {
		return
	}
	listingPagesFailedTotal.Add(float64(n))
}

// ObservePacingWait records a pacing delay.
func ObservePacingWait(d time.Duration) {
	pacingWaitSeconds.Observe(d.Seconds())
}

// ObserveGenerativeCall records the latency of one generative call.
func ObserveGenerativeCall(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	generativeCallSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	portalRateLimitDelaySecond.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// SetLastRun records when the last run finished and whether it completed.
func SetLastRun(finished time.Time, success bool) {
	lastRunTimestamp.Set(float64(finished.Unix()))
	if success {
		lastRunSuccess.Set(1)
	} else {
		lastRunSuccess.Set(0)
	}
}

// Push sends every registered collector to the Pushgateway at gatewayURL under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	return PushFrom(ctx, prometheus.DefaultGatherer, gatewayURL, job)
}

// PushFrom pushes the metrics of gatherer.
func PushFrom(ctx context.Context, gatherer prometheus.Gatherer, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
