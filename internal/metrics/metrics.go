// Package metrics exposes Prometheus collectors for monitoring runs. The batch
// job has no scrape endpoint, so collectors live on a private registry that is
// pushed to a Pushgateway when a run finishes.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every collector defined here.
var Registry = prometheus.NewRegistry()

var (
	plantsTotal              *prometheus.CounterVec
	vendorRunsTotal          *prometheus.CounterVec
	anomaliesTotal           *prometheus.CounterVec
	notificationsTotal       *prometheus.CounterVec
	challengeAttemptsTotal   *prometheus.CounterVec
	activeSessions           prometheus.Gauge
	vendorDurationSeconds    *prometheus.HistogramVec
	permitWaitSeconds        prometheus.Histogram
	monthlyRecordsTotal      *prometheus.CounterVec
	evidenceArtifactsTotal   *prometheus.CounterVec
	notificationDelaySeconds prometheus.Histogram
	navigationDelaySeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(Registry)

		plantsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_plants_total",
				Help: "Plants processed, labeled by vendor and outcome.",
			},
			[]string{"vendor", "status"},
		)

		vendorRunsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_vendor_runs_total",
				Help: "Vendor workflows finished, labeled by vendor and final state.",
			},
			[]string{"vendor", "state"},
		)

		anomaliesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_anomalies_total",
				Help: "Anomalies detected, labeled by vendor and notification kind.",
			},
			[]string{"vendor", "kind"},
		)

		notificationsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_notifications_total",
				Help: "Notification deliveries, labeled by kind, transport and status.",
			},
			[]string{"kind", "transport", "status"},
		)

		challengeAttemptsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_challenge_attempts_total",
				Help: "Drag challenge attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeSessions = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantmonitor_active_sessions",
				Help: "Browsing sessions currently open.",
			},
		)

		vendorDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plantmonitor_vendor_duration_seconds",
				Help:    "Wall time of each vendor workflow.",
				Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400},
			},
			[]string{"vendor"},
		)

		permitWaitSeconds = factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plantmonitor_permit_wait_seconds",
				Help:    "Time vendor workflows waited for a concurrency permit.",
				Buckets: []float64{0.1, 1, 10, 60, 300, 900},
			},
		)

		monthlyRecordsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_monthly_records_total",
				Help: "Monthly records appended, labeled by vendor.",
			},
			[]string{"vendor"},
		)

		evidenceArtifactsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantmonitor_evidence_artifacts_total",
				Help: "Evidence screenshots written, labeled by vendor and kind.",
			},
			[]string{"vendor", "kind"},
		)

		notificationDelaySeconds = factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plantmonitor_notification_rate_limit_delay_seconds",
				Help:    "Histogram of notification rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		navigationDelaySeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plantmonitor_navigation_rate_limit_delay_seconds",
				Help:    "Histogram of navigation rate limit wait durations per dashboard host.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// ObservePlant counts a processed plant.
func ObservePlant(vendor, status string) {
	Init()
	plantsTotal.WithLabelValues(vendor, status).Inc()
}

// ObserveVendorRun records a finished vendor workflow.
func ObserveVendorRun(vendor, state string, duration time.Duration) {
	Init()
	vendorRunsTotal.WithLabelValues(vendor, state).Inc()
	vendorDurationSeconds.WithLabelValues(vendor).Observe(duration.Seconds())
}

// ObserveAnomaly counts a detected anomaly.
func ObserveAnomaly(vendor, kind string) {
	Init()
	anomaliesTotal.WithLabelValues(vendor, kind).Inc()
}

// ObserveNotification counts a delivery attempt.
func ObserveNotification(kind, transport, status string) {
	Init()
	notificationsTotal.WithLabelValues(kind, transport, status).Inc()
}

// ObserveNotificationDelay records the duration of a rate limit wait.
func ObserveNotificationDelay(d time.Duration) {
	Init()
	notificationDelaySeconds.Observe(d.Seconds())
}

// ObserveNavigationDelay records how long a navigation waited for its host budget.
func ObserveNavigationDelay(host string, d time.Duration) {
	Init()
	navigationDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveChallengeAttempt counts a challenge attempt by outcome.
func ObserveChallengeAttempt(outcome string) {
	Init()
	challengeAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObservePermitWait records how long a workflow waited for a permit.
func ObservePermitWait(d time.Duration) {
	Init()
	permitWaitSeconds.Observe(d.Seconds())
}

// ObserveMonthlyRecord counts an appended monthly record.
func ObserveMonthlyRecord(vendor string) {
	Init()
	monthlyRecordsTotal.WithLabelValues(vendor).Inc()
}

// ObserveArtifact counts a written evidence artifact.
func ObserveArtifact(vendor, kind string) {
	Init()
	evidenceArtifactsTotal.WithLabelValues(vendor, kind).Inc()
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// Push sends the registry to a Pushgateway grouped by run ID.
func Push(ctx context.Context, url, job, runID string) error {
	Init()
	pusher := push.New(url, job).Gatherer(Registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
