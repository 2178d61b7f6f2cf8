// Package metrics exposes Prometheus collectors for the sweep, escalations and notifications.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "casewatch"

// Collector holds the application metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	sweepsTotal        *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
	casesScanned       prometheus.Counter
	casesFailed        prometheus.Counter
	escalationsFired   *prometheus.CounterVec
	duplicatesSkipped  prometheus.Counter
	staleResolved      prometheus.Counter
	recipientTiers     *prometheus.CounterVec
	notificationsSent  *prometheus.CounterVec
	notificationErrors *prometheus.CounterVec
}

// New registers all collectors on a fresh registry (plus Go/process collectors)
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		sweepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Escalation sweeps run, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one escalation sweep.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"mode"}),
		casesScanned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_cases_scanned_total",
			Help:      "Open cases examined by sweeps.",
		}),
		casesFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_case_failures_total",
			Help:      "Cases whose processing failed inside a sweep.",
		}),
		escalationsFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_fired_total",
			Help:      "Escalations recorded, by stage.",
		}, []string{"stage"}),
		duplicatesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_duplicate_total",
			Help:      "Escalation inserts rejected because one was already unresolved.",
		}),
		staleResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_stale_resolved_total",
			Help:      "Escalations auto-resolved after their case left the stage.",
		}),
		recipientTiers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipient_tier_selected_total",
			Help:      "Recipient resolution outcomes, by notification kind and tier.",
		}, []string{"kind", "tier"}),
		notificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications delivered, by channel.",
		}, []string{"channel"}),
		notificationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notification send failures, by channel and whether retry was scheduled.",
		}, []string{"channel", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests)
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "live"
}

// ObserveSweep records one sweep run
func (c *Collector) ObserveSweep(dryRun bool, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.sweepsTotal.WithLabelValues(mode(dryRun), outcome).Inc()
	c.sweepDuration.WithLabelValues(mode(dryRun)).Observe(elapsed.Seconds())
}

// CaseScanned counts one examined case
func (c *Collector) CaseScanned() {
	if c == nil {
		return
	}
	c.casesScanned.Inc()
}

// CaseFailed counts one case whose processing failed
func (c *Collector) CaseFailed() {
	if c == nil {
		return
	}
	c.casesFailed.Inc()
}

// EscalationFired counts a recorded escalation
func (c *Collector) EscalationFired(stage string) {
	if c == nil {
		return
	}
	c.escalationsFired.WithLabelValues(stage).Inc()
}

// DuplicateSkipped counts an insert lost to a concurrent sweep
func (c *Collector) DuplicateSkipped() {
	if c == nil {
		return
	}
	c.duplicatesSkipped.Inc()
}

// StaleResolved counts auto-resolved escalations
func (c *Collector) StaleResolved(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.staleResolved.Add(float64(n))
}

// RecipientTier counts which tier supplied recipients
func (c *Collector) RecipientTier(kind, tier string) {
	if c == nil {
		return
	}
	c.recipientTiers.WithLabelValues(kind, tier).Inc()
}

// NotificationSent counts a delivered notification
func (c *Collector) NotificationSent(channel string) {
	if c == nil {
		return
	}
	c.notificationsSent.WithLabelValues(channel).Inc()
}

// NotificationFailed counts a send failure; retrying tells whether another attempt is scheduled
func (c *Collector) NotificationFailed(channel string, retrying bool) {
	if c == nil {
		return
	}
	result := "failed"
	if retrying {
		result = "retrying"
	}
	c.notificationErrors.WithLabelValues(channel, result).Inc()
}
