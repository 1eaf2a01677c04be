// Package metrics exposes the watchdog's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/msapprovals/watchdog/internal/reminder"
)

// Metrics holds the watchdog collectors. One instance per process.
type Metrics struct {
	RunsTotal      prometheus.Counter
	RunDuration    prometheus.Histogram
	RemindersSent  *prometheus.CounterVec
	Failures       prometheus.Counter
	InvalidData    prometheus.Counter
	CapReached     prometheus.Counter
	CandidatesSeen prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_runs_total",
			Help: "Completed watchdog runs.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchdog_run_duration_seconds",
			Help:    "Wall time of one watchdog run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watchdog_reminders_sent_total",
			Help: "Reminder emails sent, by email type.",
		}, []string{"email_type"}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_candidate_failures_total",
			Help: "Candidates that failed to build, send, or update.",
		}),
		InvalidData: f.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_invalid_data_total",
			Help: "Candidates with unusable summary data.",
		}),
		CapReached: f.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_failure_cap_reached_total",
			Help: "Runs abandoned at the failure cap.",
		}),
		CandidatesSeen: f.NewCounter(prometheus.CounterOpts{
			Name: "watchdog_candidates_total",
			Help: "Deduplicated reminder candidates processed.",
		}),
	}
}

// ObserveRun folds one run outcome into the collectors.
func (m *Metrics) ObserveRun(out *reminder.RunOutcome) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(out.Duration.Seconds())
	m.RemindersSent.WithLabelValues("actionable").Add(float64(out.ActionableSent))
	m.RemindersSent.WithLabelValues("normal").Add(float64(out.NormalSent))
	m.Failures.Add(float64(out.Failures))
	m.InvalidData.Add(float64(out.InvalidData))
	m.CandidatesSeen.Add(float64(out.Candidates))
	if out.CapReached {
		m.CapReached.Inc()
	}
}
