// Package metrics defines the Prometheus collectors of the service.  All
// recording helpers are safe to call on a nil *Metrics so that components
// built without metrics need no special casing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// outcome: acquired, conflict, error
	LockAttemptsTotal *prometheus.CounterVec
	// outcome: booked, already_booked, contested, missing
	SeatConfirmationsTotal *prometheus.CounterVec
	// result: new, duplicate, error
	PaymentEventsTotal *prometheus.CounterVec
	// trigger: reaper, opportunistic
	LocksExpiredTotal *prometheus.CounterVec
	// status: sent, failed
	NotificationsTotal *prometheus.CounterVec
	ReaperRunDuration  prometheus.Histogram
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		LockAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_lock_attempts_total",
				Help: "Seat lock acquisition attempts by outcome",
			},
			[]string{"outcome"},
		),
		SeatConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_confirmations_total",
				Help: "Per-seat results of booking confirmation",
			},
			[]string{"outcome"},
		),
		PaymentEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_events_total",
				Help: "Payment events seen by the ledger",
			},
			[]string{"result"},
		),
		LocksExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_locks_expired_total",
				Help: "Seat locks released because their TTL elapsed",
			},
			[]string{"trigger"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_notifications_total",
				Help: "Booking confirmation dispatch attempts",
			},
			[]string{"status"},
		),
		ReaperRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seat_reaper_run_duration_seconds",
				Help:    "Duration of one expiry sweep",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LockAttemptsTotal,
		m.SeatConfirmationsTotal,
		m.PaymentEventsTotal,
		m.LocksExpiredTotal,
		m.NotificationsTotal,
		m.ReaperRunDuration,
	)
	return m
}

func (m *Metrics) LockAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LockAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SeatConfirmations(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SeatConfirmationsTotal.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) PaymentEvent(result string) {
	if m == nil {
		return
	}
	m.PaymentEventsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) LocksExpired(trigger string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.LocksExpiredTotal.WithLabelValues(trigger).Add(float64(n))
}

func (m *Metrics) Notification(status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ReaperRun(d time.Duration) {
	if m == nil {
		return
	}
	m.ReaperRunDuration.Observe(d.Seconds())
}
