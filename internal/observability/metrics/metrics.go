package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking bot.
type BookingMetrics struct {
	inboundTotal  *prometheus.CounterVec
	turnTotal     *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
	reservations  *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
	lockWait      prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messenger",
			Name:      "inbound_events_total",
			Help:      "Inbound Messenger events by kind",
		}, []string{"kind"}),
		turnTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		}, []string{"result"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "turn_duration_seconds",
			Help:      "Time to process one conversation turn, excluding replies",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by operation and outcome",
		}, []string{"operation", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "messenger",
			Name:      "outbound_total",
			Help:      "Outbound Messenger sends by status",
		}, []string{"status"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "actor_lock_wait_seconds",
			Help:      "Time spent waiting for the per-actor lock",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.turnTotal, m.turnLatency, m.reservations, m.transitions, m.outboundTotal, m.lockWait)
	return m
}

func (m *BookingMetrics) ObserveInbound(kind string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveTurn(step, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnTotal.WithLabelValues(result).Inc()
	m.turnLatency.WithLabelValues(step).Observe(d.Seconds())
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
