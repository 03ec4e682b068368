package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the domain counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	bookings         *prometheus.CounterVec
	cancellations    *prometheus.CounterVec
	completions      *prometheus.CounterVec
	reviews          *prometheus.CounterVec
	ratingCASRetries *prometheus.HistogramVec
	reminders        *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "cancellations_total",
			Help:      "Visit cancellations by outcome",
		}, []string{"outcome"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "visit_completions_total",
			Help:      "Visits completed, by trigger",
		}, []string{"trigger"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reviews",
			Name:      "operations_total",
			Help:      "Review submissions, updates and deletions by outcome",
		}, []string{"op", "outcome"}),
		ratingCASRetries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reviews",
			Name:      "rating_cas_attempts",
			Help:      "Compare-and-set attempts needed per aggregate update",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}, []string{"subject"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "dispatched_total",
			Help:      "Reminder occurrences handled by the dispatcher",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.cancellations, m.completions, m.reviews, m.ratingCASRetries, m.reminders)
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCancellation(outcome string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCompletion(trigger string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(trigger).Inc()
}

func (m *Metrics) ObserveReview(op, outcome string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveRatingAttempts(subject string, attempts int) {
	if m == nil {
		return
	}
	m.ratingCASRetries.WithLabelValues(subject).Observe(float64(attempts))
}

func (m *Metrics) ObserveReminder(outcome string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(outcome).Inc()
}
