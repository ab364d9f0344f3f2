package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds prometheus.Histogram

	RepliesTotal     *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	ForwardsTotal    *prometheus.CounterVec

	CompletionDurationSeconds *prometheus.HistogramVec
	CompletionErrorsTotal     *prometheus.CounterVec

	MessagingErrorsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_webhook_requests_total",
				Help: "Inbound chat webhooks by outcome",
			},
			[]string{"outcome"}, // outcome: replied, forwarded, ignored, duplicate, invalid, error
		),

		WebhookDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "advisor_webhook_duration_seconds",
				Help:    "Time spent handling one inbound chat webhook",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		RepliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_replies_total",
				Help: "Replies dispatched by response category",
			},
			[]string{"category"},
		),

		EscalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_escalations_total",
				Help: "Escalations to a human advisor by stage",
			},
			[]string{"stage"}, // stage: confirm_requested, linked, failed
		),

		ForwardsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_thread_forwards_total",
				Help: "Messages forwarded across linked threads by direction",
			},
			[]string{"direction"}, // direction: to_advisor, to_student
		),

		CompletionDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_completion_duration_seconds",
				Help:    "Completion service latency by prompt kind",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"kind"}, // kind: answer, draft
		),

		CompletionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_completion_errors_total",
				Help: "Failed completion calls by prompt kind",
			},
			[]string{"kind"},
		),

		MessagingErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_messaging_errors_total",
				Help: "Failed chat platform calls by operation",
			},
			[]string{"operation"},
		),
	}
}

// ObserveCompletion records the latency and outcome of a completion call
func (m *Metrics) ObserveCompletion(kind string, d time.Duration, err error) {
	m.CompletionDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.CompletionErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RecordWebhook(outcome string, d time.Duration) {
	m.WebhookRequestsTotal.WithLabelValues(outcome).Inc()
	m.WebhookDurationSeconds.Observe(d.Seconds())
}

func (m *Metrics) RecordReply(category string) {
	m.RepliesTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordEscalation(stage string) {
	m.EscalationsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordForward(direction string) {
	m.ForwardsTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) RecordMessagingError(operation string) {
	m.MessagingErrorsTotal.WithLabelValues(operation).Inc()
}
