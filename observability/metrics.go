// Package observability provides a Prometheus metrics plugin covering
// access decisions, charges, settlement, subscriptions, and recovery.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tunegate/tunegate/access"
	"github.com/tunegate/tunegate/batch"
	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/recovery"
	"github.com/tunegate/tunegate/subscription"
)

// Metrics is a plugin that exports engine activity as Prometheus metrics.
// Register it with the engine via WithPlugin and expose the registry with
// promhttp in the embedding application.
type Metrics struct {
	accessDecisions *prometheus.CounterVec
	accessDenials   *prometheus.CounterVec
	chargesTotal    *prometheus.CounterVec
	chargedMicros   *prometheus.CounterVec
	batchesSettled  prometheus.Counter
	batchesFailed   prometheus.Counter
	settleDuration  prometheus.Histogram
	settledMicros   *prometheus.CounterVec
	channelsOpened  prometheus.Counter
	channelsSettled prometheus.Counter
	subscriptions   *prometheus.CounterVec
	errorsReported  *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

// NewMetrics builds the plugin, registering its collectors with reg.
// Pass prometheus.DefaultRegisterer to use the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		accessDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_access_decisions_total",
				Help: "Access resolution outcomes by method",
			},
			[]string{"granted", "method"},
		),
		accessDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_access_denials_total",
				Help: "Access denials by required action",
			},
			[]string{"action"},
		),
		chargesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_charges_total",
				Help: "Confirmed microtransaction charges by type",
			},
			[]string{"type"},
		),
		chargedMicros: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_charged_micros_total",
				Help: "Total charged amount in micro-units by currency",
			},
			[]string{"currency"},
		),
		batchesSettled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunegate_batches_settled_total",
				Help: "Settlement batches settled successfully",
			},
		),
		batchesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunegate_batches_failed_total",
				Help: "Settlement batch attempts that failed",
			},
		),
		settleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tunegate_settlement_duration_seconds",
				Help:    "Duration of successful batch settlements",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		settledMicros: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_settled_micros_total",
				Help: "Total settled amount in micro-units by currency",
			},
			[]string{"currency"},
		),
		channelsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunegate_channels_opened_total",
				Help: "Payment channels opened",
			},
		),
		channelsSettled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunegate_channels_settled_total",
				Help: "Payment channels settled and closed",
			},
		),
		subscriptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_subscription_events_total",
				Help: "Subscription lifecycle events by kind and tier",
			},
			[]string{"event", "tier"},
		),
		errorsReported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_errors_reported_total",
				Help: "Classified error reports by type and severity",
			},
			[]string{"type", "severity"},
		),
		recoveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunegate_recoveries_total",
				Help: "Recovery attempts by outcome",
			},
			[]string{"outcome"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunegate_breaker_state",
				Help: "Circuit breaker state per service (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
	}
}

func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) OnAccessResolved(_ context.Context, _, _ string, d *access.Decision) error {
	granted := "false"
	if d.Granted {
		granted = "true"
	}
	m.accessDecisions.WithLabelValues(granted, string(d.Method)).Inc()
	if !d.Granted && d.Action != nil {
		m.accessDenials.WithLabelValues(string(d.Action.Type)).Inc()
	}
	return nil
}

func (m *Metrics) OnChargeConfirmed(_ context.Context, t *channel.Transaction) error {
	m.chargesTotal.WithLabelValues(string(t.Type)).Inc()
	m.chargedMicros.WithLabelValues(t.Amount.Currency).Add(float64(t.Amount.Amount))
	return nil
}

func (m *Metrics) OnBatchSettled(_ context.Context, b *batch.Batch, elapsed time.Duration) error {
	m.batchesSettled.Inc()
	m.settleDuration.Observe(elapsed.Seconds())
	m.settledMicros.WithLabelValues(b.Total.Currency).Add(float64(b.Total.Amount))
	return nil
}

func (m *Metrics) OnBatchFailed(_ context.Context, _ *batch.Batch, _ error) error {
	m.batchesFailed.Inc()
	return nil
}

func (m *Metrics) OnChannelOpened(_ context.Context, _ *channel.Channel) error {
	m.channelsOpened.Inc()
	return nil
}

func (m *Metrics) OnChannelSettled(_ context.Context, _ *channel.Channel) error {
	m.channelsSettled.Inc()
	return nil
}

func (m *Metrics) OnSubscriptionCreated(_ context.Context, s *subscription.Status) error {
	m.subscriptions.WithLabelValues("created", s.TierID).Inc()
	return nil
}

func (m *Metrics) OnSubscriptionCanceled(_ context.Context, s *subscription.Status) error {
	m.subscriptions.WithLabelValues("canceled", s.TierID).Inc()
	return nil
}

func (m *Metrics) OnSubscriptionUpgraded(_ context.Context, _, newStatus *subscription.Status) error {
	m.subscriptions.WithLabelValues("upgraded", newStatus.TierID).Inc()
	return nil
}

func (m *Metrics) OnErrorReported(_ context.Context, r *recovery.Report) error {
	m.errorsReported.WithLabelValues(string(r.Type), string(r.Severity)).Inc()
	return nil
}

func (m *Metrics) OnRecoverySucceeded(_ context.Context, _ *recovery.Report) error {
	m.recoveries.WithLabelValues("succeeded").Inc()
	return nil
}

func (m *Metrics) OnRecoveryFailed(_ context.Context, _ *recovery.Report, _ error) error {
	m.recoveries.WithLabelValues("failed").Inc()
	return nil
}

func (m *Metrics) OnBreakerStateChanged(_ context.Context, service, _, to string) error {
	var v float64
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(service).Set(v)
	return nil
}
