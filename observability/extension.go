// Package observability provides a metrics extension for the credit ledger
// that records charging, reconciliation and balance event counts via a
// go-utils MetricFactory.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/go-utils/metrics"

	"github.com/xraph/credits"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnIdentityRegistered  = (*MetricsExtension)(nil)
	_ plugin.OnIdentityReset       = (*MetricsExtension)(nil)
	_ plugin.OnConsumed            = (*MetricsExtension)(nil)
	_ plugin.OnOfflineConsumed     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRequired     = (*MetricsExtension)(nil)
	_ plugin.OnConsumptionReplayed = (*MetricsExtension)(nil)
	_ plugin.OnReplayFailed        = (*MetricsExtension)(nil)
	_ plugin.OnSyncCompleted       = (*MetricsExtension)(nil)
	_ plugin.OnBalanceRefreshed    = (*MetricsExtension)(nil)
	_ plugin.OnBalanceFallback     = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutCreated     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// FromMetrics adapts a go-utils metrics factory, such as the one returned by
// forge's app.Metrics().
func FromMetrics(f metrics.MetricFactory) MetricFactory {
	return goUtilsFactory{f: f}
}

type goUtilsFactory struct {
	f metrics.MetricFactory
}

func (g goUtilsFactory) Counter(name string) Counter     { return g.f.Counter(name) }
func (g goUtilsFactory) Histogram(name string) Histogram { return g.f.Histogram(name) }

// MetricsExtension records credit client metrics.
// Register it as a ledger plugin to track charging automatically.
type MetricsExtension struct {
	factory MetricFactory

	// Identity metrics
	IdentityRegistered Counter
	IdentityReset      Counter

	// Charging metrics
	ConsumedOnline   Counter
	ConsumedOffline  Counter
	CreditsCharged   Counter
	CreditsQueued    Counter
	PaymentRequired  Counter
	ChargeCost       Histogram
	CheckoutsCreated Counter

	// Reconciliation metrics
	Replayed      Counter
	ReplayFailed  Counter
	ReplayDropped Counter
	SyncRuns      Counter
	SyncStopped   Counter
	SyncRemaining Histogram
	SyncLatency   Histogram

	// Balance metrics
	BalanceRefreshed Counter
	BalanceFallback  Counter
	BalanceTotal     Histogram

	// Error metrics
	ServiceErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use FromMetrics(app.Metrics()) in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Identity metrics
		IdentityRegistered: factory.Counter("credits.identity.registered"),
		IdentityReset:      factory.Counter("credits.identity.reset"),

		// Charging metrics
		ConsumedOnline:   factory.Counter("credits.consume.online"),
		ConsumedOffline:  factory.Counter("credits.consume.offline"),
		CreditsCharged:   factory.Counter("credits.consume.credits"),
		CreditsQueued:    factory.Counter("credits.consume.queued_credits"),
		PaymentRequired:  factory.Counter("credits.consume.payment_required"),
		ChargeCost:       factory.Histogram("credits.consume.cost"),
		CheckoutsCreated: factory.Counter("credits.checkout.created"),

		// Reconciliation metrics
		Replayed:      factory.Counter("credits.sync.replayed"),
		ReplayFailed:  factory.Counter("credits.sync.replay_failed"),
		ReplayDropped: factory.Counter("credits.sync.rejected"),
		SyncRuns:      factory.Counter("credits.sync.runs"),
		SyncStopped:   factory.Counter("credits.sync.stopped"),
		SyncRemaining: factory.Histogram("credits.sync.remaining"),
		SyncLatency:   factory.Histogram("credits.sync.latency_ms"),

		// Balance metrics
		BalanceRefreshed: factory.Counter("credits.balance.refreshed"),
		BalanceFallback:  factory.Counter("credits.balance.fallback"),
		BalanceTotal:     factory.Histogram("credits.balance.total"),

		// Error metrics
		ServiceErrors: factory.Counter("credits.service.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Identity hooks
// ──────────────────────────────────────────────────

// OnIdentityRegistered implements plugin.OnIdentityRegistered.
func (m *MetricsExtension) OnIdentityRegistered(_ context.Context, _, _ string) error {
	m.IdentityRegistered.Inc()
	return nil
}

// OnIdentityReset implements plugin.OnIdentityReset.
func (m *MetricsExtension) OnIdentityReset(_ context.Context, _ string) error {
	m.IdentityReset.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumed implements plugin.OnConsumed.
func (m *MetricsExtension) OnConsumed(_ context.Context, _ string, cost int64, balance types.Balance) error {
	m.ConsumedOnline.Inc()
	m.CreditsCharged.Add(float64(cost))
	m.ChargeCost.Observe(float64(cost))
	m.BalanceTotal.Observe(float64(balance.Total()))
	return nil
}

// OnOfflineConsumed implements plugin.OnOfflineConsumed.
func (m *MetricsExtension) OnOfflineConsumed(_ context.Context, item *pending.Consumption, balance types.Balance) error {
	m.ConsumedOffline.Inc()
	m.CreditsQueued.Add(float64(item.Cost))
	m.ChargeCost.Observe(float64(item.Cost))
	m.BalanceTotal.Observe(float64(balance.Total()))
	return nil
}

// OnPaymentRequired implements plugin.OnPaymentRequired.
func (m *MetricsExtension) OnPaymentRequired(_ context.Context, _ string, _ int64, err error) error {
	if errors.Is(err, credits.ErrPaymentRequired) {
		m.PaymentRequired.Inc()
		return nil
	}
	m.ServiceErrors.Inc()
	return nil
}

// OnCheckoutCreated implements plugin.OnCheckoutCreated.
func (m *MetricsExtension) OnCheckoutCreated(_ context.Context, _ string) error {
	m.CheckoutsCreated.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnConsumptionReplayed implements plugin.OnConsumptionReplayed.
func (m *MetricsExtension) OnConsumptionReplayed(_ context.Context, _ *pending.Consumption, _ types.Balance, _ bool) error {
	m.Replayed.Inc()
	return nil
}

// OnReplayFailed implements plugin.OnReplayFailed.
func (m *MetricsExtension) OnReplayFailed(_ context.Context, _ *pending.Consumption, _ error) error {
	m.ReplayFailed.Inc()
	return nil
}

// OnSyncCompleted implements plugin.OnSyncCompleted.
func (m *MetricsExtension) OnSyncCompleted(_ context.Context, report pending.SyncReport, elapsed time.Duration) error {
	m.SyncRuns.Inc()
	if report.Rejected > 0 {
		m.ReplayDropped.Add(float64(report.Rejected))
	}
	if report.Stopped {
		m.SyncStopped.Inc()
	}
	m.SyncRemaining.Observe(float64(report.Remaining))
	m.SyncLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnBalanceRefreshed implements plugin.OnBalanceRefreshed.
func (m *MetricsExtension) OnBalanceRefreshed(_ context.Context, balance types.Balance) error {
	m.BalanceRefreshed.Inc()
	m.BalanceTotal.Observe(float64(balance.Total()))
	return nil
}

// OnBalanceFallback implements plugin.OnBalanceFallback.
func (m *MetricsExtension) OnBalanceFallback(_ context.Context, _ types.Balance, err error) error {
	m.BalanceFallback.Inc()
	if err != nil {
		m.ServiceErrors.Inc()
	}
	return nil
}
