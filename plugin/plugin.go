// Package plugin provides an extensible plugin system for the credit ledger.
// Plugins hook into lifecycle and consumption events to add metrics, audit
// trails or notifications without touching the charging path.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l interface{}) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Identity hooks
// ──────────────────────────────────────────────────

// OnIdentityRegistered is called after the device obtained a subject.
type OnIdentityRegistered interface {
	Plugin
	OnIdentityRegistered(ctx context.Context, deviceID, subjectID string) error
}

// OnIdentityReset is called after the stored credentials were cleared.
type OnIdentityReset interface {
	Plugin
	OnIdentityReset(ctx context.Context, deviceID string) error
}

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumed is called after the billing service accepted a charge.
type OnConsumed interface {
	Plugin
	OnConsumed(ctx context.Context, action string, cost int64, balance types.Balance) error
}

// OnOfflineConsumed is called after a charge was approved locally and
// queued for replay.
type OnOfflineConsumed interface {
	Plugin
	OnOfflineConsumed(ctx context.Context, item *pending.Consumption, balance types.Balance) error
}

// OnPaymentRequired is called when a charge failed for lack of credits.
type OnPaymentRequired interface {
	Plugin
	OnPaymentRequired(ctx context.Context, action string, cost int64, err error) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnConsumptionReplayed is called when a queued item was acknowledged.
// hasBalance is false when the reply carried no usable balance.
type OnConsumptionReplayed interface {
	Plugin
	OnConsumptionReplayed(ctx context.Context, item *pending.Consumption, balance types.Balance, hasBalance bool) error
}

// OnReplayFailed is called when a queued item could not be replayed.
type OnReplayFailed interface {
	Plugin
	OnReplayFailed(ctx context.Context, item *pending.Consumption, err error) error
}

// OnSyncCompleted is called at the end of every sweep that found work.
type OnSyncCompleted interface {
	Plugin
	OnSyncCompleted(ctx context.Context, report pending.SyncReport, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Balance and checkout hooks
// ──────────────────────────────────────────────────

// OnBalanceRefreshed is called when an authoritative balance was fetched.
type OnBalanceRefreshed interface {
	Plugin
	OnBalanceRefreshed(ctx context.Context, balance types.Balance) error
}

// OnBalanceFallback is called when a balance read degraded to the cache.
type OnBalanceFallback interface {
	Plugin
	OnBalanceFallback(ctx context.Context, balance types.Balance, err error) error
}

// OnCheckoutCreated is called when a checkout session was opened.
type OnCheckoutCreated interface {
	Plugin
	OnCheckoutCreated(ctx context.Context, url string) error
}
