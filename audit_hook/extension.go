// Package audithook bridges credit ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnIdentityRegistered  = (*Extension)(nil)
	_ plugin.OnIdentityReset       = (*Extension)(nil)
	_ plugin.OnConsumed            = (*Extension)(nil)
	_ plugin.OnOfflineConsumed     = (*Extension)(nil)
	_ plugin.OnPaymentRequired     = (*Extension)(nil)
	_ plugin.OnCheckoutCreated     = (*Extension)(nil)
	_ plugin.OnConsumptionReplayed = (*Extension)(nil)
	_ plugin.OnReplayFailed        = (*Extension)(nil)
	_ plugin.OnSyncCompleted       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Its shape matches chronicle.Emitter, so a *chronicle.Chronicle can be
// injected at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credit ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Identity hooks
// ──────────────────────────────────────────────────

// OnIdentityRegistered implements plugin.OnIdentityRegistered.
func (e *Extension) OnIdentityRegistered(ctx context.Context, deviceID, subjectID string) error {
	return e.record(ctx, ActionIdentityRegistered, SeverityInfo, OutcomeSuccess,
		ResourceIdentity, subjectID, CategoryIdentity, nil,
		"device_id", deviceID,
	)
}

// OnIdentityReset implements plugin.OnIdentityReset.
func (e *Extension) OnIdentityReset(ctx context.Context, deviceID string) error {
	return e.record(ctx, ActionIdentityReset, SeverityWarning, OutcomeSuccess,
		ResourceIdentity, deviceID, CategoryIdentity, nil,
		"device_id", deviceID,
	)
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnConsumed implements plugin.OnConsumed.
func (e *Extension) OnConsumed(ctx context.Context, action string, cost int64, balance types.Balance) error {
	return e.record(ctx, ActionCreditConsumed, SeverityInfo, OutcomeSuccess,
		ResourceCredit, action, CategoryBilling, nil,
		"cost", cost,
		"free_remaining", balance.FreeRemaining,
		"paid_credits", balance.PaidCredits,
	)
}

// OnOfflineConsumed implements plugin.OnOfflineConsumed.
func (e *Extension) OnOfflineConsumed(ctx context.Context, item *pending.Consumption, balance types.Balance) error {
	return e.record(ctx, ActionCreditConsumedOffline, SeverityWarning, OutcomePartial,
		ResourceConsumption, item.ID, CategoryOffline, nil,
		"action", item.Action,
		"cost", item.Cost,
		"free_remaining", balance.FreeRemaining,
		"paid_credits", balance.PaidCredits,
	)
}

// OnPaymentRequired implements plugin.OnPaymentRequired.
func (e *Extension) OnPaymentRequired(ctx context.Context, action string, cost int64, err error) error {
	return e.record(ctx, ActionPaymentRequired, SeverityWarning, OutcomeFailure,
		ResourceCredit, action, CategoryPayment, err,
		"cost", cost,
	)
}

// OnCheckoutCreated implements plugin.OnCheckoutCreated.
func (e *Extension) OnCheckoutCreated(ctx context.Context, url string) error {
	return e.record(ctx, ActionCheckoutCreated, SeverityInfo, OutcomeSuccess,
		ResourceCheckout, "", CategoryPayment, nil,
		"checkout_url", url,
	)
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnConsumptionReplayed implements plugin.OnConsumptionReplayed.
func (e *Extension) OnConsumptionReplayed(ctx context.Context, item *pending.Consumption, _ types.Balance, hasBalance bool) error {
	return e.record(ctx, ActionConsumptionReplayed, SeverityInfo, OutcomeSuccess,
		ResourceConsumption, item.ID, CategoryReconcile, nil,
		"action", item.Action,
		"cost", item.Cost,
		"queued_at", item.CreatedAt,
		"balance_updated", hasBalance,
	)
}

// OnReplayFailed implements plugin.OnReplayFailed.
func (e *Extension) OnReplayFailed(ctx context.Context, item *pending.Consumption, err error) error {
	return e.record(ctx, ActionReplayFailed, SeverityError, OutcomeFailure,
		ResourceConsumption, item.ID, CategoryReconcile, err,
		"action", item.Action,
		"cost", item.Cost,
	)
}

// OnSyncCompleted implements plugin.OnSyncCompleted.
func (e *Extension) OnSyncCompleted(ctx context.Context, report pending.SyncReport, elapsed time.Duration) error {
	outcome := OutcomeSuccess
	severity := SeverityInfo
	if !report.Clean() || report.Rejected > 0 {
		outcome = OutcomePartial
		severity = SeverityWarning
	}
	return e.record(ctx, ActionSyncCompleted, severity, outcome,
		ResourceQueue, "", CategoryReconcile, nil,
		"attempted", report.Attempted,
		"replayed", report.Replayed,
		"rejected", report.Rejected,
		"remaining", report.Remaining,
		"stopped", report.Stopped,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
