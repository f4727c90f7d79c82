package credits

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// Consume charges cost credits for action and returns the resulting
// balance.
//
// Queued offline debits are replayed first, best-effort. The charge is then
// sent to the billing service. When the service cannot be reached and
// offline mode is on, the charge is approved from the cached balance and
// queued for replay. Errors are *ConfigError, *PaymentRequiredError,
// *ExternalServiceError or a ValidationError; on error nothing is
// debited locally.
func (l *Ledger) Consume(ctx context.Context, action string, cost int64) (types.Balance, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return types.Zero, ValidationError{Field: "action", Message: "must not be empty"}
	}
	if cost <= 0 {
		return types.Zero, ValidationError{Field: "cost", Message: "must be positive"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.prepare(ctx); err != nil {
		return types.Zero, err
	}

	// The sweep result is only of interest to operators.
	l.syncPending(ctx) //nolint:errcheck // best-effort replay before charging

	ident, err := l.ensureIdentity(ctx)
	if err != nil {
		if l.canFallBack(ctx, err) {
			return l.consumeOffline(ctx, action, cost, err)
		}
		return types.Zero, l.chargeFailed(ctx, "register", action, cost, err)
	}

	reply, err := l.api.Consume(ctx, ident.AccessToken, billing.ConsumeRequest{
		SubjectID: ident.SubjectID,
		Action:    action,
		Cost:      cost,
	})
	if err != nil {
		if l.canFallBack(ctx, err) {
			return l.consumeOffline(ctx, action, cost, err)
		}
		return types.Zero, l.chargeFailed(ctx, "consume", action, cost, err)
	}

	balance, _ := l.settle(ctx, reply)
	l.logger.Debug("credits consumed",
		"action", action,
		"cost", cost,
		"balance", balance.String(),
	)
	l.plugins.EmitConsumed(ctx, action, cost, balance)
	return balance, nil
}

// canFallBack reports whether err allows an offline debit: offline mode is
// on, no response arrived, and the caller has not given up.
func (l *Ledger) canFallBack(ctx context.Context, err error) bool {
	return l.cfg.Offline && billing.IsTransport(err) && ctx.Err() == nil
}

func (l *Ledger) chargeFailed(ctx context.Context, op, action string, cost int64, err error) error {
	mapped := fromBilling(op, err)
	if IsPaymentRequired(mapped) {
		l.plugins.EmitPaymentRequired(ctx, action, cost, mapped)
	}
	return mapped
}

// consumeOffline debits the cached balance, free credits first, and queues
// the charge. The store checks and commits both in one step.
func (l *Ledger) consumeOffline(ctx context.Context, action string, cost int64, cause error) (types.Balance, error) {
	item := pending.New(action, cost, l.now())
	next, err := l.store.CommitOfflineDebit(ctx, item)
	switch {
	case errors.Is(err, ErrBalanceNotCached):
		return types.Zero, l.offlineRefused(ctx, action, cost, "no cached credits available for offline use")
	case errors.Is(err, ErrInsufficientCredits):
		return types.Zero, l.offlineRefused(ctx, action, cost, "insufficient cached credits for offline use")
	case err != nil:
		return types.Zero, err
	}

	l.logger.Info("credits consumed offline",
		"action", action,
		"cost", cost,
		"pending_id", item.ID,
		"balance", next.String(),
		"cause", cause,
	)
	l.plugins.EmitOfflineConsumed(ctx, item, next)
	return next, nil
}

func (l *Ledger) offlineRefused(ctx context.Context, action string, cost int64, msg string) error {
	err := &PaymentRequiredError{Message: msg}
	l.plugins.EmitPaymentRequired(ctx, action, cost, err)
	return err
}

// Checkout opens a checkout session and returns its URL. Nothing is
// charged or cached.
func (l *Ledger) Checkout(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ident, err := l.remoteIdentity(ctx)
	if err != nil {
		return "", err
	}
	url, err := l.api.Checkout(ctx, ident.AccessToken, ident.SubjectID)
	if err != nil {
		return "", fromBilling("checkout", err)
	}

	l.logger.Info("checkout created", "subject", ident.ShortSubject())
	l.plugins.EmitCheckoutCreated(ctx, url)
	return url, nil
}

// remoteIdentity prepares the client and returns registered credentials
// with failures mapped. Callers hold l.mu.
func (l *Ledger) remoteIdentity(ctx context.Context) (*identity.Identity, error) {
	if err := l.prepare(ctx); err != nil {
		return nil, err
	}
	ident, err := l.ensureIdentity(ctx)
	if err != nil {
		return nil, fromBilling("register", err)
	}
	return ident, nil
}
