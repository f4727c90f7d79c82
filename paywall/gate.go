// Package paywall turns a charge into a decision a UI can act on: go ahead,
// send the user to a checkout page, or show an error.
package paywall

import (
	"context"
	"log/slog"

	"github.com/xraph/credits"
	"github.com/xraph/credits/types"
)

// Charger is the part of the ledger the gate needs.
type Charger interface {
	IsBypassEnabled() bool
	IsConfigured(ctx context.Context) bool
	Consume(ctx context.Context, action string, cost int64) (types.Balance, error)
	Checkout(ctx context.Context) (string, error)
}

var _ Charger = (*credits.Ledger)(nil)

// Decision is the outcome of EnsureCredit.
type Decision struct {
	// OK means the action may proceed.
	OK bool
	// Bypass means charging was skipped entirely.
	Bypass bool
	// CheckoutURL is set when the user must pay before proceeding.
	CheckoutURL string
	// Balance is the balance after a successful charge.
	Balance types.Balance
	// Err explains a refusal.
	Err error
}

// NeedsPayment reports whether the caller should open CheckoutURL.
func (d Decision) NeedsPayment() bool { return !d.OK && d.CheckoutURL != "" }

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// Gate wraps a Charger for interactive callers.
type Gate struct {
	ledger Charger
	logger *slog.Logger
}

// New creates a Gate.
func New(ledger Charger, opts ...Option) *Gate {
	g := &Gate{ledger: ledger, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// EnsureCredit charges cost for action. With bypass on it approves without
// touching the ledger. When billing is unconfigured it refuses with a
// *credits.ConfigError and makes no network call. When credits run out it
// fetches a checkout URL; Err then holds the payment error, or the checkout
// failure if the URL could not be obtained.
func (g *Gate) EnsureCredit(ctx context.Context, action string, cost int64) Decision {
	if g.ledger.IsBypassEnabled() {
		return Decision{OK: true, Bypass: true}
	}
	if !g.ledger.IsConfigured(ctx) {
		return Decision{Err: &credits.ConfigError{Message: "paywall not configured"}}
	}

	balance, err := g.ledger.Consume(ctx, action, cost)
	if err == nil {
		return Decision{OK: true, Balance: balance}
	}
	if !credits.IsPaymentRequired(err) {
		g.logger.Warn("charge failed", "action", action, "cost", cost, "error", err)
		return Decision{Err: err}
	}

	url, cerr := g.ledger.Checkout(ctx)
	if cerr != nil {
		g.logger.Warn("checkout failed after payment required", "action", action, "error", cerr)
		return Decision{Err: cerr}
	}
	return Decision{CheckoutURL: url, Err: err}
}
