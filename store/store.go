// Package store defines the Durable Local Store: one persisted state holding
// the device identity, the cached balance, the pending-consumption queue and
// the runtime api_base setting.
package store

import (
	"context"

	"github.com/xraph/credits/balance"
	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// Store is the unified storage interface used by the ledger.
type Store interface {
	identity.Store
	balance.Store
	pending.Store

	// APIBase returns the persisted billing endpoint root, or "" if unset.
	APIBase(ctx context.Context) (string, error)
	SetAPIBase(ctx context.Context, base string) error

	// CommitOfflineDebit debits c.Cost from the cached balance, free credits
	// first, and appends c as one unit, returning the debited balance. The
	// read, the sufficiency check and both writes are atomic with respect to
	// every other writer the backend supports. It returns
	// credits.ErrBalanceNotCached or credits.ErrInsufficientCredits, storing
	// nothing, when the cache cannot cover the cost.
	CommitOfflineDebit(ctx context.Context, c *pending.Consumption) (types.Balance, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
