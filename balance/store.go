// Package balance holds the persistence contract for the cached balance:
// the last (free, paid) counts either confirmed by the billing service or
// computed locally by an offline debit.
package balance

import (
	"context"

	"github.com/xraph/credits/types"
)

type Store interface {
	SaveBalance(ctx context.Context, b types.Balance) error
	// LoadBalance returns credits.ErrBalanceNotCached when no balance was
	// ever saved.
	LoadBalance(ctx context.Context) (types.Balance, error)
}
