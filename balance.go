package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/types"
)

// GetBalance fetches the authoritative balance and caches it. When the
// service cannot be used it degrades to the cached balance, or zero when
// nothing is cached; only a store failure is returned as an error. It does
// not replay queued debits.
func (l *Ledger) GetBalance(ctx context.Context) (types.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.refreshBalance(ctx)
	if err == nil {
		return b, nil
	}

	cached, cerr := l.cachedOrZero(ctx)
	if cerr != nil {
		return types.Zero, cerr
	}
	l.logger.Debug("balance read degraded to cache",
		"balance", cached.String(),
		"error", err,
	)
	l.plugins.EmitBalanceFallback(ctx, cached, err)
	return cached, nil
}

// refreshBalance reads the balance from the service. Callers hold l.mu.
func (l *Ledger) refreshBalance(ctx context.Context) (types.Balance, error) {
	ident, err := l.remoteIdentity(ctx)
	if err != nil {
		return types.Zero, err
	}
	reply, err := l.api.Balance(ctx, ident.AccessToken)
	if err != nil {
		return types.Zero, fromBilling("balance", err)
	}
	b, fresh := l.settle(ctx, reply)
	if fresh {
		l.plugins.EmitBalanceRefreshed(ctx, b)
	}
	return b, nil
}

// WaitForBalance polls GetBalance every poll interval until paid credits
// reach minPaid or timeout elapses, and returns the last balance observed.
// Timing out is not an error. A satisfied first read, or a non-positive
// timeout, returns without waiting. Cancelling ctx returns the last
// balance with ctx.Err().
func (l *Ledger) WaitForBalance(ctx context.Context, minPaid int64, timeout time.Duration) (types.Balance, error) {
	last, err := l.GetBalance(ctx)
	if err != nil {
		return last, err
	}
	if last.PaidCredits >= minPaid || timeout <= 0 {
		return last, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-deadline.C:
			return last, nil
		case <-ticker.C:
			b, err := l.GetBalance(ctx)
			if err != nil {
				return last, err
			}
			last = b
			if last.PaidCredits >= minPaid {
				return last, nil
			}
		}
	}
}
