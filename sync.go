package credits

import (
	"context"
	"time"

	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// SyncReport summarizes one reconciliation sweep.
type SyncReport = pending.SyncReport

// SyncPending replays queued offline debits in insertion order, each with
// its id as the idempotency key. A transport failure keeps the item and
// ends the sweep; a rejection keeps the item and moves on; an
// acknowledgment removes the item and caches the returned balance.
// Acknowledged items are removed from the store once, at the end.
//
// The returned error reports why the sweep could not start or could not
// persist its result; per-item failures only show in the report.
func (l *Ledger) SyncPending(ctx context.Context) (SyncReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.IsConfigured(ctx) {
		return SyncReport{}, nil
	}
	if err := l.prepare(ctx); err != nil {
		return SyncReport{}, err
	}
	return l.syncPending(ctx)
}

// syncPending runs the sweep. Callers hold l.mu and have called prepare.
func (l *Ledger) syncPending(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	items, err := l.store.LoadPending(ctx)
	if err != nil || len(items) == 0 {
		return report, err
	}
	report.Remaining = len(items)

	ident, err := l.ensureIdentity(ctx)
	if err != nil {
		report.Stopped = billing.IsTransport(err)
		l.logger.Debug("sync skipped, identity unavailable", "pending", len(items), "error", err)
		return report, fromBilling("register", err)
	}

	start := time.Now()
	acked := make([]string, 0, len(items))
	for _, item := range items {
		report.Attempted++
		reply, err := l.api.Consume(ctx, ident.AccessToken, billing.ConsumeRequest{
			SubjectID:      ident.SubjectID,
			Action:         item.Action,
			Cost:           item.Cost,
			IdempotencyKey: item.ID,
		})
		if err != nil {
			l.plugins.EmitReplayFailed(ctx, item, err)
			if billing.IsTransport(err) {
				report.Stopped = true
				l.logger.Debug("sync stopped, service unreachable",
					"pending_id", item.ID,
					"error", err,
				)
				break
			}
			report.Rejected++
			l.logger.Warn("pending consumption rejected, keeping it queued",
				"pending_id", item.ID,
				"action", item.Action,
				"cost", item.Cost,
				"error", err,
			)
			continue
		}

		report.Replayed++
		acked = append(acked, item.ID)
		balance, fresh := l.settle(ctx, reply)
		l.plugins.EmitConsumptionReplayed(ctx, item, balance, fresh)
	}

	if len(acked) > 0 {
		if _, err := l.store.RemovePending(ctx, acked...); err != nil {
			return report, err
		}
	}
	report.Remaining = len(items) - len(acked)

	elapsed := time.Since(start)
	l.logger.Info("pending consumptions synced",
		"attempted", report.Attempted,
		"replayed", report.Replayed,
		"rejected", report.Rejected,
		"remaining", report.Remaining,
		"stopped", report.Stopped,
		"elapsed", elapsed,
	)
	l.plugins.EmitSyncCompleted(ctx, report, elapsed)
	return report, nil
}

// DropPending removes a queued item without replaying it. The locally
// debited credits are not restored.
func (l *Ledger) DropPending(ctx context.Context, cid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.store.RemovePending(ctx, cid)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPendingNotFound
	}
	l.logger.Warn("pending consumption dropped", "pending_id", cid)
	return nil
}

// Reconciliation compares the authoritative balance with local state.
type Reconciliation struct {
	// Cached is the balance cached before the check; HasCached is false
	// when none was.
	Cached    types.Balance
	HasCached bool
	// Pending is the queued total before the check.
	Pending int64
	// Server is the balance reported by the billing service.
	Server types.Balance
	// Discrepancy is set when a cached balance existed and the server total
	// differs from the cached total plus the queued total.
	Discrepancy bool
}

// Expected is the server total implied by local state.
func (r *Reconciliation) Expected() int64 { return r.Cached.Total() + r.Pending }

// Reconcile reads the authoritative balance and checks it against the
// cached balance plus unreplayed local debits. Unlike GetBalance it does
// not fall back to the cache: a failed read is returned as an error.
func (l *Ledger) Reconcile(ctx context.Context) (*Reconciliation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cached, hasCached, err := l.CachedBalance(ctx)
	if err != nil {
		return nil, err
	}
	queued, err := l.store.PendingTotal(ctx)
	if err != nil {
		return nil, err
	}

	server, err := l.refreshBalance(ctx)
	if err != nil {
		return nil, err
	}

	r := &Reconciliation{
		Cached:    cached,
		HasCached: hasCached,
		Pending:   queued,
		Server:    server,
	}
	r.Discrepancy = hasCached && server.Total() != r.Expected()
	if r.Discrepancy {
		l.logger.Warn("balance discrepancy",
			"server", server.String(),
			"cached", cached.String(),
			"pending", queued,
		)
	}
	return r, nil
}
