package pending

import "context"

// Store persists the queue in insertion order. A single writer is assumed
// unless the backend documents otherwise.
type Store interface {
	AppendPending(ctx context.Context, c *Consumption) error
	LoadPending(ctx context.Context) ([]*Consumption, error)
	// SavePending replaces the whole queue.
	SavePending(ctx context.Context, items []*Consumption) error
	PendingTotal(ctx context.Context) (int64, error)
	// RemovePending deletes the items with the given ids and reports how
	// many were found. Unknown ids are ignored.
	RemovePending(ctx context.Context, ids ...string) (int, error)
}
