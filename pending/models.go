// Package pending models the write-ahead queue of offline consumptions that
// the billing service has not acknowledged yet.
package pending

import (
	"strings"
	"time"

	"github.com/xraph/credits/id"
)

// Consumption is a locally approved charge awaiting replay. ID is unique
// within the queue and doubles as the idempotency key sent with the replay.
// New issues "pcon_" TypeIDs; ids written by other clients are kept
// verbatim.
type Consumption struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Cost      int64     `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a consumption with a fresh id stamped at now.
func New(action string, cost int64, now time.Time) *Consumption {
	return &Consumption{
		ID:        id.NewConsumptionID().String(),
		Action:    action,
		Cost:      cost,
		CreatedAt: now.UTC(),
	}
}

// Valid reports whether the record can be replayed.
func (c *Consumption) Valid() bool {
	return c != nil && strings.TrimSpace(c.ID) != "" && c.Action != "" && c.Cost > 0
}

// Without returns items minus those whose id is listed, preserving order,
// and the number removed.
func Without(items []*Consumption, ids ...string) ([]*Consumption, int) {
	drop := make(map[string]struct{}, len(ids))
	for _, cid := range ids {
		drop[cid] = struct{}{}
	}
	kept := make([]*Consumption, 0, len(items))
	for _, c := range items {
		if _, ok := drop[c.ID]; ok {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(items) - len(kept)
}

// Total sums the cost of items.
func Total(items []*Consumption) int64 {
	var sum int64
	for _, c := range items {
		sum += c.Cost
	}
	return sum
}
