// Package types provides value types shared across the credit client.
package types

import "fmt"

// Balance is a credit count split into the free allowance and purchased
// credits. All arithmetic is integer-only and neither field goes negative.
type Balance struct {
	FreeRemaining int64 `json:"free_remaining"`
	PaidCredits   int64 `json:"paid_credits"`
}

// NewBalance builds a Balance, clamping negative inputs to zero.
func NewBalance(free, paid int64) Balance {
	return Balance{FreeRemaining: max(free, 0), PaidCredits: max(paid, 0)}
}

// Zero is the empty balance.
var Zero = Balance{}

// Total returns free plus paid credits.
func (b Balance) Total() int64 { return b.FreeRemaining + b.PaidCredits }

// Valid reports whether both counts are non-negative.
func (b Balance) Valid() bool { return b.FreeRemaining >= 0 && b.PaidCredits >= 0 }

// Covers reports whether the balance can pay for cost.
func (b Balance) Covers(cost int64) bool { return cost >= 0 && b.Total() >= cost }

// Debit removes cost, drawing on the free allowance before paid credits.
// It returns the unchanged balance and false when the funds are insufficient.
func (b Balance) Debit(cost int64) (Balance, bool) {
	if !b.Valid() || !b.Covers(cost) {
		return b, false
	}
	fromFree := min(cost, b.FreeRemaining)
	return Balance{
		FreeRemaining: b.FreeRemaining - fromFree,
		PaidCredits:   b.PaidCredits - (cost - fromFree),
	}, true
}

// Equal reports whether both counts match.
func (b Balance) Equal(other Balance) bool {
	return b.FreeRemaining == other.FreeRemaining && b.PaidCredits == other.PaidCredits
}

// String renders the balance as "free=N paid=M".
func (b Balance) String() string {
	return fmt.Sprintf("free=%d paid=%d", b.FreeRemaining, b.PaidCredits)
}
