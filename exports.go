package credits

import (
	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// Re-export common types for convenience so users don't have to import the
// subpackages.

// Balance is re-exported from types package.
type Balance = types.Balance

// Identity is re-exported from identity package.
type Identity = identity.Identity

// Consumption is re-exported from pending package.
type Consumption = pending.Consumption

// Re-export Balance constructors
var (
	NewBalance  = types.NewBalance
	ZeroBalance = types.Zero
)
