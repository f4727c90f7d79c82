package credits

import "github.com/xraph/credits/id"

// ConsumptionID is the id issued for offline debits queued by this client.
// Queue entries carry its string form, which doubles as the idempotency key.
type ConsumptionID = id.ConsumptionID

// ParseConsumptionID parses a "pcon_..." identifier.
var ParseConsumptionID = id.ParseConsumptionID
