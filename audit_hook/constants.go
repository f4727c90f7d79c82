package audithook

// Action constants for audit events.
const (
	// Identity actions
	ActionIdentityRegistered = "identity.registered"
	ActionIdentityReset      = "identity.reset"

	// Charge actions
	ActionCreditConsumed        = "credit.consumed"
	ActionCreditConsumedOffline = "credit.consumed_offline"
	ActionPaymentRequired       = "credit.payment_required"
	ActionCheckoutCreated       = "checkout.created"

	// Reconciliation actions
	ActionConsumptionReplayed = "pending.replayed"
	ActionReplayFailed        = "pending.replay_failed"
	ActionSyncCompleted       = "pending.synced"
)

// Resource constants for audit events.
const (
	ResourceIdentity    = "identity"
	ResourceCredit      = "credit"
	ResourceConsumption = "consumption"
	ResourceCheckout    = "checkout"
	ResourceQueue       = "pending_queue"
)

// Category constants for audit events.
const (
	CategoryIdentity  = "identity"
	CategoryBilling   = "billing"
	CategoryPayment   = "payment"
	CategoryOffline   = "offline"
	CategoryReconcile = "reconciliation"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
