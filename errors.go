package credits

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/credits/billing"
)

// Sentinel errors for common failure scenarios.
var (
	// Taxonomy seen by callers
	ErrNotConfigured   = errors.New("credits: billing endpoint not configured")
	ErrPaymentRequired = errors.New("credits: payment required")
	ErrExternalService = errors.New("credits: external service error")

	// Input errors
	ErrInvalidInput = errors.New("credits: invalid input")

	// Local state errors
	ErrBalanceNotCached      = errors.New("credits: no cached balance")
	ErrInsufficientCredits   = errors.New("credits: insufficient cached credits")
	ErrIdentityNotRegistered = errors.New("credits: identity not registered")
	ErrPendingNotFound       = errors.New("credits: pending consumption not found")

	// Store errors
	ErrStoreClosed     = errors.New("credits: store is closed")
	ErrMigrationFailed = errors.New("credits: migration failed")
)

// ConfigError reports that the billing endpoint is not configured.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	if e.Message == "" {
		return ErrNotConfigured.Error()
	}
	return "credits: " + e.Message
}

// Is matches ErrNotConfigured.
func (e *ConfigError) Is(target error) bool { return target == ErrNotConfigured }

// PaymentRequiredError reports insufficient credits, either from a server
// rejection (StatusCode set) or from the offline insufficiency check
// (StatusCode zero).
type PaymentRequiredError struct {
	Message    string
	StatusCode int
}

func (e *PaymentRequiredError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("credits: payment required (%d): %s", e.StatusCode, e.Message)
	}
	return "credits: payment required: " + e.Message
}

// Is matches ErrPaymentRequired.
func (e *PaymentRequiredError) Is(target error) bool { return target == ErrPaymentRequired }

// ExternalServiceError covers every other transport or server failure.
// StatusCode is zero when no response was received.
type ExternalServiceError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("credits: %s failed (%d): %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("credits: %s failed: %s", e.Op, msg)
}

// Is matches ErrExternalService.
func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Is matches ErrInvalidInput.
func (e ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// IsConfigError returns true if the billing endpoint is not configured.
func IsConfigError(err error) bool { return errors.Is(err, ErrNotConfigured) }

// IsPaymentRequired returns true if the caller should be offered a checkout.
func IsPaymentRequired(err error) bool { return errors.Is(err, ErrPaymentRequired) }

// IsExternalService returns true for transport and server failures.
func IsExternalService(err error) bool { return errors.Is(err, ErrExternalService) }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pr *PaymentRequiredError
	if errors.As(err, &pr) {
		return pr.StatusCode
	}
	var es *ExternalServiceError
	if errors.As(err, &es) {
		return es.StatusCode
	}
	return 0
}

// fromBilling maps a billing client failure onto the caller taxonomy. A
// 402 rejection becomes *PaymentRequiredError; everything else from the
// service becomes *ExternalServiceError. Local errors pass through.
func fromBilling(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, billing.ErrNoBaseURL) {
		return &ConfigError{}
	}
	if rej, ok := billing.AsRejection(err); ok {
		if rej.StatusCode == http.StatusPaymentRequired {
			return &PaymentRequiredError{Message: rej.Message, StatusCode: rej.StatusCode}
		}
		return &ExternalServiceError{Op: op, Message: rej.Message, StatusCode: rej.StatusCode, Err: err}
	}
	if billing.IsTransport(err) || errors.Is(err, billing.ErrMissingToken) {
		return &ExternalServiceError{Op: op, Err: err}
	}
	return err
}
