package credits

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	tests := []struct {
		name     string
		err      error
		config   bool
		payment  bool
		external bool
		status   int
	}{
		{"config", &ConfigError{}, true, false, false, 0},
		{"offline payment", &PaymentRequiredError{Message: "insufficient"}, false, true, false, 0},
		{"server payment", &PaymentRequiredError{Message: "insufficient", StatusCode: 402}, false, true, false, 402},
		{"transport", &ExternalServiceError{Op: "consume", Err: cause}, false, false, true, 0},
		{"rejection", &ExternalServiceError{Op: "consume", Message: "boom", StatusCode: 500}, false, false, true, 500},
		{"wrapped", fmt.Errorf("ensure credit: %w", &PaymentRequiredError{StatusCode: 402}), false, true, false, 402},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.config, IsConfigError(tt.err))
			assert.Equal(t, tt.payment, IsPaymentRequired(tt.err))
			assert.Equal(t, tt.external, IsExternalService(tt.err))
			assert.Equal(t, tt.status, StatusCode(tt.err))
		})
	}
}

func TestExternalServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &ExternalServiceError{Op: "balance", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "credits: balance failed: timeout", err.Error())
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "credits: billing endpoint not configured", (&ConfigError{}).Error())
	assert.Equal(t, "credits: payment required (402): no credits",
		(&PaymentRequiredError{Message: "no credits", StatusCode: 402}).Error())
	assert.Equal(t, "credits: checkout failed (503): unavailable",
		(&ExternalServiceError{Op: "checkout", Message: "unavailable", StatusCode: 503}).Error())
	assert.ErrorIs(t, ValidationError{Field: "cost", Message: "must be positive"}, ErrInvalidInput)
}
