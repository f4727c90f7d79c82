package billing

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/xraph/credits/types"
)

// Wire paths of the billing service.
const (
	PathRegister = "/v1/identity/anonymous"
	PathConsume  = "/v1/credits/consume"
	PathCheckout = "/v1/billing/checkout"
	PathBalance  = "/v1/me/balance"
)

// HeaderIdempotencyKey carries the replay key of a queued consumption.
const HeaderIdempotencyKey = "Idempotency-Key"

// API is the remote billing contract consumed by the ledger. Every call
// either succeeds or fails with *TransportError or *RejectionError; the
// only other failures are the local preconditions ErrNoBaseURL and
// ErrMissingToken.
type API interface {
	BaseURL() string
	SetBaseURL(base string)

	Register(ctx context.Context, deviceID string) (*Registration, error)
	Consume(ctx context.Context, token string, req ConsumeRequest) (*BalanceReply, error)
	Checkout(ctx context.Context, token, subjectID string) (string, error)
	Balance(ctx context.Context, token string) (*BalanceReply, error)
}

type registerRequest struct {
	DeviceID string `json:"device_id"`
}

// Registration is the anonymous identity issued for a device.
type Registration struct {
	SubjectID   string `json:"subject_id"`
	AccessToken string `json:"access_token"`
}

// ConsumeRequest charges cost credits to SubjectID. IdempotencyKey is set
// when a queued consumption is replayed.
type ConsumeRequest struct {
	SubjectID      string `json:"subject_id"`
	Action         string `json:"action"`
	Cost           int64  `json:"cost"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type checkoutRequest struct {
	SubjectID string `json:"subject_id"`
}

// BalanceReply is a successful consume or balance response. HasBalance is
// false when the body lacked well-formed integer counts.
type BalanceReply struct {
	Balance    types.Balance
	HasBalance bool
}

func parseBalanceReply(body []byte) *BalanceReply {
	free := gjson.GetBytes(body, "free_remaining")
	paid := gjson.GetBytes(body, "paid_credits")
	if !isCount(free) || !isCount(paid) {
		return &BalanceReply{}
	}
	return &BalanceReply{
		Balance:    types.NewBalance(free.Int(), paid.Int()),
		HasBalance: true,
	}
}

func isCount(v gjson.Result) bool {
	return v.Type == gjson.Number && v.Float() == float64(v.Int()) && v.Int() >= 0
}

// errorMessage extracts a human-readable message from an error body:
// {"error":"..."}, {"error":{"message"|"detail":"..."}}, {"message":"..."},
// otherwise the raw text.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		e := gjson.GetBytes(body, "error")
		switch {
		case e.Type == gjson.String && e.String() != "":
			return e.String()
		case e.IsObject():
			for _, key := range []string{"message", "detail"} {
				if m := e.Get(key); m.Type == gjson.String && m.String() != "" {
					return m.String()
				}
			}
		}
		if m := gjson.GetBytes(body, "message"); m.Type == gjson.String && m.String() != "" {
			return m.String()
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "unknown error"
}
