package paywall_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/billing/billingtest"
	"github.com/xraph/credits/paywall"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newGate(t *testing.T, srv *billingtest.Server, cfg credits.Config) *paywall.Gate {
	t.Helper()
	if srv != nil {
		cfg.APIBase = srv.URL
	}
	l := credits.New(memory.New(), credits.WithConfig(cfg), credits.WithLogger(quiet))
	return paywall.New(l, paywall.WithLogger(quiet))
}

func TestGateApproves(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()

	d := newGate(t, srv, credits.DefaultConfig()).EnsureCredit(context.Background(), "generate_report", 1)
	require.NoError(t, d.Err)
	assert.True(t, d.OK)
	assert.False(t, d.Bypass)
	assert.Equal(t, types.NewBalance(4, 0), d.Balance)
}

func TestGateBypassSkipsLedger(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()
	cfg := credits.DefaultConfig()
	cfg.Bypass = true

	d := newGate(t, srv, cfg).EnsureCredit(context.Background(), "x", 1)
	assert.True(t, d.OK)
	assert.True(t, d.Bypass)
	assert.Zero(t, srv.Calls(billing.PathRegister))
	assert.Zero(t, srv.Calls(billing.PathConsume))
}

func TestGateUnconfigured(t *testing.T) {
	d := newGate(t, nil, credits.DefaultConfig()).EnsureCredit(context.Background(), "x", 1)
	assert.False(t, d.OK)
	assert.True(t, credits.IsConfigError(d.Err))
	assert.Empty(t, d.CheckoutURL)
}

func TestGateOffersCheckout(t *testing.T) {
	srv := billingtest.New(billingtest.WithFreeGrant(0))
	defer srv.Close()

	d := newGate(t, srv, credits.DefaultConfig()).EnsureCredit(context.Background(), "x", 1)
	assert.False(t, d.OK)
	assert.True(t, d.NeedsPayment())
	assert.Equal(t, srv.CheckoutURL("s1"), d.CheckoutURL)
	assert.True(t, credits.IsPaymentRequired(d.Err))
}

func TestGateCheckoutFailure(t *testing.T) {
	srv := billingtest.New(billingtest.WithFreeGrant(0))
	defer srv.Close()
	srv.RejectNext(billing.PathCheckout, http.StatusServiceUnavailable, "checkout disabled")

	d := newGate(t, srv, credits.DefaultConfig()).EnsureCredit(context.Background(), "x", 1)
	assert.False(t, d.OK)
	assert.Empty(t, d.CheckoutURL)
	var es *credits.ExternalServiceError
	require.True(t, errors.As(d.Err, &es))
	assert.Equal(t, "checkout disabled", es.Message)
}

func TestGateServiceError(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()
	srv.SetOffline(true)

	d := newGate(t, srv, credits.DefaultConfig()).EnsureCredit(context.Background(), "x", 1)
	assert.False(t, d.OK)
	assert.True(t, credits.IsExternalService(d.Err))
	assert.Zero(t, srv.Calls(billing.PathCheckout))
}
