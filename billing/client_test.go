package billing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/billing/billingtest"
	"github.com/xraph/credits/types"
)

func register(t *testing.T, c *billing.Client) *billing.Registration {
	t.Helper()
	reg, err := c.Register(context.Background(), "dev_test")
	require.NoError(t, err)
	return reg
}

func TestClientAgainstFakeService(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()
	ctx := context.Background()
	c := billing.NewClient(srv.URL + "/")
	assert.Equal(t, srv.URL, c.BaseURL(), "trailing slash trimmed")

	reg := register(t, c)
	assert.Equal(t, "s1", reg.SubjectID)
	assert.NotEmpty(t, reg.AccessToken)

	reply, err := c.Consume(ctx, reg.AccessToken, billing.ConsumeRequest{
		SubjectID: reg.SubjectID, Action: "generate_report", Cost: 1,
	})
	require.NoError(t, err)
	assert.True(t, reply.HasBalance)
	assert.Equal(t, types.NewBalance(4, 0), reply.Balance)

	reply, err = c.Balance(ctx, reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, types.NewBalance(4, 0), reply.Balance)

	url, err := c.Checkout(ctx, reg.AccessToken, reg.SubjectID)
	require.NoError(t, err)
	assert.Equal(t, srv.CheckoutURL("s1"), url)
}

func TestConsumeIdempotencyKey(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()
	ctx := context.Background()
	c := billing.NewClient(srv.URL)
	reg := register(t, c)

	req := billing.ConsumeRequest{SubjectID: reg.SubjectID, Action: "x", Cost: 2, IdempotencyKey: "pcon_1"}
	first, err := c.Consume(ctx, reg.AccessToken, req)
	require.NoError(t, err)
	second, err := c.Consume(ctx, reg.AccessToken, req)
	require.NoError(t, err)

	assert.Equal(t, first.Balance, second.Balance)
	assert.Equal(t, types.NewBalance(3, 0), srv.BalanceOf(reg.SubjectID))
	assert.Len(t, srv.Charges(), 1)
	assert.Equal(t, 2, srv.Calls(billing.PathConsume))
}

func TestPaymentRequiredIsRejection(t *testing.T) {
	srv := billingtest.New(billingtest.WithFreeGrant(0))
	defer srv.Close()
	c := billing.NewClient(srv.URL)
	reg := register(t, c)

	_, err := c.Consume(context.Background(), reg.AccessToken, billing.ConsumeRequest{
		SubjectID: reg.SubjectID, Action: "x", Cost: 1,
	})
	rej, ok := billing.AsRejection(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusPaymentRequired, rej.StatusCode)
	assert.Equal(t, "insufficient credits", rej.Message)
	assert.False(t, billing.IsTransport(err))
}

func TestOutageIsTransportFailure(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()
	c := billing.NewClient(srv.URL)
	reg := register(t, c)

	srv.SetOffline(true)
	_, err := c.Balance(context.Background(), reg.AccessToken)
	require.Error(t, err)
	assert.True(t, billing.IsTransport(err))
	_, isRejection := billing.AsRejection(err)
	assert.False(t, isRejection)

	srv.SetOffline(false)
	_, err = c.Balance(context.Background(), reg.AccessToken)
	assert.NoError(t, err)
}

func TestScriptedRejection(t *testing.T) {
	srv := billingtest.New()
	defer srv.Close()
	c := billing.NewClient(srv.URL)

	srv.RejectNext(billing.PathRegister, http.StatusServiceUnavailable, "maintenance")
	_, err := c.Register(context.Background(), "dev_a")
	rej, ok := billing.AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, rej.StatusCode)
	assert.Equal(t, "maintenance", rej.Message)

	_, err = c.Register(context.Background(), "dev_a")
	assert.NoError(t, err)
}

func TestLocalPreconditions(t *testing.T) {
	ctx := context.Background()
	c := billing.NewClient("  ")

	_, err := c.Register(ctx, "dev")
	assert.ErrorIs(t, err, billing.ErrNoBaseURL)

	c.SetBaseURL("http://127.0.0.1:1")
	_, err = c.Balance(ctx, "")
	assert.ErrorIs(t, err, billing.ErrMissingToken)
	_, err = c.Checkout(ctx, "", "s1")
	assert.ErrorIs(t, err, billing.ErrMissingToken)
}

func TestResponseClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		wantReply bool
	}{
		{name: "error string", status: 400, body: `{"error":"bad cost"}`, wantMsg: "bad cost"},
		{name: "error detail", status: 409, body: `{"error":{"detail":"conflict"}}`, wantMsg: "conflict"},
		{name: "top-level message", status: 500, body: `{"message":"boom"}`, wantMsg: "boom"},
		{name: "plain text", status: 502, body: "bad gateway\n", wantMsg: "bad gateway"},
		{name: "empty body", status: 500, body: "", wantMsg: "unknown error"},
		{name: "invalid json on success", status: 200, body: "<html>", wantMsg: "invalid JSON response"},
		{name: "success without counts", status: 200, body: `{"ok":true}`, wantReply: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck // test server
			}))
			defer srv.Close()

			reply, err := billing.NewClient(srv.URL).Balance(context.Background(), "tok")
			if tt.wantReply {
				require.NoError(t, err)
				assert.False(t, reply.HasBalance)
				return
			}
			rej, ok := billing.AsRejection(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.status, rej.StatusCode)
			assert.Equal(t, tt.wantMsg, rej.Message)
		})
	}
}

func TestRequestShape(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte(`{"free_remaining":0,"paid_credits":7}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	c := billing.NewClient(srv.URL, billing.WithUserAgent("creditctl/test"))
	reply, err := c.Consume(context.Background(), "tok", billing.ConsumeRequest{
		SubjectID: "s1", Action: "x", Cost: 1, IdempotencyKey: "pcon_abc",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewBalance(0, 7), reply.Balance)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, billing.PathConsume, got.URL.Path)
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Equal(t, "pcon_abc", got.Header.Get(billing.HeaderIdempotencyKey))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "creditctl/test", got.Header.Get("User-Agent"))
}

func TestCheckoutURLFallbacks(t *testing.T) {
	for body, want := range map[string]string{
		`{"checkout_url":"https://pay/a"}`: "https://pay/a",
		`{"url":"https://pay/b"}`:          "https://pay/b",
		`{}`:                               "",
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(body)) //nolint:errcheck // test server
		}))
		url, err := billing.NewClient(srv.URL).Checkout(context.Background(), "tok", "s1")
		srv.Close()

		if want == "" {
			rej, ok := billing.AsRejection(err)
			require.True(t, ok)
			assert.Equal(t, "checkout URL missing", rej.Message)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, want, url)
	}
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := billing.NewClient(srv.URL, billing.WithTimeout(50*time.Millisecond))
	_, err := c.Balance(context.Background(), "tok")
	assert.True(t, billing.IsTransport(err))

	var te *billing.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "balance", te.Op)
}

func TestBrokenBodyAfterStatusIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"free_`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	_, err := billing.NewClient(srv.URL).Consume(context.Background(), "tok", billing.ConsumeRequest{
		SubjectID: "s1", Action: "x", Cost: 1, IdempotencyKey: "pcon_1",
	})
	require.Error(t, err)
	assert.False(t, billing.IsTransport(err), "a status line arrived")
	rej, ok := billing.AsRejection(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, http.StatusOK, rej.StatusCode)
	assert.Contains(t, rej.Message, "read body")
}
