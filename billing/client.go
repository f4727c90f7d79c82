// Package billing implements the HTTP client for the remote billing
// service: anonymous registration, credit consumption, checkout sessions
// and balance reads.
//
// Failures are split into two classes that drive different recovery:
// *TransportError when no response arrived and *RejectionError when the
// service answered with a failure or an unusable body.
package billing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 20 * time.Second

// maxBodySize caps how much of a response is read.
const maxBodySize = 1 << 20

// compile-time interface check
var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client talks JSON over HTTP to the billing service.
type Client struct {
	mu      sync.RWMutex
	baseURL string

	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewClient creates a Client. An empty baseURL leaves the client
// unconfigured until SetBaseURL is called.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   normalizeBase(baseURL),
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: "credits-client/1",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint root without a trailing slash.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL points the client at a new endpoint root.
func (c *Client) SetBaseURL(base string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = normalizeBase(base)
}

// Register obtains an anonymous subject and access token for deviceID.
func (c *Client) Register(ctx context.Context, deviceID string) (*Registration, error) {
	const op = "register"
	res, err := c.do(ctx, op, http.MethodPost, PathRegister, "", "", registerRequest{DeviceID: deviceID})
	if err != nil {
		return nil, err
	}
	reg := &Registration{
		SubjectID:   gjson.GetBytes(res.body, "subject_id").String(),
		AccessToken: gjson.GetBytes(res.body, "access_token").String(),
	}
	if reg.SubjectID == "" || reg.AccessToken == "" {
		return nil, &RejectionError{Op: op, StatusCode: res.status, Message: "invalid identity response"}
	}
	return reg, nil
}

// Consume charges credits. When req.IdempotencyKey is set it is also sent
// as the Idempotency-Key header.
func (c *Client) Consume(ctx context.Context, token string, req ConsumeRequest) (*BalanceReply, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	res, err := c.do(ctx, "consume", http.MethodPost, PathConsume, token, req.IdempotencyKey, req)
	if err != nil {
		return nil, err
	}
	return parseBalanceReply(res.body), nil
}

// Checkout creates a checkout session and returns its URL. Both
// "checkout_url" and "url" are accepted.
func (c *Client) Checkout(ctx context.Context, token, subjectID string) (string, error) {
	const op = "checkout"
	if token == "" {
		return "", ErrMissingToken
	}
	res, err := c.do(ctx, op, http.MethodPost, PathCheckout, token, "", checkoutRequest{SubjectID: subjectID})
	if err != nil {
		return "", err
	}
	for _, key := range []string{"checkout_url", "url"} {
		if u := gjson.GetBytes(res.body, key); u.Type == gjson.String && u.String() != "" {
			return u.String(), nil
		}
	}
	return "", &RejectionError{Op: op, StatusCode: res.status, Message: "checkout URL missing"}
}

// Balance reads the authoritative balance.
func (c *Client) Balance(ctx context.Context, token string) (*BalanceReply, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	res, err := c.do(ctx, "balance", http.MethodGet, PathBalance, token, "", nil)
	if err != nil {
		return nil, err
	}
	return parseBalanceReply(res.body), nil
}

type response struct {
	status int
	body   []byte
}

// do sends one request and classifies the outcome. A 2xx response must
// carry a JSON body.
func (c *Client) do(ctx context.Context, op, method, path, token, idempotencyKey string, payload any) (*response, error) {
	base := c.BaseURL()
	if base == "" {
		return nil, ErrNoBaseURL
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("billing: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, fmt.Errorf("billing: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("billing request failed", "op", op, "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close of a drained body

	// Once a status line arrived the server may have acted on the request,
	// so a broken body is a rejection, never a transport failure.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.logger.Debug("billing response body unreadable", "op", op, "status", resp.StatusCode, "error", err)
		return nil, &RejectionError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("read body: %v", err)}
	}
	c.logger.Debug("billing request",
		"op", op,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RejectionError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if !gjson.ValidBytes(data) {
		return nil, &RejectionError{Op: op, StatusCode: resp.StatusCode, Message: "invalid JSON response"}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func normalizeBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
