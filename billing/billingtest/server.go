// Package billingtest runs an in-process billing service for tests and
// local demos. It implements the four billing endpoints with per-subject
// balances, deduplicates consumes by idempotency key, and can simulate
// outages and scripted rejections.
package billingtest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/types"
)

// DefaultFreeGrant is the free allowance of a newly registered subject.
const DefaultFreeGrant = 5

// Option configures a Server.
type Option func(*Server)

// WithFreeGrant sets the free allowance of new subjects.
func WithFreeGrant(n int64) Option {
	return func(s *Server) { s.freeGrant = n }
}

// Charge records one accepted debit.
type Charge struct {
	SubjectID      string
	Action         string
	Cost           int64
	IdempotencyKey string
}

type rejection struct {
	status  int
	message string
}

// Server is a fake billing service. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	freeGrant int64
	nextID    atomic.Int64
	offline   atomic.Bool

	devices  *haxmap.Map[string, string]        // device id -> subject id
	tokens   *haxmap.Map[string, string]        // access token -> subject id
	replies  *haxmap.Map[string, types.Balance] // idempotency key -> reply
	counters *haxmap.Map[string, *atomic.Int64] // path -> calls

	mu         sync.Mutex
	balances   map[string]types.Balance
	charges    []Charge
	rejections map[string][]rejection
}

// New starts a Server. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		freeGrant:  DefaultFreeGrant,
		devices:    haxmap.New[string, string](),
		tokens:     haxmap.New[string, string](),
		replies:    haxmap.New[string, types.Balance](),
		counters:   haxmap.New[string, *atomic.Int64](),
		balances:   make(map[string]types.Balance),
		rejections: make(map[string][]rejection),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.count, s.outage, s.scripted)
	r.Post(billing.PathRegister, s.handleRegister)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post(billing.PathConsume, s.handleConsume)
		r.Post(billing.PathCheckout, s.handleCheckout)
		r.Get(billing.PathBalance, s.handleBalance)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// ──────────────────────────────────────────────────
// Controls
// ──────────────────────────────────────────────────

// SetOffline makes every request fail at the transport level while on.
func (s *Server) SetOffline(offline bool) { s.offline.Store(offline) }

// RejectNext makes the next request to path fail with status and message.
// Calls queue up per path.
func (s *Server) RejectNext(path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[path] = append(s.rejections[path], rejection{status: status, message: message})
}

// Grant adds paid credits to a subject.
func (s *Server) Grant(subjectID string, paid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[subjectID]
	s.balances[subjectID] = types.NewBalance(b.FreeRemaining, b.PaidCredits+paid)
}

// SetBalance overwrites a subject's balance.
func (s *Server) SetBalance(subjectID string, b types.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[subjectID] = b
}

// BalanceOf returns a subject's authoritative balance.
func (s *Server) BalanceOf(subjectID string) types.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[subjectID]
}

// SubjectFor returns the subject registered for deviceID, if any.
func (s *Server) SubjectFor(deviceID string) (string, bool) {
	return s.devices.Get(deviceID)
}

// Charges returns every accepted debit in order. Deduplicated replays are
// not repeated.
func (s *Server) Charges() []Charge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Charge(nil), s.charges...)
}

// Calls returns how many requests reached path, including failed ones.
func (s *Server) Calls(path string) int {
	if c, ok := s.counters.Get(path); ok {
		return int(c.Load())
	}
	return 0
}

// CheckoutURL is the URL handed out for a subject's checkout.
func (s *Server) CheckoutURL(subjectID string) string {
	return s.URL + "/checkout/" + subjectID
}

// ──────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := s.counters.GetOrSet(r.URL.Path, new(atomic.Int64))
		c.Add(1)
		next.ServeHTTP(w, r)
	})
}

// outage drops the connection without a response.
func (s *Server) outage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.offline.Load() {
			next.ServeHTTP(w, r)
			return
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("billingtest: response writer cannot hijack")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			panic(err)
		}
		conn.Close() //nolint:errcheck // simulated outage
	})
}

func (s *Server) scripted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		queue := s.rejections[r.URL.Path]
		var rej *rejection
		if len(queue) > 0 {
			rej = &queue[0]
			s.rejections[r.URL.Path] = queue[1:]
		}
		s.mu.Unlock()

		if rej != nil {
			writeError(w, rej.status, rej.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type subjectKey struct{}

func subjectOf(r *http.Request) string {
	subject, _ := r.Context().Value(subjectKey{}).(string)
	return subject
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		subject, ok := s.tokens.Get(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
	})
}

// ──────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	subject, loaded := s.devices.GetOrCompute(req.DeviceID, func() string {
		return "s" + strconv.FormatInt(s.nextID.Add(1), 10)
	})
	if !loaded {
		s.mu.Lock()
		s.balances[subject] = types.NewBalance(s.freeGrant, 0)
		s.mu.Unlock()
	}
	token := uuid.NewString()
	s.tokens.Set(token, subject)

	writeJSON(w, http.StatusOK, map[string]string{
		"subject_id":   subject,
		"access_token": token,
	})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req billing.ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subject := subjectOf(r)
	switch {
	case req.SubjectID != subject:
		writeError(w, http.StatusForbidden, "subject mismatch")
		return
	case req.Action == "" || req.Cost <= 0:
		writeError(w, http.StatusBadRequest, "action and positive cost are required")
		return
	}
	key := r.Header.Get(billing.HeaderIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if prior, ok := s.replies.Get(key); ok {
			writeBalance(w, prior)
			return
		}
	}
	next, ok := s.balances[subject].Debit(req.Cost)
	if !ok {
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return
	}
	s.balances[subject] = next
	s.charges = append(s.charges, Charge{
		SubjectID:      subject,
		Action:         req.Action,
		Cost:           req.Cost,
		IdempotencyKey: key,
	})
	if key != "" {
		s.replies.Set(key, next)
	}
	writeBalance(w, next)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectID string `json:"subject_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if subject := subjectOf(r); req.SubjectID != subject {
		writeError(w, http.StatusForbidden, "subject mismatch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkout_url": s.CheckoutURL(req.SubjectID)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeBalance(w, s.BalanceOf(subjectOf(r)))
}

func writeBalance(w http.ResponseWriter, b types.Balance) {
	writeJSON(w, http.StatusOK, b)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck // client may have gone away
}
