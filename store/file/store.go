// Package file stores the credit client state as one section of a per-user
// JSON document. Sibling keys written by other parts of the application are
// preserved; only the configured section is rewritten.
//
// Writes go to a temporary file that is renamed over the document, so a
// crash never leaves a truncated document behind. The store serializes its
// own goroutines but does not coordinate with other processes; use the
// sqlite backend when several processes share one state.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/xraph/credits"
	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DefaultSection is the document key holding the credit client state.
const DefaultSection = "credits"

// Option configures a Store.
type Option func(*Store)

// WithSection sets the top-level document key. The name must not contain
// path metacharacters ('.', '*', '?', '|', '#').
func WithSection(name string) Option {
	return func(s *Store) { s.section = name }
}

// WithLogger sets the logger used for discarded entries.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store implements store.Store on a JSON document.
type Store struct {
	mu      sync.Mutex
	path    string
	section string
	logger  *slog.Logger
	closed  bool
}

// New returns a Store for the document at path. The file is created on the
// first write.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		section: DefaultSection,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPath returns <user config dir>/credits/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("credits/file: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "credits", "config.json"), nil
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// section is the persisted shape of the credit client state.
type section struct {
	APIBase     string                 `json:"api_base,omitempty"`
	DeviceID    string                 `json:"device_id,omitempty"`
	SubjectID   string                 `json:"subject_id,omitempty"`
	AccessToken string                 `json:"access_token,omitempty"`
	Balance     *types.Balance         `json:"balance,omitempty"`
	Pending     []*pending.Consumption `json:"pending_consumptions"`
}

// ==================== Identity ====================

func (s *Store) LoadIdentity(_ context.Context) (*identity.Identity, error) {
	sec, err := s.view()
	if err != nil {
		return nil, err
	}
	return &identity.Identity{
		DeviceID:    sec.DeviceID,
		SubjectID:   sec.SubjectID,
		AccessToken: sec.AccessToken,
	}, nil
}

func (s *Store) EnsureDeviceID(_ context.Context, candidate string) (string, error) {
	var out string
	err := s.update(func(sec *section) bool {
		if sec.DeviceID != "" {
			out = sec.DeviceID
			return false
		}
		sec.DeviceID = candidate
		out = candidate
		return true
	})
	return out, err
}

func (s *Store) SaveCredentials(_ context.Context, subjectID, accessToken string) error {
	return s.update(func(sec *section) bool {
		sec.SubjectID = subjectID
		sec.AccessToken = accessToken
		return true
	})
}

func (s *Store) ClearCredentials(_ context.Context) error {
	return s.update(func(sec *section) bool {
		sec.SubjectID = ""
		sec.AccessToken = ""
		return true
	})
}

// ==================== Settings ====================

func (s *Store) APIBase(_ context.Context) (string, error) {
	sec, err := s.view()
	if err != nil {
		return "", err
	}
	return sec.APIBase, nil
}

func (s *Store) SetAPIBase(_ context.Context, base string) error {
	return s.update(func(sec *section) bool {
		sec.APIBase = strings.TrimSpace(base)
		return true
	})
}

// ==================== Balance ====================

func (s *Store) SaveBalance(_ context.Context, b types.Balance) error {
	return s.update(func(sec *section) bool {
		sec.Balance = &b
		return true
	})
}

func (s *Store) LoadBalance(_ context.Context) (types.Balance, error) {
	sec, err := s.view()
	if err != nil {
		return types.Zero, err
	}
	if sec.Balance == nil {
		return types.Zero, credits.ErrBalanceNotCached
	}
	return *sec.Balance, nil
}

// ==================== Pending ====================

func (s *Store) AppendPending(_ context.Context, c *pending.Consumption) error {
	return s.update(func(sec *section) bool {
		sec.Pending = append(sec.Pending, c)
		return true
	})
}

func (s *Store) LoadPending(_ context.Context) ([]*pending.Consumption, error) {
	sec, err := s.view()
	if err != nil {
		return nil, err
	}
	return sec.Pending, nil
}

func (s *Store) SavePending(_ context.Context, items []*pending.Consumption) error {
	return s.update(func(sec *section) bool {
		sec.Pending = append([]*pending.Consumption(nil), items...)
		return true
	})
}

func (s *Store) PendingTotal(_ context.Context) (int64, error) {
	sec, err := s.view()
	if err != nil {
		return 0, err
	}
	return pending.Total(sec.Pending), nil
}

func (s *Store) RemovePending(_ context.Context, ids ...string) (int, error) {
	var removed int
	err := s.update(func(sec *section) bool {
		sec.Pending, removed = pending.Without(sec.Pending, ids...)
		return removed > 0
	})
	return removed, err
}

func (s *Store) CommitOfflineDebit(_ context.Context, c *pending.Consumption) (types.Balance, error) {
	var (
		next    types.Balance
		refused error
	)
	err := s.update(func(sec *section) bool {
		if sec.Balance == nil {
			refused = credits.ErrBalanceNotCached
			return false
		}
		var ok bool
		if next, ok = sec.Balance.Debit(c.Cost); !ok {
			refused = credits.ErrInsufficientCredits
			return false
		}
		sec.Balance = &next
		sec.Pending = append(sec.Pending, c)
		return true
	})
	if err != nil {
		return types.Zero, err
	}
	if refused != nil {
		return types.Zero, refused
	}
	return next, nil
}

// ==================== Core ====================

// Migrate creates the document directory.
func (s *Store) Migrate(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %w", credits.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks that the document is readable.
func (s *Store) Ping(_ context.Context) error {
	_, err := s.view()
	return err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Document I/O
// ──────────────────────────────────────────────────

func (s *Store) view() (*section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, credits.ErrStoreClosed
	}
	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	return s.decodeSection(doc), nil
}

// update applies fn to the section and writes the document when fn reports
// a change.
func (s *Store) update(fn func(*section) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	sec := s.decodeSection(doc)
	if !fn(sec) {
		return nil
	}
	if sec.Pending == nil {
		sec.Pending = []*pending.Consumption{}
	}
	raw, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("credits/file: encode section: %w", err)
	}
	doc, err = sjson.SetRawBytes(doc, s.section, raw)
	if err != nil {
		return fmt.Errorf("credits/file: set section: %w", err)
	}
	return s.writeDocument(doc)
}

// readDocument returns the document bytes, or "{}" when the file is missing
// or not a JSON object.
func (s *Store) readDocument() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credits/file: read %s: %w", s.path, err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		s.logger.Warn("credits document is not a JSON object, starting fresh", "path", s.path)
		return []byte("{}"), nil
	}
	return data, nil
}

func (s *Store) writeDocument(doc []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credits/file: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".credits-*.json")
	if err != nil {
		return fmt.Errorf("credits/file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup; fails harmlessly after rename

	out := pretty.PrettyOptions(doc, &pretty.Options{Width: 80, Indent: "  ", SortKeys: true})
	if _, err := tmp.Write(out); err != nil {
		tmp.Close() //nolint:errcheck // best-effort close after failed write
		return fmt.Errorf("credits/file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // best-effort close after failed sync
		return fmt.Errorf("credits/file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credits/file: close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("credits/file: chmod temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("credits/file: replace %s: %w", s.path, err)
	}
	return nil
}

// decodeSection reads the section tolerantly: a missing section is empty,
// a balance with non-integer counts is treated as absent, and malformed
// queue entries are dropped.
func (s *Store) decodeSection(doc []byte) *section {
	raw := gjson.GetBytes(doc, s.section)
	sec := &section{
		APIBase:     raw.Get("api_base").String(),
		DeviceID:    raw.Get("device_id").String(),
		SubjectID:   raw.Get("subject_id").String(),
		AccessToken: raw.Get("access_token").String(),
	}

	if b := raw.Get("balance"); b.IsObject() {
		free, paid := b.Get("free_remaining"), b.Get("paid_credits")
		if isCount(free) && isCount(paid) {
			bal := types.NewBalance(free.Int(), paid.Int())
			sec.Balance = &bal
		}
	}

	raw.Get("pending_consumptions").ForEach(func(_, item gjson.Result) bool {
		c, ok := decodeConsumption(item)
		if !ok {
			s.logger.Warn("dropping malformed pending consumption", "entry", item.Raw)
			return true
		}
		sec.Pending = append(sec.Pending, c)
		return true
	})
	return sec
}

// decodeConsumption accepts any non-empty string id, so entries queued by
// other clients keep their idempotency key.
func decodeConsumption(item gjson.Result) (*pending.Consumption, bool) {
	rawID := item.Get("id")
	cost := item.Get("cost")
	if rawID.Type != gjson.String || !isCount(cost) {
		return nil, false
	}
	c := &pending.Consumption{
		ID:        rawID.String(),
		Action:    item.Get("action").String(),
		Cost:      cost.Int(),
		CreatedAt: decodeTime(item.Get("created_at")),
	}
	return c, c.Valid()
}

// decodeTime accepts RFC 3339 strings and unix seconds.
func decodeTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
			return t.UTC()
		}
	case gjson.Number:
		sec := v.Float()
		return time.Unix(0, int64(sec*float64(time.Second))).UTC()
	}
	return time.Time{}
}

func isCount(v gjson.Result) bool {
	return v.Type == gjson.Number && v.Float() == float64(v.Int()) && v.Int() >= 0
}
