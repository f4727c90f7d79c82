// Package memory provides an in-process Store for tests and ephemeral
// sessions. State is lost when the process exits.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/xraph/credits"
	"github.com/xraph/credits/identity"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	apiBase  string
	identity identity.Identity

	balance    types.Balance
	hasBalance bool

	queue []*pending.Consumption
}

func New() *Store {
	return &Store{}
}

// ==================== Identity ====================

func (s *Store) LoadIdentity(_ context.Context) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, credits.ErrStoreClosed
	}
	ident := s.identity
	return &ident, nil
}

func (s *Store) EnsureDeviceID(_ context.Context, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", credits.ErrStoreClosed
	}
	if s.identity.DeviceID == "" {
		s.identity.DeviceID = candidate
	}
	return s.identity.DeviceID, nil
}

func (s *Store) SaveCredentials(_ context.Context, subjectID, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	s.identity.SubjectID = subjectID
	s.identity.AccessToken = accessToken
	return nil
}

func (s *Store) ClearCredentials(_ context.Context) error {
	return s.SaveCredentials(context.Background(), "", "")
}

// ==================== Settings ====================

func (s *Store) APIBase(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", credits.ErrStoreClosed
	}
	return s.apiBase, nil
}

func (s *Store) SetAPIBase(_ context.Context, base string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	s.apiBase = strings.TrimSpace(base)
	return nil
}

// ==================== Balance ====================

func (s *Store) SaveBalance(_ context.Context, b types.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	s.balance = b
	s.hasBalance = true
	return nil
}

func (s *Store) LoadBalance(_ context.Context) (types.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Zero, credits.ErrStoreClosed
	}
	if !s.hasBalance {
		return types.Zero, credits.ErrBalanceNotCached
	}
	return s.balance, nil
}

// ==================== Pending ====================

func (s *Store) AppendPending(_ context.Context, c *pending.Consumption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	cp := *c
	s.queue = append(s.queue, &cp)
	return nil
}

func (s *Store) LoadPending(_ context.Context) ([]*pending.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, credits.ErrStoreClosed
	}
	return cloneQueue(s.queue), nil
}

func (s *Store) SavePending(_ context.Context, items []*pending.Consumption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	s.queue = cloneQueue(items)
	return nil
}

func (s *Store) PendingTotal(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, credits.ErrStoreClosed
	}
	return pending.Total(s.queue), nil
}

func (s *Store) RemovePending(_ context.Context, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, credits.ErrStoreClosed
	}
	kept, removed := pending.Without(s.queue, ids...)
	s.queue = kept
	return removed, nil
}

func (s *Store) CommitOfflineDebit(_ context.Context, c *pending.Consumption) (types.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Zero, credits.ErrStoreClosed
	}
	if !s.hasBalance {
		return types.Zero, credits.ErrBalanceNotCached
	}
	next, ok := s.balance.Debit(c.Cost)
	if !ok {
		return types.Zero, credits.ErrInsufficientCredits
	}
	cp := *c
	s.balance = next
	s.queue = append(s.queue, &cp)
	return next, nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneQueue(items []*pending.Consumption) []*pending.Consumption {
	out := make([]*pending.Consumption, 0, len(items))
	for _, c := range items {
		cp := *c
		out = append(out, &cp)
	}
	return out
}
