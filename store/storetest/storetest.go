// Package storetest holds the conformance suite every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// Factory returns a fresh, migrated store. Cleanup is the caller's concern.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("IdentityLifecycle", func(t *testing.T) { testIdentity(t, newStore(t)) })
	t.Run("APIBase", func(t *testing.T) { testAPIBase(t, newStore(t)) })
	t.Run("Balance", func(t *testing.T) { testBalance(t, newStore(t)) })
	t.Run("PendingQueue", func(t *testing.T) { testPending(t, newStore(t)) })
	t.Run("OfflineDebit", func(t *testing.T) { testOfflineDebit(t, newStore(t)) })
	t.Run("OfflineDebitRefusals", func(t *testing.T) { testOfflineDebitRefusals(t, newStore(t)) })
	t.Run("ForeignPendingID", func(t *testing.T) { testForeignPendingID(t, newStore(t)) })
	t.Run("Close", func(t *testing.T) { testClose(t, newStore(t)) })
}

func testIdentity(t *testing.T, s store.Store) {
	ctx := context.Background()

	ident, err := s.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Empty(t, ident.DeviceID)
	assert.False(t, ident.Registered())

	got, err := s.EnsureDeviceID(ctx, "dev_first")
	require.NoError(t, err)
	assert.Equal(t, "dev_first", got)

	got, err = s.EnsureDeviceID(ctx, "dev_second")
	require.NoError(t, err)
	assert.Equal(t, "dev_first", got, "device id must never change once stored")

	require.NoError(t, s.SaveCredentials(ctx, "s1", "t1"))
	ident, err = s.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev_first", ident.DeviceID)
	assert.Equal(t, "s1", ident.SubjectID)
	assert.Equal(t, "t1", ident.AccessToken)
	assert.True(t, ident.Registered())

	require.NoError(t, s.ClearCredentials(ctx))
	ident, err = s.LoadIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev_first", ident.DeviceID, "reset keeps the device id")
	assert.False(t, ident.Registered())
}

func testAPIBase(t *testing.T, s store.Store) {
	ctx := context.Background()

	base, err := s.APIBase(ctx)
	require.NoError(t, err)
	assert.Empty(t, base)

	require.NoError(t, s.SetAPIBase(ctx, "https://billing.example.com"))
	base, err = s.APIBase(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com", base)
}

func testBalance(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.LoadBalance(ctx)
	assert.ErrorIs(t, err, credits.ErrBalanceNotCached)

	require.NoError(t, s.SaveBalance(ctx, types.NewBalance(4, 0)))
	b, err := s.LoadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.NewBalance(4, 0), b)

	require.NoError(t, s.SaveBalance(ctx, types.Zero))
	b, err = s.LoadBalance(ctx)
	require.NoError(t, err, "a zero balance is still a cached balance")
	assert.Equal(t, types.Zero, b)
}

func testPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	items, err := s.LoadPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	first := pending.New("a", 1, base)
	second := pending.New("b", 2, base.Add(time.Second))
	third := pending.New("c", 3, base.Add(2*time.Second))
	for _, c := range []*pending.Consumption{first, second, third} {
		require.NoError(t, s.AppendPending(ctx, c))
	}

	total, err := s.PendingTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	items, err = s.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, want := range []*pending.Consumption{first, second, third} {
		assert.Equal(t, want.ID, items[i].ID, "FIFO order at %d", i)
		assert.Equal(t, want.Action, items[i].Action)
		assert.Equal(t, want.Cost, items[i].Cost)
		assert.True(t, want.CreatedAt.Equal(items[i].CreatedAt), "created_at at %d", i)
	}

	require.NoError(t, s.SavePending(ctx, []*pending.Consumption{third, first}))
	items, err = s.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, third.ID, items[0].ID)
	assert.Equal(t, first.ID, items[1].ID)

	removed, err := s.RemovePending(ctx, third.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "second is no longer queued")
	items, err = s.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)

	removed, err = s.RemovePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.NoError(t, s.SavePending(ctx, nil))
	total, err = s.PendingTotal(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func testOfflineDebit(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveBalance(ctx, types.NewBalance(1, 2)))
	c := pending.New("x", 2, time.Now())
	next, err := s.CommitOfflineDebit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, types.NewBalance(0, 1), next, "free credits are spent first")

	b, err := s.LoadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.NewBalance(0, 1), b)

	items, err := s.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, c.ID, items[0].ID)
}

func testOfflineDebitRefusals(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.CommitOfflineDebit(ctx, pending.New("x", 1, time.Now()))
	assert.ErrorIs(t, err, credits.ErrBalanceNotCached)

	require.NoError(t, s.SaveBalance(ctx, types.NewBalance(1, 0)))
	_, err = s.CommitOfflineDebit(ctx, pending.New("x", 2, time.Now()))
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	_, err = s.CommitOfflineDebit(ctx, pending.New("x", 1, time.Now()))
	require.NoError(t, err)
	_, err = s.CommitOfflineDebit(ctx, pending.New("y", 1, time.Now()))
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits, "the second debit must see the first")

	b, err := s.LoadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Zero, b)
	total, err := s.PendingTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "refused debits queue nothing")
}

func testForeignPendingID(t *testing.T, s store.Store) {
	ctx := context.Background()
	const foreign = "6f1c2b9e-8d4a-4f7e-9c3b-2a5d7e9f0b1c"

	require.NoError(t, s.AppendPending(ctx, &pending.Consumption{
		ID: foreign, Action: "export", Cost: 1, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.SetAPIBase(ctx, "https://billing.example.com"))

	items, err := s.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, foreign, items[0].ID)

	removed, err := s.RemovePending(ctx, foreign)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func testClose(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(ctx))
}
