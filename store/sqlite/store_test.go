package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/store/storetest"
	"github.com/xraph/credits/types"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openStore(t, filepath.Join(t.TempDir(), "credits.db"))
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "credits.db"))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestCloseTwice(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "credits.db"))
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestSharedFileAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credits.db")
	a := openStore(t, path)
	b := openStore(t, path)

	deviceA, err := a.EnsureDeviceID(ctx, "dev_a")
	require.NoError(t, err)
	deviceB, err := b.EnsureDeviceID(ctx, "dev_b")
	require.NoError(t, err)
	assert.Equal(t, deviceA, deviceB, "both handles must agree on one device id")

	require.NoError(t, a.SaveBalance(ctx, types.NewBalance(0, 10)))

	var wg sync.WaitGroup
	for i, s := range []*sqlite.Store{a, b, a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := pending.New("x", int64(i+1), time.Now())
			_, err := s.CommitOfflineDebit(ctx, c)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := b.PendingTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1+2+3+4), total)

	items, err := a.LoadPending(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 4)

	bal, err := b.LoadBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Zero, bal)
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credits.db")
	handles := []*sqlite.Store{openStore(t, path), openStore(t, path), openStore(t, path)}
	require.NoError(t, handles[0].SaveBalance(ctx, types.NewBalance(1, 0)))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for i := 0; i < 8; i++ {
		s := handles[i%len(handles)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CommitOfflineDebit(ctx, pending.New("x", 1, time.Now()))
			if err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, approved, "one cached credit approves one debit")
	bal, err := handles[1].LoadBalance(ctx)
	require.NoError(t, err)
	total, err := handles[2].PendingTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Total()+total, "cached plus queued is conserved")
}
