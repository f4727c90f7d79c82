package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestLoadPendingReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.AppendPending(ctx, pending.New("a", 1, time.Now())))

	items, err := s.LoadPending(ctx)
	require.NoError(t, err)
	items[0].Cost = 99

	total, err := s.PendingTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
