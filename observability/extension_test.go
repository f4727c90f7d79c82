package observability_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/go-utils/metrics"

	"github.com/xraph/credits"
	"github.com/xraph/credits/billing/billingtest"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/types"
)

type recordingFactory struct {
	mu         sync.Mutex
	counters   map[string]metrics.Counter
	histograms map[string]metrics.Histogram
}

func newRecordingFactory() *recordingFactory {
	return &recordingFactory{
		counters:   make(map[string]metrics.Counter),
		histograms: make(map[string]metrics.Histogram),
	}
}

func (f *recordingFactory) Counter(name string) observability.Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := metrics.NewCounter(name)
	f.counters[name] = c
	return c
}

func (f *recordingFactory) Histogram(name string) observability.Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := metrics.NewHistogram(name)
	f.histograms[name] = h
	return h
}

func (f *recordingFactory) value(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[name].Value()
}

func (f *recordingFactory) observations(name string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.histograms[name].Count()
}

func TestMetricsFollowLedgerEvents(t *testing.T) {
	ctx := context.Background()
	srv := billingtest.New()
	t.Cleanup(srv.Close)

	factory := newRecordingFactory()
	ext := observability.NewMetricsExtension(factory)

	cfg := credits.DefaultConfig()
	cfg.APIBase = srv.URL
	cfg.Offline = true
	st := memory.New()
	l := credits.New(st,
		credits.WithConfig(cfg),
		credits.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		credits.WithPlugin(ext),
	)

	_, err := l.Consume(ctx, "a", 2)
	require.NoError(t, err)

	srv.SetOffline(true)
	_, err = l.Consume(ctx, "b", 1)
	require.NoError(t, err)

	srv.SetOffline(false)
	report, err := l.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replayed)

	subject, err := l.SubjectID(ctx)
	require.NoError(t, err)
	srv.SetBalance(subject, types.Zero)
	_, err = l.Consume(ctx, "c", 1)
	require.ErrorIs(t, err, credits.ErrPaymentRequired)

	assert.Equal(t, float64(1), factory.value("credits.identity.registered"))
	assert.Equal(t, float64(1), factory.value("credits.consume.online"))
	assert.Equal(t, float64(2), factory.value("credits.consume.credits"))
	assert.Equal(t, float64(1), factory.value("credits.consume.offline"))
	assert.Equal(t, float64(1), factory.value("credits.consume.queued_credits"))
	assert.Equal(t, float64(1), factory.value("credits.sync.replayed"))
	assert.Equal(t, float64(1), factory.value("credits.sync.runs"))
	assert.Equal(t, float64(1), factory.value("credits.consume.payment_required"))
	assert.Zero(t, factory.value("credits.service.errors"))
	assert.Equal(t, uint64(1), factory.observations("credits.sync.latency_ms"))
	assert.Equal(t, uint64(2), factory.observations("credits.consume.cost"))
}

func TestServiceErrorsCounted(t *testing.T) {
	ctx := context.Background()
	factory := newRecordingFactory()
	ext := observability.NewMetricsExtension(factory)

	require.NoError(t, ext.OnPaymentRequired(ctx, "x", 1, &credits.ExternalServiceError{Op: "consume", StatusCode: 500}))
	require.NoError(t, ext.OnBalanceFallback(ctx, types.Zero, credits.ErrExternalService))

	assert.Equal(t, float64(2), factory.value("credits.service.errors"))
	assert.Zero(t, factory.value("credits.consume.payment_required"))
	assert.Equal(t, float64(1), factory.value("credits.balance.fallback"))
}

func TestFromMetricsAdapter(t *testing.T) {
	collector := metrics.NewMockMetrics()
	factory := observability.FromMetrics(collector)

	ext := observability.NewMetricsExtension(factory)
	require.NoError(t, ext.OnCheckoutCreated(context.Background(), "https://pay.example.com/c/1"))
	assert.Equal(t, "observability-metrics", ext.Name())
}
