package credits

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/billing"
	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// Ledger is the credit engine. It charges actions against the billing
// service, falls back to local debits when the service is unreachable and
// offline mode is on, and replays those debits later.
//
// Mutating operations are serialized within the process. Cross-process
// safety is the store's concern.
type Ledger struct {
	store   store.Store
	api     billing.API
	plugins *plugin.Registry
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	mu sync.Mutex

	// Background workers
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	apiCustom bool
	noMigrate bool
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		cfg:      DefaultConfig(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.cfg = l.cfg.withDefaults()
	if l.api == nil {
		l.api = billing.NewClient(l.cfg.APIBase,
			billing.WithTimeout(l.cfg.Timeout),
			billing.WithLogger(l.logger),
		)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConfig sets the configuration. Zero durations take their defaults.
func WithConfig(cfg Config) Option {
	return func(l *Ledger) {
		l.cfg = cfg
	}
}

// WithBillingAPI replaces the HTTP billing client. Its own base URL is used
// when neither the config nor the store names one.
func WithBillingAPI(api billing.API) Option {
	return func(l *Ledger) {
		l.api = api
		l.apiCustom = true
	}
}

// WithAutoSync runs the reconciliation sweep every interval while started.
func WithAutoSync(interval time.Duration) Option {
	return func(l *Ledger) {
		l.cfg.SyncInterval = interval
	}
}

// WithClock sets the time source used to stamp queued consumptions.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithoutMigration makes Start skip store migration. Use it when the schema
// is managed elsewhere.
func WithoutMigration() Option {
	return func(l *Ledger) {
		l.noMigrate = true
	}
}

// Start migrates the store, initializes plugins and starts the background
// sweep when configured.
func (l *Ledger) Start(ctx context.Context) error {
	if !l.noMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
	}

	l.plugins.EmitInit(ctx, l)

	if l.cfg.SyncInterval > 0 {
		l.wg.Add(1)
		go l.syncWorker(ctx)
	}

	l.logger.Info("credit ledger started",
		"offline", l.cfg.Offline,
		"bypass", l.cfg.Bypass,
		"sync_interval", l.cfg.SyncInterval,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down background work, notifies plugins and closes the store.
// It is safe to call more than once.
func (l *Ledger) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()

		l.plugins.EmitShutdown(context.Background())

		err = l.store.Close()
	})
	return err
}

// syncWorker replays the pending queue on a fixed interval.
func (l *Ledger) syncWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.SyncPending(ctx); err != nil {
				l.logger.Debug("background sync failed", "error", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the effective configuration.
func (l *Ledger) Config() Config { return l.cfg }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// IsBypassEnabled reports whether callers should skip charging.
func (l *Ledger) IsBypassEnabled() bool { return l.cfg.Bypass }

// IsOfflineEnabled reports whether local debits are allowed.
func (l *Ledger) IsOfflineEnabled() bool { return l.cfg.Offline }

// APIBase returns the effective billing endpoint root, or "" when
// unconfigured. A configured override wins over the stored setting.
func (l *Ledger) APIBase(ctx context.Context) (string, error) {
	if l.cfg.APIBase != "" {
		return l.cfg.APIBase, nil
	}
	stored, err := l.store.APIBase(ctx)
	if err != nil {
		return "", err
	}
	if base := normalizeBase(stored); base != "" {
		return base, nil
	}
	if l.apiCustom {
		return normalizeBase(l.api.BaseURL()), nil
	}
	return "", nil
}

// SetAPIBase persists the endpoint root. A configured override still wins.
func (l *Ledger) SetAPIBase(ctx context.Context, base string) error {
	base = normalizeBase(base)
	if err := l.store.SetAPIBase(ctx, base); err != nil {
		return err
	}
	if l.cfg.APIBase != "" && l.cfg.APIBase != base {
		l.logger.Warn("stored api base is shadowed by the configured override",
			"stored", base,
			"override", l.cfg.APIBase,
		)
	}
	return nil
}

// IsConfigured reports whether an endpoint root is known. Store failures
// count as unconfigured.
func (l *Ledger) IsConfigured(ctx context.Context) bool {
	base, err := l.APIBase(ctx)
	return err == nil && base != ""
}

// CachedBalance returns the last known balance without any network call.
// ok is false when no balance was ever cached.
func (l *Ledger) CachedBalance(ctx context.Context) (b types.Balance, ok bool, err error) {
	b, err = l.store.LoadBalance(ctx)
	if errors.Is(err, ErrBalanceNotCached) {
		return types.Zero, false, nil
	}
	if err != nil {
		return types.Zero, false, err
	}
	return b, true, nil
}

// PendingTotal returns the credits spent locally but not yet acknowledged.
func (l *Ledger) PendingTotal(ctx context.Context) (int64, error) {
	return l.store.PendingTotal(ctx)
}

// PendingConsumptions returns the queue in replay order.
func (l *Ledger) PendingConsumptions(ctx context.Context) ([]*pending.Consumption, error) {
	return l.store.LoadPending(ctx)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// prepare resolves the endpoint root and points the billing client at it.
func (l *Ledger) prepare(ctx context.Context) error {
	base, err := l.APIBase(ctx)
	if err != nil {
		return err
	}
	if base == "" {
		return &ConfigError{}
	}
	if l.api.BaseURL() != base {
		l.api.SetBaseURL(base)
	}
	return nil
}

// cachedOrZero returns the cached balance, or zero when none is cached.
func (l *Ledger) cachedOrZero(ctx context.Context) (types.Balance, error) {
	b, _, err := l.CachedBalance(ctx)
	return b, err
}

// settle persists an authoritative reply. Replies without a usable balance
// leave the cache alone and report the cached value.
func (l *Ledger) settle(ctx context.Context, reply *billing.BalanceReply) (types.Balance, bool) {
	if reply == nil || !reply.HasBalance {
		b, err := l.cachedOrZero(ctx)
		if err != nil {
			l.logger.Warn("failed to read cached balance", "error", err)
		}
		return b, false
	}
	if err := l.store.SaveBalance(ctx, reply.Balance); err != nil {
		l.logger.Warn("failed to cache balance", "balance", reply.Balance.String(), "error", err)
	}
	return reply.Balance, true
}
