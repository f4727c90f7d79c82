package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/pending"
	"github.com/xraph/credits/types"
)

// DefaultHookTimeout bounds a single plugin hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Interfaces are discovered once at registration, so emitting an event only
// walks the plugins that handle it.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onIdentityRegistered  []OnIdentityRegistered
	onIdentityReset       []OnIdentityReset
	onConsumed            []OnConsumed
	onOfflineConsumed     []OnOfflineConsumed
	onPaymentRequired     []OnPaymentRequired
	onConsumptionReplayed []OnConsumptionReplayed
	onReplayFailed        []OnReplayFailed
	onSyncCompleted       []OnSyncCompleted
	onBalanceRefreshed    []OnBalanceRefreshed
	onBalanceFallback     []OnBalanceFallback
	onCheckoutCreated     []OnCheckoutCreated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnIdentityRegistered); ok {
		r.onIdentityRegistered = append(r.onIdentityRegistered, v)
	}
	if v, ok := p.(OnIdentityReset); ok {
		r.onIdentityReset = append(r.onIdentityReset, v)
	}
	if v, ok := p.(OnConsumed); ok {
		r.onConsumed = append(r.onConsumed, v)
	}
	if v, ok := p.(OnOfflineConsumed); ok {
		r.onOfflineConsumed = append(r.onOfflineConsumed, v)
	}
	if v, ok := p.(OnPaymentRequired); ok {
		r.onPaymentRequired = append(r.onPaymentRequired, v)
	}
	if v, ok := p.(OnConsumptionReplayed); ok {
		r.onConsumptionReplayed = append(r.onConsumptionReplayed, v)
	}
	if v, ok := p.(OnReplayFailed); ok {
		r.onReplayFailed = append(r.onReplayFailed, v)
	}
	if v, ok := p.(OnSyncCompleted); ok {
		r.onSyncCompleted = append(r.onSyncCompleted, v)
	}
	if v, ok := p.(OnBalanceRefreshed); ok {
		r.onBalanceRefreshed = append(r.onBalanceRefreshed, v)
	}
	if v, ok := p.(OnBalanceFallback); ok {
		r.onBalanceFallback = append(r.onBalanceFallback, v)
	}
	if v, ok := p.(OnCheckoutCreated); ok {
		r.onCheckoutCreated = append(r.onCheckoutCreated, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnIdentityRegistered", reflect.TypeOf((*OnIdentityRegistered)(nil)).Elem()},
	{"OnIdentityReset", reflect.TypeOf((*OnIdentityReset)(nil)).Elem()},
	{"OnConsumed", reflect.TypeOf((*OnConsumed)(nil)).Elem()},
	{"OnOfflineConsumed", reflect.TypeOf((*OnOfflineConsumed)(nil)).Elem()},
	{"OnPaymentRequired", reflect.TypeOf((*OnPaymentRequired)(nil)).Elem()},
	{"OnConsumptionReplayed", reflect.TypeOf((*OnConsumptionReplayed)(nil)).Elem()},
	{"OnReplayFailed", reflect.TypeOf((*OnReplayFailed)(nil)).Elem()},
	{"OnSyncCompleted", reflect.TypeOf((*OnSyncCompleted)(nil)).Elem()},
	{"OnBalanceRefreshed", reflect.TypeOf((*OnBalanceRefreshed)(nil)).Elem()},
	{"OnBalanceFallback", reflect.TypeOf((*OnBalanceFallback)(nil)).Elem()},
	{"OnCheckoutCreated", reflect.TypeOf((*OnCheckoutCreated)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p, func() error { return p.OnInit(ctx, l) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p, func() error { return p.OnShutdown(ctx) })
	}
}

// EmitIdentityRegistered emits an identity registered event.
func (r *Registry) EmitIdentityRegistered(ctx context.Context, deviceID, subjectID string) {
	r.mu.RLock()
	plugins := r.onIdentityRegistered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnIdentityRegistered", p, func() error {
			return p.OnIdentityRegistered(ctx, deviceID, subjectID)
		})
	}
}

// EmitIdentityReset emits an identity reset event.
func (r *Registry) EmitIdentityReset(ctx context.Context, deviceID string) {
	r.mu.RLock()
	plugins := r.onIdentityReset
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnIdentityReset", p, func() error { return p.OnIdentityReset(ctx, deviceID) })
	}
}

// EmitConsumed emits an online consumption event.
func (r *Registry) EmitConsumed(ctx context.Context, action string, cost int64, balance types.Balance) {
	r.mu.RLock()
	plugins := r.onConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnConsumed", p, func() error { return p.OnConsumed(ctx, action, cost, balance) })
	}
}

// EmitOfflineConsumed emits an offline consumption event.
func (r *Registry) EmitOfflineConsumed(ctx context.Context, item *pending.Consumption, balance types.Balance) {
	r.mu.RLock()
	plugins := r.onOfflineConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnOfflineConsumed", p, func() error { return p.OnOfflineConsumed(ctx, item, balance) })
	}
}

// EmitPaymentRequired emits a payment required event.
func (r *Registry) EmitPaymentRequired(ctx context.Context, action string, cost int64, err error) {
	r.mu.RLock()
	plugins := r.onPaymentRequired
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnPaymentRequired", p, func() error { return p.OnPaymentRequired(ctx, action, cost, err) })
	}
}

// EmitConsumptionReplayed emits a replay acknowledged event.
func (r *Registry) EmitConsumptionReplayed(ctx context.Context, item *pending.Consumption, balance types.Balance, hasBalance bool) {
	r.mu.RLock()
	plugins := r.onConsumptionReplayed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnConsumptionReplayed", p, func() error {
			return p.OnConsumptionReplayed(ctx, item, balance, hasBalance)
		})
	}
}

// EmitReplayFailed emits a replay failure event.
func (r *Registry) EmitReplayFailed(ctx context.Context, item *pending.Consumption, err error) {
	r.mu.RLock()
	plugins := r.onReplayFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnReplayFailed", p, func() error { return p.OnReplayFailed(ctx, item, err) })
	}
}

// EmitSyncCompleted emits a sweep completed event.
func (r *Registry) EmitSyncCompleted(ctx context.Context, report pending.SyncReport, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSyncCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnSyncCompleted", p, func() error { return p.OnSyncCompleted(ctx, report, elapsed) })
	}
}

// EmitBalanceRefreshed emits a balance refreshed event.
func (r *Registry) EmitBalanceRefreshed(ctx context.Context, balance types.Balance) {
	r.mu.RLock()
	plugins := r.onBalanceRefreshed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnBalanceRefreshed", p, func() error { return p.OnBalanceRefreshed(ctx, balance) })
	}
}

// EmitBalanceFallback emits a degraded balance read event.
func (r *Registry) EmitBalanceFallback(ctx context.Context, balance types.Balance, err error) {
	r.mu.RLock()
	plugins := r.onBalanceFallback
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnBalanceFallback", p, func() error { return p.OnBalanceFallback(ctx, balance, err) })
	}
}

// EmitCheckoutCreated emits a checkout created event.
func (r *Registry) EmitCheckoutCreated(ctx context.Context, url string) {
	r.mu.RLock()
	plugins := r.onCheckoutCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnCheckoutCreated", p, func() error { return p.OnCheckoutCreated(ctx, url) })
	}
}

// dispatch runs one hook and logs its failure. Hook errors never reach the
// charging path.
func (r *Registry) dispatch(ctx context.Context, hook string, p Plugin, fn func() error) {
	if err := r.callWithTimeout(ctx, p.Name(), fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", p.Name(),
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the charging path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
