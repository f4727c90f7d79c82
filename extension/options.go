package extension

import (
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine. It takes precedence over
// the configured driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a credits.Option through to the underlying engine.
func WithLedgerOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithAPIBase sets the billing service root URL.
func WithAPIBase(base string) Option {
	return func(e *Extension) { e.config.APIBase = base }
}

// WithOffline enables offline approval of charges.
func WithOffline() Option {
	return func(e *Extension) { e.config.Offline = true }
}

// WithBypass approves every charge without contacting the service.
func WithBypass() Option {
	return func(e *Extension) { e.config.Bypass = true }
}

// WithSyncInterval runs the reconciliation sweep in the background.
func WithSyncInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SyncInterval = d }
}

// WithStoreDriver selects the store backend and its file.
func WithStoreDriver(driver, path string) Option {
	return func(e *Extension) {
		e.config.Store.Driver = driver
		e.config.Store.Path = path
	}
}

// WithEnvOverrides applies the CREDITS_* environment overrides.
func WithEnvOverrides() Option {
	return func(e *Extension) { e.config.UseEnv = true }
}

// WithDisableMigrate prevents store migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableMetrics prevents registration of the metrics plugin.
func WithDisableMetrics() Option {
	return func(e *Extension) { e.config.DisableMetrics = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI
// container. The database must use the sqlite driver. Pass an empty string
// to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
