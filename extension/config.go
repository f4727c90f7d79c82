package extension

import (
	"time"

	credits "github.com/xraph/credits"
)

// Store driver names accepted in Config.Store.Driver.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// StoreConfig selects the durable local store.
type StoreConfig struct {
	// Driver is one of "memory", "file" or "sqlite" (default: "file").
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// Path is the JSON document or database file. Empty means the per-user
	// default document for the file driver.
	Path string `json:"path" mapstructure:"path" yaml:"path"`

	// Section is the document key used by the file driver (default: "credits").
	Section string `json:"section" mapstructure:"section" yaml:"section"`
}

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// APIBase is the billing service root URL. It overrides the value
	// persisted in the store.
	APIBase string `json:"api_base" mapstructure:"api_base" yaml:"api_base"`

	// Offline enables local approval of charges while the service is
	// unreachable.
	Offline bool `json:"offline" mapstructure:"offline" yaml:"offline"`

	// Bypass approves every charge without contacting the service.
	Bypass bool `json:"bypass" mapstructure:"bypass" yaml:"bypass"`

	// Timeout bounds every billing request (default: 20s).
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`

	// PollInterval is the balance polling period used while waiting for a
	// payment (default: 2s).
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval" yaml:"poll_interval"`

	// WaitTimeout is the default upper bound for WaitForBalance (default: 120s).
	WaitTimeout time.Duration `json:"wait_timeout" mapstructure:"wait_timeout" yaml:"wait_timeout"`

	// SyncInterval runs the reconciliation sweep in the background.
	// Zero disables the worker.
	SyncInterval time.Duration `json:"sync_interval" mapstructure:"sync_interval" yaml:"sync_interval"`

	// Store selects the local store backend.
	Store StoreConfig `json:"store" mapstructure:"store" yaml:"store"`

	// UseEnv applies the CREDITS_* and legacy environment overrides.
	UseEnv bool `json:"use_env" mapstructure:"use_env" yaml:"use_env"`

	// DisableMigrate prevents store migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableMetrics prevents registration of the metrics plugin.
	DisableMetrics bool `json:"disable_metrics" mapstructure:"disable_metrics" yaml:"disable_metrics"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and builds the
	// sqlite store on it. When empty and WithGroveDatabase was called, the
	// default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	d := credits.DefaultConfig()
	return Config{
		Timeout:      d.Timeout,
		PollInterval: d.PollInterval,
		WaitTimeout:  d.WaitTimeout,
		Store: StoreConfig{
			Driver: DriverFile,
		},
	}
}

// ledgerConfig converts the extension config to the engine config.
func (c Config) ledgerConfig() credits.Config {
	cfg := credits.Config{
		APIBase:      c.APIBase,
		Offline:      c.Offline,
		Bypass:       c.Bypass,
		Timeout:      c.Timeout,
		PollInterval: c.PollInterval,
		WaitTimeout:  c.WaitTimeout,
		SyncInterval: c.SyncInterval,
	}
	if c.UseEnv {
		cfg = credits.ConfigFromEnv(cfg)
	}
	return cfg
}
