// Package extension provides the Forge extension adapter for the credit
// ledger.
//
// It implements the forge.Extension interface to integrate the ledger into
// a Forge application with store selection, DI registration of the
// *credits.Ledger and its paywall.Gate, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/paywall"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/file"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Offline-tolerant metered credit client"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credit ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Ledger
	gate       *paywall.Gate
	store      store.Store
	ledgerOpts []credits.Option
	useGrove   bool
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Ledger { return e.engine }

// Gate returns the paywall decision wrapper bound to the engine.
// This is nil until Register is called.
func (e *Extension) Gate() *paywall.Gate { return e.gate }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, opens the
// store, initializes the ledger and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.openStore(fapp.Container())
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = credits.New(e.store, e.buildLedgerOpts()...)
	e.gate = paywall.New(e.engine)

	if err := vessel.Provide(fapp.Container(), func() (*credits.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*paywall.Gate, error) {
		return e.gate, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs credits.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []credits.Option {
	opts := make([]credits.Option, 0, len(e.ledgerOpts)+3)

	opts = append(opts, credits.WithConfig(e.config.ledgerConfig()))

	if e.config.DisableMigrate {
		opts = append(opts, credits.WithoutMigration())
	}

	if !e.config.DisableMetrics && e.Metrics() != nil {
		metrics := observability.NewMetricsExtension(observability.FromMetrics(e.Metrics()))
		opts = append(opts, credits.WithPlugin(metrics))
	}

	// Pass-through options come last so they can override the above.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// openStore builds the store named by the config, or the sqlite store on a
// grove database from the container.
func (e *Extension) openStore(c forge.Container) (store.Store, error) {
	if e.useGrove || e.config.GroveDatabase != "" {
		return e.groveStore(c)
	}

	sc := e.config.Store
	switch sc.Driver {
	case DriverMemory:
		return memory.New(), nil

	case DriverFile, "":
		path := sc.Path
		if path == "" {
			def, err := file.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = def
		}
		var opts []file.Option
		if sc.Section != "" {
			opts = append(opts, file.WithSection(sc.Section))
		}
		return file.New(path, opts...), nil

	case DriverSQLite:
		path := sc.Path
		if path == "" {
			def, err := file.DefaultPath()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(filepath.Dir(def), "credits.db")
		}
		return sqlite.Open(context.Background(), path)

	default:
		return nil, fmt.Errorf("credits: unknown store driver %q", sc.Driver)
	}
}

func (e *Extension) groveStore(c forge.Container) (store.Store, error) {
	var (
		db  *grove.DB
		err error
	)
	if e.config.GroveDatabase != "" {
		db, err = vessel.InjectNamed[*grove.DB](c, e.config.GroveDatabase)
	} else {
		db, err = vessel.Inject[*grove.DB](c)
	}
	if err != nil {
		return nil, fmt.Errorf("credits: resolve grove database: %w", err)
	}
	if _, ok := db.Driver().(*sqlitedriver.SqliteDB); !ok {
		return nil, fmt.Errorf("credits: grove database %q must use the sqlite driver", e.config.GroveDatabase)
	}
	return sqlite.New(db), nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("api_base", e.config.APIBase),
		forge.F("offline", e.config.Offline),
		forge.F("bypass", e.config.Bypass),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("sync_interval", e.config.SyncInterval),
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.credits", "credits"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("credits: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("credits: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = defaults.WaitTimeout
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.Offline {
		yamlConfig.Offline = true
	}
	if programmaticConfig.Bypass {
		yamlConfig.Bypass = true
	}
	if programmaticConfig.UseEnv {
		yamlConfig.UseEnv = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableMetrics {
		yamlConfig.DisableMetrics = true
	}

	if yamlConfig.APIBase == "" {
		yamlConfig.APIBase = programmaticConfig.APIBase
	}
	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}

	if yamlConfig.Timeout == 0 {
		yamlConfig.Timeout = programmaticConfig.Timeout
	}
	if yamlConfig.PollInterval == 0 {
		yamlConfig.PollInterval = programmaticConfig.PollInterval
	}
	if yamlConfig.WaitTimeout == 0 {
		yamlConfig.WaitTimeout = programmaticConfig.WaitTimeout
	}
	if yamlConfig.SyncInterval == 0 {
		yamlConfig.SyncInterval = programmaticConfig.SyncInterval
	}

	return e.mergeWithDefaults(yamlConfig)
}
