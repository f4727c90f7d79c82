package credits

import (
	"os"
	"strings"
	"time"
)

// Default tuning values.
const (
	DefaultTimeout      = 20 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultWaitTimeout  = 120 * time.Second
)

// Environment variables read by ConfigFromEnv. The PAYWALL_ and
// OBD_SUPERUSER names are kept for existing deployments.
const (
	EnvAPIBase         = "CREDITS_API_BASE"
	EnvOffline         = "CREDITS_OFFLINE"
	EnvBypass          = "CREDITS_BYPASS"
	EnvLegacyAPIBase   = "PAYWALL_API_BASE"
	EnvLegacyOffline   = "PAYWALL_OFFLINE"
	EnvLegacyBypass    = "PAYWALL_BYPASS"
	EnvLegacySuperuser = "OBD_SUPERUSER"
)

// Config holds the caller-owned toggles read by the Ledger.
type Config struct {
	// APIBase overrides the endpoint root persisted in the store.
	APIBase string `json:"api_base" yaml:"api_base"`

	// Offline enables local debits from the cached balance when the
	// billing service is unreachable.
	Offline bool `json:"offline" yaml:"offline"`

	// Bypass tells callers to skip charging entirely. The Ledger itself only
	// reports it; the decision belongs to the caller.
	Bypass bool `json:"bypass" yaml:"bypass"`

	// Timeout bounds each billing request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// PollInterval is the WaitForBalance polling period.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// WaitTimeout is the default WaitForBalance budget used by callers that
	// do not pick their own.
	WaitTimeout time.Duration `json:"wait_timeout" yaml:"wait_timeout"`

	// SyncInterval runs the reconciliation sweep in the background when
	// positive. Zero disables it.
	SyncInterval time.Duration `json:"sync_interval" yaml:"sync_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
		WaitTimeout:  DefaultWaitTimeout,
	}
}

// withDefaults fills zero durations.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.SyncInterval < 0 {
		c.SyncInterval = 0
	}
	c.APIBase = normalizeBase(c.APIBase)
	return c
}

// ConfigFromEnv applies environment overrides on top of base. A non-empty
// api base variable replaces base.APIBase; truthy offline and bypass
// variables switch those flags on but never off.
func ConfigFromEnv(base Config) Config {
	return configFromLookup(base, os.LookupEnv)
}

func configFromLookup(base Config, lookup func(string) (string, bool)) Config {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	for _, key := range []string{EnvAPIBase, EnvLegacyAPIBase} {
		if v := strings.TrimSpace(get(key)); v != "" {
			base.APIBase = v
			break
		}
	}
	if IsTruthy(get(EnvOffline)) || IsTruthy(get(EnvLegacyOffline)) {
		base.Offline = true
	}
	if IsTruthy(get(EnvBypass)) || IsTruthy(get(EnvLegacyBypass)) || IsTruthy(get(EnvLegacySuperuser)) {
		base.Bypass = true
	}
	return base
}

// IsTruthy reports whether v is one of 1, true, yes or on, ignoring case
// and surrounding space.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func normalizeBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
