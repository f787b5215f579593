package extension

import "time"

// Config holds the Courier extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.courier" or "courier" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the ledger currency all channel prices, tips, and
	// balances are denominated in (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// PayoutRetryInterval is how frequently failed payouts are re-checked
	// for compensation (default: 30s).
	PayoutRetryInterval time.Duration `json:"payout_retry_interval" mapstructure:"payout_retry_interval" yaml:"payout_retry_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:            "usd",
		PayoutRetryInterval: 30 * time.Second,
	}
}
