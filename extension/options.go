package extension

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/plugin"
	"github.com/xraph/courier/store"
	mongostore "github.com/xraph/courier/store/mongo"
	"github.com/xraph/courier/store/postgres"
	"github.com/xraph/courier/store/sqlite"
)

// Option configures the Courier Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a courier.Option through to the underlying engine.
func WithEngineOption(opt courier.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a courier plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, courier.WithPlugin(p))
	}
}

// WithPayoutExecutor sets the executor used to settle withdrawals.
func WithPayoutExecutor(exec courier.PayoutExecutor) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, courier.WithPayoutExecutor(exec))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCurrency sets the ledger currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithPayoutRetryInterval sets how frequently failed payouts are re-checked.
func WithPayoutRetryInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.PayoutRetryInterval = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithGroveDB builds the store from an existing grove.DB. The driver name
// selects the backend: "postgres", "sqlite", or "mongo".
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		switch driver {
		case "postgres":
			e.store = postgres.New(db)
		case "sqlite":
			e.store = sqlite.New(db)
		case "mongo":
			e.store = mongostore.New(db)
		default:
			e.storeErr = fmt.Errorf("courier: unknown grove driver %q", driver)
		}
	}
}
