// Package extension provides the Forge extension adapter for Courier.
//
// It implements the forge.Extension interface to integrate Courier
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.courier" or "courier" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "courier"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Paid-channel messaging ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Courier as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *courier.Engine
	store      store.Store
	storeErr   error
	engineOpts []courier.Option
}

// New creates a new Courier Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Courier engine.
// This is nil until Register is called.
func (e *Extension) Engine() *courier.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if e.storeErr != nil {
		return e.storeErr
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildEngineOpts()

	eng := courier.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*courier.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("courier: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
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
		return errors.New("courier: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs courier.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []courier.Option {
	opts := make([]courier.Option, 0, len(e.engineOpts)+2)

	if e.config.Currency != "" {
		opts = append(opts, courier.WithCurrency(e.config.Currency))
	}
	if e.config.PayoutRetryInterval > 0 {
		opts = append(opts, courier.WithPayoutRetryInterval(e.config.PayoutRetryInterval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("courier: configuration is required but not found in config files; " +
				"ensure 'extensions.courier' or 'courier' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("courier: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("payout_retry_interval", e.config.PayoutRetryInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.courier" first (namespaced pattern).
	if cm.IsSet("extensions.courier") {
		if err := cm.Bind("extensions.courier", &cfg); err == nil {
			e.Logger().Debug("courier: loaded config from file",
				forge.F("key", "extensions.courier"),
			)
			return cfg, true
		}
		e.Logger().Warn("courier: failed to bind extensions.courier config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "courier" key.
	if cm.IsSet("courier") {
		if err := cm.Bind("courier", &cfg); err == nil {
			e.Logger().Debug("courier: loaded config from file",
				forge.F("key", "courier"),
			)
			return cfg, true
		}
		e.Logger().Warn("courier: failed to bind courier config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.PayoutRetryInterval == 0 {
		cfg.PayoutRetryInterval = defaults.PayoutRetryInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PayoutRetryInterval == 0 && programmaticConfig.PayoutRetryInterval != 0 {
		yamlConfig.PayoutRetryInterval = programmaticConfig.PayoutRetryInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
