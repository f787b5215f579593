package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onChannelCreated    []OnChannelCreated
	onMemberJoined      []OnMemberJoined
	onJoinFeeCollected  []OnJoinFeeCollected
	onMessagePosted     []OnMessagePosted
	onMessageTipped     []OnMessageTipped
	onWithdrawal        []OnWithdrawal
	onPayoutFailed      []OnPayoutFailed
	onPayoutCompensated []OnPayoutCompensated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnChannelCreated); ok {
		r.onChannelCreated = append(r.onChannelCreated, v)
	}
	if v, ok := p.(OnMemberJoined); ok {
		r.onMemberJoined = append(r.onMemberJoined, v)
	}
	if v, ok := p.(OnJoinFeeCollected); ok {
		r.onJoinFeeCollected = append(r.onJoinFeeCollected, v)
	}
	if v, ok := p.(OnMessagePosted); ok {
		r.onMessagePosted = append(r.onMessagePosted, v)
	}
	if v, ok := p.(OnMessageTipped); ok {
		r.onMessageTipped = append(r.onMessageTipped, v)
	}
	if v, ok := p.(OnWithdrawal); ok {
		r.onWithdrawal = append(r.onWithdrawal, v)
	}
	if v, ok := p.(OnPayoutFailed); ok {
		r.onPayoutFailed = append(r.onPayoutFailed, v)
	}
	if v, ok := p.(OnPayoutCompensated); ok {
		r.onPayoutCompensated = append(r.onPayoutCompensated, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnChannelCreated)(nil)).Elem(), "OnChannelCreated")
	checkInterface(reflect.TypeOf((*OnMemberJoined)(nil)).Elem(), "OnMemberJoined")
	checkInterface(reflect.TypeOf((*OnJoinFeeCollected)(nil)).Elem(), "OnJoinFeeCollected")
	checkInterface(reflect.TypeOf((*OnMessagePosted)(nil)).Elem(), "OnMessagePosted")
	checkInterface(reflect.TypeOf((*OnMessageTipped)(nil)).Elem(), "OnMessageTipped")
	checkInterface(reflect.TypeOf((*OnWithdrawal)(nil)).Elem(), "OnWithdrawal")
	checkInterface(reflect.TypeOf((*OnPayoutFailed)(nil)).Elem(), "OnPayoutFailed")
	checkInterface(reflect.TypeOf((*OnPayoutCompensated)(nil)).Elem(), "OnPayoutCompensated")

	return interfaces
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
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitChannelCreated emits a channel created event.
func (r *Registry) EmitChannelCreated(ctx context.Context, ch interface{}) {
	r.mu.RLock()
	plugins := r.onChannelCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnChannelCreated(ctx, ch)
		}); err != nil {
			r.logger.Warn("plugin OnChannelCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMemberJoined emits a member joined event.
func (r *Registry) EmitMemberJoined(ctx context.Context, channelID int64, acct string) {
	r.mu.RLock()
	plugins := r.onMemberJoined
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMemberJoined(ctx, channelID, acct)
		}); err != nil {
			r.logger.Warn("plugin OnMemberJoined failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitJoinFeeCollected emits a join fee collected event.
func (r *Registry) EmitJoinFeeCollected(ctx context.Context, channelID int64, creator string, amount interface{}) {
	r.mu.RLock()
	plugins := r.onJoinFeeCollected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJoinFeeCollected(ctx, channelID, creator, amount)
		}); err != nil {
			r.logger.Warn("plugin OnJoinFeeCollected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMessagePosted emits a message posted event.
func (r *Registry) EmitMessagePosted(ctx context.Context, msg interface{}) {
	r.mu.RLock()
	plugins := r.onMessagePosted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMessagePosted(ctx, msg)
		}); err != nil {
			r.logger.Warn("plugin OnMessagePosted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMessageTipped emits a message tipped event.
func (r *Registry) EmitMessageTipped(ctx context.Context, receipt interface{}) {
	r.mu.RLock()
	plugins := r.onMessageTipped
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMessageTipped(ctx, receipt)
		}); err != nil {
			r.logger.Warn("plugin OnMessageTipped failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWithdrawal emits a withdrawal executed event.
func (r *Registry) EmitWithdrawal(ctx context.Context, p interface{}) {
	r.mu.RLock()
	plugins := r.onWithdrawal
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnWithdrawal(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnWithdrawal failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitPayoutFailed emits a payout failed event.
func (r *Registry) EmitPayoutFailed(ctx context.Context, p interface{}, cause error) {
	r.mu.RLock()
	plugins := r.onPayoutFailed
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPayoutFailed(ctx, p, cause)
		}); err != nil {
			r.logger.Warn("plugin OnPayoutFailed failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitPayoutCompensated emits a payout compensated event.
func (r *Registry) EmitPayoutCompensated(ctx context.Context, p interface{}) {
	r.mu.RLock()
	plugins := r.onPayoutCompensated
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPayoutCompensated(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnPayoutCompensated failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
