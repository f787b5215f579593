// Package plugin provides an extensible plugin system for Courier.
// Plugins can hook into ledger lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Channel lifecycle hooks
// ──────────────────────────────────────────────────

// OnChannelCreated is called when a new channel is created.
type OnChannelCreated interface {
	Plugin
	OnChannelCreated(ctx context.Context, ch interface{}) error
}

// OnMemberJoined is called when an account is granted channel access.
type OnMemberJoined interface {
	Plugin
	OnMemberJoined(ctx context.Context, channelID int64, acct string) error
}

// OnJoinFeeCollected is called when a paid join credits the channel creator.
type OnJoinFeeCollected interface {
	Plugin
	OnJoinFeeCollected(ctx context.Context, channelID int64, creator string, amount interface{}) error
}

// ──────────────────────────────────────────────────
// Message hooks
// ──────────────────────────────────────────────────

// OnMessagePosted is called when a message is appended to a channel.
type OnMessagePosted interface {
	Plugin
	OnMessagePosted(ctx context.Context, msg interface{}) error
}

// OnMessageTipped is called when a tip is applied to a message.
type OnMessageTipped interface {
	Plugin
	OnMessageTipped(ctx context.Context, receipt interface{}) error
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnWithdrawal is called when a withdrawal payout is executed.
type OnWithdrawal interface {
	Plugin
	OnWithdrawal(ctx context.Context, p interface{}) error
}

// OnPayoutFailed is called when the external transfer for a payout fails.
type OnPayoutFailed interface {
	Plugin
	OnPayoutFailed(ctx context.Context, p interface{}, err error) error
}

// OnPayoutCompensated is called when a failed payout's amount is durably
// re-credited to its account.
type OnPayoutCompensated interface {
	Plugin
	OnPayoutCompensated(ctx context.Context, p interface{}) error
}
