// Package store defines the storage interface for Courier entities.
package store

import (
	"context"

	"github.com/xraph/courier/account"
	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	"github.com/xraph/courier/types"
)

// Store is the unified storage interface for all Courier entities.
// Implementations must provide snapshot-consistent reads and atomic
// single-method mutations; cross-method atomicity (e.g. tip + credit) is
// the engine's responsibility via per-entity serialization.
type Store interface {
	// Channel methods.
	//
	// CreateChannel assigns the next sequential channel id (starting at 1,
	// never reused) and records the creator as an implicit member.
	// GrantAccess returns courier.ErrAlreadyMember when the account already
	// holds access, so no payment is ever taken for a join that cannot
	// succeed. ListChannels returns channels in ascending id order.
	CreateChannel(ctx context.Context, ch *channel.Channel) error
	GetChannel(ctx context.Context, channelID int64) (*channel.Channel, error)
	ChannelCount(ctx context.Context) (int64, error)
	GrantAccess(ctx context.Context, channelID int64, acct string) error
	ListChannels(ctx context.Context, opts channel.ListOpts) ([]*channel.Channel, error)

	// Message methods.
	//
	// AppendMessage assigns the next per-channel message id (starting at 1)
	// and clamps msg.Timestamp to be no earlier than the previous message
	// in the same channel. AddTip atomically increases a message's
	// accumulated tip and returns the new total; all other message fields
	// are immutable after append. ListMessages returns ascending id order.
	AppendMessage(ctx context.Context, msg *message.Message) error
	GetMessage(ctx context.Context, channelID, messageID int64) (*message.Message, error)
	ListMessages(ctx context.Context, channelID int64) ([]*message.Message, error)
	AddTip(ctx context.Context, channelID, messageID int64, amount types.Money) (types.Money, error)
	SaveReceipt(ctx context.Context, r *message.Receipt) error
	ListReceipts(ctx context.Context, channelID int64) ([]*message.Receipt, error)

	// Balance methods.
	//
	// CreditBalance creates the entry lazily at zero before adding.
	// GetBalance returns a zero value (never an error) for an account with
	// no entry. DebitBalance atomically zeroes the entry and returns the
	// pre-debit amount; a zero balance is a no-op returning zero.
	CreditBalance(ctx context.Context, acct string, amount types.Money) error
	GetBalance(ctx context.Context, acct string) (types.Money, error)
	DebitBalance(ctx context.Context, acct string) (types.Money, error)
	ListBalances(ctx context.Context) ([]*account.Balance, error)

	// Payout methods.
	//
	// CompensatePayout atomically re-credits a failed payout's amount to
	// its account and marks it compensated; it is a no-op for payouts not
	// in the failed state, which makes retries idempotent.
	CreatePayout(ctx context.Context, p *payout.Payout) error
	GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error)
	MarkPayoutPaid(ctx context.Context, payoutID id.PayoutID) error
	MarkPayoutFailed(ctx context.Context, payoutID id.PayoutID) error
	CompensatePayout(ctx context.Context, payoutID id.PayoutID) error
	ListFailedPayouts(ctx context.Context) ([]*payout.Payout, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
