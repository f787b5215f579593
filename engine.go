package courier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	"github.com/xraph/courier/plugin"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/types"
)

// PayoutExecutor is the external transfer mechanism that pays withdrawn
// amounts out to accounts. The engine records the debit durably before
// calling Execute; a failed Execute triggers a compensating re-credit.
type PayoutExecutor interface {
	Execute(ctx context.Context, p *payout.Payout) error
}

// PayoutExecutorFunc adapts a function to the PayoutExecutor interface.
type PayoutExecutorFunc func(ctx context.Context, p *payout.Payout) error

// Execute implements PayoutExecutor.
func (f PayoutExecutorFunc) Execute(ctx context.Context, p *payout.Payout) error {
	return f(ctx, p)
}

// Engine is the channel messaging ledger. It is the only externally
// callable surface: it validates preconditions, applies state changes
// atomically through the store, and enforces the money-conservation and
// access invariants. Mutations against the same channel or account are
// serialized; unrelated channels and accounts never contend.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	clock    Clock
	currency string

	// Per-entity serialization
	channelLocks *keyedMutex
	accountLocks *keyedMutex

	// Payout execution and compensation
	executor      PayoutExecutor
	retryInterval time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		clock:         systemClock{},
		currency:      "usd",
		channelLocks:  newKeyedMutex(),
		accountLocks:  newKeyedMutex(),
		retryInterval: 30 * time.Second,
		stopChan:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the timestamp source for message appends.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithCurrency sets the ledger currency (default "usd"). Every payment,
// tip and balance must be denominated in it.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = strings.ToLower(currency)
	}
}

// WithPayoutExecutor sets the external transfer mechanism for withdrawals.
// Without one, Withdraw leaves the payout pending and the surrounding
// layer settles it via ConfirmPayout / FailPayout.
func WithPayoutExecutor(x PayoutExecutor) Option {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithPayoutRetryInterval sets how often the compensation worker retries
// re-crediting failed payouts.
func WithPayoutRetryInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.retryInterval = d
	}
}

// Start migrates the store, initializes plugins and begins the payout
// compensation worker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("courier: migrate: %w", err)
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.compensationWorker(ctx)

	e.logger.Info("courier engine started",
		"currency", e.currency,
		"payout_retry_interval", e.retryInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Channels
// ──────────────────────────────────────────────────

// CreateChannel creates a channel owned by caller. No payment is ever
// required to create a channel; accessPrice only gates later joins of a
// private channel. Returns the assigned channel id.
func (e *Engine) CreateChannel(ctx context.Context, caller, name string, isPrivate bool, accessPrice types.Money) (int64, error) {
	if caller == "" {
		return 0, ErrInvalidInput
	}
	if strings.TrimSpace(name) == "" {
		return 0, ErrEmptyChannelName
	}

	if isPrivate {
		if accessPrice.IsNegative() {
			return 0, ErrNegativePrice
		}
		// A price carrying an amount must also carry the ledger currency;
		// silently dropping it would turn a paid channel into a free one.
		if accessPrice.Currency != e.currency && !(accessPrice.Currency == "" && accessPrice.IsZero()) {
			return 0, ErrCurrencyMismatch
		}
	}
	if !isPrivate || accessPrice.IsZero() {
		accessPrice = types.Zero(e.currency)
	}

	ch := &channel.Channel{
		Entity:      types.NewEntity(),
		Name:        name,
		Creator:     caller,
		IsPrivate:   isPrivate,
		AccessPrice: accessPrice,
		Members:     []string{},
	}

	if err := e.store.CreateChannel(ctx, ch); err != nil {
		return 0, err
	}

	e.logger.Info("channel created",
		"channel_id", ch.ID,
		"name", ch.Name,
		"creator", ch.Creator,
		"private", ch.IsPrivate,
	)

	e.plugins.EmitChannelCreated(ctx, ch)
	return ch.ID, nil
}

// GetChannel retrieves a channel by id.
func (e *Engine) GetChannel(ctx context.Context, channelID int64) (*channel.Channel, error) {
	return e.store.GetChannel(ctx, channelID)
}

// ChannelCount returns the number of channels ever created.
func (e *Engine) ChannelCount(ctx context.Context) (int64, error) {
	return e.store.ChannelCount(ctx)
}

// ListChannels returns all channels in ascending id order.
func (e *Engine) ListChannels(ctx context.Context, opts channel.ListOpts) ([]*channel.Channel, error) {
	return e.store.ListChannels(ctx, opts)
}

// HasAccess reports whether acct may read and post in the channel.
func (e *Engine) HasAccess(ctx context.Context, channelID int64, acct string) (bool, error) {
	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	return ch.HasAccess(acct), nil
}

// JoinChannel grants caller access to a channel. Private channels with a
// positive access price require paid to equal the price exactly — no
// change-making, no silent over-accept; the fee is credited to the
// channel creator. Free joins (private channels with zero price) must
// attach no payment. Joining a channel the caller can already access
// fails with ErrAlreadyMember before any payment is consumed; public
// channels grant implicit access to everyone, so they are never joinable.
func (e *Engine) JoinChannel(ctx context.Context, caller string, channelID int64, paid types.Money) error {
	if caller == "" {
		return ErrInvalidInput
	}
	if paid.IsNegative() {
		return ErrInvalidAmount
	}

	e.channelLocks.Lock(channelKey(channelID))
	defer e.channelLocks.Unlock(channelKey(channelID))

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}

	// Membership is checked before any payment is taken, so a join that
	// cannot succeed never consumes funds.
	if ch.HasAccess(caller) {
		return ErrAlreadyMember
	}

	charged := false
	if !ch.IsFree() {
		if !paid.SameCurrency(ch.AccessPrice) {
			return ErrCurrencyMismatch
		}
		if paid.LessThan(ch.AccessPrice) {
			return ErrInsufficientPayment
		}
		if paid.GreaterThan(ch.AccessPrice) {
			return ErrOverPayment
		}
		charged = true
	} else if paid.IsPositive() {
		return ErrUnexpectedPayment
	}

	if err := e.store.GrantAccess(ctx, channelID, caller); err != nil {
		return err
	}

	if charged {
		e.accountLocks.Lock(acctKey(ch.Creator))
		err := e.store.CreditBalance(ctx, ch.Creator, ch.AccessPrice)
		e.accountLocks.Unlock(acctKey(ch.Creator))
		if err != nil {
			// Membership was granted but the fee credit hit an
			// infrastructure failure; surface it loudly, the grant is
			// not revocable.
			e.logger.Error("join fee credit failed",
				"channel_id", channelID,
				"creator", ch.Creator,
				"amount", ch.AccessPrice,
				"error", err,
			)
			return fmt.Errorf("%w: join fee credit: %w", ErrTransactionFailed, err)
		}
		e.plugins.EmitJoinFeeCollected(ctx, channelID, ch.Creator, ch.AccessPrice)
	}

	e.logger.Info("member joined",
		"channel_id", channelID,
		"account", caller,
		"paid", paid,
	)

	e.plugins.EmitMemberJoined(ctx, channelID, caller)
	return nil
}

// ──────────────────────────────────────────────────
// Messages
// ──────────────────────────────────────────────────

// SendMessage appends a message to a channel the caller can access.
// The timestamp is engine-assigned and monotonically non-decreasing
// within the channel. Returns the new message id.
func (e *Engine) SendMessage(ctx context.Context, caller string, channelID int64, content string) (int64, error) {
	if caller == "" {
		return 0, ErrInvalidInput
	}
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyContent
	}

	e.channelLocks.Lock(channelKey(channelID))
	defer e.channelLocks.Unlock(channelKey(channelID))

	ch, err := e.store.GetChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if !ch.HasAccess(caller) {
		return 0, ErrAccessDenied
	}

	msg := &message.Message{
		ChannelID: channelID,
		Sender:    caller,
		Content:   content,
		Timestamp: e.clock.Now(),
		TipAmount: types.Zero(e.currency),
	}

	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return 0, err
	}

	e.plugins.EmitMessagePosted(ctx, msg)
	return msg.ID, nil
}

// GetMessage retrieves a single message.
func (e *Engine) GetMessage(ctx context.Context, channelID, messageID int64) (*message.Message, error) {
	return e.store.GetMessage(ctx, channelID, messageID)
}

// ListMessages returns a channel's messages in ascending id order.
func (e *Engine) ListMessages(ctx context.Context, channelID int64) ([]*message.Message, error) {
	return e.store.ListMessages(ctx, channelID)
}

// TipMessage transfers amount from caller to the sender of a message.
// The message's accumulated tip and the sender's withdrawable balance
// move in lockstep as one atomic unit. Tipping one's own message is
// rejected. Returns the message's new accumulated tip.
func (e *Engine) TipMessage(ctx context.Context, caller string, channelID, messageID int64, amount types.Money) (types.Money, error) {
	if caller == "" {
		return types.Money{}, ErrInvalidInput
	}
	if !amount.IsPositive() {
		return types.Money{}, ErrInvalidAmount
	}
	if amount.Currency != e.currency {
		return types.Money{}, ErrCurrencyMismatch
	}

	e.channelLocks.Lock(channelKey(channelID))
	defer e.channelLocks.Unlock(channelKey(channelID))

	msg, err := e.store.GetMessage(ctx, channelID, messageID)
	if err != nil {
		return types.Money{}, err
	}
	if msg.Sender == caller {
		return types.Money{}, ErrSelfTipForbidden
	}

	e.accountLocks.Lock(acctKey(msg.Sender))
	defer e.accountLocks.Unlock(acctKey(msg.Sender))

	newTotal, err := e.store.AddTip(ctx, channelID, messageID, amount)
	if err != nil {
		return types.Money{}, err
	}
	if err := e.store.CreditBalance(ctx, msg.Sender, amount); err != nil {
		e.logger.Error("tip credit failed after tip record",
			"channel_id", channelID,
			"message_id", messageID,
			"recipient", msg.Sender,
			"amount", amount,
			"error", err,
		)
		return types.Money{}, fmt.Errorf("%w: tip credit: %w", ErrTransactionFailed, err)
	}

	receipt := &message.Receipt{
		ID:        id.NewTipID().String(),
		ChannelID: channelID,
		MessageID: messageID,
		From:      caller,
		To:        msg.Sender,
		Amount:    amount,
		Timestamp: e.clock.Now(),
	}
	if err := e.store.SaveReceipt(ctx, receipt); err != nil {
		// The transfer itself is complete; a lost receipt only degrades
		// the audit trail.
		e.logger.Warn("tip receipt not saved", "tip_id", receipt.ID, "error", err)
	}

	e.plugins.EmitMessageTipped(ctx, receipt)
	return newTotal, nil
}

// ──────────────────────────────────────────────────
// Balances and withdrawal
// ──────────────────────────────────────────────────

// GetBalance returns acct's withdrawable balance, zero for accounts that
// were never credited.
func (e *Engine) GetBalance(ctx context.Context, acct string) (types.Money, error) {
	bal, err := e.store.GetBalance(ctx, acct)
	if err != nil {
		return types.Money{}, err
	}
	if bal.Currency == "" {
		return types.Zero(e.currency), nil
	}
	return bal, nil
}

// Withdraw debits caller's entire balance and produces a payout
// instruction for the external transfer mechanism. The debit and the
// pending payout record are durable before the transfer is attempted.
// A zero balance is a safe no-op: the returned payout carries a zero
// amount and is never persisted or executed.
//
// When a PayoutExecutor is configured the engine drives the transfer
// itself: on success the payout is marked paid; on failure it is marked
// failed and the amount is re-credited (retried by the compensation
// worker until durable), and ErrPayoutFailed is returned alongside the
// payout. Without an executor the payout stays pending and the caller
// settles it via ConfirmPayout or FailPayout.
func (e *Engine) Withdraw(ctx context.Context, caller string) (*payout.Payout, error) {
	if caller == "" {
		return nil, ErrInvalidInput
	}

	e.accountLocks.Lock(acctKey(caller))
	defer e.accountLocks.Unlock(acctKey(caller))

	amount, err := e.store.DebitBalance(ctx, caller)
	if err != nil {
		return nil, err
	}
	if amount.Currency == "" {
		amount = types.Zero(e.currency)
	}

	p := &payout.Payout{
		Entity:  types.NewEntity(),
		ID:      id.NewPayoutID(),
		Account: caller,
		Amount:  amount,
		Status:  payout.StatusPending,
	}

	if amount.IsZero() {
		p.Status = payout.StatusPaid
		return p, nil
	}

	// Debit is committed; the payout record must be durable before any
	// external transfer is attempted.
	if err := e.store.CreatePayout(ctx, p); err != nil {
		// Put the money back rather than lose it to an unrecorded payout.
		if cerr := e.store.CreditBalance(ctx, caller, amount); cerr != nil {
			e.logger.Error("withdrawal rollback failed",
				"account", caller,
				"amount", amount,
				"error", cerr,
			)
		}
		return nil, err
	}

	if e.executor == nil {
		return p, nil
	}

	if xerr := e.executor.Execute(ctx, p); xerr != nil {
		return p, e.failPayoutLocked(ctx, p, xerr)
	}

	if err := e.store.MarkPayoutPaid(ctx, p.ID); err != nil {
		return p, err
	}
	p.Status = payout.StatusPaid

	e.logger.Info("withdrawal executed",
		"account", caller,
		"amount", amount,
		"payout_id", p.ID,
	)

	e.plugins.EmitWithdrawal(ctx, p)
	return p, nil
}

// ConfirmPayout marks a pending payout as paid. Called by the surrounding
// transfer layer when no executor is configured. Confirming a payout that
// is already paid is a no-op; a failed or compensated payout cannot be
// confirmed — its amount is back on the account's balance.
func (e *Engine) ConfirmPayout(ctx context.Context, payoutID id.PayoutID) error {
	p, err := e.store.GetPayout(ctx, payoutID)
	if err != nil {
		return err
	}

	e.accountLocks.Lock(acctKey(p.Account))
	defer e.accountLocks.Unlock(acctKey(p.Account))

	switch p.Status {
	case payout.StatusPaid:
		return nil
	case payout.StatusPending:
	default:
		return ErrPayoutSettled
	}

	if err := e.store.MarkPayoutPaid(ctx, payoutID); err != nil {
		return err
	}
	p.Status = payout.StatusPaid
	e.plugins.EmitWithdrawal(ctx, p)
	return nil
}

// FailPayout marks a pending payout as failed and re-credits its amount.
// Safe to call repeatedly; compensation is applied exactly once — a
// payout that was already compensated is left alone, and a paid payout
// cannot be failed.
func (e *Engine) FailPayout(ctx context.Context, payoutID id.PayoutID) error {
	p, err := e.store.GetPayout(ctx, payoutID)
	if err != nil {
		return err
	}

	e.accountLocks.Lock(acctKey(p.Account))
	defer e.accountLocks.Unlock(acctKey(p.Account))

	switch p.Status {
	case payout.StatusCompensated:
		return nil
	case payout.StatusPaid:
		return ErrPayoutSettled
	}

	return e.failPayoutLocked(ctx, p, ErrPayoutFailed)
}

// GetPayout retrieves a payout instruction by id.
func (e *Engine) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	return e.store.GetPayout(ctx, payoutID)
}

// failPayoutLocked records the failure and attempts immediate
// compensation; the worker retries anything left in the failed state.
// A payout already in the failed state skips straight to the
// compensation retry. Caller must hold the account lock.
func (e *Engine) failPayoutLocked(ctx context.Context, p *payout.Payout, cause error) error {
	if p.Status == payout.StatusPending {
		if err := e.store.MarkPayoutFailed(ctx, p.ID); err != nil {
			return err
		}
		p.Status = payout.StatusFailed

		e.logger.Warn("payout failed, compensating",
			"payout_id", p.ID,
			"account", p.Account,
			"amount", p.Amount,
			"error", cause,
		)
		e.plugins.EmitPayoutFailed(ctx, p, cause)
	}

	if err := e.store.CompensatePayout(ctx, p.ID); err != nil {
		e.logger.Warn("immediate compensation failed, worker will retry",
			"payout_id", p.ID,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrPayoutFailed, cause)
	}
	p.Status = payout.StatusCompensated
	e.plugins.EmitPayoutCompensated(ctx, p)

	return fmt.Errorf("%w: %w", ErrPayoutFailed, cause)
}

// compensationWorker retries re-crediting failed payouts until each
// compensation durably succeeds. Losing one would destroy value.
func (e *Engine) compensationWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.compensateFailedPayouts(ctx)
		}
	}
}

func (e *Engine) compensateFailedPayouts(ctx context.Context) {
	failed, err := e.store.ListFailedPayouts(ctx)
	if err != nil {
		e.logger.Error("failed to list failed payouts", "error", err)
		return
	}

	for _, p := range failed {
		e.accountLocks.Lock(acctKey(p.Account))
		err := e.store.CompensatePayout(ctx, p.ID)
		e.accountLocks.Unlock(acctKey(p.Account))

		if err != nil {
			e.logger.Warn("payout compensation retry failed",
				"payout_id", p.ID,
				"account", p.Account,
				"error", err,
			)
			continue
		}

		p.Status = payout.StatusCompensated
		e.logger.Info("payout compensated",
			"payout_id", p.ID,
			"account", p.Account,
			"amount", p.Amount,
		)
		e.plugins.EmitPayoutCompensated(ctx, p)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func channelKey(channelID int64) string {
	return "chan:" + strconv.FormatInt(channelID, 10)
}

func acctKey(acct string) string {
	return "acct:" + acct
}
