// Package postgres provides a PostgreSQL-backed Store for production
// deployments.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/account"
	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/types"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("courier/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("courier/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Channel Store ====================

func (s *Store) CreateChannel(ctx context.Context, ch *channel.Channel) error {
	members := ch.Members
	if members == nil {
		members = []string{}
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return err
	}

	// The db assigns the next sequential id.
	return s.pg.NewRaw(`
		INSERT INTO courier_channels
		    (name, creator, is_private, price_cents, price_currency, members, message_seq, message_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, 0, $7, $8)
		RETURNING id
	`, ch.Name, ch.Creator, ch.IsPrivate, ch.AccessPrice.Amount, ch.AccessPrice.Currency,
		string(raw), ch.CreatedAt, ch.UpdatedAt).Scan(ctx, &ch.ID)
}

func (s *Store) GetChannel(ctx context.Context, channelID int64) (*channel.Channel, error) {
	m, err := s.getChannelModel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return fromChannelModel(m)
}

func (s *Store) ChannelCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM courier_channels`).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GrantAccess(ctx context.Context, channelID int64, acct string) error {
	m, err := s.getChannelModel(ctx, channelID)
	if err != nil {
		return err
	}
	ch, err := fromChannelModel(m)
	if err != nil {
		return err
	}
	if ch.HasAccess(acct) {
		return courier.ErrAlreadyMember
	}

	raw, err := json.Marshal(append(ch.Members, acct))
	if err != nil {
		return err
	}
	_, err = s.pg.NewUpdate((*channelModel)(nil)).
		Set("members = $1", string(raw)).
		Set("updated_at = $2", now()).
		Where("id = $3", channelID).
		Exec(ctx)
	return err
}

func (s *Store) ListChannels(ctx context.Context, opts channel.ListOpts) ([]*channel.Channel, error) {
	var models []channelModel
	q := s.pg.NewSelect(&models)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*channel.Channel, len(models))
	for i := range models {
		ch, err := fromChannelModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ch
	}
	return result, nil
}

// ==================== Message Store ====================

func (s *Store) AppendMessage(ctx context.Context, msg *message.Message) error {
	ch, err := s.getChannelModel(ctx, msg.ChannelID)
	if err != nil {
		return err
	}

	msg.ID = ch.MessageSeq

	// Clamp to keep timestamps non-decreasing within the channel.
	if ch.LastMessageAt != nil && msg.Timestamp.Before(*ch.LastMessageAt) {
		msg.Timestamp = *ch.LastMessageAt
	}

	if _, err := s.pg.NewInsert(toMessageModel(msg)).Exec(ctx); err != nil {
		return err
	}

	_, err = s.pg.NewUpdate((*channelModel)(nil)).
		Set("message_seq = $1", msg.ID+1).
		Set("message_count = $2", ch.MessageCount+1).
		Set("last_message_at = $3", msg.Timestamp).
		Set("updated_at = $4", now()).
		Where("id = $5", msg.ChannelID).
		Exec(ctx)
	return err
}

func (s *Store) GetMessage(ctx context.Context, channelID, messageID int64) (*message.Message, error) {
	m := new(messageModel)
	err := s.pg.NewSelect(m).
		Where("channel_id = $1", channelID).
		Where("id = $2", messageID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			if _, cerr := s.getChannelModel(ctx, channelID); cerr != nil {
				return nil, cerr
			}
			return nil, courier.ErrMessageNotFound
		}
		return nil, err
	}
	return fromMessageModel(m), nil
}

func (s *Store) ListMessages(ctx context.Context, channelID int64) ([]*message.Message, error) {
	if _, err := s.getChannelModel(ctx, channelID); err != nil {
		return nil, err
	}

	var models []messageModel
	err := s.pg.NewSelect(&models).
		Where("channel_id = $1", channelID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*message.Message, len(models))
	for i := range models {
		result[i] = fromMessageModel(&models[i])
	}
	return result, nil
}

func (s *Store) AddTip(ctx context.Context, channelID, messageID int64, amount types.Money) (types.Money, error) {
	if !amount.IsPositive() {
		return types.Money{}, courier.ErrInvalidAmount
	}

	// Single conditional increment so concurrent tips never lose updates.
	res, err := s.pg.NewUpdate((*messageModel)(nil)).
		Set("tip_cents = tip_cents + $1", amount.Amount).
		Set("tip_currency = $2", amount.Currency).
		Where("channel_id = $3", channelID).
		Where("id = $4", messageID).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Money{}, err
	}
	if rows == 0 {
		if _, cerr := s.getChannelModel(ctx, channelID); cerr != nil {
			return types.Money{}, cerr
		}
		return types.Money{}, courier.ErrMessageNotFound
	}

	msg, err := s.GetMessage(ctx, channelID, messageID)
	if err != nil {
		return types.Money{}, err
	}
	return msg.TipAmount, nil
}

func (s *Store) SaveReceipt(ctx context.Context, r *message.Receipt) error {
	_, err := s.pg.NewInsert(toReceiptModel(r)).Exec(ctx)
	return err
}

func (s *Store) ListReceipts(ctx context.Context, channelID int64) ([]*message.Receipt, error) {
	var models []receiptModel
	err := s.pg.NewSelect(&models).
		Where("channel_id = $1", channelID).
		OrderExpr("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*message.Receipt, len(models))
	for i := range models {
		result[i] = fromReceiptModel(&models[i])
	}
	return result, nil
}

// ==================== Balance Store ====================

func (s *Store) CreditBalance(ctx context.Context, acct string, amount types.Money) error {
	if !amount.IsPositive() {
		return courier.ErrInvalidAmount
	}

	t := now()
	m := &balanceModel{
		Account:     acct,
		AmountCents: amount.Amount,
		Currency:    amount.Currency,
		CreatedAt:   t,
		UpdatedAt:   t,
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(account) DO UPDATE").
		Set("amount_cents = courier_balances.amount_cents + EXCLUDED.amount_cents").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetBalance(ctx context.Context, acct string) (types.Money, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("account = $1", acct).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, nil
		}
		return types.Money{}, err
	}
	return types.Money{Amount: m.AmountCents, Currency: m.Currency}, nil
}

func (s *Store) DebitBalance(ctx context.Context, acct string) (types.Money, error) {
	m := new(balanceModel)
	err := s.pg.NewSelect(m).
		Where("account = $1", acct).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, nil
		}
		return types.Money{}, err
	}
	if m.AmountCents == 0 {
		return types.Money{}, nil
	}

	// Conditional on the read amount so a racing credit is never swallowed.
	res, err := s.pg.NewUpdate((*balanceModel)(nil)).
		Set("amount_cents = 0").
		Set("updated_at = $1", now()).
		Where("account = $2", acct).
		Where("amount_cents = $3", m.AmountCents).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Money{}, err
	}
	if rows == 0 {
		return types.Money{}, courier.ErrTransactionFailed
	}
	return types.Money{Amount: m.AmountCents, Currency: m.Currency}, nil
}

func (s *Store) ListBalances(ctx context.Context) ([]*account.Balance, error) {
	var models []balanceModel
	err := s.pg.NewSelect(&models).
		OrderExpr("account ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*account.Balance, len(models))
	for i := range models {
		result[i] = fromBalanceModel(&models[i])
	}
	return result, nil
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	_, err := s.pg.NewInsert(toPayoutModel(p)).Exec(ctx)
	return err
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	m := new(payoutModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", payoutID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrPayoutNotFound
		}
		return nil, err
	}
	return fromPayoutModel(m)
}

func (s *Store) MarkPayoutPaid(ctx context.Context, payoutID id.PayoutID) error {
	t := now()
	res, err := s.pg.NewUpdate((*payoutModel)(nil)).
		Set("status = $1", string(payout.StatusPaid)).
		Set("paid_at = $2", t).
		Set("updated_at = $3", t).
		Where("id = $4", payoutID.String()).
		Where("status = $5", string(payout.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.payoutNotPending(ctx, payoutID)
	}
	return nil
}

func (s *Store) MarkPayoutFailed(ctx context.Context, payoutID id.PayoutID) error {
	t := now()
	res, err := s.pg.NewUpdate((*payoutModel)(nil)).
		Set("status = $1", string(payout.StatusFailed)).
		Set("failed_at = $2", t).
		Set("attempts = attempts + 1").
		Set("updated_at = $3", t).
		Where("id = $4", payoutID.String()).
		Where("status = $5", string(payout.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.payoutNotPending(ctx, payoutID)
	}
	return nil
}

// payoutNotPending explains a zero-row status update: the payout either
// does not exist or has already left the pending state.
func (s *Store) payoutNotPending(ctx context.Context, payoutID id.PayoutID) error {
	if _, err := s.GetPayout(ctx, payoutID); err != nil {
		return err
	}
	return courier.ErrPayoutSettled
}

func (s *Store) CompensatePayout(ctx context.Context, payoutID id.PayoutID) error {
	p, err := s.GetPayout(ctx, payoutID)
	if err != nil {
		return err
	}
	if p.Status != payout.StatusFailed {
		return nil
	}

	// The status flip gates the re-credit: concurrent retries race on this
	// update and at most one proceeds to credit.
	res, err := s.pg.NewUpdate((*payoutModel)(nil)).
		Set("status = $1", string(payout.StatusCompensated)).
		Set("updated_at = $2", now()).
		Where("id = $3", payoutID.String()).
		Where("status = $4", string(payout.StatusFailed)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	return s.CreditBalance(ctx, p.Account, p.Amount)
}

func (s *Store) ListFailedPayouts(ctx context.Context) ([]*payout.Payout, error) {
	var models []payoutModel
	err := s.pg.NewSelect(&models).
		Where("status = $1", string(payout.StatusFailed)).
		OrderExpr("failed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*payout.Payout, len(models))
	for i := range models {
		p, err := fromPayoutModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

func (s *Store) getChannelModel(ctx context.Context, channelID int64) (*channelModel, error) {
	m := new(channelModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", channelID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrChannelNotFound
		}
		return nil, err
	}
	return m, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
