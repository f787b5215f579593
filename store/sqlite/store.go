// Package sqlite provides a SQLite-backed Store for single-node and
// embedded deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("courier/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("courier/sqlite: migration failed: %w", err)
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
	return s.sdb.NewRaw(`
		INSERT INTO courier_channels
		    (name, creator, is_private, price_cents, price_currency, members, message_seq, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, 0, ?, ?)
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
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM courier_channels`).Scan(ctx, &count)
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
	_, err = s.sdb.NewUpdate((*channelModel)(nil)).
		Set("members = ?", string(raw)).
		Set("updated_at = ?", now()).
		Where("id = ?", channelID).
		Exec(ctx)
	return err
}

func (s *Store) ListChannels(ctx context.Context, opts channel.ListOpts) ([]*channel.Channel, error) {
	var models []channelModel
	q := s.sdb.NewSelect(&models)

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

	if _, err := s.sdb.NewInsert(toMessageModel(msg)).Exec(ctx); err != nil {
		return err
	}

	_, err = s.sdb.NewUpdate((*channelModel)(nil)).
		Set("message_seq = ?", msg.ID+1).
		Set("message_count = ?", ch.MessageCount+1).
		Set("last_message_at = ?", msg.Timestamp).
		Set("updated_at = ?", now()).
		Where("id = ?", msg.ChannelID).
		Exec(ctx)
	return err
}

func (s *Store) GetMessage(ctx context.Context, channelID, messageID int64) (*message.Message, error) {
	m := new(messageModel)
	err := s.sdb.NewSelect(m).
		Where("channel_id = ?", channelID).
		Where("id = ?", messageID).
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
	err := s.sdb.NewSelect(&models).
		Where("channel_id = ?", channelID).
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
	res, err := s.sdb.NewUpdate((*messageModel)(nil)).
		Set("tip_cents = tip_cents + ?", amount.Amount).
		Set("tip_currency = ?", amount.Currency).
		Where("channel_id = ?", channelID).
		Where("id = ?", messageID).
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
	_, err := s.sdb.NewInsert(toReceiptModel(r)).Exec(ctx)
	return err
}

func (s *Store) ListReceipts(ctx context.Context, channelID int64) ([]*message.Receipt, error) {
	var models []receiptModel
	err := s.sdb.NewSelect(&models).
		Where("channel_id = ?", channelID).
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account) DO UPDATE").
		Set("amount_cents = courier_balances.amount_cents + EXCLUDED.amount_cents").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetBalance(ctx context.Context, acct string) (types.Money, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", acct).
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
	err := s.sdb.NewSelect(m).
		Where("account = ?", acct).
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
	res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
		Set("amount_cents = 0").
		Set("updated_at = ?", now()).
		Where("account = ?", acct).
		Where("amount_cents = ?", m.AmountCents).
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
	err := s.sdb.NewSelect(&models).
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
	_, err := s.sdb.NewInsert(toPayoutModel(p)).Exec(ctx)
	return err
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	m := new(payoutModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", payoutID.String()).
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
	res, err := s.sdb.NewUpdate((*payoutModel)(nil)).
		Set("status = ?", string(payout.StatusPaid)).
		Set("paid_at = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", payoutID.String()).
		Where("status = ?", string(payout.StatusPending)).
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
	res, err := s.sdb.NewUpdate((*payoutModel)(nil)).
		Set("status = ?", string(payout.StatusFailed)).
		Set("failed_at = ?", t).
		Set("attempts = attempts + 1").
		Set("updated_at = ?", t).
		Where("id = ?", payoutID.String()).
		Where("status = ?", string(payout.StatusPending)).
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
	res, err := s.sdb.NewUpdate((*payoutModel)(nil)).
		Set("status = ?", string(payout.StatusCompensated)).
		Set("updated_at = ?", now()).
		Where("id = ?", payoutID.String()).
		Where("status = ?", string(payout.StatusFailed)).
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
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(payout.StatusFailed)).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", channelID).
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
