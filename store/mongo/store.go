// Package mongo provides a MongoDB-backed Store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/account"
	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/types"
)

// Collection name constants.
const (
	colChannels = "courier_channels"
	colMessages = "courier_messages"
	colReceipts = "courier_tip_receipts"
	colBalances = "courier_balances"
	colPayouts  = "courier_payouts"
	colCounters = "courier_counters"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all courier collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("courier/mongo: migrate %s indexes: %w", col, err)
		}
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
	seq, err := s.nextSeq(ctx, "channel")
	if err != nil {
		return fmt.Errorf("courier/mongo: next channel id: %w", err)
	}
	ch.ID = seq

	m := toChannelModel(ch)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: create channel: %w", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, channelID int64) (*channel.Channel, error) {
	m, err := s.getChannelModel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return fromChannelModel(m), nil
}

func (s *Store) ChannelCount(ctx context.Context) (int64, error) {
	count, err := s.mdb.Collection(colChannels).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("courier/mongo: channel count: %w", err)
	}
	return count, nil
}

func (s *Store) GrantAccess(ctx context.Context, channelID int64, acct string) error {
	m, err := s.getChannelModel(ctx, channelID)
	if err != nil {
		return err
	}
	if fromChannelModel(m).HasAccess(acct) {
		return courier.ErrAlreadyMember
	}

	_, err = s.mdb.NewUpdate((*channelModel)(nil)).
		Filter(bson.M{"_id": channelID}).
		SetUpdate(bson.M{
			"$addToSet": bson.M{"members": acct},
			"$set":      bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: grant access: %w", err)
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context, opts channel.ListOpts) ([]*channel.Channel, error) {
	var models []channelModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/mongo: list channels: %w", err)
	}

	result := make([]*channel.Channel, len(models))
	for i := range models {
		result[i] = fromChannelModel(&models[i])
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

	if _, err := s.mdb.NewInsert(toMessageModel(msg)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: append message: %w", err)
	}

	_, err = s.mdb.NewUpdate((*channelModel)(nil)).
		Filter(bson.M{"_id": msg.ChannelID}).
		Set("message_seq", msg.ID+1).
		Set("message_count", ch.MessageCount+1).
		Set("last_message_at", msg.Timestamp).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: bump message seq: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, channelID, messageID int64) (*message.Message, error) {
	var m messageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": messageKey(channelID, messageID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			if _, cerr := s.getChannelModel(ctx, channelID); cerr != nil {
				return nil, cerr
			}
			return nil, courier.ErrMessageNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get message: %w", err)
	}
	return fromMessageModel(&m), nil
}

func (s *Store) ListMessages(ctx context.Context, channelID int64) ([]*message.Message, error) {
	if _, err := s.getChannelModel(ctx, channelID); err != nil {
		return nil, err
	}

	var models []messageModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"channel_id": channelID}).
		Sort(bson.D{{Key: "message_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list messages: %w", err)
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

	// Single $inc so concurrent tips never lose updates.
	res, err := s.mdb.NewUpdate((*messageModel)(nil)).
		Filter(bson.M{"_id": messageKey(channelID, messageID)}).
		SetUpdate(bson.M{
			"$inc": bson.M{"tip_cents": amount.Amount},
			"$set": bson.M{"tip_currency": amount.Currency},
		}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("courier/mongo: add tip: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	if _, err := s.mdb.NewInsert(toReceiptModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: save receipt: %w", err)
	}
	return nil
}

func (s *Store) ListReceipts(ctx context.Context, channelID int64) ([]*message.Receipt, error) {
	var models []receiptModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"channel_id": channelID}).
		Sort(bson.D{{Key: "timestamp", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list receipts: %w", err)
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
	_, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": acct}).
		SetUpdate(bson.M{
			"$inc":         bson.M{"amount_cents": amount.Amount},
			"$set":         bson.M{"currency": amount.Currency, "updated_at": t},
			"$setOnInsert": bson.M{"created_at": t},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: credit balance: %w", err)
	}
	return nil
}

func (s *Store) GetBalance(ctx context.Context, acct string) (types.Money, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": acct}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Money{}, nil
		}
		return types.Money{}, fmt.Errorf("courier/mongo: get balance: %w", err)
	}
	return types.Money{Amount: m.AmountCents, Currency: m.Currency}, nil
}

func (s *Store) DebitBalance(ctx context.Context, acct string) (types.Money, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": acct}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Money{}, nil
		}
		return types.Money{}, fmt.Errorf("courier/mongo: debit balance: %w", err)
	}
	if m.AmountCents == 0 {
		return types.Money{}, nil
	}

	// Conditional on the read amount so a racing credit is never swallowed.
	res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": acct, "amount_cents": m.AmountCents}).
		Set("amount_cents", int64(0)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("courier/mongo: debit balance: %w", err)
	}
	if res.MatchedCount() == 0 {
		return types.Money{}, courier.ErrTransactionFailed
	}
	return types.Money{Amount: m.AmountCents, Currency: m.Currency}, nil
}

func (s *Store) ListBalances(ctx context.Context) ([]*account.Balance, error) {
	var models []balanceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list balances: %w", err)
	}

	result := make([]*account.Balance, len(models))
	for i := range models {
		result[i] = fromBalanceModel(&models[i])
	}
	return result, nil
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	if _, err := s.mdb.NewInsert(toPayoutModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/mongo: create payout: %w", err)
	}
	return nil
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	var m payoutModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": payoutID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get payout: %w", err)
	}
	return fromPayoutModel(&m)
}

func (s *Store) MarkPayoutPaid(ctx context.Context, payoutID id.PayoutID) error {
	t := now()
	res, err := s.mdb.NewUpdate((*payoutModel)(nil)).
		Filter(bson.M{"_id": payoutID.String(), "status": string(payout.StatusPending)}).
		Set("status", string(payout.StatusPaid)).
		Set("paid_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: mark payout paid: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.payoutNotPending(ctx, payoutID)
	}
	return nil
}

func (s *Store) MarkPayoutFailed(ctx context.Context, payoutID id.PayoutID) error {
	t := now()
	res, err := s.mdb.NewUpdate((*payoutModel)(nil)).
		Filter(bson.M{"_id": payoutID.String(), "status": string(payout.StatusPending)}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"status":     string(payout.StatusFailed),
				"failed_at":  t,
				"updated_at": t,
			},
			"$inc": bson.M{"attempts": 1},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: mark payout failed: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.payoutNotPending(ctx, payoutID)
	}
	return nil
}

// payoutNotPending explains a zero-match status update: the payout either
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
	res, err := s.mdb.NewUpdate((*payoutModel)(nil)).
		Filter(bson.M{"_id": payoutID.String(), "status": string(payout.StatusFailed)}).
		Set("status", string(payout.StatusCompensated)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/mongo: compensate payout: %w", err)
	}
	if res.MatchedCount() == 0 {
		return nil
	}

	return s.CreditBalance(ctx, p.Account, p.Amount)
}

func (s *Store) ListFailedPayouts(ctx context.Context) ([]*payout.Payout, error) {
	var models []payoutModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"status": string(payout.StatusFailed)}).
		Sort(bson.D{{Key: "failed_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list failed payouts: %w", err)
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
	var m channelModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": channelID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrChannelNotFound
		}
		return nil, fmt.Errorf("courier/mongo: get channel: %w", err)
	}
	return &m, nil
}

// nextSeq atomically increments and returns the named counter.
func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	res := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

// messageKey builds the composite document id for a message.
func messageKey(channelID, messageID int64) string {
	return fmt.Sprintf("%d:%d", channelID, messageID)
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all courier collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colChannels: {
			{Keys: bson.D{{Key: "creator", Value: 1}}},
		},
		colMessages: {
			{
				Keys:    bson.D{{Key: "channel_id", Value: 1}, {Key: "message_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "sender", Value: 1}}},
		},
		colReceipts: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "message_id", Value: 1}}},
			{Keys: bson.D{{Key: "to_account", Value: 1}}},
		},
		colPayouts: {
			{Keys: bson.D{{Key: "account", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
}
