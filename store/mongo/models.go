package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/courier/account"
	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	"github.com/xraph/courier/types"
)

// ==================== Channel models ====================

type channelModel struct {
	grove.BaseModel `grove:"table:courier_channels"`

	ID            int64      `grove:"id,pk"           bson:"_id"`
	Name          string     `grove:"name"            bson:"name"`
	Creator       string     `grove:"creator"         bson:"creator"`
	IsPrivate     bool       `grove:"is_private"      bson:"is_private"`
	PriceCents    int64      `grove:"price_cents"     bson:"price_cents"`
	PriceCurrency string     `grove:"price_currency"  bson:"price_currency"`
	Members       []string   `grove:"members"         bson:"members"`
	MessageSeq    int64      `grove:"message_seq"     bson:"message_seq"`
	MessageCount  int64      `grove:"message_count"   bson:"message_count"`
	LastMessageAt *time.Time `grove:"last_message_at" bson:"last_message_at,omitempty"`
	CreatedAt     time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"      bson:"updated_at"`
}

func toChannelModel(ch *channel.Channel) *channelModel {
	members := ch.Members
	if members == nil {
		members = []string{}
	}
	return &channelModel{
		ID:            ch.ID,
		Name:          ch.Name,
		Creator:       ch.Creator,
		IsPrivate:     ch.IsPrivate,
		PriceCents:    ch.AccessPrice.Amount,
		PriceCurrency: ch.AccessPrice.Currency,
		Members:       members,
		MessageSeq:    1,
		MessageCount:  ch.MessageCount,
		CreatedAt:     ch.CreatedAt,
		UpdatedAt:     ch.UpdatedAt,
	}
}

func fromChannelModel(m *channelModel) *channel.Channel {
	return &channel.Channel{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           m.ID,
		Name:         m.Name,
		Creator:      m.Creator,
		IsPrivate:    m.IsPrivate,
		AccessPrice:  types.Money{Amount: m.PriceCents, Currency: m.PriceCurrency},
		Members:      m.Members,
		MessageCount: m.MessageCount,
	}
}

// ==================== Message models ====================

type messageModel struct {
	grove.BaseModel `grove:"table:courier_messages"`

	Key         string    `grove:"id,pk"        bson:"_id"`
	ChannelID   int64     `grove:"channel_id"   bson:"channel_id"`
	ID          int64     `grove:"message_id"   bson:"message_id"`
	Sender      string    `grove:"sender"       bson:"sender"`
	Content     string    `grove:"content"      bson:"content"`
	Timestamp   time.Time `grove:"timestamp"    bson:"timestamp"`
	TipCents    int64     `grove:"tip_cents"    bson:"tip_cents"`
	TipCurrency string    `grove:"tip_currency" bson:"tip_currency"`
}

func toMessageModel(msg *message.Message) *messageModel {
	return &messageModel{
		Key:         messageKey(msg.ChannelID, msg.ID),
		ChannelID:   msg.ChannelID,
		ID:          msg.ID,
		Sender:      msg.Sender,
		Content:     msg.Content,
		Timestamp:   msg.Timestamp,
		TipCents:    msg.TipAmount.Amount,
		TipCurrency: msg.TipAmount.Currency,
	}
}

func fromMessageModel(m *messageModel) *message.Message {
	return &message.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		TipAmount: types.Money{Amount: m.TipCents, Currency: m.TipCurrency},
	}
}

// ==================== Tip Receipt models ====================

type receiptModel struct {
	grove.BaseModel `grove:"table:courier_tip_receipts"`

	ID          string    `grove:"id,pk"        bson:"_id"`
	ChannelID   int64     `grove:"channel_id"   bson:"channel_id"`
	MessageID   int64     `grove:"message_id"   bson:"message_id"`
	FromAccount string    `grove:"from_account" bson:"from_account"`
	ToAccount   string    `grove:"to_account"   bson:"to_account"`
	AmountCents int64     `grove:"amount_cents" bson:"amount_cents"`
	Currency    string    `grove:"currency"     bson:"currency"`
	Timestamp   time.Time `grove:"timestamp"    bson:"timestamp"`
}

func toReceiptModel(r *message.Receipt) *receiptModel {
	return &receiptModel{
		ID:          r.ID,
		ChannelID:   r.ChannelID,
		MessageID:   r.MessageID,
		FromAccount: r.From,
		ToAccount:   r.To,
		AmountCents: r.Amount.Amount,
		Currency:    r.Amount.Currency,
		Timestamp:   r.Timestamp,
	}
}

func fromReceiptModel(m *receiptModel) *message.Receipt {
	return &message.Receipt{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		MessageID: m.MessageID,
		From:      m.FromAccount,
		To:        m.ToAccount,
		Amount:    types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Timestamp: m.Timestamp,
	}
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:courier_balances"`

	Account     string    `grove:"id,pk"        bson:"_id"`
	AmountCents int64     `grove:"amount_cents" bson:"amount_cents"`
	Currency    string    `grove:"currency"     bson:"currency"`
	CreatedAt   time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"   bson:"updated_at"`
}

func fromBalanceModel(m *balanceModel) *account.Balance {
	return &account.Balance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Account: m.Account,
		Amount:  types.Money{Amount: m.AmountCents, Currency: m.Currency},
	}
}

// ==================== Payout models ====================

type payoutModel struct {
	grove.BaseModel `grove:"table:courier_payouts"`

	ID          string     `grove:"id,pk"        bson:"_id"`
	Account     string     `grove:"account"      bson:"account"`
	AmountCents int64      `grove:"amount_cents" bson:"amount_cents"`
	Currency    string     `grove:"currency"     bson:"currency"`
	Status      string     `grove:"status"       bson:"status"`
	Attempts    int        `grove:"attempts"     bson:"attempts"`
	PaidAt      *time.Time `grove:"paid_at"      bson:"paid_at,omitempty"`
	FailedAt    *time.Time `grove:"failed_at"    bson:"failed_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"   bson:"updated_at"`
}

func toPayoutModel(p *payout.Payout) *payoutModel {
	return &payoutModel{
		ID:          p.ID.String(),
		Account:     p.Account,
		AmountCents: p.Amount.Amount,
		Currency:    p.Amount.Currency,
		Status:      string(p.Status),
		Attempts:    p.Attempts,
		PaidAt:      p.PaidAt,
		FailedAt:    p.FailedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPayoutModel(m *payoutModel) (*payout.Payout, error) {
	payoutID, err := id.ParsePayoutID(m.ID)
	if err != nil {
		return nil, err
	}

	return &payout.Payout{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       payoutID,
		Account:  m.Account,
		Amount:   types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Status:   payout.Status(m.Status),
		Attempts: m.Attempts,
		PaidAt:   m.PaidAt,
		FailedAt: m.FailedAt,
	}, nil
}
