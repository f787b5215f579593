package sqlite

import (
	"encoding/json"
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

	ID            int64           `grove:"id,pk"`
	Name          string          `grove:"name"`
	Creator       string          `grove:"creator"`
	IsPrivate     bool            `grove:"is_private"`
	PriceCents    int64           `grove:"price_cents"`
	PriceCurrency string          `grove:"price_currency"`
	Members       json.RawMessage `grove:"members"`
	MessageSeq    int64           `grove:"message_seq"`
	MessageCount  int64           `grove:"message_count"`
	LastMessageAt *time.Time      `grove:"last_message_at"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func fromChannelModel(m *channelModel) (*channel.Channel, error) {
	var members []string
	if len(m.Members) > 0 {
		_ = json.Unmarshal(m.Members, &members) //nolint:errcheck // best-effort
	}

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
		Members:      members,
		MessageCount: m.MessageCount,
	}, nil
}

// ==================== Message models ====================

type messageModel struct {
	grove.BaseModel `grove:"table:courier_messages"`

	ChannelID   int64     `grove:"channel_id,pk"`
	ID          int64     `grove:"id,pk"`
	Sender      string    `grove:"sender"`
	Content     string    `grove:"content"`
	Timestamp   time.Time `grove:"timestamp"`
	TipCents    int64     `grove:"tip_cents"`
	TipCurrency string    `grove:"tip_currency"`
}

func toMessageModel(msg *message.Message) *messageModel {
	return &messageModel{
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

	ID          string    `grove:"id,pk"`
	ChannelID   int64     `grove:"channel_id"`
	MessageID   int64     `grove:"message_id"`
	FromAccount string    `grove:"from_account"`
	ToAccount   string    `grove:"to_account"`
	AmountCents int64     `grove:"amount_cents"`
	Currency    string    `grove:"currency"`
	Timestamp   time.Time `grove:"timestamp"`
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

	Account     string    `grove:"account,pk"`
	AmountCents int64     `grove:"amount_cents"`
	Currency    string    `grove:"currency"`
	CreatedAt   time.Time `grove:"created_at"`
	UpdatedAt   time.Time `grove:"updated_at"`
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

	ID          string     `grove:"id,pk"`
	Account     string     `grove:"account"`
	AmountCents int64      `grove:"amount_cents"`
	Currency    string     `grove:"currency"`
	Status      string     `grove:"status"`
	Attempts    int        `grove:"attempts"`
	PaidAt      *time.Time `grove:"paid_at"`
	FailedAt    *time.Time `grove:"failed_at"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
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
