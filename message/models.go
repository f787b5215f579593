// Package message defines the append-only message domain model.
package message

import (
	"time"

	"github.com/xraph/courier/types"
)

// Message is one entry in a channel's append-only log. Ids increase
// strictly per channel starting at 1; timestamps are monotonically
// non-decreasing within a channel. Every field except TipAmount is
// immutable once appended.
type Message struct {
	ID        int64       `json:"id"`
	ChannelID int64       `json:"channel_id"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	TipAmount types.Money `json:"tip_amount"`
}

// Receipt records one applied tip, for audit and rendering. The message's
// TipAmount is the running sum of all receipts against it.
type Receipt struct {
	ID        string      `json:"id"` // tip TypeID
	ChannelID int64       `json:"channel_id"`
	MessageID int64       `json:"message_id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Amount    types.Money `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}
