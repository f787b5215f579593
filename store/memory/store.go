// Package memory provides an in-memory Store implementation. It is the
// default store and the reference for the semantics the durable stores
// must match.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

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

type Store struct {
	mu sync.RWMutex

	// Channel storage: ids are assigned sequentially starting at 1 and
	// never reused.
	channels      map[int64]*channel.Channel
	nextChannelID int64

	// Message storage, per channel. messageSeq holds the next id for each
	// channel; lastStamp the previous message's timestamp for the
	// monotonic clamp.
	messages   map[int64][]*message.Message
	messageSeq map[int64]int64
	lastStamp  map[int64]time.Time

	// Tip receipts, per channel.
	receipts map[int64][]*message.Receipt

	// Balance storage, created lazily on first credit.
	balances map[string]*account.Balance

	// Payout storage.
	payouts map[string]*payout.Payout
}

func New() *Store {
	return &Store{
		channels:      make(map[int64]*channel.Channel),
		nextChannelID: 1,
		messages:      make(map[int64][]*message.Message),
		messageSeq:    make(map[int64]int64),
		lastStamp:     make(map[int64]time.Time),
		receipts:      make(map[int64][]*message.Receipt),
		balances:      make(map[string]*account.Balance),
		payouts:       make(map[string]*payout.Payout),
	}
}

// ==================== Channel Store ====================

func (s *Store) CreateChannel(_ context.Context, ch *channel.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch.ID = s.nextChannelID
	s.nextChannelID++

	s.channels[ch.ID] = copyChannel(ch)
	s.messageSeq[ch.ID] = 1
	return nil
}

func (s *Store) GetChannel(_ context.Context, channelID int64) (*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, courier.ErrChannelNotFound
	}
	return copyChannel(ch), nil
}

func (s *Store) ChannelCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.nextChannelID - 1, nil
}

func (s *Store) GrantAccess(_ context.Context, channelID int64, acct string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return courier.ErrChannelNotFound
	}
	if ch.HasAccess(acct) {
		return courier.ErrAlreadyMember
	}

	ch.Members = append(ch.Members, acct)
	ch.Touch()
	return nil
}

func (s *Store) ListChannels(_ context.Context, opts channel.ListOpts) ([]*channel.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*channel.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		result = append(result, copyChannel(ch))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// ==================== Message Store ====================

func (s *Store) AppendMessage(_ context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[msg.ChannelID]
	if !ok {
		return courier.ErrChannelNotFound
	}

	msg.ID = s.messageSeq[msg.ChannelID]
	s.messageSeq[msg.ChannelID]++

	// Clamp to keep timestamps non-decreasing within the channel.
	if last := s.lastStamp[msg.ChannelID]; msg.Timestamp.Before(last) {
		msg.Timestamp = last
	}
	s.lastStamp[msg.ChannelID] = msg.Timestamp

	s.messages[msg.ChannelID] = append(s.messages[msg.ChannelID], copyMessage(msg))
	ch.MessageCount++
	return nil
}

func (s *Store) GetMessage(_ context.Context, channelID, messageID int64) (*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, err := s.findMessage(channelID, messageID)
	if err != nil {
		return nil, err
	}
	return copyMessage(msg), nil
}

func (s *Store) ListMessages(_ context.Context, channelID int64) ([]*message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.channels[channelID]; !ok {
		return nil, courier.ErrChannelNotFound
	}

	msgs := s.messages[channelID]
	result := make([]*message.Message, len(msgs))
	for i, m := range msgs {
		result[i] = copyMessage(m)
	}
	return result, nil
}

func (s *Store) AddTip(_ context.Context, channelID, messageID int64, amount types.Money) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return types.Money{}, courier.ErrInvalidAmount
	}

	msg, err := s.findMessage(channelID, messageID)
	if err != nil {
		return types.Money{}, err
	}

	if msg.TipAmount.IsZero() && msg.TipAmount.Currency == "" {
		msg.TipAmount = types.Zero(amount.Currency)
	}
	msg.TipAmount = msg.TipAmount.Add(amount)
	return msg.TipAmount, nil
}

func (s *Store) SaveReceipt(_ context.Context, r *message.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.receipts[r.ChannelID] = append(s.receipts[r.ChannelID], &cp)
	return nil
}

func (s *Store) ListReceipts(_ context.Context, channelID int64) ([]*message.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs := s.receipts[channelID]
	result := make([]*message.Receipt, len(rs))
	for i, r := range rs {
		cp := *r
		result[i] = &cp
	}
	return result, nil
}

// findMessage locates a message; callers hold the lock. Message ids start
// at 1 and are dense, so the slice index is id-1.
func (s *Store) findMessage(channelID, messageID int64) (*message.Message, error) {
	if _, ok := s.channels[channelID]; !ok {
		return nil, courier.ErrChannelNotFound
	}
	msgs := s.messages[channelID]
	if messageID < 1 || messageID > int64(len(msgs)) {
		return nil, courier.ErrMessageNotFound
	}
	return msgs[messageID-1], nil
}

// ==================== Balance Store ====================

func (s *Store) CreditBalance(_ context.Context, acct string, amount types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return courier.ErrInvalidAmount
	}

	bal, ok := s.balances[acct]
	if !ok {
		bal = &account.Balance{
			Entity:  types.NewEntity(),
			Account: acct,
			Amount:  types.Zero(amount.Currency),
		}
		s.balances[acct] = bal
	}
	bal.Amount = bal.Amount.Add(amount)
	bal.Touch()
	return nil
}

func (s *Store) GetBalance(_ context.Context, acct string) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if bal, ok := s.balances[acct]; ok {
		return bal.Amount, nil
	}
	return types.Money{}, nil
}

func (s *Store) DebitBalance(_ context.Context, acct string) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal, ok := s.balances[acct]
	if !ok || bal.Amount.IsZero() {
		return types.Money{}, nil
	}

	debited := bal.Amount
	bal.Amount = types.Zero(debited.Currency)
	bal.Touch()
	return debited, nil
}

func (s *Store) ListBalances(_ context.Context) ([]*account.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Balance, 0, len(s.balances))
	for _, bal := range s.balances {
		cp := *bal
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Account < result[j].Account })
	return result, nil
}

// ==================== Payout Store ====================

func (s *Store) CreatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.payouts[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPayout(_ context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payouts[payoutID.String()]
	if !ok {
		return nil, courier.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) MarkPayoutPaid(_ context.Context, payoutID id.PayoutID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[payoutID.String()]
	if !ok {
		return courier.ErrPayoutNotFound
	}
	if p.Status != payout.StatusPending {
		return courier.ErrPayoutSettled
	}
	now := time.Now().UTC()
	p.Status = payout.StatusPaid
	p.PaidAt = &now
	p.Touch()
	return nil
}

func (s *Store) MarkPayoutFailed(_ context.Context, payoutID id.PayoutID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[payoutID.String()]
	if !ok {
		return courier.ErrPayoutNotFound
	}
	// Only a pending payout can fail; compensated and paid payouts are
	// settled and must never re-enter the failed state.
	if p.Status != payout.StatusPending {
		return courier.ErrPayoutSettled
	}
	now := time.Now().UTC()
	p.Status = payout.StatusFailed
	p.FailedAt = &now
	p.Attempts++
	p.Touch()
	return nil
}

func (s *Store) CompensatePayout(_ context.Context, payoutID id.PayoutID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[payoutID.String()]
	if !ok {
		return courier.ErrPayoutNotFound
	}
	// Only a failed payout owes a re-credit; anything else is a no-op so
	// retries never double-credit.
	if p.Status != payout.StatusFailed {
		return nil
	}

	bal, ok := s.balances[p.Account]
	if !ok {
		bal = &account.Balance{
			Entity:  types.NewEntity(),
			Account: p.Account,
			Amount:  types.Zero(p.Amount.Currency),
		}
		s.balances[p.Account] = bal
	}
	bal.Amount = bal.Amount.Add(p.Amount)
	bal.Touch()

	p.Status = payout.StatusCompensated
	p.Touch()
	return nil
}

func (s *Store) ListFailedPayouts(_ context.Context) ([]*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payout.Payout, 0)
	for _, p := range s.payouts {
		if p.Status == payout.StatusFailed {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

// ==================== Store management ====================

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// ==================== Helpers ====================

func copyChannel(ch *channel.Channel) *channel.Channel {
	cp := *ch
	cp.Members = append([]string(nil), ch.Members...)
	return &cp
}

func copyMessage(m *message.Message) *message.Message {
	cp := *m
	return &cp
}
