package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/channel"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/message"
	"github.com/xraph/courier/payout"
	"github.com/xraph/courier/types"
)

func newChannel(name, creator string, private bool, price types.Money) *channel.Channel {
	return &channel.Channel{
		Entity:      types.NewEntity(),
		Name:        name,
		Creator:     creator,
		IsPrivate:   private,
		AccessPrice: price,
		Members:     []string{},
	}
}

func TestChannelIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	for want := int64(1); want <= 3; want++ {
		ch := newChannel("room", "alice", false, types.Money{})
		if err := s.CreateChannel(ctx, ch); err != nil {
			t.Fatalf("CreateChannel() error = %v", err)
		}
		if ch.ID != want {
			t.Errorf("assigned id = %d, want %d", ch.ID, want)
		}
	}

	count, err := s.ChannelCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("ChannelCount() = %d, want 3", count)
	}

	if _, err := s.GetChannel(ctx, 99); !errors.Is(err, courier.ErrChannelNotFound) {
		t.Errorf("GetChannel(99) error = %v, want ErrChannelNotFound", err)
	}
}

func TestGrantAccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	priv := newChannel("vip", "alice", true, types.USD(500))
	if err := s.CreateChannel(ctx, priv); err != nil {
		t.Fatal(err)
	}
	pub := newChannel("general", "alice", false, types.Money{})
	if err := s.CreateChannel(ctx, pub); err != nil {
		t.Fatal(err)
	}

	if err := s.GrantAccess(ctx, priv.ID, "bob"); err != nil {
		t.Fatalf("GrantAccess() error = %v", err)
	}

	ch, _ := s.GetChannel(ctx, priv.ID)
	if !ch.HasMember("bob") {
		t.Error("bob not in members after grant")
	}

	tests := []struct {
		name      string
		channelID int64
		acct      string
		wantErr   error
	}{
		{"repeat grant", priv.ID, "bob", courier.ErrAlreadyMember},
		{"creator grant", priv.ID, "alice", courier.ErrAlreadyMember},
		{"public channel", pub.ID, "carol", courier.ErrAlreadyMember},
		{"missing channel", 99, "bob", courier.ErrChannelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.GrantAccess(ctx, tt.channelID, tt.acct); !errors.Is(err, tt.wantErr) {
				t.Errorf("GrantAccess() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestListChannels(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 4; i++ {
		if err := s.CreateChannel(ctx, newChannel("room", "alice", false, types.Money{})); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		opts    channel.ListOpts
		wantIDs []int64
	}{
		{"all", channel.ListOpts{}, []int64{1, 2, 3, 4}},
		{"limit", channel.ListOpts{Limit: 2}, []int64{1, 2}},
		{"offset", channel.ListOpts{Limit: 2, Offset: 2}, []int64{3, 4}},
		{"offset past end", channel.ListOpts{Limit: 2, Offset: 9}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chs, err := s.ListChannels(ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(chs) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(chs), len(tt.wantIDs))
			}
			for i, ch := range chs {
				if ch.ID != tt.wantIDs[i] {
					t.Errorf("[%d].ID = %d, want %d", i, ch.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestAppendMessage(t *testing.T) {
	ctx := context.Background()
	s := New()

	ch := newChannel("general", "alice", false, types.Money{})
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("SequentialIDs", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			msg := &message.Message{ChannelID: ch.ID, Sender: "alice", Content: "hi", Timestamp: base}
			if err := s.AppendMessage(ctx, msg); err != nil {
				t.Fatalf("AppendMessage() error = %v", err)
			}
			if msg.ID != want {
				t.Errorf("assigned id = %d, want %d", msg.ID, want)
			}
		}

		got, _ := s.GetChannel(ctx, ch.ID)
		if got.MessageCount != 3 {
			t.Errorf("MessageCount = %d, want 3", got.MessageCount)
		}
	})

	t.Run("TimestampClamp", func(t *testing.T) {
		early := &message.Message{ChannelID: ch.ID, Sender: "alice", Content: "late clock", Timestamp: base.Add(-time.Hour)}
		if err := s.AppendMessage(ctx, early); err != nil {
			t.Fatal(err)
		}
		if early.Timestamp.Before(base) {
			t.Errorf("timestamp = %v, want clamped to %v", early.Timestamp, base)
		}

		later := &message.Message{ChannelID: ch.ID, Sender: "alice", Content: "ok", Timestamp: base.Add(time.Hour)}
		if err := s.AppendMessage(ctx, later); err != nil {
			t.Fatal(err)
		}
		if !later.Timestamp.Equal(base.Add(time.Hour)) {
			t.Errorf("timestamp = %v, want untouched %v", later.Timestamp, base.Add(time.Hour))
		}
	})

	t.Run("MissingChannel", func(t *testing.T) {
		msg := &message.Message{ChannelID: 99, Sender: "alice", Content: "hi", Timestamp: base}
		if err := s.AppendMessage(ctx, msg); !errors.Is(err, courier.ErrChannelNotFound) {
			t.Errorf("AppendMessage() error = %v, want ErrChannelNotFound", err)
		}
	})
}

func TestAddTip(t *testing.T) {
	ctx := context.Background()
	s := New()

	ch := newChannel("general", "alice", false, types.Money{})
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}
	msg := &message.Message{ChannelID: ch.ID, Sender: "alice", Content: "hi", Timestamp: time.Now()}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	total, err := s.AddTip(ctx, ch.ID, msg.ID, types.USD(100))
	if err != nil {
		t.Fatalf("AddTip() error = %v", err)
	}
	if !total.Equal(types.USD(100)) {
		t.Errorf("total = %v, want $1.00", total)
	}

	total, err = s.AddTip(ctx, ch.ID, msg.ID, types.USD(50))
	if err != nil {
		t.Fatal(err)
	}
	if !total.Equal(types.USD(150)) {
		t.Errorf("total = %v, want $1.50", total)
	}

	got, _ := s.GetMessage(ctx, ch.ID, msg.ID)
	if !got.TipAmount.Equal(types.USD(150)) {
		t.Errorf("stored TipAmount = %v, want $1.50", got.TipAmount)
	}

	if _, err := s.AddTip(ctx, ch.ID, msg.ID, types.Zero("usd")); !errors.Is(err, courier.ErrInvalidAmount) {
		t.Errorf("zero tip error = %v, want ErrInvalidAmount", err)
	}
	if _, err := s.AddTip(ctx, ch.ID, 99, types.USD(100)); !errors.Is(err, courier.ErrMessageNotFound) {
		t.Errorf("missing message error = %v, want ErrMessageNotFound", err)
	}
	if _, err := s.AddTip(ctx, 99, 1, types.USD(100)); !errors.Is(err, courier.ErrChannelNotFound) {
		t.Errorf("missing channel error = %v, want ErrChannelNotFound", err)
	}
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := New()

	t.Run("ZeroForUnknown", func(t *testing.T) {
		bal, err := s.GetBalance(ctx, "nobody")
		if err != nil {
			t.Fatal(err)
		}
		if !bal.IsZero() {
			t.Errorf("balance = %v, want zero", bal)
		}
	})

	t.Run("CreditAccumulates", func(t *testing.T) {
		if err := s.CreditBalance(ctx, "alice", types.USD(100)); err != nil {
			t.Fatal(err)
		}
		if err := s.CreditBalance(ctx, "alice", types.USD(250)); err != nil {
			t.Fatal(err)
		}

		bal, _ := s.GetBalance(ctx, "alice")
		if !bal.Equal(types.USD(350)) {
			t.Errorf("balance = %v, want $3.50", bal)
		}
	})

	t.Run("RejectsNonPositive", func(t *testing.T) {
		if err := s.CreditBalance(ctx, "alice", types.Zero("usd")); !errors.Is(err, courier.ErrInvalidAmount) {
			t.Errorf("zero credit error = %v, want ErrInvalidAmount", err)
		}
		if err := s.CreditBalance(ctx, "alice", types.USD(-50)); !errors.Is(err, courier.ErrInvalidAmount) {
			t.Errorf("negative credit error = %v, want ErrInvalidAmount", err)
		}
	})

	t.Run("DebitZeroesAndReturns", func(t *testing.T) {
		got, err := s.DebitBalance(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(types.USD(350)) {
			t.Errorf("debited = %v, want $3.50", got)
		}

		bal, _ := s.GetBalance(ctx, "alice")
		if !bal.IsZero() {
			t.Errorf("balance = %v after debit, want zero", bal)
		}

		// Debiting an empty balance is a no-op.
		got, err = s.DebitBalance(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsZero() {
			t.Errorf("second debit = %v, want zero", got)
		}
	})

	t.Run("ListBalances", func(t *testing.T) {
		if err := s.CreditBalance(ctx, "bob", types.USD(10)); err != nil {
			t.Fatal(err)
		}
		bals, err := s.ListBalances(ctx)
		if err != nil {
			t.Fatal(err)
		}
		// alice (zeroed) sorts before bob.
		if len(bals) != 2 || bals[0].Account != "alice" || bals[1].Account != "bob" {
			t.Errorf("balances = %v, want [alice bob]", bals)
		}
	})
}

func TestPayoutLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	mk := func(t *testing.T, acct string, amount types.Money) *payout.Payout {
		t.Helper()
		p := &payout.Payout{
			Entity:  types.NewEntity(),
			ID:      id.NewPayoutID(),
			Account: acct,
			Amount:  amount,
			Status:  payout.StatusPending,
		}
		if err := s.CreatePayout(ctx, p); err != nil {
			t.Fatal(err)
		}
		return p
	}

	t.Run("MarkPaid", func(t *testing.T) {
		p := mk(t, "alice", types.USD(300))
		if err := s.MarkPayoutPaid(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetPayout(ctx, p.ID)
		if got.Status != payout.StatusPaid || got.PaidAt == nil {
			t.Errorf("payout = %+v, want paid with PaidAt set", got)
		}
	})

	t.Run("OnlyPendingTransitions", func(t *testing.T) {
		p := mk(t, "dave", types.USD(100))
		if err := s.MarkPayoutPaid(ctx, p.ID); err != nil {
			t.Fatal(err)
		}

		// A settled payout never changes status again.
		if err := s.MarkPayoutFailed(ctx, p.ID); !errors.Is(err, courier.ErrPayoutSettled) {
			t.Errorf("MarkPayoutFailed() on paid error = %v, want ErrPayoutSettled", err)
		}
		if err := s.MarkPayoutPaid(ctx, p.ID); !errors.Is(err, courier.ErrPayoutSettled) {
			t.Errorf("repeat MarkPayoutPaid() error = %v, want ErrPayoutSettled", err)
		}

		got, _ := s.GetPayout(ctx, p.ID)
		if got.Status != payout.StatusPaid {
			t.Errorf("status = %v, want paid", got.Status)
		}
	})

	t.Run("CompensateOnlyFailed", func(t *testing.T) {
		p := mk(t, "bob", types.USD(300))

		// Pending payouts owe nothing.
		if err := s.CompensatePayout(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		if bal, _ := s.GetBalance(ctx, "bob"); !bal.IsZero() {
			t.Fatalf("balance = %v after pending compensation, want zero", bal)
		}

		if err := s.MarkPayoutFailed(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetPayout(ctx, p.ID)
		if got.Status != payout.StatusFailed || got.FailedAt == nil || got.Attempts != 1 {
			t.Fatalf("payout = %+v, want failed with 1 attempt", got)
		}

		if err := s.CompensatePayout(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		if bal, _ := s.GetBalance(ctx, "bob"); !bal.Equal(types.USD(300)) {
			t.Errorf("balance = %v after compensation, want $3.00", bal)
		}

		// Retrying never double-credits.
		if err := s.CompensatePayout(ctx, p.ID); err != nil {
			t.Fatal(err)
		}
		if bal, _ := s.GetBalance(ctx, "bob"); !bal.Equal(types.USD(300)) {
			t.Errorf("balance = %v after repeat compensation, want $3.00", bal)
		}

		got, _ = s.GetPayout(ctx, p.ID)
		if got.Status != payout.StatusCompensated {
			t.Errorf("status = %v, want compensated", got.Status)
		}

		// A compensated payout cannot be failed back into the retry set.
		if err := s.MarkPayoutFailed(ctx, p.ID); !errors.Is(err, courier.ErrPayoutSettled) {
			t.Errorf("MarkPayoutFailed() on compensated error = %v, want ErrPayoutSettled", err)
		}
	})

	t.Run("ListFailedPayouts", func(t *testing.T) {
		p := mk(t, "carol", types.USD(100))
		if err := s.MarkPayoutFailed(ctx, p.ID); err != nil {
			t.Fatal(err)
		}

		failed, err := s.ListFailedPayouts(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(failed) != 1 || failed[0].ID != p.ID {
			t.Errorf("failed payouts = %v, want just %s", failed, p.ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		missing := id.NewPayoutID()
		if _, err := s.GetPayout(ctx, missing); !errors.Is(err, courier.ErrPayoutNotFound) {
			t.Errorf("GetPayout() error = %v, want ErrPayoutNotFound", err)
		}
		if err := s.MarkPayoutPaid(ctx, missing); !errors.Is(err, courier.ErrPayoutNotFound) {
			t.Errorf("MarkPayoutPaid() error = %v, want ErrPayoutNotFound", err)
		}
	})
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	ch := newChannel("general", "alice", true, types.USD(500))
	if err := s.CreateChannel(ctx, ch); err != nil {
		t.Fatal(err)
	}

	// Mutating a returned channel must not leak into the store.
	got, _ := s.GetChannel(ctx, ch.ID)
	got.Members = append(got.Members, "intruder")
	got.Name = "hijacked"

	fresh, _ := s.GetChannel(ctx, ch.ID)
	if fresh.HasMember("intruder") || fresh.Name != "general" {
		t.Errorf("store state leaked: %+v", fresh)
	}

	// Same for messages.
	msg := &message.Message{ChannelID: ch.ID, Sender: "alice", Content: "original", Timestamp: time.Now()}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	m, _ := s.GetMessage(ctx, ch.ID, msg.ID)
	m.Content = "tampered"

	freshMsg, _ := s.GetMessage(ctx, ch.ID, msg.ID)
	if freshMsg.Content != "original" {
		t.Errorf("message content = %q, want original", freshMsg.Content)
	}
}
