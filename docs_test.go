package courier_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package docs
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize the engine
		c := courier.New(store,
			courier.WithLogger(slog.Default()),
			courier.WithCurrency("usd"),
			courier.WithPayoutRetryInterval(30*time.Second),
		)

		// Start the engine
		ctx := context.Background()
		if err := c.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer c.Stop()

		// Create a paid private channel
		chID, err := c.CreateChannel(ctx, "alice", "alpha-leaks", true, types.USD(500)) // $5.00 to join
		if err != nil {
			t.Fatal(err)
		}

		// A member buys in at the exact access price
		if err := c.JoinChannel(ctx, "bob", chID, types.USD(500)); err != nil {
			t.Fatal(err)
		}

		// Post a message
		msgID, err := c.SendMessage(ctx, "bob", chID, "worth every cent")
		if err != nil {
			t.Fatal(err)
		}

		// Tip it
		total, err := c.TipMessage(ctx, "alice", chID, msgID, types.USD(200))
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("message tips so far: %s\n", total.String())

		// Withdraw accumulated earnings
		p, err := c.Withdraw(ctx, "bob")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("payout %s: %s (%s)\n", p.ID, p.Amount.String(), p.Status)
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Gwei(5)     // 5 gwei
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)      // $3.00
		_ = m2.Subtract(m1) // $1.00

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}
