// Package payout defines withdrawal payout instructions and their state
// machine. A payout is recorded durably before the external transfer is
// attempted so that a failed transfer can be compensated without losing
// the debited amount.
package payout

import (
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/types"
)

// Status is the lifecycle state of a payout instruction.
type Status string

const (
	// StatusPending: debit committed, external transfer not yet confirmed.
	StatusPending Status = "pending"
	// StatusPaid: external transfer succeeded.
	StatusPaid Status = "paid"
	// StatusFailed: external transfer failed; a compensating re-credit is owed.
	StatusFailed Status = "failed"
	// StatusCompensated: the compensating re-credit was durably applied.
	StatusCompensated Status = "compensated"
)

// Payout is an instruction for the external transfer mechanism to pay
// Amount to Account. Amount is the full balance debited at creation time.
type Payout struct {
	types.Entity
	ID       id.PayoutID `json:"id"`
	Account  string      `json:"account"`
	Amount   types.Money `json:"amount"`
	Status   Status      `json:"status"`
	Attempts int         `json:"attempts"`
	PaidAt   *time.Time  `json:"paid_at,omitempty"`
	FailedAt *time.Time  `json:"failed_at,omitempty"`
}

// NeedsCompensation reports whether the payout still owes a re-credit.
func (p *Payout) NeedsCompensation() bool {
	return p.Status == StatusFailed
}
