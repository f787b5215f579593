// Package account defines the withdrawable balance domain model.
package account

import (
	"github.com/xraph/courier/types"
)

// Balance is the withdrawable credit ledger entry for one account.
// Entries are created lazily on first credit; Amount never goes negative.
type Balance struct {
	types.Entity
	Account string      `json:"account"`
	Amount  types.Money `json:"amount"`
}
