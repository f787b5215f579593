// Package channel defines the channel domain model: named message streams
// with free or pay-to-join access.
package channel

import (
	"github.com/xraph/courier/types"
)

// Channel is a named, access-controlled message stream. Name, creator,
// visibility and access price are fixed at creation; only the membership
// set grows afterwards.
type Channel struct {
	types.Entity
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Creator     string      `json:"creator"`
	IsPrivate   bool        `json:"is_private"`
	AccessPrice types.Money `json:"access_price"`
	Members     []string    `json:"members"`

	// MessageCount is a read projection maintained by the store.
	MessageCount int64 `json:"message_count"`
}

// HasMember reports whether account holds an explicit membership grant.
// The creator always counts as a member.
func (c *Channel) HasMember(account string) bool {
	if account == c.Creator {
		return true
	}
	for _, m := range c.Members {
		if m == account {
			return true
		}
	}
	return false
}

// HasAccess reports whether account may read and post in the channel.
// Public channels grant implicit access to everyone without a membership
// record; private channels require the creator or an explicit grant.
func (c *Channel) HasAccess(account string) bool {
	if !c.IsPrivate {
		return true
	}
	return c.HasMember(account)
}

// IsFree reports whether joining the channel requires no payment.
func (c *Channel) IsFree() bool {
	return !c.IsPrivate || !c.AccessPrice.IsPositive()
}

// ListOpts controls channel listing.
type ListOpts struct {
	Limit  int
	Offset int
}
