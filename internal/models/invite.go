package models

import (
	"time"

	"github.com/uptrace/bun"
)

type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteRedeemed InviteStatus = "REDEEMED"
	InviteExpired  InviteStatus = "EXPIRED"
)

// OrderInvite is a single-use code letting a named person claim one seat of
// a multi-seat paid order. A code is consumed exactly once.
type OrderInvite struct {
	bun.BaseModel `bun:"table:event_order_invites"`

	ID      string       `bun:"id,pk" json:"id"`
	OrderID string       `bun:"order_id,notnull,unique:order_code" json:"order_id"`
	EventID string       `bun:"event_id,notnull" json:"event_id"`
	Code    string       `bun:"code,notnull,unique:order_code" json:"code"`
	Status  InviteStatus `bun:"status,notnull" json:"status"`

	RedeemedBy *string    `bun:"redeemed_by" json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time `bun:"redeemed_at" json:"redeemed_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
