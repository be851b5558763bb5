package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationPendingApproval RegistrationStatus = "PENDING_APPROVAL"
	RegistrationApproved        RegistrationStatus = "APPROVED"
	RegistrationCancelled       RegistrationStatus = "CANCELLED"
)

// Registration is a user's attendance record for an event. There is at most
// one row per (user_id, event_id); cancel/refund flips the status, the row is
// never deleted.
type Registration struct {
	bun.BaseModel `bun:"table:event_registrations"`

	ID      string             `bun:"id,pk" json:"id"`
	UserID  string             `bun:"user_id,notnull,unique:user_event" json:"user_id"`
	EventID string             `bun:"event_id,notnull,unique:user_event" json:"event_id"`
	Status  RegistrationStatus `bun:"status,notnull" json:"status"`

	// Provenance: the order or invite that produced this registration.
	OrderID  *string `bun:"order_id" json:"order_id,omitempty"`
	InviteID *string `bun:"invite_id" json:"invite_id,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}
