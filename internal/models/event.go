package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID   string `bun:"id,pk" json:"id"`
	Name string `bun:"name,notnull" json:"name"`

	// RequireApproval decides whether a paid order or a redeemed invite
	// produces an APPROVED or a PENDING_APPROVAL registration.
	RequireApproval bool `bun:"require_approval,notnull,default:false" json:"require_approval"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
