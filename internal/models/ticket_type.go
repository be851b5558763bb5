package models

import (
	"github.com/uptrace/bun"
)

// TicketType is a priced inventory pool with finite capacity.
// CurrentQuantity is only ever moved by the inventory ledger, inside the
// same transaction as the order change that justifies it.
type TicketType struct {
	bun.BaseModel `bun:"table:event_ticket_types"`

	ID              string  `bun:"id,pk" json:"id"`
	EventID         string  `bun:"event_id,notnull" json:"event_id"`
	Name            string  `bun:"name,notnull" json:"name"`
	Price           float64 `bun:"price,notnull" json:"price"`
	Capacity        int     `bun:"capacity,notnull" json:"capacity"`
	CurrentQuantity int     `bun:"current_quantity,notnull,default:0" json:"current_quantity"`
}
