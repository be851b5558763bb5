package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// Terminal reports whether no further transition may leave the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderCancelled || s == OrderRefunded
}

type Order struct {
	bun.BaseModel `bun:"table:event_orders"`

	ID           string      `bun:"id,pk" json:"id"`
	OrderNo      string      `bun:"order_no,notnull,unique" json:"order_no"`
	EventID      string      `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID string      `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	UserID       string      `bun:"user_id,notnull" json:"user_id"`
	Quantity     int         `bun:"quantity,notnull" json:"quantity"`
	Status       OrderStatus `bun:"status,notnull" json:"status"`

	// Set by the paid/refunded transitions, absent before them.
	TransactionID *string `bun:"transaction_id" json:"transaction_id,omitempty"`
	RefundID      *string `bun:"refund_id" json:"refund_id,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

type PlaceOrderRequest struct {
	EventID      string `json:"event_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}
