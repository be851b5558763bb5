package models

import "time"

// PaymentEvent is the normalized paid/refunded notification exchanged with
// the payment gateway over Kafka. Delivery is at-least-once; the order state
// machine's transactional status check absorbs duplicates.
type PaymentEvent struct {
	OrderNo       string    `json:"order_no"`
	TransactionID string    `json:"transaction_id,omitempty"`
	RefundID      string    `json:"refund_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
