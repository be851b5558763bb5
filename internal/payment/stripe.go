// Package payment adapts provider notifications into the two normalized
// inputs the order state machine consumes: a confirmed payment or a refund
// for an order reference.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-orders/internal/logger"
	"ms-orders/internal/models"
)

// OrderLifecycle is the slice of the order state machine the adapter drives.
type OrderLifecycle interface {
	MarkOrderPaid(ctx context.Context, orderNo, transactionID string) (*models.Order, error)
	MarkOrderRefunded(ctx context.Context, orderNo, refundID string) (*models.Order, error)
}

// DedupCache is an optional fast path for duplicate deliveries.
type DedupCache interface {
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// WebhookError carries an HTTP status and a client-safe message alongside
// the detailed internal one.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

type StripeAdapter struct {
	Orders        OrderLifecycle
	Dedup         DedupCache
	webhookSecret string
	logger        *logger.Logger
}

func NewStripeAdapter(orders OrderLifecycle, dedup DedupCache, webhookSecret string, log *logger.Logger) *StripeAdapter {
	return &StripeAdapter{
		Orders:        orders,
		Dedup:         dedup,
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

// HandleWebhook verifies the payload signature, filters duplicates and
// dispatches the normalized event. Stripe delivers at least once; the state
// machine's own idempotency makes a duplicate that slips past the cache a
// successful no-op.
func (a *StripeAdapter) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if a.webhookSecret == "" {
		a.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEvent(payload, signature, a.webhookSecret)
	if err != nil {
		a.logger.Error("WEBHOOK", fmt.Sprintf("signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	if a.Dedup != nil {
		first, err := a.Dedup.FirstDelivery(ctx, event.ID)
		if err != nil {
			// Cache trouble never blocks a webhook; the state machine
			// absorbs duplicates anyway.
			a.logger.Warn("WEBHOOK", fmt.Sprintf("dedup cache unavailable: %v", err))
		} else if !first {
			a.logger.LogWebhook("stripe", string(event.Type), fmt.Sprintf("duplicate delivery of %s skipped", event.ID))
			return nil
		}
	}

	if err := a.Dispatch(ctx, event); err != nil {
		if a.Dedup != nil {
			_ = a.Dedup.Forget(ctx, event.ID)
		}
		return err
	}
	return nil
}

// Dispatch routes a verified event to the state machine.
func (a *StripeAdapter) Dispatch(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return a.malformed(event, err)
		}
		orderNo := session.Metadata["order_no"]
		if orderNo == "" {
			return a.malformed(event, fmt.Errorf("checkout session %s has no order_no metadata", session.ID))
		}
		transactionID := session.ID
		if session.PaymentIntent != nil {
			transactionID = session.PaymentIntent.ID
		}
		a.logger.LogWebhook("stripe", string(event.Type), fmt.Sprintf("payment confirmed for order %s", orderNo))
		_, err := a.Orders.MarkOrderPaid(ctx, orderNo, transactionID)
		return err

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return a.malformed(event, err)
		}
		orderNo := charge.Metadata["order_no"]
		if orderNo == "" {
			return a.malformed(event, fmt.Errorf("charge %s has no order_no metadata", charge.ID))
		}
		refundID := charge.ID
		if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
			refundID = charge.Refunds.Data[0].ID
		}
		a.logger.LogWebhook("stripe", string(event.Type), fmt.Sprintf("refund reported for order %s", orderNo))
		_, err := a.Orders.MarkOrderRefunded(ctx, orderNo, refundID)
		return err

	default:
		a.logger.Debug("WEBHOOK", fmt.Sprintf("ignoring event type %s", event.Type))
		return nil
	}
}

func (a *StripeAdapter) malformed(event stripe.Event, err error) error {
	a.logger.Error("WEBHOOK", fmt.Sprintf("malformed %s event %s: %v", event.Type, event.ID, err))
	return &WebhookError{
		Category:      "validation",
		StatusCode:    http.StatusBadRequest,
		PublicError:   "Malformed webhook payload",
		InternalError: fmt.Sprintf("malformed %s event: %v", event.Type, err),
		OriginalErr:   err,
	}
}
