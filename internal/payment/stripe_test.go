package payment

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v82"

	"ms-orders/internal/logger"
	"ms-orders/internal/models"
)

type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) MarkOrderPaid(ctx context.Context, orderNo, transactionID string) (*models.Order, error) {
	args := m.Called(ctx, orderNo, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockLifecycle) MarkOrderRefunded(ctx context.Context, orderNo, refundID string) (*models.Order, error) {
	args := m.Called(ctx, orderNo, refundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func newAdapter(orders OrderLifecycle) *StripeAdapter {
	return NewStripeAdapter(orders, nil, "whsec_test", logger.NewLogger())
}

func checkoutEvent(t *testing.T, session map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatal(err)
	}
	return stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func chargeEvent(t *testing.T, charge map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(charge)
	if err != nil {
		t.Fatal(err)
	}
	return stripe.Event{
		ID:   "evt_2",
		Type: "charge.refunded",
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestDispatchCheckoutCompleted(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	event := checkoutEvent(t, map[string]any{
		"id":             "cs_1",
		"payment_intent": map[string]any{"id": "pi_1"},
		"metadata":       map[string]string{"order_no": "ord-1"},
	})

	orders.On("MarkOrderPaid", mock.Anything, "ord-1", "pi_1").
		Return(&models.Order{Status: models.OrderPaid}, nil)

	err := adapter.Dispatch(context.Background(), event)

	assert.NoError(t, err)
	orders.AssertCalled(t, "MarkOrderPaid", mock.Anything, "ord-1", "pi_1")
}

func TestDispatchCheckoutCompletedWithoutPaymentIntent(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	event := checkoutEvent(t, map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"order_no": "ord-1"},
	})

	orders.On("MarkOrderPaid", mock.Anything, "ord-1", "cs_1").
		Return(&models.Order{Status: models.OrderPaid}, nil)

	assert.NoError(t, adapter.Dispatch(context.Background(), event))
	orders.AssertCalled(t, "MarkOrderPaid", mock.Anything, "ord-1", "cs_1")
}

func TestDispatchCheckoutCompletedMissingOrderNo(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	event := checkoutEvent(t, map[string]any{"id": "cs_1"})

	err := adapter.Dispatch(context.Background(), event)

	var webhookErr *WebhookError
	assert.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, "validation", webhookErr.Category)
	orders.AssertNotCalled(t, "MarkOrderPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchChargeRefunded(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	event := chargeEvent(t, map[string]any{
		"id":       "ch_1",
		"metadata": map[string]string{"order_no": "ord-2"},
		"refunds": map[string]any{
			"data": []map[string]any{{"id": "re_1"}},
		},
	})

	orders.On("MarkOrderRefunded", mock.Anything, "ord-2", "re_1").
		Return(&models.Order{Status: models.OrderRefunded}, nil)

	assert.NoError(t, adapter.Dispatch(context.Background(), event))
	orders.AssertCalled(t, "MarkOrderRefunded", mock.Anything, "ord-2", "re_1")
}

func TestDispatchChargeRefundedWithoutRefundList(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	event := chargeEvent(t, map[string]any{
		"id":       "ch_1",
		"metadata": map[string]string{"order_no": "ord-2"},
	})

	orders.On("MarkOrderRefunded", mock.Anything, "ord-2", "ch_1").
		Return(&models.Order{Status: models.OrderRefunded}, nil)

	assert.NoError(t, adapter.Dispatch(context.Background(), event))
	orders.AssertCalled(t, "MarkOrderRefunded", mock.Anything, "ord-2", "ch_1")
}

func TestDispatchIgnoresUnknownEventTypes(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	event := stripe.Event{
		ID:   "evt_3",
		Type: "customer.created",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}

	assert.NoError(t, adapter.Dispatch(context.Background(), event))
	orders.AssertNotCalled(t, "MarkOrderPaid", mock.Anything, mock.Anything, mock.Anything)
	orders.AssertNotCalled(t, "MarkOrderRefunded", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhookWithoutSecret(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := NewStripeAdapter(orders, nil, "", logger.NewLogger())

	err := adapter.HandleWebhook(context.Background(), []byte(`{}`), "sig")

	var webhookErr *WebhookError
	assert.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, "configuration", webhookErr.Category)
}

func TestHandleWebhookBadSignature(t *testing.T) {
	orders := new(MockLifecycle)
	adapter := newAdapter(orders)

	err := adapter.HandleWebhook(context.Background(), []byte(`{}`), "t=1,v1=bogus")

	var webhookErr *WebhookError
	assert.ErrorAs(t, err, &webhookErr)
	assert.Equal(t, "validation", webhookErr.Category)
}
