package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ms-orders/internal/logger"
	"ms-orders/internal/order"
	"ms-orders/internal/order/db"
	"ms-orders/internal/payment"
	"ms-orders/internal/utils"
)

const maxWebhookBodyBytes = 64 * 1024

type StripeHandler struct {
	adapter *payment.StripeAdapter
	logger  *logger.Logger
}

func NewStripeHandler(adapter *payment.StripeAdapter, log *logger.Logger) *StripeHandler {
	return &StripeHandler{adapter: adapter, logger: log}
}

// HandleWebhook is the Stripe delivery endpoint. Status codes steer the
// provider's retry behavior: 2xx acknowledges, 4xx drops, 5xx redelivers.
func (h *StripeHandler) HandleWebhook(c *gin.Context) {
	payloadBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Error("WEBHOOK", fmt.Sprintf("failed to read webhook payload: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", "could not read request body"))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	err = h.adapter.HandleWebhook(c.Request.Context(), payloadBytes, signature)
	if err == nil {
		c.JSON(http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
		return
	}

	var whErr *payment.WebhookError
	switch {
	case errors.As(err, &whErr):
		c.JSON(whErr.StatusCode, utils.ErrorResponse("Webhook processing failed", whErr.PublicError))
	case errors.Is(err, db.ErrOrderNotFound):
		// Unknown order reference: dropping is wrong, the order row may
		// simply not be visible yet. Let the provider retry.
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Webhook processing failed", "order not found"))
	case errors.Is(err, order.ErrInvalidTransition):
		// Provider/data inconsistency; retrying will not fix it.
		c.JSON(http.StatusConflict, utils.ErrorResponse("Webhook rejected", "order state does not allow this transition"))
	case errors.Is(err, db.ErrTxRetriesExhausted):
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Webhook processing failed", "temporary storage contention, retry"))
	default:
		h.logger.Error("WEBHOOK", fmt.Sprintf("webhook processing failed: %v", err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Webhook processing failed", "internal error"))
	}
}
