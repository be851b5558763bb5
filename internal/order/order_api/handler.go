package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-orders/internal/auth"
	"ms-orders/internal/inventory"
	"ms-orders/internal/invite"
	"ms-orders/internal/logger"
	"ms-orders/internal/models"
	"ms-orders/internal/order"
	"ms-orders/internal/order/db"
)

type Handler struct {
	OrderService  *order.OrderService
	InviteService *invite.Service
	Logger        *logger.Logger
}

func NewHandler(orderService *order.OrderService, inviteService *invite.Service, log *logger.Logger) *Handler {
	return &Handler{
		OrderService:  orderService,
		InviteService: inviteService,
		Logger:        log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/v1/orders", h.PlaceOrder)
	r.Get("/api/v1/orders/{orderId}", h.GetOrder)
	r.Delete("/api/v1/orders/{orderId}", h.CancelOrder)
	r.Post("/api/v1/orders/{orderId}/invites", h.IssueInvites)
	r.Post("/api/v1/events/{eventId}/invites/redeem", h.RedeemInvite)
	r.Get("/api/v1/events/{eventId}/invites/{code}/qr", h.InviteQR)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	orderData, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderData)
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req models.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid order JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PlaceOrder: user=%s ticketType=%s qty=%d", userID, req.TicketTypeID, req.Quantity))

	orderData, err := h.OrderService.PlaceOrder(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, orderData)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("CancelOrder: orderId=%s", orderID))

	orderData, err := h.OrderService.CancelOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderData)
}

func (h *Handler) IssueInvites(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid invite JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("IssueInvites: orderId=%s count=%d", orderID, req.Count))

	invites, err := h.InviteService.Issue(r.Context(), orderID, req.Count)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, invites)
}

func (h *Handler) RedeemInvite(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid redeem JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "Invite code cannot be empty", http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("RedeemInvite: eventId=%s user=%s", eventID, userID))

	reg, err := h.InviteService.Redeem(r.Context(), eventID, req.Code, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, reg)
}

func (h *Handler) InviteQR(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	code := chi.URLParam(r, "code")

	png, err := h.InviteService.ClaimQR(r.Context(), eventID, code)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("InviteQR: failed to write response: %v", err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrOrderNotFound),
		errors.Is(err, db.ErrEventNotFound),
		errors.Is(err, db.ErrInviteNotFound),
		errors.Is(err, inventory.ErrTicketTypeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, invite.ErrAlreadyRedeemed),
		errors.Is(err, invite.ErrOrderNotPaid),
		errors.Is(err, invite.ErrTooManyInvites),
		errors.Is(err, inventory.ErrSoldOut):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrQuantityTooSmall):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrTxRetriesExhausted):
		http.Error(w, "temporary storage contention, retry", http.StatusServiceUnavailable)
	default:
		h.Logger.Error("API", fmt.Sprintf("unhandled error: %v", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
