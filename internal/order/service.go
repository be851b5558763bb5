package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-orders/internal/logger"
	"ms-orders/internal/models"
	"ms-orders/internal/utils"
)

// ErrInvalidTransition is returned when a requested transition contradicts
// the order's current state in a way that signals upstream inconsistency,
// e.g. a refund notification for an order that was never paid. The
// "already in target state" case is not an error; it is an idempotent no-op.
var ErrInvalidTransition = errors.New("invalid order state transition")

// ErrQuantityTooSmall is returned when an order is placed with fewer than
// one seat.
var ErrQuantityTooSmall = errors.New("order quantity must be at least 1")

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error
	OrderByID(ctx context.Context, idb bun.IDB, id string, lock bool) (*models.Order, error)
	OrderByNo(ctx context.Context, idb bun.IDB, orderNo string, lock bool) (*models.Order, error)
	EventByID(ctx context.Context, idb bun.IDB, id string) (*models.Event, error)
	InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error
	UpdateOrder(ctx context.Context, idb bun.IDB, order *models.Order, columns ...string) error
	VoidPendingInvites(ctx context.Context, idb bun.IDB, orderID string) (int64, error)
}

type InventoryLedger interface {
	Reserve(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int) error
	Release(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int) error
}

type RegistrationSync interface {
	ActivateForOrder(ctx context.Context, idb bun.IDB, order *models.Order, approvalRequired bool) (*models.Registration, error)
	CancelForOrder(ctx context.Context, idb bun.IDB, order *models.Order) error
}

type Publisher interface {
	PublishOrderCreated(order models.Order) error
	PublishOrderPaid(order models.Order) error
	PublishOrderCancelled(order models.Order) error
	PublishOrderRefunded(order models.Order) error
}

// OrderService owns EventOrder.status. Every mutating operation re-reads the
// order's current status under a row lock as its first transactional action
// and short-circuits when the requested transition no longer applies, which
// makes concurrent duplicate webhook deliveries safe.
type OrderService struct {
	DB            Store
	Inventory     InventoryLedger
	Registrations RegistrationSync
	Kafka         Publisher
	logger        *logger.Logger
}

func NewOrderService(db Store, inventory InventoryLedger, registrations RegistrationSync, kafka Publisher, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:            db,
		Inventory:     inventory,
		Registrations: registrations,
		Kafka:         kafka,
		logger:        log,
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.OrderByID(ctx, nil, id, false)
}

// PlaceOrder creates a PENDING order and reserves its inventory in the same
// transaction, so the reserved count never drifts from the sum of
// non-terminal order quantities.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req models.PlaceOrderRequest) (*models.Order, error) {
	if req.Quantity < 1 {
		return nil, ErrQuantityTooSmall
	}

	order := &models.Order{
		ID:           uuid.NewString(),
		OrderNo:      utils.GenerateOrderNo(),
		EventID:      req.EventID,
		TicketTypeID: req.TicketTypeID,
		UserID:       userID,
		Quantity:     req.Quantity,
		Status:       models.OrderPending,
		CreatedAt:    time.Now(),
	}

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		if _, err := s.DB.EventByID(ctx, tx, req.EventID); err != nil {
			return err
		}
		if err := s.Inventory.Reserve(ctx, tx, req.TicketTypeID, req.Quantity); err != nil {
			return err
		}
		return s.DB.InsertOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("PLACE", order.ID, fmt.Sprintf("reserved %d seat(s) of %s", order.Quantity, order.TicketTypeID))
	if s.Kafka != nil {
		if err := s.Kafka.PublishOrderCreated(*order); err != nil {
			s.logger.Warn("KAFKA", fmt.Sprintf("publish order created failed: %v", err))
		}
	}
	return order, nil
}

// CancelOrder moves a non-terminal order to CANCELLED, releases its
// inventory, cancels the linked registration and voids still-PENDING
// invites, all in one transaction. Cancelling an already-terminal order is
// an idempotent no-op returning the order unchanged.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var (
		out        *models.Order
		transition bool
	)

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		transition = false

		order, err := s.DB.OrderByID(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			out = order
			return nil
		}

		order.Status = models.OrderCancelled
		order.UpdatedAt = time.Now()
		if err := s.DB.UpdateOrder(ctx, tx, order, "status", "updated_at"); err != nil {
			return err
		}
		if err := s.Inventory.Release(ctx, tx, order.TicketTypeID, order.Quantity); err != nil {
			return err
		}
		if err := s.Registrations.CancelForOrder(ctx, tx, order); err != nil {
			return err
		}
		if _, err := s.DB.VoidPendingInvites(ctx, tx, order.ID); err != nil {
			return err
		}

		out = order
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		s.logger.LogOrder("CANCEL", out.ID, fmt.Sprintf("released %d seat(s) of %s", out.Quantity, out.TicketTypeID))
		if s.Kafka != nil {
			if err := s.Kafka.PublishOrderCancelled(*out); err != nil {
				s.logger.Warn("KAFKA", fmt.Sprintf("publish order cancelled failed: %v", err))
			}
		}
	} else {
		s.logger.LogOrder("CANCEL", out.ID, fmt.Sprintf("already %s, nothing to do", out.Status))
	}
	return out, nil
}

// MarkOrderPaid moves a PENDING order to PAID, stores the provider's
// transaction id and activates the buyer's registration. A non-PENDING order
// is returned unchanged: payment webhooks are delivered at least once.
func (s *OrderService) MarkOrderPaid(ctx context.Context, orderNo, transactionID string) (*models.Order, error) {
	var (
		out        *models.Order
		transition bool
	)

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		transition = false

		order, err := s.DB.OrderByNo(ctx, tx, orderNo, true)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPending {
			out = order
			return nil
		}

		event, err := s.DB.EventByID(ctx, tx, order.EventID)
		if err != nil {
			return err
		}

		order.Status = models.OrderPaid
		order.TransactionID = &transactionID
		order.UpdatedAt = time.Now()
		if err := s.DB.UpdateOrder(ctx, tx, order, "status", "transaction_id", "updated_at"); err != nil {
			return err
		}
		if _, err := s.Registrations.ActivateForOrder(ctx, tx, order, event.RequireApproval); err != nil {
			return err
		}

		out = order
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		s.logger.LogOrder("PAID", out.ID, fmt.Sprintf("transaction %s", transactionID))
		if s.Kafka != nil {
			if err := s.Kafka.PublishOrderPaid(*out); err != nil {
				s.logger.Warn("KAFKA", fmt.Sprintf("publish order paid failed: %v", err))
			}
		}
	} else {
		s.logger.LogOrder("PAID", out.ID, fmt.Sprintf("duplicate delivery, order already %s", out.Status))
	}
	return out, nil
}

// MarkOrderRefunded moves a PAID order to REFUNDED, stores the refund id,
// releases the seats back to inventory and cancels the registration. A
// refund for an order that was never paid signals a provider inconsistency
// and is rejected with ErrInvalidTransition; a refund for an already
// REFUNDED order is the idempotent duplicate-delivery case.
func (s *OrderService) MarkOrderRefunded(ctx context.Context, orderNo, refundID string) (*models.Order, error) {
	var (
		out        *models.Order
		transition bool
	)

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		transition = false

		order, err := s.DB.OrderByNo(ctx, tx, orderNo, true)
		if err != nil {
			return err
		}
		if order.Status == models.OrderRefunded {
			out = order
			return nil
		}
		if order.Status != models.OrderPaid {
			return fmt.Errorf("%w: cannot refund order %s in status %s", ErrInvalidTransition, order.ID, order.Status)
		}

		order.Status = models.OrderRefunded
		order.RefundID = &refundID
		order.UpdatedAt = time.Now()
		if err := s.DB.UpdateOrder(ctx, tx, order, "status", "refund_id", "updated_at"); err != nil {
			return err
		}
		if err := s.Inventory.Release(ctx, tx, order.TicketTypeID, order.Quantity); err != nil {
			return err
		}
		if err := s.Registrations.CancelForOrder(ctx, tx, order); err != nil {
			return err
		}

		out = order
		transition = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition {
		s.logger.LogOrder("REFUND", out.ID, fmt.Sprintf("refund %s, released %d seat(s)", refundID, out.Quantity))
		if s.Kafka != nil {
			if err := s.Kafka.PublishOrderRefunded(*out); err != nil {
				s.logger.Warn("KAFKA", fmt.Sprintf("publish order refunded failed: %v", err))
			}
		}
	} else {
		s.logger.LogOrder("REFUND", out.ID, "duplicate delivery, order already REFUNDED")
	}
	return out, nil
}
