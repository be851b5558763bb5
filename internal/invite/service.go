package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-orders/internal/logger"
	"ms-orders/internal/models"
	"ms-orders/internal/order/db"
	"ms-orders/internal/utils"
)

var (
	// ErrAlreadyRedeemed is returned when the invite is no longer PENDING.
	// The loser of a redemption race sees this.
	ErrAlreadyRedeemed = errors.New("invite already redeemed or expired")

	// ErrOrderNotPaid is returned when the owning order is not PAID for the
	// invite's event. Covers cancelled and refunded orders too: their seats
	// are no longer claimable.
	ErrOrderNotPaid = errors.New("invite order is not paid")

	// ErrTooManyInvites is returned when issuing would exceed the order's
	// claimable seats.
	ErrTooManyInvites = errors.New("not enough seats left on the order for new invites")
)

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error
	InviteByCode(ctx context.Context, idb bun.IDB, eventID, code string, lock bool) (*models.OrderInvite, error)
	InvitesByOrder(ctx context.Context, idb bun.IDB, orderID string) ([]models.OrderInvite, error)
	InsertInvites(ctx context.Context, idb bun.IDB, invites []*models.OrderInvite) error
	UpdateInvite(ctx context.Context, idb bun.IDB, invite *models.OrderInvite, columns ...string) error
	OrderByID(ctx context.Context, idb bun.IDB, id string, lock bool) (*models.Order, error)
	EventByID(ctx context.Context, idb bun.IDB, id string) (*models.Event, error)
	RegistrationByUserEvent(ctx context.Context, idb bun.IDB, userID, eventID string) (*models.Registration, error)
}

type RegistrationSync interface {
	ActivateForInvite(ctx context.Context, idb bun.IDB, invite *models.OrderInvite, userID string, approvalRequired bool) (*models.Registration, error)
}

type Publisher interface {
	PublishInviteRedeemed(invite models.OrderInvite) error
}

// Service manages per-seat invite codes attached to a multi-seat paid order.
type Service struct {
	DB            Store
	Registrations RegistrationSync
	Kafka         Publisher
	ClaimBaseURL  string
	logger        *logger.Logger
}

func NewService(db Store, registrations RegistrationSync, kafka Publisher, claimBaseURL string, log *logger.Logger) *Service {
	return &Service{
		DB:            db,
		Registrations: registrations,
		Kafka:         kafka,
		ClaimBaseURL:  claimBaseURL,
		logger:        log,
	}
}

// Redeem lets a named invitee claim one seat of a paid order. The whole flow
// runs in one transaction with the invite row locked: an invite is never
// marked REDEEMED without its registration existing, and a race between two
// redeemers yields exactly one winner.
func (s *Service) Redeem(ctx context.Context, eventID, code, userID string) (*models.Registration, error) {
	var (
		out      *models.Registration
		redeemed *models.OrderInvite
	)

	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		redeemed = nil

		inv, err := s.DB.InviteByCode(ctx, tx, eventID, code, true)
		if err != nil {
			return err
		}
		if inv.Status != models.InvitePending {
			return fmt.Errorf("%w: invite %s is %s", ErrAlreadyRedeemed, inv.ID, inv.Status)
		}

		// Lock the order too, so a concurrent refund cannot commit between
		// the PAID check and the redeem commit.
		order, err := s.DB.OrderByID(ctx, tx, inv.OrderID, true)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPaid || order.EventID != eventID {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotPaid, order.ID, order.Status)
		}

		// Idempotent claim: a user who already holds an active registration
		// for the event gets it back unchanged, and the invite stays PENDING.
		existing, err := s.DB.RegistrationByUserEvent(ctx, tx, userID, eventID)
		if err == nil && existing.Status != models.RegistrationCancelled {
			out = existing
			return nil
		}
		if err != nil && !errors.Is(err, db.ErrRegistrationNotFound) {
			return err
		}

		event, err := s.DB.EventByID(ctx, tx, order.EventID)
		if err != nil {
			return err
		}

		reg, err := s.Registrations.ActivateForInvite(ctx, tx, inv, userID, event.RequireApproval)
		if err != nil {
			return err
		}

		now := time.Now()
		inv.Status = models.InviteRedeemed
		inv.RedeemedBy = &userID
		inv.RedeemedAt = &now
		if err := s.DB.UpdateInvite(ctx, tx, inv, "status", "redeemed_by", "redeemed_at"); err != nil {
			return err
		}

		out = reg
		redeemed = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	if redeemed != nil {
		s.logger.LogInvite("REDEEM", redeemed.Code, fmt.Sprintf("claimed by %s on order %s", userID, redeemed.OrderID))
		if s.Kafka != nil {
			if err := s.Kafka.PublishInviteRedeemed(*redeemed); err != nil {
				s.logger.Warn("KAFKA", fmt.Sprintf("publish invite redeemed failed: %v", err))
			}
		}
	} else {
		s.logger.LogInvite("REDEEM", code, fmt.Sprintf("user %s already registered, invite untouched", userID))
	}
	return out, nil
}

// Issue creates count PENDING invites for a PAID order. The buyer keeps one
// seat, so an order of quantity N carries at most N-1 invites.
func (s *Service) Issue(ctx context.Context, orderID string, count int) ([]*models.OrderInvite, error) {
	if count < 1 {
		return nil, fmt.Errorf("invite count must be at least 1, got %d", count)
	}

	var out []*models.OrderInvite
	err := s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.IDB) error {
		order, err := s.DB.OrderByID(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if order.Status != models.OrderPaid {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotPaid, order.ID, order.Status)
		}

		existing, err := s.DB.InvitesByOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		claimable := order.Quantity - 1
		if len(existing)+count > claimable {
			return fmt.Errorf("%w: order has %d claimable seat(s), %d invite(s) already issued",
				ErrTooManyInvites, claimable, len(existing))
		}

		invites := make([]*models.OrderInvite, count)
		for i := range invites {
			invites[i] = &models.OrderInvite{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				EventID:   order.EventID,
				Code:      utils.GenerateInviteCode(),
				Status:    models.InvitePending,
				CreatedAt: time.Now(),
			}
		}
		if err := s.DB.InsertInvites(ctx, tx, invites); err != nil {
			return err
		}
		out = invites
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogInvite("ISSUE", orderID, fmt.Sprintf("issued %d invite(s)", len(out)))
	return out, nil
}
