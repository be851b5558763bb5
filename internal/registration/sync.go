// Package registration derives the attendee's registration from order and
// invite transitions. It holds no state machine of its own: it is a function
// of the transition plus the event's approval flag, always executed inside
// the caller's transaction.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-orders/internal/models"
)

type Synchronizer struct{}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{}
}

// statusFor maps the event's approval policy to the registration status a
// fresh activation gets.
func statusFor(approvalRequired bool) models.RegistrationStatus {
	if approvalRequired {
		return models.RegistrationPendingApproval
	}
	return models.RegistrationApproved
}

// ActivateForOrder creates or reactivates the buyer's registration for the
// order's event. An existing (user, event) row is updated in place, never
// duplicated.
func (s *Synchronizer) ActivateForOrder(ctx context.Context, idb bun.IDB, order *models.Order, approvalRequired bool) (*models.Registration, error) {
	return s.activate(ctx, idb, order.UserID, order.EventID, &order.ID, nil, approvalRequired)
}

// ActivateForInvite creates or reactivates the redeemer's registration,
// linked to the invite that produced it.
func (s *Synchronizer) ActivateForInvite(ctx context.Context, idb bun.IDB, invite *models.OrderInvite, userID string, approvalRequired bool) (*models.Registration, error) {
	return s.activate(ctx, idb, userID, invite.EventID, nil, &invite.ID, approvalRequired)
}

func (s *Synchronizer) activate(ctx context.Context, idb bun.IDB, userID, eventID string, orderID, inviteID *string, approvalRequired bool) (*models.Registration, error) {
	var reg models.Registration
	err := idb.NewSelect().
		Model(&reg).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Limit(1).
		Scan(ctx)

	if err == nil {
		reg.Status = statusFor(approvalRequired)
		reg.OrderID = orderID
		reg.InviteID = inviteID
		reg.UpdatedAt = time.Now()
		_, err = idb.NewUpdate().
			Model(&reg).
			Column("status", "order_id", "invite_id", "updated_at").
			Where("id = ?", reg.ID).
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		return &reg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	reg = models.Registration{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    statusFor(approvalRequired),
		OrderID:   orderID,
		InviteID:  inviteID,
		CreatedAt: time.Now(),
	}
	if _, err := idb.NewInsert().Model(&reg).Exec(ctx); err != nil {
		return nil, err
	}
	return &reg, nil
}

// CancelForOrder sets the registration linked to the order to CANCELLED. The
// row is kept for audit; zero matched rows is fine, a PENDING order that was
// never paid has no registration yet.
func (s *Synchronizer) CancelForOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := idb.NewUpdate().
		Model((*models.Registration)(nil)).
		Set("status = ?", models.RegistrationCancelled).
		Set("updated_at = ?", time.Now()).
		Where("order_id = ?", order.ID).
		Exec(ctx)
	return err
}
