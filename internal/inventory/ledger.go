// Package inventory is the only writer of TicketType.CurrentQuantity. Every
// call site goes through Reserve/Release inside the same transaction as the
// order change that justifies it, so the counter is always derivable as the
// sum of quantities of non-terminal orders.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-orders/internal/models"
)

var (
	// ErrSoldOut is returned when a reservation would push the current
	// count past capacity.
	ErrSoldOut = errors.New("ticket type is sold out")

	ErrTicketTypeNotFound = errors.New("ticket type not found")
)

type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve atomically increments the ticket type's current count by qty. The
// capacity guard lives in the UPDATE itself, so two concurrent reservations
// can never jointly oversell.
func (l *Ledger) Reserve(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("reserve quantity must be at least 1, got %d", qty)
	}

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("current_quantity = current_quantity + ?", qty).
		Where("id = ? AND current_quantity + ? <= capacity", ticketTypeID, qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve %d on ticket type %s: %w", qty, ticketTypeID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := idb.NewSelect().
			Model((*models.TicketType)(nil)).
			Where("id = ?", ticketTypeID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return ErrTicketTypeNotFound
		}
		return ErrSoldOut
	}
	return nil
}

// Release atomically decrements the current count by qty, floored at zero.
// Double release is prevented upstream by the status re-read; the floor only
// matters when the counter was edited out of band.
func (l *Ledger) Release(ctx context.Context, idb bun.IDB, ticketTypeID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("release quantity must be at least 1, got %d", qty)
	}

	res, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("current_quantity = CASE WHEN current_quantity >= ? THEN current_quantity - ? ELSE 0 END", qty, qty).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("release %d on ticket type %s: %w", qty, ticketTypeID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTicketTypeNotFound
	}
	return nil
}
