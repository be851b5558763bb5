package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-orders/internal/models"
)

// Row lookup errors. Handlers match these with errors.Is to pick a status code.
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrInviteNotFound       = errors.New("invite not found")
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrTxRetriesExhausted wraps a serialization or lock failure that
	// survived the bounded retry. The caller (webhook provider, Kafka
	// consumer) is expected to redeliver.
	ErrTxRetriesExhausted = errors.New("transaction retries exhausted")
)

const maxTxRetries = 3

type DB struct {
	Bun *bun.DB
}

// RunInTx executes fn inside a single transaction and retries the whole
// transaction with exponential backoff when the store reports a
// serialization or lock failure. Partial application is impossible: a failed
// attempt is rolled back before the next one starts.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.IDB) error) error {
	operation := func() error {
		err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxTxRetries), ctx))
	if err != nil && IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrTxRetriesExhausted, err)
	}
	return err
}

// IsRetryable reports whether err is a transient store failure worth
// retrying: Postgres serialization_failure / deadlock_detected, or a busy
// sqlite database in tests.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		return code == "40001" || code == "40P01"
	}
	return strings.Contains(err.Error(), "database is locked")
}

// supportsRowLocks reports whether the dialect understands SELECT ... FOR
// UPDATE. The sqlite test database serializes writers anyway.
func (d *DB) supportsRowLocks() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

func (d *DB) idb(idb bun.IDB) bun.IDB {
	if idb == nil {
		return d.Bun
	}
	return idb
}

// ---------------- ORDERS ----------------

// OrderByID fetches one order. With lock set the row is locked for the
// duration of the surrounding transaction, so a concurrent transition on the
// same order blocks until this one commits.
func (d *DB) OrderByID(ctx context.Context, idb bun.IDB, id string, lock bool) (*models.Order, error) {
	var order models.Order
	q := d.idb(idb).NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1)
	if lock && d.supportsRowLocks() {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// OrderByNo fetches one order by the external payment reference.
func (d *DB) OrderByNo(ctx context.Context, idb bun.IDB, orderNo string, lock bool) (*models.Order, error) {
	var order models.Order
	q := d.idb(idb).NewSelect().
		Model(&order).
		Where("order_no = ?", orderNo).
		Limit(1)
	if lock && d.supportsRowLocks() {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (d *DB) InsertOrder(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := d.idb(idb).NewInsert().Model(order).Exec(ctx)
	return err
}

// UpdateOrder writes the given columns of an already-loaded order row.
func (d *DB) UpdateOrder(ctx context.Context, idb bun.IDB, order *models.Order, columns ...string) error {
	_, err := d.idb(idb).NewUpdate().
		Model(order).
		Column(columns...).
		Where("id = ?", order.ID).
		Exec(ctx)
	return err
}

func (d *DB) OrdersByUserID(ctx context.Context, idb bun.IDB, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.idb(idb).NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- EVENTS ----------------

func (d *DB) EventByID(ctx context.Context, idb bun.IDB, id string) (*models.Event, error) {
	var event models.Event
	err := d.idb(idb).NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// ---------------- INVITES ----------------

// InviteByCode fetches an invite by (event, code). With lock set the invite
// row is locked, so a redemption race yields exactly one winner.
func (d *DB) InviteByCode(ctx context.Context, idb bun.IDB, eventID, code string, lock bool) (*models.OrderInvite, error) {
	var invite models.OrderInvite
	q := d.idb(idb).NewSelect().
		Model(&invite).
		Where("event_id = ? AND code = ?", eventID, code).
		Limit(1)
	if lock && d.supportsRowLocks() {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (d *DB) InvitesByOrder(ctx context.Context, idb bun.IDB, orderID string) ([]models.OrderInvite, error) {
	var invites []models.OrderInvite
	err := d.idb(idb).NewSelect().
		Model(&invites).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return invites, nil
}

func (d *DB) InsertInvites(ctx context.Context, idb bun.IDB, invites []*models.OrderInvite) error {
	if len(invites) == 0 {
		return nil
	}
	_, err := d.idb(idb).NewInsert().Model(&invites).Exec(ctx)
	return err
}

// UpdateInvite writes the given columns of an already-loaded invite row.
func (d *DB) UpdateInvite(ctx context.Context, idb bun.IDB, invite *models.OrderInvite, columns ...string) error {
	_, err := d.idb(idb).NewUpdate().
		Model(invite).
		Column(columns...).
		Where("id = ?", invite.ID).
		Exec(ctx)
	return err
}

// VoidPendingInvites expires every still-PENDING invite of an order. Used by
// the cancel transition; already-redeemed invites are left untouched.
func (d *DB) VoidPendingInvites(ctx context.Context, idb bun.IDB, orderID string) (int64, error) {
	res, err := d.idb(idb).NewUpdate().
		Model((*models.OrderInvite)(nil)).
		Set("status = ?", models.InviteExpired).
		Where("order_id = ? AND status = ?", orderID, models.InvitePending).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- REGISTRATIONS ----------------

func (d *DB) RegistrationByUserEvent(ctx context.Context, idb bun.IDB, userID, eventID string) (*models.Registration, error) {
	var reg models.Registration
	err := d.idb(idb).NewSelect().
		Model(&reg).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}
