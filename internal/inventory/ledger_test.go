package inventory

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-orders/internal/models"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.TicketType)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func seedTicketType(t *testing.T, db *bun.DB, capacity, current int) *models.TicketType {
	t.Helper()
	tt := &models.TicketType{
		ID:              "ticket-1",
		EventID:         "event-1",
		Name:            "General Admission",
		Price:           25,
		Capacity:        capacity,
		CurrentQuantity: current,
	}
	_, err := db.NewInsert().Model(tt).Exec(context.Background())
	require.NoError(t, err)
	return tt
}

func currentQuantity(t *testing.T, db *bun.DB, id string) int {
	t.Helper()
	var tt models.TicketType
	err := db.NewSelect().Model(&tt).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return tt.CurrentQuantity
}

func TestReserve(t *testing.T) {
	db := setupTestDB(t)
	seedTicketType(t, db, 10, 0)
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Reserve(ctx, db, "ticket-1", 4))
	assert.Equal(t, 4, currentQuantity(t, db, "ticket-1"))

	require.NoError(t, ledger.Reserve(ctx, db, "ticket-1", 6))
	assert.Equal(t, 10, currentQuantity(t, db, "ticket-1"))
}

func TestReserveBeyondCapacity(t *testing.T) {
	db := setupTestDB(t)
	seedTicketType(t, db, 10, 8)
	ledger := NewLedger()

	err := ledger.Reserve(context.Background(), db, "ticket-1", 3)
	assert.ErrorIs(t, err, ErrSoldOut)

	// A failed reservation must not move the counter.
	assert.Equal(t, 8, currentQuantity(t, db, "ticket-1"))
}

func TestReserveUnknownTicketType(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()

	err := ledger.Reserve(context.Background(), db, "missing", 1)
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	db := setupTestDB(t)
	seedTicketType(t, db, 10, 0)
	ledger := NewLedger()

	assert.Error(t, ledger.Reserve(context.Background(), db, "ticket-1", 0))
	assert.Error(t, ledger.Reserve(context.Background(), db, "ticket-1", -2))
}

func TestRelease(t *testing.T) {
	db := setupTestDB(t)
	seedTicketType(t, db, 10, 7)
	ledger := NewLedger()

	require.NoError(t, ledger.Release(context.Background(), db, "ticket-1", 3))
	assert.Equal(t, 4, currentQuantity(t, db, "ticket-1"))
}

func TestReleaseFloorsAtZero(t *testing.T) {
	db := setupTestDB(t)
	seedTicketType(t, db, 10, 2)
	ledger := NewLedger()

	require.NoError(t, ledger.Release(context.Background(), db, "ticket-1", 5))
	assert.Equal(t, 0, currentQuantity(t, db, "ticket-1"))
}

func TestReleaseUnknownTicketType(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger()

	err := ledger.Release(context.Background(), db, "missing", 1)
	assert.ErrorIs(t, err, ErrTicketTypeNotFound)
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	seedTicketType(t, db, 100, 0)
	ledger := NewLedger()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Reserve(ctx, db, "ticket-1", 3))
		require.NoError(t, ledger.Release(ctx, db, "ticket-1", 3))
	}
	assert.Equal(t, 0, currentQuantity(t, db, "ticket-1"))
}
