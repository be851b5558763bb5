package order_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-orders/internal/inventory"
	"ms-orders/internal/invite"
	"ms-orders/internal/logger"
	"ms-orders/internal/models"
	"ms-orders/internal/order"
	"ms-orders/internal/order/db"
	"ms-orders/internal/registration"
)

// The Postgres tests exercise the row-locking paths the sqlite tests cannot:
// concurrent transitions on the same rows must serialize through
// SELECT ... FOR UPDATE and the guarded inventory UPDATE.

func setupPostgres(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "orders",
				"POSTGRES_PASSWORD": "orders",
				"POSTGRES_DB":       "orders_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://orders:orders@%s:%s/orders_test?sslmode=disable", host, port.Port())
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	require.NoError(t, bunDB.Ping())

	require.NoError(t, bunDB.ResetModel(ctx,
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Order)(nil),
		(*models.Registration)(nil),
		(*models.OrderInvite)(nil),
	))
	t.Cleanup(func() { bunDB.Close() })

	return &db.DB{Bun: bunDB}
}

func seedPG(t *testing.T, store *db.DB, capacity int) {
	t.Helper()
	ctx := context.Background()
	event := &models.Event{ID: "event-1", Name: "GopherCon", CreatedAt: time.Now()}
	_, err := store.Bun.NewInsert().Model(event).Exec(ctx)
	require.NoError(t, err)
	tt := &models.TicketType{ID: "ticket-1", EventID: "event-1", Name: "GA", Price: 25, Capacity: capacity}
	_, err = store.Bun.NewInsert().Model(tt).Exec(ctx)
	require.NoError(t, err)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	store := setupPostgres(t)
	seedPG(t, store, 10)
	svc := order.NewOrderService(store, inventory.NewLedger(), registration.NewSynchronizer(), nil, logger.NewLogger())
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, fmt.Sprintf("user-%d", i), models.PlaceOrderRequest{
				EventID:      "event-1",
				TicketTypeID: "ticket-1",
				Quantity:     1,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	placed, soldOut := 0, 0
	for err := range results {
		switch {
		case err == nil:
			placed++
		case assert.ErrorIs(t, err, inventory.ErrSoldOut):
			soldOut++
		}
	}
	assert.Equal(t, 10, placed)
	assert.Equal(t, 10, soldOut)

	var tt models.TicketType
	require.NoError(t, store.Bun.NewSelect().Model(&tt).Where("id = ?", "ticket-1").Scan(ctx))
	assert.Equal(t, 10, tt.CurrentQuantity)
}

func TestConcurrentRefundsReleaseOnce(t *testing.T) {
	store := setupPostgres(t)
	seedPG(t, store, 10)
	svc := order.NewOrderService(store, inventory.NewLedger(), registration.NewSynchronizer(), nil, logger.NewLogger())
	ctx := context.Background()

	placed, err := svc.PlaceOrder(ctx, "user-1", models.PlaceOrderRequest{
		EventID:      "event-1",
		TicketTypeID: "ticket-1",
		Quantity:     3,
	})
	require.NoError(t, err)
	_, err = svc.MarkOrderPaid(ctx, placed.OrderNo, "tx-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.MarkOrderRefunded(ctx, placed.OrderNo, fmt.Sprintf("re-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// The row lock serialized the refunds; only the winner released seats.
	var tt models.TicketType
	require.NoError(t, store.Bun.NewSelect().Model(&tt).Where("id = ?", "ticket-1").Scan(ctx))
	assert.Equal(t, 0, tt.CurrentQuantity)

	got, err := svc.GetOrder(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, got.Status)
}

func TestConcurrentRedemptionsHaveOneWinner(t *testing.T) {
	store := setupPostgres(t)
	seedPG(t, store, 10)
	log := logger.NewLogger()
	regSync := registration.NewSynchronizer()
	orderSvc := order.NewOrderService(store, inventory.NewLedger(), regSync, nil, log)
	inviteSvc := invite.NewService(store, regSync, nil, "https://example.test/claim", log)
	ctx := context.Background()

	placed, err := orderSvc.PlaceOrder(ctx, "buyer-1", models.PlaceOrderRequest{
		EventID:      "event-1",
		TicketTypeID: "ticket-1",
		Quantity:     2,
	})
	require.NoError(t, err)
	_, err = orderSvc.MarkOrderPaid(ctx, placed.OrderNo, "tx-1")
	require.NoError(t, err)

	invites, err := inviteSvc.Issue(ctx, placed.ID, 1)
	require.NoError(t, err)
	code := invites[0].Code

	const claimants = 4
	var wg sync.WaitGroup
	results := make(chan error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := inviteSvc.Redeem(ctx, "event-1", code, fmt.Sprintf("friend-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	winners, losers := 0, 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		case assert.ErrorIs(t, err, invite.ErrAlreadyRedeemed):
			losers++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, claimants-1, losers)

	got, err := store.InviteByCode(ctx, nil, "event-1", code, false)
	require.NoError(t, err)
	assert.Equal(t, models.InviteRedeemed, got.Status)
	assert.NotNil(t, got.RedeemedBy)
}
