package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-orders/internal/auth"
	"ms-orders/internal/config"
	"ms-orders/internal/database/migrations"
	"ms-orders/internal/inventory"
	"ms-orders/internal/invite"
	"ms-orders/internal/kafka"
	"ms-orders/internal/logger"
	"ms-orders/internal/order"
	"ms-orders/internal/order/db"
	"ms-orders/internal/order/order_api"
	"ms-orders/internal/registration"
)

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()
	ctx := context.Background()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "Failed to connect to Postgres: "+err.Error())
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		})
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", "Migrations failed: "+err.Error())
		}
	}

	// --- Initialize Dependencies ---
	store := &db.DB{Bun: bunDB}
	ledger := inventory.NewLedger()
	sync := registration.NewSynchronizer()

	var producer *kafka.Producer
	var orderPublisher order.Publisher
	var invitePublisher invite.Publisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{
			cfg.Kafka.Topics.OrderEvents,
			cfg.Kafka.Topics.InviteEvents,
			cfg.Kafka.Topics.PaymentSuccess,
			cfg.Kafka.Topics.PaymentRefunded,
		}, log); err != nil {
			log.Warn("KAFKA", "Topic bootstrap failed: "+err.Error())
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		orderPublisher = producer
		invitePublisher = producer
	}

	orderService := order.NewOrderService(store, ledger, sync, orderPublisher, log)
	inviteService := invite.NewService(store, sync, invitePublisher, cfg.Invite.ClaimBaseURL, log)
	handler := order_api.NewHandler(orderService, inviteService, log)

	// Payment events from the gateway's topics drive the same transitions
	// as the provider webhook; both paths are idempotent.
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics, cfg.Kafka.GroupID, orderService, log)
		defer consumer.Close()
		consumerCtx, stopConsumer := context.WithCancel(ctx)
		defer stopConsumer()
		consumer.Start(consumerCtx)
	}

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Use(auth.Middleware())
	handler.Routes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "Order service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "HTTP server error: "+err.Error())
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SERVER", "Server exited gracefully")
}
