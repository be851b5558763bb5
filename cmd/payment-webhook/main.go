package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-orders/internal/config"
	"ms-orders/internal/inventory"
	"ms-orders/internal/kafka"
	"ms-orders/internal/logger"
	"ms-orders/internal/order"
	"ms-orders/internal/order/db"
	orderredis "ms-orders/internal/order/redis"
	"ms-orders/internal/payment"
	handlers "ms-orders/internal/payment/handler"
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
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "Failed to connect to Postgres: "+err.Error())
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// --- Redis Setup (webhook dedup fast path) ---
	var dedup payment.DedupCache
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", "Redis unavailable, webhook dedup fast path disabled: "+err.Error())
	} else {
		dedup = orderredis.NewDedup(redisClient)
	}

	// --- Initialize Dependencies ---
	store := &db.DB{Bun: bunDB}
	ledger := inventory.NewLedger()
	sync := registration.NewSynchronizer()

	var publisher order.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		publisher = producer
	}

	orderService := order.NewOrderService(store, ledger, sync, publisher, log)
	adapter := payment.NewStripeAdapter(orderService, dedup, cfg.Stripe.WebhookSecret, log)
	stripeHandler := handlers.NewStripeHandler(adapter, log)

	// --- Setup Router ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/webhook/stripe", stripeHandler.HandleWebhook)

	server := &http.Server{
		Addr:         getPort(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("SERVER", "Payment webhook service running on "+server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "HTTP server error: "+err.Error())
		}
	}()

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

func getPort() string {
	if port := os.Getenv("WEBHOOK_PORT"); port != "" {
		return port
	}
	return ":8081"
}
