package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/gateway"
	"ticket-checkout/internal/handlers"
	"ticket-checkout/internal/kafka"
	"ticket-checkout/internal/logger"
	rediswrap "ticket-checkout/internal/redis"
	"ticket-checkout/internal/services"
	"ticket-checkout/internal/storage"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("ENV", "Error loading .env file, using environment variables")
	}

	cfg := config.Load()
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	log.LogProcess("STARTUP", "Ticket checkout starting up...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to initialize storage: "+err.Error())
	}
	defer store.Close()

	pingers := map[string]handlers.Pinger{}
	var guard services.IdempotencyGuard
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		g := rediswrap.NewIdempotencyGuard(client, cfg.Redis.IdempotencyTTL)
		if err := g.Ping(ctx); err != nil {
			log.Warn("REDIS", "Redis not reachable yet, checkout idempotency will degrade: "+err.Error())
		}
		guard = g
		pingers["redis"] = g
		log.LogProcess("REDIS", "Idempotency guard connected to "+cfg.Redis.Addr)
	} else {
		log.Warn("REDIS", "REDIS_ADDR not set, Idempotency-Key headers are ignored")
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MockMode, log)
	if err != nil {
		log.Fatal("KAFKA", "Failed to create Kafka producer: "+err.Error())
	}
	defer producer.Close()

	gw, err := gateway.New(cfg.Payment, log)
	if err != nil {
		log.Fatal("PAYMENT", "Failed to initialize payment gateway: "+err.Error())
	}
	log.LogPayment("INIT", gw.Name(), "Payment gateway initialized")

	inventory := services.NewInventoryService(store, producer, log)
	checkout := services.NewCheckoutService(store, gw, guard, producer, cfg.Payment, log)
	reconciler := services.NewReconciler(store, gw, producer, log)
	log.LogProcess("SERVICE", "Inventory, checkout and reconciler services initialized")

	if !cfg.Kafka.MockMode {
		consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ConsumeTopics, log)
		if err != nil {
			log.Fatal("KAFKA", "Failed to create Kafka consumer: "+err.Error())
		}
		defer consumer.Close()

		go func() {
			log.LogKafka("START", "consumer", "Starting Kafka consumer goroutine")
			if err := consumer.Consume(ctx, inventory, reconciler); err != nil && ctx.Err() == nil {
				log.Error("KAFKA", "Consumer error: "+err.Error())
			}
		}()
	}

	if cfg.Inventory.ReconcileInterval > 0 {
		go runReconciler(ctx, inventory, cfg.Inventory.ReconcileInterval, log)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		Inventory:      handlers.NewInventoryHandler(inventory),
		Checkout:       handlers.NewCheckoutHandler(checkout),
		Webhook:        handlers.NewWebhookHandler(reconciler),
		Health:         handlers.NewHealthHandler(store, pingers),
		RateLimit:      cfg.Server.RateLimit,
		RequestTimeout: cfg.Server.WriteTimeout,
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.LogProcess("SERVER", "Starting HTTP server on port "+cfg.Server.Port)
		log.Info("STARTUP", "Health check available at: http://localhost"+cfg.Server.Port+"/health")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "Server failed to start: "+err.Error())
		}
	}()

	<-ctx.Done()
	log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("SHUTDOWN", "Server forced to shutdown: "+err.Error())
	}

	log.Info("SHUTDOWN", "Ticket checkout shutdown completed")
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("DATABASE", "Using in-memory storage, data is lost on restart")
		return storage.NewInMemoryStore(), nil
	case "mysql":
		store, err := storage.NewMySQLStore(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		if err := storage.Migrate(ctx, store.DB(), "", log); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
	}
}

func runReconciler(ctx context.Context, inventory *services.InventoryService, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drifts, err := inventory.ReconcileAll(ctx)
			if err != nil {
				log.Error("INVENTORY", "Reconciliation failed: "+err.Error())
				continue
			}
			if len(drifts) > 0 {
				log.Warn("INVENTORY", fmt.Sprintf("Reconciliation corrected %d drifted counters", len(drifts)))
			}
		}
	}
}
