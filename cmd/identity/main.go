// cmd/identity/main.go
package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bookswap/internal/auth"
	"bookswap/internal/broker"
	"bookswap/internal/config"
	"bookswap/internal/identity"
	"bookswap/internal/logging"
	"bookswap/internal/notify"
	"bookswap/internal/server"
	"bookswap/internal/telemetry"
)

func main() {
	cfg, err := config.Load("3001")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New("identity", cfg.Development())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := server.SignalContext()
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, "identity", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to start telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	db, err := server.OpenDB(ctx, cfg.DatabaseURL, identity.Migrate)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	bus := broker.NewClient(cfg.RabbitMQURL, logger)
	userCreated := broker.NewDurableQueue(bus, cfg.UserCreatedQueue, logger)
	bus.Open(ctx)
	defer bus.Close()

	hub := notify.NewHub(logger)
	defer hub.Close()

	var limiter *rate.Limiter
	if cfg.AuthRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AuthRateLimit), cfg.AuthRateLimit)
	}

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	svc := identity.NewService(db, tokens, userCreated, hub, limiter, logger)

	router := server.NewRouter(hub)
	authenticate := auth.Middleware(tokens, logger, auth.WithRejectStatus(http.StatusForbidden))
	identity.NewHandler(svc, logger).Mount(router, authenticate)

	if err := server.Run(ctx, cfg.Port, router, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}
