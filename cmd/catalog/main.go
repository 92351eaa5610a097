// cmd/catalog/main.go
package main

import (
	"context"
	"log"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"bookswap/internal/auth"
	"bookswap/internal/broker"
	"bookswap/internal/catalog"
	"bookswap/internal/clients"
	"bookswap/internal/config"
	"bookswap/internal/logging"
	"bookswap/internal/notify"
	"bookswap/internal/server"
	"bookswap/internal/telemetry"
)

func main() {
	cfg, err := config.Load("3002")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New("catalog", cfg.Development())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := server.SignalContext()
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, "catalog", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to start telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	db, err := server.OpenDB(ctx, cfg.DatabaseURL, catalog.Migrate)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	bus := broker.NewClient(cfg.RabbitMQURL, logger)
	bookEvents := broker.NewFanout(bus, cfg.BookEventsExchange, logger)
	bus.Open(ctx)
	defer bus.Close()

	hub := notify.NewHub(logger)
	defer hub.Close()

	svc := catalog.NewService(db, bookEvents, hub, logger)

	router := server.NewRouter(hub)
	authenticate := auth.Middleware(clients.NewIdentityClient(cfg.IdentityURL), logger)
	catalog.NewHandler(svc, logger).Mount(router, authenticate)

	if err := server.Run(ctx, cfg.Port, router, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}
