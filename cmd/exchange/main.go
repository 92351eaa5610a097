// cmd/exchange/main.go
package main

import (
	"context"
	"log"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"bookswap/internal/auth"
	"bookswap/internal/broker"
	"bookswap/internal/clients"
	"bookswap/internal/config"
	"bookswap/internal/exchange"
	"bookswap/internal/factlog"
	"bookswap/internal/logging"
	"bookswap/internal/notify"
	"bookswap/internal/server"
	"bookswap/internal/telemetry"
)

func main() {
	cfg, err := config.Load("3003")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New("exchange", cfg.Development())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := server.SignalContext()
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, "exchange", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to start telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	db, err := server.OpenDB(ctx, cfg.DatabaseURL, exchange.Migrate)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	bus := broker.NewClient(cfg.RabbitMQURL, logger)
	broker.NewFanout(bus, cfg.BookEventsExchange, logger).Subscribe(exchange.BookEventHandler(logger))
	bus.Open(ctx)
	defer bus.Close()

	hub := notify.NewHub(logger)
	defer hub.Close()

	if cfg.StrictTransitions {
		logger.Info("strict exchange transitions enabled")
	}
	svc := exchange.NewService(db, factlog.New(db), hub, exchange.Options{StrictTransitions: cfg.StrictTransitions}, logger)

	router := server.NewRouter(hub)
	authenticate := auth.Middleware(clients.NewIdentityClient(cfg.IdentityURL), logger)
	exchange.NewHandler(svc, logger).Mount(router, authenticate)

	if err := server.Run(ctx, cfg.Port, router, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}
