// cmd/api/main.go
package main

import (
	"log"

	"go.uber.org/zap"

	"bookswap/internal/config"
	"bookswap/internal/gateway"
	"bookswap/internal/logging"
	"bookswap/internal/server"
)

func main() {
	cfg, err := config.Load("8080")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New("gateway", cfg.Development())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := server.SignalContext()
	defer stop()

	router := server.NewRouter(nil)
	err = gateway.Mount(router, []gateway.Route{
		{Prefix: "identity", Backend: cfg.IdentityURL},
		{Prefix: "catalog", Backend: cfg.CatalogURL},
		{Prefix: "exchange", Backend: cfg.ExchangeURL},
	}, logger)
	if err != nil {
		logger.Fatal("invalid backend configuration", zap.Error(err))
	}

	if err := server.Run(ctx, cfg.Port, router, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
