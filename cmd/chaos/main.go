// cmd/chaos/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"bookswap/internal/auth"
	"bookswap/internal/chaos"
	"bookswap/internal/config"
	"bookswap/internal/exchange"
	"bookswap/internal/factlog"
	"bookswap/internal/logging"
	"bookswap/internal/notify"
	"bookswap/internal/server"
	"bookswap/internal/telemetry"
)

// Synthetic parties for the approval race. No foreign keys tie requests to
// real users or books.
const (
	raceSender    = 900001
	raceRecipient = 900002
	raceBook      = 900003
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := logging.New("chaos", cfg.Development())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := server.SignalContext()
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, "chaos", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to start telemetry", zap.Error(err))
	}
	defer shutdownTelemetry(context.Background())

	db, err := server.OpenDB(ctx, cfg.DatabaseURL, exchange.Migrate)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	hub := notify.NewHub(logger)
	defer hub.Close()
	svc := exchange.NewService(db, factlog.New(db), hub, exchange.Options{StrictTransitions: cfg.StrictTransitions}, logger)

	token, err := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL).Issue(raceSender, "chaos-probe")
	if err != nil {
		logger.Fatal("failed to issue probe token", zap.Error(err))
	}
	outage, stopOutage, err := chaos.VerifierOutageExperiment(cfg.IdentityURL, token, logger)
	if err != nil {
		logger.Fatal("failed to prepare verifier outage", zap.Error(err))
	}
	defer stopOutage()

	engine := chaos.NewEngine(logger)
	engine.Register(chaos.ApprovalRaceExperiment(svc, chaos.RaceConfig{
		SenderID:    raceSender,
		RecipientID: raceRecipient,
		BookID:      raceBook,
		Concurrency: 50,
		Strict:      cfg.StrictTransitions,
	}))
	engine.Register(outage)

	held := engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:      "Weekly Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(engine.Results()); err != nil {
		logger.Error("failed to write results", zap.Error(err))
	}
	if !held {
		logger.Warn("at least one hypothesis did not hold")
		os.Exit(1)
	}
}
