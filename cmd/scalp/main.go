package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rayvtoll/scalp-assist/internal/bybit"
	"github.com/rayvtoll/scalp-assist/internal/config"
	"github.com/rayvtoll/scalp-assist/internal/journal"
	"github.com/rayvtoll/scalp-assist/internal/logger"
	"github.com/rayvtoll/scalp-assist/internal/scalp"
	"github.com/rayvtoll/scalp-assist/internal/venue"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()
	log.Info("Configuration loaded",
		zap.String("instrument", cfg.Trade.Instrument),
		zap.String("direction", cfg.Trade.Direction),
		zap.Float64("trigger_price", cfg.Trade.TriggerPrice))

	// Initialize the lifecycle event journal
	var recorder scalp.Recorder = scalp.NopRecorder{}
	if cfg.Journal.Enabled {
		db, err := journal.Open(cfg.Journal.DSN)
		if err != nil {
			log.Fatal("Failed to open journal database", zap.Error(err))
		}
		recorder = journal.NewStore(db, log)
		log.Info("Journal enabled", zap.String("dsn", cfg.Journal.DSN))
	}

	// Initialize Bybit REST client and verify connectivity
	client := bybit.NewClient(&cfg.Bybit, log)
	direction := venue.Direction(cfg.Trade.Direction)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	ticker, err := client.GetTicker(ctx, cfg.Trade.Instrument)
	if err != nil {
		log.Error("Failed to connect to Bybit API", zap.Error(err))
		return 1
	}
	log.Info("Successfully connected to Bybit API", zap.Float64("last_price", ticker.Last))

	// Prefer the websocket stream; fall back to REST polling.
	var prices venue.PriceSource
	stream := bybit.NewPriceStream(cfg.Bybit.Testnet, cfg.Trade.Instrument, direction, log)
	if err := stream.Start(ctx); err != nil {
		log.Warn("Websocket stream unavailable, falling back to REST polling", zap.Error(err))
		prices = bybit.NewPricePoller(client, cfg.Trade.Instrument, direction,
			time.Duration(cfg.Trade.PollInterval)*time.Second, log)
	} else {
		prices = stream
	}

	// Initialize and run the lifecycle engine
	engine, err := scalp.NewEngine(log, &cfg, client, prices, recorder)
	if err != nil {
		log.Error("Failed to initialize engine", zap.Error(err))
		return 1
	}
	engine.Board = scalp.NewPriceBoard(os.Stdout, 100)

	result, err := engine.Run(ctx)
	if err != nil {
		log.Error("Run ended with error", zap.Error(err))
		return 1
	}
	log.Info("Run complete", zap.String("outcome", string(result.Outcome)))
	if result.Outcome == scalp.OutcomeAbortedCreateFailed {
		return 1
	}
	return 0
}
