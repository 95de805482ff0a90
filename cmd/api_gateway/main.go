package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway"
	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway/service"
	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
	"github.com/aplus-bot/aplus-telegram-bot/internal/data"
	"github.com/aplus-bot/aplus-telegram-bot/internal/logger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/messaging/producers"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// The gateway only reads the ledger; the event processor is its sole writer
	store, err := data.OpenLedger(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to open ledger", "error", err)
		os.Exit(1)
	}

	// Publishes webhook chat events onto the topic the event processor consumes
	eventProducer, err := producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.EventTopic)
	if err != nil {
		log.Error("Failed to initialize API Gateway Kafka producer", "error", err)
		os.Exit(1)
	}

	agg := aggregator.New(log.With("component", "aggregator"), store.Repository, cfg.Ledger.Location)

	ledgerService := service.NewLedgerService(log, agg, store.Repository)
	eventService := service.NewEventService(log, eventProducer)

	server := api_gateway.NewServer(log, cfg, ledgerService, eventService)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before releasing what handlers use
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	if err = store.Close(shutdownCtx); err != nil {
		log.Error("Error closing ledger store", "error", err)
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
