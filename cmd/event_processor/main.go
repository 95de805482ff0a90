package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
	"github.com/aplus-bot/aplus-telegram-bot/internal/data"
	"github.com/aplus-bot/aplus-telegram-bot/internal/event_processor/components"
	"github.com/aplus-bot/aplus-telegram-bot/internal/event_processor/consumer"
	"github.com/aplus-bot/aplus-telegram-bot/internal/event_processor/reporter"
	"github.com/aplus-bot/aplus-telegram-bot/internal/event_processor/service"
	"github.com/aplus-bot/aplus-telegram-bot/internal/logger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/messaging/consumers"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/messaging/producers"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("event_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Event Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"ledger_backend", cfg.Ledger.Backend,
		"time_zone", cfg.Ledger.TimeZone,
	)

	store, err := data.OpenLedger(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to open ledger", "error", err)
		os.Exit(1)
	}

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// dlqProducer is nil when no DLQ topic is configured; its methods are nil-safe
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	processingService := components.CreateProcessingService(store.Repository, log, cfg)

	chatEventHandler := consumer.NewChatEventHandler(
		log.With("component", "chat_event_handler"),
		processingService,
		dlqProducer,
	)

	var reportProducer *producers.TopicProducer
	var totalsReporter *reporter.Reporter
	if cfg.Reporter.Enabled {
		reportProducer, err = producers.NewTopicProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.ReportTopic)
		if err != nil {
			log.Error("Failed to initialize report Kafka producer", "error", err)
			os.Exit(1)
		}

		agg := aggregator.New(log.With("component", "aggregator"), store.Repository, cfg.Ledger.Location)
		totalsReporter, err = reporter.NewReporter(&cfg.Reporter, agg, reportProducer, log)
		if err != nil {
			log.Error("Failed to initialize totals reporter", "error", err)
			os.Exit(1)
		}
	}

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	if err := kafkaConsumer.Subscribe(appCtx, chatEventHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	if totalsReporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			totalsReporter.Start(appCtx)
		}()
	}

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Wait for the consumer loop and the reporter before releasing what they use
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		<-kafkaConsumer.Done()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	if reportProducer != nil {
		if err = reportProducer.Close(); err != nil {
			log.Error("Error closing report Kafka producer", "error", err)
		}
	}

	if err = store.Close(shutdownCtx); err != nil {
		log.Error("Error closing ledger store", "error", err)
	}

	if serviceErr != nil {
		log.Error("Event Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Event Processor shutdown completed with errors")
	} else {
		log.Info("Event Processor shutdown completed successfully")
	}
}
