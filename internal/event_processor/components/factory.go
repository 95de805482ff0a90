package components

import (
	"log/slog"

	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/event_processor/service"
	"github.com/aplus-bot/aplus-telegram-bot/internal/extractor"
	"github.com/aplus-bot/aplus-telegram-bot/internal/sender"
)

// CreateProcessingService wires the extractor and sender classifier into the
// ingestion controller and bounds it with the worker pool
func CreateProcessingService(
	ledgerRepo ledger.Repository,
	logger *slog.Logger,
	cfg *config.Config,
) service.ProcessingService {
	baseService := service.NewProcessingService(
		logger.With("component", "ingestion"),
		ledgerRepo,
		service.WithExtractor(extractor.Extract),
		service.WithClassifier(sender.Classify),
	)

	workerPoolService, err := service.NewWorkerPoolProcessingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool processing service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
