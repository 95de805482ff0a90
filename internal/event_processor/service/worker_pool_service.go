package service

import (
	"context"
	"log/slog"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/panjf2000/ants/v2"
)

// WorkerPoolProcessingService bounds the number of events processed concurrently
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

type outcome struct {
	result *Result
	err    error
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessEvent runs the event on a pool worker and waits for its outcome.
// The caller stops waiting when ctx is done; the worker still finishes.
func (s *WorkerPoolProcessingService) ProcessEvent(ctx context.Context, event *invoice.Event) (*Result, error) {
	logger := s.logger
	if event.CorrelationID != "" {
		logger = s.logger.With("correlation_id", event.CorrelationID)
	}

	logger.Debug("Submitting event to worker pool", "chat_id", event.ChatID)

	// Buffered so an abandoned worker never blocks
	done := make(chan outcome, 1)
	eventCopy := *event

	err := s.pool.Submit(func() {
		result, err := s.baseService.ProcessEvent(ctx, &eventCopy)
		done <- outcome{result: result, err: err}
	})
	if err != nil {
		logger.Error("Failed to submit event to worker pool",
			"chat_id", event.ChatID,
			"error", err,
		)
		return nil, err
	}

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
