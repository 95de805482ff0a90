package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/messaging/producers"
)

// Querier answers totals queries
type Querier interface {
	Query(ctx context.Context, req aggregator.Request) (*aggregator.Report, error)
}

// Message is the totals report published on the report topic
type Message struct {
	ReportID    string                 `json:"report_id"`
	Window      string                 `json:"window"`
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	GroupBy     []aggregator.Dimension `json:"group_by,omitempty"`
	Total       aggregator.Totals      `json:"total"`
	Groups      []aggregator.GroupRow  `json:"groups,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Reporter periodically aggregates a window and publishes the totals
type Reporter struct {
	querier          Querier
	publisher        producers.MessagePublisher
	logger           *slog.Logger
	interval         time.Duration
	window           aggregator.Window
	groupBy          []aggregator.Dimension
	maxRetryAttempts uint
	retryDelay       time.Duration
	now              func() time.Time
	newID            func() string
}

func NewReporter(
	cfg *config.ReporterConfig,
	querier Querier,
	publisher producers.MessagePublisher,
	logger *slog.Logger,
) (*Reporter, error) {
	window, err := aggregator.ParseWindow(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("invalid reporter window: %w", err)
	}
	groupBy, err := aggregator.ParseDimensions(cfg.GroupByList())
	if err != nil {
		return nil, fmt.Errorf("invalid reporter group by: %w", err)
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("reporter interval must be positive")
	}

	attempts := uint(1)
	if cfg.MaxRetryAttempts > 0 {
		attempts = uint(cfg.MaxRetryAttempts)
	}

	return &Reporter{
		querier:          querier,
		publisher:        publisher,
		logger:           logger.With("component", "reporter"),
		interval:         cfg.Interval,
		window:           window,
		groupBy:          groupBy,
		maxRetryAttempts: attempts,
		retryDelay:       cfg.RetryDelay,
		now:              time.Now,
		newID:            func() string { return uuid.NewString() },
	}, nil
}

// Start publishes a report on every tick until ctx is canceled
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info("Starting totals reporter",
		"interval", r.interval.String(),
		"window", r.window.String(),
		"group_by", r.groupBy,
		"max_retry_attempts", r.maxRetryAttempts,
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Totals reporter stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := r.PublishReport(ctx); err != nil {
				r.logger.Error("Failed to publish totals report", "error", err)
			}
		}
	}
}

// PublishReport aggregates the configured window once and publishes the result.
// Publishing is retried; the aggregation is not.
func (r *Reporter) PublishReport(ctx context.Context) error {
	report, err := r.querier.Query(ctx, aggregator.Request{
		Window:  r.window,
		GroupBy: r.groupBy,
	})
	if err != nil {
		return fmt.Errorf("failed to aggregate window %s: %w", r.window.String(), err)
	}

	msg := &Message{
		ReportID:    r.newID(),
		Window:      r.window.String(),
		From:        report.From.String(),
		To:          report.To.String(),
		GroupBy:     report.GroupBy,
		Total:       report.Total,
		Groups:      report.Rows(),
		GeneratedAt: r.now().UTC(),
	}
	logger := r.logger.With("report_id", msg.ReportID)

	err = retry.Do(
		func() error {
			return r.publisher.Publish(ctx, msg.Window, msg)
		},
		retry.Context(ctx),
		retry.Attempts(r.maxRetryAttempts),
		retry.Delay(r.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying totals report publish", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to publish report %s: %w", msg.ReportID, err)
	}

	logger.Info("Published totals report",
		"window", msg.Window,
		"from", msg.From,
		"to", msg.To,
		"usd_cents", msg.Total.USDCents,
		"riel", msg.Total.Riel,
		"records", msg.Total.Count,
	)
	return nil
}
