package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
)

// MaxRangeDays bounds the number of calendar days a record listing may span
const MaxRangeDays = aggregator.MaxWindowDays

// LedgerServiceImpl implements the LedgerService interface
type LedgerServiceImpl struct {
	querier    Querier
	ledgerRepo ledger.Repository
	logger     *slog.Logger
}

func NewLedgerService(logger *slog.Logger, querier Querier, ledgerRepo ledger.Repository) LedgerService {
	return &LedgerServiceImpl{
		querier:    querier,
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

func (s *LedgerServiceImpl) GetTotals(ctx context.Context, req aggregator.Request) (*aggregator.Report, error) {
	report, err := s.querier.Query(ctx, req)
	if err != nil {
		s.logger.Error("Failed to aggregate totals", "window", req.Window.String(), "error", err)
		return nil, err
	}
	return report, nil
}

func (s *LedgerServiceImpl) ListRecords(ctx context.Context, query ledger.RangeQuery) ([]*invoice.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if days := query.To.DaysSince(query.From) + 1; days > MaxRangeDays {
		return nil, fmt.Errorf("%w: spans %d days, at most %d allowed", ledger.ErrInvalidRange, days, MaxRangeDays)
	}

	records, err := s.ledgerRepo.RangeQuery(ctx, query)
	if err != nil {
		s.logger.Error("Failed to list records",
			"from", query.From.String(),
			"to", query.To.String(),
			"error", err,
		)
		return nil, err
	}
	return records, nil
}
