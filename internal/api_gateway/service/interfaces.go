package service

import (
	"context"

	"github.com/aplus-bot/aplus-telegram-bot/internal/aggregator"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
)

// LedgerService defines the read operations exposed over HTTP
type LedgerService interface {
	// GetTotals aggregates the ledger for the requested window
	// Returns aggregator.ErrInvalidWindow for windows that cannot be resolved
	GetTotals(ctx context.Context, req aggregator.Request) (*aggregator.Report, error)

	// ListRecords returns matching records ordered by sequence number
	// Returns ledger.ErrInvalidRange for missing or inverted dates
	ListRecords(ctx context.Context, query ledger.RangeQuery) ([]*invoice.Record, error)
}

// EventService defines the interface for submitting inbound chat events
type EventService interface {
	// SubmitEvent hands the event to the event processor and returns the message key used
	SubmitEvent(ctx context.Context, event *invoice.Event) (string, error)
}

// Querier answers totals queries
type Querier interface {
	Query(ctx context.Context, req aggregator.Request) (*aggregator.Report, error)
}
