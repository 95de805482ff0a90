// Package aggregator computes exact USD and Riel totals over ledger records
// for a time-zone-resolved window, optionally grouped by chat, payment method
// and sender kind.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
)

// ErrUnknownDimension indicates a group-by dimension that is not supported
var ErrUnknownDimension = errors.New("unknown group-by dimension")

// Dimension is a record attribute totals can be grouped by
type Dimension string

const (
	DimensionChatID        Dimension = "chat_id"
	DimensionPaymentMethod Dimension = "payment_method"
	DimensionSenderKind    Dimension = "sender_kind"
)

// ParseDimensions validates and de-duplicates group-by dimension names
func ParseDimensions(names []string) ([]Dimension, error) {
	var dims []Dimension
	seen := make(map[Dimension]bool)
	for _, name := range names {
		d := Dimension(name)
		switch d {
		case DimensionChatID, DimensionPaymentMethod, DimensionSenderKind:
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, name)
		}
		if !seen[d] {
			seen[d] = true
			dims = append(dims, d)
		}
	}
	return dims, nil
}

// Totals are exact sums over a set of records
type Totals struct {
	USDCents int64 `json:"usd_cents"`
	Riel     int64 `json:"riel"`
	Count    int64 `json:"record_count"`
}

// ErrTotalsOverflow indicates a sum that no longer fits in an int64
var ErrTotalsOverflow = errors.New("totals overflow")

// add leaves t unchanged when either sum would overflow
func (t *Totals) add(rec *invoice.Record) error {
	usd, ok := addInt64(t.USDCents, rec.USDCents)
	if !ok {
		return fmt.Errorf("%w: usd cents", ErrTotalsOverflow)
	}
	riel, ok := addInt64(t.Riel, rec.Riel)
	if !ok {
		return fmt.Errorf("%w: riel", ErrTotalsOverflow)
	}
	t.USDCents, t.Riel = usd, riel
	t.Count++
	return nil
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// GroupKey identifies one group of a report. Fields for dimensions that were
// not grouped on are left at their zero value.
type GroupKey struct {
	ChatID        int64              `json:"chat_id,omitempty"`
	PaymentMethod string             `json:"payment_method,omitempty"`
	SenderKind    invoice.SenderKind `json:"sender_kind,omitempty"`
}

// GroupRow pairs a group key with its totals
type GroupRow struct {
	GroupKey
	Totals
}

// Request describes one aggregation query
type Request struct {
	Window        Window
	GroupBy       []Dimension
	ChatID        *int64
	PaymentMethod *string
}

// Report is the result of a query. Groups is empty when GroupBy is empty.
type Report struct {
	From    civil.Date
	To      civil.Date
	GroupBy []Dimension
	Total   Totals
	Groups  map[GroupKey]Totals
}

// Rows returns the groups in a stable order
func (r *Report) Rows() []GroupRow {
	rows := make([]GroupRow, 0, len(r.Groups))
	for k, t := range r.Groups {
		rows = append(rows, GroupRow{GroupKey: k, Totals: t})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].GroupKey, rows[j].GroupKey
		if a.ChatID != b.ChatID {
			return a.ChatID < b.ChatID
		}
		if a.PaymentMethod != b.PaymentMethod {
			return a.PaymentMethod < b.PaymentMethod
		}
		return a.SenderKind < b.SenderKind
	})
	return rows
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock replaces the wall clock used to resolve windows
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator answers totals queries from a ledger repository
type Aggregator struct {
	repo   ledger.Repository
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Aggregator resolving windows in loc
func New(logger *slog.Logger, repo ledger.Repository, loc *time.Location, opts ...Option) *Aggregator {
	a := &Aggregator{
		repo:   repo,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Query resolves the window against the current time and sums the matching records
func (a *Aggregator) Query(ctx context.Context, req Request) (*Report, error) {
	from, to, err := req.Window.Resolve(a.now(), a.loc)
	if err != nil {
		return nil, err
	}

	records, err := a.repo.RangeQuery(ctx, ledger.RangeQuery{
		From:          from,
		To:            to,
		ChatID:        req.ChatID,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		a.logger.Error("Failed to load records for aggregation",
			"window", req.Window.String(),
			"error", err)
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	report := &Report{
		From:    from,
		To:      to,
		GroupBy: req.GroupBy,
		Groups:  make(map[GroupKey]Totals),
	}

	for _, rec := range records {
		if err := report.Total.add(rec); err != nil {
			a.logger.Error("Totals exceed the representable range",
				"window", req.Window.String(),
				"seq", rec.Seq,
				"error", err)
			return nil, err
		}

		if len(req.GroupBy) == 0 {
			continue
		}
		key := groupKeyFor(rec, req.GroupBy)
		t := report.Groups[key]
		if err := t.add(rec); err != nil {
			return nil, err
		}
		report.Groups[key] = t
	}

	a.logger.Debug("Aggregated records",
		"from", from.String(),
		"to", to.String(),
		"records", len(records),
		"groups", len(report.Groups))

	return report, nil
}

func groupKeyFor(rec *invoice.Record, dims []Dimension) GroupKey {
	var key GroupKey
	for _, d := range dims {
		switch d {
		case DimensionChatID:
			key.ChatID = rec.ChatID
		case DimensionPaymentMethod:
			key.PaymentMethod = rec.PaymentMethod
		case DimensionSenderKind:
			key.SenderKind = rec.Sender.Kind
		}
	}
	return key
}
