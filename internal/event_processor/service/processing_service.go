package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/extractor"
	"github.com/aplus-bot/aplus-telegram-bot/internal/sender"
)

// ProcessingServiceImpl drives an event through
// Received → Extracted → Classified → Appended | Rejected
type ProcessingServiceImpl struct {
	repo     ledger.Repository
	extract  ExtractFunc
	classify ClassifyFunc
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures the processing service
type Option func(*ProcessingServiceImpl)

// WithExtractor replaces the default template extractor
func WithExtractor(fn ExtractFunc) Option {
	return func(s *ProcessingServiceImpl) { s.extract = fn }
}

// WithClassifier replaces the default sender classifier
func WithClassifier(fn ClassifyFunc) Option {
	return func(s *ProcessingServiceImpl) { s.classify = fn }
}

// WithClock sets the clock used for events that carry no timestamp
func WithClock(now func() time.Time) Option {
	return func(s *ProcessingServiceImpl) { s.now = now }
}

func NewProcessingService(logger *slog.Logger, repo ledger.Repository, opts ...Option) *ProcessingServiceImpl {
	s := &ProcessingServiceImpl{
		repo:     repo,
		extract:  extractor.Extract,
		classify: sender.Classify,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessEvent extracts, attributes and stores the invoices in one event.
// Rejections caused by the message content return a nil error so the
// transport acknowledges the event; a StoreError is returned wrapped so the
// event is left unacknowledged and redelivered.
func (s *ProcessingServiceImpl) ProcessEvent(ctx context.Context, event *invoice.Event) (*Result, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	dedupKey := DedupKey(event)
	logger := s.logger.With("chat_id", event.ChatID, "dedup_key", dedupKey)
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	// Received → Extracted
	candidates, err := s.extract(event.Text)
	if err != nil {
		switch {
		case errors.Is(err, &invoice.ValidationError{}):
			logger.Warn("Invoice rejected: invalid amount", "text", event.Text, "error", err)
			return rejected(RejectValidationError, dedupKey), nil
		default:
			logger.Warn("Invoice rejected: unreadable totals", "text", event.Text, "error", err)
			return rejected(RejectParseError, dedupKey), nil
		}
	}
	if len(candidates) == 0 {
		logger.Debug("Message carries no invoice")
		return rejected(RejectNoMatch, dedupKey), nil
	}

	// Extracted → Classified
	from := s.classify(event.Sender)
	logger = logger.With("sender_kind", string(from.Kind))

	// Classified → Appended
	result := &Result{State: StateAppended, DedupKey: dedupKey}
	for i, c := range candidates {
		record := invoice.NewRecord(c, event.ChatID, from, event.OccurredAt, dedupKey+"#"+strconv.Itoa(i))

		appended, err := s.repo.Append(ctx, record)
		if err != nil {
			if errors.Is(err, &invoice.ValidationError{}) {
				logger.Warn("Invoice rejected: invalid record", "text", event.Text, "error", err)
				return rejected(RejectValidationError, dedupKey), nil
			}
			logger.Error("Failed to append invoice record",
				"record_dedup_key", record.DedupKey,
				"appended_before_failure", len(result.Records),
				"error", err)
			return rejected(RejectStoreError, dedupKey), fmt.Errorf("failed to append record %s: %w", record.DedupKey, err)
		}

		if appended.Duplicate {
			result.Duplicates++
			record.Seq = appended.Seq
		}
		result.Records = append(result.Records, record)
	}

	logger.Info("Invoice records stored",
		"records", len(result.Records),
		"duplicates", result.Duplicates)

	return result, nil
}

// DedupKey derives the stable identity of the source message: the transport
// message id when present, otherwise a content hash bound to the chat and
// the minute of arrival
func DedupKey(event *invoice.Event) string {
	chat := strconv.FormatInt(event.ChatID, 10)
	if event.MessageID != "" {
		return "msg:" + chat + ":" + event.MessageID
	}

	sum := sha256.Sum256([]byte(event.Text))
	minute := event.OccurredAt.UTC().Truncate(time.Minute).Unix()
	return "hash:" + chat + ":" + hex.EncodeToString(sum[:]) + ":" + strconv.FormatInt(minute, 10)
}
