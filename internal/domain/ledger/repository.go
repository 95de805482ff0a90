package ledger

import (
	"context"
	"errors"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// ErrInvalidRange indicates a range query with missing or inverted dates
var ErrInvalidRange = errors.New("invalid date range")

// AppendResult reports the sequence number assigned to an appended record.
// Duplicate is set when the dedup key had already been committed, in which
// case Seq is the sequence number of the original record.
type AppendResult struct {
	Seq       int64
	Duplicate bool
}

// Repository is the durable, concurrency-safe store of invoice records.
// Writes to the same bucket are serialized; writes to different buckets may
// proceed concurrently.
type Repository interface {
	// Append assigns a sequence number and durably stores the record in its bucket.
	// Returns StoreError if the durable medium is unavailable.
	Append(ctx context.Context, record *invoice.Record) (AppendResult, error)

	// RangeQuery returns the matching records ordered by sequence number
	RangeQuery(ctx context.Context, query RangeQuery) ([]*invoice.Record, error)
}

// StoreError indicates a failed read or write of the durable medium
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string {
	if e.Err == nil {
		return "ledger store error: " + e.Op
	}
	return "ledger store error: " + e.Op + ": " + e.Err.Error()
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface for StoreError.
// An empty target Op matches any StoreError.
func (e StoreError) Is(target error) bool {
	t, ok := target.(StoreError)
	if !ok {
		return false
	}
	if t.Op == "" {
		return true
	}
	return e.Op == t.Op
}
