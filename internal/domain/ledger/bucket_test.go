package ledger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketKeyFor_UsesLedgerTimeZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Phnom_Penh")
	require.NoError(t, err)

	// 20:30 UTC is already the next day in Phnom Penh (UTC+7)
	record := &invoice.Record{
		ChatID:        -100123,
		PaymentMethod: "ABA",
		OccurredAt:    time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC),
	}

	key := BucketKeyFor(record, loc)
	assert.Equal(t, civil.Date{Year: 2026, Month: 3, Day: 15}, key.Date)
	assert.Equal(t, int64(-100123), key.ChatID)
	assert.Equal(t, "2026-03-15|-100123|ABA", key.String())

	assert.Equal(t, civil.Date{Year: 2026, Month: 3, Day: 14}, BucketKeyFor(record, time.UTC).Date)
}

func TestRangeQuery(t *testing.T) {
	chat := int64(42)
	method := "Cash"
	q := RangeQuery{
		From:          civil.Date{Year: 2026, Month: 2, Day: 27},
		To:            civil.Date{Year: 2026, Month: 3, Day: 2},
		ChatID:        &chat,
		PaymentMethod: &method,
	}

	require.NoError(t, q.Validate())
	assert.Len(t, q.Dates(), 4)
	assert.Equal(t, civil.Date{Year: 2026, Month: 3, Day: 1}, q.Dates()[2])

	assert.True(t, q.Matches(BucketKey{Date: q.From, ChatID: 42, PaymentMethod: "Cash"}))
	assert.False(t, q.Matches(BucketKey{Date: q.From, ChatID: 43, PaymentMethod: "Cash"}))
	assert.False(t, q.Matches(BucketKey{Date: q.From, ChatID: 42, PaymentMethod: "ABA"}))
	assert.False(t, q.Matches(BucketKey{Date: q.To.AddDays(1), ChatID: 42, PaymentMethod: "Cash"}))

	inverted := RangeQuery{From: q.To, To: q.From}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidRange)
	assert.ErrorIs(t, RangeQuery{}.Validate(), ErrInvalidRange)
}

func TestStoreError_Is(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("append failed: %w", StoreError{Op: "write bucket", Err: cause})

	assert.ErrorIs(t, err, StoreError{})
	assert.ErrorIs(t, err, StoreError{Op: "write bucket"})
	assert.NotErrorIs(t, err, StoreError{Op: "read bucket"})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ledger store error: write bucket: disk full")
}
