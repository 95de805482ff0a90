package ledger

import (
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
)

// BucketKey identifies the storage unit holding all records of one chat and
// payment method on one calendar day
type BucketKey struct {
	Date          civil.Date
	ChatID        int64
	PaymentMethod string
}

// BucketKeyFor returns the bucket a record belongs to, bucketing OccurredAt
// into a calendar day in loc
func BucketKeyFor(record *invoice.Record, loc *time.Location) BucketKey {
	return BucketKey{
		Date:          civil.DateOf(record.OccurredAt.In(loc)),
		ChatID:        record.ChatID,
		PaymentMethod: record.PaymentMethod,
	}
}

// String returns a stable textual form usable as a lock or hash key
func (k BucketKey) String() string {
	return k.Date.String() + "|" + strconv.FormatInt(k.ChatID, 10) + "|" + k.PaymentMethod
}

// RangeQuery selects records across an inclusive range of calendar dates,
// optionally restricted to one chat and/or one payment method
type RangeQuery struct {
	From          civil.Date
	To            civil.Date
	ChatID        *int64
	PaymentMethod *string
}

// Validate checks that the range is well formed
func (q RangeQuery) Validate() error {
	if !q.From.IsValid() || !q.To.IsValid() {
		return ErrInvalidRange
	}
	if q.To.Before(q.From) {
		return ErrInvalidRange
	}
	return nil
}

// Matches reports whether a bucket falls inside the query
func (q RangeQuery) Matches(key BucketKey) bool {
	if key.Date.Before(q.From) || key.Date.After(q.To) {
		return false
	}
	if q.ChatID != nil && *q.ChatID != key.ChatID {
		return false
	}
	if q.PaymentMethod != nil && *q.PaymentMethod != key.PaymentMethod {
		return false
	}
	return true
}

// Dates returns every calendar date covered by the query in ascending order
func (q RangeQuery) Dates() []civil.Date {
	var dates []civil.Date
	for d := q.From; !d.After(q.To); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}
