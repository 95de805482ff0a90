package mongo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
)

func TestNewLedgerRepository(t *testing.T) {
	db := &mongo.Database{}
	logger := slog.Default()

	repo := NewLedgerRepository(logger, db, time.UTC)

	assert.NotNil(t, repo)
	assert.NotNil(t, repo.locks)
	assert.Equal(t, time.UTC, repo.loc)
}

func TestLedgerRepository_ValidationBeforeStorage(t *testing.T) {
	// A zero Database would panic on use, so reaching it would fail the test
	repo := NewLedgerRepository(slog.Default(), &mongo.Database{}, time.UTC)

	_, err := repo.Append(context.Background(), &invoice.Record{ChatID: 1})
	assert.ErrorIs(t, err, &invoice.ValidationError{})

	_, err = repo.RangeQuery(context.Background(), ledger.RangeQuery{})
	assert.ErrorIs(t, err, ledger.ErrInvalidRange)
}

func TestDocumentMapping(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	record := invoice.NewRecord(
		invoice.Candidate{InvoiceID: "3001", USDCents: 250, Riel: 1000, PaymentMethod: "Wing"},
		-100,
		invoice.UserSender(9, "Sokha"),
		time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC),
		"msg:-100:5#0",
	)
	key := ledger.BucketKeyFor(record, loc)

	doc := toDocument(record, key, 33)
	assert.Equal(t, "2024-05-02", doc.BucketDate)
	assert.Equal(t, int64(33), doc.Seq)
	assert.False(t, doc.CreatedAt.IsZero())

	// Round trip through BSON as the driver would
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded recordDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	back := fromDocument(&decoded)
	assert.Equal(t, int64(33), back.Seq)
	assert.Equal(t, record.DedupKey, back.DedupKey)
	assert.Equal(t, record.Sender, back.Sender)
	assert.Equal(t, record.PaymentMethod, back.PaymentMethod)
	assert.Equal(t, record.USDCents, back.USDCents)
	assert.Equal(t, record.Riel, back.Riel)
	assert.True(t, record.OccurredAt.Equal(back.OccurredAt))
}

func TestRangeFilter(t *testing.T) {
	from := civil.Date{Year: 2024, Month: 5, Day: 1}
	to := civil.Date{Year: 2024, Month: 5, Day: 7}
	chat := int64(-100)
	method := "ABA"

	tests := []struct {
		name     string
		query    ledger.RangeQuery
		expected bson.M
	}{
		{
			name:  "dates only",
			query: ledger.RangeQuery{From: from, To: to},
			expected: bson.M{
				"bucket_date": bson.M{"$gte": "2024-05-01", "$lte": "2024-05-07"},
			},
		},
		{
			name:  "chat and method",
			query: ledger.RangeQuery{From: from, To: to, ChatID: &chat, PaymentMethod: &method},
			expected: bson.M{
				"bucket_date":    bson.M{"$gte": "2024-05-01", "$lte": "2024-05-07"},
				"chat_id":        int64(-100),
				"payment_method": "ABA",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, rangeFilter(tt.query))
		})
	}
}
