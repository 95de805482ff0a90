package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/keylock"
)

const (
	// RecordsCollectionName is the name of the invoice records collection in MongoDB
	RecordsCollectionName = "invoice_records"
	// CountersCollectionName holds the sequence counter documents
	CountersCollectionName = "counters"

	recordsCounterID = "invoice_records"
)

// recordDocument is the stored form of one invoice record. Bucket fields are
// denormalized so that range queries never need the ledger time zone.
type recordDocument struct {
	Seq           int64          `bson:"seq"`
	DedupKey      string         `bson:"dedup_key"`
	BucketDate    string         `bson:"bucket_date"`
	ChatID        int64          `bson:"chat_id"`
	PaymentMethod string         `bson:"payment_method"`
	InvoiceID     string         `bson:"invoice_id,omitempty"`
	USDCents      int64          `bson:"usd_cents"`
	Riel          int64          `bson:"riel"`
	Sender        invoice.Sender `bson:"sender"`
	OccurredAt    time.Time      `bson:"occurred_at"`
	CreatedAt     time.Time      `bson:"created_at"`
}

// LedgerRepository implements the ledger.Repository interface for MongoDB
type LedgerRepository struct {
	db     *mongo.Database
	loc    *time.Location
	locks  *keylock.Locker
	logger *slog.Logger
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new MongoDB ledger repository
func NewLedgerRepository(logger *slog.Logger, db *mongo.Database, loc *time.Location) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		loc:    loc,
		locks:  keylock.New(),
		logger: logger,
	}
}

// EnsureIndexes creates the unique dedup index and the bucket lookup index
func (r *LedgerRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(RecordsCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "dedup_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "bucket_date", Value: 1},
				{Key: "chat_id", Value: 1},
				{Key: "payment_method", Value: 1},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice record indexes: %w", err)
	}
	return nil
}

// Append stores the record unless its dedup key is already present.
// Writers to the same bucket are serialized within this process; the unique
// dedup index guards against other processes.
func (r *LedgerRepository) Append(ctx context.Context, record *invoice.Record) (ledger.AppendResult, error) {
	if err := record.Validate(); err != nil {
		return ledger.AppendResult{}, err
	}

	key := ledger.BucketKeyFor(record, r.loc)

	unlock, err := r.locks.Lock(ctx, key.String())
	if err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}
	defer unlock()

	seq, found, err := r.seqByDedupKey(ctx, record.DedupKey)
	if err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}
	if found {
		return ledger.AppendResult{Seq: seq, Duplicate: true}, nil
	}

	seq, err = r.nextSeq(ctx)
	if err != nil {
		r.logger.Error("Failed to allocate sequence number", "error", err)
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}

	doc := toDocument(record, key, seq)
	if _, err := r.db.Collection(RecordsCollectionName).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, found, lookupErr := r.seqByDedupKey(ctx, record.DedupKey)
			if lookupErr == nil && found {
				return ledger.AppendResult{Seq: existing, Duplicate: true}, nil
			}
		}
		r.logger.Error("Failed to insert invoice record",
			"dedup_key", record.DedupKey,
			"bucket", key.String(),
			"error", err)
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}

	record.Seq = seq
	return ledger.AppendResult{Seq: seq}, nil
}

// RangeQuery returns the matching records ordered by sequence number
func (r *LedgerRepository) RangeQuery(ctx context.Context, query ledger.RangeQuery) ([]*invoice.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := r.db.Collection(RecordsCollectionName).Find(ctx, rangeFilter(query), opts)
	if err != nil {
		r.logger.Error("Failed to query invoice records",
			"from", query.From.String(),
			"to", query.To.String(),
			"error", err)
		return nil, ledger.StoreError{Op: "range_query", Err: err}
	}
	defer cursor.Close(ctx)

	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode invoice records", "error", err)
		return nil, ledger.StoreError{Op: "range_query", Err: err}
	}

	records := make([]*invoice.Record, 0, len(docs))
	for i := range docs {
		records = append(records, fromDocument(&docs[i]))
	}
	return records, nil
}

func (r *LedgerRepository) seqByDedupKey(ctx context.Context, dedupKey string) (int64, bool, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}

	opts := options.FindOne().SetProjection(bson.M{"seq": 1})
	err := r.db.Collection(RecordsCollectionName).FindOne(ctx, bson.M{"dedup_key": dedupKey}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up dedup key: %w", err)
	}
	return doc.Seq, true, nil
}

func (r *LedgerRepository) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	err := r.db.Collection(CountersCollectionName).FindOneAndUpdate(ctx,
		bson.M{"_id": recordsCounterID},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence counter: %w", err)
	}
	return counter.Value, nil
}

func rangeFilter(query ledger.RangeQuery) bson.M {
	filter := bson.M{
		// ISO dates order lexicographically
		"bucket_date": bson.M{
			"$gte": query.From.String(),
			"$lte": query.To.String(),
		},
	}
	if query.ChatID != nil {
		filter["chat_id"] = *query.ChatID
	}
	if query.PaymentMethod != nil {
		filter["payment_method"] = *query.PaymentMethod
	}
	return filter
}

func toDocument(record *invoice.Record, key ledger.BucketKey, seq int64) *recordDocument {
	return &recordDocument{
		Seq:           seq,
		DedupKey:      record.DedupKey,
		BucketDate:    key.Date.String(),
		ChatID:        record.ChatID,
		PaymentMethod: record.PaymentMethod,
		InvoiceID:     record.InvoiceID,
		USDCents:      record.USDCents,
		Riel:          record.Riel,
		Sender:        record.Sender,
		OccurredAt:    record.OccurredAt,
		CreatedAt:     time.Now().UTC(),
	}
}

func fromDocument(doc *recordDocument) *invoice.Record {
	return &invoice.Record{
		Seq:           doc.Seq,
		DedupKey:      doc.DedupKey,
		InvoiceID:     doc.InvoiceID,
		USDCents:      doc.USDCents,
		Riel:          doc.Riel,
		ChatID:        doc.ChatID,
		Sender:        doc.Sender,
		PaymentMethod: doc.PaymentMethod,
		OccurredAt:    doc.OccurredAt,
	}
}
