package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/persistence"
)

const (
	lockBucketQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

	insertRecordQuery = `
		INSERT INTO invoice_records (dedup_key, bucket_date, chat_id, payment_method, invoice_id, usd_cents, riel, sender_kind, sender_id, sender_name, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING seq
	`

	selectSeqByDedupKeyQuery = `SELECT seq FROM invoice_records WHERE dedup_key = $1`

	rangeQuery = `
		SELECT seq, dedup_key, invoice_id, usd_cents, riel, chat_id, sender_kind, sender_id, sender_name, payment_method, occurred_at
		FROM invoice_records
		WHERE bucket_date BETWEEN $1 AND $2
			AND ($3::bigint IS NULL OR chat_id = $3)
			AND ($4::text IS NULL OR payment_method = $4)
		ORDER BY seq
	`
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	pool   persistence.Pool
	loc    *time.Location
	logger *slog.Logger
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new PostgreSQL ledger repository.
// Records are bucketed by their calendar date in loc.
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB, loc *time.Location) *LedgerRepository {
	return &LedgerRepository{
		pool:   db.Pool(),
		loc:    loc,
		logger: logger,
	}
}

// Append inserts the record inside a transaction that holds an advisory lock on
// its bucket. A conflicting dedup key resolves to the sequence number of the row
// already stored.
func (r *LedgerRepository) Append(ctx context.Context, record *invoice.Record) (ledger.AppendResult, error) {
	if err := record.Validate(); err != nil {
		return ledger.AppendResult{}, err
	}

	key := ledger.BucketKeyFor(record, r.loc)
	var result ledger.AppendResult

	err := persistence.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, lockBucketQuery, key.String()); err != nil {
			return fmt.Errorf("failed to lock bucket: %w", err)
		}

		err := tx.QueryRow(ctx, insertRecordQuery,
			record.DedupKey,
			dateValue(key.Date),
			record.ChatID,
			record.PaymentMethod,
			record.InvoiceID,
			record.USDCents,
			record.Riel,
			string(record.Sender.Kind),
			record.Sender.UserID,
			record.Sender.DisplayName,
			record.OccurredAt,
		).Scan(&result.Seq)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to insert invoice record: %w", err)
		}

		// ON CONFLICT DO NOTHING returns no row for an existing dedup key
		if err := tx.QueryRow(ctx, selectSeqByDedupKeyQuery, record.DedupKey).Scan(&result.Seq); err != nil {
			return fmt.Errorf("failed to load existing invoice record: %w", err)
		}
		result.Duplicate = true
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to append invoice record",
			"dedup_key", record.DedupKey,
			"bucket", key.String(),
			"error", err)
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}

	if result.Duplicate {
		r.logger.Debug("Duplicate record ignored", "dedup_key", record.DedupKey, "seq", result.Seq)
	} else {
		record.Seq = result.Seq
	}

	return result, nil
}

// RangeQuery returns the matching records ordered by sequence number
func (r *LedgerRepository) RangeQuery(ctx context.Context, query ledger.RangeQuery) ([]*invoice.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, rangeQuery,
		dateValue(query.From),
		dateValue(query.To),
		query.ChatID,
		query.PaymentMethod,
	)
	if err != nil {
		r.logger.Error("Failed to query invoice records", "error", err)
		return nil, ledger.StoreError{Op: "range_query", Err: err}
	}
	defer rows.Close()

	var records []*invoice.Record
	for rows.Next() {
		var rec invoice.Record
		var kind string
		if err := rows.Scan(
			&rec.Seq,
			&rec.DedupKey,
			&rec.InvoiceID,
			&rec.USDCents,
			&rec.Riel,
			&rec.ChatID,
			&kind,
			&rec.Sender.UserID,
			&rec.Sender.DisplayName,
			&rec.PaymentMethod,
			&rec.OccurredAt,
		); err != nil {
			r.logger.Error("Failed to scan invoice record", "error", err)
			return nil, ledger.StoreError{Op: "range_query", Err: err}
		}
		rec.Sender.Kind = invoice.SenderKind(kind)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, ledger.StoreError{Op: "range_query", Err: err}
	}

	return records, nil
}

// dateValue maps a calendar date onto the time.Time pgx encodes as DATE
func dateValue(d civil.Date) time.Time {
	return d.In(time.UTC)
}
