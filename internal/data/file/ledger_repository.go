// Package file provides a ledger.Repository that keeps one JSON document per
// bucket on the local filesystem. A bucket file is always replaced atomically,
// so readers observe either the previous or the next complete state.
package file

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/renameio/v2"

	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/invoice"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/keylock"
)

const bucketExt = ".json"

// bucketFile is the on-disk layout of a single bucket
type bucketFile struct {
	Date          string            `json:"date"`
	ChatID        int64             `json:"chat_id"`
	PaymentMethod string            `json:"payment_method"`
	Records       []*invoice.Record `json:"records"`
}

// LedgerRepository implements the ledger.Repository interface on top of a directory
type LedgerRepository struct {
	dir    string
	loc    *time.Location
	logger *slog.Logger

	buckets *keylock.Locker
	keys    *keylock.Locker

	mu    sync.RWMutex
	index map[string]int64 // dedup key -> seq
	seq   atomic.Int64
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// NewLedgerRepository opens the ledger rooted at dir, creating it if needed,
// and rebuilds the dedup index and sequence counter from the stored buckets.
func NewLedgerRepository(logger *slog.Logger, dir string, loc *time.Location) (*LedgerRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ledger.StoreError{Op: "open", Err: err}
	}

	r := &LedgerRepository{
		dir:     dir,
		loc:     loc,
		logger:  logger.With("component", "file_ledger"),
		buckets: keylock.New(),
		keys:    keylock.New(),
		index:   make(map[string]int64),
	}

	if err := r.rebuildIndex(); err != nil {
		return nil, ledger.StoreError{Op: "open", Err: err}
	}

	r.logger.Info("Opened file ledger",
		"dir", dir,
		"records", len(r.index),
		"last_seq", r.seq.Load())

	return r, nil
}

func (r *LedgerRepository) rebuildIndex() error {
	return filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), bucketExt) {
			return nil
		}

		bucket, err := r.readBucket(path)
		if err != nil {
			return err
		}
		if bucket == nil {
			return nil
		}

		for _, rec := range bucket.Records {
			r.index[rec.DedupKey] = rec.Seq
			if rec.Seq > r.seq.Load() {
				r.seq.Store(rec.Seq)
			}
		}
		return nil
	})
}

// Append stores the record in its bucket. The bucket file is rewritten in
// full and atomically renamed into place before Append returns.
func (r *LedgerRepository) Append(ctx context.Context, record *invoice.Record) (ledger.AppendResult, error) {
	if err := record.Validate(); err != nil {
		return ledger.AppendResult{}, err
	}

	key := ledger.BucketKeyFor(record, r.loc)

	unlockBucket, err := r.buckets.Lock(ctx, key.String())
	if err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}
	defer unlockBucket()

	// A dedup key could in principle target another bucket, so it is locked on its own
	unlockKey, err := r.keys.Lock(ctx, record.DedupKey)
	if err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}
	defer unlockKey()

	if seq, ok := r.lookup(record.DedupKey); ok {
		r.logger.Debug("Duplicate record ignored",
			"dedup_key", record.DedupKey,
			"seq", seq)
		return ledger.AppendResult{Seq: seq, Duplicate: true}, nil
	}

	path := r.bucketPath(key)
	bucket, err := r.readBucket(path)
	if err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}
	if bucket == nil {
		bucket = &bucketFile{
			Date:          key.Date.String(),
			ChatID:        key.ChatID,
			PaymentMethod: key.PaymentMethod,
		}
	}

	stored := *record
	stored.Seq = r.seq.Add(1)
	bucket.Records = append(bucket.Records, &stored)

	data, err := json.Marshal(bucket)
	if err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}

	// Last point at which the caller can still abandon the write
	if err := ctx.Err(); err != nil {
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.logger.Error("Failed to create bucket directory", "bucket", key.String(), "error", err)
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		r.logger.Error("Failed to write bucket", "bucket", key.String(), "error", err)
		return ledger.AppendResult{}, ledger.StoreError{Op: "append", Err: err}
	}

	r.mu.Lock()
	r.index[record.DedupKey] = stored.Seq
	r.mu.Unlock()

	record.Seq = stored.Seq
	return ledger.AppendResult{Seq: stored.Seq}, nil
}

// RangeQuery scans the date directories covered by the query. It takes no
// locks; bucket files are only ever replaced whole.
func (r *LedgerRepository) RangeQuery(ctx context.Context, query ledger.RangeQuery) ([]*invoice.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	var records []*invoice.Record
	for _, date := range query.Dates() {
		if err := ctx.Err(); err != nil {
			return nil, ledger.StoreError{Op: "range_query", Err: err}
		}

		entries, err := os.ReadDir(filepath.Join(r.dir, date.String()))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			r.logger.Error("Failed to list buckets", "date", date.String(), "error", err)
			return nil, ledger.StoreError{Op: "range_query", Err: err}
		}

		for _, entry := range entries {
			key, ok := parseBucketName(date, entry.Name())
			if !ok || !query.Matches(key) {
				continue
			}

			bucket, err := r.readBucket(filepath.Join(r.dir, date.String(), entry.Name()))
			if err != nil {
				return nil, ledger.StoreError{Op: "range_query", Err: err}
			}
			if bucket != nil {
				records = append(records, bucket.Records...)
			}
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})

	return records, nil
}

func (r *LedgerRepository) lookup(dedupKey string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.index[dedupKey]
	return seq, ok
}

// readBucket returns nil without error when the file is missing or corrupt
func (r *LedgerRepository) readBucket(path string) (*bucketFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read bucket %s: %w", path, err)
	}

	var bucket bucketFile
	if err := json.Unmarshal(data, &bucket); err != nil {
		r.logger.Warn("Corrupt bucket file treated as empty",
			"path", path,
			"error", err)
		return nil, nil
	}

	return &bucket, nil
}

func (r *LedgerRepository) bucketPath(key ledger.BucketKey) string {
	name := strconv.FormatInt(key.ChatID, 10) + "_" +
		base64.RawURLEncoding.EncodeToString([]byte(key.PaymentMethod)) + bucketExt
	return filepath.Join(r.dir, key.Date.String(), name)
}

func parseBucketName(date civil.Date, name string) (ledger.BucketKey, bool) {
	if !strings.HasSuffix(name, bucketExt) {
		return ledger.BucketKey{}, false
	}

	chat, method, ok := strings.Cut(strings.TrimSuffix(name, bucketExt), "_")
	if !ok {
		return ledger.BucketKey{}, false
	}

	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return ledger.BucketKey{}, false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(method)
	if err != nil {
		return ledger.BucketKey{}, false
	}

	return ledger.BucketKey{Date: date, ChatID: chatID, PaymentMethod: string(decoded)}, true
}
