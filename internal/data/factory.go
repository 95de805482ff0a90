// Package data opens the ledger backend selected by configuration.
package data

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aplus-bot/aplus-telegram-bot/internal/config"
	"github.com/aplus-bot/aplus-telegram-bot/internal/data/file"
	"github.com/aplus-bot/aplus-telegram-bot/internal/data/mongo"
	"github.com/aplus-bot/aplus-telegram-bot/internal/data/postgres"
	"github.com/aplus-bot/aplus-telegram-bot/internal/domain/ledger"
	"github.com/aplus-bot/aplus-telegram-bot/internal/platform/persistence"
)

// Store is an opened ledger backend together with its release function
type Store struct {
	Repository ledger.Repository
	Close      func(ctx context.Context) error
}

// OpenLedger connects to the configured backend and returns a ready repository
func OpenLedger(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*Store, error) {
	loc := cfg.Ledger.Location
	logger = logger.With("backend", cfg.Ledger.Backend)

	switch cfg.Ledger.Backend {
	case config.BackendFile:
		repo, err := file.NewLedgerRepository(logger, cfg.Ledger.Dir, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to open file ledger: %w", err)
		}
		return &Store{
			Repository: repo,
			Close:      func(context.Context) error { return nil },
		}, nil

	case config.BackendPostgres:
		db, err := persistence.NewPostgresDB(ctx, logger, &cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres ledger: %w", err)
		}
		return &Store{
			Repository: postgres.NewLedgerRepository(logger, db, loc),
			Close: func(context.Context) error {
				db.Close()
				return nil
			},
		}, nil

	case config.BackendMongo:
		db, err := persistence.NewMongoDB(ctx, logger, &cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo ledger: %w", err)
		}
		repo := mongo.NewLedgerRepository(logger, db.Database(), loc)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return &Store{
			Repository: repo,
			Close:      db.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
}
