// Package postgres stores crawl checkpoints and results in PostgreSQL.
package postgres

import (
	"context"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/google/uuid"
)

// Store is a store.CrawlStore over the checkpoint and run repositories.
type Store struct {
	db          *DB
	checkpoints *CheckpointRepo
	runs        *RunRepo
}

var _ store.CrawlStore = (*Store)(nil)

// Open connects, applies migrations and returns a ready store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

func NewStore(db *DB) *Store {
	return &Store{
		db:          db,
		checkpoints: NewCheckpointRepo(db),
		runs:        NewRunRepo(db),
	}
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	return s.checkpoints.Upsert(ctx, cp)
}

func (s *Store) LatestCheckpoint(ctx context.Context, target model.Address) (*model.Checkpoint, error) {
	return s.checkpoints.Latest(ctx, target)
}

func (s *Store) SaveResult(ctx context.Context, run store.RunRecord) error {
	return s.runs.Save(ctx, run)
}

func (s *Store) LoadResult(ctx context.Context, runID uuid.UUID) (model.CrawlResult, error) {
	return s.runs.Load(ctx, runID)
}

func (s *Store) LoadRun(ctx context.Context, runID uuid.UUID) (*store.RunRecord, error) {
	return s.runs.Get(ctx, runID)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *Store) DB() *DB {
	return s.db
}
