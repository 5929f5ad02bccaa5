package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
	"github.com/google/uuid"
)

// CrawlStore persists checkpoints and runs. SaveCheckpoint also keeps the
// run row current and appends the checkpoint's new addresses to it, so a run
// that never reaches SaveResult can still be continued. LatestCheckpoint and
// LoadRun return nil, nil when nothing is stored.
type CrawlStore interface {
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	LatestCheckpoint(ctx context.Context, target model.Address) (*model.Checkpoint, error)
	SaveResult(ctx context.Context, run RunRecord) error
	LoadRun(ctx context.Context, runID uuid.UUID) (*RunRecord, error)
	Close() error
}

// RunRecord is a crawl as it is stored. Accounts are in discovery order,
// newest first.
type RunRecord struct {
	RunID      uuid.UUID
	Target     model.Address
	Accounts   model.CrawlResult
	Summary    model.Summary
	StartedAt  time.Time
	FinishedAt time.Time
}

// EncodeSummary serializes a summary for a text/json column.
func EncodeSummary(s model.Summary) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return b, nil
}

// DecodeSummary is the inverse of EncodeSummary.
func DecodeSummary(b []byte) (model.Summary, error) {
	var s model.Summary
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode summary: %w", err)
	}
	return s, nil
}

// Instrumented wraps a store with write metrics labelled by backend.
type Instrumented struct {
	CrawlStore
	backend string
}

func Instrument(s CrawlStore, backend string) *Instrumented {
	return &Instrumented{CrawlStore: s, backend: backend}
}

func (i *Instrumented) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	if err := i.CrawlStore.SaveCheckpoint(ctx, cp); err != nil {
		metrics.StoreErrors.WithLabelValues(i.backend, "save_checkpoint").Inc()
		return err
	}
	metrics.StoreCheckpointsWritten.WithLabelValues(i.backend).Inc()
	return nil
}

func (i *Instrumented) SaveResult(ctx context.Context, run RunRecord) error {
	if err := i.CrawlStore.SaveResult(ctx, run); err != nil {
		metrics.StoreErrors.WithLabelValues(i.backend, "save_result").Inc()
		return err
	}
	return nil
}
