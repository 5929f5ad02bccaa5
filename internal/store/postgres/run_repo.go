package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type RunRepo struct {
	db *DB
}

func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save replaces the run row and its extracted accounts atomically.
func (r *RunRepo) Save(ctx context.Context, run store.RunRecord) error {
	summary, err := store.EncodeSummary(run.Summary)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, LongQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (run_id, target, summary, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			finished_at = EXCLUDED.finished_at
	`, run.RunID, run.Target.String(), string(summary), run.StartedAt, run.FinishedAt); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_accounts WHERE run_id = $1`, run.RunID); err != nil {
		return fmt.Errorf("clear run accounts: %w", err)
	}

	labels, ordinals, addrs := flattenAccounts(run.Accounts)
	if len(labels) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO crawl_accounts (run_id, label, ordinal, address)
			SELECT $1, l, o, a
			FROM unnest($2::varchar[], $3::int[], $4::varchar[]) AS t(l, o, a)
		`, run.RunID, pq.Array(labels), pq.Array(ordinals), pq.Array(addrs)); err != nil {
			return fmt.Errorf("insert run accounts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Get reads back a run and its accounts, or nil when the run is unknown.
func (r *RunRepo) Get(ctx context.Context, runID uuid.UUID) (*store.RunRecord, error) {
	run := store.RunRecord{RunID: runID}
	var (
		target  string
		summary []byte
	)
	err := func() error {
		ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
		defer cancel()
		return r.db.QueryRowContext(ctx, `
			SELECT target, summary, started_at, finished_at
			FROM crawl_runs
			WHERE run_id = $1
		`, runID).Scan(&target, &summary, &run.StartedAt, &run.FinishedAt)
	}()
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if run.Target, err = model.ParseAddress(target); err != nil {
		return nil, fmt.Errorf("parse run target: %w", err)
	}
	if run.Summary, err = store.DecodeSummary(summary); err != nil {
		return nil, err
	}
	if run.Accounts, err = r.Load(ctx, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// Load reads back a run's accounts in label then discovery order.
func (r *RunRepo) Load(ctx context.Context, runID uuid.UUID) (model.CrawlResult, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT label, address FROM crawl_accounts
		WHERE run_id = $1
		ORDER BY label, ordinal
	`, runID)
	if err != nil {
		return model.CrawlResult{}, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	res := model.NewCrawlResult(nil)
	for rows.Next() {
		var label, raw string
		if err := rows.Scan(&label, &raw); err != nil {
			return model.CrawlResult{}, fmt.Errorf("scan account: %w", err)
		}
		addr, err := model.ParseAddress(raw)
		if err != nil {
			return model.CrawlResult{}, fmt.Errorf("parse account %q: %w", raw, err)
		}
		if _, ok := res.Accounts[label]; !ok {
			res.Labels = append(res.Labels, label)
		}
		res.Accounts[label] = append(res.Accounts[label], addr)
	}
	if err := rows.Err(); err != nil {
		return model.CrawlResult{}, fmt.Errorf("iterate accounts: %w", err)
	}
	return res, nil
}

func flattenAccounts(res model.CrawlResult) (labels []string, ordinals []int64, addrs []string) {
	for _, label := range res.Labels {
		for i, addr := range res.Get(label) {
			labels = append(labels, label)
			ordinals = append(ordinals, int64(i))
			addrs = append(addrs, addr.String())
		}
	}
	return labels, ordinals, addrs
}
