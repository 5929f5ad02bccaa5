package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/lib/pq"
)

type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Upsert writes the checkpoint, refreshes the run row from it and appends
// cp.Appended to the run's accounts, all in one transaction.
func (r *CheckpointRepo) Upsert(ctx context.Context, cp model.Checkpoint) error {
	summary, err := store.EncodeSummary(cp.Summary)
	if err != nil {
		return err
	}
	var lastSig sql.NullString
	if cp.LastSignature != nil {
		lastSig = sql.NullString{String: cp.LastSignature.String(), Valid: true}
	}
	var updatedAt, startedAt sql.NullTime
	if !cp.UpdatedAt.IsZero() {
		updatedAt = sql.NullTime{Time: cp.UpdatedAt, Valid: true}
	}
	if !cp.StartedAt.IsZero() {
		startedAt = sql.NullTime{Time: cp.StartedAt, Valid: true}
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_checkpoints (run_id, target, last_signature, summary, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (run_id, target) DO UPDATE SET
			last_signature = EXCLUDED.last_signature,
			summary = EXCLUDED.summary,
			updated_at = EXCLUDED.updated_at
	`, cp.RunID, cp.Target.String(), lastSig, string(summary), updatedAt); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (run_id, target, summary, started_at, finished_at)
		VALUES ($1, $2, $3, COALESCE($4, $5, now()), COALESCE($5, now()))
		ON CONFLICT (run_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			finished_at = EXCLUDED.finished_at
	`, cp.RunID, cp.Target.String(), string(summary), startedAt, updatedAt); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if len(cp.Appended) > 0 {
		labels := make([]string, len(cp.Appended))
		addrs := make([]string, len(cp.Appended))
		for i, a := range cp.Appended {
			labels[i] = a.Label
			addrs[i] = a.Address.String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO crawl_accounts (run_id, label, ordinal, address)
			SELECT $1, t.l,
				COALESCE((SELECT MAX(c.ordinal) FROM crawl_accounts c WHERE c.run_id = $1 AND c.label = t.l), -1)
					+ ROW_NUMBER() OVER (PARTITION BY t.l ORDER BY t.n),
				t.a
			FROM unnest($2::varchar[], $3::varchar[]) WITH ORDINALITY AS t(l, a, n)
		`, cp.RunID, pq.Array(labels), pq.Array(addrs)); err != nil {
			return fmt.Errorf("append run accounts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Latest(ctx context.Context, target model.Address) (*model.Checkpoint, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	cp := model.Checkpoint{Target: target}
	var (
		lastSig sql.NullString
		summary []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT run_id, last_signature, summary, updated_at
		FROM crawl_checkpoints
		WHERE target = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, target.String()).Scan(&cp.RunID, &lastSig, &summary, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	if lastSig.Valid {
		sig, err := model.ParseSignature(lastSig.String)
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint signature: %w", err)
		}
		cp.LastSignature = &sig
	}
	if cp.Summary, err = store.DecodeSummary(summary); err != nil {
		return nil, err
	}
	return &cp, nil
}
