// Package sqlite stores crawl checkpoints and results in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adrg/xdg"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/google/uuid"
)

const (
	AppName = "solana-tx-crawler"
	dbFile  = "crawler.db"
)

// DefaultDir is the XDG data directory used when no directory is configured.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database file.
	CreateIfNotExists bool
	EnableWAL         bool
}

func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Store is a store.CrawlStore backed by SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	nowFn  func() time.Time
}

var _ store.CrawlStore = (*Store)(nil)

// Open opens or creates the crawler database inside dir. An empty dir means
// DefaultDir().
func Open(dir string, opts Options) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	dbPath := filepath.Join(dir, dbFile)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("stat database %s: %w", dbPath, err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db, dbPath: dbPath, nowFn: time.Now}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawl_checkpoints (
		run_id TEXT NOT NULL,
		target TEXT NOT NULL,
		last_signature TEXT,
		summary TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, target)
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_target ON crawl_checkpoints(target, updated_at);

	CREATE TABLE IF NOT EXISTS crawl_runs (
		run_id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		summary TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS crawl_accounts (
		run_id TEXT NOT NULL,
		label TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		address TEXT NOT NULL,
		PRIMARY KEY (run_id, label, ordinal)
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCheckpoint upserts the checkpoint for (run, target) and, in the same
// transaction, brings the run row up to date and appends cp.Appended to the
// run's accounts.
func (s *Store) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	summary, err := store.EncodeSummary(cp.Summary)
	if err != nil {
		return err
	}
	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.nowFn()
	}
	startedAt := cp.StartedAt
	if startedAt.IsZero() {
		startedAt = updatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	runID := cp.RunID.String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_checkpoints (run_id, target, last_signature, summary, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, target) DO UPDATE SET
			last_signature = excluded.last_signature,
			summary = excluded.summary,
			updated_at = excluded.updated_at
	`, runID, cp.Target.String(), signatureValue(cp.LastSignature), string(summary), updatedAt.UnixNano()); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (run_id, target, summary, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			summary = excluded.summary,
			finished_at = excluded.finished_at
	`, runID, cp.Target.String(), string(summary), startedAt.UnixNano(), updatedAt.UnixNano()); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if err := appendAccounts(ctx, tx, runID, cp.Appended); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// appendAccounts adds addrs after the accounts already stored for the run,
// continuing each label's ordinals.
func appendAccounts(ctx context.Context, tx *sql.Tx, runID string, addrs []model.LabeledAddress) error {
	if len(addrs) == 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT label, MAX(ordinal) FROM crawl_accounts
		WHERE run_id = ?
		GROUP BY label
	`, runID)
	if err != nil {
		return fmt.Errorf("query account ordinals: %w", err)
	}
	next := make(map[string]int)
	for rows.Next() {
		var (
			label string
			last  int
		)
		if err := rows.Scan(&label, &last); err != nil {
			rows.Close()
			return fmt.Errorf("scan account ordinal: %w", err)
		}
		next[label] = last + 1
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate account ordinals: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crawl_accounts (run_id, label, ordinal, address) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare account insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range addrs {
		ordinal := next[a.Label]
		if _, err := stmt.ExecContext(ctx, runID, a.Label, ordinal, a.Address.String()); err != nil {
			return fmt.Errorf("insert account %s[%d]: %w", a.Label, ordinal, err)
		}
		next[a.Label] = ordinal + 1
	}
	return nil
}

// LatestCheckpoint returns the most recently written checkpoint for target.
func (s *Store) LatestCheckpoint(ctx context.Context, target model.Address) (*model.Checkpoint, error) {
	var (
		runID     string
		lastSig   sql.NullString
		summary   string
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, last_signature, summary, updated_at
		FROM crawl_checkpoints
		WHERE target = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, target.String()).Scan(&runID, &lastSig, &summary, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	cp := model.Checkpoint{Target: target, UpdatedAt: time.Unix(0, updatedAt).UTC()}
	if cp.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("parse checkpoint run id: %w", err)
	}
	if lastSig.Valid {
		sig, err := model.ParseSignature(lastSig.String)
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint signature: %w", err)
		}
		cp.LastSignature = &sig
	}
	if cp.Summary, err = store.DecodeSummary([]byte(summary)); err != nil {
		return nil, err
	}
	return &cp, nil
}

// SaveResult writes the run and its extracted addresses in one transaction.
// Saving the same run twice replaces the earlier rows.
func (s *Store) SaveResult(ctx context.Context, run store.RunRecord) error {
	summary, err := store.EncodeSummary(run.Summary)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	runID := run.RunID.String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (run_id, target, summary, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			summary = excluded.summary,
			finished_at = excluded.finished_at
	`, runID, run.Target.String(), string(summary), run.StartedAt.UnixNano(), run.FinishedAt.UnixNano()); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_accounts WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear run accounts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crawl_accounts (run_id, label, ordinal, address) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare account insert: %w", err)
	}
	defer stmt.Close()

	for _, label := range run.Accounts.Labels {
		for i, addr := range run.Accounts.Get(label) {
			if _, err := stmt.ExecContext(ctx, runID, label, i, addr.String()); err != nil {
				return fmt.Errorf("insert account %s[%d]: %w", label, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// LoadRun reads back a run and its addresses. It returns nil, nil when the
// run has never been stored.
func (s *Store) LoadRun(ctx context.Context, runID uuid.UUID) (*store.RunRecord, error) {
	var (
		target     string
		summary    string
		startedAt  int64
		finishedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT target, summary, started_at, finished_at
		FROM crawl_runs
		WHERE run_id = ?
	`, runID.String()).Scan(&target, &summary, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	run := &store.RunRecord{
		RunID:      runID,
		StartedAt:  time.Unix(0, startedAt).UTC(),
		FinishedAt: time.Unix(0, finishedAt).UTC(),
	}
	if run.Target, err = model.ParseAddress(target); err != nil {
		return nil, fmt.Errorf("parse run target: %w", err)
	}
	if run.Summary, err = store.DecodeSummary([]byte(summary)); err != nil {
		return nil, err
	}
	if run.Accounts, err = s.LoadResult(ctx, runID); err != nil {
		return nil, err
	}
	return run, nil
}

// LoadResult reads back the addresses stored for a run, grouped by label in
// the order they were first stored. Labels without addresses are not kept.
func (s *Store) LoadResult(ctx context.Context, runID uuid.UUID) (model.CrawlResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, address FROM crawl_accounts
		WHERE run_id = ?
		ORDER BY rowid
	`, runID.String())
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

func signatureValue(sig *model.Signature) any {
	if sig == nil {
		return nil
	}
	return sig.String()
}
