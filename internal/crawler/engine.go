// Package crawler sweeps one account's transaction history backwards,
// filters the fetched transactions and instructions, and collects the
// accounts they reference.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/emperorhan/solana-tx-crawler/internal/chain"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/extract"
	"github.com/emperorhan/solana-tx-crawler/internal/filter"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
	"github.com/emperorhan/solana-tx-crawler/internal/tracing"
)

// Checkpointer persists progress after every completed batch.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
}

// Result is what a run produced. It is returned even when Run fails after
// the sweep started, holding everything from the batches that completed.
type Result struct {
	RunID      uuid.UUID
	Target     model.Address
	Accounts   model.CrawlResult
	Summary    model.Summary
	StartedAt  time.Time
	FinishedAt time.Time
}

type Engine struct {
	reader       chain.LedgerReader
	logger       *slog.Logger
	network      string
	sleep        retry.SleepFunc
	checkpointer Checkpointer
	health       *Health
	newRunID     func() uuid.UUID
	nowFn        func() time.Time
}

type Option func(*Engine)

// WithNetwork sets the network label used in logs and metrics.
func WithNetwork(network string) Option {
	return func(e *Engine) {
		e.network = network
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithCheckpointer saves a checkpoint after each completed batch.
func WithCheckpointer(cp Checkpointer) Option {
	return func(e *Engine) {
		e.checkpointer = cp
	}
}

// WithHealth reports batch outcomes to h.
func WithHealth(h *Health) Option {
	return func(e *Engine) {
		e.health = h
	}
}

// WithRunID makes every run use id, which lets a resumed run keep the
// identity of the run it continues.
func WithRunID(id uuid.UUID) Option {
	return func(e *Engine) {
		e.newRunID = func() uuid.UUID { return id }
	}
}

func NewEngine(reader chain.LedgerReader, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		reader:   reader,
		network:  model.NetworkMainnet.String(),
		sleep:    retry.Sleep,
		newRunID: uuid.New,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = logger.With("component", "crawler", "network", e.network)
	return e
}

// Run performs one sweep of cfg.Target's history. Configuration errors are
// returned before the ledger is touched, except for a signature lower bound
// the ledger does not know, which also fails with ErrInvalidConfig.
// Cancellation returns ErrCancelled and an unrecoverable listing failure
// returns ErrListingFailed; both come with the result of every batch
// completed so far. Individual transactions that cannot be fetched are
// counted in the summary, never returned. With cfg.Prior set the result and
// summary continue the prior run's.
func (e *Engine) Run(ctx context.Context, cfg Config) (Result, error) {
	if e.reader == nil {
		return Result{}, fmt.Errorf("%w: ledger reader is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	extractor, err := extract.NewExtractor(cfg.Extractions)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	pipeline := filter.NewPipeline(cfg.TxFilters, cfg.IxFilters)
	agg := extract.NewAggregator(extractor.Labels(), cfg.Dedupe)
	if cfg.Dedupe && cfg.ReverseResult {
		agg.KeepLast()
	}

	runID := e.newRunID()
	log := e.logger.With("run_id", runID.String(), "target", cfg.Target.String())

	ctx, span := tracing.Tracer("crawler").Start(ctx, "crawler.Run",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.String("target", cfg.Target.String()),
			attribute.Int("workers", cfg.Workers),
			attribute.Int("batch_size", cfg.BatchSize),
		),
	)
	defer span.End()

	cursor := NewCursor(e.reader, cfg.Target, cfg.Resume, cfg.LowerBound)
	cursor.emptyRetries = cfg.EmptyPageRetries
	cursor.policy = cfg.Retry
	cursor.sleep = e.sleep
	cursor.logger = log
	cursor.network = e.network

	res := Result{
		RunID:     runID,
		Target:    cfg.Target,
		StartedAt: e.nowFn(),
	}
	var summary model.Summary
	if cfg.Prior != nil {
		agg.Seed(cfg.Prior.Accounts)
		summary = cfg.Prior.Summary
		summary.Cancelled = false
		summary.Completed = false
		if !cfg.Prior.StartedAt.IsZero() {
			res.StartedAt = cfg.Prior.StartedAt
		}
	}
	carried := summary.Processed

	log.Info("crawl started",
		"workers", cfg.Workers,
		"batch_size", cfg.BatchSize,
		"tx_filters", len(cfg.TxFilters),
		"ix_filters", len(cfg.IxFilters),
		"labels", extractor.Labels(),
		"resume", cfg.Resume != nil,
		"carried_processed", carried,
	)

	if e.health != nil {
		e.health.Start(cfg.Target)
		defer e.health.Stop()
	}

	var runErr error
	if err := cursor.ResolveBound(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
			runErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case errors.Is(err, chain.ErrTransactionNotFound):
			err = fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, err
		default:
			runErr = fmt.Errorf("%w: %w", ErrListingFailed, err)
		}
	}
	completed := false
	for runErr == nil {
		if ctx.Err() != nil {
			runErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			break
		}

		size := cfg.BatchSize
		if cfg.MaxTransactions > 0 {
			remaining := cfg.MaxTransactions - (summary.Processed - carried)
			if remaining <= 0 {
				log.Info("max transactions reached", "max_transactions", cfg.MaxTransactions)
				break
			}
			size = min(size, remaining)
		}

		sigs, exhausted, err := cursor.NextBatch(ctx, size)
		if err != nil {
			if ctx.Err() != nil {
				runErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			} else {
				runErr = fmt.Errorf("%w: %w", ErrListingFailed, err)
				if e.health != nil {
					e.health.RecordFailure()
				}
			}
			break
		}

		if len(sigs) > 0 {
			added, err := e.processBatch(ctx, cfg, extractor, pipeline, agg, sigs, &summary)
			if err != nil {
				runErr = fmt.Errorf("%w: %w", ErrCancelled, err)
				break
			}
			e.saveCheckpoint(ctx, log, res, summary, added)
		}
		if exhausted {
			completed = true
			break
		}
	}

	if errors.Is(runErr, ErrCancelled) {
		summary.Cancelled = true
	}
	if completed {
		summary.Completed = true
		e.saveCheckpoint(ctx, log, res, summary, nil)
	}
	if cfg.ReverseResult {
		agg.Reverse()
	}
	res.Accounts = agg.Result()
	res.Summary = summary
	res.FinishedAt = e.nowFn()

	logArgs := []any{
		"processed", summary.Processed,
		"matched_transactions", summary.MatchedTransactions,
		"matched_instructions", summary.MatchedInstructions,
		"transient_exhausted", summary.TransientExhausted,
		"permanent_skipped", summary.PermanentSkipped,
		"batches", summary.Batches,
		"accounts", res.Accounts.Total(),
		"elapsed", res.FinishedAt.Sub(res.StartedAt),
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Warn("crawl stopped early", append(logArgs, "error", runErr)...)
		return res, runErr
	}
	log.Info("crawl finished", logArgs...)
	return res, nil
}

// processBatch fetches batch, then filters and extracts strictly in batch
// order. Nothing is aggregated or counted unless the whole batch resolved.
func (e *Engine) processBatch(
	ctx context.Context,
	cfg Config,
	extractor *extract.Extractor,
	pipeline *filter.Pipeline,
	agg *extract.Aggregator,
	batch []model.SignatureInfo,
	summary *model.Summary,
) ([]extract.Pair, error) {
	ctx, span := tracing.Tracer("crawler").Start(ctx, "crawler.batch",
		trace.WithAttributes(attribute.Int("size", len(batch))),
	)
	defer span.End()
	start := time.Now()

	slots, err := e.fetchBatch(ctx, cfg, batch)
	if err != nil {
		return nil, err
	}

	var (
		pairs     []extract.Pair
		matchedTx int
		matchedIx int
		transient int
		permanent int
	)
	for i := range slots {
		s := &slots[i]
		switch s.state {
		case slotTransientExhausted:
			transient++
			continue
		case slotPermanent:
			permanent++
			continue
		}

		rec := withTarget(s.record, cfg.Target)
		if !pipeline.TransactionMatches(rec) {
			continue
		}
		matchedTx++
		for j := range rec.Instructions {
			ix := &rec.Instructions[j]
			if !pipeline.InstructionMatches(ix) {
				continue
			}
			matchedIx++
			pairs = append(pairs, extractor.Extract(ix)...)
		}
	}
	added := agg.Append(pairs)

	summary.Processed += len(slots)
	summary.MatchedTransactions += matchedTx
	summary.MatchedInstructions += matchedIx
	summary.TransientExhausted += transient
	summary.PermanentSkipped += permanent
	summary.Batches++
	last := batch[len(batch)-1].Signature
	summary.LastSignature = &last

	elapsed := time.Since(start)
	if e.health != nil {
		e.health.RecordBatch(elapsed, transient)
	}

	metrics.CrawlBatchesProcessed.WithLabelValues(e.network).Inc()
	metrics.CrawlBatchLatency.WithLabelValues(e.network).Observe(elapsed.Seconds())
	metrics.CrawlMatchedTransactions.WithLabelValues(e.network).Add(float64(matchedTx))
	metrics.CrawlMatchedInstructions.WithLabelValues(e.network).Add(float64(matchedIx))
	for _, p := range pairs {
		metrics.CrawlAccountsExtracted.WithLabelValues(e.network, p.Label).Inc()
	}

	e.logger.Debug("batch processed",
		"size", len(batch),
		"matched_transactions", matchedTx,
		"matched_instructions", matchedIx,
		"extracted", len(pairs),
		"skipped", transient+permanent,
		"oldest_signature", last.String(),
	)
	return added, nil
}

// saveCheckpoint records progress along with the addresses the batch added,
// so a store can grow the run's result as it goes.
func (e *Engine) saveCheckpoint(ctx context.Context, log *slog.Logger, res Result, summary model.Summary, added []extract.Pair) {
	if e.checkpointer == nil {
		return
	}
	cp := model.Checkpoint{
		RunID:         res.RunID,
		Target:        res.Target,
		LastSignature: summary.LastSignature,
		Summary:       summary,
		StartedAt:     res.StartedAt,
		UpdatedAt:     e.nowFn(),
	}
	for _, p := range added {
		cp.Appended = append(cp.Appended, model.LabeledAddress{Label: p.Label, Address: p.Address})
	}
	if err := e.checkpointer.SaveCheckpoint(ctx, cp); err != nil {
		log.Warn("checkpoint save failed", "error", err)
	}
}
