package crawler

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
	"github.com/emperorhan/solana-tx-crawler/internal/tracing"
)

type slotState int

const (
	slotPending slotState = iota
	slotFetched
	slotTransientExhausted
	slotPermanent
)

// slot holds the outcome for the signature at the same index of a batch.
// Each fetch goroutine writes only its own slot.
type slot struct {
	info   model.SignatureInfo
	state  slotState
	record *model.TransactionRecord
	err    error
}

// fetchBatch fetches every signature of batch with at most cfg.Workers calls
// in flight. Per-record failures are recorded in the slots; only
// cancellation of ctx is returned as an error, in which case the slots must
// be discarded.
func (e *Engine) fetchBatch(ctx context.Context, cfg Config, batch []model.SignatureInfo) ([]slot, error) {
	slots := make([]slot, len(batch))
	for i, info := range batch {
		slots[i].info = info
	}

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i := range slots {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			e.fetchOne(ctx, cfg, &slots[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

func (e *Engine) fetchOne(ctx context.Context, cfg Config, s *slot) {
	sig := s.info.Signature
	ctx, span := tracing.Tracer("crawler").Start(ctx, "crawler.fetch",
		trace.WithAttributes(attribute.String("signature", sig.String())),
	)
	defer span.End()

	log := e.logger.With("signature", sig.String())
	start := time.Now()

	outcome, err := retry.Do(ctx, cfg.Retry, e.sleep,
		func(attempt int, decision retry.Decision, delay time.Duration, err error) {
			metrics.CrawlFetchRetries.WithLabelValues(e.network, decision.Reason).Inc()
			log.Warn("transaction fetch failed; retrying",
				"attempt", attempt,
				"classification", decision.Class,
				"classification_reason", decision.Reason,
				"backoff", delay,
				"error", err,
			)
		},
		func(ctx context.Context) error {
			if cfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.FetchTimeout)
				defer cancel()
			}
			rec, err := e.reader.GetTransaction(ctx, sig)
			if err != nil {
				return err
			}
			if rec == nil {
				return retry.Terminal(errors.New("ledger returned no record"))
			}
			s.record = rec
			return nil
		},
	)
	metrics.CrawlFetchLatency.WithLabelValues(e.network).Observe(time.Since(start).Seconds())

	if err == nil {
		s.state = slotFetched
		metrics.CrawlTransactionsFetched.WithLabelValues(e.network).Inc()
		return
	}
	s.err = err
	if ctx.Err() != nil {
		// Abandoned; the whole batch is discarded.
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if outcome.Exhausted {
		s.state = slotTransientExhausted
		metrics.CrawlSkipped.WithLabelValues(e.network, "transient_exhausted").Inc()
	} else {
		s.state = slotPermanent
		metrics.CrawlSkipped.WithLabelValues(e.network, "permanent").Inc()
	}
	log.Warn("transaction skipped",
		"attempts", outcome.Attempts,
		"classification", outcome.Decision.Class,
		"classification_reason", outcome.Decision.Reason,
		"error", err,
	)
}

// withTarget returns a copy of rec attributed to target. Fetched records may
// be shared through the reader's cache, so they are never modified in place.
func withTarget(rec *model.TransactionRecord, target model.Address) *model.TransactionRecord {
	out := *rec
	out.Target = target
	return &out
}
