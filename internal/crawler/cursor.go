package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/chain"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
)

// Cursor walks an account's signature history from newest to oldest.
type Cursor struct {
	reader       chain.LedgerReader
	target       model.Address
	before       *model.Signature
	bound        LowerBound
	emptyRetries int
	policy       retry.Policy
	sleep        retry.SleepFunc
	logger       *slog.Logger
	network      string
	exhausted    bool
}

// NewCursor positions a cursor at start, or at the newest signature when
// start is nil.
func NewCursor(reader chain.LedgerReader, target model.Address, start *model.Signature, bound LowerBound) *Cursor {
	c := &Cursor{
		reader: reader,
		target: target,
		bound:  bound,
		policy: retry.DefaultPolicy(),
		sleep:  retry.Sleep,
		logger: slog.Default(),
	}
	if start != nil {
		s := *start
		c.before = &s
	}
	return c
}

// Position returns the oldest signature handed out so far, or nil at start.
func (c *Cursor) Position() *model.Signature {
	if c.before == nil {
		return nil
	}
	s := *c.before
	return &s
}

// Exhausted reports whether history or the lower bound has been reached.
func (c *Cursor) Exhausted() bool {
	return c.exhausted
}

// NextBatch returns up to size signatures older than the current position.
// exhausted is true when no further call can return anything: the ledger
// returned an empty page or the lower bound was reached. The returned
// signatures never include the bound or anything older.
func (c *Cursor) NextBatch(ctx context.Context, size int) (batch []model.SignatureInfo, exhausted bool, err error) {
	if c.exhausted {
		return nil, true, nil
	}

	page, err := c.list(ctx, size)
	for empty := 0; err == nil && len(page) == 0 && empty < c.emptyRetries; empty++ {
		c.logger.Debug("empty signature page; asking again",
			"target", c.target.String(),
			"attempt", empty+1,
		)
		if sleepErr := c.sleep(ctx, c.policy.Delay(empty+1)); sleepErr != nil {
			return nil, false, sleepErr
		}
		page, err = c.list(ctx, size)
	}
	if err != nil {
		return nil, false, err
	}
	if len(page) == 0 {
		c.exhausted = true
		return nil, true, nil
	}
	metrics.CrawlSignaturesListed.WithLabelValues(c.network).Add(float64(len(page)))

	last := page[len(page)-1].Signature
	c.before = &last

	if !c.bound.IsZero() {
		for i, info := range page {
			if c.bound.reached(info) {
				c.exhausted = true
				c.logger.Info("lower bound reached",
					"target", c.target.String(),
					"signature", info.Signature.String(),
				)
				return page[:i:i], true, nil
			}
		}
	}
	return page, false, nil
}

// ResolveBound looks up the slot of the signature bound, so the sweep also
// stops at older slots when the bound never shows up in the target's
// history. It returns chain.ErrTransactionNotFound, wrapped, when the ledger
// does not know the bound.
func (c *Cursor) ResolveBound(ctx context.Context) error {
	if c.bound.Signature == nil || c.bound.slot > 0 {
		return nil
	}
	sig := *c.bound.Signature
	var rec *model.TransactionRecord
	_, err := retry.Do(ctx, c.policy, c.sleep,
		func(attempt int, decision retry.Decision, delay time.Duration, err error) {
			c.logger.Warn("lower bound lookup failed; retrying",
				"signature", sig.String(),
				"attempt", attempt,
				"classification", decision.Class,
				"backoff", delay,
				"error", err,
			)
		},
		func(ctx context.Context) error {
			var err error
			rec, err = c.reader.GetTransaction(ctx, sig)
			if err == nil && rec == nil {
				return chain.ErrTransactionNotFound
			}
			return err
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("resolve lower bound %s: %w", sig, err)
	}
	c.bound.slot = rec.Slot
	c.logger.Debug("lower bound resolved", "signature", sig.String(), "slot", rec.Slot)
	return nil
}

func (c *Cursor) list(ctx context.Context, size int) ([]model.SignatureInfo, error) {
	var page []model.SignatureInfo
	_, err := retry.Do(ctx, c.policy, c.sleep,
		func(attempt int, decision retry.Decision, delay time.Duration, err error) {
			c.logger.Warn("signature listing failed; retrying",
				"target", c.target.String(),
				"attempt", attempt,
				"classification", decision.Class,
				"classification_reason", decision.Reason,
				"backoff", delay,
				"error", err,
			)
		},
		func(ctx context.Context) error {
			var err error
			page, err = c.reader.ListSignatures(ctx, c.target, c.before, size)
			return err
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("list signatures before %v: %w", c.before, err)
	}
	return page, nil
}
