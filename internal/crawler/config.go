package crawler

import (
	"fmt"
	"slices"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/extract"
	"github.com/emperorhan/solana-tx-crawler/internal/filter"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
)

const (
	DefaultWorkers      = 8
	DefaultBatchSize    = 1000
	DefaultFetchTimeout = 30 * time.Second
)

// LowerBound stops the sweep before it reaches older history. Signature is
// exclusive: the bound transaction itself is not processed, and neither is
// anything from an older slot once the bound's slot is known. BlockTime
// excludes transactions at or before that instant. Either may be nil.
type LowerBound struct {
	Signature *model.Signature
	BlockTime *time.Time

	// slot of Signature, filled in by Cursor.ResolveBound.
	slot uint64
}

func (b LowerBound) IsZero() bool {
	return b.Signature == nil && b.BlockTime == nil
}

// reached reports whether info is at or past the bound.
func (b LowerBound) reached(info model.SignatureInfo) bool {
	if b.Signature != nil && info.Signature.Equals(*b.Signature) {
		return true
	}
	if b.slot > 0 && info.Slot < b.slot {
		return true
	}
	if b.BlockTime != nil && info.BlockTime != nil && !info.BlockTime.After(*b.BlockTime) {
		return true
	}
	return false
}

// Config describes one crawl. Build it with a Builder; a Config can be run
// any number of times.
type Config struct {
	Target       model.Address
	Workers      int
	BatchSize    int
	Retry        retry.Policy
	FetchTimeout time.Duration
	LowerBound   LowerBound

	TxFilters   []filter.TxFilter
	IxFilters   []filter.IxFilter
	Extractions []extract.Spec

	// Resume continues paging backwards from this signature instead of the
	// newest one.
	Resume *model.Signature
	// Prior continues an interrupted run: its addresses seed the result and
	// its summary the counters.
	Prior *Prior
	// EmptyPageRetries re-requests an empty signature page this many times
	// before treating history as exhausted.
	EmptyPageRetries int
	// ReverseResult returns every bucket oldest-first.
	ReverseResult bool
	// Dedupe keeps one occurrence of an address per label: the newest one,
	// or the oldest one when ReverseResult is set. Either way the first
	// occurrence in the returned order wins.
	Dedupe bool
	// MaxTransactions stops this invocation after that many signatures; 0
	// is unbounded.
	MaxTransactions int
}

// Prior is what an interrupted run had collected before it stopped.
// Accounts are in discovery order, newest first.
type Prior struct {
	Accounts  model.CrawlResult
	Summary   model.Summary
	StartedAt time.Time
}

// Validate reports the first reason the config cannot run.
func (c Config) Validate() error {
	if c.Target.IsZero() {
		return fmt.Errorf("%w: target address is empty", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1, got %d", ErrInvalidConfig, c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("%w: negative backoff delay", ErrInvalidConfig)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("%w: negative fetch timeout", ErrInvalidConfig)
	}
	if c.EmptyPageRetries < 0 {
		return fmt.Errorf("%w: negative empty page retries", ErrInvalidConfig)
	}
	if c.MaxTransactions < 0 {
		return fmt.Errorf("%w: negative max transactions", ErrInvalidConfig)
	}
	for i, f := range c.TxFilters {
		if f == nil {
			return fmt.Errorf("%w: tx filter %d is nil", ErrInvalidConfig, i)
		}
	}
	for i, f := range c.IxFilters {
		if f == nil {
			return fmt.Errorf("%w: ix filter %d is nil", ErrInvalidConfig, i)
		}
	}
	if _, err := extract.NewExtractor(c.Extractions); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Builder assembles a Config. Every method returns a new Builder, so a
// partially built value can be shared and extended independently.
type Builder struct {
	cfg Config
}

// NewBuilder starts a config for target with default concurrency, batch
// size, retry policy and fetch timeout.
func NewBuilder(target model.Address) Builder {
	return Builder{cfg: Config{
		Target:       target,
		Workers:      DefaultWorkers,
		BatchSize:    DefaultBatchSize,
		Retry:        retry.DefaultPolicy(),
		FetchTimeout: DefaultFetchTimeout,
	}}
}

func (b Builder) Target(target model.Address) Builder {
	b.cfg.Target = target
	return b
}

func (b Builder) Workers(n int) Builder {
	b.cfg.Workers = n
	return b
}

func (b Builder) BatchSize(n int) Builder {
	b.cfg.BatchSize = n
	return b
}

func (b Builder) Retry(p retry.Policy) Builder {
	b.cfg.Retry = p
	return b
}

func (b Builder) FetchTimeout(d time.Duration) Builder {
	b.cfg.FetchTimeout = d
	return b
}

func (b Builder) UntilSignature(sig model.Signature) Builder {
	b.cfg.LowerBound.Signature = &sig
	return b
}

func (b Builder) UntilBlockTime(t time.Time) Builder {
	b.cfg.LowerBound.BlockTime = &t
	return b
}

func (b Builder) AddTxFilter(f filter.TxFilter) Builder {
	b.cfg.TxFilters = append(slices.Clip(b.cfg.TxFilters), f)
	return b
}

func (b Builder) AddIxFilter(f filter.IxFilter) Builder {
	b.cfg.IxFilters = append(slices.Clip(b.cfg.IxFilters), f)
	return b
}

// AddExtraction collects the account at position of every matching
// instruction under label.
func (b Builder) AddExtraction(label string, position int) Builder {
	b.cfg.Extractions = append(slices.Clip(b.cfg.Extractions), extract.Spec{Label: label, Position: position})
	return b
}

func (b Builder) ResumeFrom(sig model.Signature) Builder {
	b.cfg.Resume = &sig
	return b
}

// Continue picks up an interrupted run from the oldest signature it
// processed, carrying its addresses and counters forward.
func (b Builder) Continue(p Prior) Builder {
	p.Accounts = p.Accounts.Clone()
	b.cfg.Prior = &p
	b.cfg.Resume = nil
	if p.Summary.LastSignature != nil {
		sig := *p.Summary.LastSignature
		b.cfg.Resume = &sig
	}
	return b
}

func (b Builder) EmptyPageRetries(n int) Builder {
	b.cfg.EmptyPageRetries = n
	return b
}

func (b Builder) ReverseResult(on bool) Builder {
	b.cfg.ReverseResult = on
	return b
}

func (b Builder) Dedupe(on bool) Builder {
	b.cfg.Dedupe = on
	return b
}

func (b Builder) MaxTransactions(n int) Builder {
	b.cfg.MaxTransactions = n
	return b
}

// Build validates and returns the config.
func (b Builder) Build() (Config, error) {
	cfg := b.cfg
	cfg.TxFilters = slices.Clone(cfg.TxFilters)
	cfg.IxFilters = slices.Clone(cfg.IxFilters)
	cfg.Extractions = slices.Clone(cfg.Extractions)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
