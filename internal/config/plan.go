package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/extract"
	"github.com/emperorhan/solana-tx-crawler/internal/filter"
	"github.com/emperorhan/solana-tx-crawler/internal/preset"
)

// ErrPlanNotFound is returned when the plan file does not exist.
var ErrPlanNotFound = errors.New("crawl plan not found")

// ErrInvalidPlan wraps every plan validation failure.
var ErrInvalidPlan = errors.New("invalid crawl plan")

// Plan is a crawl described in YAML. Filters and extractions are appended to
// the preset's when both are given.
type Plan struct {
	Target          string         `yaml:"target"`
	Preset          string         `yaml:"preset,omitempty"`
	TxFilters       []filter.Spec  `yaml:"tx_filters,omitempty"`
	IxFilters       []filter.Spec  `yaml:"ix_filters,omitempty"`
	Extractions     []extract.Spec `yaml:"extractions,omitempty"`
	UntilSignature  string         `yaml:"until_signature,omitempty"`
	UntilTime       string         `yaml:"until_time,omitempty"`
	Reverse         bool           `yaml:"reverse,omitempty"`
	Dedupe          *bool          `yaml:"dedupe,omitempty"`
	MaxTransactions int            `yaml:"max_transactions,omitempty"`
	Workers         int            `yaml:"workers,omitempty"`
	BatchSize       int            `yaml:"batch_size,omitempty"`
}

// LoadPlan reads a YAML plan, expanding ${VAR} references first. Unknown
// keys are rejected.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided plan path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, path)
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return ParsePlan(data)
}

func ParsePlan(data []byte) (*Plan, error) {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalidPlan, err)
	}
	if p.Target == "" {
		return nil, fmt.Errorf("%w: target is required", ErrInvalidPlan)
	}
	return &p, nil
}

// Builder converts the plan into a crawl builder. When env is non-nil its
// crawl and retry settings are applied first; workers and batch_size in the
// plan take precedence over them.
func (p *Plan) Builder(env *Config) (crawler.Builder, error) {
	target, err := model.ParseAddress(p.Target)
	if err != nil {
		return crawler.Builder{}, fmt.Errorf("%w: target %q: %w", ErrInvalidPlan, p.Target, err)
	}

	b := crawler.NewBuilder(target)
	if p.Preset != "" {
		ps, ok := preset.Lookup(p.Preset)
		if !ok {
			return crawler.Builder{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidPlan, p.Preset)
		}
		b = ps.Builder(target)
	}
	if env != nil {
		b = b.Workers(env.Crawl.Workers).
			BatchSize(env.Crawl.BatchSize).
			FetchTimeout(env.Crawl.FetchTimeout).
			EmptyPageRetries(env.Crawl.EmptyPageRetries).
			Retry(env.Retry.Policy())
	}

	for i, spec := range p.TxFilters {
		f, err := filter.NewTxFilter(spec)
		if err != nil {
			return crawler.Builder{}, fmt.Errorf("%w: tx_filters[%d]: %w", ErrInvalidPlan, i, err)
		}
		b = b.AddTxFilter(f)
	}
	for i, spec := range p.IxFilters {
		f, err := filter.NewIxFilter(spec)
		if err != nil {
			return crawler.Builder{}, fmt.Errorf("%w: ix_filters[%d]: %w", ErrInvalidPlan, i, err)
		}
		b = b.AddIxFilter(f)
	}
	for _, spec := range p.Extractions {
		b = b.AddExtraction(spec.Label, spec.Position)
	}

	switch {
	case p.UntilSignature != "" && p.UntilTime != "":
		return crawler.Builder{}, fmt.Errorf("%w: until_signature and until_time are exclusive", ErrInvalidPlan)
	case p.UntilSignature != "":
		sig, err := model.ParseSignature(p.UntilSignature)
		if err != nil {
			return crawler.Builder{}, fmt.Errorf("%w: until_signature: %w", ErrInvalidPlan, err)
		}
		b = b.UntilSignature(sig)
	case p.UntilTime != "":
		t, err := time.Parse(time.RFC3339, p.UntilTime)
		if err != nil {
			return crawler.Builder{}, fmt.Errorf("%w: until_time: %w", ErrInvalidPlan, err)
		}
		b = b.UntilBlockTime(t)
	}

	if p.Reverse {
		b = b.ReverseResult(true)
	}
	if p.Dedupe != nil {
		b = b.Dedupe(*p.Dedupe)
	}
	if p.MaxTransactions > 0 {
		b = b.MaxTransactions(p.MaxTransactions)
	}
	if p.Workers > 0 {
		b = b.Workers(p.Workers)
	}
	if p.BatchSize > 0 {
		b = b.BatchSize(p.BatchSize)
	}
	return b, nil
}
