package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/cache"
	"github.com/emperorhan/solana-tx-crawler/internal/chain"
	"github.com/emperorhan/solana-tx-crawler/internal/chain/solana/rpc"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
)

// maxPageSize is the largest page getSignaturesForAddress will return.
const maxPageSize = 1000

// Adapter reads an account's history from a Solana JSON-RPC endpoint.
type Adapter struct {
	client     rpc.RPCClient
	logger     *slog.Logger
	network    string
	commitment string
	txCache    *cache.LRU[model.Signature, *model.TransactionRecord]
}

var _ chain.LedgerReader = (*Adapter)(nil)

type Option func(*Adapter)

// WithCommitment sets the commitment level for every read.
func WithCommitment(commitment string) Option {
	return func(a *Adapter) {
		if commitment != "" {
			a.commitment = commitment
		}
	}
}

// WithTransactionCache keeps up to size decoded transactions in memory.
// A non-positive size disables the cache.
func WithTransactionCache(size int) Option {
	return func(a *Adapter) {
		if size > 0 {
			a.txCache = cache.NewLRU[model.Signature, *model.TransactionRecord](size, 0)
		} else {
			a.txCache = nil
		}
	}
}

// WithNetwork sets the network label used in logs and metrics.
func WithNetwork(network string) Option {
	return func(a *Adapter) {
		a.network = network
	}
}

func NewAdapter(client rpc.RPCClient, logger *slog.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		client:     client,
		network:    model.NetworkMainnet.String(),
		commitment: rpc.CommitmentFinalized,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.logger = logger.With("component", "ledger_reader", "network", a.network)
	return a
}

// ListSignatures returns up to limit signatures strictly older than before,
// newest first. A nil before starts at the newest transaction.
func (a *Adapter) ListSignatures(ctx context.Context, account model.Address, before *model.Signature, limit int) ([]model.SignatureInfo, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	opts := &rpc.GetSignaturesOpts{
		Limit:      limit,
		Commitment: a.commitment,
	}
	if before != nil {
		opts.Before = before.String()
	}

	sigs, err := a.client.GetSignaturesForAddress(ctx, account.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("list signatures for %s: %w", account, err)
	}

	out := make([]model.SignatureInfo, 0, len(sigs))
	for _, s := range sigs {
		sig, err := model.ParseSignature(s.Signature)
		if err != nil {
			return nil, retry.Terminal(fmt.Errorf("malformed signature %q: %w", s.Signature, err))
		}
		out = append(out, model.SignatureInfo{
			Signature: sig,
			Slot:      s.Slot,
			BlockTime: unixTime(s.BlockTime),
			Failed:    s.Err != nil,
		})
	}

	a.logger.Debug("listed signatures",
		"account", account.String(),
		"count", len(out),
		"before", opts.Before,
	)
	return out, nil
}

// GetTransaction fetches and decodes one transaction. A transaction the node
// does not know about yields chain.ErrTransactionNotFound; a response that
// cannot be decoded is a terminal error.
func (a *Adapter) GetTransaction(ctx context.Context, sig model.Signature) (*model.TransactionRecord, error) {
	if a.txCache != nil {
		if rec, ok := a.txCache.Get(sig); ok {
			metrics.RPCCacheHits.WithLabelValues(a.network).Inc()
			return rec, nil
		}
	}

	raw, err := a.client.GetTransaction(ctx, sig.String(), a.commitment)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("get transaction %s: %w", sig, chain.ErrTransactionNotFound)
	}

	var resp rpc.TransactionResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, retry.Terminal(fmt.Errorf("decode transaction %s: %w", sig, err))
	}

	rec, err := decodeTransaction(sig, &resp)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("decode transaction %s: %w", sig, err))
	}

	if a.txCache != nil {
		a.txCache.Put(sig, rec)
	}
	return rec, nil
}

func unixTime(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
