package chain

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks . LedgerReader

import (
	"context"
	"errors"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

// ErrTransactionNotFound is returned by GetTransaction when the ledger has no
// record for the signature. It is never worth retrying.
var ErrTransactionNotFound = errors.New("transaction not found")

// LedgerReader is the read-only view of the ledger the crawl engine depends on.
type LedgerReader interface {
	// ListSignatures returns up to limit signatures for account, newest first,
	// strictly older than before. A nil before starts at the newest signature.
	// An empty result means the history is exhausted.
	ListSignatures(ctx context.Context, account model.Address, before *model.Signature, limit int) ([]model.SignatureInfo, error)

	// GetTransaction returns the full record for sig. The returned record's
	// Target is left for the caller to set.
	GetTransaction(ctx context.Context, sig model.Signature) (*model.TransactionRecord, error)
}
