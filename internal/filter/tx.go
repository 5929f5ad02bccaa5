package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

type successOnly struct{}

// SuccessOnly keeps transactions that executed without error.
func SuccessOnly() TxFilter { return successOnly{} }

func (successOnly) Name() string { return "success_only" }

func (successOnly) MatchTransaction(tx *model.TransactionRecord) bool {
	return tx != nil && tx.Success
}

type hasProgramID struct {
	program model.Address
}

// HasProgramID keeps transactions whose account table contains program.
func HasProgramID(program model.Address) TxFilter { return hasProgramID{program: program} }

func (f hasProgramID) Name() string { return "has_program_id(" + f.program.String() + ")" }

func (f hasProgramID) MatchTransaction(tx *model.TransactionRecord) bool {
	return tx != nil && tx.HasAccountKey(f.program)
}

type hasSigner struct {
	signer model.Address
}

// HasSigner keeps transactions signed by signer.
func HasSigner(signer model.Address) TxFilter { return hasSigner{signer: signer} }

func (f hasSigner) Name() string { return "has_signer(" + f.signer.String() + ")" }

func (f hasSigner) MatchTransaction(tx *model.TransactionRecord) bool {
	if tx == nil {
		return false
	}
	for _, key := range tx.AccountKeys {
		if key.Signer && key.Address.Equals(f.signer) {
			return true
		}
	}
	return false
}

type logExcludes struct {
	substr string
}

// LogExcludes rejects transactions with a log line containing substr.
func LogExcludes(substr string) TxFilter { return logExcludes{substr: substr} }

func (f logExcludes) Name() string { return fmt.Sprintf("log_excludes(%q)", f.substr) }

func (f logExcludes) MatchTransaction(tx *model.TransactionRecord) bool {
	if tx == nil {
		return false
	}
	for _, line := range tx.LogMessages {
		if strings.Contains(line, f.substr) {
			return false
		}
	}
	return true
}

type blockTimeRange struct {
	from, to time.Time
}

// BlockTimeRange keeps transactions with from <= block time < to. A zero bound
// is open. Transactions without a block time never match.
func BlockTimeRange(from, to time.Time) TxFilter { return blockTimeRange{from: from, to: to} }

func (f blockTimeRange) Name() string {
	return fmt.Sprintf("block_time_range(%s,%s)", formatBound(f.from), formatBound(f.to))
}

func (f blockTimeRange) MatchTransaction(tx *model.TransactionRecord) bool {
	if tx == nil || tx.BlockTime == nil {
		return false
	}
	bt := *tx.BlockTime
	if !f.from.IsZero() && bt.Before(f.from) {
		return false
	}
	if !f.to.IsZero() && !bt.Before(f.to) {
		return false
	}
	return true
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "*"
	}
	return t.UTC().Format(time.RFC3339)
}
