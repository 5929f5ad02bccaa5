package alert

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

func testResult() crawler.Result {
	accounts := model.NewCrawlResult([]string{"mint"})
	accounts.Accounts["mint"] = []model.Address{{1}, {2}}
	start := time.Unix(1_700_000_000, 0)
	return crawler.Result{
		RunID:    uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Target:   model.Address{9},
		Accounts: accounts,
		Summary: model.Summary{
			Processed:           10,
			MatchedTransactions: 4,
			PermanentSkipped:    1,
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
}

func TestForRun(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType AlertType
		wantMsg  string
	}{
		{"completed", nil, AlertTypeRunCompleted, "2 account(s) extracted."},
		{"cancelled", fmt.Errorf("%w: %w", crawler.ErrCancelled, errors.New("context canceled")), AlertTypeRunCancelled, "Partial results were written."},
		{"failed", fmt.Errorf("%w: rpc down", crawler.ErrListingFailed), AlertTypeRunFailed, "signature listing failed: rpc down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ForRun(testResult(), "devnet", tt.err)
			assert.Equal(t, tt.wantType, a.Type)
			assert.Equal(t, model.Address{9}.String(), a.Target)
			assert.Equal(t, "devnet", a.Network)
			assert.Contains(t, a.Message, tt.wantMsg)
			assert.Equal(t, "10", a.Fields["processed"])
			assert.Equal(t, "4", a.Fields["matched_transactions"])
			assert.Equal(t, "2", a.Fields["accounts"])
			assert.Equal(t, "1", a.Fields["skipped"])
			assert.Equal(t, "3s", a.Fields["duration"])
			assert.Equal(t, "11111111-2222-3333-4444-555555555555", a.Fields["run_id"])
		})
	}
}

func TestForBreakerOpen(t *testing.T) {
	a := ForBreakerOpen("https://rpc.example", "mainnet")
	assert.Equal(t, AlertTypeBreakerOpen, a.Type)
	assert.Equal(t, "https://rpc.example", a.Target)
	assert.Equal(t, "mainnet", a.Network)
}
