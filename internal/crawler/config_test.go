package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/solana-tx-crawler/internal/extract"
	"github.com/emperorhan/solana-tx-crawler/internal/filter"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
)

func TestNewBuilder_Defaults(t *testing.T) {
	cfg, err := NewBuilder(target).Build()
	require.NoError(t, err)

	assert.Equal(t, target, cfg.Target)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, retry.DefaultPolicy(), cfg.Retry)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeout)
	assert.True(t, cfg.LowerBound.IsZero())
	assert.Nil(t, cfg.Resume)
}

func TestBuilder_SharedPrefixesDoNotInterfere(t *testing.T) {
	base := NewBuilder(target).AddTxFilter(filter.SuccessOnly()).AddExtraction("mint", 5)
	a := base.AddIxFilter(filter.AccountCount(filter.CountEq, 14)).AddExtraction("metadata", 4)
	b := base.AddIxFilter(filter.AccountCount(filter.CountGte, 16))

	cfgA, err := a.Build()
	require.NoError(t, err)
	cfgB, err := b.Build()
	require.NoError(t, err)
	cfgBase, err := base.Build()
	require.NoError(t, err)

	assert.Len(t, cfgBase.IxFilters, 0)
	assert.Equal(t, "account_count(eq 14)", cfgA.IxFilters[0].Name())
	assert.Equal(t, "account_count(gte 16)", cfgB.IxFilters[0].Name())
	assert.Equal(t, []extract.Spec{{Label: "mint", Position: 5}, {Label: "metadata", Position: 4}}, cfgA.Extractions)
	assert.Equal(t, []extract.Spec{{Label: "mint", Position: 5}}, cfgB.Extractions)
}

func TestBuilder_Options(t *testing.T) {
	until := time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)
	cfg, err := NewBuilder(target).
		Workers(16).
		BatchSize(200).
		FetchTimeout(5 * time.Second).
		UntilSignature(testSig(7)).
		UntilBlockTime(until).
		ResumeFrom(testSig(9)).
		EmptyPageRetries(10).
		ReverseResult(true).
		Dedupe(true).
		MaxTransactions(50).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, testSig(7), *cfg.LowerBound.Signature)
	assert.Equal(t, until, *cfg.LowerBound.BlockTime)
	assert.Equal(t, testSig(9), *cfg.Resume)
	assert.Equal(t, 10, cfg.EmptyPageRetries)
	assert.True(t, cfg.ReverseResult)
	assert.True(t, cfg.Dedupe)
	assert.Equal(t, 50, cfg.MaxTransactions)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		b    Builder
	}{
		{"batch size", NewBuilder(target).BatchSize(0)},
		{"negative timeout", NewBuilder(target).FetchTimeout(-time.Second)},
		{"negative empty retries", NewBuilder(target).EmptyPageRetries(-1)},
		{"negative max", NewBuilder(target).MaxTransactions(-1)},
		{"negative delay", NewBuilder(target).Retry(retry.Policy{MaxAttempts: 1, BaseDelay: -1})},
		{"nil ix filter", NewBuilder(target).AddIxFilter(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLowerBound_Reached(t *testing.T) {
	ledger := linearHistory(3, 1)
	info := ledger.history[1]
	sig := info.Signature
	at := *info.BlockTime

	assert.False(t, LowerBound{}.reached(info))
	assert.True(t, LowerBound{Signature: &sig}.reached(info))
	assert.True(t, LowerBound{BlockTime: &at}.reached(info))
	before := at.Add(-time.Second)
	assert.False(t, LowerBound{BlockTime: &before}.reached(info))

	other := testSig(99)
	assert.True(t, LowerBound{Signature: &other, slot: info.Slot + 1}.reached(info))
	assert.False(t, LowerBound{Signature: &other, slot: info.Slot}.reached(info))
}
