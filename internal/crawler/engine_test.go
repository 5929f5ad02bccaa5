package crawler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/filter"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
)

var (
	target   = testAddr(0xA0, 1)
	programP = testAddr(0xF0, 1)
	programQ = testAddr(0xF0, 2)
)

func newTestEngine(ledger *fakeLedger, opts ...Option) (*Engine, *sleepRecorder) {
	sleeps := &sleepRecorder{}
	opts = append([]Option{WithSleep(sleeps.sleep), WithNetwork("devnet")}, opts...)
	return NewEngine(ledger, slog.Default(), opts...), sleeps
}

// linearHistory pushes n successful transactions of programP, oldest first,
// each with accounts accounts.
func linearHistory(n, accounts int) *fakeLedger {
	ledger := newFakeLedger()
	for i := 1; i <= n; i++ {
		ledger.push(testSig(i), testTx(i, true, programP, accounts))
	}
	return ledger
}

func mustBuild(t *testing.T, b Builder) Config {
	t.Helper()
	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg
}

func TestRun_ThreeTransactionScenario(t *testing.T) {
	ledger := newFakeLedger()
	t1 := testTx(1, false, programP, 14)
	t2 := testTx(2, true, programP, 14)
	t3 := testTx(3, true, programQ, 14)
	ledger.push(testSig(1), t1)
	ledger.push(testSig(2), t2)
	ledger.push(testSig(3), t3)

	cfg := mustBuild(t, NewBuilder(target).
		AddTxFilter(filter.SuccessOnly()).
		AddTxFilter(filter.HasProgramID(programP)).
		AddIxFilter(filter.ProgramID(programP)).
		AddExtraction("mint", 5))

	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"mint"}, res.Accounts.Labels)
	assert.Equal(t, []model.Address{t2.Instructions[0].Accounts[5]}, res.Accounts.Get("mint"))
	assert.Equal(t, 3, res.Summary.Processed)
	assert.Equal(t, 1, res.Summary.MatchedTransactions)
	assert.Equal(t, 1, res.Summary.MatchedInstructions)
	assert.Equal(t, 0, res.Summary.Skipped())
	assert.False(t, res.Summary.Cancelled)
	assert.Equal(t, target, res.Target)
	require.NotNil(t, res.Summary.LastSignature)
	assert.Equal(t, testSig(1), *res.Summary.LastSignature)
}

func TestRun_LowerBoundScenario(t *testing.T) {
	ledger := newFakeLedger()
	ledger.push(testSig(1), testTx(1, false, programP, 14))
	ledger.push(testSig(2), testTx(2, true, programP, 14))
	ledger.push(testSig(3), testTx(3, true, programQ, 14))

	cfg := mustBuild(t, NewBuilder(target).
		AddTxFilter(filter.SuccessOnly()).
		AddIxFilter(filter.ProgramID(programP)).
		AddExtraction("mint", 5).
		UntilSignature(testSig(2)))

	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Empty(t, res.Accounts.Get("mint"))
	assert.Equal(t, 1, res.Summary.Processed)
	assert.Equal(t, 1, ledger.calls(testSig(2)), "only the slot lookup touches the bound")
	assert.Equal(t, 0, ledger.calls(testSig(1)))
	assert.Equal(t, 1, ledger.calls(testSig(3)))
}

func TestRun_LowerBoundByBlockTime(t *testing.T) {
	ledger := linearHistory(5, 3)
	bound := *ledger.txs[testSig(2)].BlockTime

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("first", 0).UntilBlockTime(bound))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{testAddr(5, 0), testAddr(4, 0), testAddr(3, 0)}, res.Accounts.Get("first"))
}

func TestRun_EmptyFiltersExtractFromEveryInstruction(t *testing.T) {
	ledger := newFakeLedger()
	ledger.push(testSig(1), testTx(1, false, programP, 2))
	multi := testTx(2, true, programQ, 2)
	multi.Instructions = append(multi.Instructions, model.InstructionRecord{
		ProgramID: programP,
		Accounts:  []model.Address{testAddr(9, 9)},
	})
	ledger.push(testSig(2), multi)

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("first", 0))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{testAddr(2, 0), testAddr(9, 9), testAddr(1, 0)}, res.Accounts.Get("first"))
	assert.Equal(t, 2, res.Summary.MatchedTransactions)
	assert.Equal(t, 3, res.Summary.MatchedInstructions)
}

func TestRun_OutOfRangePositionsEmitNothing(t *testing.T) {
	ledger := linearHistory(4, 3)

	cfg := mustBuild(t, NewBuilder(target).
		AddExtraction("third", 2).
		AddExtraction("far", 3).
		AddExtraction("farther", 100))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Len(t, res.Accounts.Get("third"), 4)
	assert.Empty(t, res.Accounts.Get("far"))
	assert.Empty(t, res.Accounts.Get("farther"))
	assert.Equal(t, []string{"third", "far", "farther"}, res.Accounts.Labels)
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	var results []model.CrawlResult
	for _, workers := range []int{1, 3, 8, 32} {
		ledger := linearHistory(40, 6)
		ledger.delay = func(sig model.Signature) time.Duration {
			return time.Duration((int(sig[1])*7)%5) * time.Millisecond
		}

		cfg := mustBuild(t, NewBuilder(target).
			Workers(workers).
			BatchSize(15).
			AddExtraction("a", 1).
			AddExtraction("b", 4))
		engine, _ := newTestEngine(ledger)
		res, err := engine.Run(context.Background(), cfg)
		require.NoError(t, err)

		assert.LessOrEqual(t, ledger.maxInFlight, workers)
		results = append(results, res.Accounts)
	}
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
	require.Len(t, results[0].Get("a"), 40)
	assert.Equal(t, testAddr(40, 1), results[0].Get("a")[0])
	assert.Equal(t, testAddr(1, 1), results[0].Get("a")[39])
}

func TestRun_Idempotent(t *testing.T) {
	ledger := linearHistory(12, 6)
	cfg := mustBuild(t, NewBuilder(target).BatchSize(5).AddExtraction("x", 5))
	engine, _ := newTestEngine(ledger)

	first, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Accounts, second.Accounts)
	assert.Equal(t, first.Summary, second.Summary)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_CancellationYieldsPrefix(t *testing.T) {
	build := func() (*fakeLedger, Config) {
		ledger := linearHistory(30, 3)
		cfg := mustBuild(t, NewBuilder(target).Workers(4).BatchSize(10).AddExtraction("x", 0))
		return ledger, cfg
	}

	ledger, cfg := build()
	engine, _ := newTestEngine(ledger)
	full, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, full.Accounts.Get("x"), 30)

	ledger, cfg = build()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Newest first: index 10 opens the second batch.
	trigger := ledger.history[10].Signature
	ledger.hook = func(ctx context.Context, sig model.Signature) error {
		if sig.Equals(trigger) {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	engine, _ = newTestEngine(ledger)
	partial, err := engine.Run(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	got := partial.Accounts.Get("x")
	assert.Equal(t, full.Accounts.Get("x")[:10], got)
	assert.True(t, partial.Summary.Cancelled)
	assert.Equal(t, 10, partial.Summary.Processed)
	assert.Equal(t, 1, partial.Summary.Batches)
	assert.Equal(t, 0, partial.Summary.Skipped())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ledger := linearHistory(3, 1)
	cfg := mustBuild(t, NewBuilder(target).AddExtraction("x", 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(ctx, cfg)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, res.Summary.Cancelled)
	assert.Empty(t, res.Accounts.Get("x"))
	assert.Equal(t, 0, ledger.listCalls)
}

func TestRun_TransientFailureRecovers(t *testing.T) {
	ledger := linearHistory(3, 2)
	ledger.failures[testSig(2)] = []error{
		retry.Transient(errors.New("503 service unavailable")),
		retry.Transient(errors.New("429 too many requests")),
	}

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("x", 1))
	engine, sleeps := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Len(t, res.Accounts.Get("x"), 3)
	assert.Equal(t, 3, ledger.calls(testSig(2)))
	assert.Equal(t, 2, sleeps.count())
	assert.Equal(t, []time.Duration{retry.DefaultBaseDelay, 2 * retry.DefaultBaseDelay}, sleeps.delays)
	assert.Equal(t, 0, res.Summary.Skipped())
}

func TestRun_TransientFailureExhausted(t *testing.T) {
	ledger := linearHistory(3, 2)
	var errs []error
	for i := 0; i < 10; i++ {
		errs = append(errs, retry.Transient(errors.New("timeout")))
	}
	ledger.failures[testSig(2)] = errs

	cfg := mustBuild(t, NewBuilder(target).
		Retry(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}).
		AddExtraction("x", 0))
	engine, sleeps := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{testAddr(3, 0), testAddr(1, 0)}, res.Accounts.Get("x"))
	assert.Equal(t, 1, res.Summary.TransientExhausted)
	assert.Equal(t, 0, res.Summary.PermanentSkipped)
	assert.Equal(t, 3, res.Summary.Processed)
	assert.Equal(t, 3, ledger.calls(testSig(2)))
	assert.Equal(t, 2, sleeps.count())
}

func TestRun_PermanentFailureSkipsImmediately(t *testing.T) {
	ledger := linearHistory(2, 2)
	ledger.push(testSig(3), nil)

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("x", 0))
	engine, sleeps := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.PermanentSkipped)
	assert.Equal(t, 1, ledger.calls(testSig(3)))
	assert.Equal(t, 0, sleeps.count())
	assert.Len(t, res.Accounts.Get("x"), 2)
}

func TestRun_FetchTimeoutIsTransient(t *testing.T) {
	ledger := linearHistory(2, 1)
	first := true
	ledger.hook = func(ctx context.Context, sig model.Signature) error {
		if sig.Equals(testSig(1)) && first {
			first = false
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	cfg := mustBuild(t, NewBuilder(target).Workers(1).FetchTimeout(20*time.Millisecond).AddExtraction("x", 0))
	engine, sleeps := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Len(t, res.Accounts.Get("x"), 2)
	assert.Equal(t, 2, ledger.calls(testSig(1)))
	assert.Equal(t, 1, sleeps.count())
}

func TestRun_RecordsAttributedToTarget(t *testing.T) {
	ledger := linearHistory(3, 1)
	var seen []model.Address
	cfg := mustBuild(t, NewBuilder(target).
		AddTxFilter(filter.TxFunc{Label: "target", Fn: func(tx *model.TransactionRecord) bool {
			seen = append(seen, tx.Target)
			return true
		}}))

	engine, _ := newTestEngine(ledger)
	_, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{target, target, target}, seen)
	assert.True(t, ledger.txs[testSig(1)].Target.IsZero())
}

func TestRun_ConfigErrorsFailBeforeFetch(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty target", NewBuilder(model.Address{}).cfg},
		{"zero workers", NewBuilder(target).Workers(0).cfg},
		{"duplicate extraction", NewBuilder(target).AddExtraction("m", 5).AddExtraction("m", 5).cfg},
		{"negative position", NewBuilder(target).AddExtraction("m", -1).cfg},
		{"empty label", NewBuilder(target).AddExtraction("", 1).cfg},
		{"zero attempts", NewBuilder(target).Retry(retry.Policy{}).cfg},
		{"nil filter", NewBuilder(target).AddTxFilter(nil).cfg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := linearHistory(2, 1)
			engine, _ := newTestEngine(ledger)
			_, err := engine.Run(context.Background(), tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Equal(t, 0, ledger.listCalls)
		})
	}
}

func TestRun_NilReader(t *testing.T) {
	engine := NewEngine(nil, slog.Default())
	_, err := engine.Run(context.Background(), mustBuild(t, NewBuilder(target)))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRun_ListingFailureReturnsPartialResult(t *testing.T) {
	ledger := linearHistory(6, 1)
	ledger.listErr = func(call int) error {
		if call >= 2 {
			return retry.Terminal(errors.New("listing broke"))
		}
		return nil
	}

	cfg := mustBuild(t, NewBuilder(target).BatchSize(3).AddExtraction("x", 0))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListingFailed)
	assert.False(t, res.Summary.Cancelled)
	assert.Len(t, res.Accounts.Get("x"), 3)
}

func TestRun_ListingRetriesTransientErrors(t *testing.T) {
	ledger := linearHistory(2, 1)
	ledger.listErr = func(call int) error {
		if call == 1 {
			return retry.Transient(errors.New("429"))
		}
		return nil
	}

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("x", 0))
	engine, sleeps := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, res.Accounts.Get("x"), 2)
	assert.Equal(t, 1, sleeps.count())
}

func TestRun_CheckpointAfterEveryBatch(t *testing.T) {
	ledger := linearHistory(7, 1)
	cps := &checkpointRecorder{err: errors.New("disk full")}

	cfg := mustBuild(t, NewBuilder(target).BatchSize(3).AddExtraction("x", 0))
	engine, _ := newTestEngine(ledger, WithCheckpointer(cps))
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err, "checkpoint failures do not stop the run")

	require.Len(t, cps.cps, 4, "three batches and the completion")
	assert.Equal(t, testSig(5), *cps.cps[0].LastSignature)
	assert.Equal(t, testSig(2), *cps.cps[1].LastSignature)
	assert.Equal(t, testSig(1), *cps.cps[2].LastSignature)
	assert.Equal(t, 7, cps.cps[2].Summary.Processed)
	assert.False(t, cps.cps[2].Summary.Completed)
	assert.Equal(t, []model.LabeledAddress{
		{Label: "x", Address: testAddr(7, 0)},
		{Label: "x", Address: testAddr(6, 0)},
		{Label: "x", Address: testAddr(5, 0)},
	}, cps.cps[0].Appended)

	final := cps.cps[3]
	assert.True(t, final.Summary.Completed)
	assert.Empty(t, final.Appended)
	assert.Equal(t, testSig(1), *final.LastSignature)
	for _, cp := range cps.cps {
		assert.Equal(t, res.RunID, cp.RunID)
		assert.Equal(t, target, cp.Target)
		assert.Equal(t, res.StartedAt, cp.StartedAt)
	}
}

func TestRun_ContinuePriorRun(t *testing.T) {
	ledger := linearHistory(5, 1)
	last := testSig(4)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	accounts := model.NewCrawlResult([]string{"x"})
	accounts.Accounts["x"] = []model.Address{testAddr(5, 0), testAddr(4, 0)}
	prior := Prior{
		Accounts:  accounts,
		Summary:   model.Summary{Processed: 2, MatchedTransactions: 2, Batches: 1, LastSignature: &last, Cancelled: true},
		StartedAt: started,
	}
	cps := &checkpointRecorder{}

	cfg := mustBuild(t, NewBuilder(target).BatchSize(2).AddExtraction("x", 0).Continue(prior))
	require.NotNil(t, cfg.Resume)
	assert.Equal(t, last, *cfg.Resume)

	engine, _ := newTestEngine(ledger, WithCheckpointer(cps))
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{
		testAddr(5, 0), testAddr(4, 0), testAddr(3, 0), testAddr(2, 0), testAddr(1, 0),
	}, res.Accounts.Get("x"))
	assert.Equal(t, 5, res.Summary.Processed)
	assert.Equal(t, 5, res.Summary.MatchedTransactions)
	assert.Equal(t, 3, res.Summary.Batches)
	assert.False(t, res.Summary.Cancelled)
	assert.True(t, res.Summary.Completed)
	assert.True(t, started.Equal(res.StartedAt))
	assert.Zero(t, ledger.calls(testSig(5)))
	assert.Zero(t, ledger.calls(testSig(4)))

	require.Len(t, cps.cps, 3)
	assert.Equal(t, []model.LabeledAddress{
		{Label: "x", Address: testAddr(3, 0)},
		{Label: "x", Address: testAddr(2, 0)},
	}, cps.cps[0].Appended)
	assert.Equal(t, 4, cps.cps[0].Summary.Processed)
	assert.True(t, started.Equal(cps.cps[0].StartedAt))
}

func TestRun_ContinueHonoursMaxTransactionsPerInvocation(t *testing.T) {
	ledger := linearHistory(5, 1)
	last := testSig(4)
	prior := Prior{Summary: model.Summary{Processed: 2, LastSignature: &last}}

	cfg := mustBuild(t, NewBuilder(target).MaxTransactions(2).AddExtraction("x", 0).Continue(prior))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Summary.Processed)
	assert.False(t, res.Summary.Completed, "stopping at the cap leaves history to sweep")
	assert.Equal(t, []model.Address{testAddr(3, 0), testAddr(2, 0)}, res.Accounts.Get("x"))
}

func TestRun_LowerBoundOutsideTargetHistory(t *testing.T) {
	ledger := linearHistory(5, 1)
	bound := testSig(99)
	ledger.txs[bound] = &model.TransactionRecord{Signature: bound, Slot: 103}

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("x", 0).UntilSignature(bound))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{testAddr(5, 0), testAddr(4, 0), testAddr(3, 0)}, res.Accounts.Get("x"))
	assert.Zero(t, ledger.calls(testSig(2)))
	assert.True(t, res.Summary.Completed)
}

func TestRun_UnknownLowerBound(t *testing.T) {
	ledger := linearHistory(3, 1)
	bound := testSig(99)

	cfg := mustBuild(t, NewBuilder(target).AddExtraction("x", 0).UntilSignature(bound))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, ledger.listCalls)
	assert.Equal(t, uuid.Nil, res.RunID, "nothing ran, so nothing is reported")
}

func TestRun_ResumeFromSignature(t *testing.T) {
	ledger := linearHistory(5, 1)
	cfg := mustBuild(t, NewBuilder(target).ResumeFrom(testSig(3)).AddExtraction("x", 0))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{testAddr(2, 0), testAddr(1, 0)}, res.Accounts.Get("x"))
}

func TestRun_WithRunID(t *testing.T) {
	ledger := linearHistory(1, 1)
	id := uuid.MustParse("3b241101-e2bb-4255-8caf-4136c566a962")
	engine, _ := newTestEngine(ledger, WithRunID(id))
	res, err := engine.Run(context.Background(), mustBuild(t, NewBuilder(target)))
	require.NoError(t, err)
	assert.Equal(t, id, res.RunID)
}

func TestRun_ReverseResult(t *testing.T) {
	ledger := linearHistory(3, 1)
	cfg := mustBuild(t, NewBuilder(target).ReverseResult(true).AddExtraction("x", 0))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{testAddr(1, 0), testAddr(2, 0), testAddr(3, 0)}, res.Accounts.Get("x"))
}

func TestRun_Dedupe(t *testing.T) {
	ledger := newFakeLedger()
	shared := testAddr(0xBB, 0xBB)
	for i := 1; i <= 3; i++ {
		tx := testTx(i, true, programP, 2)
		tx.Instructions[0].Accounts[1] = shared
		ledger.push(testSig(i), tx)
	}

	cfg := mustBuild(t, NewBuilder(target).Dedupe(true).AddExtraction("x", 1))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []model.Address{shared}, res.Accounts.Get("x"))
}

func TestRun_DedupeReversedKeepsOldestOccurrence(t *testing.T) {
	ledger := newFakeLedger()
	shared := testAddr(0xBB, 0xBB)
	for i := 1; i <= 4; i++ {
		tx := testTx(i, true, programP, 2)
		if i == 1 || i == 3 {
			tx.Instructions[0].Accounts[1] = shared
		}
		ledger.push(testSig(i), tx)
	}

	newest := mustBuild(t, NewBuilder(target).Dedupe(true).AddExtraction("x", 1))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), newest)
	require.NoError(t, err)
	assert.Equal(t, []model.Address{testAddr(4, 1), shared, testAddr(2, 1)}, res.Accounts.Get("x"))

	oldest := mustBuild(t, NewBuilder(target).Dedupe(true).ReverseResult(true).AddExtraction("x", 1))
	res, err = engine.Run(context.Background(), oldest)
	require.NoError(t, err)
	assert.Equal(t, []model.Address{shared, testAddr(2, 1), testAddr(4, 1)}, res.Accounts.Get("x"))
}

func TestRun_MaxTransactions(t *testing.T) {
	ledger := linearHistory(10, 1)
	cfg := mustBuild(t, NewBuilder(target).BatchSize(4).MaxTransactions(6).AddExtraction("x", 0))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Summary.Processed)
	assert.Len(t, res.Accounts.Get("x"), 6)
	assert.Equal(t, []int{4, 2}, ledger.listLimits)
}

func TestRun_SharedLabelsMerge(t *testing.T) {
	ledger := linearHistory(2, 3)
	cfg := mustBuild(t, NewBuilder(target).AddExtraction("acct", 0).AddExtraction("acct", 2))
	engine, _ := newTestEngine(ledger)
	res, err := engine.Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []model.Address{
		testAddr(2, 0), testAddr(2, 2),
		testAddr(1, 0), testAddr(1, 2),
	}, res.Accounts.Get("acct"))
}
