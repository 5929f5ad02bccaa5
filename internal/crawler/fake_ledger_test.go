package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/chain"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

// fakeLedger serves a fixed history, newest first.
type fakeLedger struct {
	mu      sync.Mutex
	history []model.SignatureInfo
	txs     map[model.Signature]*model.TransactionRecord

	// failures are returned, in order, before the record is served.
	failures map[model.Signature][]error
	// listErr, when set, is consulted before every listing call (1-based).
	listErr func(call int) error
	// emptyPages makes the first n listing calls return nothing.
	emptyPages int
	// hook runs at the start of every GetTransaction call.
	hook func(ctx context.Context, sig model.Signature) error
	// delay holds a fetch for the returned duration.
	delay func(sig model.Signature) time.Duration

	listCalls   int
	listLimits  []int
	getCalls    map[model.Signature]int
	inFlight    int
	maxInFlight int
}

var _ chain.LedgerReader = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		txs:      make(map[model.Signature]*model.TransactionRecord),
		failures: make(map[model.Signature][]error),
		getCalls: make(map[model.Signature]int),
	}
}

// push adds rec as the next newer transaction. A nil rec lists the
// signature without serving a body.
func (f *fakeLedger) push(sig model.Signature, rec *model.TransactionRecord) {
	info := model.SignatureInfo{Signature: sig, Slot: uint64(len(f.history) + 1)}
	if rec != nil {
		info.BlockTime = rec.BlockTime
		info.Slot = rec.Slot
		f.txs[sig] = rec
	}
	f.history = append([]model.SignatureInfo{info}, f.history...)
}

func (f *fakeLedger) ListSignatures(ctx context.Context, _ model.Address, before *model.Signature, limit int) ([]model.SignatureInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++
	f.listLimits = append(f.listLimits, limit)
	if f.listErr != nil {
		if err := f.listErr(f.listCalls); err != nil {
			return nil, err
		}
	}
	if f.emptyPages > 0 {
		f.emptyPages--
		return nil, nil
	}

	start := 0
	if before != nil {
		start = len(f.history)
		for i, info := range f.history {
			if info.Signature.Equals(*before) {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(f.history))
	if start >= end {
		return nil, nil
	}
	return append([]model.SignatureInfo(nil), f.history[start:end]...), nil
}

func (f *fakeLedger) GetTransaction(ctx context.Context, sig model.Signature) (*model.TransactionRecord, error) {
	f.mu.Lock()
	f.getCalls[sig]++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.hook != nil {
		if err := f.hook(ctx, sig); err != nil {
			return nil, err
		}
	}
	if f.delay != nil {
		select {
		case <-time.After(f.delay(sig)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.failures[sig]; len(errs) > 0 {
		f.failures[sig] = errs[1:]
		return nil, errs[0]
	}
	rec, ok := f.txs[sig]
	if !ok {
		return nil, chain.ErrTransactionNotFound
	}
	return rec, nil
}

func (f *fakeLedger) calls(sig model.Signature) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[sig]
}

// sleepRecorder is a retry.SleepFunc that returns immediately.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

type checkpointRecorder struct {
	mu  sync.Mutex
	cps []model.Checkpoint
	err error
}

func (c *checkpointRecorder) SaveCheckpoint(_ context.Context, cp model.Checkpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cps = append(c.cps, cp)
	return c.err
}

func testAddr(a, b byte) model.Address {
	return model.Address{a, b, 0xCC}
}

func testSig(n int) model.Signature {
	return model.Signature{byte(n >> 8), byte(n), 0xEE}
}

// testTx builds a transaction with one instruction of program and accounts
// account accounts unique to n.
func testTx(n int, success bool, program model.Address, accounts int) *model.TransactionRecord {
	bt := time.Unix(int64(1_600_000_000+n*10), 0).UTC()
	ix := model.InstructionRecord{ProgramID: program, Data: []byte{byte(n)}}
	for j := 0; j < accounts; j++ {
		ix.Accounts = append(ix.Accounts, testAddr(byte(n), byte(j)))
	}
	rec := &model.TransactionRecord{
		Signature: testSig(n),
		Slot:      uint64(100 + n),
		BlockTime: &bt,
		Success:   success,
		AccountKeys: []model.AccountKey{
			{Address: testAddr(byte(n), 0), Signer: true, Writable: true},
			{Address: program},
		},
		Instructions: []model.InstructionRecord{ix},
	}
	if !success {
		rec.Err = "InstructionError"
	}
	return rec
}
