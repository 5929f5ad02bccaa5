package preset

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emperorhan/solana-tx-crawler/internal/chain"
	"github.com/emperorhan/solana-tx-crawler/internal/chain/mocks"
	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

var candyMachine = model.Address{0xC4, 0x4D, 0x01}

func accountsN(n int, tag byte) []model.Address {
	out := make([]model.Address, n)
	for i := range out {
		out[i] = model.Address{tag, byte(i), 0x77}
	}
	return out
}

func mintTx(sig model.Signature, program model.Address, accounts []model.Address, logs ...string) *model.TransactionRecord {
	return &model.TransactionRecord{
		Signature: sig,
		Success:   true,
		AccountKeys: []model.AccountKey{
			{Address: accounts[0], Signer: true, Writable: true},
			{Address: program},
		},
		Instructions: []model.InstructionRecord{{ProgramID: program, Accounts: accounts}},
		LogMessages:  logs,
	}
}

func TestLookupAndAll(t *testing.T) {
	p, ok := Lookup("candy-machine-v2")
	require.True(t, ok)
	assert.Equal(t, "candy-machine-v2", p.Name)

	_, ok = Lookup("nope")
	assert.False(t, ok)

	all := All()
	require.Len(t, all, 2)
	assert.Equal(t, "candy-machine-v1", all[0].Name)
}

func TestCandyMachineV1_Config(t *testing.T) {
	cfg, err := CandyMachineV1(candyMachine).Build()
	require.NoError(t, err)

	assert.Equal(t, candyMachine, cfg.Target)
	assert.True(t, cfg.Dedupe)
	assert.Len(t, cfg.TxFilters, 2)
	assert.Len(t, cfg.IxFilters, 3)

	v1Accounts := accountsN(14, 1)
	v1Accounts[1] = candyMachine
	ix := &model.InstructionRecord{ProgramID: CandyMachineV1ProgramID, Accounts: v1Accounts}
	for _, f := range cfg.IxFilters {
		assert.True(t, f.MatchInstruction(ix), f.Name())
	}

	ix.Accounts = accountsN(15, 1)
	assert.False(t, cfg.IxFilters[1].MatchInstruction(ix))
}

func TestCandyMachineV2_EndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockLedgerReader(ctrl)

	minted := accountsN(16, 1)
	botted := accountsN(16, 2)
	short := accountsN(15, 3)
	again := accountsN(17, 4)
	again[4], again[5] = minted[4], minted[5]

	history := []model.SignatureInfo{
		{Signature: model.Signature{4}},
		{Signature: model.Signature{3}},
		{Signature: model.Signature{2}},
		{Signature: model.Signature{1}},
	}
	txs := map[model.Signature]*model.TransactionRecord{
		{4}: mintTx(model.Signature{4}, CandyMachineV2ProgramID, again),
		{3}: mintTx(model.Signature{3}, CandyMachineV2ProgramID, short),
		{2}: mintTx(model.Signature{2}, CandyMachineV2ProgramID, botted, "Program log: "+BotTaxLog+" at 10000000 lamports"),
		{1}: mintTx(model.Signature{1}, CandyMachineV2ProgramID, minted),
	}

	reader.EXPECT().
		ListSignatures(gomock.Any(), candyMachine, (*model.Signature)(nil), 1000).
		Return(history, nil)
	last := model.Signature{1}
	reader.EXPECT().
		ListSignatures(gomock.Any(), candyMachine, &last, 1000).
		Return(nil, nil)
	reader.EXPECT().
		GetTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sig model.Signature) (*model.TransactionRecord, error) {
			rec, ok := txs[sig]
			if !ok {
				return nil, chain.ErrTransactionNotFound
			}
			return rec, nil
		}).
		Times(4)

	cfg, err := CandyMachineV2(candyMachine).Build()
	require.NoError(t, err)

	res, err := crawler.NewEngine(reader, slog.Default()).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{LabelMetadata, LabelMint}, res.Accounts.Labels)
	assert.Equal(t, []model.Address{minted[5]}, res.Accounts.Get(LabelMint))
	assert.Equal(t, []model.Address{minted[4]}, res.Accounts.Get(LabelMetadata))
	assert.Equal(t, 3, res.Summary.MatchedTransactions)
	assert.Equal(t, 2, res.Summary.MatchedInstructions)
}
