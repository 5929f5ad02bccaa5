package solana

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emperorhan/solana-tx-crawler/internal/chain/solana/rpc"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/mr-tron/base58"
)

var errMissingTransaction = errors.New("response has no transaction body")

// decodeTransaction turns a json-encoded getTransaction result into a record.
// Account order is static keys, then loaded writable, then loaded readonly,
// which is the order instruction account indices refer to.
func decodeTransaction(sig model.Signature, resp *rpc.TransactionResponse) (*model.TransactionRecord, error) {
	if resp.Transaction == nil {
		return nil, errMissingTransaction
	}
	msg := resp.Transaction.Message
	header := msg.Header
	static := len(msg.AccountKeys)
	if header.NumRequiredSignatures > static ||
		header.NumReadonlySignedAccounts > header.NumRequiredSignatures ||
		header.NumReadonlyUnsignedAccounts > static-header.NumRequiredSignatures {
		return nil, fmt.Errorf("message header %+v does not fit %d account keys", header, static)
	}

	var loadedWritable, loadedReadonly []string
	if resp.Meta != nil && resp.Meta.LoadedAddresses != nil {
		loadedWritable = resp.Meta.LoadedAddresses.Writable
		loadedReadonly = resp.Meta.LoadedAddresses.Readonly
	}

	keys := make([]model.AccountKey, 0, static+len(loadedWritable)+len(loadedReadonly))
	for i, s := range msg.AccountKeys {
		addr, err := model.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("account key %d: %w", i, err)
		}
		keys = append(keys, model.AccountKey{
			Address:  addr,
			Signer:   i < header.NumRequiredSignatures,
			Writable: staticWritable(i, static, header),
		})
	}
	for _, group := range []struct {
		addrs    []string
		writable bool
	}{{loadedWritable, true}, {loadedReadonly, false}} {
		for _, s := range group.addrs {
			addr, err := model.ParseAddress(s)
			if err != nil {
				return nil, fmt.Errorf("loaded address %q: %w", s, err)
			}
			keys = append(keys, model.AccountKey{Address: addr, Writable: group.writable})
		}
	}

	instructions := make([]model.InstructionRecord, 0, len(msg.Instructions))
	for n, ix := range msg.Instructions {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", n, ix.ProgramIDIndex)
		}
		accounts := make([]model.Address, 0, len(ix.Accounts))
		for _, idx := range ix.Accounts {
			if idx < 0 || idx >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", n, idx)
			}
			accounts = append(accounts, keys[idx].Address)
		}
		data, err := base58.Decode(ix.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", n, err)
		}
		instructions = append(instructions, model.InstructionRecord{
			ProgramID: keys[ix.ProgramIDIndex].Address,
			Accounts:  accounts,
			Data:      data,
		})
	}

	rec := &model.TransactionRecord{
		Signature:    sig,
		Slot:         resp.Slot,
		BlockTime:    unixTime(resp.BlockTime),
		AccountKeys:  keys,
		Instructions: instructions,
	}
	switch {
	case resp.Meta == nil:
		rec.Err = "transaction status unavailable"
	case resp.Meta.Err != nil:
		rec.Err = encodeTxError(resp.Meta.Err)
	default:
		rec.Success = true
	}
	if resp.Meta != nil {
		rec.LogMessages = resp.Meta.LogMessages
	}
	return rec, nil
}

func staticWritable(i, total int, h rpc.MessageHeader) bool {
	if i < h.NumRequiredSignatures {
		return i < h.NumRequiredSignatures-h.NumReadonlySignedAccounts
	}
	return i < total-h.NumReadonlyUnsignedAccounts
}

func encodeTxError(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
