package filter

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

type programID struct {
	program model.Address
}

// ProgramID keeps instructions executed by program.
func ProgramID(program model.Address) IxFilter { return programID{program: program} }

func (f programID) Name() string { return "program_id(" + f.program.String() + ")" }

func (f programID) MatchInstruction(ix *model.InstructionRecord) bool {
	return ix != nil && ix.ProgramID.Equals(f.program)
}

// CountOp compares an instruction's account count with a constant.
type CountOp string

const (
	CountEq  CountOp = "eq"
	CountLt  CountOp = "lt"
	CountLte CountOp = "lte"
	CountGt  CountOp = "gt"
	CountGte CountOp = "gte"
)

// Valid reports whether op is a known comparison.
func (op CountOp) Valid() bool {
	switch op {
	case CountEq, CountLt, CountLte, CountGt, CountGte:
		return true
	}
	return false
}

func (op CountOp) compare(got, want int) bool {
	switch op {
	case CountEq:
		return got == want
	case CountLt:
		return got < want
	case CountLte:
		return got <= want
	case CountGt:
		return got > want
	case CountGte:
		return got >= want
	default:
		return false
	}
}

type accountCount struct {
	op CountOp
	n  int
}

// AccountCount keeps instructions whose account count satisfies op n. An
// unknown op matches nothing.
func AccountCount(op CountOp, n int) IxFilter { return accountCount{op: op, n: n} }

func (f accountCount) Name() string { return fmt.Sprintf("account_count(%s %d)", f.op, f.n) }

func (f accountCount) MatchInstruction(ix *model.InstructionRecord) bool {
	return ix != nil && f.op.compare(len(ix.Accounts), f.n)
}

type accountCountRange struct {
	lo, hi int
}

// AccountCountRange keeps instructions with lo <= account count <= hi.
func AccountCountRange(lo, hi int) IxFilter { return accountCountRange{lo: lo, hi: hi} }

func (f accountCountRange) Name() string {
	return fmt.Sprintf("account_count_range(%d,%d)", f.lo, f.hi)
}

func (f accountCountRange) MatchInstruction(ix *model.InstructionRecord) bool {
	if ix == nil {
		return false
	}
	n := len(ix.Accounts)
	return n >= f.lo && n <= f.hi
}

type dataEquals struct {
	data []byte
}

// DataEquals keeps instructions whose payload is exactly data.
func DataEquals(data []byte) IxFilter {
	return dataEquals{data: append([]byte{}, data...)}
}

func (f dataEquals) Name() string { return "data_equals(" + hex.EncodeToString(f.data) + ")" }

func (f dataEquals) MatchInstruction(ix *model.InstructionRecord) bool {
	return ix != nil && bytes.Equal(ix.Data, f.data)
}

type dataPrefix struct {
	prefix []byte
}

// DataPrefix keeps instructions whose payload starts with prefix, such as an
// Anchor discriminator.
func DataPrefix(prefix []byte) IxFilter {
	return dataPrefix{prefix: append([]byte{}, prefix...)}
}

func (f dataPrefix) Name() string { return "data_prefix(" + hex.EncodeToString(f.prefix) + ")" }

func (f dataPrefix) MatchInstruction(ix *model.InstructionRecord) bool {
	return ix != nil && bytes.HasPrefix(ix.Data, f.prefix)
}

type hasAccount struct {
	account model.Address
}

// HasAccount keeps instructions that reference account at any position.
func HasAccount(account model.Address) IxFilter { return hasAccount{account: account} }

func (f hasAccount) Name() string { return "has_account(" + f.account.String() + ")" }

func (f hasAccount) MatchInstruction(ix *model.InstructionRecord) bool {
	if ix == nil {
		return false
	}
	for _, a := range ix.Accounts {
		if a.Equals(f.account) {
			return true
		}
	}
	return false
}

type accountAt struct {
	index   int
	account model.Address
}

// AccountAt keeps instructions with account at position index. Instructions
// too short to have that position do not match.
func AccountAt(index int, account model.Address) IxFilter {
	return accountAt{index: index, account: account}
}

func (f accountAt) Name() string {
	return fmt.Sprintf("account_at(%d,%s)", f.index, f.account)
}

func (f accountAt) MatchInstruction(ix *model.InstructionRecord) bool {
	if ix == nil || f.index < 0 || f.index >= len(ix.Accounts) {
		return false
	}
	return ix.Accounts[f.index].Equals(f.account)
}
