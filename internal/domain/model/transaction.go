package model

import "time"

// AccountKey is an entry of a transaction's account table.
type AccountKey struct {
	Address  Address
	Signer   bool
	Writable bool
}

// InstructionRecord is a top-level instruction with its account indices
// already resolved to addresses. Account order is significant.
type InstructionRecord struct {
	ProgramID Address
	Accounts  []Address
	Data      []byte
}

// TransactionRecord is a fully fetched transaction attributed to the crawled
// account. Records are treated as immutable once fetched.
type TransactionRecord struct {
	Signature    Signature
	Target       Address
	Slot         uint64
	BlockTime    *time.Time
	Success      bool
	Err          string // set iff Success is false
	AccountKeys  []AccountKey
	Instructions []InstructionRecord
	LogMessages  []string
}

// HasAccountKey reports whether addr appears in the account table.
func (t *TransactionRecord) HasAccountKey(addr Address) bool {
	for _, key := range t.AccountKeys {
		if key.Address.Equals(addr) {
			return true
		}
	}
	return false
}
