package rpc

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC request/response types

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// getSignaturesForAddress response
type SignatureInfo struct {
	Signature          string      `json:"signature"`
	Slot               uint64      `json:"slot"`
	BlockTime          *int64      `json:"blockTime"`
	Err                interface{} `json:"err"`
	Memo               *string     `json:"memo"`
	ConfirmationStatus *string     `json:"confirmationStatus"`
}

// getTransaction response (encoding=json)
type TransactionResponse struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Transaction *UiTransaction   `json:"transaction"`
	Meta        *TransactionMeta `json:"meta"`
	Version     json.RawMessage  `json:"version"`
}

type UiTransaction struct {
	Signatures []string  `json:"signatures"`
	Message    UiMessage `json:"message"`
}

type UiMessage struct {
	AccountKeys     []string              `json:"accountKeys"`
	Header          MessageHeader         `json:"header"`
	Instructions    []CompiledInstruction `json:"instructions"`
	RecentBlockhash string                `json:"recentBlockhash"`
}

type MessageHeader struct {
	NumRequiredSignatures       int `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   int `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts int `json:"numReadonlyUnsignedAccounts"`
}

type CompiledInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
	StackHeight    *int   `json:"stackHeight"`
}

type TransactionMeta struct {
	Err             interface{}      `json:"err"`
	Fee             uint64           `json:"fee"`
	LogMessages     []string         `json:"logMessages"`
	LoadedAddresses *LoadedAddresses `json:"loadedAddresses"`
}

// LoadedAddresses lists accounts pulled in through address lookup tables
// by versioned transactions. They follow the static keys in account order.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}
