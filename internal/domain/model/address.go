package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Address is a ledger account key.
type Address = solana.PublicKey

// Signature identifies a transaction and orders it within an account history.
type Signature = solana.Signature

// ParseAddress decodes a base58 account key.
func ParseAddress(s string) (Address, error) {
	return solana.PublicKeyFromBase58(s)
}

// ParseSignature decodes a base58 transaction signature.
func ParseSignature(s string) (Signature, error) {
	return solana.SignatureFromBase58(s)
}

// SignatureInfo is one entry of an account's reverse-chronological history.
type SignatureInfo struct {
	Signature Signature
	Slot      uint64
	BlockTime *time.Time
	Failed    bool
}
