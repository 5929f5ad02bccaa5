package model

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint records how far a run has paged backwards through a target's
// history. It is written after every fully processed batch, and once more
// with Summary.Completed set when the sweep finishes.
type Checkpoint struct {
	RunID         uuid.UUID
	Target        Address
	LastSignature *Signature
	Summary       Summary
	StartedAt     time.Time
	UpdatedAt     time.Time

	// Appended holds the addresses the batch added to the result, in
	// discovery order. Stores append them to the run's accounts.
	Appended []LabeledAddress
}

// LabeledAddress is one extracted address together with its bucket.
type LabeledAddress struct {
	Label   string
	Address Address
}
