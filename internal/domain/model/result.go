package model

import "slices"

// CrawlResult maps extraction labels to the addresses discovered for them, in
// discovery order. Labels keeps the configured label order so callers can
// render buckets deterministically.
type CrawlResult struct {
	Labels   []string
	Accounts map[string][]Address
}

// NewCrawlResult creates a result with an empty bucket per label.
func NewCrawlResult(labels []string) CrawlResult {
	r := CrawlResult{
		Labels:   make([]string, 0, len(labels)),
		Accounts: make(map[string][]Address, len(labels)),
	}
	for _, label := range labels {
		if _, ok := r.Accounts[label]; ok {
			continue
		}
		r.Labels = append(r.Labels, label)
		r.Accounts[label] = []Address{}
	}
	return r
}

// Get returns the addresses collected for label.
func (r CrawlResult) Get(label string) []Address {
	return r.Accounts[label]
}

// Total returns the number of addresses across all buckets.
func (r CrawlResult) Total() int {
	n := 0
	for _, addrs := range r.Accounts {
		n += len(addrs)
	}
	return n
}

// Clone returns a deep copy.
func (r CrawlResult) Clone() CrawlResult {
	out := CrawlResult{
		Labels:   append([]string(nil), r.Labels...),
		Accounts: make(map[string][]Address, len(r.Accounts)),
	}
	for label, addrs := range r.Accounts {
		out.Accounts[label] = append([]Address{}, addrs...)
	}
	return out
}

// Reversed returns a deep copy with every bucket in the opposite order.
func (r CrawlResult) Reversed() CrawlResult {
	out := r.Clone()
	for _, addrs := range out.Accounts {
		slices.Reverse(addrs)
	}
	return out
}

// Summary counts what happened during a run.
type Summary struct {
	Processed           int  `json:"processed"`
	MatchedTransactions int  `json:"matched_transactions"`
	MatchedInstructions int  `json:"matched_instructions"`
	TransientExhausted  int  `json:"transient_exhausted"`
	PermanentSkipped    int  `json:"permanent_skipped"`
	Batches             int  `json:"batches"`
	Cancelled           bool `json:"cancelled"`
	// Completed is set when the sweep reached the end of history or its
	// lower bound. A completed run cannot be resumed.
	Completed bool `json:"completed"`

	// LastSignature is the oldest signature of the last completed batch.
	LastSignature *Signature `json:"last_signature,omitempty"`
}

// Skipped returns the number of signatures that could not be fetched.
func (s Summary) Skipped() int {
	return s.TransientExhausted + s.PermanentSkipped
}
