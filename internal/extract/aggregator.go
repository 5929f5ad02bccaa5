package extract

import (
	"slices"
	"sync"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

// Aggregator accumulates extracted addresses per label. The label set is
// fixed at construction.
type Aggregator struct {
	mu       sync.Mutex
	result   model.CrawlResult
	dedupe   bool
	keepLast bool
	// seen maps an address to its index in the bucket.
	seen    map[string]map[model.Address]int
	removed map[string]map[int]struct{}
}

// NewAggregator creates an aggregator with an empty bucket per label. With
// dedupe set, an address is kept only at its first occurrence in a bucket.
func NewAggregator(labels []string, dedupe bool) *Aggregator {
	a := &Aggregator{
		result: model.NewCrawlResult(labels),
		dedupe: dedupe,
	}
	if dedupe {
		a.seen = make(map[string]map[model.Address]int, len(labels))
		a.removed = make(map[string]map[int]struct{}, len(labels))
		for _, label := range a.result.Labels {
			a.seen[label] = make(map[model.Address]int)
			a.removed[label] = make(map[int]struct{})
		}
	}
	return a
}

// KeepLast makes dedupe keep the last occurrence of an address instead of
// the first. Call it before the first Append.
func (a *Aggregator) KeepLast() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keepLast = true
}

// Append adds pairs in order and returns the ones that were stored. Pairs for
// unknown labels are dropped, and so are duplicates when dedupe keeps the
// first occurrence.
func (a *Aggregator) Append(pairs []Pair) []Pair {
	a.mu.Lock()
	defer a.mu.Unlock()

	var added []Pair
	for _, p := range pairs {
		if a.appendLocked(p.Label, p.Address) {
			added = append(added, p)
		}
	}
	return added
}

// Seed loads addresses collected earlier, bucket by bucket in stored order,
// as if they had been appended. Buckets for unknown labels are dropped.
func (a *Aggregator) Seed(prior model.CrawlResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, label := range prior.Labels {
		for _, addr := range prior.Get(label) {
			a.appendLocked(label, addr)
		}
	}
}

// Must be called with mu held.
func (a *Aggregator) appendLocked(label string, addr model.Address) bool {
	bucket, ok := a.result.Accounts[label]
	if !ok {
		return false
	}
	if a.dedupe {
		if idx, dup := a.seen[label][addr]; dup {
			if !a.keepLast {
				return false
			}
			a.removed[label][idx] = struct{}{}
		}
		a.seen[label][addr] = len(bucket)
	}
	a.result.Accounts[label] = append(bucket, addr)
	return true
}

// compact drops the occurrences superseded under KeepLast. Must be called
// with mu held.
func (a *Aggregator) compact() {
	for label, removed := range a.removed {
		if len(removed) == 0 {
			continue
		}
		bucket := a.result.Accounts[label]
		kept := make([]model.Address, 0, len(bucket)-len(removed))
		for i, addr := range bucket {
			if _, gone := removed[i]; gone {
				continue
			}
			a.seen[label][addr] = len(kept)
			kept = append(kept, addr)
		}
		a.result.Accounts[label] = kept
		a.removed[label] = make(map[int]struct{})
	}
}

// Reverse flips every bucket so the oldest discovery comes first.
func (a *Aggregator) Reverse() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compact()
	for label, addrs := range a.result.Accounts {
		slices.Reverse(addrs)
		if a.dedupe {
			for i, addr := range addrs {
				a.seen[label][addr] = i
			}
		}
	}
}

// Result returns a copy of the accumulated buckets.
func (a *Aggregator) Result() model.CrawlResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compact()
	return a.result.Clone()
}
