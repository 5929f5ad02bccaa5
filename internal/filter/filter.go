// Package filter holds the transaction and instruction predicates a crawl
// applies to fetched records.
package filter

import "github.com/emperorhan/solana-tx-crawler/internal/domain/model"

// TxFilter decides whether a whole transaction is of interest. Filters must
// not mutate the record and must return false when they cannot decide.
type TxFilter interface {
	Name() string
	MatchTransaction(tx *model.TransactionRecord) bool
}

// IxFilter decides whether one instruction is of interest.
type IxFilter interface {
	Name() string
	MatchInstruction(ix *model.InstructionRecord) bool
}

// TxFunc adapts a plain function to TxFilter.
type TxFunc struct {
	Label string
	Fn    func(tx *model.TransactionRecord) bool
}

func (f TxFunc) Name() string {
	if f.Label == "" {
		return "custom_tx"
	}
	return f.Label
}

func (f TxFunc) MatchTransaction(tx *model.TransactionRecord) bool {
	if f.Fn == nil || tx == nil {
		return false
	}
	return f.Fn(tx)
}

// IxFunc adapts a plain function to IxFilter.
type IxFunc struct {
	Label string
	Fn    func(ix *model.InstructionRecord) bool
}

func (f IxFunc) Name() string {
	if f.Label == "" {
		return "custom_ix"
	}
	return f.Label
}

func (f IxFunc) MatchInstruction(ix *model.InstructionRecord) bool {
	if f.Fn == nil || ix == nil {
		return false
	}
	return f.Fn(ix)
}

// Pipeline is the conjunction of two ordered filter chains. An empty chain
// accepts everything. Evaluation stops at the first rejecting filter.
type Pipeline struct {
	tx []TxFilter
	ix []IxFilter
}

// NewPipeline copies the given chains; later changes to the slices do not
// affect the pipeline.
func NewPipeline(tx []TxFilter, ix []IxFilter) *Pipeline {
	return &Pipeline{
		tx: append([]TxFilter(nil), tx...),
		ix: append([]IxFilter(nil), ix...),
	}
}

func (p *Pipeline) TransactionMatches(tx *model.TransactionRecord) bool {
	for _, f := range p.tx {
		if !f.MatchTransaction(tx) {
			return false
		}
	}
	return true
}

func (p *Pipeline) InstructionMatches(ix *model.InstructionRecord) bool {
	for _, f := range p.ix {
		if !f.MatchInstruction(ix) {
			return false
		}
	}
	return true
}

// Names lists the configured filters in evaluation order, tx chain first.
func (p *Pipeline) Names() (tx []string, ix []string) {
	tx = make([]string, 0, len(p.tx))
	for _, f := range p.tx {
		tx = append(tx, f.Name())
	}
	ix = make([]string, 0, len(p.ix))
	for _, f := range p.ix {
		ix = append(ix, f.Name())
	}
	return tx, ix
}
