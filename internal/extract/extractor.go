// Package extract pulls labeled account references out of matching
// instructions and collects them per label.
package extract

import (
	"errors"
	"fmt"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

var ErrInvalidSpec = errors.New("invalid extraction spec")

// Spec extracts the account at Position of every matching instruction into
// the Label bucket.
type Spec struct {
	Label    string `yaml:"label" json:"label"`
	Position int    `yaml:"position" json:"position"`
}

func (s Spec) String() string {
	return fmt.Sprintf("%s@%d", s.Label, s.Position)
}

// Pair is one extracted address destined for a label.
type Pair struct {
	Label   string
	Address model.Address
}

// Extractor applies an ordered list of specs to instructions.
type Extractor struct {
	specs  []Spec
	labels []string
}

// NewExtractor validates specs. Several specs may share a label as long as
// their positions differ; their addresses merge into one bucket.
func NewExtractor(specs []Spec) (*Extractor, error) {
	seen := make(map[Spec]struct{}, len(specs))
	labelSeen := make(map[string]struct{}, len(specs))
	e := &Extractor{
		specs: make([]Spec, 0, len(specs)),
	}
	for _, s := range specs {
		if s.Label == "" {
			return nil, fmt.Errorf("%w: empty label", ErrInvalidSpec)
		}
		if s.Position < 0 {
			return nil, fmt.Errorf("%w: %s: negative position", ErrInvalidSpec, s)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("%w: %s configured twice", ErrInvalidSpec, s)
		}
		seen[s] = struct{}{}
		e.specs = append(e.specs, s)
		if _, ok := labelSeen[s.Label]; !ok {
			labelSeen[s.Label] = struct{}{}
			e.labels = append(e.labels, s.Label)
		}
	}
	return e, nil
}

// Labels returns the distinct labels in configuration order.
func (e *Extractor) Labels() []string {
	return append([]string(nil), e.labels...)
}

// Specs returns the configured specs in order.
func (e *Extractor) Specs() []Spec {
	return append([]Spec(nil), e.specs...)
}

// Extract returns one pair per spec whose position exists in ix, in spec
// order. Positions past the end of the account list yield nothing.
func (e *Extractor) Extract(ix *model.InstructionRecord) []Pair {
	if ix == nil {
		return nil
	}
	var pairs []Pair
	for _, s := range e.specs {
		if s.Position >= len(ix.Accounts) {
			continue
		}
		pairs = append(pairs, Pair{Label: s.Label, Address: ix.Accounts[s.Position]})
	}
	return pairs
}
