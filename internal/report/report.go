// Package report renders crawl results for people and tools.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
)

const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Report is the rendered view of a run. Accounts preserves discovery order
// within each label; Labels preserves configured label order.
type Report struct {
	RunID      string              `json:"run_id"`
	Target     string              `json:"target"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Labels     []string            `json:"labels"`
	Accounts   map[string][]string `json:"accounts"`
	Summary    model.Summary       `json:"summary"`
	Error      string              `json:"error,omitempty"`
}

// FromResult builds a report. runErr is the error Run returned, if any.
func FromResult(res crawler.Result, runErr error) Report {
	r := Report{
		RunID:      res.RunID.String(),
		Target:     res.Target.String(),
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
		Labels:     append([]string{}, res.Accounts.Labels...),
		Accounts:   make(map[string][]string, len(res.Accounts.Labels)),
		Summary:    res.Summary,
	}
	for _, label := range res.Accounts.Labels {
		addrs := res.Accounts.Get(label)
		out := make([]string, len(addrs))
		for i, a := range addrs {
			out[i] = a.String()
		}
		r.Accounts[label] = out
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Writer renders a report to its output.
type Writer interface {
	Write(r Report) (int, error)
}

// New returns the writer for format.
func New(format string, output io.Writer) (Writer, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
