package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
)

// MarkdownWriter outputs a human-readable summary of a run.
type MarkdownWriter struct {
	output io.Writer
}

func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

func (w *MarkdownWriter) Write(r Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r)
	w.writeSummary(md, r)
	w.writeAccounts(md, r)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r Report) {
	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + r.RunID + "`"},
			{"Target", "`" + r.Target + "`"},
			{"Started", r.StartedAt.Format(time.RFC3339)},
			{"Finished", r.FinishedAt.Format(time.RFC3339)},
			{"Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()},
			{"Status", statusText(r)},
		},
	})
	md.PlainText("")

	switch {
	case r.Error != "":
		md.Cautionf("Run failed after %d batch(es): %s", r.Summary.Batches, r.Error)
		md.PlainText("")
	case r.Summary.Cancelled:
		md.Warningf("Run was cancelled after %d batch(es). Results are partial.", r.Summary.Batches)
		md.PlainText("")
	}
}

func statusText(r Report) string {
	switch {
	case r.Error != "":
		return "Failed"
	case r.Summary.Cancelled:
		return "Cancelled"
	default:
		return "Complete"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, r Report) {
	md.H2("Summary")
	md.PlainText("")

	s := r.Summary
	rows := [][]string{
		{"Signatures processed", strconv.Itoa(s.Processed)},
		{"Batches", strconv.Itoa(s.Batches)},
		{"Matched transactions", strconv.Itoa(s.MatchedTransactions)},
		{"Matched instructions", strconv.Itoa(s.MatchedInstructions)},
		{"Skipped (retries exhausted)", strconv.Itoa(s.TransientExhausted)},
		{"Skipped (permanent)", strconv.Itoa(s.PermanentSkipped)},
	}
	if s.LastSignature != nil {
		rows = append(rows, []string{"Last signature", "`" + s.LastSignature.String() + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAccounts(md *markdown.Markdown, r Report) {
	md.H2("Accounts")
	md.PlainText("")

	if len(r.Labels) == 0 {
		md.PlainText("No extractions configured.")
		md.PlainText("")
		return
	}

	for _, label := range r.Labels {
		addrs := r.Accounts[label]
		md.H3(label + " (" + strconv.Itoa(len(addrs)) + ")")
		md.PlainText("")
		if len(addrs) == 0 {
			md.PlainText("No addresses extracted.")
			md.PlainText("")
			continue
		}
		items := make([]string, len(addrs))
		for i, a := range addrs {
			items[i] = "`" + a + "`"
		}
		md.BulletList(items...)
		md.PlainText("")
	}
}
