package alert

import (
	"errors"
	"strconv"

	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
)

// ForRun builds the notification for a finished run. runErr is what
// Engine.Run returned.
func ForRun(res crawler.Result, network string, runErr error) Alert {
	a := Alert{
		Type:    AlertTypeRunCompleted,
		Target:  res.Target.String(),
		Network: network,
		Title:   "Crawl completed",
		Fields: map[string]string{
			"run_id":               res.RunID.String(),
			"processed":            strconv.Itoa(res.Summary.Processed),
			"matched_transactions": strconv.Itoa(res.Summary.MatchedTransactions),
			"accounts":             strconv.Itoa(res.Accounts.Total()),
			"skipped":              strconv.Itoa(res.Summary.Skipped()),
			"duration":             res.FinishedAt.Sub(res.StartedAt).String(),
		},
	}
	switch {
	case errors.Is(runErr, crawler.ErrCancelled):
		a.Type = AlertTypeRunCancelled
		a.Title = "Crawl cancelled"
		a.Message = "Partial results were written."
	case runErr != nil:
		a.Type = AlertTypeRunFailed
		a.Title = "Crawl failed"
		a.Message = runErr.Error()
	default:
		a.Message = strconv.Itoa(res.Accounts.Total()) + " account(s) extracted."
	}
	return a
}

// ForBreakerOpen builds the notification for an RPC endpoint that stopped
// answering.
func ForBreakerOpen(endpoint, network string) Alert {
	return Alert{
		Type:    AlertTypeBreakerOpen,
		Target:  endpoint,
		Network: network,
		Title:   "RPC circuit breaker opened",
		Message: "Calls to the endpoint fail fast until it recovers.",
	}
}
