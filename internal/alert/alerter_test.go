package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingAlerter) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiAlerter_Cooldown(t *testing.T) {
	rec := &recordingAlerter{}
	m := NewMultiAlerter(time.Minute, testLogger(), rec)
	now := time.Unix(1_700_000_000, 0)
	m.nowFn = func() time.Time { return now }

	a := Alert{Type: AlertTypeRunFailed, Target: "acct", Network: "devnet"}
	require.NoError(t, m.Send(context.Background(), a))
	require.NoError(t, m.Send(context.Background(), a))
	assert.Equal(t, 1, rec.count())

	other := a
	other.Target = "other"
	require.NoError(t, m.Send(context.Background(), other))
	assert.Equal(t, 2, rec.count(), "different target has its own cooldown")

	now = now.Add(2 * time.Minute)
	require.NoError(t, m.Send(context.Background(), a))
	assert.Equal(t, 3, rec.count())
}

func TestMultiAlerter_FanOutReturnsFirstError(t *testing.T) {
	failing := &recordingAlerter{err: errors.New("boom")}
	ok := &recordingAlerter{}
	m := NewMultiAlerter(0, testLogger(), failing, ok)

	err := m.Send(context.Background(), Alert{Type: AlertTypeRunCompleted})
	require.Error(t, err)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count(), "later channels still receive the alert")
}

func TestMultiAlerter_NoChannels(t *testing.T) {
	m := NewMultiAlerter(time.Minute, testLogger())
	assert.Zero(t, m.Len())
	assert.NoError(t, m.Send(context.Background(), Alert{Type: AlertTypeRunFailed}))
}

func TestSlackAlerter_PostsText(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackAlerter(srv.URL)
	err := s.Send(context.Background(), Alert{
		Type:    AlertTypeRunFailed,
		Target:  "acct",
		Network: "devnet",
		Title:   "Crawl failed",
		Message: "listing broke",
		Fields:  map[string]string{"processed": "3", "batches": "1"},
	})
	require.NoError(t, err)
	assert.Contains(t, body["text"], ":x: *[RUN_FAILED]* devnet/acct: Crawl failed")
	assert.Contains(t, body["text"], "listing broke")
	assert.Less(t, strings.Index(body["text"], "batches"), strings.Index(body["text"], "processed"))
}

func TestSlackAlerter_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlackAlerter(srv.URL).Send(context.Background(), Alert{Type: AlertTypeRunCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack returned status 500")
}

func TestWebhookAlerter_PostsJSON(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookAlerter(srv.URL)
	w.nowFn = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	err := w.Send(context.Background(), Alert{
		Type:    AlertTypeBreakerOpen,
		Target:  "https://rpc.example",
		Network: "mainnet",
		Title:   "RPC circuit breaker opened",
	})
	require.NoError(t, err)
	assert.Equal(t, "RPC_BREAKER_OPEN", payload["type"])
	assert.Equal(t, "https://rpc.example", payload["target"])
	assert.Equal(t, "mainnet", payload["network"])
	assert.Equal(t, "2024-01-02T03:04:05Z", payload["time"])
}

func TestWebhookAlerter_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewWebhookAlerter(url).Send(context.Background(), Alert{Type: AlertTypeRunFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send webhook alert")
}
