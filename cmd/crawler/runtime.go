package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/alert"
	"github.com/emperorhan/solana-tx-crawler/internal/chain/ratelimit"
	"github.com/emperorhan/solana-tx-crawler/internal/chain/solana"
	"github.com/emperorhan/solana-tx-crawler/internal/chain/solana/rpc"
	"github.com/emperorhan/solana-tx-crawler/internal/circuitbreaker"
	"github.com/emperorhan/solana-tx-crawler/internal/config"
	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/metrics"
	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/emperorhan/solana-tx-crawler/internal/store/postgres"
	redispkg "github.com/emperorhan/solana-tx-crawler/internal/store/redis"
	"github.com/emperorhan/solana-tx-crawler/internal/store/sqlite"
	"github.com/emperorhan/solana-tx-crawler/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serviceName     = "solana-tx-crawler"
	persistTimeout  = 30 * time.Second
	alertTimeout    = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// app holds everything a command needs once env config is loaded.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.CrawlStore
	publisher *redispkg.Publisher
	alerter   *alert.MultiAlerter
	health    *crawler.Health
	closers   []func() error

	alerts sync.WaitGroup
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// setupApp loads env config, applies flag overrides and opens the optional
// tracing, store and publisher backends.
func setupApp(ctx context.Context, logLevel, logFormat string, logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = strings.ToLower(logLevel)
	}
	if logFormat != "" {
		cfg.Log.Format = strings.ToLower(logFormat)
	}

	logger := newLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		alerter: newAlerter(cfg.Alert, logger),
		health:  crawler.NewHealth(cfg.Solana.Network.String()),
	}
	a.closers = append(a.closers, func() error {
		a.alerts.Wait()
		return nil
	})

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownTracing(shutdownCtx)
	})
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	if a.store, err = openStore(ctx, cfg.Store, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.store != nil {
		a.closers = append(a.closers, a.store.Close)
	}

	if cfg.Redis.URL != "" {
		a.publisher, err = redispkg.NewPublisher(ctx, cfg.Redis.URL,
			redispkg.WithStream(cfg.Redis.Stream),
			redispkg.WithMaxLen(cfg.Redis.MaxLen),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize redis publisher: %w", err)
		}
		a.closers = append(a.closers, a.publisher.Close)
		logger.Info("redis publisher enabled", "stream", a.publisher.Stream())
	}

	return a, nil
}

func newAlerter(cfg config.AlertConfig, logger *slog.Logger) *alert.MultiAlerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) > 0 {
		logger.Info("alerting enabled", "channels", len(channels), "cooldown", cfg.Cooldown)
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...)
}

// notify sends an alert and only logs delivery failures.
func (a *app) notify(ctx context.Context, al alert.Alert) {
	if a.alerter == nil || a.alerter.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if err := a.alerter.Send(ctx, al); err != nil {
		a.logger.Warn("alert delivery failed", "type", al.Type, "error", err)
	}
}

// notifyAsync is notify for callers that hold locks. Close waits for it.
func (a *app) notifyAsync(al alert.Alert) {
	a.alerts.Add(1)
	go func() {
		defer a.alerts.Done()
		a.notify(context.Background(), al)
	}()
}

// notifyRun reports a finished run. Successful runs are only announced when
// ALERT_ON_SUCCESS is set.
func (a *app) notifyRun(ctx context.Context, res crawler.Result, runErr error) {
	if runErr == nil && !a.cfg.Alert.OnSuccess {
		return
	}
	a.notify(ctx, alert.ForRun(res, a.cfg.Solana.Network.String(), runErr))
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.CrawlStore, error) {
	switch cfg.Backend {
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.SQLiteDir, sqlite.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("sqlite store opened", "path", s.Path())
		return store.Instrument(s, config.StoreSQLite), nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			URL:             cfg.DBURL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("connected to database")
		return store.Instrument(s, config.StorePostgres), nil
	default:
		return nil, nil
	}
}

// Close releases backends in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown error", "error", err)
		}
	}
	a.closers = nil
}

// newEngine wires the RPC client, limiter, breaker and ledger adapter.
func (a *app) newEngine(opts ...crawler.Option) *crawler.Engine {
	sol := a.cfg.Solana
	network := sol.Network.String()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             sol.RPCURL,
		FailureThreshold: a.cfg.Breaker.FailureThreshold,
		SuccessThreshold: a.cfg.Breaker.SuccessThreshold,
		OpenTimeout:      a.cfg.Breaker.OpenTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.RPCBreakerState.WithLabelValues(name).Set(float64(to))
			a.logger.Warn("rpc circuit breaker state changed", "endpoint", name, "from", from.String(), "to", to.String())
			if to == circuitbreaker.StateOpen {
				a.notifyAsync(alert.ForBreakerOpen(name, network))
			}
		},
	})

	client := rpc.NewClient(sol.RPCURL, a.logger,
		rpc.WithNetwork(network),
		rpc.WithRateLimiter(ratelimit.NewLimiter(sol.RPS, sol.Burst, network)),
		rpc.WithCircuitBreaker(breaker),
		rpc.WithHTTPTimeout(sol.Timeout),
	)
	reader := solana.NewAdapter(client, a.logger,
		solana.WithNetwork(network),
		solana.WithCommitment(sol.Commitment),
		solana.WithTransactionCache(a.cfg.Crawl.TxCacheSize),
	)

	base := []crawler.Option{crawler.WithNetwork(network)}
	if a.health != nil {
		base = append(base, crawler.WithHealth(a.health))
	}
	return crawler.NewEngine(reader, a.logger, append(base, opts...)...)
}

// healthHandler reports the crawl health snapshot. It answers 503 while the
// crawl is unhealthy.
func healthHandler(health *crawler.Health, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := health.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap.Status == string(crawler.HealthStatusUnhealthy) {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	}
}

// startMetricsServer serves /metrics and /healthz until ctx is done. It is a
// no-op when addr is empty.
func startMetricsServer(ctx context.Context, addr string, health *crawler.Health, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(health, logger))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
}
