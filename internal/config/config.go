package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/solana-tx-crawler/internal/chain/solana/rpc"
	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/emperorhan/solana-tx-crawler/internal/pipeline/retry"
)

const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	Solana  SolanaConfig
	Breaker BreakerConfig
	Crawl   CrawlConfig
	Retry   RetryConfig
	Store   StoreConfig
	Redis   RedisConfig
	Tracing TracingConfig
	Alert   AlertConfig
	Server  ServerConfig
	Log     LogConfig
}

type SolanaConfig struct {
	RPCURL     string
	Network    model.Network
	Commitment string
	RPS        float64
	Burst      int
	Timeout    time.Duration
}

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

type CrawlConfig struct {
	Workers          int
	BatchSize        int
	FetchTimeout     time.Duration
	TxCacheSize      int
	EmptyPageRetries int
}

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Policy converts the settings into a retry policy.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.InitialBackoff,
		MaxDelay:    c.MaxBackoff,
	}
}

type StoreConfig struct {
	Backend         string
	SQLiteDir       string
	DBURL           string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL disables publishing.
type RedisConfig struct {
	URL    string
	Stream string
	MaxLen int64
}

type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
	OnSuccess       bool
}

type ServerConfig struct {
	MetricsAddr string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	network := model.Network(getEnv("SOLANA_NETWORK", string(model.NetworkMainnet)))
	cfg := &Config{
		Solana: SolanaConfig{
			RPCURL:     getEnv("SOLANA_RPC_URL", network.DefaultRPCURL()),
			Network:    network,
			Commitment: getEnv("SOLANA_COMMITMENT", rpc.CommitmentFinalized),
			RPS:        getEnvFloat("RPC_RPS", 10),
			Burst:      getEnvInt("RPC_BURST", 10),
			Timeout:    time.Duration(getEnvInt("RPC_TIMEOUT_SEC", 30)) * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvInt("RPC_BREAKER_FAILURES", 5),
			SuccessThreshold: getEnvInt("RPC_BREAKER_SUCCESSES", 2),
			OpenTimeout:      time.Duration(getEnvInt("RPC_BREAKER_OPEN_SEC", 30)) * time.Second,
		},
		Crawl: CrawlConfig{
			Workers:          getEnvInt("CRAWL_WORKERS", crawler.DefaultWorkers),
			BatchSize:        getEnvInt("CRAWL_BATCH_SIZE", crawler.DefaultBatchSize),
			FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SEC", int(crawler.DefaultFetchTimeout/time.Second))) * time.Second,
			TxCacheSize:      getEnvInt("TX_CACHE_SIZE", 0),
			EmptyPageRetries: getEnvInt("EMPTY_PAGE_RETRIES", 0),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", retry.DefaultMaxAttempts),
			InitialBackoff: time.Duration(getEnvInt("RETRY_BACKOFF_INITIAL_MS", 200)) * time.Millisecond,
			MaxBackoff:     time.Duration(getEnvInt("RETRY_BACKOFF_MAX_MS", 5000)) * time.Millisecond,
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
			SQLiteDir:       getEnv("SQLITE_DIR", ""),
			DBURL:           getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Stream: getEnv("REDIS_STREAM", "crawler:accounts"),
			MaxLen: int64(getEnvInt("REDIS_STREAM_MAXLEN", 0)),
		},
		Tracing: TracingConfig{
			Endpoint:    getEnv("TRACING_ENDPOINT", ""),
			Insecure:    getEnvBool("TRACING_INSECURE", false),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("ALERT_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 1800)) * time.Second,
			OnSuccess:       getEnvBool("ALERT_ON_SUCCESS", false),
		},
		Server: ServerConfig{
			MetricsAddr: getEnv("METRICS_ADDR", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required for network %q", c.Solana.Network)
	}
	switch c.Solana.Commitment {
	case rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("SOLANA_COMMITMENT must be confirmed or finalized, got %q", c.Solana.Commitment)
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("CRAWL_WORKERS must be positive")
	}
	if c.Crawl.BatchSize <= 0 || c.Crawl.BatchSize > 1000 {
		return fmt.Errorf("CRAWL_BATCH_SIZE must be within [1, 1000]")
	}
	if c.Crawl.EmptyPageRetries < 0 {
		return fmt.Errorf("EMPTY_PAGE_RETRIES must not be negative")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("RETRY_BACKOFF_MAX_MS must not be below RETRY_BACKOFF_INITIAL_MS")
	}
	switch c.Store.Backend {
	case StoreNone, StoreSQLite:
	case StorePostgres:
		if c.Store.DBURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of none, sqlite, postgres, got %q", c.Store.Backend)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATIO must be within [0, 1]")
	}
	if c.Alert.Cooldown < 0 {
		return fmt.Errorf("ALERT_COOLDOWN_SEC must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
