// Package redis publishes finished crawl results to a Redis stream.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/redis/go-redis/v9"
)

const DefaultStream = "crawler:accounts"

// Publisher appends one stream entry per extracted address.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

type Option func(*Publisher)

// WithStream overrides DefaultStream.
func WithStream(name string) Option {
	return func(p *Publisher) {
		if name != "" {
			p.stream = name
		}
	}
}

// WithMaxLen caps the stream length with approximate trimming.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.maxLen = n
		}
	}
}

func NewPublisher(ctx context.Context, url string, opts ...Option) (*Publisher, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(ropts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newPublisher(client, opts...), nil
}

func newPublisher(client *redis.Client, opts ...Option) *Publisher {
	p := &Publisher{client: client, stream: DefaultStream}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stream returns the stream name entries are appended to.
func (p *Publisher) Stream() string {
	return p.stream
}

// Publish pipelines the run's addresses into the stream and returns how many
// entries were added.
func (p *Publisher) Publish(ctx context.Context, run store.RunRecord) (int, error) {
	msgs := addressMessages(run)
	if len(msgs) == 0 {
		return 0, nil
	}

	pipe := p.client.Pipeline()
	for _, values := range msgs {
		args := &redis.XAddArgs{Stream: p.stream, Values: values}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return len(msgs), nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

func addressMessages(run store.RunRecord) []map[string]any {
	var out []map[string]any
	runID := run.RunID.String()
	target := run.Target.String()
	for _, label := range run.Accounts.Labels {
		for i, addr := range run.Accounts.Get(label) {
			out = append(out, map[string]any{
				"run_id":  runID,
				"target":  target,
				"label":   label,
				"ordinal": strconv.Itoa(i),
				"address": addr.String(),
			})
		}
	}
	return out
}
