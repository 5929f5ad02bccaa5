package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/emperorhan/solana-tx-crawler/internal/config"
	"github.com/emperorhan/solana-tx-crawler/internal/crawler"
	"github.com/emperorhan/solana-tx-crawler/internal/report"
	"github.com/emperorhan/solana-tx-crawler/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	// ErrNoCheckpoint is returned by resume when the target was never
	// checkpointed.
	ErrNoCheckpoint = errors.New("no checkpoint for target")
	// ErrRunCompleted is returned by resume when the latest run already swept
	// the whole history; start a new crawl instead.
	ErrRunCompleted = errors.New("latest run already completed")
)

type crawlOptions struct {
	planPath   string
	target     string
	preset     string
	workers    int
	output     string
	format     string
	reverse    bool
	checkpoint bool
	resume     bool
}

func NewCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a target's history from the newest transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	addCrawlFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.checkpoint, "checkpoint", true, "Save a checkpoint to the store after every batch")
	return cmd
}

func NewResumeCmd() *cobra.Command {
	opts := &crawlOptions{resume: true, checkpoint: true}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue the latest checkpointed crawl of a target",
		Long: `resume loads the newest checkpoint stored for the plan's target and
continues paging from the oldest signature it recorded, under the same run ID.
Only addresses discovered after the checkpoint are reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	addCrawlFlags(cmd, opts)
	return cmd
}

func addCrawlFlags(cmd *cobra.Command, opts *crawlOptions) {
	cmd.Flags().StringVarP(&opts.planPath, "plan", "p", "", "YAML crawl plan")
	cmd.Flags().StringVar(&opts.target, "target", "", "Override the plan's target account")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "Override the plan's preset")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Override concurrent transaction fetches")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVarP(&opts.format, "format", "f", report.FormatJSON, "Report format (json, markdown)")
	cmd.Flags().BoolVar(&opts.reverse, "reverse", false, "Report addresses oldest first")
	_ = cmd.MarkFlagRequired("plan")
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := config.LoadPlan(opts.planPath)
	if err != nil {
		return err
	}
	if opts.target != "" {
		plan.Target = opts.target
	}
	if opts.preset != "" {
		plan.Preset = opts.preset
	}
	if opts.reverse {
		plan.Reverse = true
	}
	if opts.workers > 0 {
		plan.Workers = opts.workers
	}

	// Reject unknown formats before any RPC traffic.
	if _, err := report.New(opts.format, io.Discard); err != nil {
		return err
	}

	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")
	a, err := setupApp(ctx, logLevel, logFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	startMetricsServer(metricsCtx, a.cfg.Server.MetricsAddr, a.health, a.logger)

	builder, err := plan.Builder(a.cfg)
	if err != nil {
		return err
	}

	var engineOpts []crawler.Option
	if opts.checkpoint && a.store != nil {
		engineOpts = append(engineOpts, crawler.WithCheckpointer(a.store))
	}
	if opts.resume {
		if a.store == nil {
			return fmt.Errorf("resume needs a store: STORE_BACKEND is %q", a.cfg.Store.Backend)
		}
		probe, err := builder.Build()
		if err != nil {
			return err
		}
		cp, err := a.store.LatestCheckpoint(ctx, probe.Target)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if cp == nil {
			return fmt.Errorf("%w %s", ErrNoCheckpoint, probe.Target)
		}
		prior, err := a.store.LoadRun(ctx, cp.RunID)
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		if cp.Summary.Completed || (prior != nil && prior.Summary.Completed) {
			return fmt.Errorf("%w: run %s for %s", ErrRunCompleted, cp.RunID, probe.Target)
		}

		p := crawler.Prior{Summary: cp.Summary}
		p.Summary.LastSignature = cp.LastSignature
		if prior != nil {
			p.Accounts = prior.Accounts
			p.StartedAt = prior.StartedAt
		}
		builder = builder.Continue(p)
		engineOpts = append(engineOpts, crawler.WithRunID(cp.RunID))
		a.logger.Info("resuming crawl",
			"run_id", cp.RunID,
			"target", probe.Target,
			"checkpoint_updated_at", cp.UpdatedAt,
			"carried_processed", cp.Summary.Processed,
			"carried_accounts", p.Accounts.Total(),
		)
	}

	cfg, err := builder.Build()
	if err != nil {
		return err
	}

	res, runErr := a.newEngine(engineOpts...).Run(ctx, cfg)
	if res.RunID == uuid.Nil {
		return runErr
	}

	// The run context may already be cancelled; the partial result is still
	// written and stored.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	defer a.notifyRun(context.WithoutCancel(ctx), res, runErr)

	if err := writeReport(cmd.OutOrStdout(), opts, res, runErr); err != nil {
		return errors.Join(runErr, err)
	}
	if err := persistResult(persistCtx, a, res, cfg.ReverseResult); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func writeReport(stdout io.Writer, opts *crawlOptions, res crawler.Result, runErr error) error {
	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	w, err := report.New(opts.format, out)
	if err != nil {
		return err
	}
	if _, err := w.Write(report.FromResult(res, runErr)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// persistResult stores the run with its accounts in discovery order, so a
// later resume can continue it, and publishes it as reported.
func persistResult(ctx context.Context, a *app, res crawler.Result, reversed bool) error {
	run := store.RunRecord{
		RunID:      res.RunID,
		Target:     res.Target,
		Accounts:   res.Accounts,
		Summary:    res.Summary,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if a.store != nil {
		stored := run
		if reversed {
			stored.Accounts = res.Accounts.Reversed()
		}
		if err := a.store.SaveResult(ctx, stored); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
	}
	if a.publisher != nil {
		n, err := a.publisher.Publish(ctx, run)
		if err != nil {
			return fmt.Errorf("publish result: %w", err)
		}
		a.logger.Info("result published", "stream", a.publisher.Stream(), "entries", n)
	}
	return nil
}
