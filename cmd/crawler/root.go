package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Crawl a Solana account's history and extract accounts",
		Long: `crawler pages backwards through the transaction history of one account,
fetches every transaction, keeps the ones that pass the configured filters and
collects accounts at fixed instruction positions into labelled buckets.

Connection, concurrency, retry and storage settings come from the environment
(optionally a .env file). What to crawl comes from a YAML plan.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadDotEnv(envFile)
		},
	}

	cmd.PersistentFlags().String("env-file", "", "Load environment from this file (default: .env when present)")
	cmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "", "Override LOG_FORMAT (json, text)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewPresetsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDotEnv loads path, or .env when path is empty. A missing default
// .env is not an error. Existing variables are never overridden.
func loadDotEnv(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
