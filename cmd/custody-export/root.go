package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fystack/custody-export/custody"
	"github.com/fystack/custody-export/filter"
)

var rootCmd = &cobra.Command{
	Use:   "custody-export",
	Short: "Export custody platform data to CSV",
	Long: `custody-export pulls data from a custody platform API and flattens it into
CSV reports: policy rules with their full condition trees, transaction
history with policy decisions, and vault addresses across organizations.

Every subcommand can also run offline against a saved listing response via
--input, and rows can be narrowed with an inline --filter expression or a
--filter-file policy document.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var rootFlags struct {
	apiURL     string
	apiToken   string
	logLevel   string
	filterExpr string
	filterFile string
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.apiURL, "api-url", envOr("CUSTODY_API_URL", ""),
		"custody API base URL")
	pf.StringVar(&rootFlags.apiToken, "api-token", envOr("CUSTODY_API_TOKEN", ""),
		"API bearer token")
	pf.StringVar(&rootFlags.logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.filterExpr, "filter", "",
		`expression selecting rows to export, e.g. 'rule_action == "block"'`)
	pf.StringVar(&rootFlags.filterFile, "filter-file", "",
		"JSON or YAML filter policy document")
	rootCmd.MarkFlagsMutuallyExclusive("filter", "filter-file")
}

// Execute runs the CLI, cancelling in-flight requests on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", rootFlags.logLevel, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log.With(zap.String("run_id", uuid.NewString())), nil
}

func newClient(log *zap.Logger) (*custody.Client, error) {
	if rootFlags.apiURL == "" {
		return nil, errors.New("missing --api-url (or CUSTODY_API_URL)")
	}
	if rootFlags.apiToken == "" {
		return nil, errors.New("missing --api-token (or CUSTODY_API_TOKEN)")
	}
	return custody.NewClient(rootFlags.apiURL, rootFlags.apiToken, custody.WithLogger(log)), nil
}

func buildFilter() (*filter.Engine, error) {
	switch {
	case rootFlags.filterExpr != "":
		eng, err := filter.CompileExpression(rootFlags.filterExpr)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		return eng, nil
	case rootFlags.filterFile != "":
		eng, err := filter.CompileFile(rootFlags.filterFile)
		if err != nil {
			return nil, fmt.Errorf("compile filter file: %w", err)
		}
		return eng, nil
	default:
		return nil, nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
