// Incremental loader for hourly Wikipedia pageview dumps. Every run loads the
// configured hours that are not yet recorded as loaded in the ledger, so it
// is safe to run repeatedly (e.g. from cron).
//
// Usage:
//
//	go run ./cmd/wikistat-load [-config config/wikistat.yaml] [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"wikistat/internal/config"
	"wikistat/internal/executor"
	"wikistat/internal/ledger"
	"wikistat/internal/load"
	"wikistat/internal/metrics"
	"wikistat/internal/report"
	"wikistat/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "config file (default $WIKISTAT_CONFIG or "+config.DefaultPath+")")
	dryRun := flag.Bool("dry-run", false, "list pending files without loading them")
	flag.Parse()

	cfg, err := config.Load(config.Path(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *dryRun, os.Stdout); err != nil {
		cancel()
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool, out io.Writer) error {
	coord := &load.Coordinator{
		Open:    ledger.SQLiteOpener(cfg.Ledger.Path),
		Log:     logger,
		Timeout: cfg.Executor.Timeout,
	}

	// Planning reads the ledger, so a missing or corrupt ledger fails the run
	// before the engine is touched.
	plan, err := coord.Plan(ctx, cfg.Range())
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	if dryRun {
		fmt.Fprintf(out, "%d candidates, %d pending\n", len(plan.Candidates), len(plan.Pending))
		for _, id := range plan.Pending {
			fmt.Fprintf(out, "  %s  %s%s\n", id.Label(), cfg.Wikipedia.BaseURL, id)
		}
		return nil
	}

	exec, closeExec, err := newExecutor(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up %s executor: %w", cfg.Executor.Mode, err)
	}
	defer closeExec()

	coord.Executor = exec
	if cfg.Metrics.Textfile != "" {
		coord.Metrics = metrics.NewRecorder()
	}

	summary, runErr := coord.Run(ctx, cfg.Range())
	report.WriteRunSummary(out, summary)

	if se, ok := exec.(*executor.SQLExecutor); ok && runErr == nil {
		stats, err := se.Stats(ctx)
		if err != nil {
			logger.Error("reading table statistics", "table", se.Table(), "error", err)
		} else {
			fmt.Fprintln(out)
			report.WriteStats(out, se.Table(), stats)
		}
	}

	if err := coord.Metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Error("writing metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("load run: %w", runErr)
	}
	return nil
}
