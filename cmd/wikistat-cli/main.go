package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"wikistat/internal/config"
	"wikistat/internal/domain"
	"wikistat/internal/ledger"
	"wikistat/internal/report"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: wikistat-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  status     Show file counts and rows per status\n")
	fmt.Fprintf(os.Stderr, "  failed     List files whose last load failed\n")
	fmt.Fprintf(os.Stderr, "  list       List files with the given -status\n")
	fmt.Fprintf(os.Stderr, "  reset      Forget files with the given -status (FAILED by default, -all for everything)\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	fmt.Fprintf(os.Stderr, "  -config path   config file (default $WIKISTAT_CONFIG or %s)\n", config.DefaultPath)
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	fs.Usage = usage
	cfgFlag := fs.String("config", "", "config file")
	statusFlag := fs.String("status", string(domain.StatusFailed), "record status")
	all := fs.Bool("all", false, "reset every record")
	fs.Parse(os.Args[2:])

	if cmd == "version" {
		fmt.Printf("wikistat-cli %s\n", version)
		return
	}

	switch cmd {
	case "status", "failed", "list", "reset":
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(config.Path(*cfgFlag))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	l, err := ledger.OpenSQLite(ctx, cfg.Ledger.Path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer l.Close()

	if err := run(ctx, os.Stdout, l, cmd, *statusFlag, *all); err != nil {
		l.Close()
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(ctx context.Context, w io.Writer, l ledger.Ledger, cmd, statusFlag string, all bool) error {
	switch cmd {
	case "status":
		totals, err := l.Summary(ctx)
		if err != nil {
			return err
		}
		report.WriteStatusSummary(w, totals)

	case "failed", "list":
		status := domain.StatusFailed
		if cmd == "list" {
			var err error
			if status, err = domain.ParseStatus(statusFlag); err != nil {
				return err
			}
		}
		outcomes, err := l.Outcomes(ctx, status)
		if err != nil {
			return err
		}
		report.WriteOutcomes(w, outcomes)

	case "reset":
		var status domain.Status
		if !all {
			var err error
			if status, err = domain.ParseStatus(statusFlag); err != nil {
				return err
			}
		}
		n, err := l.Reset(ctx, status)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "removed %d records\n", n)
	}
	return nil
}
