package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"wikistat/internal/config"
	"wikistat/internal/executor"
	"wikistat/internal/store"
	"wikistat/internal/util"
)

// newExecutor builds the executor selected by cfg.Executor.Mode. The returned
// function releases its resources and may be called more than once.
func newExecutor(ctx context.Context, cfg *config.Config, log *slog.Logger) (executor.Executor, func(), error) {
	switch cfg.Executor.Mode {
	case config.ModeSQL:
		return newSQLExecutor(ctx, cfg, log)
	case config.ModeNative:
		e, err := newNativeExecutor(ctx, cfg, log)
		return e, func() {}, err
	}
	return nil, nil, fmt.Errorf("unknown executor mode %q", cfg.Executor.Mode)
}

func newSQLExecutor(ctx context.Context, cfg *config.Config, log *slog.Logger) (executor.Executor, func(), error) {
	scripts, err := executor.DefaultScripts()
	if cfg.Engine.SQLDir != "" {
		scripts, err = executor.ScriptsFromDir(cfg.Engine.SQLDir)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading sql scripts: %w", err)
	}

	if dsn := cfg.Engine.DSN; dsn != "" && dsn != ":memory:" && !strings.Contains(dsn, "://") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating engine directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Engine.Driver, cfg.Engine.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s engine: %w", cfg.Engine.Driver, err)
	}
	closed := false
	closeDB := func() {
		if !closed {
			closed = true
			db.Close()
		}
	}

	e, err := executor.NewSQLExecutor(db, executor.SQLOptions{
		Driver:        cfg.Engine.Driver,
		BaseURL:       cfg.Wikipedia.BaseURL,
		Table:         cfg.Engine.Table,
		KeywordsTable: cfg.Engine.KeywordsTable,
		Scripts:       scripts,
	}, log)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	if err := e.Setup(ctx, cfg.Keywords); err != nil {
		closeDB()
		return nil, nil, err
	}
	return e, closeDB, nil
}

func newNativeExecutor(ctx context.Context, cfg *config.Config, log *slog.Logger) (executor.Executor, error) {
	opts := executor.NativeOptions{
		BaseURL:     cfg.Wikipedia.BaseURL,
		Client:      &http.Client{Timeout: cfg.Executor.Timeout},
		Matcher:     executor.NewKeywordMatcher(cfg.Keywords, cfg.Match.FoldCase),
		Store:       store.NewParquetStore(cfg.Output.DataDir),
		Limiter:     util.NewRateLimiter(cfg.Executor.RateLimitPerMin),
		MaxAttempts: cfg.Executor.Retries + 1,
		RetryDelay:  cfg.Executor.RetryDelay,
	}

	if cfg.S3.Bucket != "" {
		client, err := store.NewS3Client(store.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Secure:    cfg.S3.Secure,
		})
		if err != nil {
			return nil, err
		}
		pub := store.NewPublisher(client, cfg.S3.Bucket, cfg.S3.Prefix)
		if err := pub.Check(ctx); err != nil {
			return nil, err
		}
		opts.Publisher = pub
	}

	if len(cfg.Keywords) == 0 {
		log.Warn("no keywords configured, every file will load zero rows")
	}
	return executor.NewNativeExecutor(opts, log)
}
