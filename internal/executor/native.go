package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"

	"wikistat/internal/domain"
	"wikistat/internal/store"
	"wikistat/internal/util"
)

// Publisher copies a written Parquet file to object storage.
type Publisher interface {
	Publish(ctx context.Context, id domain.FileID, localPath string) (string, error)
}

// NativeOptions configure a NativeExecutor.
type NativeOptions struct {
	BaseURL     string
	Client      *http.Client
	Matcher     *KeywordMatcher
	Store       store.PageviewStore
	Publisher   Publisher // optional
	Limiter     *util.RateLimiter
	MaxAttempts int
	RetryDelay  time.Duration
	UserAgent   string
}

// NativeExecutor downloads a dump over HTTP, keeps the keyword pages and
// writes them to a PageviewStore.
type NativeExecutor struct {
	opts NativeOptions
	log  *slog.Logger
}

// NewNativeExecutor validates opts and returns an executor.
func NewNativeExecutor(opts NativeOptions, log *slog.Logger) (*NativeExecutor, error) {
	if err := ValidateBaseURL(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Matcher == nil {
		return nil, errors.New("native executor: no keyword matcher")
	}
	if opts.Store == nil {
		return nil, errors.New("native executor: no pageview store")
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "wikistat/0.1"
	}
	return &NativeExecutor{opts: opts, log: log}, nil
}

// Name implements Executor.
func (e *NativeExecutor) Name() string { return "native" }

// Load implements Executor.
func (e *NativeExecutor) Load(ctx context.Context, id domain.FileID) (int64, error) {
	hour, err := id.Hour()
	if err != nil {
		return 0, fail(id, err)
	}

	url := e.opts.BaseURL + string(id)
	var rows []domain.Pageview
	var skipped int
	err = util.Retry(ctx, e.opts.MaxAttempts, e.opts.RetryDelay, func() error {
		if err := e.opts.Limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		rows, skipped, err = e.fetch(ctx, url, hour)
		if err != nil {
			e.log.Warn("fetch failed", "file", id, "error", err)
		}
		return err
	})
	if err != nil {
		return 0, fail(id, err)
	}

	path, err := e.opts.Store.WritePageviews(ctx, id, rows)
	if err != nil {
		return 0, fail(id, err)
	}
	if e.opts.Publisher != nil {
		obj, err := e.opts.Publisher.Publish(ctx, id, path)
		if err != nil {
			return 0, fail(id, err)
		}
		e.log.Debug("published", "file", id, "object", obj)
	}

	e.log.Debug("file parsed", "file", id, "rows", len(rows), "skipped_lines", skipped, "path", path)
	return int64(len(rows)), nil
}

// fetch downloads url and filters it while decompressing.
func (e *NativeExecutor) fetch(ctx context.Context, url string, hour time.Time) ([]domain.Pageview, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, util.Permanent(err)
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := e.opts.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, util.Permanent(err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, 0, err
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	rows, skipped, err := ReadPageviews(ctx, gz, hour, e.opts.Matcher)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, util.Permanent(err)
		}
		return nil, 0, err
	}
	return rows, skipped, nil
}

// checkStatus maps HTTP status codes to retryable and permanent errors.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return util.Permanent(fmt.Errorf("dump not found: %s", resp.Request.URL))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("server returned %s", resp.Status)
	default:
		return util.Permanent(fmt.Errorf("server returned %s", resp.Status))
	}
}
