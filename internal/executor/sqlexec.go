package executor

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wikistat/internal/domain"
)

//go:embed sql/*.sql
var embeddedSQL embed.FS

// Default table names.
const (
	DefaultTable         = "wikistat_data_engineering"
	DefaultKeywordsTable = "data_engineering_keywords"
)

var (
	topPagesQuery = mustTemplate("top_pages", `
		SELECT path, CAST(SUM(hits) AS BIGINT) AS total_hits, COUNT(*) AS records
		FROM {table}
		GROUP BY path
		ORDER BY total_hits DESC, path
		LIMIT 10`)

	categoriesQuery = mustTemplate("categories", `
		SELECT kw.category, COUNT(DISTINCT w.path) AS unique_pages, CAST(SUM(w.hits) AS BIGINT) AS total_hits
		FROM {table} w
		INNER JOIN {keywords_table} kw ON w.path = kw.keyword
		GROUP BY kw.category
		ORDER BY total_hits DESC, kw.category`)
)

func mustTemplate(name, text string) *QueryTemplate {
	q, err := ParseQueryTemplate(name, text)
	if err != nil {
		panic(err)
	}
	return q
}

// Scripts holds the statements run by a SQLExecutor: setup scripts executed
// once per run in order, and the per-file load template.
type Scripts struct {
	Setup []*QueryTemplate
	Load  *QueryTemplate
}

// DefaultScripts returns the embedded DuckDB statements.
func DefaultScripts() (Scripts, error) {
	return loadScripts(embeddedSQL, "sql")
}

// ScriptsFromDir reads scripts from dir: the *.sql file whose name starts
// with "load" or "04_" is the load template, the rest are setup scripts run
// in file name order.
func ScriptsFromDir(dir string) (Scripts, error) {
	return loadScripts(os.DirFS(dir), ".")
}

func loadScripts(fsys fs.FS, dir string) (Scripts, error) {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(dir, "*.sql")))
	if err != nil {
		return Scripts{}, err
	}
	sort.Strings(matches)

	var scripts Scripts
	for _, m := range matches {
		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return Scripts{}, err
		}
		name := filepath.Base(m)
		q, err := ParseQueryTemplate(name, string(data))
		if err != nil {
			return Scripts{}, err
		}
		if strings.HasPrefix(name, "04_") || strings.HasPrefix(name, "load") {
			if scripts.Load != nil {
				return Scripts{}, fmt.Errorf("more than one load script: %s and %s", scripts.Load.Name(), name)
			}
			scripts.Load = q
			continue
		}
		scripts.Setup = append(scripts.Setup, q)
	}
	if scripts.Load == nil {
		return Scripts{}, fmt.Errorf("no load script found")
	}
	return scripts, nil
}

// SQLExecutor delegates fetching, parsing and inserting to an analytical SQL
// engine (DuckDB in production). Table names are substituted into every
// statement, and the inserted row count is the growth of that table.
type SQLExecutor struct {
	db      *sql.DB
	driver  string
	baseURL string
	tables  map[string]string
	scripts Scripts
	log     *slog.Logger
}

// SQLOptions configure a SQLExecutor.
type SQLOptions struct {
	Driver        string
	BaseURL       string
	Table         string
	KeywordsTable string
	Scripts       Scripts
}

// NewSQLExecutor validates opts and returns an executor using db. The load
// template must insert into {table}: the row count it reports is read from
// that table.
func NewSQLExecutor(db *sql.DB, opts SQLOptions, log *slog.Logger) (*SQLExecutor, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.KeywordsTable == "" {
		opts.KeywordsTable = DefaultKeywordsTable
	}
	if err := ValidateIdentifier(opts.Table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(opts.KeywordsTable); err != nil {
		return nil, err
	}
	if err := ValidateBaseURL(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Scripts.Load == nil {
		return nil, fmt.Errorf("sql executor: no load template")
	}
	if !opts.Scripts.Load.Uses(PlaceholderTable) {
		return nil, fmt.Errorf("sql executor: load template %s does not reference {%s}",
			opts.Scripts.Load.Name(), PlaceholderTable)
	}
	return &SQLExecutor{
		db:      db,
		driver:  opts.Driver,
		baseURL: opts.BaseURL,
		tables: map[string]string{
			PlaceholderTable:         opts.Table,
			PlaceholderKeywordsTable: opts.KeywordsTable,
		},
		scripts: opts.Scripts,
		log:     log,
	}, nil
}

// Name implements Executor.
func (e *SQLExecutor) Name() string {
	if e.driver == "" {
		return "sql"
	}
	return "sql:" + e.driver
}

// Table returns the pageview table name.
func (e *SQLExecutor) Table() string { return e.tables[PlaceholderTable] }

// KeywordsTable returns the keyword table name.
func (e *SQLExecutor) KeywordsTable() string { return e.tables[PlaceholderKeywordsTable] }

// Setup creates the tables and replaces the keyword list. It is safe to run
// before every load run.
func (e *SQLExecutor) Setup(ctx context.Context, keywords []domain.Keyword) error {
	for _, s := range e.scripts.Setup {
		text, err := s.Render(e.tables)
		if err != nil {
			return err
		}
		e.log.Info("executing setup script", "script", s.Name())
		for _, stmt := range SplitStatements(text) {
			if _, err := e.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("setup script %s: %w", s.Name(), err)
			}
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning keyword transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+e.KeywordsTable()); err != nil {
		return fmt.Errorf("clearing keywords: %w", err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (keyword, category) VALUES (?, ?)", e.KeywordsTable())
	for _, k := range keywords {
		if _, err := tx.ExecContext(ctx, insert, k.Keyword, k.Category); err != nil {
			return fmt.Errorf("inserting keyword %q: %w", k.Keyword, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing keywords: %w", err)
	}

	n, err := e.count(ctx, e.KeywordsTable())
	if err != nil {
		return err
	}
	e.log.Info("keywords table ready", "table", e.KeywordsTable(), "keywords", n)
	return nil
}

// Load renders the load template for id, executes it, and returns how many
// rows the pageview table grew by.
func (e *SQLExecutor) Load(ctx context.Context, id domain.FileID) (int64, error) {
	values := Params(e.baseURL, id)
	for k, v := range e.tables {
		values[k] = v
	}
	stmt, err := e.scripts.Load.Render(values)
	if err != nil {
		return 0, fail(id, err)
	}

	before, err := e.count(ctx, e.Table())
	if err != nil {
		return 0, fail(id, err)
	}

	for _, s := range SplitStatements(stmt) {
		e.log.Debug("executing", "file", id, "statement", truncate(s, 100))
		if _, err := e.db.ExecContext(ctx, s); err != nil {
			return 0, fail(id, err)
		}
	}

	after, err := e.count(ctx, e.Table())
	if err != nil {
		return 0, fail(id, err)
	}
	if after < before {
		return 0, fail(id, fmt.Errorf("table %s shrank from %d to %d rows during load", e.Table(), before, after))
	}
	return after - before, nil
}

// Stats returns the row count of the pageview table, its most viewed pages
// and the hits per keyword category.
func (e *SQLExecutor) Stats(ctx context.Context) (domain.TableStats, error) {
	var stats domain.TableStats
	var err error
	if stats.TotalRows, err = e.count(ctx, e.Table()); err != nil {
		return stats, err
	}

	q, err := topPagesQuery.Render(e.tables)
	if err != nil {
		return stats, err
	}
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("querying top pages: %w", err)
	}
	for rows.Next() {
		var p domain.PageHits
		if err := rows.Scan(&p.Path, &p.Hits, &p.Records); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scanning top pages: %w", err)
		}
		stats.TopPages = append(stats.TopPages, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	q, err = categoriesQuery.Render(e.tables)
	if err != nil {
		return stats, err
	}
	rows, err = e.db.QueryContext(ctx, q)
	if err != nil {
		return stats, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.CategoryHits
		if err := rows.Scan(&c.Category, &c.Pages, &c.Hits); err != nil {
			return stats, fmt.Errorf("scanning categories: %w", err)
		}
		stats.Categories = append(stats.Categories, c)
	}
	return stats, rows.Err()
}

func (e *SQLExecutor) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := e.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
