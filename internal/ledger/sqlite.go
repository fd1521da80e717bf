package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"wikistat/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Ledger = (*SQLiteLedger)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS processed_files (
	file_id       TEXT PRIMARY KEY,
	rows_inserted INTEGER NOT NULL CHECK (rows_inserted >= 0),
	processed_at  TIMESTAMP NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('SUCCEEDED', 'FAILED')),
	error_message TEXT NOT NULL DEFAULT '',
	run_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_processed_files_status ON processed_files (status);
`

// SQLiteLedger implements Ledger backed by a SQLite database file.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the ledger database at path and makes sure
// the schema exists. Any failure is reported as ErrUnavailable.
func OpenSQLite(ctx context.Context, path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrUnavailable, dir, err)
		}
	}

	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {"busy_timeout(5000)", "journal_mode(WAL)"},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// One connection keeps every statement on the same SQLite handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	return &SQLiteLedger{db: db}, nil
}

// SQLiteOpener returns an Opener for the ledger database at path.
func SQLiteOpener(path string) Opener {
	return func(ctx context.Context) (Ledger, error) {
		return OpenSQLite(ctx, path)
	}
}

// Close closes the underlying database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Known returns every file recorded SUCCEEDED.
func (l *SQLiteLedger) Known(ctx context.Context) (map[domain.FileID]struct{}, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT file_id FROM processed_files WHERE status = ?`, string(domain.StatusSucceeded))
	if err != nil {
		return nil, fmt.Errorf("querying known files: %w", err)
	}
	defer rows.Close()

	known := make(map[domain.FileID]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning file id: %w", err)
		}
		known[domain.FileID(id)] = struct{}{}
	}
	return known, rows.Err()
}

// Record upserts o in a single statement, so readers never observe a partial
// record. SUCCEEDED records are not overwritten.
func (l *SQLiteLedger) Record(ctx context.Context, o domain.LoadOutcome) error {
	if err := validate(o); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_files (file_id, rows_inserted, processed_at, status, error_message, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id) DO UPDATE SET
			rows_inserted = excluded.rows_inserted,
			processed_at  = excluded.processed_at,
			status        = excluded.status,
			error_message = excluded.error_message,
			run_id        = excluded.run_id
		WHERE processed_files.status <> 'SUCCEEDED'`,
		string(o.FileID), o.RowsInserted, o.ProcessedAt.UTC().Format(time.RFC3339Nano),
		string(o.Status), o.ErrorMessage, o.RunID)
	if err != nil {
		return fmt.Errorf("recording %s: %w", o.FileID, err)
	}
	return nil
}

// Summary aggregates record counts and inserted rows per status.
func (l *SQLiteLedger) Summary(ctx context.Context) (map[domain.Status]domain.StatusTotals, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(rows_inserted), 0)
		FROM processed_files
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying status summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[domain.Status]domain.StatusTotals)
	for rows.Next() {
		var status string
		var totals domain.StatusTotals
		if err := rows.Scan(&status, &totals.Count, &totals.RowsInserted); err != nil {
			return nil, fmt.Errorf("scanning status summary: %w", err)
		}
		summary[domain.Status(status)] = totals
	}
	return summary, rows.Err()
}

// Outcomes lists the records with the given status ordered by file id.
func (l *SQLiteLedger) Outcomes(ctx context.Context, status domain.Status) ([]domain.LoadOutcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT file_id, status, rows_inserted, processed_at, error_message, run_id
		FROM processed_files
		WHERE status = ?
		ORDER BY file_id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying %s outcomes: %w", status, err)
	}
	defer rows.Close()

	var outcomes []domain.LoadOutcome
	for rows.Next() {
		var o domain.LoadOutcome
		var id, st, processedAt string
		if err := rows.Scan(&id, &st, &o.RowsInserted, &processedAt, &o.ErrorMessage, &o.RunID); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.FileID = domain.FileID(id)
		o.Status = domain.Status(st)
		if o.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt); err != nil {
			return nil, fmt.Errorf("parsing processed_at of %s: %w", id, err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Reset deletes records with the given status, or every record when status
// is empty.
func (l *SQLiteLedger) Reset(ctx context.Context, status domain.Status) (int64, error) {
	var res sql.Result
	var err error
	if status == "" {
		res, err = l.db.ExecContext(ctx, `DELETE FROM processed_files`)
	} else {
		res, err = l.db.ExecContext(ctx, `DELETE FROM processed_files WHERE status = ?`, string(status))
	}
	if err != nil {
		return 0, fmt.Errorf("resetting ledger: %w", err)
	}
	return res.RowsAffected()
}

func validate(o domain.LoadOutcome) error {
	if o.FileID == "" {
		return fmt.Errorf("outcome without file id")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("outcome for %s has invalid status %q", o.FileID, o.Status)
	}
	if o.RowsInserted < 0 {
		return fmt.Errorf("outcome for %s has negative row count %d", o.FileID, o.RowsInserted)
	}
	if o.ProcessedAt.IsZero() {
		return fmt.Errorf("outcome for %s has no timestamp", o.FileID)
	}
	return nil
}
