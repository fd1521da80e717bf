// Package report renders ledger contents and run summaries for terminals.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"wikistat/internal/domain"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatCount formats a row count, using a K or M suffix for large values.
func FormatCount(n int64) string {
	switch {
	case n >= 10_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 100_000:
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	default:
		return FormatInt(n)
	}
}

// WriteStatusSummary prints one line per status with its file count and
// total rows.
func WriteStatusSummary(w io.Writer, totals map[domain.Status]domain.StatusTotals) {
	fmt.Fprintf(w, "%-10s %8s %14s\n", "STATUS", "FILES", "ROWS")
	var files, rows int64
	for _, s := range []domain.Status{domain.StatusSucceeded, domain.StatusFailed} {
		t := totals[s]
		files += t.Count
		rows += t.RowsInserted
		fmt.Fprintf(w, "%-10s %8s %14s\n", s, FormatInt(t.Count), FormatInt(t.RowsInserted))
	}
	fmt.Fprintf(w, "%-10s %8s %14s\n", "TOTAL", FormatInt(files), FormatInt(rows))
}

// WriteOutcomes prints one line per ledger record.
func WriteOutcomes(w io.Writer, outcomes []domain.LoadOutcome) {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "no files")
		return
	}
	fmt.Fprintf(w, "%-14s %-10s %10s %-20s %s\n", "HOUR", "STATUS", "ROWS", "PROCESSED", "ERROR")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%-14s %-10s %10s %-20s %s\n",
			o.FileID.Label(), o.Status, FormatCount(o.RowsInserted),
			o.ProcessedAt.UTC().Format(time.DateTime), o.ErrorMessage)
	}
}

// WriteRunSummary prints the counts of one load run.
func WriteRunSummary(w io.Writer, s domain.RunSummary) {
	fmt.Fprintf(w, "run %s\n", s.RunID)
	fmt.Fprintf(w, "  candidates: %s\n", FormatInt(int64(s.Candidates)))
	fmt.Fprintf(w, "  attempted:  %s\n", FormatInt(int64(s.Attempted)))
	fmt.Fprintf(w, "  succeeded:  %s (%s empty)\n", FormatInt(int64(s.Succeeded)), FormatInt(int64(s.Empty)))
	fmt.Fprintf(w, "  failed:     %s\n", FormatInt(int64(s.Failed)))
	fmt.Fprintf(w, "  skipped:    %s\n", FormatInt(int64(s.Skipped)))
	fmt.Fprintf(w, "  rows:       %s\n", FormatInt(s.RowsInserted))
}

// WriteStats prints the table size, the most viewed pages and the hits per
// keyword category.
func WriteStats(w io.Writer, table string, s domain.TableStats) {
	fmt.Fprintf(w, "%s: %s rows\n", table, FormatInt(s.TotalRows))
	if len(s.TopPages) > 0 {
		fmt.Fprintf(w, "\n%-40s %14s %8s\n", "PAGE", "HITS", "RECORDS")
		for _, p := range s.TopPages {
			fmt.Fprintf(w, "%-40s %14s %8s\n", p.Path, FormatInt(p.Hits), FormatInt(p.Records))
		}
	}
	if len(s.Categories) > 0 {
		fmt.Fprintf(w, "\n%-20s %8s %14s\n", "CATEGORY", "PAGES", "HITS")
		for _, c := range s.Categories {
			fmt.Fprintf(w, "%-20s %8s %14s\n", c.Category, FormatInt(c.Pages), FormatInt(c.Hits))
		}
	}
}
