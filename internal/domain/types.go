// Package domain defines the core types shared across the wikistat loader:
// dump file identifiers, load outcomes and run summaries.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FileID identifies one hourly pageview dump file by its path relative to
// the dump base URL, e.g. "2025/2025-01/pageviews-20250101-000000.gz".
type FileID string

var fileIDPattern = regexp.MustCompile(`^(\d{4})/(\d{4})-(\d{2})/pageviews-(\d{4})(\d{2})(\d{2})-(\d{2})0000\.gz$`)

// NewFileID returns the identifier of the dump file covering the given hour.
func NewFileID(year, month, day, hour int) FileID {
	return FileID(fmt.Sprintf("%04d/%04d-%02d/pageviews-%04d%02d%02d-%02d0000.gz",
		year, year, month, year, month, day, hour))
}

// ParseFileID checks s against the dump naming template.
func ParseFileID(s string) (FileID, error) {
	id := FileID(s)
	if _, err := id.Hour(); err != nil {
		return "", err
	}
	return id, nil
}

// Hour returns the UTC hour covered by the dump file.
func (id FileID) Hour() (time.Time, error) {
	m := fileIDPattern.FindStringSubmatch(string(id))
	if m == nil {
		return time.Time{}, fmt.Errorf("malformed file id %q", string(id))
	}
	if m[1] != m[2] || m[2] != m[4] || m[3] != m[5] {
		return time.Time{}, fmt.Errorf("inconsistent date in file id %q", string(id))
	}

	year, _ := strconv.Atoi(m[4])
	month, _ := strconv.Atoi(m[5])
	day, _ := strconv.Atoi(m[6])
	hour, _ := strconv.Atoi(m[7])
	t := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day || t.Hour() != hour {
		return time.Time{}, fmt.Errorf("no such hour in file id %q", string(id))
	}
	return t, nil
}

// Label renders the identifier as "2025-01-01T00", or the raw string when it
// does not follow the template.
func (id FileID) Label() string {
	t, err := id.Hour()
	if err != nil {
		return string(id)
	}
	return t.Format("2006-01-02T15")
}

// String implements fmt.Stringer.
func (id FileID) String() string { return string(id) }

// Status is the outcome of one load attempt.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(s)) {
	case StatusSucceeded:
		return StatusSucceeded, nil
	case StatusFailed:
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// LoadOutcome is the ledger record for one dump file. There is at most one
// per FileID; later attempts overwrite earlier ones.
type LoadOutcome struct {
	FileID       FileID
	Status       Status
	RowsInserted int64
	ProcessedAt  time.Time
	ErrorMessage string
	RunID        string
}

// StatusTotals aggregates ledger records sharing a status.
type StatusTotals struct {
	Count        int64
	RowsInserted int64
}

// RunSummary reports what a single coordinator run did.
type RunSummary struct {
	RunID        string
	Candidates   int
	Attempted    int
	Succeeded    int
	Failed       int
	Skipped      int
	RowsInserted int64

	// Empty counts succeeded files that produced zero rows.
	Empty int
}

// Keyword is one entry of the filter list. Pageviews are kept when their
// page title equals a keyword.
type Keyword struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

// Pageview is one filtered line of an hourly dump.
type Pageview struct {
	Hour       time.Time
	Project    string
	Subproject string
	Path       string
	Hits       int64
}

// TableStats summarizes the contents of the pageview table.
type TableStats struct {
	TotalRows  int64
	TopPages   []PageHits
	Categories []CategoryHits
}

// PageHits is the total of one page over all loaded hours.
type PageHits struct {
	Path    string
	Hits    int64
	Records int64
}

// CategoryHits aggregates the pages of one keyword category.
type CategoryHits struct {
	Category string
	Pages    int64
	Hits     int64
}
