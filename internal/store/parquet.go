package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"wikistat/internal/domain"
)

// Compile-time interface check.
var _ PageviewStore = (*ParquetStore)(nil)

// ParquetStore implements PageviewStore using one Parquet file per dump file.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// PageviewRecord is the Parquet schema for filtered pageviews. It mirrors the
// columns of the analytical table.
type PageviewRecord struct {
	Time       int64  `parquet:"time,timestamp(millisecond)"` // Unix ms
	Project    string `parquet:"project,dict"`
	Subproject string `parquet:"subproject,dict"`
	Path       string `parquet:"path"`
	Hits       int64  `parquet:"hits"`
}

// WritePageviews writes rows for id to
//
//	<DataDir>/pageviews/<YYYY>/<YYYY-MM>/pageviews-<YYYYMMDD>-<HH>0000.parquet
//
// The file is written under a temporary name and renamed at the end, so a
// crash never leaves a partial file behind and a retry replaces the previous
// attempt.
func (s *ParquetStore) WritePageviews(_ context.Context, id domain.FileID, rows []domain.Pageview) (string, error) {
	path, err := s.PageviewPath(id)
	if err != nil {
		return "", err
	}

	records := make([]PageviewRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, PageviewRecord{
			Time:       r.Hour.UnixMilli(),
			Project:    r.Project,
			Subproject: r.Subproject,
			Path:       r.Path,
			Hits:       r.Hits,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Path != records[j].Path {
			return records[i].Path < records[j].Path
		}
		return records[i].Project < records[j].Project
	})

	tmpPath := path + ".tmp"
	if err := writeParquetFile(tmpPath, records); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing pageviews for %s: %w", id, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return path, nil
}

// ReadPageviews reads the stored rows for id.
func (s *ParquetStore) ReadPageviews(_ context.Context, id domain.FileID) ([]domain.Pageview, error) {
	path, err := s.PageviewPath(id)
	if err != nil {
		return nil, err
	}

	records, err := readParquetFile[PageviewRecord](path)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.Pageview, 0, len(records))
	for _, r := range records {
		rows = append(rows, domain.Pageview{
			Hour:       time.UnixMilli(r.Time).UTC(),
			Project:    r.Project,
			Subproject: r.Subproject,
			Path:       r.Path,
			Hits:       r.Hits,
		})
	}
	return rows, nil
}

// PageviewPath returns the filesystem path of the Parquet file for id.
func (s *ParquetStore) PageviewPath(id domain.FileID) (string, error) {
	rel, err := RelativePath(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.DataDir, filepath.FromSlash(rel)), nil
}

// RelativePath maps a dump file id to the slash-separated location of its
// Parquet file, shared by local disk and object storage.
func RelativePath(id domain.FileID) (string, error) {
	if _, err := id.Hour(); err != nil {
		return "", err
	}
	return "pageviews/" + strings.TrimSuffix(string(id), ".gz") + ".parquet", nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
