// Package store persists loaded pageviews: Parquet files on local disk and,
// optionally, copies of them in S3-compatible object storage.
package store

import (
	"context"

	"wikistat/internal/domain"
)

// PageviewStore persists and retrieves the filtered pageviews of one dump
// file.
type PageviewStore interface {
	// WritePageviews replaces the stored rows for id with rows and returns
	// the path written.
	WritePageviews(ctx context.Context, id domain.FileID, rows []domain.Pageview) (string, error)

	// ReadPageviews returns the stored rows for id.
	ReadPageviews(ctx context.Context, id domain.FileID) ([]domain.Pageview, error)
}
