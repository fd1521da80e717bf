// Package ledger records which dump files have been loaded. It is the
// idempotency anchor of the loader: a file recorded SUCCEEDED is never loaded
// again by a normal run, a FAILED one is retried.
package ledger

import (
	"context"
	"errors"

	"wikistat/internal/domain"
)

// ErrUnavailable is returned when the ledger store cannot be opened or
// created. A run must not proceed without the ledger.
var ErrUnavailable = errors.New("ledger unavailable")

// ErrClosed is returned by operations on a closed ledger.
var ErrClosed = errors.New("ledger closed")

// Ledger persists one LoadOutcome per dump file.
//
// Implementations assume a single writer. Two processes running against the
// same ledger can both see a file as pending and load it twice.
type Ledger interface {
	// Known returns the identifiers of all files recorded SUCCEEDED.
	Known(ctx context.Context) (map[domain.FileID]struct{}, error)

	// Record upserts the outcome for o.FileID. A record that is already
	// SUCCEEDED is left untouched.
	Record(ctx context.Context, o domain.LoadOutcome) error

	// Summary returns the record count and total rows per status.
	Summary(ctx context.Context) (map[domain.Status]domain.StatusTotals, error)

	// Outcomes lists the records with the given status, ordered by FileID.
	Outcomes(ctx context.Context, status domain.Status) ([]domain.LoadOutcome, error)

	// Reset deletes the records with the given status, or all records when
	// status is empty, and returns how many were removed.
	Reset(ctx context.Context, status domain.Status) (int64, error)

	// Close releases the underlying store.
	Close() error
}

// Opener opens a ledger for the duration of one run.
type Opener func(ctx context.Context) (Ledger, error)
