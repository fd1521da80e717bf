// Package executor loads a single pageview dump file into the analytical
// store. The coordinator treats every implementation as a black box that
// either reports how many rows it inserted or fails.
package executor

import (
	"context"
	"errors"
	"fmt"

	"wikistat/internal/domain"
)

// Executor fetches, filters and inserts one dump file.
type Executor interface {
	// Name identifies the implementation in logs.
	Name() string

	// Load processes the dump file id and returns the number of rows
	// inserted. Errors are reported as *Failure.
	Load(ctx context.Context, id domain.FileID) (int64, error)
}

// Failure reports that loading one file failed. It is recovered by the
// coordinator and never ends a run.
type Failure struct {
	FileID domain.FileID
	Reason error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("loading %s: %v", f.FileID, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Reason }

// fail wraps err into a *Failure for id unless it already is one.
func fail(id domain.FileID, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{FileID: id, Reason: err}
}
