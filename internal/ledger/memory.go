package ledger

import (
	"context"
	"sort"
	"sync"

	"wikistat/internal/domain"
)

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-process Ledger. It survives Close, so the same
// instance can be handed to successive runs through Opener.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[domain.FileID]domain.LoadOutcome
	open    bool
	opens   int
	closes  int
	writes  int
}

// NewMemoryLedger returns an empty, closed ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[domain.FileID]domain.LoadOutcome)}
}

// Opener returns an Opener that reopens m.
func (m *MemoryLedger) Opener() Opener {
	return func(context.Context) (Ledger, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.open = true
		m.opens++
		return m, nil
	}
}

// Close marks the ledger closed. Records are kept.
func (m *MemoryLedger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		m.open = false
		m.closes++
	}
	return nil
}

// IsOpen reports whether the ledger is currently open.
func (m *MemoryLedger) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Writes returns the number of Record calls that reached the store.
func (m *MemoryLedger) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Get returns the record for id, if any.
func (m *MemoryLedger) Get(id domain.FileID) (domain.LoadOutcome, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.records[id]
	return o, ok
}

// Known returns every file recorded SUCCEEDED.
func (m *MemoryLedger) Known(_ context.Context) (map[domain.FileID]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.open {
		return nil, ErrClosed
	}

	known := make(map[domain.FileID]struct{})
	for id, o := range m.records {
		if o.Status == domain.StatusSucceeded {
			known[id] = struct{}{}
		}
	}
	return known, nil
}

// Record upserts o unless the file is already SUCCEEDED.
func (m *MemoryLedger) Record(_ context.Context, o domain.LoadOutcome) error {
	if err := validate(o); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrClosed
	}

	m.writes++
	if prev, ok := m.records[o.FileID]; ok && prev.Status == domain.StatusSucceeded {
		return nil
	}
	o.ProcessedAt = o.ProcessedAt.UTC()
	m.records[o.FileID] = o
	return nil
}

// Summary aggregates record counts and inserted rows per status.
func (m *MemoryLedger) Summary(_ context.Context) (map[domain.Status]domain.StatusTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.open {
		return nil, ErrClosed
	}

	summary := make(map[domain.Status]domain.StatusTotals)
	for _, o := range m.records {
		t := summary[o.Status]
		t.Count++
		t.RowsInserted += o.RowsInserted
		summary[o.Status] = t
	}
	return summary, nil
}

// Outcomes lists the records with the given status ordered by file id.
func (m *MemoryLedger) Outcomes(_ context.Context, status domain.Status) ([]domain.LoadOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.open {
		return nil, ErrClosed
	}

	var outcomes []domain.LoadOutcome
	for _, o := range m.records {
		if o.Status == status {
			outcomes = append(outcomes, o)
		}
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].FileID < outcomes[j].FileID
	})
	return outcomes, nil
}

// Reset deletes records with the given status, or every record when status
// is empty.
func (m *MemoryLedger) Reset(_ context.Context, status domain.Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrClosed
	}

	var n int64
	for id, o := range m.records {
		if status == "" || o.Status == status {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Sessions returns how many times the ledger was opened and closed.
func (m *MemoryLedger) Sessions() (opens, closes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opens, m.closes
}
