package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"wikistat/internal/domain"
	"wikistat/internal/ledger"
)

// newTestLedger returns an open ledger holding two loaded hours and one
// failed hour.
func newTestLedger(t *testing.T) *ledger.MemoryLedger {
	t.Helper()
	m := ledger.NewMemoryLedger()
	ctx := context.Background()
	if _, err := m.Opener()(ctx); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	for _, o := range []domain.LoadOutcome{
		{FileID: domain.NewFileID(2025, 1, 1, 0), Status: domain.StatusSucceeded, RowsInserted: 1200, ProcessedAt: at},
		{FileID: domain.NewFileID(2025, 1, 1, 1), Status: domain.StatusSucceeded, RowsInserted: 800, ProcessedAt: at},
		{FileID: domain.NewFileID(2025, 1, 1, 2), Status: domain.StatusFailed, ProcessedAt: at, ErrorMessage: "dump not found"},
	} {
		if err := m.Record(ctx, o); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func runCommand(t *testing.T, l ledger.Ledger, cmd, status string, all bool) string {
	t.Helper()
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, l, cmd, status, all); err != nil {
		t.Fatalf("%s: %v", cmd, err)
	}
	return buf.String()
}

func TestStatus(t *testing.T) {
	out := runCommand(t, newTestLedger(t), "status", "FAILED", false)
	for _, want := range []string{"SUCCEEDED", "2,000", "FAILED", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestFailed(t *testing.T) {
	// failed ignores -status.
	out := runCommand(t, newTestLedger(t), "failed", "SUCCEEDED", false)
	if !strings.Contains(out, "2025-01-01T02") || !strings.Contains(out, "dump not found") {
		t.Errorf("failed output:\n%s", out)
	}
	if strings.Contains(out, "2025-01-01T00") {
		t.Errorf("failed output lists a loaded hour:\n%s", out)
	}
}

func TestList(t *testing.T) {
	l := newTestLedger(t)
	out := runCommand(t, l, "list", "succeeded", false)
	if !strings.Contains(out, "2025-01-01T00") || !strings.Contains(out, "2025-01-01T01") {
		t.Errorf("list output:\n%s", out)
	}
	if strings.Contains(out, "2025-01-01T02") {
		t.Errorf("list output includes the failed hour:\n%s", out)
	}

	if err := run(context.Background(), &bytes.Buffer{}, l, "list", "PENDING", false); err == nil {
		t.Error("list with an unknown status should fail")
	}
}

func TestReset(t *testing.T) {
	l := newTestLedger(t)

	// The -status default.
	if out := runCommand(t, l, "reset", string(domain.StatusFailed), false); out != "removed 1 records\n" {
		t.Errorf("reset output = %q", out)
	}
	if _, ok := l.Get(domain.NewFileID(2025, 1, 1, 2)); ok {
		t.Error("failed record still present after reset")
	}
	if _, ok := l.Get(domain.NewFileID(2025, 1, 1, 0)); !ok {
		t.Error("reset removed a loaded record")
	}

	// -all ignores -status.
	if out := runCommand(t, l, "reset", string(domain.StatusFailed), true); out != "removed 2 records\n" {
		t.Errorf("reset -all output = %q", out)
	}
	known, err := l.Known(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(known) != 0 {
		t.Errorf("%d records left after reset -all", len(known))
	}
}
