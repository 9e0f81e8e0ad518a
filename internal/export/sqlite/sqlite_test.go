package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/ranktime/internal/export"
)

func testRows(rank string) []export.Row {
	start := time.Now().Add(-time.Minute).UTC()
	gap := 0.5
	host := "node01"
	ok := true
	return []export.Row{
		{Rank: rank, Index: 0, Start: start, Finish: start.Add(time.Second), DurationSeconds: 1, Hostname: &host, OK: &ok},
		{Rank: rank, Index: 1, Start: start.Add(1500 * time.Millisecond), Finish: start.Add(2 * time.Second), DurationSeconds: 0.5, GapSeconds: &gap},
	}
}

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	if err := sink.Send(ctx, testRows("r1")); err != nil {
		t.Fatalf("Failed to send rows: %v", err)
	}
	if err := sink.Send(ctx, testRows("r2")); err != nil {
		t.Fatalf("Failed to send rows: %v", err)
	}

	n, err := sink.Count(ctx, "r1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows for r1, got %d", n)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.Send(ctx, testRows("mem")); err != nil {
		t.Fatalf("Failed to send rows: %v", err)
	}
	var nullGaps int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_stats WHERE gap_seconds IS NULL`).Scan(&nullGaps); err != nil {
		t.Fatalf("query: %v", err)
	}
	if nullGaps != 1 {
		t.Fatalf("expected first row to have NULL gap, got %d null rows", nullGaps)
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Send(ctx, testRows("cancelled")); err == nil {
		t.Fatalf("expected error with cancelled context")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
