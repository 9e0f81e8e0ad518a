package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/ranktime/internal/export"
)

// Sink appends rows to the event_stats table of a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite export sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	// Handle sqlite:// prefix
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection so ":memory:" databases are shared by every statement
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS event_stats(
			exported_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			rank TEXT NOT NULL,
			idx INTEGER NOT NULL,
			start TIMESTAMP NOT NULL,
			finish TIMESTAMP NOT NULL,
			duration_seconds REAL NOT NULL,
			gap_seconds REAL,
			hostname TEXT,
			status TEXT,
			ok BOOLEAN
		);`,
		`CREATE INDEX IF NOT EXISTS idx_event_stats_rank ON event_stats(rank);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Send writes all rows in one transaction.
func (s *Sink) Send(ctx context.Context, rows []export.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO event_stats(rank, idx, start, finish, duration_seconds, gap_seconds, hostname, status, ok)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Rank, r.Index, r.Start, r.Finish, r.DurationSeconds, r.GapSeconds, r.Hostname, r.Status, r.OK); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Count returns the number of rows stored for rank.
func (s *Sink) Count(ctx context.Context, rank string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_stats WHERE rank = ?`, rank).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
