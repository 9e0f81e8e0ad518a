package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/ranktime/internal/export"
)

// Sink sends rows to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port of the native protocol) and creates table
// when missing.
func New(addr, database, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureTable(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			exported_at DateTime64(6) DEFAULT now64(6),
			rank String,
			idx Int64,
			start DateTime64(9),
			finish DateTime64(9),
			duration_seconds Float64,
			gap_seconds Nullable(Float64),
			hostname Nullable(String),
			status Nullable(String),
			ok Nullable(Bool)
		) ENGINE = MergeTree()
		ORDER BY (rank, start)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Send writes rows as a single batch.
func (s *Sink) Send(ctx context.Context, rows []export.Row) error {
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (rank, idx, start, finish, duration_seconds, gap_seconds, hostname, status, ok)", s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare ClickHouse batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.Rank,
			int64(r.Index),
			r.Start,
			r.Finish,
			r.DurationSeconds,
			r.GapSeconds,
			r.Hostname,
			r.Status,
			r.OK,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append row to ClickHouse batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert rows into ClickHouse: %w", err)
	}
	return nil
}

// Count returns the number of rows stored for rank.
func (s *Sink) Count(ctx context.Context, rank string) (uint64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE rank = ?", s.table), rank).Scan(&n)
	return n, err
}
