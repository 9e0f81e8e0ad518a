// Package export projects computed stream stats into flat rows and sends
// them to analytics sinks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/ranktime/internal/metrics"
	"github.com/loykin/ranktime/internal/stream"
)

// ErrStatsNotComputed is returned by Rows for a stream without stats.
var ErrStatsNotComputed = stream.ErrNoStats

// Row is one event of one rank with its derived stats. GapSeconds is the
// gap to the previous event in stream order and is nil for the first row.
// Nil optional fields were never set on the event.
type Row struct {
	Rank            string    `json:"rank"`
	Index           int       `json:"index"`
	Start           time.Time `json:"start"`
	Finish          time.Time `json:"finish"`
	DurationSeconds float64   `json:"duration_seconds"`
	GapSeconds      *float64  `json:"gap_seconds,omitempty"`
	Hostname        *string   `json:"hostname,omitempty"`
	Status          *string   `json:"status,omitempty"`
	OK              *bool     `json:"ok,omitempty"`
}

// Sink is a destination for exported rows.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, rows []Row) error
	Close() error
}

// Rows projects the last computed stats of s. It returns ErrStatsNotComputed
// when ComputeStats has not run.
func Rows(s *stream.Stream) ([]Row, error) {
	durations, ok := s.Durations()
	if !ok {
		return nil, fmt.Errorf("rank %s: %w", s.Rank(), ErrStatsNotComputed)
	}
	gaps, _ := s.Diff()
	rows := make([]Row, 0, len(durations))
	for i, ev := range s.Events() {
		if i >= len(durations) {
			// events added after the last ComputeStats have no stats yet
			break
		}
		r := Row{
			Rank:            s.Rank(),
			Index:           i,
			Start:           ev.Start().UTC(),
			Finish:          ev.Finish().UTC(),
			DurationSeconds: durations[i].Seconds(),
		}
		if i > 0 && i-1 < len(gaps) {
			g := gaps[i-1].Seconds()
			r.GapSeconds = &g
		}
		if v, set := ev.Hostname().Get(); set {
			r.Hostname = &v
		}
		if v, set := ev.Status().Get(); set {
			r.Status = &v
		}
		if v, set := ev.OK().Get(); set {
			r.OK = &v
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Export sends the rows of every stream to sink, one Send per rank, and
// returns the number of rows written. label names the sink in metrics.
func Export(ctx context.Context, sink Sink, label string, streams []*stream.Stream) (int, error) {
	total := 0
	for _, s := range streams {
		rows, err := Rows(s)
		if err != nil {
			return total, err
		}
		if len(rows) == 0 {
			continue
		}
		if err := sink.Send(ctx, rows); err != nil {
			return total, fmt.Errorf("export rank %s: %w", s.Rank(), err)
		}
		metrics.AddExported(label, len(rows))
		total += len(rows)
		slog.Debug("Exported rank", "rank", s.Rank(), "rows", len(rows), "sink", label)
	}
	return total, nil
}
