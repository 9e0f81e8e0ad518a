// Package ingest turns JSON Lines timing records into locked events grouped
// by rank.
//
// Each non-blank line that does not start with '#' is one Record. Records
// are built with event.Builder, locked, and appended to the stream of their
// rank in input order. Streams are independent; nothing here relates events
// of different ranks.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/ranktime/internal/event"
	"github.com/loykin/ranktime/internal/metrics"
	"github.com/loykin/ranktime/internal/stream"
)

const maxLineBytes = 1 << 20

// Set indexes one stream per rank. Not goroutine-safe.
type Set struct {
	streams map[string]*stream.Stream
}

func NewSet() *Set {
	return &Set{streams: make(map[string]*stream.Stream)}
}

// Add appends e to the stream of rank, creating the stream on first use.
func (s *Set) Add(rank string, e event.Event) {
	st, ok := s.streams[rank]
	if !ok {
		st = stream.New(rank)
		s.streams[rank] = st
	}
	st.Add(e)
}

func (s *Set) Get(rank string) (*stream.Stream, bool) {
	st, ok := s.streams[rank]
	return st, ok
}

func (s *Set) Len() int { return len(s.streams) }

// Ranks returns the ranks in lexical order.
func (s *Set) Ranks() []string {
	out := make([]string, 0, len(s.streams))
	for r := range s.streams {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Prepare optionally sorts the stream of each given rank and recomputes its
// stats. With no ranks, every stream is prepared. An unknown rank fails
// before any stream is touched.
func (s *Set) Prepare(sortFirst bool, ranks ...string) error {
	if len(ranks) == 0 {
		ranks = s.Ranks()
	}
	for _, r := range ranks {
		if _, ok := s.streams[r]; !ok {
			return fmt.Errorf("unknown rank %q", r)
		}
	}
	for _, r := range ranks {
		st := s.streams[r]
		if sortFirst {
			st.Sort()
		}
		if err := st.ComputeStats(); err != nil {
			return fmt.Errorf("rank %s: %w", r, err)
		}
		gaps, _ := st.Diff()
		durations, _ := st.Durations()
		metrics.SetStreamStats(r, st.Len(), gaps, durations)
		slog.Debug("Computed stream stats", "rank", r, "events", st.Len())
	}
	return nil
}

// Options control how malformed input is handled.
type Options struct {
	// Strict makes the first malformed line fail the read. Otherwise the
	// line is logged, counted and skipped.
	Strict bool
}

// Result summarizes one read.
type Result struct {
	Events  int
	Skipped int
	// Ranks touched by this read, in first-seen order.
	Ranks []string
}

// Read parses JSON Lines from r into set.
func Read(r io.Reader, set *Set, opts Options) (Result, error) {
	var res Result
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rank, ev, err := parseLine(line)
		if err != nil {
			err = fmt.Errorf("line %d: %w", lineNo, err)
			if opts.Strict {
				return res, err
			}
			slog.Warn("Skipping malformed record", "error", err)
			metrics.IncRejected()
			res.Skipped++
			continue
		}
		if ev.Duration() < 0 {
			slog.Warn("Event finishes before it starts", "rank", rank, "line", lineNo, "duration", ev.Duration())
		}
		set.Add(rank, ev)
		metrics.ObserveEvent(rank, ev.Duration())
		if !seen[rank] {
			seen[rank] = true
			res.Ranks = append(res.Ranks, rank)
		}
		res.Events++
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}
	return res, nil
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string, set *Set, opts Options) (Result, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = f.Close() }()
	res, err := Read(f, set, opts)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("Ingested timing records", "path", path, "events", res.Events, "skipped", res.Skipped, "ranks", len(res.Ranks))
	return res, nil
}

func parseLine(line string) (string, event.Event, error) {
	var rec Record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return "", event.Event{}, err
	}
	ev, err := rec.Event()
	if err != nil {
		return "", event.Event{}, err
	}
	return rec.Rank, ev, nil
}
