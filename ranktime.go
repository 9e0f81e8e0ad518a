package ranktime

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/ranktime/internal/event"
	"github.com/loykin/ranktime/internal/export"
	"github.com/loykin/ranktime/internal/export/factory"
	"github.com/loykin/ranktime/internal/ingest"
	"github.com/loykin/ranktime/internal/metrics"
	"github.com/loykin/ranktime/internal/report"
	"github.com/loykin/ranktime/internal/server"
	"github.com/loykin/ranktime/internal/stream"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Event = event.Event

type Builder = event.Builder

type Opt[T any] = event.Opt[T]

type Phase = event.Phase

type Stream = stream.Stream

type Set = ingest.Set

type Summary = report.Summary

type Row = export.Row

type Sink = export.Sink

type Registry = server.Registry

type IngestOptions = ingest.Options

var (
	ErrWriteToLockedEvent = event.ErrWriteToLockedEvent
	ErrEmptyStream        = stream.ErrEmptyStream
	ErrNoStats            = stream.ErrNoStats
)

func NewBuilder(start, finish time.Time) *Builder { return event.NewBuilder(start, finish) }
func NewStream(rank string) *Stream               { return stream.New(rank) }
func NewSet() *Set                                { return ingest.NewSet() }
func NewRegistry() *Registry                      { return server.NewRegistry() }

// ReadJSONLines parses timing records from r into set. With strict false,
// malformed lines are logged and skipped.
func ReadJSONLines(r io.Reader, set *Set, strict bool) (int, error) {
	res, err := ingest.Read(r, set, ingest.Options{Strict: strict})
	return res.Events, err
}

func Summarize(s *Stream) (Summary, error) { return report.Summarize(s) }

func Rows(s *Stream) ([]Row, error) { return export.Rows(s) }

// NewSinkFromDSN opens an export sink; see factory.NewSinkFromDSN for the
// accepted DSN forms.
func NewSinkFromDSN(dsn string) (Sink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer returns an unstarted gin server exposing reg under basePath.
func NewHTTPServer(addr, basePath string, reg *Registry) (*http.Server, error) {
	return server.NewServer(server.Options{Addr: addr, BasePath: basePath}, reg)
}

// HTTPHandler returns the API handler for mounting in another mux.
func HTTPHandler(reg *Registry, basePath string) http.Handler {
	return server.NewRouter(reg, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
