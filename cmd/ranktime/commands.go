package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/ranktime/internal/export"
	"github.com/loykin/ranktime/internal/export/factory"
	"github.com/loykin/ranktime/internal/ingest"
	"github.com/loykin/ranktime/internal/metrics"
	"github.com/loykin/ranktime/internal/report"
	"github.com/loykin/ranktime/internal/server"
	"github.com/loykin/ranktime/internal/stream"
	itls "github.com/loykin/ranktime/internal/tls"
	"github.com/loykin/ranktime/pkg/client"
)

const shutdownTimeout = 5 * time.Second

func loadSet(file string, strict bool) (*ingest.Set, error) {
	if file == "" {
		return nil, errors.New("input file required: pass it as an argument or set [ingest].path")
	}
	set := ingest.NewSet()
	if _, err := ingest.ReadFile(file, set, ingest.Options{Strict: strict}); err != nil {
		return nil, err
	}
	return set, nil
}

// selectRanks validates want against set; empty want selects every rank.
func selectRanks(set *ingest.Set, want []string) ([]string, error) {
	if len(want) == 0 {
		return set.Ranks(), nil
	}
	for _, r := range want {
		if _, ok := set.Get(r); !ok {
			return nil, fmt.Errorf("unknown rank %q", r)
		}
	}
	return want, nil
}

func streamsOf(set *ingest.Set, ranks []string) []*stream.Stream {
	out := make([]*stream.Stream, 0, len(ranks))
	for _, r := range ranks {
		st, _ := set.Get(r)
		out = append(out, st)
	}
	return out
}

func cmdStats(w io.Writer, f StatsFlags) error {
	format, err := report.ParseFormat(f.Format)
	if err != nil {
		return err
	}
	set, err := loadSet(f.File, f.Strict)
	if err != nil {
		return err
	}
	ranks, err := selectRanks(set, f.Ranks)
	if err != nil {
		return err
	}
	if len(ranks) > 0 {
		if err := set.Prepare(!f.NoSort, ranks...); err != nil {
			return err
		}
	}
	sums, err := report.SummarizeAll(streamsOf(set, ranks))
	if err != nil {
		return err
	}
	return report.Write(w, format, sums)
}

func cmdInspect(w io.Writer, f InspectFlags) error {
	if f.Rank == "" {
		return errors.New("--rank is required")
	}
	set, err := loadSet(f.File, f.Strict)
	if err != nil {
		return err
	}
	st, ok := set.Get(f.Rank)
	if !ok {
		return fmt.Errorf("unknown rank %q", f.Rank)
	}
	if err := set.Prepare(!f.NoSort, f.Rank); err != nil {
		return err
	}
	durations, _ := st.Durations()
	gaps, _ := st.Diff()
	_, err = fmt.Fprintf(w, "%s\nDurations: %v\nGaps: %v\n", st, durations, gaps)
	return err
}

func cmdExport(ctx context.Context, w io.Writer, f ExportFlags) error {
	dsn := strings.TrimSpace(f.DSN)
	if dsn == "" {
		return errors.New("export DSN required: pass --dsn or set [export].dsn")
	}
	set, err := loadSet(f.File, f.Strict)
	if err != nil {
		return err
	}
	if err := set.Prepare(true); err != nil {
		return err
	}
	sink, err := factory.NewSinkFromDSN(dsn)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	kind := factory.Kind(dsn)
	n, err := export.Export(ctx, sink, kind, streamsOf(set, set.Ranks()))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "Exported %d rows from %d ranks to %s\n", n, set.Len(), kind)
	return err
}

func cmdPush(ctx context.Context, w io.Writer, f PushFlags) error {
	if f.File == "" {
		return errors.New("input file required: pass it as an argument or set [ingest].path")
	}
	cfg := client.Config{BaseURL: strings.TrimRight(f.APIUrl, "/"), Timeout: f.Timeout, Insecure: f.Insecure}
	if f.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: f.CACert}
	}
	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	in, err := os.Open(filepath.Clean(f.File))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	res, err := c.Push(ctx, in, f.Strict)
	if err != nil {
		return fmt.Errorf("push %s: %w", f.File, err)
	}
	_, err = fmt.Fprintf(w, "Pushed %d events (%d skipped) for ranks %s\n", res.Events, res.Skipped, strings.Join(res.Ranks, ", "))
	return err
}

// preload ingests path into reg.
func preload(reg *server.Registry, path string, strict bool) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	res, err := reg.Ingest(f, ingest.Options{Strict: strict})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("Preloaded timing records", "path", path, "events", res.Events, "skipped", res.Skipped, "ranks", len(res.Ranks))
	return nil
}

// runServe blocks until ctx is done or SIGINT/SIGTERM arrives.
func runServe(ctx context.Context, f ServeFlags) error {
	metricsEnabled := f.MetricsEnabled
	if metricsEnabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slog.Warn("Failed to register metrics", "error", err)
		}
	}

	reg := server.NewRegistry()
	if f.Preload != "" {
		if err := preload(reg, f.Preload, f.Strict); err != nil {
			return err
		}
	}

	tlsCfg, err := itls.SetupTLS(f.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	srv, err := server.NewServer(server.Options{
		Addr:     f.Listen,
		BasePath: f.BasePath,
		Engine:   f.Engine,
		Metrics:  metricsEnabled && f.MetricsListen == "",
		TLS:      tlsCfg,
	}, reg)
	if err != nil {
		return err
	}
	servers := []*http.Server{srv}
	if metricsEnabled && f.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              f.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			var err error
			if s.TLSConfig != nil {
				err = s.ListenAndServeTLS("", "")
			} else {
				err = s.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", s.Addr, err)
			}
		}(s)
	}
	slog.Info("Serving ranktime API", "listen", f.Listen, "base", f.BasePath, "engine", f.Engine, "tls", tlsCfg != nil, "metrics_listen", f.MetricsListen)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}
