package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCollectorsWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	ObserveEvent("r1", 2*time.Second)
	IncRejected()
	SetStreamStats("r1", 3, []time.Duration{5 * time.Second, 8 * time.Second}, []time.Duration{5 * time.Second, 2 * time.Second, time.Second})
	AddExported("sqlite", 3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"ranktime_ingest_events_total":          false,
		"ranktime_ingest_rejected_lines_total":  false,
		"ranktime_event_duration_seconds":       false,
		"ranktime_stream_events":                false,
		"ranktime_stream_mean_gap_seconds":      false,
		"ranktime_stream_mean_duration_seconds": false,
		"ranktime_export_rows_total":            false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
		if n == "ranktime_stream_mean_gap_seconds" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 6.5 {
				t.Fatalf("mean gap = %v, want 6.5", got)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	ObserveEvent("x", time.Millisecond)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "ranktime_ingest_events_total") {
		t.Fatalf("metrics output missing events_total")
	}
}

func TestConcurrentObservations(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ObserveEvent("c", time.Second)
			IncRejected()
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops, must not panic
	ObserveEvent("test", time.Second)
	IncRejected()
	SetStreamStats("test", 0, nil, nil)
	AddExported("test", 1)
}

func TestMeanSeconds(t *testing.T) {
	if got := meanSeconds(nil); got != 0 {
		t.Fatalf("empty mean = %v", got)
	}
	if got := meanSeconds([]time.Duration{time.Second, 3 * time.Second}); got != 2 {
		t.Fatalf("mean = %v", got)
	}
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil || err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}

func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
