package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/ranktime/internal/config"
	"github.com/loykin/ranktime/internal/export/sqlite"
	"github.com/loykin/ranktime/internal/report"
	"github.com/loykin/ranktime/internal/server"
)

const sample = `# two ranks, r1 out of order
{"rank":"r1","start":10,"finish":12,"status":"indexed","hostname":"node01"}
{"rank":"r1","start":0,"finish":5,"ok":true,"spotfind_start":1,"index_start":2}
{"rank":"r1","start":20,"finish":21,"ok":false}
{"rank":"r2","start":3,"finish":4}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func decodeSummaries(t *testing.T, b []byte) []report.Summary {
	t.Helper()
	var sums []report.Summary
	require.NoError(t, json.Unmarshal(b, &sums))
	return sums
}

func TestCmdStats_JSON(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	var buf bytes.Buffer
	require.NoError(t, cmdStats(&buf, StatsFlags{File: file, Format: "json"}))

	sums := decodeSummaries(t, buf.Bytes())
	require.Len(t, sums, 2)
	assert.Equal(t, "r1", sums[0].Rank)
	assert.Equal(t, report.Seconds(21), sums[0].Span)
	assert.Equal(t, report.Seconds(6.5), sums[0].Gap.Mean)
	assert.Equal(t, "r2", sums[1].Rank)
	assert.Equal(t, 0, sums[1].Gap.Count)
}

func TestCmdStats_NoSortKeepsInputOrder(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	var buf bytes.Buffer
	require.NoError(t, cmdStats(&buf, StatsFlags{File: file, Format: "json", Ranks: []string{"r1"}, NoSort: true}))

	sums := decodeSummaries(t, buf.Bytes())
	require.Len(t, sums, 1)
	// gaps in input order: 0-12 and 20-5
	assert.Equal(t, report.Seconds(-12), sums[0].Gap.Min)
	assert.Equal(t, report.Seconds(15), sums[0].Gap.Max)
	assert.Equal(t, report.Seconds(11), sums[0].Span)
}

func TestCmdStats_TableAndYAML(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)

	var table bytes.Buffer
	require.NoError(t, cmdStats(&table, StatsFlags{File: file}))
	assert.Contains(t, table.String(), "r1")
	assert.Contains(t, table.String(), "spotfind")

	var y bytes.Buffer
	require.NoError(t, cmdStats(&y, StatsFlags{File: file, Format: "yaml", Ranks: []string{"r2"}}))
	assert.True(t, strings.HasPrefix(y.String(), "- rank: r2"), y.String())
}

func TestCmdStats_Errors(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	var buf bytes.Buffer
	assert.Error(t, cmdStats(&buf, StatsFlags{File: file, Format: "csv"}))
	assert.Error(t, cmdStats(&buf, StatsFlags{File: file, Ranks: []string{"r9"}}))
	assert.Error(t, cmdStats(&buf, StatsFlags{}))
	assert.Error(t, cmdStats(&buf, StatsFlags{File: filepath.Join(t.TempDir(), "missing.jsonl")}))

	bad := writeFile(t, "bad.jsonl", "{\"rank\":\"r\",\"start\":0,\"finish\":1}\n{oops\n")
	assert.Error(t, cmdStats(&buf, StatsFlags{File: bad, Strict: true}))
	buf.Reset()
	require.NoError(t, cmdStats(&buf, StatsFlags{File: bad, Format: "json"}))
	assert.Len(t, decodeSummaries(t, buf.Bytes()), 1)
}

func TestCmdStats_EmptyFile(t *testing.T) {
	file := writeFile(t, "empty.jsonl", "\n# nothing\n")
	var buf bytes.Buffer
	require.NoError(t, cmdStats(&buf, StatsFlags{File: file}))
	assert.Equal(t, "No events\n", buf.String())
}

func TestCmdInspect(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	var buf bytes.Buffer
	require.NoError(t, cmdInspect(&buf, InspectFlags{File: file, Rank: "r1"}))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Events on r1: ["), out)
	assert.Contains(t, out, "First event:")
	assert.Contains(t, out, "Durations: [5s 2s 1s]")
	assert.Contains(t, out, "Gaps: [5s 8s]")

	assert.Error(t, cmdInspect(&buf, InspectFlags{File: file}))
	assert.Error(t, cmdInspect(&buf, InspectFlags{File: file, Rank: "r9"}))
}

func TestCmdExport_SQLite(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	db := filepath.Join(t.TempDir(), "stats.db")

	var buf bytes.Buffer
	require.NoError(t, cmdExport(context.Background(), &buf, ExportFlags{File: file, DSN: "sqlite://" + db, Timeout: 5 * time.Second}))
	assert.Equal(t, "Exported 4 rows from 2 ranks to sqlite\n", buf.String())

	sink, err := sqlite.New(db)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	n, err := sink.Count(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCmdExport_Errors(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	var buf bytes.Buffer
	assert.Error(t, cmdExport(context.Background(), &buf, ExportFlags{File: file}))
	assert.Error(t, cmdExport(context.Background(), &buf, ExportFlags{File: file, DSN: "mysql://localhost/db"}))
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	file := writeFile(t, "timings.jsonl", sample)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, ServeFlags{Preload: file, Listen: "127.0.0.1:0", BasePath: "/api", Engine: "gin", MetricsEnabled: true})
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}

func TestRunServe_Errors(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, runServe(ctx, ServeFlags{Preload: filepath.Join(t.TempDir(), "missing.jsonl")}))
	assert.Error(t, runServe(ctx, ServeFlags{Listen: "127.0.0.1:0", Engine: "chi"}))
	assert.Error(t, runServe(ctx, ServeFlags{Listen: "127.0.0.1:0", TLS: config.TLSConfig{Enabled: true}}))
}

func TestCmdPush(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := server.NewRegistry()
	srv := httptest.NewServer(server.NewRouter(reg, "/api").Handler())
	defer srv.Close()

	file := writeFile(t, "timings.jsonl", sample)
	var buf bytes.Buffer
	require.NoError(t, cmdPush(context.Background(), &buf, PushFlags{File: file, APIUrl: srv.URL + "/api/", Timeout: 5 * time.Second}))
	assert.Equal(t, "Pushed 4 events (0 skipped) for ranks r1, r2\n", buf.String())
	assert.Equal(t, []string{"r1", "r2"}, reg.Ranks())

	assert.Error(t, cmdPush(context.Background(), &buf, PushFlags{APIUrl: srv.URL}))
	assert.Error(t, cmdPush(context.Background(), &buf, PushFlags{File: filepath.Join(t.TempDir(), "missing"), APIUrl: srv.URL}))
	bad := writeFile(t, "bad.jsonl", "oops\n")
	assert.Error(t, cmdPush(context.Background(), &buf, PushFlags{File: bad, APIUrl: srv.URL + "/api", Strict: true}))
}
