package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/ranktime/internal/export"
	"github.com/loykin/ranktime/internal/report"
)

const body = `{"rank":"r1","start":10,"finish":12,"status":"indexed"}
{"rank":"r1","start":0,"finish":5,"ok":true}
{"rank":"r1","start":20,"finish":21,"ok":false}
{"rank":"r0","start":1,"finish":2}
`

func setupRouter(t *testing.T, base string) (http.Handler, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := NewRegistry()
	return NewRouter(reg, base).Handler(), reg
}

func doReq(t *testing.T, h http.Handler, method, path, payload string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if payload != "" {
		rdr = strings.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIngestThenQuery(t *testing.T) {
	h, _ := setupRouter(t, "/api")

	rec := doReq(t, h, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ir ingestResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ir))
	assert.Equal(t, ingestResp{Events: 4, Skipped: 0, Ranks: []string{"r1", "r0"}}, ir)

	rec = doReq(t, h, http.MethodGet, "/api/ranks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ranks []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ranks))
	assert.Equal(t, []string{"r0", "r1"}, ranks)

	rec = doReq(t, h, http.MethodGet, "/api/ranks/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum report.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Events)
	assert.Equal(t, report.Seconds(21), sum.Span)
	assert.Equal(t, report.Seconds(6.5), sum.Gap.Mean)

	rec = doReq(t, h, http.MethodGet, "/api/ranks/r1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []export.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, 5.0, rows[0].DurationSeconds)
	assert.Nil(t, rows[0].GapSeconds)
	require.NotNil(t, rows[2].GapSeconds)
	assert.Equal(t, 8.0, *rows[2].GapSeconds)
}

func TestIngestRecomputesAffectedRank(t *testing.T) {
	h, reg := setupRouter(t, "")
	require.Equal(t, http.StatusOK, doReq(t, h, http.MethodPost, "/events", body).Code)

	// an earlier event arrives later and becomes the first
	rec := doReq(t, h, http.MethodPost, "/events", `{"rank":"r1","start":-4,"finish":-3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	sum, ok, err := reg.Summary("r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, sum.Events)
	assert.Equal(t, report.Seconds(3), sum.Gap.Min)
	assert.Equal(t, int64(-4), sum.FirstStart.Unix())
}

func TestUnknownRank(t *testing.T) {
	h, _ := setupRouter(t, "")
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/ranks/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, http.MethodGet, "/ranks/nope/events", "").Code)
}

func TestEmptyRegistry(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/ranks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestIngestStrict(t *testing.T) {
	h, reg := setupRouter(t, "")
	bad := "{\"rank\":\"r\",\"start\":0,\"finish\":1}\nnot json\n"

	rec := doReq(t, h, http.MethodPost, "/events?strict=true", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "line 2")
	assert.Empty(t, reg.Ranks(), "rejected body must not be merged")

	rec = doReq(t, h, http.MethodPost, "/events", bad)
	require.Equal(t, http.StatusOK, rec.Code)
	var ir ingestResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ir))
	assert.Equal(t, 1, ir.Events)
	assert.Equal(t, 1, ir.Skipped)
}

func TestIngestEmptyBody(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/events", "# nothing\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":0,"skipped":0,"ranks":[]}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRouter(NewRegistry(), "/api").WithMetrics().Handler()
	rec := doReq(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	plain, _ := setupRouter(t, "/api")
	assert.Equal(t, http.StatusNotFound, doReq(t, plain, http.MethodGet, "/metrics", "").Code)
}

func TestEchoMount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := NewRegistry()
	e := Echo(NewRouter(reg, "/api"))

	rec := doReq(t, e, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doReq(t, e, http.MethodGet, "/api/ranks/r0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum report.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "r0", sum.Rank)
}

func TestNewServer(t *testing.T) {
	reg := NewRegistry()
	for _, engine := range []string{"", "gin", "echo"} {
		srv, err := NewServer(Options{Addr: ":0", BasePath: "api", Engine: engine}, reg)
		require.NoError(t, err)
		assert.Equal(t, ":0", srv.Addr)
		assert.NotNil(t, srv.Handler)
	}
	_, err := NewServer(Options{Engine: "chi"}, reg)
	assert.Error(t, err)
}
