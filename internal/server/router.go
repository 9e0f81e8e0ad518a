package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"

	"github.com/loykin/ranktime/internal/ingest"
	"github.com/loykin/ranktime/internal/metrics"
)

// maxBodyBytes caps POST {basePath}/events.
const maxBodyBytes = 32 << 20

// Router provides embeddable HTTP handlers over a Registry.
// Endpoints:
//
//	GET  {basePath}/ranks               sorted rank list
//	GET  {basePath}/ranks/:rank         report.Summary, 404 for unknown rank
//	GET  {basePath}/ranks/:rank/events  per-event rows with duration and gap
//	POST {basePath}/events              JSON Lines body; ?strict=1 rejects the whole body on a bad line
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	reg          *Registry
	basePath     string
	serveMetrics bool
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(reg *Registry, basePath string) *Router {
	return &Router{reg: reg, basePath: sanitizeBase(basePath)}
}

// WithMetrics also serves /metrics, outside basePath.
func (r *Router) WithMetrics() *Router {
	r.serveMetrics = true
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/ranks", r.handleRanks)
	group.GET("/ranks/:rank", r.handleSummary)
	group.GET("/ranks/:rank/events", r.handleEvents)
	group.POST("/events", r.handleIngest)
	if r.serveMetrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// Options configure NewServer.
type Options struct {
	Addr     string
	BasePath string
	// Engine is "gin" (default) or "echo". With echo the gin handler is
	// mounted under BasePath.
	Engine  string
	Metrics bool
	// TLS, when set, is installed on the server; start it with
	// ListenAndServeTLS("", "").
	TLS *tls.Config
}

// NewServer builds an HTTP server for reg. The caller starts it.
func NewServer(opts Options, reg *Registry) (*http.Server, error) {
	r := NewRouter(reg, opts.BasePath)
	if opts.Metrics {
		r.WithMetrics()
	}
	var h http.Handler
	switch opts.Engine {
	case "", "gin":
		h = r.Handler()
	case "echo":
		h = Echo(r)
	default:
		return nil, errors.New("unknown server engine: " + opts.Engine)
	}
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         opts.TLS,
	}, nil
}

// Echo mounts the router's gin handler on a new echo instance using
// echo.WrapHandler.
func Echo(r *Router) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	h := r.Handler()
	base := r.basePath
	if base == "" {
		e.Any("/*", echo.WrapHandler(h))
	} else {
		e.Any(base, echo.WrapHandler(h))
		e.Any(base+"/*", echo.WrapHandler(h))
	}
	if r.serveMetrics {
		e.GET("/metrics", echo.WrapHandler(h))
	}
	return e
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type ingestResp struct {
	Events  int      `json:"events"`
	Skipped int      `json:"skipped"`
	Ranks   []string `json:"ranks"`
}

func (r *Router) handleRanks(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.reg.Ranks())
}

func (r *Router) handleSummary(c *gin.Context) {
	rank := c.Param("rank")
	sum, ok, err := r.reg.Summary(rank)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown rank: " + rank})
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, sum)
}

func (r *Router) handleEvents(c *gin.Context) {
	rank := c.Param("rank")
	rows, ok, err := r.reg.Rows(rank)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown rank: " + rank})
		return
	}
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rows)
}

func (r *Router) handleIngest(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	opts := ingest.Options{Strict: isTrue(c.Query("strict"))}
	res, err := r.reg.Ingest(body, opts)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	slog.Info("Ingested events over HTTP", "events", res.Events, "skipped", res.Skipped, "ranks", len(res.Ranks))
	ranks := res.Ranks
	if ranks == nil {
		ranks = []string{}
	}
	writeJSON(c, http.StatusOK, ingestResp{Events: res.Events, Skipped: res.Skipped, Ranks: ranks})
}
