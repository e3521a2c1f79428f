package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantfold/deskd/internal/metrics"
	"github.com/quantfold/deskd/internal/supervisor"
)

// Router exposes the supervisor's query/control interface over HTTP.
// Endpoints:
//
//	GET  {basePath}/status          aggregate snapshot incl. composite flag
//	GET  {basePath}/status/:name    one instance
//	POST {basePath}/start?name=...
//	POST {basePath}/stop?name=...&cascade=true
//	POST {basePath}/restart?name=...
//	POST {basePath}/shutdown
//	GET  {basePath}/logs?name=...&n=100
//	GET  {basePath}/journal?name=...&n=50
//	GET  /healthz                   200 when composite-ready, else 503
//	GET  /metrics                   Prometheus metrics
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with a configurable basePath, e.g. "/api".
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/status/:name", r.handleStatusOne)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.POST("/shutdown", r.handleShutdown)
	group.GET("/logs", r.handleLogs)
	group.GET("/journal", r.handleJournal)
	g.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) *http.Server {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Status())
}

func (r *Router) handleStatusOne(c *gin.Context) {
	name := c.Param("name")
	st := r.sup.Status()
	for _, p := range st.Processes {
		if p.Name == name {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	c.JSON(http.StatusNotFound, errorResp{Error: "unknown process: " + name})
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if err := r.sup.Start(name); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	cascade, _ := strconv.ParseBool(c.DefaultQuery("cascade", "false"))
	if err := r.sup.Stop(name, cascade); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	if err := r.sup.Restart(name); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleShutdown(c *gin.Context) {
	// reply immediately; the stack winds down in reverse dependency order.
	// The request context ends with this handler, so the background wait
	// uses its own.
	go func() {
		_ = r.sup.Shutdown(context.Background())
	}()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

type logLine struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

func (r *Router) handleLogs(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	n := 100
	if s := c.Query("n"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			n = v
		}
	}
	lines, err := r.sup.Logs(name, n)
	if err != nil {
		c.JSON(http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	out := make([]logLine, len(lines))
	for i, ln := range lines {
		out[i] = logLine{At: ln.At, Text: ln.Text}
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) handleJournal(c *gin.Context) {
	j := r.sup.Journal()
	if j == nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "journal not configured"})
		return
	}
	n := 50
	if s := c.Query("n"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			n = v
		}
	}
	rows, err := j.Recent(c.Request.Context(), c.Query("name"), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (r *Router) handleHealthz(c *gin.Context) {
	st := r.sup.Status()
	if st.Ready {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}

func sanitizeBase(bp string) string {
	if bp == "" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	for len(bp) > 1 && bp[len(bp)-1] == '/' {
		bp = bp[:len(bp)-1]
	}
	return bp
}
