// Package deskd supervises the fixed process stack that makes up a
// containerized trading desk: virtual display, VNC, web gateway, the Wine
// hosted terminal and its Python bridge. It starts them in dependency order
// behind readiness gates, restarts them with bounded backoff and exposes the
// aggregate health over HTTP.
package deskd

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/quantfold/deskd/internal/config"
	"github.com/quantfold/deskd/internal/logring"
	"github.com/quantfold/deskd/internal/metrics"
	"github.com/quantfold/deskd/internal/process"
	iapi "github.com/quantfold/deskd/internal/server"
	"github.com/quantfold/deskd/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = supervisor.Status

type StackStatus = supervisor.StackStatus

type Options = supervisor.Options

type LogLine = logring.Line

// Supervisor is the public handle over the orchestration core.
type Supervisor struct{ inner *supervisor.Supervisor }

// New validates the specs and dependency graph and builds a Supervisor.
// Configuration problems (cycles, unknown dependencies, malformed specs) are
// returned here, before anything is spawned.
func New(specs []Spec, opts Options) (*Supervisor, error) {
	s, err := supervisor.New(specs, opts)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: s}, nil
}

// Run drives the stack until shutdown completes.
func (s *Supervisor) Run(ctx context.Context) error { return s.inner.Run(ctx) }

// Order returns the computed dependency start order.
func (s *Supervisor) Order() []string { return s.inner.Order() }

// Status returns a copy-out snapshot of every process plus the composite flag.
func (s *Supervisor) Status() StackStatus { return s.inner.Status() }

// Start manually starts a stopped or failed process.
func (s *Supervisor) Start(name string) error { return s.inner.Start(name) }

// Stop stops one process; with cascade its dependents go down first.
func (s *Supervisor) Stop(name string, cascade bool) error { return s.inner.Stop(name, cascade) }

// Restart stops then starts a process with a fresh restart budget.
func (s *Supervisor) Restart(name string) error { return s.inner.Restart(name) }

// Shutdown winds the stack down in reverse dependency order.
func (s *Supervisor) Shutdown(ctx context.Context) error { return s.inner.Shutdown(ctx) }

// Done is closed once shutdown has completed.
func (s *Supervisor) Done() <-chan struct{} { return s.inner.Done() }

// Logs returns up to n recent captured output lines for a process.
func (s *Supervisor) Logs(name string, n int) ([]LogLine, error) { return s.inner.Logs(name, n) }

// LoadConfig parses and validates the TOML config at path.
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the control API.
func NewHTTPServer(addr, basePath string, s *Supervisor) *http.Server {
	return iapi.NewServer(addr, basePath, s.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
