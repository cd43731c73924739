// Package httpserver exposes snapshots over HTTP, WebSocket and Prometheus.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/skobkin/nvmon-web/internal/api"
	"github.com/skobkin/nvmon-web/internal/config"
	"github.com/skobkin/nvmon-web/internal/gpu"
	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/sampler"
	"github.com/skobkin/nvmon-web/internal/version"
	"github.com/skobkin/nvmon-web/internal/view"
)

const readHeaderTimeout = 5 * time.Second

// Telemetry is the published view of the sampler. *sampler.Manager
// implements it.
type Telemetry interface {
	Latest() (metric.Snapshot, bool)
	Ready() bool
	Subscribe() (<-chan struct{}, func())
	TriggerNow() bool
	Interval() time.Duration
	Stats() sampler.Stats
}

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	devices    []gpu.Device
	telemetry  Telemetry

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsDropped    atomic.Uint64
	wsConnIDs    atomic.Uint64
	requestIDs   atomic.Uint64
}

// New assembles a Server with its handlers. A nil telemetry means the
// platform is unsupported: the server still answers, in degraded mode.
func New(cfg config.Config, logger *slog.Logger, devices []gpu.Device, telemetry Telemetry) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		devices:   devices,
		telemetry: telemetry,
	}
	if s.devices == nil {
		s.devices = []gpu.Device{}
	}
	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/tree", s.handleTree)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/devices", s.handleDevices)
	mux.HandleFunc("/ws", s.handleWS)

	// Pages are embedded at build time, so a read failure is a broken build.
	docs, err := newPageHandler(s)
	if err != nil {
		panic(err)
	}
	mux.Handle("/", docs)
	mux.Handle("/api", docs)
	mux.Handle("/api/", docs)

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.loggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	info := s.readiness()
	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, statusCode, info)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, version.Current())
}

// latest returns the current snapshot or writes a 503 explaining why there
// is none.
func (s *Server) latest(w http.ResponseWriter) (metric.Snapshot, bool) {
	if s.telemetry == nil {
		http.Error(w, "telemetry unavailable: unsupported platform", http.StatusServiceUnavailable)
		return metric.Snapshot{}, false
	}
	snap, ok := s.telemetry.Latest()
	if !ok {
		http.Error(w, "no snapshot available", http.StatusServiceUnavailable)
		return metric.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if snap, ok := s.latest(w); ok {
		s.writeJSON(w, r, http.StatusOK, snap)
	}
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if snap, ok := s.latest(w); ok {
		s.writeJSON(w, r, http.StatusOK, view.Build(snap))
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if s.telemetry == nil {
		http.Error(w, "telemetry unavailable: unsupported platform", http.StatusServiceUnavailable)
		return
	}
	if !s.telemetry.TriggerNow() {
		http.Error(w, "sampler stopped", http.StatusServiceUnavailable)
		return
	}
	s.loggerFromContext(r.Context()).Debug("manual refresh requested")
	s.writeJSON(w, r, http.StatusAccepted, api.RefreshResponse{Accepted: true})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.devices)
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

type readyResponse struct {
	Status         string `json:"status"`
	Platform       string `json:"platform"`
	Devices        int    `json:"devices"`
	SnapshotStatus string `json:"snapshot_status,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func (s *Server) readiness() readyResponse {
	resp := readyResponse{
		Platform: s.cfg.Platform,
		Devices:  len(s.devices),
	}

	if s.telemetry == nil {
		resp.Status = "degraded"
		resp.Reason = "unsupported_platform"
		return resp
	}

	snap, ok := s.telemetry.Latest()
	if !ok {
		resp.Status = "initializing"
		resp.Reason = "waiting_for_snapshot"
		return resp
	}

	resp.Status = "ok"
	resp.SnapshotStatus = snap.Status.String()
	return resp
}
