package httpserver

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// requestIDHeader echoes the request number that appears as req_id in logs.
const requestIDHeader = "X-Request-Id"

type requestLoggerKey struct{}

// responseRecorder captures the status and size of a response.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rec *responseRecorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.size += int64(n)
	return n, err
}

// Hijack hands the connection to the WebSocket handler.
func (rec *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpserver: connection cannot be hijacked")
	}
	return hijacker.Hijack()
}

func (rec *responseRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (rec *responseRecorder) statusCode() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

// withRequestLogging logs one record per request. API and stream requests
// also carry the snapshot that was current when the response finished.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.requestIDs.Add(1)
		logger := s.logger.With("req_id", id, "method", r.Method, "path", r.URL.Path)
		if r.RemoteAddr != "" {
			logger = logger.With("remote_addr", r.RemoteAddr)
		}
		w.Header().Set(requestIDHeader, strconv.FormatUint(id, 10))

		rec := &responseRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLoggerKey{}, logger)))

		status := rec.statusCode()
		attrs := []any{"status", status, "duration", time.Since(start), "bytes", rec.size}
		attrs = append(attrs, s.snapshotAttrs(r.URL.Path)...)
		logger.Log(r.Context(), requestLogLevel(r.URL.Path, status), "request complete", attrs...)
	})
}

func (s *Server) snapshotAttrs(path string) []any {
	if path != "/ws" && !strings.HasPrefix(path, "/api/") {
		return nil
	}
	if s.telemetry == nil {
		return []any{"snapshot_status", "unavailable"}
	}
	snap, _ := s.telemetry.Latest()
	return []any{"snapshot_seq", snap.Sequence, "snapshot_status", snap.Status}
}

// requestLogLevel keeps probe and scrape traffic out of the info log.
func requestLogLevel(path string, status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelWarn
	}
	switch path {
	case "/healthz", "/readyz", "/api/healthz", "/api/readyz", "/metrics":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (s *Server) loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return s.logger
}
