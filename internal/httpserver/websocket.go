package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"github.com/skobkin/nvmon-web/internal/api"
)

const wsSendQueueSize = 16

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.loggerFromContext(r.Context())
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	if !s.reserveWS() {
		reqLogger.Warn("websocket rejected", "reason", "capacity")
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseWS()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		reqLogger.Warn("websocket accept failed", "err", err)
		return
	}

	connID := s.wsConnIDs.Add(1)
	s.wsTotal.Add(1)
	logger := reqLogger.With("ws_id", connID)

	ctx, cancel := context.WithCancel(r.Context())
	outbound := newWSOutbound(wsSendQueueSize, &s.wsDropped)
	writerDone := make(chan struct{})
	go s.wsWriter(ctx, conn, outbound, cancel, logger, writerDone)

	var (
		updates     <-chan struct{}
		unsubscribe func()
	)
	closeCode, closeReason := websocket.StatusNormalClosure, ""
	// The close frame goes out after queued messages are flushed and before
	// ctx is cancelled; cancelling a pending read tears the connection down.
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
		outbound.close()
		<-writerDone
		closeWebsocket(logger, conn, closeCode, closeReason)
		cancel()
	}()

	if !s.enqueueMessage(outbound, s.helloMessage(), logger) {
		return
	}

	if s.telemetry == nil {
		if !s.enqueueError(outbound, "telemetry unavailable: unsupported platform", logger) {
			return
		}
	} else {
		updates, unsubscribe = s.telemetry.Subscribe()
		if snap, ok := s.telemetry.Latest(); ok {
			if !s.enqueueMessage(outbound, api.NewSnapshotMessage(snap), logger) {
				return
			}
		}
	}

	messageCh := make(chan []byte, 8)
	readErrCh := make(chan error, 1)
	go s.readMessages(ctx, conn, messageCh, readErrCh)

	logger.Debug("ws client connected")
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				closeCode, closeReason = websocket.StatusGoingAway, "sampler stopped"
				return
			}
			snap, ready := s.telemetry.Latest()
			if !ready {
				continue
			}
			if !s.enqueueMessage(outbound, api.NewSnapshotMessage(snap), logger) {
				return
			}
		case data, ok := <-messageCh:
			if !ok {
				messageCh = nil
				continue
			}
			if err := s.handleClientMessage(outbound, data, logger); err != nil {
				logger.Warn("client message handling error", "err", err)
				return
			}
		case err := <-readErrCh:
			if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debug("websocket read ended", "err", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) helloMessage() api.HelloMessage {
	interval := s.cfg.RefreshInterval
	if s.telemetry != nil {
		interval = s.telemetry.Interval()
	}
	features := map[string]bool{
		"telemetry":  s.telemetry != nil,
		"refresh":    s.telemetry != nil,
		"prometheus": s.cfg.EnablePrometheus,
	}
	return api.NewHelloMessage(interval, s.cfg.Platform, s.devices, features)
}

func (s *Server) readMessages(ctx context.Context, conn *websocket.Conn, out chan<- []byte, errCh chan<- error) {
	defer close(out)
	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if s.cfg.WS.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, s.cfg.WS.ReadTimeout)
		}
		msgType, data, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			errCh <- err
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleClientMessage(outbound *wsOutbound, data []byte, logger *slog.Logger) error {
	var envelope api.ClientMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Debug("invalid client message", "err", err)
		return nil
	}

	switch envelope.Type {
	case api.TypeRefresh:
		if s.telemetry == nil || !s.telemetry.TriggerNow() {
			if !s.enqueueError(outbound, "refresh unavailable", logger) {
				return fmt.Errorf("failed to enqueue refresh error")
			}
		}
	case api.TypePing:
		if !s.enqueueMessage(outbound, api.PongMessage{Type: api.TypePong}, logger) {
			return fmt.Errorf("failed to enqueue pong response")
		}
	default:
		logger.Debug("unknown message type", "type", envelope.Type)
	}
	return nil
}

func (s *Server) wsWriter(ctx context.Context, conn *websocket.Conn, outbound *wsOutbound, cancel context.CancelFunc, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound.channel():
			if !ok {
				return
			}
			if err := s.writeRaw(ctx, conn, msg); err != nil {
				if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					logger.Warn("websocket write failed", "err", err)
				}
				cancel()
				return
			}
			s.wsSent.Add(1)
		}
	}
}

func (s *Server) writeRaw(ctx context.Context, conn *websocket.Conn, data []byte) error {
	if s.cfg.WS.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WS.WriteTimeout)
		defer cancel()
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) enqueueMessage(outbound *wsOutbound, payload any, logger *slog.Logger) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal websocket payload", "err", err)
		return false
	}
	if !outbound.enqueue(data) {
		logger.Warn("websocket outbound queue unavailable")
		return false
	}
	return true
}

func (s *Server) enqueueError(outbound *wsOutbound, msg string, logger *slog.Logger) bool {
	return s.enqueueMessage(outbound, api.NewErrorMessage(msg), logger)
}

func (s *Server) reserveWS() bool {
	if s.maxWSClients <= 0 {
		s.wsActive.Add(1)
		return true
	}
	for {
		current := s.wsActive.Load()
		if current >= s.maxWSClients {
			s.wsRejected.Add(1)
			return false
		}
		if s.wsActive.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (s *Server) releaseWS() {
	s.wsActive.Add(-1)
}

func originPatterns(origins []string) []string {
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
	}
	dst := make([]string, len(origins))
	copy(dst, origins)
	return dst
}

// wsOutbound is a bounded per-connection send queue. When full, the oldest
// queued message is dropped in favour of the new one.
type wsOutbound struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
	drops  *atomic.Uint64
}

func newWSOutbound(size int, dropCounter *atomic.Uint64) *wsOutbound {
	if size <= 0 {
		size = 1
	}
	return &wsOutbound{
		ch:    make(chan []byte, size),
		drops: dropCounter,
	}
}

func (o *wsOutbound) enqueue(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		o.countDrop()
		return false
	}
	for {
		select {
		case o.ch <- msg:
			return true
		default:
		}
		select {
		case <-o.ch:
			o.countDrop()
		default:
		}
	}
}

func (o *wsOutbound) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

func (o *wsOutbound) channel() <-chan []byte {
	return o.ch
}

func (o *wsOutbound) countDrop() {
	if o.drops != nil {
		o.drops.Add(1)
	}
}
