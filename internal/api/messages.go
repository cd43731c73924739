// Package api defines the JSON payloads exchanged over HTTP and WebSocket.
package api

import (
	"time"

	"github.com/skobkin/nvmon-web/internal/gpu"
	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/view"
)

// Message types.
const (
	TypeHello    = "hello"
	TypeSnapshot = "snapshot"
	TypeError    = "error"
	TypePong     = "pong"
	TypeRefresh  = "refresh"
	TypePing     = "ping"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type       string          `json:"type"`
	IntervalMS int64           `json:"interval_ms"`
	Platform   string          `json:"platform"`
	Devices    []gpu.Device    `json:"devices"`
	Features   map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(interval time.Duration, platform string, devices []gpu.Device, features map[string]bool) HelloMessage {
	if devices == nil {
		devices = []gpu.Device{}
	}
	return HelloMessage{
		Type:       TypeHello,
		IntervalMS: interval.Milliseconds(),
		Platform:   platform,
		Devices:    devices,
		Features:   features,
	}
}

// SnapshotMessage carries one published snapshot together with its display
// tree.
type SnapshotMessage struct {
	Type     string          `json:"type"`
	Snapshot metric.Snapshot `json:"snapshot"`
	Tree     []view.Node     `json:"tree"`
}

// NewSnapshotMessage constructs a snapshot payload.
func NewSnapshotMessage(snap metric.Snapshot) SnapshotMessage {
	return SnapshotMessage{
		Type:     TypeSnapshot,
		Snapshot: snap,
		Tree:     view.Build(snap),
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage constructs an error payload.
func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// ClientMessage is the envelope of inbound client messages ("refresh", "ping").
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}

// RefreshResponse acknowledges a manual refresh request.
type RefreshResponse struct {
	Accepted bool `json:"accepted"`
}
