package network

import (
	"context"

	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
)

const (
	// EventProtocolViolation is emitted when a peer sends a packet that forces a disconnect.
	EventProtocolViolation logging.EventType = "network.protocol_violation"
	// EventRecorderCollision is emitted when a recorded send lands on an occupied timestamp.
	EventRecorderCollision logging.EventType = "network.recorder_collision"
	// EventReplayFinished is emitted when a replay has delivered its last entry.
	EventReplayFinished logging.EventType = "network.replay_finished"
	// EventHandshakeRejected is emitted when a transport refuses an incoming connection.
	EventHandshakeRejected logging.EventType = "network.handshake_rejected"
)

// ViolationPayload describes a fatal protocol error.
type ViolationPayload struct {
	Error string `json:"error"`
	Bytes int    `json:"bytes"`
}

// CollisionPayload identifies the dropped recording entry.
type CollisionPayload struct {
	Time  float64 `json:"time"`
	Bytes int     `json:"bytes"`
	Total uint64  `json:"total"`
}

// ReplayPayload summarizes a finished replay.
type ReplayPayload struct {
	Entries  int     `json:"entries"`
	Duration float64 `json:"duration"`
}

// HandshakePayload describes a refused connection attempt.
type HandshakePayload struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// ProtocolViolation publishes a warning for a packet that disconnected its sender.
func ProtocolViolation(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ViolationPayload, extra map[string]any) {
	publish(ctx, pub, EventProtocolViolation, logging.SeverityWarn, tick, actor, payload, extra)
}

// RecorderCollision publishes a warning when a recorded packet is dropped.
func RecorderCollision(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CollisionPayload, extra map[string]any) {
	publish(ctx, pub, EventRecorderCollision, logging.SeverityWarn, tick, actor, payload, extra)
}

// ReplayFinished publishes an info event when a replay runs out of entries.
func ReplayFinished(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ReplayPayload, extra map[string]any) {
	publish(ctx, pub, EventReplayFinished, logging.SeverityInfo, tick, actor, payload, extra)
}

// HandshakeRejected publishes a debug event for a refused connection.
func HandshakeRejected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload HandshakePayload, extra map[string]any) {
	publish(ctx, pub, EventHandshakeRejected, logging.SeverityDebug, 0, actor, payload, extra)
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
