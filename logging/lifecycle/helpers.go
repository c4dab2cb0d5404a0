package lifecycle

import (
	"context"

	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
)

const (
	// EventSessionAdmitted is emitted when a peer is assigned a session id.
	EventSessionAdmitted logging.EventType = "lifecycle.session_admitted"
	// EventSessionDisconnected is emitted when a session leaves the stream.
	EventSessionDisconnected logging.EventType = "lifecycle.session_disconnected"
	// EventElementCreated is emitted when an element enters a stream's table.
	EventElementCreated logging.EventType = "lifecycle.element_created"
	// EventElementDeleted is emitted when an element leaves a stream's table.
	EventElementDeleted logging.EventType = "lifecycle.element_deleted"
)

// SessionAdmittedPayload captures the transport details of a new session.
type SessionAdmittedPayload struct {
	Address string `json:"address"`
	Group   uint32 `json:"group"`
}

// SessionDisconnectedPayload captures why a session left and what it took with it.
type SessionDisconnectedPayload struct {
	Reason          string `json:"reason"`
	ElementsRemoved int    `json:"elementsRemoved"`
}

// ElementPayload identifies an element by name and asset.
type ElementPayload struct {
	Name     string `json:"name"`
	AuthorID uint32 `json:"authorId"`
	AssetID  uint32 `json:"assetId"`
	Fields   int    `json:"fields"`
}

// SessionAdmitted publishes a session admission event.
func SessionAdmitted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionAdmittedPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionAdmitted, logging.SeverityInfo, tick, actor, payload, extra)
}

// SessionDisconnected publishes a session disconnect event. Disconnects with
// a protocol reason are raised to warnings by the caller through severity.
func SessionDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, severity logging.Severity, payload SessionDisconnectedPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionDisconnected, severity, tick, actor, payload, extra)
}

// ElementCreated publishes an element creation event.
func ElementCreated(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ElementPayload, extra map[string]any) {
	publish(ctx, pub, EventElementCreated, logging.SeverityDebug, tick, actor, payload, extra)
}

// ElementDeleted publishes an element deletion event.
func ElementDeleted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ElementPayload, extra map[string]any) {
	publish(ctx, pub, EventElementDeleted, logging.SeverityDebug, tick, actor, payload, extra)
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
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
