package abilities

import (
	"context"

	"github.com/qiboda/atom-sub003/logging"
)

const (
	// EventGranted is emitted when an ability is granted to an owner.
	EventGranted logging.EventType = "abilities.granted"
	// EventRevoked is emitted when an ability is marked for removal.
	EventRevoked logging.EventType = "abilities.revoked"
	// EventStarted is emitted when a Start command activates an ability.
	EventStarted logging.EventType = "abilities.started"
	// EventAborted is emitted when an active ability is aborted.
	EventAborted logging.EventType = "abilities.aborted"
	// EventEnded is emitted when an activation finishes naturally.
	EventEnded logging.EventType = "abilities.ended"
)

// Payload identifies the ability instance an event refers to.
type Payload struct {
	Ability  string `json:"ability"`
	Instance string `json:"instance"`
	Reason   string `json:"reason,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, actor, owner logging.EntityRef, payload Payload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{owner},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryAbilities,
		Payload:  payload,
		Extra:    extra,
	})
}

// Granted publishes an ability grant.
func Granted(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload Payload, extra map[string]any) {
	publish(ctx, pub, EventGranted, tick, actor, owner, payload, extra)
}

// Revoked publishes an ability revocation.
func Revoked(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload Payload, extra map[string]any) {
	publish(ctx, pub, EventRevoked, tick, actor, owner, payload, extra)
}

// Started publishes an ability activation.
func Started(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload Payload, extra map[string]any) {
	publish(ctx, pub, EventStarted, tick, actor, owner, payload, extra)
}

// Aborted publishes an ability abort.
func Aborted(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload Payload, extra map[string]any) {
	publish(ctx, pub, EventAborted, tick, actor, owner, payload, extra)
}

// Ended publishes the natural end of an activation.
func Ended(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload Payload, extra map[string]any) {
	publish(ctx, pub, EventEnded, tick, actor, owner, payload, extra)
}
