package buffs

import (
	"context"

	"github.com/qiboda/atom-sub003/logging"
)

const (
	// EventAdded is emitted when a buff instance is applied to an owner.
	EventAdded logging.EventType = "buffs.added"
	// EventRemoved is emitted when a buff instance ends.
	EventRemoved logging.EventType = "buffs.removed"
	// EventLayerChanged is emitted whenever a buff's stack count moves.
	EventLayerChanged logging.EventType = "buffs.layer_changed"
)

// AddedPayload captures details about a buff application.
type AddedPayload struct {
	Buff       string `json:"buff"`
	Instance   string `json:"instance"`
	Layer      int    `json:"layer"`
	MaxLayer   int    `json:"maxLayer"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Added publishes a buff application.
func Added(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload AddedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAdded,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{owner},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryBuffs,
		Payload:  payload,
		Extra:    extra,
	})
}

// RemovedPayload captures why a buff ended.
type RemovedPayload struct {
	Buff     string `json:"buff"`
	Instance string `json:"instance"`
	Reason   string `json:"reason"`
}

// Removed publishes a buff removal.
func Removed(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload RemovedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRemoved,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{owner},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryBuffs,
		Payload:  payload,
		Extra:    extra,
	})
}

// LayerChangedPayload captures a stack count transition.
type LayerChangedPayload struct {
	Buff     string `json:"buff"`
	Instance string `json:"instance"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
	MaxLayer int    `json:"maxLayer"`
}

// LayerChanged publishes a stack count transition.
func LayerChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload LayerChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLayerChanged,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{owner},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryBuffs,
		Payload:  payload,
		Extra:    extra,
	})
}
