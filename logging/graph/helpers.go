package graph

import (
	"context"

	"github.com/qiboda/atom-sub003/logging"
)

// EventMessage is emitted by Message nodes.
const EventMessage logging.EventType = "graph.message"

// MessagePayload carries the text and value a Message node was configured with.
type MessagePayload struct {
	Graph string `json:"graph"`
	Node  string `json:"node"`
	Text  string `json:"text"`
	Value any    `json:"value,omitempty"`
}

// Message publishes a node message.
func Message(ctx context.Context, pub logging.Publisher, tick uint64, actor, owner logging.EntityRef, payload MessagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessage,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{owner},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGraph,
		Payload:  payload,
		Extra:    extra,
	})
}
