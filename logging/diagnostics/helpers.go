package diagnostics

import (
	"context"

	"github.com/qiboda/atom-sub003/logging"
)

const (
	// EventTagUnderflow is emitted when a tag removal asked for more than the
	// owner held. The count was clamped to zero.
	EventTagUnderflow logging.EventType = "tags.underflow"
	// EventCommandRejected is emitted when dispatch drops a command.
	EventCommandRejected logging.EventType = "commands.rejected"
)

// TagUnderflowPayload describes a clamped removal.
type TagUnderflowPayload struct {
	Tag       string `json:"tag"`
	Count     uint32 `json:"count"`
	Requested uint32 `json:"requested"`
}

// TagUnderflow publishes a clamped tag removal.
func TagUnderflow(ctx context.Context, pub logging.Publisher, tick uint64, owner logging.EntityRef, payload TagUnderflowPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTagUnderflow,
		Tick:     tick,
		Actor:    owner,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryTags,
		Payload:  payload,
		Extra:    extra,
	})
}

// CommandRejectedPayload describes a dropped command.
type CommandRejectedPayload struct {
	Command string `json:"command"`
	Target  string `json:"target,omitempty"`
	Reason  string `json:"reason"`
}

// CommandRejected publishes a silently dropped command.
func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload CommandRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCommands,
		Payload:  payload,
		Extra:    extra,
	})
}
