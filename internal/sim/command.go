package sim

import (
	"errors"
	"fmt"
	"time"
)

// CommandKind enumerates the supported commands.
type CommandKind string

const (
	CommandGrant       CommandKind = "grant"
	CommandStart       CommandKind = "start"
	CommandAddLayer    CommandKind = "add_layer"
	CommandRemoveLayer CommandKind = "remove_layer"
	CommandPause       CommandKind = "pause"
	CommandResume      CommandKind = "resume"
	CommandAbort       CommandKind = "abort"
	CommandRevoke      CommandKind = "revoke"
)

// DispatchOrder is the order queues are drained in each tick. Producer
// order is preserved within one kind only.
var DispatchOrder = []CommandKind{
	CommandGrant,
	CommandStart,
	CommandAddLayer,
	CommandRemoveLayer,
	CommandPause,
	CommandResume,
	CommandAbort,
	CommandRevoke,
}

// ParseCommandKind maps a wire name to a CommandKind.
func ParseCommandKind(value string) (CommandKind, bool) {
	for _, kind := range DispatchOrder {
		if string(kind) == value {
			return kind, true
		}
	}
	return "", false
}

// TargetKind says whether a command addresses an ability or a buff.
type TargetKind string

const (
	TargetAbility TargetKind = "ability"
	TargetBuff    TargetKind = "buff"
)

// ErrInvalidCommand is returned by Validate.
var ErrInvalidCommand = errors.New("sim: invalid command")

// Command is an intent captured for processing on the next tick. For
// abilities Start casts a granted ability; for buffs Start applies the
// definition to the owner.
type Command struct {
	ID         string      `json:"id"`
	OriginTick uint64      `json:"originTick"`
	Kind       CommandKind `json:"kind"`
	Owner      string      `json:"owner"`
	Caster     string      `json:"caster,omitempty"`
	Target     TargetKind  `json:"target"`
	Definition string      `json:"definition"`
	Count      int         `json:"count,omitempty"`
	IssuedAt   time.Time   `json:"issuedAt"`
}

// Validate checks the command shape. Whether the addressed entities exist
// is decided at dispatch time.
func (c Command) Validate() error {
	if _, ok := ParseCommandKind(string(c.Kind)); !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, c.Kind)
	}
	if c.Owner == "" || c.Definition == "" {
		return fmt.Errorf("%w: %s needs an owner and a definition", ErrInvalidCommand, c.Kind)
	}
	switch c.Target {
	case TargetAbility:
		if c.Kind == CommandAddLayer || c.Kind == CommandRemoveLayer {
			return fmt.Errorf("%w: %s applies to buffs only", ErrInvalidCommand, c.Kind)
		}
	case TargetBuff:
		if c.Kind == CommandGrant {
			return fmt.Errorf("%w: grant applies to abilities only", ErrInvalidCommand)
		}
	default:
		return fmt.Errorf("%w: unknown target %q", ErrInvalidCommand, c.Target)
	}
	if c.Count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidCommand, c.Count)
	}
	return nil
}

// Layers returns the layer count for AddLayer and RemoveLayer, defaulting
// to one.
func (c Command) Layers() int {
	if c.Count <= 0 {
		return 1
	}
	return c.Count
}
