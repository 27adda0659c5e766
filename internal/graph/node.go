package graph

import (
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/tag"
)

// NodeKind enumerates the closed set of node kinds.
type NodeKind uint8

const (
	KindAbilityEntry NodeKind = iota
	KindBuffEntry
	KindTimer
	KindBranch
	KindHasTag
	KindGrantTag
	KindStripTag
	KindModifyAttribute
	KindChangeLayer
	KindSetBlackboard
	KindGetBlackboard
	KindLayer
	KindMultiply
	KindMessage
	KindEnd
)

var kindNames = map[NodeKind]string{
	KindAbilityEntry:    "ability_entry",
	KindBuffEntry:       "buff_entry",
	KindTimer:           "timer",
	KindBranch:          "branch",
	KindHasTag:          "has_tag",
	KindGrantTag:        "grant_tag",
	KindStripTag:        "strip_tag",
	KindModifyAttribute: "modify_attribute",
	KindChangeLayer:     "change_layer",
	KindSetBlackboard:   "set_blackboard",
	KindGetBlackboard:   "get_blackboard",
	KindLayer:           "layer",
	KindMultiply:        "multiply",
	KindMessage:         "message",
	KindEnd:             "end",
}

func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Exec outputs of the entry nodes.
const (
	OutReady       = "ready"
	OutStart       = "start"
	OutAbort       = "abort"
	OutLooper      = "looper"
	OutEnd         = "end"
	OutAddLayer    = "add_layer"
	OutRemoveLayer = "remove_layer"
	OutDone        = "done"
	OutTrue        = "true"
	OutFalse       = "false"
	OutThen        = "then"
)

// Target selects whose state a node reads or writes.
type Target uint8

const (
	TargetOwner Target = iota
	TargetCaster
)

func (t Target) String() string {
	if t == TargetCaster {
		return "caster"
	}
	return "owner"
}

// Behavior is implemented by the fixed set of node kinds in this package.
type Behavior interface {
	NodeKind() NodeKind
	spec() kindSpec
}

type kindSpec struct {
	outputs  []string
	required []string
	optional []string
	slots    []string
	entry    bool
	pure     bool
}

func (s kindSpec) hasOutput(name string) bool { return contains(s.outputs, name) }
func (s kindSpec) hasSlot(name string) bool   { return contains(s.slots, name) }
func (s kindSpec) hasInput(name string) bool {
	return contains(s.required, name) || contains(s.optional, name)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// AbilityEntry is the root of an ability graph.
type AbilityEntry struct{}

func (AbilityEntry) NodeKind() NodeKind { return KindAbilityEntry }
func (AbilityEntry) spec() kindSpec {
	return kindSpec{outputs: []string{OutReady, OutStart, OutAbort}, entry: true}
}

// BuffEntry is the root of a buff graph. The delta slot carries the layer
// change of add_layer and remove_layer firings; layer holds the current
// stack count. Unless KeepAtZeroLayer is set, reaching layer zero ends the
// buff.
type BuffEntry struct {
	KeepAtZeroLayer bool
}

func (BuffEntry) NodeKind() NodeKind { return KindBuffEntry }
func (BuffEntry) spec() kindSpec {
	return kindSpec{
		outputs: []string{OutReady, OutStart, OutLooper, OutAbort, OutEnd, OutAddLayer, OutRemoveLayer},
		slots:   []string{"delta", "layer"},
		entry:   true,
	}
}

// Timer stays Running until its duration input (seconds) has elapsed, then
// fires done.
type Timer struct{}

func (Timer) NodeKind() NodeKind { return KindTimer }
func (Timer) spec() kindSpec {
	return kindSpec{outputs: []string{OutDone}, required: []string{"duration"}, slots: []string{"elapsed"}}
}

// Branch fires true or false depending on its condition input.
type Branch struct{}

func (Branch) NodeKind() NodeKind { return KindBranch }
func (Branch) spec() kindSpec {
	return kindSpec{outputs: []string{OutTrue, OutFalse}, required: []string{"condition"}}
}

// HasTag reads a tag from the owner or caster.
type HasTag struct {
	Tag    tag.LayerTag
	Target Target
}

func (HasTag) NodeKind() NodeKind { return KindHasTag }
func (HasTag) spec() kindSpec {
	return kindSpec{slots: []string{"exists", "count"}, pure: true}
}

// GrantTag adds count copies (default one) of Tag to the owner, recorded in
// the activation ledger with Revert.
type GrantTag struct {
	Tag    tag.LayerTag
	Revert gating.Revert
}

func (GrantTag) NodeKind() NodeKind { return KindGrantTag }
func (GrantTag) spec() kindSpec {
	return kindSpec{outputs: []string{OutThen}, optional: []string{"count"}}
}

// StripTag removes count copies (default one) of Tag from the owner.
type StripTag struct {
	Tag tag.LayerTag
}

func (StripTag) NodeKind() NodeKind { return KindStripTag }
func (StripTag) spec() kindSpec {
	return kindSpec{outputs: []string{OutThen}, optional: []string{"count"}}
}

// ModifyAttribute applies Modifier to the target's attribute set. The value
// input, when connected, replaces Modifier.Value. Layered modifiers without
// a source are keyed by the owning ability or buff instance.
type ModifyAttribute struct {
	Target   Target
	Modifier attribute.Modifier
}

func (ModifyAttribute) NodeKind() NodeKind { return KindModifyAttribute }
func (ModifyAttribute) spec() kindSpec {
	return kindSpec{outputs: []string{OutThen}, optional: []string{"value"}, slots: []string{"applied"}}
}

// ChangeLayer adds a positive delta to, or removes a negative delta from,
// the owning buff's layer.
type ChangeLayer struct{}

func (ChangeLayer) NodeKind() NodeKind { return KindChangeLayer }
func (ChangeLayer) spec() kindSpec {
	return kindSpec{outputs: []string{OutThen}, required: []string{"delta"}}
}

// SetBlackboard stores its value input under Key.
type SetBlackboard struct {
	Key string
}

func (SetBlackboard) NodeKind() NodeKind { return KindSetBlackboard }
func (SetBlackboard) spec() kindSpec {
	return kindSpec{outputs: []string{OutThen}, required: []string{"value"}}
}

// GetBlackboard reads Key.
type GetBlackboard struct {
	Key string
}

func (GetBlackboard) NodeKind() NodeKind { return KindGetBlackboard }
func (GetBlackboard) spec() kindSpec {
	return kindSpec{slots: []string{"value"}, pure: true}
}

// Layer reads the owning buff's current layer; zero for abilities.
type Layer struct{}

func (Layer) NodeKind() NodeKind { return KindLayer }
func (Layer) spec() kindSpec {
	return kindSpec{slots: []string{"layer"}, pure: true}
}

// Multiply multiplies inputs a and b.
type Multiply struct{}

func (Multiply) NodeKind() NodeKind { return KindMultiply }
func (Multiply) spec() kindSpec {
	return kindSpec{required: []string{"a", "b"}, slots: []string{"result"}, pure: true}
}

// Message publishes Text with the optional value input.
type Message struct {
	Text string
}

func (Message) NodeKind() NodeKind { return KindMessage }
func (Message) spec() kindSpec {
	return kindSpec{outputs: []string{OutThen}, optional: []string{"value"}}
}

// End asks the owning ability or buff to finish its activation.
type End struct{}

func (End) NodeKind() NodeKind { return KindEnd }
func (End) spec() kindSpec { return kindSpec{} }
