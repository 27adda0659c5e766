package graph

import "fmt"

// NodeID addresses a node inside one template. Zero is never a valid node.
type NodeID int

// SlotRef names a value output slot of a node.
type SlotRef struct {
	Node NodeID
	Slot string
}

func (r SlotRef) String() string {
	return fmt.Sprintf("%d.%s", r.Node, r.Slot)
}

// Input is a value pin: either a literal or a reference to another node's
// output slot.
type Input struct {
	lit   any
	ref   SlotRef
	isRef bool
}

// Lit returns a literal input.
func Lit(v any) Input {
	return Input{lit: v}
}

// Ref returns an input that reads slot of node.
func Ref(node NodeID, slot string) Input {
	return Input{ref: SlotRef{Node: node, Slot: slot}, isRef: true}
}

// IsRef reports whether the input reads another node.
func (in Input) IsRef() bool { return in.isRef }

// Slot returns the referenced slot.
func (in Input) Slot() SlotRef { return in.ref }

// Literal returns the literal value.
func (in Input) Literal() any { return in.lit }

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	if n, ok := v.(int); ok {
		return n, true
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func toBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	f, ok := toFloat(v)
	return ok && f != 0
}
