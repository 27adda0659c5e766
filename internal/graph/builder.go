package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qiboda/atom-sub003/internal/attribute"
)

// Kind says whether a template drives an ability or a buff.
type Kind uint8

const (
	KindAbility Kind = iota
	KindBuff
)

func (k Kind) String() string {
	if k == KindBuff {
		return "buff"
	}
	return "ability"
}

type nodeSpec struct {
	name     string
	behavior Behavior
	inputs   map[string]Input
	outputs  map[string][]NodeID
	parent   NodeID
}

// Template is a validated, immutable graph definition. Instantiate it once
// per ability or buff instance.
type Template struct {
	name   string
	kind   Kind
	entry  NodeID
	nodes  []nodeSpec
	byName map[string]NodeID
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Kind reports whether the template drives an ability or a buff.
func (t *Template) Kind() Kind { return t.kind }

// Entry returns the entry node.
func (t *Template) Entry() NodeID { return t.entry }

// Len returns the number of nodes.
func (t *Template) Len() int { return len(t.nodes) - 1 }

// Lookup returns the node registered under name.
func (t *Template) Lookup(name string) (NodeID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// NodeName returns the name of id.
func (t *Template) NodeName(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	return t.nodes[id].name
}

// NodeKind returns the kind of id.
func (t *Template) NodeKind(id NodeID) NodeKind {
	if !t.valid(id) {
		return 0
	}
	return t.nodes[id].behavior.NodeKind()
}

// Behavior returns the behavior of id, nil when id is unknown.
func (t *Template) Behavior(id NodeID) Behavior {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].behavior
}

// Parent returns the exec parent of id, zero for the entry and pure nodes.
func (t *Template) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return 0
	}
	return t.nodes[id].parent
}

// Children returns the nodes wired to output of id.
func (t *Template) Children(id NodeID, output string) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return append([]NodeID(nil), t.nodes[id].outputs[output]...)
}

func (t *Template) valid(id NodeID) bool {
	return id > 0 && int(id) < len(t.nodes)
}

// Builder assembles a Template. Mistakes are collected and reported by Build.
type Builder struct {
	name   string
	nodes  []nodeSpec
	byName map[string]NodeID
	errs   []error
}

// NewBuilder starts a template called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		nodes:  make([]nodeSpec, 1),
		byName: make(map[string]NodeID),
	}
}

// Add appends a node and returns its id.
func (b *Builder) Add(name string, behavior Behavior) NodeID {
	if behavior == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q: nil behavior: %w", name, ErrUnknownNode))
		return 0
	}
	if _, dup := b.byName[name]; dup || name == "" {
		b.errs = append(b.errs, fmt.Errorf("node %q: %w", name, ErrDuplicateNode))
		return 0
	}
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, nodeSpec{
		name:     name,
		behavior: behavior,
		inputs:   make(map[string]Input),
		outputs:  make(map[string][]NodeID),
	})
	b.byName[name] = id
	return id
}

// Input connects a value pin of node.
func (b *Builder) Input(node NodeID, pin string, in Input) *Builder {
	if !b.valid(node) {
		b.errs = append(b.errs, fmt.Errorf("input %q on node %d: %w", pin, node, ErrUnknownNode))
		return b
	}
	b.nodes[node].inputs[pin] = in
	return b
}

// Connect wires exec output of from to every node in to.
func (b *Builder) Connect(from NodeID, output string, to ...NodeID) *Builder {
	if !b.valid(from) {
		b.errs = append(b.errs, fmt.Errorf("exec %q from node %d: %w", output, from, ErrUnknownNode))
		return b
	}
	for _, child := range to {
		if !b.valid(child) {
			b.errs = append(b.errs, fmt.Errorf("exec %s.%s to node %d: %w", b.nodes[from].name, output, child, ErrUnknownNode))
			continue
		}
		b.nodes[from].outputs[output] = append(b.nodes[from].outputs[output], child)
	}
	return b
}

func (b *Builder) valid(id NodeID) bool {
	return id > 0 && int(id) < len(b.nodes)
}

// Build validates the graph and freezes it into a Template. Every problem is
// reported; match individual causes with errors.Is.
func (b *Builder) Build() (*Template, error) {
	errs := append([]error(nil), b.errs...)
	fail := func(id NodeID, format string, args ...any) {
		errs = append(errs, fmt.Errorf("node %q: "+format, append([]any{b.nodes[id].name}, args...)...))
	}

	nodes := make([]nodeSpec, len(b.nodes))
	for i := 1; i < len(b.nodes); i++ {
		src := b.nodes[i]
		nodes[i] = nodeSpec{
			name:     src.name,
			behavior: src.behavior,
			inputs:   make(map[string]Input, len(src.inputs)),
			outputs:  make(map[string][]NodeID, len(src.outputs)),
		}
		for k, v := range src.inputs {
			nodes[i].inputs[k] = v
		}
		for k, v := range src.outputs {
			nodes[i].outputs[k] = append([]NodeID(nil), v...)
		}
	}

	var entry NodeID
	kind := KindAbility
	for i := 1; i < len(nodes); i++ {
		id := NodeID(i)
		n := &nodes[i]
		spec := n.behavior.spec()
		if spec.entry {
			if entry != 0 {
				fail(id, "%w", ErrMultipleEntries)
			} else {
				entry = id
				if n.behavior.NodeKind() == KindBuffEntry {
					kind = KindBuff
				}
			}
		}

		for _, output := range sortedKeys(n.outputs) {
			if !spec.hasOutput(output) {
				fail(id, "output %q: %w", output, ErrUnknownOutput)
				continue
			}
			for _, child := range n.outputs[output] {
				childSpec := nodes[child].behavior.spec()
				if childSpec.entry || childSpec.pure {
					fail(id, "output %q to %q: %w", output, nodes[child].name, ErrNotExecutable)
					continue
				}
				if nodes[child].parent != 0 && nodes[child].parent != id {
					fail(child, "parents %q and %q: %w", nodes[nodes[child].parent].name, n.name, ErrMultipleParents)
					continue
				}
				nodes[child].parent = id
			}
		}

		for _, pin := range sortedKeys(n.inputs) {
			in := n.inputs[pin]
			if !spec.hasInput(pin) {
				fail(id, "input %q: %w", pin, ErrUnknownInput)
				continue
			}
			if !in.isRef {
				continue
			}
			ref := in.ref
			if ref.Node <= 0 || int(ref.Node) >= len(nodes) {
				fail(id, "input %q reads node %d: %w", pin, ref.Node, ErrUnknownNode)
				continue
			}
			if !nodes[ref.Node].behavior.spec().hasSlot(ref.Slot) {
				fail(id, "input %q reads %s.%s: %w", pin, nodes[ref.Node].name, ref.Slot, ErrUnknownSlot)
			}
		}
		for _, pin := range spec.required {
			if _, ok := n.inputs[pin]; !ok {
				fail(id, "input %q: %w", pin, ErrMissingInput)
			}
		}

		if err := validateBehavior(n.behavior); err != nil {
			fail(id, "%w", err)
		}
	}

	if entry == 0 {
		errs = append(errs, ErrNoEntry)
	} else {
		errs = append(errs, checkExecTree(nodes, entry)...)
	}
	errs = append(errs, checkValueCycles(nodes)...)

	if len(errs) > 0 {
		return nil, fmt.Errorf("graph %q: %w", b.name, errors.Join(errs...))
	}

	byName := make(map[string]NodeID, len(b.byName))
	for k, v := range b.byName {
		byName[k] = v
	}
	return &Template{name: b.name, kind: kind, entry: entry, nodes: nodes, byName: byName}, nil
}

func validateBehavior(behavior Behavior) error {
	switch n := behavior.(type) {
	case HasTag:
		if !n.Tag.Valid() {
			return ErrInvalidTag
		}
	case GrantTag:
		if !n.Tag.Valid() {
			return ErrInvalidTag
		}
	case StripTag:
		if !n.Tag.Valid() {
			return ErrInvalidTag
		}
	case ModifyAttribute:
		m := n.Modifier
		if m.Op.Instant() {
			if m.Vital != attribute.VitalHealth && m.Vital != attribute.VitalMana {
				return ErrInvalidModifier
			}
			return nil
		}
		if m.Op > attribute.OpOverride || m.Stat >= attribute.StatCount ||
			m.Layer == attribute.LayerBase || m.Layer >= attribute.LayerCount {
			return ErrInvalidModifier
		}
	}
	return nil
}

// checkExecTree walks exec edges from the entry. With single parents
// enforced, any executable node the walk misses is either unreachable or
// part of a detached cycle.
func checkExecTree(nodes []nodeSpec, entry NodeID) []error {
	reached := make([]bool, len(nodes))
	stack := []NodeID{entry}
	reached[entry] = true
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, children := range nodes[id].outputs {
			for _, child := range children {
				if !reached[child] && !nodes[child].behavior.spec().pure {
					reached[child] = true
					stack = append(stack, child)
				}
			}
		}
	}

	var errs []error
	for i := 1; i < len(nodes); i++ {
		spec := nodes[i].behavior.spec()
		if reached[i] || spec.pure || spec.entry {
			continue
		}
		if onParentCycle(nodes, NodeID(i)) {
			errs = append(errs, fmt.Errorf("node %q: exec: %w", nodes[i].name, ErrCycle))
			continue
		}
		errs = append(errs, fmt.Errorf("node %q: %w", nodes[i].name, ErrUnreachable))
	}
	return errs
}

func onParentCycle(nodes []nodeSpec, start NodeID) bool {
	seen := map[NodeID]bool{start: true}
	for id := nodes[start].parent; id != 0; id = nodes[id].parent {
		if id == start {
			return true
		}
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return false
}

// checkValueCycles rejects pure nodes whose inputs eventually read
// themselves, since pure nodes are evaluated recursively on read.
func checkValueCycles(nodes []nodeSpec) []error {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make([]int, len(nodes))
	var errs []error
	var visit func(id NodeID) bool
	visit = func(id NodeID) bool {
		switch marks[id] {
		case visiting:
			return false
		case done:
			return true
		}
		marks[id] = visiting
		for _, in := range nodes[id].inputs {
			if !in.isRef || in.ref.Node <= 0 || int(in.ref.Node) >= len(nodes) {
				continue
			}
			target := in.ref.Node
			if target == id || nodes[target].behavior.spec().pure {
				if !visit(target) {
					marks[id] = done
					return false
				}
			}
		}
		marks[id] = done
		return true
	}
	for i := 1; i < len(nodes); i++ {
		if marks[i] == unvisited && !visit(NodeID(i)) {
			errs = append(errs, fmt.Errorf("node %q: value pins: %w", nodes[i].name, ErrCycle))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
