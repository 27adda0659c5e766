// Package graph runs effect graphs: trees of nodes connected by exec pins
// (control flow) and value pins (data), instantiated once per ability or
// buff. Templates are validated when built so traversal never meets a
// dangling reference. An instance is driven by its host from the
// simulation goroutine and is not safe for concurrent use.
package graph

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
)

// Host is the owning ability or buff. Graph nodes reach the owner's tags,
// attributes and layer through it. ChangeLayer and RequestEnd are called
// mid-traversal; hosts must defer acting on them until the triggering graph
// call returns.
type Host interface {
	TagCount(target Target, t tag.LayerTag) uint32
	GrantTag(t tag.LayerTag, n int, revert gating.Revert)
	StripTag(t tag.LayerTag, n int)
	ModifyAttribute(target Target, m attribute.Modifier) (attribute.Result, error)
	Layer() int
	ChangeLayer(delta int)
	RequestEnd()
	Emit(node, text string, value any)
}

// Lifecycle is the removal state of a graph instance.
type Lifecycle uint8

const (
	LifecycleNormal Lifecycle = iota
	LifecycleToRemove
)

func (l Lifecycle) String() string {
	if l == LifecycleToRemove {
		return "to_remove"
	}
	return "normal"
}

type nodeState struct {
	machine  *fsm.FSM
	elapsed  float64
	duration float64
}

// Context holds the per-instance data of a graph: the blackboard and the
// values written to and read from pins.
type Context struct {
	Blackboard map[string]any
	outputs    map[SlotRef]any
	inputs     map[SlotRef]any
}

func newContext() *Context {
	return &Context{
		Blackboard: make(map[string]any),
		outputs:    make(map[SlotRef]any),
		inputs:     make(map[SlotRef]any),
	}
}

// Output returns the last value written to a slot.
func (c *Context) Output(ref SlotRef) (any, bool) {
	v, ok := c.outputs[ref]
	return v, ok
}

// Input returns the last value a node read from pin.
func (c *Context) Input(node NodeID, pin string) (any, bool) {
	v, ok := c.inputs[SlotRef{Node: node, Slot: pin}]
	return v, ok
}

// Graph is one running instance of a Template.
type Graph struct {
	id        string
	tmpl      *Template
	host      Host
	logger    telemetry.Logger
	nodes     []*nodeState
	ctx       *Context
	running   int
	lifecycle Lifecycle
	despawned bool
}

// Instantiate creates an instance bound to host with every node Idle.
func (t *Template) Instantiate(host Host, logger telemetry.Logger) *Graph {
	if logger == nil {
		logger = telemetry.Default()
	}
	g := &Graph{
		id:     uuid.NewString(),
		tmpl:   t,
		host:   host,
		logger: logger,
		nodes:  make([]*nodeState, len(t.nodes)),
		ctx:    newContext(),
	}
	for i := 1; i < len(t.nodes); i++ {
		g.nodes[i] = &nodeState{machine: newMachine(g.observe)}
	}
	return g
}

func (g *Graph) observe(from, to State) {
	if from == StateRunning {
		g.running--
	}
	if to == StateRunning {
		g.running++
	}
}

// ID returns the instance id.
func (g *Graph) ID() string { return g.id }

// Template returns the definition the instance was built from.
func (g *Graph) Template() *Template { return g.tmpl }

// Context exposes the blackboard and pin values.
func (g *Graph) Context() *Context { return g.ctx }

// Entry returns the entry node id.
func (g *Graph) Entry() NodeID { return g.tmpl.entry }

// Lifecycle returns the removal state.
func (g *Graph) Lifecycle() Lifecycle { return g.lifecycle }

// State returns the state of node id.
func (g *Graph) State(id NodeID) State {
	if g.despawned || !g.tmpl.valid(id) {
		return StateIdle
	}
	return currentState(g.nodes[id].machine)
}

// Running returns the number of nodes currently Running.
func (g *Graph) Running() int { return g.running }

// Quiescent reports whether no node is Running. Paused nodes do not hold
// the graph open.
func (g *Graph) Quiescent() bool { return g.running == 0 }

// Apply drives node id with cmd and reports whether the transition was
// legal. Starting a node through Apply does not run its behavior; use the
// entry outputs for that.
func (g *Graph) Apply(id NodeID, cmd Command) bool {
	if g.despawned || !g.tmpl.valid(id) {
		return false
	}
	return g.transition(id, cmd)
}

func (g *Graph) transition(id NodeID, cmd Command) bool {
	st := g.nodes[id]
	if cmd == CommandClear && currentState(st.machine) == StateIdle {
		return true
	}
	if err := st.machine.Event(context.Background(), string(cmd)); err != nil {
		return false
	}
	switch cmd {
	case CommandStart, CommandAbort, CommandClear:
		st.elapsed, st.duration = 0, 0
	}
	return true
}

// Activate puts the entry node in Running, clearing a previous activation
// first. It reports false when the entry is already live.
func (g *Graph) Activate() bool {
	if g.despawned {
		return false
	}
	entry := g.tmpl.entry
	switch g.State(entry) {
	case StateRunning, StatePaused:
		return false
	case StateAborted, StateFinished:
		g.transition(entry, CommandClear)
	}
	return g.transition(entry, CommandStart)
}

// Fire fires an exec output of the entry node as a new traversal.
func (g *Graph) Fire(output string) error {
	if g.despawned {
		return nil
	}
	entry := g.tmpl.entry
	if !g.tmpl.nodes[entry].behavior.spec().hasOutput(output) {
		return fmt.Errorf("graph %q: entry output %q: %w", g.tmpl.name, output, ErrUnknownOutput)
	}
	g.syncEntrySlots()
	p := newPass()
	p.visited[entry] = true
	g.fire(p, entry, output)
	return nil
}

// FireDelta records delta in the entry's delta slot and fires output. Used
// for add_layer and remove_layer.
func (g *Graph) FireDelta(output string, delta int) error {
	g.ctx.outputs[SlotRef{Node: g.tmpl.entry, Slot: "delta"}] = delta
	return g.Fire(output)
}

// Advance moves every Running timer forward by dt seconds. Timers started
// during this call begin counting on the next one.
func (g *Graph) Advance(dt float64) {
	if g.despawned || dt <= 0 {
		return
	}
	var timers []NodeID
	for i := 1; i < len(g.nodes); i++ {
		id := NodeID(i)
		if g.tmpl.nodes[i].behavior.NodeKind() == KindTimer && g.State(id) == StateRunning {
			timers = append(timers, id)
		}
	}
	if len(timers) == 0 {
		return
	}
	g.syncEntrySlots()
	p := newPass()
	for _, id := range timers {
		if g.State(id) != StateRunning {
			continue
		}
		st := g.nodes[id]
		st.elapsed += dt
		g.ctx.outputs[SlotRef{Node: id, Slot: "elapsed"}] = st.elapsed
		if st.elapsed >= st.duration {
			p.visited[id] = true
			g.complete(p, id, OutDone)
		}
	}
}

// Pause pauses every Running node.
func (g *Graph) Pause() {
	g.applyAll(StateRunning, CommandPause)
}

// Resume resumes every Paused node.
func (g *Graph) Resume() {
	g.applyAll(StatePaused, CommandResume)
}

func (g *Graph) applyAll(from State, cmd Command) {
	if g.despawned {
		return
	}
	for i := 1; i < len(g.nodes); i++ {
		if g.State(NodeID(i)) == from {
			g.transition(NodeID(i), cmd)
		}
	}
}

// Abort aborts every live node below the entry, fires the entry's abort
// output and then aborts the entry. Nodes started by the abort output may
// keep running.
func (g *Graph) Abort() {
	if g.despawned {
		return
	}
	entry := g.tmpl.entry
	for i := 1; i < len(g.nodes); i++ {
		id := NodeID(i)
		if id == entry {
			continue
		}
		if s := g.State(id); s == StateRunning || s == StatePaused {
			g.transition(id, CommandAbort)
		}
	}
	_ = g.Fire(OutAbort)
	if !g.State(entry).Terminal() {
		g.transition(entry, CommandAbort)
	}
}

// Finish fires output (when non-empty) and moves the entry to Finished.
// Other nodes are left to reach a terminal state on their own.
func (g *Graph) Finish(output string) error {
	if g.despawned {
		return nil
	}
	if output != "" {
		if err := g.Fire(output); err != nil {
			return err
		}
	}
	entry := g.tmpl.entry
	switch g.State(entry) {
	case StatePaused:
		g.transition(entry, CommandResume)
		g.transition(entry, CommandFinish)
	case StateRunning:
		g.transition(entry, CommandFinish)
	}
	return nil
}

// Reset clears every node back to Idle and forgets pin values. The
// blackboard survives so abilities can keep state between activations.
func (g *Graph) Reset() {
	if g.despawned {
		return
	}
	for i := 1; i < len(g.nodes); i++ {
		g.transition(NodeID(i), CommandClear)
	}
	clear(g.ctx.outputs)
	clear(g.ctx.inputs)
}

// RequestRemove marks the graph for teardown. The graph is despawned by its
// owner once CanDespawn reports true.
func (g *Graph) RequestRemove() {
	g.lifecycle = LifecycleToRemove
}

// CanDespawn reports whether removal was requested and no node is Running.
func (g *Graph) CanDespawn() bool {
	return !g.despawned && g.lifecycle == LifecycleToRemove && g.Quiescent()
}

// Despawn frees the instance. Every later call is a no-op.
func (g *Graph) Despawn() {
	g.despawned = true
	g.nodes = nil
	g.ctx = newContext()
	g.running = 0
}

// Despawned reports whether Despawn ran.
func (g *Graph) Despawned() bool { return g.despawned }

// NodeStatus describes one node for queries.
type NodeStatus struct {
	ID       NodeID  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	State    State   `json:"state"`
	Parent   NodeID  `json:"parent,omitempty"`
	Elapsed  float64 `json:"elapsed,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Status describes a graph instance for queries.
type Status struct {
	ID         string         `json:"id"`
	Template   string         `json:"template"`
	Lifecycle  string         `json:"lifecycle"`
	Running    int            `json:"running"`
	Nodes      []NodeStatus   `json:"nodes"`
	Blackboard map[string]any `json:"blackboard,omitempty"`
}

// Status snapshots the instance.
func (g *Graph) Status() Status {
	status := Status{
		ID:         g.id,
		Template:   g.tmpl.name,
		Lifecycle:  g.lifecycle.String(),
		Running:    g.running,
		Blackboard: maps.Clone(g.ctx.Blackboard),
	}
	if g.despawned {
		return status
	}
	status.Nodes = make([]NodeStatus, 0, len(g.nodes)-1)
	for i := 1; i < len(g.nodes); i++ {
		spec := g.tmpl.nodes[i]
		st := g.nodes[i]
		status.Nodes = append(status.Nodes, NodeStatus{
			ID:       NodeID(i),
			Name:     spec.name,
			Kind:     spec.behavior.NodeKind().String(),
			State:    currentState(st.machine),
			Parent:   spec.parent,
			Elapsed:  st.elapsed,
			Duration: st.duration,
		})
	}
	return status
}
