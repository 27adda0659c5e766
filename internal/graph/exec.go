package graph

// pass is one synchronous traversal. A node is activated at most once per
// pass.
type pass struct {
	visited map[NodeID]bool
}

func newPass() *pass {
	return &pass{visited: make(map[NodeID]bool)}
}

func (g *Graph) fire(p *pass, from NodeID, output string) {
	for _, child := range g.tmpl.nodes[from].outputs[output] {
		if g.despawned {
			return
		}
		g.activate(p, child)
	}
}

// activate starts a node and runs its behavior. Live nodes are left alone;
// finished or aborted nodes are cleared and started again.
func (g *Graph) activate(p *pass, id NodeID) {
	if p.visited[id] {
		return
	}
	p.visited[id] = true

	switch g.State(id) {
	case StateRunning, StatePaused:
		return
	case StateFinished, StateAborted:
		g.transition(id, CommandClear)
	}
	if !g.transition(id, CommandStart) {
		return
	}
	g.run(p, id)
}

func (g *Graph) complete(p *pass, id NodeID, output string) {
	if !g.transition(id, CommandFinish) {
		return
	}
	if output != "" {
		g.fire(p, id, output)
	}
}

func (g *Graph) fail(id NodeID, err error) {
	g.logger.Printf("[graph] %s/%s: %v", g.tmpl.name, g.tmpl.nodes[id].name, err)
	g.transition(id, CommandAbort)
}

func (g *Graph) run(p *pass, id NodeID) {
	spec := g.tmpl.nodes[id]
	switch n := spec.behavior.(type) {
	case Timer:
		st := g.nodes[id]
		duration, _ := toFloat(g.input(id, "duration", 0.0))
		st.duration = duration
		g.ctx.outputs[SlotRef{Node: id, Slot: "elapsed"}] = 0.0
		if duration <= 0 {
			g.complete(p, id, OutDone)
		}

	case Branch:
		if toBool(g.input(id, "condition", false)) {
			g.complete(p, id, OutTrue)
		} else {
			g.complete(p, id, OutFalse)
		}

	case GrantTag:
		count, _ := toInt(g.input(id, "count", 1))
		g.host.GrantTag(n.Tag, count, n.Revert)
		g.complete(p, id, OutThen)

	case StripTag:
		count, _ := toInt(g.input(id, "count", 1))
		g.host.StripTag(n.Tag, count)
		g.complete(p, id, OutThen)

	case ModifyAttribute:
		m := n.Modifier
		if value, ok := toFloat(g.input(id, "value", m.Value)); ok {
			m.Value = value
		}
		res, err := g.host.ModifyAttribute(n.Target, m)
		if err != nil {
			g.fail(id, err)
			return
		}
		g.ctx.outputs[SlotRef{Node: id, Slot: "applied"}] = res.Applied
		g.complete(p, id, OutThen)

	case ChangeLayer:
		delta, _ := toInt(g.input(id, "delta", 0))
		if delta != 0 {
			g.host.ChangeLayer(delta)
		}
		g.complete(p, id, OutThen)

	case SetBlackboard:
		g.ctx.Blackboard[n.Key] = g.input(id, "value", nil)
		g.complete(p, id, OutThen)

	case Message:
		g.host.Emit(spec.name, n.Text, g.input(id, "value", nil))
		g.complete(p, id, OutThen)

	case End:
		g.host.RequestEnd()
		g.complete(p, id, "")

	default:
		// Entry and pure nodes are rejected as exec targets at build time.
		g.complete(p, id, "")
	}
}

// input resolves a value pin, returning def when the pin is unconnected or
// its source slot has not been written yet.
func (g *Graph) input(id NodeID, pin string, def any) any {
	in, ok := g.tmpl.nodes[id].inputs[pin]
	if !ok {
		return def
	}
	var value any
	if in.isRef {
		value = g.read(in.ref)
	} else {
		value = in.lit
	}
	if value == nil {
		value = def
	}
	g.ctx.inputs[SlotRef{Node: id, Slot: pin}] = value
	return value
}

// read returns a slot value, evaluating pure nodes on demand.
func (g *Graph) read(ref SlotRef) any {
	spec := g.tmpl.nodes[ref.Node]
	if spec.behavior.spec().pure {
		g.evaluate(ref.Node)
	}
	return g.ctx.outputs[ref]
}

func (g *Graph) evaluate(id NodeID) {
	out := func(slot string, v any) {
		g.ctx.outputs[SlotRef{Node: id, Slot: slot}] = v
	}
	switch n := g.tmpl.nodes[id].behavior.(type) {
	case HasTag:
		count := g.host.TagCount(n.Target, n.Tag)
		out("exists", count > 0)
		out("count", int(count))
	case GetBlackboard:
		out("value", g.ctx.Blackboard[n.Key])
	case Layer:
		out("layer", g.host.Layer())
	case Multiply:
		a, _ := toFloat(g.input(id, "a", 0.0))
		b, _ := toFloat(g.input(id, "b", 0.0))
		out("result", a*b)
	}
}

func (g *Graph) syncEntrySlots() {
	if g.tmpl.kind == KindBuff {
		g.ctx.outputs[SlotRef{Node: g.tmpl.entry, Slot: "layer"}] = g.host.Layer()
	}
}

