package ability

import (
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	bufflog "github.com/qiboda/atom-sub003/logging/buffs"
)

// BuffState is the owner-facing execute state of a buff.
type BuffState uint8

const (
	BuffActive BuffState = iota
	BuffPaused
	BuffToRemove
)

var buffStateNames = [...]string{"active", "paused", "to_remove"}

func (s BuffState) String() string {
	if int(s) < len(buffStateNames) {
		return buffStateNames[s]
	}
	return "unknown"
}

// Reasons reported when a buff ends.
const (
	EndExpired   = "expired"
	EndDepleted  = "layers_depleted"
	EndRequested = "requested"
	EndAborted   = "aborted"
)

// Buff is one applied buff on an owner.
type Buff struct {
	instance
	def         *BuffDef
	gates       gating.Gates
	layers      BuffLayer
	elapsed     float64
	loopElapsed float64
	loops       int
	state       BuffState
	endReason   string
}

// ID returns the instance id.
func (b *Buff) ID() string { return b.id }

// DefID returns the definition id.
func (b *Buff) DefID() string { return b.defID }

// State returns the execute state.
func (b *Buff) State() BuffState { return b.state }

// Layers returns the stack count.
func (b *Buff) Layers() BuffLayer { return b.layers }

// Graph returns the graph instance.
func (b *Buff) Graph() *graph.Graph { return b.graph }

// Elapsed returns the seconds spent Active.
func (b *Buff) Elapsed() float64 { return b.elapsed }

// Remaining returns the seconds left, or -1 for buffs without a duration.
func (b *Buff) Remaining() float64 {
	if b.def.Duration <= 0 {
		return -1
	}
	return max(b.def.Duration-b.elapsed, 0)
}

// Loops returns how many times the looper output fired.
func (b *Buff) Loops() int { return b.loops }

// EndReason returns why the buff ended, empty while it is live.
func (b *Buff) EndReason() string { return b.endReason }

// CanAbort reports whether Abort would be accepted against the given tag
// state.
func (b *Buff) CanAbort(tags gating.TagReader) bool {
	return b.state != BuffToRemove && b.gates.CanAbort(tags)
}

func (b *Buff) start() {
	b.record = b.def.Ledger.Apply(b.owner.tags)
	b.graph.Activate()
	env := b.env()
	bufflog.Added(env.ctx(), env.Publisher, env.Tick(), b.casterRef(), b.owner.Ref(), bufflog.AddedPayload{
		Buff:       b.defID,
		Instance:   b.id,
		Layer:      b.layers.Layer(),
		MaxLayer:   b.layers.Max(),
		DurationMs: int64(b.def.Duration * 1000),
	}, nil)
	_ = b.graph.Fire(graph.OutReady)
	_ = b.graph.Fire(graph.OutStart)
	b.drain()
}

func (b *Buff) reapply() {
	if b.state == BuffToRemove {
		return
	}
	if b.def.RefreshOnApply {
		b.elapsed = 0
	}
	b.AddLayer(b.def.stackPerApply())
}

// AddLayer raises the stack count by n and fires add_layer with the actual
// change. n must be positive.
func (b *Buff) AddLayer(n int) bool {
	if !b.addLayer(n) {
		return false
	}
	b.drain()
	return true
}

// RemoveLayer lowers the stack count by n and fires remove_layer with the
// actual (negative) change. Reaching zero ends the buff unless its entry
// keeps it alive. n must be positive.
func (b *Buff) RemoveLayer(n int) bool {
	if !b.removeLayer(n) {
		return false
	}
	b.drain()
	return true
}

func (b *Buff) addLayer(n int) bool {
	if b.state == BuffToRemove {
		return false
	}
	prev := b.layers.Layer()
	cur, err := b.layers.AddWith(b.env().Logger, n)
	if err != nil {
		return false
	}
	if cur != prev {
		b.layerChanged(prev, cur)
		_ = b.graph.FireDelta(graph.OutAddLayer, cur-prev)
	}
	return true
}

func (b *Buff) removeLayer(n int) bool {
	if b.state == BuffToRemove {
		return false
	}
	prev := b.layers.Layer()
	cur, err := b.layers.RemoveWith(b.env().Logger, n)
	if err != nil {
		return false
	}
	if cur != prev {
		b.layerChanged(prev, cur)
		_ = b.graph.FireDelta(graph.OutRemoveLayer, cur-prev)
	}
	if cur == 0 && !b.keepAtZero() && b.state != BuffToRemove {
		b.end(EndDepleted)
	}
	return true
}

func (b *Buff) keepAtZero() bool {
	tmpl := b.def.Graph
	entry, ok := tmpl.Behavior(tmpl.Entry()).(graph.BuffEntry)
	return ok && entry.KeepAtZeroLayer
}

func (b *Buff) layerChanged(prev, cur int) {
	env := b.env()
	bufflog.LayerChanged(env.ctx(), env.Publisher, env.Tick(), b.casterRef(), b.owner.Ref(), bufflog.LayerChangedPayload{
		Buff:     b.defID,
		Instance: b.id,
		Previous: prev,
		Current:  cur,
		MaxLayer: b.layers.Max(),
	}, nil)
}

// Abort ends the buff without firing its end output.
func (b *Buff) Abort() bool {
	if b.state == BuffToRemove {
		return false
	}
	b.end(EndAborted)
	return true
}

// Pause stops the duration, the looper and every Running node.
func (b *Buff) Pause() bool {
	if b.state != BuffActive {
		return false
	}
	b.graph.Pause()
	b.state = BuffPaused
	return true
}

// Resume undoes Pause.
func (b *Buff) Resume() bool {
	if b.state != BuffPaused {
		return false
	}
	b.graph.Resume()
	b.state = BuffActive
	b.drain()
	return true
}

func (b *Buff) end(reason string) {
	if b.state == BuffToRemove {
		return
	}
	b.state = BuffToRemove
	b.endReason = reason
	if reason == EndAborted {
		b.graph.Abort()
	} else {
		_ = b.graph.Finish(graph.OutEnd)
	}
	b.cleanup()
	b.graph.RequestRemove()
	b.layerDeltas = nil
	b.endRequested = false
	b.owner.retireBuff(b)

	env := b.env()
	bufflog.Removed(env.ctx(), env.Publisher, env.Tick(), b.casterRef(), b.owner.Ref(), bufflog.RemovedPayload{
		Buff:     b.defID,
		Instance: b.id,
		Reason:   reason,
	}, nil)
}

// drain applies the layer changes and end requests queued by graph nodes.
func (b *Buff) drain() {
	for round := 0; round < maxDrainRounds; round++ {
		if b.state == BuffToRemove {
			b.layerDeltas = nil
			b.endRequested = false
			return
		}
		if len(b.layerDeltas) == 0 && !b.endRequested {
			return
		}
		deltas := b.layerDeltas
		b.layerDeltas = nil
		for _, delta := range deltas {
			if delta > 0 {
				b.addLayer(delta)
			} else if delta < 0 {
				b.removeLayer(-delta)
			}
		}
		if b.endRequested && b.state != BuffToRemove {
			b.endRequested = false
			b.end(EndRequested)
		}
	}
	b.env().Logger.Printf("[buffs] %s: deferred requests still pending after %d rounds, dropping", b.defID, maxDrainRounds)
	b.layerDeltas = nil
	b.endRequested = false
}

func (b *Buff) advance(dt float64) {
	switch b.state {
	case BuffActive:
		b.graph.Advance(dt)
		b.drain()
		if interval := b.def.LoopInterval; interval > 0 {
			b.loopElapsed += dt
			for b.state == BuffActive && b.loopElapsed >= interval {
				b.loopElapsed -= interval
				b.loops++
				_ = b.graph.Fire(graph.OutLooper)
				b.drain()
			}
		}
		if b.state == BuffActive {
			b.elapsed += dt
			if b.def.Duration > 0 && b.elapsed >= b.def.Duration {
				b.end(EndExpired)
			}
		}
	case BuffToRemove:
		b.graph.Advance(dt)
		b.layerDeltas = nil
		b.endRequested = false
	}
}

func (b *Buff) settle() bool {
	if b.state != BuffToRemove || !b.graph.CanDespawn() {
		return false
	}
	b.cleanup()
	b.graph.Despawn()
	return true
}
