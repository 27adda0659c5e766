package ability

import (
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	abilitylog "github.com/qiboda/atom-sub003/logging/abilities"
)

// AbilityState is the owner-facing execute state of an ability.
type AbilityState uint8

const (
	// AbilityReady accepts Start.
	AbilityReady AbilityState = iota
	// AbilityActive is running an activation.
	AbilityActive
	// AbilityPaused holds an activation with every node paused.
	AbilityPaused
	// AbilityEnding has ended its activation and waits for Running nodes
	// to settle before returning to Ready.
	AbilityEnding
	// AbilityToRemove was revoked and waits for quiescence before despawn.
	AbilityToRemove
)

var abilityStateNames = [...]string{"ready", "active", "paused", "ending", "to_remove"}

func (s AbilityState) String() string {
	if int(s) < len(abilityStateNames) {
		return abilityStateNames[s]
	}
	return "unknown"
}

type abilityEvent uint8

const (
	abilityGranted abilityEvent = iota
	abilityStarted
	abilityAborted
	abilityEnded
	abilityRevoked
)

// Ability is one granted ability on an owner. It can be started repeatedly;
// each activation applies the ledger and reverts it when the activation
// ends.
type Ability struct {
	instance
	def     *AbilityDef
	gates   gating.Gates
	ledger  *gating.Ledger
	passive *gating.Record
	state   AbilityState
	starts  int
}

// ID returns the instance id.
func (a *Ability) ID() string { return a.id }

// DefID returns the definition id.
func (a *Ability) DefID() string { return a.defID }

// State returns the execute state.
func (a *Ability) State() AbilityState { return a.state }

// Graph returns the graph instance.
func (a *Ability) Graph() *graph.Graph { return a.graph }

// Gates returns the gating containers.
func (a *Ability) Gates() gating.Gates { return a.gates }

// Activations returns how many times the ability was started.
func (a *Ability) Activations() int { return a.starts }

// CanStart reports whether Start would be accepted against the given tag
// state.
func (a *Ability) CanStart(tags gating.TagReader) bool {
	return a.state == AbilityReady && a.gates.CanStart(tags)
}

// CanAbort reports whether Abort would be accepted against the given tag
// state.
func (a *Ability) CanAbort(tags gating.TagReader) bool {
	return (a.state == AbilityActive || a.state == AbilityPaused) && a.gates.CanAbort(tags)
}

// Start begins an activation cast by caster. Gating is the caller's
// responsibility; Start only checks the execute state.
func (a *Ability) Start(caster *Owner) bool {
	if a.state != AbilityReady {
		return false
	}
	if !a.graph.Activate() {
		return false
	}
	if caster != nil {
		a.caster = caster
	}
	a.record = a.ledger.Apply(a.owner.tags)
	a.state = AbilityActive
	a.starts++
	a.publish(abilityStarted, "")
	_ = a.graph.Fire(graph.OutStart)
	a.drain()
	return true
}

// Abort ends the current activation early.
func (a *Ability) Abort() bool {
	if a.state != AbilityActive && a.state != AbilityPaused {
		return false
	}
	a.end(true, "aborted")
	return true
}

// Pause pauses an active activation.
func (a *Ability) Pause() bool {
	if a.state != AbilityActive {
		return false
	}
	a.graph.Pause()
	a.state = AbilityPaused
	return true
}

// Resume resumes a paused activation.
func (a *Ability) Resume() bool {
	if a.state != AbilityPaused {
		return false
	}
	a.graph.Resume()
	a.state = AbilityActive
	a.drain()
	return true
}

func (a *Ability) end(aborted bool, reason string) {
	if aborted {
		a.graph.Abort()
	} else {
		_ = a.graph.Finish("")
	}
	a.cleanup()
	a.state = AbilityEnding
	if aborted {
		a.publish(abilityAborted, reason)
	} else {
		a.publish(abilityEnded, reason)
	}
}

func (a *Ability) revoke() {
	if a.state == AbilityActive || a.state == AbilityPaused {
		a.end(true, "revoked")
	}
	a.passive.Revert(a.owner.tags)
	a.state = AbilityToRemove
	a.graph.RequestRemove()
	a.publish(abilityRevoked, "")
}

func (a *Ability) drain() {
	if len(a.layerDeltas) > 0 {
		a.env().Logger.Printf("[abilities] %s: ignoring %d layer change(s) outside a buff", a.defID, len(a.layerDeltas))
		a.layerDeltas = nil
	}
	if !a.endRequested {
		return
	}
	a.endRequested = false
	if a.state == AbilityActive || a.state == AbilityPaused {
		a.end(false, "completed")
	}
}

func (a *Ability) advance(dt float64) {
	switch a.state {
	case AbilityActive:
		a.graph.Advance(dt)
		a.drain()
	case AbilityEnding, AbilityToRemove:
		a.graph.Advance(dt)
		a.endRequested = false
		a.layerDeltas = nil
	}
}

// settle runs in the teardown pass. An ending ability whose graph is quiet
// returns to Ready; a revoked one is despawned, reported by the result.
func (a *Ability) settle() bool {
	switch a.state {
	case AbilityEnding:
		if !a.graph.Quiescent() {
			return false
		}
		a.record.Revert(a.owner.tags)
		a.record = a.passive
		a.graph.Reset()
		a.state = AbilityReady
	case AbilityToRemove:
		if !a.graph.CanDespawn() {
			return false
		}
		a.cleanup()
		a.passive.Revert(a.owner.tags)
		a.graph.Despawn()
		return true
	}
	return false
}

func (a *Ability) publish(ev abilityEvent, reason string) {
	env := a.env()
	payload := abilitylog.Payload{Ability: a.defID, Instance: a.id, Reason: reason}
	actor, owner := a.casterRef(), a.owner.Ref()
	switch ev {
	case abilityGranted:
		abilitylog.Granted(env.ctx(), env.Publisher, env.Tick(), actor, owner, payload, nil)
	case abilityStarted:
		abilitylog.Started(env.ctx(), env.Publisher, env.Tick(), actor, owner, payload, nil)
	case abilityAborted:
		abilitylog.Aborted(env.ctx(), env.Publisher, env.Tick(), actor, owner, payload, nil)
	case abilityEnded:
		abilitylog.Ended(env.ctx(), env.Publisher, env.Tick(), actor, owner, payload, nil)
	case abilityRevoked:
		abilitylog.Revoked(env.ctx(), env.Publisher, env.Tick(), actor, owner, payload, nil)
	}
}
