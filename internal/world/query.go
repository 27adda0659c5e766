package world

import (
	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/graph"
)

// The queries below read live state and must run on the simulation
// goroutine. Other goroutines read Snapshot.

// CanStart reports whether owner could start the granted ability right now.
func (w *World) CanStart(ownerID, abilityID string) bool {
	owner, ok := w.owners[ownerID]
	if !ok {
		return false
	}
	a, ok := owner.Ability(abilityID)
	return ok && a.CanStart(owner.Tags())
}

// BuffLayer returns the current and maximum layer of an owner's buff.
func (w *World) BuffLayer(ownerID, buffID string) (ability.BuffLayer, bool) {
	owner, ok := w.owners[ownerID]
	if !ok {
		return ability.BuffLayer{}, false
	}
	b, ok := owner.Buff(buffID)
	if !ok {
		return ability.BuffLayer{}, false
	}
	return b.Layers(), true
}

// GraphState returns the status of a graph instance owned by ownerID,
// including instances waiting for teardown.
func (w *World) GraphState(ownerID, instanceID string) (graph.Status, bool) {
	owner, ok := w.owners[ownerID]
	if !ok {
		return graph.Status{}, false
	}
	g, ok := owner.Graph(instanceID)
	if !ok {
		return graph.Status{}, false
	}
	return g.Status(), true
}
