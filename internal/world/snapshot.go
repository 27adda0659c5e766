package world

import (
	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/graph"
)

// Snapshot is an immutable view of the world after one tick. It is safe to
// share across goroutines.
type Snapshot struct {
	Tick   uint64                `json:"tick"`
	Owners []ability.OwnerStatus `json:"owners"`
	index  map[string]int
}

// Owner returns the status of the owner with id.
func (s *Snapshot) Owner(id string) (ability.OwnerStatus, bool) {
	if s == nil {
		return ability.OwnerStatus{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return ability.OwnerStatus{}, false
	}
	return s.Owners[i], true
}

// Ability returns the status of an owner's granted ability.
func (s *Snapshot) Ability(ownerID, defID string) (ability.AbilityStatus, bool) {
	owner, ok := s.Owner(ownerID)
	if !ok {
		return ability.AbilityStatus{}, false
	}
	for _, a := range owner.Abilities {
		if a.Definition == defID {
			return a, true
		}
	}
	return ability.AbilityStatus{}, false
}

// Buff returns the status of an owner's live buff.
func (s *Snapshot) Buff(ownerID, defID string) (ability.BuffStatus, bool) {
	owner, ok := s.Owner(ownerID)
	if !ok {
		return ability.BuffStatus{}, false
	}
	for _, b := range owner.Buffs {
		if b.Definition == defID {
			return b, true
		}
	}
	return ability.BuffStatus{}, false
}

// Graph finds a graph by its instance id or by the id of the ability or
// buff that owns it.
func (s *Snapshot) Graph(ownerID, instanceID string) (graph.Status, bool) {
	owner, ok := s.Owner(ownerID)
	if !ok {
		return graph.Status{}, false
	}
	for _, a := range owner.Abilities {
		if a.Graph != nil && (a.ID == instanceID || a.Graph.ID == instanceID) {
			return *a.Graph, true
		}
	}
	for _, b := range owner.Buffs {
		if b.Graph != nil && (b.ID == instanceID || b.Graph.ID == instanceID) {
			return *b.Graph, true
		}
	}
	return graph.Status{}, false
}

// Snapshot returns the view published by the last step.
func (w *World) Snapshot() *Snapshot {
	w.snapshotMu.RLock()
	defer w.snapshotMu.RUnlock()
	return w.snapshot
}

func (w *World) publishSnapshot() {
	snap := &Snapshot{
		Tick:   w.tick,
		Owners: make([]ability.OwnerStatus, 0, len(w.owners)),
		index:  make(map[string]int, len(w.owners)),
	}
	for _, id := range w.OwnerIDs() {
		snap.index[id] = len(snap.Owners)
		snap.Owners = append(snap.Owners, w.owners[id].Status(w.config.SnapshotGraphs))
	}
	w.snapshotMu.Lock()
	w.snapshot = snap
	w.snapshotMu.Unlock()
}

// Publish refreshes the snapshot outside a step, for example after owners
// are seeded.
func (w *World) Publish() {
	w.publishSnapshot()
}
