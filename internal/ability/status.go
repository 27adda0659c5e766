package ability

import (
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/graph"
)

// TagStatus is one entry of an owner's tag container.
type TagStatus struct {
	Tag   string `json:"tag"`
	Count uint32 `json:"count"`
}

// AbilityStatus describes a granted ability.
type AbilityStatus struct {
	ID          string        `json:"id"`
	Definition  string        `json:"definition"`
	State       string        `json:"state"`
	Startable   bool          `json:"startable"`
	Activations int           `json:"activations"`
	Graph       *graph.Status `json:"graph,omitempty"`
}

// BuffStatus describes a live or retiring buff.
type BuffStatus struct {
	ID         string        `json:"id"`
	Definition string        `json:"definition"`
	State      string        `json:"state"`
	Layer      int           `json:"layer"`
	MaxLayer   int           `json:"maxLayer"`
	Elapsed    float64       `json:"elapsed"`
	Remaining  float64       `json:"remaining"`
	Loops      int           `json:"loops"`
	EndReason  string        `json:"endReason,omitempty"`
	Graph      *graph.Status `json:"graph,omitempty"`
}

// OwnerStatus describes an owner for queries.
type OwnerStatus struct {
	ID         string             `json:"id"`
	Tags       []TagStatus        `json:"tags"`
	Attributes attribute.Snapshot `json:"attributes"`
	Abilities  []AbilityStatus    `json:"abilities"`
	Buffs      []BuffStatus       `json:"buffs"`
	Retiring   int                `json:"retiring"`
}

// Status snapshots the ability. Graph detail is included when withGraph is
// set.
func (a *Ability) Status(withGraph bool) AbilityStatus {
	status := AbilityStatus{
		ID:          a.id,
		Definition:  a.defID,
		State:       a.state.String(),
		Startable:   a.CanStart(a.owner.tags),
		Activations: a.starts,
	}
	if withGraph {
		gs := a.graph.Status()
		status.Graph = &gs
	}
	return status
}

// Status snapshots the buff.
func (b *Buff) Status(withGraph bool) BuffStatus {
	status := BuffStatus{
		ID:         b.id,
		Definition: b.defID,
		State:      b.state.String(),
		Layer:      b.layers.Layer(),
		MaxLayer:   b.layers.Max(),
		Elapsed:    b.elapsed,
		Remaining:  b.Remaining(),
		Loops:      b.loops,
		EndReason:  b.endReason,
	}
	if withGraph {
		gs := b.graph.Status()
		status.Graph = &gs
	}
	return status
}

// TagStatuses lists the owner's tags with readable names.
func (o *Owner) TagStatuses() []TagStatus {
	entries := o.tags.Entries()
	out := make([]TagStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, TagStatus{Tag: o.env.format(e.Tag), Count: e.Count})
	}
	return out
}

// Status snapshots the owner.
func (o *Owner) Status(withGraph bool) OwnerStatus {
	status := OwnerStatus{
		ID:         o.id,
		Tags:       o.TagStatuses(),
		Attributes: o.attrs.Snapshot(),
		Retiring:   o.Retiring(),
	}
	for _, a := range o.Abilities() {
		status.Abilities = append(status.Abilities, a.Status(withGraph))
	}
	for _, b := range o.Buffs() {
		status.Buffs = append(status.Buffs, b.Status(withGraph))
	}
	return status
}
