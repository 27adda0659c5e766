package ability

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/logging"
	"github.com/qiboda/atom-sub003/logging/diagnostics"
)

// Owner is an entity that carries abilities and buffs. It exclusively owns
// its attribute set, its global tag container and its ability and buff
// instances. Owners are mutated from the simulation goroutine only.
type Owner struct {
	id    string
	env   *Env
	tags  *tag.CountContainer
	attrs *attribute.Set

	abilities map[string]*Ability
	buffs     map[string]*Buff

	retiringAbilities []*Ability
	retiringBuffs     []*Buff
}

// NewOwner creates an owner with the given attributes.
func NewOwner(id string, attrs *attribute.Set, env *Env) *Owner {
	if env == nil {
		env = NewEnv(nil, nil, nil)
	}
	if attrs == nil {
		attrs = attribute.DefaultSet(attribute.ArchetypeDummy)
	}
	o := &Owner{
		id:        id,
		env:       env,
		tags:      tag.NewCountContainer(),
		attrs:     attrs,
		abilities: make(map[string]*Ability),
		buffs:     make(map[string]*Buff),
	}
	o.tags.SetUnderflowHandler(o.reportUnderflow)
	return o
}

func (o *Owner) reportUnderflow(u tag.Underflow) {
	diagnostics.TagUnderflow(o.env.ctx(), o.env.Publisher, o.env.Tick(), o.Ref(), diagnostics.TagUnderflowPayload{
		Tag:       o.env.format(u.Tag),
		Count:     u.Count,
		Requested: u.Requested,
	}, nil)
}

// ID returns the owner id.
func (o *Owner) ID() string { return o.id }

// Ref returns the logging reference for the owner.
func (o *Owner) Ref() logging.EntityRef { return logging.Ref(logging.EntityKindOwner, o.id) }

// Tags returns the live global tag container.
func (o *Owner) Tags() *tag.CountContainer { return o.tags }

// Attributes returns the attribute set.
func (o *Owner) Attributes() *attribute.Set { return o.attrs }

// Ability returns the granted ability for defID.
func (o *Owner) Ability(defID string) (*Ability, bool) {
	a, ok := o.abilities[defID]
	return a, ok
}

// Buff returns the live buff for defID.
func (o *Owner) Buff(defID string) (*Buff, bool) {
	b, ok := o.buffs[defID]
	return b, ok
}

// Abilities returns the granted abilities ordered by definition id.
func (o *Owner) Abilities() []*Ability {
	out := make([]*Ability, 0, len(o.abilities))
	for _, id := range sortedIDs(o.abilities) {
		out = append(out, o.abilities[id])
	}
	return out
}

// Buffs returns the live buffs ordered by definition id.
func (o *Owner) Buffs() []*Buff {
	out := make([]*Buff, 0, len(o.buffs))
	for _, id := range sortedIDs(o.buffs) {
		out = append(out, o.buffs[id])
	}
	return out
}

// Retiring returns the number of instances waiting for their graphs to go
// quiet before they are despawned.
func (o *Owner) Retiring() int {
	return len(o.retiringAbilities) + len(o.retiringBuffs)
}

// Graph finds a graph instance by id, including retiring ones.
func (o *Owner) Graph(instanceID string) (*graph.Graph, bool) {
	for _, in := range o.instances() {
		if in.graph.ID() == instanceID || in.id == instanceID {
			return in.graph, true
		}
	}
	return nil, false
}

func (o *Owner) instances() []*instance {
	var out []*instance
	for _, a := range o.Abilities() {
		out = append(out, &a.instance)
	}
	for _, b := range o.Buffs() {
		out = append(out, &b.instance)
	}
	for _, a := range o.retiringAbilities {
		out = append(out, &a.instance)
	}
	for _, b := range o.retiringBuffs {
		out = append(out, &b.instance)
	}
	return out
}

func (o *Owner) newInstance(kind logging.EntityKind, defID string, caster *Owner, layer func() int) instance {
	id := uuid.NewString()
	sourceKind := attribute.SourceKindAbility
	if kind == logging.EntityKindBuff {
		sourceKind = attribute.SourceKindBuff
	}
	return instance{
		id:     id,
		defID:  defID,
		kind:   kind,
		owner:  o,
		caster: caster,
		record: gating.NewRecord(o.env.Logger),
		source: attribute.SourceKey{Kind: sourceKind, ID: id},
		layer:  layer,
	}
}

// Grant gives the owner an ability and fires its ready output.
func (o *Owner) Grant(def *AbilityDef, caster *Owner) (*Ability, error) {
	if def == nil {
		return nil, fmt.Errorf("ability: grant: nil definition")
	}
	if _, exists := o.abilities[def.ID]; exists {
		return nil, fmt.Errorf("ability: %q already granted to %s", def.ID, o.id)
	}
	a := &Ability{
		def:    def,
		gates:  def.Gates.Clone(),
		ledger: def.Ledger.Clone(),
		state:  AbilityReady,
	}
	a.instance = o.newInstance(logging.EntityKindAbility, def.ID, caster, nil)
	a.passive = a.record
	a.graph = def.Graph.Instantiate(&a.instance, o.env.Logger)
	o.abilities[def.ID] = a

	a.publish(abilityGranted, "")
	if err := a.graph.Fire(graph.OutReady); err != nil {
		return nil, err
	}
	a.drain()
	return a, nil
}

// Revoke removes a granted ability, aborting an activation in progress.
// The instance is despawned once its graph is quiescent.
func (o *Owner) Revoke(defID string) bool {
	a, ok := o.abilities[defID]
	if !ok {
		return false
	}
	a.revoke()
	delete(o.abilities, defID)
	o.retiringAbilities = append(o.retiringAbilities, a)
	return true
}

// ApplyBuff adds a new buff instance, or stacks the existing one for the
// same definition. Gating is the caller's responsibility.
func (o *Owner) ApplyBuff(def *BuffDef, caster *Owner) *Buff {
	if existing, ok := o.buffs[def.ID]; ok {
		existing.reapply()
		return existing
	}
	b := &Buff{
		def:    def,
		gates:  def.Gates.Clone(),
		layers: NewBuffLayer(def.MaxLayer),
		state:  BuffActive,
	}
	b.instance = o.newInstance(logging.EntityKindBuff, def.ID, caster, nil)
	b.layer = func() int { return b.layers.Layer() }
	b.graph = def.Graph.Instantiate(&b.instance, o.env.Logger)
	o.buffs[def.ID] = b
	b.start()
	return b
}

func (o *Owner) retireBuff(b *Buff) {
	if current, ok := o.buffs[b.defID]; ok && current == b {
		delete(o.buffs, b.defID)
	}
	if !slices.Contains(o.retiringBuffs, b) {
		o.retiringBuffs = append(o.retiringBuffs, b)
	}
}

// Advance moves every instance forward by dt seconds.
func (o *Owner) Advance(dt float64) {
	retiringAbilities := slices.Clone(o.retiringAbilities)
	retiringBuffs := slices.Clone(o.retiringBuffs)
	for _, a := range o.Abilities() {
		a.advance(dt)
	}
	for _, b := range o.Buffs() {
		b.advance(dt)
	}
	for _, a := range retiringAbilities {
		a.advance(dt)
	}
	for _, b := range retiringBuffs {
		b.advance(dt)
	}
}

// Teardown returns quiet abilities to Ready and despawns retiring instances
// whose graphs no longer have Running nodes. It reports how many instances
// were despawned.
func (o *Owner) Teardown() int {
	for _, a := range o.Abilities() {
		a.settle()
	}
	despawned := 0
	o.retiringAbilities = slices.DeleteFunc(o.retiringAbilities, func(a *Ability) bool {
		if a.settle() {
			despawned++
			return true
		}
		return false
	})
	o.retiringBuffs = slices.DeleteFunc(o.retiringBuffs, func(b *Buff) bool {
		if b.settle() {
			despawned++
			return true
		}
		return false
	})
	return despawned
}

// Clear aborts and despawns every instance immediately and resets the tag
// container. Used when the owner itself is removed.
func (o *Owner) Clear() {
	for _, id := range sortedIDs(o.abilities) {
		o.Revoke(id)
	}
	for _, b := range o.Buffs() {
		b.Abort()
	}
	for _, in := range o.instances() {
		in.cleanup()
		in.graph.Despawn()
	}
	o.retiringAbilities = nil
	o.retiringBuffs = nil
	o.tags.Reset()
}
