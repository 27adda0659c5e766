// Package attribute implements the owner AttributeSet that graph nodes
// modify: primary stats folded through ordered modifier layers, derived
// maxima, and the health and mana pools that damage and heal act on.
package attribute

import (
	"math"
	"sort"
)

// StatID enumerates the primary attributes.
type StatID uint8

const (
	StatStrength StatID = iota
	StatIntellect
	StatAgility
	StatArmor

	StatCount
)

var statNames = [StatCount]string{"strength", "intellect", "agility", "armor"}

func (s StatID) String() string {
	if s >= StatCount {
		return "unknown"
	}
	return statNames[s]
}

// ParseStat maps a catalog name to a StatID.
func ParseStat(name string) (StatID, bool) {
	for i, n := range statNames {
		if n == name {
			return StatID(i), true
		}
	}
	return StatCount, false
}

// DerivedID enumerates values computed from the stat totals.
type DerivedID uint8

const (
	DerivedMaxHealth DerivedID = iota
	DerivedMaxMana
	DerivedMitigation
	DerivedHaste

	DerivedCount
)

var derivedNames = [DerivedCount]string{"maxHealth", "maxMana", "mitigation", "haste"}

func (d DerivedID) String() string {
	if d >= DerivedCount {
		return "unknown"
	}
	return derivedNames[d]
}

// Vital names a depletable pool.
type Vital uint8

const (
	VitalHealth Vital = iota
	VitalMana
)

func (v Vital) String() string {
	if v == VitalMana {
		return "mana"
	}
	return "health"
}

// ParseVital maps a catalog name to a Vital.
func ParseVital(name string) (Vital, bool) {
	switch name {
	case "health", "":
		return VitalHealth, true
	case "mana":
		return VitalMana, true
	default:
		return VitalHealth, false
	}
}

// Layer orders modifier stacks. Later layers fold on top of earlier ones.
type Layer uint8

const (
	LayerBase Layer = iota
	LayerPermanent
	LayerAbility
	LayerBuff
	LayerAdmin

	LayerCount
)

// SourceKind identifies the origin of a modifier for deterministic ordering.
type SourceKind uint8

const (
	SourceKindUnknown SourceKind = iota
	SourceKindArchetype
	SourceKindAbility
	SourceKindBuff
	SourceKindAdmin
)

// SourceKey uniquely identifies the origin of a modifier inside a layer.
type SourceKey struct {
	Kind SourceKind
	ID   string
}

// ValueSet stores one value per stat.
type ValueSet [StatCount]float64

// DerivedSet stores one value per derived id.
type DerivedSet [DerivedCount]float64

// OverrideValue replaces a stat total when Active.
type OverrideValue struct {
	Active bool
	Value  float64
}

// OverrideSet stores per-stat overrides.
type OverrideSet [StatCount]OverrideValue

// Delta is the contribution of one source to one layer.
type Delta struct {
	Add      ValueSet
	Mul      ValueSet
	Override OverrideSet
}

// NewDelta returns a delta with neutral multipliers.
func NewDelta() Delta {
	return Delta{Mul: unitValueSet()}
}

type layerStack struct {
	add      ValueSet
	mul      ValueSet
	override OverrideSet
}

// Set owns an owner's attributes. It is not safe for concurrent use.
type Set struct {
	layers  [LayerCount]layerStack
	sources map[Layer]map[SourceKey]Delta
	totals  ValueSet
	derived DerivedSet
	vitals  [2]float64
	dirty   bool
	version uint64
}

// NewSet constructs a set seeded with base values and full pools.
func NewSet(base ValueSet) *Set {
	s := &Set{}
	s.ensureInit()
	delta := NewDelta()
	delta.Add = base
	s.setSource(LayerBase, SourceKey{Kind: SourceKindArchetype, ID: "base"}, delta)
	s.Resolve()
	s.vitals[VitalHealth] = s.derived[DerivedMaxHealth]
	s.vitals[VitalMana] = s.derived[DerivedMaxMana]
	return s
}

func (s *Set) ensureInit() {
	if s.sources != nil {
		return
	}
	s.sources = make(map[Layer]map[SourceKey]Delta)
	for layer := Layer(0); layer < LayerCount; layer++ {
		s.layers[layer].mul = unitValueSet()
	}
	s.dirty = true
}

// SetSource installs or replaces the contribution of key on layer.
func (s *Set) SetSource(layer Layer, key SourceKey, delta Delta) {
	if s == nil || layer >= LayerCount {
		return
	}
	s.ensureInit()
	s.setSource(layer, key, delta)
	s.Resolve()
}

func (s *Set) setSource(layer Layer, key SourceKey, delta Delta) {
	if s.sources[layer] == nil {
		s.sources[layer] = make(map[SourceKey]Delta)
	}
	if current, ok := s.sources[layer][key]; ok && deltasEqual(current, delta) {
		return
	}
	s.sources[layer][key] = delta
	s.rebuildLayer(layer)
	s.dirty = true
}

// RemoveSource drops every contribution made by key on any layer. It reports
// whether anything was removed.
func (s *Set) RemoveSource(key SourceKey) bool {
	if s == nil || s.sources == nil {
		return false
	}
	removed := false
	for layer, entries := range s.sources {
		if _, ok := entries[key]; !ok {
			continue
		}
		delete(entries, key)
		if len(entries) == 0 {
			delete(s.sources, layer)
		}
		s.rebuildLayer(layer)
		removed = true
	}
	if removed {
		s.dirty = true
		s.Resolve()
	}
	return removed
}

// HasSource reports whether key contributes to any layer.
func (s *Set) HasSource(key SourceKey) bool {
	if s == nil {
		return false
	}
	for _, entries := range s.sources {
		if _, ok := entries[key]; ok {
			return true
		}
	}
	return false
}

// Resolve folds every layer in order, recomputes derived values and clamps
// the pools to their new maxima.
func (s *Set) Resolve() {
	if s == nil {
		return
	}
	s.ensureInit()
	if !s.dirty {
		return
	}

	total := s.layers[LayerBase].add
	multiplyValueSet(&total, s.layers[LayerBase].mul)
	applyOverrides(&total, s.layers[LayerBase].override)
	for layer := LayerPermanent; layer < LayerCount; layer++ {
		stack := &s.layers[layer]
		addValueSet(&total, stack.add)
		multiplyValueSet(&total, stack.mul)
		applyOverrides(&total, stack.override)
	}

	s.totals = total
	s.derived = computeDerived(total)
	s.vitals[VitalHealth] = clamp(s.vitals[VitalHealth], 0, s.derived[DerivedMaxHealth])
	s.vitals[VitalMana] = clamp(s.vitals[VitalMana], 0, s.derived[DerivedMaxMana])
	s.version++
	s.dirty = false
}

// Total returns the resolved total for id.
func (s *Set) Total(id StatID) float64 {
	if s == nil || id >= StatCount {
		return 0
	}
	return s.totals[id]
}

// Derived returns the resolved derived value for id.
func (s *Set) Derived(id DerivedID) float64 {
	if s == nil || id >= DerivedCount {
		return 0
	}
	return s.derived[id]
}

// Current returns the current value of a pool.
func (s *Set) Current(v Vital) float64 {
	if s == nil || int(v) >= len(s.vitals) {
		return 0
	}
	return s.vitals[v]
}

// Max returns the maximum of a pool.
func (s *Set) Max(v Vital) float64 {
	if v == VitalMana {
		return s.Derived(DerivedMaxMana)
	}
	return s.Derived(DerivedMaxHealth)
}

// Alive reports whether health is above zero.
func (s *Set) Alive() bool {
	return s.Current(VitalHealth) > 0
}

// Version increments every time the set resolves new totals.
func (s *Set) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

func (s *Set) rebuildLayer(layer Layer) {
	stack := &s.layers[layer]
	stack.add = ValueSet{}
	stack.mul = unitValueSet()
	stack.override = OverrideSet{}
	entries := s.sources[layer]
	if len(entries) == 0 {
		return
	}
	keys := make([]SourceKey, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	for _, key := range keys {
		delta := entries[key]
		addValueSet(&stack.add, delta.Add)
		multiplyValueSet(&stack.mul, delta.Mul)
		mergeOverrides(&stack.override, delta.Override)
	}
}

func addValueSet(target *ValueSet, other ValueSet) {
	for i := range target {
		target[i] += other[i]
	}
}

func multiplyValueSet(target *ValueSet, other ValueSet) {
	for i := range target {
		target[i] *= other[i]
	}
}

func applyOverrides(target *ValueSet, overrides OverrideSet) {
	for i := range overrides {
		if overrides[i].Active {
			target[i] = overrides[i].Value
		}
	}
}

func mergeOverrides(target *OverrideSet, other OverrideSet) {
	for i := range other {
		if other[i].Active {
			target[i] = other[i]
		}
	}
}

func unitValueSet() ValueSet {
	var vs ValueSet
	for i := range vs {
		vs[i] = 1
	}
	return vs
}

func deltasEqual(a, b Delta) bool {
	for i := range a.Add {
		if math.Abs(a.Add[i]-b.Add[i]) > 1e-9 || math.Abs(a.Mul[i]-b.Mul[i]) > 1e-9 {
			return false
		}
		if a.Override[i].Active != b.Override[i].Active {
			return false
		}
		if a.Override[i].Active && math.Abs(a.Override[i].Value-b.Override[i].Value) > 1e-9 {
			return false
		}
	}
	return true
}
