package attribute

import "fmt"

// Op selects what a Modifier does.
type Op uint8

const (
	// OpDamage subtracts from a pool after mitigation (health only).
	OpDamage Op = iota
	// OpHeal adds to a pool, capped at its maximum.
	OpHeal
	// OpAdd installs an additive stat contribution keyed by Source.
	OpAdd
	// OpMul installs a multiplicative stat contribution keyed by Source.
	OpMul
	// OpOverride pins a stat total while Source is installed.
	OpOverride
)

var opNames = []string{"damage", "heal", "add", "mul", "override"}

func (o Op) String() string {
	if int(o) >= len(opNames) {
		return "unknown"
	}
	return opNames[o]
}

// ParseOp maps a catalog name to an Op.
func ParseOp(name string) (Op, bool) {
	for i, n := range opNames {
		if n == name {
			return Op(i), true
		}
	}
	return OpDamage, false
}

// Instant reports whether the op acts on a pool rather than installing a
// layered contribution.
func (o Op) Instant() bool {
	return o == OpDamage || o == OpHeal
}

// Modifier is one request to change an attribute set.
type Modifier struct {
	Op     Op
	Vital  Vital
	Stat   StatID
	Value  float64
	Layer  Layer
	Source SourceKey
}

// Result reports what ApplyModify changed.
type Result struct {
	Applied float64
	Before  float64
	After   float64
}

// ApplyModify applies m. Instant ops report the pool change; layered ops
// report the stat total change.
func (s *Set) ApplyModify(m Modifier) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("attribute: nil set")
	}
	s.ensureInit()

	switch m.Op {
	case OpDamage, OpHeal:
		if int(m.Vital) >= len(s.vitals) {
			return Result{}, fmt.Errorf("attribute: unknown vital %d", m.Vital)
		}
		if m.Value < 0 {
			return Result{}, fmt.Errorf("attribute: negative %s amount %.2f", m.Op, m.Value)
		}
		before := s.vitals[m.Vital]
		amount := m.Value
		if m.Op == OpDamage {
			if m.Vital == VitalHealth {
				amount *= 1 - s.derived[DerivedMitigation]
			}
			amount = -amount
		}
		after := clamp(before+amount, 0, s.Max(m.Vital))
		s.vitals[m.Vital] = after
		return Result{Applied: after - before, Before: before, After: after}, nil

	case OpAdd, OpMul, OpOverride:
		if m.Stat >= StatCount {
			return Result{}, fmt.Errorf("attribute: unknown stat %d", m.Stat)
		}
		if m.Layer == LayerBase || m.Layer >= LayerCount {
			return Result{}, fmt.Errorf("attribute: layer %d not writable", m.Layer)
		}
		before := s.totals[m.Stat]
		delta := s.sourceDelta(m.Layer, m.Source)
		switch m.Op {
		case OpAdd:
			delta.Add[m.Stat] += m.Value
		case OpMul:
			delta.Mul[m.Stat] *= m.Value
		case OpOverride:
			delta.Override[m.Stat] = OverrideValue{Active: true, Value: m.Value}
		}
		s.setSource(m.Layer, m.Source, delta)
		s.Resolve()
		after := s.totals[m.Stat]
		return Result{Applied: after - before, Before: before, After: after}, nil
	}
	return Result{}, fmt.Errorf("attribute: unknown op %d", m.Op)
}

func (s *Set) sourceDelta(layer Layer, key SourceKey) Delta {
	if existing, ok := s.sources[layer][key]; ok {
		return existing
	}
	return NewDelta()
}
