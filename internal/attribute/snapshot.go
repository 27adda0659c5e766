package attribute

// Snapshot is a read-only copy of a set for queries.
type Snapshot struct {
	Totals  map[string]float64 `json:"totals"`
	Derived map[string]float64 `json:"derived"`
	Health  float64            `json:"health"`
	Mana    float64            `json:"mana"`
	Version uint64             `json:"version"`
}

// Snapshot copies the resolved values.
func (s *Set) Snapshot() Snapshot {
	snap := Snapshot{
		Totals:  make(map[string]float64, StatCount),
		Derived: make(map[string]float64, DerivedCount),
	}
	if s == nil {
		return snap
	}
	for i := StatID(0); i < StatCount; i++ {
		snap.Totals[i.String()] = s.totals[i]
	}
	for i := DerivedID(0); i < DerivedCount; i++ {
		snap.Derived[i.String()] = s.derived[i]
	}
	snap.Health = s.vitals[VitalHealth]
	snap.Mana = s.vitals[VitalMana]
	snap.Version = s.version
	return snap
}
