package attribute

import "strings"

// Archetype identifies the default stat seed for a new owner.
type Archetype uint8

const (
	ArchetypeHero Archetype = iota
	ArchetypeBrute
	ArchetypeCaster
	ArchetypeDummy
)

var archetypeNames = map[string]Archetype{
	"hero":   ArchetypeHero,
	"brute":  ArchetypeBrute,
	"caster": ArchetypeCaster,
	"dummy":  ArchetypeDummy,
}

// ParseArchetype maps a catalog name to an Archetype. Blank selects hero.
func ParseArchetype(name string) (Archetype, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ArchetypeHero, true
	}
	a, ok := archetypeNames[name]
	return a, ok
}

var archetypeBase = map[Archetype]ValueSet{
	ArchetypeHero: {
		StatStrength:  20,
		StatIntellect: 16,
		StatAgility:   12,
		StatArmor:     25,
	},
	ArchetypeBrute: {
		StatStrength:  32,
		StatIntellect: 4,
		StatAgility:   8,
		StatArmor:     50,
	},
	ArchetypeCaster: {
		StatStrength:  12,
		StatIntellect: 30,
		StatAgility:   10,
		StatArmor:     10,
	},
	ArchetypeDummy: {
		StatStrength: 20,
	},
}

// DefaultBase returns the base values for archetype.
func DefaultBase(archetype Archetype) ValueSet {
	return archetypeBase[archetype]
}

// DefaultSet constructs a resolved set with full pools for archetype.
func DefaultSet(archetype Archetype) *Set {
	return NewSet(DefaultBase(archetype))
}

const (
	baseHealthFlat       = 0.0
	strengthHealthScalar = 5.0
	baseManaFlat         = 45.0
	intellectManaScalar  = 3.5
	armorHalfPoint       = 100.0
	maxMitigation        = 0.75
	agilityHasteScalar   = 0.008
)
