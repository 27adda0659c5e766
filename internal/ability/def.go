package ability

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
)

var (
	// ErrDuplicateDefinition is returned when an id is registered twice.
	ErrDuplicateDefinition = errors.New("ability: duplicate definition id")
	// ErrInvalidDefinition is returned for definitions that cannot run.
	ErrInvalidDefinition = errors.New("ability: invalid definition")
)

// AbilityDef describes a grantable ability.
type AbilityDef struct {
	ID     string
	Graph  *graph.Template
	Gates  gating.Gates
	Ledger *gating.Ledger
}

// BuffDef describes an applicable buff.
type BuffDef struct {
	ID     string
	Graph  *graph.Template
	Gates  gating.Gates
	Ledger *gating.Ledger
	// MaxLayer bounds the stack count. New instances start at layer one.
	MaxLayer int
	// StackPerApply is the number of layers added when the buff is applied
	// to an owner that already carries it. Zero means one.
	StackPerApply int
	// RefreshOnApply restarts the duration when the buff is re-applied.
	RefreshOnApply bool
	// Duration in seconds; zero or less never expires.
	Duration float64
	// LoopInterval in seconds between looper firings; zero or less disables
	// the looper.
	LoopInterval float64
}

func (d *BuffDef) stackPerApply() int {
	if d.StackPerApply <= 0 {
		return 1
	}
	return d.StackPerApply
}

// Library indexes definitions by id. It is built once at startup and read
// concurrently afterwards.
type Library struct {
	abilities map[string]*AbilityDef
	buffs     map[string]*BuffDef
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		abilities: make(map[string]*AbilityDef),
		buffs:     make(map[string]*BuffDef),
	}
}

// AddAbility registers def.
func (l *Library) AddAbility(def *AbilityDef) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: ability without id", ErrInvalidDefinition)
	}
	if def.Graph == nil || def.Graph.Kind() != graph.KindAbility {
		return fmt.Errorf("%w: ability %q needs an ability graph", ErrInvalidDefinition, def.ID)
	}
	if _, dup := l.abilities[def.ID]; dup {
		return fmt.Errorf("%w: ability %q", ErrDuplicateDefinition, def.ID)
	}
	normalizeGates(&def.Gates, &def.Ledger)
	l.abilities[def.ID] = def
	return nil
}

// AddBuff registers def.
func (l *Library) AddBuff(def *BuffDef) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("%w: buff without id", ErrInvalidDefinition)
	}
	if def.Graph == nil || def.Graph.Kind() != graph.KindBuff {
		return fmt.Errorf("%w: buff %q needs a buff graph", ErrInvalidDefinition, def.ID)
	}
	if def.MaxLayer < 1 {
		return fmt.Errorf("%w: buff %q max layer %d", ErrInvalidDefinition, def.ID, def.MaxLayer)
	}
	if _, dup := l.buffs[def.ID]; dup {
		return fmt.Errorf("%w: buff %q", ErrDuplicateDefinition, def.ID)
	}
	normalizeGates(&def.Gates, &def.Ledger)
	l.buffs[def.ID] = def
	return nil
}

func normalizeGates(g *gating.Gates, ledger **gating.Ledger) {
	if g.Start.Required == nil || g.Start.Disable == nil {
		g.Start = gating.NewRequirements()
	}
	if g.Abort.Required == nil || g.Abort.Disable == nil {
		g.Abort = gating.NewRequirements()
	}
	if *ledger == nil {
		*ledger = gating.NewLedger(nil)
	}
}

// Ability returns the ability definition with id.
func (l *Library) Ability(id string) (*AbilityDef, bool) {
	def, ok := l.abilities[id]
	return def, ok
}

// Buff returns the buff definition with id.
func (l *Library) Buff(id string) (*BuffDef, bool) {
	def, ok := l.buffs[id]
	return def, ok
}

// AbilityIDs lists ability ids in sorted order.
func (l *Library) AbilityIDs() []string {
	return sortedIDs(l.abilities)
}

// BuffIDs lists buff ids in sorted order.
func (l *Library) BuffIDs() []string {
	return sortedIDs(l.buffs)
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
