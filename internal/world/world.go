// Package world owns the registry of owners and runs the per-tick passes:
// dispatch of drained commands, graph advance, and teardown. It is driven
// from the simulation goroutine; readers on other goroutines use the
// snapshot published at the end of each step.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/logging"
)

const (
	metricCommandsAccepted = "world_commands_accepted_total"
	metricCommandsRejected = "world_commands_rejected_total"
	metricDespawned        = "world_instances_despawned_total"
	metricOwners           = "world_owners"
)

var (
	// ErrDuplicateOwner is returned when an owner id is already registered.
	ErrDuplicateOwner = errors.New("world: duplicate owner")
	// ErrUnknownOwner is returned for owner ids that are not registered.
	ErrUnknownOwner = errors.New("world: unknown owner")
	// ErrOwnerLimit is returned when Config.MaxOwners is reached.
	ErrOwnerLimit = errors.New("world: owner limit reached")
)

// Config tunes the world.
type Config struct {
	// MaxOwners caps the registry; zero or less means unlimited.
	MaxOwners int `json:"maxOwners"`
	// SnapshotGraphs includes per-node graph state in published snapshots.
	SnapshotGraphs bool `json:"snapshotGraphs"`
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.MaxOwners < 0 {
		normalized.MaxOwners = 0
	}
	return normalized
}

// DefaultConfig returns the configuration used by the server binary.
func DefaultConfig() Config {
	return Config{SnapshotGraphs: true}
}

// Deps bundles runtime dependencies required to construct a World.
type Deps struct {
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Tags      *tag.Table
	Library   *ability.Library
}

// World owns every owner and the definitions they draw from.
type World struct {
	config  Config
	env     *ability.Env
	library *ability.Library
	logger  telemetry.Logger
	metrics telemetry.Metrics

	owners map[string]*ability.Owner
	tick   uint64

	snapshotMu sync.RWMutex
	snapshot   *Snapshot
}

// New constructs a world with normalized configuration.
func New(cfg Config, deps Deps) (*World, error) {
	if deps.Library == nil {
		return nil, fmt.Errorf("world: definitions library is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.Default()
	}
	w := &World{
		config:  cfg.normalized(),
		env:     ability.NewEnv(deps.Publisher, logger, deps.Tags),
		library: deps.Library,
		logger:  logger,
		metrics: deps.Metrics,
		owners:  make(map[string]*ability.Owner),
	}
	w.publishSnapshot()
	return w, nil
}

// Config returns the normalized configuration captured at construction time.
func (w *World) Config() Config { return w.config }

// Library returns the definitions library.
func (w *World) Library() *ability.Library { return w.library }

// Tick returns the last executed tick.
func (w *World) Tick() uint64 { return w.tick }

// AddOwner registers an owner seeded from archetype and grants the listed
// abilities. Must be called from the simulation goroutine or before the
// loop starts.
func (w *World) AddOwner(id string, archetype attribute.Archetype, abilities ...string) (*ability.Owner, error) {
	if id == "" {
		return nil, fmt.Errorf("world: owner id is required")
	}
	if _, exists := w.owners[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateOwner, id)
	}
	if w.config.MaxOwners > 0 && len(w.owners) >= w.config.MaxOwners {
		return nil, fmt.Errorf("%w: %d", ErrOwnerLimit, w.config.MaxOwners)
	}
	owner := ability.NewOwner(id, attribute.DefaultSet(archetype), w.env)
	for _, abilityID := range abilities {
		def, ok := w.library.Ability(abilityID)
		if !ok {
			return nil, fmt.Errorf("world: owner %q: unknown ability %q", id, abilityID)
		}
		if _, err := owner.Grant(def, nil); err != nil {
			return nil, fmt.Errorf("world: owner %q: %w", id, err)
		}
	}
	w.owners[id] = owner
	w.storeMetric(metricOwners, uint64(len(w.owners)))
	return owner, nil
}

// RemoveOwner clears and unregisters an owner. Every instance it carries is
// despawned immediately.
func (w *World) RemoveOwner(id string) error {
	owner, ok := w.owners[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOwner, id)
	}
	owner.Clear()
	delete(w.owners, id)
	w.storeMetric(metricOwners, uint64(len(w.owners)))
	return nil
}

// Owner returns the live owner with id.
func (w *World) Owner(id string) (*ability.Owner, bool) {
	owner, ok := w.owners[id]
	return owner, ok
}

// OwnerIDs lists registered owners in sorted order.
func (w *World) OwnerIDs() []string {
	ids := make([]string, 0, len(w.owners))
	for id := range w.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Step runs one tick: dispatch, advance, teardown, then publishes a
// snapshot. It implements sim.Engine.
func (w *World) Step(ctx sim.TickContext, commands []sim.Command) {
	w.tick = ctx.Tick
	w.env.SetTick(ctx.Tick)

	w.dispatch(commands)
	w.advance(ctx.Delta)
	w.teardown()
	w.publishSnapshot()
}

func (w *World) advance(dt float64) {
	if dt <= 0 {
		return
	}
	for _, id := range w.OwnerIDs() {
		w.owners[id].Advance(dt)
	}
}

func (w *World) teardown() {
	total := 0
	for _, id := range w.OwnerIDs() {
		total += w.owners[id].Teardown()
	}
	if total > 0 {
		w.addMetric(metricDespawned, uint64(total))
	}
}

func (w *World) addMetric(key string, delta uint64) {
	if w.metrics != nil {
		w.metrics.Add(key, delta)
	}
}

func (w *World) storeMetric(key string, value uint64) {
	if w.metrics != nil {
		w.metrics.Store(key, value)
	}
}

var _ sim.Engine = (*World)(nil)
