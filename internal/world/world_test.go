package world_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/internal/world"
	"github.com/qiboda/atom-sub003/logging/diagnostics"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

var quietLog = telemetry.LoggerFunc(func(string, ...any) {})

type harness struct {
	world   *world.World
	events  *sinks.MemorySink
	stunned tag.LayerTag
	tick    uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	table := tag.NewTable()
	stunned := tag.Must(tag.New(table.Intern("stunned")))
	lib := ability.NewLibrary()

	// channel: start -> timer(2s) -> end, blocked by stunned.
	b := graph.NewBuilder("channel")
	entry := b.Add("entry", graph.AbilityEntry{})
	timer := b.Add("timer", graph.Timer{})
	end := b.Add("end", graph.End{})
	b.Input(timer, "duration", graph.Lit(2.0))
	b.Connect(entry, graph.OutStart, timer)
	b.Connect(timer, graph.OutDone, end)
	channel, err := b.Build()
	require.NoError(t, err)
	gates := gating.NewGates()
	gates.Start.Disable.Add(stunned)
	require.NoError(t, lib.AddAbility(&ability.AbilityDef{ID: "channel", Graph: channel, Gates: gates}))

	sb := graph.NewBuilder("stun")
	sb.Add("entry", graph.BuffEntry{})
	stunGraph, err := sb.Build()
	require.NoError(t, err)
	ledger := gating.NewLedger(quietLog)
	ledger.Add(stunned, 1, gating.RevertYes)
	require.NoError(t, lib.AddBuff(&ability.BuffDef{ID: "stun", Graph: stunGraph, Ledger: ledger, MaxLayer: 3, Duration: 1}))

	events := sinks.NewMemorySink()
	w, err := world.New(world.DefaultConfig(), world.Deps{
		Publisher: events,
		Logger:    quietLog,
		Tags:      table,
		Library:   lib,
	})
	require.NoError(t, err)
	_, err = w.AddOwner("hero", attribute.ArchetypeHero, "channel")
	require.NoError(t, err)
	return &harness{world: w, events: events, stunned: stunned}
}

func (h *harness) step(dt float64, cmds ...sim.Command) {
	h.tick++
	h.world.Step(sim.TickContext{Tick: h.tick, Delta: dt}, cmds)
}

func (h *harness) rejections() []string {
	var out []string
	for _, e := range h.events.OfType(diagnostics.EventCommandRejected) {
		out = append(out, e.Payload.(diagnostics.CommandRejectedPayload).Reason)
	}
	return out
}

func cmd(kind sim.CommandKind, target sim.TargetKind, def string) sim.Command {
	return sim.Command{Kind: kind, Owner: "hero", Target: target, Definition: def}
}

func TestWorld_StartDisableScenario(t *testing.T) {
	h := newHarness(t)
	owner, ok := h.world.Owner("hero")
	require.True(t, ok)

	h.step(0.1,
		cmd(sim.CommandStart, sim.TargetBuff, "stun"),
		cmd(sim.CommandStart, sim.TargetAbility, "channel"),
	)
	a, _ := owner.Ability("channel")
	assert.Equal(t, ability.AbilityActive, a.State(), "gating read the snapshot taken before the stun landed")
	assert.Equal(t, graph.StateRunning, a.Graph().State(a.Graph().Entry()))
	assert.True(t, owner.Tags().Exists(h.stunned))

	h.step(0.1, cmd(sim.CommandAbort, sim.TargetAbility, "channel"))
	assert.Equal(t, ability.AbilityReady, a.State(), "abort accepted and the quiet graph settled in the same tick")
	assert.False(t, h.world.CanStart("hero", "channel"))

	h.step(0.1, cmd(sim.CommandStart, sim.TargetAbility, "channel"))
	assert.Equal(t, ability.AbilityReady, a.State())
	assert.Equal(t, []string{world.RejectGated}, h.rejections())

	h.step(1)
	assert.Equal(t, uint32(0), owner.Tags().Count(h.stunned), "expired stun reverted its grant")
	assert.True(t, h.world.CanStart("hero", "channel"))
	assert.Empty(t, h.events.OfType(diagnostics.EventTagUnderflow))
}

func TestWorld_RejectionsAreSilent(t *testing.T) {
	h := newHarness(t)
	missingOwner := cmd(sim.CommandStart, sim.TargetAbility, "channel")
	missingOwner.Owner = "ghost"
	missingCaster := cmd(sim.CommandStart, sim.TargetAbility, "channel")
	missingCaster.Caster = "ghost"

	h.step(0.1,
		missingOwner,
		missingCaster,
		cmd(sim.CommandGrant, sim.TargetAbility, "channel"),
		cmd(sim.CommandGrant, sim.TargetAbility, "nope"),
		cmd(sim.CommandPause, sim.TargetAbility, "channel"),
		cmd(sim.CommandAddLayer, sim.TargetBuff, "stun"),
		cmd(sim.CommandStart, sim.TargetBuff, "nope"),
	)
	assert.ElementsMatch(t, []string{
		world.RejectOwnerMissing,
		world.RejectCasterMissing,
		world.RejectAlreadyGranted,
		world.RejectUnknownDefinition,
		world.RejectWrongState,
		world.RejectNotApplied,
		world.RejectUnknownDefinition,
	}, h.rejections())
}

func TestWorld_BuffLayersAndQueries(t *testing.T) {
	h := newHarness(t)
	stack := cmd(sim.CommandStart, sim.TargetBuff, "stun")
	add := cmd(sim.CommandAddLayer, sim.TargetBuff, "stun")
	add.Count = 5

	h.step(0.1, stack, stack)
	layer, ok := h.world.BuffLayer("hero", "stun")
	require.True(t, ok)
	assert.Equal(t, 2, layer.Layer())

	h.step(0.1, add)
	layer, _ = h.world.BuffLayer("hero", "stun")
	assert.Equal(t, 3, layer.Layer())

	snap := h.world.Snapshot()
	assert.Equal(t, uint64(2), snap.Tick)
	status, ok := snap.Buff("hero", "stun")
	require.True(t, ok)
	assert.Equal(t, 3, status.Layer)
	assert.Equal(t, 3, status.MaxLayer)
	require.NotNil(t, status.Graph)
	g, ok := snap.Graph("hero", status.ID)
	require.True(t, ok)
	assert.Equal(t, "stun", g.Template)
	live, ok := h.world.GraphState("hero", status.Graph.ID)
	require.True(t, ok)
	assert.Equal(t, status.Graph.ID, live.ID)

	channel, ok := snap.Ability("hero", "channel")
	require.True(t, ok)
	assert.False(t, channel.Startable, "stunned")

	remove := cmd(sim.CommandRemoveLayer, sim.TargetBuff, "stun")
	remove.Count = 3
	h.step(0.1, remove)
	_, ok = h.world.BuffLayer("hero", "stun")
	assert.False(t, ok, "reaching layer zero ended the buff")
	owner, _ := h.world.Owner("hero")
	assert.Equal(t, 0, owner.Retiring(), "nothing was running, despawned in the teardown pass")
}

func TestWorld_RevokeWaitsForRunningNodes(t *testing.T) {
	h := newHarness(t)
	owner, _ := h.world.Owner("hero")

	h.step(0.1, cmd(sim.CommandStart, sim.TargetAbility, "channel"))
	h.step(0.1, cmd(sim.CommandPause, sim.TargetAbility, "channel"))
	a, _ := owner.Ability("channel")
	assert.Equal(t, ability.AbilityPaused, a.State())
	h.step(0.1, cmd(sim.CommandResume, sim.TargetAbility, "channel"))
	assert.Equal(t, ability.AbilityActive, a.State())

	h.step(0.1, cmd(sim.CommandRevoke, sim.TargetAbility, "channel"))
	assert.Equal(t, ability.AbilityToRemove, a.State())
	assert.True(t, a.Graph().Despawned(), "revoke aborted every node so teardown ran at once")
	assert.Equal(t, 0, owner.Retiring())
	assert.False(t, h.world.CanStart("hero", "channel"))
}

func TestWorld_Owners(t *testing.T) {
	h := newHarness(t)
	_, err := h.world.AddOwner("hero", attribute.ArchetypeHero)
	assert.ErrorIs(t, err, world.ErrDuplicateOwner)
	_, err = h.world.AddOwner("brute", attribute.ArchetypeBrute, "missing")
	assert.Error(t, err)
	_, err = h.world.AddOwner("brute", attribute.ArchetypeBrute)
	require.NoError(t, err)
	assert.Equal(t, []string{"brute", "hero"}, h.world.OwnerIDs())

	h.world.Publish()
	assert.Len(t, h.world.Snapshot().Owners, 2)

	require.NoError(t, h.world.RemoveOwner("brute"))
	assert.ErrorIs(t, h.world.RemoveOwner("brute"), world.ErrUnknownOwner)

	limited, err := world.New(world.Config{MaxOwners: 1}, world.Deps{Library: ability.NewLibrary(), Logger: quietLog})
	require.NoError(t, err)
	_, err = limited.AddOwner("a", attribute.ArchetypeDummy)
	require.NoError(t, err)
	_, err = limited.AddOwner("b", attribute.ArchetypeDummy)
	assert.ErrorIs(t, err, world.ErrOwnerLimit)
}
