package ability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/invariant"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
	"github.com/qiboda/atom-sub003/logging"
	abilitylog "github.com/qiboda/atom-sub003/logging/abilities"
	bufflog "github.com/qiboda/atom-sub003/logging/buffs"
	"github.com/qiboda/atom-sub003/logging/sinks"
)

var quietLog = telemetry.LoggerFunc(func(string, ...any) {})

type fixture struct {
	table   *tag.Table
	events  *sinks.MemorySink
	env     *ability.Env
	stunned tag.LayerTag
}

func newFixture() *fixture {
	table := tag.NewTable()
	events := sinks.NewMemorySink()
	return &fixture{
		table:   table,
		events:  events,
		env:     ability.NewEnv(events, quietLog, table),
		stunned: tag.Must(tag.New(table.Intern("stunned"))),
	}
}

func (f *fixture) owner(id string) *ability.Owner {
	return ability.NewOwner(id, attribute.DefaultSet(attribute.ArchetypeDummy), f.env)
}

// idleAbility has an entry and nothing else.
func idleAbility(t *testing.T, id string) *ability.AbilityDef {
	t.Helper()
	b := graph.NewBuilder(id)
	b.Add("entry", graph.AbilityEntry{})
	tmpl, err := b.Build()
	require.NoError(t, err)
	return &ability.AbilityDef{ID: id, Graph: tmpl, Gates: gating.NewGates(), Ledger: gating.NewLedger(quietLog)}
}

// lingeringAbility ends on start but leaves a timer running.
func lingeringAbility(t *testing.T, seconds float64) *ability.AbilityDef {
	t.Helper()
	b := graph.NewBuilder("linger")
	entry := b.Add("entry", graph.AbilityEntry{})
	timer := b.Add("timer", graph.Timer{})
	end := b.Add("end", graph.End{})
	b.Input(timer, "duration", graph.Lit(seconds))
	b.Connect(entry, graph.OutStart, timer, end)
	tmpl, err := b.Build()
	require.NoError(t, err)
	return &ability.AbilityDef{ID: "linger", Graph: tmpl, Gates: gating.NewGates(), Ledger: gating.NewLedger(quietLog)}
}

func grantingBuff(t *testing.T, id string, grant tag.LayerTag) *ability.BuffDef {
	t.Helper()
	b := graph.NewBuilder(id)
	b.Add("entry", graph.BuffEntry{})
	tmpl, err := b.Build()
	require.NoError(t, err)
	ledger := gating.NewLedger(quietLog)
	ledger.Add(grant, 1, gating.RevertYes)
	return &ability.BuffDef{ID: id, Graph: tmpl, Gates: gating.NewGates(), Ledger: ledger, MaxLayer: 1}
}

func TestBuffLayer_Clamps(t *testing.T) {
	layer := ability.NewBuffLayer(3)
	assert.Equal(t, 1, layer.Layer())

	got, err := layer.Add(5)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = layer.Remove(10)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	if !invariant.FailFast() {
		_, err = layer.AddWith(quietLog, 0)
		assert.ErrorIs(t, err, ability.ErrNonPositiveDelta)
		_, err = layer.RemoveWith(quietLog, -2)
		assert.ErrorIs(t, err, ability.ErrNonPositiveDelta)
		assert.Equal(t, 0, layer.Layer())
	}

	assert.Equal(t, 1, ability.NewBuffLayer(0).Max())
}

func TestAbility_StartDisableDoesNotGateAbort(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")

	def := idleAbility(t, "channel")
	def.Gates.Start.Disable.Add(f.stunned)
	a, err := owner.Grant(def, nil)
	require.NoError(t, err)

	require.True(t, a.CanStart(owner.Tags()))
	require.True(t, a.Start(nil))
	assert.Equal(t, ability.AbilityActive, a.State())
	assert.Equal(t, graph.StateRunning, a.Graph().State(a.Graph().Entry()))

	b := owner.ApplyBuff(grantingBuff(t, "stun", f.stunned), nil)
	assert.True(t, owner.Tags().Exists(f.stunned))

	assert.True(t, a.CanAbort(owner.Tags()), "abort gates are independent of start disables")
	require.True(t, a.Abort())
	assert.Equal(t, ability.AbilityEnding, a.State())

	owner.Teardown()
	assert.Equal(t, ability.AbilityReady, a.State())
	assert.False(t, a.CanStart(owner.Tags()), "stunned blocks start")

	require.True(t, b.Abort())
	assert.Equal(t, uint32(0), owner.Tags().Count(f.stunned))
	assert.True(t, a.CanStart(owner.Tags()))

	assert.Len(t, f.events.OfType(abilitylog.EventStarted), 1)
	assert.Len(t, f.events.OfType(abilitylog.EventAborted), 1)
	assert.Len(t, f.events.OfType(bufflog.EventRemoved), 1)
}

func TestAbility_GatesRequireTags(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	armed := tag.Must(tag.New(f.table.Intern("armed")))

	def := idleAbility(t, "strike")
	def.Gates.Start.Required.Add(armed)
	def.Gates.Abort.Disable.Add(f.stunned)
	a, err := owner.Grant(def, nil)
	require.NoError(t, err)

	assert.False(t, a.CanStart(owner.Tags()))
	owner.Tags().Add(armed)
	assert.True(t, a.CanStart(owner.Tags()))
	require.True(t, a.Start(nil))
	assert.False(t, a.CanStart(owner.Tags()), "already active")

	owner.Tags().Add(f.stunned)
	assert.False(t, a.CanAbort(owner.Tags()))
	owner.Tags().Remove(f.stunned)
	assert.True(t, a.CanAbort(owner.Tags()))
}

func TestAbility_OverlappingGrantsAreCounted(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")

	first := owner.ApplyBuff(grantingBuff(t, "stun_a", f.stunned), nil)
	second := owner.ApplyBuff(grantingBuff(t, "stun_b", f.stunned), nil)
	assert.Equal(t, uint32(2), owner.Tags().Count(f.stunned))

	first.Abort()
	assert.True(t, owner.Tags().Exists(f.stunned), "the other buff still holds it")
	second.Abort()
	assert.False(t, owner.Tags().Exists(f.stunned))
	assert.Empty(t, f.events.OfType(logging.EventType("tags.underflow")))
}

func TestAbility_PermanentGrantsOutliveActivation(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	stance := tag.Must(tag.New(f.table.Intern("stance")))

	def := idleAbility(t, "learn")
	def.Ledger.Add(stance, 1, gating.RevertNo)
	def.Ledger.Add(f.stunned, 1, gating.RevertYes)
	a, err := owner.Grant(def, nil)
	require.NoError(t, err)

	require.True(t, a.Start(nil))
	assert.True(t, owner.Tags().Exists(stance))
	assert.True(t, owner.Tags().Exists(f.stunned))

	require.True(t, a.Abort())
	assert.True(t, owner.Tags().Exists(stance))
	assert.False(t, owner.Tags().Exists(f.stunned))
}

func TestAbility_EndingWaitsForRunningNodes(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	a, err := owner.Grant(lingeringAbility(t, 1), nil)
	require.NoError(t, err)

	require.True(t, a.Start(nil))
	assert.Equal(t, ability.AbilityEnding, a.State(), "end node ran during start")
	assert.Len(t, f.events.OfType(abilitylog.EventEnded), 1)

	owner.Teardown()
	assert.Equal(t, ability.AbilityEnding, a.State(), "timer still running")
	assert.False(t, a.Start(nil))

	owner.Advance(1)
	owner.Teardown()
	assert.Equal(t, ability.AbilityReady, a.State())
	assert.True(t, a.Start(nil))
	assert.Equal(t, 2, a.Activations())
}

func TestAbility_RevokeDefersDespawn(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	a, err := owner.Grant(lingeringAbility(t, 2), nil)
	require.NoError(t, err)
	require.True(t, a.Start(nil))

	require.True(t, owner.Revoke("linger"))
	assert.False(t, owner.Revoke("linger"))
	assert.Equal(t, ability.AbilityToRemove, a.State())
	_, ok := owner.Ability("linger")
	assert.False(t, ok)
	assert.Equal(t, 1, owner.Retiring())

	assert.Equal(t, 0, owner.Teardown())
	owner.Advance(1)
	assert.Equal(t, 0, owner.Teardown())
	owner.Advance(1)
	assert.Equal(t, 1, owner.Teardown())
	assert.Equal(t, 0, owner.Retiring())
	assert.True(t, a.Graph().Despawned())
	assert.Len(t, f.events.OfType(abilitylog.EventRevoked), 1)
}

func TestAbility_PauseResume(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	b := graph.NewBuilder("channel")
	entry := b.Add("entry", graph.AbilityEntry{})
	timer := b.Add("timer", graph.Timer{})
	end := b.Add("end", graph.End{})
	b.Input(timer, "duration", graph.Lit(1.0))
	b.Connect(entry, graph.OutStart, timer)
	b.Connect(timer, graph.OutDone, end)
	tmpl, err := b.Build()
	require.NoError(t, err)

	a, err := owner.Grant(&ability.AbilityDef{ID: "channel", Graph: tmpl, Gates: gating.NewGates(), Ledger: gating.NewLedger(quietLog)}, nil)
	require.NoError(t, err)
	require.True(t, a.Start(nil))

	assert.False(t, a.Resume())
	require.True(t, a.Pause())
	owner.Advance(5)
	assert.Equal(t, ability.AbilityPaused, a.State())

	require.True(t, a.Resume())
	owner.Advance(0.5)
	assert.Equal(t, ability.AbilityActive, a.State())
	owner.Advance(0.5)
	assert.Equal(t, ability.AbilityEnding, a.State())
	owner.Teardown()
	assert.Equal(t, ability.AbilityReady, a.State())
}

func TestAbility_GrantTwiceFails(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	def := idleAbility(t, "idle")
	_, err := owner.Grant(def, nil)
	require.NoError(t, err)
	_, err = owner.Grant(def, nil)
	assert.Error(t, err)
	_, err = owner.Grant(nil, nil)
	assert.Error(t, err)
	assert.Len(t, f.events.OfType(abilitylog.EventGranted), 1)
}

func TestOwner_ClearRemovesEverything(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	a, err := owner.Grant(lingeringAbility(t, 3), nil)
	require.NoError(t, err)
	a.Start(nil)
	owner.ApplyBuff(grantingBuff(t, "stun", f.stunned), nil)

	owner.Clear()
	assert.Empty(t, owner.Abilities())
	assert.Empty(t, owner.Buffs())
	assert.Equal(t, 0, owner.Retiring())
	assert.Equal(t, 0, owner.Tags().Len())
	assert.True(t, a.Graph().Despawned())
}

func TestAbility_FailedStartLeavesOwnerTagsAlone(t *testing.T) {
	f := newFixture()
	owner := f.owner("hero")
	calm := tag.Must(tag.New(f.table.Intern("calm")))
	focused := tag.Must(tag.New(f.table.Intern("focused")))
	owner.Tags().Add(calm)

	def := idleAbility(t, "meditate")
	def.Ledger.Strip(calm, 1)
	def.Ledger.Add(focused, 1, gating.RevertYes)
	a, err := owner.Grant(def, nil)
	require.NoError(t, err)

	a.Graph().Despawn()
	assert.False(t, a.Start(nil))
	assert.Equal(t, ability.AbilityReady, a.State())
	assert.Equal(t, uint32(1), owner.Tags().Count(calm), "strip not applied")
	assert.False(t, owner.Tags().Exists(focused))
	assert.Empty(t, f.events.OfType(abilitylog.EventStarted))
}
