package ability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	bufflog "github.com/qiboda/atom-sub003/logging/buffs"
)

// poisonDef damages the owner by 10 per layer on every looper firing.
func poisonDef(t *testing.T) *ability.BuffDef {
	t.Helper()
	b := graph.NewBuilder("poison")
	entry := b.Add("entry", graph.BuffEntry{})
	layer := b.Add("layer", graph.Layer{})
	scale := b.Add("scale", graph.Multiply{})
	hit := b.Add("hit", graph.ModifyAttribute{Modifier: attribute.Modifier{Op: attribute.OpDamage, Vital: attribute.VitalHealth}})
	b.Input(scale, "a", graph.Ref(layer, "layer")).Input(scale, "b", graph.Lit(10.0))
	b.Input(hit, "value", graph.Ref(scale, "result"))
	b.Connect(entry, graph.OutLooper, hit)
	tmpl, err := b.Build()
	require.NoError(t, err)
	return &ability.BuffDef{
		ID:           "poison",
		Graph:        tmpl,
		Gates:        gating.NewGates(),
		Ledger:       gating.NewLedger(quietLog),
		MaxLayer:     5,
		Duration:     3,
		LoopInterval: 1,
	}
}

func TestBuff_LooperAndExpiry(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	health := func() float64 { return owner.Attributes().Current(attribute.VitalHealth) }
	require.Equal(t, 100.0, health())

	b := owner.ApplyBuff(poisonDef(t), nil)
	assert.Equal(t, ability.BuffActive, b.State())
	assert.Equal(t, 3.0, b.Remaining())

	owner.Advance(1)
	assert.Equal(t, 90.0, health())
	owner.Advance(1)
	assert.Equal(t, 80.0, health())
	owner.Advance(1)
	assert.Equal(t, 70.0, health(), "the last looper fires before expiry")
	assert.Equal(t, 3, b.Loops())

	assert.Equal(t, ability.BuffToRemove, b.State())
	assert.Equal(t, ability.EndExpired, b.EndReason())
	_, live := owner.Buff("poison")
	assert.False(t, live)
	assert.Equal(t, 1, owner.Teardown())

	removed := f.events.OfType(bufflog.EventRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, ability.EndExpired, removed[0].Payload.(bufflog.RemovedPayload).Reason)
}

func TestBuff_ReapplyStacksAndRefreshes(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	def := poisonDef(t)
	def.MaxLayer = 3
	def.RefreshOnApply = true

	b := owner.ApplyBuff(def, nil)
	owner.Advance(1)
	assert.Equal(t, 90.0, owner.Attributes().Current(attribute.VitalHealth))

	assert.Same(t, b, owner.ApplyBuff(def, nil))
	assert.Equal(t, 2, b.Layers().Layer())
	assert.Equal(t, 0.0, b.Elapsed(), "refreshed")

	owner.ApplyBuff(def, nil)
	owner.ApplyBuff(def, nil)
	assert.Equal(t, 3, b.Layers().Layer(), "clamped at max layer")
	assert.Len(t, f.events.OfType(bufflog.EventLayerChanged), 2, "a clamped apply changes nothing")

	owner.Advance(1)
	assert.Equal(t, 60.0, owner.Attributes().Current(attribute.VitalHealth))
}

func TestBuff_RemovingLastLayerEnds(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	def := poisonDef(t)

	b := owner.ApplyBuff(def, nil)
	require.True(t, b.AddLayer(2))
	require.True(t, b.RemoveLayer(10))
	assert.Equal(t, 0, b.Layers().Layer())
	assert.Equal(t, ability.BuffToRemove, b.State())
	assert.Equal(t, ability.EndDepleted, b.EndReason())
	assert.False(t, b.AddLayer(1))
}

func TestBuff_KeepAtZeroLayer(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	b := graph.NewBuilder("charges")
	b.Add("entry", graph.BuffEntry{KeepAtZeroLayer: true})
	tmpl, err := b.Build()
	require.NoError(t, err)

	buff := owner.ApplyBuff(&ability.BuffDef{ID: "charges", Graph: tmpl, MaxLayer: 3, Ledger: gating.NewLedger(quietLog)}, nil)
	require.True(t, buff.RemoveLayer(1))
	assert.Equal(t, 0, buff.Layers().Layer())
	assert.Equal(t, ability.BuffActive, buff.State())
	assert.Equal(t, -1.0, buff.Remaining())
}

func TestBuff_ChangeLayerFromGraph(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	b := graph.NewBuilder("decay")
	entry := b.Add("entry", graph.BuffEntry{})
	change := b.Add("change", graph.ChangeLayer{})
	echo := b.Add("echo", graph.Message{Text: "delta"})
	b.Input(change, "delta", graph.Lit(-1))
	b.Input(echo, "value", graph.Ref(entry, "delta"))
	b.Connect(entry, graph.OutLooper, change)
	b.Connect(entry, graph.OutAddLayer, echo)
	tmpl, err := b.Build()
	require.NoError(t, err)

	buff := owner.ApplyBuff(&ability.BuffDef{ID: "decay", Graph: tmpl, MaxLayer: 5, LoopInterval: 1, Ledger: gating.NewLedger(quietLog)}, nil)
	buff.AddLayer(2)
	msgs := f.events.OfType("graph.message")
	require.Len(t, msgs, 1)

	owner.Advance(1)
	assert.Equal(t, 2, buff.Layers().Layer())
	owner.Advance(2)
	assert.Equal(t, 0, buff.Layers().Layer())
	assert.Equal(t, ability.BuffToRemove, buff.State())
	assert.Equal(t, ability.EndDepleted, buff.EndReason())
}

func TestBuff_LayeredModifierRevertedOnEnd(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	b := graph.NewBuilder("might")
	entry := b.Add("entry", graph.BuffEntry{})
	boost := b.Add("boost", graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op: attribute.OpAdd, Stat: attribute.StatStrength, Value: 10, Layer: attribute.LayerBuff,
	}})
	b.Connect(entry, graph.OutStart, boost)
	tmpl, err := b.Build()
	require.NoError(t, err)

	buff := owner.ApplyBuff(&ability.BuffDef{ID: "might", Graph: tmpl, MaxLayer: 1, Ledger: gating.NewLedger(quietLog)}, nil)
	assert.Equal(t, 30.0, owner.Attributes().Total(attribute.StatStrength))
	assert.Equal(t, 150.0, owner.Attributes().Max(attribute.VitalHealth))

	require.True(t, buff.Abort())
	assert.Equal(t, 20.0, owner.Attributes().Total(attribute.StatStrength))
	assert.False(t, buff.Abort())
}

func TestBuff_PauseHoldsDuration(t *testing.T) {
	f := newFixture()
	owner := f.owner("dummy")
	b := owner.ApplyBuff(poisonDef(t), nil)

	require.True(t, b.Pause())
	owner.Advance(10)
	assert.Equal(t, 0.0, b.Elapsed())
	assert.Equal(t, 100.0, owner.Attributes().Current(attribute.VitalHealth))

	require.True(t, b.Resume())
	owner.Advance(1)
	assert.Equal(t, 90.0, owner.Attributes().Current(attribute.VitalHealth))

	status := owner.Status(true)
	require.Len(t, status.Buffs, 1)
	assert.Equal(t, "active", status.Buffs[0].State)
	require.NotNil(t, status.Buffs[0].Graph)
}
