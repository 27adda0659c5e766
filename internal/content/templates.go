package content

import (
	"fmt"

	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/tag"
)

// channelHeal grants channeling for two seconds, then heals the owner and
// ends. Aborting skips the heal.
func channelHeal(table *tag.Table) (*graph.Template, error) {
	channeling, err := simpleTag(table, TagChanneling)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ChannelHeal, err)
	}
	b := graph.NewBuilder(ChannelHeal)
	entry := b.Add("entry", graph.AbilityEntry{})
	grant := b.Add("grant_channeling", graph.GrantTag{Tag: channeling, Revert: gating.RevertYes})
	timer := b.Add("channel", graph.Timer{})
	heal := b.Add("heal", graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op:    attribute.OpHeal,
		Vital: attribute.VitalHealth,
		Value: 30,
	}})
	done := b.Add("done", graph.Message{Text: "channel complete"})
	end := b.Add("end", graph.End{})
	interrupted := b.Add("interrupted", graph.Message{Text: "channel interrupted"})

	b.Input(timer, "duration", graph.Lit(2.0))
	b.Input(done, "value", graph.Ref(heal, "applied"))
	b.Connect(entry, graph.OutStart, grant)
	b.Connect(grant, graph.OutThen, timer)
	b.Connect(timer, graph.OutDone, heal)
	b.Connect(heal, graph.OutThen, done)
	b.Connect(done, graph.OutThen, end)
	b.Connect(entry, graph.OutAbort, interrupted)
	return b.Build()
}

// battleStance permanently marks the owner as trained once granted, and
// raises armor for five seconds per activation.
func battleStance(table *tag.Table) (*graph.Template, error) {
	trained, err := simpleTag(table, TagStanceTrained)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", BattleStance, err)
	}
	b := graph.NewBuilder(BattleStance)
	entry := b.Add("entry", graph.AbilityEntry{})
	learn := b.Add("learn", graph.GrantTag{Tag: trained, Revert: gating.RevertNo})
	armor := b.Add("armor", graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op:    attribute.OpAdd,
		Stat:  attribute.StatArmor,
		Value: 20,
		Layer: attribute.LayerAbility,
	}})
	timer := b.Add("hold", graph.Timer{})
	end := b.Add("end", graph.End{})

	b.Input(timer, "duration", graph.Lit(5.0))
	b.Connect(entry, graph.OutReady, learn)
	b.Connect(entry, graph.OutStart, armor)
	b.Connect(armor, graph.OutThen, timer)
	b.Connect(timer, graph.OutDone, end)
	return b.Build()
}

// enrage multiplies strength for three seconds unless the owner is stunned
// when it starts.
func enrage(table *tag.Table) (*graph.Template, error) {
	stunned, err := simpleTag(table, TagStunned)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Enrage, err)
	}
	b := graph.NewBuilder(Enrage)
	entry := b.Add("entry", graph.AbilityEntry{})
	dazed := b.Add("is_stunned", graph.HasTag{Tag: stunned})
	check := b.Add("check", graph.Branch{})
	fizzle := b.Add("fizzle", graph.Message{Text: "too dazed to rage"})
	fizzleEnd := b.Add("fizzle_end", graph.End{})
	rage := b.Add("rage", graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op:    attribute.OpMul,
		Stat:  attribute.StatStrength,
		Value: 1.5,
		Layer: attribute.LayerAbility,
	}})
	mark := b.Add("mark", graph.SetBlackboard{Key: "enraged"})
	timer := b.Add("duration", graph.Timer{})
	end := b.Add("end", graph.End{})

	b.Input(check, "condition", graph.Ref(dazed, "exists"))
	b.Input(mark, "value", graph.Lit(true))
	b.Input(timer, "duration", graph.Lit(3.0))
	b.Connect(entry, graph.OutStart, check)
	b.Connect(check, graph.OutTrue, fizzle)
	b.Connect(fizzle, graph.OutThen, fizzleEnd)
	b.Connect(check, graph.OutFalse, rage)
	b.Connect(rage, graph.OutThen, mark)
	b.Connect(mark, graph.OutThen, timer)
	b.Connect(timer, graph.OutDone, end)
	return b.Build()
}

// poison damages the owner by eight per layer on every looper firing.
func poison(*tag.Table) (*graph.Template, error) {
	b := graph.NewBuilder(Poison)
	entry := b.Add("entry", graph.BuffEntry{})
	layer := b.Add("layer", graph.Layer{})
	scale := b.Add("scale", graph.Multiply{})
	tick := b.Add("tick", graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op:    attribute.OpDamage,
		Vital: attribute.VitalHealth,
	}})
	stacked := b.Add("stacked", graph.Message{Text: "poison stacked"})
	faded := b.Add("faded", graph.Message{Text: "poison faded"})

	b.Input(scale, "a", graph.Ref(layer, "layer")).Input(scale, "b", graph.Lit(8.0))
	b.Input(tick, "value", graph.Ref(scale, "result"))
	b.Input(stacked, "value", graph.Ref(entry, "delta"))
	b.Connect(entry, graph.OutLooper, tick)
	b.Connect(entry, graph.OutAddLayer, stacked)
	b.Connect(entry, graph.OutEnd, faded)
	return b.Build()
}

// stun carries no behavior of its own; catalog entries attach the stunned
// grant through the buff ledger.
func stun(*tag.Table) (*graph.Template, error) {
	b := graph.NewBuilder(Stun)
	entry := b.Add("entry", graph.BuffEntry{})
	applied := b.Add("applied", graph.Message{Text: "stunned"})
	recovered := b.Add("recovered", graph.Message{Text: "stun wore off"})
	b.Connect(entry, graph.OutStart, applied)
	b.Connect(entry, graph.OutEnd, recovered)
	return b.Build()
}

// regeneration heals five per layer on every looper firing and then sheds
// a layer, so it ends on its own once the stack runs out.
func regeneration(*tag.Table) (*graph.Template, error) {
	b := graph.NewBuilder(Regeneration)
	entry := b.Add("entry", graph.BuffEntry{})
	layer := b.Add("layer", graph.Layer{})
	scale := b.Add("scale", graph.Multiply{})
	heal := b.Add("heal", graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op:    attribute.OpHeal,
		Vital: attribute.VitalHealth,
	}})
	decay := b.Add("decay", graph.ChangeLayer{})

	b.Input(scale, "a", graph.Ref(layer, "layer")).Input(scale, "b", graph.Lit(5.0))
	b.Input(heal, "value", graph.Ref(scale, "result"))
	b.Input(decay, "delta", graph.Lit(-1))
	b.Connect(entry, graph.OutLooper, heal)
	b.Connect(heal, graph.OutThen, decay)
	return b.Build()
}

// charges is a counter that survives being emptied.
func charges(*tag.Table) (*graph.Template, error) {
	b := graph.NewBuilder(Charges)
	entry := b.Add("entry", graph.BuffEntry{KeepAtZeroLayer: true})
	gained := b.Add("gained", graph.Message{Text: "charge gained"})
	spent := b.Add("spent", graph.Message{Text: "charge spent"})
	b.Input(gained, "value", graph.Ref(entry, "layer"))
	b.Input(spent, "value", graph.Ref(entry, "layer"))
	b.Connect(entry, graph.OutAddLayer, gained)
	b.Connect(entry, graph.OutRemoveLayer, spent)
	return b.Build()
}

// fortify adds ten armor per layer. Contributions accumulate on the buff
// instance's modifier source, so layer changes apply only the difference.
func fortify(*tag.Table) (*graph.Template, error) {
	b := graph.NewBuilder(Fortify)
	entry := b.Add("entry", graph.BuffEntry{})
	armor := graph.ModifyAttribute{Modifier: attribute.Modifier{
		Op:    attribute.OpAdd,
		Stat:  attribute.StatArmor,
		Value: 10,
		Layer: attribute.LayerBuff,
	}}
	onStart := b.Add("armor_start", armor)
	scale := b.Add("scale", graph.Multiply{})
	onAdd := b.Add("armor_add", armor)
	onRemove := b.Add("armor_remove", armor)

	b.Input(scale, "a", graph.Ref(entry, "delta")).Input(scale, "b", graph.Lit(10.0))
	b.Input(onAdd, "value", graph.Ref(scale, "result"))
	b.Input(onRemove, "value", graph.Ref(scale, "result"))
	b.Connect(entry, graph.OutStart, onStart)
	b.Connect(entry, graph.OutAddLayer, onAdd)
	b.Connect(entry, graph.OutRemoveLayer, onRemove)
	return b.Build()
}
