package world

import (
	"context"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/sim"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/logging"
	"github.com/qiboda/atom-sub003/logging/diagnostics"
)

// Reasons published with commands.rejected.
const (
	RejectOwnerMissing      = "owner_missing"
	RejectCasterMissing     = "caster_missing"
	RejectUnknownDefinition = "unknown_definition"
	RejectNotGranted        = "not_granted"
	RejectAlreadyGranted    = "already_granted"
	RejectNotApplied        = "not_applied"
	RejectGated             = "gated"
	RejectWrongState        = "wrong_state"
	RejectInvalid           = "invalid"
)

// dispatch routes every drained command. Gating reads a tag snapshot taken
// per owner before the first command runs, so every check in one pass sees
// the state left by the previous tick.
func (w *World) dispatch(commands []sim.Command) {
	if len(commands) == 0 {
		return
	}
	snapshots := make(map[string]*tag.CountContainer)
	for _, cmd := range commands {
		if _, taken := snapshots[cmd.Owner]; taken {
			continue
		}
		if owner, ok := w.owners[cmd.Owner]; ok {
			snapshots[cmd.Owner] = owner.Tags().Clone()
		}
	}
	for _, cmd := range commands {
		if reason := w.route(cmd, snapshots[cmd.Owner]); reason != "" {
			w.reject(cmd, reason)
			continue
		}
		w.addMetric(metricCommandsAccepted, 1)
	}
}

// route applies cmd and returns the rejection reason, empty on success.
func (w *World) route(cmd sim.Command, snapshot *tag.CountContainer) string {
	if err := cmd.Validate(); err != nil {
		return RejectInvalid
	}
	owner, ok := w.owners[cmd.Owner]
	if !ok {
		return RejectOwnerMissing
	}
	var caster *ability.Owner
	if cmd.Caster != "" {
		if caster, ok = w.owners[cmd.Caster]; !ok {
			return RejectCasterMissing
		}
	}
	if cmd.Target == sim.TargetBuff {
		return w.routeBuff(cmd, owner, caster, snapshot)
	}
	return w.routeAbility(cmd, owner, caster, snapshot)
}

func (w *World) routeAbility(cmd sim.Command, owner, caster *ability.Owner, snapshot *tag.CountContainer) string {
	if cmd.Kind == sim.CommandGrant {
		def, ok := w.library.Ability(cmd.Definition)
		if !ok {
			return RejectUnknownDefinition
		}
		if _, granted := owner.Ability(cmd.Definition); granted {
			return RejectAlreadyGranted
		}
		if _, err := owner.Grant(def, caster); err != nil {
			w.logger.Printf("[world] grant %s to %s: %v", cmd.Definition, owner.ID(), err)
			return RejectInvalid
		}
		return ""
	}

	a, ok := owner.Ability(cmd.Definition)
	if !ok {
		return RejectNotGranted
	}
	switch cmd.Kind {
	case sim.CommandStart:
		if a.State() != ability.AbilityReady {
			return RejectWrongState
		}
		if !a.Gates().CanStart(snapshot) {
			return RejectGated
		}
		if !a.Start(caster) {
			return RejectWrongState
		}
	case sim.CommandAbort:
		if a.State() != ability.AbilityActive && a.State() != ability.AbilityPaused {
			return RejectWrongState
		}
		if !a.Gates().CanAbort(snapshot) {
			return RejectGated
		}
		a.Abort()
	case sim.CommandPause:
		if !a.Pause() {
			return RejectWrongState
		}
	case sim.CommandResume:
		if !a.Resume() {
			return RejectWrongState
		}
	case sim.CommandRevoke:
		owner.Revoke(cmd.Definition)
	default:
		return RejectInvalid
	}
	return ""
}

func (w *World) routeBuff(cmd sim.Command, owner, caster *ability.Owner, snapshot *tag.CountContainer) string {
	if cmd.Kind == sim.CommandStart {
		def, ok := w.library.Buff(cmd.Definition)
		if !ok {
			return RejectUnknownDefinition
		}
		if !def.Gates.CanStart(snapshot) {
			return RejectGated
		}
		owner.ApplyBuff(def, caster)
		return ""
	}

	b, ok := owner.Buff(cmd.Definition)
	if !ok {
		return RejectNotApplied
	}
	switch cmd.Kind {
	case sim.CommandAddLayer:
		if !b.AddLayer(cmd.Layers()) {
			return RejectWrongState
		}
	case sim.CommandRemoveLayer:
		if !b.RemoveLayer(cmd.Layers()) {
			return RejectWrongState
		}
	case sim.CommandPause:
		if !b.Pause() {
			return RejectWrongState
		}
	case sim.CommandResume:
		if !b.Resume() {
			return RejectWrongState
		}
	case sim.CommandAbort, sim.CommandRevoke:
		if !b.CanAbort(snapshot) {
			return RejectGated
		}
		b.Abort()
	default:
		return RejectInvalid
	}
	return ""
}

func (w *World) reject(cmd sim.Command, reason string) {
	w.addMetric(metricCommandsRejected, 1)
	actor := logging.Ref(logging.EntityKindOwner, cmd.Owner)
	if cmd.Caster != "" {
		actor = logging.Ref(logging.EntityKindOwner, cmd.Caster)
	}
	diagnostics.CommandRejected(context.Background(), w.env.Publisher, w.tick, actor, diagnostics.CommandRejectedPayload{
		Command: string(cmd.Kind),
		Target:  string(cmd.Target) + ":" + cmd.Definition,
		Reason:  reason,
	}, map[string]any{"commandId": cmd.ID, "owner": cmd.Owner, "stage": "dispatch"})
}
