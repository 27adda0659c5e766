package ability

import (
	"fmt"

	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/invariant"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/logging"
	graphlog "github.com/qiboda/atom-sub003/logging/graph"
)

// maxDrainRounds bounds how many times deferred requests may re-trigger the
// graph in one call.
const maxDrainRounds = 16

// instance is the graph.Host shared by abilities and buffs. Requests that
// would re-enter the graph are queued and drained by the owner after the
// graph call returns.
type instance struct {
	id     string
	defID  string
	kind   logging.EntityKind
	owner  *Owner
	caster *Owner
	graph  *graph.Graph
	record *gating.Record
	source attribute.SourceKey

	endRequested bool
	layerDeltas  []int
	layer        func() int
}

func (in *instance) env() *Env { return in.owner.env }

func (in *instance) ref() logging.EntityRef { return logging.Ref(in.kind, in.id) }

func (in *instance) casterRef() logging.EntityRef {
	if in.caster == nil {
		return in.owner.Ref()
	}
	return in.caster.Ref()
}

func (in *instance) target(t graph.Target) *Owner {
	if t == graph.TargetCaster {
		return in.caster
	}
	return in.owner
}

func (in *instance) TagCount(t graph.Target, lt tag.LayerTag) uint32 {
	owner := in.target(t)
	if owner == nil {
		return 0
	}
	return owner.tags.Count(lt)
}

func (in *instance) GrantTag(lt tag.LayerTag, n int, revert gating.Revert) {
	in.record.Grant(in.owner.tags, lt, n, revert)
}

func (in *instance) StripTag(lt tag.LayerTag, n int) {
	if n <= 0 {
		invariant.Violation(in.env().Logger, "strip %s: non-positive count %d", in.env().format(lt), n)
		return
	}
	in.owner.tags.RemoveN(lt, uint32(n))
}

func (in *instance) ModifyAttribute(t graph.Target, m attribute.Modifier) (attribute.Result, error) {
	owner := in.target(t)
	if owner == nil {
		return attribute.Result{}, fmt.Errorf("ability: %s target missing", t)
	}
	if !m.Op.Instant() && m.Source == (attribute.SourceKey{}) {
		m.Source = in.source
	}
	return owner.attrs.ApplyModify(m)
}

func (in *instance) Layer() int {
	if in.layer == nil {
		return 0
	}
	return in.layer()
}

func (in *instance) ChangeLayer(delta int) {
	in.layerDeltas = append(in.layerDeltas, delta)
}

func (in *instance) RequestEnd() {
	in.endRequested = true
}

func (in *instance) Emit(node, text string, value any) {
	env := in.env()
	graphlog.Message(env.ctx(), env.Publisher, env.Tick(), in.ref(), in.owner.Ref(), graphlog.MessagePayload{
		Graph: in.graph.Template().Name(),
		Node:  node,
		Text:  text,
		Value: value,
	}, nil)
}

// cleanup undoes what the instance left on its owners: revertible grants
// and layered attribute modifiers. Safe to call more than once.
func (in *instance) cleanup() {
	in.record.Revert(in.owner.tags)
	in.owner.attrs.RemoveSource(in.source)
	if in.caster != nil && in.caster != in.owner {
		in.caster.attrs.RemoveSource(in.source)
	}
}
