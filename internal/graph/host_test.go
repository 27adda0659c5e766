package graph_test

import (
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/tag"
)

type message struct {
	node, text string
	value      any
}

// fakeHost records every capability call.
type fakeHost struct {
	tags      *tag.CountContainer
	record    *gating.Record
	attrs     *attribute.Set
	layer     int
	deltas    []int
	ends      int
	messages  []message
	modifyErr error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		tags:   tag.NewCountContainer(),
		record: gating.NewRecord(nil),
		attrs:  attribute.DefaultSet(attribute.ArchetypeDummy),
		layer:  1,
	}
}

func (h *fakeHost) TagCount(_ graph.Target, t tag.LayerTag) uint32 { return h.tags.Count(t) }

func (h *fakeHost) GrantTag(t tag.LayerTag, n int, revert gating.Revert) {
	h.record.Grant(h.tags, t, n, revert)
}

func (h *fakeHost) StripTag(t tag.LayerTag, n int) { h.tags.RemoveN(t, uint32(n)) }

func (h *fakeHost) ModifyAttribute(_ graph.Target, m attribute.Modifier) (attribute.Result, error) {
	if h.modifyErr != nil {
		return attribute.Result{}, h.modifyErr
	}
	return h.attrs.ApplyModify(m)
}

func (h *fakeHost) Layer() int            { return h.layer }
func (h *fakeHost) ChangeLayer(delta int) { h.deltas = append(h.deltas, delta) }
func (h *fakeHost) RequestEnd()           { h.ends++ }

func (h *fakeHost) Emit(node, text string, value any) {
	h.messages = append(h.messages, message{node: node, text: text, value: value})
}
