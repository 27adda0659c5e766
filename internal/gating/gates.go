// Package gating holds the tag containers an ability or buff carries: the
// Required/Disable requirement sets tested before Start and Abort, and the
// Added/Removed ledger it applies to its owner while active.
package gating

import "github.com/qiboda/atom-sub003/internal/tag"

// TagReader is the read side of an owner's tag state.
type TagReader interface {
	Exists(tag.LayerTag) bool
}

// Requirements pairs the tags that must be present with the tags that must
// be absent.
type Requirements struct {
	Required *tag.CountContainer
	Disable  *tag.CountContainer
}

// NewRequirements returns empty requirement sets.
func NewRequirements() Requirements {
	return Requirements{
		Required: tag.NewCountContainer(),
		Disable:  tag.NewCountContainer(),
	}
}

// Satisfied reports whether every Required tag exists in owner and no Disable
// tag does. A nil owner satisfies only empty requirements.
func (r Requirements) Satisfied(owner TagReader) bool {
	for _, e := range r.Required.Entries() {
		if owner == nil || !owner.Exists(e.Tag) {
			return false
		}
	}
	for _, e := range r.Disable.Entries() {
		if owner != nil && owner.Exists(e.Tag) {
			return false
		}
	}
	return true
}

// Empty reports whether no requirement is configured.
func (r Requirements) Empty() bool {
	return r.Required.Len() == 0 && r.Disable.Len() == 0
}

// Clone deep-copies both sets.
func (r Requirements) Clone() Requirements {
	return Requirements{Required: r.Required.Clone(), Disable: r.Disable.Clone()}
}

// Gates is the read-only precondition half of an ability or buff.
type Gates struct {
	Start Requirements
	Abort Requirements
}

// NewGates returns gates that admit every command.
func NewGates() Gates {
	return Gates{Start: NewRequirements(), Abort: NewRequirements()}
}

// CanStart evaluates StartRequired and StartDisable against owner. It never
// mutates either side.
func (g Gates) CanStart(owner TagReader) bool {
	return g.Start.Satisfied(owner)
}

// CanAbort evaluates AbortRequired and AbortDisable against owner.
func (g Gates) CanAbort(owner TagReader) bool {
	return g.Abort.Satisfied(owner)
}

// Clone deep-copies the gates so definitions can be instantiated safely.
func (g Gates) Clone() Gates {
	return Gates{Start: g.Start.Clone(), Abort: g.Abort.Clone()}
}
