package gating

import (
	"fmt"
	"strings"

	"github.com/qiboda/atom-sub003/internal/invariant"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
)

// Revert decides whether ending the granting ability or buff undoes a grant.
type Revert uint8

const (
	RevertYes Revert = iota
	RevertNo
)

func (r Revert) String() string {
	if r == RevertNo {
		return "no"
	}
	return "yes"
}

// ParseRevert maps the catalog spelling of a revert flag. Blank selects
// RevertYes.
func ParseRevert(value string) (Revert, bool) {
	switch value {
	case "", "yes", "true":
		return RevertYes, true
	case "no", "false":
		return RevertNo, true
	default:
		return RevertYes, false
	}
}

// TagWriter is the write side of an owner's tag state.
type TagWriter interface {
	AddN(tag.LayerTag, uint32)
	RemoveN(tag.LayerTag, uint32)
}

// Grant is one Added entry.
type Grant struct {
	Tag    tag.LayerTag
	Count  uint32
	Revert Revert
}

// Ledger lists what an ability or buff grants to and strips from its owner
// while active. Added entries are split by revert flag so the same tag can be
// granted both ways by one definition.
type Ledger struct {
	revertible *tag.CountContainer
	permanent  *tag.CountContainer
	Removed    *tag.CountContainer
	logger     telemetry.Logger
}

// NewLedger returns an empty ledger. A nil logger reports contract
// violations through the default logger.
func NewLedger(logger telemetry.Logger) *Ledger {
	return &Ledger{
		revertible: tag.NewCountContainer(),
		permanent:  tag.NewCountContainer(),
		Removed:    tag.NewCountContainer(),
		logger:     logger,
	}
}

// Add records a grant of n copies of t. n must be positive.
func (l *Ledger) Add(t tag.LayerTag, n int, revert Revert) {
	if !checkCount(l.logger, "ledger add", t, n) {
		return
	}
	if revert == RevertNo {
		l.permanent.AddN(t, uint32(n))
		return
	}
	l.revertible.AddN(t, uint32(n))
}

// Strip records an unconditional removal of n copies of t on activation.
func (l *Ledger) Strip(t tag.LayerTag, n int) {
	if !checkCount(l.logger, "ledger strip", t, n) {
		return
	}
	l.Removed.AddN(t, uint32(n))
}

// Added lists every grant, revertible entries first.
func (l *Ledger) Added() []Grant {
	var out []Grant
	for _, e := range l.revertible.Entries() {
		out = append(out, Grant{Tag: e.Tag, Count: e.Count, Revert: RevertYes})
	}
	for _, e := range l.permanent.Entries() {
		out = append(out, Grant{Tag: e.Tag, Count: e.Count, Revert: RevertNo})
	}
	return out
}

// Clone deep-copies the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return NewLedger(nil)
	}
	return &Ledger{
		revertible: l.revertible.Clone(),
		permanent:  l.permanent.Clone(),
		Removed:    l.Removed.Clone(),
		logger:     l.logger,
	}
}

// Apply writes the ledger into owner and returns the record needed to revert
// it. Grants are applied before strips.
func (l *Ledger) Apply(owner TagWriter) *Record {
	if l == nil {
		return &Record{}
	}
	record := &Record{logger: l.logger}
	if owner == nil {
		return record
	}
	for _, g := range l.Added() {
		record.grant(owner, g.Tag, g.Count, g.Revert)
	}
	for _, e := range l.Removed.Entries() {
		owner.RemoveN(e.Tag, e.Count)
	}
	return record
}

// Record remembers exactly which revertible grants one activation made so
// that ending it decrements the same counts, independent of other grants of
// the same tag.
type Record struct {
	pending *tag.CountContainer
	logger  telemetry.Logger
}

// NewRecord returns an empty record for grants made outside a ledger.
func NewRecord(logger telemetry.Logger) *Record {
	return &Record{logger: logger}
}

// Grant adds n copies of t to owner and remembers them when revert is
// RevertYes. n must be positive.
func (r *Record) Grant(owner TagWriter, t tag.LayerTag, n int, revert Revert) {
	if r == nil || owner == nil {
		return
	}
	if !checkCount(r.logger, "grant", t, n) {
		return
	}
	r.grant(owner, t, uint32(n), revert)
}

func (r *Record) grant(owner TagWriter, t tag.LayerTag, n uint32, revert Revert) {
	owner.AddN(t, n)
	if revert == RevertNo {
		return
	}
	if r.pending == nil {
		r.pending = tag.NewCountContainer()
	}
	r.pending.AddN(t, n)
}

// Pending lists the grants Revert would undo.
func (r *Record) Pending() []tag.Entry {
	if r == nil {
		return nil
	}
	return r.pending.Entries()
}

// Revert decrements owner by every remembered grant. It is idempotent.
func (r *Record) Revert(owner TagWriter) {
	if r == nil || owner == nil || r.pending == nil {
		return
	}
	for _, e := range r.pending.Entries() {
		owner.RemoveN(e.Tag, e.Count)
	}
	r.pending = nil
}

func checkCount(logger telemetry.Logger, op string, t tag.LayerTag, n int) bool {
	if n <= 0 {
		invariant.Violation(logger, "%s %s: non-positive count %d", op, t, n)
		return false
	}
	if !t.Valid() {
		invariant.Violation(logger, "%s: invalid tag", op)
		return false
	}
	return true
}

// Describe renders grants for logs.
func Describe(grants []Grant, table *tag.Table) string {
	parts := make([]string, 0, len(grants))
	for _, g := range grants {
		parts = append(parts, fmt.Sprintf("%s x%d revert=%s", g.Tag.Format(table), g.Count, g.Revert))
	}
	return strings.Join(parts, ", ")
}
