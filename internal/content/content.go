// Package content holds the built-in effect graph templates. Catalog entries
// reference them by name.
package content

import (
	"errors"
	"fmt"
	"sort"

	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/tag"
)

var (
	// ErrDuplicateTemplate is returned when a name is registered twice.
	ErrDuplicateTemplate = errors.New("content: duplicate template")
	// ErrNilTemplate is returned when Register receives nil.
	ErrNilTemplate = errors.New("content: nil template")
)

// Template names of the built-in graphs.
const (
	ChannelHeal  = "channel_heal"
	BattleStance = "battle_stance"
	Enrage       = "enrage"
	Poison       = "poison"
	Stun         = "stun"
	Regeneration = "regeneration"
	Charges      = "charges"
	Fortify      = "fortify"
)

// Tag names the built-in graphs read or grant.
const (
	TagStunned       = "stunned"
	TagChanneling    = "channeling"
	TagStanceTrained = "stance_trained"
)

// Registry indexes frozen templates by name. It is populated at startup and
// read-only afterwards.
type Registry struct {
	templates map[string]*graph.Template
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*graph.Template)}
}

// Register adds tmpl under its own name.
func (r *Registry) Register(tmpl *graph.Template) error {
	if tmpl == nil {
		return ErrNilTemplate
	}
	if _, dup := r.templates[tmpl.Name()]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTemplate, tmpl.Name())
	}
	r.templates[tmpl.Name()] = tmpl
	return nil
}

// Template returns the template registered as name.
func (r *Registry) Template(name string) (*graph.Template, bool) {
	if r == nil {
		return nil, false
	}
	tmpl, ok := r.templates[name]
	return tmpl, ok
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type buildFunc func(*tag.Table) (*graph.Template, error)

var builtins = []buildFunc{
	channelHeal,
	battleStance,
	enrage,
	poison,
	stun,
	regeneration,
	charges,
	fortify,
}

// Default builds every built-in template, interning the tags they use in
// table.
func Default(table *tag.Table) (*Registry, error) {
	reg := NewRegistry()
	var errs []error
	for _, build := range builtins {
		tmpl, err := build(table)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := reg.Register(tmpl); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return reg, nil
}

func simpleTag(table *tag.Table, name string) (tag.LayerTag, error) {
	return tag.New(table.Intern(name))
}
