// Package catalog loads ability, buff and owner definitions from JSON files
// and resolves them against the built-in graph templates.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/qiboda/atom-sub003/internal/ability"
	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/graph"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
)

var (
	// ErrInvalidEntry is returned for entries that are structurally wrong.
	ErrInvalidEntry = errors.New("catalog: invalid entry")
	// ErrUnknownGraph is returned when an entry names a template that is not
	// registered.
	ErrUnknownGraph = errors.New("catalog: unknown graph template")
	// ErrKindMismatch is returned when an ability references a buff graph or
	// the other way around.
	ErrKindMismatch = errors.New("catalog: graph kind does not match entry kind")
	// ErrUnknownReference is returned when an owner seed grants an ability
	// the catalog does not define.
	ErrUnknownReference = errors.New("catalog: unknown ability reference")
)

// Templates resolves graph template names.
type Templates interface {
	Template(name string) (*graph.Template, bool)
}

type source interface {
	Load() ([]byte, error)
	Path() string
}

type fileSource struct {
	path string
}

func (f fileSource) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f fileSource) Path() string {
	return f.path
}

// OwnerSeed describes an owner created when the world starts.
type OwnerSeed struct {
	ID        string
	Archetype attribute.Archetype
	Abilities []string
}

// Resolver merges one or more catalog sources into an ability library.
// Call Reload to pick up on-disk changes; worlds keep the library they were
// built with.
type Resolver struct {
	mu        sync.RWMutex
	sources   []source
	tags      *tag.Table
	templates Templates
	logger    telemetry.Logger

	library *ability.Library
	owners  []OwnerSeed
	entries map[string]EntryDocument
}

// DefaultPaths returns the canonical catalog locations relative to the
// module root.
func DefaultPaths() []string {
	return []string{
		filepath.Join("config", "definitions.json"),
		filepath.Join("..", "config", "definitions.json"),
	}
}

// Load constructs a Resolver reading the given file paths. Missing files are
// skipped.
func Load(tags *tag.Table, templates Templates, logger telemetry.Logger, paths ...string) (*Resolver, error) {
	sources := make([]source, 0, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		sources = append(sources, fileSource{path: filepath.Clean(trimmed)})
	}
	return NewResolver(tags, templates, logger, sources...)
}

// NewResolver constructs a Resolver from arbitrary sources. Tests supply
// in-memory sources while production code uses fileSource.
func NewResolver(tags *tag.Table, templates Templates, logger telemetry.Logger, sources ...source) (*Resolver, error) {
	if tags == nil || templates == nil {
		return nil, fmt.Errorf("catalog: tag table and templates are required")
	}
	if logger == nil {
		logger = telemetry.Default()
	}
	r := &Resolver{
		sources:   append([]source(nil), sources...),
		tags:      tags,
		templates: templates,
		logger:    logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses every source. Later sources override entries with the
// same id from earlier ones.
func (r *Resolver) Reload() error {
	if r == nil {
		return nil
	}
	merged := make(map[string]EntryDocument)
	for _, src := range r.sources {
		data, err := src.Load()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("catalog: failed loading %s: %w", src.Path(), err)
		}
		documents, err := decodeEntries(data)
		if err != nil {
			return fmt.Errorf("catalog: failed parsing %s: %w", src.Path(), err)
		}
		seen := make(map[string]struct{}, len(documents))
		for _, doc := range documents {
			doc.ID = strings.TrimSpace(doc.ID)
			if doc.ID == "" {
				return fmt.Errorf("%w: entry missing id in %s", ErrInvalidEntry, src.Path())
			}
			if _, dup := seen[doc.ID]; dup {
				return fmt.Errorf("%w: duplicate id %q in %s", ErrInvalidEntry, doc.ID, src.Path())
			}
			seen[doc.ID] = struct{}{}
			merged[doc.ID] = doc
		}
	}

	library, owners, err := r.build(merged)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.library = library
	r.owners = owners
	r.entries = merged
	r.mu.Unlock()
	return nil
}

func (r *Resolver) build(entries map[string]EntryDocument) (*ability.Library, []OwnerSeed, error) {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	library := ability.NewLibrary()
	var seeds []OwnerSeed
	for _, id := range ids {
		doc := entries[id]
		switch strings.ToLower(strings.TrimSpace(doc.Kind)) {
		case KindAbility:
			def, err := r.abilityDef(doc)
			if err != nil {
				return nil, nil, err
			}
			if err := library.AddAbility(def); err != nil {
				return nil, nil, fmt.Errorf("catalog: entry %q: %w", id, err)
			}
		case KindBuff:
			def, err := r.buffDef(doc)
			if err != nil {
				return nil, nil, err
			}
			if err := library.AddBuff(def); err != nil {
				return nil, nil, fmt.Errorf("catalog: entry %q: %w", id, err)
			}
		case KindOwner:
			seed, err := ownerSeed(doc)
			if err != nil {
				return nil, nil, err
			}
			seeds = append(seeds, seed)
		default:
			return nil, nil, fmt.Errorf("%w: entry %q has kind %q", ErrInvalidEntry, id, doc.Kind)
		}
	}

	for _, seed := range seeds {
		for _, abilityID := range seed.Abilities {
			if _, ok := library.Ability(abilityID); !ok {
				return nil, nil, fmt.Errorf("%w: owner %q grants %q", ErrUnknownReference, seed.ID, abilityID)
			}
		}
	}
	return library, seeds, nil
}

func (r *Resolver) template(doc EntryDocument, want graph.Kind) (*graph.Template, error) {
	name := strings.TrimSpace(doc.Graph)
	if name == "" {
		return nil, fmt.Errorf("%w: entry %q missing graph", ErrInvalidEntry, doc.ID)
	}
	tmpl, ok := r.templates.Template(name)
	if !ok {
		return nil, fmt.Errorf("%w: entry %q references %q", ErrUnknownGraph, doc.ID, name)
	}
	if tmpl.Kind() != want {
		return nil, fmt.Errorf("%w: entry %q is a %s but %q is a %s graph", ErrKindMismatch, doc.ID, want, name, tmpl.Kind())
	}
	return tmpl, nil
}

func (r *Resolver) abilityDef(doc EntryDocument) (*ability.AbilityDef, error) {
	tmpl, err := r.template(doc, graph.KindAbility)
	if err != nil {
		return nil, err
	}
	gates, ledger, err := r.gating(doc)
	if err != nil {
		return nil, err
	}
	return &ability.AbilityDef{ID: doc.ID, Graph: tmpl, Gates: gates, Ledger: ledger}, nil
}

func (r *Resolver) buffDef(doc EntryDocument) (*ability.BuffDef, error) {
	tmpl, err := r.template(doc, graph.KindBuff)
	if err != nil {
		return nil, err
	}
	if doc.MaxLayer < 1 {
		return nil, fmt.Errorf("%w: buff %q needs maxLayer >= 1", ErrInvalidEntry, doc.ID)
	}
	if doc.StackPerApply < 0 || doc.Duration < 0 || doc.LoopInterval < 0 {
		return nil, fmt.Errorf("%w: buff %q has negative timing or stacking", ErrInvalidEntry, doc.ID)
	}
	gates, ledger, err := r.gating(doc)
	if err != nil {
		return nil, err
	}
	return &ability.BuffDef{
		ID:             doc.ID,
		Graph:          tmpl,
		Gates:          gates,
		Ledger:         ledger,
		MaxLayer:       doc.MaxLayer,
		StackPerApply:  doc.StackPerApply,
		RefreshOnApply: doc.RefreshOnApply,
		Duration:       doc.Duration,
		LoopInterval:   doc.LoopInterval,
	}, nil
}

func ownerSeed(doc EntryDocument) (OwnerSeed, error) {
	archetype, ok := attribute.ParseArchetype(doc.Archetype)
	if !ok {
		return OwnerSeed{}, fmt.Errorf("%w: owner %q has archetype %q", ErrInvalidEntry, doc.ID, doc.Archetype)
	}
	seed := OwnerSeed{ID: doc.ID, Archetype: archetype}
	for _, id := range doc.Abilities {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(seed.Abilities, id) {
			continue
		}
		seed.Abilities = append(seed.Abilities, id)
	}
	return seed, nil
}

func (r *Resolver) gating(doc EntryDocument) (gating.Gates, *gating.Ledger, error) {
	gates := gating.NewGates()
	sets := []struct {
		docs   []TagDocument
		target *tag.CountContainer
		field  string
	}{
		{doc.Gates.Start.Required, gates.Start.Required, "gates.start.required"},
		{doc.Gates.Start.Disable, gates.Start.Disable, "gates.start.disable"},
		{doc.Gates.Abort.Required, gates.Abort.Required, "gates.abort.required"},
		{doc.Gates.Abort.Disable, gates.Abort.Disable, "gates.abort.disable"},
	}
	for _, set := range sets {
		for i, td := range set.docs {
			lt, err := r.layerTag(td)
			if err != nil {
				return gating.Gates{}, nil, fmt.Errorf("%w: entry %q %s[%d]: %w", ErrInvalidEntry, doc.ID, set.field, i, err)
			}
			set.target.Add(lt)
		}
	}

	ledger := gating.NewLedger(r.logger)
	for i, g := range doc.Grants {
		lt, err := r.layerTag(g.TagDocument)
		if err != nil {
			return gating.Gates{}, nil, fmt.Errorf("%w: entry %q grants[%d]: %w", ErrInvalidEntry, doc.ID, i, err)
		}
		revert, ok := gating.ParseRevert(g.Revert)
		if !ok {
			return gating.Gates{}, nil, fmt.Errorf("%w: entry %q grants[%d]: revert %q", ErrInvalidEntry, doc.ID, i, g.Revert)
		}
		count, err := positiveCount(g.Count)
		if err != nil {
			return gating.Gates{}, nil, fmt.Errorf("%w: entry %q grants[%d]: %w", ErrInvalidEntry, doc.ID, i, err)
		}
		ledger.Add(lt, count, revert)
	}
	for i, s := range doc.Strips {
		lt, err := r.layerTag(s.TagDocument)
		if err != nil {
			return gating.Gates{}, nil, fmt.Errorf("%w: entry %q strips[%d]: %w", ErrInvalidEntry, doc.ID, i, err)
		}
		count, err := positiveCount(s.Count)
		if err != nil {
			return gating.Gates{}, nil, fmt.Errorf("%w: entry %q strips[%d]: %w", ErrInvalidEntry, doc.ID, i, err)
		}
		ledger.Strip(lt, count)
	}
	return gates, ledger, nil
}

func positiveCount(n int) (int, error) {
	switch {
	case n == 0:
		return 1, nil
	case n < 0:
		return 0, fmt.Errorf("count %d must be positive", n)
	default:
		return n, nil
	}
}

func (r *Resolver) layerTag(td TagDocument) (tag.LayerTag, error) {
	kind, ok := tag.ParseKind(td.Kind)
	if !ok {
		return tag.LayerTag{}, fmt.Errorf("tag kind %q", td.Kind)
	}
	handles := make([]tag.Tag, 0, len(td.Tags))
	for _, name := range td.Tags {
		handles = append(handles, r.tags.Intern(name))
	}
	switch kind {
	case tag.KindCounter:
		return tag.NewCounter(td.Counter, handles...)
	case tag.KindGeneric:
		return tag.NewGeneric(td.Data, handles...)
	default:
		return tag.New(handles...)
	}
}

// Library returns the definitions resolved by the last successful Reload.
func (r *Resolver) Library() *ability.Library {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.library
}

// Owners returns the owner seeds in id order.
func (r *Resolver) Owners() []OwnerSeed {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OwnerSeed, len(r.owners))
	for i, seed := range r.owners {
		seed.Abilities = slices.Clone(seed.Abilities)
		out[i] = seed
	}
	return out
}

// Entry returns the raw document for id.
func (r *Resolver) Entry(id string) (EntryDocument, bool) {
	if r == nil {
		return EntryDocument{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.entries[id]
	return doc, ok
}

func decodeEntries(data []byte) ([]EntryDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var entries []EntryDocument
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(object))
		for id := range object {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		entries := make([]EntryDocument, 0, len(ids))
		for _, id := range ids {
			var entry EntryDocument
			if err := json.Unmarshal(object[id], &entry); err != nil {
				return nil, fmt.Errorf("entry %q: %w", id, err)
			}
			if entry.ID == "" {
				entry.ID = id
			} else if entry.ID != id {
				return nil, fmt.Errorf("entry id %q does not match key %q", entry.ID, id)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unexpected json token %q", string(trimmed[:1]))
	}
}
