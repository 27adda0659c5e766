package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/qiboda/atom-sub003/internal/attribute"
	"github.com/qiboda/atom-sub003/internal/content"
	"github.com/qiboda/atom-sub003/internal/gating"
	"github.com/qiboda/atom-sub003/internal/tag"
	"github.com/qiboda/atom-sub003/internal/telemetry"
)

var quietLog = telemetry.LoggerFunc(func(string, ...any) {})

type memorySource struct {
	path string
	data []byte
	err  error
}

func (m memorySource) Load() ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]byte(nil), m.data...), nil
}

func (m memorySource) Path() string {
	return m.path
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func newTemplates(t *testing.T, table *tag.Table) *content.Registry {
	t.Helper()
	reg, err := content.Default(table)
	if err != nil {
		t.Fatalf("build templates: %v", err)
	}
	return reg
}

func resolve(t *testing.T, table *tag.Table, sources ...source) (*Resolver, error) {
	t.Helper()
	return NewResolver(table, newTemplates(t, table), quietLog, sources...)
}

func TestResolverLoadArray(t *testing.T) {
	table := tag.NewTable()
	data := mustMarshal([]map[string]any{
		{
			"id":    "heal",
			"kind":  "ability",
			"graph": content.ChannelHeal,
			"gates": map[string]any{
				"start": map[string]any{"disable": []any{map[string]any{"tags": []string{"stunned"}}}},
			},
			"grants": []any{map[string]any{"tags": []string{"focused"}, "count": 2, "revert": "no"}},
		},
		{
			"id":           "poison",
			"kind":         "buff",
			"graph":        content.Poison,
			"maxLayer":     4,
			"duration":     3,
			"loopInterval": 1,
		},
		{
			"id":        "hero",
			"kind":      "owner",
			"archetype": "caster",
			"abilities": []string{"heal", "heal"},
		},
	})

	r, err := resolve(t, table, memorySource{path: "memory", data: data})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	lib := r.Library()

	heal, ok := lib.Ability("heal")
	if !ok {
		t.Fatalf("expected heal ability")
	}
	stunned := tag.Must(tag.New(table.Intern("stunned")))
	owner := tag.NewCountContainer()
	if !heal.Gates.CanStart(owner) {
		t.Fatalf("heal should start without stunned")
	}
	owner.Add(stunned)
	if heal.Gates.CanStart(owner) {
		t.Fatalf("stunned should disable heal")
	}
	grants := heal.Ledger.Added()
	if len(grants) != 1 || grants[0].Count != 2 || grants[0].Revert != gating.RevertNo {
		t.Fatalf("unexpected grants %+v", grants)
	}

	poison, ok := lib.Buff("poison")
	if !ok {
		t.Fatalf("expected poison buff")
	}
	if poison.MaxLayer != 4 || poison.Duration != 3 || poison.LoopInterval != 1 {
		t.Fatalf("unexpected poison def %+v", poison)
	}

	owners := r.Owners()
	if len(owners) != 1 {
		t.Fatalf("expected one owner seed, got %d", len(owners))
	}
	if owners[0].Archetype != attribute.ArchetypeCaster {
		t.Fatalf("expected caster archetype, got %v", owners[0].Archetype)
	}
	if len(owners[0].Abilities) != 1 {
		t.Fatalf("duplicate ability ids should collapse, got %v", owners[0].Abilities)
	}
}

func TestResolverObjectSyntax(t *testing.T) {
	table := tag.NewTable()
	data := mustMarshal(map[string]any{
		"stun": map[string]any{
			"kind":     "buff",
			"graph":    content.Stun,
			"maxLayer": 1,
			"grants":   []any{map[string]any{"tags": []string{"stunned"}}},
		},
		"charges": map[string]any{
			"kind":     "buff",
			"graph":    content.Charges,
			"maxLayer": 3,
			"grants": []any{map[string]any{
				"tags": []string{"charge"},
				"kind": "generic",
				"data": "arcane",
			}},
		},
	})

	r, err := resolve(t, table, memorySource{path: "memory", data: data})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ids := r.Library().BuffIDs()
	if len(ids) != 2 || ids[0] != "charges" || ids[1] != "stun" {
		t.Fatalf("unexpected buff ids %v", ids)
	}

	charges, _ := r.Library().Buff("charges")
	grants := charges.Ledger.Added()
	if len(grants) != 1 || grants[0].Tag.Kind() != tag.KindGeneric || grants[0].Tag.Data() != "arcane" {
		t.Fatalf("unexpected generic grant %+v", grants)
	}

	doc, ok := r.Entry("stun")
	if !ok || doc.ID != "stun" {
		t.Fatalf("object key should become the entry id, got %+v", doc)
	}
}

func TestResolverObjectSyntaxRejectsMismatchedID(t *testing.T) {
	data := mustMarshal(map[string]any{
		"stun": map[string]any{"id": "other", "kind": "buff", "graph": content.Stun, "maxLayer": 1},
	})
	if _, err := resolve(t, tag.NewTable(), memorySource{path: "memory", data: data}); err == nil {
		t.Fatalf("expected id mismatch error")
	}
}

func TestResolverReloadOverrides(t *testing.T) {
	table := tag.NewTable()
	base := memorySource{path: "base", data: mustMarshal([]map[string]any{
		{"id": "poison", "kind": "buff", "graph": content.Poison, "maxLayer": 2},
	})}
	overlay := memorySource{path: "overlay", data: mustMarshal([]map[string]any{
		{"id": "poison", "kind": "buff", "graph": content.Poison, "maxLayer": 9},
	})}

	r, err := resolve(t, table, base, overlay)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	poison, _ := r.Library().Buff("poison")
	if poison.MaxLayer != 9 {
		t.Fatalf("later source should win, got max layer %d", poison.MaxLayer)
	}

	before := r.Library()
	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if r.Library() == before {
		t.Fatalf("reload should build a fresh library")
	}
}

func TestResolverRejectsInvalidEntries(t *testing.T) {
	cases := map[string]struct {
		entries []map[string]any
		want    error
	}{
		"unknown graph": {
			entries: []map[string]any{{"id": "x", "kind": "ability", "graph": "missing"}},
			want:    ErrUnknownGraph,
		},
		"ability on buff graph": {
			entries: []map[string]any{{"id": "x", "kind": "ability", "graph": content.Poison}},
			want:    ErrKindMismatch,
		},
		"buff on ability graph": {
			entries: []map[string]any{{"id": "x", "kind": "buff", "graph": content.Enrage, "maxLayer": 1}},
			want:    ErrKindMismatch,
		},
		"zero max layer": {
			entries: []map[string]any{{"id": "x", "kind": "buff", "graph": content.Poison}},
			want:    ErrInvalidEntry,
		},
		"missing graph": {
			entries: []map[string]any{{"id": "x", "kind": "ability"}},
			want:    ErrInvalidEntry,
		},
		"unknown kind": {
			entries: []map[string]any{{"id": "x", "kind": "spell", "graph": content.Enrage}},
			want:    ErrInvalidEntry,
		},
		"bad revert": {
			entries: []map[string]any{{
				"id": "x", "kind": "ability", "graph": content.Enrage,
				"grants": []any{map[string]any{"tags": []string{"a"}, "revert": "maybe"}},
			}},
			want: ErrInvalidEntry,
		},
		"empty tag": {
			entries: []map[string]any{{
				"id": "x", "kind": "ability", "graph": content.Enrage,
				"gates": map[string]any{"start": map[string]any{"required": []any{map[string]any{"tags": []string{}}}}},
			}},
			want: tag.ErrEmpty,
		},
		"uncomparable payload": {
			entries: []map[string]any{{
				"id": "x", "kind": "ability", "graph": content.Enrage,
				"grants": []any{map[string]any{"tags": []string{"a"}, "kind": "generic", "data": map[string]any{"k": 1}}},
			}},
			want: tag.ErrPayload,
		},
		"negative strip": {
			entries: []map[string]any{{
				"id": "x", "kind": "ability", "graph": content.Enrage,
				"strips": []any{map[string]any{"tags": []string{"a"}, "count": -1}},
			}},
			want: ErrInvalidEntry,
		},
		"owner grants unknown ability": {
			entries: []map[string]any{{"id": "hero", "kind": "owner", "abilities": []string{"missing"}}},
			want:    ErrUnknownReference,
		},
		"owner archetype": {
			entries: []map[string]any{{"id": "hero", "kind": "owner", "archetype": "dragon"}},
			want:    ErrInvalidEntry,
		},
		"duplicate id": {
			entries: []map[string]any{
				{"id": "x", "kind": "ability", "graph": content.Enrage},
				{"id": "x", "kind": "ability", "graph": content.Enrage},
			},
			want: ErrInvalidEntry,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := resolve(t, tag.NewTable(), memorySource{path: "memory", data: mustMarshal(tc.entries)})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestResolverSourceErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := resolve(t, tag.NewTable(), memorySource{path: "memory", err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, err := resolve(t, tag.NewTable(), memorySource{path: "memory", data: []byte("42")}); err == nil {
		t.Fatalf("expected parse error")
	}
	r, err := resolve(t, tag.NewTable(), memorySource{path: "memory", data: []byte("  ")})
	if err != nil {
		t.Fatalf("blank source should be empty: %v", err)
	}
	if len(r.Library().AbilityIDs()) != 0 {
		t.Fatalf("expected empty library")
	}
}

func TestLoadIgnoresMissingFiles(t *testing.T) {
	table := tag.NewTable()
	r, err := Load(table, newTemplates(t, table), quietLog, filepath.Join(t.TempDir(), "missing.json"), " ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.Library() == nil {
		t.Fatalf("expected an empty library")
	}
}

func TestNewResolverRequiresDependencies(t *testing.T) {
	if _, err := NewResolver(nil, content.NewRegistry(), nil); err == nil {
		t.Fatalf("expected error without tag table")
	}
}

func TestDefaultCatalogResolves(t *testing.T) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("failed to determine caller path")
	}
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	defer func() {
		_ = os.Chdir(cwd)
	}()
	if err := os.Chdir(repoRoot); err != nil {
		t.Fatalf("failed to change directory to repo root: %v", err)
	}

	table := tag.NewTable()
	r, err := Load(table, newTemplates(t, table), quietLog, DefaultPaths()...)
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	if len(r.Library().AbilityIDs()) == 0 || len(r.Library().BuffIDs()) == 0 {
		t.Fatalf("default catalog should define abilities and buffs")
	}
	if len(r.Owners()) == 0 {
		t.Fatalf("default catalog should seed owners")
	}
}
