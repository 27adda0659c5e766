package catalog

import "github.com/invopop/jsonschema"

// Entry kinds accepted in the kind field.
const (
	KindAbility = "ability"
	KindBuff    = "buff"
	KindOwner   = "owner"
)

// TagDocument names one layer tag. Tags are interned by name; kind selects
// the payload family and defaults to simple.
type TagDocument struct {
	Tags    []string `json:"tags" jsonschema:"title=Tag names,description=Names interned into one layer tag. Order does not matter.,minItems=1,required"`
	Kind    string   `json:"kind,omitempty" jsonschema:"title=Tag kind,enum=simple,enum=counter,enum=generic"`
	Counter int      `json:"counter,omitempty" jsonschema:"description=Counter payload carried by counter tags. It does not take part in matching."`
	Data    any      `json:"data,omitempty" jsonschema:"description=Comparable payload of generic tags (string or number or bool)."`
}

// GrantDocument is a ledger grant: count copies of a tag, reverted when the
// activation ends unless revert is no.
type GrantDocument struct {
	TagDocument
	Count  int    `json:"count,omitempty" jsonschema:"description=Copies granted. Defaults to one.,minimum=1"`
	Revert string `json:"revert,omitempty" jsonschema:"enum=yes,enum=no,description=Whether ending the activation removes the grant."`
}

// StripDocument removes count copies of a tag on activation.
type StripDocument struct {
	TagDocument
	Count int `json:"count,omitempty" jsonschema:"description=Copies removed. Defaults to one.,minimum=1"`
}

// RequirementsDocument is one Required/Disable pair.
type RequirementsDocument struct {
	Required []TagDocument `json:"required,omitempty" jsonschema:"description=Every tag must be present on the owner."`
	Disable  []TagDocument `json:"disable,omitempty" jsonschema:"description=No tag may be present on the owner."`
}

// GatesDocument holds the start and abort requirements.
type GatesDocument struct {
	Start RequirementsDocument `json:"start,omitempty"`
	Abort RequirementsDocument `json:"abort,omitempty"`
}

// EntryDocument is one catalog entry as it appears on disk. Ability and buff
// entries reference a built-in graph template; owner entries seed the world
// at startup.
type EntryDocument struct {
	ID    string `json:"id" jsonschema:"title=Entry id,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	Kind  string `json:"kind" jsonschema:"title=Entry kind,enum=ability,enum=buff,enum=owner,required"`
	Graph string `json:"graph,omitempty" jsonschema:"title=Graph template,description=Name of the built-in graph template. Required for abilities and buffs."`

	Gates  GatesDocument   `json:"gates,omitempty"`
	Grants []GrantDocument `json:"grants,omitempty" jsonschema:"description=Tags added to the owner while active."`
	Strips []StripDocument `json:"strips,omitempty" jsonschema:"description=Tags removed from the owner on activation. Never restored."`

	MaxLayer       int     `json:"maxLayer,omitempty" jsonschema:"description=Buff stack limit.,minimum=1"`
	StackPerApply  int     `json:"stackPerApply,omitempty" jsonschema:"description=Layers added when an applied buff is applied again. Defaults to one."`
	RefreshOnApply bool    `json:"refreshOnApply,omitempty" jsonschema:"description=Restart the buff duration when applied again."`
	Duration       float64 `json:"duration,omitempty" jsonschema:"description=Buff duration in seconds. Zero never expires.,minimum=0"`
	LoopInterval   float64 `json:"loopInterval,omitempty" jsonschema:"description=Seconds between looper firings. Zero disables the looper.,minimum=0"`

	Archetype string   `json:"archetype,omitempty" jsonschema:"title=Owner archetype,enum=hero,enum=brute,enum=caster,enum=dummy"`
	Abilities []string `json:"abilities,omitempty" jsonschema:"description=Ability ids granted to a seeded owner."`
}

// FileDefinitions is the canonical array form of a catalog file. The loader
// also accepts an object keyed by entry id.
type FileDefinitions []EntryDocument

// Schema describes both accepted file layouts for editor tooling.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	entry := reflector.Reflect(new(EntryDocument))
	entry.Version = ""
	entry.Title = "Catalog Entry"
	entry.Description = "Ability, buff or owner seed resolved against the built-in graph templates."

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Effect Graph Catalog",
		Description: "Validates entries in config/definitions.json",
		OneOf: []*jsonschema.Schema{
			{
				Type:        "array",
				Title:       "Array Catalog",
				Description: "Catalog expressed as an array of entries.",
				Items:       entry,
			},
			{
				Type:                 "object",
				Title:                "Object Catalog",
				Description:          "Catalog expressed as an object keyed by entry id.",
				AdditionalProperties: entry,
			},
		},
	}
}
