package tag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

var (
	// ErrEmpty is returned when a layer tag is constructed without any valid tag.
	ErrEmpty = errors.New("tag: layer tag requires at least one tag")
	// ErrPayload is returned when a generic layer tag carries a payload that
	// cannot be compared.
	ErrPayload = errors.New("tag: generic payload must be a non-nil comparable value")
)

// Kind selects the payload family of a LayerTag. Layer tags of different
// kinds never match, even with identical tag sets.
type Kind uint8

const (
	KindSimple Kind = iota
	KindCounter
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindCounter:
		return "counter"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// ParseKind maps the catalog spelling of a kind back to its value. Blank
// input selects KindSimple.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "simple":
		return KindSimple, true
	case "counter":
		return KindCounter, true
	case "generic":
		return KindGeneric, true
	default:
		return KindSimple, false
	}
}

// LayerTag is an ordered, de-duplicated set of tags describing one semantic
// condition, plus a kind specific payload. Values are immutable.
type LayerTag struct {
	kind    Kind
	tags    []Tag
	counter int
	data    any
}

// Key is the hashable identity of a LayerTag. It only carries the fields
// that take part in ExactMatch, so the counter payload is left out.
type Key struct {
	kind Kind
	tags string
	data any
}

// New constructs a simple layer tag.
func New(tags ...Tag) (LayerTag, error) {
	set, err := normalize(tags)
	if err != nil {
		return LayerTag{}, err
	}
	return LayerTag{kind: KindSimple, tags: set}, nil
}

// NewCounter constructs a counter layer tag. The counter travels with the
// tag but does not affect matching.
func NewCounter(counter int, tags ...Tag) (LayerTag, error) {
	set, err := normalize(tags)
	if err != nil {
		return LayerTag{}, err
	}
	return LayerTag{kind: KindCounter, tags: set, counter: counter}, nil
}

// NewGeneric constructs a parametrized layer tag whose payload is part of its
// identity. The payload must be comparable with == all the way down, so an
// interface field holding a slice is rejected too.
func NewGeneric(data any, tags ...Tag) (LayerTag, error) {
	if data == nil || !reflect.ValueOf(data).Comparable() {
		return LayerTag{}, ErrPayload
	}
	set, err := normalize(tags)
	if err != nil {
		return LayerTag{}, err
	}
	return LayerTag{kind: KindGeneric, tags: set, data: data}, nil
}

// Must panics when err is non-nil. Useful for fixtures and tests.
func Must(l LayerTag, err error) LayerTag {
	if err != nil {
		panic(err)
	}
	return l
}

func normalize(tags []Tag) ([]Tag, error) {
	set := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if t.Valid() {
			set = append(set, t)
		}
	}
	if len(set) == 0 {
		return nil, ErrEmpty
	}
	slices.Sort(set)
	return slices.Compact(set), nil
}

// Valid reports whether the layer tag was built by one of the constructors.
func (l LayerTag) Valid() bool { return len(l.tags) > 0 }

// Kind returns the payload family.
func (l LayerTag) Kind() Kind { return l.kind }

// Tags returns a copy of the sorted tag set.
func (l LayerTag) Tags() []Tag { return slices.Clone(l.tags) }

// Counter returns the counter payload; zero for other kinds.
func (l LayerTag) Counter() int { return l.counter }

// Data returns the generic payload; nil for other kinds.
func (l LayerTag) Data() any { return l.data }

// Contains reports whether t is part of the tag set.
func (l LayerTag) Contains(t Tag) bool {
	_, found := slices.BinarySearch(l.tags, t)
	return found
}

// ExactMatch reports whether both layer tags name the same condition: equal
// kinds, equal tag sets, and equal payloads for generic tags.
func (l LayerTag) ExactMatch(other LayerTag) bool {
	if l.kind != other.kind || !slices.Equal(l.tags, other.tags) {
		return false
	}
	if l.kind == KindGeneric {
		return l.data == other.data
	}
	return true
}

// Key returns the identity used by containers.
func (l LayerTag) Key() Key {
	buf := make([]byte, 4*len(l.tags))
	for i, t := range l.tags {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(t))
	}
	key := Key{kind: l.kind, tags: string(buf)}
	if l.kind == KindGeneric {
		key.data = l.data
	}
	return key
}

// Format renders the layer tag using names from table, falling back to the
// numeric handles when table is nil.
func (l LayerTag) Format(table *Table) string {
	parts := make([]string, 0, len(l.tags))
	for _, t := range l.tags {
		name := table.Name(t)
		if name == "" {
			name = fmt.Sprintf("#%d", t)
		}
		parts = append(parts, name)
	}
	out := strings.Join(parts, "+")
	switch l.kind {
	case KindCounter:
		out = fmt.Sprintf("%s(%d)", out, l.counter)
	case KindGeneric:
		out = fmt.Sprintf("%s<%v>", out, l.data)
	}
	return out
}

func (l LayerTag) String() string { return l.Format(nil) }
