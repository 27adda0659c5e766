package tag

import (
	"strings"
	"sync"
)

// Tag is an interned name atom. The zero value is invalid and never issued by
// a Table.
type Tag uint32

// None is the invalid tag handle.
const None Tag = 0

// Valid reports whether the handle was issued by a Table.
func (t Tag) Valid() bool { return t != None }

// Table interns tag names into stable handles. It is built once at startup
// and passed to whatever needs to translate names; there is no package level
// registry.
type Table struct {
	mu    sync.RWMutex
	ids   map[string]Tag
	names []string
}

// NewTable constructs a table pre-seeded with the provided names.
func NewTable(names ...string) *Table {
	t := &Table{
		ids:   make(map[string]Tag, len(names)),
		names: []string{""},
	}
	for _, name := range names {
		t.Intern(name)
	}
	return t
}

// Intern returns the handle for name, issuing a new one the first time the
// name is seen. Blank names return None.
func (t *Table) Intern(name string) Tag {
	if t == nil {
		return None
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return None
	}

	t.mu.RLock()
	id, ok := t.ids[name]
	t.mu.RUnlock()
	if ok {
		return id
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[name]; ok {
		return id
	}
	id = Tag(len(t.names))
	t.names = append(t.names, name)
	t.ids[name] = id
	return id
}

// Lookup returns the handle for an already interned name.
func (t *Table) Lookup(name string) (Tag, bool) {
	if t == nil {
		return None, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[strings.TrimSpace(name)]
	return id, ok
}

// Name returns the interned name for a handle, or "" when unknown.
func (t *Table) Name(id Tag) string {
	if t == nil || id == None {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// Len reports the number of interned names.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names) - 1
}
