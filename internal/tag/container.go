package tag

import (
	"fmt"
	"log"
	"math"
	"sort"
)

// Underflow describes a removal that asked for more than the container held.
// The container clamps the count to zero and reports the event; it is never
// treated as a hard failure because removals can race grants within a tick.
type Underflow struct {
	Tag       LayerTag
	Count     uint32
	Requested uint32
}

// UnderflowFunc receives underflow diagnostics.
type UnderflowFunc func(Underflow)

// Entry is an exported view of one container slot.
type Entry struct {
	Tag   LayerTag
	Count uint32
}

type slot struct {
	tag   LayerTag
	count uint32
}

// CountContainer is a reference counted multiset of layer tags keyed by exact
// match identity. Counts never go negative and Exists is true iff the count
// is positive. It is not safe for concurrent use; one owner's container is
// mutated from the simulation goroutine only.
type CountContainer struct {
	slots       map[Key]*slot
	onUnderflow UnderflowFunc
}

// NewCountContainer constructs an empty container.
func NewCountContainer() *CountContainer {
	return &CountContainer{slots: make(map[Key]*slot)}
}

// SetUnderflowHandler installs the diagnostic hook used when a removal would
// drive a count below zero. A nil handler falls back to the standard logger.
func (c *CountContainer) SetUnderflowHandler(fn UnderflowFunc) {
	if c == nil {
		return
	}
	c.onUnderflow = fn
}

// Add increments the count for t.
func (c *CountContainer) Add(t LayerTag) {
	c.AddN(t, 1)
}

// AddN increments the count for t by n, saturating at math.MaxUint32.
// Invalid tags and n == 0 are ignored.
func (c *CountContainer) AddN(t LayerTag, n uint32) {
	if c == nil || n == 0 || !t.Valid() {
		return
	}
	c.ensureInit()
	key := t.Key()
	s, ok := c.slots[key]
	if !ok {
		s = &slot{tag: t}
		c.slots[key] = s
	}
	if s.count > math.MaxUint32-n {
		s.count = math.MaxUint32
		return
	}
	s.count += n
}

// Remove decrements the count for t.
func (c *CountContainer) Remove(t LayerTag) {
	c.RemoveN(t, 1)
}

// RemoveN decrements the count for t by n, clamping at zero. A clamp reports
// an Underflow diagnostic.
func (c *CountContainer) RemoveN(t LayerTag, n uint32) {
	if c == nil || n == 0 || !t.Valid() {
		return
	}
	c.ensureInit()
	key := t.Key()
	s, ok := c.slots[key]
	var have uint32
	if ok {
		have = s.count
	}
	if have < n {
		c.reportUnderflow(Underflow{Tag: t, Count: have, Requested: n})
		delete(c.slots, key)
		return
	}
	s.count -= n
	if s.count == 0 {
		delete(c.slots, key)
	}
}

// Exists reports whether the count for t is positive.
func (c *CountContainer) Exists(t LayerTag) bool {
	return c.Count(t) > 0
}

// Count returns the current count for t.
func (c *CountContainer) Count(t LayerTag) uint32 {
	if c == nil || c.slots == nil || !t.Valid() {
		return 0
	}
	if s, ok := c.slots[t.Key()]; ok {
		return s.count
	}
	return 0
}

// Reset clears every count.
func (c *CountContainer) Reset() {
	if c == nil {
		return
	}
	c.slots = make(map[Key]*slot)
}

// Len reports the number of tags with a positive count.
func (c *CountContainer) Len() int {
	if c == nil {
		return 0
	}
	return len(c.slots)
}

// Each visits every present tag in a deterministic order until fn returns
// false.
func (c *CountContainer) Each(fn func(LayerTag, uint32) bool) {
	for _, e := range c.Entries() {
		if !fn(e.Tag, e.Count) {
			return
		}
	}
}

// Entries returns the present tags in a deterministic order.
func (c *CountContainer) Entries() []Entry {
	if c == nil || len(c.slots) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(c.slots))
	for _, s := range c.slots {
		out = append(out, Entry{Tag: s.tag, Count: s.count})
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey(out[i].Tag.Key(), out[j].Tag.Key())
	})
	return out
}

// Clone returns an independent copy. The underflow handler is not copied;
// clones are read-only snapshots.
func (c *CountContainer) Clone() *CountContainer {
	clone := NewCountContainer()
	if c == nil {
		return clone
	}
	for key, s := range c.slots {
		clone.slots[key] = &slot{tag: s.tag, count: s.count}
	}
	return clone
}

func (c *CountContainer) ensureInit() {
	if c.slots == nil {
		c.slots = make(map[Key]*slot)
	}
}

func (c *CountContainer) reportUnderflow(u Underflow) {
	if c.onUnderflow != nil {
		c.onUnderflow(u)
		return
	}
	log.Printf("[tags] underflow removing %s: have=%d requested=%d", u.Tag, u.Count, u.Requested)
}

func lessKey(a, b Key) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if a.tags != b.tags {
		return a.tags < b.tags
	}
	return fmt.Sprint(a.data) < fmt.Sprint(b.data)
}
