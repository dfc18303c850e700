package anchor

import (
	"sort"
	"sync"
)

// Deduplicator is the set of labels anchored in the current session.
type Deduplicator struct {
	mu     sync.Mutex
	placed map[string]struct{}
}

// NewDeduplicator returns an empty set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{placed: make(map[string]struct{})}
}

// TryClaim inserts label and reports whether it was absent. The check and the
// insert happen under one lock.
func (d *Deduplicator) TryClaim(label string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.placed[label]; ok {
		return false
	}
	d.placed[label] = struct{}{}
	return true
}

// Release removes label so it can be claimed again.
func (d *Deduplicator) Release(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.placed, label)
}

// Contains reports whether label is claimed.
func (d *Deduplicator) Contains(label string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.placed[label]
	return ok
}

// Reset clears every claim.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.placed = make(map[string]struct{})
}

// Labels returns the claimed labels in sorted order.
func (d *Deduplicator) Labels() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.placed))
	for l := range d.placed {
		out = append(out, l)
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}
