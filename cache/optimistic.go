package cache

import "encoding/json"

// Patch is a provisional, reversible transformation of a cached value,
// applied ahead of server confirmation. Each patch captures the value
// it replaced at apply time, so overlapping patches to one entry revert
// correctly in LIFO order. Reverting a patch also discards any patches
// layered on top of it; the surviving semantics are last-writer-wins,
// reconciled by the authoritative refetch that follows a successful
// mutation.
type Patch struct {
	store *Store
	e     *entry
	prev  json.RawMessage
	done  bool
}

// ApplyPatch transforms the cached value for key and notifies
// subscribers with the provisional result. The transform receives the
// current value (nil when nothing is cached) and returns the
// provisional one. The returned Patch must be settled with exactly one
// of Commit or Revert.
func (s *Store) ApplyPatch(key string, tags []Tag, pol Policy, transform func(json.RawMessage) json.RawMessage) *Patch {
	e := s.ensure(key, tags, pol)

	e.mu.Lock()
	p := &Patch{store: s, e: e, prev: e.value}
	e.value = transform(e.value)
	e.patches = append(e.patches, p)
	next := e.value
	subs := snapshot(e)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return p
}

// Commit makes the patch permanent: its undo information is dropped and
// the provisional value stands until the next authoritative result.
func (p *Patch) Commit() {
	p.e.mu.Lock()
	defer p.e.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.e.patches = removePatch(p.e.patches, p)
}

// Revert undoes the patch: the entry's value returns to what it was
// immediately before the patch was applied, and subscribers are
// notified. Patches applied after this one are discarded with it.
func (p *Patch) Revert() {
	p.e.mu.Lock()
	if p.done {
		p.e.mu.Unlock()
		return
	}
	p.done = true

	idx := indexOfPatch(p.e.patches, p)
	if idx >= 0 {
		for _, later := range p.e.patches[idx+1:] {
			later.done = true
		}
		p.e.patches = p.e.patches[:idx]
	}
	p.e.value = p.prev
	restored := p.e.value
	subs := snapshot(p.e)
	p.e.mu.Unlock()

	for _, fn := range subs {
		fn(restored)
	}
}

func indexOfPatch(patches []*Patch, p *Patch) int {
	for i, q := range patches {
		if q == p {
			return i
		}
	}
	return -1
}

func removePatch(patches []*Patch, p *Patch) []*Patch {
	idx := indexOfPatch(patches, p)
	if idx < 0 {
		return patches
	}
	return append(patches[:idx], patches[idx+1:]...)
}
