// Package cache stores query results keyed by endpoint and parameters,
// serves them while fresh, and keeps dependent reads consistent after
// writes through tag-based invalidation. Concurrent fetches for one key
// are coalesced, and latency-sensitive writes can patch cached values
// optimistically ahead of server confirmation.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Tag labels cache entries with the mutations that can invalidate them.
type Tag string

// Fetch loads the authoritative value for an entry from the network.
type Fetch func(ctx context.Context) (json.RawMessage, error)

// Policy is the per-endpoint cache tuning.
type Policy struct {
	// TTL is how long a stored result is fresh enough to serve without
	// a network call.
	TTL time.Duration
	// Retention is how long an entry with no subscribers is kept
	// before eviction, to support rapid re-navigation.
	Retention time.Duration
	// RefetchOnFocus refetches subscribed entries when the application
	// regains focus.
	RefetchOnFocus bool
	// RefetchOnReconnect refetches subscribed entries when network
	// connectivity returns.
	RefetchOnReconnect bool
}

// DefaultPolicy matches the common endpoint tuning: one minute fresh,
// five minutes retained.
var DefaultPolicy = Policy{TTL: 60 * time.Second, Retention: 300 * time.Second}

// entry is one cached query result.
type entry struct {
	key    string
	tags   []Tag
	policy Policy

	mu        sync.Mutex
	value     json.RawMessage
	fetchedAt time.Time
	fetch     Fetch
	gen       uint64 // bumped by Invalidate; outdates in-flight fetches
	subs      map[int]func(json.RawMessage)
	nextSub   int
	patches   []*Patch
}

// Store is the cache and invalidation layer. The zero value is not
// usable; create one with New.
type Store struct {
	mu      sync.Mutex
	entries *gocache.Cache // key -> *entry, handles grace-period eviction
	byTag   map[Tag]map[string]*entry
	group   singleflight.Group
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger; default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: gocache.New(gocache.NoExpiration, time.Minute),
		byTag:   make(map[Tag]map[string]*entry),
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.entries.OnEvicted(func(key string, v any) {
		if e, ok := v.(*entry); ok {
			s.dropFromIndex(e)
		}
	})
	return s
}

// Query returns the value for key, fetching it when absent or stale.
// A fresh cached value is served without touching the network, and
// concurrent callers for one key during a pending fetch share a single
// network call.
func (s *Store) Query(ctx context.Context, key string, tags []Tag, pol Policy, fetch Fetch) (json.RawMessage, error) {
	e := s.ensure(key, tags, pol)

	e.mu.Lock()
	e.fetch = fetch
	if e.value != nil && s.now().Sub(e.fetchedAt) < pol.TTL {
		v := e.value
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check freshness: a caller that queued behind the flight
		// may find the result it wanted already stored.
		e.mu.Lock()
		if e.value != nil && s.now().Sub(e.fetchedAt) < pol.TTL {
			v := e.value
			e.mu.Unlock()
			return v, nil
		}
		gen := e.gen
		e.mu.Unlock()

		// A canceled caller's result is discarded by them, not by the
		// flight; the fetch is detached so joiners still get a value.
		raw, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.storeResult(e, raw, gen)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Publish hands the store a value fetched outside of Query, for callers
// that bypass cached reads but still carry subscriptions. When no entry
// exists for key nobody is listening and the value is dropped; otherwise
// subscribers are notified and the fetcher is recorded so invalidation
// can refetch for them.
func (s *Store) Publish(key string, fetch Fetch, raw json.RawMessage) {
	e, ok := s.lookup(key)
	if !ok {
		return
	}
	e.mu.Lock()
	e.fetch = fetch
	gen := e.gen
	e.mu.Unlock()
	s.storeResult(e, raw, gen)
}

// Peek returns the cached value for key regardless of freshness.
func (s *Store) Peek(key string) (json.RawMessage, bool) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value == nil {
		return nil, false
	}
	return e.value, true
}

// Subscription represents one consumer of a cache entry. Canceling the
// subscription lets the entry age out after its retention window.
type Subscription struct {
	store *Store
	e     *entry
	id    int
	once  sync.Once
}

// Cancel de-subscribes. Safe to call more than once.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.e.mu.Lock()
		delete(sub.e.subs, sub.id)
		remaining := len(sub.e.subs)
		sub.e.mu.Unlock()
		if remaining == 0 {
			sub.store.beginRetention(sub.e)
		}
	})
}

// Subscribe registers fn to run with the entry's value whenever it
// changes, including optimistic patches and authoritative refetches.
// While at least one subscriber exists the entry is pinned in cache.
func (s *Store) Subscribe(key string, tags []Tag, pol Policy, fn func(json.RawMessage)) *Subscription {
	e := s.ensure(key, tags, pol)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	// Pin while subscribed. Under s.mu so the pin and a racing
	// Cancel's retention decision serialize.
	s.mu.Lock()
	s.entries.Set(e.key, e, gocache.NoExpiration)
	s.mu.Unlock()
	return &Subscription{store: s, e: e, id: id}
}

// Invalidate marks every entry carrying any of the given tags as stale.
// Subscribed entries are refetched immediately and their subscribers
// notified; entries nobody is watching are simply evicted.
func (s *Store) Invalidate(ctx context.Context, tags ...Tag) {
	for _, e := range s.taggedEntries(tags) {
		e.mu.Lock()
		watched := len(e.subs) > 0
		fetch := e.fetch
		e.fetchedAt = time.Time{} // stale either way
		e.gen++                   // outdate any fetch already in flight
		e.mu.Unlock()

		// A flight that began before the mutation must not absorb the
		// refetch (or later queries) into its pre-mutation result.
		s.group.Forget(e.key)

		if !watched {
			s.evict(e.key)
			continue
		}
		if fetch == nil {
			// Watched but never fetched: stays stale until queried.
			continue
		}
		s.log.Debug().Str("key", e.key).Msg("invalidated, refetching")
		go s.refetch(ctx, e, fetch)
	}
}

// NotifyFocus refetches subscribed entries configured to refresh when
// the application regains focus.
func (s *Store) NotifyFocus(ctx context.Context) { s.refetchWhere(ctx, func(p Policy) bool { return p.RefetchOnFocus }) }

// NotifyReconnect refetches subscribed entries configured to refresh
// when network connectivity returns.
func (s *Store) NotifyReconnect(ctx context.Context) {
	s.refetchWhere(ctx, func(p Policy) bool { return p.RefetchOnReconnect })
}

func (s *Store) refetchWhere(ctx context.Context, want func(Policy) bool) {
	for _, key := range s.keys() {
		e, ok := s.lookup(key)
		if !ok || !want(e.policy) {
			continue
		}
		e.mu.Lock()
		watched := len(e.subs) > 0
		fetch := e.fetch
		e.mu.Unlock()
		if watched && fetch != nil {
			go s.refetch(ctx, e, fetch)
		}
	}
}

// refetch loads the authoritative value and distributes it. Coalesced
// with Query flights for the same key.
func (s *Store) refetch(ctx context.Context, e *entry, fetch Fetch) {
	_, err, _ := s.group.Do(e.key, func() (any, error) {
		e.mu.Lock()
		gen := e.gen
		e.mu.Unlock()

		raw, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.storeResult(e, raw, gen)
		return raw, nil
	})
	if err != nil {
		s.log.Debug().Str("key", e.key).Err(err).Msg("refetch failed")
	}
}

// storeResult records an authoritative value: pending optimistic
// patches are superseded and subscribers are notified. A result whose
// fetch began before the entry's latest invalidation is dropped; the
// invalidation's own refetch owns the entry now.
func (s *Store) storeResult(e *entry, raw json.RawMessage, gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.value = raw
	e.fetchedAt = s.now()
	e.patches = nil
	watched := len(e.subs) > 0
	subs := snapshot(e)
	e.mu.Unlock()

	// Each stored result restarts the grace period of an unwatched
	// entry; a hot one stays resident past its creation-time window.
	if !watched {
		s.beginRetention(e)
	}
	for _, fn := range subs {
		fn(raw)
	}
}

// ensure returns the entry for key, creating it if needed. Tags and
// policy are fixed at creation; later callers for the same key are
// expected to agree on them (one endpoint, one declaration).
func (s *Store) ensure(key string, tags []Tag, pol Policy) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.entries.Get(key); ok {
		return v.(*entry)
	}
	e := &entry{
		key:    key,
		tags:   tags,
		policy: pol,
		subs:   make(map[int]func(json.RawMessage)),
	}
	s.entries.Set(key, e, pol.Retention)
	for _, t := range tags {
		if s.byTag[t] == nil {
			s.byTag[t] = make(map[string]*entry)
		}
		s.byTag[t][key] = e
	}
	return e
}

func (s *Store) lookup(key string) (*entry, bool) {
	v, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (s *Store) keys() []string {
	items := s.entries.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) taggedEntries(tags []Tag) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []*entry
	for _, t := range tags {
		for key, e := range s.byTag[t] {
			if seen[key] {
				continue
			}
			// The index can briefly outlive an evicted entry.
			if _, ok := s.entries.Get(key); !ok {
				delete(s.byTag[t], key)
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	return out
}

// Flush drops every entry and the whole tag index. Used on logout,
// when all cached state belongs to a session that no longer exists.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Flush()
	s.byTag = make(map[Tag]map[string]*entry)
}

// beginRetention puts an entry on its grace-period timer. Re-checks the
// subscriber count under s.mu so it cannot unpin an entry a concurrent
// Subscribe just claimed.
func (s *Store) beginRetention(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.mu.Lock()
	watched := len(e.subs) > 0
	e.mu.Unlock()
	if watched {
		return
	}
	s.entries.Set(e.key, e, e.policy.Retention)
}

func (s *Store) evict(key string) {
	s.entries.Delete(key) // OnEvicted drops the tag index rows
}

func (s *Store) dropFromIndex(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range e.tags {
		delete(s.byTag[t], e.key)
	}
}

func snapshot(e *entry) []func(json.RawMessage) {
	subs := make([]func(json.RawMessage), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}
