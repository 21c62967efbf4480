package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyFor(t *testing.T) {
	tests := []struct {
		endpoint string
		params   map[string]string
		want     string
	}{
		{"/cart", nil, "/cart"},
		{"/salons", map[string]string{}, "/salons"},
		{"/salons", map[string]string{"city": "melbourne", "category": "hair"}, "/salons?category=hair&city=melbourne"},
		{"/salons", map[string]string{"category": "hair", "city": "melbourne"}, "/salons?category=hair&city=melbourne"},
	}
	for _, tt := range tests {
		if got := KeyFor(tt.endpoint, tt.params); got != tt.want {
			t.Errorf("KeyFor(%q, %v) = %q, want %q", tt.endpoint, tt.params, got, tt.want)
		}
	}
}

func TestKeyForHashesLongParams(t *testing.T) {
	long := map[string]string{}
	for i := 0; i < 30; i++ {
		long[string(rune('a'+i))+"xxxxxxxxxx"] = "yyyyyyyyyyyy"
	}
	key := KeyFor("/salons/search", long)
	if len(key) > 220 {
		t.Fatalf("long key not hashed: %d chars", len(key))
	}
	if key != KeyFor("/salons/search", long) {
		t.Fatal("hashed key must be stable")
	}
}

// testClock is a manually advanced time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: time.Unix(1700000000, 0)} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func countingFetch(value string, calls *atomic.Int32) Fetch {
	return func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(value), nil
	}
}

func TestQueryServesFreshValueWithoutNetwork(t *testing.T) {
	clock := newTestClock()
	s := New(WithClock(clock.Now))
	pol := Policy{TTL: 30 * time.Second, Retention: time.Minute}

	var calls atomic.Int32
	fetch := countingFetch(`{"items":[]}`, &calls)

	v1, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, fetch)
	require.NoError(t, err)
	require.JSONEq(t, `{"items":[]}`, string(v1))
	require.Equal(t, int32(1), calls.Load())

	// Within the TTL the cached value is served with no network call.
	clock.Advance(29 * time.Second)
	_, err = s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, fetch)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	// Past the TTL the entry is stale and refetched.
	clock.Advance(2 * time.Second)
	_, err = s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, fetch)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestQueryCoalescesConcurrentCallers(t *testing.T) {
	s := New()
	var calls atomic.Int32
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond) // hold the flight open
		return json.RawMessage(`[1,2,3]`), nil
	}

	const n = 12
	var wg sync.WaitGroup
	results := make([]json.RawMessage, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Query(context.Background(), "/salons", []Tag{"Salons"}, DefaultPolicy, fetch)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.Equal(t, `[1,2,3]`, string(v))
	}
}

func TestInvalidateRefetchesSubscribedEntries(t *testing.T) {
	s := New()
	pol := Policy{TTL: time.Minute, Retention: time.Minute}

	var version atomic.Int32
	version.Store(1)
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(fmt.Sprintf(`{"version":%d}`, version.Load())), nil
	}

	updates := make(chan string, 4)
	sub := s.Subscribe("/cart", []Tag{"Cart"}, pol, func(raw json.RawMessage) {
		updates <- string(raw)
	})
	defer sub.Cancel()

	_, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, fetch)
	require.NoError(t, err)
	require.Equal(t, `{"version":1}`, <-updates)

	// A mutation elsewhere bumps the backing data and invalidates the
	// tag; the subscriber must see the new value without re-querying.
	version.Store(2)
	s.Invalidate(context.Background(), "Cart")

	select {
	case got := <-updates:
		require.Equal(t, `{"version":2}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never saw the refetched value")
	}
}

func TestInvalidateEvictsUnsubscribedEntries(t *testing.T) {
	s := New()
	var calls atomic.Int32

	_, err := s.Query(context.Background(), "/favorites", []Tag{"Favorites"}, DefaultPolicy,
		countingFetch(`[]`, &calls))
	require.NoError(t, err)
	_, ok := s.Peek("/favorites")
	require.True(t, ok)

	s.Invalidate(context.Background(), "Favorites")

	_, ok = s.Peek("/favorites")
	require.False(t, ok, "unsubscribed entry should be evicted, not refetched")
}

func TestInvalidateIgnoresOtherTags(t *testing.T) {
	s := New()
	var cartCalls, favCalls atomic.Int32
	_, _ = s.Query(context.Background(), "/cart", []Tag{"Cart"}, DefaultPolicy, countingFetch(`{}`, &cartCalls))
	_, _ = s.Query(context.Background(), "/favorites", []Tag{"Favorites"}, DefaultPolicy, countingFetch(`[]`, &favCalls))

	s.Invalidate(context.Background(), "Cart")

	_, ok := s.Peek("/favorites")
	require.True(t, ok, "entries with unrelated tags must survive")
	_, ok = s.Peek("/cart")
	require.False(t, ok)
}

func TestUnsubscribedEntryAgesOutAfterRetention(t *testing.T) {
	s := New()
	pol := Policy{TTL: time.Minute, Retention: 50 * time.Millisecond}
	var calls atomic.Int32

	sub := s.Subscribe("/cart", []Tag{"Cart"}, pol, func(json.RawMessage) {})
	_, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, countingFetch(`{}`, &calls))
	require.NoError(t, err)

	// Pinned while subscribed, even past the retention window.
	time.Sleep(80 * time.Millisecond)
	_, ok := s.Peek("/cart")
	require.True(t, ok)

	// After the last unsubscribe the grace period starts.
	sub.Cancel()
	_, ok = s.Peek("/cart")
	require.True(t, ok, "entry should survive for the grace period")

	time.Sleep(80 * time.Millisecond)
	_, ok = s.Peek("/cart")
	require.False(t, ok, "entry should age out after the grace period")
}

func TestInvalidateSupersedesInFlightFetch(t *testing.T) {
	s := New()
	pol := Policy{TTL: time.Minute, Retention: time.Minute}

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		if calls.Add(1) == 1 {
			<-release // hold the first flight open across the invalidation
			return json.RawMessage(`{"version":1}`), nil
		}
		return json.RawMessage(`{"version":2}`), nil
	}

	updates := make(chan string, 4)
	sub := s.Subscribe("/cart", []Tag{"Cart"}, pol, func(raw json.RawMessage) {
		updates <- string(raw)
	})
	defer sub.Cancel()

	done := make(chan json.RawMessage, 1)
	go func() {
		v, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, fetch)
		require.NoError(t, err)
		done <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The mutation lands while the first fetch is still in flight; its
	// result must not stand in for the post-mutation refetch.
	s.Invalidate(context.Background(), "Cart")
	close(release)

	select {
	case got := <-updates:
		require.Equal(t, `{"version":2}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never saw the post-mutation value")
	}

	// The caller that queried before the mutation keeps its own result,
	// but the entry itself holds the refetched one.
	require.Equal(t, `{"version":1}`, string(<-done))
	require.Eventually(t, func() bool {
		raw, ok := s.Peek("/cart")
		return ok && string(raw) == `{"version":2}`
	}, 2*time.Second, 5*time.Millisecond)

	// And the superseded result did not reset freshness: a new query
	// serves the refetched value without another network call.
	v, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, fetch)
	require.NoError(t, err)
	require.Equal(t, `{"version":2}`, string(v))
	require.Equal(t, int32(2), calls.Load())
}

func TestSubscriberHandoverKeepsEntryPinned(t *testing.T) {
	s := New()
	pol := Policy{TTL: time.Minute, Retention: 20 * time.Millisecond}
	var calls atomic.Int32

	sub := s.Subscribe("/cart", []Tag{"Cart"}, pol, func(json.RawMessage) {})
	_, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, pol, countingFetch(`{}`, &calls))
	require.NoError(t, err)

	// One subscriber always remains, but every handover races the old
	// view's Cancel against the replacement's Subscribe.
	for i := 0; i < 100; i++ {
		old := sub
		next := make(chan *Subscription, 1)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); old.Cancel() }()
		go func() {
			defer wg.Done()
			next <- s.Subscribe("/cart", []Tag{"Cart"}, pol, func(json.RawMessage) {})
		}()
		wg.Wait()
		sub = <-next
	}
	defer sub.Cancel()

	time.Sleep(50 * time.Millisecond)
	_, ok := s.Peek("/cart")
	require.True(t, ok, "an entry with a live subscriber must stay pinned")
}

func TestRepeatQueriesExtendUnsubscribedRetention(t *testing.T) {
	s := New()
	pol := Policy{TTL: 5 * time.Millisecond, Retention: 100 * time.Millisecond}
	var calls atomic.Int32

	_, err := s.Query(context.Background(), "/salons", []Tag{"Salons"}, pol, countingFetch(`[]`, &calls))
	require.NoError(t, err)

	// A stale re-query restarts the grace period.
	time.Sleep(60 * time.Millisecond)
	_, err = s.Query(context.Background(), "/salons", []Tag{"Salons"}, pol, countingFetch(`[]`, &calls))
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())

	// Past the creation-time window but inside the renewed one.
	time.Sleep(60 * time.Millisecond)
	_, ok := s.Peek("/salons")
	require.True(t, ok, "a hot entry must not evict on its creation-time clock")
}

func TestNotifyFocusRefetchesConfiguredEntries(t *testing.T) {
	s := New()
	focusPol := Policy{TTL: time.Minute, Retention: time.Minute, RefetchOnFocus: true}
	quietPol := Policy{TTL: time.Minute, Retention: time.Minute}

	var cartCalls, salonCalls atomic.Int32
	cartUpdates := make(chan struct{}, 4)

	sub := s.Subscribe("/cart", []Tag{"Cart"}, focusPol, func(json.RawMessage) {
		cartUpdates <- struct{}{}
	})
	defer sub.Cancel()
	sub2 := s.Subscribe("/salons", []Tag{"Salons"}, quietPol, func(json.RawMessage) {})
	defer sub2.Cancel()

	_, _ = s.Query(context.Background(), "/cart", []Tag{"Cart"}, focusPol, countingFetch(`{}`, &cartCalls))
	_, _ = s.Query(context.Background(), "/salons", []Tag{"Salons"}, quietPol, countingFetch(`[]`, &salonCalls))
	<-cartUpdates // initial store

	s.NotifyFocus(context.Background())

	select {
	case <-cartUpdates:
	case <-time.After(2 * time.Second):
		t.Fatal("focus refetch never happened")
	}
	require.Eventually(t, func() bool { return cartCalls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), salonCalls.Load(), "entries without the focus flag must not refetch")
}

func TestFlushDropsEverything(t *testing.T) {
	s := New()
	var calls atomic.Int32
	_, _ = s.Query(context.Background(), "/cart", []Tag{"Cart"}, DefaultPolicy, countingFetch(`{}`, &calls))

	s.Flush()

	_, ok := s.Peek("/cart")
	require.False(t, ok)
	// Invalidating a flushed tag is a no-op, not a panic.
	s.Invalidate(context.Background(), "Cart")
}

func TestQueryPropagatesFetchError(t *testing.T) {
	s := New()
	_, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, DefaultPolicy,
		func(ctx context.Context) (json.RawMessage, error) {
			return nil, context.DeadlineExceeded
		})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Nothing is cached on failure; the next call fetches again.
	var calls atomic.Int32
	_, err = s.Query(context.Background(), "/cart", []Tag{"Cart"}, DefaultPolicy, countingFetch(`{}`, &calls))
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}
