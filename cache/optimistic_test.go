package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seedEntry(t *testing.T, s *Store, key, value string) {
	t.Helper()
	_, err := s.Query(context.Background(), key, []Tag{"Cart"}, DefaultPolicy,
		func(ctx context.Context) (json.RawMessage, error) {
			return json.RawMessage(value), nil
		})
	require.NoError(t, err)
}

func setValue(v string) func(json.RawMessage) json.RawMessage {
	return func(json.RawMessage) json.RawMessage { return json.RawMessage(v) }
}

func TestRevertRestoresExactPriorValue(t *testing.T) {
	s := New()
	const before = `{"items":[{"service_id":"svc-1","quantity":1,"price":500}],"total":500}`
	seedEntry(t, s, "/cart", before)

	p := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`{"items":[],"total":0}`))

	got, ok := s.Peek("/cart")
	require.True(t, ok)
	require.Equal(t, `{"items":[],"total":0}`, string(got))

	p.Revert()

	// Byte-for-byte the value from immediately before the patch.
	got, ok = s.Peek("/cart")
	require.True(t, ok)
	require.Equal(t, before, string(got))
}

func TestOverlappingPatchesRevertLIFO(t *testing.T) {
	s := New()
	seedEntry(t, s, "/cart", `"v0"`)

	p1 := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"v1"`))
	p2 := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"v2"`))

	p2.Revert()
	got, _ := s.Peek("/cart")
	require.Equal(t, `"v1"`, string(got))

	p1.Revert()
	got, _ = s.Peek("/cart")
	require.Equal(t, `"v0"`, string(got))
}

func TestRevertingEarlierPatchDiscardsLaterOnes(t *testing.T) {
	s := New()
	seedEntry(t, s, "/cart", `"v0"`)

	p1 := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"v1"`))
	p2 := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"v2"`))

	p1.Revert()
	got, _ := s.Peek("/cart")
	require.Equal(t, `"v0"`, string(got))

	// The later patch went down with it; reverting it again is a no-op.
	p2.Revert()
	got, _ = s.Peek("/cart")
	require.Equal(t, `"v0"`, string(got))
}

func TestCommitMakesPatchPermanent(t *testing.T) {
	s := New()
	seedEntry(t, s, "/cart", `"v0"`)

	p := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"v1"`))
	p.Commit()

	// Settled patches cannot be undone.
	p.Revert()
	got, _ := s.Peek("/cart")
	require.Equal(t, `"v1"`, string(got))
}

func TestApplyPatchNotifiesSubscribers(t *testing.T) {
	s := New()
	seedEntry(t, s, "/cart", `"v0"`)

	updates := make(chan string, 4)
	sub := s.Subscribe("/cart", []Tag{"Cart"}, DefaultPolicy, func(raw json.RawMessage) {
		updates <- string(raw)
	})
	defer sub.Cancel()

	p := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"provisional"`))
	require.Equal(t, `"provisional"`, <-updates)

	p.Revert()
	select {
	case got := <-updates:
		require.Equal(t, `"v0"`, got)
	case <-time.After(time.Second):
		t.Fatal("revert was not announced")
	}
}

func TestApplyPatchOnEmptyEntry(t *testing.T) {
	s := New()

	// Nothing cached yet: the transform sees nil and builds the first
	// provisional value.
	p := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, func(raw json.RawMessage) json.RawMessage {
		require.Nil(t, raw)
		return json.RawMessage(`{"items":[{"service_id":"svc-1","quantity":1}]}`)
	})

	got, ok := s.Peek("/cart")
	require.True(t, ok)
	require.Contains(t, string(got), "svc-1")

	p.Revert()
	_, ok = s.Peek("/cart")
	require.False(t, ok, "reverting the first patch should leave no value")
}

func TestAuthoritativeResultSupersedesPatches(t *testing.T) {
	s := New()
	seedEntry(t, s, "/cart", `"v0"`)
	p := s.ApplyPatch("/cart", []Tag{"Cart"}, DefaultPolicy, setValue(`"guess"`))
	p.Commit()

	// The post-mutation refetch reconciles drift between the guess and
	// the server's truth.
	_, err := s.Query(context.Background(), "/cart", []Tag{"Cart"}, Policy{TTL: 0, Retention: time.Minute},
		func(ctx context.Context) (json.RawMessage, error) {
			return json.RawMessage(`"truth"`), nil
		})
	require.NoError(t, err)
	got, _ := s.Peek("/cart")
	require.Equal(t, `"truth"`, string(got))
}
