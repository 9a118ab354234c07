package tenantkv

import (
	"context"
	"testing"

	"github.com/devrev/medadmin/internal/store"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// TestNamespacedKey_DistinctTenants_Property proves two different tenants
// never share a storage key for the same logical key.
func TestNamespacedKey_DistinctTenants_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		t1 := rapid.StringMatching(`[A-Za-z0-9_*?\-]{1,12}`).Draw(rt, "t1")
		t2 := rapid.StringMatching(`[A-Za-z0-9_*?\-]{1,12}`).Draw(rt, "t2")
		key := rapid.String().Draw(rt, "key")

		if t1 == t2 {
			rt.Skip("same tenant")
		}

		if NamespacedKey(t1, key) == NamespacedKey(t2, key) {
			rt.Fatalf("tenants %q and %q collide on key %q", t1, t2, key)
		}
	})
}

// TestNamespacedKey_Injective_Property proves distinct (tenant, key) pairs map
// to distinct storage keys once tenant IDs are valid.
func TestNamespacedKey_Injective_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		t1 := rapid.StringMatching(`[a-z0-9\-]{1,8}`).Draw(rt, "t1")
		t2 := rapid.StringMatching(`[a-z0-9\-]{1,8}`).Draw(rt, "t2")
		k1 := rapid.StringMatching(`[a-z0-9:]{0,10}`).Draw(rt, "k1")
		k2 := rapid.StringMatching(`[a-z0-9:]{0,10}`).Draw(rt, "k2")

		if t1 == t2 && k1 == k2 {
			rt.Skip("same pair")
		}

		if NamespacedKey(t1, k1) == NamespacedKey(t2, k2) {
			rt.Fatalf("(%q,%q) and (%q,%q) collide", t1, k1, t2, k2)
		}
	})
}

// TestLogicalKey_RoundTrip_Property proves LogicalKey undoes NamespacedKey.
func TestLogicalKey_RoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tenant := rapid.StringMatching(`[A-Za-z0-9_\-]{1,12}`).Draw(rt, "tenant")
		key := rapid.String().Draw(rt, "key")

		got, ok := LogicalKey(tenant, NamespacedKey(tenant, key))
		if !ok || got != key {
			rt.Fatalf("LogicalKey(%q, NamespacedKey(%q, %q)) = %q, %v", tenant, tenant, key, got, ok)
		}
	})
}

// TestStore_RoundTrip_Property proves Get after Set returns an equal value.
func TestStore_RoundTrip_Property(t *testing.T) {
	s := New(store.NewMemoryStore(0, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		tenant := rapid.StringMatching(`[a-z0-9\-]{1,8}`).Draw(rt, "tenant")
		key := rapid.StringMatching(`[a-z0-9:]{0,10}`).Draw(rt, "key")
		value := rapid.MapOf(rapid.String(), rapid.SliceOf(rapid.Int())).Draw(rt, "value")

		if err := s.Set(ctx, tenant, key, value, 0); err != nil {
			rt.Fatalf("Set: %v", err)
		}

		got, found, err := GetValue[map[string][]int](ctx, s, tenant, key)
		if err != nil || !found {
			rt.Fatalf("GetValue: found=%v err=%v", found, err)
		}
		if len(got) != len(value) {
			rt.Fatalf("got %d entries, want %d", len(got), len(value))
		}
		for k, want := range value {
			have := got[k]
			if len(have) != len(want) {
				rt.Fatalf("entry %q: got %v, want %v", k, have, want)
			}
			for i := range want {
				if have[i] != want[i] {
					rt.Fatalf("entry %q: got %v, want %v", k, have, want)
				}
			}
		}
	})
}

// TestTenantPattern_MatchesOwnKeys_Property proves the escaped tenant segment
// compiles and matches only that tenant's keys, whatever glob characters the
// tenant ID holds.
func TestTenantPattern_MatchesOwnKeys_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tenant := rapid.StringMatching(`[a-z*?\[\]{},^!\\\-]{1,8}`).Draw(rt, "tenant")
		other := rapid.StringMatching(`[a-z*?\[\]{},^!\\\-]{1,8}`).Draw(rt, "other")
		key := rapid.StringMatching(`[a-z0-9:]{0,10}`).Draw(rt, "key")

		g, err := store.CompilePattern(tenantPattern(tenant, "*"))
		if err != nil {
			rt.Fatalf("tenant %q: %v", tenant, err)
		}
		if !g.Match(NamespacedKey(tenant, key)) {
			rt.Fatalf("tenant %q does not match its own key %q", tenant, key)
		}
		if other != tenant && g.Match(NamespacedKey(other, key)) {
			rt.Fatalf("tenant %q matches key %q of tenant %q", tenant, key, other)
		}
	})
}
