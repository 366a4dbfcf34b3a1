package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	key := Key("shop1", "trial_balance", "", "")

	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, key, []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	payload, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(payload) != `{"a":1}` {
		t.Fatalf("payload = %q", payload)
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	key := Key("shop1", "pnl", "2024-01-01", "2024-01-31")

	if err := c.Set(ctx, key, []byte("x"), -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatal("expired entry should not be returned")
	}
}

func TestMemoryInvalidateAllIsTenantScoped(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	keyA := Key("shop1", "ledger", "2024-01-01", "2024-01-31")
	keyB := Key("shop1", "dashboard", "", "")
	keyOther := Key("shop2", "ledger", "2024-01-01", "2024-01-31")
	for _, k := range []string{keyA, keyB, keyOther} {
		if err := c.Set(ctx, k, []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	if err := c.InvalidateAll(ctx, "shop1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, ok, _ := c.Get(ctx, keyA); ok {
		t.Fatal("shop1 ledger entry survived invalidation")
	}
	if _, ok, _ := c.Get(ctx, keyB); ok {
		t.Fatal("shop1 dashboard entry survived invalidation")
	}
	if _, ok, _ := c.Get(ctx, keyOther); !ok {
		t.Fatal("shop2 entry was dropped by shop1 invalidation")
	}
}

func TestKeyShape(t *testing.T) {
	got := Key("shop1", "daily_summary", "2024-02-01", "2024-02-29")
	want := "shop1|daily_summary|2024-02-01|2024-02-29"
	if got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
}
