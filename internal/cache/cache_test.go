package cache

import (
	"context"
	"testing"
	"time"
)

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := New[string, int](0)
	defer c.Close()

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set(ctx, "tip", 7, time.Second)
	c.Set(ctx, "forever", 1, 0)

	if v, ok := c.Get(ctx, "tip"); !ok || v != 7 {
		t.Fatalf("Get(tip) = (%d, %v), want (7, true)", v, ok)
	}

	now = now.Add(2 * time.Second)

	if _, ok := c.Get(ctx, "tip"); ok {
		t.Fatal("expected tip to be expired")
	}
	if _, ok := c.Get(ctx, "forever"); !ok {
		t.Fatal("expected entry without ttl to survive")
	}

	c.deleteExpired()
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after sweep", c.Len())
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := New[int, string](time.Minute)
	defer c.Close()

	c.Set(ctx, 1, "a", 0)
	c.Set(ctx, 2, "b", 0)
	c.Delete(ctx, 1)

	if _, ok := c.Get(ctx, 1); ok {
		t.Fatal("expected key 1 deleted")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after Clear", c.Len())
	}

	c.Close()
	c.Close()
}
