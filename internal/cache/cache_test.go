package cache

import (
	"testing"
	"time"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := NewTTLCache[string](4, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}

	c.Set("a", "one")
	if got, ok := c.Get("a"); !ok || got != "one" {
		t.Errorf("Get(a) = %q, %v; want one, true", got, ok)
	}

	c.Set("a", "two")
	if got, _ := c.Get("a"); got != "two" {
		t.Errorf("Get(a) after overwrite = %q, want two", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache[int](4, 10*time.Millisecond)

	c.Set("k", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expired Get, want 0", c.Len())
	}
}

func TestTTLCache_LRUEviction(t *testing.T) {
	c := NewTTLCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // refresh a, making b the eviction candidate
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry should survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should be present")
	}
}

func TestTTLCache_InvalidatePrefix(t *testing.T) {
	c := NewTTLCache[int](8, time.Minute)

	c.Set("summary:1:2026-01", 100)
	c.Set("summary:1:2026-02", 200)
	c.Set("summary:2:2026-01", 300)

	if n := c.InvalidatePrefix("summary:1:"); n != 2 {
		t.Errorf("InvalidatePrefix removed %d entries, want 2", n)
	}
	if _, ok := c.Get("summary:1:2026-01"); ok {
		t.Error("invalidated entry should miss")
	}
	if _, ok := c.Get("summary:2:2026-01"); !ok {
		t.Error("other owner's entry should survive")
	}
}

func TestTTLCache_CleanExpired(t *testing.T) {
	c := NewTTLCache[int](8, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	if n := c.cleanExpired(); n != 2 {
		t.Errorf("cleanExpired removed %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
