package aicache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if Key("row a") == Key("row b") {
		t.Error("different rows should produce different keys")
	}
	if Key("row a") != Key("row a") {
		t.Error("same row should produce the same key")
	}
	if len(Key("x")) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(Key("x")))
	}
}

func TestCaches(t *testing.T) {
	boltCache, err := OpenBolt(filepath.Join(t.TempDir(), "ai.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	defer boltCache.Close()

	caches := map[string]Cache{
		"memory": NewMemory(),
		"bolt":   boltCache,
	}

	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := Key("2024-01-02,WOOLWORTHS 1234,-12.50")

			if _, ok, err := c.Get(ctx, key); err != nil || ok {
				t.Fatalf("Get on empty cache = %v, %v", ok, err)
			}

			want := Entry{
				EntityName:  "Woolworths",
				Category:    "Groceries",
				Description: "Supermarket",
				CachedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			}
			if err := c.Set(ctx, key, want); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, ok, err := c.Get(ctx, key)
			if err != nil || !ok {
				t.Fatalf("Get = %v, %v", ok, err)
			}
			if got.EntityName != want.EntityName || got.Category != want.Category || !got.CachedAt.Equal(want.CachedAt) {
				t.Errorf("Get = %+v, want %+v", got, want)
			}

			if err := c.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if _, ok, _ := c.Get(ctx, key); ok {
				t.Error("entry still present after Clear")
			}

			// Cache remains usable after Clear.
			if err := c.Set(ctx, key, want); err != nil {
				t.Fatalf("Set after Clear failed: %v", err)
			}
		})
	}
}
