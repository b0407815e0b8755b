package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dvloznov/ledger-import/internal/aicache"
	"github.com/dvloznov/ledger-import/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefault()
	cfg.Notion.Token = "secret_token"
	cfg.Notion.BalanceSheetDBID = "balance-sheet-db"
	cfg.Notion.EntitiesDBID = "entities-db"
	cfg.AI.AnthropicAPIKey = "sk-ant-test"
	cfg.Store.Path = filepath.Join(dir, "ledger-import.db")
	return cfg
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.CachePath = filepath.Join(t.TempDir(), "ai-cache.db")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.Service == nil || a.Store == nil || a.Ledger == nil || a.Categorizer == nil {
		t.Errorf("app not fully wired: %+v", a)
	}
	if _, ok := a.Categorizer.Cache().(*aicache.Bolt); !ok {
		t.Errorf("cache = %T, want *aicache.Bolt", a.Categorizer.Cache())
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"notion token", func(c *config.Config) { c.Notion.Token = "" }},
		{"balance sheet", func(c *config.Config) { c.Notion.BalanceSheetDBID = "" }},
		{"anthropic key", func(c *config.Config) { c.AI.AnthropicAPIKey = "" }},
		{"gemini key", func(c *config.Config) { c.AI.Provider = "gemini" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			_, err := New(context.Background(), cfg)
			if !errors.Is(err, config.ErrMissingCredential) {
				t.Errorf("err = %v, want ErrMissingCredential", err)
			}
		})
	}
}

func TestOpenCache_Memory(t *testing.T) {
	cache, closeFn, err := OpenCache(config.NewDefault())
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer closeFn()
	if _, ok := cache.(*aicache.Memory); !ok {
		t.Errorf("cache = %T, want *aicache.Memory", cache)
	}
}
