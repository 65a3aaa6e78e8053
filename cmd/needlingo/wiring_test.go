package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/PabloGalante/needlingo/internal/adapters/llm"
	memstore "github.com/PabloGalante/needlingo/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/needlingo/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/needlingo/internal/config"
)

func TestNewGateway(t *testing.T) {
	ctx := context.Background()

	gw, err := newGateway(ctx, &config.Config{LLMProvider: config.ProviderMock})
	if err != nil {
		t.Fatalf("mock gateway: %v", err)
	}
	if _, ok := gw.(*llm.MockGateway); !ok {
		t.Fatalf("expected mock gateway, got %T", gw)
	}

	gw, err = newGateway(ctx, &config.Config{LLMProvider: config.ProviderAnthropic, AnthropicAPIKey: "test-key"})
	if err != nil {
		t.Fatalf("anthropic gateway: %v", err)
	}
	if _, ok := gw.(*llm.Gateway); !ok {
		t.Fatalf("expected model gateway, got %T", gw)
	}

	if _, err := newGateway(ctx, &config.Config{LLMProvider: config.ProviderOpenAI}); err == nil {
		t.Fatalf("expected error for openai without key")
	}
	if _, err := newGateway(ctx, &config.Config{LLMProvider: "llama"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewArchive(t *testing.T) {
	ctx := context.Background()

	st, closeFn, err := newArchive(ctx, &config.Config{StorageBackend: config.StorageMemory})
	if err != nil {
		t.Fatalf("memory archive: %v", err)
	}
	if _, ok := st.(*memstore.ArchiveStore); !ok {
		t.Fatalf("expected memory store, got %T", st)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "archive.db")
	st, closeFn, err = newArchive(ctx, &config.Config{StorageBackend: config.StorageSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite archive: %v", err)
	}
	if _, ok := st.(*sqlitestore.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", st)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, _, err := newArchive(ctx, &config.Config{StorageBackend: "redis"}); err == nil {
		t.Fatalf("expected error for unknown storage backend")
	}
}
