package main

import (
	"context"
	"fmt"

	"github.com/PabloGalante/needlingo/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/needlingo/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/needlingo/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/needlingo/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/needlingo/internal/config"
	"github.com/PabloGalante/needlingo/internal/domain"
	"github.com/PabloGalante/needlingo/internal/observability"
)

// newGateway builds the language model gateway for the configured provider.
func newGateway(ctx context.Context, cfg *config.Config) (domain.Gateway, error) {
	log := observability.WithFields("provider", cfg.LLMProvider, "model", cfg.ModelName)

	var (
		backend llm.Backend
		err     error
	)
	switch cfg.LLMProvider {
	case config.ProviderMock:
		log.Info("using mock gateway")
		return llm.NewMockGateway(), nil
	case config.ProviderGemini:
		backend, err = llm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.ModelName)
	case config.ProviderVertex:
		backend, err = llm.NewVertexBackend(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
	case config.ProviderAnthropic:
		backend, err = llm.NewAnthropicBackend(cfg.AnthropicAPIKey, cfg.ModelName)
	case config.ProviderOpenAI:
		backend, err = llm.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.ModelName)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s backend: %w", cfg.LLMProvider, err)
	}

	log.Info("using model gateway", "timeout", cfg.GatewayTimeout)
	return llm.NewGateway(backend, cfg.GatewayTimeout), nil
}

// newArchive opens the configured archive store. The returned func releases it.
func newArchive(ctx context.Context, cfg *config.Config) (domain.ArchiveStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case config.StorageFirestore:
		observability.Logger().Info("using firestore storage", "project", cfg.GCPProjectID)
		st, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing firestore store: %w", err)
		}
		return st, st.Close, nil

	case config.StorageSQLite:
		observability.Logger().Info("using sqlite storage", "path", cfg.SQLitePath)
		st, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return st, st.Close, nil

	case config.StorageMemory:
		observability.Logger().Info("using in-memory storage")
		return memstore.NewArchiveStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
