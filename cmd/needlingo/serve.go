package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/needlingo/internal/adapters/http"
	"github.com/PabloGalante/needlingo/internal/app/history"
	"github.com/PabloGalante/needlingo/internal/app/trainer"
	"github.com/PabloGalante/needlingo/internal/config"
	"github.com/PabloGalante/needlingo/internal/observability"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Needlingo HTTP API",
	Long:  "Start the HTTP API that serves one interview per user plus their graded history.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := observability.Configure(os.Stdout, cfg.LogLevel); err != nil {
		return err
	}

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		return err
	}
	archive, closeArchive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	registry := trainer.NewRegistry(gateway, archive, cfg.MaxTurns)
	handler := httpadapter.NewServer(registry, history.NewService(archive), cfg.DefaultLanguage)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			observability.Logger().Error("shutdown failed", "error", err)
		}
	}()

	observability.Logger().Info("needlingo api listening",
		"port", cfg.Port,
		"mode", cfg.Mode,
		"provider", cfg.LLMProvider,
		"storage", cfg.StorageBackend,
		"max_turns", cfg.MaxTurns,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	observability.Logger().Info("server stopped")
	return nil
}
