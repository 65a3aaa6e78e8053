// Needlingo - customer interview trainer
//
// Practise "The Mom Test" against a synthetic customer whose real pain point
// only surfaces when you ask about specific past events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/needlingo/internal/observability"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "needlingo",
	Short: "Needlingo - customer interview trainer",
	Long: `Needlingo role-plays a synthetic customer and scores every question you ask.
Ask about the past, not the future, and find the hidden pain point.

  needlingo serve              Start the HTTP API
  needlingo play --lang en     Interview in the terminal`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			observability.Logger().Debug("no .env file found, using environment variables")
		}
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
