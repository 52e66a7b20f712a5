package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

func main() {
	// optional .env next to the binary, real env always wins
	_ = godotenv.Load()

	// startup messages before the zap logger exists
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.DateTime,
	})))

	rootCmd := &cobra.Command{
		Use:   "edmiread",
		Short: "Read registers and load profiles from EDMI energy meters",
		Long: `edmiread talks the EDMI exchange protocol over a serial line to
Mk7/Mk10 family energy meters: spot register reads and load survey
retrieval, printed as tables or CSV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newRegistersCmd())
	rootCmd.AddCommand(newSurveysCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
