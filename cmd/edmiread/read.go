package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"edmiread/internal/console"
	"edmiread/pkg/edmi"

	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read REGISTER...",
		Short: "Read one or more registers",
		Long: `Read registers by catalog id or friendly name and print their values.
A register that fails to read does not abort the rest of the batch.`,
		Example: `  edmiread read PHASE_A_VOLTAGE
  edmiread read "phase a voltage" PHASE_A_CURRENT FREQUENCY
  edmiread read METER_SERIAL_NUMBER`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(args)
		},
	}
}

func runRead(names []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	results := session.ReadRegisters(ctx, names)
	if err := console.PrintRegisterResults(os.Stdout, results); err != nil {
		return err
	}

	failed := 0
	unknown := false
	for _, r := range results {
		if r.Err != nil {
			failed++
			var ue *edmi.UnknownRegisterError
			if errors.As(r.Err, &ue) {
				unknown = true
			}
		}
	}
	if unknown {
		fmt.Fprintln(os.Stderr, "hint: run 'edmiread registers' to list known registers")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d register reads failed", failed, len(results))
	}
	return nil
}
