package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"edmiread/internal/console"
	"edmiread/internal/util"
	"edmiread/pkg/edmi"

	"github.com/spf13/cobra"
)

type profileFlags struct {
	from string
	to   string
	csv  string
}

func newProfileCmd() *cobra.Command {
	flags := &profileFlags{}

	cmd := &cobra.Command{
		Use:   "profile SURVEY",
		Short: "Read load survey records for a time window",
		Long: `Retrieve interval records from a load survey file. The window is
half-open: a record stamped exactly at --to is not included, so
consecutive windows never overlap. Timestamps are interpreted in the
local time zone, the zone the meter clock runs in.`,
		Example: `  edmiread profile LS01 --from "2024-03-01" --to "2024-03-02"
  edmiread profile LS03 --from "2024-03-01 06:00" --to "2024-03-01 18:00" --csv out.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.from, "from", "", "Window start, inclusive (e.g. \"2024-03-01 00:00\")")
	cmd.Flags().StringVar(&flags.to, "to", "", "Window end, exclusive")
	cmd.Flags().StringVar(&flags.csv, "csv", "", "Write records to a CSV file instead of the table")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}

func runProfile(surveyName string, flags *profileFlags) error {
	from, err := util.ParseLocalTime(flags.from)
	if err != nil {
		return err
	}
	to, err := util.ParseLocalTime(flags.to)
	if err != nil {
		return err
	}

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

	progress := console.NewProgress(os.Stderr)
	data, err := session.ReadProfile(ctx, surveyName, from, to, progress.Update)
	progress.Done()
	if err != nil {
		// records gathered before the failure are still worth showing
		if data != nil && len(data.Records) > 0 {
			fmt.Fprintf(os.Stderr, "warning: read aborted after %d records: %v\n", len(data.Records), err)
		} else {
			return err
		}
	}

	if flags.csv != "" {
		return writeProfileCSV(flags.csv, data)
	}
	return console.PrintProfile(os.Stdout, data)
}

func writeProfileCSV(path string, data *edmi.ProfileData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"timestamp"}
	for _, ch := range data.Spec.Channels {
		header = append(header, ch.Name)
	}
	header = append(header, "status")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, rec := range data.Records {
		row := []string{rec.Timestamp.Format(time.DateTime)}
		for _, v := range rec.Values {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		row = append(row, fmt.Sprintf("0x%04X", rec.Status))
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
