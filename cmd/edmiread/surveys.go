package main

import (
	"os"

	"edmiread/internal/console"
	"edmiread/pkg/edmi"

	"github.com/spf13/cobra"
)

func newSurveysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "surveys",
		Short: "List the load survey files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return console.PrintSurveys(os.Stdout, edmi.Surveys())
		},
	}
}
