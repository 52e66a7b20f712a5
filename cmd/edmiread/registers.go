package main

import (
	"os"

	"edmiread/internal/console"
	"edmiread/pkg/edmi"

	"github.com/spf13/cobra"
)

func newRegistersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registers",
		Short: "List the known register catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return console.PrintCatalog(os.Stdout, edmi.Catalog())
		},
	}
}
