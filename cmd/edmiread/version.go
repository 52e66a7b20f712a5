package main

import (
	"fmt"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stdout, "edmiread version %s\n", versioninfo.Version)
			fmt.Fprintf(os.Stdout, "commit: %s\n", versioninfo.Revision)
			fmt.Fprintf(os.Stdout, "date: %s\n", versioninfo.LastCommit.Format("2006-01-02"))
		},
	}
}
