package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"photo-tagger/internal/startup"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "photo-tagger %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", info.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", info.BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "  go:      %s %s/%s\n", info.GoVersion, info.OS, info.Arch)
		},
	}
}
