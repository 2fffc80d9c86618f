package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"photo-tagger/internal/startup"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(newConfigGenerateCommand())
	return cmd
}

func newConfigGenerateCommand() *cobra.Command {
	var (
		output    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration to " + startup.DefaultConfigFile,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filename, err := startup.GenerateConfig(output, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", filename)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory to write the file to")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing file")

	return cmd
}
