package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"photo-tagger/internal/startup"
)

// app carries the configuration shared by all subcommands.
type app struct {
	v          *viper.Viper
	configFile string
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "photo-tagger",
		Short:         "Photo index with automatic folder tags",
		Long:          "Watches a photo directory, indexes every file with its capture date and folder tags, renders thumbnails and serves a tag and date query API.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// config generate writes defaults and must not fail on a broken file.
			if cmd.Name() == "generate" || cmd.Name() == "version" {
				return nil
			}
			return startup.InitConfig(a.v, a.configFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.bindServeFlags(cmd)
			return a.serve(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is ./photo-tagger.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("media-dir", "", "photo directory to index")
	cmd.PersistentFlags().String("database-path", "", "SQLite database file")

	a.bindFlag(cmd, "log.level", "log-level")
	a.bindFlag(cmd, "media_dir", "media-dir")
	a.bindFlag(cmd, "database_path", "database-path")

	cmd.Version = fmt.Sprintf("%s (%s)", startup.Version, startup.Commit)

	serve := newServeCommand(a)
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(serve)
	cmd.AddCommand(newReconcileCommand(a))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// bindFlag binds a flag of cmd to a configuration key. Unset flags leave
// the key to the file and environment.
func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if f == nil {
		panic("unknown flag " + flag)
	}
	if err := a.v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}
