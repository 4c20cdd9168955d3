// Package config provides the config command for locating and writing the
// configuration file.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/occupancy-go/internal/conf"
)

// Command creates and returns the config command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the path of the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := conf.FindConfigFile()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save [file]",
		Short: "Write the effective settings, flags and environment included",
		Long:  "Save writes the effective settings as YAML. Without a file argument the configuration file in use is replaced.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = conf.FindConfigFile(); err != nil {
					return err
				}
			}
			if err := conf.SaveYAMLConfig(path, settings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)
			return nil
		},
	})

	return cmd
}
