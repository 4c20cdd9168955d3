package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/occupancy-go/cmd/areas"
	"github.com/tphakala/occupancy-go/cmd/cleanup"
	"github.com/tphakala/occupancy-go/cmd/config"
	"github.com/tphakala/occupancy-go/cmd/realtime"
	"github.com/tphakala/occupancy-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "occupancy",
		Short:         "Zone transition occupancy counter",
		Long:          "Counts people and vehicles entering and leaving areas from NVR zone events delivered over MQTT.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		areas.Command(settings),
		cleanup.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Command line flags take precedence over the config file
		settings.Debug = viper.GetBool("debug")
		settings.Output.SQLite.Path = viper.GetString("output.sqlite.path")
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "database", viper.GetString("output.sqlite.path"), "Path to the SQLite database")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("output.sqlite.path", rootCmd.PersistentFlags().Lookup("database")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
