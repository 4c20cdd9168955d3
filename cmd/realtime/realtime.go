package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/occupancy-go/internal/analysis"
	"github.com/tphakala/occupancy-go/internal/conf"
)

// Command creates a new command for realtime occupancy counting.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Count occupancy in realtime mode",
		Long:  "Subscribe to the NVR event feed and keep per-area occupancy up to date.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(cmd.Context(), settings)
		},
	}

	// Set up flags specific to the 'realtime' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Realtime.MQTT.Broker, "broker", viper.GetString("realtime.mqtt.broker"), "MQTT broker URL (tcp://host:port)")
	cmd.Flags().StringVar(&settings.Realtime.MQTT.TopicPrefix, "topic-prefix", viper.GetString("realtime.mqtt.topic_prefix"), "NVR topic prefix, events are read from <prefix>/events")
	cmd.Flags().BoolVar(&settings.Realtime.MQTT.Publish.Enabled, "publish", viper.GetBool("realtime.mqtt.publish.enabled"), "Publish area totals to MQTT")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "api", viper.GetBool("webserver.enabled"), "Serve the HTTP query API")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP API port")

	// Bind flags to the viper settings
	for key, flag := range map[string]string{
		"realtime.mqtt.broker":          "broker",
		"realtime.mqtt.topic_prefix":    "topic-prefix",
		"realtime.mqtt.publish.enabled": "publish",
		"webserver.enabled":             "api",
		"webserver.port":                "port",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	return nil
}
