// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "occupancy-go")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/occupancy.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")
	viper.SetDefault("realtime.mqtt.topic_prefix", "frigate")
	viper.SetDefault("realtime.mqtt.queue_size", 256)
	viper.SetDefault("realtime.mqtt.reconnect_interval", 5*time.Second)
	viper.SetDefault("realtime.mqtt.connect_timeout", 30*time.Second)
	viper.SetDefault("realtime.mqtt.publish.enabled", false)
	viper.SetDefault("realtime.mqtt.publish.prefix", "occupancy/areas")
	viper.SetDefault("realtime.mqtt.publish.delta", false)
	viper.SetDefault("realtime.mqtt.publish.retain", true)
	viper.SetDefault("realtime.mqtt.publish.qos", 1)
	viper.SetDefault("realtime.mqtt.publish.homeassistant.enabled", false)
	viper.SetDefault("realtime.mqtt.publish.homeassistant.discovery_prefix", "homeassistant")
	viper.SetDefault("realtime.mqtt.publish.homeassistant.device_name", "Occupancy")

	viper.SetDefault("counting.debounce_window", 5*time.Second)
	viper.SetDefault("counting.inactivity_timeout", 30*time.Second)
	viper.SetDefault("counting.warning_fraction", 0.9)
	viper.SetDefault("counting.confidence_threshold", 0.7)
	viper.SetDefault("counting.active_objects", []string{"person", "vehicle"})
	viper.SetDefault("counting.allow_negative", false)
	viper.SetDefault("counting.retention_days", 30)
	viper.SetDefault("counting.measurement_interval", time.Minute)
	viper.SetDefault("counting.cleanup_interval", time.Hour)
	viper.SetDefault("counting.seed_defaults", true)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "occupancy.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "occupancy")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "occupancy")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
