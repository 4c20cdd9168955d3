// conf/env.go environment variable bindings
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is prepended to every bound variable, e.g. OCCUPANCY_MQTT_BROKER
const envPrefix = "OCCUPANCY"

// envBinding maps a config key to an environment variable with optional validation
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"realtime.mqtt.broker", "MQTT_BROKER", validateBrokerURL},
		{"realtime.mqtt.username", "MQTT_USERNAME", nil},
		{"realtime.mqtt.password", "MQTT_PASSWORD", nil},
		{"realtime.mqtt.topic_prefix", "MQTT_TOPIC_PREFIX", nil},
		{"output.sqlite.path", "SQLITE_PATH", nil},
		{"output.mysql.enabled", "MYSQL_ENABLED", validateBool},
		{"output.mysql.host", "MYSQL_HOST", nil},
		{"output.mysql.port", "MYSQL_PORT", validatePort},
		{"output.mysql.username", "MYSQL_USERNAME", nil},
		{"output.mysql.password", "MYSQL_PASSWORD", nil},
		{"output.mysql.database", "MYSQL_DATABASE", nil},
		{"webserver.port", "WEBSERVER_PORT", validatePort},
		{"sentry.dsn", "SENTRY_DSN", nil},
		{"logging.default_level", "LOG_LEVEL", nil},
	}
}

// bindEnvVars binds the known environment variables to viper keys.
// Set variables that fail validation are reported together.
func bindEnvVars() error {
	var problems []string

	for _, b := range getEnvBindings() {
		envVar := envPrefix + "_" + b.EnvVar
		if err := viper.BindEnv(b.ConfigKey, envVar); err != nil {
			return fmt.Errorf("error binding %s: %w", envVar, err)
		}

		value, ok := os.LookupEnv(envVar)
		if !ok || b.Validate == nil {
			continue
		}
		if err := b.Validate(value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", envVar, err))
		}
	}

	if len(problems) > 0 {
		return ValidationError{Errors: problems}
	}
	return nil
}

func validateBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid broker URL %q", value)
	}
	return nil
}

func validatePort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", value)
	}
	return nil
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean %q", value)
	}
	return nil
}
